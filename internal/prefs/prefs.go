// Package prefs keeps client-side preferences in durable key-value storage.
package prefs

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/cartsync/internal/store"
)

// DarkModeKey is the storage key of the theme flag.
const DarkModeKey = "darkMode"

const (
	enabled  = "enabled"
	disabled = "disabled"
)

// KV is durable key-value storage. *store.Store implements it.
type KV interface {
	GetPreference(ctx context.Context, key string) (string, error)
	SetPreference(ctx context.Context, key, value string) error
}

// Prefs reads and writes preferences.
type Prefs struct {
	kv KV
}

// New wraps kv.
func New(kv KV) *Prefs {
	return &Prefs{kv: kv}
}

// DarkMode reports the stored theme flag. A missing or unrecognised value
// means light mode.
func (p *Prefs) DarkMode(ctx context.Context) (bool, error) {
	v, err := p.kv.GetPreference(ctx, DarkModeKey)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read dark mode: %w", err)
	}
	return v == enabled, nil
}

// SetDarkMode stores the theme flag.
func (p *Prefs) SetDarkMode(ctx context.Context, on bool) error {
	v := disabled
	if on {
		v = enabled
	}
	if err := p.kv.SetPreference(ctx, DarkModeKey, v); err != nil {
		return fmt.Errorf("write dark mode: %w", err)
	}
	return nil
}
