package prefs

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cartsync/internal/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "prefs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDarkMode_DefaultsOff(t *testing.T) {
	p := New(openStore(t))

	on, err := p.DarkMode(context.Background())
	require.NoError(t, err)
	assert.False(t, on)
}

func TestDarkMode_RoundTrip(t *testing.T) {
	s := openStore(t)
	p := New(s)
	ctx := context.Background()

	require.NoError(t, p.SetDarkMode(ctx, true))
	on, err := p.DarkMode(ctx)
	require.NoError(t, err)
	assert.True(t, on)

	raw, err := s.GetPreference(ctx, DarkModeKey)
	require.NoError(t, err)
	assert.Equal(t, "enabled", raw)

	require.NoError(t, p.SetDarkMode(ctx, false))
	raw, err = s.GetPreference(ctx, DarkModeKey)
	require.NoError(t, err)
	assert.Equal(t, "disabled", raw)
}

func TestDarkMode_UnknownValueIsOff(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.SetPreference(ctx, DarkModeKey, "maybe"))

	on, err := New(s).DarkMode(ctx)
	require.NoError(t, err)
	assert.False(t, on)
}
