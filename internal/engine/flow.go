package engine

import (
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator produces unique identifiers for sessions and notifications.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 identifiers.
//
// Journal rows keyed by these ids sort by creation time, which keeps
// `cartctl journal` output readable without an extra timestamp sort.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined identifiers, then falls back to a
// numbered sequence "<prefix>-N" once the list is exhausted.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu     sync.Mutex
	ids    []string
	prefix string
	idx    int
}

// NewFixedGenerator creates a generator that returns ids in order.
//
//	gen := NewFixedGenerator("n-1", "n-2")
//	gen.Generate() // "n-1"
//	gen.Generate() // "n-2"
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// NewSequenceGenerator creates a generator yielding prefix-1, prefix-2, ...
func NewSequenceGenerator(prefix string) *FixedGenerator {
	return &FixedGenerator{prefix: prefix}
}

// Generate returns the next identifier.
//
// Panics if a FixedGenerator without a prefix runs out of ids; that is a
// test misconfiguration.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.idx++
	if g.idx <= len(g.ids) {
		return g.ids[g.idx-1]
	}
	if g.prefix == "" {
		panic("FixedGenerator: all ids exhausted")
	}
	return g.prefix + "-" + strconv.Itoa(g.idx-len(g.ids))
}
