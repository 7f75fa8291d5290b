package testutil

// FixedSessionGenerator returns the same session id every time.
//
// Journal rows are keyed by session id, so a fixed id makes journal dumps
// byte-identical across runs of the same scenario.
//
// Thread-safety: FixedSessionGenerator is stateless and safe for concurrent use.
type FixedSessionGenerator struct {
	id string
}

// NewFixedSessionGenerator creates a generator returning id.
// An empty id becomes "test-session".
func NewFixedSessionGenerator(id string) *FixedSessionGenerator {
	if id == "" {
		id = "test-session"
	}
	return &FixedSessionGenerator{id: id}
}

// Generate returns the fixed id.
func (g *FixedSessionGenerator) Generate() string {
	return g.id
}
