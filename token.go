package docbind

import (
	"sync"

	"github.com/google/uuid"
)

// TokenGenerator generates unique subscription tokens.
// Implemented by UUIDv7Generator (production) and FixedGenerator
// (tests).
//
// Every rebuilt subscription is stamped with a fresh token. The token
// appears in every log line for the subscription's lifecycle and
// guards snapshot delivery: a callback whose captured token no longer
// matches the binding's current token belongs to a torn-down
// subscription and is dropped.
type TokenGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 subscription tokens.
//
// UUIDv7 embeds a timestamp in the most significant bits, making
// tokens sortable by creation time, which helps when correlating a
// subscription's log lines.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent
// use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined tokens for testing.
//
// This enables deterministic test execution and golden trace
// comparison. Tests provide a known sequence of tokens and can verify
// exact log or trace output.
//
// Thread-safety: FixedGenerator is safe for concurrent use via
// internal mutex.
type FixedGenerator struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedGenerator creates a generator that returns tokens in order.
// When the provided tokens are exhausted, Generate panics.
func NewFixedGenerator(tokens ...string) *FixedGenerator {
	return &FixedGenerator{tokens: tokens}
}

// Generate returns the next predetermined token.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.tokens) {
		panic("docbind: FixedGenerator tokens exhausted")
	}
	t := g.tokens[g.idx]
	g.idx++
	return t
}
