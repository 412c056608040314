package testutil

import (
	"fmt"
	"sync"
)

// SeqTokenGenerator produces subscription tokens in a deterministic
// sequence ("token-000001", "token-000002", ...). Scenarios replayed
// with a fresh generator produce byte-identical traces where the
// random UUID generator would not.
//
// Implements docbind.TokenGenerator.
type SeqTokenGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSeqTokenGenerator creates a generator with the given prefix. An
// empty prefix defaults to "token".
func NewSeqTokenGenerator(prefix string) *SeqTokenGenerator {
	if prefix == "" {
		prefix = "token"
	}
	return &SeqTokenGenerator{prefix: prefix}
}

// Generate returns the next token in the sequence.
func (g *SeqTokenGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%06d", g.prefix, g.n)
}
