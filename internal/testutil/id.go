package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates predictable identifiers for golden snapshot
// comparison. The same scenario with the same prefix produces identical
// span ids on every run.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	next   int
}

// NewSequentialIDs creates a generator producing "<prefix>-0001",
// "<prefix>-0002", and so on. An empty prefix defaults to "test-id".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "test-id"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next identifier in sequence.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("%s-%04d", g.prefix, g.next)
}
