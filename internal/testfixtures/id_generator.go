package testfixtures

import (
	"strconv"
	"sync"
)

// IDGenerator yields "prefix-1", "prefix-2", ... so tests can predict the
// identifiers services assign.
type IDGenerator struct {
	mu     sync.Mutex
	prefix string
	next   int
}

// NewIDGenerator builds a generator; an empty prefix defaults to "id".
func NewIDGenerator(prefix string) *IDGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &IDGenerator{prefix: prefix}
}

// Next returns the following identifier in the sequence.
func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return g.prefix + "-" + strconv.Itoa(g.next)
}

// NextFunc adapts the generator for injection points expecting func() string.
func (g *IDGenerator) NextFunc() func() string {
	if g == nil {
		return func() string { return "" }
	}
	return g.Next
}
