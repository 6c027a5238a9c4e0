package account

import "sync"

// Gate holds streaming startup until every open timeline has fired its
// first-load-complete signal. Timelines that fail or are hidden still count,
// so the gate can never stay stuck.
type Gate struct {
	mu        sync.Mutex
	remaining int
	done      chan struct{}
}

// NewGate creates a gate waiting for n completions. With n <= 0 the gate is
// already open.
func NewGate(n int) *Gate {
	g := &Gate{remaining: n, done: make(chan struct{})}
	if n <= 0 {
		close(g.done)
	}
	return g
}

// Complete records one timeline's initial-load completion. Returns true on
// the completion that opens the gate; extra completions are ignored.
func (g *Gate) Complete() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.remaining <= 0 {
		return false
	}
	g.remaining--
	if g.remaining == 0 {
		close(g.done)
		return true
	}
	return false
}

// Done returns a channel closed once every expected completion arrived.
func (g *Gate) Done() <-chan struct{} {
	return g.done
}
