package pipeline

import "sync"

// Latest holds the most recent successful Result. It is the only state
// shared between the scheduler and the HTTP layer. Writes are last-wins.
type Latest struct {
	mu      sync.RWMutex
	result  *Result
	updates uint64
}

// Get returns the latest result, or nil before the first success.
func (l *Latest) Get() *Result {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.result
}

// Set replaces the latest result. nil is ignored.
func (l *Latest) Set(r *Result) {
	if r == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.result = r
	l.updates++
}

// Updates returns how many results have been stored.
func (l *Latest) Updates() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.updates
}
