package api

import (
	"context"
	"sync"
)

// Superseder cancels the in-flight request for a key when a newer request for
// the same key begins, so a stale response can never overwrite fresher state.
type Superseder struct {
	mu       sync.Mutex
	seq      uint64
	inflight map[string]inflight
}

type inflight struct {
	seq    uint64
	cancel context.CancelFunc
}

// NewSuperseder returns an empty Superseder.
func NewSuperseder() *Superseder {
	return &Superseder{inflight: make(map[string]inflight)}
}

// Begin cancels any earlier request registered under key and returns a context
// for the new one. The returned func must be called when the request finishes.
func (s *Superseder) Begin(ctx context.Context, key string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if prev, ok := s.inflight[key]; ok {
		prev.cancel()
	}
	s.seq++
	mine := s.seq
	s.inflight[key] = inflight{seq: mine, cancel: cancel}
	s.mu.Unlock()

	return ctx, func() {
		s.mu.Lock()
		if cur, ok := s.inflight[key]; ok && cur.seq == mine {
			delete(s.inflight, key)
		}
		s.mu.Unlock()
		cancel()
	}
}

// Cancel aborts the in-flight request for key, if any.
func (s *Superseder) Cancel(key string) {
	s.mu.Lock()
	prev, ok := s.inflight[key]
	delete(s.inflight, key)
	s.mu.Unlock()
	if ok {
		prev.cancel()
	}
}

// InFlight reports the number of tracked requests.
func (s *Superseder) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}
