package wizard

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrNotMounted = errors.New("page not mounted")

type entry struct {
	w        *Wizard
	lastUsed time.Time
}

// Store holds at most one mounted wizard per session. Mounting another
// page replaces the previous one, the same way navigating away unmounts a
// page in the browser.
type Store struct {
	mu    sync.Mutex
	clock Clock
	idle  time.Duration
	m     map[string]*entry
}

// NewStore builds a store. idle > 0 drops sessions not touched for that
// long on every Mount and Do, and on each PruneEvery tick.
func NewStore(clock Clock, idle time.Duration) *Store {
	if clock == nil {
		clock = RealClock{}
	}
	return &Store{clock: clock, idle: idle, m: map[string]*entry{}}
}

// Mount creates a fresh wizard for spec, discarding any previous state for
// the session.
func (s *Store) Mount(sessionID string, spec Spec) (State, error) {
	w, err := New(spec, s.clock)
	if err != nil {
		return State{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	if s.idle > 0 {
		s.pruneLocked(now, s.idle)
	}
	s.m[sessionID] = &entry{w: w, lastUsed: now}
	return w.State(), nil
}

// Do runs fn against the session's wizard for spec. If the session has no
// wizard, or it belongs to another page, a fresh one is mounted first.
func (s *Store) Do(sessionID string, spec Spec, fn func(*Wizard) error) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if s.idle > 0 {
		s.pruneLocked(now, s.idle)
	}
	e, ok := s.m[sessionID]
	if !ok || e.w.spec.Key != spec.Key {
		w, err := New(spec, s.clock)
		if err != nil {
			return State{}, err
		}
		e = &entry{w: w}
		s.m[sessionID] = e
	}
	e.lastUsed = now

	var err error
	if fn != nil {
		err = fn(e.w)
	}
	return e.w.State(), err
}

// Peek runs fn against the session's wizard for key without mounting one.
// fn may be nil.
func (s *Store) Peek(sessionID, key string, fn func(*Wizard)) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[sessionID]
	if !ok || e.w.spec.Key != key {
		return State{}, ErrNotMounted
	}
	e.lastUsed = s.clock.Now()
	if fn != nil {
		fn(e.w)
	}
	return e.w.State(), nil
}

// Prune removes sessions idle for longer than idle and reports how many
// were dropped.
func (s *Store) Prune(idle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pruneLocked(s.clock.Now(), idle)
}

// PruneEvery prunes with the store's idle timeout on every tick until ctx
// is done. onPrune, when set, receives each non-zero count.
func (s *Store) PruneEvery(ctx context.Context, every time.Duration, onPrune func(int)) {
	if s.idle <= 0 || every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.Prune(s.idle); n > 0 && onPrune != nil {
				onPrune(n)
			}
		}
	}
}

func (s *Store) pruneLocked(now time.Time, idle time.Duration) int {
	n := 0
	for id, e := range s.m {
		if now.Sub(e.lastUsed) > idle {
			delete(s.m, id)
			n++
		}
	}
	return n
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
