// Package store keeps the live sessions, keyed by user. It is the mutual
// exclusion domain of the engine: every mutation of one user's session runs
// under that user's lock, and create-if-absent is atomic, so at most one
// live session per user is a hard invariant, not a best-effort check.
package store

import (
	"sync"
	"time"

	"github.com/osmelnikov/quizrush/internal/domain"
	"github.com/osmelnikov/quizrush/internal/errors"
)

type Store struct {
	mu       sync.Mutex
	sessions map[string]*entry

	stop    chan struct{}
	stopped sync.Once
}

type entry struct {
	mu sync.Mutex
	// s is nil while the session is still being built.
	s *domain.Session
}

func New() *Store {
	return &Store{
		sessions: make(map[string]*entry),
		stop:     make(chan struct{}),
	}
}

// Create reserves the user's slot and runs build while holding it. If a live
// session (or an in-flight Create) already exists for the user, build never
// runs and AlreadyInSession is returned. If build fails the slot is released
// and no session exists afterwards.
func (st *Store) Create(userID string, build func() (*domain.Session, error)) (*domain.Session, error) {
	e := &entry{}
	e.mu.Lock()
	defer e.mu.Unlock()

	st.mu.Lock()
	if _, ok := st.sessions[userID]; ok {
		st.mu.Unlock()
		return nil, errors.New(errors.CodeAlreadyExists,
			errors.WithReason(errors.ReasonAlreadyInSession),
			errors.WithMessagef("a live session already exists: user=%s", userID),
		)
	}
	st.sessions[userID] = e
	st.mu.Unlock()

	s, err := build()
	if err != nil {
		st.mu.Lock()
		delete(st.sessions, userID)
		st.mu.Unlock()
		return nil, err
	}

	s.Touched = time.Now()
	e.s = s
	return s, nil
}

// Update runs fn on the user's session under the per-user lock. fn sees the
// session exclusively; any answer, hint, timeout or settlement for the same
// user is serialized through here.
func (st *Store) Update(userID string, fn func(s *domain.Session) error) error {
	st.mu.Lock()
	e, ok := st.sessions[userID]
	st.mu.Unlock()

	if !ok {
		return errNoSession(userID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// The entry may have been deleted, or Create may have failed, while we
	// waited for the lock.
	st.mu.Lock()
	current, ok := st.sessions[userID]
	st.mu.Unlock()
	if !ok || current != e || e.s == nil {
		return errNoSession(userID)
	}

	if err := fn(e.s); err != nil {
		return err
	}

	e.s.Touched = time.Now()
	return nil
}

// Get returns a snapshot of the user's session.
func (st *Store) Get(userID string) (domain.Session, bool) {
	st.mu.Lock()
	e, ok := st.sessions[userID]
	st.mu.Unlock()

	if !ok {
		return domain.Session{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.s == nil {
		return domain.Session{}, false
	}
	return *e.s, true
}

func (st *Store) Delete(userID string) {
	st.mu.Lock()
	delete(st.sessions, userID)
	st.mu.Unlock()
}

func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// StartSweeper periodically reports sessions idle past ttl to onIdle. The
// callback receives user IDs only; whatever it decides to do goes back
// through Update and the usual serialization.
func (st *Store) StartSweeper(interval, ttl time.Duration, onIdle func(userID string)) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-st.stop:
				return
			case <-t.C:
				for _, id := range st.idle(ttl) {
					onIdle(id)
				}
			}
		}
	}()
}

func (st *Store) idle(ttl time.Duration) []string {
	st.mu.Lock()
	entries := make(map[string]*entry, len(st.sessions))
	for id, e := range st.sessions {
		entries[id] = e
	}
	st.mu.Unlock()

	cutoff := time.Now().Add(-ttl)

	var ids []string
	for id, e := range entries {
		e.mu.Lock()
		if e.s != nil && e.s.Touched.Before(cutoff) {
			ids = append(ids, id)
		}
		e.mu.Unlock()
	}
	return ids
}

func (st *Store) Close() {
	st.stopped.Do(func() { close(st.stop) })
}

func errNoSession(userID string) error {
	return errors.New(errors.CodeFailedPrecondition,
		errors.WithReason(errors.ReasonSessionNotActive),
		errors.WithMessagef("no live session: user=%s", userID),
	)
}
