// Package session keeps conversation state in memory, keyed by session id.
//
// Turns on one session run strictly one at a time and in arrival order;
// turns on different sessions run concurrently. The session map has its own
// lock, separate from the per-session turn locks.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"tablechat/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var ErrEmptySessionID = errors.New("empty session id")

// turnLock is a FIFO ticket queue for one session. Each waiter holds the
// channel its successor waits on. refs counts holders and waiters so the
// entry can be dropped when nobody uses it.
type turnLock struct {
	tail chan struct{}
	refs int
}

type entry struct {
	state *models.ConversationState
	seq   uint64
}

type Store struct {
	mu       sync.Mutex
	sessions map[string]*entry
	locks    map[string]*turnLock
	seq      uint64

	max      int
	now      func() time.Time
	newID    func() string
	logger   *zerolog.Logger
	onResize func(n int)
}

type Option func(*Store)

// WithMaxSessions caps how many sessions are kept; the oldest-created go first.
func WithMaxSessions(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.max = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(logger *zerolog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithIDGenerator replaces uuid generation, mostly for tests.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// WithResizeHook is called with the session count after every insert or removal.
func WithResizeHook(fn func(n int)) Option {
	return func(s *Store) { s.onResize = fn }
}

func NewStore(opts ...Option) *Store {
	nop := zerolog.Nop()
	s := &Store{
		sessions: make(map[string]*entry),
		locks:    make(map[string]*turnLock),
		max:      models.DefaultMaxSessions,
		now:      time.Now,
		newID:    uuid.NewString,
		logger:   &nop,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewID returns a fresh session id.
func (s *Store) NewID() string {
	return s.newID()
}

// acquire queues the caller behind earlier turns of the same session.
func (s *Store) acquire(ctx context.Context, id string) (func(), error) {
	s.mu.Lock()
	lock, ok := s.locks[id]
	if !ok {
		lock = &turnLock{}
		s.locks[id] = lock
	}
	lock.refs++
	prev := lock.tail
	mine := make(chan struct{})
	lock.tail = mine
	s.mu.Unlock()

	release := func() {
		close(mine)
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}

	if prev == nil {
		return release, nil
	}
	select {
	case <-prev:
		return release, nil
	case <-ctx.Done():
		// keep our place in the queue so later turns still wait for earlier ones
		go func() {
			<-prev
			release()
		}()
		return nil, ctx.Err()
	}
}

// WithSession runs fn with exclusive access to the session's state, creating
// the session if needed. fn must not keep the pointer after returning.
func (s *Store) WithSession(ctx context.Context, id string, fn func(state *models.ConversationState) error) (created bool, err error) {
	if id == "" {
		return false, ErrEmptySessionID
	}
	release, err := s.acquire(ctx, id)
	if err != nil {
		return false, err
	}
	defer release()

	state, created := s.GetOrCreate(id)
	err = fn(state)
	state.UpdatedAt = s.now()
	return created, err
}

// GetOrCreate returns the live state for id. Outside WithSession the result
// must be treated as read-only.
func (s *Store) GetOrCreate(id string) (*models.ConversationState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.sessions[id]; ok {
		return e.state, false
	}

	s.seq++
	e := &entry{state: models.NewConversationState(id, s.now()), seq: s.seq}
	s.sessions[id] = e
	s.evictLocked(id)
	s.resizedLocked()
	return e.state, true
}

// evictLocked drops the oldest-created sessions above the cap. Sessions with a
// turn in flight are skipped.
func (s *Store) evictLocked(keep string) {
	for len(s.sessions) > s.max {
		victim := ""
		var oldest uint64
		for id, e := range s.sessions {
			if id == keep {
				continue
			}
			if _, busy := s.locks[id]; busy {
				continue
			}
			if victim == "" || e.seq < oldest {
				victim, oldest = id, e.seq
			}
		}
		if victim == "" {
			s.logger.Warn().Int("sessions", len(s.sessions)).Msg("session cap exceeded, all sessions busy")
			return
		}
		delete(s.sessions, victim)
		s.logger.Debug().Str("session_id", victim).Msg("session evicted")
	}
}

// Snapshot returns a copy of the session state. It waits for an in-flight
// turn, so the copy never sees half of one.
func (s *Store) Snapshot(id string) (*models.ConversationState, bool) {
	release, err := s.acquire(context.Background(), id)
	if err != nil {
		return nil, false
	}
	defer release()

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	return e.state.Clone(), true
}

// Reset destroys the session. It waits for an in-flight turn to finish and
// reports whether the session existed.
func (s *Store) Reset(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, ErrEmptySessionID
	}
	release, err := s.acquire(ctx, id)
	if err != nil {
		return false, err
	}
	defer release()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false, nil
	}
	delete(s.sessions, id)
	s.resizedLocked()
	return true, nil
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Store) resizedLocked() {
	if s.onResize != nil {
		s.onResize(len(s.sessions))
	}
}
