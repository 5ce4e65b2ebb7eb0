// Package session keeps the live quiz for each sender in memory.
package session

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/classbot/internal/model"
)

// TTL is how long a quiz stays answerable after it is created.
const TTL = 30 * time.Minute

var (
	// ErrNoActiveSession means the owner has no quiz in progress.
	ErrNoActiveSession = errors.New("no active quiz session")
	// ErrSessionExpired means the owner's quiz ran past its TTL. The session is gone.
	ErrSessionExpired = errors.New("quiz session expired")
)

// Clock returns the current time.
type Clock func() time.Time

// Registry maps each owner to at most one quiz session. Expired sessions
// are evicted when read; there is no background sweep.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*model.QuizSession
	now      Clock

	locksMu sync.Mutex
	locks   map[string]*ownerLock
}

type ownerLock struct {
	mu   sync.Mutex
	refs int
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the registry's time source.
func WithClock(c Clock) Option {
	return func(r *Registry) { r.now = c }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		sessions: make(map[string]*model.QuizSession),
		locks:    make(map[string]*ownerLock),
		now:      time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Create starts a session for owner, replacing any session the owner already has.
func (r *Registry) Create(owner string, q model.Quiz) *model.QuizSession {
	now := r.now()
	sess := &model.QuizSession{
		ID:        uuid.NewString(),
		Owner:     owner,
		Subject:   q.Subject,
		Questions: q.Questions,
		AnswerKey: q.AnswerKey,
		CreatedAt: now,
		ExpiresAt: now.Add(TTL),
	}

	r.mu.Lock()
	prev, replaced := r.sessions[owner]
	r.sessions[owner] = sess
	r.mu.Unlock()

	if replaced {
		slog.Info("quiz session replaced", "owner", owner, "old_session", prev.ID, "session", sess.ID)
	}
	slog.Info("quiz session created", "owner", owner, "session", sess.ID, "subject", sess.Subject,
		"questions", len(sess.Questions))
	return copySession(sess)
}

// Lookup returns a copy of the owner's live session.
func (r *Registry) Lookup(owner string) (*model.QuizSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, err := r.liveLocked(owner)
	if err != nil {
		return nil, err
	}
	return copySession(sess), nil
}

// Active reports whether owner has a live session. An expired session is evicted.
func (r *Registry) Active(owner string) bool {
	_, err := r.Lookup(owner)
	return err == nil
}

// Consume removes the owner's session unconditionally.
func (r *Registry) Consume(owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, owner)
}

// Update runs fn on the owner's live session while holding the registry
// lock. Changes fn makes to the session are kept. If fn returns consume=true
// the session is removed before the lock is released, so no other caller
// can observe it afterwards.
func (r *Registry) Update(owner string, fn func(*model.QuizSession) (consume bool, err error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, err := r.liveLocked(owner)
	if err != nil {
		return err
	}
	consume, err := fn(sess)
	if consume {
		delete(r.sessions, owner)
		slog.Info("quiz session consumed", "owner", owner, "session", sess.ID)
	}
	return err
}

// Len returns the number of stored sessions, expired ones included.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Lock serializes work for a single owner. The returned func releases it.
func (r *Registry) Lock(owner string) (unlock func()) {
	r.locksMu.Lock()
	l, ok := r.locks[owner]
	if !ok {
		l = &ownerLock{}
		r.locks[owner] = l
	}
	l.refs++
	r.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, owner)
		}
		r.locksMu.Unlock()
	}
}

func (r *Registry) liveLocked(owner string) (*model.QuizSession, error) {
	sess, ok := r.sessions[owner]
	if !ok {
		return nil, ErrNoActiveSession
	}
	if !r.now().Before(sess.ExpiresAt) {
		delete(r.sessions, owner)
		slog.Info("quiz session expired", "owner", owner, "session", sess.ID, "expired_at", sess.ExpiresAt)
		return nil, ErrSessionExpired
	}
	return sess, nil
}

func copySession(s *model.QuizSession) *model.QuizSession {
	cp := *s
	cp.Questions = append([]model.Question(nil), s.Questions...)
	cp.AnswerKey = append([]string(nil), s.AnswerKey...)
	cp.AnswersGiven = append([]string(nil), s.AnswersGiven...)
	return &cp
}
