package intake

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type Stage int

// Stages in forward order.
const (
	AwaitingCategory Stage = iota
	AwaitingDescription
	AwaitingMediaOrLocation
	AwaitingPhoto
	AwaitingLocation
)

func (s Stage) String() string {
	switch s {
	case AwaitingCategory:
		return "AWAITING_CATEGORY"
	case AwaitingDescription:
		return "AWAITING_DESCRIPTION"
	case AwaitingMediaOrLocation:
		return "AWAITING_MEDIA_OR_LOCATION"
	case AwaitingPhoto:
		return "AWAITING_PHOTO"
	case AwaitingLocation:
		return "AWAITING_LOCATION"
	default:
		return "UNKNOWN"
	}
}

// Session is the in-progress intake state of one conversation.
type Session struct {
	Identity    string
	Stage       Stage
	Category    string
	Description string
	PhotoRef    string
	StartedAt   time.Time
	UpdatedAt   time.Time
}

// SessionStore maps conversation identities to sessions. It owns the sessions;
// callers get copies and write them back with Update.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	locks    map[string]*identityLock
	ttl      time.Duration
	now      func() time.Time
}

type identityLock struct {
	mu   sync.Mutex
	refs int
}

// NewSessionStore creates a store. A ttl of 0 disables expiry.
func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		locks:    make(map[string]*identityLock),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Acquire blocks until the caller holds the identity's lock. Release must be called exactly once.
func (s *SessionStore) Acquire(identity string) (release func()) {
	s.mu.Lock()
	l, ok := s.locks[identity]
	if !ok {
		l = &identityLock{}
		s.locks[identity] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()
			s.mu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(s.locks, identity)
			}
			s.mu.Unlock()
		})
	}
}

// GetOrCreate returns the stored session, or a fresh one at AwaitingCategory.
// A session that has outlived the TTL is replaced by a fresh one.
func (s *SessionStore) GetOrCreate(identity string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if sess, ok := s.sessions[identity]; ok && !s.expired(sess, now) {
		return *sess
	}

	sess := &Session{
		Identity:  identity,
		Stage:     AwaitingCategory,
		StartedAt: now,
		UpdatedAt: now,
	}
	s.sessions[identity] = sess
	return *sess
}

// Update replaces the stored session for sess.Identity.
func (s *SessionStore) Update(sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess.UpdatedAt = s.now()
	s.sessions[sess.Identity] = &sess
}

// Remove drops the identity's session, if any.
func (s *SessionStore) Remove(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, identity)
}

// Peek returns the stored session without creating one.
func (s *SessionStore) Peek(identity string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[identity]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep removes sessions idle longer than the TTL and returns how many went.
// Identities currently held through Acquire are skipped.
func (s *SessionStore) Sweep() int {
	if s.ttl <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for identity, sess := range s.sessions {
		if _, busy := s.locks[identity]; busy {
			continue
		}
		if s.expired(sess, now) {
			delete(s.sessions, identity)
			removed++
		}
	}
	return removed
}

// RunJanitor sweeps every interval until ctx is done. It returns at once when expiry is disabled.
func (s *SessionStore) RunJanitor(ctx context.Context, interval time.Duration) {
	if s.ttl <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				log.Info().Int("removed", n).Int("remaining", s.Len()).Msg("🧹 Expired intake sessions swept")
			}
		}
	}
}

func (s *SessionStore) expired(sess *Session, now time.Time) bool {
	return s.ttl > 0 && now.Sub(sess.UpdatedAt) > s.ttl
}
