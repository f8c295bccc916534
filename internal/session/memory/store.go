package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/olistqa/olistqa/internal/session"
)

// Store keeps conversations in process memory. Sessions idle for longer than
// the idle TTL read as not found and are dropped; at MaxSessions the least
// recently active session is evicted to make room for a new one. A zero bound
// disables it.
type Store struct {
	mu          sync.Mutex
	sessions    map[string]*entry
	now         func() time.Time
	maxSessions int
	idleTTL     time.Duration
}

type entry struct {
	session    *session.Session
	lastActive time.Time
}

type Option func(*Store)

func WithMaxSessions(n int) Option {
	return func(s *Store) { s.maxSessions = n }
}

func WithIdleTTL(ttl time.Duration) Option {
	return func(s *Store) { s.idleTTL = ttl }
}

func withClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		sessions: map[string]*entry{},
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Len reports the sessions currently held, expired ones included until the
// next sweep.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Store) HealthCheck(context.Context) error {
	return nil
}

func (s *Store) Create(_ context.Context, in session.CreateInput) (session.Session, error) {
	if strings.TrimSpace(in.ID) == "" {
		return session.Session{}, fmt.Errorf("session id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.sweep(now)
	if _, exists := s.sessions[in.ID]; exists {
		return session.Session{}, fmt.Errorf("session %q already exists", in.ID)
	}
	if s.maxSessions > 0 && len(s.sessions) >= s.maxSessions {
		s.evictOldest()
	}
	created := &session.Session{ID: in.ID, Owner: in.Owner, CreatedAt: now}
	s.sessions[in.ID] = &entry{session: created, lastActive: now}
	return cloneSession(created), nil
}

func (s *Store) Get(_ context.Context, sessionID string) (session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.live(sessionID)
	if !ok {
		return session.Session{}, session.ErrNotFound
	}
	return cloneSession(current), nil
}

func (s *Store) AppendTurn(_ context.Context, in session.AppendTurnInput) (session.Turn, error) {
	if strings.TrimSpace(in.TurnID) == "" {
		return session.Turn{}, fmt.Errorf("turn id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.live(in.SessionID)
	if !ok {
		return session.Turn{}, session.ErrNotFound
	}
	turn := session.Turn{
		ID:        in.TurnID,
		Seq:       len(current.Turns) + 1,
		Question:  in.Question,
		Status:    session.StatusPending,
		CreatedAt: s.now(),
	}
	current.Turns = append(current.Turns, turn)
	return turn, nil
}

func (s *Store) AttachSummary(_ context.Context, sessionID, turnID, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	turn, err := s.findTurn(sessionID, turnID)
	if err != nil {
		return err
	}
	if turn.Summary != nil {
		return session.ErrSummaryAlreadySet
	}
	value := summary
	turn.Summary = &value
	return nil
}

func (s *Store) SetOutcome(_ context.Context, in session.OutcomeInput) error {
	if !in.Status.Valid() {
		return fmt.Errorf("invalid turn status %q", in.Status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	turn, err := s.findTurn(in.SessionID, in.TurnID)
	if err != nil {
		return err
	}
	turn.Status = in.Status
	turn.SQL = in.SQL
	return nil
}

func (s *Store) findTurn(sessionID, turnID string) (*session.Turn, error) {
	current, ok := s.live(sessionID)
	if !ok {
		return nil, session.ErrNotFound
	}
	for i := range current.Turns {
		if current.Turns[i].ID == turnID {
			return &current.Turns[i], nil
		}
	}
	return nil, session.ErrNotFound
}

// live returns the session if it has not idled out, marking it active.
func (s *Store) live(sessionID string) (*session.Session, bool) {
	item, ok := s.sessions[sessionID]
	if !ok {
		return nil, false
	}
	now := s.now()
	if s.expired(item, now) {
		delete(s.sessions, sessionID)
		return nil, false
	}
	item.lastActive = now
	return item.session, true
}

func (s *Store) expired(item *entry, now time.Time) bool {
	return s.idleTTL > 0 && now.Sub(item.lastActive) > s.idleTTL
}

func (s *Store) sweep(now time.Time) {
	if s.idleTTL <= 0 {
		return
	}
	for id, item := range s.sessions {
		if s.expired(item, now) {
			delete(s.sessions, id)
		}
	}
}

func (s *Store) evictOldest() {
	var oldestID string
	var oldest time.Time
	for id, item := range s.sessions {
		if oldestID == "" || item.lastActive.Before(oldest) {
			oldestID, oldest = id, item.lastActive
		}
	}
	if oldestID != "" {
		delete(s.sessions, oldestID)
	}
}

func cloneSession(in *session.Session) session.Session {
	out := *in
	out.Turns = make([]session.Turn, len(in.Turns))
	for i, turn := range in.Turns {
		if turn.Summary != nil {
			summary := *turn.Summary
			turn.Summary = &summary
		}
		out.Turns[i] = turn
	}
	return out
}
