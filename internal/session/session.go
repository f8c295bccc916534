package session

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("session: not found")
	ErrSummaryAlreadySet = errors.New("session: summary already attached")
)

type Status string

const (
	StatusPending          Status = "pending"
	StatusAnswered         Status = "answered"
	StatusNoData           Status = "no_data"
	StatusGenerationFailed Status = "generation_failed"
	StatusFailed           Status = "failed"
)

// Turn is one question asked within a session. Summary stays nil until a
// summary is attached, which happens at most once.
type Turn struct {
	ID        string
	Seq       int
	Question  string
	Summary   *string
	Status    Status
	SQL       string
	CreatedAt time.Time
}

type Session struct {
	ID        string
	Owner     string
	CreatedAt time.Time
	Turns     []Turn
}

type CreateInput struct {
	ID    string
	Owner string
}

type AppendTurnInput struct {
	SessionID string
	TurnID    string
	Question  string
}

type OutcomeInput struct {
	SessionID string
	TurnID    string
	Status    Status
	SQL       string
}

// Store keeps conversation history. Turns are append-only and returned in
// submission order.
type Store interface {
	HealthCheck(ctx context.Context) error
	Create(ctx context.Context, in CreateInput) (Session, error)
	Get(ctx context.Context, sessionID string) (Session, error)
	AppendTurn(ctx context.Context, in AppendTurnInput) (Turn, error)
	AttachSummary(ctx context.Context, sessionID, turnID, summary string) error
	SetOutcome(ctx context.Context, in OutcomeInput) error
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAnswered, StatusNoData, StatusGenerationFailed, StatusFailed:
		return true
	default:
		return false
	}
}

// Prior returns the turns submitted before turnID.
func (s Session) Prior(turnID string) []Turn {
	for i, turn := range s.Turns {
		if turn.ID == turnID {
			return s.Turns[:i]
		}
	}
	return s.Turns
}
