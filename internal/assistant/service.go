package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/olistqa/olistqa/internal/nl2sql"
	"github.com/olistqa/olistqa/internal/observability"
	"github.com/olistqa/olistqa/internal/session"
)

var ErrInvalidQuestion = errors.New("assistant: invalid question")

// Asker answers a single question given the replayed conversation.
type Asker interface {
	Ask(ctx context.Context, history []nl2sql.Exchange, question string) Outcome
}

type TurnResult struct {
	SessionID string
	Turn      session.Turn
	Outcome   Outcome
}

// Service owns conversation state around the Asker. Each session keeps its
// own history; a session is only visible to the owner that created it.
type Service struct {
	store             session.Store
	asker             Asker
	logger            *slog.Logger
	maxQuestionLength int
	newID             func() string
}

func NewService(store session.Store, asker Asker, logger *slog.Logger, maxQuestionLength int) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if asker == nil {
		return nil, fmt.Errorf("asker is required")
	}
	return &Service{
		store:             store,
		asker:             asker,
		logger:            logger,
		maxQuestionLength: maxQuestionLength,
		newID:             func() string { return uuid.NewString() },
	}, nil
}

func (s *Service) CreateSession(ctx context.Context, owner string) (session.Session, error) {
	created, err := s.store.Create(ctx, session.CreateInput{ID: s.newID(), Owner: owner})
	if err != nil {
		return session.Session{}, err
	}
	observability.WithTrace(ctx, s.logger).Info("session created", slog.String("session_id", created.ID))
	return created, nil
}

func (s *Service) History(ctx context.Context, sessionID, owner string) (session.Session, error) {
	current, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return session.Session{}, err
	}
	if current.Owner != owner {
		return session.Session{}, session.ErrNotFound
	}
	return current, nil
}

// HandleTurn records the question, answers it with the session's earlier
// turns as context and stores the outcome. Errors are returned only for
// invalid input and session store failures.
func (s *Service) HandleTurn(ctx context.Context, sessionID, owner, question string) (TurnResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return TurnResult{}, fmt.Errorf("%w: question is required", ErrInvalidQuestion)
	}
	if s.maxQuestionLength > 0 && utf8.RuneCountInString(question) > s.maxQuestionLength {
		return TurnResult{}, fmt.Errorf("%w: question exceeds %d characters", ErrInvalidQuestion, s.maxQuestionLength)
	}

	current, err := s.History(ctx, sessionID, owner)
	if err != nil {
		return TurnResult{}, err
	}
	history := Exchanges(current.Turns)

	turn, err := s.store.AppendTurn(ctx, session.AppendTurnInput{
		SessionID: sessionID,
		TurnID:    s.newID(),
		Question:  question,
	})
	if err != nil {
		return TurnResult{}, fmt.Errorf("append turn: %w", err)
	}

	outcome := s.asker.Ask(ctx, history, question)

	if err := s.store.SetOutcome(ctx, session.OutcomeInput{
		SessionID: sessionID,
		TurnID:    turn.ID,
		Status:    outcome.Status,
		SQL:       outcome.ExecutedSQL,
	}); err != nil {
		return TurnResult{}, fmt.Errorf("record turn outcome: %w", err)
	}
	turn.Status = outcome.Status
	turn.SQL = outcome.ExecutedSQL

	if outcome.Status == session.StatusAnswered {
		if err := s.store.AttachSummary(ctx, sessionID, turn.ID, outcome.Summary); err != nil {
			return TurnResult{}, fmt.Errorf("attach summary: %w", err)
		}
		summary := outcome.Summary
		turn.Summary = &summary
	}

	observability.ObserveTurn(string(outcome.Status))
	observability.WithTrace(ctx, s.logger).Info("turn_completed",
		slog.String("session_id", sessionID),
		slog.String("turn_id", turn.ID),
		slog.String("status", string(outcome.Status)),
		slog.Int("attempts", outcome.Attempts),
		slog.Int("rows", outcome.TotalRows),
		slog.Duration("duration", outcome.Duration),
	)
	return TurnResult{SessionID: sessionID, Turn: turn, Outcome: outcome}, nil
}

// Exchanges converts stored turns into prompt history.
func Exchanges(turns []session.Turn) []nl2sql.Exchange {
	out := make([]nl2sql.Exchange, 0, len(turns))
	for _, turn := range turns {
		exchange := nl2sql.Exchange{Question: turn.Question}
		if turn.Summary != nil {
			exchange.Summary = *turn.Summary
		}
		out = append(out, exchange)
	}
	return out
}
