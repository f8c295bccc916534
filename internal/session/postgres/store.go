package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/olistqa/olistqa/internal/session"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping session db: %w", err)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, in session.CreateInput) (session.Session, error) {
	if strings.TrimSpace(in.ID) == "" {
		return session.Session{}, fmt.Errorf("session id is required")
	}

	query := `
INSERT INTO conversation_session (session_id, owner)
VALUES ($1, $2)
RETURNING created_at`
	var createdAt time.Time
	if err := s.db.QueryRowContext(ctx, query, in.ID, in.Owner).Scan(&createdAt); err != nil {
		return session.Session{}, fmt.Errorf("create session: %w", err)
	}
	return session.Session{ID: in.ID, Owner: in.Owner, CreatedAt: createdAt}, nil
}

func (s *Store) Get(ctx context.Context, sessionID string) (session.Session, error) {
	var current session.Session
	if err := s.db.QueryRowContext(ctx, `
SELECT session_id, owner, created_at
FROM conversation_session
WHERE session_id = $1`, sessionID).Scan(&current.ID, &current.Owner, &current.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return session.Session{}, session.ErrNotFound
		}
		return session.Session{}, fmt.Errorf("get session: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT turn_id, seq, question, summary, status, sql_text, created_at
FROM conversation_turn
WHERE session_id = $1
ORDER BY seq ASC`, sessionID)
	if err != nil {
		return session.Session{}, fmt.Errorf("list turns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	current.Turns = make([]session.Turn, 0)
	for rows.Next() {
		var (
			turn    session.Turn
			summary sql.NullString
			status  string
		)
		if err := rows.Scan(&turn.ID, &turn.Seq, &turn.Question, &summary, &status, &turn.SQL, &turn.CreatedAt); err != nil {
			return session.Session{}, fmt.Errorf("scan turn row: %w", err)
		}
		if summary.Valid {
			value := summary.String
			turn.Summary = &value
		}
		turn.Status = session.Status(status)
		current.Turns = append(current.Turns, turn)
	}
	if err := rows.Err(); err != nil {
		return session.Session{}, fmt.Errorf("iterate turn rows: %w", err)
	}
	return current, nil
}

func (s *Store) AppendTurn(ctx context.Context, in session.AppendTurnInput) (session.Turn, error) {
	if strings.TrimSpace(in.TurnID) == "" {
		return session.Turn{}, fmt.Errorf("turn id is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return session.Turn{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var locked string
	if err := tx.QueryRowContext(ctx, `
SELECT session_id
FROM conversation_session
WHERE session_id = $1
FOR UPDATE`, in.SessionID).Scan(&locked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return session.Turn{}, session.ErrNotFound
		}
		return session.Turn{}, fmt.Errorf("lock session: %w", err)
	}

	turn := session.Turn{ID: in.TurnID, Question: in.Question, Status: session.StatusPending}
	if err := tx.QueryRowContext(ctx, `
INSERT INTO conversation_turn (session_id, seq, turn_id, question)
SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3
FROM conversation_turn
WHERE session_id = $1
RETURNING seq, created_at`, in.SessionID, in.TurnID, in.Question).Scan(&turn.Seq, &turn.CreatedAt); err != nil {
		return session.Turn{}, fmt.Errorf("append turn: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return session.Turn{}, fmt.Errorf("commit tx: %w", err)
	}
	return turn, nil
}

func (s *Store) AttachSummary(ctx context.Context, sessionID, turnID, summary string) error {
	result, err := s.db.ExecContext(ctx, `
UPDATE conversation_turn
SET summary = $3
WHERE session_id = $1 AND turn_id = $2 AND summary IS NULL`, sessionID, turnID, summary)
	if err != nil {
		return fmt.Errorf("attach summary: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("attach summary rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var hasSummary bool
	if err := s.db.QueryRowContext(ctx, `
SELECT summary IS NOT NULL
FROM conversation_turn
WHERE session_id = $1 AND turn_id = $2`, sessionID, turnID).Scan(&hasSummary); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return session.ErrNotFound
		}
		return fmt.Errorf("check summary: %w", err)
	}
	if hasSummary {
		return session.ErrSummaryAlreadySet
	}
	return fmt.Errorf("attach summary: no rows updated")
}

func (s *Store) SetOutcome(ctx context.Context, in session.OutcomeInput) error {
	if !in.Status.Valid() {
		return fmt.Errorf("invalid turn status %q", in.Status)
	}
	result, err := s.db.ExecContext(ctx, `
UPDATE conversation_turn
SET status = $3, sql_text = $4
WHERE session_id = $1 AND turn_id = $2`, in.SessionID, in.TurnID, string(in.Status), in.SQL)
	if err != nil {
		return fmt.Errorf("set turn outcome: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set turn outcome rows affected: %w", err)
	}
	if affected == 0 {
		return session.ErrNotFound
	}
	return nil
}
