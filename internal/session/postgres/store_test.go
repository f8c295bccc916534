package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/olistqa/olistqa/internal/session"
)

func TestCreateSession(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewStore(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`
INSERT INTO conversation_session (session_id, owner)
VALUES ($1, $2)
RETURNING created_at`)).
		WithArgs("s-1", "alice").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

	created, err := store.Create(context.Background(), session.CreateInput{ID: "s-1", Owner: "alice"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ID != "s-1" || created.Owner != "alice" {
		t.Fatalf("session = %+v", created)
	}
	if !created.CreatedAt.Equal(now) {
		t.Fatalf("CreatedAt = %v, want %v", created.CreatedAt, now)
	}
	assertSQLMock(t, mock)
}

func TestGetSessionLoadsTurnsInOrder(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewStore(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT session_id, owner, created_at
FROM conversation_session
WHERE session_id = $1`)).
		WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "owner", "created_at"}).AddRow("s-1", "alice", now))
	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT turn_id, seq, question, summary, status, sql_text, created_at
FROM conversation_turn
WHERE session_id = $1
ORDER BY seq ASC`)).
		WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows([]string{"turn_id", "seq", "question", "summary", "status", "sql_text", "created_at"}).
			AddRow("t-1", int64(1), "top categories", "Electronics lead.", "answered", "SELECT 1", now).
			AddRow("t-2", int64(2), "and by state?", nil, "pending", "", now))

	current, err := store.Get(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(current.Turns) != 2 {
		t.Fatalf("turns = %d", len(current.Turns))
	}
	if current.Turns[0].Summary == nil || *current.Turns[0].Summary != "Electronics lead." {
		t.Fatalf("first summary = %v", current.Turns[0].Summary)
	}
	if current.Turns[0].Status != session.StatusAnswered {
		t.Fatalf("first status = %q", current.Turns[0].Status)
	}
	if current.Turns[1].Summary != nil || current.Turns[1].Seq != 2 {
		t.Fatalf("second turn = %+v", current.Turns[1])
	}
	assertSQLMock(t, mock)
}

func TestGetSessionReturnsNotFound(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewStore(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM conversation_session`)).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
	assertSQLMock(t, mock)
}

func TestAppendTurnAssignsNextSeq(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewStore(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT session_id
FROM conversation_session
WHERE session_id = $1
FOR UPDATE`)).
		WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows([]string{"session_id"}).AddRow("s-1"))
	mock.ExpectQuery(regexp.QuoteMeta(`
INSERT INTO conversation_turn (session_id, seq, turn_id, question)
SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3
FROM conversation_turn
WHERE session_id = $1
RETURNING seq, created_at`)).
		WithArgs("s-1", "t-3", "what about boleto?").
		WillReturnRows(sqlmock.NewRows([]string{"seq", "created_at"}).AddRow(int64(3), now))
	mock.ExpectCommit()

	turn, err := store.AppendTurn(context.Background(), session.AppendTurnInput{SessionID: "s-1", TurnID: "t-3", Question: "what about boleto?"})
	if err != nil {
		t.Fatalf("AppendTurn() error = %v", err)
	}
	if turn.Seq != 3 || turn.Status != session.StatusPending {
		t.Fatalf("turn = %+v", turn)
	}
	assertSQLMock(t, mock)
}

func TestAppendTurnUnknownSession(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := store.AppendTurn(context.Background(), session.AppendTurnInput{SessionID: "missing", TurnID: "t-1", Question: "q"})
	if !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("AppendTurn() error = %v, want ErrNotFound", err)
	}
	assertSQLMock(t, mock)
}

func TestAttachSummaryOnce(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewStore(db)

	attach := regexp.QuoteMeta(`
UPDATE conversation_turn
SET summary = $3
WHERE session_id = $1 AND turn_id = $2 AND summary IS NULL`)
	mock.ExpectExec(attach).
		WithArgs("s-1", "t-1", "insight").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(attach).
		WithArgs("s-1", "t-1", "again").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT summary IS NOT NULL`)).
		WithArgs("s-1", "t-1").
		WillReturnRows(sqlmock.NewRows([]string{"has_summary"}).AddRow(true))

	if err := store.AttachSummary(context.Background(), "s-1", "t-1", "insight"); err != nil {
		t.Fatalf("AttachSummary() error = %v", err)
	}
	if err := store.AttachSummary(context.Background(), "s-1", "t-1", "again"); !errors.Is(err, session.ErrSummaryAlreadySet) {
		t.Fatalf("second AttachSummary() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestSetOutcomeMissingTurn(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewStore(db)

	mock.ExpectExec(regexp.QuoteMeta(`
UPDATE conversation_turn
SET status = $3, sql_text = $4
WHERE session_id = $1 AND turn_id = $2`)).
		WithArgs("s-1", "t-9", "failed", "SELECT broken").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.SetOutcome(context.Background(), session.OutcomeInput{SessionID: "s-1", TurnID: "t-9", Status: session.StatusFailed, SQL: "SELECT broken"})
	if !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("SetOutcome() error = %v, want ErrNotFound", err)
	}
	assertSQLMock(t, mock)
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
