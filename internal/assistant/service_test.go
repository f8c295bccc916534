package assistant

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/olistqa/olistqa/internal/nl2sql"
	"github.com/olistqa/olistqa/internal/session"
	"github.com/olistqa/olistqa/internal/session/memory"
)

type recordingAsker struct {
	histories [][]nl2sql.Exchange
	outcomes  []Outcome
}

func (a *recordingAsker) Ask(_ context.Context, history []nl2sql.Exchange, _ string) Outcome {
	a.histories = append(a.histories, history)
	if len(a.outcomes) == 0 {
		return Outcome{Status: session.StatusGenerationFailed, Message: msgGenerationFailed}
	}
	next := a.outcomes[0]
	a.outcomes = a.outcomes[1:]
	return next
}

func newTestService(t *testing.T, asker Asker) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	svc, err := NewService(store, asker, nil, 50)
	require.NoError(t, err)
	counter := 0
	svc.newID = func() string {
		counter++
		return fmt.Sprintf("id-%d", counter)
	}
	return svc, store
}

func TestHandleTurnRecordsQuestionAndSummary(t *testing.T) {
	asker := &recordingAsker{outcomes: []Outcome{
		{Status: session.StatusAnswered, ExecutedSQL: "SELECT 1", Summary: "Electronics lead sales."},
		{Status: session.StatusFailed, ExecutedSQL: "SELECT broken", Message: "Still invalid after correction: x"},
	}}
	svc, store := newTestService(t, asker)
	ctx := context.Background()

	created, err := svc.CreateSession(ctx, "alice")
	require.NoError(t, err)

	first, err := svc.HandleTurn(ctx, created.ID, "alice", "  Top 5 product categories by sales last year ")
	require.NoError(t, err)
	require.Equal(t, session.StatusAnswered, first.Turn.Status)
	require.NotNil(t, first.Turn.Summary)
	require.Equal(t, "Electronics lead sales.", *first.Turn.Summary)

	second, err := svc.HandleTurn(ctx, created.ID, "alice", "What about furniture?")
	require.NoError(t, err)
	require.Equal(t, session.StatusFailed, second.Outcome.Status)
	require.Nil(t, second.Turn.Summary)

	require.Len(t, asker.histories, 2)
	require.Empty(t, asker.histories[0])
	require.Equal(t, []nl2sql.Exchange{{Question: "Top 5 product categories by sales last year", Summary: "Electronics lead sales."}}, asker.histories[1])

	stored, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, stored.Turns, 2)
	require.Equal(t, "Top 5 product categories by sales last year", stored.Turns[0].Question)
	require.Equal(t, "SELECT 1", stored.Turns[0].SQL)
	require.Equal(t, session.StatusFailed, stored.Turns[1].Status)
	require.Nil(t, stored.Turns[1].Summary)
}

func TestHandleTurnRejectsInvalidQuestions(t *testing.T) {
	svc, _ := newTestService(t, &recordingAsker{})
	ctx := context.Background()
	created, err := svc.CreateSession(ctx, "")
	require.NoError(t, err)

	_, err = svc.HandleTurn(ctx, created.ID, "", "   ")
	require.ErrorIs(t, err, ErrInvalidQuestion)

	long := make([]rune, 51)
	for i := range long {
		long[i] = 'x'
	}
	_, err = svc.HandleTurn(ctx, created.ID, "", string(long))
	require.ErrorIs(t, err, ErrInvalidQuestion)
}

func TestHandleTurnHidesOtherOwnersSessions(t *testing.T) {
	asker := &recordingAsker{}
	svc, _ := newTestService(t, asker)
	ctx := context.Background()
	created, err := svc.CreateSession(ctx, "alice")
	require.NoError(t, err)

	_, err = svc.HandleTurn(ctx, created.ID, "bob", "hello")
	require.True(t, errors.Is(err, session.ErrNotFound))
	_, err = svc.History(ctx, created.ID, "bob")
	require.ErrorIs(t, err, session.ErrNotFound)
	_, err = svc.HandleTurn(ctx, "missing", "alice", "hello")
	require.ErrorIs(t, err, session.ErrNotFound)
	require.Empty(t, asker.histories)
}

func TestHandleTurnKeepsGenerationFailuresInHistory(t *testing.T) {
	asker := &recordingAsker{}
	svc, _ := newTestService(t, asker)
	ctx := context.Background()
	created, err := svc.CreateSession(ctx, "")
	require.NoError(t, err)

	result, err := svc.HandleTurn(ctx, created.ID, "", "gibberish")
	require.NoError(t, err)
	require.Equal(t, session.StatusGenerationFailed, result.Outcome.Status)

	history, err := svc.History(ctx, created.ID, "")
	require.NoError(t, err)
	require.Len(t, history.Turns, 1)
	require.Equal(t, session.StatusGenerationFailed, history.Turns[0].Status)
}
