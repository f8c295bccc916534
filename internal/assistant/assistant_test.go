package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/olistqa/olistqa/internal/nl2sql"
	"github.com/olistqa/olistqa/internal/session"
)

var asOf = time.Date(2018, 9, 3, 9, 6, 57, 0, time.UTC)

func newTestAssistant(t *testing.T, client *scriptedClient, engine *scriptedEngine, repairTranslates bool) *Assistant {
	t.Helper()
	a, err := New(client, engine, Options{
		Schema:                     nl2sql.DefaultSchema(),
		Rewriter:                   nl2sql.Rewriter{AsOf: asOf, Vocabulary: nl2sql.DefaultVocabulary()},
		PreviewRows:                20,
		SummarySampleRows:          10,
		RepairTranslatesCategories: repairTranslates,
	}, nil)
	require.NoError(t, err)
	return a
}

func TestAskAnswersOnFirstAttempt(t *testing.T) {
	client := &scriptedClient{replies: []reply{
		{text: "```sql\nSELECT product_category_name, SUM(price) AS sales FROM olist WHERE product_category_name = 'electronics' AND order_purchase_timestamp >= CURRENT_DATE - INTERVAL 1 YEAR GROUP BY 1\n```"},
		{text: "  Electronics dominate sales.  "},
	}}
	engine := &scriptedEngine{steps: []engineStep{
		rows([]string{"product_category_name", "sales"}, []any{"eletronicos", 1500.25}),
	}}
	a := newTestAssistant(t, client, engine, true)

	outcome := a.Ask(context.Background(), nil, "Electronics sales last year")

	require.Equal(t, session.StatusAnswered, outcome.Status)
	require.Equal(t, 1, outcome.Attempts)
	require.Len(t, engine.calls, 1)
	require.Contains(t, engine.calls[0], "'eletronicos'")
	require.NotContains(t, engine.calls[0], "'electronics'")
	require.Contains(t, engine.calls[0], "DATE '2018-09-03'")
	require.NotContains(t, engine.calls[0], "CURRENT_DATE")
	require.True(t, strings.HasPrefix(outcome.GeneratedSQL, "SELECT"))
	require.Equal(t, engine.calls[0], outcome.ExecutedSQL)
	require.Empty(t, outcome.RepairedSQL)
	require.Equal(t, "Electronics dominate sales.", outcome.Summary)
	require.NotNil(t, outcome.Chart)
	require.Equal(t, "product_category_name", outcome.Chart.X)
	require.Equal(t, "sales", outcome.Chart.Y)
	require.Len(t, client.prompts, 2)
	require.Contains(t, client.prompts[1], "product_category_name,sales\neletronicos,1500.25")
}

func TestAskRepairsOnceThenSucceeds(t *testing.T) {
	client := &scriptedClient{replies: []reply{
		{text: "SELECT categoria FROM olist"},
		{text: "```\nSELECT product_category_name, COUNT(*) AS n FROM olist GROUP BY 1\n```"},
		{text: "Summary."},
	}}
	engine := &scriptedEngine{steps: []engineStep{
		failing("SELECT categoria FROM olist", `Binder Error: Referenced column "categoria" not found`),
		rows([]string{"product_category_name", "n"}, []any{"brinquedos", int64(4)}),
	}}
	a := newTestAssistant(t, client, engine, true)

	outcome := a.Ask(context.Background(), nil, "categories")

	require.Equal(t, session.StatusAnswered, outcome.Status)
	require.Equal(t, 2, outcome.Attempts)
	require.Equal(t, "SELECT product_category_name, COUNT(*) AS n FROM olist GROUP BY 1", outcome.RepairedSQL)
	require.Equal(t, outcome.RepairedSQL, outcome.ExecutedSQL)
	require.Len(t, outcome.Warnings, 1)
	require.True(t, strings.HasPrefix(outcome.Warnings[0], "SQL failed: Binder Error"))
	require.Contains(t, client.prompts[1], "SELECT categoria FROM olist")
	require.Contains(t, client.prompts[1], `Referenced column "categoria" not found`)
}

func TestAskStopsAfterSingleRepair(t *testing.T) {
	client := &scriptedClient{replies: []reply{
		{text: "SELECT missing_column FROM olist"},
		{text: "SELECT still_missing FROM olist"},
		{text: "SELECT never_used FROM olist"},
	}}
	engine := &scriptedEngine{steps: []engineStep{
		failing("SELECT missing_column FROM olist", "column missing_column does not exist"),
		failing("SELECT still_missing FROM olist", "column still_missing does not exist"),
		failing("SELECT never_used FROM olist", "should not run"),
	}}
	a := newTestAssistant(t, client, engine, true)

	outcome := a.Ask(context.Background(), nil, "broken")

	require.Equal(t, session.StatusFailed, outcome.Status)
	require.Equal(t, 2, outcome.Attempts)
	require.Len(t, engine.calls, 2)
	require.Len(t, client.prompts, 2)
	require.Equal(t, "Still invalid after correction: column still_missing does not exist", outcome.Message)
	require.Empty(t, outcome.Summary)
	require.Nil(t, outcome.Chart)
	require.Empty(t, outcome.Rows)
}

func TestAskRepairFailsWhenCorrectionUnavailable(t *testing.T) {
	client := &scriptedClient{replies: []reply{
		{text: "SELECT nope FROM olist"},
		{err: errors.New("upstream unavailable")},
	}}
	engine := &scriptedEngine{steps: []engineStep{failing("SELECT nope FROM olist", "bad column")}}
	a := newTestAssistant(t, client, engine, true)

	outcome := a.Ask(context.Background(), nil, "broken")

	require.Equal(t, session.StatusFailed, outcome.Status)
	require.Equal(t, 1, outcome.Attempts)
	require.Equal(t, msgRepairFailed, outcome.Message)
}

func TestAskRepairPassFollowsCategoryOption(t *testing.T) {
	for _, translate := range []bool{true, false} {
		t.Run(fmt.Sprintf("translate=%v", translate), func(t *testing.T) {
			client := &scriptedClient{replies: []reply{
				{text: "SELECT bad FROM olist"},
				{text: "SELECT COUNT(*) AS n FROM olist WHERE product_category_name = 'toys' AND order_purchase_timestamp < CURRENT_DATE"},
			}}
			engine := &scriptedEngine{steps: []engineStep{
				failing("SELECT bad FROM olist", "bad"),
				rows([]string{"n"}),
			}}
			a := newTestAssistant(t, client, engine, translate)

			outcome := a.Ask(context.Background(), nil, "toys")

			require.Equal(t, session.StatusNoData, outcome.Status)
			require.Contains(t, engine.calls[1], "DATE '2018-09-03'")
			if translate {
				require.Contains(t, engine.calls[1], "'brinquedos'")
			} else {
				require.Contains(t, engine.calls[1], "'toys'")
			}
		})
	}
}

func TestAskGenerationFailure(t *testing.T) {
	tests := map[string]reply{
		"transport error": {err: errors.New("connection refused")},
		"empty fence":     {text: "```sql\n```"},
		"blank":           {text: "   "},
	}
	for name, first := range tests {
		t.Run(name, func(t *testing.T) {
			client := &scriptedClient{replies: []reply{first}}
			engine := &scriptedEngine{}
			a := newTestAssistant(t, client, engine, true)

			outcome := a.Ask(context.Background(), nil, "anything")

			require.Equal(t, session.StatusGenerationFailed, outcome.Status)
			require.Equal(t, msgGenerationFailed, outcome.Message)
			require.Zero(t, outcome.Attempts)
			require.Empty(t, engine.calls)
		})
	}
}

func TestAskEmptyResultSkipsChartAndSummary(t *testing.T) {
	client := &scriptedClient{replies: []reply{
		{text: "SELECT order_id, price FROM olist WHERE price < 0"},
		{text: "must not be requested"},
	}}
	engine := &scriptedEngine{steps: []engineStep{rows([]string{"order_id", "price"})}}
	a := newTestAssistant(t, client, engine, true)

	outcome := a.Ask(context.Background(), nil, "negative prices")

	require.Equal(t, session.StatusNoData, outcome.Status)
	require.Equal(t, msgNoData, outcome.Message)
	require.Nil(t, outcome.Chart)
	require.Empty(t, outcome.Summary)
	require.Len(t, client.prompts, 1)
	require.Equal(t, []string{"order_id", "price"}, outcome.Columns)
}

func TestAskPreviewLimitsRows(t *testing.T) {
	values := make([][]any, 0, 25)
	for i := 0; i < 25; i++ {
		values = append(values, []any{fmt.Sprintf("order-%02d", i), float64(i)})
	}
	client := &scriptedClient{replies: []reply{{text: "SELECT order_id, price FROM olist"}, {text: "ok"}}}
	engine := &scriptedEngine{steps: []engineStep{rows([]string{"order_id", "price"}, values...)}}
	a := newTestAssistant(t, client, engine, true)

	outcome := a.Ask(context.Background(), nil, "all orders")

	require.Equal(t, session.StatusAnswered, outcome.Status)
	require.Len(t, outcome.Rows, 20)
	require.Equal(t, 25, outcome.TotalRows)
	require.Len(t, outcome.Chart.Values, 25)
	sample := client.prompts[1][strings.Index(client.prompts[1], "order_id,price"):]
	require.Equal(t, 11, strings.Count(strings.TrimSpace(sample), "\n")+1)
}

func TestSummarizeFallsBackOnFailure(t *testing.T) {
	client := &scriptedClient{replies: []reply{{err: errors.New("boom")}}}
	a := newTestAssistant(t, client, &scriptedEngine{}, true)

	result := rows([]string{"a"}, []any{int64(1)}).result
	require.Equal(t, FallbackSummary, a.Summarize(context.Background(), "q", result))
	require.Equal(t, FallbackSummary, a.Summarize(context.Background(), "q", result))
}

func TestAskReplaysHistoryIntoPrompt(t *testing.T) {
	client := &scriptedClient{replies: []reply{{err: errors.New("stop here")}}}
	a := newTestAssistant(t, client, &scriptedEngine{}, true)

	a.Ask(context.Background(), []nl2sql.Exchange{
		{Question: "Top categories last year", Summary: "Beds lead."},
		{Question: "Only in SP"},
	}, "And in RJ?")

	require.Len(t, client.prompts, 1)
	require.Contains(t, client.prompts[0], "User: Top categories last year\nAssistant: Beds lead.\nUser: Only in SP")
	require.Contains(t, client.prompts[0], "User: And in RJ?")
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(nil, &scriptedEngine{}, Options{}, nil)
	require.Error(t, err)
	_, err = New(&scriptedClient{}, nil, Options{}, nil)
	require.Error(t, err)
}

func TestAskRecordsTurnDuration(t *testing.T) {
	client := &scriptedClient{delay: 20 * time.Millisecond, replies: []reply{
		{text: "SELECT order_status, COUNT(*) AS orders FROM olist GROUP BY 1"},
		{text: "Most orders were delivered."},
	}}
	engine := &scriptedEngine{steps: []engineStep{
		rows([]string{"order_status", "orders"}, []any{"delivered", int64(96)}),
	}}
	a := newTestAssistant(t, client, engine, true)

	outcome := a.Ask(context.Background(), nil, "orders by status")

	require.Equal(t, session.StatusAnswered, outcome.Status)
	require.GreaterOrEqual(t, outcome.Duration, 40*time.Millisecond)
}

func TestAskRecordsDurationOnFailure(t *testing.T) {
	client := &scriptedClient{delay: 15 * time.Millisecond}
	a := newTestAssistant(t, client, &scriptedEngine{}, true)

	outcome := a.Ask(context.Background(), nil, "anything")

	require.Equal(t, session.StatusGenerationFailed, outcome.Status)
	require.GreaterOrEqual(t, outcome.Duration, 15*time.Millisecond)
}
