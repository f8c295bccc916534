package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/olistqa/olistqa/internal/chart"
	"github.com/olistqa/olistqa/internal/completion"
	"github.com/olistqa/olistqa/internal/nl2sql"
	"github.com/olistqa/olistqa/internal/observability"
	"github.com/olistqa/olistqa/internal/query"
	"github.com/olistqa/olistqa/internal/session"
)

const (
	FallbackSummary = "Could not generate summary."

	msgGenerationFailed = "Could not generate SQL for that query."
	msgRepairFailed     = "Could not generate a corrected query."
	msgNoData           = "No data returned for this query."
)

// Stage names the execution attempt within a turn.
type Stage string

const (
	StageInitial Stage = "initial_attempt"
	StageRepair  Stage = "repair_attempt"
)

type Options struct {
	Schema            nl2sql.Schema
	Rewriter          nl2sql.Rewriter
	PreviewRows       int
	SummarySampleRows int
	// RepairTranslatesCategories applies the category translation to repaired
	// SQL as well. When false the repair pass only anchors CURRENT_DATE.
	RepairTranslatesCategories bool
}

// Outcome is everything a turn produced. Rows holds at most PreviewRows rows;
// TotalRows counts the full result.
type Outcome struct {
	Status       session.Status  `json:"status"`
	GeneratedSQL string          `json:"generated_sql,omitempty"`
	RepairedSQL  string          `json:"repaired_sql,omitempty"`
	ExecutedSQL  string          `json:"executed_sql,omitempty"`
	Attempts     int             `json:"attempts"`
	Columns      []string        `json:"columns,omitempty"`
	Rows         [][]any         `json:"rows,omitempty"`
	TotalRows    int             `json:"total_rows"`
	Chart        *chart.BarChart `json:"chart,omitempty"`
	Summary      string          `json:"summary,omitempty"`
	Message      string          `json:"message,omitempty"`
	Warnings     []string        `json:"warnings,omitempty"`
	Duration     time.Duration   `json:"-"`
}

type Assistant struct {
	client completion.Client
	engine query.Engine
	opts   Options
	logger *slog.Logger
}

func New(client completion.Client, engine query.Engine, opts Options, logger *slog.Logger) (*Assistant, error) {
	if client == nil {
		return nil, fmt.Errorf("completion client is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("query engine is required")
	}
	if opts.PreviewRows <= 0 {
		opts.PreviewRows = 20
	}
	if opts.SummarySampleRows <= 0 {
		opts.SummarySampleRows = 10
	}
	if len(opts.Schema.Columns) == 0 {
		opts.Schema = nl2sql.DefaultSchema()
	}
	if opts.Rewriter.Vocabulary == nil {
		opts.Rewriter.Vocabulary = nl2sql.DefaultVocabulary()
	}
	return &Assistant{client: client, engine: engine, opts: opts, logger: logger}, nil
}

func (a *Assistant) AsOfDate() string {
	return a.opts.Rewriter.AsOfDate()
}

// Ask runs one turn: generate, execute, repair at most once, then chart and
// summarize a non-empty result. Model and SQL failures are reported in the
// returned Outcome, never as errors.
func (a *Assistant) Ask(ctx context.Context, history []nl2sql.Exchange, question string) (outcome Outcome) {
	start := time.Now()
	logger := observability.WithTrace(ctx, a.logger)
	defer func() { outcome.Duration = time.Since(start) }()

	generated, err := a.complete(ctx, "sql", nl2sql.BuildQueryPrompt(question, history, a.opts.Schema))
	generated = nl2sql.Sanitize(generated)
	if err != nil || generated == "" {
		logger.Warn("sql generation failed", slog.Any("error", err))
		outcome.Status = session.StatusGenerationFailed
		outcome.Message = msgGenerationFailed
		return outcome
	}
	outcome.GeneratedSQL = generated

	executed := a.opts.Rewriter.Rewrite(generated, nl2sql.PassFull)
	result, execErr := a.execute(ctx, executed, &outcome)
	if execErr != nil {
		outcome.Warnings = append(outcome.Warnings, "SQL failed: "+execErr.Error())
		logger.Warn("sql execution failed, attempting repair",
			slog.String("stage", string(StageInitial)),
			slog.String("sql", executed),
			slog.String("error", execErr.Error()),
		)

		repaired, repairErr := a.complete(ctx, "repair", nl2sql.BuildRepairPrompt(executed, execErr.Error(), a.opts.Schema))
		repaired = nl2sql.Sanitize(repaired)
		if repairErr != nil || repaired == "" {
			observability.ObserveRepairAttempt(false)
			logger.Warn("sql repair generation failed", slog.Any("error", repairErr))
			outcome.Status = session.StatusFailed
			outcome.Message = msgRepairFailed
			return outcome
		}

		pass := nl2sql.PassDateOnly
		if a.opts.RepairTranslatesCategories {
			pass = nl2sql.PassFull
		}
		repaired = a.opts.Rewriter.Rewrite(repaired, pass)
		outcome.RepairedSQL = repaired

		result, execErr = a.execute(ctx, repaired, &outcome)
		observability.ObserveRepairAttempt(execErr == nil)
		if execErr != nil {
			logger.Warn("repaired sql execution failed",
				slog.String("stage", string(StageRepair)),
				slog.String("sql", repaired),
				slog.String("error", execErr.Error()),
			)
			outcome.Status = session.StatusFailed
			outcome.Message = "Still invalid after correction: " + execErr.Error()
			return outcome
		}
	}

	outcome.Columns = result.Columns
	outcome.TotalRows = len(result.Rows)
	if result.Empty() {
		outcome.Status = session.StatusNoData
		outcome.Message = msgNoData
		return outcome
	}

	outcome.Rows = result.Head(a.opts.PreviewRows).Rows
	if barChart, ok := chart.Select(result); ok {
		outcome.Chart = barChart
	}
	outcome.Summary = a.Summarize(ctx, question, result)
	outcome.Status = session.StatusAnswered
	return outcome
}

// Summarize asks for a short synopsis of the first rows of result. Any failure
// yields FallbackSummary.
func (a *Assistant) Summarize(ctx context.Context, question string, result query.Result) string {
	sample, err := result.CSV(a.opts.SummarySampleRows)
	if err != nil {
		observability.WithTrace(ctx, a.logger).Warn("serialize summary sample failed", slog.Any("error", err))
		return FallbackSummary
	}
	summary, err := a.complete(ctx, "summary", nl2sql.BuildSummaryPrompt(question, sample))
	summary = strings.TrimSpace(summary)
	if err != nil || summary == "" {
		observability.WithTrace(ctx, a.logger).Warn("summary generation failed", slog.Any("error", err))
		return FallbackSummary
	}
	return summary
}

func (a *Assistant) complete(ctx context.Context, purpose, prompt string) (string, error) {
	start := time.Now()
	text, err := a.client.Complete(ctx, prompt)
	if err == nil && strings.TrimSpace(text) == "" {
		err = completion.ErrNoAnswer
	}
	observability.ObserveCompletion(purpose, time.Since(start), err)
	return text, err
}

func (a *Assistant) execute(ctx context.Context, sqlText string, outcome *Outcome) (query.Result, error) {
	outcome.Attempts++
	outcome.ExecutedSQL = sqlText
	result, err := a.engine.Execute(ctx, query.Request{SQL: sqlText})
	if err != nil {
		var execErr *query.ExecutionError
		if errors.As(err, &execErr) {
			return query.Result{}, execErr
		}
		return query.Result{}, err
	}
	observability.ObserveQuery(result.Duration)
	return result, nil
}
