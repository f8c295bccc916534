package olistqactl

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
)

type datasetInfo struct {
	Table          string   `json:"table"`
	Columns        []string `json:"columns"`
	RowCount       int64    `json:"row_count"`
	DataCoversUpTo string   `json:"data_covers_up_to"`
}

type turnView struct {
	Seq      int     `json:"seq"`
	Question string  `json:"question"`
	Summary  *string `json:"summary"`
	Status   string  `json:"status"`
	SQL      string  `json:"sql"`
}

type sessionView struct {
	SessionID string     `json:"session_id"`
	Turns     []turnView `json:"turns"`
}

type chartView struct {
	Title string `json:"title"`
	X     string `json:"x"`
	Y     string `json:"y"`
}

type outcomeView struct {
	Status      string     `json:"status"`
	ExecutedSQL string     `json:"executed_sql"`
	RepairedSQL string     `json:"repaired_sql"`
	Columns     []string   `json:"columns"`
	Rows        [][]any    `json:"rows"`
	TotalRows   int        `json:"total_rows"`
	Chart       *chartView `json:"chart"`
	Summary     string     `json:"summary"`
	Message     string     `json:"message"`
	Warnings    []string   `json:"warnings"`
}

type turnResult struct {
	SessionID string      `json:"session_id"`
	Outcome   outcomeView `json:"outcome"`
}

func renderDataset(w io.Writer, info datasetInfo) {
	_, _ = fmt.Fprintf(w, "table %s: %d rows, %d columns\n", info.Table, info.RowCount, len(info.Columns))
	if info.DataCoversUpTo != "" {
		_, _ = fmt.Fprintf(w, "data covers up to %s\n", info.DataCoversUpTo)
	}
	_, _ = fmt.Fprintln(w, strings.Join(info.Columns, ", "))
}

func renderHistory(w io.Writer, current sessionView) {
	_, _ = fmt.Fprintf(w, "session %s\n", current.SessionID)
	if len(current.Turns) == 0 {
		_, _ = fmt.Fprintln(w, "(no turns)")
		return
	}
	table := newTable(w, []string{"#", "status", "question", "summary"})
	for _, turn := range current.Turns {
		summary := ""
		if turn.Summary != nil {
			summary = *turn.Summary
		}
		table.Append([]string{strconv.Itoa(turn.Seq), turn.Status, turn.Question, summary})
	}
	table.Render()
}

func renderOutcome(w io.Writer, outcome outcomeView) {
	for _, warning := range outcome.Warnings {
		_, _ = fmt.Fprintf(w, "warning: %s\n", warning)
	}
	if outcome.Message != "" {
		_, _ = fmt.Fprintln(w, outcome.Message)
	}
	if outcome.ExecutedSQL != "" {
		label := "sql"
		if outcome.RepairedSQL != "" {
			label = "sql (corrected)"
		}
		_, _ = fmt.Fprintf(w, "%s:\n%s\n\n", label, outcome.ExecutedSQL)
	}
	if len(outcome.Rows) > 0 {
		table := newTable(w, outcome.Columns)
		for _, row := range outcome.Rows {
			cells := make([]string, len(row))
			for i, value := range row {
				cells[i] = formatCell(value)
			}
			table.Append(cells)
		}
		table.Render()
		if outcome.TotalRows > len(outcome.Rows) {
			_, _ = fmt.Fprintf(w, "showing %d of %d rows\n", len(outcome.Rows), outcome.TotalRows)
		}
	}
	if outcome.Chart != nil {
		_, _ = fmt.Fprintf(w, "chart: %s (%s by %s)\n", outcome.Chart.Title, outcome.Chart.Y, outcome.Chart.X)
	}
	if outcome.Summary != "" {
		_, _ = fmt.Fprintf(w, "\n%s\n", outcome.Summary)
	}
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	return table
}

func formatCell(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(typed)
	default:
		return fmt.Sprint(typed)
	}
}
