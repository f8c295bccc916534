package nl2sql

import (
	"fmt"
	"strings"
)

// Exchange is one prior turn replayed into a prompt as context.
type Exchange struct {
	Question string
	Summary  string
}

func BuildQueryPrompt(question string, history []Exchange, schema Schema) string {
	return fmt.Sprintf(`
You are a data analyst writing SQL for DuckDB (PostgreSQL-like syntax).
Use CURRENT_DATE and INTERVAL for date arithmetic (e.g., CURRENT_DATE - INTERVAL 6 MONTH).
Do not use STRFTIME or DATE('now').
Work on a table called %s with columns %s.
User conversation so far:
%s
Now write only the SQL query (no explanations) to answer:
User: %s
SQL:
`, schema.table(), schema.ColumnList(), historyText(history), strings.TrimSpace(question))
}

func BuildRepairPrompt(failedSQL, errText string, schema Schema) string {
	return fmt.Sprintf(`The following SQL query failed in DuckDB:
%s
Error: %s
The query runs against the table %s with columns %s.
Please correct it. Use CURRENT_DATE and INTERVAL syntax where necessary.
Only return valid SQL.
`, strings.TrimSpace(failedSQL), strings.TrimSpace(errText), schema.table(), schema.ColumnList())
}

func BuildSummaryPrompt(question, sampleCSV string) string {
	return fmt.Sprintf("Summarize these results in 2–3 short business insights for the question: %s\n\n%s",
		strings.TrimSpace(question), sampleCSV)
}

func historyText(history []Exchange) string {
	lines := make([]string, 0, len(history)*2)
	for _, exchange := range history {
		question := strings.TrimSpace(exchange.Question)
		if question == "" {
			continue
		}
		lines = append(lines, "User: "+question)
		if summary := strings.TrimSpace(exchange.Summary); summary != "" {
			lines = append(lines, "Assistant: "+oneLine(summary))
		}
	}
	return strings.Join(lines, "\n")
}

func oneLine(value string) string {
	return strings.Join(strings.Fields(value), " ")
}
