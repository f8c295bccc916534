package query

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"
)

type Request struct {
	SQL      string
	RowLimit int
}

type Result struct {
	Columns  []string
	Rows     [][]any
	Duration time.Duration
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}

// TableInfo describes the loaded working table.
type TableInfo struct {
	Name         string
	Columns      []string
	RowCount     int64
	MaxTimestamp time.Time
}

// ExecutionError carries the engine's own error text for a failed statement.
type ExecutionError struct {
	SQL string
	Err error
}

func (e *ExecutionError) Error() string {
	if e == nil || e.Err == nil {
		return "query execution failed"
	}
	return e.Err.Error()
}

func (e *ExecutionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (r Result) Empty() bool {
	return len(r.Rows) == 0
}

// Head returns a copy of r limited to the first n rows.
func (r Result) Head(n int) Result {
	if n < 0 || n >= len(r.Rows) {
		return r
	}
	head := r
	head.Rows = r.Rows[:n]
	return head
}

// CSV serializes the first n rows (all rows when n <= 0) with a header line.
func (r Result) CSV(n int) (string, error) {
	buf := bytes.NewBuffer(nil)
	writer := csv.NewWriter(buf)
	if err := writer.Write(r.Columns); err != nil {
		return "", fmt.Errorf("write csv header: %w", err)
	}
	rows := r.Rows
	if n > 0 && n < len(rows) {
		rows = rows[:n]
	}
	record := make([]string, len(r.Columns))
	for _, row := range rows {
		for i := range record {
			record[i] = ""
			if i < len(row) {
				record[i] = FormatValue(row[i])
			}
		}
		if err := writer.Write(record); err != nil {
			return "", fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", fmt.Errorf("flush csv: %w", err)
	}
	return buf.String(), nil
}

// FormatValue renders a scanned value for text output.
func FormatValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case time.Time:
		if typed.Hour() == 0 && typed.Minute() == 0 && typed.Second() == 0 && typed.Nanosecond() == 0 {
			return typed.Format("2006-01-02")
		}
		return typed.Format("2006-01-02 15:04:05")
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(typed), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(typed)
	default:
		return fmt.Sprint(typed)
	}
}
