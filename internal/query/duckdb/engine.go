package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	goduckdb "github.com/marcboeker/go-duckdb/v2"

	"github.com/olistqa/olistqa/internal/dataset"
	"github.com/olistqa/olistqa/internal/query"
)

const timestampColumn = "order_purchase_timestamp"

// Engine owns one in-memory DuckDB database holding the working table.
// Every statement runs on the same connection, one at a time. Generated SQL
// runs as a single prepared statement inside a transaction that is always
// rolled back, so it cannot change the working table.
type Engine struct {
	mu     sync.Mutex
	db     *sql.DB
	table  string
	sealed bool
}

func Open(table string) (*Engine, error) {
	if strings.TrimSpace(table) == "" {
		return nil, fmt.Errorf("table name is required")
	}
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxIdleTime(0)
	db.SetConnMaxLifetime(0)
	return &Engine{db: db, table: table}, nil
}

func (e *Engine) Close() error {
	if e == nil || e.db == nil {
		return nil
	}
	return e.db.Close()
}

func (e *Engine) Table() string {
	return e.table
}

// LoadWorkingTable materializes the joined dataset and returns its shape.
func (e *Engine) LoadWorkingTable(ctx context.Context, files dataset.Files) (query.TableInfo, error) {
	e.mu.Lock()
	sealed := e.sealed
	e.mu.Unlock()
	if sealed {
		return query.TableInfo{}, fmt.Errorf("working table %q is sealed", e.table)
	}
	statement, err := dataset.JoinSQL(e.table, files)
	if err != nil {
		return query.TableInfo{}, err
	}

	e.mu.Lock()
	_, err = e.db.ExecContext(ctx, statement)
	e.mu.Unlock()
	if err != nil {
		return query.TableInfo{}, fmt.Errorf("create working table %q: %w", e.table, err)
	}
	return e.Describe(ctx)
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	sqlText := stripTrailingSemicolons(request.SQL)
	if sqlText == "" {
		return query.Result{}, &query.ExecutionError{SQL: request.SQL, Err: errors.New("sql is required")}
	}
	statement := sqlText
	if request.RowLimit > 0 {
		statement = fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", sqlText, request.RowLimit)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return query.Result{}, fmt.Errorf("begin query transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, statement)
	if err != nil {
		return query.Result{}, &query.ExecutionError{SQL: sqlText, Err: err}
	}
	defer func() { _ = stmt.Close() }()

	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return query.Result{}, &query.ExecutionError{SQL: sqlText, Err: err}
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, &query.ExecutionError{SQL: sqlText, Err: err}
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Result{}, &query.ExecutionError{SQL: sqlText, Err: err}
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, &query.ExecutionError{SQL: sqlText, Err: err}
	}

	return query.Result{
		Columns:  columns,
		Rows:     resultRows,
		Duration: time.Since(start),
	}, nil
}

// Seal cuts the database off from the host once the working table is loaded:
// file and network readers such as read_csv stop working and settings can no
// longer be changed. It cannot be undone for the life of the engine.
func (e *Engine) Seal(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sealed {
		return nil
	}
	for _, statement := range []string{
		"SET enable_external_access = false",
		"SET lock_configuration = true",
	} {
		if _, err := e.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("seal duckdb (%s): %w", statement, err)
		}
	}
	e.sealed = true
	return nil
}

// MaxTimestamp returns the newest order purchase timestamp in the working table.
func (e *Engine) MaxTimestamp(ctx context.Context) (time.Time, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxTimestamp(ctx)
}

func (e *Engine) maxTimestamp(ctx context.Context) (time.Time, error) {
	var maxTS sql.NullTime
	statement := fmt.Sprintf("SELECT max(%s) FROM %s", quoteIdent(timestampColumn), quoteIdent(e.table))
	if err := e.db.QueryRowContext(ctx, statement).Scan(&maxTS); err != nil {
		return time.Time{}, fmt.Errorf("query max %s: %w", timestampColumn, err)
	}
	if !maxTS.Valid {
		return time.Time{}, nil
	}
	return maxTS.Time.UTC(), nil
}

func (e *Engine) Describe(ctx context.Context) (query.TableInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	info := query.TableInfo{Name: e.table}
	rows, err := e.db.QueryContext(ctx, `SELECT column_name FROM information_schema.columns WHERE table_name = ? ORDER BY ordinal_position`, e.table)
	if err != nil {
		return query.TableInfo{}, fmt.Errorf("list columns: %w", err)
	}
	for rows.Next() {
		var column string
		if err := rows.Scan(&column); err != nil {
			_ = rows.Close()
			return query.TableInfo{}, fmt.Errorf("scan column: %w", err)
		}
		info.Columns = append(info.Columns, column)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return query.TableInfo{}, fmt.Errorf("iterate columns: %w", err)
	}
	_ = rows.Close()
	if len(info.Columns) == 0 {
		return query.TableInfo{}, fmt.Errorf("working table %q is not loaded", e.table)
	}

	if err := e.db.QueryRowContext(ctx, fmt.Sprintf("SELECT count(*) FROM %s", quoteIdent(e.table))).Scan(&info.RowCount); err != nil {
		return query.TableInfo{}, fmt.Errorf("count rows: %w", err)
	}
	maxTS, err := e.maxTimestamp(ctx)
	if err != nil {
		return query.TableInfo{}, err
	}
	info.MaxTimestamp = maxTS
	return info, nil
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		case *big.Int:
			if typed.IsInt64() {
				normalized[i] = typed.Int64()
			} else {
				normalized[i] = typed.String()
			}
		case goduckdb.Decimal:
			normalized[i] = typed.Float64()
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
