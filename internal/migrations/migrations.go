// Package migrations owns the conversation store schema. Scripts are embedded
// as NNNNNN_name.up.sql / NNNNNN_name.down.sql pairs and applied in version
// order, one transaction per version.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

//go:embed sql/*.sql
var embeddedFS embed.FS

const migrationTable = "olistqa_schema_migrations"

// lockKey serializes migrators across olistqa-migrate runs and API replicas
// checking the schema on startup.
const lockKey int64 = 0x6f6c697374716100

var migrationNamePattern = regexp.MustCompile(`^([0-9]+)_(.+)\.(up|down)\.sql$`)

type Runner struct {
	fsys fs.FS
}

func NewRunner() *Runner {
	return &Runner{fsys: embeddedFS}
}

type migration struct {
	Version int64
	Name    string
	UpSQL   string
	DownSQL string
}

// Status is one known migration and, when applied, when that happened.
type Status struct {
	Version   int64
	Name      string
	AppliedAt *time.Time
}

func (s Status) Applied() bool { return s.AppliedAt != nil }

func (r *Runner) Up(ctx context.Context, db *sql.DB, steps int) (int, error) {
	migrations, err := loadMigrations(r.fsys)
	if err != nil {
		return 0, err
	}
	applied, err := r.applied(ctx, db)
	if err != nil {
		return 0, err
	}

	runCount := 0
	for _, item := range migrations {
		if _, ok := applied[item.Version]; ok {
			continue
		}
		if steps > 0 && runCount >= steps {
			break
		}
		ran, err := inLockedTx(ctx, db, item.Version, false, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, item.UpSQL); err != nil {
				return fmt.Errorf("apply migration %d (%s): %w", item.Version, item.Name, err)
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO `+migrationTable+` (version, name) VALUES ($1, $2)`, item.Version, item.Name); err != nil {
				return fmt.Errorf("mark migration %d: %w", item.Version, err)
			}
			return nil
		})
		if err != nil {
			return runCount, err
		}
		if ran {
			runCount++
		}
	}
	return runCount, nil
}

// Down rolls back the newest applied migrations; steps <= 0 means one.
func (r *Runner) Down(ctx context.Context, db *sql.DB, steps int) (int, error) {
	if steps <= 0 {
		steps = 1
	}
	migrations, err := loadMigrations(r.fsys)
	if err != nil {
		return 0, err
	}
	applied, err := r.applied(ctx, db)
	if err != nil {
		return 0, err
	}
	for version := range applied {
		if !knownVersion(migrations, version) {
			return 0, fmt.Errorf("applied migration %d is missing from source", version)
		}
	}

	runCount := 0
	for i := len(migrations) - 1; i >= 0 && runCount < steps; i-- {
		item := migrations[i]
		if _, ok := applied[item.Version]; !ok {
			continue
		}
		ran, err := inLockedTx(ctx, db, item.Version, true, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, item.DownSQL); err != nil {
				return fmt.Errorf("rollback migration %d (%s): %w", item.Version, item.Name, err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+migrationTable+` WHERE version = $1`, item.Version); err != nil {
				return fmt.Errorf("unmark migration %d: %w", item.Version, err)
			}
			return nil
		})
		if err != nil {
			return runCount, err
		}
		if ran {
			runCount++
		}
	}
	return runCount, nil
}

// Status lists every embedded migration with its applied time.
func (r *Runner) Status(ctx context.Context, db *sql.DB) ([]Status, error) {
	migrations, err := loadMigrations(r.fsys)
	if err != nil {
		return nil, err
	}
	applied, err := r.applied(ctx, db)
	if err != nil {
		return nil, err
	}
	out := make([]Status, 0, len(migrations))
	for _, item := range migrations {
		status := Status{Version: item.Version, Name: item.Name}
		if at, ok := applied[item.Version]; ok {
			status.AppliedAt = &at
		}
		out = append(out, status)
	}
	return out, nil
}

// Pending counts embedded migrations not yet applied to db.
func (r *Runner) Pending(ctx context.Context, db *sql.DB) (int, error) {
	statuses, err := r.Status(ctx, db)
	if err != nil {
		return 0, err
	}
	pending := 0
	for _, status := range statuses {
		if !status.Applied() {
			pending++
		}
	}
	return pending, nil
}

func (r *Runner) applied(ctx context.Context, db *sql.DB) (map[int64]time.Time, error) {
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS `+migrationTable+` (
	version BIGINT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`); err != nil {
		return nil, fmt.Errorf("ensure migration table: %w", err)
	}

	rows, err := db.QueryContext(ctx, `SELECT version, applied_at FROM `+migrationTable)
	if err != nil {
		return nil, fmt.Errorf("query applied versions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	applied := map[int64]time.Time{}
	for rows.Next() {
		var version int64
		var at time.Time
		if err := rows.Scan(&version, &at); err != nil {
			return nil, fmt.Errorf("scan applied version: %w", err)
		}
		applied[version] = at
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied versions: %w", err)
	}
	return applied, nil
}

// inLockedTx runs fn under the migration advisory lock. Another migrator may
// have moved the version while this one waited, so the applied state is
// re-read under the lock and fn is skipped when it no longer matches.
func inLockedTx(ctx context.Context, db *sql.DB, version int64, wantApplied bool, fn func(*sql.Tx) error) (bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKey); err != nil {
		return false, fmt.Errorf("acquire migration lock: %w", err)
	}
	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+migrationTable+` WHERE version = $1`, version).Scan(&count); err != nil {
		return false, fmt.Errorf("recheck migration %d: %w", version, err)
	}
	if (count > 0) != wantApplied {
		return false, nil
	}
	if err := fn(tx); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit migration %d: %w", version, err)
	}
	return true, nil
}

func knownVersion(migrations []migration, version int64) bool {
	for _, item := range migrations {
		if item.Version == version {
			return true
		}
	}
	return false
}

func loadMigrations(fsys fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, "sql")
	if err != nil {
		return nil, fmt.Errorf("read migration dir: %w", err)
	}

	items := map[int64]migration{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		base := path.Base(entry.Name())
		matches := migrationNamePattern.FindStringSubmatch(base)
		if len(matches) != 4 {
			continue
		}
		version, err := strconv.ParseInt(matches[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse migration version for %q: %w", base, err)
		}
		script, err := fs.ReadFile(fsys, path.Join("sql", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %q: %w", entry.Name(), err)
		}

		item := items[version]
		if item.Name != "" && item.Name != matches[2] {
			return nil, fmt.Errorf("migration %d has mismatched names %q and %q", version, item.Name, matches[2])
		}
		item.Version = version
		item.Name = matches[2]
		if matches[3] == "up" {
			item.UpSQL = string(script)
		} else {
			item.DownSQL = string(script)
		}
		items[version] = item
	}

	migrations := make([]migration, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item.UpSQL) == "" {
			return nil, fmt.Errorf("migration %d missing up SQL", item.Version)
		}
		if strings.TrimSpace(item.DownSQL) == "" {
			return nil, fmt.Errorf("migration %d missing down SQL", item.Version)
		}
		migrations = append(migrations, item)
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}
