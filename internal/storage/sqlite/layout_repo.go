package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"headerprobe/internal/storage"
)

// LayoutRepo implements storage.LayoutRepository for SQLite.
//
// SQLite has no native timestamp type, so created_at is stored as a fixed-width
// RFC3339 string in UTC with nanoseconds, which sorts lexically in time order.
type LayoutRepo struct {
	db  *sql.DB
	now func() time.Time
}

func init() {
	storage.Register("sqlite", NewLayoutRepo)
}

// NewLayoutRepo opens the database at cfg.DSN (a file path or "file:" URI).
func NewLayoutRepo(ctx context.Context, cfg storage.Config) (storage.LayoutRepository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	// One writer at a time; avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &LayoutRepo{db: db, now: time.Now}, nil
}

func (r *LayoutRepo) Close() { _ = r.db.Close() }

// EnsureSchema creates the layout table and its lookup index.
func (r *LayoutRepo) EnsureSchema(ctx context.Context) error {
	for _, stmt := range buildCreateSQL(storage.LayoutTable) {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create table %s: %w", storage.LayoutTable, err)
		}
	}
	return nil
}

func (r *LayoutRepo) SaveLayout(ctx context.Context, l storage.Layout) (int64, error) {
	l, cols, err := storage.Prepare(l, r.now)
	if err != nil {
		return 0, err
	}

	q := fmt.Sprintf(
		`INSERT INTO %s (source, format, header_offset, modal_columns, columns_json, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sqlIdent(storage.LayoutTable),
	)
	res, err := r.db.ExecContext(ctx, q,
		l.Source, l.Format, l.HeaderOffset, l.ModalColumns, cols, formatSQLiteTime(l.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("insert layout: %w", err)
	}
	return res.LastInsertId()
}

func (r *LayoutRepo) LatestLayout(ctx context.Context, source string) (storage.Layout, error) {
	q := fmt.Sprintf(
		`SELECT id, source, format, header_offset, modal_columns, columns_json, created_at FROM %s WHERE source = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		sqlIdent(storage.LayoutTable),
	)

	var (
		l       storage.Layout
		cols    string
		created string
	)
	err := r.db.QueryRowContext(ctx, q, storage.NormalizeSource(source)).
		Scan(&l.ID, &l.Source, &l.Format, &l.HeaderOffset, &l.ModalColumns, &cols, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Layout{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Layout{}, fmt.Errorf("select layout: %w", err)
	}

	if l.Columns, err = storage.DecodeColumns(cols); err != nil {
		return storage.Layout{}, err
	}
	if l.CreatedAt, err = parseSQLiteTime(created); err != nil {
		return storage.Layout{}, fmt.Errorf("layout %d created_at: %w", l.ID, err)
	}
	return l, nil
}

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func buildCreateSQL(table string) []string {
	t := sqlIdent(table)
	return []string{
		`CREATE TABLE IF NOT EXISTS ` + t + ` (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source TEXT NOT NULL,
	format TEXT NOT NULL,
	header_offset INTEGER NOT NULL,
	modal_columns INTEGER NOT NULL,
	columns_json TEXT NOT NULL,
	created_at TEXT NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS ` + sqlIdent(table+"_source_idx") + ` ON ` + t + ` (source, created_at)`,
	}
}

// sqliteTimeLayout always renders nine fraction digits and "Z", so every
// stored created_at has the same width.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// sqliteDatetimeLayout is what SQLite's datetime() and CURRENT_TIMESTAMP
// produce; it carries no zone and is read as UTC.
const sqliteDatetimeLayout = "2006-01-02 15:04:05"

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

// parseSQLiteTime reads created_at as written by formatSQLiteTime, or as
// written by SQLite itself for rows inserted outside this package.
func parseSQLiteTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if ts, err := time.Parse(sqliteTimeLayout, s); err == nil {
		return ts.UTC(), nil
	}
	if ts, err := time.ParseInLocation(sqliteDatetimeLayout, s, time.UTC); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("unsupported time format: %q", s)
}
