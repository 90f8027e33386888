package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"headerprobe/internal/storage"
)

// LayoutRepo implements storage.LayoutRepository for Microsoft SQL Server.
//
// Ids come from an IDENTITY column read back with OUTPUT INSERTED.id, and
// created_at is DATETIMEOFFSET so the stored instant survives server time zones.
//
// Note on driver registration:
//   - This package does NOT blank-import a SQL Server driver. Import
//     headerprobe/internal/storage/all (or the driver itself) so that
//     "sqlserver" is registered with database/sql before calling New.
type LayoutRepo struct {
	db  dbConn
	now func() time.Time
}

func init() {
	storage.Register("mssql", NewLayoutRepo)
}

// NewLayoutRepo constructs a LayoutRepo using database/sql and the "sqlserver"
// driver. It validates connectivity via PingContext.
func NewLayoutRepo(ctx context.Context, cfg storage.Config) (storage.LayoutRepository, error) {
	raw, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}

	raw.SetMaxOpenConns(8)
	raw.SetMaxIdleConns(8)

	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return &LayoutRepo{db: &sqlDB{db: raw}, now: time.Now}, nil
}

// Close releases database resources held by this repository.
func (r *LayoutRepo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

// EnsureSchema creates the layout table and index when missing. SQL Server
// has no CREATE TABLE IF NOT EXISTS, so the DDL is guarded by OBJECT_ID.
func (r *LayoutRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, buildCreateSQL(storage.LayoutTable)); err != nil {
		return fmt.Errorf("create table %s: %w", storage.LayoutTable, err)
	}
	return nil
}

func (r *LayoutRepo) SaveLayout(ctx context.Context, l storage.Layout) (int64, error) {
	l, cols, err := storage.Prepare(l, r.now)
	if err != nil {
		return 0, err
	}

	var id int64
	err = r.db.QueryRowContext(ctx, buildInsertSQL(storage.LayoutTable),
		sql.Named("source", l.Source),
		sql.Named("format", l.Format),
		sql.Named("header_offset", l.HeaderOffset),
		sql.Named("modal_columns", l.ModalColumns),
		sql.Named("columns_json", cols),
		sql.Named("created_at", l.CreatedAt),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert layout: %w", err)
	}
	return id, nil
}

func (r *LayoutRepo) LatestLayout(ctx context.Context, source string) (storage.Layout, error) {
	var (
		l    storage.Layout
		cols string
	)
	err := r.db.QueryRowContext(ctx, buildLatestSQL(storage.LayoutTable),
		sql.Named("source", storage.NormalizeSource(source)),
	).Scan(&l.ID, &l.Source, &l.Format, &l.HeaderOffset, &l.ModalColumns, &cols, &l.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Layout{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Layout{}, fmt.Errorf("select layout: %w", err)
	}

	l.CreatedAt = l.CreatedAt.UTC()
	if l.Columns, err = storage.DecodeColumns(cols); err != nil {
		return storage.Layout{}, err
	}
	return l, nil
}

func buildCreateSQL(table string) string {
	t := mssqlTableIdent(table)
	return fmt.Sprintf(`IF OBJECT_ID(N'%s', N'U') IS NULL
BEGIN
	CREATE TABLE %s (
		[id] BIGINT IDENTITY(1,1) PRIMARY KEY,
		[source] NVARCHAR(2048) NOT NULL,
		[format] NVARCHAR(32) NOT NULL,
		[header_offset] INT NOT NULL,
		[modal_columns] INT NOT NULL,
		[columns_json] NVARCHAR(MAX) NOT NULL,
		[created_at] DATETIMEOFFSET NOT NULL
	);
	CREATE INDEX %s ON %s ([created_at] DESC) INCLUDE ([source]);
END`,
		strings.ReplaceAll(table, "'", "''"), t, mssqlIdent(table+"_created_idx"), t)
}

func buildInsertSQL(table string) string {
	return fmt.Sprintf(
		`INSERT INTO %s ([source], [format], [header_offset], [modal_columns], [columns_json], [created_at]) OUTPUT INSERTED.[id] VALUES (@source, @format, @header_offset, @modal_columns, @columns_json, @created_at)`,
		mssqlTableIdent(table),
	)
}

func buildLatestSQL(table string) string {
	return fmt.Sprintf(
		`SELECT TOP (1) [id], [source], [format], [header_offset], [modal_columns], [columns_json], [created_at] FROM %s WHERE [source] = @source ORDER BY [created_at] DESC, [id] DESC`,
		mssqlTableIdent(table),
	)
}

// mssqlIdent returns a bracket-quoted identifier, escaping ']' as ']]'.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// mssqlTableIdent returns a bracket-quoted identifier for schema-qualified names.
//
// Example:
//
//	"dbo.header_layouts" -> [dbo].[header_layouts]
func mssqlTableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = mssqlIdent(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}

// ---- database/sql seam types ----

// dbConn is a small interface over *sql.DB used to make this package testable.
type dbConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) rowScanner
	Close() error
}

// rowScanner is a narrow adapter over *sql.Row.Scan.
type rowScanner interface {
	Scan(dest ...any) error
}

// sqlDB wraps *sql.DB to implement dbConn.
type sqlDB struct {
	db *sql.DB
}

func (s *sqlDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

func (s *sqlDB) QueryRowContext(ctx context.Context, query string, args ...any) rowScanner {
	return s.db.QueryRowContext(ctx, query, args...)
}

func (s *sqlDB) Close() error { return s.db.Close() }

var _ dbConn = (*sqlDB)(nil)
