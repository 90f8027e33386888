package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"headerprobe/internal/storage"
)

/*
LayoutRepo implements storage.LayoutRepository for Postgres.

Layouts are append-only; created_at is TIMESTAMPTZ and ids come from an
identity column returned by INSERT ... RETURNING.
*/
type LayoutRepo struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func init() {
	storage.Register("postgres", NewLayoutRepo)
}

// NewLayoutRepo creates a new Postgres-backed LayoutRepo.
func NewLayoutRepo(ctx context.Context, cfg storage.Config) (storage.LayoutRepository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &LayoutRepo{pool: pool, now: time.Now}, nil
}

// Close closes the connection pool.
func (r *LayoutRepo) Close() {
	r.pool.Close()
}

// EnsureSchema creates the layout table and its lookup index.
func (r *LayoutRepo) EnsureSchema(ctx context.Context) error {
	for _, stmt := range buildCreateSQL(storage.LayoutTable) {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
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

	var id int64
	err = r.pool.QueryRow(ctx, buildInsertSQL(storage.LayoutTable),
		l.Source, l.Format, l.HeaderOffset, l.ModalColumns, cols, l.CreatedAt,
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
	err := r.pool.QueryRow(ctx, buildLatestSQL(storage.LayoutTable), storage.NormalizeSource(source)).
		Scan(&l.ID, &l.Source, &l.Format, &l.HeaderOffset, &l.ModalColumns, &cols, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
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

// pgIdent quotes a Postgres identifier, escaping embedded quotes.
func pgIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func buildCreateSQL(table string) []string {
	t := pgIdent(table)
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
	source TEXT NOT NULL,
	format TEXT NOT NULL,
	header_offset INTEGER NOT NULL,
	modal_columns INTEGER NOT NULL,
	columns_json JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);`, t),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (source, created_at DESC);`,
			pgIdent(table+"_source_idx"), t),
	}
}

func buildInsertSQL(table string) string {
	return fmt.Sprintf(
		`INSERT INTO %s (source, format, header_offset, modal_columns, columns_json, created_at) VALUES ($1, $2, $3, $4, $5::jsonb, $6) RETURNING id`,
		pgIdent(table),
	)
}

func buildLatestSQL(table string) string {
	return fmt.Sprintf(
		`SELECT id, source, format, header_offset, modal_columns, columns_json::text, created_at FROM %s WHERE source = $1 ORDER BY created_at DESC, id DESC LIMIT 1`,
		pgIdent(table),
	)
}
