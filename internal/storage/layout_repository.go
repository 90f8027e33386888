package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned by LatestLayout when no layout is stored for a source.
var ErrNotFound = errors.New("storage: layout not found")

// Config is the minimal configuration needed to create a LayoutRepository.
//
// Edge cases:
//   - Kind may be empty when DSN is a URL that KindFromDSN understands; New
//     resolves it in that case.
//   - DSN is passed through to the backend factory; validation is backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// Column is one named column of a stored layout.
type Column struct {
	Index         int    `json:"index"`
	Name          string `json:"name"`
	Raw           string `json:"raw,omitempty"`
	Autogenerated bool   `json:"autogenerated,omitempty"`
}

// Layout is the header layout detected for one source at one point in time.
type Layout struct {
	ID           int64
	Source       string
	Format       string
	HeaderOffset int
	ModalColumns int
	Columns      []Column
	CreatedAt    time.Time
}

// Names returns the column names in position order.
func (l Layout) Names() []string {
	out := make([]string, len(l.Columns))
	for i, c := range l.Columns {
		out[i] = c.Name
	}
	return out
}

// LayoutRepository persists detected header layouts.
//
// Each backend implements these semantics in its own idiomatic way; the SQL
// differs (RETURNING vs OUTPUT vs LastInsertId) but the contract is the same.
type LayoutRepository interface {
	// Close releases any backend resources. Callers should treat Close as
	// "call once".
	Close()

	// EnsureSchema creates the layout table if it does not exist.
	EnsureSchema(ctx context.Context) error

	// SaveLayout appends a layout and returns its id. Source is normalized with
	// NormalizeSource; a zero CreatedAt is replaced with the current UTC time.
	SaveLayout(ctx context.Context, l Layout) (int64, error)

	// LatestLayout returns the most recently saved layout for source, or
	// ErrNotFound.
	LatestLayout(ctx context.Context, source string) (Layout, error)
}

// Factory builds a repository for one backend kind.
type Factory func(ctx context.Context, cfg Config) (LayoutRepository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// When to use:
//   - Call Register from an init() function in a backend package.
//
// Panics:
//   - If kind is empty, f is nil, or kind is already registered.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// Kinds returns the registered backend kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New constructs a LayoutRepository using the registered backend factory.
//
// When cfg.Kind is empty the kind and driver DSN are derived from cfg.DSN via
// ResolveDSN.
//
// Errors:
//   - Returns an error if the kind cannot be determined or is not registered.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (LayoutRepository, error) {
	if cfg.Kind == "" {
		kind, dsn, err := ResolveDSN(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("storage: missing kind: %w", err)
		}
		cfg.Kind, cfg.DSN = kind, dsn
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}
