// Package storage writes generated tables to a destination.
//
// Backends register themselves from init() under a kind (e.g. "postgres",
// "sqlite", "csv"); callers select one with New. Every backend receives rows
// as strings and converts them according to the column's logical type.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Config selects and configures a writer backend.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is used by database backends, Path by file backends. Validation is
//     backend-specific.
type Config struct {
	Kind string
	DSN  string
	Path string
	// Delimiter for file backends. Zero means ','.
	Delimiter rune
}

// Writer is the backend-agnostic destination for generated tables.
//
// IMPORTANT: the interface is intentionally minimal. Each backend implements
// table creation and bulk loading in its own idiomatic way (Postgres COPY,
// SQLite batched INSERT, SQL Server multi-row INSERT, one file per table).
type Writer interface {
	// EnsureTable creates the table when it does not exist yet. Existing tables
	// are left untouched.
	EnsureTable(ctx context.Context, t TableSpec) error

	// InsertRows appends rows aligned with t.Columns. Empty strings are written
	// as NULL (or an empty field for file backends).
	InsertRows(ctx context.Context, t TableSpec, rows [][]string) (int64, error)

	// Close releases backend resources and flushes pending output.
	Close() error
}

// Factory constructs a Writer for a Config.
type Factory func(ctx context.Context, cfg Config) (Writer, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered.
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

// New constructs a Writer using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Writer, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// Kinds lists the registered backends in sorted order.
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
