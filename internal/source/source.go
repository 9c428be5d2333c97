// Package source abstracts the origins a scan can read rows from.
//
// Every origin (delimited files, databases, SAS files, HTML tables) is exposed
// through the same two interfaces: Source enumerates tables and opens them,
// Rows iterates one table's records as strings aligned with its columns.
// The scanner never needs to know which backend it is talking to.
//
// Backends register themselves from init() under a kind string, mirroring the
// storage registry:
//
//	import _ "datascan/internal/source/sqlite"
//	src, err := source.New(ctx, source.Config{Kind: "sqlite", DSN: "file:x.db"})
package source

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Column describes one column of a table as declared by the source.
type Column struct {
	Name string
	// Label is a human-readable description (SAS label, DB comment).
	Label string
	// DeclaredType is the type reported by metadata; empty for untyped sources.
	DeclaredType string
}

// Table identifies one scannable unit.
type Table struct {
	// Name is the report name of the table.
	Name string
	// Comment is an optional free-text description.
	Comment string
	// Location is the backend-specific address (file path, qualified name).
	Location string
}

// OpenOptions control how a table is opened.
type OpenOptions struct {
	// Limit caps the number of rows returned. Zero or negative means all rows.
	Limit int
	// ColumnsOnly requests metadata only. Next returns false immediately.
	ColumnsOnly bool
}

// Source enumerates and opens tables.
type Source interface {
	// Tables lists the tables to scan, in report order.
	Tables(ctx context.Context) ([]Table, error)

	// Open starts reading a table. The returned Rows must be closed on every
	// path, including early exits.
	Open(ctx context.Context, t Table, opt OpenOptions) (Rows, error)

	// Close releases connections held by the source.
	Close() error
}

// Rows is a forward-only, non-restartable iterator over a table.
type Rows interface {
	// Columns is available before the first call to Next.
	Columns() []Column

	// RowCount is the table's total row count, or -1 when unknown.
	RowCount() int64

	Next() bool

	// Values returns the current row aligned with Columns. Missing trailing
	// values are "". The slice may be reused by the next call to Next.
	Values() []string

	Err() error
	Close() error
}

// Skipper is implemented by Rows that drop malformed records.
type Skipper interface {
	// Skipped is the number of records dropped so far.
	Skipped() int64
}

// Config selects and configures a backend.
type Config struct {
	// Kind is the registered backend name, e.g. "postgres" or "csv".
	Kind string
	// DSN is the connection string for database backends.
	DSN string
	// Path is a file or directory for file backends.
	Path string
	// Schema restricts database enumeration.
	Schema string
	// Tables restricts enumeration to the given names. Empty means all.
	Tables []string

	// Delimiter for delimited text. Zero means ','.
	Delimiter rune
	// Charset of file backends, e.g. "windows-1252". Empty means UTF-8.
	Charset string
	// Extensions filters directory listings, e.g. []string{".csv"}.
	Extensions []string
}

// Factory constructs a Source for a Config.
type Factory func(ctx context.Context, cfg Config) (Source, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind. It panics on an empty kind,
// a nil factory or a duplicate registration.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("source: Register called with empty kind")
	}
	if f == nil {
		panic("source: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("source: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New constructs the Source registered for cfg.Kind.
func New(ctx context.Context, cfg Config) (Source, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("source: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported source kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// Kinds lists the registered backend names in sorted order.
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

// KindDelimited is the registry kind of delimited text files.
const KindDelimited = "csv"

// IsFileKind reports whether kind reads local files rather than a database.
func IsFileKind(kind string) bool {
	switch kind {
	case KindDelimited, "sas", "html":
		return true
	default:
		return false
	}
}

// Kinded is implemented by sources that know their registry kind.
type Kinded interface {
	Kind() string
}

// KindOf returns the registry kind of src, or "" when it does not say.
func KindOf(src Source) string {
	if k, ok := src.(Kinded); ok {
		return k.Kind()
	}
	return ""
}
