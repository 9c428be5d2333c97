// Package sqldb implements source.Source on top of database/sql.
//
// Backends differ only in how they list tables, quote identifiers and limit a
// select; those differences live in a Dialect.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"datascan/internal/source"
)

// Dialect captures the SQL differences between backends.
type Dialect struct {
	// Kind is the registry name, e.g. "sqlite".
	Kind string

	// ListTables returns the tables of schema in report order. Location must
	// hold the quoted, qualified name used in FROM clauses.
	ListTables func(ctx context.Context, db *sql.DB, schema string) ([]source.Table, error)

	// Select returns a query reading every column of table, capped at limit
	// rows when limit > 0. limit == 0 with columnsOnly must return no rows.
	Select func(table string, limit int, columnsOnly bool) string

	// Count returns a query yielding the row count of table.
	Count func(table string) string

	// Convert overrides stringification for driver-specific values. It
	// returns ok=false to fall back to source.Stringify.
	Convert func(ct *sql.ColumnType, v any) (string, bool)
}

// Source reads tables from an open *sql.DB.
type Source struct {
	db      *sql.DB
	dialect Dialect
	schema  string
	only    map[string]bool
}

// New wraps db. The Source owns db and closes it on Close.
func New(db *sql.DB, d Dialect, schema string, tables []string) *Source {
	s := &Source{db: db, dialect: d, schema: schema}
	if len(tables) > 0 {
		s.only = make(map[string]bool, len(tables))
		for _, t := range tables {
			s.only[strings.ToLower(t)] = true
		}
	}
	return s
}

// Open connects with driverName and verifies the connection, mirroring how
// the storage backends open their handles.
func Open(ctx context.Context, driverName, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", driverName, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: ping: %w", driverName, err)
	}
	return db, nil
}

// DB exposes the handle for callers that need backend-specific queries.
func (s *Source) DB() *sql.DB { return s.db }

func (s *Source) Kind() string { return s.dialect.Kind }

func (s *Source) Tables(ctx context.Context) ([]source.Table, error) {
	all, err := s.dialect.ListTables(ctx, s.db, s.schema)
	if err != nil {
		return nil, fmt.Errorf("%s: list tables: %w", s.dialect.Kind, err)
	}
	if s.only == nil {
		return all, nil
	}
	out := all[:0]
	for _, t := range all {
		if s.only[strings.ToLower(t.Name)] {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Source) Open(ctx context.Context, t source.Table, opt source.OpenOptions) (source.Rows, error) {
	from := t.Location
	if from == "" {
		from = t.Name
	}

	count := int64(-1)
	if s.dialect.Count != nil {
		if err := s.db.QueryRowContext(ctx, s.dialect.Count(from)).Scan(&count); err != nil {
			return nil, fmt.Errorf("%s: count %s: %w", s.dialect.Kind, t.Name, err)
		}
	}

	q := s.dialect.Select(from, opt.Limit, opt.ColumnsOnly)
	rs, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%s: select %s: %w", s.dialect.Kind, t.Name, err)
	}
	rows, err := NewRows(rs, count, s.dialect.Convert)
	if err != nil {
		_ = rs.Close()
		return nil, fmt.Errorf("%s: %s: %w", s.dialect.Kind, t.Name, err)
	}
	return rows, nil
}

func (s *Source) Close() error { return s.db.Close() }

// Rows adapts *sql.Rows to source.Rows.
type Rows struct {
	rs      *sql.Rows
	types   []*sql.ColumnType
	cols    []source.Column
	count   int64
	convert func(*sql.ColumnType, any) (string, bool)
	raw     []any
	ptrs    []any
	cur     []string
	err     error
}

// NewRows reads column metadata from rs. count is the table's total row count
// or -1.
func NewRows(rs *sql.Rows, count int64, convert func(*sql.ColumnType, any) (string, bool)) (*Rows, error) {
	types, err := rs.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("column types: %w", err)
	}

	r := &Rows{
		rs:      rs,
		types:   types,
		cols:    make([]source.Column, len(types)),
		count:   count,
		convert: convert,
		raw:     make([]any, len(types)),
		ptrs:    make([]any, len(types)),
		cur:     make([]string, len(types)),
	}
	for i, ct := range types {
		r.cols[i] = source.Column{Name: ct.Name(), DeclaredType: ct.DatabaseTypeName()}
		r.ptrs[i] = &r.raw[i]
	}
	return r, nil
}

func (r *Rows) Columns() []source.Column { return r.cols }

func (r *Rows) RowCount() int64 { return r.count }

func (r *Rows) Next() bool {
	if r.err != nil || !r.rs.Next() {
		return false
	}
	if err := r.rs.Scan(r.ptrs...); err != nil {
		r.err = fmt.Errorf("scan: %w", err)
		return false
	}
	for i, v := range r.raw {
		if r.convert != nil {
			if s, ok := r.convert(r.types[i], v); ok {
				r.cur[i] = s
				continue
			}
		}
		r.cur[i] = source.Stringify(v)
	}
	return true
}

func (r *Rows) Values() []string { return r.cur }

func (r *Rows) Err() error {
	if r.err != nil {
		return r.err
	}
	return r.rs.Err()
}

func (r *Rows) Close() error { return r.rs.Close() }

// QuoteDouble quotes an identifier with ANSI double quotes.
func QuoteDouble(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// LimitSelect builds "SELECT * FROM table LIMIT n" for dialects that support
// a trailing LIMIT clause.
func LimitSelect(table string, limit int, columnsOnly bool) string {
	switch {
	case columnsOnly:
		return "SELECT * FROM " + table + " LIMIT 0"
	case limit > 0:
		return fmt.Sprintf("SELECT * FROM %s LIMIT %d", table, limit)
	default:
		return "SELECT * FROM " + table
	}
}

// CountStar builds "SELECT COUNT(*) FROM table".
func CountStar(table string) string {
	return "SELECT COUNT(*) FROM " + table
}
