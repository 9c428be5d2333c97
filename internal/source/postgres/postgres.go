// Package postgres reads PostgreSQL tables through a pgx connection pool.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"datascan/internal/source"
)

// Kind is the registry name of this backend.
const Kind = "postgres"

// DefaultSchema is used when the config names none.
const DefaultSchema = "public"

func init() {
	source.Register(Kind, New)
}

// Source lists and reads tables of one schema.
type Source struct {
	pool   *pgxpool.Pool
	schema string
	only   map[string]bool
	types  *pgtype.Map
}

// New connects to cfg.DSN.
func New(ctx context.Context, cfg source.Config) (source.Source, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres: missing dsn")
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	s := &Source{pool: pool, schema: cfg.Schema, types: pgtype.NewMap()}
	if s.schema == "" {
		s.schema = DefaultSchema
	}
	if len(cfg.Tables) > 0 {
		s.only = make(map[string]bool, len(cfg.Tables))
		for _, t := range cfg.Tables {
			s.only[strings.ToLower(t)] = true
		}
	}
	return s, nil
}

func (s *Source) Kind() string { return Kind }

const listTablesSQL = `
SELECT c.relname, COALESCE(obj_description(c.oid, 'pg_class'), '')
FROM pg_class c
JOIN pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = $1 AND c.relkind IN ('r', 'v', 'm', 'p')
ORDER BY c.relname`

func (s *Source) Tables(ctx context.Context) ([]source.Table, error) {
	rows, err := s.pool.Query(ctx, listTablesSQL, s.schema)
	if err != nil {
		return nil, fmt.Errorf("postgres: list tables: %w", err)
	}
	defer rows.Close()

	var out []source.Table
	for rows.Next() {
		var name, comment string
		if err := rows.Scan(&name, &comment); err != nil {
			return nil, fmt.Errorf("postgres: list tables: %w", err)
		}
		if s.only != nil && !s.only[strings.ToLower(name)] {
			continue
		}
		out = append(out, source.Table{
			Name:     name,
			Comment:  comment,
			Location: QualifiedName(s.schema, name),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list tables: %w", err)
	}
	return out, nil
}

const columnCommentsSQL = `
SELECT a.attname, COALESCE(col_description(a.attrelid, a.attnum), '')
FROM pg_attribute a
WHERE a.attrelid = $1::regclass AND a.attnum > 0 AND NOT a.attisdropped`

func (s *Source) Open(ctx context.Context, t source.Table, opt source.OpenOptions) (source.Rows, error) {
	from := t.Location
	if from == "" {
		from = QualifiedName(s.schema, t.Name)
	}

	var count int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+from).Scan(&count); err != nil {
		return nil, fmt.Errorf("postgres: count %s: %w", t.Name, err)
	}

	labels, err := s.columnComments(ctx, from)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, SelectSQL(from, opt.Limit, opt.ColumnsOnly))
	if err != nil {
		return nil, fmt.Errorf("postgres: select %s: %w", t.Name, err)
	}

	fds := rows.FieldDescriptions()
	cols := make([]source.Column, len(fds))
	for i, fd := range fds {
		cols[i] = source.Column{Name: fd.Name, Label: labels[fd.Name]}
		if typ, ok := s.types.TypeForOID(fd.DataTypeOID); ok {
			cols[i].DeclaredType = typ.Name
		}
	}
	return &Rows{rows: rows, cols: cols, count: count, cur: make([]string, len(cols))}, nil
}

func (s *Source) columnComments(ctx context.Context, from string) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, columnCommentsSQL, from)
	if err != nil {
		return nil, fmt.Errorf("postgres: column comments %s: %w", from, err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var name, comment string
		if err := rows.Scan(&name, &comment); err != nil {
			return nil, fmt.Errorf("postgres: column comments %s: %w", from, err)
		}
		if comment != "" {
			out[name] = comment
		}
	}
	return out, rows.Err()
}

func (s *Source) Close() error {
	s.pool.Close()
	return nil
}

// Rows adapts pgx.Rows to source.Rows.
type Rows struct {
	rows  pgx.Rows
	cols  []source.Column
	count int64
	cur   []string
	err   error
}

func (r *Rows) Columns() []source.Column { return r.cols }

func (r *Rows) RowCount() int64 { return r.count }

func (r *Rows) Next() bool {
	if r.err != nil || !r.rows.Next() {
		return false
	}
	vals, err := r.rows.Values()
	if err != nil {
		r.err = fmt.Errorf("postgres: values: %w", err)
		return false
	}
	for i, v := range vals {
		r.cur[i] = source.Stringify(v)
	}
	return true
}

func (r *Rows) Values() []string { return r.cur }

func (r *Rows) Err() error {
	if r.err != nil {
		return r.err
	}
	return r.rows.Err()
}

func (r *Rows) Close() error {
	r.rows.Close()
	return nil
}

// QualifiedName quotes schema and table for use in a FROM clause.
func QualifiedName(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}

// SelectSQL reads every column of from, capped at limit rows when limit > 0.
func SelectSQL(from string, limit int, columnsOnly bool) string {
	switch {
	case columnsOnly:
		return "SELECT * FROM " + from + " LIMIT 0"
	case limit > 0:
		return fmt.Sprintf("SELECT * FROM %s LIMIT %d", from, limit)
	default:
		return "SELECT * FROM " + from
	}
}
