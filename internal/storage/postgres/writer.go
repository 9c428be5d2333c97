package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"datascan/internal/storage"
)

// Kind is the registry name of this backend.
const Kind = "postgres"

func init() {
	storage.Register(Kind, func(ctx context.Context, cfg storage.Config) (storage.Writer, error) {
		return New(ctx, cfg)
	})
}

// conn is the subset of *pgxpool.Pool the writer uses.
type conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
	Close()
}

/*
Writer implements storage.Writer for Postgres.

It provides:
  - CREATE SCHEMA / CREATE TABLE IF NOT EXISTS for "schema.table" names
  - bulk loads through the COPY protocol
*/
type Writer struct {
	pool conn
}

// New creates a pool for cfg.DSN and verifies connectivity.
func New(ctx context.Context, cfg storage.Config) (*Writer, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres: missing dsn")
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Writer{pool: pool}, nil
}

// Close closes the connection pool.
func (w *Writer) Close() error {
	w.pool.Close()
	return nil
}

// EnsureTable creates the schema (when qualified) and the table.
func (w *Writer) EnsureTable(ctx context.Context, t storage.TableSpec) error {
	schemaSQL, tableSQL, err := buildCreateSQL(t)
	if err != nil {
		return err
	}
	if schemaSQL != "" {
		if _, err := w.pool.Exec(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema for %s: %w", t.Name, err)
		}
	}
	if _, err := w.pool.Exec(ctx, tableSQL); err != nil {
		return fmt.Errorf("create table %s: %w", t.Name, err)
	}
	return nil
}

// InsertRows converts rows to typed values and loads them with COPY.
func (w *Writer) InsertRows(ctx context.Context, t storage.TableSpec, rows [][]string) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	vals, err := storage.ConvertRows(t, rows)
	if err != nil {
		return 0, fmt.Errorf("postgres: %s: %w", t.Name, err)
	}
	n, err := w.pool.CopyFrom(ctx, identifier(t.Name), t.ColumnNames(), pgx.CopyFromRows(vals))
	if err != nil {
		return n, fmt.Errorf("copy into %s: %w", t.Name, err)
	}
	return n, nil
}

// splitQualifiedName splits "schema.table". Anything without exactly one dot
// is treated as unqualified.
func splitQualifiedName(name string) (schema string, table string) {
	name = strings.TrimSpace(name)
	parts := strings.Split(name, ".")
	if len(parts) != 2 {
		return "", name
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

func identifier(name string) pgx.Identifier {
	schema, table := splitQualifiedName(name)
	if schema == "" {
		return pgx.Identifier{table}
	}
	return pgx.Identifier{schema, table}
}

func buildCreateSQL(t storage.TableSpec) (schemaSQL, tableSQL string, err error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", "", fmt.Errorf("table name is empty")
	}
	if len(t.Columns) == 0 {
		return "", "", fmt.Errorf("table %s has no columns", t.Name)
	}
	if schema, _ := splitQualifiedName(t.Name); schema != "" {
		schemaSQL = "CREATE SCHEMA IF NOT EXISTS " + pgx.Identifier{schema}.Sanitize()
	}
	defs := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		defs = append(defs, pgx.Identifier{c.Name}.Sanitize()+" "+columnType(c))
	}
	tableSQL = fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", identifier(t.Name).Sanitize(), strings.Join(defs, ", "))
	return schemaSQL, tableSQL, nil
}

func columnType(c storage.ColumnSpec) string {
	switch c.Logical {
	case storage.Integer:
		return "bigint"
	case storage.Real:
		return "double precision"
	case storage.Date:
		return "date"
	}
	if c.Length > 0 {
		return fmt.Sprintf("varchar(%d)", c.Length)
	}
	return "text"
}
