package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	srcmssql "datascan/internal/source/mssql"
	"datascan/internal/storage"
)

// Kind is the registry name of this backend.
const Kind = "mssql"

// SQL Server accepts at most 2100 parameters and 1000 VALUES rows per
// statement.
const (
	maxParams = 2000
	maxRows   = 1000
)

func init() {
	storage.Register(Kind, func(ctx context.Context, cfg storage.Config) (storage.Writer, error) {
		return New(ctx, cfg)
	})
}

// dbConn is a small interface over *sql.DB used to make this package testable.
type dbConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Close() error
}

// Writer implements storage.Writer for Microsoft SQL Server.
//
// Table creation is guarded with OBJECT_ID so it can run on every invocation.
// Rows are loaded with multi-row INSERT statements sized to the driver's
// parameter limit.
type Writer struct {
	db dbConn
}

// New opens cfg.DSN with the "sqlserver" driver and validates connectivity.
func New(ctx context.Context, cfg storage.Config) (*Writer, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("mssql: missing dsn")
	}
	raw, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return &Writer{db: raw}, nil
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *Writer) EnsureTable(ctx context.Context, t storage.TableSpec) error {
	q, err := buildCreateSQL(t)
	if err != nil {
		return err
	}
	if _, err := w.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("create table %s: %w", t.Name, err)
	}
	return nil
}

func (w *Writer) InsertRows(ctx context.Context, t storage.TableSpec, rows [][]string) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	vals, err := storage.ConvertRows(t, rows)
	if err != nil {
		return 0, fmt.Errorf("mssql: %s: %w", t.Name, err)
	}

	perBatch := min(maxRows, max(1, maxParams/max(1, len(t.Columns))))
	var n int64
	for _, b := range storage.Batches(len(vals), perBatch) {
		q, args := buildBulkInsertSQL(t.Name, t.ColumnNames(), vals[b[0]:b[1]])
		res, err := w.db.ExecContext(ctx, q, args...)
		if err != nil {
			return n, fmt.Errorf("insert into %s: %w", t.Name, err)
		}
		affected, _ := res.RowsAffected()
		n += affected
	}
	return n, nil
}

// tableIdent returns a bracket-quoted identifier for schema-qualified names.
//
// Example:
//
//	"dbo.imports" -> [dbo].[imports]
func tableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = srcmssql.Ident(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}

// buildCreateSQL wraps CREATE TABLE in an OBJECT_ID guard.
func buildCreateSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("mssql: table name is empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("mssql: table %s has no columns", t.Name)
	}
	defs := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		defs = append(defs, srcmssql.Ident(c.Name)+" "+columnType(c))
	}
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL BEGIN CREATE TABLE %s (%s); END;",
		strings.ReplaceAll(t.Name, "'", "''"),
		tableIdent(t.Name),
		strings.Join(defs, ", "),
	), nil
}

func columnType(c storage.ColumnSpec) string {
	switch c.Logical {
	case storage.Integer:
		return "BIGINT"
	case storage.Real:
		return "FLOAT"
	case storage.Date:
		return "DATE"
	}
	if c.Length > 0 && c.Length <= 4000 {
		return fmt.Sprintf("NVARCHAR(%d)", c.Length)
	}
	return "NVARCHAR(MAX)"
}

// buildBulkInsertSQL builds a single INSERT ... VALUES statement for all rows.
func buildBulkInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(tableIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(srcmssql.Ident(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "@p%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}
	return b.String(), args
}
