package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"datascan/internal/source/sqldb"
	"datascan/internal/storage"
)

// Kind is the registry name of this backend.
const Kind = "sqlite"

// maxParams keeps each INSERT under SQLite's historical host-parameter limit.
const maxParams = 999

// Writer implements storage.Writer for SQLite.
//
// Key design points vs Postgres:
//   - SQLite columns only carry type affinity, so dates are stored as
//     "2006-01-02" text for reliable round trips and easy debugging.
//   - Each InsertRows call runs in one transaction; without it every
//     statement pays for its own journal sync.
type Writer struct {
	db *sql.DB
}

func init() {
	storage.Register(Kind, func(ctx context.Context, cfg storage.Config) (storage.Writer, error) {
		return New(ctx, cfg)
	})
}

// New opens the database named by cfg.DSN, or cfg.Path when DSN is empty.
func New(ctx context.Context, cfg storage.Config) (*Writer, error) {
	dsn := cfg.DSN
	if dsn == "" {
		dsn = cfg.Path
	}
	if dsn == "" {
		return nil, fmt.Errorf("sqlite: missing dsn or path")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Writer{db: db}, nil
}

// DB exposes the underlying handle, mainly for tests.
func (w *Writer) DB() *sql.DB { return w.db }

func (w *Writer) Close() error { return w.db.Close() }

// EnsureTable runs CREATE TABLE IF NOT EXISTS for t.
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

// InsertRows converts rows and loads them with multi-row INSERT statements in
// a single transaction.
func (w *Writer) InsertRows(ctx context.Context, t storage.TableSpec, rows [][]string) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	vals, err := storage.ConvertRows(t, rows)
	if err != nil {
		return 0, fmt.Errorf("sqlite: %s: %w", t.Name, err)
	}
	for _, r := range vals {
		for j, v := range r {
			if d, ok := v.(time.Time); ok {
				r[j] = d.Format("2006-01-02")
			}
		}
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	perBatch := max(1, maxParams/max(1, len(t.Columns)))
	var n int64
	for _, b := range storage.Batches(len(vals), perBatch) {
		q, args := buildInsertSQL(t.Name, t.ColumnNames(), vals[b[0]:b[1]])
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return n, fmt.Errorf("insert into %s: %w", t.Name, err)
		}
		affected, _ := res.RowsAffected()
		n += affected
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("insert into %s: commit: %w", t.Name, err)
	}
	return n, nil
}

func buildCreateSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("table name is empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("table %s has no columns", t.Name)
	}
	parts := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		parts = append(parts, sqldb.QuoteDouble(c.Name)+" "+columnType(c))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", sqldb.QuoteDouble(t.Name), strings.Join(parts, ", ")), nil
}

func columnType(c storage.ColumnSpec) string {
	switch c.Logical {
	case storage.Integer:
		return "INTEGER"
	case storage.Real:
		return "REAL"
	default:
		return "TEXT"
	}
}

// buildInsertSQL constructs a single INSERT statement and its args.
//
// Constraints:
//   - every row must have the same length as columns.
func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqldb.QuoteDouble(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqldb.QuoteDouble(c))
	}
	b.WriteString(") VALUES ")

	row := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
	args := make([]any, 0, len(rows)*len(columns))
	for i, r := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(row)
		args = append(args, r...)
	}
	return b.String(), args
}
