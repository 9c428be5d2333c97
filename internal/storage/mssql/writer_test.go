package mssql

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"datascan/internal/storage"
)

type fakeResult int64

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return int64(r), nil }

type fakeDB struct {
	queries []string
	argc    []int
}

func (f *fakeDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	f.queries = append(f.queries, query)
	f.argc = append(f.argc, len(args))
	return fakeResult(strings.Count(query, "(@p")), nil
}

func (f *fakeDB) Close() error { return nil }

func TestBuildCreateSQL(t *testing.T) {
	t.Parallel()

	spec := storage.TableSpec{Name: "dbo.persons", Columns: []storage.ColumnSpec{
		{Name: "id", Logical: storage.Integer},
		{Name: "w", Logical: storage.Real},
		{Name: "born", Logical: storage.Date},
		{Name: "city", Logical: storage.Text, Length: 40},
		{Name: "notes", Logical: storage.Text},
	}}
	got, err := buildCreateSQL(spec)
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}
	want := "IF OBJECT_ID(N'dbo.persons', N'U') IS NULL BEGIN CREATE TABLE [dbo].[persons] " +
		"([id] BIGINT, [w] FLOAT, [born] DATE, [city] NVARCHAR(40), [notes] NVARCHAR(MAX)); END;"
	if got != want {
		t.Fatalf("got  %s\nwant %s", got, want)
	}
}

func TestBuildBulkInsertSQL(t *testing.T) {
	t.Parallel()

	q, args := buildBulkInsertSQL("persons", []string{"a", "b"}, [][]any{{1, "x"}, {2, nil}})
	if q != "INSERT INTO [persons] ([a], [b]) VALUES (@p1, @p2), (@p3, @p4)" {
		t.Fatalf("q=%s", q)
	}
	if len(args) != 4 || args[3] != nil {
		t.Fatalf("args=%v", args)
	}
}

func TestInsertRowsBatches(t *testing.T) {
	t.Parallel()

	db := &fakeDB{}
	w := &Writer{db: db}
	spec := storage.TableSpec{Name: "t", Columns: []storage.ColumnSpec{{Name: "id", Logical: storage.Integer}}}
	rows := make([][]string, 2500)
	for i := range rows {
		rows[i] = []string{"1"}
	}
	n, err := w.InsertRows(context.Background(), spec, rows)
	if err != nil {
		t.Fatalf("InsertRows: %v", err)
	}
	if n != 2500 {
		t.Fatalf("n=%d, want 2500", n)
	}
	if len(db.queries) != 3 || db.argc[0] != 1000 || db.argc[2] != 500 {
		t.Fatalf("batches=%d argc=%v", len(db.queries), db.argc)
	}
}

func TestNewRequiresDSN(t *testing.T) {
	t.Parallel()
	if _, err := New(context.Background(), storage.Config{}); err == nil {
		t.Fatalf("expected error for missing dsn")
	}
}
