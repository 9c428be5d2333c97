package scan

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"datascan/internal/metrics"
	"datascan/internal/report"
	"datascan/internal/source"
	"datascan/internal/source/delimited"
	"datascan/internal/source/sqlite"
)

type fakeTable struct {
	name     string
	cols     []string
	rows     [][]string
	rowCount int64
	openErr  error
	readErr  error
	delay    time.Duration
}

type fakeSource struct {
	tables []fakeTable

	mu     sync.Mutex
	opened []source.OpenOptions
}

func (s *fakeSource) Tables(ctx context.Context) ([]source.Table, error) {
	out := make([]source.Table, len(s.tables))
	for i, t := range s.tables {
		out[i] = source.Table{Name: t.name, Location: strconv.Itoa(i)}
	}
	return out, nil
}

func (s *fakeSource) Open(ctx context.Context, t source.Table, opt source.OpenOptions) (source.Rows, error) {
	i, _ := strconv.Atoi(t.Location)
	ft := s.tables[i]
	s.mu.Lock()
	s.opened = append(s.opened, opt)
	s.mu.Unlock()
	if ft.delay > 0 {
		time.Sleep(ft.delay)
	}
	if ft.openErr != nil {
		return nil, ft.openErr
	}
	cols := make([]source.Column, len(ft.cols))
	for j, c := range ft.cols {
		cols[j] = source.Column{Name: c, DeclaredType: "VARCHAR"}
	}
	r := &fakeRows{cols: cols, rows: ft.rows, rowCount: ft.rowCount, readErr: ft.readErr, limit: opt.Limit}
	if opt.ColumnsOnly {
		r.rows = nil
	}
	return r, nil
}

func (s *fakeSource) Close() error { return nil }

type fakeRows struct {
	cols     []source.Column
	rows     [][]string
	rowCount int64
	readErr  error
	limit    int
	pos      int
	err      error
	closed   bool
}

func (r *fakeRows) Columns() []source.Column { return r.cols }
func (r *fakeRows) RowCount() int64          { return r.rowCount }

func (r *fakeRows) Next() bool {
	if r.limit > 0 && r.pos >= r.limit {
		return false
	}
	if r.pos >= len(r.rows) {
		r.err = r.readErr
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Values() []string { return r.rows[r.pos-1] }
func (r *fakeRows) Err() error       { return r.err }
func (r *fakeRows) Close() error {
	r.closed = true
	return nil
}

func numberedRows(n int) [][]string {
	out := make([][]string, n)
	for i := range out {
		out[i] = []string{strconv.Itoa(i + 1), "x"}
	}
	return out
}

type memSink struct {
	tables   []report.TableReport
	closed   bool
	writeErr error
}

func (m *memSink) WriteTable(ctx context.Context, t report.TableReport) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.tables = append(m.tables, t)
	return nil
}

func (m *memSink) Close() error {
	m.closed = true
	return nil
}

type countingMetrics struct {
	mu       sync.Mutex
	counters map[string]float64
}

func (c *countingMetrics) IncCounter(name string, v float64, l metrics.Labels) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counters == nil {
		c.counters = map[string]float64{}
	}
	c.counters[name+"|"+l["status"]+l["kind"]] += v
}
func (c *countingMetrics) ObserveHistogram(string, float64, metrics.Labels) {}
func (c *countingMetrics) Flush() error                                     { return nil }
func (c *countingMetrics) Close() error                                     { return nil }

func testParams() Parameters {
	p := DefaultParameters()
	p.Seed = 42
	return p
}

func TestScanSampleCap(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		sampleSize  int
		rows        int
		wantChecked int64
		wantStopped bool
		wantLimit   int
	}{
		{name: "more_rows_than_sample", sampleSize: 10, rows: 25, wantChecked: 10, wantStopped: true, wantLimit: 11},
		{name: "exactly_sample", sampleSize: 10, rows: 10, wantChecked: 10, wantStopped: false, wantLimit: 11},
		{name: "fewer_rows", sampleSize: 10, rows: 3, wantChecked: 3, wantStopped: false, wantLimit: 11},
		{name: "all_rows", sampleSize: -1, rows: 25, wantChecked: 25, wantStopped: false, wantLimit: 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			src := &fakeSource{tables: []fakeTable{{name: "t", cols: []string{"id", "v"}, rows: numberedRows(tt.rows), rowCount: -1}}}
			p := testParams()
			p.SampleSize = tt.sampleSize

			res, err := New(src, p).Scan(context.Background())
			if err != nil {
				t.Fatalf("Scan: %v", err)
			}
			if len(res.Tables) != 1 {
				t.Fatalf("tables=%d, want 1", len(res.Tables))
			}
			tr := res.Tables[0]
			if tr.RowsChecked != tt.wantChecked || tr.StoppedEarly != tt.wantStopped {
				t.Fatalf("checked=%d stopped=%v, want %d %v", tr.RowsChecked, tr.StoppedEarly, tt.wantChecked, tt.wantStopped)
			}
			if got := tr.Fields[0].Processed(); got != tt.wantChecked {
				t.Fatalf("processed=%d, want %d", got, tt.wantChecked)
			}
			if src.opened[0].Limit != tt.wantLimit {
				t.Fatalf("limit=%d, want %d", src.opened[0].Limit, tt.wantLimit)
			}
			wantCount := tt.wantChecked
			if tt.wantStopped {
				wantCount = -1
			}
			if tr.RowCount != wantCount || tr.Fields[0].RowCount() != wantCount {
				t.Fatalf("rowCount=%d field=%d, want %d", tr.RowCount, tr.Fields[0].RowCount(), wantCount)
			}
		})
	}
}

func TestScanKnownRowCountKept(t *testing.T) {
	t.Parallel()

	src := &fakeSource{tables: []fakeTable{{name: "t", cols: []string{"id", "v"}, rows: numberedRows(5), rowCount: 500}}}
	res, err := New(src, testParams()).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if got := res.Tables[0].Fields[1].RowCount(); got != 500 {
		t.Fatalf("rowCount=%d, want 500", got)
	}
}

func TestScanColumnsOnly(t *testing.T) {
	t.Parallel()

	src := &fakeSource{tables: []fakeTable{{name: "t", cols: []string{"id", "v"}, rows: numberedRows(5), rowCount: 5}}}
	p := testParams()
	p.ScanValues = false

	sink := &memSink{}
	sum, err := New(src, p).Run(context.Background(), sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !src.opened[0].ColumnsOnly {
		t.Fatalf("source opened without ColumnsOnly")
	}
	if sum.Tables != 1 || sum.Fields != 2 {
		t.Fatalf("summary=%+v", sum)
	}
	f := sink.tables[0].Fields[0]
	if f.Type != "VARCHAR" || f.Processed != 0 || len(f.Values) != 0 {
		t.Fatalf("field=%+v, want declared type only", f)
	}
}

func TestScanColumnsOnlySQLiteKeepsRowCount(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "count.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for _, q := range []string{
		`CREATE TABLE t (id INTEGER, v TEXT)`,
		`INSERT INTO t VALUES (1,'a'),(2,'b'),(3,'c'),(4,'d'),(5,'e'),(6,'f'),(7,'g')`,
	} {
		if _, err := db.Exec(q); err != nil {
			t.Fatalf("exec %q: %v", q, err)
		}
	}
	db.Close()

	ctx := context.Background()
	src, err := sqlite.New(ctx, source.Config{Path: path})
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	defer src.Close()

	p := testParams()
	p.ScanValues = false
	res, err := New(src, p).Scan(ctx)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	tr := res.Tables[0]
	if tr.RowCount != 7 || tr.RowsChecked != 0 {
		t.Fatalf("rowCount=%d rowsChecked=%d, want 7 and 0", tr.RowCount, tr.RowsChecked)
	}
	for _, f := range tr.Fields {
		if f.RowCount() != 7 {
			t.Fatalf("field %s rowCount=%d, want 7", f.Name(), f.RowCount())
		}
	}
}

func TestScanRaggedDelimitedRowSkipped(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	body := "a,b,c\n1,2,3\n4,5\n6,7,8\n"
	if err := os.WriteFile(filepath.Join(dir, "data.csv"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	src, err := delimited.New(source.Config{Path: dir})
	if err != nil {
		t.Fatalf("delimited.New: %v", err)
	}

	res, err := New(src, testParams()).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	tr := res.Tables[0]
	if tr.Skipped != 1 || tr.RowsChecked != 2 {
		t.Fatalf("skipped=%d checked=%d, want 1 2", tr.Skipped, tr.RowsChecked)
	}
	for _, f := range tr.Fields {
		if f.Processed() != 2 {
			t.Fatalf("field %s processed=%d, want 2", f.Name(), f.Processed())
		}
	}
	if got := tr.Fields[0].ValueCount("4"); got != 0 {
		t.Fatalf("value from ragged row counted %d times", got)
	}
}

func TestRunDelimitedMinCellFloor(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var b strings.Builder
	b.WriteString("code\n")
	for i := 0; i < 12; i++ {
		b.WriteString("common\n")
	}
	for i := 0; i < 7; i++ {
		b.WriteString("rare\n")
	}
	if err := os.WriteFile(filepath.Join(dir, "codes.csv"), []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	src, err := delimited.New(source.Config{Path: dir})
	if err != nil {
		t.Fatalf("delimited.New: %v", err)
	}

	sink := &memSink{}
	if _, err := New(src, testParams()).Run(context.Background(), sink); err != nil {
		t.Fatalf("Run: %v", err)
	}
	vals := sink.tables[0].Fields[0].ReportedValues()
	if len(vals) != 1 || vals[0].Value != "common" || vals[0].Count != 12 {
		t.Fatalf("values=%+v, want only common=12", vals)
	}
}

func TestScanFailedTableExcluded(t *testing.T) {
	t.Parallel()

	src := &fakeSource{tables: []fakeTable{
		{name: "good", cols: []string{"id", "v"}, rows: numberedRows(3), rowCount: 3},
		{name: "broken", openErr: errors.New("permission denied")},
		{name: "torn", cols: []string{"id", "v"}, rows: numberedRows(3), readErr: errors.New("connection reset")},
		{name: "last", cols: []string{"id", "v"}, rows: numberedRows(2), rowCount: 2},
	}}
	m := &countingMetrics{}

	res, err := New(src, testParams(), WithMetrics(m)).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Tables) != 2 || res.Tables[0].Table.Name != "good" || res.Tables[1].Table.Name != "last" {
		t.Fatalf("tables=%v", tableNames(res.Tables))
	}
	if len(res.Failures) != 2 || res.Failures[0].Table != "broken" || res.Failures[1].Table != "torn" {
		t.Fatalf("failures=%+v", res.Failures)
	}
	if !strings.Contains(res.Failures[0].Error(), "permission denied") {
		t.Fatalf("failure err=%v", res.Failures[0])
	}
	if got := m.counters[metrics.TablesTotal+"|failed"]; got != 2 {
		t.Fatalf("failed counter=%v, want 2", got)
	}
	if got := m.counters[metrics.RowsTotal+"|scanned"]; got != 5 {
		t.Fatalf("rows counter=%v, want 5", got)
	}
}

func TestScanDropsTablesWithoutColumns(t *testing.T) {
	t.Parallel()

	src := &fakeSource{tables: []fakeTable{
		{name: "empty"},
		{name: "headeronly", cols: []string{"a"}},
	}}
	sink := &memSink{}
	sum, err := New(src, testParams()).Run(context.Background(), sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Tables != 1 || len(sink.tables) != 1 || sink.tables[0].Name != "headeronly" {
		t.Fatalf("tables=%+v", sink.tables)
	}
	if f := sink.tables[0].Fields[0]; f.Type != "Empty" || f.Processed != 0 {
		t.Fatalf("field=%+v", f)
	}
}

func TestScanWorkersKeepOrder(t *testing.T) {
	t.Parallel()

	var tables []fakeTable
	for i := 0; i < 6; i++ {
		tables = append(tables, fakeTable{
			name:  "t" + strconv.Itoa(i),
			cols:  []string{"id", "v"},
			rows:  numberedRows(i + 1),
			delay: time.Duration(6-i) * 5 * time.Millisecond,
		})
	}
	src := &fakeSource{tables: tables}
	p := testParams()
	p.Workers = 3

	sink := &memSink{}
	sum, err := New(src, p).Run(context.Background(), sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Tables != 6 {
		t.Fatalf("summary tables=%d, want 6", sum.Tables)
	}
	for i, tr := range sink.tables {
		if want := "t" + strconv.Itoa(i); tr.Name != want {
			t.Fatalf("table %d=%s, want %s", i, tr.Name, want)
		}
		if tr.RowsChecked != int64(i+1) {
			t.Fatalf("table %s checked=%d, want %d", tr.Name, tr.RowsChecked, i+1)
		}
	}
	if !sink.closed {
		t.Fatalf("sink not closed")
	}
}

func TestScanInterruptedBeforeTable(t *testing.T) {
	t.Parallel()

	src := &fakeSource{tables: []fakeTable{
		{name: "a", cols: []string{"id", "v"}, rows: numberedRows(3)},
		{name: "b", cols: []string{"id", "v"}, rows: numberedRows(3)},
	}}
	var calls atomic.Int32
	stopAfterFirst := InterrupterFunc(func() error {
		// One check before enumeration, one before table a.
		if calls.Add(1) > 2 {
			return errors.New("user pressed stop")
		}
		return nil
	})

	sink := &memSink{}
	_, err := New(src, testParams(), WithInterrupter(stopAfterFirst)).Run(context.Background(), sink)
	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("err=%v, want ErrInterrupted", err)
	}
	if len(sink.tables) != 1 || sink.tables[0].Name != "a" {
		t.Fatalf("written=%+v, want only table a", sink.tables)
	}
	if !sink.closed {
		t.Fatalf("sink not closed after interruption")
	}
}

func TestScanInterruptedMidTableDiscardsTable(t *testing.T) {
	t.Parallel()

	src := &fakeSource{tables: []fakeTable{{name: "big", cols: []string{"id", "v"}, rows: numberedRows(50)}}}
	p := testParams()
	p.InterruptEvery = 10

	var calls atomic.Int32
	intr := InterrupterFunc(func() error {
		// Enumeration and table start pass; the first in-table check stops.
		if calls.Add(1) > 2 {
			return errors.New("stop")
		}
		return nil
	})

	res, err := New(src, p, WithInterrupter(intr)).Scan(context.Background())
	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("err=%v, want ErrInterrupted", err)
	}
	if res != nil {
		t.Fatalf("partial result returned: %+v", res)
	}
}

func TestScanCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &fakeSource{tables: []fakeTable{{name: "a", cols: []string{"id"}, rows: numberedRows(1)}}}
	_, err := New(src, testParams()).Scan(ctx)
	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("err=%v, want ErrInterrupted", err)
	}
}

func TestRunSinkErrorIsFatal(t *testing.T) {
	t.Parallel()

	src := &fakeSource{tables: []fakeTable{
		{name: "a", cols: []string{"id", "v"}, rows: numberedRows(3)},
		{name: "b", cols: []string{"id", "v"}, rows: numberedRows(3)},
	}}
	sink := &memSink{writeErr: errors.New("disk full")}
	_, err := New(src, testParams()).Run(context.Background(), sink)
	if err == nil || !strings.Contains(err.Error(), "report sink: disk full") {
		t.Fatalf("err=%v, want report sink error", err)
	}
	if errors.Is(err, ErrInterrupted) {
		t.Fatalf("sink failure reported as interruption: %v", err)
	}
}

func TestFieldSeedReproducible(t *testing.T) {
	t.Parallel()

	rows := make([][]string, 2000)
	for i := range rows {
		rows[i] = []string{strconv.Itoa(i)}
	}
	run := func() float64 {
		src := &fakeSource{tables: []fakeTable{{name: "n", cols: []string{"x"}, rows: rows}}}
		p := testParams()
		p.CalculateNumericStats = true
		p.NumericStatsSamplerSize = 50
		res, err := New(src, p).Scan(context.Background())
		if err != nil {
			t.Fatalf("Scan: %v", err)
		}
		st, ok := res.Tables[0].Fields[0].NumericStats()
		if !ok {
			t.Fatalf("no numeric stats")
		}
		return st.Median
	}
	if a, b := run(), run(); a != b {
		t.Fatalf("median %v != %v with a fixed seed", a, b)
	}
}

func TestParametersValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Parameters)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Parameters) {}},
		{name: "all_rows", mutate: func(p *Parameters) { p.SampleSize = -1 }},
		{name: "bad_sample", mutate: func(p *Parameters) { p.SampleSize = -2 }, wantErr: true},
		{name: "bad_max_values", mutate: func(p *Parameters) { p.MaxValues = 0 }, wantErr: true},
		{name: "bad_min_cell", mutate: func(p *Parameters) { p.MinCellCount = -1 }, wantErr: true},
		{name: "bad_sampler", mutate: func(p *Parameters) {
			p.CalculateNumericStats = true
			p.NumericStatsSamplerSize = 0
		}, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := DefaultParameters()
			tt.mutate(&p)
			if err := p.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("Validate()=%v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMinCellCountFor(t *testing.T) {
	t.Parallel()

	p := DefaultParameters()
	if got := p.MinCellCountFor(source.KindDelimited); got != 10 {
		t.Fatalf("csv floor=%d, want 10", got)
	}
	if got := p.MinCellCountFor("postgres"); got != 5 {
		t.Fatalf("db floor=%d, want 5", got)
	}
	p.MinCellCount = 20
	if got := p.MinCellCountFor(source.KindDelimited); got != 20 {
		t.Fatalf("csv floor=%d, want 20", got)
	}
}

func tableNames(ts []*TableResult) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Table.Name
	}
	return out
}
