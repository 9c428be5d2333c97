// Package scan drives the profiling of every table a source exposes.
//
// A Scanner opens each table, feeds every column's values to one
// profile.Field, and collects the finalized profilers. Run additionally hands
// each finished table to a report.Sink in enumeration order, releasing the
// table's profilers once the sink has accepted it.
//
// Failure handling:
//   - A table that cannot be opened or read is logged and left out; the scan
//     continues with the next table (see Result.Failures).
//   - An interruption stops the scan with an error matching ErrInterrupted.
//     A table interrupted midway is discarded, never reported.
//   - A sink error is fatal to the whole run.
package scan

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"datascan/internal/metrics"
	"datascan/internal/profile"
	"datascan/internal/report"
	"datascan/internal/source"
)

// Logger is the minimal logging interface used by the scanner.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// TableError records a table left out of the result.
type TableError struct {
	Table string
	Err   error
}

func (e *TableError) Error() string { return fmt.Sprintf("table %s: %v", e.Table, e.Err) }

func (e *TableError) Unwrap() error { return e.Err }

// TableResult holds the finalized profilers of one table.
type TableResult struct {
	Table        source.Table
	RowCount     int64
	RowsChecked  int64
	Skipped      int64
	StoppedEarly bool
	Fields       []*profile.Field
}

// Header returns the report header of the table, without fields.
func (r *TableResult) Header() report.TableReport {
	return report.TableReport{
		Name:         r.Table.Name,
		Comment:      r.Table.Comment,
		Location:     r.Table.Location,
		RowCount:     r.RowCount,
		RowsChecked:  r.RowsChecked,
		SkippedRows:  r.Skipped,
		StoppedEarly: r.StoppedEarly,
	}
}

// Result is the outcome of Scan.
type Result struct {
	// Tables are in enumeration order. Tables without fields are dropped.
	Tables   []*TableResult
	Failures []*TableError
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithLogger sets the progress logger. A nil logger discards output.
func WithLogger(l Logger) Option {
	return func(s *Scanner) { s.logger = l }
}

// WithMetrics sets the metrics backend.
func WithMetrics(b metrics.Backend) Option {
	return func(s *Scanner) {
		if b != nil {
			s.metrics = b
		}
	}
}

// WithInterrupter adds an interruption check on top of context cancellation.
func WithInterrupter(i Interrupter) Option {
	return func(s *Scanner) { s.interrupter = i }
}

// Scanner profiles the tables of one source.
type Scanner struct {
	src         source.Source
	kind        string
	params      Parameters
	logger      Logger
	metrics     metrics.Backend
	interrupter Interrupter
	seed        int64
}

// New returns a Scanner over src. p is used as given; call p.Validate first
// when it comes from user input.
func New(src source.Source, p Parameters, opts ...Option) *Scanner {
	s := &Scanner{
		src:     src,
		kind:    source.KindOf(src),
		params:  p,
		metrics: metrics.Nop{},
	}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = log.New(discardWriter{}, "", 0)
	}
	if s.params.Workers < 1 {
		s.params.Workers = 1
	}
	if s.params.InterruptEvery < 1 {
		s.params.InterruptEvery = 1000
	}
	s.seed = s.params.Seed
	if s.seed == 0 {
		s.seed = time.Now().UnixNano()
	}
	return s
}

func (s *Scanner) logf(format string, v ...any) { s.logger.Printf(format, v...) }

// Scan profiles every table of the source.
//
// Errors:
//   - Returns an error matching ErrInterrupted when ctx is cancelled or the
//     interrupter fires; no partial result is returned.
//   - Returns an error when the source cannot enumerate its tables.
//   - Per-table failures are not errors; see Result.Failures.
func (s *Scanner) Scan(ctx context.Context) (*Result, error) {
	var out *Result
	err := s.scan(ctx, func(_ context.Context, tr *TableResult) error {
		if out == nil {
			out = &Result{}
		}
		out.Tables = append(out.Tables, tr)
		return nil
	}, func(te *TableError) {
		if out == nil {
			out = &Result{}
		}
		out.Failures = append(out.Failures, te)
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = &Result{}
	}
	return out, nil
}

// Run scans and writes each table to sink as soon as it and every table
// before it are finished, then closes sink.
//
// Errors:
//   - Sink failures are returned wrapped with "report sink" and stop the scan.
//   - Interruption returns an error matching ErrInterrupted; sink is still
//     closed so the tables already written are kept.
func (s *Scanner) Run(ctx context.Context, sink report.Sink) (*report.Summary, error) {
	sum := &report.Summary{}
	bo := s.params.buildOptions(s.kind)

	err := s.scan(ctx, func(ctx context.Context, tr *TableResult) error {
		rep := report.BuildTable(tr.Header(), tr.Fields, bo)
		if err := sink.WriteTable(ctx, rep); err != nil {
			return &sinkError{err: err}
		}
		tr.Fields = nil
		sum.Tables++
		sum.Fields += len(rep.Fields)
		s.logf("stage=report table=%s fields=%d msg=%q", tr.Table.Name, len(rep.Fields), "generated table "+tr.Table.Name)
		return nil
	}, func(te *TableError) {
		sum.Failed = append(sum.Failed, te.Table)
	})

	cerr := sink.Close()
	var se *sinkError
	switch {
	case errors.As(err, &se):
		return sum, fmt.Errorf("report sink: %w", se.err)
	case err != nil:
		return sum, err
	case cerr != nil:
		return sum, fmt.Errorf("report sink: %w", cerr)
	}
	return sum, nil
}

type sinkError struct{ err error }

func (e *sinkError) Error() string { return e.err.Error() }

// scan enumerates tables, profiles them with up to Workers goroutines and
// calls emit in enumeration order. Tables without fields are not emitted.
func (s *Scanner) scan(ctx context.Context, emit func(context.Context, *TableResult) error, fail func(*TableError)) error {

	if err := s.checkInterrupted(ctx); err != nil {
		return err
	}
	tables, err := s.src.Tables(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return asInterrupted(ctx.Err())
		}
		return fmt.Errorf("scan: list tables: %w", err)
	}
	s.logf("stage=scan tables=%d kind=%s workers=%d", len(tables), s.kind, s.params.Workers)

	type slot struct {
		done chan struct{}
		res  *TableResult
		terr *TableError
	}
	slots := make([]slot, len(tables))
	for i := range slots {
		slots[i].done = make(chan struct{})
	}

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(wctx)
	g.SetLimit(s.params.Workers)

	// Emission runs alongside the workers so each table is released as soon
	// as everything before it has been written. Tables that finished before an
	// interruption are still written.
	ectx := context.WithoutCancel(ctx)
	emitted := make(chan error, 1)
	go func() {
		for i := range slots {
			select {
			case <-slots[i].done:
			case <-gctx.Done():
				select {
				case <-slots[i].done:
				default:
					emitted <- nil
					return
				}
			}
			if te := slots[i].terr; te != nil {
				fail(te)
				continue
			}
			res := slots[i].res
			if res == nil || len(res.Fields) == 0 {
				continue
			}
			if err := emit(ectx, res); err != nil {
				cancel()
				emitted <- err
				return
			}
			slots[i].res = nil
		}
		emitted <- nil
	}()

	for i, t := range tables {
		i, t := i, t
		g.Go(func() error {
			defer close(slots[i].done)
			res, err := s.scanTable(gctx, t, i)
			var te *TableError
			switch {
			case errors.As(err, &te):
				s.logf("stage=scan table=%s status=failed err=%v", t.Name, te.Err)
				s.metrics.IncCounter(metrics.TablesTotal, 1, metrics.Labels{"status": "failed"})
				slots[i].terr = te
				return nil
			case err != nil:
				s.metrics.IncCounter(metrics.TablesTotal, 1, metrics.Labels{"status": "aborted"})
				return err
			}
			slots[i].res = res
			return nil
		})
	}

	werr := g.Wait()
	eerr := <-emitted
	switch {
	case eerr != nil:
		return eerr
	case werr != nil:
		return werr
	case ctx.Err() != nil:
		return asInterrupted(ctx.Err())
	}
	return nil
}

func (s *Scanner) checkInterrupted(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return asInterrupted(err)
	}
	if s.interrupter != nil {
		return asInterrupted(s.interrupter.CheckWasInterrupted())
	}
	return nil
}

// scanTable profiles one table. It returns a *TableError for resource
// failures and an ErrInterrupted error when the scan must stop.
func (s *Scanner) scanTable(ctx context.Context, t source.Table, index int) (*TableResult, error) {
	p := s.params

	if err := s.checkInterrupted(ctx); err != nil {
		return nil, err
	}
	s.logf("stage=scan table=%s msg=%q", t.Name, "scanning table "+t.Name)
	start := time.Now()

	opt := source.OpenOptions{ColumnsOnly: !p.ScanValues}
	if p.ScanValues && p.SampleSize >= 0 {
		// One row beyond the cap tells us whether we stopped early.
		opt.Limit = p.SampleSize + 1
	}

	rows, err := s.src.Open(ctx, t, opt)
	if err != nil {
		return nil, s.tableErr(ctx, t, fmt.Errorf("open: %w", err))
	}
	defer rows.Close()

	res := &TableResult{Table: t, RowCount: rows.RowCount()}
	cols := rows.Columns()
	if len(cols) == 0 {
		s.logf("stage=scan table=%s msg=%q", t.Name, "no columns, skipping")
		return res, nil
	}

	popts := p.profileOptions()
	res.Fields = make([]*profile.Field, len(cols))
	for i, c := range cols {
		o := popts
		o.Rand = rand.New(rand.NewSource(s.fieldSeed(t.Name, index, i)))
		f := profile.NewField(c.Name, o)
		f.SetLabel(c.Label)
		f.SetDeclaredType(c.DeclaredType)
		res.Fields[i] = f
	}

	if p.ScanValues {
		for rows.Next() {
			if p.SampleSize >= 0 && res.RowsChecked >= int64(p.SampleSize) {
				res.StoppedEarly = true
				s.logf("stage=scan table=%s rows=%d msg=%q", t.Name, res.RowsChecked, "stopped early")
				break
			}
			if res.RowsChecked > 0 && res.RowsChecked%int64(p.InterruptEvery) == 0 {
				if err := s.checkInterrupted(ctx); err != nil {
					return nil, err
				}
			}
			vals := rows.Values()
			for i, f := range res.Fields {
				v := ""
				if i < len(vals) {
					v = vals[i]
				}
				f.ProcessValue(v)
			}
			res.RowsChecked++
		}
		if err := rows.Err(); err != nil {
			return nil, s.tableErr(ctx, t, fmt.Errorf("read: %w", err))
		}
	}

	if sk, ok := rows.(source.Skipper); ok {
		res.Skipped = sk.Skipped()
	}
	if res.Skipped > 0 {
		s.logf("stage=scan table=%s skipped=%d msg=%q", t.Name, res.Skipped, "rows with a mismatched field count were skipped")
	}
	if res.RowCount < 0 && p.ScanValues && !res.StoppedEarly {
		res.RowCount = res.RowsChecked
	}
	for _, f := range res.Fields {
		f.SetRowCount(res.RowCount)
		f.Trim()
	}

	elapsed := time.Since(start)
	s.metrics.IncCounter(metrics.TablesTotal, 1, metrics.Labels{"status": "ok"})
	s.metrics.IncCounter(metrics.RowsTotal, float64(res.RowsChecked), metrics.Labels{"kind": "scanned"})
	s.metrics.IncCounter(metrics.RowsTotal, float64(res.Skipped), metrics.Labels{"kind": "skipped"})
	s.metrics.ObserveHistogram(metrics.TableDuration, elapsed.Seconds(), metrics.Labels{"status": "ok"})
	s.logf("stage=scan table=%s rows=%d fields=%d duration=%s", t.Name, res.RowsChecked, len(res.Fields), elapsed.Truncate(time.Millisecond))
	return res, nil
}

// tableErr classifies err: failures caused by cancellation become
// interruptions, anything else is a per-table failure.
func (s *Scanner) tableErr(ctx context.Context, t source.Table, err error) error {
	if ctx.Err() != nil {
		return asInterrupted(ctx.Err())
	}
	return &TableError{Table: t.Name, Err: err}
}

// fieldSeed derives a per-field seed so reservoirs are independent but
// reproducible for a fixed Parameters.Seed.
func (s *Scanner) fieldSeed(table string, tableIndex, col int) int64 {
	h := fnv.New64a()
	h.Write([]byte(table))
	return s.seed ^ int64(h.Sum64()) ^ int64(tableIndex)<<32 ^ int64(col)
}

// NewScanID returns an identifier for one scan run.
func NewScanID() string { return uuid.NewString() }

type discardWriter struct{}

func (discardWriter) Write(p []byte) (n int, err error) { return len(p), nil }
