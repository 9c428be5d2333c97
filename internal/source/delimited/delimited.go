// Package delimited reads delimited text files (CSV, TSV, ...) as tables.
//
// Each file is one table. The first record is the header and defines the
// columns. Records whose field count differs from the header are skipped and
// counted rather than padded.
package delimited

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"datascan/internal/source"
)

// Kind is the registry name of this backend.
const Kind = source.KindDelimited

// DefaultExtensions are used when a directory is scanned without an explicit
// extension filter.
var DefaultExtensions = []string{".csv", ".tsv", ".txt"}

func init() {
	source.Register(Kind, func(ctx context.Context, cfg source.Config) (source.Source, error) {
		return New(cfg)
	})
}

// Source enumerates delimited files under a path.
type Source struct {
	path      string
	delimiter rune
	charset   string
	exts      []string
	only      []string
}

// New validates cfg and returns a Source. cfg.Path may name a single file or a
// directory.
func New(cfg source.Config) (*Source, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("delimited: missing path")
	}
	if _, err := os.Stat(cfg.Path); err != nil {
		return nil, fmt.Errorf("delimited: stat %s: %w", cfg.Path, err)
	}
	if err := source.CheckCharset(cfg.Charset); err != nil {
		return nil, fmt.Errorf("delimited: %w", err)
	}

	s := &Source{
		path:      cfg.Path,
		delimiter: cfg.Delimiter,
		charset:   cfg.Charset,
		exts:      cfg.Extensions,
		only:      cfg.Tables,
	}
	if s.delimiter == 0 {
		s.delimiter = ','
	}
	if len(s.exts) == 0 {
		s.exts = DefaultExtensions
	}
	return s, nil
}

func (s *Source) Tables(ctx context.Context) ([]source.Table, error) {
	files, err := source.ListFiles(s.path, s.exts)
	if err != nil {
		return nil, fmt.Errorf("delimited: %w", err)
	}
	return source.FileTables(files, s.only), nil
}

func (s *Source) Open(ctx context.Context, t source.Table, opt source.OpenOptions) (source.Rows, error) {
	loc := t.Location
	if loc == "" {
		loc = t.Name
	}
	f, err := os.Open(loc)
	if err != nil {
		return nil, fmt.Errorf("delimited: open %s: %w", loc, err)
	}
	r, err := source.DecodeReader(f, s.charset)
	if err != nil {
		f.Close()
		return nil, err
	}
	rows, err := newRows(r, f, s.delimiter, opt)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("delimited: %s: %w", loc, err)
	}
	return rows, nil
}

func (s *Source) Close() error { return nil }

func (s *Source) Kind() string { return Kind }

// Rows iterates the records of one file.
type Rows struct {
	cr      *csv.Reader
	closer  io.Closer
	cols    []source.Column
	width   int
	limit   int
	emitted int
	skipped int64
	cur     []string
	err     error
	done    bool
}

// NewRows reads the header from r and returns an iterator over the remaining
// records. It is exported for callers that already hold a stream.
func NewRows(r io.Reader, delimiter rune, opt source.OpenOptions) (*Rows, error) {
	dr, err := source.DecodeReader(r, "")
	if err != nil {
		return nil, err
	}
	return newRows(dr, nil, delimiter, opt)
}

func newRows(r io.Reader, closer io.Closer, delimiter rune, opt source.OpenOptions) (*Rows, error) {
	cr := csv.NewReader(r)
	cr.Comma = delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	rows := &Rows{cr: cr, closer: closer, limit: opt.Limit, done: opt.ColumnsOnly}

	hdr, err := cr.Read()
	if errors.Is(err, io.EOF) {
		rows.done = true
		return rows, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	rows.cols = make([]source.Column, len(hdr))
	for i, h := range hdr {
		h = strings.TrimSpace(h)
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		rows.cols[i] = source.Column{Name: h}
	}
	rows.width = len(hdr)
	return rows, nil
}

func (r *Rows) Columns() []source.Column { return r.cols }

// RowCount is unknown for text files.
func (r *Rows) RowCount() int64 { return -1 }

// Skipped reports how many records were dropped for a field-count mismatch
// or a parse error.
func (r *Rows) Skipped() int64 { return r.skipped }

func (r *Rows) Next() bool {
	if r.done || r.err != nil {
		return false
	}
	if r.limit > 0 && r.emitted >= r.limit {
		r.done = true
		return false
	}
	for {
		rec, err := r.cr.Read()
		if errors.Is(err, io.EOF) {
			r.done = true
			return false
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				r.skipped++
				continue
			}
			r.err = fmt.Errorf("csv read: %w", err)
			return false
		}
		if len(rec) != r.width {
			r.skipped++
			continue
		}
		r.cur = rec
		r.emitted++
		return true
	}
}

func (r *Rows) Values() []string { return r.cur }

func (r *Rows) Err() error { return r.err }

func (r *Rows) Close() error {
	r.done = true
	if r.closer == nil {
		return nil
	}
	c := r.closer
	r.closer = nil
	return c.Close()
}
