// Package sas reads SAS7BDAT files through github.com/kshedden/datareader.
//
// Column metadata (names, labels, numeric or character type) is read before
// any record, so a file without observations still reports its fields.
package sas

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"datascan/internal/source"
)

// Kind is the registry name of this backend.
const Kind = "sas"

// ChunkSize is the number of records decoded per read.
const ChunkSize = 1000

// Extensions lists the file suffixes enumerated in a directory.
var Extensions = []string{".sas7bdat"}

func init() {
	source.Register(Kind, func(ctx context.Context, cfg source.Config) (source.Source, error) {
		return New(cfg)
	})
}

// chunkReader is the slice of a SAS decoder this package depends on.
// readChunk returns up to n records column-major, already stringified, and
// io.EOF once the file is exhausted.
type chunkReader interface {
	columns() []source.Column
	rowCount() int64
	readChunk(n int) ([][]string, error)
}

// Source enumerates SAS files under a path.
type Source struct {
	path string
	only []string
	open func(path string) (chunkReader, io.Closer, error)
}

// New validates cfg.Path.
func New(cfg source.Config) (*Source, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sas: missing path")
	}
	if _, err := os.Stat(cfg.Path); err != nil {
		return nil, fmt.Errorf("sas: stat %s: %w", cfg.Path, err)
	}
	return &Source{path: cfg.Path, only: cfg.Tables, open: openFile}, nil
}

func (s *Source) Kind() string { return Kind }

func (s *Source) Tables(ctx context.Context) ([]source.Table, error) {
	files, err := source.ListFiles(s.path, Extensions)
	if err != nil {
		return nil, fmt.Errorf("sas: %w", err)
	}
	return source.FileTables(files, s.only), nil
}

func (s *Source) Open(ctx context.Context, t source.Table, opt source.OpenOptions) (source.Rows, error) {
	loc := t.Location
	if loc == "" {
		loc = t.Name
	}
	cr, closer, err := s.open(loc)
	if err != nil {
		return nil, fmt.Errorf("sas: open %s: %w", loc, err)
	}
	return newRows(cr, closer, opt), nil
}

func (s *Source) Close() error { return nil }

// Rows buffers one decoded chunk at a time.
type Rows struct {
	cr      chunkReader
	closer  io.Closer
	cols    []source.Column
	limit   int
	emitted int
	chunk   [][]string
	pos     int
	width   int
	cur     []string
	err     error
	done    bool
}

func newRows(cr chunkReader, closer io.Closer, opt source.OpenOptions) *Rows {
	cols := cr.columns()
	return &Rows{
		cr:     cr,
		closer: closer,
		cols:   cols,
		limit:  opt.Limit,
		cur:    make([]string, len(cols)),
		done:   opt.ColumnsOnly,
	}
}

func (r *Rows) Columns() []source.Column { return r.cols }

func (r *Rows) RowCount() int64 { return r.cr.rowCount() }

func (r *Rows) Next() bool {
	if r.done || r.err != nil {
		return false
	}
	if r.limit > 0 && r.emitted >= r.limit {
		r.done = true
		return false
	}
	for r.pos >= r.width {
		n := ChunkSize
		if r.limit > 0 && r.limit-r.emitted < n {
			n = r.limit - r.emitted
		}
		chunk, err := r.cr.readChunk(n)
		if errors.Is(err, io.EOF) {
			r.done = true
			return false
		}
		if err != nil {
			r.err = fmt.Errorf("sas: read: %w", err)
			return false
		}
		r.chunk, r.pos, r.width = chunk, 0, chunkLen(chunk)
		if r.width == 0 {
			r.done = true
			return false
		}
	}
	for c := range r.cur {
		if c < len(r.chunk) && r.pos < len(r.chunk[c]) {
			r.cur[c] = r.chunk[c][r.pos]
		} else {
			r.cur[c] = ""
		}
	}
	r.pos++
	r.emitted++
	return true
}

func chunkLen(chunk [][]string) int {
	n := 0
	for _, col := range chunk {
		if len(col) > n {
			n = len(col)
		}
	}
	return n
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
