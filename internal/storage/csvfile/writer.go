// Package csvfile writes each generated table to <dir>/<table>.csv.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"datascan/internal/storage"
)

// Kind is the registry name of this backend.
const Kind = "csv"

func init() {
	storage.Register(Kind, func(ctx context.Context, cfg storage.Config) (storage.Writer, error) {
		return New(cfg)
	})
}

type file struct {
	f *os.File
	w *csv.Writer
}

// Writer keeps one open file per table until Close.
type Writer struct {
	dir   string
	comma rune

	mu    sync.Mutex
	files map[string]*file
}

// New creates cfg.Path as a directory when needed.
func New(cfg storage.Config) (*Writer, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("csv: missing output directory")
	}
	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, fmt.Errorf("csv: %w", err)
	}
	comma := cfg.Delimiter
	if comma == 0 {
		comma = ','
	}
	return &Writer{dir: cfg.Path, comma: comma, files: map[string]*file{}}, nil
}

// PathFor is the file a table is written to.
func (w *Writer) PathFor(table string) string {
	name := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator {
			return '_'
		}
		return r
	}, table)
	return filepath.Join(w.dir, name+".csv")
}

// EnsureTable opens the table's file. A new file gets a header line; an
// existing one is appended to.
func (w *Writer) EnsureTable(ctx context.Context, t storage.TableSpec) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.open(t)
	return err
}

func (w *Writer) open(t storage.TableSpec) (*file, error) {
	if f, ok := w.files[t.Name]; ok {
		return f, nil
	}
	if strings.TrimSpace(t.Name) == "" {
		return nil, fmt.Errorf("csv: table name is empty")
	}
	path := w.PathFor(t.Name)
	_, statErr := os.Stat(path)
	fresh := errors.Is(statErr, os.ErrNotExist)

	fh, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("csv: %w", err)
	}
	cw := csv.NewWriter(fh)
	cw.Comma = w.comma
	if fresh {
		if err := cw.Write(t.ColumnNames()); err != nil {
			_ = fh.Close()
			return nil, fmt.Errorf("csv: header %s: %w", path, err)
		}
	}
	f := &file{f: fh, w: cw}
	w.files[t.Name] = f
	return f, nil
}

// InsertRows writes rows verbatim; values are not converted.
func (w *Writer) InsertRows(ctx context.Context, t storage.TableSpec, rows [][]string) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := w.open(t)
	if err != nil {
		return 0, err
	}
	width := len(t.Columns)
	rec := make([]string, width)
	for i, r := range rows {
		if err := ctx.Err(); err != nil {
			return int64(i), err
		}
		clear(rec)
		copy(rec, r)
		if err := f.w.Write(rec); err != nil {
			return int64(i), fmt.Errorf("csv: %s: %w", t.Name, err)
		}
	}
	f.w.Flush()
	if err := f.w.Error(); err != nil {
		return 0, fmt.Errorf("csv: %s: %w", t.Name, err)
	}
	return int64(len(rows)), nil
}

// Close flushes and closes every open file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var errs []error
	for name, f := range w.files {
		f.w.Flush()
		if err := f.w.Error(); err != nil {
			errs = append(errs, fmt.Errorf("csv: %s: %w", name, err))
		}
		if err := f.f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("csv: %s: %w", name, err))
		}
		delete(w.files, name)
	}
	return errors.Join(errs...)
}
