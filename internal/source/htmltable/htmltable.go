// Package htmltable exposes the <table> elements of HTML files as tables.
//
// Each <table> in a file becomes one table named "<file>_<n>" (n counts from
// 1 in document order). The first row, whether built from th or td cells, is
// the header. Short rows are padded with empty values and extra cells are
// dropped.
package htmltable

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"datascan/internal/source"
)

// Kind is the registry name of this backend.
const Kind = "html"

// Extensions lists the file suffixes enumerated in a directory.
var Extensions = []string{".html", ".htm"}

func init() {
	source.Register(Kind, func(ctx context.Context, cfg source.Config) (source.Source, error) {
		return New(cfg)
	})
}

// Source enumerates HTML files under a path.
type Source struct {
	path    string
	charset string
	only    map[string]bool
}

// New validates cfg.
func New(cfg source.Config) (*Source, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("htmltable: missing path")
	}
	if _, err := os.Stat(cfg.Path); err != nil {
		return nil, fmt.Errorf("htmltable: stat %s: %w", cfg.Path, err)
	}
	if err := source.CheckCharset(cfg.Charset); err != nil {
		return nil, fmt.Errorf("htmltable: %w", err)
	}
	s := &Source{path: cfg.Path, charset: cfg.Charset}
	if len(cfg.Tables) > 0 {
		s.only = make(map[string]bool, len(cfg.Tables))
		for _, t := range cfg.Tables {
			s.only[strings.ToLower(t)] = true
		}
	}
	return s, nil
}

func (s *Source) Kind() string { return Kind }

// Tables parses every file to count its tables.
func (s *Source) Tables(ctx context.Context) ([]source.Table, error) {
	files, err := source.ListFiles(s.path, Extensions)
	if err != nil {
		return nil, fmt.Errorf("htmltable: %w", err)
	}

	var out []source.Table
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := s.load(f)
		if err != nil {
			return nil, err
		}
		base := source.FileTableName(f)
		doc.Find("table").Each(func(i int, sel *goquery.Selection) {
			name := base + "_" + strconv.Itoa(i+1)
			if s.only != nil && !s.only[name] {
				return
			}
			t := source.Table{Name: name, Location: f + "#" + strconv.Itoa(i)}
			if caption := strings.TrimSpace(sel.ChildrenFiltered("caption").First().Text()); caption != "" {
				t.Comment = caption
			}
			out = append(out, t)
		})
	}
	return out, nil
}

func (s *Source) load(path string) (*goquery.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("htmltable: open %s: %w", path, err)
	}
	defer f.Close()

	r, err := source.DecodeReader(f, s.charset)
	if err != nil {
		return nil, fmt.Errorf("htmltable: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("htmltable: parse html %s: %w", path, err)
	}
	return doc, nil
}

func (s *Source) Open(ctx context.Context, t source.Table, opt source.OpenOptions) (source.Rows, error) {
	path, idx, err := splitLocation(t.Location)
	if err != nil {
		return nil, err
	}
	doc, err := s.load(path)
	if err != nil {
		return nil, err
	}
	tables := doc.Find("table")
	if idx >= tables.Length() {
		return nil, fmt.Errorf("htmltable: %s has no table %d", path, idx+1)
	}
	return NewRows(tables.Eq(idx), opt), nil
}

func (s *Source) Close() error { return nil }

func splitLocation(loc string) (string, int, error) {
	i := strings.LastIndexByte(loc, '#')
	if i < 0 {
		return "", 0, fmt.Errorf("htmltable: bad location %q", loc)
	}
	idx, err := strconv.Atoi(loc[i+1:])
	if err != nil || idx < 0 {
		return "", 0, fmt.Errorf("htmltable: bad location %q", loc)
	}
	return loc[:i], idx, nil
}

// Rows holds the extracted cells of one table.
type Rows struct {
	cols  []source.Column
	data  [][]string
	count int64
	pos   int
	cur   []string
}

// NewRows extracts table's rows, ignoring rows that belong to nested tables.
func NewRows(table *goquery.Selection, opt source.OpenOptions) *Rows {
	var grid [][]string
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if !tr.Closest("table").IsSelection(table) {
			return
		}
		var cells []string
		tr.ChildrenFiltered("th, td").Each(func(_ int, td *goquery.Selection) {
			cells = append(cells, strings.Join(strings.Fields(td.Text()), " "))
		})
		grid = append(grid, cells)
	})

	r := &Rows{}
	if len(grid) == 0 {
		return r
	}

	r.cols = make([]source.Column, len(grid[0]))
	for i, h := range grid[0] {
		r.cols[i] = source.Column{Name: h}
	}
	r.cur = make([]string, len(r.cols))
	r.data = grid[1:]
	r.count = int64(len(r.data))

	switch {
	case opt.ColumnsOnly:
		r.data = nil
	case opt.Limit > 0 && len(r.data) > opt.Limit:
		r.data = r.data[:opt.Limit]
	}
	return r
}

func (r *Rows) Columns() []source.Column { return r.cols }

func (r *Rows) RowCount() int64 { return r.count }

func (r *Rows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	row := r.data[r.pos]
	r.pos++
	for i := range r.cur {
		if i < len(row) {
			r.cur[i] = row[i]
		} else {
			r.cur[i] = ""
		}
	}
	return true
}

func (r *Rows) Values() []string { return r.cur }

func (r *Rows) Err() error { return nil }

func (r *Rows) Close() error {
	r.data = nil
	return nil
}
