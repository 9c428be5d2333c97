// Package fakedata synthesizes tables that resemble a scan report without
// reusing any row of the scanned data.
//
// Only the report is consumed: per field the generator reproduces the
// inferred type, the empty fraction, the reported value frequencies and, for
// numeric fields, the observed range. Values that were too rare to be
// reported are replaced by random values of the same shape.
package fakedata

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"datascan/internal/profile"
	"datascan/internal/report"
	"datascan/internal/storage"
)

// DefaultBatchSize is the number of rows handed to a writer per InsertRows.
const DefaultBatchSize = 10000

// Generator produces fake datasets.
type Generator struct {
	// Rows per table. Zero or negative reuses the table's row count, falling
	// back to the rows checked by the scan.
	Rows int
	// Seed makes output reproducible. Each table derives its own stream.
	Seed int64
}

// Dataset is one generated table.
type Dataset struct {
	Table   string
	Columns []string
	Rows    [][]string
}

// Generate builds a dataset for t.
func (g Generator) Generate(t report.TableReport) Dataset {
	n := g.rowsFor(t)
	rng := rand.New(rand.NewPCG(uint64(g.Seed), tableStream(t.Name)))

	cols := make([]column, len(t.Fields))
	names := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		names[i] = f.Name
		cols[i] = newColumn(f)
	}

	rows := make([][]string, n)
	for r := range rows {
		row := make([]string, len(cols))
		for c, col := range cols {
			row[c] = col.next(rng, r)
		}
		rows[r] = row
	}
	return Dataset{Table: t.Name, Columns: names, Rows: rows}
}

func (g Generator) rowsFor(t report.TableReport) int {
	switch {
	case g.Rows > 0:
		return g.Rows
	case t.RowCount > 0:
		return int(t.RowCount)
	case t.RowsChecked > 0:
		return int(t.RowsChecked)
	}
	return 0
}

func tableStream(name string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return h.Sum64()
}

// Load creates the destination table for t and writes ds in batches.
func Load(ctx context.Context, w storage.Writer, t report.TableReport, ds Dataset, batchSize int) (int64, error) {
	ts := storage.SpecFromReport(t)
	if err := w.EnsureTable(ctx, ts); err != nil {
		return 0, fmt.Errorf("fakedata: %w", err)
	}
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	var total int64
	for _, b := range storage.Batches(len(ds.Rows), batchSize) {
		n, err := w.InsertRows(ctx, ts, ds.Rows[b[0]:b[1]])
		total += n
		if err != nil {
			return total, fmt.Errorf("fakedata: %w", err)
		}
	}
	return total, nil
}

// column produces the values of one generated field.
type column interface {
	next(rng *rand.Rand, row int) string
}

type constant string

func (c constant) next(*rand.Rand, int) string { return string(c) }

// sequence emits 1, 2, 3, ... for fields that looked like unique keys.
type sequence struct{}

func (sequence) next(_ *rand.Rand, row int) string { return strconv.Itoa(row + 1) }

// weighted draws reported values by frequency. The probability mass of values
// that were not reported is served by other.
type weighted struct {
	emptyP float64
	values []string
	// cum[i] is the cumulative weight up to values[i]. A trailing extra entry
	// holds the weight routed to other.
	cum    []float64
	total  float64
	other  column
}

func (w *weighted) next(rng *rand.Rand, row int) string {
	if w.emptyP > 0 && rng.Float64() < w.emptyP {
		return ""
	}
	if w.total <= 0 {
		return w.other.next(rng, row)
	}
	x := rng.Float64() * w.total
	i := sort.Search(len(w.cum), func(i int) bool { return x < w.cum[i] })
	if i >= len(w.values) {
		return w.other.next(rng, row)
	}
	return w.values[i]
}

// words builds free text from the reported word frequencies.
type words struct {
	emptyP float64
	pick   *weighted
	length int
}

func (w *words) next(rng *rand.Rand, row int) string {
	if w.emptyP > 0 && rng.Float64() < w.emptyP {
		return ""
	}
	var b strings.Builder
	for b.Len() < w.length {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(w.pick.next(rng, row))
	}
	return b.String()
}

type randomInt struct{ dist distuv.Uniform }

func (r randomInt) next(rng *rand.Rand, _ int) string {
	return strconv.FormatInt(int64(math.Round(r.dist.Quantile(rng.Float64()))), 10)
}

type randomReal struct{ dist distuv.Uniform }

func (r randomReal) next(rng *rand.Rand, _ int) string {
	return strconv.FormatFloat(r.dist.Quantile(rng.Float64()), 'f', -1, 64)
}

type randomDate struct{}

var (
	dateFrom = time.Date(1950, 1, 1, 0, 0, 0, 0, time.UTC)
	dateDays = int(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Sub(dateFrom).Hours() / 24)
)

func (randomDate) next(rng *rand.Rand, _ int) string {
	return dateFrom.AddDate(0, 0, rng.IntN(dateDays)).Format("2006-01-02")
}

type randomString struct{ length int }

const letters = "abcdefghijklmnopqrstuvwxyz"

func (r randomString) next(rng *rand.Rand, _ int) string {
	b := make([]byte, r.length)
	for i := range b {
		b[i] = letters[rng.IntN(len(letters))]
	}
	return string(b)
}

func newColumn(f report.FieldReport) column {
	if f.Type == profile.TypeEmpty {
		return constant("")
	}
	if isKey(f) {
		return sequence{}
	}

	other := randomFor(f)
	emptyP := f.FractionEmpty
	if f.Processed == 0 {
		emptyP = 0
	}

	if f.IsFreeText() {
		pick := newWeighted(f.ReportedValues(), 0, randomString{length: 6})
		return &words{emptyP: emptyP, pick: pick, length: max(1, int(math.Round(f.AverageLength)))}
	}

	w := newWeighted(nonEmpty(f.ReportedValues()), 0, other)
	w.emptyP = emptyP
	// Share of non-empty values that were too rare to be listed.
	if rest := f.Processed - f.EmptyCount - int64(w.total); rest > 0 && w.total > 0 {
		w.cum = append(w.cum, w.total+float64(rest))
		w.total += float64(rest)
	}
	return w
}

// isKey reports whether every scanned value was distinct.
func isKey(f report.FieldReport) bool {
	if f.UniqueAtLeast || f.UniqueCount == 0 || f.EmptyCount > 0 {
		return false
	}
	if f.Type != profile.TypeInteger && f.Type != profile.TypeVarChar {
		return false
	}
	u := int64(f.UniqueCount)
	return u == f.RowCount || (f.RowCount < 0 && u == f.Processed)
}

func nonEmpty(vals []report.ValueCount) []report.ValueCount {
	out := make([]report.ValueCount, 0, len(vals))
	for _, v := range vals {
		if strings.TrimSpace(v.Value) != "" {
			out = append(out, v)
		}
	}
	return out
}

func newWeighted(vals []report.ValueCount, emptyP float64, other column) *weighted {
	w := &weighted{emptyP: emptyP, other: other}
	for _, v := range vals {
		if v.Count <= 0 {
			continue
		}
		w.total += float64(v.Count)
		w.values = append(w.values, v.Value)
		w.cum = append(w.cum, w.total)
	}
	return w
}

// randomFor returns a generator for values of f's shape that were not
// reported individually.
func randomFor(f report.FieldReport) column {
	switch f.Type {
	case profile.TypeInteger, profile.TypeReal:
		lo, hi := 0.0, math.Pow(10, float64(min(max(f.MaxLength, 1), 9)))-1
		if f.Numeric != nil && f.Numeric.Max >= f.Numeric.Min {
			lo, hi = f.Numeric.Min, f.Numeric.Max
		}
		d := distuv.Uniform{Min: lo, Max: hi}
		if f.Type == profile.TypeInteger {
			return randomInt{dist: d}
		}
		return randomReal{dist: d}
	case profile.TypeDate:
		return randomDate{}
	}
	return randomString{length: max(1, f.MaxLength)}
}
