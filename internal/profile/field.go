// Package profile implements the per-column statistics accumulator used by the
// scanner.
//
// A Field ingests one cell value at a time and keeps, in bounded memory:
//   - counts of processed and empty values and value lengths
//   - type evidence (integer, real, date) that can only be withdrawn
//   - a frequency table of whole values, or of words once the field has been
//     classified as free text
//   - optionally, a uniform numeric sample for distribution statistics
//
// Nothing in this package performs I/O and no input value can make it fail.
package profile

import (
	"math/rand"
	"strings"
	"unicode/utf8"
)

// Defaults for the fixed profiling thresholds.
const (
	DefaultMaxValues                = 1000
	DefaultMaxValuesInMemory        = 100000
	DefaultFreeTextCheckAt          = 1000
	DefaultMinAverageFreeTextLength = 100
	DefaultNumericSamplerSize       = 500
)

// Options tune a Field. Zero values fall back to the package defaults.
type Options struct {
	// MaxValues is the reporting ceiling: Trim keeps at most this many values.
	MaxValues int
	// MaxValuesInMemory is the distinct-key ceiling that triggers eviction
	// while values are still being processed.
	MaxValuesInMemory int
	// FreeTextCheckAt is the processed-value count at which free text is
	// evaluated, exactly once.
	FreeTextCheckAt int64
	// MinAverageFreeTextLength is the average non-empty value length at or
	// above which an untyped field is classified as free text.
	MinAverageFreeTextLength float64

	NumericStats       bool
	NumericSamplerSize int
	// Rand drives reservoir replacement. Nil uses a fixed seed.
	Rand *rand.Rand
}

// DefaultOptions returns Options populated with the package defaults.
func DefaultOptions() Options {
	return Options{
		MaxValues:                DefaultMaxValues,
		MaxValuesInMemory:        DefaultMaxValuesInMemory,
		FreeTextCheckAt:          DefaultFreeTextCheckAt,
		MinAverageFreeTextLength: DefaultMinAverageFreeTextLength,
		NumericSamplerSize:       DefaultNumericSamplerSize,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxValues <= 0 {
		o.MaxValues = d.MaxValues
	}
	if o.MaxValuesInMemory <= 0 {
		o.MaxValuesInMemory = d.MaxValuesInMemory
	}
	if o.MaxValuesInMemory < o.MaxValues {
		o.MaxValuesInMemory = o.MaxValues
	}
	if o.FreeTextCheckAt <= 0 {
		o.FreeTextCheckAt = d.FreeTextCheckAt
	}
	if o.MinAverageFreeTextLength <= 0 {
		o.MinAverageFreeTextLength = d.MinAverageFreeTextLength
	}
	if o.NumericSamplerSize <= 0 {
		o.NumericSamplerSize = d.NumericSamplerSize
	}
	return o
}

// textMode is the counting mode of a field. It only moves forward.
type textMode uint8

const (
	structured textMode = iota
	freeText
)

// boundMode records whether the value table ever overflowed the in-memory
// ceiling. It only moves forward.
type boundMode uint8

const (
	bounded boundMode = iota
	truncated
)

// Field accumulates statistics for one column of one table.
type Field struct {
	name         string
	label        string
	declaredType string
	rowCount     int64

	opts Options

	processed int64
	empty     int64
	sumLength int64
	maxLength int

	isInteger bool
	isReal    bool
	isDate    bool

	text  textMode
	bound boundMode

	values  *Counter
	numeric *Reservoir

	finalized bool
	trimmed   bool
	unique    int
}

// NewField returns an empty profiler for the named column.
func NewField(name string, opts Options) *Field {
	opts = opts.withDefaults()
	f := &Field{
		name:      name,
		rowCount:  -1,
		opts:      opts,
		isInteger: true,
		isReal:    true,
		isDate:    true,
		values:    NewCounter(),
	}
	if opts.NumericStats {
		f.numeric = NewReservoir(opts.NumericSamplerSize, opts.Rand)
	}
	return f
}

// ProcessValue ingests one observed cell. Nulls should be passed as "".
func (f *Field) ProcessValue(v string) {
	t := strings.TrimSpace(v)
	n := utf8.RuneCountInString(v)

	f.processed++
	f.sumLength += int64(n)
	if t == "" {
		f.empty++
	}
	if n > f.maxLength {
		f.maxLength = n
	}

	if f.text == structured {
		f.values.Add(v)
		if t != "" {
			f.observeTypes(t)
		}
		if f.processed == f.opts.FreeTextCheckAt && f.qualifiesAsFreeText() {
			f.toFreeText()
		}
	} else {
		for _, w := range Words(t) {
			f.values.Add(w)
		}
	}

	if f.values.Len() > f.opts.MaxValuesInMemory {
		f.bound = truncated
		f.values.KeepTopN(f.opts.MaxValues)
	}
}

func (f *Field) observeTypes(t string) {
	if f.isReal && !isNumber(t) {
		f.isReal = false
	}
	if f.isInteger && !isInteger(t) {
		f.isInteger = false
	}
	if f.isDate && !isDate(t) {
		f.isDate = false
	}
	if f.numeric != nil && f.isReal {
		if x, ok := parseFloat(t); ok {
			f.numeric.Offer(x)
		}
	}
}

func (f *Field) qualifiesAsFreeText() bool {
	if f.isInteger || f.isReal || f.isDate {
		return false
	}
	return f.AverageLength() >= f.opts.MinAverageFreeTextLength
}

// toFreeText switches the field to word counting, carrying every counted
// value's weight over to its words.
func (f *Field) toFreeText() {
	words := NewCounter()
	for _, e := range f.values.Entries() {
		for _, w := range Words(e.Key) {
			words.AddN(w, e.Count)
		}
	}
	f.values = words
	f.text = freeText
}

// Trim finalizes the value table down to the reporting ceiling. Only the
// first call has an effect.
func (f *Field) Trim() {
	if f.finalized {
		return
	}
	f.finalized = true
	f.unique = f.values.Len()
	if f.values.Len() > f.opts.MaxValues {
		f.values.KeepTopN(f.opts.MaxValues)
		f.trimmed = true
	}
}

func (f *Field) Name() string { return f.name }

// Label is the column comment or label declared by the source, if any.
func (f *Field) Label() string { return f.label }
func (f *Field) SetLabel(label string) { f.label = label }

// DeclaredType is the type reported by source metadata, if any.
func (f *Field) DeclaredType() string { return f.declaredType }
func (f *Field) SetDeclaredType(typ string) { f.declaredType = typ }

// RowCount is the total row count of the owning table, -1 when unknown.
func (f *Field) RowCount() int64 { return f.rowCount }
func (f *Field) SetRowCount(n int64) { f.rowCount = n }
func (f *Field) Processed() int64 { return f.processed }
func (f *Field) EmptyCount() int64 { return f.empty }
func (f *Field) MaxLength() int { return f.maxLength }
func (f *Field) IsInteger() bool { return f.isInteger }
func (f *Field) IsReal() bool { return f.isReal }
func (f *Field) IsDate() bool { return f.isDate }
func (f *Field) IsFreeText() bool { return f.text == freeText }
func (f *Field) TooManyValues() bool { return f.bound == truncated }
func (f *Field) ValuesTrimmed() bool { return f.trimmed }
func (f *Field) NumericStatsEnabled() bool { return f.numeric != nil }

// AverageLength is the mean length of the non-empty values.
func (f *Field) AverageLength() float64 {
	nonEmpty := f.processed - f.empty
	if nonEmpty <= 0 {
		return 0
	}
	return float64(f.sumLength) / float64(nonEmpty)
}

// FractionEmpty is the share of processed values that were empty.
func (f *Field) FractionEmpty() float64 {
	if f.processed == 0 {
		return 0
	}
	return float64(f.empty) / float64(f.processed)
}

// UniqueCount is the number of distinct values (or words). When TooManyValues
// is set the true figure is at least this large.
func (f *Field) UniqueCount() int {
	if f.finalized {
		return f.unique
	}
	return f.values.Len()
}

// FractionUnique is UniqueCount relative to the processed values.
func (f *Field) FractionUnique() float64 {
	if f.processed == 0 {
		return 0
	}
	return float64(f.UniqueCount()) / float64(f.processed)
}

// TypeDescription classifies the field. Empty and free text dominate any
// residual type evidence.
func (f *Field) TypeDescription() string {
	switch {
	case f.processed == f.empty:
		return TypeEmpty
	case f.text == freeText:
		return TypeFreeText
	case f.isDate:
		return TypeDate
	case f.isInteger:
		return TypeInteger
	case f.isReal:
		return TypeReal
	default:
		return TypeVarChar
	}
}

// ValueCounts returns the counted values (or words) by descending count.
func (f *Field) ValueCounts() []CounterEntry {
	return f.values.SortedByCount()
}

// ValueCount returns the count recorded for a single value or word.
func (f *Field) ValueCount(v string) int64 { return f.values.Get(v) }

// TotalValueWeight is the sum of all recorded counts.
func (f *Field) TotalValueWeight() int64 { return f.values.Sum() }

// NumericStats returns the distribution summary. ok is false when numeric
// statistics are disabled, the field is not numeric, or no value was sampled.
func (f *Field) NumericStats() (NumericStats, bool) {
	if f.numeric == nil {
		return NumericStats{}, false
	}
	switch f.TypeDescription() {
	case TypeInteger, TypeReal:
	default:
		return NumericStats{}, false
	}
	return f.numeric.Summary()
}
