// Package report turns finished field profiles into the structured scan
// result and hands it to sinks that persist it.
//
// BuildTable is the only place that applies the reporting rules (minimum cell
// count, value ceiling, truncation marker); sinks only lay the result out.
package report

import (
	"context"
	"time"

	"datascan/internal/profile"
)

// TruncatedMarker is appended to a value list when entries were left out.
const TruncatedMarker = "List truncated..."

// ValueCount is one reported value (or word, for free text) and its count.
type ValueCount struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// Numeric is the distribution summary of an Integer or Real field.
type Numeric struct {
	SampleSize int     `json:"sample_size"`
	Average    float64 `json:"average"`
	Stdev      float64 `json:"stdev"`
	Min        float64 `json:"min"`
	Q1         float64 `json:"q1"`
	Median     float64 `json:"median"`
	Q3         float64 `json:"q3"`
	Max        float64 `json:"max"`
}

// FieldReport is the per-field scan result.
type FieldReport struct {
	Name         string `json:"name"`
	Label        string `json:"label,omitempty"`
	DeclaredType string `json:"declared_type,omitempty"`
	Type         string `json:"type"`
	MaxLength    int    `json:"max_length"`
	RowCount     int64  `json:"row_count"`

	// The remaining fields are zero when values were not scanned.
	Processed      int64   `json:"processed"`
	EmptyCount     int64   `json:"empty_count"`
	FractionEmpty  float64 `json:"fraction_empty"`
	UniqueCount    int     `json:"unique_count"`
	UniqueAtLeast  bool    `json:"unique_at_least,omitempty"`
	FractionUnique float64 `json:"fraction_unique"`
	AverageLength  float64 `json:"average_length"`

	// Values is sorted by descending count and ends with TruncatedMarker
	// (count 0) when ValuesTruncated is set.
	Values          []ValueCount `json:"values,omitempty"`
	ValuesTruncated bool         `json:"values_truncated,omitempty"`

	Numeric *Numeric `json:"numeric,omitempty"`
}

// ReportedValues returns Values without the truncation marker.
func (f FieldReport) ReportedValues() []ValueCount {
	if f.ValuesTruncated && len(f.Values) > 0 && f.Values[len(f.Values)-1].Value == TruncatedMarker && f.Values[len(f.Values)-1].Count == 0 {
		return f.Values[:len(f.Values)-1]
	}
	return f.Values
}

// IsFreeText reports whether Values holds words rather than whole values.
func (f FieldReport) IsFreeText() bool { return f.Type == profile.TypeFreeText }

// TableReport is the per-table scan result.
type TableReport struct {
	Name     string `json:"name"`
	Comment  string `json:"comment,omitempty"`
	Location string `json:"location,omitempty"`
	// RowCount is the source's total row count, -1 when unknown.
	RowCount int64 `json:"row_count"`
	// RowsChecked is the number of rows fed to the profilers.
	RowsChecked  int64 `json:"rows_checked"`
	SkippedRows  int64 `json:"skipped_rows,omitempty"`
	StoppedEarly bool  `json:"stopped_early,omitempty"`

	Fields []FieldReport `json:"fields"`
}

// Param is one named scan setting, kept in display order.
type Param struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Meta describes the scan run a report belongs to.
type Meta struct {
	ScanID      string    `json:"scan_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Parameters  []Param   `json:"parameters"`
}

// Summary is returned to the caller once a report has been written.
type Summary struct {
	ScanID string
	Tables int
	Fields int
	// Failed lists the tables left out because they could not be read.
	Failed []string
}

// Sink receives tables in enumeration order. Any error is fatal to the scan.
type Sink interface {
	WriteTable(ctx context.Context, t TableReport) error
	Close() error
}

// BuildOptions are the reporting rules applied by BuildTable.
type BuildOptions struct {
	// ScanValues false means only structural metadata was gathered.
	ScanValues bool
	// MinCellCount is the smallest count a value needs to be listed.
	MinCellCount int
	// MaxValues caps the listed values per field.
	MaxValues int
}

// BuildTable fills header.Fields from finalized profilers.
func BuildTable(header TableReport, fields []*profile.Field, o BuildOptions) TableReport {
	out := header
	out.Fields = make([]FieldReport, 0, len(fields))
	for _, f := range fields {
		out.Fields = append(out.Fields, BuildField(f, o))
	}
	return out
}

// BuildField converts one profiler. Trim must already have been called.
func BuildField(f *profile.Field, o BuildOptions) FieldReport {
	r := FieldReport{
		Name:         f.Name(),
		Label:        f.Label(),
		DeclaredType: f.DeclaredType(),
		RowCount:     f.RowCount(),
	}
	if !o.ScanValues {
		r.Type = f.DeclaredType()
		return r
	}

	r.Type = f.TypeDescription()
	r.MaxLength = f.MaxLength()
	r.Processed = f.Processed()
	r.EmptyCount = f.EmptyCount()
	r.FractionEmpty = f.FractionEmpty()
	r.UniqueCount = f.UniqueCount()
	r.UniqueAtLeast = f.TooManyValues()
	r.FractionUnique = f.FractionUnique()
	r.AverageLength = f.AverageLength()

	if ns, ok := f.NumericStats(); ok {
		r.Numeric = &Numeric{
			SampleSize: ns.SampleSize,
			Average:    ns.Average,
			Stdev:      ns.Stdev,
			Min:        ns.Min,
			Q1:         ns.Q1,
			Median:     ns.Median,
			Q3:         ns.Q3,
			Max:        ns.Max,
		}
	}

	r.Values, r.ValuesTruncated = selectValues(f, o)
	return r
}

func selectValues(f *profile.Field, o BuildOptions) ([]ValueCount, bool) {
	all := f.ValueCounts()
	truncated := f.ValuesTrimmed() || f.TooManyValues()

	limit := o.MaxValues
	if limit <= 0 {
		limit = profile.DefaultMaxValues
	}

	out := make([]ValueCount, 0, min(len(all), limit)+1)
	for _, e := range all {
		if int64(o.MinCellCount) > e.Count {
			// Sorted by count, so everything after is below the floor too.
			truncated = true
			break
		}
		if len(out) == limit {
			truncated = true
			break
		}
		out = append(out, ValueCount{Value: e.Key, Count: e.Count})
	}
	if truncated {
		out = append(out, ValueCount{Value: TruncatedMarker})
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, truncated
}
