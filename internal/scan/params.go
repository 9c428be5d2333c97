package scan

import (
	"fmt"
	"strconv"

	"datascan/internal/profile"
	"datascan/internal/report"
	"datascan/internal/source"
)

// Parameters are the recognized scan options.
type Parameters struct {
	// SampleSize caps the rows read per table; -1 reads every row.
	SampleSize int
	// ScanValues false gathers structural metadata only.
	ScanValues bool
	// MinCellCount is the smallest count a value needs to be reported.
	MinCellCount int
	// CSVMinCellCount raises the floor for delimited sources, where every row
	// is visible and rare-value filtering at small samples is unwanted.
	CSVMinCellCount int
	// MaxValues caps the reported values per field.
	MaxValues int
	// CalculateNumericStats enables the numeric reservoir per field.
	CalculateNumericStats bool
	// NumericStatsSamplerSize is the reservoir capacity.
	NumericStatsSamplerSize int
	// Delimiter separates fields in delimited sources.
	Delimiter rune
	// Workers is the number of tables scanned concurrently.
	Workers int
	// InterruptEvery is how many rows pass between interruption checks.
	InterruptEvery int
	// Seed drives reservoir sampling. Zero seeds from the clock.
	Seed int64

	// Profile overrides the fixed profiling thresholds. Zero values keep the
	// package defaults.
	Profile profile.Options
}

// DefaultParameters returns the defaults used when nothing is configured.
func DefaultParameters() Parameters {
	return Parameters{
		SampleSize:              100000,
		ScanValues:              true,
		MinCellCount:            5,
		CSVMinCellCount:         10,
		MaxValues:               profile.DefaultMaxValues,
		CalculateNumericStats:   false,
		NumericStatsSamplerSize: profile.DefaultNumericSamplerSize,
		Delimiter:               ',',
		Workers:                 1,
		InterruptEvery:          1000,
	}
}

// Validate rejects parameter combinations the scanner cannot honour.
func (p Parameters) Validate() error {
	if p.SampleSize < -1 {
		return fmt.Errorf("scan: sample size %d: must be -1 (all rows) or >= 0", p.SampleSize)
	}
	if p.MaxValues < 1 {
		return fmt.Errorf("scan: max values %d: must be >= 1", p.MaxValues)
	}
	if p.MinCellCount < 0 || p.CSVMinCellCount < 0 {
		return fmt.Errorf("scan: min cell count must be >= 0")
	}
	if p.CalculateNumericStats && p.NumericStatsSamplerSize < 1 {
		return fmt.Errorf("scan: numeric stats sampler size %d: must be >= 1", p.NumericStatsSamplerSize)
	}
	if p.Workers < 0 {
		return fmt.Errorf("scan: workers %d: must be >= 0", p.Workers)
	}
	return nil
}

// MinCellCountFor is the effective floor for a source kind.
func (p Parameters) MinCellCountFor(kind string) int {
	if kind == source.KindDelimited {
		return max(p.MinCellCount, p.CSVMinCellCount)
	}
	return p.MinCellCount
}

func (p Parameters) profileOptions() profile.Options {
	o := p.Profile
	o.MaxValues = p.MaxValues
	o.NumericStats = p.CalculateNumericStats
	o.NumericSamplerSize = p.NumericStatsSamplerSize
	return o
}

func (p Parameters) buildOptions(kind string) report.BuildOptions {
	return report.BuildOptions{
		ScanValues:   p.ScanValues,
		MinCellCount: p.MinCellCountFor(kind),
		MaxValues:    p.MaxValues,
	}
}

// ReportParams lists p for the report's parameter sheet.
func (p Parameters) ReportParams(kind string) []report.Param {
	out := []report.Param{
		{Name: "source_kind", Value: kind},
		{Name: "sample_size", Value: strconv.Itoa(p.SampleSize)},
		{Name: "scan_values", Value: strconv.FormatBool(p.ScanValues)},
		{Name: "min_cell_count", Value: strconv.Itoa(p.MinCellCountFor(kind))},
		{Name: "max_values", Value: strconv.Itoa(p.MaxValues)},
		{Name: "calculate_numeric_stats", Value: strconv.FormatBool(p.CalculateNumericStats)},
	}
	if p.CalculateNumericStats {
		out = append(out, report.Param{Name: "numeric_stats_sampler_size", Value: strconv.Itoa(p.NumericStatsSamplerSize)})
	}
	if kind == source.KindDelimited {
		out = append(out, report.Param{Name: "delimiter", Value: string(p.Delimiter)})
	}
	return out
}
