// Package config loads a scan run description from YAML and the environment.
//
// A run file looks like:
//
//	source:
//	  kind: postgres
//	  dsn: ${PG_DSN}
//	  schema: public
//	  tables: [persons, visits]
//	scan:
//	  sample_size: 100000
//	  min_cell_count: 5
//	  numeric_stats: true
//	output:
//	  path: scan.xlsx
//	metrics:
//	  backend: datadog
//	  tags: [team:data]
//
// ${VAR} references are expanded from the environment before parsing.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"datascan/internal/profile"
	"datascan/internal/scan"
	"datascan/internal/source"
)

// Output formats.
const (
	FormatXLSX = "xlsx"
	FormatJSON = "json"
)

// Metrics backends.
const (
	MetricsNone    = "none"
	MetricsDatadog = "datadog"
)

// Run is the parsed run file.
type Run struct {
	Source  Source  `yaml:"source"`
	Scan    Scan    `yaml:"scan"`
	Output  Output  `yaml:"output"`
	Metrics Metrics `yaml:"metrics"`
}

type Source struct {
	Kind       string   `yaml:"kind"`
	DSN        string   `yaml:"dsn"`
	Path       string   `yaml:"path"`
	Schema     string   `yaml:"schema"`
	Tables     []string `yaml:"tables"`
	Delimiter  string   `yaml:"delimiter"`
	Charset    string   `yaml:"charset"`
	Extensions []string `yaml:"extensions"`
}

// Scan holds optional overrides of scan.DefaultParameters. Nil pointers keep
// the default.
type Scan struct {
	SampleSize         *int  `yaml:"sample_size"`
	ScanValues         *bool `yaml:"scan_values"`
	MinCellCount       *int  `yaml:"min_cell_count"`
	CSVMinCellCount    *int  `yaml:"csv_min_cell_count"`
	MaxValues          *int  `yaml:"max_values"`
	NumericStats       *bool `yaml:"numeric_stats"`
	NumericSamplerSize *int  `yaml:"numeric_sampler_size"`
	Workers            *int  `yaml:"workers"`
	InterruptEvery     *int  `yaml:"interrupt_every"`
	Seed               int64 `yaml:"seed"`

	MaxValuesInMemory        int     `yaml:"max_values_in_memory"`
	FreeTextCheckAt          int64   `yaml:"free_text_check_at"`
	MinAverageFreeTextLength float64 `yaml:"min_average_free_text_length"`
}

type Output struct {
	Path string `yaml:"path"`
	// Format is xlsx or json. Empty picks it from the path's extension.
	Format string `yaml:"format"`
}

type Metrics struct {
	Backend    string        `yaml:"backend"`
	Tags       []string      `yaml:"tags"`
	FlushEvery time.Duration `yaml:"flush_every"`
}

// Load reads path, expands ${VAR} references and applies SCAN_* overrides
// from the process environment.
func Load(path string) (*Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := r.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return r, nil
}

// Parse decodes a run file. Unknown keys are rejected.
func Parse(data []byte) (*Run, error) {
	expanded := os.ExpandEnv(string(data))
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)

	var r Run
	if err := dec.Decode(&r); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return &r, nil
}

// LoadDotEnv loads KEY=VALUE files into the environment without overriding
// variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides settings from SCAN_* variables.
func (r *Run) ApplyEnv(getenv func(string) string) error {
	ints := []struct {
		key string
		dst **int
	}{
		{"SCAN_SAMPLE_SIZE", &r.Scan.SampleSize},
		{"SCAN_MIN_CELL_COUNT", &r.Scan.MinCellCount},
		{"SCAN_MAX_VALUES", &r.Scan.MaxValues},
		{"SCAN_WORKERS", &r.Scan.Workers},
	}
	for _, e := range ints {
		v := strings.TrimSpace(getenv(e.key))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s=%q: %w", e.key, v, err)
		}
		*e.dst = &n
	}
	if dsn := getenv("SCAN_DSN"); dsn != "" {
		r.Source.DSN = dsn
	}
	return nil
}

// Parameters merges the scan section over scan.DefaultParameters.
func (r *Run) Parameters() (scan.Parameters, error) {
	p := scan.DefaultParameters()
	s := r.Scan
	setInt(&p.SampleSize, s.SampleSize)
	setInt(&p.MinCellCount, s.MinCellCount)
	setInt(&p.CSVMinCellCount, s.CSVMinCellCount)
	setInt(&p.MaxValues, s.MaxValues)
	setInt(&p.NumericStatsSamplerSize, s.NumericSamplerSize)
	setInt(&p.Workers, s.Workers)
	setInt(&p.InterruptEvery, s.InterruptEvery)
	if s.ScanValues != nil {
		p.ScanValues = *s.ScanValues
	}
	if s.NumericStats != nil {
		p.CalculateNumericStats = *s.NumericStats
	}
	p.Seed = s.Seed
	p.Profile = profile.Options{
		MaxValuesInMemory:        s.MaxValuesInMemory,
		FreeTextCheckAt:          s.FreeTextCheckAt,
		MinAverageFreeTextLength: s.MinAverageFreeTextLength,
	}

	d, err := ParseDelimiter(r.Source.Delimiter)
	if err != nil {
		return p, err
	}
	p.Delimiter = d
	return p, nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

// SourceConfig is the source section in the form source.New expects.
func (r *Run) SourceConfig() (source.Config, error) {
	d, err := ParseDelimiter(r.Source.Delimiter)
	if err != nil {
		return source.Config{}, err
	}
	return source.Config{
		Kind:       r.Source.Kind,
		DSN:        r.Source.DSN,
		Path:       r.Source.Path,
		Schema:     r.Source.Schema,
		Tables:     r.Source.Tables,
		Delimiter:  d,
		Charset:    r.Source.Charset,
		Extensions: r.Source.Extensions,
	}, nil
}

// OutputFormat resolves the report format.
func (r *Run) OutputFormat() string {
	if r.Output.Format != "" {
		return strings.ToLower(r.Output.Format)
	}
	if strings.EqualFold(filepath.Ext(r.Output.Path), ".json") {
		return FormatJSON
	}
	return FormatXLSX
}

// Validate rejects runs that cannot start.
func (r *Run) Validate() error {
	if r.Source.Kind == "" {
		return fmt.Errorf("config: source.kind is required")
	}
	if kinds := source.Kinds(); !slices.Contains(kinds, r.Source.Kind) {
		return fmt.Errorf("config: unknown source.kind %q (known: %s)", r.Source.Kind, strings.Join(kinds, ", "))
	}
	if source.IsFileKind(r.Source.Kind) {
		if r.Source.Path == "" {
			return fmt.Errorf("config: source.path is required for kind %s", r.Source.Kind)
		}
	} else if r.Source.DSN == "" && r.Source.Path == "" {
		return fmt.Errorf("config: source.dsn is required for kind %s", r.Source.Kind)
	}
	if r.Output.Path == "" {
		return fmt.Errorf("config: output.path is required")
	}
	switch r.OutputFormat() {
	case FormatXLSX, FormatJSON:
	default:
		return fmt.Errorf("config: unsupported output.format %q", r.Output.Format)
	}
	switch r.Metrics.Backend {
	case "", MetricsNone, MetricsDatadog:
	default:
		return fmt.Errorf("config: unsupported metrics.backend %q", r.Metrics.Backend)
	}
	p, err := r.Parameters()
	if err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// ParseDelimiter accepts a single character or one of the names "tab",
// "comma", "semicolon", "pipe". Empty means ','.
func ParseDelimiter(s string) (rune, error) {
	switch strings.ToLower(s) {
	case "":
		return ',', nil
	case "tab", `\t`:
		return '\t', nil
	case "comma":
		return ',', nil
	case "semicolon":
		return ';', nil
	case "pipe":
		return '|', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("config: delimiter %q must be a single character", s)
	}
	d, _ := utf8.DecodeRuneInString(s)
	if d == '"' || d == '\r' || d == '\n' || d == utf8.RuneError {
		return 0, fmt.Errorf("config: delimiter %q is not allowed", s)
	}
	return d, nil
}
