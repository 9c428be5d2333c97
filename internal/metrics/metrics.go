// Package metrics is the seam between the scanner and a metrics backend.
//
// Core code depends only on Backend. Concrete backends (Datadog) live in
// subpackages so the scanner never imports a vendor SDK.
package metrics

// Metric names emitted by the scanner.
const (
	// TablesTotal counts finished tables, labelled status=ok|failed|aborted.
	TablesTotal = "scan_tables_total"
	// RowsTotal counts rows, labelled kind=scanned|skipped.
	RowsTotal = "scan_rows_total"
	// TableDuration observes seconds spent per table, labelled status.
	TableDuration = "scan_table_duration_seconds"
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives metric events.
//
// Implementations must be safe for concurrent use; the scanner reports from
// every worker goroutine.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
	Close() error
}

// Nop discards everything.
type Nop struct{}

func (Nop) IncCounter(string, float64, Labels)       {}
func (Nop) ObserveHistogram(string, float64, Labels) {}
func (Nop) Flush() error                             { return nil }
func (Nop) Close() error                             { return nil }

var _ Backend = Nop{}
