// Command scan profiles the tables of a data source and writes the scan
// report as an Excel workbook or a JSON document.
//
// Settings come from an optional YAML run file (-config), then SCAN_*
// environment variables, then flags.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"datascan/internal/config"
	"datascan/internal/metrics"
	"datascan/internal/metrics/datadog"
	"datascan/internal/report"
	"datascan/internal/scan"
	"datascan/internal/source"

	// register every source backend; the run file picks one by kind.
	_ "datascan/internal/source/delimited"
	_ "datascan/internal/source/htmltable"
	_ "datascan/internal/source/mssql"
	_ "datascan/internal/source/postgres"
	_ "datascan/internal/source/sas"
	_ "datascan/internal/source/sqlite"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
	exitAborted = 3
)

type cliFlags struct {
	configPath string
	envFile    string

	kind      string
	dsn       string
	path      string
	tables    string
	out       string
	delimiter string
	metrics   string

	sample    int
	minCell   int
	maxValues int
	workers   int
	numeric   bool

	validate bool
	verbose  bool
}

func parseFlags(args []string) (*flag.FlagSet, *cliFlags, error) {
	c := &cliFlags{}
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)

	fs.StringVar(&c.configPath, "config", "", "YAML run file")
	fs.StringVar(&c.envFile, "env", ".env", "dotenv file loaded before the run file (missing is fine)")

	fs.StringVar(&c.kind, "kind", "", "source kind: "+strings.Join(source.Kinds(), ", "))
	fs.StringVar(&c.dsn, "dsn", "", "database connection string")
	fs.StringVar(&c.path, "path", "", "file or folder for file sources")
	fs.StringVar(&c.tables, "tables", "", "comma-separated table names (default all)")
	fs.StringVar(&c.out, "out", "", "report path (.xlsx or .json)")
	fs.StringVar(&c.delimiter, "delimiter", "", `field delimiter for delimited files (e.g. ";" or "tab")`)
	fs.StringVar(&c.metrics, "metrics", "", "metrics backend: datadog or none")

	fs.IntVar(&c.sample, "sample", 0, "rows read per table, -1 for all")
	fs.IntVar(&c.minCell, "min-cell", 0, "smallest count a value needs to be reported")
	fs.IntVar(&c.maxValues, "max-values", 0, "values reported per field")
	fs.IntVar(&c.workers, "workers", 0, "tables scanned concurrently")
	fs.BoolVar(&c.numeric, "numeric", false, "compute numeric statistics")

	fs.BoolVar(&c.validate, "validate", false, "validate the configuration and exit")
	fs.BoolVar(&c.verbose, "v", false, "enable debug logs")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return fs, c, nil
}

func main() {
	fs, c, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(exitUsage)
	}

	logger, err := newLogger(c.verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(exitFailure)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, fs, c, logger)
	stop()
	_ = logger.Sync()
	os.Exit(code)
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// loadRun assembles the run from the file, the environment and set flags, in
// increasing precedence.
func loadRun(fs *flag.FlagSet, c *cliFlags) (*config.Run, error) {
	if err := config.LoadDotEnv(c.envFile); err != nil {
		return nil, err
	}

	var r *config.Run
	if c.configPath != "" {
		var err error
		if r, err = config.Load(c.configPath); err != nil {
			return nil, err
		}
	} else {
		r = &config.Run{}
		if err := r.ApplyEnv(os.Getenv); err != nil {
			return nil, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "kind":
			r.Source.Kind = c.kind
		case "dsn":
			r.Source.DSN = c.dsn
		case "path":
			r.Source.Path = c.path
		case "tables":
			r.Source.Tables = splitList(c.tables)
		case "delimiter":
			r.Source.Delimiter = c.delimiter
		case "out":
			r.Output.Path = c.out
		case "metrics":
			r.Metrics.Backend = c.metrics
		case "sample":
			r.Scan.SampleSize = &c.sample
		case "min-cell":
			r.Scan.MinCellCount = &c.minCell
		case "max-values":
			r.Scan.MaxValues = &c.maxValues
		case "workers":
			r.Scan.Workers = &c.workers
		case "numeric":
			r.Scan.NumericStats = &c.numeric
		}
	})
	return r, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func run(ctx context.Context, fs *flag.FlagSet, c *cliFlags, logger *zap.Logger) int {
	r, err := loadRun(fs, c)
	if err != nil {
		logger.Error("load configuration", zap.Error(err))
		return exitFailure
	}
	if err := r.Validate(); err != nil {
		logger.Error("configuration is invalid", zap.String("config", c.configPath), zap.Error(err))
		return exitFailure
	}
	if c.validate {
		logger.Info("configuration is valid", zap.String("config", c.configPath))
		return exitOK
	}

	params, err := r.Parameters()
	if err != nil {
		logger.Error("scan parameters", zap.Error(err))
		return exitFailure
	}
	srcCfg, err := r.SourceConfig()
	if err != nil {
		logger.Error("source configuration", zap.Error(err))
		return exitFailure
	}

	src, err := source.New(ctx, srcCfg)
	if err != nil {
		logger.Error("open source", zap.String("kind", srcCfg.Kind), zap.Error(err))
		return exitFailure
	}
	defer src.Close()

	mb := newMetrics(ctx, r.Metrics, logger)
	defer func() {
		if err := mb.Close(); err != nil {
			logger.Warn("metrics close", zap.Error(err))
		}
	}()

	scanID := scan.NewScanID()
	meta := report.Meta{
		ScanID:      scanID,
		GeneratedAt: time.Now().UTC(),
		Parameters:  params.ReportParams(srcCfg.Kind),
	}
	sink, err := newSink(r.Output.Path, r.OutputFormat(), meta)
	if err != nil {
		logger.Error("create report", zap.String("path", r.Output.Path), zap.Error(err))
		return exitFailure
	}

	log := logger.With(zap.String("scan_id", scanID))
	log.Info("scan started",
		zap.String("kind", srcCfg.Kind),
		zap.Int("sample_size", params.SampleSize),
		zap.Int("workers", params.Workers),
		zap.String("out", r.Output.Path))

	scanner := scan.New(src, params,
		scan.WithLogger(zap.NewStdLog(log)),
		scan.WithMetrics(mb),
		scan.WithInterrupter(scan.ContextInterrupter(ctx)),
	)

	start := time.Now()
	sum, err := scanner.Run(ctx, sink)
	if sum != nil {
		sum.ScanID = scanID
		for _, t := range sum.Failed {
			log.Warn("table left out of report", zap.String("table", t))
		}
	}
	switch {
	case errors.Is(err, scan.ErrInterrupted):
		log.Warn("scan aborted", zap.Int("tables_written", sum.Tables), zap.Error(err))
		return exitAborted
	case err != nil:
		log.Error("scan failed", zap.Error(err))
		return exitFailure
	}

	log.Info("scan completed",
		zap.Int("tables", sum.Tables),
		zap.Int("fields", sum.Fields),
		zap.Int("failed", len(sum.Failed)),
		zap.Duration("elapsed", time.Since(start).Truncate(time.Millisecond)))
	return exitOK
}

func newSink(path, format string, meta report.Meta) (report.Sink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	if format == config.FormatJSON {
		return report.NewJSONSink(path, meta)
	}
	return report.NewXLSXSink(path, meta)
}

// newMetrics falls back to the nop backend when Datadog cannot start, so a
// missing API key never blocks a scan.
func newMetrics(ctx context.Context, m config.Metrics, logger *zap.Logger) metrics.Backend {
	if m.Backend != config.MetricsDatadog {
		return metrics.Nop{}
	}
	tags := append(datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS")), m.Tags...)
	b, err := datadog.NewBackend(context.WithoutCancel(ctx), datadog.Options{
		JobName:    "datascan",
		Tags:       tags,
		FlushEvery: m.FlushEvery,
	})
	if err != nil {
		logger.Warn("metrics: datadog unavailable, using nop", zap.Error(err))
		return metrics.Nop{}
	}
	logger.Info("metrics enabled", zap.String("backend", m.Backend), zap.Strings("tags", tags))
	return b
}
