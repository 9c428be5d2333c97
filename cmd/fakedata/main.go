// Command fakedata writes synthetic tables shaped like a scan report.
//
//	fakedata -report scan.xlsx -kind sqlite -out fake.db -rows 1000
//	fakedata -report scan.json -kind postgres -dsn '${PG_DSN}'
//
// Only the report is read; no row of the scanned source is reused.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"datascan/internal/config"
	"datascan/internal/fakedata"
	"datascan/internal/report"
	"datascan/internal/storage"

	_ "datascan/internal/storage/csvfile"
	_ "datascan/internal/storage/mssql"
	_ "datascan/internal/storage/postgres"
	_ "datascan/internal/storage/sqlite"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
	exitAborted = 3
)

type options struct {
	reportPath string
	envFile    string
	kind       string
	dsn        string
	out        string
	tables     []string
	delimiter  rune
	rows       int
	seed       int64
	batch      int
	verbose    bool
}

func parseArgs(args []string, stderr io.Writer) (options, error) {
	var (
		o         options
		tables    string
		delimiter string
	)
	fs := flag.NewFlagSet("fakedata", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&o.reportPath, "report", "", "scan report to imitate (.xlsx or .json)")
	fs.StringVar(&o.envFile, "env", ".env", "dotenv file (missing is fine)")
	fs.StringVar(&o.kind, "kind", "csv", "destination: "+strings.Join(storage.Kinds(), ", "))
	fs.StringVar(&o.dsn, "dsn", "", "database connection string; ${VAR} is expanded")
	fs.StringVar(&o.out, "out", "", "folder for csv, database file for sqlite")
	fs.StringVar(&tables, "tables", "", "comma-separated tables to generate (default all)")
	fs.StringVar(&delimiter, "delimiter", "", "field delimiter for csv output")
	fs.IntVar(&o.rows, "rows", 0, "rows per table (default: the scanned row count)")
	fs.Int64Var(&o.seed, "seed", 0, "random seed (0 picks one)")
	fs.IntVar(&o.batch, "batch", fakedata.DefaultBatchSize, "rows per insert batch")
	fs.BoolVar(&o.verbose, "v", false, "enable debug logs")

	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if strings.TrimSpace(o.reportPath) == "" {
		fmt.Fprintln(stderr, "usage: fakedata -report <scan.xlsx|scan.json> [-kind csv|sqlite|postgres|mssql] [-dsn ...] [-out ...]")
		return o, flag.ErrHelp
	}
	d, err := config.ParseDelimiter(delimiter)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return o, err
	}
	o.delimiter = d
	for _, t := range strings.Split(tables, ",") {
		if t = strings.TrimSpace(t); t != "" {
			o.tables = append(o.tables, strings.ToLower(t))
		}
	}
	return o, nil
}

func main() {
	o, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		os.Exit(exitUsage)
	}

	var logger *zap.Logger
	if o.verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(exitFailure)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, o, logger)
	stop()
	_ = logger.Sync()
	os.Exit(code)
}

func run(ctx context.Context, o options, logger *zap.Logger) int {
	if err := config.LoadDotEnv(o.envFile); err != nil {
		logger.Error("load env", zap.Error(err))
		return exitFailure
	}

	doc, err := report.Load(o.reportPath)
	if err != nil {
		logger.Error("read report", zap.Error(err))
		return exitFailure
	}

	w, err := storage.New(ctx, storage.Config{
		Kind:      o.kind,
		DSN:       os.ExpandEnv(o.dsn),
		Path:      o.out,
		Delimiter: o.delimiter,
	})
	if err != nil {
		logger.Error("open destination", zap.String("kind", o.kind), zap.Error(err))
		return exitFailure
	}

	seed := o.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	gen := fakedata.Generator{Rows: o.rows, Seed: seed}
	logger.Info("generating",
		zap.String("report", o.reportPath),
		zap.String("scan_id", doc.ScanID),
		zap.String("kind", o.kind),
		zap.Int64("seed", seed))

	code := exitOK
	for _, t := range doc.Tables {
		if !selected(o.tables, t.Name) {
			continue
		}
		if ctx.Err() != nil {
			code = exitAborted
			break
		}
		start := time.Now()
		ds := gen.Generate(t)
		n, err := fakedata.Load(ctx, w, t, ds, o.batch)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				code = exitAborted
			} else {
				logger.Error("load table", zap.String("table", t.Name), zap.Int64("rows", n), zap.Error(err))
				code = exitFailure
			}
			break
		}
		logger.Info("table written",
			zap.String("table", t.Name),
			zap.Int("fields", len(ds.Columns)),
			zap.Int64("rows", n),
			zap.Duration("elapsed", time.Since(start).Truncate(time.Millisecond)))
	}

	if err := w.Close(); err != nil {
		logger.Error("close destination", zap.Error(err))
		if code == exitOK {
			code = exitFailure
		}
	}
	if code == exitAborted {
		logger.Warn("generation aborted")
	}
	return code
}

func selected(only []string, name string) bool {
	if len(only) == 0 {
		return true
	}
	for _, t := range only {
		if t == strings.ToLower(name) {
			return true
		}
	}
	return false
}
