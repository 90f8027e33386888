// Command label streams a tabular source as newline-delimited JSON objects
// keyed by its header names.
//
// The header layout is inferred with the same probe as cmd/probe, or, with
// -layout-from-store, loaded from the layout repository where cmd/probe
// -store recorded it. Every row after the header is written to stdout as one
// JSON object; keys follow column order and empty cells are null. With
// -hash-field each object also carries a SHA-256 fingerprint of its values,
// usable as a dedupe key downstream.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"headerprobe/internal/headers"
	"headerprobe/internal/metrics/setup"
	"headerprobe/internal/probe"
	"headerprobe/internal/storage"
	"headerprobe/internal/transformer"

	// register all layout backends with the storage factory.
	_ "headerprobe/internal/storage/all"
)

type labelFunc func(
	ctx context.Context,
	opt probe.Options,
	layout *storage.Layout,
	emit func(headers.Row) error,
	onErr func(line int, err error),
) (int, error)

// appDeps are the side-effecting collaborators of runMain.
type appDeps struct {
	initMetrics func(ctx context.Context, jobName, backendName string) (func(), error)
	openRepo    func(ctx context.Context, cfg storage.Config) (storage.LayoutRepository, error)
	label       labelFunc
}

func defaultDeps() appDeps {
	return appDeps{
		initMetrics: func(ctx context.Context, job, backend string) (func(), error) {
			return setup.Init(ctx, job, backend, nil)
		},
		openRepo: storage.New,
		label:    probe.Label,
	}
}

func main() {
	os.Exit(runMain(context.Background(), os.Args[1:], os.Stdout, os.Stderr, defaultDeps()))
}

// runMain parses args, resolves the layout and streams labeled rows to
// stdout. It returns the process exit code: 2 for usage errors, 1 for
// runtime failures.
func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, deps appDeps) int {
	fs := flag.NewFlagSet("label", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		flagURL       = fs.String("url", "", "URL or path of the source file")
		flagFormat    = fs.String("format", "auto", "Input format: auto|csv|html|xlsx|json")
		flagBytes     = fs.Int("bytes", probe.DefaultMaxBytes, "Bytes sampled when probing the header")
		flagRows      = fs.Int("rows", probe.DefaultSampleRows, "Rows inspected when probing the header")
		flagTolerance = fs.Int("tolerance", headers.DefaultTolerance, "Blank header cells allowed relative to the modal column count")
		flagMaxLength = fs.Int("max-length", 0, "Maximum column name length in runes (0 = unlimited)")
		flagNormalize = fs.Bool("normalize", false, "Rewrite column names into lowercase identifiers")
		flagInsecure  = fs.Bool("allow-insecure", false, "Skip TLS verification for https sources")

		flagFromStore = fs.Bool("layout-from-store", false, "Use the latest stored layout for -url instead of probing")
		flagBackend   = fs.String("backend", "", "Layout storage backend: postgres|mssql|sqlite (empty = derive from -dsn)")
		flagDSN       = fs.String("dsn", "", "Layout storage DSN (falls back to env DSN)")

		flagHashField  = fs.String("hash-field", "", "Add a SHA-256 row fingerprint under this column name; must not name a source column (empty disables)")
		flagHashFields = fs.String("hash-fields", "", "Comma-separated columns hashed by -hash-field (empty = all columns)")

		flagJob     = fs.String("job", "label", "Job name used in metrics tags")
		flagMetrics = fs.String("metrics-backend", "", "Metrics backend: none|datadog (falls back to env METRICS_BACKEND)")
		verbose     = fs.Bool("v", false, "enable verbose logs")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	logger := log.New(stderr, "", log.LstdFlags)

	if strings.TrimSpace(*flagURL) == "" {
		fmt.Fprintln(stderr, "usage: label -url <source> [flags]")
		return 2
	}
	format, err := probe.ParseFormat(*flagFormat)
	if err != nil {
		fmt.Fprintf(stderr, "usage: %v\n", err)
		return 2
	}

	opt := probe.Options{
		URL:              *flagURL,
		MaxBytes:         *flagBytes,
		SampleRows:       *flagRows,
		PreviewRows:      -1,
		Format:           format,
		Tolerance:        *flagTolerance,
		MaxLength:        *flagMaxLength,
		Normalize:        *flagNormalize,
		AllowInsecureTLS: *flagInsecure,
	}

	var layout *storage.Layout
	if *flagFromStore {
		dsn := strings.TrimSpace(*flagDSN)
		if dsn == "" {
			dsn = strings.TrimSpace(os.Getenv("DSN"))
		}
		if dsn == "" {
			fmt.Fprintln(stderr, "usage: -layout-from-store needs -dsn or env DSN")
			return 2
		}
		layout, err = loadLayout(ctx, deps, storage.Config{Kind: strings.ToLower(strings.TrimSpace(*flagBackend)), DSN: dsn}, *flagURL)
		if err != nil {
			fmt.Fprintf(stderr, "load layout: %v\n", err)
			return 1
		}
		if layout == nil {
			logger.Printf("label: no stored layout for %s; probing", *flagURL)
		} else if *verbose {
			logger.Printf("label: stored layout id=%d offset=%d columns=%d", layout.ID, layout.HeaderOffset, len(layout.Columns))
		}
	}

	metricsBackend := *flagMetrics
	if metricsBackend == "" {
		metricsBackend = os.Getenv("METRICS_BACKEND")
	}
	cleanup, err := deps.initMetrics(ctx, *flagJob, metricsBackend)
	if err != nil {
		fmt.Fprintf(stderr, "init metrics: %v\n", err)
		return 1
	}
	defer cleanup()

	hasher := transformer.Hash{
		TargetField:       strings.TrimSpace(*flagHashField),
		Fields:            splitList(*flagHashFields),
		IncludeFieldNames: true,
		TrimSpace:         true,
	}

	w := bufio.NewWriter(stdout)
	skipped := 0
	onErr := func(line int, err error) {
		skipped++
		if *verbose {
			logger.Printf("label: skip line %d: %v", line, err)
		}
	}

	start := time.Now()
	n, err := deps.label(ctx, opt, layout, func(row headers.Row) error {
		if hasher.TargetField != "" && hasColumn(row, hasher.TargetField) {
			return fmt.Errorf("-hash-field %q is already a column of %s", hasher.TargetField, *flagURL)
		}
		return writeRow(w, hasher.Apply(row))
	}, onErr)
	if ferr := w.Flush(); err == nil && ferr != nil {
		err = fmt.Errorf("flush: %w", ferr)
	}
	if err != nil {
		fmt.Fprintf(stderr, "run: %v\n", err)
		return 1
	}

	if *verbose {
		logger.Printf("label: %d rows (%d skipped) in %s", n, skipped, time.Since(start).Truncate(time.Millisecond))
	}
	return 0
}

// loadLayout returns the latest stored layout for source, or nil when the
// repository has none.
func loadLayout(ctx context.Context, deps appDeps, cfg storage.Config, source string) (*storage.Layout, error) {
	repo, err := deps.openRepo(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer repo.Close()

	l, err := repo.LatestLayout(ctx, source)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func hasColumn(row headers.Row, name string) bool {
	for _, c := range row {
		if c.Column == name {
			return true
		}
	}
	return false
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

// writeRow writes row as one JSON object line. Keys keep column order.
func writeRow(w *bufio.Writer, row headers.Row) error {
	w.WriteByte('{')
	for i, c := range row {
		if i > 0 {
			w.WriteByte(',')
		}
		k, err := json.Marshal(c.Column)
		if err != nil {
			return err
		}
		w.Write(k)
		w.WriteByte(':')

		var v any
		if !c.Empty {
			v = c.Value
		}
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("column %s: %w", c.Column, err)
		}
		w.Write(b)
	}
	w.WriteByte('}')
	return w.WriteByte('\n')
}
