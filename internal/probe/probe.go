// Package probe samples a tabular source and infers its header layout.
//
// The probe package is responsible for:
//   - Fetching a bounded sample of input data (file://, local path or http(s)://)
//   - Detecting the file format (CSV, HTML table, XLSX workbook, JSON)
//   - Locating the header row and repairing its names (headers package)
//   - Producing a Result that can be printed, reported or stored as a layout
//
// Design constraints:
//   - Sampling must be bounded in memory and time. XLSX is the exception: a
//     workbook is a zip archive and must be read whole, up to maxWorkbookBytes.
//   - Malformed records are counted and skipped; they never fail a probe.
package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"headerprobe/internal/config"
	"headerprobe/internal/headers"
	"headerprobe/internal/metrics"
)

const (
	// DefaultMaxBytes is the sample size used when Options.MaxBytes is 0.
	DefaultMaxBytes = 20000
	// DefaultSampleRows bounds the rows inspected when Options.SampleRows is 0.
	DefaultSampleRows = 1000
	// DefaultPreviewRows is the number of labeled data rows kept in a Result.
	DefaultPreviewRows = 5

	maxWorkbookBytes = 64 << 20
)

// Options control sampling and header inference.
type Options struct {
	// URL to fetch: http(s)://, file:// or a bare local path.
	URL string
	// MaxBytes to sample from the start of the source.
	MaxBytes int
	// SampleRows bounds how many rows are parsed from the sample.
	SampleRows int
	// PreviewRows is how many labeled rows after the header to keep. A
	// negative value disables the preview.
	PreviewRows int
	// Format forces a row source; FormatUnknown sniffs the sample.
	Format Format
	// ParserOptions are passed to the row source unchanged.
	ParserOptions config.Options
	// Tolerance is handed to headers.Guess. Callers wanting the library
	// default pass headers.DefaultTolerance.
	Tolerance int
	// MaxLength caps column names in runes; 0 disables the cap.
	MaxLength int
	// Normalize rewrites names into lowercase identifiers before MakeUnique.
	Normalize bool
	// AllowInsecureTLS skips certificate verification for https sources.
	AllowInsecureTLS bool
}

func (o Options) withDefaults() Options {
	if o.MaxBytes <= 0 {
		o.MaxBytes = DefaultMaxBytes
	}
	if o.SampleRows <= 0 {
		o.SampleRows = DefaultSampleRows
	}
	if o.PreviewRows == 0 {
		o.PreviewRows = DefaultPreviewRows
	}
	return o
}

// Column describes one inferred column.
type Column struct {
	Index         int    `json:"index"`
	Name          string `json:"name"`
	Raw           string `json:"raw,omitempty"`
	Autogenerated bool   `json:"autogenerated,omitempty"`
}

// Result is the outcome of a probe.
type Result struct {
	Source string `json:"source"`
	Format Format `json:"format"`
	// HeaderFound is false when no row reached the modal threshold. Offset is
	// then 0 and every column is autogenerated.
	HeaderFound  bool             `json:"header_found"`
	Offset       int              `json:"header_offset"`
	ModalColumns int              `json:"modal_columns"`
	RawHeaders   []string         `json:"raw_headers"`
	Columns      []Column         `json:"columns"`
	Preview      []map[string]any `json:"preview,omitempty"`
	// Rows is the number of rows parsed from the sample, header included.
	Rows int `json:"rows_sampled"`
	// Truncated reports that the source was longer than the sample.
	Truncated   bool `json:"truncated"`
	ParseErrors int  `json:"parse_errors"`

	stats uniqueness
}

// Names returns the final column names in position order.
func (r Result) Names() []string {
	out := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		out[i] = c.Name
	}
	return out
}

// Probe samples opt.URL and infers its header layout.
//
// Steps (each recorded as a metrics step):
//   - fetch: read up to MaxBytes; a truncated CSV/JSON sample is cut at its
//     last newline, a truncated XLSX is re-read whole.
//   - parse: stream up to SampleRows rows with the row source for the format.
//   - infer: Analyze the rows.
//
// Errors:
//   - Returns an error if the source cannot be read, the format cannot be
//     determined, the row source fails, or MaxLength is too small for
//     MakeUnique (wraps headers.ErrInvalidConfiguration).
func Probe(ctx context.Context, opt Options) (res Result, err error) {
	start := time.Now()
	defer func() { metrics.RecordStep("probe", start, err) }()

	opt = opt.withDefaults()

	src, format, truncated, err := fetch(ctx, opt)
	if err != nil {
		return Result{}, err
	}

	stepStart := time.Now()
	rows, parseErrs, err := collectRows(ctx, format, src, opt.ParserOptions, opt.SampleRows)
	metrics.RecordStep("parse", stepStart, err)
	if err != nil {
		return Result{}, fmt.Errorf("parse %s: %w", format, err)
	}

	stepStart = time.Now()
	res, err = Analyze(rows, opt)
	metrics.RecordStep("infer", stepStart, err)
	if err != nil {
		return Result{}, err
	}

	res.Source = opt.URL
	res.Format = format
	res.Truncated = truncated
	res.ParseErrors = parseErrs

	metrics.IncCounter(metrics.RowsSampledTotal, float64(res.Rows), metrics.Labels{"format": string(format)})
	named, auto := 0, 0
	for _, c := range res.Columns {
		if c.Autogenerated {
			auto++
		} else {
			named++
		}
	}
	metrics.IncCounter(metrics.ColumnsTotal, float64(named), metrics.Labels{"kind": "named"})
	metrics.IncCounter(metrics.ColumnsTotal, float64(auto), metrics.Labels{"kind": "autogenerated"})

	return res, nil
}

// fetch reads the sample and decides the format. The returned reader holds
// the bytes the row source should parse.
func fetch(ctx context.Context, opt Options) (_ io.ReadCloser, _ Format, truncated bool, err error) {
	start := time.Now()
	defer func() { metrics.RecordStep("fetch", start, err) }()

	sample, truncated, err := peek(ctx, opt.URL, opt.MaxBytes, opt.AllowInsecureTLS)
	if err != nil {
		return nil, FormatUnknown, false, fmt.Errorf("peek: %w", err)
	}

	format := opt.Format
	if format == FormatUnknown {
		format = sniffFormat(sample)
	}

	switch {
	case format == FormatUnknown:
		return nil, FormatUnknown, false, fmt.Errorf("cannot detect format: sample of %s is empty", opt.URL)
	case format == FormatXLSX && truncated:
		whole, err := readWhole(ctx, opt.URL, maxWorkbookBytes, opt.AllowInsecureTLS)
		if err != nil {
			return nil, FormatUnknown, false, err
		}
		sample = whole
	case truncated:
		sample = cutToLastNewline(sample)
	}

	return io.NopCloser(bytes.NewReader(sample)), format, truncated, nil
}

func readWhole(ctx context.Context, url string, limit int, insecure bool) ([]byte, error) {
	b, more, err := peek(ctx, url, limit, insecure)
	if err != nil {
		return nil, fmt.Errorf("read workbook: %w", err)
	}
	if more {
		return nil, fmt.Errorf("read workbook: %s is larger than %d bytes", url, limit)
	}
	return b, nil
}

// collectRows runs the row source in a goroutine and keeps at most limit
// rows. Reaching the limit cancels the source.
func collectRows(ctx context.Context, f Format, src io.ReadCloser, opt config.Options, limit int) ([]headers.Row, int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make(chan headers.Row, 64)
	errc := make(chan error, 1)
	parseErrs := 0

	go func() {
		err := StreamRows(ctx, f, src, opt, out, func(int, error) { parseErrs++ })
		close(out)
		errc <- err
	}()

	rows := make([]headers.Row, 0, min(limit, 256))
	full := false
	for row := range out {
		if full {
			continue
		}
		rows = append(rows, row)
		if len(rows) >= limit {
			full = true
			cancel()
		}
	}

	err := <-errc
	if err != nil && !(full && errors.Is(err, context.Canceled)) {
		return nil, parseErrs, err
	}
	return rows, parseErrs, nil
}

// Analyze infers the header layout of already parsed rows.
//
// The header row is located with headers.Guess, its values are optionally
// normalized, made unique with headers.MakeUnique and kept clear of
// autogenerated names with headers.AvoidAutoNames. Every later row is
// labeled with headers.Processor. Columns covers the header and the widest
// data row; positions without a name are autogenerated.
func Analyze(rows []headers.Row, opt Options) (Result, error) {
	opt = opt.withDefaults()

	res := Result{
		Rows:         len(rows),
		ModalColumns: headers.ColumnCountModal(rows),
	}

	offset, raw := headers.Guess(rows, opt.Tolerance)
	res.HeaderFound = raw != nil
	res.Offset = offset
	res.RawHeaders = headers.Names(raw)

	names := append([]string(nil), res.RawHeaders...)
	if opt.Normalize {
		for i, n := range names {
			names[i] = normalizeFieldName(n)
		}
	}
	unique, err := headers.MakeUnique(names, opt.MaxLength)
	if err != nil {
		return Result{}, err
	}

	data := rows
	if res.HeaderFound {
		data = rows[offset+1:]
	}

	width := len(unique)
	for _, row := range data {
		width = max(width, len(row))
	}
	unique, err = headers.AvoidAutoNames(unique, width, opt.MaxLength)
	if err != nil {
		return Result{}, err
	}
	res.Columns = make([]Column, width)
	for i := range res.Columns {
		c := Column{Index: i}
		if i < len(unique) {
			c.Name = unique[i]
		}
		if i < len(res.RawHeaders) {
			c.Raw = strings.TrimSpace(res.RawHeaders[i])
		}
		if c.Name == "" {
			c.Name = headers.AutoColumnName(i)
			c.Autogenerated = true
		}
		res.Columns[i] = c
	}

	proc := headers.Processor(unique)
	res.stats = newUniqueness(res.Names())
	for i, row := range data {
		labeled := proc(row)
		res.stats.add(labeled)
		if opt.PreviewRows > 0 && i < opt.PreviewRows {
			res.Preview = append(res.Preview, rowMap(labeled))
		}
	}
	return res, nil
}

// rowMap keys a labeled row by column name. Empty cells map to nil.
func rowMap(row headers.Row) map[string]any {
	m := make(map[string]any, len(row))
	for _, c := range row {
		if c.Empty {
			m[c.Column] = nil
			continue
		}
		m[c.Column] = c.Value
	}
	return m
}

// normalizeFieldName converts an arbitrary header into a lowercase
// identifier: diacritics are folded ("Název" -> "nazev"), separators become a
// single underscore and anything outside [a-z0-9_] is dropped.
func normalizeFieldName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(fold, s); err == nil {
		s = folded
	}
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))

	lastUnderscore := false
	for _, r := range s {
		if unicode.IsSpace(r) || r == '-' || r == '.' || r == '/' || r == '\\' || r == ':' || r == ';' {
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
			continue
		}

		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
			lastUnderscore = (r == '_')
			continue
		}

		// Drop everything else.
	}

	return strings.Trim(b.String(), "_")
}
