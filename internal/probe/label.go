package probe

import (
	"context"
	"fmt"
	"time"

	"headerprobe/internal/headers"
	"headerprobe/internal/metrics"
	"headerprobe/internal/storage"
)

// Label streams every row of opt.URL after the header and hands each one to
// emit, labeled with column names.
//
// The header layout comes from layout when non-nil (for example one loaded
// from a LayoutRepository); otherwise Label runs Probe first. Rows at or
// before the header offset are dropped. Autogenerated columns of a stored
// layout are re-derived by headers.Processor, so rows wider than the layout
// still get names.
//
// Label returns the number of rows emitted. Unlike Probe it reads the whole
// source, and malformed records are passed to onErr when it is non-nil.
func Label(
	ctx context.Context,
	opt Options,
	layout *storage.Layout,
	emit func(headers.Row) error,
	onErr func(line int, err error),
) (n int, err error) {
	start := time.Now()
	defer func() { metrics.RecordStep("label", start, err) }()

	if layout == nil {
		res, err := Probe(ctx, opt)
		if err != nil {
			return 0, err
		}
		l := res.Layout()
		layout = &l
	}

	format := opt.Format
	if format == FormatUnknown {
		format = Format(layout.Format)
	}
	if format == FormatUnknown {
		return 0, fmt.Errorf("label: format unknown for %s", opt.URL)
	}

	names := make([]string, len(layout.Columns))
	for i, c := range layout.Columns {
		if !c.Autogenerated {
			names[i] = c.Name
		}
	}
	proc := headers.Processor(names)

	src, err := openFn(ctx, opt.URL, opt.AllowInsecureTLS)
	if err != nil {
		return 0, fmt.Errorf("open: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make(chan headers.Row, 64)
	errc := make(chan error, 1)
	go func() {
		err := StreamRows(ctx, format, src, opt.ParserOptions, out, onErr)
		close(out)
		errc <- err
	}()

	idx, failedAt := -1, -1
	var emitErr error
	for row := range out {
		idx++
		if emitErr != nil || idx <= layout.HeaderOffset {
			continue
		}
		if emitErr = emit(proc(row)); emitErr != nil {
			failedAt = idx
			cancel()
			continue
		}
		n++
	}

	streamErr := <-errc
	metrics.IncCounter(metrics.RowsLabeledTotal, float64(n), metrics.Labels{"format": string(format)})
	if emitErr != nil {
		return n, fmt.Errorf("emit row %d: %w", failedAt, emitErr)
	}
	if streamErr != nil {
		return n, fmt.Errorf("stream %s: %w", format, streamErr)
	}
	return n, nil
}
