// Package csv streams delimited text into rows of header cells.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"headerprobe/internal/config"
	"headerprobe/internal/headers"
)

// StreamRows reads CSV from src and sends one headers.Row per record to out.
//
// Every record is emitted, including title and header lines, since locating
// the header is the consumer's job. Records may have different widths.
//
// Options:
//   - comma: field delimiter (default ','; "tab" for TSV)
//   - lazy_quotes: tolerate bare quotes (default false)
//   - trim_space: trim values (default true)
//   - encoding: WHATWG encoding label such as "windows-1250" (default UTF-8).
//     A UTF-8 or UTF-16 byte order mark always wins over the label.
//
// Malformed records are reported through onErr and skipped. StreamRows closes
// src but not out; the caller closes out after StreamRows returns.
func StreamRows(
	ctx context.Context,
	src io.ReadCloser,
	opt config.Options,
	out chan<- headers.Row,
	onErr func(line int, err error),
) error {
	defer src.Close()

	r, err := decodeReader(src, opt.String("encoding", ""))
	if err != nil {
		return err
	}

	cr := csv.NewReader(r)
	cr.Comma = opt.Rune("comma", ',')
	cr.LazyQuotes = opt.Bool("lazy_quotes", false)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	trim := opt.Bool("trim_space", true)

	var line int
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line++
		rec, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				if onErr != nil {
					onErr(line, fmt.Errorf("csv read: %w", err))
				}
				continue
			}
			return fmt.Errorf("csv read line %d: %w", line, err)
		}

		row := make(headers.Row, len(rec))
		for i, v := range rec {
			if trim {
				v = strings.TrimSpace(v)
			}
			row[i] = headers.NewCell(v)
		}

		select {
		case out <- row:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// decodeReader wraps r so that it yields UTF-8. A byte order mark selects
// UTF-8 or UTF-16 regardless of label; otherwise the label (or UTF-8 when
// empty) is used.
func decodeReader(r io.Reader, label string) (io.Reader, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())), nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("csv: unknown encoding %q: %w", label, err)
	}
	return transform.NewReader(r, unicode.BOMOverride(enc.NewDecoder())), nil
}
