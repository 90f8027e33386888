package probe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"headerprobe/internal/config"
	"headerprobe/internal/headers"
	csvparser "headerprobe/internal/parser/csv"
	htmlparser "headerprobe/internal/parser/html"
	jsonparser "headerprobe/internal/parser/json"
	xlsxparser "headerprobe/internal/parser/xlsx"
)

// Format names a row source.
type Format string

const (
	FormatUnknown Format = ""
	FormatCSV     Format = "csv"
	FormatHTML    Format = "html"
	FormatXLSX    Format = "xlsx"
	FormatJSON    Format = "json"
)

// ParseFormat maps a user-supplied format name to a Format. Empty and "auto"
// mean "sniff".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return FormatUnknown, nil
	case "csv", "tsv", "txt":
		return FormatCSV, nil
	case "html", "htm":
		return FormatHTML, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	case "json", "ndjson", "jsonl":
		return FormatJSON, nil
	default:
		return FormatUnknown, fmt.Errorf("unknown format %q (want csv, html, xlsx or json)", s)
	}
}

var zipMagic = []byte("PK\x03\x04")

// sniffFormat infers the input format from a byte sample.
// Detection is heuristic and intentionally conservative: anything that is
// not recognizably a workbook, markup or JSON is treated as delimited text.
func sniffFormat(sample []byte) Format {
	if bytes.HasPrefix(sample, zipMagic) {
		return FormatXLSX
	}
	trim := bytes.TrimSpace(bytes.TrimPrefix(sample, []byte("\xef\xbb\xbf")))
	if len(trim) == 0 {
		return FormatUnknown
	}
	switch trim[0] {
	case '<':
		return FormatHTML
	case '[', '{':
		return FormatJSON
	default:
		return FormatCSV
	}
}

// StreamRows dispatches to the row source for f. It closes src but not out.
func StreamRows(
	ctx context.Context,
	f Format,
	src io.ReadCloser,
	opt config.Options,
	out chan<- headers.Row,
	onErr func(line int, err error),
) error {
	switch f {
	case FormatCSV:
		return csvparser.StreamRows(ctx, src, opt, out, onErr)
	case FormatHTML:
		return htmlparser.StreamRows(ctx, src, opt, out, onErr)
	case FormatXLSX:
		return xlsxparser.StreamRows(ctx, src, opt, out, onErr)
	case FormatJSON:
		return jsonparser.StreamRows(ctx, src, opt, out, onErr)
	default:
		_ = src.Close()
		return fmt.Errorf("no row source for format %q", f)
	}
}
