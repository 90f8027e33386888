// Package xlsx streams worksheet rows of an Excel workbook into rows of header
// cells.
package xlsx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/xuri/excelize/v2"

	"headerprobe/internal/config"
	"headerprobe/internal/headers"
)

// ErrNoSheets is returned for a workbook without worksheets.
var ErrNoSheets = errors.New("xlsx: workbook has no sheets")

// StreamRows opens a workbook from src and sends the rows of one sheet to out.
//
// Options:
//   - sheet: worksheet name (default the first sheet)
//   - trim_space: trim values (default true)
//
// The whole workbook is buffered since XLSX is a zip container. Trailing empty
// cells of a row are not reported by the workbook and so are not emitted.
// StreamRows closes src but not out.
func StreamRows(
	ctx context.Context,
	src io.ReadCloser,
	opt config.Options,
	out chan<- headers.Row,
	onErr func(line int, err error),
) error {
	defer src.Close()

	f, err := excelize.OpenReader(src)
	if err != nil {
		return fmt.Errorf("open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheet, err := pickSheet(f.GetSheetList(), opt.String("sheet", ""))
	if err != nil {
		return err
	}

	it, err := f.Rows(sheet)
	if err != nil {
		return fmt.Errorf("xlsx rows of %q: %w", sheet, err)
	}
	defer it.Close()

	trim := opt.Bool("trim_space", true)
	line := 0
	for it.Next() {
		line++
		cols, err := it.Columns()
		if err != nil {
			if onErr != nil {
				onErr(line, fmt.Errorf("xlsx row: %w", err))
			}
			continue
		}

		row := make(headers.Row, len(cols))
		for i, v := range cols {
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
	if err := it.Error(); err != nil {
		return fmt.Errorf("xlsx iterate %q: %w", sheet, err)
	}
	return nil
}

func pickSheet(sheets []string, want string) (string, error) {
	if len(sheets) == 0 {
		return "", ErrNoSheets
	}
	if want == "" {
		return sheets[0], nil
	}
	if slices.Contains(sheets, want) {
		return want, nil
	}
	return "", fmt.Errorf("xlsx: sheet %q not found (have %s)", want, strings.Join(sheets, ", "))
}
