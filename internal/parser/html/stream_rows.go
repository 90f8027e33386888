// Package html streams the rows of an HTML table into rows of header cells.
package html

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"headerprobe/internal/config"
	"headerprobe/internal/headers"
)

// maxColspan bounds colspan expansion so a hostile attribute cannot allocate
// unbounded rows.
const maxColspan = 1000

// StreamRows parses an HTML document and sends the rows of one table to out.
//
// Options:
//   - table_selector: CSS selector for candidate tables (default "table")
//   - table_index: which match to read, 0-based (default 0)
//   - content_type: HTTP Content-Type used as a charset hint (default "")
//
// Each <tr> that belongs directly to the table becomes a Row; rows of nested
// tables are skipped. Both <th> and <td> produce cells, with internal
// whitespace collapsed. A colspan of n adds n-1 empty cells after the cell so
// later cells keep their column positions.
//
// StreamRows closes src but not out.
func StreamRows(
	ctx context.Context,
	src io.ReadCloser,
	opt config.Options,
	out chan<- headers.Row,
	onErr func(line int, err error),
) error {
	defer src.Close()

	r, err := charset.NewReader(src, opt.String("content_type", ""))
	if err != nil {
		return fmt.Errorf("html: detect charset: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}

	selector := opt.String("table_selector", "table")
	index := opt.Int("table_index", 0)

	tables := doc.Find(selector)
	if index < 0 || index >= tables.Length() {
		return fmt.Errorf("html: table %d not found (selector %q matched %d)", index, selector, tables.Length())
	}
	tbl := tables.Eq(index)

	var rows []headers.Row
	line := 0
	tbl.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if !tr.Closest("table").IsSelection(tbl) {
			return
		}
		line++
		rows = append(rows, rowFromTR(tr, line, onErr))
	})

	for _, row := range rows {
		select {
		case out <- row:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func rowFromTR(tr *goquery.Selection, line int, onErr func(int, error)) headers.Row {
	var row headers.Row
	tr.ChildrenFiltered("th, td").Each(func(_ int, cell *goquery.Selection) {
		row = append(row, headers.NewCell(cellText(cell)))

		span := 1
		if v, ok := cell.Attr("colspan"); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			switch {
			case err != nil || n < 1:
				if onErr != nil {
					onErr(line, fmt.Errorf("html: invalid colspan %q", v))
				}
			case n > maxColspan:
				span = maxColspan
			default:
				span = n
			}
		}
		for i := 1; i < span; i++ {
			row = append(row, headers.NewCell(nil))
		}
	})
	return row
}

func cellText(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}
