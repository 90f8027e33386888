package probe

import (
	"fmt"
	"strings"

	"headerprobe/internal/headers"
	"headerprobe/internal/storage"
)

const distinctCapPerColumn = 10000

// uniqueness holds bounded per-column statistics over the labeled data rows.
//
// filled counts rows where the column has a non-empty value. distinct counts
// distinct non-empty values up to distinctCapPerColumn; once a column hits
// the cap its set is dropped and capped is set.
type uniqueness struct {
	order    []string
	filled   map[string]int
	distinct map[string]int
	capped   map[string]bool
	sets     map[string]map[string]struct{}
}

func newUniqueness(columns []string) uniqueness {
	u := uniqueness{
		order:    append([]string(nil), columns...),
		filled:   make(map[string]int, len(columns)),
		distinct: make(map[string]int, len(columns)),
		capped:   make(map[string]bool, len(columns)),
		sets:     make(map[string]map[string]struct{}, len(columns)),
	}
	for _, c := range columns {
		u.sets[c] = make(map[string]struct{})
	}
	return u
}

func (u *uniqueness) add(row headers.Row) {
	for _, c := range row {
		if c.Empty {
			continue
		}
		u.filled[c.Column]++
		if u.capped[c.Column] {
			continue
		}
		set := u.sets[c.Column]
		if set == nil {
			continue
		}
		key := strings.TrimSpace(fmt.Sprint(c.Value))
		if _, ok := set[key]; ok {
			continue
		}
		set[key] = struct{}{}
		u.distinct[c.Column]++
		if len(set) >= distinctCapPerColumn {
			u.capped[c.Column] = true
			u.sets[c.Column] = nil
		}
	}
}

// Report renders a human-readable summary of the result: where the header
// is, what each column is called, and how filled and distinct its sampled
// values are.
func (r Result) Report() string {
	var b strings.Builder

	fmt.Fprintf(&b, "source=%s format=%s\n", r.Source, r.Format)
	if r.HeaderFound {
		fmt.Fprintf(&b, "header_offset=%d modal_columns=%d rows_sampled=%d parse_errors=%d truncated=%t\n",
			r.Offset, r.ModalColumns, r.Rows, r.ParseErrors, r.Truncated)
	} else {
		fmt.Fprintf(&b, "header_offset=none modal_columns=%d rows_sampled=%d parse_errors=%d truncated=%t\n",
			r.ModalColumns, r.Rows, r.ParseErrors, r.Truncated)
	}

	dataRows := r.Rows
	if r.HeaderFound {
		dataRows = r.Rows - r.Offset - 1
	}

	fmt.Fprintf(&b, "%-5s\t%-24s\t%-24s\t%-6s\t%-7s\tunique\n", "index", "name", "raw", "auto", "filled")
	for _, c := range r.Columns {
		filled := r.stats.filled[c.Name]
		unique := fmt.Sprintf("%d", r.stats.distinct[c.Name])
		if r.stats.capped[c.Name] {
			unique += "+"
		}
		fillPct := 0.0
		if dataRows > 0 {
			fillPct = float64(filled) / float64(dataRows) * 100
		}
		fmt.Fprintf(&b, "%-5d\t%-24s\t%-24s\t%-6t\t%5.1f%%\t%s\n",
			c.Index, c.Name, c.Raw, c.Autogenerated, fillPct, unique)
	}

	return strings.TrimRight(b.String(), "\n")
}

// Layout converts the result into a storable layout. A result without a
// header row gets HeaderOffset -1 so that consumers skip no rows.
func (r Result) Layout() storage.Layout {
	l := storage.Layout{
		Source:       r.Source,
		Format:       string(r.Format),
		HeaderOffset: r.Offset,
		ModalColumns: r.ModalColumns,
		Columns:      make([]storage.Column, len(r.Columns)),
	}
	if !r.HeaderFound {
		l.HeaderOffset = -1
	}
	for i, c := range r.Columns {
		l.Columns[i] = storage.Column{
			Index:         c.Index,
			Name:          c.Name,
			Raw:           c.Raw,
			Autogenerated: c.Autogenerated,
		}
	}
	return l
}
