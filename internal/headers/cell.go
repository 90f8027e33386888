package headers

import "strings"

// Cell is a single table entry as produced by a row source.
//
// Value and Empty are owned by the row source. Column and ColumnAutogenerated
// are assigned by the transform returned from Processor.
type Cell struct {
	Value any
	Empty bool

	Column              string
	ColumnAutogenerated bool
}

// Row is an ordered sequence of cells. Position defines the column index.
type Row []*Cell

// NewCell wraps a decoded value. The cell is empty when v is nil or a string
// that is blank after trimming.
func NewCell(v any) *Cell {
	return &Cell{Value: v, Empty: isEmptyValue(v)}
}

// NewRow builds a Row from raw values using NewCell.
func NewRow(values ...any) Row {
	r := make(Row, len(values))
	for i, v := range values {
		r[i] = NewCell(v)
	}
	return r
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []byte:
		return strings.TrimSpace(string(t)) == ""
	default:
		return false
	}
}

// placeholder fills a position the source row did not provide.
func placeholder() *Cell {
	return &Cell{Value: nil, Empty: true}
}

// NonEmpty returns the number of cells in r that carry content.
func (r Row) NonEmpty() int {
	n := 0
	for _, c := range r {
		if c != nil && !c.Empty {
			n++
		}
	}
	return n
}

// Values returns the raw cell values in position order.
func (r Row) Values() []any {
	out := make([]any, len(r))
	for i, c := range r {
		if c != nil {
			out[i] = c.Value
		}
	}
	return out
}
