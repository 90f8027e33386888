package headers

import "strconv"

// AutoColumnName is the name assigned to position i when no header is known.
func AutoColumnName(i int) string {
	return "column_" + strconv.Itoa(i)
}

// Processor returns a transform that labels every cell of a row with the
// column name at its position.
//
// The returned Row has max(len(row), len(names)) cells:
//   - positions the row does not have are filled with empty placeholder cells
//     (Value nil);
//   - positions with no name, either "" or past the end of names, are labeled
//     AutoColumnName(i) and flagged ColumnAutogenerated.
//
// Output cells are copies, so the input row is never modified and the
// transform may be shared between goroutines. Value and Empty are carried
// over untouched.
func Processor(names []string) func(Row) Row {
	names = append([]string(nil), names...)

	return func(row Row) Row {
		n := len(row)
		if len(names) > n {
			n = len(names)
		}

		out := make(Row, n)
		for i := 0; i < n; i++ {
			var c Cell
			if i < len(row) && row[i] != nil {
				c = Cell{Value: row[i].Value, Empty: row[i].Empty}
			} else {
				c = *placeholder()
			}

			name := ""
			if i < len(names) {
				name = names[i]
			}
			if name == "" {
				c.Column = AutoColumnName(i)
				c.ColumnAutogenerated = true
			} else {
				c.Column = name
			}
			out[i] = &c
		}
		return out
	}
}
