package headers

import (
	"fmt"
	"strings"
)

// DefaultTolerance is the number of blank header cells GuessDefault accepts
// relative to the modal column count.
const DefaultTolerance = 1

// Guess locates the header row of a sample.
//
// It returns the offset of the first row whose non-empty cell count is at
// least ColumnCountModal(rows)-tolerance, together with that row's raw values.
// The values are not deduplicated; pass them through Names and MakeUnique
// before use.
//
// Edge cases:
//   - An empty sample, or one where no row reaches the threshold, yields
//     (0, nil).
//   - When every row has at most one non-empty cell the modal count is 0 and
//     the first row qualifies for any tolerance >= 0.
func Guess(rows []Row, tolerance int) (int, []any) {
	modal := ColumnCountModal(rows)
	for i, row := range rows {
		if row.NonEmpty() >= modal-tolerance {
			return i, row.Values()
		}
	}
	return 0, nil
}

// GuessDefault is Guess with DefaultTolerance.
func GuessDefault(rows []Row) (int, []any) {
	return Guess(rows, DefaultTolerance)
}

// Names converts raw header values into name strings. nil becomes "" (an
// absent name); other values are formatted with fmt and left untrimmed, since
// MakeUnique trims.
func Names(values []any) []string {
	out := make([]string, len(values))
	for i, v := range values {
		switch t := v.(type) {
		case nil:
			out[i] = ""
		case string:
			out[i] = t
		case []byte:
			out[i] = string(t)
		case fmt.Stringer:
			out[i] = t.String()
		default:
			out[i] = strings.TrimSpace(fmt.Sprint(t))
		}
	}
	return out
}
