package headers

// ColumnCountModal returns the most common number of non-empty cells across
// rows, which is taken to be the column count of the table.
//
// Rows with at most one non-empty cell do not vote. If no row votes, the
// result is 0.
//
// Ties go to the count that reached the winning frequency first in row order.
// Callers should not rely on which of the tied counts is returned.
func ColumnCountModal(rows []Row) int {
	counts := make(map[int]int)
	modal, best := 0, 0
	for _, row := range rows {
		n := row.NonEmpty()
		if n <= 1 {
			continue
		}
		counts[n]++
		if counts[n] > best {
			modal, best = n, counts[n]
		}
	}
	return modal
}
