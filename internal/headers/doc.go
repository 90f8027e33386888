// Package headers infers the header row of a tabular sample and assigns
// column names to cells.
//
// The package is a pure preprocessing stage: it never reads files and never
// converts cell values. Row sources (see internal/parser/...) produce Rows of
// *Cell; the functions here only count, compare and label them.
//
// Typical flow:
//
//	offset, values := headers.GuessDefault(sample)
//	names, err := headers.MakeUnique(headers.Names(values), 63)
//	apply := headers.Processor(names)
//	for _, row := range sample[offset+1:] {
//		labeled := apply(row)
//		...
//	}
package headers
