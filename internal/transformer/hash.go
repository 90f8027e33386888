// Package transformer contains transforms applied to labeled rows.
package transformer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"headerprobe/internal/headers"
)

// Hash computes a deterministic SHA-256 fingerprint of a labeled row and
// stores it in TargetField.
//
// Canonicalization rules:
//   - Fields are concatenated in order using Separator. An empty Fields list
//     hashes every column of the row in position order.
//   - Missing and empty cells are encoded as a single NUL byte (0x00).
//   - time.Time values are encoded as RFC3339Nano in UTC.
//   - Output is a lowercase hex string (length 64).
type Hash struct {
	// Fields is the ordered list of column names hashed.
	Fields []string

	// TargetField is the column that receives the hash. If the row already
	// has that column its value is replaced and left out of the hash;
	// otherwise a cell is appended.
	TargetField string

	// IncludeFieldNames includes "field=value" in the canonical form.
	IncludeFieldNames bool

	// Separator between field components. Defaults to ASCII Unit Separator
	// (0x1f).
	Separator string

	// TrimSpace trims leading/trailing whitespace of string values.
	TrimSpace bool
}

// Apply writes the fingerprint of row into TargetField and returns the row.
// Apply is a no-op when TargetField is empty.
func (h Hash) Apply(row headers.Row) headers.Row {
	if h.TargetField == "" {
		return row
	}

	sep := h.Separator
	if sep == "" {
		sep = "\x1f"
	}

	byName := make(map[string]*headers.Cell, len(row))
	target := -1
	for i, c := range row {
		if c == nil {
			continue
		}
		if c.Column == h.TargetField {
			target = i
			continue
		}
		byName[c.Column] = c
	}

	fields := h.Fields
	if len(fields) == 0 {
		fields = make([]string, 0, len(row))
		for _, c := range row {
			if c != nil && c.Column != h.TargetField {
				fields = append(fields, c.Column)
			}
		}
	}

	var b strings.Builder
	b.Grow(len(fields) * 20)
	for i, f := range fields {
		if i > 0 {
			b.WriteString(sep)
		}
		if h.IncludeFieldNames {
			b.WriteString(f)
			b.WriteByte('=')
		}
		c, ok := byName[f]
		if !ok || c.Empty {
			b.WriteByte('\x00')
			continue
		}
		appendCanonicalValue(&b, c.Value, h.TrimSpace)
	}

	sum := sha256.Sum256([]byte(b.String()))
	v := hex.EncodeToString(sum[:])

	if target >= 0 {
		row[target].Value, row[target].Empty = v, false
		return row
	}
	return append(row, &headers.Cell{Value: v, Column: h.TargetField})
}

// appendCanonicalValue appends a stable representation of v.
func appendCanonicalValue(b *strings.Builder, v any, trimSpace bool) {
	switch t := v.(type) {
	case nil:
		b.WriteByte('\x00')

	case string:
		if trimSpace {
			t = strings.TrimSpace(t)
		}
		b.WriteString(t)

	case []byte:
		s := string(t)
		if trimSpace {
			s = strings.TrimSpace(s)
		}
		b.WriteString(s)

	case bool:
		b.WriteString(strconv.FormatBool(t))

	case int:
		b.WriteString(strconv.Itoa(t))
	case int64:
		b.WriteString(strconv.FormatInt(t, 10))
	case uint64:
		b.WriteString(strconv.FormatUint(t, 10))

	case float32:
		b.WriteString(strconv.FormatFloat(float64(t), 'g', -1, 32))
	case float64:
		b.WriteString(strconv.FormatFloat(t, 'g', -1, 64))

	case time.Time:
		tt := t
		if !tt.IsZero() {
			tt = tt.UTC()
		}
		b.WriteString(tt.Format(time.RFC3339Nano))

	default:
		b.WriteString(fmt.Sprint(t))
	}
}
