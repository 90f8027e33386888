package storage

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// LayoutTable is the table every backend stores layouts in.
const LayoutTable = "header_layouts"

// NormalizeSource converts a source location to the canonical form used as the
// lookup key, so "HTTPS://Example.com/a.csv#top" and "https://example.com/a.csv"
// find the same layouts.
//
// URLs get a lower-case scheme and host and lose their fragment. A file://
// URL is reduced to its path. Anything else is only trimmed.
func NormalizeSource(s string) string {
	s = strings.TrimSpace(s)
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Single-letter schemes are Windows drive letters.
		return s
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme == "file" {
		return u.Path
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

// EncodeColumns serializes layout columns for the columns_json column.
func EncodeColumns(cols []Column) (string, error) {
	if cols == nil {
		cols = []Column{}
	}
	b, err := json.Marshal(cols)
	if err != nil {
		return "", fmt.Errorf("storage: encode columns: %w", err)
	}
	return string(b), nil
}

// DecodeColumns parses the columns_json column.
func DecodeColumns(s string) ([]Column, error) {
	var cols []Column
	if err := json.Unmarshal([]byte(s), &cols); err != nil {
		return nil, fmt.Errorf("storage: decode columns: %w", err)
	}
	return cols, nil
}

// Prepare returns l ready to be written: normalized source, encoded columns and
// a UTC creation time (now when unset).
func Prepare(l Layout, now func() time.Time) (Layout, string, error) {
	if strings.TrimSpace(l.Source) == "" {
		return Layout{}, "", fmt.Errorf("storage: layout source is empty")
	}
	l.Source = NormalizeSource(l.Source)
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now()
	}
	l.CreatedAt = l.CreatedAt.UTC()

	cols, err := EncodeColumns(l.Columns)
	if err != nil {
		return Layout{}, "", err
	}
	return l, cols, nil
}
