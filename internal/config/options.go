package config

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Options is a loosely typed option bag attached to a parser.
//
// Values usually come from JSON or YAML decoding, so numbers may arrive as
// float64 or int and nested objects as map[string]any. The accessors accept
// those shapes and fall back to the supplied default on anything else.
type Options map[string]any

// String returns the option as a string, or def if missing or not a string.
func (o Options) String(key, def string) string {
	v, ok := o[key]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return def
	}
}

// Bool returns the option as a bool. Strings such as "true"/"false" are parsed.
func (o Options) Bool(key string, def bool) bool {
	v, ok := o[key]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return def
		}
		return b
	default:
		return def
	}
}

// Int returns the option as an int. JSON numbers (float64) are truncated.
func (o Options) Int(key string, def int) int {
	v, ok := o[key]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return def
		}
		return n
	default:
		return def
	}
}

// Rune returns the first rune of a string option. "\t" and "tab" both mean a
// tab character, which is awkward to write in JSON by hand.
func (o Options) Rune(key string, def rune) rune {
	s := o.String(key, "")
	switch s {
	case "":
		return def
	case "tab", `\t`:
		return '\t'
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return def
	}
	return r
}

// StringMap returns a map option with string values. Non-string values are
// skipped. A missing option yields an empty, non-nil map.
func (o Options) StringMap(key string) map[string]string {
	out := map[string]string{}
	switch t := o[key].(type) {
	case map[string]string:
		for k, v := range t {
			out[k] = v
		}
	case map[string]any:
		for k, v := range t {
			if s, ok := v.(string); ok {
				out[k] = s
			}
		}
	}
	return out
}
