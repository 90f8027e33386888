package headers

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrInvalidConfiguration is returned by MakeUnique when maxLength leaves no
// room for a unique, suffixed name.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// MakeUnique returns names with duplicates repaired.
//
// Every name is trimmed. Each name that occurs more than once gets "_1", "_2",
// ... appended to its occurrences in order; names that are already unique are
// left alone.
//
// If maxLength > 0 no result is longer than maxLength runes. Names are cut to
// maxLength-d runes, where the suffix budget d starts at 0 and grows until the
// suffixed names fit. Duplicates are counted after cutting, so two distinct
// names sharing a long prefix may both receive a suffix. maxLength <= 0
// disables the limit.
//
// Errors:
//   - Wraps ErrInvalidConfiguration when d would exceed maxLength.
func MakeUnique(names []string, maxLength int) ([]string, error) {
	trimmed := make([]string, len(names))
	for i, h := range names {
		trimmed[i] = strings.TrimSpace(h)
	}

	if maxLength <= 0 {
		return suffixDuplicates(trimmed), nil
	}

	for d := 0; d <= maxLength; d++ {
		cut := make([]string, len(trimmed))
		for i, h := range trimmed {
			cut[i] = strings.TrimSpace(truncateRunes(h, maxLength-d))
		}

		out := suffixDuplicates(cut)
		if fits(out, maxLength) {
			return out, nil
		}
	}

	return nil, fmt.Errorf("headers: max length %d is too small to make %d column names unique: %w",
		maxLength, len(names), ErrInvalidConfiguration)
}

// suffixDuplicates appends a per-name running counter to every occurrence of
// a name that appears more than once. A counter value whose result is already
// taken by another name (["a", "a", "a_1"]) is skipped.
func suffixDuplicates(names []string) []string {
	seen := make(map[string]int, len(names))
	for _, h := range names {
		seen[h]++
	}

	taken := make(map[string]struct{}, len(names))
	for h, n := range seen {
		if n == 1 {
			taken[h] = struct{}{}
		}
	}

	counter := make(map[string]int)
	out := make([]string, len(names))
	for i, h := range names {
		if seen[h] <= 1 {
			out[i] = h
			continue
		}
		for {
			counter[h]++
			cand := h + "_" + strconv.Itoa(counter[h])
			if _, ok := taken[cand]; !ok {
				taken[cand] = struct{}{}
				out[i] = cand
				break
			}
		}
	}
	return out
}

func fits(names []string, maxLength int) bool {
	for _, h := range names {
		if utf8.RuneCountInString(h) > maxLength {
			return false
		}
	}
	return true
}

// truncateRunes cuts s to at most n runes. n <= 0 yields "".
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// AvoidAutoNames renames header names that would clash with a column name
// generated by Processor.
//
// names[j] clashes when it equals AutoColumnName(k) for some k != j where
// position k has no name of its own: blank within width, or past it, where a
// wider row may later appear. A clashing name gets the first free "_1", "_2",
// ... suffix, cut to maxLength runes when maxLength > 0. Other names are
// returned unchanged.
//
// Errors:
//   - Wraps ErrInvalidConfiguration when maxLength leaves no room for a suffix.
func AvoidAutoNames(names []string, width, maxLength int) ([]string, error) {
	width = max(width, len(names))
	named := func(k int) bool { return k < len(names) && names[k] != "" }
	clashes := func(j int, h string) bool {
		k, ok := autoColumnIndex(h)
		return ok && k != j && !named(k)
	}

	taken := make(map[string]struct{}, width)
	for k := 0; k < width; k++ {
		if named(k) {
			taken[names[k]] = struct{}{}
		} else {
			taken[AutoColumnName(k)] = struct{}{}
		}
	}

	out := append([]string(nil), names...)
	for j, h := range out {
		if h == "" || !clashes(j, h) {
			continue
		}
		for n := 1; ; n++ {
			suffix := "_" + strconv.Itoa(n)
			base := h
			if maxLength > 0 {
				if len(suffix) >= maxLength {
					return nil, fmt.Errorf("headers: max length %d leaves no room to rename column %q: %w",
						maxLength, h, ErrInvalidConfiguration)
				}
				base = truncateRunes(h, maxLength-len(suffix))
			}
			cand := base + suffix
			if _, ok := taken[cand]; ok || clashes(j, cand) {
				continue
			}
			taken[cand] = struct{}{}
			out[j] = cand
			break
		}
	}
	return out, nil
}

// autoColumnIndex reports the position i for which h == AutoColumnName(i).
func autoColumnIndex(h string) (int, bool) {
	rest, ok := strings.CutPrefix(h, "column_")
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(rest)
	if err != nil || i < 0 || AutoColumnName(i) != h {
		return 0, false
	}
	return i, true
}
