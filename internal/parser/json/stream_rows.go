// Package json streams JSON tables (arrays of cell arrays) into rows of header
// cells.
package json

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"headerprobe/internal/config"
	"headerprobe/internal/headers"
)

// StreamRows parses JSON from src and streams one headers.Row per record array.
//
// Accepted shapes:
//   - Root array of arrays: [["title"],["a","b"],[1,2]]
//   - Envelope object: the first field holding an array of arrays is streamed
//     and the remaining fields are skipped, e.g. {"meta":{},"data":[[...]]}.
//   - JSON lines: one array per line, also accepted after a root value.
//
// Numbers are kept as json.Number. A nested array of strings is joined with
// array_join_separator (default ","). Any other non-array record is reported
// through onErr and skipped; malformed JSON ends the stream with an error.
//
// StreamRows closes src but not out.
func StreamRows(
	ctx context.Context,
	src io.ReadCloser,
	opt config.Options,
	out chan<- headers.Row,
	onErr func(line int, err error),
) error {
	defer src.Close()

	dec := json.NewDecoder(src)
	dec.UseNumber()

	sep := opt.String("array_join_separator", ",")
	if sep == "" {
		sep = ","
	}

	line := 0
	emit := func(raw any) error {
		line++
		rec, ok := raw.([]any)
		if !ok {
			if onErr != nil {
				onErr(line, fmt.Errorf("json: record is %s, want array", kindOf(raw)))
			}
			return nil
		}

		row := make(headers.Row, len(rec))
		for i, v := range rec {
			row[i] = headers.NewCell(flattenValue(v, sep))
		}

		select {
		case out <- row:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("json: read first token: %w", err)
	}

	switch tok {
	case json.Delim('['):
		if err := streamArray(ctx, dec, emit); err != nil {
			return err
		}
		if err := expectDelim(dec, ']'); err != nil {
			return err
		}
	case json.Delim('{'):
		if err := streamEnvelope(ctx, dec, emit); err != nil {
			return err
		}
		if err := expectDelim(dec, '}'); err != nil {
			return err
		}
	default:
		return fmt.Errorf("json: unsupported root token %T (want array or object)", tok)
	}

	return streamTrailing(dec, emit)
}

// streamArray emits elements of the current array. The opening '[' has been
// consumed; the closing ']' is left for the caller. A root array whose
// elements are scalars is a single record rather than a table.
func streamArray(ctx context.Context, dec *json.Decoder, emit func(any) error) error {
	var scalars []any
	for dec.More() {
		var raw any
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("json: decode array element: %w", err)
		}
		if scalars != nil || isScalar(raw) {
			scalars = append(scalars, raw)
			continue
		}
		if err := emit(raw); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	if scalars != nil {
		return emit(scalars)
	}
	return nil
}

// streamEnvelope walks a root object (after '{') and streams the first field
// whose value is an array. Remaining fields are skipped.
func streamEnvelope(ctx context.Context, dec *json.Decoder, emit func(any) error) error {
	streamed := false
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("json: read object key: %w", err)
		}
		if _, ok := keyTok.(string); !ok {
			return fmt.Errorf("json: object key not a string (got %T)", keyTok)
		}

		valTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("json: read object value token: %w", err)
		}
		if valTok == json.Delim('[') && !streamed {
			if err := streamArray(ctx, dec, emit); err != nil {
				return err
			}
			if err := expectDelim(dec, ']'); err != nil {
				return err
			}
			streamed = true
			continue
		}
		if err := skipValueFromFirstToken(dec, valTok); err != nil {
			return err
		}
	}
	if !streamed {
		return fmt.Errorf("json: object has no array field to read rows from")
	}
	return nil
}

// streamTrailing emits JSON lines that follow the root value.
func streamTrailing(dec *json.Decoder, emit func(any) error) error {
	for {
		var raw any
		if err := dec.Decode(&raw); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("json: decode trailing record: %w", err)
		}
		if err := emit(raw); err != nil {
			return err
		}
	}
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	end, err := dec.Token()
	if err != nil {
		return fmt.Errorf("json: read %q: %w", want, err)
	}
	if end != want {
		return fmt.Errorf("json: expected %q, got %v", want, end)
	}
	return nil
}

func skipNextValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("json: skip value token: %w", err)
	}
	return skipValueFromFirstToken(dec, tok)
}

func skipValueFromFirstToken(dec *json.Decoder, tok any) error {
	d, ok := tok.(json.Delim)
	if !ok {
		return nil
	}

	switch d {
	case '{':
		for dec.More() {
			if _, err := dec.Token(); err != nil {
				return fmt.Errorf("json: skip object key: %w", err)
			}
			if err := skipNextValue(dec); err != nil {
				return err
			}
		}
		return expectDelim(dec, '}')
	case '[':
		for dec.More() {
			if err := skipNextValue(dec); err != nil {
				return err
			}
		}
		return expectDelim(dec, ']')
	default:
		return fmt.Errorf("json: unexpected delimiter %q", d)
	}
}

func isScalar(v any) bool {
	switch v.(type) {
	case []any, map[string]any:
		return false
	default:
		return true
	}
}

func kindOf(v any) string {
	switch v.(type) {
	case map[string]any:
		return "object"
	case nil:
		return "null"
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "bool"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// flattenValue joins an array of strings into one cell value. Everything else
// passes through untouched.
func flattenValue(v any, sep string) any {
	arr, ok := v.([]any)
	if !ok {
		return v
	}
	if len(arr) == 0 {
		return ""
	}
	ss := make([]string, 0, len(arr))
	for _, it := range arr {
		if it == nil {
			continue
		}
		s, ok := it.(string)
		if !ok {
			return v
		}
		ss = append(ss, s)
	}
	return strings.Join(ss, sep)
}
