package csv

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/text/encoding/unicode"

	"headerprobe/internal/config"
	"headerprobe/internal/headers"
)

type result struct {
	rows    [][]any
	empties [][]bool
	errLine []int
}

func run(t *testing.T, ctx context.Context, input string, opt config.Options) (result, error) {
	t.Helper()

	out := make(chan headers.Row, 64)
	var res result
	err := StreamRows(ctx, io.NopCloser(strings.NewReader(input)), opt, out, func(line int, err error) {
		res.errLine = append(res.errLine, line)
	})
	close(out)

	for row := range out {
		vals := make([]any, len(row))
		empt := make([]bool, len(row))
		for i, c := range row {
			vals[i] = c.Value
			empt[i] = c.Empty
		}
		res.rows = append(res.rows, vals)
		res.empties = append(res.empties, empt)
	}
	return res, err
}

func TestStreamRows(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		opt     config.Options
		want    [][]any
		errLine []int
	}{
		{
			name:  "ragged rows with title",
			input: "Vehicle report\nvin,make,year\nX1, Skoda ,2019\n",
			want: [][]any{
				{"Vehicle report"},
				{"vin", "make", "year"},
				{"X1", "Skoda", "2019"},
			},
		},
		{
			name:  "semicolon delimiter",
			input: "a;b\n1;2\n",
			opt:   config.Options{"comma": ";"},
			want:  [][]any{{"a", "b"}, {"1", "2"}},
		},
		{
			name:  "tab delimiter",
			input: "a\tb\n1\t2\n",
			opt:   config.Options{"comma": "tab"},
			want:  [][]any{{"a", "b"}, {"1", "2"}},
		},
		{
			name:  "trim disabled",
			input: " a , b \n",
			opt:   config.Options{"trim_space": false},
			want:  [][]any{{" a ", " b "}},
		},
		{
			name:  "utf8 bom stripped",
			input: "\ufeffName,Age\nAnn,31\n",
			want:  [][]any{{"Name", "Age"}, {"Ann", "31"}},
		},
		{
			name:    "bare quote reported and skipped",
			input:   "a,b\"c\n1,2\n",
			want:    [][]any{{"1", "2"}},
			errLine: []int{1},
		},
		{
			name:  "lazy quotes accepted",
			input: "a,b\"c\n1,2\n",
			opt:   config.Options{"lazy_quotes": true},
			want:  [][]any{{"a", "b\"c"}, {"1", "2"}},
		},
		{
			name:  "windows-1250 label",
			input: "n\x9aa,x\n",
			opt:   config.Options{"encoding": "windows-1250"},
			want:  [][]any{{"nša", "x"}},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res, err := run(t, context.Background(), tt.input, tt.opt)
			if err != nil {
				t.Fatalf("StreamRows() error: %v", err)
			}
			if diff := cmp.Diff(tt.want, res.rows); diff != "" {
				t.Fatalf("rows mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.errLine, res.errLine); diff != "" {
				t.Fatalf("error lines mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStreamRowsUTF16(t *testing.T) {
	t.Parallel()

	enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	input, err := enc.String("id,název\n1,Brno\n")
	if err != nil {
		t.Fatal(err)
	}

	res, err := run(t, context.Background(), input, config.Options{"encoding": "windows-1252"})
	if err != nil {
		t.Fatalf("StreamRows() error: %v", err)
	}
	want := [][]any{{"id", "název"}, {"1", "Brno"}}
	if diff := cmp.Diff(want, res.rows); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestStreamRowsEmptyCells(t *testing.T) {
	t.Parallel()

	res, err := run(t, context.Background(), "a,,  ,b\n", nil)
	if err != nil {
		t.Fatalf("StreamRows() error: %v", err)
	}
	want := [][]bool{{false, true, true, false}}
	if diff := cmp.Diff(want, res.empties); diff != "" {
		t.Fatalf("empties mismatch (-want +got):\n%s", diff)
	}
}

func TestStreamRowsUnknownEncoding(t *testing.T) {
	t.Parallel()

	_, err := run(t, context.Background(), "a,b\n", config.Options{"encoding": "klingon-8"})
	if err == nil {
		t.Fatalf("StreamRows() error = nil, want unknown encoding error")
	}
}

func TestStreamRowsCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := run(t, ctx, "a,b\n1,2\n", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("StreamRows() error = %v, want context.Canceled", err)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestStreamRowsReaderError(t *testing.T) {
	t.Parallel()

	out := make(chan headers.Row, 1)
	err := StreamRows(context.Background(), io.NopCloser(failingReader{}), nil, out, nil)
	if err == nil || !strings.Contains(err.Error(), "disk gone") {
		t.Fatalf("StreamRows() error = %v, want wrapped reader error", err)
	}
}
