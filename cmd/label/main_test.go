package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"headerprobe/internal/headers"
	"headerprobe/internal/probe"
	"headerprobe/internal/storage"
)

// fakeRepo is an in-memory layout repository used by CLI tests.
type fakeRepo struct {
	layout storage.Layout
	err    error
	closed atomic.Int64
	asked  string
}

func (r *fakeRepo) Close()                           { r.closed.Add(1) }
func (r *fakeRepo) EnsureSchema(context.Context) error { return nil }
func (r *fakeRepo) SaveLayout(context.Context, storage.Layout) (int64, error) {
	return 0, errors.New("read only")
}
func (r *fakeRepo) LatestLayout(_ context.Context, source string) (storage.Layout, error) {
	r.asked = source
	return r.layout, r.err
}

func nopMetrics(context.Context, string, string) (func(), error) { return func() {}, nil }

func TestRunMain_UsageErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		args          []string
		wantStderrSub string
	}{
		{name: "missing_url", args: nil, wantStderrSub: "usage: label -url"},
		{name: "blank_url", args: []string{"-url", "  "}, wantStderrSub: "usage: label -url"},
		{name: "unknown_flag", args: []string{"-nope"}, wantStderrSub: "flag provided but not defined"},
		{name: "bad_format", args: []string{"-url", "x.csv", "-format", "xml"}, wantStderrSub: "unknown format"},
		{name: "store_without_dsn", args: []string{"-url", "x.csv", "-layout-from-store", "-dsn", " "}, wantStderrSub: "needs -dsn"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if tc.name == "store_without_dsn" && os.Getenv("DSN") != "" {
				t.Skip("DSN set in environment")
			}

			var stdout, stderr bytes.Buffer
			code := runMain(context.Background(), tc.args, &stdout, &stderr, appDeps{
				initMetrics: func(context.Context, string, string) (func(), error) {
					t.Fatalf("initMetrics must not be called on usage errors")
					return func() {}, nil
				},
				openRepo: func(context.Context, storage.Config) (storage.LayoutRepository, error) {
					t.Fatalf("openRepo must not be called on usage errors")
					return nil, nil
				},
				label: func(context.Context, probe.Options, *storage.Layout, func(headers.Row) error, func(int, error)) (int, error) {
					t.Fatalf("label must not be called on usage errors")
					return 0, nil
				},
			})

			if code != 2 {
				t.Fatalf("exit code=%d, want 2; stderr=%q", code, stderr.String())
			}
			if !strings.Contains(stderr.String(), tc.wantStderrSub) {
				t.Fatalf("stderr=%q, want contains %q", stderr.String(), tc.wantStderrSub)
			}
			if stdout.Len() != 0 {
				t.Fatalf("stdout=%q, want empty", stdout.String())
			}
		})
	}
}

func TestRunMain_WritesOrderedNDJSON(t *testing.T) {
	t.Parallel()

	var gotOpt probe.Options
	deps := appDeps{
		initMetrics: nopMetrics,
		label: func(_ context.Context, opt probe.Options, layout *storage.Layout, emit func(headers.Row) error, _ func(int, error)) (int, error) {
			gotOpt = opt
			if layout != nil {
				t.Fatalf("layout=%v, want nil without -layout-from-store", layout)
			}
			rows := []headers.Row{
				{{Column: "zeta", Value: "1"}, {Column: "alpha", Value: "Ann \"A\""}},
				{{Column: "zeta", Value: "2"}, {Column: "alpha", Value: "", Empty: true}, {Column: "column_2", Value: "x"}},
			}
			for _, r := range rows {
				if err := emit(r); err != nil {
					return 0, err
				}
			}
			return len(rows), nil
		},
	}

	var stdout, stderr bytes.Buffer
	code := runMain(context.Background(), []string{"-url", "people.csv", "-format", "csv", "-normalize", "-tolerance", "0"}, &stdout, &stderr, deps)
	if code != 0 {
		t.Fatalf("exit code=%d, want 0; stderr=%q", code, stderr.String())
	}

	want := `{"zeta":"1","alpha":"Ann \"A\""}` + "\n" +
		`{"zeta":"2","alpha":null,"column_2":"x"}` + "\n"
	if stdout.String() != want {
		t.Fatalf("stdout=%q, want %q", stdout.String(), want)
	}
	if gotOpt.URL != "people.csv" || gotOpt.Format != probe.FormatCSV || !gotOpt.Normalize || gotOpt.Tolerance != 0 || gotOpt.PreviewRows != -1 {
		t.Fatalf("options not forwarded: %+v", gotOpt)
	}
}

func TestRunMain_LayoutFromStore(t *testing.T) {
	t.Parallel()

	stored := storage.Layout{ID: 7, Format: "csv", HeaderOffset: 1, Columns: []storage.Column{{Index: 0, Name: "a"}}}

	tests := []struct {
		name       string
		repo       *fakeRepo
		openErr    error
		wantCode   int
		wantLayout *storage.Layout
		wantStderr string
	}{
		{name: "found", repo: &fakeRepo{layout: stored}, wantCode: 0, wantLayout: &stored},
		{name: "not_found_probes", repo: &fakeRepo{err: storage.ErrNotFound}, wantCode: 0, wantStderr: "no stored layout"},
		{name: "repo_error", repo: &fakeRepo{err: errors.New("db down")}, wantCode: 1, wantStderr: "load layout: db down"},
		{name: "open_error", openErr: errors.New("bad dsn"), wantCode: 1, wantStderr: "load layout: bad dsn"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var gotCfg storage.Config
			var gotLayout *storage.Layout
			labelCalls := 0
			deps := appDeps{
				initMetrics: nopMetrics,
				openRepo: func(_ context.Context, cfg storage.Config) (storage.LayoutRepository, error) {
					gotCfg = cfg
					if tc.openErr != nil {
						return nil, tc.openErr
					}
					return tc.repo, nil
				},
				label: func(_ context.Context, _ probe.Options, layout *storage.Layout, _ func(headers.Row) error, _ func(int, error)) (int, error) {
					labelCalls++
					gotLayout = layout
					return 0, nil
				},
			}

			var stdout, stderr bytes.Buffer
			code := runMain(context.Background(),
				[]string{"-url", "data.csv", "-layout-from-store", "-backend", "SQLite", "-dsn", "layouts.db"},
				&stdout, &stderr, deps)

			if code != tc.wantCode {
				t.Fatalf("exit code=%d, want %d; stderr=%q", code, tc.wantCode, stderr.String())
			}
			if gotCfg.Kind != "sqlite" || gotCfg.DSN != "layouts.db" {
				t.Fatalf("repo config=%+v, want sqlite layouts.db", gotCfg)
			}
			if tc.wantStderr != "" && !strings.Contains(stderr.String(), tc.wantStderr) {
				t.Fatalf("stderr=%q, want contains %q", stderr.String(), tc.wantStderr)
			}
			if tc.repo != nil {
				if tc.repo.asked != "data.csv" {
					t.Fatalf("LatestLayout source=%q, want data.csv", tc.repo.asked)
				}
				if tc.repo.closed.Load() != 1 {
					t.Fatalf("repo closed=%d, want 1", tc.repo.closed.Load())
				}
			}
			if tc.wantCode != 0 {
				if labelCalls != 0 {
					t.Fatalf("label calls=%d, want 0", labelCalls)
				}
				return
			}
			if tc.wantLayout == nil && gotLayout != nil {
				t.Fatalf("layout=%+v, want nil", gotLayout)
			}
			if tc.wantLayout != nil && (gotLayout == nil || gotLayout.ID != tc.wantLayout.ID) {
				t.Fatalf("layout=%+v, want id %d", gotLayout, tc.wantLayout.ID)
			}
		})
	}
}

func TestRunMain_MetricsAndRunErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		initErr          error
		labelErr         error
		wantStderrSub    string
		wantLabelCalls   int
		wantCleanupCalls int64
	}{
		{name: "init_metrics_error", initErr: errors.New("metrics unavailable"), wantStderrSub: "init metrics:", wantLabelCalls: 0, wantCleanupCalls: 0},
		{name: "label_error_runs_cleanup", labelErr: errors.New("stream failed"), wantStderrSub: "run: stream failed", wantLabelCalls: 1, wantCleanupCalls: 1},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var cleanupCalls atomic.Int64
			labelCalls := 0
			deps := appDeps{
				initMetrics: func(_ context.Context, job, backend string) (func(), error) {
					if job != "nightly" || backend != "none" {
						t.Fatalf("initMetrics(%q, %q), want nightly none", job, backend)
					}
					if tc.initErr != nil {
						return func() {}, tc.initErr
					}
					return func() { cleanupCalls.Add(1) }, nil
				},
				label: func(context.Context, probe.Options, *storage.Layout, func(headers.Row) error, func(int, error)) (int, error) {
					labelCalls++
					return 0, tc.labelErr
				},
			}

			var stdout, stderr bytes.Buffer
			code := runMain(context.Background(), []string{"-url", "x.csv", "-job", "nightly", "-metrics-backend", "none"}, &stdout, &stderr, deps)
			if code != 1 {
				t.Fatalf("exit code=%d, want 1", code)
			}
			if !strings.Contains(stderr.String(), tc.wantStderrSub) {
				t.Fatalf("stderr=%q, want contains %q", stderr.String(), tc.wantStderrSub)
			}
			if labelCalls != tc.wantLabelCalls {
				t.Fatalf("label calls=%d, want %d", labelCalls, tc.wantLabelCalls)
			}
			if got := cleanupCalls.Load(); got != tc.wantCleanupCalls {
				t.Fatalf("cleanup calls=%d, want %d", got, tc.wantCleanupCalls)
			}
		})
	}
}

func TestRunMain_EndToEndCSV(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "fuel.csv")
	content := "Prices as of today\nStation,Fuel,Price\nPraha,Natural 95,38.90\nBrno,Diesel,\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	deps := defaultDeps()
	deps.initMetrics = nopMetrics

	var stdout, stderr bytes.Buffer
	code := runMain(context.Background(), []string{"-url", path, "-normalize"}, &stdout, &stderr, deps)
	if code != 0 {
		t.Fatalf("exit code=%d, want 0; stderr=%q", code, stderr.String())
	}

	want := `{"station":"Praha","fuel":"Natural 95","price":"38.90"}` + "\n" +
		`{"station":"Brno","fuel":"Diesel","price":null}` + "\n"
	if stdout.String() != want {
		t.Fatalf("stdout=%q, want %q", stdout.String(), want)
	}
}

func TestWriteRow(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	if err := writeRow(w, headers.Row{}); err != nil {
		t.Fatalf("writeRow: %v", err)
	}
	if err := writeRow(w, headers.Row{{Column: "a\tb", Value: 3}}); err != nil {
		t.Fatalf("writeRow: %v", err)
	}
	if err := writeRow(w, headers.Row{{Column: "bad", Value: func() {}}}); err == nil {
		t.Fatalf("writeRow(func value) err=nil, want error")
	}
	w.Flush()

	if !strings.HasPrefix(buf.String(), "{}\n{\"a\\tb\":3}\n") {
		t.Fatalf("output=%q", buf.String())
	}
}

func TestRunMain_HashField(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "dupes.csv")
	if err := os.WriteFile(path, []byte("id,name\n1,Ann\n2,Ann\n3, Ann \n"), 0o600); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	deps := defaultDeps()
	deps.initMetrics = nopMetrics

	var stdout, stderr bytes.Buffer
	code := runMain(context.Background(), []string{"-url", path, "-hash-field", "row_hash", "-hash-fields", "name"}, &stdout, &stderr, deps)
	if code != 0 {
		t.Fatalf("exit code=%d, want 0; stderr=%q", code, stderr.String())
	}

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines=%d, want 3:\n%s", len(lines), stdout.String())
	}
	var hashes []string
	for _, l := range lines {
		i := strings.Index(l, `"row_hash":"`)
		if i < 0 || !strings.HasSuffix(l, `"}`) {
			t.Fatalf("line %q lacks trailing row_hash", l)
		}
		hashes = append(hashes, l[i+len(`"row_hash":"`):len(l)-2])
	}
	if len(hashes[0]) != 64 || hashes[0] != hashes[1] || hashes[1] != hashes[2] {
		t.Fatalf("hashes over name should match: %v", hashes)
	}
}

func TestRunMain_HashFieldNamesSourceColumn(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ids.csv")
	if err := os.WriteFile(path, []byte("id,name\n1,Ann\n2,Bob\n"), 0o600); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	deps := defaultDeps()
	deps.initMetrics = nopMetrics

	var stdout, stderr bytes.Buffer
	code := runMain(context.Background(), []string{"-url", path, "-hash-field", "id"}, &stdout, &stderr, deps)
	if code != 1 {
		t.Fatalf("exit code=%d, want 1; stderr=%q", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), `-hash-field "id" is already a column`) {
		t.Fatalf("stderr=%q, want hash-field clash", stderr.String())
	}
	if stdout.Len() != 0 {
		t.Fatalf("stdout=%q, want no rows written", stdout.String())
	}
}
