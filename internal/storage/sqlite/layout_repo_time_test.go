package sqlite

import (
	"context"
	"slices"
	"testing"
	"time"

	"headerprobe/internal/storage"
)

// createdTimes spans whole seconds, sub-second fractions, trailing-zero
// fractions and non-UTC zones.
func createdTimes() []time.Time {
	prague := time.FixedZone("CET", 3600)
	return []time.Time{
		time.Date(2026, 1, 27, 12, 17, 8, 0, time.UTC),
		time.Date(2026, 1, 27, 12, 17, 8, 5, time.UTC),
		time.Date(2026, 1, 27, 12, 17, 8, 100_000_000, time.UTC),
		time.Date(2026, 1, 27, 13, 17, 8, 120_000_000, prague),
		time.Date(2026, 1, 27, 12, 17, 9, 0, time.UTC),
		time.Date(2026, 1, 27, 8, 17, 9, 1, time.FixedZone("EST", -5*3600)),
		time.Date(2026, 11, 3, 0, 0, 0, 0, prague),
		time.Date(9999, 12, 31, 23, 59, 59, 999_999_999, time.UTC),
	}
}

func TestFormatSQLiteTimeFixedWidth(t *testing.T) {
	t.Parallel()

	want := len(sqliteTimeLayout)
	for _, ts := range createdTimes() {
		s := formatSQLiteTime(ts)
		if len(s) != want {
			t.Fatalf("formatSQLiteTime(%v) = %q, len %d want %d", ts, s, len(s), want)
		}
		if s[len(s)-1] != 'Z' {
			t.Fatalf("formatSQLiteTime(%v) = %q, want UTC suffix Z", ts, s)
		}
	}
}

func TestFormatSQLiteTimeSortsChronologically(t *testing.T) {
	t.Parallel()

	times := createdTimes()
	formatted := make([]string, len(times))
	for i, ts := range times {
		formatted[i] = formatSQLiteTime(ts)
	}

	// createdTimes is in chronological order, so lexical order must match it.
	sorted := slices.Clone(formatted)
	slices.Sort(sorted)
	for i := range sorted {
		if sorted[i] != formatted[i] {
			t.Fatalf("lexical order differs at %d: %q, want %q", i, sorted[i], formatted[i])
		}
	}

	// 12:17:08+01:00 is earlier than 12:17:08.05Z although it looks later.
	early := formatSQLiteTime(time.Date(2026, 1, 27, 12, 17, 8, 0, time.FixedZone("CET", 3600)))
	late := formatSQLiteTime(time.Date(2026, 1, 27, 12, 17, 8, 50_000_000, time.UTC))
	if early >= late {
		t.Fatalf("%q should sort before %q", early, late)
	}
}

func TestParseSQLiteTime(t *testing.T) {
	t.Parallel()

	for _, ts := range createdTimes() {
		got, err := parseSQLiteTime(formatSQLiteTime(ts))
		if err != nil {
			t.Fatalf("parseSQLiteTime(formatSQLiteTime(%v)): %v", ts, err)
		}
		if !got.Equal(ts) || got.Location() != time.UTC {
			t.Fatalf("round trip of %v = %v", ts, got)
		}
	}

	got, err := parseSQLiteTime("2026-01-27 12:17:08")
	if err != nil {
		t.Fatalf("parseSQLiteTime(datetime()): %v", err)
	}
	if want := time.Date(2026, 1, 27, 12, 17, 8, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("parseSQLiteTime(datetime()) = %v, want %v", got, want)
	}

	for _, bad := range []string{"", "not-a-time", "2026-01-27T12:17:08+01:00"} {
		if _, err := parseSQLiteTime(bad); err == nil {
			t.Fatalf("parseSQLiteTime(%q) error = nil", bad)
		}
	}
}

// TestLatestLayoutOrdersByCreatedAt saves layouts whose created_at values sort
// wrongly as variable-width RFC3339Nano ("...08Z" > "...08.5Z") and checks that
// the newest one comes back with its time intact.
func TestLatestLayoutOrdersByCreatedAt(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := openTemp(t)

	newest := time.Date(2026, 1, 27, 13, 17, 8, 500_000_000, time.FixedZone("CET", 3600))
	for _, created := range []time.Time{
		newest,
		time.Date(2026, 1, 27, 12, 17, 8, 0, time.UTC),
		time.Date(2026, 1, 27, 12, 17, 7, 999_999_999, time.UTC),
	} {
		l := storage.Layout{Source: "prices.csv", Format: "csv", CreatedAt: created}
		if _, err := r.SaveLayout(ctx, l); err != nil {
			t.Fatalf("SaveLayout(%v): %v", created, err)
		}
	}

	got, err := r.LatestLayout(ctx, "prices.csv")
	if err != nil {
		t.Fatalf("LatestLayout: %v", err)
	}
	if got.ID != 1 || !got.CreatedAt.Equal(newest) || got.CreatedAt.Location() != time.UTC {
		t.Fatalf("LatestLayout() id=%d created=%v, want id 1 created %v UTC", got.ID, got.CreatedAt, newest)
	}
}
