// Package setup installs the metrics backend selected on a command line.
package setup

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"headerprobe/internal/metrics"
	"headerprobe/internal/metrics/datadog"
)

// Backend is what Init needs from a constructed backend: something that can
// be installed and closed.
type Backend interface {
	Close() error
}

// Test seams.
var (
	newDatadogBackend = func(ctx context.Context, opts datadog.Options) (Backend, error) {
		return datadog.NewBackend(ctx, opts)
	}
	setMetricsBackend = func(b any) {
		if mb, ok := b.(metrics.Backend); ok {
			metrics.SetBackend(mb)
		}
	}
	logPrintf = log.Printf
)

// Init selects a backend by name ("", "none", "noop", "datadog", "dd") and
// installs it process-wide.
//
// The returned cleanup is never nil and is safe to call on error. For
// Datadog it closes the backend, which performs the final flush; a close
// error is logged, not returned.
func Init(ctx context.Context, job, backend string, tags []string) (func(), error) {
	nop := func() {}

	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "none", "noop":
		return nop, nil

	case "datadog", "dd":
		if job == "" {
			job = "headerprobe"
		}
		b, err := newDatadogBackend(ctx, datadog.Options{
			JobName:    job,
			Tags:       tags,
			FlushEvery: 60 * time.Second,
		})
		if err != nil {
			return nop, fmt.Errorf("datadog: %w", err)
		}
		setMetricsBackend(b)
		return func() {
			if err := b.Close(); err != nil {
				logPrintf("metrics: datadog close error: %v", err)
			}
		}, nil

	default:
		return nop, fmt.Errorf("unknown metrics backend %q (want none|datadog)", backend)
	}
}
