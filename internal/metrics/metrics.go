// Package metrics is the process-wide metrics facade.
//
// Library code records through the package functions (IncCounter,
// ObserveHistogram, RecordStep). A CLI installs a concrete backend once at
// startup with SetBackend; until then every call goes to a no-op backend, so
// tests and library users pay nothing for metrics they did not configure.
package metrics

import (
	"sync"
	"time"
)

// Labels are metric dimensions. Backends decide which keys they keep.
type Labels map[string]string

// Backend receives metric observations.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Flusher is implemented by backends that buffer observations.
type Flusher interface {
	Flush() error
}

// Metric names recorded by the header probe.
const (
	StepTotal           = "headerprobe_step_total"
	StepDurationSeconds = "headerprobe_step_duration_seconds"
	RowsSampledTotal    = "headerprobe_rows_sampled_total"
	ColumnsTotal        = "headerprobe_columns_total"
	RowsLabeledTotal    = "headerprobe_rows_labeled_total"
)

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b as the process backend. A nil b restores the no-op
// backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		backend = nopBackend{}
		return
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter forwards to the installed backend.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram forwards to the installed backend.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// RecordStep counts one execution of step and records its duration. status
// is "ok" when err is nil and "error" otherwise.
func RecordStep(step string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	l := Labels{"step": step, "status": status}
	IncCounter(StepTotal, 1, l)
	ObserveHistogram(StepDurationSeconds, time.Since(start).Seconds(), l)
}

// Flush flushes the installed backend if it buffers. Backends that do not
// implement Flusher return nil.
func Flush() error {
	if f, ok := current().(Flusher); ok {
		return f.Flush()
	}
	return nil
}
