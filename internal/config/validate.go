package config

import (
	"fmt"
	"strings"
)

// Severity classifies a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding. Path is a dotted config path such as
// "headers.max_length".
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message)
}

var knownParsers = map[string]bool{"": true, "csv": true, "html": true, "xlsx": true, "json": true}

var knownStorage = map[string]bool{"": true, "postgres": true, "mssql": true, "sqlite": true}

var knownMetrics = map[string]bool{"": true, "none": true, "datadog": true}

// ValidateProbe reports problems with p. It never fails; callers decide what
// to do with errors versus warnings.
func ValidateProbe(p Probe) []Issue {
	var issues []Issue
	add := func(sev Severity, path, format string, args ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(p.Source.URL) == "" {
		add(SeverityError, "source.url", "is required")
	}
	if p.Source.MaxBytes < 0 {
		add(SeverityError, "source.max_bytes", "must be >= 0, got %d", p.Source.MaxBytes)
	}

	kind := strings.ToLower(strings.TrimSpace(p.Parser.Kind))
	if !knownParsers[kind] {
		add(SeverityError, "parser.kind", "unsupported parser %q (want csv, html, xlsx or json)", p.Parser.Kind)
	}

	if p.Headers.MaxLength < 0 {
		add(SeverityError, "headers.max_length", "must be >= 0, got %d", p.Headers.MaxLength)
	} else if p.Headers.MaxLength > 0 && p.Headers.MaxLength < 3 {
		add(SeverityWarning, "headers.max_length", "%d leaves little room for suffixes; duplicate names may fail", p.Headers.MaxLength)
	}
	if t := p.Headers.ToleranceOr(1); t < 0 {
		add(SeverityWarning, "headers.tolerance", "negative tolerance %d requires header rows wider than the modal row", t)
	}
	if p.Headers.SampleRows < 0 {
		add(SeverityError, "headers.sample_rows", "must be >= 0, got %d", p.Headers.SampleRows)
	}

	sk := strings.ToLower(strings.TrimSpace(p.Storage.Kind))
	if !knownStorage[sk] {
		add(SeverityError, "storage.kind", "unsupported storage %q (want postgres, mssql or sqlite)", p.Storage.Kind)
	}
	if sk != "" && strings.TrimSpace(p.Storage.DSN) == "" {
		add(SeverityError, "storage.dsn", "is required when storage.kind is set")
	}

	if !knownMetrics[strings.ToLower(strings.TrimSpace(p.Metrics.Backend))] {
		add(SeverityWarning, "metrics.backend", "unknown backend %q; metrics will be disabled", p.Metrics.Backend)
	}

	return issues
}

// HasErrors reports whether any issue has SeverityError.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}
