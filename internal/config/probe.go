// Package config defines the job configuration for header probing and the
// option bags handed to row parsers.
//
// Configs are plain structs decoded from JSON (the default) or YAML. Loading
// performs no validation; call ValidateProbe and inspect the returned issues.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Probe is a header-probe job.
type Probe struct {
	// Job names the run in metrics tags and stored layouts.
	Job string `json:"job" yaml:"job"`

	Source  Source  `json:"source" yaml:"source"`
	Parser  Parser  `json:"parser" yaml:"parser"`
	Headers Headers `json:"headers" yaml:"headers"`
	Storage Storage `json:"storage" yaml:"storage"`
	Metrics Metrics `json:"metrics" yaml:"metrics"`
}

// Source describes where the sample is read from.
type Source struct {
	// URL is http(s)://, file:// or a bare local path.
	URL string `json:"url" yaml:"url"`
	// MaxBytes bounds how much of the input is sampled. 0 uses the default.
	MaxBytes int `json:"max_bytes" yaml:"max_bytes"`
	// AllowInsecureTLS skips certificate verification for https sources.
	AllowInsecureTLS bool `json:"allow_insecure_tls" yaml:"allow_insecure_tls"`
}

// Parser selects a row source. Kind is "csv", "html", "xlsx", "json" or ""
// for format sniffing.
type Parser struct {
	Kind    string  `json:"kind" yaml:"kind"`
	Options Options `json:"options" yaml:"options"`
}

// Headers tunes header inference.
type Headers struct {
	// Tolerance is how many cells short of the modal column count the header
	// row may be. nil means the default of 1.
	Tolerance *int `json:"tolerance,omitempty" yaml:"tolerance,omitempty"`
	// MaxLength caps column name length in runes. 0 disables the cap.
	MaxLength int `json:"max_length" yaml:"max_length"`
	// Normalize rewrites names into lowercase identifiers before they are
	// made unique.
	Normalize bool `json:"normalize" yaml:"normalize"`
	// SampleRows bounds the number of rows inspected. 0 uses the default.
	SampleRows int `json:"sample_rows" yaml:"sample_rows"`
}

// Storage selects where inferred layouts are recorded. An empty Kind with an
// empty DSN disables storage.
type Storage struct {
	Kind string `json:"kind" yaml:"kind"`
	DSN  string `json:"dsn" yaml:"dsn"`
}

// Metrics selects the metrics backend ("datadog", "none" or "").
type Metrics struct {
	Backend string   `json:"backend" yaml:"backend"`
	Tags    []string `json:"tags" yaml:"tags"`
}

// ToleranceOr returns the configured tolerance or def when unset.
func (h Headers) ToleranceOr(def int) int {
	if h.Tolerance == nil {
		return def
	}
	return *h.Tolerance
}

// Load reads a Probe config from path. Files ending in .yaml or .yml are
// decoded as YAML, everything else as JSON.
func Load(path string) (Probe, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Probe{}, fmt.Errorf("read config: %w", err)
	}
	return Decode(b, filepath.Ext(path))
}

// Decode parses a config document. ext selects the format the same way Load
// does (".yaml"/".yml" for YAML).
func Decode(b []byte, ext string) (Probe, error) {
	var p Probe
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &p); err != nil {
			return Probe{}, fmt.Errorf("decode yaml config: %w", err)
		}
	default:
		if err := json.Unmarshal(b, &p); err != nil {
			return Probe{}, fmt.Errorf("decode json config: %w", err)
		}
	}
	return p, nil
}
