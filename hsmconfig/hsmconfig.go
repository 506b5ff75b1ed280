// Package hsmconfig loads machine driver tuning (poll interval, trace
// destination) from a YAML document, grounded on the pack's yaml.v3
// dependency for declarative operational config, kept separate from the
// code-constructed state tree itself.
package hsmconfig

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk shape of driver tuning. PollIntervalMS is an
// integer (milliseconds) rather than a duration string so the YAML stays
// free of Go-specific duration-string parsing surprises.
type Config struct {
	PollIntervalMS int    `yaml:"poll_interval_ms"`
	TraceFile      string `yaml:"trace_file"`
}

// PollInterval converts PollIntervalMS to a time.Duration, defaulting to
// 50ms (the hsm package's own default) when unset or non-positive.
func (c Config) PollInterval() time.Duration {
	if c.PollIntervalMS <= 0 {
		return 50 * time.Millisecond
	}
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// Load reads and validates a Config from r.
func Load(r io.Reader) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("hsmconfig: %w", err)
	}
	return cfg, nil
}
