package hsmconfig

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadParsesFields(t *testing.T) {
	cfg, err := Load(strings.NewReader("poll_interval_ms: 20\ntrace_file: out.puml\n"))
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.PollIntervalMS)
	assert.Equal(t, "out.puml", cfg.TraceFile)
	assert.Equal(t, 20*time.Millisecond, cfg.PollInterval())
}

func TestPollIntervalDefaultsWhenUnset(t *testing.T) {
	cfg, err := Load(strings.NewReader("trace_file: out.puml\n"))
	require.NoError(t, err)
	assert.Equal(t, 50*time.Millisecond, cfg.PollInterval())
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := Load(strings.NewReader("poll_interval_ms: 10\nbogus_field: true\n"))
	assert.Error(t, err)
}
