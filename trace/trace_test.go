package trace

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterEmitWrapsPlantUML(t *testing.T) {
	var sb strings.Builder
	w := NewWriter(&sb)

	w.Emit("Idle -> Idle : entry()")
	w.Emit("Idle -> Idle : exit()")
	require.NoError(t, w.Flush())

	out := sb.String()
	assert.True(t, strings.HasPrefix(out, "@startuml\n"))
	assert.True(t, strings.HasSuffix(out, "@enduml\n"))
	assert.Contains(t, out, "participant Events")
	assert.Contains(t, out, "Idle -> Idle : entry()")
}

func TestWriterLinesAccumulate(t *testing.T) {
	var sb strings.Builder
	w := NewWriter(&sb)

	w.Emit("a")
	w.Emit("b")

	assert.Equal(t, []string{"a", "b"}, w.Lines())
}
