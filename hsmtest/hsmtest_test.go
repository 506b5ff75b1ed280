package hsmtest

import (
	"context"
	"testing"
	"time"

	"github.com/arrowstate/hsm"
	"github.com/stretchr/testify/require"
)

func TestRecorderCapturesMachineTrace(t *testing.T) {
	rec := &Recorder{}
	m := hsm.NewMachine(hsm.WithTraceSink(rec), hsm.WithPollInterval(5*time.Millisecond))
	lobby := hsm.NewState(m.Root(), "Lobby")
	m.Root().On(m.Root().Initial(), func(ctx context.Context) error {
		return m.Root().Transition(ctx, lobby)
	})

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	Eventually(t, time.Second, 5*time.Millisecond, func() bool {
		return rec.Contains("Lobby -> Lobby : entry()")
	})
}

func TestRecorderReset(t *testing.T) {
	rec := &Recorder{}
	rec.Emit("one")
	rec.Emit("two")
	require.Len(t, rec.Lines(), 2)

	rec.Reset()
	require.Empty(t, rec.Lines())
}
