package hsm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestMachineDeepHistoryResumesNestedChain exercises a composite nested
// two levels deep behind a HistoryDeep pseudo-state: leaving from the
// innermost leaf and resuming must land back on that same leaf without
// re-running either level's Initial transition function.
func TestMachineDeepHistoryResumesNestedChain(t *testing.T) {
	m := NewMachine(WithPollInterval(testPoll))
	descend := NewEvent(m, "Descend")
	leave := NewEvent(m, "Leave")
	enter := NewEvent(m, "Enter")

	vault := NewComposite(m.Root(), "Vault", true, true)
	outer := NewState(vault, "Outer")
	inner := NewComposite(vault, "Inner", false, false)
	deep := NewState(inner, "Deep")
	lobby := NewState(m.Root(), "Lobby")

	innerInitialRuns := 0

	vault.On(vault.Initial(), func(ctx context.Context) error {
		return vault.Transition(ctx, outer)
	})
	vault.On(vault.History(), func(ctx context.Context) error {
		return vault.HandleHistory(ctx)
	})
	vault.On(outer, func(ctx context.Context) error {
		if !descend.Poll() {
			return nil
		}
		return vault.Transition(ctx, inner)
	})
	inner.On(inner.Initial(), func(ctx context.Context) error {
		innerInitialRuns++
		return inner.Transition(ctx, deep)
	})
	vault.On(inner, func(ctx context.Context) error {
		if !leave.Poll() {
			return nil
		}
		return m.Root().Transition(ctx, lobby)
	})
	m.Root().On(lobby, func(ctx context.Context) error {
		if !enter.Poll() {
			return nil
		}
		return m.Root().Transition(ctx, vault.History())
	})
	m.Root().On(m.Root().Initial(), func(ctx context.Context) error {
		return m.Root().Transition(ctx, vault)
	})

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	waitUntil(t, func() bool { return m.IsActive(outer) })

	descend.Set()
	waitUntil(t, func() bool { return m.IsActive(deep) })
	require.Equal(t, 1, innerInitialRuns)

	leave.Set()
	waitUntil(t, func() bool { return m.IsActive(lobby) })
	require.False(t, m.IsActive(vault))

	enter.Set()
	waitUntil(t, func() bool { return m.IsActive(deep) })
	require.True(t, m.IsActive(inner))
	require.True(t, m.IsActive(vault))
	require.Equal(t, 1, innerInitialRuns, "deep history resume must bypass Inner's Initial cascade")
	require.NoError(t, m.Err())
}

// TestRegionTransitionScopedToOwnSubtree confirms a region's own target
// resolution stays inside its subtree: transitioning within a region
// never disturbs the sibling region's current child.
func TestRegionTransitionScopedToOwnSubtree(t *testing.T) {
	m := NewMachine(WithPollInterval(testPoll))
	bump := NewEvent(m, "Bump")

	home := NewConcurrent(m.Root(), "Home")
	left := home.AddRegion("Left", false, false)
	a1 := left.NewChild("A1")
	a2 := left.NewChild("A2")
	left.On(left.Initial(), func(ctx context.Context) error {
		return left.Transition(ctx, a1)
	})
	left.On(a1, func(ctx context.Context) error {
		if !bump.Poll() {
			return nil
		}
		return left.Transition(ctx, a2)
	})
	left.On(a2, func(context.Context) error { return nil })

	right := home.AddRegion("Right", false, false)
	b1 := right.NewChild("B1")
	right.On(right.Initial(), func(ctx context.Context) error {
		return right.Transition(ctx, b1)
	})
	right.On(b1, func(context.Context) error { return nil })

	m.Root().On(m.Root().Initial(), func(ctx context.Context) error {
		return m.Root().Transition(ctx, home)
	})

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	waitUntil(t, func() bool { return m.IsActive(a1) && m.IsActive(b1) })

	bump.Set()
	waitUntil(t, func() bool { return m.IsActive(a2) })
	time.Sleep(20 * time.Millisecond)
	require.True(t, m.IsActive(b1), "Right region must be unaffected by Left's internal transition")
	require.NoError(t, m.Err())
}

// TestAncestorExitTearsDownAllRegions confirms an ancestor abandoning a
// concurrent composite outright (both regions still mid-leaf, neither
// having reached Final) tears every region down cleanly rather than
// leaving stale set-frame members behind.
func TestAncestorExitTearsDownAllRegions(t *testing.T) {
	m := NewMachine(WithPollInterval(testPoll))
	abort := NewEvent(m, "Abort")

	home := NewConcurrent(m.Root(), "Home")
	left := home.AddRegion("Left", false, false)
	a1 := left.NewChild("A1")
	left.On(left.Initial(), func(ctx context.Context) error {
		return left.Transition(ctx, a1)
	})
	left.On(a1, func(context.Context) error { return nil })

	right := home.AddRegion("Right", false, false)
	b1 := right.NewChild("B1")
	right.On(right.Initial(), func(ctx context.Context) error {
		return right.Transition(ctx, b1)
	})
	right.On(b1, func(context.Context) error { return nil })

	aborted := NewState(m.Root(), "Aborted")
	m.Root().On(m.Root().Initial(), func(ctx context.Context) error {
		return m.Root().Transition(ctx, home)
	})
	m.Root().On(home, func(ctx context.Context) error {
		if !abort.Poll() {
			return nil
		}
		return m.Root().Transition(ctx, aborted)
	})

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	waitUntil(t, func() bool { return m.IsActive(a1) && m.IsActive(b1) })

	abort.Set()
	waitUntil(t, func() bool { return m.IsActive(aborted) })
	require.False(t, m.IsActive(home))
	require.False(t, m.IsActive(a1))
	require.False(t, m.IsActive(b1))
	require.NoError(t, m.Err(), "tearing down both regions directly must not trip the set-frame stack invariant")
}
