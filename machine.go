package hsm

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// TraceSink receives one diagnostic line per entry/do/exit/activation and
// per Event.Set, in the order they occur. The trace package's Writer is
// the canonical implementation, rendering a PlantUML sequence diagram;
// any type satisfying Emit can be plugged in instead (hsmtest's recording
// sink, for instance).
type TraceSink interface {
	Emit(line string)
}

// frame is one element of the active-state stack. A plain frame holds
// exactly one sequentially-owned state; a set-frame (owner != nil) holds
// every currently-active member across a concurrent composite's regions,
// order-independent since the regions are orthogonal.
type frame struct {
	owner   *State
	members []*State
}

const (
	machineIdle int32 = iota
	machineRunning
	machineStopped
)

// Machine is the tick-driven driver for one state tree: it owns the
// active-state stack, the cooperative ticker goroutine, and the poll
// interval that bounds how long a Set Event can wait for its guard to be
// evaluated.
type Machine struct {
	root         *State
	pollInterval time.Duration
	sink         TraceSink

	state    atomic.Int32
	stack    []frame
	tickCh   chan struct{}
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once

	errMu sync.Mutex
	err   error
}

// Option configures a Machine at construction time.
type Option func(*Machine)

// WithPollInterval overrides the default 50ms cadence at which the
// ticker re-evaluates do() and transition functions even absent an
// Event.Set wakeup. Composite do() hooks that must run continuously
// (not just on event edges) rely on this floor.
func WithPollInterval(d time.Duration) Option {
	return func(m *Machine) { m.pollInterval = d }
}

// WithTraceSink attaches a diagnostic sink; nil (the default) disables
// tracing entirely.
func WithTraceSink(sink TraceSink) Option {
	return func(m *Machine) { m.sink = sink }
}

// NewMachine builds an empty Machine with a single composite root. Build
// the state tree under Root(), register its Initial transition with
// Root().On(...), then call Start.
func NewMachine(opts ...Option) *Machine {
	m := &Machine{
		pollInterval: 50 * time.Millisecond,
		tickCh:       make(chan struct{}, 1),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	root := &State{name: "root", kind: kindComposite}
	root.machine = m
	root.transitions = orderedmap.New[*State, TransitionFunc]()
	root.initial = newNode("root.Initial", kindInitial, root)
	root.final = newNode("root.Final", kindFinal, root)
	root.current = root.initial
	m.root = root
	return m
}

// Root returns the machine's top-level composite, the anchor every other
// state is built under.
func (m *Machine) Root() *State {
	return m.root
}

// Finalize walks the whole state tree checking the construction-time
// invariants (every composite has an Initial transition function, every
// history-bearing composite has one for History, every concurrent
// composite has at least two regions). Start calls this automatically;
// exposed separately so tests can validate a tree without running it.
func (m *Machine) Finalize() error {
	return m.root.validate()
}

// Start finalizes the tree, descends into the root's Initial chain, and
// launches the ticker goroutine. A Machine is one-shot: calling Start
// again after a Stop (or after the ticker has failed) returns
// ErrAlreadyStopped.
func (m *Machine) Start(ctx context.Context) error {
	if err := m.Finalize(); err != nil {
		return err
	}
	if !m.state.CompareAndSwap(machineIdle, machineRunning) {
		return ErrAlreadyStopped
	}
	if err := enterFresh(ctx, m.root); err != nil {
		m.fail(err)
		m.state.Store(machineStopped)
		close(m.doneCh)
		return err
	}
	go m.loop(ctx)
	return nil
}

// Stop signals the ticker to exit and blocks until it has. It returns
// ErrNotStarted if the machine was never started.
func (m *Machine) Stop() error {
	if m.state.Load() == machineIdle {
		return ErrNotStarted
	}
	m.stopOnce.Do(func() { close(m.stopCh) })
	<-m.doneCh
	return nil
}

// Err returns the first fatal error the ticker encountered (an
// ActionError or ConfigurationError surfaced from a hook or transition
// function), or nil if none has occurred.
func (m *Machine) Err() error {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	return m.err
}

// ActiveStateTypes renders a snapshot of the active-state stack, e.g.
// "root > Composite > Leaf" with a concurrent composite's set-frame
// rendered as "Owner{Owner/LeafA | Owner/LeafB}", its member names
// sorted.
func (m *Machine) ActiveStateTypes() string {
	var sb strings.Builder
	for i, f := range m.stack {
		if i > 0 {
			sb.WriteString(" > ")
		}
		if f.owner != nil {
			sb.WriteString(f.owner.name)
			sb.WriteString("{")
			names := make([]string, len(f.members))
			for j, mem := range f.members {
				names[j] = mem.name
			}
			sort.Strings(names)
			sb.WriteString(strings.Join(names, " | "))
			sb.WriteString("}")
		} else if len(f.members) == 1 {
			sb.WriteString(f.members[0].name)
		}
	}
	return sb.String()
}

// IsActive reports whether s is currently on the active-state stack,
// either as a sequential frame or as a member of a set-frame.
func (m *Machine) IsActive(s *State) bool {
	for _, f := range m.stack {
		if f.owner == s {
			return true
		}
		for _, mem := range f.members {
			if mem == s {
				return true
			}
		}
	}
	return false
}

func (m *Machine) fail(err error) {
	m.errMu.Lock()
	if m.err == nil {
		m.err = err
	}
	m.errMu.Unlock()
}

func (m *Machine) emitTrace(line string) {
	if m.sink != nil {
		m.sink.Emit(line)
	}
}

// trigger wakes the ticker; it is safe to call from any goroutine (it
// backs Event.Set) and collapses multiple wakeups before the ticker
// drains them into one.
func (m *Machine) trigger() {
	select {
	case m.tickCh <- struct{}{}:
	default:
	}
}

func (m *Machine) loop(ctx context.Context) {
	defer close(m.doneCh)
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.state.Store(machineStopped)
			return
		case <-m.stopCh:
			m.state.Store(machineStopped)
			return
		case <-m.tickCh:
		case <-ticker.C:
		}
		if err := m.root.do(ctx); err != nil {
			m.fail(err)
			m.state.Store(machineStopped)
			return
		}
	}
}

func (m *Machine) pushSequential(s *State) {
	m.stack = append(m.stack, frame{members: []*State{s}})
}

func (m *Machine) popSequential(s *State) error {
	if len(m.stack) == 0 {
		return NewStackInvariantError(s.name, "exit with an empty active-state stack")
	}
	top := m.stack[len(m.stack)-1]
	if top.owner != nil || len(top.members) != 1 || top.members[0] != s {
		return NewStackInvariantError(s.name, "not at the top of the active-state stack")
	}
	m.stack = m.stack[:len(m.stack)-1]
	return nil
}

func (m *Machine) pushSetFrame(owner *State) {
	m.stack = append(m.stack, frame{owner: owner})
}

func (m *Machine) popSetFrame(owner *State) error {
	if len(m.stack) == 0 {
		return NewStackInvariantError(owner.name, "exit with an empty active-state stack")
	}
	top := m.stack[len(m.stack)-1]
	if top.owner != owner || len(top.members) != 0 {
		return NewStackInvariantError(owner.name, "set-frame has active members remaining")
	}
	m.stack = m.stack[:len(m.stack)-1]
	return nil
}

func (m *Machine) pushConcurrent(s *State) {
	top := &m.stack[len(m.stack)-1]
	top.members = append(top.members, s)
}

func (m *Machine) popConcurrent(s *State) error {
	if len(m.stack) == 0 {
		return NewStackInvariantError(s.name, "exit with an empty active-state stack")
	}
	top := &m.stack[len(m.stack)-1]
	for i, mem := range top.members {
		if mem == s {
			top.members = append(top.members[:i], top.members[i+1:]...)
			return nil
		}
	}
	return NewStackInvariantError(s.name, "not present in the active set-frame")
}
