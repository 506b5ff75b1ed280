// Package hsm implements a runtime for hierarchical, concurrent, finite
// state machines in the style of UML statecharts: composite states,
// orthogonal (parallel) regions, history pseudo-states, and a cooperative
// tick loop that evaluates transition functions against level-triggered
// events.
package hsm

import (
	"context"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ActionFunc is an entry/do/exit hook or a transition action. It may
// block or return an error; a returned error aborts the ticker via
// ActionError.
type ActionFunc func(ctx context.Context) error

// TransitionFunc is registered per current-child in a composite's
// transition table. It polls guards (typically Event.Poll) and, on a
// positive guard, calls Transition on the owning node. For concurrent
// composites the region index is curried by the client when building the
// per-region table (see Region.On) — the function
// signature itself never changes.
type TransitionFunc func(ctx context.Context) error

type kind int

const (
	kindSimple kind = iota
	kindComposite
	kindConcurrent
	kindInitial
	kindFinal
	kindHistoryShallow
	kindHistoryDeep
)

func (k kind) isPseudo() bool {
	return k == kindInitial || k == kindFinal || k == kindHistoryShallow || k == kindHistoryDeep
}

// State is a vertex in the state tree: a leaf, a composite, a concurrent
// composite, or a pseudo-state. All variants share this one struct,
// tagged by kind, trading the teacher's separate interface hierarchy for
// a single tagged-variant type.
type State struct {
	name    string
	kind    kind
	parent  *State
	region  *Region // non-nil when this state lives inside a concurrent composite's region
	machine *Machine

	onEntry, onDo, onExit ActionFunc

	// composite-only (kind == kindComposite)
	children    map[string]*State
	initial     *State
	final       *State
	history     *State
	deepHistory bool
	current     *State
	transitions *orderedmap.OrderedMap[*State, TransitionFunc]

	// concurrent-only (kind == kindConcurrent)
	regions []*Region

	// history payload: owned by the history pseudo-state itself.
	histReturn  *State   // the remembered direct child (shallow or deep)
	histReturnN []*State // deep history only: remembered descendants below histReturn
}

// Name returns the state's stable string label.
func (s *State) Name() string {
	return s.name
}

// Parent returns the owning composite, or nil for the root.
func (s *State) Parent() *State {
	return s.parent
}

// IsComposite reports whether s is a plain composite state.
func (s *State) IsComposite() bool {
	return s.kind == kindComposite
}

// IsConcurrent reports whether s is a concurrent (orthogonal-region)
// composite.
func (s *State) IsConcurrent() bool {
	return s.kind == kindConcurrent
}

// IsPseudo reports whether s is a pseudo-state (Initial, Final,
// HistoryShallow, or HistoryDeep). Pseudo-states never run user hooks
// and are never pushed onto the active-state stack.
func (s *State) IsPseudo() bool {
	return s.kind.isPseudo()
}

// IsFinal reports whether s is a Final pseudo-state.
func (s *State) IsFinal() bool {
	return s.kind == kindFinal
}

// IsHistory reports whether s is a HistoryShallow or HistoryDeep
// pseudo-state.
func (s *State) IsHistory() bool {
	return s.kind == kindHistoryShallow || s.kind == kindHistoryDeep
}

// Initial returns the composite's Initial pseudo-child, the key a
// transition table entry must be registered against with On. Nil for
// anything that is not a composite.
func (s *State) Initial() *State { return s.initial }

// Final returns the composite's Final pseudo-child, the transition
// target that marks the composite as done for IsAtFinalState. Nil for
// anything that is not a composite.
func (s *State) Final() *State { return s.final }

// History returns the composite's history pseudo-child, or nil if it
// was built without one.
func (s *State) History() *State { return s.history }

func newNode(name string, k kind, parent *State) *State {
	s := &State{name: name, kind: k, parent: parent}
	if parent != nil {
		s.machine = parent.machine
		s.region = parent.region
	}
	return s
}

// NewState builds a simple (leaf) state under parent. parent must not be
// nil except for a driver's own root, which Machine constructs itself.
// Panics with ParentMissingError otherwise, failing fast at construction
// rather than leaving a state that will nil-panic on its first tick.
func NewState(parent *State, name string) *State {
	if parent == nil {
		panic(NewParentMissingError(name))
	}
	s := newNode(name, kindSimple, parent)
	parent.addChild(s)
	return s
}

// WithEntry sets the entry hook and returns s for chaining.
func (s *State) WithEntry(f ActionFunc) *State {
	s.onEntry = f
	return s
}

// WithDo sets the do hook and returns s for chaining.
func (s *State) WithDo(f ActionFunc) *State {
	s.onDo = f
	return s
}

// WithExit sets the exit hook and returns s for chaining.
func (s *State) WithExit(f ActionFunc) *State {
	s.onExit = f
	return s
}

func (s *State) addChild(child *State) {
	if s.children == nil {
		s.children = make(map[string]*State)
	}
	s.children[child.name] = child
}

// runEntry invokes the entry hook (if any) and emits the diagnostic
// trace line, then activates the state onto the driver's stack.
func (s *State) runEntry(ctx context.Context) error {
	if s.IsPseudo() {
		return nil
	}
	s.machine.emitTrace(s.name + " -> " + s.name + " : entry()")
	if s.onEntry != nil {
		if err := safeCall(s.onEntry, ctx); err != nil {
			return NewActionError(s.name, "entry", err)
		}
	}
	s.activate()
	return nil
}

// runDo invokes s's own do hook, for leaves and composites alike. The
// rest of a composite/concurrent do pass lives in composite.go/region.go
// since it also drives transition evaluation.
func (s *State) runDo(ctx context.Context) error {
	if s.IsPseudo() || s.onDo == nil {
		return nil
	}
	s.machine.emitTrace(s.name + " -> " + s.name + " : do()")
	if err := safeCall(s.onDo, ctx); err != nil {
		return NewActionError(s.name, "do", err)
	}
	return nil
}

// runExit invokes the exit hook (if any), then pops the state from the
// active-state stack. Returns StackInvariantError if s was not at the
// stack position its activation mode requires.
func (s *State) runExit(ctx context.Context) error {
	if s.IsPseudo() {
		return nil
	}
	if s.onExit != nil {
		if err := safeCall(s.onExit, ctx); err != nil {
			return NewActionError(s.name, "exit", err)
		}
	}
	s.machine.emitTrace(s.name + " -> " + s.name + " : exit()")
	return s.deactivate()
}

// activate pushes s onto the driver's active-state stack: a concurrent
// composite opens a new set-frame for its regions' members, a region
// member is inserted into the nearest enclosing set-frame, and anything
// else gets a plain sequential push.
func (s *State) activate() {
	switch {
	case s.kind == kindConcurrent:
		s.machine.pushSetFrame(s)
	case s.region != nil:
		s.machine.pushConcurrent(s)
	default:
		s.machine.pushSequential(s)
	}
	s.machine.emitTrace("activate " + s.name)
}

// deactivate removes s from the active-state stack.
func (s *State) deactivate() error {
	s.machine.emitTrace("deactivate " + s.name)
	switch {
	case s.kind == kindConcurrent:
		return s.machine.popSetFrame(s)
	case s.region != nil:
		return s.machine.popConcurrent(s)
	default:
		return s.machine.popSequential(s)
	}
}

func safeCall(f ActionFunc, ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
			} else {
				err = fmt.Errorf("panic: %v", r)
			}
		}
	}()
	return f(ctx)
}
