package hsm

import (
	"context"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// NewComposite builds a composite state under parent, creating its own
// Initial and Final pseudo-children. When withHistory is true a history
// pseudo-child is also created; deep selects HistoryDeep semantics over
// HistoryShallow. parent must not be nil (the driver's own root is built
// internally by Machine, not through this constructor); a nil parent
// panics with ParentMissingError rather than building a state that would
// nil-panic on its first tick.
func NewComposite(parent *State, name string, withHistory, deep bool) *State {
	if parent == nil {
		panic(NewParentMissingError(name))
	}
	s := newNode(name, kindComposite, parent)
	s.transitions = orderedmap.New[*State, TransitionFunc]()
	s.initial = newNode(name+".Initial", kindInitial, s)
	s.final = newNode(name+".Final", kindFinal, s)
	if withHistory {
		hk := kindHistoryShallow
		if deep {
			hk = kindHistoryDeep
		}
		s.history = newNode(name+".History", hk, s)
		s.deepHistory = deep
	}
	s.current = s.initial
	parent.addChild(s)
	return s
}

// setRegion marks s, and its Initial/Final/History pseudo-children
// created alongside it, as belonging to region r. Used by
// Region.NewComposite, since NewComposite itself builds those
// pseudo-children before the caller can attach the region.
func (s *State) setRegion(r *Region) {
	s.region = r
	if s.initial != nil {
		s.initial.region = r
	}
	if s.final != nil {
		s.final.region = r
	}
	if s.history != nil {
		s.history.region = r
	}
}

// NewConcurrent builds a concurrent (orthogonal-region) composite under
// parent. Populate it with AddRegion; Finalize rejects fewer than two
// regions. parent must not be nil; see NewComposite.
func NewConcurrent(parent *State, name string) *State {
	if parent == nil {
		panic(NewParentMissingError(name))
	}
	s := newNode(name, kindConcurrent, parent)
	parent.addChild(s)
	return s
}

// On registers the transition function evaluated while child is this
// composite's current child. child must be a direct child of s, or s's
// Initial/History pseudo-state. Exactly one entry for Initial is
// mandatory (enforced by Finalize); an entry for History is mandatory
// whenever the composite was built withHistory=true.
func (s *State) On(child *State, fn TransitionFunc) *State {
	s.transitions.Set(child, fn)
	return s
}

// compositeLike is the shared contract between a plain composite (*State
// with kind == kindComposite) and a concurrent composite's Region: both
// own a current-child slot, an Initial/Final pair, an optional history
// child, and a transition table keyed by current child.
type compositeLike interface {
	diagName() string
	ownerState() *State
	currentPtr() **State
	initialChild() *State
	finalChild() *State
	historyChild() *State
	isDeepHistory() bool
	transitionTable() *orderedmap.OrderedMap[*State, TransitionFunc]
}

func (s *State) diagName() string    { return s.name }
func (s *State) ownerState() *State  { return s }
func (s *State) currentPtr() **State { return &s.current }
func (s *State) initialChild() *State {
	return s.initial
}
func (s *State) finalChild() *State { return s.final }
func (s *State) historyChild() *State {
	return s.history
}
func (s *State) isDeepHistory() bool { return s.deepHistory }
func (s *State) transitionTable() *orderedmap.OrderedMap[*State, TransitionFunc] {
	return s.transitions
}

// validate checks construction-time invariants: every composite must
// have a transition function registered for Initial, and for History
// when present. Called by Machine.Finalize, it walks the whole tree so
// ConfigurationError surfaces before Start.
func (s *State) validate() error {
	if s.kind == kindComposite {
		if _, ok := s.transitions.Get(s.initial); !ok {
			return NewConfigurationError(s.name, "composite has no transition function registered for Initial")
		}
		if s.history != nil {
			if _, ok := s.transitions.Get(s.history); !ok {
				return NewConfigurationError(s.name, "composite has history but no transition function registered for it")
			}
		}
		for _, child := range s.children {
			if err := child.validate(); err != nil {
				return err
			}
		}
	}
	if s.kind == kindConcurrent {
		if len(s.regions) < 2 {
			return NewConfigurationError(s.name, "concurrent composite requires N >= 2 regions")
		}
		for _, r := range s.regions {
			if _, ok := r.transitions.Get(r.initial); !ok {
				return NewConfigurationError(s.name, "region has no transition function registered for Initial")
			}
			if r.history != nil {
				if _, ok := r.transitions.Get(r.history); !ok {
					return NewConfigurationError(s.name, "region has history but no transition function registered for it")
				}
			}
			for _, child := range r.children {
				if err := child.validate(); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// evalDo evaluates the transition function registered for cl's current
// child (a missing entry is a no-op, except for Initial, which Finalize
// catches before Start), then cascades the tick into that child's own
// do() so nested composites' hooks and transition functions run every
// tick too, not just the outermost one.
func evalDo(ctx context.Context, cl compositeLike) error {
	current := *cl.currentPtr()
	if current == nil || current.IsPseudo() {
		return nil
	}
	if fn, ok := cl.transitionTable().Get(current); ok {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	// the transition function above may have moved cl's current child
	// (e.g. firing Initial's cascade); re-read before descending.
	current = *cl.currentPtr()
	if current == nil || current.IsPseudo() {
		return nil
	}
	return current.do(ctx)
}

// State.do is invoked by the ticker once per active stack element.
func (s *State) do(ctx context.Context) error {
	switch s.kind {
	case kindComposite:
		if err := s.runDo(ctx); err != nil {
			return err
		}
		return evalDo(ctx, s)
	case kindConcurrent:
		if err := s.runDo(ctx); err != nil {
			return err
		}
		return s.doRegions(ctx)
	default:
		return s.runDo(ctx)
	}
}

// IsAtFinalState reports, for a plain composite, whether its current
// child is Final; for a concurrent composite, whether every region's
// current child is Final (the join condition for a completion
// transition).
func (s *State) IsAtFinalState() bool {
	switch s.kind {
	case kindComposite:
		return s.current == s.final
	case kindConcurrent:
		for _, r := range s.regions {
			if r.current != r.final {
				return false
			}
		}
		return true
	default:
		return false
	}
}
