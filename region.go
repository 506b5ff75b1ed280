package hsm

import (
	"context"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Region is one orthogonal branch of a concurrent composite (built with
// NewConcurrent): its own current-child slot, Initial/Final pair,
// optional history, and transition table, evaluated independently every
// tick alongside its sibling regions. A Region is not itself a node in
// the state tree — its states report the owning concurrent State as
// Parent(), which keeps the LCA walk that drives transitions uniform
// whether or not a region boundary sits in the middle of it.
type Region struct {
	name  string
	owner *State
	index int

	initial     *State
	final       *State
	history     *State
	deepHistory bool
	current     *State
	transitions *orderedmap.OrderedMap[*State, TransitionFunc]
	children    map[string]*State
}

func (r *Region) diagName() string   { return r.owner.name + "/" + r.name }
func (r *Region) ownerState() *State { return r.owner }
func (r *Region) currentPtr() **State {
	return &r.current
}
func (r *Region) initialChild() *State { return r.initial }
func (r *Region) finalChild() *State   { return r.final }
func (r *Region) historyChild() *State { return r.history }
func (r *Region) isDeepHistory() bool  { return r.deepHistory }

// Initial returns the region's Initial pseudo-child, the key its own
// Initial transition function must be registered against with On.
func (r *Region) Initial() *State { return r.initial }

// Final returns the region's Final pseudo-child: the join condition for
// the owning concurrent composite checks every region's current child
// against this.
func (r *Region) Final() *State { return r.final }

// History returns the region's history pseudo-child, or nil if it was
// built without one.
func (r *Region) History() *State { return r.history }

// Name returns the region's diagnostic label.
func (r *Region) Name() string { return r.diagName() }
func (r *Region) transitionTable() *orderedmap.OrderedMap[*State, TransitionFunc] {
	return r.transitions
}

// AddRegion attaches a new orthogonal region to a concurrent composite
// (built with NewConcurrent), returning it for population with
// NewChild/NewComposite and On. withHistory/deep mirror NewComposite's
// history knobs, scoped to this region alone.
func (s *State) AddRegion(name string, withHistory, deep bool) *Region {
	if s.kind != kindConcurrent {
		panic("hsm: AddRegion called on a non-concurrent state: " + s.name)
	}
	r := &Region{name: name, owner: s, index: len(s.regions)}
	r.transitions = orderedmap.New[*State, TransitionFunc]()
	r.initial = newNode(s.name+"/"+name+".Initial", kindInitial, s)
	r.initial.region = r
	r.final = newNode(s.name+"/"+name+".Final", kindFinal, s)
	r.final.region = r
	if withHistory {
		hk := kindHistoryShallow
		if deep {
			hk = kindHistoryDeep
		}
		r.history = newNode(s.name+"/"+name+".History", hk, s)
		r.history.region = r
		r.deepHistory = deep
	}
	r.current = r.initial
	s.regions = append(s.regions, r)
	return r
}

func (r *Region) addChild(s *State) {
	if r.children == nil {
		r.children = make(map[string]*State)
	}
	r.children[s.name] = s
	r.owner.addChild(s)
}

// NewChild builds a simple (leaf) state inside r.
func (r *Region) NewChild(name string) *State {
	s := newNode(r.owner.name+"/"+name, kindSimple, r.owner)
	s.region = r
	r.addChild(s)
	return s
}

// NewComposite builds a composite state inside r, with the same history
// options as the top-level NewComposite.
func (r *Region) NewComposite(name string, withHistory, deep bool) *State {
	s := NewComposite(r.owner, name, withHistory, deep)
	s.setRegion(r)
	r.addChild(s)
	return s
}

// On registers the transition function evaluated while child is this
// region's current child.
func (r *Region) On(child *State, fn TransitionFunc) *Region {
	r.transitions.Set(child, fn)
	return r
}

// Transition runs the canonical exit/actions/entry sequence for the
// current child of r. Call it from within a transition function
// registered with On.
func (r *Region) Transition(ctx context.Context, target *State, actions ...ActionFunc) error {
	return doTransition(ctx, r, target, actions...)
}

// HandleHistory resumes r's remembered state from within its registered
// History transition function.
func (r *Region) HandleHistory(ctx context.Context) error {
	if r.history == nil || r.history.histReturn == nil {
		return NewConfigurationError(r.diagName(), "history resume requested with nothing remembered")
	}
	if r.deepHistory && len(r.history.histReturnN) > 0 {
		return doDeepTransition(ctx, r, r.history.histReturn, r.history.histReturnN)
	}
	return doTransition(ctx, r, r.history.histReturn)
}

func (r *Region) decideRestingState(chain []*State) {
	outgoing := r.current
	if outgoing == nil {
		return
	}
	if r.history != nil && outgoing.kind != kindFinal {
		r.history.histReturn = outgoing
		if r.deepHistory {
			if idx := indexOfState(chain, outgoing); idx >= 0 {
				r.history.histReturnN = append([]*State(nil), chain[idx+1:]...)
			}
		}
		r.current = r.history
	} else {
		r.current = r.initial
	}
}

// doRegions evaluates every region's do()/transition-table pass
// concurrently, one goroutine per region joined with a WaitGroup, so
// sibling regions make progress independently within a single tick. A
// region reaching Final is left in place for the owning concurrent
// composite's join check (IsAtFinalState); regions never exit
// themselves independently of the whole concurrent composite. The
// first error from any region wins.
func (s *State) doRegions(ctx context.Context) error {
	errs := make([]error, len(s.regions))
	var wg sync.WaitGroup
	for i, r := range s.regions {
		wg.Add(1)
		go func(i int, r *Region) {
			defer wg.Done()
			errs[i] = evalDo(ctx, r)
		}(i, r)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// exitAllRegionsExcept tears down every region of a concurrent composite
// other than except (whose own active chain the caller has already
// exited), in preparation for exiting the concurrent composite itself.
// except is nil when the concurrent composite is being abandoned from
// outside any of its own regions, in which case every region is torn
// down.
func exitAllRegionsExcept(ctx context.Context, concurrent *State, except *Region) error {
	for _, r := range concurrent.regions {
		if r == except {
			continue
		}
		if err := exitRegionChain(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func exitRegionChain(ctx context.Context, r *Region) error {
	chain := captureChain(r.current)
	var prev *State
	cur := chain[len(chain)-1]
	for cur != r.owner {
		if cur.kind == kindComposite {
			cur.decideRestingState(chain)
		}
		if cur.kind == kindConcurrent {
			var except *Region
			if prev != nil {
				except = prev.region
			}
			if err := exitAllRegionsExcept(ctx, cur, except); err != nil {
				return err
			}
		}
		if err := cur.runExit(ctx); err != nil {
			return err
		}
		prev = cur
		cur = cur.parent
	}
	r.decideRestingState(chain)
	return nil
}
