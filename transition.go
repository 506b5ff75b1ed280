package hsm

import "context"

// Transition runs the canonical exit -> actions -> entry sequence between
// the current child of s and target, per the machine driver's LCA-based
// protocol: exit climbs from the active leaf up to (excluding) the lowest
// common ancestor of the current leaf and target, the transition actions
// run once the tree is at that ancestor, then entry descends back down to
// target, cascading through any intermediate composites' own Initial (or
// the explicit continuation when target lies deeper still). Call it from
// within a transition function registered with On.
func (s *State) Transition(ctx context.Context, target *State, actions ...ActionFunc) error {
	return doTransition(ctx, s, target, actions...)
}

// HandleHistory resumes s's remembered child from within its registered
// History transition function. Returns ConfigurationError if s has never
// been exited before (nothing remembered).
func (s *State) HandleHistory(ctx context.Context) error {
	if s.history == nil || s.history.histReturn == nil {
		return NewConfigurationError(s.name, "history resume requested with nothing remembered")
	}
	if s.deepHistory && len(s.history.histReturnN) > 0 {
		return doDeepTransition(ctx, s, s.history.histReturn, s.history.histReturnN)
	}
	return doTransition(ctx, s, s.history.histReturn)
}

// captureChain walks from from down through nested composites' current
// children to the deepest leaf, stopping at a concurrent composite
// boundary (which owns several independent current children, one per
// region, rather than a single one). It is both the source of leaf1 for
// the exit walk and, for deep history, the record of exactly which
// descendants were active.
func captureChain(from *State) []*State {
	chain := []*State{from}
	cur := from
	for cur.kind == kindComposite && cur.current != nil {
		cur = cur.current
		chain = append(chain, cur)
	}
	return chain
}

func indexOfState(chain []*State, s *State) int {
	for i, n := range chain {
		if n == s {
			return i
		}
	}
	return -1
}

func pathToRoot(s *State) []*State {
	var path []*State
	for n := s; n != nil; n = n.parent {
		path = append(path, n)
	}
	return path
}

// lca returns the lowest common ancestor of a and b by walking both
// parent chains from the root inward.
func lca(a, b *State) *State {
	pa, pb := pathToRoot(a), pathToRoot(b)
	ia, ib := len(pa)-1, len(pb)-1
	var last *State
	for ia >= 0 && ib >= 0 && pa[ia] == pb[ib] {
		last = pa[ia]
		ia--
		ib--
	}
	return last
}

// decideRestingState runs when s (a composite) is exited: if s has a
// history child and its current child was not Final, the current child
// (and, for deep history, the remainder of chain below it) is
// remembered; otherwise s resets to Initial for its next fresh entry.
func (s *State) decideRestingState(chain []*State) {
	outgoing := s.current
	if outgoing == nil {
		return
	}
	if s.history != nil && outgoing.kind != kindFinal {
		s.history.histReturn = outgoing
		if s.deepHistory {
			if idx := indexOfState(chain, outgoing); idx >= 0 {
				s.history.histReturnN = append([]*State(nil), chain[idx+1:]...)
			}
		}
		s.current = s.history
	} else {
		s.current = s.initial
	}
}

// exitUpTo walks from leaf1 up to (excluding) top, exiting every state it
// passes, deciding each composite's resting state first and tearing down
// regions whenever the walk leaves a concurrent composite. It returns
// only an error; writeOwnerFor picks the compositeLike whose currentPtr
// records the next active child: cl itself when top is a concurrent
// composite, otherwise top.
func exitUpTo(ctx context.Context, cl compositeLike, chain []*State, top *State) error {
	var prev *State
	cur := chain[len(chain)-1]
	for cur != top {
		if cur.kind == kindComposite {
			cur.decideRestingState(chain)
		}
		if cur.kind == kindConcurrent {
			// prev.region is the one region whose own chain this walk just
			// came up through (already exited above); every other region,
			// including all of them when the concurrent composite itself is
			// the outgoing leaf (prev == nil), still needs tearing down.
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
	return nil
}

func writeOwnerFor(cl compositeLike, top *State) compositeLike {
	if top.kind == kindConcurrent {
		return cl
	}
	return top
}

// entryPath returns the states strictly below top down to and including
// target, in top-down order.
func entryPath(target, top *State) []*State {
	var path []*State
	for n := target; n != top; n = n.parent {
		path = append([]*State{n}, path...)
	}
	return path
}

// enterFresh activates s as a freshly-entered (non-history) state: a
// leaf simply runs its entry hook; a composite additionally cascades its
// Initial transition function to completion before returning; a
// concurrent composite enters every region via its own Initial.
func enterFresh(ctx context.Context, s *State) error {
	if s.kind == kindComposite {
		if err := s.runEntry(ctx); err != nil {
			return err
		}
		s.current = s.initial
		fn, ok := s.transitions.Get(s.initial)
		if !ok {
			return NewConfigurationError(s.name, "missing Initial transition function")
		}
		return fn(ctx)
	}
	if s.kind == kindConcurrent {
		if err := s.runEntry(ctx); err != nil {
			return err
		}
		for _, r := range s.regions {
			if err := enterRegionFresh(ctx, r); err != nil {
				return err
			}
		}
		return nil
	}
	return s.runEntry(ctx)
}

func enterRegionFresh(ctx context.Context, r *Region) error {
	r.current = r.initial
	fn, ok := r.transitions.Get(r.initial)
	if !ok {
		return NewConfigurationError(r.diagName(), "missing Initial transition function")
	}
	return fn(ctx)
}

func enterViaHistory(ctx context.Context, owner compositeLike, hist *State) error {
	*owner.currentPtr() = hist
	fn, ok := owner.transitionTable().Get(hist)
	if !ok {
		return NewConfigurationError(owner.diagName(), "missing history transition function")
	}
	return fn(ctx)
}

// enterTowards descends from top down to target along entryPath,
// recording membership at each level and cascading intermediate
// composites' own Initial unless the path explicitly continues through
// them.
func enterTowards(ctx context.Context, writeOwner compositeLike, top, target *State) error {
	path := entryPath(target, top)
	if len(path) == 0 {
		return nil
	}
	*writeOwner.currentPtr() = path[0]
	for i, n := range path {
		if i != len(path)-1 {
			if err := n.runEntry(ctx); err != nil {
				return err
			}
			switch n.kind {
			case kindComposite:
				n.current = path[i+1]
			case kindConcurrent:
				var skip *Region
				if path[i+1].region != nil {
					skip = path[i+1].region
					skip.current = path[i+1]
				}
				for _, r := range n.regions {
					if r == skip {
						continue
					}
					if err := enterRegionFresh(ctx, r); err != nil {
						return err
					}
				}
			}
			continue
		}
		var tailOwner compositeLike = writeOwner
		if len(path) > 1 {
			tailOwner = path[len(path)-2]
		}
		switch {
		case n.IsHistory():
			return enterViaHistory(ctx, tailOwner, n)
		case n.IsFinal():
			return nil
		default:
			return enterFresh(ctx, n)
		}
	}
	return nil
}

// doTransition is the shared implementation behind (*State).Transition
// and (*Region).Transition.
func doTransition(ctx context.Context, cl compositeLike, target *State, actions ...ActionFunc) error {
	outgoing := *cl.currentPtr()
	if outgoing == nil {
		return NewConfigurationError(cl.diagName(), "transition attempted with no current child")
	}
	chain := captureChain(outgoing)
	leaf1 := chain[len(chain)-1]
	top := lca(leaf1, target)

	if err := exitUpTo(ctx, cl, chain, top); err != nil {
		return err
	}
	for _, action := range actions {
		if err := safeCall(action, ctx); err != nil {
			return NewActionError(cl.diagName(), "transition", err)
		}
	}
	return enterTowards(ctx, writeOwnerFor(cl, top), top, target)
}

// doDeepTransition is doTransition's entry side specialized for resuming
// a deep-history chain: rather than cascading through each intermediate
// composite's own Initial, it walks straight down the remembered
// descendant chain captured at exit time.
func doDeepTransition(ctx context.Context, cl compositeLike, target *State, deepChain []*State) error {
	outgoing := *cl.currentPtr()
	if outgoing == nil {
		return NewConfigurationError(cl.diagName(), "transition attempted with no current child")
	}
	chain := captureChain(outgoing)
	leaf1 := chain[len(chain)-1]
	top := lca(leaf1, target)

	if err := exitUpTo(ctx, cl, chain, top); err != nil {
		return err
	}

	writeOwner := writeOwnerFor(cl, top)
	path := entryPath(target, top)
	if len(path) == 0 {
		return nil
	}
	*writeOwner.currentPtr() = path[0]
	for i, n := range path {
		if i == len(path)-1 {
			break
		}
		if err := n.runEntry(ctx); err != nil {
			return err
		}
		n.current = path[i+1]
	}
	if err := target.runEntry(ctx); err != nil {
		return err
	}
	prev := target
	for _, next := range deepChain {
		prev.current = next
		if err := next.runEntry(ctx); err != nil {
			return err
		}
		prev = next
	}
	return nil
}
