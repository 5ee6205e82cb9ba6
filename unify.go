package problog

// The evaluation context of a clause frame is a plain []Term, one slot per
// variable, nil meaning unbound. Unification failure is reported through the
// errUnify sentinel and is always recovered silently at the nearest clause or
// call boundary; it never surfaces to callers of the engine.

// instantiate substitutes context values into t. Unbound variables become
// nil, which unifies as a wildcard. Substitution is single-level, matching
// the frame discipline of the evaluator: bound values are inserted as-is.
func instantiate(t Term, ctx []Term) Term {
	switch t := t.(type) {
	case nil:
		return nil
	case Var:
		if int(t) >= 0 && int(t) < len(ctx) {
			return ctx[t]
		}
		return t
	case Float:
		return t
	case *Compound:
		if len(t.Args) == 0 && t.Probability == nil {
			return t
		}
		d := *t
		d.Args = make([]Term, len(t.Args))
		for i, a := range t.Args {
			d.Args[i] = instantiate(a, ctx)
		}
		if t.Probability != nil {
			d.Probability = instantiate(t.Probability, ctx)
		}
		return &d
	default:
		return t
	}
}

func instantiateAll(ts []Term, ctx []Term) []Term {
	out := make([]Term, len(ts))
	for i, t := range ts {
		out[i] = instantiate(t, ctx)
	}
	return out
}

// deref chases a variable through ctx until it reaches an unbound slot or a
// non-variable value.
func deref(t Term, ctx []Term) Term {
	for {
		v, ok := t.(Var)
		if !ok || int(v) < 0 || int(v) >= len(ctx) {
			return t
		}
		next := ctx[v]
		if next == nil {
			return t
		}
		if nv, ok := next.(Var); ok && nv == v {
			return t
		}
		t = next
	}
}

// unify matches value a against pattern b, binding unbound context variables
// occurring in b. Variables on the a side belong to a foreign frame and act
// as wildcards; nil acts as a wildcard on either side.
func unify(a, b Term, ctx []Term) error {
	b = deref(b, ctx)
	if bv, ok := b.(Var); ok && int(bv) >= 0 && int(bv) < len(ctx) {
		if a == nil {
			return nil
		}
		if av, ok := a.(Var); ok && av == bv {
			return nil
		}
		ctx[bv] = a
		return nil
	}
	if a == nil || b == nil {
		return nil
	}
	if _, ok := a.(Var); ok {
		return nil
	}
	if _, ok := b.(Var); ok {
		// Out-of-frame variable on the pattern side, nothing to bind.
		return nil
	}
	switch b := b.(type) {
	case Float:
		if a, ok := a.(Float); ok && a == b {
			return nil
		}
		return errUnify
	case *Compound:
		a, ok := a.(*Compound)
		if !ok || a.Functor != b.Functor || len(a.Args) != len(b.Args) {
			return errUnify
		}
		for i := range a.Args {
			if err := unify(a.Args[i], b.Args[i], ctx); err != nil {
				return err
			}
		}
		return nil
	}
	return errUnify
}

// match is the context-free form of unify used for facts: variables and nil
// match anything on either side, constants and compounds match structurally.
// Repeated-variable consistency is restored by the call-return step, which
// re-unifies every result tuple into the caller's context.
func match(a, b Term) error {
	if a == nil || b == nil || isVarTerm(a) || isVarTerm(b) {
		return nil
	}
	switch a := a.(type) {
	case Float:
		if b, ok := b.(Float); ok && a == b {
			return nil
		}
		return errUnify
	case *Compound:
		b, ok := b.(*Compound)
		if !ok || a.Functor != b.Functor || len(a.Args) != len(b.Args) {
			return errUnify
		}
		for i := range a.Args {
			if err := match(a.Args[i], b.Args[i]); err != nil {
				return err
			}
		}
		return nil
	}
	return errUnify
}

// mergeTerms computes the most general term matching both a and b, used by
// the =/2 builtin. Variables and nil give way to the other side.
func mergeTerms(a, b Term) (Term, error) {
	if a == nil || isVarTerm(a) {
		return b, nil
	}
	if b == nil || isVarTerm(b) {
		return a, nil
	}
	switch a := a.(type) {
	case Float:
		if b, ok := b.(Float); ok && a == b {
			return a, nil
		}
		return nil, errUnify
	case *Compound:
		b, ok := b.(*Compound)
		if !ok || a.Functor != b.Functor || len(a.Args) != len(b.Args) {
			return nil, errUnify
		}
		merged := *a
		merged.Args = make([]Term, len(a.Args))
		for i := range a.Args {
			m, err := mergeTerms(a.Args[i], b.Args[i])
			if err != nil {
				return nil, err
			}
			merged.Args[i] = m
		}
		return &merged, nil
	}
	return nil, errUnify
}

// isGround reports whether t contains no variables and no unbound slots.
func isGround(t Term) bool {
	switch t := t.(type) {
	case nil:
		return false
	case Var:
		return false
	case Float:
		return true
	case *Compound:
		for _, a := range t.Args {
			if !isGround(a) {
				return false
			}
		}
		return true
	}
	return false
}

func allGround(ts []Term) bool {
	for _, t := range ts {
		if !isGround(t) {
			return false
		}
	}
	return true
}
