package fove

// Mgu computes the most general unifier of two Prvs. It fails when functors
// or arities differ, or when two distinct constants (or a constant outside
// a variable's population) would have to be equal. Failure is ordinary
// control flow, not an error.
func Mgu(p1, p2 Prv) (Substitution, bool) {
	a, aok := p1.(*StdPrv)
	b, bok := p2.(*StdPrv)
	if !aok || !bok {
		// Counting formulas unify through the Prvs they count.
		ga, _ := groundSet(p1, ConstraintSet{})
		gb, _ := groundSet(p2, ConstraintSet{})
		a, b = ga, gb
	}
	if a.functor != b.functor || len(a.params) != len(b.params) {
		return Substitution{}, false
	}
	stack := make([]Constraint, 0, len(a.params))
	for i := len(a.params) - 1; i >= 0; i-- {
		stack = append(stack, NewEquality(a.params[i], b.params[i]))
	}
	var mgu Substitution
	for len(stack) > 0 {
		eq := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if eq.first.Equal(eq.second) {
			continue
		}
		if !eq.first.IsVariable() {
			if !eq.second.IsVariable() {
				return Substitution{}, false
			}
			eq = NewEquality(eq.second, eq.first)
		}
		binding, err := eq.ToBinding()
		if err != nil {
			return Substitution{}, false
		}
		if c, ok := binding.replacement.(Constant); ok && !binding.replaced.population.Contains(c) {
			return Substitution{}, false
		}
		single := NewSubstitution(binding)
		for i := range stack {
			stack[i] = NewEquality(single.Apply(stack[i].first), single.Apply(stack[i].second))
		}
		mgu = mgu.Propagate(binding)
	}
	return mgu, true
}

// consistent reports whether sub can hold together with cs: no inequality
// collapses and every constant lies in its variable's population.
func consistent(sub Substitution, cs ConstraintSet) bool {
	for _, b := range sub.bindings {
		if c, ok := b.replacement.(Constant); ok && !b.replaced.population.Contains(c) {
			return false
		}
	}
	_, err := cs.Apply(sub)
	return err == nil
}

// AreDisjoint reports whether p1 under c1 and p2 under c2 share no ground
// random variable. Both sides are renamed apart through ctx before
// unification, since their logical variables live in different scopes.
func AreDisjoint(p1 Prv, c1 ConstraintSet, p2 Prv, c2 ConstraintSet, ctx *RenamingContext) bool {
	g1, k1 := groundSet(p1, c1)
	g2, k2 := groundSet(p2, c2)
	r1, s1, err := renameApart(g1, k1, ctx)
	if err != nil {
		return true
	}
	r2, s2, err := renameApart(g2, k2, ctx)
	if err != nil {
		return true
	}
	mgu, ok := Mgu(r1, r2)
	if !ok {
		return true
	}
	if mgu.IsEmpty() {
		return !r1.Equal(r2)
	}
	return !consistent(mgu, s1.Union(s2))
}

// overlapping reports whether two Prvs of the same parfactor share a ground
// random variable under its constraints.
func overlapping(p, q Prv, cs ConstraintSet) bool {
	ctx := NewRenamingContext()
	gp, kp := groundSet(p, cs)
	gq, kq := groundSet(q, cs)
	// Bound variables of counting formulas are local to each formula.
	if cf, ok := q.(*CountingFormula); ok {
		sub := NewSubstitution(NewBinding(cf.bound, ctx.Fresh(cf.bound)))
		var err error
		if kq, err = kq.Apply(sub); err != nil {
			return false
		}
		gq = gq.substitute(sub)
	}
	mgu, ok := Mgu(gp, gq)
	if !ok {
		return false
	}
	return consistent(mgu, kp.Union(kq))
}

func renameApart(p *StdPrv, cs ConstraintSet, ctx *RenamingContext) (*StdPrv, ConstraintSet, error) {
	vars := newVariableSet(p.LogicalVariables()...)
	for _, v := range cs.Variables() {
		vars.add(v)
	}
	sub := ctx.RenameApart(vars.order)
	renamed, err := cs.Apply(sub)
	if err != nil {
		return nil, ConstraintSet{}, err
	}
	return p.substitute(sub), renamed, nil
}
