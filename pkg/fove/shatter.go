package fove

import "github.com/pkg/errors"

// Shatter rewrites a model until any two Prvs taken from different
// parfactors denote either identical or disjoint sets of ground random
// variables. Parfactors that represent no ground factor are dropped. The
// context supplies the fresh names used while comparing parfactors.
func Shatter(parfactors []Parfactor, ctx *RenamingContext) ([]Parfactor, error) {
	return shatter(parfactors, ctx, nil)
}

func shatter(parfactors []Parfactor, ctx *RenamingContext, mon *Monitor) ([]Parfactor, error) {
	if mon != nil {
		mon.RecordShatter()
	}
	work := make([]Parfactor, len(parfactors))
	copy(work, parfactors)
	var done []Parfactor
	for len(work) > 0 {
		p1 := work[len(work)-1]
		work = work[:len(work)-1]
		if p1.Size() == 0 {
			continue
		}
		split := false
		for i := len(work) - 1; i >= 0; i-- {
			out, ok, err := unifyPair(p1, work[i], [2]bool{true, true}, ctx)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			if mon != nil {
				mon.RecordSplit()
			}
			rest := make([]Parfactor, 0, len(work)+len(done)+len(out[0])+len(out[1]))
			rest = append(rest, work[:i]...)
			rest = append(rest, work[i+1:]...)
			rest = append(rest, done...)
			rest = append(rest, out[1]...)
			rest = append(rest, out[0]...)
			work, done = rest, nil
			split = true
			break
		}
		if !split {
			done = append(done, p1)
		}
	}
	for i, j := 0, len(done)-1; i < j; i, j = i+1, j-1 {
		done[i], done[j] = done[j], done[i]
	}
	return done, nil
}

// shatterAgainst splits the model until none of its Prvs partially overlaps
// the query. The query itself is never split. changed reports whether any
// parfactor was rewritten.
func shatterAgainst(parfactors []Parfactor, query RandomVariableSet, ctx *RenamingContext, mon *Monitor) ([]Parfactor, bool, error) {
	pseudo := query.pseudoParfactor()
	work := make([]Parfactor, len(parfactors))
	copy(work, parfactors)
	changed := false
	for i := 0; i < len(work); {
		out, ok, err := unifyPair(work[i], pseudo, [2]bool{true, false}, ctx)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			i++
			continue
		}
		if mon != nil {
			mon.RecordSplit()
		}
		changed = true
		pieces := make([]Parfactor, 0, len(work)+1)
		pieces = append(pieces, work[:i]...)
		for _, p := range out[0] {
			if p.Size() > 0 {
				pieces = append(pieces, p)
			}
		}
		pieces = append(pieces, work[i+1:]...)
		work = pieces
	}
	return work, changed, nil
}

// normalize alternates shattering and splitting against the query until
// neither changes the model.
func normalize(parfactors []Parfactor, query RandomVariableSet, ctx *RenamingContext, mon *Monitor) ([]Parfactor, error) {
	current := parfactors
	for {
		shattered, err := shatter(current, ctx, mon)
		if err != nil {
			return nil, err
		}
		split, changed, err := shatterAgainst(shattered, query, ctx, mon)
		if err != nil {
			return nil, err
		}
		if !changed {
			return split, nil
		}
		current = split
	}
}

// unifyPair looks for one rewrite of p1 or p2 that brings an overlapping pair
// of their Prvs closer to identical. ok is false when every pair is already
// identical or disjoint, or no allowed rewrite applies. Only sides with
// mutable set are rewritten; out holds the replacement of each side.
func unifyPair(p1, p2 Parfactor, mutable [2]bool, ctx *RenamingContext) (out [2][]Parfactor, ok bool, err error) {
	sides := [2]Parfactor{p1, p2}
	for _, a := range p1.Prvs() {
		for _, b := range p2.Prvs() {
			prvs := [2]Prv{a, b}
			for _, c := range splitCandidates(a, p1.Constraints(), b, p2.Constraints(), ctx) {
				if !mutable[c.side] {
					continue
				}
				pieces, applied, err := applyCandidate(sides[c.side], prvs[c.side], c.binding)
				if err != nil {
					return out, false, err
				}
				if !applied {
					continue
				}
				out[c.side] = pieces
				out[1-c.side] = []Parfactor{sides[1-c.side]}
				return out, true, nil
			}
		}
	}
	return out, false, nil
}

// splitCandidate proposes splitting one side of a unification on a binding
// expressed in that side's own variable names.
type splitCandidate struct {
	side    int
	binding Binding
}

type classMember struct {
	side int
	v    LogicalVariable // name on its own side
}

// splitCandidates returns the splits that would make a and b identical or
// disjoint, or nil when they already are. Variables unified with a constant
// propose X/c; two variables of one side unified together propose X/Y; a
// constraint one side has and the other lacks proposes the split that adds
// it to the other side.
func splitCandidates(a Prv, ca ConstraintSet, b Prv, cb ConstraintSet, ctx *RenamingContext) []splitCandidate {
	g1, k1 := groundSet(a, ca)
	g2, k2 := groundSet(b, cb)
	vars1 := newVariableSet(g1.LogicalVariables()...)
	for _, v := range k1.Variables() {
		vars1.add(v)
	}
	vars2 := newVariableSet(g2.LogicalVariables()...)
	for _, v := range k2.Variables() {
		vars2.add(v)
	}
	rho := ctx.RenameApart(vars2.order)
	r2 := g2.substitute(rho)
	s2, err := k2.Apply(rho)
	if err != nil {
		return nil
	}
	mgu, ok := Mgu(g1, r2)
	if !ok || !consistent(mgu, k1.Union(s2)) {
		return nil
	}
	var order []string
	images := make(map[string]Term)
	classes := make(map[string][]classMember)
	addMember := func(side int, own, renamed LogicalVariable) {
		img := mgu.Apply(renamed)
		key := termKey(img)
		if _, seen := classes[key]; !seen {
			order = append(order, key)
			images[key] = img
		}
		classes[key] = append(classes[key], classMember{side: side, v: own})
	}
	for _, v := range vars1.order {
		addMember(0, v, v)
	}
	for _, v := range vars2.order {
		addMember(1, v, rho.Apply(v).(LogicalVariable))
	}
	bound := [2]string{boundName(a), boundName(b)}

	var out []splitCandidate
	for _, key := range order {
		members := classes[key]
		if c, isConst := images[key].(Constant); isConst {
			for _, m := range members {
				out = append(out, splitCandidate{side: m.side, binding: NewBinding(m.v, c)})
			}
			continue
		}
		for side := 0; side < 2; side++ {
			var own []LogicalVariable
			for _, m := range members {
				if m.side == side {
					own = append(own, m.v)
				}
			}
			if len(own) < 2 {
				continue
			}
			if own[0].name == bound[side] {
				own[0], own[1] = own[1], own[0]
			}
			out = append(out, splitCandidate{side: side, binding: NewBinding(own[0], own[1])})
		}
	}

	m1, err := k1.Apply(mgu)
	if err != nil {
		return out
	}
	m2, err := s2.Apply(mgu)
	if err != nil {
		return out
	}
	memberOn := func(side int, img Term) (LogicalVariable, bool) {
		for _, m := range classes[termKey(img)] {
			if m.side == side {
				return m.v, true
			}
		}
		return LogicalVariable{}, false
	}
	transfer := func(from, to ConstraintSet, side int) {
		for _, c := range from.items {
			if to.Contains(c) {
				continue
			}
			x, ok := memberOn(side, c.first)
			if !ok {
				continue
			}
			var t Term = c.second
			if c.second.IsVariable() {
				y, ok := memberOn(side, c.second)
				if !ok {
					continue
				}
				t = y
			}
			out = append(out, splitCandidate{side: side, binding: NewBinding(x, t)})
		}
	}
	transfer(m1, m2, 1)
	transfer(m2, m1, 0)
	return out
}

func boundName(p Prv) string {
	if cf, ok := p.(*CountingFormula); ok {
		return cf.bound.name
	}
	return ""
}

// applyCandidate performs a proposed split on p. A binding of a counting
// formula's bound variable to a constant expands the formula instead. The
// flag is false when the proposal does not apply to p.
func applyCandidate(p Parfactor, prv Prv, b Binding) ([]Parfactor, bool, error) {
	if cf, ok := prv.(*CountingFormula); ok {
		replacement, isVar := b.replacement.(LogicalVariable)
		switch {
		case b.replaced.name == cf.bound.name:
			c, isConst := b.replacement.(Constant)
			sp, isStd := p.(*StdParfactor)
			if !isConst || !isStd {
				return nil, false, nil
			}
			expanded, err := sp.Expand(cf, c)
			if errors.Is(err, ErrNotExpandable) {
				return nil, false, nil
			}
			if err != nil {
				return nil, false, err
			}
			return []Parfactor{expanded}, true, nil
		case isVar && replacement.name == cf.bound.name:
			return nil, false, nil
		}
	}
	sub := NewSubstitution(b)
	if !p.IsSplittable(sub) {
		return nil, false, nil
	}
	res, err := p.SplitOn(sub)
	if err != nil {
		return nil, false, err
	}
	return []Parfactor{res.Result, res.Residue}, true, nil
}
