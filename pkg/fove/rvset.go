package fove

import (
	"github.com/pkg/errors"
)

// RandomVariableSet is the set of ground random variables a Prv selects under
// a constraint set. Queries are random variable sets.
type RandomVariableSet struct {
	prv         Prv
	constraints ConstraintSet
}

// NewRandomVariableSet keeps the constraints that only mention the Prv's
// logical variables.
func NewRandomVariableSet(prv Prv, constraints ConstraintSet) RandomVariableSet {
	return RandomVariableSet{prv: prv, constraints: constraints.RestrictTo(prv.LogicalVariables())}
}

// Prv returns the selecting Prv.
func (s RandomVariableSet) Prv() Prv { return s.prv }

// Constraints returns the constraints on the Prv's logical variables.
func (s RandomVariableSet) Constraints() ConstraintSet { return s.constraints }

func (s RandomVariableSet) ground() (*StdPrv, ConstraintSet) {
	return groundSet(s.prv, s.constraints)
}

// Size returns the number of ground random variables in the set.
func (s RandomVariableSet) Size() int {
	g, k := s.ground()
	return groundCount(g.LogicalVariables(), k)
}

// IsEmpty reports whether no grounding satisfies the constraints.
func (s RandomVariableSet) IsEmpty() bool { return s.Size() == 0 }

// IsDisjoint reports whether the sets share no ground random variable.
func (s RandomVariableSet) IsDisjoint(other RandomVariableSet) bool {
	return AreDisjoint(s.prv, s.constraints, other.prv, other.constraints, NewRenamingContext())
}

// Equivalent reports whether both sets select the same ground random
// variables: their Prvs unify by a one-to-one renaming under which the
// constraint sets coincide.
func (s RandomVariableSet) Equivalent(other RandomVariableSet) bool {
	g1, k1 := s.ground()
	g2, k2 := other.ground()
	return equivalentSets(g1, k1, g2, k2)
}

func equivalentSets(g1 *StdPrv, k1 ConstraintSet, g2 *StdPrv, k2 ConstraintSet) bool {
	ctx := NewRenamingContext()
	r2, s2, err := renameApart(g2, k2, ctx)
	if err != nil {
		return false
	}
	mgu, ok := Mgu(g1, r2)
	if !ok || !mgu.IsRenaming() {
		return false
	}
	vars1 := g1.LogicalVariables()
	vars2 := r2.LogicalVariables()
	if len(vars1) != len(vars2) {
		return false
	}
	images := make(map[string]struct{}, len(vars1))
	for _, v := range vars1 {
		images[termKey(mgu.Apply(v))] = struct{}{}
	}
	if len(images) != len(vars1) {
		return false
	}
	for _, v := range vars2 {
		if _, ok := images[termKey(mgu.Apply(v))]; !ok {
			return false
		}
	}
	m1, err := k1.Apply(mgu)
	if err != nil {
		return false
	}
	m2, err := s2.Apply(mgu)
	if err != nil {
		return false
	}
	return m1.Equal(m2)
}

// EquivalentToCountingFormula reports whether the set is exactly the
// population cf counts inside a parfactor with constraints cs.
func (s RandomVariableSet) EquivalentToCountingFormula(cf *CountingFormula, cs ConstraintSet) bool {
	g, k := groundSet(cf, cs)
	g1, k1 := s.ground()
	return equivalentSets(g1, k1, g, k)
}

// Intersect returns the ground random variables both sets select. ok is
// false when they are disjoint. Variables are named after s where possible.
func (s RandomVariableSet) Intersect(other RandomVariableSet) (RandomVariableSet, bool) {
	ctx := NewRenamingContext()
	g1, k1 := s.ground()
	g2, k2 := other.ground()
	r2, s2, err := renameApart(g2, k2, ctx)
	if err != nil {
		return RandomVariableSet{}, false
	}
	mgu, ok := Mgu(g1, r2)
	if !ok || !consistent(mgu, k1.Union(s2)) {
		return RandomVariableSet{}, false
	}
	// Prefer s's variable as the name of each unified class.
	var canon Substitution
	for _, v := range g1.LogicalVariables() {
		if img, ok := mgu.Apply(v).(LogicalVariable); ok && img.name != v.name {
			if _, taken := canon.Lookup(img.name); !taken {
				canon = canon.Add(NewBinding(img, v))
			}
		}
	}
	sub := mgu
	for _, b := range canon.bindings {
		sub = sub.Propagate(b)
	}
	cs, err := k1.Union(s2).Apply(sub)
	if err != nil {
		return RandomVariableSet{}, false
	}
	out := NewRandomVariableSet(g1.substitute(sub), cs)
	if out.IsEmpty() {
		return RandomVariableSet{}, false
	}
	return out, true
}

// Subtract returns disjoint sets whose union is s minus other, obtained by
// splitting s until every piece is inside other or disjoint from it.
func (s RandomVariableSet) Subtract(other RandomVariableSet) ([]RandomVariableSet, error) {
	ctx := NewRenamingContext()
	against := other.pseudoParfactor()
	work := []Parfactor{s.pseudoParfactor()}
	var out []RandomVariableSet
	for len(work) > 0 {
		p := work[len(work)-1]
		work = work[:len(work)-1]
		if p.Size() == 0 {
			continue
		}
		piece := NewRandomVariableSet(p.Prvs()[0], p.Constraints())
		if piece.IsDisjoint(other) {
			out = append(out, piece)
			continue
		}
		if inter, ok := piece.Intersect(other); ok && inter.Equivalent(piece) {
			continue
		}
		split, ok, err := unifyPair(p, against, [2]bool{true, false}, ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.Wrapf(ErrNotSplittable, "cannot separate %s from %s", piece, other)
		}
		work = append(work, split[0]...)
	}
	return out, nil
}

// Union returns disjoint sets covering both: s itself followed by the part
// of other outside s.
func (s RandomVariableSet) Union(other RandomVariableSet) ([]RandomVariableSet, error) {
	if s.Equivalent(other) {
		return []RandomVariableSet{s}, nil
	}
	rest, err := other.Subtract(s)
	if err != nil {
		return nil, err
	}
	return append([]RandomVariableSet{s}, rest...), nil
}

// Groundings enumerates the ground random variables of the set.
func (s RandomVariableSet) Groundings() []*StdPrv {
	g, k := s.ground()
	subs := groundings(g.LogicalVariables(), k)
	out := make([]*StdPrv, len(subs))
	for i, sub := range subs {
		out[i] = g.substitute(sub)
	}
	return out
}

// pseudoParfactor wraps the set in a parfactor of ones so the shattering
// machinery can split it.
func (s RandomVariableSet) pseudoParfactor() *StdParfactor {
	g, k := s.ground()
	return &StdParfactor{constraints: k, factor: UniformFactor([]Prv{g}, 1)}
}

func (s RandomVariableSet) String() string {
	if s.constraints.IsEmpty() {
		return s.prv.String()
	}
	return s.prv.String() + ":" + s.constraints.String()
}
