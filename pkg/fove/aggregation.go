package fove

import (
	"math/bits"
	"strings"

	"github.com/pkg/errors"
)

// AggregationParfactor ⟨C, p(..., A, ...), c(...), Fp, ⊗, CA⟩ stands for one
// ground factor per grounding of c's logical variables under C:
//
//	prod_a Fp(p(..., a, ...)) · [c(...) = ⊗_a p(..., a, ...)]
//
// where a ranges over the individuals of the extra variable A allowed by CA.
type AggregationParfactor struct {
	parent      *StdPrv
	child       *StdPrv
	extra       LogicalVariable
	factor      *Factor
	operator    Operator
	constraints ConstraintSet // on child variables, never mentions A
	extraCons   ConstraintSet // every constraint mentions A
}

// NewAggregationParfactor checks that exactly one logical variable of the
// parent is absent from the child, that factor is over the parent alone and
// that every parent value is a child value.
func NewAggregationParfactor(parent, child *StdPrv, factor *Factor, op Operator, constraints, extraConstraints ConstraintSet) (*AggregationParfactor, error) {
	childVars := newVariableSet(child.LogicalVariables()...)
	parentVars := parent.LogicalVariables()
	var extras []LogicalVariable
	for _, v := range parentVars {
		if !childVars.contains(v.name) {
			extras = append(extras, v)
		}
	}
	if len(extras) != 1 {
		return nil, errors.Wrapf(ErrExtraVariable, "%s and %s differ in %d logical variables", parent, child, len(extras))
	}
	for _, v := range childVars.order {
		if !containsVariable(parentVars, v.name) {
			return nil, errors.Wrapf(ErrExtraVariable, "%s has %s, which %s lacks", child, v, parent)
		}
	}
	extra := extras[0]
	if len(factor.vars) != 1 || !factor.vars[0].Equal(parent) {
		return nil, errors.Wrapf(ErrIncompatibleSchema, "aggregation factor over %s, want [%s]", prvList(factor.vars), parent)
	}
	for _, e := range parent.rng {
		if rangeIndex(child.rng, e) < 0 {
			return nil, errors.Wrapf(ErrIncompatibleSchema, "parent value %s is outside the range of %s", e, child)
		}
	}
	for _, c := range constraints.items {
		if c.Involves(extra.name) {
			return nil, errors.Wrapf(ErrInvalidConstraint, "child constraint %s mentions extra variable %s", c, extra)
		}
		for _, v := range c.Variables() {
			if !childVars.contains(v.name) {
				return nil, errors.Wrapf(ErrInvalidConstraint, "constraint %s mentions %s, which %s lacks", c, v, child)
			}
		}
	}
	for _, c := range extraConstraints.items {
		if !c.Involves(extra.name) {
			return nil, errors.Wrapf(ErrInvalidConstraint, "extra constraint %s does not mention %s", c, extra)
		}
		for _, v := range c.Variables() {
			if !containsVariable(parentVars, v.name) {
				return nil, errors.Wrapf(ErrInvalidConstraint, "constraint %s mentions %s, which %s lacks", c, v, parent)
			}
		}
	}
	return &AggregationParfactor{
		parent:      parent,
		child:       child,
		extra:       extra,
		factor:      factor,
		operator:    op,
		constraints: constraints,
		extraCons:   extraConstraints,
	}, nil
}

// Parent returns p(..., A, ...).
func (g *AggregationParfactor) Parent() *StdPrv { return g.parent }

// Child returns c(...).
func (g *AggregationParfactor) Child() *StdPrv { return g.child }

// ExtraVariable returns A.
func (g *AggregationParfactor) ExtraVariable() LogicalVariable { return g.extra }

// Operator returns ⊗.
func (g *AggregationParfactor) Operator() Operator { return g.operator }

// ChildConstraints returns the constraints that do not mention A.
func (g *AggregationParfactor) ChildConstraints() ConstraintSet { return g.constraints }

// ExtraConstraints returns the constraints on A.
func (g *AggregationParfactor) ExtraConstraints() ConstraintSet { return g.extraCons }

// ExtraPopulationSize returns |D(A):CA|, the number of parent instances
// folded into each child instance.
func (g *AggregationParfactor) ExtraPopulationSize() int {
	return countNormalizedSize(g.extra, g.extraCons)
}

func (g *AggregationParfactor) Prvs() []Prv { return []Prv{g.parent, g.child} }

func (g *AggregationParfactor) Constraints() ConstraintSet {
	return g.constraints.Union(g.extraCons)
}

func (g *AggregationParfactor) LogicalVariables() []LogicalVariable {
	return g.parent.LogicalVariables()
}

func (g *AggregationParfactor) Factor() *Factor { return g.factor }

// Size counts child groundings; the parent instances of one child instance
// belong to the same ground factor.
func (g *AggregationParfactor) Size() int {
	return groundCount(g.child.LogicalVariables(), g.constraints)
}

// substitutionShape classifies a binding X/t by whether X and t are the
// extra variable, another logical variable or a constant.
type substitutionShape int

const (
	shapeExtraConstant substitutionShape = iota
	shapeExtraVariable
	shapeVariableExtra
	shapeVariableConstant
	shapeVariableVariable
)

func (g *AggregationParfactor) shapeOf(b Binding) substitutionShape {
	replacement, isVar := b.replacement.(LogicalVariable)
	switch {
	case b.replaced.name == g.extra.name && !isVar:
		return shapeExtraConstant
	case b.replaced.name == g.extra.name:
		return shapeExtraVariable
	case isVar && replacement.name == g.extra.name:
		return shapeVariableExtra
	case !isVar:
		return shapeVariableConstant
	default:
		return shapeVariableVariable
	}
}

// IsSplittable accepts X/c with c in D(X) and X/Y, where X and Y are child
// parameters. Splitting on the extra variable would separate parent
// instances folded into the same child and is never valid.
func (g *AggregationParfactor) IsSplittable(sub Substitution) bool {
	if sub.Len() != 1 {
		return false
	}
	b := sub.bindings[0]
	switch g.shapeOf(b) {
	case shapeExtraConstant, shapeExtraVariable, shapeVariableExtra:
		return false
	case shapeVariableConstant, shapeVariableVariable:
		if !splittableOn(b, g.child.LogicalVariables(), g.constraints) {
			return false
		}
		_, err := g.apply(sub)
		return err == nil
	default:
		return false
	}
}

func (g *AggregationParfactor) SplitOn(sub Substitution) (SplitResult, error) {
	if !g.IsSplittable(sub) {
		return SplitResult{}, errors.Wrapf(ErrNotSplittable, "%s on %s", g, sub)
	}
	result, err := g.apply(sub)
	if err != nil {
		return SplitResult{}, err
	}
	ineq, err := sub.bindings[0].Inequality()
	if err != nil {
		return SplitResult{}, err
	}
	residue := *g
	residue.constraints = g.constraints.Add(ineq)
	return SplitResult{Result: result, Residue: &residue}, nil
}

func (g *AggregationParfactor) Apply(sub Substitution) (Parfactor, error) {
	return g.apply(sub)
}

func (g *AggregationParfactor) apply(sub Substitution) (*AggregationParfactor, error) {
	if t, ok := sub.Lookup(g.extra.name); ok && !t.IsVariable() {
		return nil, errors.Wrapf(ErrExtraVariable, "cannot bind extra variable %s to %s", g.extra, t)
	}
	factor, err := g.factor.Apply(sub)
	if err != nil {
		return nil, err
	}
	constraints, err := g.constraints.Apply(sub)
	if err != nil {
		return nil, err
	}
	extraCons, err := g.extraCons.Apply(sub)
	if err != nil {
		return nil, err
	}
	return NewAggregationParfactor(g.parent.substitute(sub), g.child.substitute(sub), factor, g.operator, constraints, extraCons)
}

// ToStdParfactors replaces the aggregation by standard parfactors. When the
// parent occurs nowhere else in the model (isolated), it is summed out in
// closed form and the result is a single parfactor over the child. Otherwise
// the parent keeps its prior in one parfactor and a second, deterministic
// parfactor ties the child to the histogram #_A[p].
func (g *AggregationParfactor) ToStdParfactors(isolated bool) ([]*StdParfactor, error) {
	if isolated {
		fm, err := g.Decompose()
		if err != nil {
			return nil, err
		}
		sp, err := NewStdParfactor(g.constraints, fm)
		if err != nil {
			return nil, err
		}
		return []*StdParfactor{sp}, nil
	}
	prior, err := NewStdParfactor(g.constraints.Union(g.extraCons), g.factor)
	if err != nil {
		return nil, err
	}
	det, err := g.deterministic()
	if err != nil {
		return nil, err
	}
	return []*StdParfactor{prior, det}, nil
}

// deterministic builds the parfactor over [#_{A:CA}[p], c] that is 1 where
// the child equals the fold of the histogram and 0 elsewhere.
func (g *AggregationParfactor) deterministic() (*StdParfactor, error) {
	cf, err := NewCountingFormula(g.extra, g.extraCons, g.parent)
	if err != nil {
		return nil, err
	}
	values := make([]float64, cf.RangeSize()*g.child.RangeSize())
	for i, e := range cf.rng {
		folded, err := g.operator.Fold(g.parent.rng, e.(Histogram))
		if err != nil {
			return nil, err
		}
		j := rangeIndex(g.child.rng, folded)
		if j < 0 {
			return nil, errors.Wrapf(ErrIncompatibleSchema, "%s folds to %s, outside the range of %s", e, folded, g.child)
		}
		values[i*g.child.RangeSize()+j] = 1
	}
	return NewStdParfactor(g.constraints, newFactor([]Prv{cf, g.child}, values))
}

// Decompose computes the factor over the child obtained by summing out all
// parent instances of one child instance. With n = |D(A):CA| written in
// binary as b_{m-1}...b_0 (b_{m-1} = 1), level 0 holds Fp over the child's
// range and level k squares level k-1 under ⊗, folding in Fp once more when
// b_{m-1-k} is set. Level m-1 is the answer.
func (g *AggregationParfactor) Decompose() (*Factor, error) {
	crng := g.child.rng
	combine, err := g.combineTable()
	if err != nil {
		return nil, err
	}
	n := g.ExtraPopulationSize()
	if n == 0 {
		id := rangeIndex(crng, g.operator.Identity())
		if id < 0 {
			return nil, errors.Wrapf(ErrIncompatibleSchema, "identity %s of %s is outside the range of %s", g.operator.Identity(), g.operator, g.child)
		}
		values := make([]float64, len(crng))
		values[id] = 1
		return newFactor([]Prv{g.child}, values), nil
	}
	base := make([]float64, len(crng))
	for i, e := range g.parent.rng {
		base[rangeIndex(crng, e)] += g.factor.values[i]
	}
	m := bits.Len(uint(n))
	levels := make([][]float64, m)
	levels[0] = base
	for k := 1; k < m; k++ {
		next := convolve(levels[k-1], levels[k-1], combine)
		if n>>(m-1-k)&1 == 1 {
			next = convolve(next, base, combine)
		}
		levels[k] = next
	}
	return newFactor([]Prv{g.child}, levels[m-1]), nil
}

// combineTable precomputes the child-range index of y ⊗ z.
func (g *AggregationParfactor) combineTable() ([][]int, error) {
	crng := g.child.rng
	table := make([][]int, len(crng))
	for y := range crng {
		table[y] = make([]int, len(crng))
		for z := range crng {
			v, err := g.operator.Apply(crng[y], crng[z])
			if err != nil {
				return nil, err
			}
			idx := rangeIndex(crng, v)
			if idx < 0 {
				return nil, errors.Wrapf(ErrIncompatibleSchema, "%s %s %s is outside the range of %s", crng[y], g.operator, crng[z], g.child)
			}
			table[y][z] = idx
		}
	}
	return table, nil
}

// convolve returns x -> sum over y ⊗ z = x of a(y)·b(z).
func convolve(a, b []float64, combine [][]int) []float64 {
	out := make([]float64, len(a))
	for y, av := range a {
		if av == 0 {
			continue
		}
		for z, bv := range b {
			out[combine[y][z]] += av * bv
		}
	}
	return out
}

func (g *AggregationParfactor) String() string {
	var b strings.Builder
	b.WriteString("⟨")
	b.WriteString(g.constraints.String())
	b.WriteString(", ")
	b.WriteString(g.parent.String())
	b.WriteString(", ")
	b.WriteString(g.child.String())
	b.WriteString(", ")
	b.WriteString(g.operator.String())
	b.WriteString(", ")
	b.WriteString(g.extra.name)
	b.WriteString(":")
	b.WriteString(g.extraCons.String())
	b.WriteString("⟩")
	return b.String()
}

func (*AggregationParfactor) isParfactor() {}
