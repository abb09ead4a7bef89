package fove

import (
	"math"
	"strings"

	"github.com/pkg/errors"
)

// Parfactor stands for the set of ground factors obtained by every
// substitution of constants for its logical variables that satisfies its
// constraints. The variants are *StdParfactor and *AggregationParfactor;
// operations that only make sense for one variant are methods of that type.
type Parfactor interface {
	// Prvs returns the parameterized random variables the parfactor touches.
	Prvs() []Prv

	// Constraints returns the inequality constraints on free variables.
	Constraints() ConstraintSet

	// LogicalVariables returns the free logical variables.
	LogicalVariables() []LogicalVariable

	// Factor returns the potential table.
	Factor() *Factor

	// Size returns the number of ground factors represented.
	Size() int

	// IsSplittable reports whether SplitOn(sub) is valid.
	IsSplittable(sub Substitution) bool

	// SplitOn splits on a single binding X/t into the parfactor with X
	// replaced by t and a residue constrained by X ≠ t.
	SplitOn(sub Substitution) (SplitResult, error)

	// Apply substitutes logical variables throughout.
	Apply(sub Substitution) (Parfactor, error)

	String() string

	isParfactor()
}

// SplitResult holds both halves of a split.
type SplitResult struct {
	Result  Parfactor
	Residue Parfactor
}

// StdParfactor is a factor over Prvs plus constraints on their logical
// variables.
type StdParfactor struct {
	constraints ConstraintSet
	factor      *Factor
}

// NewStdParfactor validates that every constraint is an inequality over
// the factor's logical variables.
func NewStdParfactor(constraints ConstraintSet, factor *Factor) (*StdParfactor, error) {
	vars := factorVariables(factor)
	for _, c := range constraints.items {
		if !c.IsInequality() {
			return nil, errors.Wrapf(ErrInvalidConstraint, "parfactor constraint %s is not an inequality", c)
		}
		for _, v := range c.Variables() {
			if !vars.contains(v.name) {
				return nil, errors.Wrapf(ErrInvalidConstraint, "constraint %s mentions %s, which no Prv of %s has", c, v, prvList(factor.vars))
			}
		}
	}
	return &StdParfactor{constraints: constraints, factor: factor}, nil
}

// MustStdParfactor is NewStdParfactor for statically known inputs; it panics
// on invalid constraints.
func MustStdParfactor(constraints ConstraintSet, factor *Factor) *StdParfactor {
	g, err := NewStdParfactor(constraints, factor)
	if err != nil {
		panic(err)
	}
	return g
}

func factorVariables(f *Factor) *variableSet {
	set := newVariableSet()
	for _, p := range f.vars {
		for _, v := range p.LogicalVariables() {
			set.add(v)
		}
	}
	return set
}

func (g *StdParfactor) Prvs() []Prv { return g.factor.Variables() }

func (g *StdParfactor) Constraints() ConstraintSet { return g.constraints }

func (g *StdParfactor) LogicalVariables() []LogicalVariable {
	return factorVariables(g.factor).list()
}

func (g *StdParfactor) Factor() *Factor { return g.factor }

func (g *StdParfactor) Size() int {
	return groundCount(g.LogicalVariables(), g.constraints)
}

func (g *StdParfactor) IsSplittable(sub Substitution) bool {
	if sub.Len() != 1 {
		return false
	}
	return splittableOn(sub.bindings[0], g.LogicalVariables(), g.constraints) && g.applicable(sub)
}

// splittableOn checks the shape of X/t against the free variables and
// constraints of a parfactor.
func splittableOn(b Binding, vars []LogicalVariable, cs ConstraintSet) bool {
	if !containsVariable(vars, b.replaced.name) {
		return false
	}
	switch t := b.replacement.(type) {
	case Constant:
		if !b.replaced.population.Contains(t) {
			return false
		}
	case LogicalVariable:
		if t.name == b.replaced.name || !containsVariable(vars, t.name) {
			return false
		}
	}
	ineq, err := b.Inequality()
	return err == nil && !cs.Contains(ineq)
}

func (g *StdParfactor) applicable(sub Substitution) bool {
	_, err := g.constraints.Apply(sub)
	return err == nil
}

func (g *StdParfactor) SplitOn(sub Substitution) (SplitResult, error) {
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
	residue := &StdParfactor{constraints: g.constraints.Add(ineq), factor: g.factor}
	return SplitResult{Result: result, Residue: residue}, nil
}

func (g *StdParfactor) Apply(sub Substitution) (Parfactor, error) {
	return g.apply(sub)
}

func (g *StdParfactor) apply(sub Substitution) (*StdParfactor, error) {
	constraints, err := g.constraints.Apply(sub)
	if err != nil {
		return nil, err
	}
	factor, err := g.factor.Apply(sub)
	if err != nil {
		return nil, err
	}
	return &StdParfactor{constraints: constraints, factor: factor}, nil
}

// multiplicable is the precondition of Multiply: constraints on the shared
// logical variables coincide, so neither side loses groundings.
func (g *StdParfactor) multiplicable(other *StdParfactor) bool {
	shared := newVariableSet()
	others := newVariableSet(other.LogicalVariables()...)
	for _, v := range g.LogicalVariables() {
		if others.contains(v.name) {
			shared.add(v)
		}
	}
	return g.constraints.RestrictTo(shared.order).Equal(other.constraints.RestrictTo(shared.order))
}

// Multiply returns the parfactor over the union of both logical variable
// sets. Each side's factor is raised to |g_i|/|g| so every ground factor of
// either input is counted exactly once. Logical variables with the same
// name are the same variable: callers align parfactors first.
func (g *StdParfactor) Multiply(other *StdParfactor) (*StdParfactor, error) {
	if !g.multiplicable(other) {
		return nil, errors.Wrapf(ErrNotMultiplicable, "%s and %s disagree on shared constraints", g, other)
	}
	constraints := g.constraints.Union(other.constraints)
	vars := newVariableSet(g.LogicalVariables()...)
	for _, v := range other.LogicalVariables() {
		vars.add(v)
	}
	n := groundCount(vars.order, constraints)
	f1, f2 := g.factor, other.factor
	if n > 0 {
		f1 = f1.Pow(ratio(g.Size(), n))
		f2 = f2.Pow(ratio(other.Size(), n))
	}
	product, err := f1.Multiply(f2)
	if err != nil {
		return nil, err
	}
	return &StdParfactor{constraints: constraints, factor: product}, nil
}

// SumOut eliminates prv from the parfactor. prv must mention every free
// logical variable and must not share ground variables with another Prv of
// the parfactor. The summed factor is raised to |g|/|g'| where g' is the
// result's set of groundings.
func (g *StdParfactor) SumOut(prv Prv) (*StdParfactor, error) {
	if !g.factor.Contains(prv) {
		return nil, errors.Wrapf(ErrNotEliminable, "%s is not in %s", prv, g)
	}
	if err := g.checkEliminable(prv); err != nil {
		return nil, err
	}
	summed := g.factor.SumOut(prv)
	remaining := factorVariables(summed).list()
	constraints := g.constraints.RestrictTo(remaining)
	n, m := g.Size(), groundCount(remaining, constraints)
	if m > 0 {
		summed = summed.Pow(ratio(n, m))
	}
	return &StdParfactor{constraints: constraints, factor: summed}, nil
}

func (g *StdParfactor) checkEliminable(prv Prv) error {
	own := newVariableSet(prv.LogicalVariables()...)
	for _, v := range g.LogicalVariables() {
		if !own.contains(v.name) {
			return errors.Wrapf(ErrNotEliminable, "%s does not mention %s of %s", prv, v, g)
		}
	}
	for _, q := range g.factor.vars {
		if q.Equal(prv) {
			continue
		}
		if overlapping(prv, q, g.constraints) {
			return errors.Wrapf(ErrNotEliminable, "%s overlaps %s in %s", prv, q, g)
		}
	}
	return nil
}

// Count replaces the only Prv mentioning lv by the counting formula over lv.
// Constraints involving lv move into the formula.
func (g *StdParfactor) Count(lv LogicalVariable) (*StdParfactor, error) {
	pos := -1
	for i, p := range g.factor.vars {
		if !containsVariable(p.LogicalVariables(), lv.name) {
			continue
		}
		if pos >= 0 {
			return nil, errors.Wrapf(ErrNotCountable, "%s appears in more than one Prv of %s", lv, g)
		}
		pos = i
	}
	if pos < 0 {
		return nil, errors.Wrapf(ErrNotCountable, "%s is not free in %s", lv, g)
	}
	prv, ok := g.factor.vars[pos].(*StdPrv)
	if !ok {
		return nil, errors.Wrapf(ErrNotCountable, "%s occurs in counting formula %s", lv, g.factor.vars[pos])
	}
	involving, rest := g.constraints.Partition(lv.name)
	cf, err := NewCountingFormula(lv, involving, prv)
	if err != nil {
		return nil, err
	}
	return &StdParfactor{constraints: rest, factor: countFactor(g.factor, pos, cf)}, nil
}

// countFactor builds the table with the Prv at pos replaced by cf; the
// entry for histogram h is prod_v F(..., v, ...)^h(v).
func countFactor(f *Factor, pos int, cf *CountingFormula) *Factor {
	vars := f.Variables()
	vars[pos] = cf
	size := 1
	for _, v := range vars {
		size *= v.RangeSize()
	}
	values := make([]float64, size)
	tuple := make([]int, len(vars))
	stride := f.strides[pos]
	for idx := range values {
		base := 0
		for i := range vars {
			if i != pos {
				base += tuple[i] * f.strides[i]
			}
		}
		h := cf.rng[tuple[pos]].(Histogram)
		val := 1.0
		for v := 0; v < h.Bins(); v++ {
			val *= math.Pow(f.values[base+v*stride], float64(h.Count(v)))
		}
		values[idx] = val
		advance(tuple, vars)
	}
	return newFactor(vars, values)
}

// Expand takes the instance of cf's counted variable at c out of the
// formula: cf is replaced by f(..., c, ...) followed by cf restricted to
// A ≠ c.
func (g *StdParfactor) Expand(cf *CountingFormula, c Constant) (*StdParfactor, error) {
	pos := g.factor.IndexOf(cf)
	if pos < 0 {
		return nil, errors.Wrapf(ErrNotExpandable, "%s is not in %s", cf, g)
	}
	if len(cf.constraints.UnequalVariables(cf.bound.name)) > 0 {
		return nil, errors.Wrapf(ErrNotExpandable, "%s constrains its counted variable by another variable", cf)
	}
	allowed := false
	for _, k := range allowedConstants(cf.bound, cf.constraints) {
		if k == c {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, errors.Wrapf(ErrNotExpandable, "%s is not counted by %s", c, cf)
	}
	ineq, err := NewInequality(cf.bound, c)
	if err != nil {
		return nil, err
	}
	rest, err := NewCountingFormula(cf.bound, cf.constraints.Add(ineq), cf.prv)
	if err != nil {
		return nil, err
	}
	single := cf.prv.substitute(NewSubstitution(NewBinding(cf.bound, c)))

	old := g.factor
	vars := make([]Prv, 0, len(old.vars)+1)
	vars = append(vars, old.vars[:pos]...)
	vars = append(vars, single, rest)
	vars = append(vars, old.vars[pos+1:]...)
	histIndex := make(map[string]int, len(cf.rng))
	for i, h := range cf.rng {
		histIndex[h.String()] = i
	}
	size := 1
	for _, v := range vars {
		size *= v.RangeSize()
	}
	values := make([]float64, size)
	tuple := make([]int, len(vars))
	for idx := range values {
		src := 0
		for i := range old.vars {
			switch {
			case i < pos:
				src += tuple[i] * old.strides[i]
			case i > pos:
				src += tuple[i+1] * old.strides[i]
			}
		}
		h := rest.rng[tuple[pos+1]].(Histogram).Increment(tuple[pos])
		src += histIndex[h.String()] * old.strides[pos]
		values[idx] = old.values[src]
		advance(tuple, vars)
	}
	factor, err := newFactor(vars, values).Apply(Substitution{})
	if err != nil {
		return nil, err
	}
	// A formula counting no individual has the single all-zero histogram.
	if rest.size == 0 {
		factor = factor.SumOut(rest)
	}
	return &StdParfactor{constraints: g.constraints, factor: factor}, nil
}

// FullExpand expands cf on every counted individual.
func (g *StdParfactor) FullExpand(cf *CountingFormula) (*StdParfactor, error) {
	if !g.factor.Contains(cf) {
		return nil, errors.Wrapf(ErrNotExpandable, "%s is not in %s", cf, g)
	}
	if len(cf.constraints.UnequalVariables(cf.bound.name)) > 0 {
		return nil, errors.Wrapf(ErrNotExpandable, "%s constrains its counted variable by another variable", cf)
	}
	current := g
	formula := cf
	for _, c := range allowedConstants(cf.bound, cf.constraints) {
		next, err := current.Expand(formula, c)
		if err != nil {
			return nil, err
		}
		ineq, err := NewInequality(formula.bound, c)
		if err != nil {
			return nil, err
		}
		formula, err = NewCountingFormula(formula.bound, formula.constraints.Add(ineq), formula.prv)
		if err != nil {
			return nil, err
		}
		current = next
	}
	return current, nil
}

// CountingFormulas returns the counting formulas in the schema.
func (g *StdParfactor) CountingFormulas() []*CountingFormula {
	var out []*CountingFormula
	for _, p := range g.factor.vars {
		if cf, ok := p.(*CountingFormula); ok {
			out = append(out, cf)
		}
	}
	return out
}

func (g *StdParfactor) String() string {
	var b strings.Builder
	b.WriteString("⟨")
	b.WriteString(g.constraints.String())
	b.WriteString(", ")
	b.WriteString(prvList(g.factor.vars))
	b.WriteString("⟩")
	return b.String()
}

func (*StdParfactor) isParfactor() {}
