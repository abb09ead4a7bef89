package fove

import (
	"strings"

	"github.com/pkg/errors"
)

// Prv is a parameterized random variable: a template that stands for one
// ground random variable per substitution of its logical variables. The two
// variants are *StdPrv and *CountingFormula.
type Prv interface {
	// Name returns the functor. Counting formulas prefix theirs with '#'.
	Name() string

	// Parameters returns a copy of the free parameters, in order.
	Parameters() []Term

	// Range returns a copy of the values the variable can take.
	Range() []RangeElement

	// RangeSize returns len(Range()).
	RangeSize() int

	// LogicalVariables returns the free logical variables.
	LogicalVariables() []LogicalVariable

	// Apply substitutes the free logical variables into a new Prv.
	Apply(sub Substitution) (Prv, error)

	// Equal reports structural equality (alpha-equivalence for the bound
	// variable of a counting formula).
	Equal(other Prv) bool

	// Correction returns the weight applied to range value i when the Prv is
	// summed out of a factor.
	Correction(i int) float64

	String() string

	isPrv()
}

// StdPrv is a plain parameterized random variable f(t1, ..., tn).
type StdPrv struct {
	functor string
	params  []Term
	rng     []RangeElement
}

// NewPrv builds a boolean Prv.
func NewPrv(functor string, params ...Term) *StdPrv {
	return NewPrvWithRange(functor, BooleanRange(), params...)
}

// NewPrvWithRange builds a Prv over an explicit range.
func NewPrvWithRange(functor string, rng []RangeElement, params ...Term) *StdPrv {
	p := make([]Term, len(params))
	copy(p, params)
	r := make([]RangeElement, len(rng))
	copy(r, rng)
	return &StdPrv{functor: functor, params: p, rng: r}
}

func (p *StdPrv) Name() string { return p.functor }

func (p *StdPrv) Parameters() []Term {
	out := make([]Term, len(p.params))
	copy(out, p.params)
	return out
}

// Arity returns the number of parameters.
func (p *StdPrv) Arity() int { return len(p.params) }

func (p *StdPrv) Range() []RangeElement {
	out := make([]RangeElement, len(p.rng))
	copy(out, p.rng)
	return out
}

func (p *StdPrv) RangeSize() int { return len(p.rng) }

func (p *StdPrv) LogicalVariables() []LogicalVariable { return variablesOf(p.params) }

// IsGround reports whether every parameter is a constant.
func (p *StdPrv) IsGround() bool { return len(p.LogicalVariables()) == 0 }

func (p *StdPrv) Apply(sub Substitution) (Prv, error) {
	return p.substitute(sub), nil
}

func (p *StdPrv) substitute(sub Substitution) *StdPrv {
	return &StdPrv{functor: p.functor, params: sub.ApplyAll(p.params), rng: p.rng}
}

func (p *StdPrv) Equal(other Prv) bool {
	o, ok := other.(*StdPrv)
	if !ok || o.functor != p.functor || len(o.params) != len(p.params) {
		return false
	}
	for i := range p.params {
		if !p.params[i].Equal(o.params[i]) {
			return false
		}
	}
	return rangesEqual(p.rng, o.rng)
}

func (p *StdPrv) Correction(int) float64 { return 1 }

func (p *StdPrv) String() string {
	parts := make([]string, len(p.params))
	for i, t := range p.params {
		parts[i] = t.String()
	}
	return p.functor + "(" + strings.Join(parts, ", ") + ")"
}

func (*StdPrv) isPrv() {}

// CountingFormula #_{A:C}[f(..., A, ...)] is a histogram-valued variable:
// its value counts how many of the ground instances f(..., a, ...), for the
// individuals a of A satisfying C, take each value of f's range.
type CountingFormula struct {
	bound       LogicalVariable
	constraints ConstraintSet
	prv         *StdPrv
	size        int
	rng         []RangeElement
}

// NewCountingFormula counts prv over bound. Every constraint must involve
// bound.
func NewCountingFormula(bound LogicalVariable, constraints ConstraintSet, prv *StdPrv) (*CountingFormula, error) {
	if !containsVariable(prv.LogicalVariables(), bound.name) {
		return nil, errors.Wrapf(ErrNotCountable, "%s is not a parameter of %s", bound, prv)
	}
	for _, c := range constraints.items {
		if !c.Involves(bound.name) {
			return nil, errors.Wrapf(ErrInvalidConstraint, "counting constraint %s does not involve %s", c, bound)
		}
	}
	size := countNormalizedSize(bound, constraints)
	return &CountingFormula{
		bound:       bound,
		constraints: constraints,
		prv:         prv,
		size:        size,
		rng:         Histograms(prv.RangeSize(), size),
	}, nil
}

// Bound returns the counted logical variable.
func (cf *CountingFormula) Bound() LogicalVariable { return cf.bound }

// Constraints returns the constraints on the counted variable.
func (cf *CountingFormula) Constraints() ConstraintSet { return cf.constraints }

// Underlying returns the counted Prv f(..., A, ...).
func (cf *CountingFormula) Underlying() *StdPrv { return cf.prv }

// PopulationSize returns |D(A):C|, the number of counted instances.
func (cf *CountingFormula) PopulationSize() int { return cf.size }

func (cf *CountingFormula) Name() string { return "#" + cf.prv.functor }

func (cf *CountingFormula) Parameters() []Term {
	var out []Term
	for _, t := range cf.prv.params {
		if lv, ok := t.(LogicalVariable); ok && lv.name == cf.bound.name {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (cf *CountingFormula) Range() []RangeElement {
	out := make([]RangeElement, len(cf.rng))
	copy(out, cf.rng)
	return out
}

func (cf *CountingFormula) RangeSize() int { return len(cf.rng) }

func (cf *CountingFormula) LogicalVariables() []LogicalVariable {
	set := newVariableSet()
	for _, v := range cf.prv.LogicalVariables() {
		if v.name != cf.bound.name {
			set.add(v)
		}
	}
	for _, v := range cf.constraints.Variables() {
		if v.name != cf.bound.name {
			set.add(v)
		}
	}
	return set.order
}

func (cf *CountingFormula) Apply(sub Substitution) (Prv, error) {
	sub = sub.Without(cf.bound.name)
	bound := cf.bound
	// Rename the bound variable if a replacement would be captured by it.
	for captured(sub, bound.name) {
		bound = bound.Rename(bound.name + "'")
	}
	if bound.name != cf.bound.name {
		sub = sub.Add(NewBinding(cf.bound, bound))
	}
	constraints, err := cf.constraints.Apply(sub)
	if err != nil {
		return nil, err
	}
	return NewCountingFormula(bound, constraints, cf.prv.substitute(sub))
}

func captured(sub Substitution, name string) bool {
	for _, b := range sub.bindings {
		if lv, ok := b.replacement.(LogicalVariable); ok && lv.name == name {
			return true
		}
	}
	return false
}

func (cf *CountingFormula) Equal(other Prv) bool {
	o, ok := other.(*CountingFormula)
	if !ok {
		return false
	}
	if o.bound.name != cf.bound.name {
		alpha := NewSubstitution(NewBinding(o.bound, cf.bound))
		if containsVariable(o.LogicalVariables(), cf.bound.name) {
			return false
		}
		cs, err := o.constraints.Apply(alpha)
		if err != nil {
			return false
		}
		return cf.prv.Equal(o.prv.substitute(alpha)) && cf.constraints.Equal(cs)
	}
	return cf.prv.Equal(o.prv) && cf.constraints.Equal(o.constraints)
}

// Correction weights histogram i by the number of ground assignments that
// produce it.
func (cf *CountingFormula) Correction(i int) float64 {
	return cf.rng[i].(Histogram).Multinomial()
}

func (cf *CountingFormula) String() string {
	head := "#" + cf.bound.name
	if !cf.constraints.IsEmpty() {
		head += ":" + cf.constraints.String()
	}
	return head + "[" + cf.prv.String() + "]"
}

func (*CountingFormula) isPrv() {}

// groundSet returns the plain Prv and constraints that select the same
// ground random variables as p under cs.
func groundSet(p Prv, cs ConstraintSet) (*StdPrv, ConstraintSet) {
	switch x := p.(type) {
	case *StdPrv:
		return x, cs.RestrictTo(x.LogicalVariables())
	case *CountingFormula:
		vars := append(x.LogicalVariables(), x.bound)
		return x.prv, cs.RestrictTo(vars).Union(x.constraints)
	default:
		panic("fove: unknown Prv variant")
	}
}

// countNormalizedSize returns |D(v):C| for constraints that involve v,
// assuming every unequal variable ranges inside D(v) and is distinct from
// the excluded constants.
func countNormalizedSize(v LogicalVariable, cs ConstraintSet) int {
	excluded := make(map[Constant]struct{})
	for _, c := range cs.ExcludedConstants(v.name) {
		if v.population.Contains(c) {
			excluded[c] = struct{}{}
		}
	}
	n := v.population.Size() - len(excluded) - len(cs.UnequalVariables(v.name))
	if n < 0 {
		return 0
	}
	return n
}
