package fove

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// MacroOperation is one rewrite the scheduler can choose. Operations are
// planned against a marginal when built, so Cost and
// NumberOfRandomVariablesEliminated are cheap; Run performs the rewrite and
// returns the next marginal, normalized against the query.
type MacroOperation interface {
	// Run applies the operation.
	Run() (*Marginal, error)

	// Cost estimates the size of the largest factor the operation builds;
	// +Inf when the operation does not apply.
	Cost() float64

	// NumberOfRandomVariablesEliminated counts the ground random variables
	// removed from the model.
	NumberOfRandomVariablesEliminated() int

	// Name is the operation kind, used as a metric label.
	Name() string

	String() string
}

// env is what every operation needs from the driver.
type env struct {
	marginal *Marginal
	renaming *RenamingContext
	monitor  *Monitor
}

// finish normalizes a rewritten distribution against the query.
func (e *env) finish(dist []Parfactor) (*Marginal, error) {
	normalized, err := normalize(dist, e.marginal.preservable, e.renaming, e.monitor)
	if err != nil {
		return nil, err
	}
	return e.marginal.WithDistribution(normalized), nil
}

var infinity = math.Inf(1)

// ImpossibleOperation is the placeholder best operation: it never applies.
type ImpossibleOperation struct{}

func (ImpossibleOperation) Run() (*Marginal, error) {
	return nil, errors.Wrap(ErrNoApplicableOperation, "impossible operation selected")
}

func (ImpossibleOperation) Cost() float64                          { return infinity }
func (ImpossibleOperation) NumberOfRandomVariablesEliminated() int { return 0 }
func (ImpossibleOperation) Name() string                           { return "Impossible" }
func (ImpossibleOperation) String() string                         { return "Impossible" }

// GlobalSumOut multiplies every parfactor mentioning a Prv and sums the Prv
// out of the product.
type GlobalSumOut struct {
	env        *env
	target     *StdParfactor
	prv        Prv
	involved   []Parfactor
	aligned    []*StdParfactor
	cost       float64
	eliminated int
}

func newGlobalSumOut(e *env, target *StdParfactor, prv Prv) *GlobalSumOut {
	op := &GlobalSumOut{env: e, target: target, prv: prv, cost: infinity}
	op.plan()
	return op
}

func (op *GlobalSumOut) plan() {
	m := op.env.marginal
	if !m.Eliminable(op.prv, op.target.constraints) {
		return
	}
	op.involved = []Parfactor{op.target}
	for _, h := range m.distribution {
		if h == Parfactor(op.target) {
			continue
		}
		for _, b := range h.Prvs() {
			if AreDisjoint(b, h.Constraints(), op.prv, op.target.constraints, op.env.renaming) {
				continue
			}
			aligned, ok := align(h, b, op.prv, op.env.renaming)
			if !ok {
				return
			}
			op.involved = append(op.involved, h)
			op.aligned = append(op.aligned, aligned)
			break
		}
	}

	// Check the product without building it.
	schema := op.target.factor.Variables()
	vars := newVariableSet(op.target.LogicalVariables()...)
	constraints := op.target.constraints
	for _, h := range op.aligned {
		shared := newVariableSet()
		for _, v := range h.LogicalVariables() {
			if vars.contains(v.name) {
				shared.add(v)
			}
			vars.add(v)
		}
		if !constraints.RestrictTo(shared.order).Equal(h.constraints.RestrictTo(shared.order)) {
			return
		}
		constraints = constraints.Union(h.constraints)
		for _, p := range h.factor.vars {
			present := false
			for _, q := range schema {
				if q.Equal(p) {
					present = true
					break
				}
			}
			if !present {
				schema = append(schema, p)
			}
		}
	}
	own := newVariableSet(op.prv.LogicalVariables()...)
	for _, v := range vars.order {
		if !own.contains(v.name) {
			return
		}
	}
	size := 1.0
	for _, p := range schema {
		size *= float64(p.RangeSize())
		if p.Equal(op.prv) {
			continue
		}
		if overlapping(op.prv, p, constraints) {
			return
		}
	}
	op.cost = size / float64(op.prv.RangeSize())
	op.eliminated = NewRandomVariableSet(op.prv, op.target.constraints).Size()
}

func (op *GlobalSumOut) Run() (*Marginal, error) {
	if math.IsInf(op.cost, 1) {
		return nil, errors.Wrapf(ErrNotEliminable, "%s", op)
	}
	product := op.target
	for _, h := range op.aligned {
		var err error
		if product, err = product.Multiply(h); err != nil {
			return nil, err
		}
	}
	result, err := product.SumOut(op.prv)
	if err != nil {
		return nil, err
	}
	return op.env.finish(op.env.marginal.Replace(op.involved, result).distribution)
}

func (op *GlobalSumOut) Cost() float64                          { return op.cost }
func (op *GlobalSumOut) NumberOfRandomVariablesEliminated() int { return op.eliminated }
func (op *GlobalSumOut) Name() string                           { return "GlobalSumOut" }
func (op *GlobalSumOut) String() string {
	return fmt.Sprintf("GlobalSumOut(%s)", NewRandomVariableSet(op.prv, op.target.constraints))
}

// align renames h apart and then maps the logical variables of its Prv b
// one-to-one onto those of a, so that b becomes a. It fails when h is not a
// standard parfactor or b and a differ in shape.
func align(h Parfactor, b, a Prv, ctx *RenamingContext) (*StdParfactor, bool) {
	sp, ok := h.(*StdParfactor)
	if !ok {
		return nil, false
	}
	rho := ctx.RenameApart(sp.LogicalVariables())
	renamed, err := sp.apply(rho)
	if err != nil {
		return nil, false
	}
	rb, err := b.Apply(rho)
	if err != nil {
		return nil, false
	}
	theta, ok := positional(rb, a)
	if !ok {
		return nil, false
	}
	out, err := renamed.apply(theta)
	if err != nil || !out.factor.Contains(a) {
		return nil, false
	}
	return out, true
}

// positional maps the free variables of x onto the free variables of y at
// the same parameter positions. The mapping must be one-to-one and constants
// must agree.
func positional(x, y Prv) (Substitution, bool) {
	var xs, ys []Term
	switch xp := x.(type) {
	case *StdPrv:
		yp, ok := y.(*StdPrv)
		if !ok || xp.functor != yp.functor || len(xp.params) != len(yp.params) {
			return Substitution{}, false
		}
		xs, ys = xp.params, yp.params
	case *CountingFormula:
		yp, ok := y.(*CountingFormula)
		if !ok || xp.prv.functor != yp.prv.functor || len(xp.prv.params) != len(yp.prv.params) {
			return Substitution{}, false
		}
		for i := range xp.prv.params {
			xb := xp.prv.params[i].Equal(xp.bound)
			yb := yp.prv.params[i].Equal(yp.bound)
			if xb != yb {
				return Substitution{}, false
			}
			if !xb {
				xs = append(xs, xp.prv.params[i])
				ys = append(ys, yp.prv.params[i])
			}
		}
	default:
		return Substitution{}, false
	}
	var theta Substitution
	used := make(map[string]struct{})
	for i := range xs {
		xv, xIsVar := xs[i].(LogicalVariable)
		yv, yIsVar := ys[i].(LogicalVariable)
		if xIsVar != yIsVar {
			return Substitution{}, false
		}
		if !xIsVar {
			if !xs[i].Equal(ys[i]) {
				return Substitution{}, false
			}
			continue
		}
		if prev, bound := theta.Lookup(xv.name); bound {
			if !prev.Equal(yv) {
				return Substitution{}, false
			}
			continue
		}
		if _, dup := used[yv.name]; dup {
			return Substitution{}, false
		}
		used[yv.name] = struct{}{}
		theta = theta.Add(NewBinding(xv, yv))
	}
	return theta, true
}

// groundsQuery reports whether rewriting the ground random variables of prv
// under cs, in a parfactor other than g, would force shattering to split a
// parfactor holding lifted query variables.
func groundsQuery(m *Marginal, g Parfactor, prv Prv, cs ConstraintSet, ctx *RenamingContext) bool {
	for _, h := range m.distribution {
		if h == g {
			continue
		}
		hc := h.Constraints()
		touches := false
		for _, b := range h.Prvs() {
			if !AreDisjoint(b, hc, prv, cs, ctx) {
				touches = true
				break
			}
		}
		if !touches {
			continue
		}
		for _, b := range h.Prvs() {
			if len(b.LogicalVariables()) > 0 && !m.Eliminable(b, hc) {
				return true
			}
		}
	}
	return false
}

// CountingConvert replaces a free logical variable of a parfactor by a
// counting formula.
type CountingConvert struct {
	env    *env
	target *StdParfactor
	lv     LogicalVariable
	cost   float64
}

func newCountingConvert(e *env, target *StdParfactor, lv LogicalVariable) *CountingConvert {
	op := &CountingConvert{env: e, target: target, lv: lv, cost: infinity}
	op.plan()
	return op
}

func (op *CountingConvert) plan() {
	var counted *StdPrv
	for _, p := range op.target.factor.vars {
		if !containsVariable(p.LogicalVariables(), op.lv.name) {
			continue
		}
		sp, ok := p.(*StdPrv)
		if !ok || counted != nil {
			return
		}
		counted = sp
	}
	if counted == nil {
		return
	}
	m := op.env.marginal
	cs := op.target.constraints
	if !m.Eliminable(counted, cs) {
		if !m.Preserves(counted, cs) || len(counted.LogicalVariables()) != 1 {
			return
		}
	} else if !othersCountable(m, op.target, counted, op.lv, op.env.renaming) {
		return
	}
	involving, _ := cs.Partition(op.lv.name)
	n := countNormalizedSize(op.lv, involving)
	r := counted.RangeSize()
	op.cost = float64(op.target.factor.Size()) / float64(r) * multichoose(n, r)
}

// othersCountable reports whether every other parfactor holding prv's
// random variables could count them too. Counting only one holder of a
// shared eliminable Prv leaves the holders unable to be multiplied.
func othersCountable(m *Marginal, g *StdParfactor, prv *StdPrv, lv LogicalVariable, ctx *RenamingContext) bool {
	pos := -1
	for i, t := range prv.params {
		if t.Equal(lv) {
			pos = i
			break
		}
	}
	for _, h := range m.distribution {
		if h == Parfactor(g) {
			continue
		}
		for _, b := range h.Prvs() {
			if AreDisjoint(b, h.Constraints(), prv, g.constraints, ctx) {
				continue
			}
			if _, ok := b.(*CountingFormula); ok {
				continue
			}
			hs, ok := h.(*StdParfactor)
			if !ok {
				return false
			}
			v, ok := b.(*StdPrv).params[pos].(LogicalVariable)
			if !ok {
				return false
			}
			holders := 0
			for _, q := range hs.factor.vars {
				if containsVariable(q.LogicalVariables(), v.name) {
					holders++
				}
			}
			if holders != 1 {
				return false
			}
		}
	}
	return true
}

func (op *CountingConvert) Run() (*Marginal, error) {
	counted, err := op.target.Count(op.lv)
	if err != nil {
		return nil, err
	}
	return op.env.finish(op.env.marginal.Replace([]Parfactor{op.target}, counted).distribution)
}

func (op *CountingConvert) Cost() float64                       { return op.cost }
func (*CountingConvert) NumberOfRandomVariablesEliminated() int { return 0 }
func (*CountingConvert) Name() string                           { return "CountingConvert" }
func (op *CountingConvert) String() string {
	return fmt.Sprintf("CountingConvert(%s in %s)", op.lv, op.target)
}

// Propositionalize grounds a free logical variable by splitting on every
// individual it may take.
type Propositionalize struct {
	env    *env
	target Parfactor
	lv     LogicalVariable
	cost   float64
}

func newPropositionalize(e *env, target Parfactor, lv LogicalVariable) *Propositionalize {
	op := &Propositionalize{env: e, target: target, lv: lv, cost: infinity}
	op.plan()
	return op
}

func (op *Propositionalize) plan() {
	sp, ok := op.target.(*StdParfactor)
	if !ok {
		return
	}
	m := op.env.marginal
	cs := sp.constraints
	for _, p := range sp.factor.vars {
		if !containsVariable(p.LogicalVariables(), op.lv.name) {
			continue
		}
		if !m.Eliminable(p, cs) || groundsQuery(m, sp, p, cs, op.env.renaming) {
			return
		}
	}
	involving, _ := cs.Partition(op.lv.name)
	op.cost = float64(sp.factor.Size()) * float64(countNormalizedSize(op.lv, involving))
}

func (op *Propositionalize) Run() (*Marginal, error) {
	current := op.target
	var pieces []Parfactor
	for _, c := range allowedConstants(op.lv, current.Constraints()) {
		sub := NewSubstitution(NewBinding(op.lv, c))
		if !current.IsSplittable(sub) {
			continue
		}
		res, err := current.SplitOn(sub)
		if err != nil {
			return nil, err
		}
		pieces = append(pieces, res.Result)
		current = res.Residue
	}
	if current.Size() > 0 {
		pieces = append(pieces, current)
	}
	return op.env.finish(op.env.marginal.Replace([]Parfactor{op.target}, pieces...).distribution)
}

func (op *Propositionalize) Cost() float64                       { return op.cost }
func (*Propositionalize) NumberOfRandomVariablesEliminated() int { return 0 }
func (*Propositionalize) Name() string                           { return "Propositionalize" }
func (op *Propositionalize) String() string {
	return fmt.Sprintf("Propositionalize(%s in %s)", op.lv, op.target)
}

// FullExpand replaces a counting formula by the ground random variables it
// counts.
type FullExpand struct {
	env    *env
	target *StdParfactor
	cf     *CountingFormula
	cost   float64
}

func newFullExpand(e *env, target *StdParfactor, cf *CountingFormula) *FullExpand {
	op := &FullExpand{env: e, target: target, cf: cf, cost: infinity}
	op.plan()
	return op
}

func (op *FullExpand) plan() {
	m := op.env.marginal
	cs := op.target.constraints
	if len(op.cf.constraints.UnequalVariables(op.cf.bound.name)) > 0 {
		return
	}
	if !m.Eliminable(op.cf, cs) || groundsQuery(m, op.target, op.cf, cs, op.env.renaming) {
		return
	}
	f := op.cf.prv.RangeSize()
	op.cost = float64(op.target.factor.Size()) / float64(op.cf.RangeSize()) *
		math.Pow(float64(f), float64(op.cf.size))
}

func (op *FullExpand) Run() (*Marginal, error) {
	expanded, err := op.target.FullExpand(op.cf)
	if err != nil {
		return nil, err
	}
	return op.env.finish(op.env.marginal.Replace([]Parfactor{op.target}, expanded).distribution)
}

func (op *FullExpand) Cost() float64                       { return op.cost }
func (*FullExpand) NumberOfRandomVariablesEliminated() int { return 0 }
func (*FullExpand) Name() string                           { return "FullExpand" }
func (op *FullExpand) String() string {
	return fmt.Sprintf("FullExpand(%s in %s)", op.cf, op.target)
}

// ConvertToStdParfactors replaces an aggregation parfactor by standard
// parfactors, summing the parent out in closed form when nothing else in the
// model mentions it.
type ConvertToStdParfactors struct {
	env        *env
	target     *AggregationParfactor
	isolated   bool
	cost       float64
	eliminated int
}

func newConvertToStdParfactors(e *env, target *AggregationParfactor) *ConvertToStdParfactors {
	op := &ConvertToStdParfactors{env: e, target: target}
	op.plan()
	return op
}

func (op *ConvertToStdParfactors) plan() {
	m := op.env.marginal
	g := op.target
	cs := g.Constraints()
	op.isolated = m.Eliminable(g.parent, cs)
	if op.isolated {
		for _, h := range m.distribution {
			if h == Parfactor(g) {
				continue
			}
			for _, b := range h.Prvs() {
				if !AreDisjoint(b, h.Constraints(), g.parent, cs, op.env.renaming) {
					op.isolated = false
				}
			}
		}
	}
	c := float64(g.child.RangeSize())
	if op.isolated {
		op.cost = c
		op.eliminated = NewRandomVariableSet(g.parent, cs).Size()
		return
	}
	op.cost = multichoose(g.ExtraPopulationSize(), g.parent.RangeSize()) * c
}

func (op *ConvertToStdParfactors) Run() (*Marginal, error) {
	converted, err := op.target.ToStdParfactors(op.isolated)
	if err != nil {
		return nil, err
	}
	added := make([]Parfactor, len(converted))
	for i, g := range converted {
		added[i] = g
	}
	return op.env.finish(op.env.marginal.Replace([]Parfactor{op.target}, added...).distribution)
}

func (op *ConvertToStdParfactors) Cost() float64                          { return op.cost }
func (op *ConvertToStdParfactors) NumberOfRandomVariablesEliminated() int { return op.eliminated }
func (*ConvertToStdParfactors) Name() string                              { return "ConvertToStdParfactors" }
func (op *ConvertToStdParfactors) String() string {
	return fmt.Sprintf("ConvertToStdParfactors(%s)", op.target)
}
