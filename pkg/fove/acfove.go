package fove

import (
	"context"
	"math"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Observer receives the operation chosen at each step and the marginal it
// produced. It must not modify the marginal.
type Observer func(step int, operation string, marginal *Marginal)

// Config holds configuration for the AC-FOVE driver.
type Config struct {
	// MaxSteps bounds the number of macro-operations (0 = unlimited)
	MaxSteps int

	// Logger receives one Debug entry per step
	Logger logrus.FieldLogger

	// Observer is called after every step when set
	Observer Observer

	// Registerer receives the driver's metrics (nil = not exported)
	Registerer prometheus.Registerer
}

// DefaultConfig returns the default driver configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxSteps: 10000,        // Guards against scheduler oscillation
		Logger:   logrus.New(), // stderr, Info level
	}
}

// ACFOVE eliminates every random variable of a model except a query by
// repeatedly applying the cheapest macro-operation.
type ACFOVE struct {
	config  *Config
	env     *env
	metrics *metrics
	log     logrus.FieldLogger
	runID   uuid.UUID
	steps   int
}

// NewACFOVE shatters the model against the query and prepares a run. A nil
// config selects DefaultConfig.
func NewACFOVE(parfactors []Parfactor, query RandomVariableSet, config *Config) (*ACFOVE, error) {
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = logrus.New()
	}
	runID := uuid.New()
	met, err := newMetrics(config.Registerer)
	if err != nil {
		return nil, err
	}
	e := &env{renaming: NewRenamingContext(), monitor: NewMonitor(runID)}
	dist, err := normalize(parfactors, query, e.renaming, e.monitor)
	if err != nil {
		return nil, errors.Wrap(err, "shattering model")
	}
	e.marginal = NewMarginal(dist, query)
	return &ACFOVE{
		config:  config,
		env:     e,
		metrics: met,
		log:     logger.WithField("run", runID.String()),
		runID:   runID,
	}, nil
}

// Marginal returns the current marginal.
func (a *ACFOVE) Marginal() *Marginal { return a.env.marginal }

// RunID identifies the run in logs and statistics.
func (a *ACFOVE) RunID() uuid.UUID { return a.runID }

// Stats returns a snapshot of the run's statistics.
func (a *ACFOVE) Stats() *Stats { return a.env.monitor.GetStats() }

// Step applies one macro-operation. It returns the operation, or nil when
// the marginal has already converged.
func (a *ACFOVE) Step() (MacroOperation, error) {
	m := a.env.marginal
	if m.IsConverged() {
		return nil, nil
	}
	if a.config.MaxSteps > 0 && a.steps >= a.config.MaxSteps {
		return nil, errors.Wrapf(ErrStepLimit, "%d steps taken, still eliminable: %v", a.steps, m.Eliminables())
	}
	op := a.cheapest()
	if math.IsInf(op.Cost(), 1) {
		return nil, errors.Wrapf(ErrNoApplicableOperation, "still eliminable: %v in\n%s", m.Eliminables(), m)
	}
	next, err := op.Run()
	if err != nil {
		return nil, errors.Wrapf(err, "running %s", op)
	}
	a.steps++
	a.env.marginal = next
	a.env.monitor.RecordOperation(op.Name(), op.Cost())
	a.metrics.observe(op)
	a.log.WithFields(logrus.Fields{
		"step":       a.steps,
		"operation":  op.String(),
		"cost":       op.Cost(),
		"parfactors": len(next.distribution),
	}).Debug("applied macro-operation")
	if a.config.Observer != nil {
		a.config.Observer(a.steps, op.String(), next)
	}
	return op, nil
}

// Run steps until nothing but the query is left and returns the parfactor
// over the query. The answer is not normalized.
func (a *ACFOVE) Run(ctx context.Context) (*StdParfactor, error) {
	defer a.env.monitor.Finish()
	for !a.env.marginal.IsConverged() {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "inference interrupted")
		}
		if _, err := a.Step(); err != nil {
			return nil, err
		}
	}
	result, err := FinalMultiplication(a.env.marginal, a.env.renaming)
	if err != nil {
		return nil, err
	}
	a.log.WithField("steps", a.steps).Debugf("converged to %s", result)
	return result, nil
}

// cheapest evaluates every candidate operation. Ties on cost go to the
// operation eliminating more random variables, then to the first found.
func (a *ACFOVE) cheapest() MacroOperation {
	var best MacroOperation = ImpossibleOperation{}
	consider := func(op MacroOperation) {
		c := op.Cost()
		if math.IsInf(c, 1) {
			return
		}
		switch {
		case c < best.Cost():
			best = op
		case c == best.Cost() && op.NumberOfRandomVariablesEliminated() > best.NumberOfRandomVariablesEliminated():
			best = op
		}
	}
	for _, g := range a.env.marginal.distribution {
		switch p := g.(type) {
		case *AggregationParfactor:
			consider(newConvertToStdParfactors(a.env, p))
		case *StdParfactor:
			for _, prv := range p.factor.vars {
				consider(newGlobalSumOut(a.env, p, prv))
				if cf, ok := prv.(*CountingFormula); ok {
					consider(newFullExpand(a.env, p, cf))
				}
			}
			for _, lv := range p.LogicalVariables() {
				consider(newCountingConvert(a.env, p, lv))
				consider(newPropositionalize(a.env, p, lv))
			}
		}
	}
	return best
}

// FinalMultiplication multiplies a converged marginal into one parfactor over
// the query's Prv. Plain copies of the query are counted when another
// parfactor already holds the query as a counting formula, and a counting
// formula result is turned into the marginal of a single individual.
func FinalMultiplication(m *Marginal, ctx *RenamingContext) (*StdParfactor, error) {
	query := m.preservable
	var std []*StdParfactor
	hasCounting := false
	for _, g := range m.distribution {
		sp, ok := g.(*StdParfactor)
		if !ok {
			return nil, errors.Wrapf(ErrFinalDistribution, "aggregation parfactor %s left after convergence", g)
		}
		for _, p := range sp.factor.vars {
			if _, isCF := p.(*CountingFormula); isCF && m.Preserves(p, sp.constraints) {
				hasCounting = true
			}
		}
		std = append(std, sp)
	}

	var reference Prv
	var aligned []*StdParfactor
	for _, sp := range std {
		if len(sp.factor.vars) == 0 {
			aligned = append(aligned, sp)
			continue
		}
		if len(sp.factor.vars) != 1 || !m.Preserves(sp.factor.vars[0], sp.constraints) {
			return nil, errors.Wrapf(ErrFinalDistribution, "%s holds more than the query %s", sp, query)
		}
		prv := sp.factor.vars[0]
		if plain, ok := prv.(*StdPrv); ok && hasCounting {
			counted, err := sp.Count(plain.LogicalVariables()[0])
			if err != nil {
				return nil, errors.Wrapf(ErrFinalDistribution, "counting %s: %v", sp, err)
			}
			sp, prv = counted, counted.factor.vars[0]
		}
		if reference == nil {
			reference = prv
			aligned = append(aligned, sp)
			continue
		}
		a, ok := align(sp, prv, reference, ctx)
		if !ok {
			return nil, errors.Wrapf(ErrFinalDistribution, "cannot align %s with %s", sp, reference)
		}
		aligned = append(aligned, a)
	}

	var product *StdParfactor
	if reference == nil {
		g, k := query.ground()
		product = &StdParfactor{constraints: k, factor: UniformFactor([]Prv{g}, 1)}
	}
	for _, sp := range aligned {
		if product == nil {
			product = sp
			continue
		}
		var err error
		if product, err = product.Multiply(sp); err != nil {
			return nil, errors.Wrapf(ErrFinalDistribution, "multiplying final parfactors: %v", err)
		}
	}
	if len(product.factor.vars) != 1 {
		return nil, errors.Wrapf(ErrFinalDistribution, "final parfactor %s is not over a single Prv", product)
	}
	return answer(product, query)
}

// answer restates the final parfactor over the query's own Prv and
// constraints. A counting formula φ over n individuals becomes
// F(v) = sum_h φ(h) · mult(h) · h(v) / n.
func answer(product *StdParfactor, query RandomVariableSet) (*StdParfactor, error) {
	g, k := query.ground()
	f := product.factor
	cf, ok := f.vars[0].(*CountingFormula)
	if !ok {
		if _, isCF := query.prv.(*CountingFormula); isCF {
			return nil, errors.Wrapf(ErrFinalDistribution, "%s is not the counting query %s", f.vars[0], query)
		}
		out, err := NewFactor([]Prv{query.prv}, f.values)
		if err != nil {
			return nil, err
		}
		return &StdParfactor{constraints: query.constraints, factor: out}, nil
	}
	if _, isCF := query.prv.(*CountingFormula); isCF {
		out, err := NewFactor([]Prv{query.prv}, f.values)
		if err != nil {
			return nil, err
		}
		return &StdParfactor{constraints: query.constraints, factor: out}, nil
	}
	values := make([]float64, g.RangeSize())
	if cf.size > 0 {
		for i, e := range cf.rng {
			h := e.(Histogram)
			w := f.values[i] * h.Multinomial() / float64(cf.size)
			for v := range values {
				values[v] += w * float64(h.Count(v))
			}
		}
	}
	return &StdParfactor{constraints: k, factor: newFactor([]Prv{g}, values)}, nil
}
