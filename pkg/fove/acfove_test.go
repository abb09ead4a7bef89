package fove

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietConfig() *Config {
	logger, _ := logtest.NewNullLogger()
	cfg := DefaultConfig()
	cfg.Logger = logger
	return cfg
}

// sprinklerModel is the wet grass network over three lots with evidence that
// the grass of lot1 is wet.
func sprinklerModel(t *testing.T) ([]Parfactor, RandomVariableSet) {
	t.Helper()
	lot := lvar("Lot", "lot1", "lot2", "lot3")
	rain := NewPrv("rain")
	spr := NewPrv("sprinkler", lot)
	wet := NewPrv("wet_grass", lot)
	model := []Parfactor{
		stdParfactor(t, ConstraintSet{}, []Prv{rain}, 0.8, 0.2),
		stdParfactor(t, ConstraintSet{}, []Prv{spr}, 0.6, 0.4),
		stdParfactor(t, ConstraintSet{}, []Prv{rain, spr, wet},
			1.0, 0.0, // rain = false, sprinkler = false
			0.1, 0.9,
			0.2, 0.8,
			0.01, 0.99),
		stdParfactor(t, ConstraintSet{}, []Prv{NewPrv("wet_grass", Constant("lot1"))}, 0, 1),
	}
	query := NewRandomVariableSet(wet, cset(ineq(lot, Constant("lot1"))))
	return model, query
}

func TestACFOVE_IndependentVariables(t *testing.T) {
	rain, spr := NewPrv("rain"), NewPrv("sprinkler")
	model := []Parfactor{
		stdParfactor(t, ConstraintSet{}, []Prv{rain}, 0.8, 0.2),
		stdParfactor(t, ConstraintSet{}, []Prv{spr}, 0.6, 0.4),
	}
	engine, err := NewACFOVE(model, NewRandomVariableSet(spr, ConstraintSet{}), quietConfig())
	require.NoError(t, err)
	result, err := engine.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Prvs(), 1)
	assert.True(t, result.Prvs()[0].Equal(spr))
	if diff := cmp.Diff([]float64{0.6, 0.4}, result.Factor().Values(), approx); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, engine.Stats().Steps)
}

func TestACFOVE_SingleIndividualAggregation(t *testing.T) {
	person := lvar("Person", "p1")
	matched := NewPrv("matched_6", person)
	won := NewPrv("jackpot_won")
	agg, err := NewAggregationParfactor(matched, won, MustFactor([]Prv{matched}, []float64{1, 0}), Or, ConstraintSet{}, ConstraintSet{})
	require.NoError(t, err)

	engine, err := NewACFOVE([]Parfactor{agg}, NewRandomVariableSet(won, ConstraintSet{}), quietConfig())
	require.NoError(t, err)
	result, err := engine.Run(context.Background())
	require.NoError(t, err)

	if diff := cmp.Diff([]float64{1, 0}, result.Factor().Values(), approx); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, map[string]int{"ConvertToStdParfactors": 1}, engine.Stats().Operations)
}

func TestACFOVE_SprinklerConverges(t *testing.T) {
	model, query := sprinklerModel(t)
	engine, err := NewACFOVE(model, query, quietConfig())
	require.NoError(t, err)
	result, err := engine.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Prvs(), 1)
	assert.Equal(t, "wet_grass(Lot)", result.Prvs()[0].String())
	assert.Equal(t, "{Lot ≠ lot1}", result.Constraints().String())

	got := result.Factor().Normalize().Values()
	want := bruteMarginal(t, model, NewPrv("wet_grass", Constant("lot2")))
	if diff := cmp.Diff(want, got, approx); diff != "" {
		t.Errorf("lifted answer differs from ground enumeration (-ground +lifted):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{0.44482901554404153, 0.5551709844559585}, got, approx); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}

	stats := engine.Stats()
	assert.Less(t, stats.Steps, 20)
	assert.Equal(t, engine.RunID(), stats.RunID)
	assert.Positive(t, stats.ShatterPasses)
}

func TestACFOVE_SharedAggregationParent(t *testing.T) {
	p := lvar("P", "alice", "bob", "carol")
	matched := NewPrv("matched", p)
	won := NewPrv("won")
	agg, err := NewAggregationParfactor(matched, won, MustFactor([]Prv{matched}, []float64{0.7, 0.3}), Or, ConstraintSet{}, ConstraintSet{})
	require.NoError(t, err)
	model := []Parfactor{
		agg,
		stdParfactor(t, ConstraintSet{}, []Prv{matched}, 1, 3),
		stdParfactor(t, ConstraintSet{}, []Prv{NewPrv("matched", Constant("alice"))}, 0.5, 0.25),
	}

	engine, err := NewACFOVE(model, NewRandomVariableSet(won, ConstraintSet{}), quietConfig())
	require.NoError(t, err)
	result, err := engine.Run(context.Background())
	require.NoError(t, err)

	want := bruteMarginal(t, model, won)
	if diff := cmp.Diff(want, result.Factor().Normalize().Values(), approx); diff != "" {
		t.Errorf("lifted answer differs from ground enumeration (-ground +lifted):\n%s", diff)
	}
	assert.Equal(t, 1, engine.Stats().Operations["ConvertToStdParfactors"])
}

func TestACFOVE_IsolatedAggregationMatchesEnumeration(t *testing.T) {
	p := lvar("P", "alice", "bob", "carol", "dave")
	matched := NewPrv("matched", p)
	won := NewPrv("won")
	agg, err := NewAggregationParfactor(matched, won, MustFactor([]Prv{matched}, []float64{0.9, 0.1}), Or, ConstraintSet{}, cset(ineq(p, Constant("dave"))))
	require.NoError(t, err)
	model := []Parfactor{agg, stdParfactor(t, ConstraintSet{}, []Prv{won}, 1, 2)}

	engine, err := NewACFOVE(model, NewRandomVariableSet(won, ConstraintSet{}), quietConfig())
	require.NoError(t, err)
	result, err := engine.Run(context.Background())
	require.NoError(t, err)

	want := bruteMarginal(t, model, won)
	if diff := cmp.Diff(want, result.Factor().Normalize().Values(), approx); diff != "" {
		t.Errorf("lifted answer differs from ground enumeration (-ground +lifted):\n%s", diff)
	}
}

func TestACFOVE_ObserverAndLogging(t *testing.T) {
	model, query := sprinklerModel(t)
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	var steps []int
	cfg := DefaultConfig()
	cfg.Logger = logger
	cfg.Observer = func(step int, operation string, m *Marginal) {
		steps = append(steps, step)
		assert.NotEmpty(t, operation)
		assert.NotNil(t, m)
	}
	engine, err := NewACFOVE(model, query, cfg)
	require.NoError(t, err)
	_, err = engine.Run(context.Background())
	require.NoError(t, err)

	n := engine.Stats().Steps
	require.Len(t, steps, n)
	for i, s := range steps {
		assert.Equal(t, i+1, s)
	}

	// One entry per step plus the convergence message.
	entries := hook.AllEntries()
	require.Len(t, entries, n+1)
	for _, e := range entries[:n] {
		assert.Equal(t, logrus.DebugLevel, e.Level)
		assert.Equal(t, engine.RunID().String(), e.Data["run"])
		assert.Contains(t, e.Data, "operation")
		assert.Contains(t, e.Data, "cost")
	}
}

func TestACFOVE_Metrics(t *testing.T) {
	model, query := sprinklerModel(t)
	reg := prometheus.NewRegistry()
	cfg := quietConfig()
	cfg.Registerer = reg

	engine, err := NewACFOVE(model, query, cfg)
	require.NoError(t, err)
	_, err = engine.Run(context.Background())
	require.NoError(t, err)

	stats := engine.Stats()
	total := 0.0
	for name, count := range stats.Operations {
		got := testutil.ToFloat64(engine.metrics.operations.WithLabelValues(name))
		assert.Equal(t, float64(count), got, name)
		total += got
	}
	assert.Equal(t, float64(stats.Steps), total)
	n, err := testutil.GatherAndCount(reg, "fove_macro_operations_total")
	require.NoError(t, err)
	assert.Equal(t, len(stats.Operations), n)
	n, err = testutil.GatherAndCount(reg, "fove_macro_operation_cost")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// A second driver on the same registry shares the collectors.
	second, err := NewACFOVE(model, query, cfg)
	require.NoError(t, err)
	assert.Same(t, engine.metrics.operations, second.metrics.operations)
}

func TestACFOVE_StepLimit(t *testing.T) {
	model, query := sprinklerModel(t)
	cfg := quietConfig()
	cfg.MaxSteps = 1

	engine, err := NewACFOVE(model, query, cfg)
	require.NoError(t, err)
	_, err = engine.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStepLimit), "got %v", err)
	assert.Equal(t, 1, engine.Stats().Steps)
}

func TestACFOVE_Cancelled(t *testing.T) {
	model, query := sprinklerModel(t)
	engine, err := NewACFOVE(model, query, quietConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = engine.Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, engine.Stats().Steps)
}

func TestACFOVE_StepAfterConvergence(t *testing.T) {
	spr := NewPrv("sprinkler")
	model := []Parfactor{stdParfactor(t, ConstraintSet{}, []Prv{spr}, 0.6, 0.4)}
	engine, err := NewACFOVE(model, NewRandomVariableSet(spr, ConstraintSet{}), nil)
	require.NoError(t, err)

	op, err := engine.Step()
	require.NoError(t, err)
	assert.Nil(t, op)
	assert.True(t, engine.Marginal().IsConverged())
}

func TestFinalMultiplication_RejectsLeftovers(t *testing.T) {
	x := lvar("X", "a", "b")
	spr := NewPrv("sprinkler")
	query := NewRandomVariableSet(spr, ConstraintSet{})
	ctx := NewRenamingContext()

	agg, err := NewAggregationParfactor(NewPrv("p", x), spr, MustFactor([]Prv{NewPrv("p", x)}, []float64{0.5, 0.5}), Or, ConstraintSet{}, ConstraintSet{})
	require.NoError(t, err)
	_, err = FinalMultiplication(NewMarginal([]Parfactor{agg}, query), ctx)
	assert.True(t, errors.Is(err, ErrFinalDistribution))

	two := stdParfactor(t, ConstraintSet{}, []Prv{spr, NewPrv("rain")}, 1, 2, 3, 4)
	_, err = FinalMultiplication(NewMarginal([]Parfactor{two}, query), ctx)
	assert.True(t, errors.Is(err, ErrFinalDistribution))

	// With nothing over the query the answer is uniform.
	result, err := FinalMultiplication(NewMarginal(nil, query), ctx)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1}, result.Factor().Values())
}

func TestStats_String(t *testing.T) {
	model, query := sprinklerModel(t)
	engine, err := NewACFOVE(model, query, quietConfig())
	require.NoError(t, err)
	_, err = engine.Run(context.Background())
	require.NoError(t, err)

	s := engine.Stats().String()
	assert.Contains(t, s, engine.RunID().String())
	assert.Contains(t, s, "GlobalSumOut=")
	assert.Contains(t, s, "CountingConvert=1")
}
