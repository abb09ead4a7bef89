package fove_test

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/gitrdm/gofove/pkg/fove"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// ExampleACFOVE_Run_independent sums an unrelated variable out of a two
// factor model.
func ExampleACFOVE_Run_independent() {
	rain := fove.NewPrv("rain")
	sprinkler := fove.NewPrv("sprinkler")
	model := []fove.Parfactor{
		fove.MustStdParfactor(fove.ConstraintSet{}, fove.MustFactor([]fove.Prv{rain}, []float64{0.8, 0.2})),
		fove.MustStdParfactor(fove.ConstraintSet{}, fove.MustFactor([]fove.Prv{sprinkler}, []float64{0.6, 0.4})),
	}

	cfg := fove.DefaultConfig()
	cfg.Logger = quietLogger()
	engine, err := fove.NewACFOVE(model, fove.NewRandomVariableSet(sprinkler, fove.ConstraintSet{}), cfg)
	if err != nil {
		panic(err)
	}
	result, err := engine.Run(context.Background())
	if err != nil {
		panic(err)
	}
	fmt.Printf("%s: %.2f\n", result.Prvs()[0], result.Factor().Values())

	// Output:
	// sprinkler(): [0.60 0.40]
}

// ExampleACFOVE_Run_sprinkler answers P(wet_grass(Lot)) for every lot other
// than lot1, given that the grass of lot1 is wet.
func ExampleACFOVE_Run_sprinkler() {
	lot := fove.NewLogicalVariable("Lot", fove.NewPopulation("lot1", "lot2", "lot3"))
	lot1 := fove.Constant("lot1")
	rain := fove.NewPrv("rain")
	sprinkler := fove.NewPrv("sprinkler", lot)
	wet := fove.NewPrv("wet_grass", lot)

	none := fove.ConstraintSet{}
	model := []fove.Parfactor{
		fove.MustStdParfactor(none, fove.MustFactor([]fove.Prv{rain}, []float64{0.8, 0.2})),
		fove.MustStdParfactor(none, fove.MustFactor([]fove.Prv{sprinkler}, []float64{0.6, 0.4})),
		fove.MustStdParfactor(none, fove.MustFactor([]fove.Prv{rain, sprinkler, wet},
			[]float64{1.0, 0.0, 0.1, 0.9, 0.2, 0.8, 0.01, 0.99})),
		fove.MustStdParfactor(none, fove.MustFactor([]fove.Prv{fove.NewPrv("wet_grass", lot1)}, []float64{0, 1})),
	}
	query := fove.NewRandomVariableSet(wet, fove.NewConstraintSet(fove.MustInequality(lot, lot1)))

	cfg := fove.DefaultConfig()
	cfg.Logger = quietLogger()
	engine, err := fove.NewACFOVE(model, query, cfg)
	if err != nil {
		panic(err)
	}
	result, err := engine.Run(context.Background())
	if err != nil {
		panic(err)
	}
	fmt.Printf("%s %s: %.4f\n", result.Prvs()[0], result.Constraints(), result.Factor().Normalize().Values())

	// Output:
	// wet_grass(Lot) {Lot ≠ lot1}: [0.4448 0.5552]
}

// ExampleAggregationParfactor_Decompose ORs the match indicators of a single
// ticket holder into the jackpot.
func ExampleAggregationParfactor_Decompose() {
	person := fove.NewLogicalVariable("Person", fove.NewPopulation("p1"))
	matched := fove.NewPrv("matched_6", person)
	won := fove.NewPrv("jackpot_won")

	agg, err := fove.NewAggregationParfactor(matched, won,
		fove.MustFactor([]fove.Prv{matched}, []float64{1.0, 0.0}),
		fove.Or, fove.ConstraintSet{}, fove.ConstraintSet{})
	if err != nil {
		panic(err)
	}
	f, err := agg.Decompose()
	if err != nil {
		panic(err)
	}
	fmt.Printf("%s: %.1f\n", f.Variables()[0], f.Values())

	// Output:
	// jackpot_won(): [1.0 0.0]
}

// ExampleShatter splits a parfactor on the constant another parfactor
// mentions.
func ExampleShatter() {
	x := fove.NewLogicalVariable("X", fove.NewPopulation("a", "b", "c"))
	model := []fove.Parfactor{
		fove.MustStdParfactor(fove.ConstraintSet{}, fove.MustFactor([]fove.Prv{fove.NewPrv("f", x)}, []float64{1, 2})),
		fove.MustStdParfactor(fove.ConstraintSet{}, fove.MustFactor([]fove.Prv{fove.NewPrv("f", fove.Constant("a"))}, []float64{3, 4})),
	}
	shattered, err := fove.Shatter(model, fove.NewRenamingContext())
	if err != nil {
		panic(err)
	}
	fmt.Println(len(shattered), "parfactors")

	// Output:
	// 3 parfactors
}
