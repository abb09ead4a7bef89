// Package fove implements exact lifted probabilistic inference over
// first-order graphical models by lifted variable elimination (AC-FOVE).
//
// A model is a set of parfactors. Each parfactor is a factor over
// parameterized random variables (Prvs) together with a set of inequality
// constraints over the logical variables those Prvs mention, and stands for
// every ground factor obtained by substituting constants for the logical
// variables. Aggregation parfactors additionally describe a child variable
// computed by folding a commutative, associative operator across a whole
// population of parent variables.
//
// # Algebra
//
// The package is organised bottom-up:
//
//	Term, Constant, LogicalVariable, Population
//	Constraint, ConstraintSet, Binding, Substitution, RenamingContext
//	RangeElement (Boolean, Histogram), Operator (And, Or, Xor)
//	Prv (*StdPrv, *CountingFormula)
//	Factor (mixed-radix table: multiply, sum out, pow, reorder)
//	Parfactor (*StdParfactor, *AggregationParfactor)
//	Mgu, AreDisjoint, Shatter
//	RandomVariableSet, Marginal
//	MacroOperation, ACFOVE
//
// All values are immutable: every operation that changes a term, a Prv, a
// factor or a parfactor returns a new value.
//
// # Inference
//
// ACFOVE drives a Marginal (the current distribution plus the query to
// preserve) to a single answer parfactor. At each step it builds every
// applicable macro-operation (GlobalSumOut, FullExpand, CountingConvert,
// Propositionalize, ConvertToStdParfactors), keeps the cheapest one and runs
// it:
//
//	query := fove.NewRandomVariableSet(wetGrass, fove.NewConstraintSet(notLot1))
//	engine, err := fove.NewACFOVE(parfactors, query, nil)
//	if err != nil {
//		return err
//	}
//	answer, err := engine.Run(ctx)
//
// Before any elimination the distribution is shattered: any two Prvs across
// all parfactors then denote either identical or disjoint sets of ground
// random variables.
package fove
