package fove

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

// Helpers that answer queries by enumerating every joint assignment of the
// ground model. They are exponential and only meant for small test models.

func lvar(name string, names ...string) LogicalVariable {
	return NewLogicalVariable(name, NewPopulation(names...))
}

func ineq(first, second Term) Constraint { return MustInequality(first, second) }

func cset(cs ...Constraint) ConstraintSet { return NewConstraintSet(cs...) }

func stdParfactor(t *testing.T, cs ConstraintSet, vars []Prv, values ...float64) *StdParfactor {
	t.Helper()
	f, err := NewFactor(vars, values)
	require.NoError(t, err)
	g, err := NewStdParfactor(cs, f)
	require.NoError(t, err)
	return g
}

// groundFactors expands a model into its ground factors.
func groundFactors(t *testing.T, model []Parfactor) []*Factor {
	t.Helper()
	var out []*Factor
	for _, g := range model {
		switch p := g.(type) {
		case *StdParfactor:
			for _, sub := range groundings(p.LogicalVariables(), p.constraints) {
				gp, err := p.apply(sub)
				require.NoError(t, err)
				for _, cf := range gp.CountingFormulas() {
					gp, err = gp.FullExpand(cf)
					require.NoError(t, err)
				}
				out = append(out, gp.factor)
			}
		case *AggregationParfactor:
			for _, sub := range groundings(p.child.LogicalVariables(), p.constraints) {
				out = append(out, groundAggregation(t, p, sub))
			}
		default:
			t.Fatalf("unknown parfactor %T", g)
		}
	}
	return out
}

// groundAggregation builds prod_a Fp(p_a) · [c = fold_a p_a] for one child
// grounding.
func groundAggregation(t *testing.T, g *AggregationParfactor, sub Substitution) *Factor {
	t.Helper()
	extraCons, err := g.extraCons.Apply(sub)
	require.NoError(t, err)
	parent := g.parent.substitute(sub)
	var vars []Prv
	for _, a := range groundings([]LogicalVariable{g.extra}, extraCons) {
		vars = append(vars, parent.substitute(a))
	}
	n := len(vars)
	child := g.child.substitute(sub)
	vars = append(vars, child)
	size := 1
	for _, v := range vars {
		size *= v.RangeSize()
	}
	values := make([]float64, 0, size)
	tuple := make([]int, len(vars))
	for idx := 0; idx < size; idx++ {
		w := 1.0
		acc := g.operator.Identity()
		for i := 0; i < n; i++ {
			w *= g.factor.values[tuple[i]]
			acc, err = g.operator.Apply(acc, parent.rng[tuple[i]])
			require.NoError(t, err)
		}
		if !child.rng[tuple[n]].Equal(acc) {
			w = 0
		}
		values = append(values, w)
		advance(tuple, vars)
	}
	return newFactor(vars, values)
}

// bruteMarginal returns the normalized marginal of target in the ground
// model.
func bruteMarginal(t *testing.T, model []Parfactor, target *StdPrv) []float64 {
	t.Helper()
	factors := groundFactors(t, model)
	index := make(map[string]int)
	var vars []Prv
	for _, f := range factors {
		for _, v := range f.vars {
			if _, ok := index[v.String()]; !ok {
				index[v.String()] = len(vars)
				vars = append(vars, v)
			}
		}
	}
	ti, ok := index[target.String()]
	require.True(t, ok, "%s is not in the ground model", target)

	out := make([]float64, target.RangeSize())
	size := 1
	for _, v := range vars {
		size *= v.RangeSize()
	}
	tuple := make([]int, len(vars))
	for n := 0; n < size; n++ {
		w := 1.0
		for _, f := range factors {
			if f.IsConstant() {
				w *= f.values[0]
				continue
			}
			local := make([]int, len(f.vars))
			for i, v := range f.vars {
				local[i] = tuple[index[v.String()]]
			}
			val, err := f.GetTuple(local)
			require.NoError(t, err)
			w *= val
		}
		out[tuple[ti]] += w
		advance(tuple, vars)
	}
	return normalized(out)
}

func normalized(values []float64) []float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v / total
	}
	return out
}

// groundStrings lists the ground Prv tuples of a parfactor, one string per
// ground factor, sorted.
func groundStrings(t *testing.T, g Parfactor) []string {
	t.Helper()
	var out []string
	for _, sub := range groundings(g.LogicalVariables(), g.Constraints()) {
		applied, err := g.Apply(sub)
		require.NoError(t, err)
		out = append(out, prvList(applied.Prvs()))
	}
	sort.Strings(out)
	return out
}
