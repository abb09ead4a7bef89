package fove

import (
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requireShattered checks that any two Prvs of different parfactors are
// either disjoint or select the same ground random variables.
func requireShattered(t *testing.T, model []Parfactor) {
	t.Helper()
	ctx := NewRenamingContext()
	for i, g := range model {
		for j, h := range model {
			if i >= j {
				continue
			}
			for _, p := range g.Prvs() {
				for _, q := range h.Prvs() {
					if AreDisjoint(p, g.Constraints(), q, h.Constraints(), ctx) {
						continue
					}
					gp, gk := groundSet(p, g.Constraints())
					hq, hk := groundSet(q, h.Constraints())
					assert.True(t, equivalentSets(gp, gk, hq, hk), "%s in %s partially overlaps %s in %s", p, g, q, h)
				}
			}
		}
	}
}

func parfactorStrings(model []Parfactor) []string {
	out := make([]string, len(model))
	for i, g := range model {
		out[i] = g.String()
	}
	sort.Strings(out)
	return out
}

// groundProduct multiplies every ground factor of a model into one table
// over the sorted ground Prvs.
func groundProduct(t *testing.T, model []Parfactor) *Factor {
	t.Helper()
	product := ConstantFactor(1)
	for _, f := range groundFactors(t, model) {
		var err error
		product, err = product.Multiply(f)
		require.NoError(t, err)
	}
	order := product.Variables()
	sort.Slice(order, func(i, j int) bool { return order[i].String() < order[j].String() })
	sorted, err := product.ReorderTo(order)
	require.NoError(t, err)
	return sorted
}

func TestShatter_SplitsOnConstant(t *testing.T) {
	x := lvar("X", "a", "b", "c")
	g1 := stdParfactor(t, ConstraintSet{}, []Prv{NewPrv("f", x)}, 1, 2)
	g2 := stdParfactor(t, ConstraintSet{}, []Prv{NewPrv("f", Constant("a"))}, 3, 4)

	got, err := Shatter([]Parfactor{g1, g2}, NewRenamingContext())
	require.NoError(t, err)
	want := []string{
		"⟨{X ≠ a}, [f(X)]⟩",
		"⟨{}, [f(a)]⟩",
		"⟨{}, [f(a)]⟩",
	}
	if diff := cmp.Diff(want, parfactorStrings(got)); diff != "" {
		t.Errorf("shattered model mismatch (-want +got):\n%s", diff)
	}
	requireShattered(t, got)
}

func TestShatter_PreservesGroundModel(t *testing.T) {
	x := lvar("X", "a", "b", "c")
	y := lvar("Y", "a", "b", "c")
	z := lvar("Z", "a", "b", "c")
	w := lvar("W", "a", "b", "c")
	model := []Parfactor{
		stdParfactor(t, ConstraintSet{}, []Prv{NewPrv("f", x, y)}, 1, 2),
		stdParfactor(t, ConstraintSet{}, []Prv{NewPrv("f", z, z)}, 3, 5),
		stdParfactor(t, ConstraintSet{}, []Prv{NewPrv("f", Constant("a"), w)}, 7, 11),
	}

	got, err := Shatter(model, NewRenamingContext())
	require.NoError(t, err)
	requireShattered(t, got)

	before := groundProduct(t, model)
	after := groundProduct(t, got)
	if diff := cmp.Diff(prvStrings(before.Variables()), prvStrings(after.Variables())); diff != "" {
		t.Fatalf("ground variables differ (-before +after):\n%s", diff)
	}
	if diff := cmp.Diff(before.Values(), after.Values(), approx); diff != "" {
		t.Errorf("ground product differs (-before +after):\n%s", diff)
	}
}

func TestShatter_Idempotent(t *testing.T) {
	x := lvar("X", "a", "b", "c")
	y := lvar("Y", "a", "b", "c")
	model := []Parfactor{
		stdParfactor(t, ConstraintSet{}, []Prv{NewPrv("f", x), NewPrv("g", x, y)}, 1, 2, 3, 4),
		stdParfactor(t, ConstraintSet{}, []Prv{NewPrv("g", Constant("b"), Constant("c"))}, 5, 6),
	}
	ctx := NewRenamingContext()
	once, err := Shatter(model, ctx)
	require.NoError(t, err)
	twice, err := Shatter(once, ctx)
	require.NoError(t, err)

	if diff := cmp.Diff(parfactorStrings(once), parfactorStrings(twice)); diff != "" {
		t.Errorf("second shatter changed the model (-once +twice):\n%s", diff)
	}
	requireShattered(t, twice)
}

func TestShatter_DropsEmptyParfactors(t *testing.T) {
	x := lvar("X", "a")
	empty := stdParfactor(t, cset(ineq(x, Constant("a"))), []Prv{NewPrv("f", x)}, 1, 2)
	kept := stdParfactor(t, ConstraintSet{}, []Prv{NewPrv("g")}, 1, 2)

	got, err := Shatter([]Parfactor{empty, kept}, NewRenamingContext())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Same(t, kept, got[0])
}

func TestShatter_SplitsAggregationChild(t *testing.T) {
	x := lvar("X", "a", "b", "c")
	a := lvar("A", "p0", "p1")
	agg, err := NewAggregationParfactor(NewPrv("p", x, a), NewPrv("c", x), MustFactor([]Prv{NewPrv("p", x, a)}, []float64{0.5, 0.5}), Or, ConstraintSet{}, ConstraintSet{})
	require.NoError(t, err)
	evidence := stdParfactor(t, ConstraintSet{}, []Prv{NewPrv("c", Constant("b"))}, 0, 1)

	got, err := Shatter([]Parfactor{agg, evidence}, NewRenamingContext())
	require.NoError(t, err)
	require.Len(t, got, 3)
	requireShattered(t, got)

	var children []string
	for _, g := range got {
		if ag, ok := g.(*AggregationParfactor); ok {
			children = append(children, ag.Child().String()+" "+ag.ChildConstraints().String())
		}
	}
	sort.Strings(children)
	if diff := cmp.Diff([]string{"c(X) {X ≠ b}", "c(b) {}"}, children); diff != "" {
		t.Errorf("aggregation split mismatch (-want +got):\n%s", diff)
	}
}

func TestShatterAgainstQuery(t *testing.T) {
	lot := lvar("Lot", "lot1", "lot2", "lot3")
	g := stdParfactor(t, ConstraintSet{}, []Prv{NewPrv("wet", lot)}, 1, 2)
	query := NewRandomVariableSet(NewPrv("wet", lot), cset(ineq(lot, Constant("lot1"))))

	got, err := normalize([]Parfactor{g}, query, NewRenamingContext(), nil)
	require.NoError(t, err)
	want := []string{
		"⟨{Lot ≠ lot1}, [wet(Lot)]⟩",
		"⟨{}, [wet(lot1)]⟩",
	}
	if diff := cmp.Diff(want, parfactorStrings(got)); diff != "" {
		t.Errorf("normalized model mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyCandidate_Expansion(t *testing.T) {
	x := lvar("X", "a", "b", "c")
	g := stdParfactor(t, ConstraintSet{}, []Prv{NewPrv("f", x)}, 1, 2)
	counted, err := g.Count(x)
	require.NoError(t, err)
	cf := counted.CountingFormulas()[0]

	got, ok, err := applyCandidate(counted, cf, NewBinding(x, Constant("b")))
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "[f(b), #X:{X ≠ b}[f(X)]]", prvList(got[0].Prvs()))

	// A constant outside the counted population is not a candidate.
	got, ok, err = applyCandidate(counted, cf, NewBinding(x, Constant("z")))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, got)

	_, err = counted.Expand(cf, Constant("z"))
	assert.True(t, errors.Is(err, ErrNotExpandable))
}
