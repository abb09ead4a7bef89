package fove

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomVariableSet_Size(t *testing.T) {
	x := lvar("X", "a", "b", "c")
	y := lvar("Y", "a", "b", "c")

	assert.Equal(t, 6, NewRandomVariableSet(NewPrv("f", x, y), cset(ineq(x, y))).Size())
	assert.Equal(t, 1, NewRandomVariableSet(NewPrv("f", Constant("a")), ConstraintSet{}).Size())

	// Constraints on variables outside the Prv are dropped.
	s := NewRandomVariableSet(NewPrv("f", x), cset(ineq(x, Constant("a")), ineq(y, Constant("b"))))
	assert.Equal(t, "f(X):{X ≠ a}", s.String())
	assert.Equal(t, 2, s.Size())

	x1 := lvar("X", "a")
	assert.True(t, NewRandomVariableSet(NewPrv("f", x1), cset(ineq(x1, Constant("a")))).IsEmpty())
}

func TestRandomVariableSet_Equivalent(t *testing.T) {
	x := lvar("X", "a", "b", "c")
	y := lvar("Y", "a", "b", "c")
	a, b := Constant("a"), Constant("b")

	tests := []struct {
		name string
		s1   RandomVariableSet
		s2   RandomVariableSet
		want bool
	}{
		{name: "renamed", s1: NewRandomVariableSet(NewPrv("f", x), cset(ineq(x, a))), s2: NewRandomVariableSet(NewPrv("f", y), cset(ineq(y, a))), want: true},
		{name: "different exclusions", s1: NewRandomVariableSet(NewPrv("f", x), cset(ineq(x, a))), s2: NewRandomVariableSet(NewPrv("f", y), cset(ineq(y, b)))},
		{name: "diagonal against pairs", s1: NewRandomVariableSet(NewPrv("f", x, x), ConstraintSet{}), s2: NewRandomVariableSet(NewPrv("f", x, y), ConstraintSet{})},
		{name: "subset", s1: NewRandomVariableSet(NewPrv("f", a), ConstraintSet{}), s2: NewRandomVariableSet(NewPrv("f", x), ConstraintSet{})},
		{name: "ground", s1: NewRandomVariableSet(NewPrv("f", a), ConstraintSet{}), s2: NewRandomVariableSet(NewPrv("f", a), ConstraintSet{}), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.s1.Equivalent(tt.s2))
			assert.Equal(t, tt.want, tt.s2.Equivalent(tt.s1))
		})
	}
}

func TestRandomVariableSet_EquivalentToCountingFormula(t *testing.T) {
	lot := lvar("Lot", "lot1", "lot2", "lot3")
	query := NewRandomVariableSet(NewPrv("wet", lot), cset(ineq(lot, Constant("lot1"))))

	cf, err := NewCountingFormula(lot, cset(ineq(lot, Constant("lot1"))), NewPrv("wet", lot))
	require.NoError(t, err)
	assert.True(t, query.EquivalentToCountingFormula(cf, ConstraintSet{}))

	all, err := NewCountingFormula(lot, ConstraintSet{}, NewPrv("wet", lot))
	require.NoError(t, err)
	assert.False(t, query.EquivalentToCountingFormula(all, ConstraintSet{}))
}

func TestRandomVariableSet_Intersect(t *testing.T) {
	x := lvar("X", "a", "b", "c")
	y := lvar("Y", "a", "b", "c")

	got, ok := NewRandomVariableSet(NewPrv("f", x), ConstraintSet{}).Intersect(NewRandomVariableSet(NewPrv("f", Constant("a")), ConstraintSet{}))
	require.True(t, ok)
	assert.Equal(t, "f(a)", got.String())

	got, ok = NewRandomVariableSet(NewPrv("f", x), cset(ineq(x, Constant("a")))).Intersect(NewRandomVariableSet(NewPrv("f", y), ConstraintSet{}))
	require.True(t, ok)
	assert.Equal(t, "f(X):{X ≠ a}", got.String())

	_, ok = NewRandomVariableSet(NewPrv("f", x), cset(ineq(x, Constant("a")))).Intersect(NewRandomVariableSet(NewPrv("f", Constant("a")), ConstraintSet{}))
	assert.False(t, ok)
}

func TestRandomVariableSet_SubtractAndUnion(t *testing.T) {
	x := lvar("X", "a", "b", "c")
	all := NewRandomVariableSet(NewPrv("f", x), ConstraintSet{})
	one := NewRandomVariableSet(NewPrv("f", Constant("a")), ConstraintSet{})

	rest, err := all.Subtract(one)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "f(X):{X ≠ a}", rest[0].String())
	assert.True(t, rest[0].IsDisjoint(one))

	none, err := one.Subtract(all)
	require.NoError(t, err)
	assert.Empty(t, none)

	union, err := one.Union(all)
	require.NoError(t, err)
	require.Len(t, union, 2)
	total := 0
	for _, s := range union {
		total += s.Size()
	}
	assert.Equal(t, 3, total)

	same, err := all.Union(all)
	require.NoError(t, err)
	assert.Len(t, same, 1)
}

func TestRandomVariableSet_Groundings(t *testing.T) {
	x := lvar("X", "a", "b", "c")
	s := NewRandomVariableSet(NewPrv("f", x), cset(ineq(x, Constant("a"))))
	var got []string
	for _, g := range s.Groundings() {
		got = append(got, g.String())
	}
	assert.Equal(t, []string{"f(b)", "f(c)"}, got)
}

func TestMarginal(t *testing.T) {
	x := lvar("X", "a", "b")
	query := NewRandomVariableSet(NewPrv("g"), ConstraintSet{})
	g1 := stdParfactor(t, ConstraintSet{}, []Prv{NewPrv("f", x)}, 1, 2)
	g2 := stdParfactor(t, ConstraintSet{}, []Prv{NewPrv("f", x), NewPrv("g")}, 1, 2, 3, 4)
	m := NewMarginal([]Parfactor{g1, g2}, query)

	assert.False(t, m.IsConverged())
	elim := m.Eliminables()
	require.Len(t, elim, 1, "f(X) is reported once")
	assert.Equal(t, "f(X)", elim[0].String())
	assert.True(t, m.Preserves(NewPrv("g"), ConstraintSet{}))
	assert.False(t, m.Eliminable(NewPrv("g"), ConstraintSet{}))

	g3 := stdParfactor(t, ConstraintSet{}, []Prv{NewPrv("g")}, 5, 6)
	next := m.Replace([]Parfactor{g1, g2}, g3)
	assert.True(t, next.IsConverged())
	assert.Len(t, next.Distribution(), 1)
	assert.Len(t, m.Distribution(), 2, "Replace leaves the receiver untouched")
}
