package fove

import (
	"strings"
)

// Marginal is a distribution (a list of parfactors whose product is the
// model) together with the random variables that must survive elimination.
type Marginal struct {
	distribution []Parfactor
	preservable  RandomVariableSet
}

// NewMarginal builds a marginal. The distribution is not shattered here.
func NewMarginal(distribution []Parfactor, preservable RandomVariableSet) *Marginal {
	d := make([]Parfactor, len(distribution))
	copy(d, distribution)
	return &Marginal{distribution: d, preservable: preservable}
}

// Distribution returns a copy of the parfactor list.
func (m *Marginal) Distribution() []Parfactor {
	out := make([]Parfactor, len(m.distribution))
	copy(out, m.distribution)
	return out
}

// Preservable returns the query.
func (m *Marginal) Preservable() RandomVariableSet { return m.preservable }

// Preserves reports whether prv, inside a parfactor with constraints cs, is
// the query or a counting formula over exactly the query's population.
func (m *Marginal) Preserves(prv Prv, cs ConstraintSet) bool {
	if cf, ok := prv.(*CountingFormula); ok {
		return m.preservable.EquivalentToCountingFormula(cf, cs)
	}
	return m.preservable.Equivalent(NewRandomVariableSet(prv, cs))
}

// Eliminable reports whether prv under cs is disjoint from the query.
func (m *Marginal) Eliminable(prv Prv, cs ConstraintSet) bool {
	return NewRandomVariableSet(prv, cs).IsDisjoint(m.preservable)
}

// Eliminables returns the random variable sets still to be summed out: every
// Prv of the distribution, under its parfactor's constraints, that is
// disjoint from the query. Duplicates are reported once.
func (m *Marginal) Eliminables() []RandomVariableSet {
	var out []RandomVariableSet
	for _, g := range m.distribution {
		cs := g.Constraints()
		for _, prv := range g.Prvs() {
			if !m.Eliminable(prv, cs) {
				continue
			}
			set := NewRandomVariableSet(prv, cs)
			if set.IsEmpty() {
				continue
			}
			dup := false
			for _, seen := range out {
				if seen.Equivalent(set) {
					dup = true
					break
				}
			}
			if !dup {
				out = append(out, set)
			}
		}
	}
	return out
}

// IsConverged reports whether nothing is left to eliminate.
func (m *Marginal) IsConverged() bool {
	for _, g := range m.distribution {
		cs := g.Constraints()
		for _, prv := range g.Prvs() {
			if m.Eliminable(prv, cs) && !NewRandomVariableSet(prv, cs).IsEmpty() {
				return false
			}
		}
	}
	return true
}

// Replace returns a marginal over the same query whose distribution drops
// the removed parfactors and appends added.
func (m *Marginal) Replace(removed []Parfactor, added ...Parfactor) *Marginal {
	var d []Parfactor
	for _, g := range m.distribution {
		drop := false
		for _, r := range removed {
			if g == r {
				drop = true
				break
			}
		}
		if !drop {
			d = append(d, g)
		}
	}
	d = append(d, added...)
	return &Marginal{distribution: d, preservable: m.preservable}
}

// WithDistribution returns a marginal over the same query.
func (m *Marginal) WithDistribution(distribution []Parfactor) *Marginal {
	return NewMarginal(distribution, m.preservable)
}

func (m *Marginal) String() string {
	var b strings.Builder
	b.WriteString("query: ")
	b.WriteString(m.preservable.String())
	b.WriteString("\n")
	for _, g := range m.distribution {
		b.WriteString("  ")
		b.WriteString(g.String())
		b.WriteString("\n")
	}
	return b.String()
}
