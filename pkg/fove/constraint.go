package fove

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Relation is the comparison a Constraint asserts between its terms.
type Relation int

const (
	// Equality asserts first = second. Equalities only live in unification
	// stacks; parfactor constraint sets hold inequalities.
	Equality Relation = iota

	// Inequality asserts first ≠ second.
	Inequality
)

// String returns "=" or "≠".
func (r Relation) String() string {
	switch r {
	case Equality:
		return "="
	case Inequality:
		return "≠"
	default:
		return "?"
	}
}

// Constraint is an ordered pair of terms with a relation.
type Constraint struct {
	first    Term
	second   Term
	relation Relation
}

// NewInequality builds first ≠ second. A constraint between two constants,
// or between a term and itself, is invalid. Inequalities are normalized so
// a variable comes first and two variables are ordered by name.
func NewInequality(first, second Term) (Constraint, error) {
	if !first.IsVariable() && !second.IsVariable() {
		return Constraint{}, errors.Wrapf(ErrInvalidConstraint, "%s ≠ %s relates two constants", first, second)
	}
	if first.Equal(second) {
		return Constraint{}, errors.Wrapf(ErrInvalidConstraint, "%s ≠ %s can never hold", first, second)
	}
	if !first.IsVariable() || (second.IsVariable() && second.String() < first.String()) {
		first, second = second, first
	}
	return Constraint{first: first, second: second, relation: Inequality}, nil
}

// MustInequality is NewInequality for statically known terms; it panics on
// an invalid constraint.
func MustInequality(first, second Term) Constraint {
	c, err := NewInequality(first, second)
	if err != nil {
		panic(err)
	}
	return c
}

// NewEquality builds first = second. Order is preserved.
func NewEquality(first, second Term) Constraint {
	return Constraint{first: first, second: second, relation: Equality}
}

// First returns the first term.
func (c Constraint) First() Term { return c.first }

// Second returns the second term.
func (c Constraint) Second() Term { return c.second }

// Relation returns the constraint's relation.
func (c Constraint) Relation() Relation { return c.relation }

// IsInequality reports whether the constraint is an inequality.
func (c Constraint) IsInequality() bool { return c.relation == Inequality }

// Variables returns the logical variables the constraint mentions.
func (c Constraint) Variables() []LogicalVariable {
	return variablesOf([]Term{c.first, c.second})
}

// Involves reports whether the named variable is one of the terms.
func (c Constraint) Involves(name string) bool {
	for _, t := range []Term{c.first, c.second} {
		if lv, ok := t.(LogicalVariable); ok && lv.name == name {
			return true
		}
	}
	return false
}

// Other returns the term on the other side of the named variable.
func (c Constraint) Other(name string) Term {
	if lv, ok := c.first.(LogicalVariable); ok && lv.name == name {
		return c.second
	}
	return c.first
}

// Equal compares relation and terms; inequalities are symmetric.
func (c Constraint) Equal(other Constraint) bool {
	if c.relation != other.relation {
		return false
	}
	if c.first.Equal(other.first) && c.second.Equal(other.second) {
		return true
	}
	return c.relation == Inequality && c.first.Equal(other.second) && c.second.Equal(other.first)
}

// ToBinding converts an equality whose first term is a variable into the
// binding first/second.
func (c Constraint) ToBinding() (Binding, error) {
	lv, ok := c.first.(LogicalVariable)
	if c.relation != Equality || !ok {
		return Binding{}, errors.Wrapf(ErrNotBindable, "%s", c)
	}
	return NewBinding(lv, c.second), nil
}

// Apply substitutes both terms. For inequalities, the returned flag is
// false when the constraint became trivially true (two distinct constants)
// and should be dropped. A substitution that makes an inequality relate a
// term to itself fails with ErrInvalidConstraint.
func (c Constraint) Apply(sub Substitution) (Constraint, bool, error) {
	first, second := sub.Apply(c.first), sub.Apply(c.second)
	if c.relation == Equality {
		return NewEquality(first, second), true, nil
	}
	if first.Equal(second) {
		return Constraint{}, false, errors.Wrapf(ErrInvalidConstraint, "%s under %s yields %s ≠ %s", c, sub, first, second)
	}
	if !first.IsVariable() && !second.IsVariable() {
		return Constraint{}, false, nil
	}
	out, err := NewInequality(first, second)
	return out, err == nil, err
}

// String renders the constraint as "X ≠ c".
func (c Constraint) String() string {
	return c.first.String() + " " + c.relation.String() + " " + c.second.String()
}

// ConstraintSet is an immutable, duplicate-free list of constraints.
type ConstraintSet struct {
	items []Constraint
}

// NewConstraintSet builds a set, dropping duplicates.
func NewConstraintSet(constraints ...Constraint) ConstraintSet {
	var s ConstraintSet
	for _, c := range constraints {
		if !s.Contains(c) {
			s.items = append(s.items, c)
		}
	}
	return s
}

// Len returns the number of constraints.
func (s ConstraintSet) Len() int { return len(s.items) }

// IsEmpty reports whether the set holds no constraint.
func (s ConstraintSet) IsEmpty() bool { return len(s.items) == 0 }

// Items returns a copy of the constraints.
func (s ConstraintSet) Items() []Constraint {
	out := make([]Constraint, len(s.items))
	copy(out, s.items)
	return out
}

// Contains reports whether an equal constraint is present.
func (s ConstraintSet) Contains(c Constraint) bool {
	for _, x := range s.items {
		if x.Equal(c) {
			return true
		}
	}
	return false
}

// Add returns a set that also holds c.
func (s ConstraintSet) Add(c Constraint) ConstraintSet {
	if s.Contains(c) {
		return s
	}
	items := make([]Constraint, len(s.items), len(s.items)+1)
	copy(items, s.items)
	return ConstraintSet{items: append(items, c)}
}

// Union returns the constraints of both sets.
func (s ConstraintSet) Union(other ConstraintSet) ConstraintSet {
	out := s
	for _, c := range other.items {
		out = out.Add(c)
	}
	return out
}

// Apply substitutes every constraint, dropping those that became trivially
// true. It fails when any constraint becomes unsatisfiable.
func (s ConstraintSet) Apply(sub Substitution) (ConstraintSet, error) {
	var out ConstraintSet
	for _, c := range s.items {
		applied, keep, err := c.Apply(sub)
		if err != nil {
			return ConstraintSet{}, err
		}
		if keep {
			out = out.Add(applied)
		}
	}
	return out, nil
}

// Restrict keeps the constraints whose variables all satisfy keep.
func (s ConstraintSet) Restrict(keep func(name string) bool) ConstraintSet {
	var out ConstraintSet
	for _, c := range s.items {
		ok := true
		for _, v := range c.Variables() {
			if !keep(v.name) {
				ok = false
				break
			}
		}
		if ok {
			out.items = append(out.items, c)
		}
	}
	return out
}

// RestrictTo keeps the constraints that only mention vars.
func (s ConstraintSet) RestrictTo(vars []LogicalVariable) ConstraintSet {
	set := newVariableSet(vars...)
	return s.Restrict(set.contains)
}

// Partition splits the set into the constraints involving the named
// variable and the rest.
func (s ConstraintSet) Partition(name string) (involving, rest ConstraintSet) {
	for _, c := range s.items {
		if c.Involves(name) {
			involving.items = append(involving.items, c)
		} else {
			rest.items = append(rest.items, c)
		}
	}
	return involving, rest
}

// Variables returns every logical variable the set mentions.
func (s ConstraintSet) Variables() []LogicalVariable {
	set := newVariableSet()
	for _, c := range s.items {
		for _, v := range c.Variables() {
			set.add(v)
		}
	}
	return set.order
}

// ExcludedConstants returns the constants c with name ≠ c in the set.
func (s ConstraintSet) ExcludedConstants(name string) []Constant {
	var out []Constant
	for _, c := range s.items {
		if c.relation != Inequality || !c.Involves(name) {
			continue
		}
		if k, ok := c.Other(name).(Constant); ok {
			out = append(out, k)
		}
	}
	return out
}

// UnequalVariables returns the variables Y with name ≠ Y in the set.
func (s ConstraintSet) UnequalVariables(name string) []LogicalVariable {
	var out []LogicalVariable
	for _, c := range s.items {
		if c.relation != Inequality || !c.Involves(name) {
			continue
		}
		if lv, ok := c.Other(name).(LogicalVariable); ok {
			out = append(out, lv)
		}
	}
	return out
}

// Equal reports set equality.
func (s ConstraintSet) Equal(other ConstraintSet) bool {
	if len(s.items) != len(other.items) {
		return false
	}
	for _, c := range s.items {
		if !other.Contains(c) {
			return false
		}
	}
	return true
}

// String renders the set sorted, as {X ≠ a, X ≠ Y}.
func (s ConstraintSet) String() string {
	parts := make([]string, len(s.items))
	for i, c := range s.items {
		parts[i] = c.String()
	}
	sort.Strings(parts)
	return "{" + strings.Join(parts, ", ") + "}"
}
