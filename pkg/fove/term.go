package fove

import (
	"strings"
)

// Term is either a Constant or a LogicalVariable.
// Terms are immutable values; equality is by name.
type Term interface {
	// String returns the term's name.
	String() string

	// Equal reports whether other is the same kind of term with the same name.
	Equal(other Term) bool

	// IsVariable returns true for logical variables.
	IsVariable() bool

	isTerm()
}

// Constant names one individual of a population.
type Constant string

// String returns the constant's name.
func (c Constant) String() string { return string(c) }

// Equal reports whether other is the same constant.
func (c Constant) Equal(other Term) bool {
	o, ok := other.(Constant)
	return ok && o == c
}

// IsVariable always returns false for constants.
func (Constant) IsVariable() bool { return false }

func (Constant) isTerm() {}

// Population is an ordered set of distinct constants.
type Population struct {
	individuals []Constant
}

// NewPopulation builds a population from names, dropping duplicates and
// keeping first-occurrence order.
func NewPopulation(names ...string) Population {
	cs := make([]Constant, len(names))
	for i, n := range names {
		cs[i] = Constant(n)
	}
	return PopulationOf(cs...)
}

// PopulationOf builds a population from constants, dropping duplicates.
func PopulationOf(individuals ...Constant) Population {
	seen := make(map[Constant]struct{}, len(individuals))
	out := make([]Constant, 0, len(individuals))
	for _, c := range individuals {
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return Population{individuals: out}
}

// Size returns the number of individuals.
func (p Population) Size() int { return len(p.individuals) }

// Contains reports whether c belongs to the population.
func (p Population) Contains(c Constant) bool {
	return p.Index(c) >= 0
}

// Index returns the position of c, or -1.
func (p Population) Index(c Constant) int {
	for i, x := range p.individuals {
		if x == c {
			return i
		}
	}
	return -1
}

// At returns the i-th individual.
func (p Population) At(i int) Constant { return p.individuals[i] }

// Individuals returns a copy of the individuals in order.
func (p Population) Individuals() []Constant {
	out := make([]Constant, len(p.individuals))
	copy(out, p.individuals)
	return out
}

// Equal reports whether both populations hold the same individuals in the
// same order.
func (p Population) Equal(other Population) bool {
	if len(p.individuals) != len(other.individuals) {
		return false
	}
	for i := range p.individuals {
		if p.individuals[i] != other.individuals[i] {
			return false
		}
	}
	return true
}

// String renders the population as {a, b, c}.
func (p Population) String() string {
	parts := make([]string, len(p.individuals))
	for i, c := range p.individuals {
		parts[i] = string(c)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// LogicalVariable is a placeholder ranging over a finite population.
// Two logical variables are equal when their names are equal.
type LogicalVariable struct {
	name       string
	population Population
}

// NewLogicalVariable creates a logical variable over population.
func NewLogicalVariable(name string, population Population) LogicalVariable {
	return LogicalVariable{name: name, population: population}
}

// Name returns the variable's name.
func (v LogicalVariable) Name() string { return v.name }

// Population returns the variable's population.
func (v LogicalVariable) Population() Population { return v.population }

// String returns the variable's name.
func (v LogicalVariable) String() string { return v.name }

// Equal reports whether other is a logical variable with the same name.
func (v LogicalVariable) Equal(other Term) bool {
	o, ok := other.(LogicalVariable)
	return ok && o.name == v.name
}

// IsVariable always returns true for logical variables.
func (LogicalVariable) IsVariable() bool { return true }

// Rename returns a variable with the same population and a new name.
func (v LogicalVariable) Rename(name string) LogicalVariable {
	return LogicalVariable{name: name, population: v.population}
}

func (LogicalVariable) isTerm() {}

// termKey distinguishes a constant from a variable of the same name.
func termKey(t Term) string {
	if t.IsVariable() {
		return "?" + t.String()
	}
	return t.String()
}

// variableSet is an insertion-ordered set of logical variables.
type variableSet struct {
	order []LogicalVariable
	index map[string]int
}

func newVariableSet(vars ...LogicalVariable) *variableSet {
	s := &variableSet{index: make(map[string]int)}
	for _, v := range vars {
		s.add(v)
	}
	return s
}

func (s *variableSet) add(v LogicalVariable) {
	if _, ok := s.index[v.name]; ok {
		return
	}
	s.index[v.name] = len(s.order)
	s.order = append(s.order, v)
}

func (s *variableSet) contains(name string) bool {
	_, ok := s.index[name]
	return ok
}

func (s *variableSet) list() []LogicalVariable {
	out := make([]LogicalVariable, len(s.order))
	copy(out, s.order)
	return out
}

// variablesOf returns the logical variables among terms, deduplicated.
func variablesOf(terms []Term) []LogicalVariable {
	s := newVariableSet()
	for _, t := range terms {
		if lv, ok := t.(LogicalVariable); ok {
			s.add(lv)
		}
	}
	return s.order
}

func containsVariable(vars []LogicalVariable, name string) bool {
	for _, v := range vars {
		if v.name == name {
			return true
		}
	}
	return false
}
