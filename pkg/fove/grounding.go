package fove

// groundCount returns the number of substitutions of constants for vars
// that satisfy every constraint in cs mentioning only vars. Variables tied
// by a variable inequality are enumerated; the others are counted directly.
func groundCount(vars []LogicalVariable, cs ConstraintSet) int {
	cs = cs.RestrictTo(vars)
	linked := newVariableSet()
	for _, c := range cs.items {
		if c.first.IsVariable() && c.second.IsVariable() {
			linked.add(c.first.(LogicalVariable))
			linked.add(c.second.(LogicalVariable))
		}
	}
	total := 1
	for _, v := range vars {
		if linked.contains(v.name) {
			continue
		}
		total *= len(allowedConstants(v, cs))
		if total == 0 {
			return 0
		}
	}
	if len(linked.order) == 0 {
		return total
	}
	return total * enumerateLinked(linked.order, cs)
}

// allowedConstants returns the individuals of v not excluded by v ≠ c.
func allowedConstants(v LogicalVariable, cs ConstraintSet) []Constant {
	excluded := make(map[Constant]struct{})
	for _, c := range cs.ExcludedConstants(v.name) {
		excluded[c] = struct{}{}
	}
	var out []Constant
	for _, c := range v.population.individuals {
		if _, ok := excluded[c]; !ok {
			out = append(out, c)
		}
	}
	return out
}

func enumerateLinked(vars []LogicalVariable, cs ConstraintSet) int {
	domains := make([][]Constant, len(vars))
	for i, v := range vars {
		domains[i] = allowedConstants(v, cs)
	}
	position := make(map[string]int, len(vars))
	for i, v := range vars {
		position[v.name] = i
	}
	assigned := make([]Constant, len(vars))
	var count func(i int) int
	count = func(i int) int {
		if i == len(vars) {
			return 1
		}
		n := 0
		for _, c := range domains[i] {
			ok := true
			for _, other := range cs.UnequalVariables(vars[i].name) {
				if j := position[other.name]; j < i && assigned[j] == c {
					ok = false
					break
				}
			}
			if !ok {
				continue
			}
			assigned[i] = c
			n += count(i + 1)
		}
		return n
	}
	return count(0)
}

// groundings enumerates every substitution counted by groundCount.
func groundings(vars []LogicalVariable, cs ConstraintSet) []Substitution {
	cs = cs.RestrictTo(vars)
	var out []Substitution
	var walk func(i int, sub Substitution)
	walk = func(i int, sub Substitution) {
		if i == len(vars) {
			out = append(out, sub)
			return
		}
		v := vars[i]
		for _, c := range allowedConstants(v, cs) {
			ok := true
			for _, other := range cs.UnequalVariables(v.name) {
				if r, bound := sub.Lookup(other.name); bound && r.Equal(c) {
					ok = false
					break
				}
			}
			if ok {
				walk(i+1, sub.Add(NewBinding(v, c)))
			}
		}
	}
	walk(0, Substitution{})
	return out
}

// gcd returns the greatest common divisor of two non-negative integers.
func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// ratio reduces p/q.
func ratio(p, q int) (int, int) {
	if q == 0 {
		return p, q
	}
	g := gcd(p, q)
	if g == 0 {
		return p, q
	}
	return p / g, q / g
}
