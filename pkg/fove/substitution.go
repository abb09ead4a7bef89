package fove

import (
	"fmt"
	"sort"
	"strings"
)

// Binding replaces a logical variable with a term.
type Binding struct {
	replaced    LogicalVariable
	replacement Term
}

// NewBinding builds replaced/replacement.
func NewBinding(replaced LogicalVariable, replacement Term) Binding {
	return Binding{replaced: replaced, replacement: replacement}
}

// Replaced returns the variable being replaced.
func (b Binding) Replaced() LogicalVariable { return b.replaced }

// Replacement returns the term put in its place.
func (b Binding) Replacement() Term { return b.replacement }

// Inequality returns the constraint replaced ≠ replacement that the residue
// of a split on this binding carries.
func (b Binding) Inequality() (Constraint, error) {
	return NewInequality(b.replaced, b.replacement)
}

// String renders the binding as X/t.
func (b Binding) String() string {
	return b.replaced.name + "/" + b.replacement.String()
}

// Substitution is a finite partial function from logical variables to terms.
// Bindings keep insertion order; each variable is replaced at most once.
type Substitution struct {
	bindings []Binding
}

// NewSubstitution builds a substitution. A later binding for an already
// bound variable replaces the earlier one.
func NewSubstitution(bindings ...Binding) Substitution {
	var s Substitution
	for _, b := range bindings {
		s = s.Add(b)
	}
	return s
}

// Len returns the number of bindings.
func (s Substitution) Len() int { return len(s.bindings) }

// IsEmpty reports whether there is no binding.
func (s Substitution) IsEmpty() bool { return len(s.bindings) == 0 }

// Bindings returns a copy of the bindings.
func (s Substitution) Bindings() []Binding {
	out := make([]Binding, len(s.bindings))
	copy(out, s.bindings)
	return out
}

// Lookup returns the replacement for the named variable.
func (s Substitution) Lookup(name string) (Term, bool) {
	for _, b := range s.bindings {
		if b.replaced.name == name {
			return b.replacement, true
		}
	}
	return nil, false
}

// Add returns a substitution that also holds b, replacing any binding of the
// same variable.
func (s Substitution) Add(b Binding) Substitution {
	out := make([]Binding, 0, len(s.bindings)+1)
	replaced := false
	for _, x := range s.bindings {
		if x.replaced.name == b.replaced.name {
			out = append(out, b)
			replaced = true
			continue
		}
		out = append(out, x)
	}
	if !replaced {
		out = append(out, b)
	}
	return Substitution{bindings: out}
}

// Without drops the binding of the named variable.
func (s Substitution) Without(name string) Substitution {
	out := make([]Binding, 0, len(s.bindings))
	for _, b := range s.bindings {
		if b.replaced.name != name {
			out = append(out, b)
		}
	}
	return Substitution{bindings: out}
}

// Apply returns the replacement of t, or t itself when unbound.
func (s Substitution) Apply(t Term) Term {
	lv, ok := t.(LogicalVariable)
	if !ok {
		return t
	}
	if r, ok := s.Lookup(lv.name); ok {
		return r
	}
	return t
}

// ApplyAll substitutes every term of terms into a new slice.
func (s Substitution) ApplyAll(terms []Term) []Term {
	out := make([]Term, len(terms))
	for i, t := range terms {
		out[i] = s.Apply(t)
	}
	return out
}

// Propagate applies b to every replacement, then adds b.
func (s Substitution) Propagate(b Binding) Substitution {
	single := Substitution{bindings: []Binding{b}}
	out := make([]Binding, len(s.bindings))
	for i, x := range s.bindings {
		out[i] = NewBinding(x.replaced, single.Apply(x.replacement))
	}
	return Substitution{bindings: out}.Add(b)
}

// Inverse swaps sides of a variable-to-variable renaming. Bindings to
// constants are dropped.
func (s Substitution) Inverse() Substitution {
	var out Substitution
	for _, b := range s.bindings {
		if lv, ok := b.replacement.(LogicalVariable); ok {
			out = out.Add(NewBinding(lv, b.replaced))
		}
	}
	return out
}

// IsRenaming reports whether every binding maps a variable to a variable
// and no two variables share an image.
func (s Substitution) IsRenaming() bool {
	images := make(map[string]struct{}, len(s.bindings))
	for _, b := range s.bindings {
		lv, ok := b.replacement.(LogicalVariable)
		if !ok {
			return false
		}
		if _, dup := images[lv.name]; dup {
			return false
		}
		images[lv.name] = struct{}{}
	}
	return true
}

// Equal reports whether both substitutions hold the same bindings.
func (s Substitution) Equal(other Substitution) bool {
	if len(s.bindings) != len(other.bindings) {
		return false
	}
	for _, b := range s.bindings {
		r, ok := other.Lookup(b.replaced.name)
		if !ok || !r.Equal(b.replacement) {
			return false
		}
	}
	return true
}

// String renders the substitution as {X/a, Y/Z}, sorted.
func (s Substitution) String() string {
	parts := make([]string, len(s.bindings))
	for i, b := range s.bindings {
		parts[i] = b.String()
	}
	sort.Strings(parts)
	return "{" + strings.Join(parts, ", ") + "}"
}

// RenamingContext hands out fresh logical variable names and remembers the
// variable each one was derived from. It replaces any process-wide name
// generator: callers thread one context through a shattering or inference
// run.
type RenamingContext struct {
	counter  int
	original map[string]string
}

// NewRenamingContext returns an empty context.
func NewRenamingContext() *RenamingContext {
	return &RenamingContext{original: make(map[string]string)}
}

// Fresh returns a copy of lv under a name never handed out before.
func (ctx *RenamingContext) Fresh(lv LogicalVariable) LogicalVariable {
	ctx.counter++
	base := ctx.Original(lv.name)
	fresh := lv.Rename(fmt.Sprintf("%s#%d", base, ctx.counter))
	ctx.original[fresh.name] = base
	return fresh
}

// Original returns the user-facing name a fresh name was derived from.
func (ctx *RenamingContext) Original(name string) string {
	if o, ok := ctx.original[name]; ok {
		return o
	}
	return name
}

// RenameApart returns a substitution mapping each variable to a fresh one.
func (ctx *RenamingContext) RenameApart(vars []LogicalVariable) Substitution {
	var s Substitution
	for _, v := range vars {
		s = s.Add(NewBinding(v, ctx.Fresh(v)))
	}
	return s
}
