// Package netfile reads first-order network descriptions written in YAML.
//
// A description declares the logical variables with their populations, the
// parfactors and aggregation parfactors of the model, and the query:
//
//	logvars:
//	  Lot: [lot1, lot2, lot3]
//	parfactors:
//	  - prvs: [rain()]
//	    values: [0.8, 0.2]
//	  - prvs: [wet_grass(lot1)]
//	    values: [0, 1]
//	aggregations:
//	  - parent: matched(P)
//	    child: won()
//	    operator: or
//	    values: [0.9, 0.1]
//	query:
//	  prv: wet_grass(Lot)
//	  constraints: ["Lot != lot1"]
//
// Every Prv is boolean. An argument naming a declared logical variable is that
// variable; any other argument is a constant.
package netfile

import (
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/gitrdm/gofove/pkg/fove"
)

// File is the YAML layout of a network description.
type File struct {
	Name         string              `yaml:"name"`
	LogVars      map[string][]string `yaml:"logvars"`
	Parfactors   []ParfactorSpec     `yaml:"parfactors"`
	Aggregations []AggregationSpec   `yaml:"aggregations"`
	Query        QuerySpec           `yaml:"query"`
}

// ParfactorSpec is one standard parfactor: its Prvs, inequality constraints
// and table values in row-major order.
type ParfactorSpec struct {
	Prvs        []string  `yaml:"prvs"`
	Constraints []string  `yaml:"constraints"`
	Values      []float64 `yaml:"values"`
}

// AggregationSpec is one aggregation parfactor. Extra holds the constraints
// on the logical variable that is aggregated away.
type AggregationSpec struct {
	Parent      string    `yaml:"parent"`
	Child       string    `yaml:"child"`
	Operator    string    `yaml:"operator"`
	Values      []float64 `yaml:"values"`
	Constraints []string  `yaml:"constraints"`
	Extra       []string  `yaml:"extra"`
}

// QuerySpec names the queried Prv and the constraints restricting it.
type QuerySpec struct {
	Prv         string   `yaml:"prv"`
	Constraints []string `yaml:"constraints"`
}

// Network is a decoded model ready for inference.
type Network struct {
	Name       string
	Parfactors []fove.Parfactor
	Query      fove.RandomVariableSet
}

// Load reads and decodes the description at path. Environment variables in
// the path are expanded.
func Load(path string) (*Network, error) {
	f, err := os.Open(os.ExpandEnv(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	n, err := Parse(d)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", path)
	}
	return n, nil
}

// Parse decodes a YAML network description. Unknown keys are rejected.
func Parse(data []byte) (*Network, error) {
	var file File
	if err := yaml.UnmarshalStrict(data, &file); err != nil {
		return nil, errors.Wrap(err, "decoding network")
	}
	return file.Build()
}

// Build turns the description into parfactors and a query.
func (file *File) Build() (*Network, error) {
	b := &builder{vars: make(map[string]fove.LogicalVariable, len(file.LogVars))}
	for name, individuals := range file.LogVars {
		if !isIdentifier(name) {
			return nil, errors.Errorf("logical variable name %q is not an identifier", name)
		}
		if len(individuals) == 0 {
			return nil, errors.Errorf("logical variable %s has an empty population", name)
		}
		b.vars[name] = fove.NewLogicalVariable(name, fove.NewPopulation(individuals...))
	}

	net := &Network{Name: file.Name}
	for i, spec := range file.Parfactors {
		g, err := b.parfactor(spec)
		if err != nil {
			return nil, errors.Wrapf(err, "parfactor %d", i)
		}
		net.Parfactors = append(net.Parfactors, g)
	}
	for i, spec := range file.Aggregations {
		g, err := b.aggregation(spec)
		if err != nil {
			return nil, errors.Wrapf(err, "aggregation %d", i)
		}
		net.Parfactors = append(net.Parfactors, g)
	}
	if file.Query.Prv == "" {
		return nil, errors.New("query: missing prv")
	}
	q, err := b.prv(file.Query.Prv)
	if err != nil {
		return nil, errors.Wrap(err, "query")
	}
	cs, err := b.constraints(file.Query.Constraints)
	if err != nil {
		return nil, errors.Wrap(err, "query")
	}
	net.Query = fove.NewRandomVariableSet(q, cs)
	return net, nil
}

type builder struct {
	vars map[string]fove.LogicalVariable
}

func (b *builder) parfactor(spec ParfactorSpec) (*fove.StdParfactor, error) {
	prvs := make([]fove.Prv, len(spec.Prvs))
	for i, s := range spec.Prvs {
		p, err := b.prv(s)
		if err != nil {
			return nil, err
		}
		prvs[i] = p
	}
	cs, err := b.constraints(spec.Constraints)
	if err != nil {
		return nil, err
	}
	f, err := fove.NewFactor(prvs, spec.Values)
	if err != nil {
		return nil, err
	}
	return fove.NewStdParfactor(cs, f)
}

func (b *builder) aggregation(spec AggregationSpec) (*fove.AggregationParfactor, error) {
	parent, err := b.prv(spec.Parent)
	if err != nil {
		return nil, errors.Wrap(err, "parent")
	}
	child, err := b.prv(spec.Child)
	if err != nil {
		return nil, errors.Wrap(err, "child")
	}
	op, err := fove.ParseOperator(spec.Operator)
	if err != nil {
		return nil, err
	}
	cs, err := b.constraints(spec.Constraints)
	if err != nil {
		return nil, err
	}
	extra, err := b.constraints(spec.Extra)
	if err != nil {
		return nil, err
	}
	fp, err := fove.NewFactor([]fove.Prv{parent}, spec.Values)
	if err != nil {
		return nil, err
	}
	return fove.NewAggregationParfactor(parent, child, fp, op, cs, extra)
}

// prv parses "f(A, b)". A bare name is a Prv without arguments.
func (b *builder) prv(s string) (*fove.StdPrv, error) {
	s = strings.TrimSpace(s)
	name, args := s, ""
	if open := strings.IndexByte(s, '('); open >= 0 {
		if !strings.HasSuffix(s, ")") {
			return nil, errors.Errorf("prv %q: missing closing parenthesis", s)
		}
		name, args = strings.TrimSpace(s[:open]), s[open+1:len(s)-1]
	}
	if !isIdentifier(name) {
		return nil, errors.Errorf("prv %q: bad functor %q", s, name)
	}
	var params []fove.Term
	if strings.TrimSpace(args) != "" {
		for _, a := range strings.Split(args, ",") {
			t, err := b.term(a)
			if err != nil {
				return nil, errors.Wrapf(err, "prv %q", s)
			}
			params = append(params, t)
		}
	}
	return fove.NewPrv(name, params...), nil
}

func (b *builder) term(s string) (fove.Term, error) {
	s = strings.TrimSpace(s)
	if !isIdentifier(s) {
		return nil, errors.Errorf("bad argument %q", s)
	}
	if v, ok := b.vars[s]; ok {
		return v, nil
	}
	return fove.Constant(s), nil
}

// constraints parses inequalities written "X != a", "X ≠ Y".
func (b *builder) constraints(specs []string) (fove.ConstraintSet, error) {
	var out []fove.Constraint
	for _, s := range specs {
		sep := "!="
		if !strings.Contains(s, sep) {
			sep = "≠"
		}
		parts := strings.Split(s, sep)
		if len(parts) != 2 {
			return fove.ConstraintSet{}, errors.Errorf("constraint %q is not an inequality", s)
		}
		first, err := b.term(parts[0])
		if err != nil {
			return fove.ConstraintSet{}, errors.Wrapf(err, "constraint %q", s)
		}
		second, err := b.term(parts[1])
		if err != nil {
			return fove.ConstraintSet{}, errors.Wrapf(err, "constraint %q", s)
		}
		c, err := fove.NewInequality(first, second)
		if err != nil {
			return fove.ConstraintSet{}, errors.Wrapf(err, "constraint %q", s)
		}
		out = append(out, c)
	}
	return fove.NewConstraintSet(out...), nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
