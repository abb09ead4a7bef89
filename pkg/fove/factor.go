package fove

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Factor is a table of non-negative values over an ordered list of Prvs.
// Tuples are mixed-radix encoded, most-significant Prv first, so with
// schema [x1..xn] the last Prv varies fastest. Factors are immutable.
type Factor struct {
	vars    []Prv
	values  []float64
	strides []int
}

// NewFactor builds a factor. len(values) must equal the product of the
// range sizes of vars.
func NewFactor(vars []Prv, values []float64) (*Factor, error) {
	size := 1
	for _, v := range vars {
		size *= v.RangeSize()
	}
	if size != len(values) {
		return nil, errors.Wrapf(ErrValueCount, "schema %s needs %d values, got %d", prvList(vars), size, len(values))
	}
	vs := make([]Prv, len(vars))
	copy(vs, vars)
	vals := make([]float64, len(values))
	copy(vals, values)
	return newFactor(vs, vals), nil
}

// MustFactor is NewFactor for tables known to be well formed; it panics on
// a value-count mismatch.
func MustFactor(vars []Prv, values []float64) *Factor {
	f, err := NewFactor(vars, values)
	if err != nil {
		panic(err)
	}
	return f
}

// ConstantFactor returns a factor with no Prvs and a single value.
func ConstantFactor(value float64) *Factor {
	return newFactor(nil, []float64{value})
}

// UniformFactor returns a factor over vars with every entry set to value.
func UniformFactor(vars []Prv, value float64) *Factor {
	size := 1
	for _, v := range vars {
		size *= v.RangeSize()
	}
	vals := make([]float64, size)
	for i := range vals {
		vals[i] = value
	}
	vs := make([]Prv, len(vars))
	copy(vs, vars)
	return newFactor(vs, vals)
}

// newFactor takes ownership of vars and values.
func newFactor(vars []Prv, values []float64) *Factor {
	strides := make([]int, len(vars))
	stride := 1
	for i := len(vars) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= vars[i].RangeSize()
	}
	return &Factor{vars: vars, values: values, strides: strides}
}

// Variables returns a copy of the schema.
func (f *Factor) Variables() []Prv {
	out := make([]Prv, len(f.vars))
	copy(out, f.vars)
	return out
}

// Values returns a copy of the value table.
func (f *Factor) Values() []float64 {
	out := make([]float64, len(f.values))
	copy(out, f.values)
	return out
}

// Size returns the number of entries.
func (f *Factor) Size() int { return len(f.values) }

// IndexOf returns the schema position of prv, or -1.
func (f *Factor) IndexOf(prv Prv) int {
	for i, v := range f.vars {
		if v.Equal(prv) {
			return i
		}
	}
	return -1
}

// Contains reports whether prv is in the schema.
func (f *Factor) Contains(prv Prv) bool { return f.IndexOf(prv) >= 0 }

// Index encodes a tuple of range positions.
func (f *Factor) Index(tuple []int) (int, error) {
	if len(tuple) == 0 {
		return 0, ErrEmptyTuple
	}
	if len(tuple) != len(f.vars) {
		return 0, errors.Wrapf(ErrIncompatibleSchema, "tuple of length %d for schema of length %d", len(tuple), len(f.vars))
	}
	idx := 0
	for i, t := range tuple {
		if t < 0 || t >= f.vars[i].RangeSize() {
			return 0, errors.Wrapf(ErrIncompatibleSchema, "position %d out of range for %s", t, f.vars[i])
		}
		idx += t * f.strides[i]
	}
	return idx, nil
}

// Tuple decodes an index into range positions.
func (f *Factor) Tuple(index int) []int {
	tuple := make([]int, len(f.vars))
	for i := range f.vars {
		tuple[i] = (index / f.strides[i]) % f.vars[i].RangeSize()
	}
	return tuple
}

// Get returns the value at index.
func (f *Factor) Get(index int) float64 { return f.values[index] }

// GetTuple returns the value at tuple.
func (f *Factor) GetTuple(tuple []int) (float64, error) {
	idx, err := f.Index(tuple)
	if err != nil {
		return 0, err
	}
	return f.values[idx], nil
}

// Set returns a factor whose entry at tuple is value.
func (f *Factor) Set(tuple []int, value float64) (*Factor, error) {
	idx, err := f.Index(tuple)
	if err != nil {
		return nil, err
	}
	vals := f.Values()
	vals[idx] = value
	return newFactor(f.vars, vals), nil
}

// IsConstant reports whether f has no Prvs.
func (f *Factor) IsConstant() bool { return len(f.vars) == 0 }

func (f *Factor) allOnes() bool {
	for _, v := range f.values {
		if v != 1 {
			return false
		}
	}
	return true
}

// neutralFor reports whether multiplying g by f leaves g unchanged: f is the
// constant 1, or all ones over Prvs that g already has.
func (f *Factor) neutralFor(g *Factor) bool {
	if !f.allOnes() {
		return false
	}
	for _, v := range f.vars {
		if !g.Contains(v) {
			return false
		}
	}
	return true
}

// commonVariables scans a in order and records, for every Prv also in b,
// its position in a (row 0) and in b (row 1).
func commonVariables(a, b []Prv) [2][]int {
	var m [2][]int
	for i, x := range a {
		for j, y := range b {
			if x.Equal(y) {
				m[0] = append(m[0], i)
				m[1] = append(m[1], j)
				break
			}
		}
	}
	return m
}

func checkCompatible(a, b []Prv) error {
	for _, x := range a {
		for _, y := range b {
			if x.String() == y.String() && !x.Equal(y) {
				return errors.Wrapf(ErrIncompatibleSchema, "%s appears with ranges %s and %s", x, rangeString(x.Range()), rangeString(y.Range()))
			}
		}
	}
	return nil
}

// Multiply returns the product of f and g over the ordered union of both
// schemas: f's Prvs first, then g's Prvs that f lacks.
func (f *Factor) Multiply(g *Factor) (*Factor, error) {
	if g.neutralFor(f) {
		return f, nil
	}
	if f.neutralFor(g) {
		return g, nil
	}
	if err := checkCompatible(f.vars, g.vars); err != nil {
		return nil, err
	}
	common := commonVariables(g.vars, f.vars)
	vars := make([]Prv, len(f.vars), len(f.vars)+len(g.vars))
	copy(vars, f.vars)
	gPos := make([]int, len(g.vars))
	next := 0
	for j, v := range g.vars {
		if next < len(common[0]) && common[0][next] == j {
			gPos[j] = common[1][next]
			next++
			continue
		}
		gPos[j] = len(vars)
		vars = append(vars, v)
	}
	size := 1
	for _, v := range vars {
		size *= v.RangeSize()
	}
	values := make([]float64, size)
	tuple := make([]int, len(vars))
	for idx := 0; idx < size; idx++ {
		fi := 0
		for i := range f.vars {
			fi += tuple[i] * f.strides[i]
		}
		gi := 0
		for j := range g.vars {
			gi += tuple[gPos[j]] * g.strides[j]
		}
		values[idx] = f.values[fi] * g.values[gi]
		advance(tuple, vars)
	}
	return newFactor(vars, values), nil
}

// advance increments a tuple as an odometer, last position fastest.
func advance(tuple []int, vars []Prv) {
	for i := len(tuple) - 1; i >= 0; i-- {
		tuple[i]++
		if tuple[i] < vars[i].RangeSize() {
			return
		}
		tuple[i] = 0
	}
}

// SumOut marginalizes prv, weighting each of its values by prv.Correction.
// It returns f unchanged when prv is not in the schema.
func (f *Factor) SumOut(prv Prv) *Factor {
	pos := f.IndexOf(prv)
	if pos < 0 {
		return f
	}
	v := f.vars[pos]
	radix := v.RangeSize()
	stride := f.strides[pos]
	vars := make([]Prv, 0, len(f.vars)-1)
	vars = append(vars, f.vars[:pos]...)
	vars = append(vars, f.vars[pos+1:]...)
	corrections := make([]float64, radix)
	for i := range corrections {
		corrections[i] = v.Correction(i)
	}
	values := make([]float64, len(f.values)/radix)
	for idx, val := range f.values {
		high := idx / (stride * radix)
		low := idx % stride
		digit := (idx / stride) % radix
		values[high*stride+low] += val * corrections[digit]
	}
	return newFactor(vars, values)
}

// Pow raises every value to the power p/q.
func (f *Factor) Pow(p, q int) *Factor {
	if p == q {
		return f
	}
	exp := float64(p) / float64(q)
	values := make([]float64, len(f.values))
	for i, v := range f.values {
		values[i] = math.Pow(v, exp)
	}
	return newFactor(f.vars, values)
}

// Scale multiplies every value by k.
func (f *Factor) Scale(k float64) *Factor {
	values := make([]float64, len(f.values))
	for i, v := range f.values {
		values[i] = v * k
	}
	return newFactor(f.vars, values)
}

// Reorder returns f re-projected onto reference's Prv order. Both factors
// must have the same set of Prvs.
func (f *Factor) Reorder(reference *Factor) (*Factor, error) {
	return f.ReorderTo(reference.vars)
}

// ReorderTo returns f re-projected onto the given Prv order.
func (f *Factor) ReorderTo(order []Prv) (*Factor, error) {
	if len(order) != len(f.vars) {
		return nil, errors.Wrapf(ErrIncompatibleSchema, "cannot reorder %s as %s", prvList(f.vars), prvList(order))
	}
	common := commonVariables(order, f.vars)
	if len(common[0]) != len(order) {
		return nil, errors.Wrapf(ErrIncompatibleSchema, "cannot reorder %s as %s", prvList(f.vars), prvList(order))
	}
	vars := make([]Prv, len(order))
	copy(vars, order)
	values := make([]float64, len(f.values))
	tuple := make([]int, len(vars))
	for idx := range values {
		src := 0
		for k, i := range common[0] {
			src += tuple[i] * f.strides[common[1][k]]
		}
		values[idx] = f.values[src]
		advance(tuple, vars)
	}
	return newFactor(vars, values), nil
}

// Apply substitutes logical variables in every Prv. Prvs that become equal
// are merged: the result keeps the first occurrence and the entries where
// the merged positions agree.
func (f *Factor) Apply(sub Substitution) (*Factor, error) {
	applied := make([]Prv, len(f.vars))
	for i, v := range f.vars {
		p, err := v.Apply(sub)
		if err != nil {
			return nil, err
		}
		applied[i] = p
	}
	rep := make([]int, len(applied))
	var vars []Prv
	for i, p := range applied {
		rep[i] = -1
		for k, q := range vars {
			if q.Equal(p) {
				rep[i] = k
				break
			}
		}
		if rep[i] < 0 {
			rep[i] = len(vars)
			vars = append(vars, p)
		}
	}
	if len(vars) == len(applied) {
		return newFactor(applied, f.values), nil
	}
	size := 1
	for _, v := range vars {
		size *= v.RangeSize()
	}
	values := make([]float64, size)
	tuple := make([]int, len(vars))
	for idx := range values {
		src := 0
		for i := range f.vars {
			src += tuple[rep[i]] * f.strides[i]
		}
		values[idx] = f.values[src]
		advance(tuple, vars)
	}
	return newFactor(vars, values), nil
}

// Sum returns the total of all entries.
func (f *Factor) Sum() float64 {
	total := 0.0
	for _, v := range f.values {
		total += v
	}
	return total
}

// Normalize scales the entries to sum to one. A factor summing to zero is
// returned unchanged.
func (f *Factor) Normalize() *Factor {
	total := f.Sum()
	if total == 0 {
		return f
	}
	return f.Scale(1 / total)
}

// Equal reports whether both factors have the same schema order and values.
func (f *Factor) Equal(other *Factor) bool {
	return f.ApproxEqual(other, 0)
}

// ApproxEqual is Equal with an absolute tolerance on values.
func (f *Factor) ApproxEqual(other *Factor, tolerance float64) bool {
	if len(f.vars) != len(other.vars) || len(f.values) != len(other.values) {
		return false
	}
	for i := range f.vars {
		if !f.vars[i].Equal(other.vars[i]) {
			return false
		}
	}
	for i := range f.values {
		if math.Abs(f.values[i]-other.values[i]) > tolerance {
			return false
		}
	}
	return true
}

// String renders the factor as one row per entry.
func (f *Factor) String() string {
	var b strings.Builder
	for _, v := range f.vars {
		b.WriteString(v.String())
		b.WriteString(" | ")
	}
	b.WriteString("value\n")
	tuple := make([]int, len(f.vars))
	for _, val := range f.values {
		for i, v := range f.vars {
			b.WriteString(v.Range()[tuple[i]].String())
			b.WriteString(" | ")
		}
		b.WriteString(strconv.FormatFloat(val, 'g', 6, 64))
		b.WriteByte('\n')
		advance(tuple, f.vars)
	}
	return b.String()
}

func prvList(vars []Prv) string {
	parts := make([]string, len(vars))
	for i, v := range vars {
		parts[i] = v.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
