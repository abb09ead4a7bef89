package fove

import (
	"strconv"
	"strings"
)

// RangeElement is one value a Prv can take: a Boolean for ordinary Prvs, a
// Histogram for counting formulas.
type RangeElement interface {
	String() string
	Equal(other RangeElement) bool
	isRangeElement()
}

// Boolean is a truth value in the range of a boolean Prv.
type Boolean bool

const (
	False Boolean = false
	True  Boolean = true
)

// String returns "false" or "true".
func (b Boolean) String() string { return strconv.FormatBool(bool(b)) }

// Equal reports whether other is the same truth value.
func (b Boolean) Equal(other RangeElement) bool {
	o, ok := other.(Boolean)
	return ok && o == b
}

func (Boolean) isRangeElement() {}

// BooleanRange returns the range [false, true].
func BooleanRange() []RangeElement {
	return []RangeElement{False, True}
}

// Histogram counts, for each value of a Prv's range, how many ground
// instances of a population take that value.
type Histogram struct {
	counts []int
}

// NewHistogram builds a histogram from per-value counts.
func NewHistogram(counts ...int) Histogram {
	c := make([]int, len(counts))
	copy(c, counts)
	return Histogram{counts: c}
}

// Bins returns the number of range values the histogram counts.
func (h Histogram) Bins() int { return len(h.counts) }

// Count returns how many instances take the i-th range value.
func (h Histogram) Count(i int) int { return h.counts[i] }

// Counts returns a copy of the counts.
func (h Histogram) Counts() []int {
	out := make([]int, len(h.counts))
	copy(out, h.counts)
	return out
}

// Total returns the population size the histogram covers.
func (h Histogram) Total() int {
	n := 0
	for _, c := range h.counts {
		n += c
	}
	return n
}

// Increment returns a histogram with one more instance at value i.
func (h Histogram) Increment(i int) Histogram {
	out := h.Counts()
	out[i]++
	return Histogram{counts: out}
}

// Multinomial returns Total()! / prod(Count(i)!), the number of ground
// assignments that share this histogram.
func (h Histogram) Multinomial() float64 {
	result := 1.0
	remaining := h.Total()
	for _, c := range h.counts {
		result *= binomial(remaining, c)
		remaining -= c
	}
	return result
}

// String renders the histogram as {c0,c1,...}.
func (h Histogram) String() string {
	parts := make([]string, len(h.counts))
	for i, c := range h.counts {
		parts[i] = strconv.Itoa(c)
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// Equal reports whether other is a histogram with the same counts.
func (h Histogram) Equal(other RangeElement) bool {
	o, ok := other.(Histogram)
	if !ok || len(o.counts) != len(h.counts) {
		return false
	}
	for i := range h.counts {
		if h.counts[i] != o.counts[i] {
			return false
		}
	}
	return true
}

func (Histogram) isRangeElement() {}

// Histograms enumerates every histogram of total instances over bins
// values. The first bin counts down from total, so for a boolean range the
// order is by increasing number of true instances.
func Histograms(bins, total int) []RangeElement {
	var out []RangeElement
	counts := make([]int, bins)
	var fill func(bin, remaining int)
	fill = func(bin, remaining int) {
		if bin == bins-1 {
			counts[bin] = remaining
			out = append(out, NewHistogram(counts...))
			return
		}
		for c := remaining; c >= 0; c-- {
			counts[bin] = c
			fill(bin+1, remaining-c)
		}
	}
	if bins == 0 {
		return []RangeElement{NewHistogram()}
	}
	fill(0, total)
	return out
}

// binomial returns C(n, k) as a float.
func binomial(n, k int) float64 {
	if k < 0 || k > n {
		return 0
	}
	if k > n-k {
		k = n - k
	}
	result := 1.0
	for i := 1; i <= k; i++ {
		result = result * float64(n-k+i) / float64(i)
	}
	return result
}

// multichoose returns the number of histograms of n instances over k values.
func multichoose(n, k int) float64 {
	if k == 0 {
		return 1
	}
	return binomial(n+k-1, k-1)
}

// rangeIndex returns the position of e in rng, or -1.
func rangeIndex(rng []RangeElement, e RangeElement) int {
	for i, x := range rng {
		if x.Equal(e) {
			return i
		}
	}
	return -1
}

func rangesEqual(a, b []RangeElement) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func rangeString(rng []RangeElement) string {
	parts := make([]string, len(rng))
	for i, e := range rng {
		parts[i] = e.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
