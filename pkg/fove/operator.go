package fove

import (
	"strings"

	"github.com/pkg/errors"
)

// Operator is a commutative, associative binary operator over the range of
// an aggregation parfactor's child.
type Operator int

const (
	And Operator = iota
	Or
	Xor
)

// ParseOperator accepts "and", "or" or "xor" in any case.
func ParseOperator(s string) (Operator, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "and":
		return And, nil
	case "or":
		return Or, nil
	case "xor":
		return Xor, nil
	default:
		return 0, errors.Errorf("unknown aggregation operator %q", s)
	}
}

// String returns the operator name.
func (op Operator) String() string {
	switch op {
	case And:
		return "AND"
	case Or:
		return "OR"
	case Xor:
		return "XOR"
	default:
		return "UNKNOWN"
	}
}

// Identity returns the value the operator folds an empty population to.
func (op Operator) Identity() RangeElement {
	return Boolean(op == And)
}

// Apply combines two range elements.
func (op Operator) Apply(a, b RangeElement) (RangeElement, error) {
	x, okA := a.(Boolean)
	y, okB := b.(Boolean)
	if !okA || !okB {
		return nil, errors.Wrapf(ErrIncompatibleSchema, "%s is only defined on booleans, got %s and %s", op, a, b)
	}
	switch op {
	case And:
		return x && y, nil
	case Or:
		return x || y, nil
	case Xor:
		return Boolean(x != y), nil
	default:
		return nil, errors.Errorf("unknown operator %d", int(op))
	}
}

// Fold combines a whole population described by a histogram over rng.
func (op Operator) Fold(rng []RangeElement, h Histogram) (RangeElement, error) {
	acc := op.Identity()
	for i, e := range rng {
		// Idempotent operators only need one application; Xor depends on
		// parity alone.
		n := h.Count(i)
		if op == Xor {
			n %= 2
		} else if n > 1 {
			n = 1
		}
		for k := 0; k < n; k++ {
			var err error
			if acc, err = op.Apply(acc, e); err != nil {
				return nil, err
			}
		}
	}
	return acc, nil
}
