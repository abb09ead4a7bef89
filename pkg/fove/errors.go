package fove

import "github.com/pkg/errors"

// Construction errors.
var (
	// ErrValueCount is returned when a factor's value table does not hold
	// exactly one value per joint assignment of its Prvs.
	ErrValueCount = errors.New("factor value count does not match the product of range sizes")

	// ErrEmptyTuple is returned when an index is requested for an empty tuple.
	ErrEmptyTuple = errors.New("empty tuple has no index")

	// ErrExtraVariable is returned when an aggregation parfactor's parent does
	// not have exactly one logical variable absent from its child.
	ErrExtraVariable = errors.New("aggregation parent must have exactly one extra logical variable")
)

// Algebra errors.
var (
	ErrIncompatibleSchema = errors.New("incompatible factor schemas")
	ErrInvalidConstraint  = errors.New("invalid constraint")
	ErrNotBindable        = errors.New("constraint cannot be converted to a binding")
	ErrNotSplittable      = errors.New("parfactor is not splittable on substitution")
	ErrNotMultiplicable   = errors.New("parfactors are not multiplicable")
	ErrNotCountable       = errors.New("logical variable cannot be counted")
	ErrNotExpandable      = errors.New("counting formula cannot be expanded")
	ErrNotEliminable      = errors.New("random variable cannot be summed out")
)

// Scheduling errors.
var (
	// ErrNoApplicableOperation means eliminable variables remain but no
	// macro-operation has a finite cost; a shattering precondition is broken.
	ErrNoApplicableOperation = errors.New("no applicable macro-operation while eliminable variables remain")

	// ErrFinalDistribution means more than one parfactor survived the final
	// multiplication.
	ErrFinalDistribution = errors.New("final distribution does not reduce to a single parfactor")

	// ErrStepLimit is returned when Config.MaxSteps scheduler steps ran
	// without convergence.
	ErrStepLimit = errors.New("step limit reached before convergence")
)
