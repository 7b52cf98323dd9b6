package hmm

import "errors"

var (
	// ErrInvalidInput is returned for malformed observations, lengths or
	// state counts. It indicates a caller bug rather than a numerical issue.
	ErrInvalidInput = errors.New("hmm: invalid input")

	// ErrDimension is returned when observations don't have the feature
	// count the model was trained with.
	ErrDimension = errors.New("hmm: dimension mismatch")

	// ErrTooFewSamples is returned when there are fewer frames than states.
	ErrTooFewSamples = errors.New("hmm: fewer samples than states")

	// ErrNotConverged is returned when EM didn't converge within MaxIter.
	ErrNotConverged = errors.New("hmm: did not converge")

	// ErrDegenerate is returned when a state collapsed or the likelihood
	// stopped being finite.
	ErrDegenerate = errors.New("hmm: degenerate model")
)

// IsNumerical reports whether err is one of the failures that are expected
// when fitting too many states to too little data.
func IsNumerical(err error) bool {
	return errors.Is(err, ErrNotConverged) ||
		errors.Is(err, ErrDegenerate) ||
		errors.Is(err, ErrTooFewSamples)
}
