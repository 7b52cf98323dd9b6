package selector

import (
	"errors"
	"fmt"
)

var (
	// ErrFit marks a candidate whose model could not be fit.
	ErrFit = errors.New("fit failed")
	// ErrScore marks a candidate whose model could not be scored.
	ErrScore = errors.New("score failed")
	// ErrSearchExhausted means no candidate in range produced a score.
	ErrSearchExhausted = errors.New("no candidate could be scored")
	// ErrTooFewSequences means a category is too small for cross-validation.
	ErrTooFewSequences = errors.New("too few sequences for cross-validation")
	// ErrFold is returned for a partition whose training and test
	// indices overlap or are empty.
	ErrFold = errors.New("invalid fold")
	// ErrConfig is returned by the constructors for unusable settings.
	ErrConfig = errors.New("invalid selector configuration")
)

// FitError is a failed fit for one state count.
type FitError struct {
	States int
	Err    error
}

func (e *FitError) Error() string {
	return fmt.Sprintf("fit with %d states: %s", e.States, e.Err)
}

func (e *FitError) Unwrap() []error {
	return []error{ErrFit, e.Err}
}

// ScoreError is a failed log-likelihood evaluation of a fitted model.
// Category names the data the model was scored against.
type ScoreError struct {
	States   int
	Category string
	Err      error
}

func (e *ScoreError) Error() string {
	return fmt.Sprintf("score %d state model on %q: %s", e.States, e.Category, e.Err)
}

func (e *ScoreError) Unwrap() []error {
	return []error{ErrScore, e.Err}
}
