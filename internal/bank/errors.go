package bank

import (
	"errors"
	"fmt"
)

// ConfigInconsistency reports that a blueprint's declared total disagrees
// with the total derived from its sub-skill distribution. It is a warning:
// runs proceed with the derived per-sub-skill targets.
type ConfigInconsistency struct {
	TestType string
	Section  string
	Declared int
	Derived  int
}

// Delta is derived minus declared.
func (e *ConfigInconsistency) Delta() int {
	return e.Derived - e.Declared
}

func (e *ConfigInconsistency) Error() string {
	return fmt.Sprintf("%s/%s: total_questions is %d but the distribution derives %d (delta %+d)",
		e.TestType, e.Section, e.Declared, e.Derived, e.Delta())
}

// FailureKind classifies a GenerationFailure.
type FailureKind string

const (
	FailureModel              FailureKind = "model"
	FailureValidation         FailureKind = "validation"
	FailureDuplicateExhausted FailureKind = "duplicate_exhausted"
	FailureStore              FailureKind = "store"
)

// GenerationFailure is returned when a request could not produce a stored
// item. Attempts counts every model call made for the request.
type GenerationFailure struct {
	Kind     FailureKind
	Attempts int
	Reason   string
	Err      error
}

func (e *GenerationFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation failed (%s after %d attempts): %s: %v", e.Kind, e.Attempts, e.Reason, e.Err)
	}
	return fmt.Sprintf("generation failed (%s after %d attempts): %s", e.Kind, e.Attempts, e.Reason)
}

func (e *GenerationFailure) Unwrap() error { return e.Err }

// FailureKindOf returns the kind of the GenerationFailure in err's chain,
// or "" when there is none.
func FailureKindOf(err error) FailureKind {
	var gf *GenerationFailure
	if errors.As(err, &gf) {
		return gf.Kind
	}
	return ""
}

// IsDuplicateExhausted reports whether err is a failure caused by every
// attempt producing a duplicate.
func IsDuplicateExhausted(err error) bool {
	return FailureKindOf(err) == FailureDuplicateExhausted
}

// ErrUnknownSection is returned for a (test type, section) pair that the
// catalog does not define.
type ErrUnknownSection struct {
	TestType string
	Section  string
}

func (e *ErrUnknownSection) Error() string {
	if e.Section == "" {
		return fmt.Sprintf("unknown test type %q", e.TestType)
	}
	return fmt.Sprintf("unknown section %q for test type %q", e.Section, e.TestType)
}
