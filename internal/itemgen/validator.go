package itemgen

import (
	"fmt"

	"github.com/abhisek/qbankgen/internal/bank"
)

// Severity of a validation finding.
type Severity int

const (
	// Warning findings are surfaced on the item but do not fail it, unless
	// strict validation is on.
	Warning Severity = iota
	// Error findings always fail the attempt.
	Error
)

// Finding is one problem reported by a validator.
type Finding struct {
	Severity Severity
	Message  string
}

// Validator checks a generated item. Implementations should be stateless
// and safe for concurrent use. A validator may canonicalize the item (for
// example, snap a correct answer to the option it matches) and report a
// warning saying so.
type Validator interface {
	// Name returns a short identifier for error messages and logging,
	// e.g. "structural" or "answer".
	Name() string

	Validate(it *bank.Item, req bank.GenerationRequest) []Finding
}

// ValidationError describes why an item failed validation.
type ValidationError struct {
	Validator string // Name of the validator that failed
	Message   string // Human-readable description of the failure
	Retryable bool   // Whether regeneration is likely to fix this
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validator %q: %s", e.Validator, e.Message)
}

// runValidators applies vs in order. The first error (or, in strict mode,
// the first warning) stops the chain. Warnings are returned prefixed with
// the validator name.
func runValidators(vs []Validator, it *bank.Item, req bank.GenerationRequest, strict bool) ([]string, *ValidationError) {
	var warnings []string
	for _, v := range vs {
		for _, f := range v.Validate(it, req) {
			if f.Severity == Error || strict {
				return warnings, &ValidationError{Validator: v.Name(), Message: f.Message, Retryable: true}
			}
			warnings = append(warnings, v.Name()+": "+f.Message)
		}
	}
	return warnings, nil
}

func errorf(format string, args ...any) Finding {
	return Finding{Severity: Error, Message: fmt.Sprintf(format, args...)}
}

func warnf(format string, args ...any) Finding {
	return Finding{Severity: Warning, Message: fmt.Sprintf(format, args...)}
}
