package orchestrator

import (
	"fmt"
	"strconv"
	"strings"
)

// FailurePolicy decides whether a run with some failed cells still counts
// as a success.
type FailurePolicy interface {
	Name() string
	Success(failedCells, totalCells int) bool
}

// AnyFailure fails the run if any cell failed. It is the default.
type AnyFailure struct{}

func (AnyFailure) Name() string { return "any" }

func (AnyFailure) Success(failed, _ int) bool { return failed == 0 }

// MaxFailedCells tolerates up to N failed cells.
type MaxFailedCells struct {
	N int
}

func (p MaxFailedCells) Name() string { return fmt.Sprintf("max:%d", p.N) }

func (p MaxFailedCells) Success(failed, _ int) bool { return failed <= p.N }

// ParseFailurePolicy accepts "any" or "max:N".
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "any" {
		return AnyFailure{}, nil
	}
	if n, ok := strings.CutPrefix(s, "max:"); ok {
		v, err := strconv.Atoi(n)
		if err != nil || v < 0 {
			return nil, fmt.Errorf("failure policy %q: threshold must be a non-negative integer", s)
		}
		return MaxFailedCells{N: v}, nil
	}
	return nil, fmt.Errorf("unknown failure policy %q (want \"any\" or \"max:N\")", s)
}
