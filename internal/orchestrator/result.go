package orchestrator

import (
	"time"

	"github.com/abhisek/qbankgen/internal/bank"
)

// Phase of a section run.
type Phase string

const (
	PhasePlanning   Phase = "planning"
	PhaseGenerating Phase = "generating"
	PhaseReporting  Phase = "reporting"
	PhaseDone       Phase = "done"
)

// Progress is reported to SectionRequest.Progress as a run advances.
type Progress struct {
	Phase    Phase
	TestType string
	Section  string
	Mode     bank.TestMode

	// Cell is the cell last worked on, zero outside PhaseGenerating.
	Cell bank.CellKey

	Deficit   int // questions planned for this run
	Generated int
	Failed    int
	Passages  int
	Attempts  int
	CostUSD   float64
}

// CellResult is the per-cell diagnostic. Remaining is exactly what a
// follow-up run would try to generate for the cell.
type CellResult struct {
	Cell      bank.CellKey
	Target    int
	Existing  int
	Generated int
	Failed    int
	Remaining int
	// Unplaced is deficit no passage slot was left for.
	Unplaced int
	Reasons  []string
}

// IsFailed reports whether the cell is still short after recording
// failures or deficit that could not be placed.
func (c CellResult) IsFailed() bool {
	return c.Remaining > 0 && (c.Failed > 0 || c.Unplaced > 0)
}

// SectionResult is the outcome of one section run. It is never persisted
// as-is; a summary goes to the run history.
type SectionResult struct {
	RunID    string
	TestType string
	Section  string
	Mode     bank.TestMode
	Strategy string
	DryRun   bool

	Success   bool
	Cancelled bool

	Generated int
	Failed    int
	Passages  int

	Attempts     int
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	Elapsed      time.Duration

	Cells         []CellResult
	Warnings      []string
	Inconsistency *bank.ConfigInconsistency
}

// FailedCells counts cells that are failed per CellResult.IsFailed.
func (r *SectionResult) FailedCells() int {
	n := 0
	for _, c := range r.Cells {
		if c.IsFailed() {
			n++
		}
	}
	return n
}

// Remaining sums the unmet deficit across cells.
func (r *SectionResult) Remaining() int {
	n := 0
	for _, c := range r.Cells {
		n += c.Remaining
	}
	return n
}
