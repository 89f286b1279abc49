// Package gaps compares stored inventory against quota targets. It only
// reads from the store.
package gaps

import (
	"context"
	"fmt"
	"slices"

	"github.com/abhisek/qbankgen/internal/bank"
	"github.com/abhisek/qbankgen/internal/blueprint"
	"github.com/abhisek/qbankgen/internal/quota"
)

// Counter is the slice of the content store the reporter needs.
type Counter interface {
	CountExisting(ctx context.Context, cell bank.CellKey) (int, error)
}

// Row is one quota cell.
type Row struct {
	Mode       bank.TestMode   `json:"mode"`
	SubSkill   string          `json:"sub_skill"`
	Difficulty bank.Difficulty `json:"difficulty"`
	Target     int             `json:"target"`
	Existing   int             `json:"existing"`
	Deficit    int             `json:"deficit"`
	Completion float64         `json:"completion_pct"`
}

// Totals is a rollup of rows.
type Totals struct {
	Target     int     `json:"target"`
	Existing   int     `json:"existing"`
	Deficit    int     `json:"deficit"`
	Completion float64 `json:"completion_pct"`

	// covered is existing capped at target, summed per cell.
	covered int
}

func (t *Totals) add(target, existing int) {
	t.Target += target
	t.Existing += existing
	t.Deficit += Deficit(target, existing)
	t.covered += min(existing, target)
	t.Completion = percent(t.covered, t.Target)
}

// Report is the detailed gap report of one section.
type Report struct {
	TestType      string                    `json:"test_type"`
	Section       string                    `json:"section"`
	Strategy      string                    `json:"strategy"`
	Modes         []bank.TestMode           `json:"modes"`
	Rows          []Row                     `json:"rows"`
	Totals        Totals                    `json:"totals"`
	Inconsistency *bank.ConfigInconsistency `json:"inconsistency,omitempty"`
}

// SectionSummary is one section's line in a product summary.
type SectionSummary struct {
	Section string `json:"section"`
	Totals
}

// Summary rolls a product up per section.
type Summary struct {
	TestType string           `json:"test_type"`
	Modes    []bank.TestMode  `json:"modes"`
	Sections []SectionSummary `json:"sections"`
	Totals   Totals           `json:"totals"`
	Warnings []string         `json:"warnings,omitempty"`
}

// Reporter builds gap reports.
type Reporter struct {
	catalog  *blueprint.Catalog
	counter  Counter
	strategy quota.DifficultyStrategy
}

// New creates a Reporter. A nil strategy means balanced.
func New(catalog *blueprint.Catalog, counter Counter, strategy quota.DifficultyStrategy) *Reporter {
	if strategy == nil {
		strategy = quota.Balanced{}
	}
	return &Reporter{catalog: catalog, counter: counter, strategy: strategy}
}

// Deficit is target minus existing, floored at zero.
func Deficit(target, existing int) int {
	return max(0, target-existing)
}

// Completion is the percentage of target covered by existing, with
// existing capped at target. A zero target is 100% complete.
func Completion(target, existing int) float64 {
	return percent(min(existing, target), target)
}

func percent(covered, target int) float64 {
	if target <= 0 {
		return 100
	}
	return float64(covered) * 100 / float64(target)
}

// Report builds the sub-skill by difficulty breakdown of one section. Empty
// modes means every mode of the product.
func (r *Reporter) Report(ctx context.Context, testType, section string, modes []bank.TestMode) (*Report, error) {
	s, err := r.catalog.Section(testType, section)
	if err != nil {
		return nil, err
	}
	modes, err = r.modes(testType, modes)
	if err != nil {
		return nil, err
	}
	q, err := quota.Compute(s)
	if err != nil {
		return nil, err
	}

	rep := &Report{
		TestType:      testType,
		Section:       section,
		Strategy:      r.strategy.Name(),
		Modes:         modes,
		Inconsistency: q.Inconsistency,
	}
	for _, c := range quota.Cells(q, modes, r.strategy) {
		existing, err := r.counter.CountExisting(ctx, c.CellKey)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", c.CellKey, err)
		}
		rep.Rows = append(rep.Rows, Row{
			Mode:       c.Mode,
			SubSkill:   c.SubSkill,
			Difficulty: c.Difficulty,
			Target:     c.Target,
			Existing:   existing,
			Deficit:    Deficit(c.Target, existing),
			Completion: Completion(c.Target, existing),
		})
		rep.Totals.add(c.Target, existing)
	}
	return rep, nil
}

// Summary rolls every section of a product up to one line each.
func (r *Reporter) Summary(ctx context.Context, testType string, modes []bank.TestMode) (*Summary, error) {
	p, err := r.catalog.Product(testType)
	if err != nil {
		return nil, err
	}
	modes, err = r.modes(testType, modes)
	if err != nil {
		return nil, err
	}

	sum := &Summary{TestType: testType, Modes: modes}
	for _, s := range p.Sections {
		rep, err := r.Report(ctx, testType, s.Name, modes)
		if err != nil {
			return nil, err
		}
		ss := SectionSummary{Section: s.Name}
		for _, row := range rep.Rows {
			ss.add(row.Target, row.Existing)
			sum.Totals.add(row.Target, row.Existing)
		}
		sum.Sections = append(sum.Sections, ss)
		if rep.Inconsistency != nil {
			sum.Warnings = append(sum.Warnings, rep.Inconsistency.Error())
		}
	}
	return sum, nil
}

func (r *Reporter) modes(testType string, want []bank.TestMode) ([]bank.TestMode, error) {
	all, err := r.catalog.Modes(testType)
	if err != nil {
		return nil, err
	}
	if len(want) == 0 {
		return all, nil
	}
	for _, m := range want {
		if !slices.Contains(all, m) {
			return nil, fmt.Errorf("test mode %q is not defined for %s", m, testType)
		}
	}
	return want, nil
}
