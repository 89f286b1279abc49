// Package quota turns a section blueprint into concrete per-sub-skill,
// per-difficulty, per-mode question targets.
package quota

import (
	"fmt"

	"github.com/abhisek/qbankgen/internal/bank"
	"github.com/abhisek/qbankgen/internal/blueprint"
)

// Rounding resolves a ranged questions_per_passage value to one integer.
type Rounding string

const (
	// MidpointFloor uses floor((min+max)/2). It is the default.
	MidpointFloor Rounding = "floor"
	// MidpointCeil uses ceil((min+max)/2).
	MidpointCeil Rounding = "ceil"
)

// RoundingByName maps a catalog range_rounding value to a policy.
// The empty name selects MidpointFloor.
func RoundingByName(name string) (Rounding, error) {
	switch Rounding(name) {
	case "", MidpointFloor:
		return MidpointFloor, nil
	case MidpointCeil:
		return MidpointCeil, nil
	}
	return "", fmt.Errorf("unknown range rounding %q", name)
}

// ResolvePerPassage returns the number of questions each passage carries.
// Fixed values are returned as-is; ranges are resolved by policy.
func ResolvePerPassage(p blueprint.PerPassage, policy Rounding) int {
	if !p.IsRange() {
		return p.Min
	}
	sum := p.Min + p.Max
	if policy == MidpointCeil {
		return (sum + 1) / 2
	}
	return sum / 2
}

// Split divides total across n slots: every slot gets total/n and the first
// total%n slots get one more.
func Split(total, n int) []int {
	if n <= 0 {
		return nil
	}
	if total < 0 {
		total = 0
	}
	base, rem := total/n, total%n
	out := make([]int, n)
	for i := range out {
		out[i] = base
		if i < rem {
			out[i]++
		}
	}
	return out
}

// Target is one sub-skill's question budget for a single test mode.
type Target struct {
	SubSkill string
	Count    int
}

// PassageBudget is the resolved budget of one passage_distribution entry.
type PassageBudget struct {
	PassageType string
	Passages    int
	PerPassage  int
	Questions   int
	SubSkills   []Target
}

// Quota is the resolved target set for one section.
type Quota struct {
	TestType string
	Section  string
	Strategy blueprint.Strategy

	// SubSkills in first-appearance order with accumulated targets.
	SubSkills []Target
	// Passages is the per-passage-type breakdown of passage-based sections.
	Passages []PassageBudget

	Declared int
	Derived  int
	// Inconsistency is set when Derived differs from Declared. Targets
	// always follow the derived distribution.
	Inconsistency *bank.ConfigInconsistency
}

// Target returns the per-mode target of subSkill, or 0.
func (q *Quota) Target(subSkill string) int {
	for _, t := range q.SubSkills {
		if t.SubSkill == subSkill {
			return t.Count
		}
	}
	return 0
}

// Compute derives the section's targets from its blueprint.
func Compute(s *blueprint.Section) (*Quota, error) {
	q := &Quota{
		TestType: s.TestType,
		Section:  s.Name,
		Strategy: s.Strategy,
		Declared: s.TotalQuestions,
	}

	acc := newAccumulator()
	switch s.Strategy {
	case blueprint.PassageBased:
		policy, err := RoundingByName(s.RangeRounding)
		if err != nil {
			return nil, fmt.Errorf("%s/%s: %w", s.TestType, s.Name, err)
		}
		for _, g := range s.Distribution {
			per := ResolvePerPassage(g.QuestionsPerPassage, policy)
			b := PassageBudget{
				PassageType: g.PassageType,
				Passages:    g.Count,
				PerPassage:  per,
				Questions:   per * g.Count,
			}
			for i, n := range Split(b.Questions, len(g.SubSkills)) {
				b.SubSkills = append(b.SubSkills, Target{SubSkill: g.SubSkills[i], Count: n})
				acc.add(g.SubSkills[i], n)
			}
			q.Passages = append(q.Passages, b)
		}
	case blueprint.Standalone:
		explicit := 0
		var even []string
		for _, ss := range s.SubSkills {
			if ss.Count != nil {
				explicit += *ss.Count
			} else {
				even = append(even, ss.Name)
			}
		}
		shares := Split(s.TotalQuestions-explicit, len(even))
		next := 0
		for _, ss := range s.SubSkills {
			if ss.Count != nil {
				acc.add(ss.Name, *ss.Count)
				continue
			}
			acc.add(ss.Name, shares[next])
			next++
		}
	default:
		return nil, fmt.Errorf("%s/%s: unknown generation strategy %q", s.TestType, s.Name, s.Strategy)
	}

	q.SubSkills = acc.targets()
	for _, t := range q.SubSkills {
		q.Derived += t.Count
	}
	if q.Derived != q.Declared {
		q.Inconsistency = &bank.ConfigInconsistency{
			TestType: s.TestType,
			Section:  s.Name,
			Declared: q.Declared,
			Derived:  q.Derived,
		}
	}
	return q, nil
}

type accumulator struct {
	order []string
	sums  map[string]int
}

func newAccumulator() *accumulator {
	return &accumulator{sums: make(map[string]int)}
}

func (a *accumulator) add(name string, n int) {
	if _, ok := a.sums[name]; !ok {
		a.order = append(a.order, name)
	}
	a.sums[name] += n
}

func (a *accumulator) targets() []Target {
	out := make([]Target, len(a.order))
	for i, n := range a.order {
		out[i] = Target{SubSkill: n, Count: a.sums[n]}
	}
	return out
}
