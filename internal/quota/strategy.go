package quota

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/abhisek/qbankgen/internal/bank"
)

// DifficultyStrategy splits a sub-skill's per-mode target across the three
// difficulty levels. Index 0 is Easy.
type DifficultyStrategy interface {
	Name() string
	Split(n int) [3]int
}

// Balanced gives each level n/3 and hands the remainder to the lowest
// levels first: 7 → 3/2/2, 8 → 3/3/2.
type Balanced struct{}

func (Balanced) Name() string { return "balanced" }

func (Balanced) Split(n int) [3]int {
	var out [3]int
	copy(out[:], Split(n, 3))
	return out
}

// Weighted splits proportionally to the weights using largest remainders.
// Ties go to the lower difficulty.
type Weighted struct {
	Easy, Medium, Hard int
}

func (w Weighted) Name() string {
	return fmt.Sprintf("weighted:%d,%d,%d", w.Easy, w.Medium, w.Hard)
}

func (w Weighted) Split(n int) [3]int {
	weights := [3]int{w.Easy, w.Medium, w.Hard}
	total := weights[0] + weights[1] + weights[2]
	if total <= 0 || n <= 0 {
		return Balanced{}.Split(n)
	}

	var out, rems [3]int
	assigned := 0
	for i, wt := range weights {
		out[i] = n * wt / total
		rems[i] = n * wt % total
		assigned += out[i]
	}
	for left := n - assigned; left > 0; left-- {
		best := 0
		for i := 1; i < 3; i++ {
			if rems[i] > rems[best] {
				best = i
			}
		}
		out[best]++
		rems[best] = -1
	}
	return out
}

// ParseStrategy accepts "balanced" (or "") and "weighted:E,M,H".
func ParseStrategy(s string) (DifficultyStrategy, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "balanced" {
		return Balanced{}, nil
	}
	raw, ok := strings.CutPrefix(s, "weighted:")
	if !ok {
		return nil, fmt.Errorf("unknown difficulty strategy %q", s)
	}
	parts := strings.Split(raw, ",")
	if len(parts) != 3 {
		return nil, fmt.Errorf("weighted strategy needs 3 weights, got %q", raw)
	}
	var w [3]int
	sum := 0
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || v < 0 {
			return nil, fmt.Errorf("invalid weight %q in %q", p, s)
		}
		w[i] = v
		sum += v
	}
	if sum == 0 {
		return nil, fmt.Errorf("weighted strategy %q has no positive weight", s)
	}
	return Weighted{Easy: w[0], Medium: w[1], Hard: w[2]}, nil
}

// Cell is a quota cell with its target.
type Cell struct {
	bank.CellKey
	Target int
}

// Cells expands q into quota cells for each mode: modes in the given order,
// then sub-skills in quota order, then difficulty lowest first. Every mode
// receives the full section quota.
func Cells(q *Quota, modes []bank.TestMode, strategy DifficultyStrategy) []Cell {
	if strategy == nil {
		strategy = Balanced{}
	}
	var cells []Cell
	for _, mode := range modes {
		for _, t := range q.SubSkills {
			split := strategy.Split(t.Count)
			for i, d := range bank.Difficulties {
				cells = append(cells, Cell{
					CellKey: bank.CellKey{
						TestType:   q.TestType,
						Section:    q.Section,
						SubSkill:   t.SubSkill,
						Difficulty: d,
						Mode:       mode,
					},
					Target: split[i],
				})
			}
		}
	}
	return cells
}
