package quota

import (
	"testing"

	"github.com/abhisek/qbankgen/internal/bank"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalanced_Split(t *testing.T) {
	tests := []struct {
		n    int
		want [3]int
	}{
		{0, [3]int{0, 0, 0}},
		{1, [3]int{1, 0, 0}},
		{2, [3]int{1, 1, 0}},
		{6, [3]int{2, 2, 2}},
		{7, [3]int{3, 2, 2}},
		{8, [3]int{3, 3, 2}},
		{14, [3]int{5, 5, 4}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Balanced{}.Split(tt.n), "n=%d", tt.n)
	}
}

func TestWeighted_Split(t *testing.T) {
	w := Weighted{Easy: 2, Medium: 5, Hard: 3}
	assert.Equal(t, [3]int{2, 5, 3}, w.Split(10))
	assert.Equal(t, [3]int{1, 4, 2}, w.Split(7))

	// Equal remainders go to the lower difficulty.
	eq := Weighted{Easy: 1, Medium: 1, Hard: 1}
	assert.Equal(t, [3]int{2, 1, 1}, eq.Split(4))

	// No positive weight degrades to balanced.
	assert.Equal(t, [3]int{3, 2, 2}, Weighted{}.Split(7))

	for n := 0; n < 40; n++ {
		s := w.Split(n)
		assert.Equal(t, n, s[0]+s[1]+s[2])
	}
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, "balanced", s.Name())

	s, err = ParseStrategy("weighted:2, 5, 3")
	require.NoError(t, err)
	assert.Equal(t, Weighted{Easy: 2, Medium: 5, Hard: 3}, s)
	assert.Equal(t, "weighted:2,5,3", s.Name())

	for _, bad := range []string{"adaptive", "weighted:1,2", "weighted:a,b,c", "weighted:0,0,0", "weighted:-1,2,3"} {
		_, err := ParseStrategy(bad)
		assert.Error(t, err, bad)
	}
}

func TestCells_Order(t *testing.T) {
	q := &Quota{
		TestType:  "selective",
		Section:   "reading",
		SubSkills: []Target{{"inference", 7}, {"tone", 2}},
	}
	cells := Cells(q, []bank.TestMode{"diagnostic", "practice_1"}, nil)
	require.Len(t, cells, 12)

	first := cells[0]
	assert.Equal(t, bank.CellKey{TestType: "selective", Section: "reading", SubSkill: "inference", Difficulty: bank.Easy, Mode: "diagnostic"}, first.CellKey)
	assert.Equal(t, 3, first.Target)
	assert.Equal(t, bank.Medium, cells[1].Difficulty)
	assert.Equal(t, bank.Hard, cells[2].Difficulty)
	assert.Equal(t, "tone", cells[3].SubSkill)
	assert.Equal(t, [3]int{1, 1, 0}, [3]int{cells[3].Target, cells[4].Target, cells[5].Target})

	// Every mode receives the full quota.
	perMode := map[bank.TestMode]int{}
	for _, c := range cells {
		perMode[c.Mode] += c.Target
	}
	assert.Equal(t, map[bank.TestMode]int{"diagnostic": 9, "practice_1": 9}, perMode)
}
