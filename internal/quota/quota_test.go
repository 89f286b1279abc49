package quota

import (
	"testing"

	"github.com/abhisek/qbankgen/internal/blueprint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intp(n int) *int { return &n }

func TestResolvePerPassage(t *testing.T) {
	tests := []struct {
		name   string
		qpp    blueprint.PerPassage
		policy Rounding
		want   int
	}{
		{"fixed", blueprint.Fixed(5), MidpointFloor, 5},
		{"fixed ignores policy", blueprint.Fixed(5), MidpointCeil, 5},
		{"even range floor", blueprint.Range(6, 8), MidpointFloor, 7},
		{"even range ceil", blueprint.Range(6, 8), MidpointCeil, 7},
		{"odd range floor", blueprint.Range(6, 9), MidpointFloor, 7},
		{"odd range ceil", blueprint.Range(6, 9), MidpointCeil, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolvePerPassage(tt.qpp, tt.policy))
		})
	}
}

func TestRoundingByName(t *testing.T) {
	r, err := RoundingByName("")
	require.NoError(t, err)
	assert.Equal(t, MidpointFloor, r)

	r, err = RoundingByName("ceil")
	require.NoError(t, err)
	assert.Equal(t, MidpointCeil, r)

	_, err = RoundingByName("nearest")
	require.Error(t, err)
}

func TestSplit_RemainderToLeadingSlots(t *testing.T) {
	assert.Equal(t, []int{8, 7, 7, 7}, Split(29, 4))
	assert.Equal(t, []int{14, 14}, Split(28, 2))
	assert.Equal(t, []int{2, 2, 1, 1, 1}, Split(8, 5))
	assert.Equal(t, []int{0, 0, 0}, Split(0, 3))
	assert.Nil(t, Split(5, 0))

	for total := 0; total < 50; total++ {
		sum := 0
		for _, n := range Split(total, 4) {
			sum += n
		}
		assert.Equal(t, total, sum)
	}
}

func TestCompute_RangedPassageDistribution(t *testing.T) {
	s := &blueprint.Section{
		TestType:       "selective",
		Name:           "reading",
		Strategy:       blueprint.PassageBased,
		TotalQuestions: 28,
		Distribution: []blueprint.PassageGroup{{
			PassageType:         "narrative",
			Count:               4,
			QuestionsPerPassage: blueprint.Range(6, 8),
			SubSkills:           []string{"inference", "vocabulary_in_context"},
		}},
	}

	q, err := Compute(s)
	require.NoError(t, err)
	assert.Equal(t, 28, q.Derived)
	assert.Nil(t, q.Inconsistency)
	assert.Equal(t, []Target{{"inference", 14}, {"vocabulary_in_context", 14}}, q.SubSkills)

	require.Len(t, q.Passages, 1)
	assert.Equal(t, PassageBudget{
		PassageType: "narrative",
		Passages:    4,
		PerPassage:  7,
		Questions:   28,
		SubSkills:   []Target{{"inference", 14}, {"vocabulary_in_context", 14}},
	}, q.Passages[0])
}

func TestCompute_AccumulatesAcrossGroups(t *testing.T) {
	s := &blueprint.Section{
		TestType: "selective",
		Name:     "reading",
		Strategy: blueprint.PassageBased,
		Distribution: []blueprint.PassageGroup{
			{PassageType: "narrative", Count: 1, QuestionsPerPassage: blueprint.Fixed(5), SubSkills: []string{"inference", "tone"}},
			{PassageType: "poetry", Count: 1, QuestionsPerPassage: blueprint.Fixed(4), SubSkills: []string{"imagery", "inference"}},
		},
		TotalQuestions: 9,
	}

	q, err := Compute(s)
	require.NoError(t, err)
	assert.Equal(t, []Target{{"inference", 5}, {"tone", 2}, {"imagery", 2}}, q.SubSkills)
	assert.Equal(t, 5, q.Target("inference"))
	assert.Equal(t, 0, q.Target("missing"))
}

func TestCompute_ConfigInconsistency(t *testing.T) {
	// 13 passages of 16 derive 208 against a declared 210.
	s := &blueprint.Section{
		TestType:       "selective",
		Name:           "reading",
		Strategy:       blueprint.PassageBased,
		TotalQuestions: 210,
		Distribution: []blueprint.PassageGroup{{
			PassageType:         "informational",
			Count:               13,
			QuestionsPerPassage: blueprint.Range(15, 17),
			SubSkills:           []string{"main_idea", "inference", "text_structure", "tone"},
		}},
	}

	q, err := Compute(s)
	require.NoError(t, err)
	require.NotNil(t, q.Inconsistency)
	assert.Equal(t, 210, q.Inconsistency.Declared)
	assert.Equal(t, 208, q.Inconsistency.Derived)
	assert.Equal(t, -2, q.Inconsistency.Delta())
	// Targets follow the derived distribution.
	assert.Equal(t, 208, q.Derived)
	assert.Equal(t, 52, q.Target("tone"))
}

func TestCompute_CeilPolicyFromCatalog(t *testing.T) {
	s := &blueprint.Section{
		TestType:      "t",
		Name:          "s",
		Strategy:      blueprint.PassageBased,
		RangeRounding: "ceil",
		Distribution: []blueprint.PassageGroup{{
			PassageType: "p", Count: 2, QuestionsPerPassage: blueprint.Range(3, 4), SubSkills: []string{"a"},
		}},
		TotalQuestions: 8,
	}
	q, err := Compute(s)
	require.NoError(t, err)
	assert.Equal(t, 8, q.Derived)
	assert.Nil(t, q.Inconsistency)
}

func TestCompute_Standalone(t *testing.T) {
	t.Run("even split", func(t *testing.T) {
		s := &blueprint.Section{
			TestType: "t", Name: "s", Strategy: blueprint.Standalone, TotalQuestions: 40,
			SubSkills: []blueprint.SubSkill{{Name: "a"}, {Name: "b"}, {Name: "c"}},
		}
		q, err := Compute(s)
		require.NoError(t, err)
		assert.Equal(t, []Target{{"a", 14}, {"b", 13}, {"c", 13}}, q.SubSkills)
		assert.Nil(t, q.Inconsistency)
	})

	t.Run("explicit counts with remainder split", func(t *testing.T) {
		s := &blueprint.Section{
			TestType: "t", Name: "s", Strategy: blueprint.Standalone, TotalQuestions: 20,
			SubSkills: []blueprint.SubSkill{{Name: "a", Count: intp(10)}, {Name: "b"}, {Name: "c"}},
		}
		q, err := Compute(s)
		require.NoError(t, err)
		assert.Equal(t, []Target{{"a", 10}, {"b", 5}, {"c", 5}}, q.SubSkills)
	})

	t.Run("explicit counts disagree with total", func(t *testing.T) {
		s := &blueprint.Section{
			TestType: "t", Name: "s", Strategy: blueprint.Standalone, TotalQuestions: 35,
			SubSkills: []blueprint.SubSkill{{Name: "a", Count: intp(14)}, {Name: "b", Count: intp(12)}, {Name: "c", Count: intp(8)}},
		}
		q, err := Compute(s)
		require.NoError(t, err)
		require.NotNil(t, q.Inconsistency)
		assert.Equal(t, -1, q.Inconsistency.Delta())
	})
}

func TestCompute_DefaultCatalogIsConsistent(t *testing.T) {
	cat, err := blueprint.Default()
	require.NoError(t, err)
	for _, p := range cat.Products {
		for i := range p.Sections {
			q, err := Compute(&p.Sections[i])
			require.NoError(t, err)
			assert.Nil(t, q.Inconsistency, "%s/%s", p.TestType, p.Sections[i].Name)
		}
	}
}
