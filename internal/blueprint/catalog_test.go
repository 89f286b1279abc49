package blueprint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/abhisek/qbankgen/internal/bank"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Loads(t *testing.T) {
	cat, err := Default()
	require.NoError(t, err)

	s, err := cat.Section("selective", "reading")
	require.NoError(t, err)
	assert.Equal(t, PassageBased, s.Strategy)
	assert.Equal(t, "selective", s.TestType)
	assert.Equal(t, Range(6, 8), s.Distribution[0].QuestionsPerPassage)
	assert.Equal(t, Fixed(4), s.Distribution[1].QuestionsPerPassage)
	assert.Equal(t, []string{"inference", "vocabulary_in_context", "figurative_language", "main_idea", "text_structure"}, s.SubSkillNames())

	// Product-level rounding is inherited and response type defaults to MC.
	naplan, err := cat.Section("naplan_y7", "reading")
	require.NoError(t, err)
	assert.Equal(t, bank.MultipleChoice, naplan.ResponseType)

	modes, err := cat.Modes("selective")
	require.NoError(t, err)
	assert.Equal(t, []bank.TestMode{"diagnostic", "practice_1", "practice_2"}, modes)
}

func TestSection_Unknown(t *testing.T) {
	cat, err := Default()
	require.NoError(t, err)

	_, err = cat.Section("selective", "science")
	var unknown *bank.ErrUnknownSection
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "science", unknown.Section)
}

func TestExamples_ByDifficulty(t *testing.T) {
	cat, err := Default()
	require.NoError(t, err)

	easy := cat.Examples("selective", "reading", "inference", bank.Easy)
	require.Len(t, easy, 1)
	assert.Contains(t, easy[0].Question, "Mara")

	assert.Empty(t, cat.Examples("selective", "reading", "inference", bank.Medium))
	assert.Empty(t, cat.Examples("selective", "reading", "no_such_skill", bank.Easy))
	assert.NotEmpty(t, cat.Describe("selective", "reading", "inference"))
}

func TestParse_MixedSubSkillForms(t *testing.T) {
	cat, err := Parse([]byte(`
version: "1.0.0"
products:
  - test_type: t
    modes: [m]
    sections:
      - name: s
        generation_strategy: standalone
        total_questions: 10
        sub_skills:
          - a
          - name: b
            count: 4
`))
	require.NoError(t, err)
	s, err := cat.Section("t", "s")
	require.NoError(t, err)
	require.Len(t, s.SubSkills, 2)
	assert.Nil(t, s.SubSkills[0].Count)
	require.NotNil(t, s.SubSkills[1].Count)
	assert.Equal(t, 4, *s.SubSkills[1].Count)
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing version",
			yaml: "products: []",
			want: "version is required",
		},
		{
			name: "unsupported major",
			yaml: "version: v2.0.0\nproducts: []",
			want: "not supported",
		},
		{
			name: "bad range",
			yaml: `
version: v1.0.0
products:
  - test_type: t
    modes: [m]
    sections:
      - name: s
        generation_strategy: passage_based
        total_questions: 10
        passage_distribution:
          - passage_type: p
            count: 1
            questions_per_passage: [8, 6]
            sub_skills: [a]
`,
			want: "questions_per_passage [8,6] is invalid",
		},
		{
			name: "unknown strategy",
			yaml: `
version: v1.0.0
products:
  - test_type: t
    modes: [m]
    sections:
      - name: s
        generation_strategy: adaptive
        sub_skills: [a]
`,
			want: `unknown generation_strategy "adaptive"`,
		},
		{
			name: "unknown rounding",
			yaml: `
version: v1.0.0
products:
  - test_type: t
    modes: [m]
    range_rounding: nearest
    sections:
      - name: s
        generation_strategy: standalone
        sub_skills: [a]
`,
			want: `unknown range_rounding "nearest"`,
		},
		{
			name: "range with three values",
			yaml: `
version: v1.0.0
products:
  - test_type: t
    modes: [m]
    sections:
      - name: s
        generation_strategy: passage_based
        passage_distribution:
          - passage_type: p
            count: 1
            questions_per_passage: [1, 2, 3]
            sub_skills: [a]
`,
			want: "exactly 2 values",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
version: v1.1.0
products:
  - test_type: custom
    modes: [drill]
    sections:
      - name: only
        generation_strategy: standalone
        total_questions: 3
        sub_skills: [x]
`), 0o644))
	t.Setenv(CatalogEnv, path)

	cat, err := Load("")
	require.NoError(t, err)
	_, err = cat.Section("custom", "only")
	require.NoError(t, err)
}
