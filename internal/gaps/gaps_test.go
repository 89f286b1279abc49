package gaps

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/qbankgen/internal/bank"
	"github.com/abhisek/qbankgen/internal/blueprint"
	"github.com/abhisek/qbankgen/internal/quota"
)

const testCatalog = `
version: v1.0.0
products:
  - test_type: demo
    name: Demo
    modes: [diagnostic, drill]
    sections:
      - name: maths
        generation_strategy: standalone
        total_questions: 30
        sub_skills: [algebra]
      - name: reading
        generation_strategy: passage_based
        total_questions: 10
        passage_distribution:
          - passage_type: narrative
            count: 1
            questions_per_passage: 9
            sub_skills: [inference]
`

// fakeCounter answers from a fixed map; missing cells are empty.
type fakeCounter map[bank.CellKey]int

func (f fakeCounter) CountExisting(_ context.Context, cell bank.CellKey) (int, error) {
	return f[cell], nil
}

type failingCounter struct{}

func (failingCounter) CountExisting(context.Context, bank.CellKey) (int, error) {
	return 0, errors.New("db down")
}

func catalog(t *testing.T) *blueprint.Catalog {
	t.Helper()
	c, err := blueprint.Parse([]byte(testCatalog))
	require.NoError(t, err)
	return c
}

func cell(sub string, d bank.Difficulty, mode bank.TestMode) bank.CellKey {
	return bank.CellKey{TestType: "demo", Section: "maths", SubSkill: sub, Difficulty: d, Mode: mode}
}

func TestDeficitAndCompletion(t *testing.T) {
	tests := []struct {
		target, existing int
		deficit          int
		completion       float64
	}{
		{10, 3, 7, 30},
		{10, 0, 10, 0},
		{10, 10, 0, 100},
		{10, 14, 0, 100},
		{0, 0, 0, 100},
		{0, 2, 0, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.deficit, Deficit(tt.target, tt.existing), "%d/%d", tt.existing, tt.target)
		assert.InDelta(t, tt.completion, Completion(tt.target, tt.existing), 1e-9, "%d/%d", tt.existing, tt.target)
	}
}

func TestReport_ThreeOfTen(t *testing.T) {
	counts := fakeCounter{cell("algebra", bank.Easy, "drill"): 3}
	r := New(catalog(t), counts, nil)

	rep, err := r.Report(context.Background(), "demo", "maths", []bank.TestMode{"drill"})
	require.NoError(t, err)
	require.Len(t, rep.Rows, 3)

	easy := rep.Rows[0]
	assert.Equal(t, bank.Easy, easy.Difficulty)
	assert.Equal(t, 10, easy.Target)
	assert.Equal(t, 3, easy.Existing)
	assert.Equal(t, 7, easy.Deficit)
	assert.InDelta(t, 30.0, easy.Completion, 1e-9)

	assert.Equal(t, 30, rep.Totals.Target)
	assert.Equal(t, 27, rep.Totals.Deficit)
	assert.InDelta(t, 10.0, rep.Totals.Completion, 1e-9)
}

func TestReport_OverfilledCellIsCapped(t *testing.T) {
	counts := fakeCounter{
		cell("algebra", bank.Easy, "drill"):   15,
		cell("algebra", bank.Medium, "drill"): 5,
	}
	r := New(catalog(t), counts, nil)

	rep, err := r.Report(context.Background(), "demo", "maths", []bank.TestMode{"drill"})
	require.NoError(t, err)
	assert.Equal(t, 20, rep.Totals.Existing)
	// 10 (capped) + 5 of 30.
	assert.InDelta(t, 50.0, rep.Totals.Completion, 1e-9)
	assert.Equal(t, 15, rep.Totals.Deficit)
}

func TestReport_AllModesAndStrategy(t *testing.T) {
	r := New(catalog(t), fakeCounter{}, quota.Weighted{Easy: 1, Medium: 1, Hard: 0})

	rep, err := r.Report(context.Background(), "demo", "maths", nil)
	require.NoError(t, err)
	assert.Equal(t, []bank.TestMode{"diagnostic", "drill"}, rep.Modes)
	require.Len(t, rep.Rows, 6)
	assert.Equal(t, 15, rep.Rows[0].Target)
	assert.Equal(t, 0, rep.Rows[2].Target)
	assert.InDelta(t, 100.0, rep.Rows[2].Completion, 1e-9)
	assert.Equal(t, 60, rep.Totals.Target)
}

func TestReport_Errors(t *testing.T) {
	r := New(catalog(t), fakeCounter{}, nil)

	_, err := r.Report(context.Background(), "demo", "science", nil)
	var unknown *bank.ErrUnknownSection
	require.ErrorAs(t, err, &unknown)

	_, err = r.Report(context.Background(), "demo", "maths", []bank.TestMode{"practice_9"})
	require.Error(t, err)

	_, err = New(catalog(t), failingCounter{}, nil).Report(context.Background(), "demo", "maths", nil)
	require.ErrorContains(t, err, "db down")
}

func TestSummary(t *testing.T) {
	counts := fakeCounter{cell("algebra", bank.Easy, "drill"): 3}
	r := New(catalog(t), counts, nil)

	sum, err := r.Summary(context.Background(), "demo", []bank.TestMode{"drill"})
	require.NoError(t, err)
	require.Len(t, sum.Sections, 2)
	assert.Equal(t, "maths", sum.Sections[0].Section)
	assert.Equal(t, 30, sum.Sections[0].Target)
	assert.Equal(t, 27, sum.Sections[0].Deficit)
	assert.Equal(t, 9, sum.Sections[1].Target)
	assert.Equal(t, 39, sum.Totals.Target)
	assert.Equal(t, 3, sum.Totals.Existing)
	require.Len(t, sum.Warnings, 1, "reading declares 10 but derives 9")
	assert.Contains(t, sum.Warnings[0], "delta -1")
}

func TestRenderAndJSON(t *testing.T) {
	counts := fakeCounter{cell("algebra", bank.Easy, "drill"): 3}
	r := New(catalog(t), counts, nil)
	rep, err := r.Report(context.Background(), "demo", "maths", []bank.TestMode{"drill"})
	require.NoError(t, err)

	out := rep.Render()
	assert.Contains(t, out, "demo / maths")
	assert.Contains(t, out, "algebra")
	assert.Contains(t, out, "30.0%")

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, rep))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	rows := decoded["rows"].([]any)
	first := rows[0].(map[string]any)
	assert.EqualValues(t, 7, first["deficit"])
	assert.EqualValues(t, 30, first["completion_pct"])

	sum, err := r.Summary(context.Background(), "demo", []bank.TestMode{"drill"})
	require.NoError(t, err)
	assert.Contains(t, sum.Render(), "reading")
}
