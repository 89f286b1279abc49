package runview

import (
	"errors"
	"testing"

	tea "charm.land/bubbletea/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/qbankgen/internal/bank"
	"github.com/abhisek/qbankgen/internal/orchestrator"
)

func progress(phase orchestrator.Phase, generated, failed int) ProgressMsg {
	return ProgressMsg{
		Phase:     phase,
		TestType:  "selective",
		Section:   "reading",
		Mode:      "practice_1",
		Cell:      bank.CellKey{TestType: "selective", Section: "reading", SubSkill: "inference", Difficulty: bank.Easy, Mode: "practice_1"},
		Deficit:   4,
		Generated: generated,
		Failed:    failed,
		CostUSD:   0.0125,
	}
}

func TestUpdate_TracksProgress(t *testing.T) {
	m := New("selective", nil)
	m = update(t, m, progress(orchestrator.PhasePlanning, 0, 0))
	m = update(t, m, progress(orchestrator.PhaseGenerating, 1, 0))
	m = update(t, m, progress(orchestrator.PhaseGenerating, 1, 1))

	out := m.render()
	assert.Contains(t, out, "reading/practice_1")
	assert.Contains(t, out, "1/4  failed 1")
	assert.Contains(t, out, "selective/reading/inference/d1/practice_1")
	assert.Contains(t, out, "$0.0125")
	assert.Len(t, m.recent, 2)
}

func TestUpdate_FirstQuitKeyCancels(t *testing.T) {
	cancelled := false
	m := New("run", func() { cancelled = true })

	next, cmd := m.Update(tea.KeyPressMsg{Code: 'q', Text: "q"})
	m = next.(Model)
	assert.True(t, cancelled)
	assert.True(t, m.cancelling)
	assert.Nil(t, cmd)
	assert.Contains(t, m.render(), "cancelling")
}

func TestUpdate_DoneQuits(t *testing.T) {
	m := New("run", nil)
	next, cmd := m.Update(DoneMsg{Err: errors.New("boom")})
	require.NotNil(t, cmd)
	m = next.(Model)
	assert.True(t, m.done)
	assert.Contains(t, m.render(), "error: boom")
}

func update(t *testing.T, m Model, msg ProgressMsg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}
