package bank

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigInconsistency_Delta(t *testing.T) {
	e := &ConfigInconsistency{TestType: "selective", Section: "reading", Declared: 210, Derived: 208}
	assert.Equal(t, -2, e.Delta())
	assert.Contains(t, e.Error(), "delta -2")
}

func TestGenerationFailure_Classification(t *testing.T) {
	cause := errors.New("all candidates were duplicates")
	err := fmt.Errorf("cell selective/reading/inference/d1/diagnostic: %w",
		&GenerationFailure{Kind: FailureDuplicateExhausted, Attempts: 3, Reason: "duplicate", Err: cause})

	assert.True(t, IsDuplicateExhausted(err))
	assert.Equal(t, FailureDuplicateExhausted, FailureKindOf(err))
	require.ErrorIs(t, err, cause)

	assert.Equal(t, FailureKind(""), FailureKindOf(errors.New("plain")))
}

func TestDifficulty(t *testing.T) {
	assert.Equal(t, []Difficulty{Easy, Medium, Hard}, Difficulties)
	assert.True(t, Medium.Valid())
	assert.False(t, Difficulty(0).Valid())
	assert.False(t, Difficulty(4).Valid())
	assert.Equal(t, "hard", Hard.String())
}

func TestResponseType(t *testing.T) {
	assert.True(t, MultipleChoice.Valid())
	assert.False(t, ResponseType("essay").Valid())
	assert.True(t, ShortAnswer.FreeResponse())
	assert.False(t, MultipleChoice.FreeResponse())
}

func TestCellKeyString(t *testing.T) {
	req := GenerationRequest{TestType: "selective", Section: "reading", SubSkill: "inference", Difficulty: Medium, Mode: "practice_1"}
	assert.Equal(t, "selective/reading/inference/d2/practice_1", req.Cell().String())
	assert.Equal(t, "selective/reading/inference/*", req.History(true).String())
	assert.Equal(t, "selective/reading/inference/practice_1", req.History(false).String())
}
