// Package bank holds the domain types shared by every stage of the
// question-bank pipeline: quota cells, generation requests, generated items,
// passages and the narrow storage contract the engine depends on.
package bank

import (
	"fmt"
	"time"
)

// Difficulty is one of exactly three ordinal levels.
type Difficulty int

const (
	Easy   Difficulty = 1
	Medium Difficulty = 2
	Hard   Difficulty = 3
)

// Difficulties lists every level, lowest first.
var Difficulties = []Difficulty{Easy, Medium, Hard}

// Valid reports whether d is one of the three levels.
func (d Difficulty) Valid() bool {
	return d >= Easy && d <= Hard
}

func (d Difficulty) String() string {
	switch d {
	case Easy:
		return "easy"
	case Medium:
		return "medium"
	case Hard:
		return "hard"
	default:
		return fmt.Sprintf("difficulty(%d)", int(d))
	}
}

// ResponseType is how a candidate answers a question.
type ResponseType string

const (
	MultipleChoice   ResponseType = "multiple_choice"
	ExtendedResponse ResponseType = "extended_response"
	ShortAnswer      ResponseType = "short_answer"
)

// ResponseTypes lists the accepted response types.
var ResponseTypes = []ResponseType{MultipleChoice, ExtendedResponse, ShortAnswer}

// Valid reports whether r is a known response type.
func (r ResponseType) Valid() bool {
	switch r {
	case MultipleChoice, ExtendedResponse, ShortAnswer:
		return true
	}
	return false
}

// FreeResponse reports whether the type takes no answer options.
func (r ResponseType) FreeResponse() bool {
	return r == ExtendedResponse || r == ShortAnswer
}

// TestMode names a slice of the bank serving one delivery context,
// e.g. "diagnostic", "practice_1" or "drill".
type TestMode string

// CellKey identifies one quota cell.
type CellKey struct {
	TestType   string
	Section    string
	SubSkill   string
	Difficulty Difficulty
	Mode       TestMode
}

func (k CellKey) String() string {
	return fmt.Sprintf("%s/%s/%s/d%d/%s", k.TestType, k.Section, k.SubSkill, int(k.Difficulty), k.Mode)
}

// HistoryScope selects the prior question texts a duplicate check runs
// against. With AllModes set, every test mode of the sub-skill is included.
type HistoryScope struct {
	TestType string
	Section  string
	SubSkill string
	Mode     TestMode
	AllModes bool
}

func (s HistoryScope) String() string {
	mode := string(s.Mode)
	if s.AllModes {
		mode = "*"
	}
	return fmt.Sprintf("%s/%s/%s/%s", s.TestType, s.Section, s.SubSkill, mode)
}

// GenerationRequest is one unit of work for the item generator. It is a
// value type; callers copy it rather than mutate it after issue.
type GenerationRequest struct {
	TestType     string
	Section      string
	SubSkill     string
	Difficulty   Difficulty
	Mode         TestMode
	ResponseType ResponseType

	// PassageID binds the question to an existing passage. Empty for
	// standalone questions and for the first question of a new passage.
	PassageID string
}

// Cell returns the quota cell the request contributes to.
func (r GenerationRequest) Cell() CellKey {
	return CellKey{
		TestType:   r.TestType,
		Section:    r.Section,
		SubSkill:   r.SubSkill,
		Difficulty: r.Difficulty,
		Mode:       r.Mode,
	}
}

// History returns the duplicate-check scope for the request.
func (r GenerationRequest) History(allModes bool) HistoryScope {
	return HistoryScope{
		TestType: r.TestType,
		Section:  r.Section,
		SubSkill: r.SubSkill,
		Mode:     r.Mode,
		AllModes: allModes,
	}
}

// Item is a generated question. ID, Model and CreatedAt are set once the
// item has been stored.
type Item struct {
	ID string

	QuestionText  string
	AnswerOptions []string // empty for free-response types
	CorrectAnswer string
	Solution      string
	ResponseType  ResponseType

	// Optional visual payload, e.g. "table" with rendered HTML markup.
	VisualType   string
	VisualMarkup string

	// Provenance.
	TestType   string
	Section    string
	SubSkill   string
	Difficulty Difficulty
	Mode       TestMode
	PassageID  string

	Model     string
	CreatedAt time.Time

	// Warnings raised by non-strict validation. Not persisted.
	Warnings []string
}

// Cell returns the quota cell the item counts toward.
func (it *Item) Cell() CellKey {
	return CellKey{
		TestType:   it.TestType,
		Section:    it.Section,
		SubSkill:   it.SubSkill,
		Difficulty: it.Difficulty,
		Mode:       it.Mode,
	}
}

// Passage is the shared reading context of a passage-based bundle.
type Passage struct {
	ID          string
	Title       string
	Content     string
	PassageType string
	Difficulty  Difficulty

	TestType string
	Section  string
	Mode     TestMode

	// SubSkills planned against the passage, in assignment order.
	SubSkills []string
	// QuestionIDs of the items generated against the passage so far.
	QuestionIDs []string

	Model     string
	CreatedAt time.Time
}
