package itemgen

import (
	"fmt"
	"strings"

	"github.com/abhisek/qbankgen/internal/bank"
	"github.com/abhisek/qbankgen/internal/blueprint"
	"github.com/abhisek/qbankgen/internal/dedup"
)

const systemPrompt = `You are an experienced exam writer building a bank of practice questions for standardized school entrance and literacy tests.

Rules:
- Write exactly one question for the requested test, section, sub-skill and difficulty.
- Difficulty is 1 (easy), 2 (medium) or 3 (hard). Match the calibration examples for the requested level when they are given.
- The question must be self-contained, unambiguous and age-appropriate.
- For multiple_choice, give 4 options (5 only when the test format calls for it). Exactly one option is correct and correct_answer must repeat its text exactly. Distractors should reflect plausible misconceptions.
- For extended_response and short_answer, answer_options must be an empty array and correct_answer holds a model answer.
- The solution explains the reasoning step by step.
- Only fill visual_type and visual_markup when the question cannot be answered without a table, chart or diagram.
- Never repeat or lightly reword any question listed under "Do not repeat".`

const passageSystemPrompt = systemPrompt + `

You are also writing the reading passage the question is about:
- The passage must be original, complete and suited to the requested passage type and difficulty.
- Later questions will be written against the same passage, so it should support several distinct questions.`

// promptInput is everything that goes into one user message.
type promptInput struct {
	Req         bank.GenerationRequest
	Description string
	Examples    []blueprint.Example
	Passage     *bank.Passage // existing passage to ask about
	PassageType string        // passage to write, for bundles
	SubSkills   []string      // sub-skills planned against a new passage
	Negatives   []string
	Feedback    string
}

func buildUserMessage(in promptInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Test: %s\n", in.Req.TestType)
	fmt.Fprintf(&b, "Section: %s\n", in.Req.Section)
	fmt.Fprintf(&b, "Sub-skill: %s\n", in.Req.SubSkill)
	if in.Description != "" {
		fmt.Fprintf(&b, "Sub-skill description: %s\n", in.Description)
	}
	fmt.Fprintf(&b, "Difficulty: %d (%s)\n", in.Req.Difficulty, in.Req.Difficulty)
	fmt.Fprintf(&b, "Response type: %s\n", responseTypeOf(in.Req))

	if in.PassageType != "" {
		fmt.Fprintf(&b, "\nWrite a new %s passage.\n", in.PassageType)
		if len(in.SubSkills) > 0 {
			fmt.Fprintf(&b, "Questions planned for this passage will cover: %s\n", strings.Join(in.SubSkills, ", "))
		}
	}
	if in.Passage != nil {
		b.WriteString("\nPassage")
		if in.Passage.Title != "" {
			fmt.Fprintf(&b, " (%s)", in.Passage.Title)
		}
		b.WriteString(":\n")
		b.WriteString(in.Passage.Content)
		b.WriteString("\n")
	}

	if len(in.Examples) > 0 {
		b.WriteString("\nCalibration examples at this difficulty:\n")
		b.WriteString(formatExamples(in.Examples))
		b.WriteString("\n")
	}

	b.WriteString("\nDo not repeat:\n")
	b.WriteString(dedup.FormatList(in.Negatives))

	if in.Feedback != "" {
		b.WriteString("\n\nYour previous attempt was rejected: ")
		b.WriteString(in.Feedback)
		b.WriteString("\nWrite a different question that fixes this.")
	}

	return b.String()
}

func formatExamples(exs []blueprint.Example) string {
	var b strings.Builder
	for i, ex := range exs {
		fmt.Fprintf(&b, "%d. %s\n", i+1, ex.Question)
		for _, o := range ex.Options {
			fmt.Fprintf(&b, "   - %s\n", o)
		}
		if ex.Answer != "" {
			fmt.Fprintf(&b, "   Answer: %s\n", ex.Answer)
		}
		if ex.Explanation != "" {
			fmt.Fprintf(&b, "   Why: %s\n", ex.Explanation)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func responseTypeOf(req bank.GenerationRequest) bank.ResponseType {
	if req.ResponseType == "" {
		return bank.MultipleChoice
	}
	return req.ResponseType
}
