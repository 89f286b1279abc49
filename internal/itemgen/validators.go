package itemgen

import (
	"strings"

	"github.com/abhisek/qbankgen/internal/bank"
)

// StructuralValidator checks that the question text is present and the
// response type is known and matches the request.
type StructuralValidator struct{}

func (v *StructuralValidator) Name() string { return "structural" }

func (v *StructuralValidator) Validate(it *bank.Item, req bank.GenerationRequest) []Finding {
	if strings.TrimSpace(it.QuestionText) == "" {
		return []Finding{errorf("question_text is empty")}
	}
	if !it.ResponseType.Valid() {
		return []Finding{errorf("response_type %q is not one of multiple_choice, extended_response, short_answer", it.ResponseType)}
	}
	if req.ResponseType != "" && it.ResponseType != req.ResponseType {
		return []Finding{errorf("response_type is %q but %q was requested", it.ResponseType, req.ResponseType)}
	}
	return nil
}

// AnswerValidator checks answer consistency. For multiple choice the
// correct answer must be byte-identical to exactly one option.
type AnswerValidator struct{}

func (v *AnswerValidator) Name() string { return "answer" }

func (v *AnswerValidator) Validate(it *bank.Item, _ bank.GenerationRequest) []Finding {
	if it.ResponseType.FreeResponse() {
		var out []Finding
		if len(it.AnswerOptions) > 0 {
			out = append(out, warnf("%s question has %d answer options; they will be ignored", it.ResponseType, len(it.AnswerOptions)))
		}
		if strings.TrimSpace(it.CorrectAnswer) == "" {
			if it.ResponseType == bank.ShortAnswer {
				return []Finding{errorf("correct_answer is empty")}
			}
			out = append(out, warnf("no model answer provided"))
		}
		return out
	}

	if len(it.AnswerOptions) == 0 {
		return []Finding{errorf("multiple choice question has no answer options")}
	}
	if strings.TrimSpace(it.CorrectAnswer) == "" {
		return []Finding{errorf("correct_answer is empty")}
	}

	seen := make(map[string]bool, len(it.AnswerOptions))
	for i, o := range it.AnswerOptions {
		key := foldAnswer(o)
		if key == "" {
			return []Finding{errorf("answer option %d is empty", i+1)}
		}
		if seen[key] {
			return []Finding{errorf("duplicate answer option %q", o)}
		}
		seen[key] = true
	}

	var out []Finding
	exact := false
	loose := -1
	for i, o := range it.AnswerOptions {
		if o == it.CorrectAnswer {
			exact = true
			break
		}
		if foldAnswer(o) == foldAnswer(it.CorrectAnswer) {
			loose = i
		}
	}
	switch {
	case exact:
	case loose >= 0:
		out = append(out, warnf("correct_answer %q matches option %q only after case/whitespace folding; using the option text",
			it.CorrectAnswer, it.AnswerOptions[loose]))
		it.CorrectAnswer = it.AnswerOptions[loose]
	default:
		return []Finding{errorf("correct_answer %q is not one of the answer options", it.CorrectAnswer)}
	}

	if n := len(it.AnswerOptions); n < 4 || n > 5 {
		out = append(out, warnf("expected 4 or 5 answer options, got %d", n))
	}
	return out
}

// SolutionValidator flags items without a worked solution.
type SolutionValidator struct{}

func (v *SolutionValidator) Name() string { return "solution" }

func (v *SolutionValidator) Validate(it *bank.Item, _ bank.GenerationRequest) []Finding {
	if strings.TrimSpace(it.Solution) == "" {
		return []Finding{warnf("solution is empty")}
	}
	return nil
}

// VisualValidator checks that a declared visual carries markup.
type VisualValidator struct{}

func (v *VisualValidator) Name() string { return "visual" }

func (v *VisualValidator) Validate(it *bank.Item, _ bank.GenerationRequest) []Finding {
	hasType := strings.TrimSpace(it.VisualType) != ""
	hasMarkup := strings.TrimSpace(it.VisualMarkup) != ""
	switch {
	case hasType && !hasMarkup:
		return []Finding{warnf("visual_type %q has no visual_markup", it.VisualType)}
	case !hasType && hasMarkup:
		return []Finding{warnf("visual_markup present without visual_type")}
	}
	return nil
}

// foldAnswer lowercases and collapses whitespace.
func foldAnswer(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
