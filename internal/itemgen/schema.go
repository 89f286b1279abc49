package itemgen

import "github.com/abhisek/qbankgen/internal/llm"

func questionProperties() map[string]any {
	return map[string]any{
		"question_text": map[string]any{
			"type":        "string",
			"description": "The question stem shown to the candidate, self-contained",
		},
		"response_type": map[string]any{
			"type":        "string",
			"enum":        []any{"multiple_choice", "extended_response", "short_answer"},
			"description": "How the candidate responds",
		},
		"answer_options": map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": "string"},
			"description": "4 or 5 options for multiple_choice. Empty array for free-response types.",
		},
		"correct_answer": map[string]any{
			"type":        "string",
			"description": "For multiple_choice: the exact text of the correct option. Otherwise a model answer.",
		},
		"solution": map[string]any{
			"type":        "string",
			"description": "Worked solution explaining why the answer is correct and the distractors are not",
		},
		"visual_type": map[string]any{
			"type":        "string",
			"description": "Kind of visual the question needs (e.g. table, chart, diagram), or empty",
		},
		"visual_markup": map[string]any{
			"type":        "string",
			"description": "HTML or SVG markup for the visual, or empty",
		},
	}
}

var questionRequired = []any{
	"question_text", "response_type", "answer_options", "correct_answer",
	"solution", "visual_type", "visual_markup",
}

// ItemSchema is the structured output schema for a single question.
var ItemSchema = &llm.Schema{
	Name:        "bank-question",
	Description: "A single exam question with answer options, correct answer and worked solution",
	Definition: map[string]any{
		"type":                 "object",
		"properties":           questionProperties(),
		"required":             questionRequired,
		"additionalProperties": false,
	},
}

// BundleSchema is the structured output schema for a new passage together
// with its first question.
var BundleSchema = &llm.Schema{
	Name:        "bank-passage-bundle",
	Description: "A reading passage and the first question asked about it",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"passage": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title": map[string]any{
						"type":        "string",
						"description": "Short title of the passage",
					},
					"content": map[string]any{
						"type":        "string",
						"description": "The full passage text",
					},
				},
				"required":             []any{"title", "content"},
				"additionalProperties": false,
			},
			"question": map[string]any{
				"type":                 "object",
				"properties":           questionProperties(),
				"required":             questionRequired,
				"additionalProperties": false,
			},
		},
		"required":             []any{"passage", "question"},
		"additionalProperties": false,
	},
}

// questionOutput is the raw model output before validation.
type questionOutput struct {
	QuestionText  string   `json:"question_text"`
	ResponseType  string   `json:"response_type"`
	AnswerOptions []string `json:"answer_options"`
	CorrectAnswer string   `json:"correct_answer"`
	Solution      string   `json:"solution"`
	VisualType    string   `json:"visual_type"`
	VisualMarkup  string   `json:"visual_markup"`
}

type passageOutput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type bundleOutput struct {
	Passage  passageOutput  `json:"passage"`
	Question questionOutput `json:"question"`
}
