package gemini

import (
	"fmt"

	"github.com/google/generative-ai-go/genai"
)

func systemInstruction(c Config) string {
	return fmt.Sprintf(`You are an educational assistant that writes knowledge quizzes from the material you are given.

Requirements:
1. Write exactly %d multiple-choice questions, each with exactly 4 options and one correct option.
2. Write exactly %d true/false questions.
3. Write every question and explanation in %s.
4. Keep explanations short, precise and educational.
5. Only ask about what the material actually covers.`, c.MultipleChoice, c.TrueFalse, c.Language)
}

func responseSchema(c Config) *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"mcqs": {
				Type:        genai.TypeArray,
				Description: fmt.Sprintf("List of %d multiple-choice questions", c.MultipleChoice),
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"question": {Type: genai.TypeString, Description: "The question"},
						"options": {
							Type:        genai.TypeArray,
							Description: "4 options for the question",
							Items:       &genai.Schema{Type: genai.TypeString},
						},
						"correctAnswerIndex": {Type: genai.TypeInteger, Description: "Index of the correct option (0-3)"},
						"explanation":        {Type: genai.TypeString, Description: "Why the correct option is correct"},
					},
					Required: []string{"question", "options", "correctAnswerIndex", "explanation"},
				},
			},
			"tfqs": {
				Type:        genai.TypeArray,
				Description: fmt.Sprintf("List of %d true/false questions", c.TrueFalse),
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"question":    {Type: genai.TypeString, Description: "The statement to judge"},
						"isTrue":      {Type: genai.TypeBoolean, Description: "True if the statement is true"},
						"explanation": {Type: genai.TypeString, Description: "Short explanation"},
					},
					Required: []string{"question", "isTrue", "explanation"},
				},
			},
		},
		Required: []string{"mcqs", "tfqs"},
	}
}
