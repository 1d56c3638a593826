// Package gemini generates quizzes with the Gemini API.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/victornm/quizgen/internal/generate"
	"github.com/victornm/quizgen/internal/quiz"
)

const (
	DefaultModel = "gemini-2.5-flash"

	defaultLanguage       = "Vietnamese"
	defaultMultipleChoice = 15
	defaultTrueFalse      = 5
)

type Config struct {
	APIKey string
	Model  string
	// Language of questions and explanations.
	Language string
	// MultipleChoice and TrueFalse are the question counts requested from the model.
	MultipleChoice int
	TrueFalse      int
}

type model interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Generator implements generate.Generator on top of a Gemini model.
type Generator struct {
	client *genai.Client
	model  model
}

var _ generate.Generator = (*Generator)(nil)

// New connects to Gemini. Close releases the client.
func New(ctx context.Context, c Config) (*Generator, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("gemini: api key is not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(c.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}

	c = withDefaults(c)
	m := client.GenerativeModel(c.Model)
	configure(m, c)

	return &Generator{
		client: client,
		model:  m,
	}, nil
}

func withDefaults(c Config) Config {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Language == "" {
		c.Language = defaultLanguage
	}
	if c.MultipleChoice <= 0 {
		c.MultipleChoice = defaultMultipleChoice
	}
	if c.TrueFalse <= 0 {
		c.TrueFalse = defaultTrueFalse
	}
	return c
}

func configure(m *genai.GenerativeModel, c Config) {
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemInstruction(c))},
	}
	m.ResponseMIMEType = "application/json"
	m.ResponseSchema = responseSchema(c)
	m.SetTemperature(0.4)
}

func (g *Generator) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

// Generate sends the input to the model and validates the JSON it returns.
func (g *Generator) Generate(ctx context.Context, in generate.Input) (*quiz.Content, error) {
	ps, err := parts(in)
	if err != nil {
		return nil, err
	}

	resp, err := g.model.GenerateContent(ctx, ps...)
	if err != nil {
		return nil, fmt.Errorf("gemini: generate content: %w", err)
	}

	text := responseText(resp)
	if text == "" {
		return nil, fmt.Errorf("gemini: empty response")
	}

	return quiz.Parse([]byte(text))
}

func parts(in generate.Input) ([]genai.Part, error) {
	switch in.Kind {
	case generate.KindURL:
		return []genai.Part{
			genai.Text("Analyze the content at the following link and build the quiz from it: " + strings.TrimSpace(in.URL)),
		}, nil
	case generate.KindText:
		return []genai.Part{
			genai.Text("Analyze the following text and build the quiz from it:\n\n" + in.Text),
		}, nil
	case generate.KindFile:
		data, err := in.Data()
		if err != nil {
			return nil, fmt.Errorf("gemini: decode file: %w", err)
		}
		note := strings.TrimSpace(in.Note)
		if note == "" {
			note = "Analyze the attached file and build the quiz from it."
		}
		return []genai.Part{
			genai.Blob{MIMEType: in.MIMEType, Data: data},
			genai.Text(note),
		}, nil
	default:
		return nil, fmt.Errorf("gemini: unsupported input kind %q", in.Kind)
	}
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}

	var sb strings.Builder
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		// Only the first candidate with content is used.
		if sb.Len() > 0 {
			break
		}
	}

	return sb.String()
}
