package quiz

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// ErrEmpty is returned when a payload has no multiple-choice questions.
var ErrEmpty = errors.New("quiz: no usable questions")

// ErrMalformed is returned when a payload cannot be decoded at all.
var ErrMalformed = errors.New("quiz: malformed payload")

// rawContent accepts the field spellings generators are known to produce.
type rawContent struct {
	MultipleChoice    []rawQuestion `mapstructure:"multipleChoice"`
	MultipleChoiceAlt []rawQuestion `mapstructure:"multiple_choice"`
	MCQs              []rawQuestion `mapstructure:"mcqs"`
	TrueFalse         []rawQuestion `mapstructure:"trueFalse"`
	TrueFalseAlt      []rawQuestion `mapstructure:"true_false"`
	TFQs              []rawQuestion `mapstructure:"tfqs"`
}

type rawQuestion struct {
	Question    string   `mapstructure:"question"`
	Text        string   `mapstructure:"text"`
	Explanation string   `mapstructure:"explanation"`
	Options     []string `mapstructure:"options"`

	CorrectIndex       *int `mapstructure:"correctIndex"`
	CorrectAnswerIndex *int `mapstructure:"correctAnswerIndex"`
	CorrectIndexAlt    *int `mapstructure:"correct_index"`

	CorrectValue    *bool `mapstructure:"correctValue"`
	IsTrue          *bool `mapstructure:"isTrue"`
	CorrectValueAlt *bool `mapstructure:"correct_value"`
}

func (q rawQuestion) common() Common {
	text := q.Question
	if text == "" {
		text = q.Text
	}
	return Common{
		Text:        strings.TrimSpace(text),
		Explanation: strings.TrimSpace(q.Explanation),
	}
}

// Parse decodes generator output. Markdown code fences around the JSON are stripped.
func Parse(b []byte) (*Content, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(stripFences(string(b))), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return Validate(raw)
}

// Validate coerces a loosely-typed payload into Content. Unknown fields are ignored and
// numbers or booleans encoded as strings are accepted. It fails with ErrEmpty when there
// is no multiple-choice question.
func Validate(raw any) (*Content, error) {
	if raw == nil {
		return nil, ErrEmpty
	}

	var rc rawContent
	d, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &rc,
	})
	if err != nil {
		return nil, fmt.Errorf("quiz: new decoder: %w", err)
	}
	if err := d.Decode(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	c := &Content{}
	for _, q := range firstNonEmpty(rc.MultipleChoice, rc.MultipleChoiceAlt, rc.MCQs) {
		c.MultipleChoice = append(c.MultipleChoice, MultipleChoice{
			Common:       q.common(),
			Options:      q.Options,
			CorrectIndex: firstInt(q.CorrectIndex, q.CorrectAnswerIndex, q.CorrectIndexAlt),
		})
	}
	for _, q := range firstNonEmpty(rc.TrueFalse, rc.TrueFalseAlt, rc.TFQs) {
		c.TrueFalse = append(c.TrueFalse, TrueFalse{
			Common:       q.common(),
			CorrectValue: firstBool(q.CorrectValue, q.IsTrue, q.CorrectValueAlt),
		})
	}

	if len(c.MultipleChoice) == 0 {
		return nil, ErrEmpty
	}

	return c, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func firstNonEmpty(lists ...[]rawQuestion) []rawQuestion {
	for _, l := range lists {
		if len(l) > 0 {
			return l
		}
	}
	return nil
}

// firstInt returns the first key present. A question without a key gets -1, which no
// Choice matches.
func firstInt(vs ...*int) int {
	for _, v := range vs {
		if v != nil {
			return *v
		}
	}
	return -1
}

func firstBool(vs ...*bool) bool {
	for _, v := range vs {
		if v != nil {
			return *v
		}
	}
	return false
}
