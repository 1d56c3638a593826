// Package quiz defines the immutable content of a generated quiz: the two question
// variants, the answers a player can give, and the correctness key.
package quiz

import "fmt"

// Kind tags a question variant.
type Kind string

const (
	KindMultipleChoice Kind = "multiple_choice"
	KindTrueFalse      Kind = "true_false"
)

// Question is either a MultipleChoice or a TrueFalse. The set of variants is closed.
type Question interface {
	Kind() Kind
	Base() Common
	// Correct returns the answer that scores for this question.
	Correct() Answer

	question()
}

// Common holds the fields every question variant has.
type Common struct {
	Text        string `json:"question"`
	Explanation string `json:"explanation"`
}

func (c Common) Base() Common { return c }

// MultipleChoice has one correct option among Options. Generators are asked for 4 options
// but any count is carried through as-is.
type MultipleChoice struct {
	Common
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
}

func (MultipleChoice) Kind() Kind { return KindMultipleChoice }
func (q MultipleChoice) Correct() Answer { return Choice(q.CorrectIndex) }
func (MultipleChoice) question() {}

type TrueFalse struct {
	Common
	CorrectValue bool `json:"correct_value"`
}

func (TrueFalse) Kind() Kind { return KindTrueFalse }
func (q TrueFalse) Correct() Answer { return Truth(q.CorrectValue) }
func (TrueFalse) question() {}

// Answer is either a Choice (option index) or a Truth (true/false verdict).
type Answer interface {
	fmt.Stringer

	answer()
}

// Choice selects an option of a MultipleChoice question by index.
type Choice int

func (c Choice) String() string { return fmt.Sprintf("option %d", int(c)) }
func (Choice) answer() {}

// Truth is a verdict on a TrueFalse question.
type Truth bool

func (t Truth) String() string { return fmt.Sprintf("%t", bool(t)) }
func (Truth) answer() {}

// IsCorrect reports whether a answers q. An answer of the wrong variant is never correct.
func IsCorrect(q Question, a Answer) bool {
	switch q := q.(type) {
	case MultipleChoice:
		c, ok := a.(Choice)
		return ok && int(c) == q.CorrectIndex
	case TrueFalse:
		t, ok := a.(Truth)
		return ok && bool(t) == q.CorrectValue
	default:
		panic(fmt.Sprintf("quiz: unknown question variant %T", q))
	}
}

// Options lists the answers a player can pick for q, in display order.
func Options(q Question) []Answer {
	switch q := q.(type) {
	case MultipleChoice:
		opts := make([]Answer, len(q.Options))
		for i := range q.Options {
			opts[i] = Choice(i)
		}
		return opts
	case TrueFalse:
		return []Answer{Truth(true), Truth(false)}
	default:
		panic(fmt.Sprintf("quiz: unknown question variant %T", q))
	}
}

// Content is a validated quiz. It must not be modified after Validate returns it.
type Content struct {
	MultipleChoice []MultipleChoice `json:"multiple_choice"`
	TrueFalse      []TrueFalse      `json:"true_false"`
}

// Questions returns every multiple-choice question followed by every true/false question,
// in the order they were generated.
func (c *Content) Questions() []Question {
	qs := make([]Question, 0, c.Len())
	for _, q := range c.MultipleChoice {
		qs = append(qs, q)
	}
	for _, q := range c.TrueFalse {
		qs = append(qs, q)
	}
	return qs
}

func (c *Content) Len() int {
	if c == nil {
		return 0
	}
	return len(c.MultipleChoice) + len(c.TrueFalse)
}
