package session

import (
	"fmt"

	"github.com/victornm/quizgen/internal/quiz"
)

// OptionStatus is how an option should be drawn.
type OptionStatus string

const (
	OptionNeutral   OptionStatus = "neutral"
	OptionSelected  OptionStatus = "selected"
	OptionCorrect   OptionStatus = "correct"
	OptionIncorrect OptionStatus = "incorrect"
	OptionDimmed    OptionStatus = "dimmed"
)

// Classify derives the display status of option from the current selection. It never
// changes session state and returns the same status for the same inputs.
func Classify(q quiz.Question, selection quiz.Answer, revealed bool, option quiz.Answer) OptionStatus {
	switch {
	case !revealed && selection != nil && selection == option:
		return OptionSelected
	case !revealed:
		return OptionNeutral
	case option == q.Correct():
		return OptionCorrect
	case selection == option:
		return OptionIncorrect
	default:
		return OptionDimmed
	}
}

// Snapshot is a read-only view of a session for rendering.
type Snapshot struct {
	State     State         `json:"state"`
	Position  int           `json:"position"`
	Total     int           `json:"total"`
	Current   *QuestionView `json:"current_question,omitempty"`
	Selection quiz.Answer   `json:"current_selection"`
	Revealed  bool          `json:"is_revealed"`
	Score     int           `json:"score"`
}

type QuestionView struct {
	Kind quiz.Kind `json:"kind"`
	Text string    `json:"question"`
	// Explanation is only filled in once the answer is revealed.
	Explanation string       `json:"explanation,omitempty"`
	Correct     bool         `json:"correct,omitempty"`
	Options     []OptionView `json:"options"`
}

type OptionView struct {
	Value  quiz.Answer  `json:"value"`
	Label  string       `json:"label"`
	Status OptionStatus `json:"status"`
}

func (s *Session) Snapshot() Snapshot {
	ss := Snapshot{
		State:     s.state,
		Position:  s.position,
		Total:     len(s.questions),
		Selection: s.selection,
		Revealed:  s.state == StateRevealed,
		Score:     s.score,
	}

	q := s.Current()
	if q == nil {
		return ss
	}

	v := &QuestionView{
		Kind: q.Kind(),
		Text: q.Base().Text,
	}
	if ss.Revealed {
		v.Explanation = q.Base().Explanation
		v.Correct = quiz.IsCorrect(q, s.selection)
	}

	for _, o := range quiz.Options(q) {
		v.Options = append(v.Options, OptionView{
			Value:  o,
			Label:  label(q, o),
			Status: Classify(q, s.selection, ss.Revealed, o),
		})
	}
	ss.Current = v

	return ss
}

func label(q quiz.Question, o quiz.Answer) string {
	switch q := q.(type) {
	case quiz.MultipleChoice:
		if c, ok := o.(quiz.Choice); ok && int(c) >= 0 && int(c) < len(q.Options) {
			return q.Options[c]
		}
	case quiz.TrueFalse:
		if t, ok := o.(quiz.Truth); ok && bool(t) {
			return "True"
		}
		return "False"
	}

	return fmt.Sprint(o)
}
