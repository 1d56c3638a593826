package session

import (
	"fmt"

	"github.com/victornm/quizgen/internal/quiz"
)

// Progress is the storable part of a session. The content is stored separately.
type Progress struct {
	State    State    `json:"state"`
	Position int      `json:"position"`
	Choice   *int     `json:"choice,omitempty"`
	Truth    *bool    `json:"truth,omitempty"`
	Score    int      `json:"score"`
	History  []Record `json:"history"`
}

func (s *Session) Progress() Progress {
	p := Progress{
		State:    s.state,
		Position: s.position,
		Score:    s.score,
		History:  s.History(),
	}

	switch a := s.selection.(type) {
	case quiz.Choice:
		i := int(a)
		p.Choice = &i
	case quiz.Truth:
		b := bool(a)
		p.Truth = &b
	}

	return p
}

// Restore rebuilds a session from content and stored progress. Progress that could not
// have been produced by the transitions of a Session is rejected.
func Restore(c *quiz.Content, p Progress) (*Session, error) {
	s, err := New(c)
	if err != nil {
		return nil, err
	}

	var sel quiz.Answer
	switch {
	case p.Choice != nil:
		sel = quiz.Choice(*p.Choice)
	case p.Truth != nil:
		sel = quiz.Truth(*p.Truth)
	}

	answered := p.Position
	switch p.State {
	case StateAnswering:
		if p.Position >= s.Total() || sel != nil {
			return nil, fmt.Errorf("%w: corrupt progress in %s", ErrConfiguration, p.State)
		}
	case StateRevealed:
		if p.Position >= s.Total() || sel == nil {
			return nil, fmt.Errorf("%w: corrupt progress in %s", ErrConfiguration, p.State)
		}
		answered++
	case StateFinished:
		if p.Position != s.Total() {
			return nil, fmt.Errorf("%w: corrupt progress in %s", ErrConfiguration, p.State)
		}
	default:
		return nil, fmt.Errorf("%w: unknown state %q", ErrConfiguration, p.State)
	}

	if p.Position < 0 || len(p.History) != answered || p.Score < 0 || p.Score > answered {
		return nil, fmt.Errorf("%w: corrupt progress at position %d", ErrConfiguration, p.Position)
	}

	correct := 0
	for _, r := range p.History {
		if r.Correct {
			correct++
		}
	}
	if p.Score != correct {
		return nil, fmt.Errorf("%w: score %d disagrees with %d correct answers", ErrConfiguration, p.Score, correct)
	}

	s.state = p.State
	s.position = p.Position
	s.selection = sel
	s.score = p.Score
	s.history = append([]Record(nil), p.History...)

	return s, nil
}
