package session

import (
	"errors"
	"fmt"

	"github.com/victornm/quizgen/internal/quiz"
	"github.com/victornm/quizgen/internal/score"
)

// State is the position of a Session in its lifecycle.
type State string

const (
	// StateAnswering waits for an answer to the current question.
	StateAnswering State = "answering"
	// StateRevealed shows feedback for the current question until Advance is called.
	StateRevealed State = "revealed"
	// StateFinished has no current question. Only Reset leaves it.
	StateFinished State = "finished"
)

var (
	// ErrConfiguration means a session was built from content without questions.
	ErrConfiguration = errors.New("session: quiz content has no questions")
	// ErrInvalidOperation means a transition was requested in a state that does not allow it.
	// The session is left unchanged.
	ErrInvalidOperation = errors.New("session: invalid operation")
	// ErrInvalidAnswer means no answer value was given.
	ErrInvalidAnswer = errors.New("session: missing answer")
)

// Record is one entry of the answer log.
type Record struct {
	Question string `json:"question"`
	Correct  bool   `json:"correct"`
}

// Session is one attempt at a quiz. It is not safe for concurrent use.
type Session struct {
	content   *quiz.Content
	questions []quiz.Question

	state     State
	position  int
	selection quiz.Answer
	score     int
	history   []Record
}

// New starts a session at the first question of c.
func New(c *quiz.Content) (*Session, error) {
	s := &Session{}
	if err := s.Reset(c); err != nil {
		return nil, err
	}

	return s, nil
}

// SubmitAnswer records a as the answer to the current question and reveals the feedback.
// It reports whether a was correct. Outside StateAnswering it returns ErrInvalidOperation.
func (s *Session) SubmitAnswer(a quiz.Answer) (bool, error) {
	if s.state != StateAnswering {
		return false, fmt.Errorf("%w: submit answer while %s", ErrInvalidOperation, s.state)
	}
	if a == nil {
		return false, ErrInvalidAnswer
	}

	q := s.questions[s.position]
	correct := quiz.IsCorrect(q, a)

	s.selection = a
	if correct {
		s.score++
	}
	s.history = append(s.history, Record{
		Question: q.Base().Text,
		Correct:  correct,
	})
	s.state = StateRevealed

	return correct, nil
}

// Advance moves past a revealed question, either to the next one or to StateFinished.
func (s *Session) Advance() error {
	if s.state != StateRevealed {
		return fmt.Errorf("%w: advance while %s", ErrInvalidOperation, s.state)
	}

	s.position++
	s.selection = nil
	if s.position == len(s.questions) {
		s.state = StateFinished
		return nil
	}

	s.state = StateAnswering
	return nil
}

// Reset restarts the session from the first question with no score and no history.
// A nil c keeps the current content.
func (s *Session) Reset(c *quiz.Content) error {
	if c == nil {
		c = s.content
	}
	if c.Len() == 0 {
		return ErrConfiguration
	}

	s.content = c
	s.questions = c.Questions()
	s.state = StateAnswering
	s.position = 0
	s.selection = nil
	s.score = 0
	s.history = nil

	return nil
}

func (s *Session) State() State { return s.state }

func (s *Session) Position() int { return s.position }

func (s *Session) Total() int { return len(s.questions) }

func (s *Session) Score() int { return s.score }

func (s *Session) Content() *quiz.Content { return s.content }

// Selection returns the answer given to the current question, or nil.
func (s *Session) Selection() quiz.Answer { return s.selection }

// Current returns the question at the current position, or nil once finished.
func (s *Session) Current() quiz.Question {
	if s.state == StateFinished {
		return nil
	}

	return s.questions[s.position]
}

// History returns a copy of the answer log.
func (s *Session) History() []Record {
	return append([]Record(nil), s.history...)
}

// Report summarizes a finished session.
type Report struct {
	Score      int        `json:"final_score"`
	Total      int        `json:"total"`
	Percentage int        `json:"percentage"`
	Tier       score.Tier `json:"feedback_tier"`
	History    []Record   `json:"history"`
}

// Report returns the final result. It is only available in StateFinished.
func (s *Session) Report() (*Report, error) {
	if s.state != StateFinished {
		return nil, fmt.Errorf("%w: report while %s", ErrInvalidOperation, s.state)
	}

	p := score.Percentage(s.score, len(s.questions))
	return &Report{
		Score:      s.score,
		Total:      len(s.questions),
		Percentage: p,
		Tier:       score.TierOf(p),
		History:    s.History(),
	}, nil
}
