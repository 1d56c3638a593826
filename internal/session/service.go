package session

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/quizgen/internal/domain"
	"github.com/victornm/quizgen/internal/errors"
	"github.com/victornm/quizgen/internal/event"
	"github.com/victornm/quizgen/internal/quiz"
	"github.com/victornm/quizgen/internal/telemetry"
)

const (
	defaultTTL    = 24 * time.Hour
	defaultPrefix = "quizgen"
	maxTxAttempts = 5
)

// reader is satisfied by both a client and a transaction.
type reader interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

type Config struct {
	Redis    redis.UniversalClient
	EventBus *event.Bus
	Prefix   string
	// TTL is how long an untouched quiz or session is kept.
	TTL time.Duration
	Now func() time.Time
}

// Service stores quizzes and sessions in Redis and applies session transitions atomically.
type Service struct {
	redis  redis.UniversalClient
	eb     *event.Bus
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		redis:  c.Redis,
		eb:     c.EventBus,
		prefix: c.Prefix,
		ttl:    c.TTL,
		now:    c.Now,
	}

	if s.prefix == "" {
		s.prefix = defaultPrefix
	}
	if s.ttl <= 0 {
		s.ttl = defaultTTL
	}
	if s.now == nil {
		s.now = time.Now
	}

	return s
}

// Quiz is a stored quiz and its content.
type Quiz struct {
	QuizID     string        `json:"quiz_id"`
	Source     string        `json:"source"`
	CreateTime time.Time     `json:"create_time"`
	Content    *quiz.Content `json:"content"`
}

// View is a session as seen by its player.
type View struct {
	SessionID string   `json:"session_id"`
	QuizID    string   `json:"quiz_id"`
	Username  string   `json:"username,omitempty"`
	Snapshot  Snapshot `json:"snapshot"`
}

type stored struct {
	SessionID string    `json:"session_id"`
	QuizID    string    `json:"quiz_id"`
	Username  string    `json:"username,omitempty"`
	StartTime time.Time `json:"start_time"`
	Progress  Progress  `json:"progress"`
}

type CreateQuizRequest struct {
	Content *quiz.Content
	// Source describes where the content came from, e.g. the input kind.
	Source string
}

// CreateQuiz stores validated content so sessions can be started from it.
func (s *Service) CreateQuiz(ctx context.Context, req CreateQuizRequest) (*Quiz, error) {
	if req.Content == nil || len(req.Content.MultipleChoice) == 0 {
		return nil, errors.Wrap(errors.CodeInvalidArgument, quiz.ErrEmpty)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate quiz ID: %w", err)
	}

	q := &Quiz{
		QuizID:     id.String(),
		Source:     req.Source,
		CreateTime: s.now(),
		Content:    req.Content,
	}

	b, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("marshal quiz: %w", err)
	}
	if err := s.redis.Set(ctx, s.quizKey(q.QuizID), b, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("store quiz: %w", err)
	}

	s.eb.Publish(ctx, domain.EventQuizGenerated{
		Quiz: domain.Quiz{
			QuizID:     q.QuizID,
			Source:     q.Source,
			CreateTime: q.CreateTime,
		},
		Questions: q.Content.Len(),
	})

	return q, nil
}

type GetQuizRequest struct {
	QuizID string
}

func (s *Service) GetQuiz(ctx context.Context, req GetQuizRequest) (*Quiz, error) {
	return s.getQuiz(ctx, s.redis, req.QuizID)
}

func (s *Service) getQuiz(ctx context.Context, r reader, id string) (*Quiz, error) {
	b, err := r.Get(ctx, s.quizKey(id)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("quiz not found: quiz=%s", id))
	}
	if err != nil {
		return nil, fmt.Errorf("get quiz: %w", err)
	}

	var q Quiz
	if err := json.Unmarshal(b, &q); err != nil {
		return nil, fmt.Errorf("unmarshal quiz %s: %w", id, err)
	}

	return &q, nil
}

type StartSessionRequest struct {
	QuizID string
	// Username is optional. Anonymous sessions are neither archived nor ranked.
	Username string
}

// StartSession begins a new attempt at a stored quiz.
func (s *Service) StartSession(ctx context.Context, req StartSessionRequest) (*View, error) {
	q, err := s.getQuiz(ctx, s.redis, req.QuizID)
	if err != nil {
		return nil, err
	}

	sess, err := New(q.Content)
	if err != nil {
		return nil, convert(err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate session ID: %w", err)
	}

	st := stored{
		SessionID: id.String(),
		QuizID:    q.QuizID,
		Username:  req.Username,
		StartTime: s.now(),
		Progress:  sess.Progress(),
	}

	b, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}
	// The quiz must outlive every session played on it.
	_, err = s.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.sessionKey(st.SessionID), b, s.ttl)
		p.Expire(ctx, s.quizKey(st.QuizID), s.ttl)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	telemetry.SessionsStarted.Inc()

	return view(st, sess), nil
}

type GetSessionRequest struct {
	SessionID string
}

func (s *Service) GetSession(ctx context.Context, req GetSessionRequest) (*View, error) {
	st, sess, err := s.load(ctx, s.redis, req.SessionID)
	if err != nil {
		return nil, err
	}

	return view(*st, sess), nil
}

type SubmitAnswerRequest struct {
	SessionID string
	Answer    quiz.Answer
}

type SubmitAnswerResponse struct {
	Correct bool
	View    *View
}

// SubmitAnswer answers the current question of a session. A second answer to the same
// question fails with CodeFailedPrecondition and changes nothing.
func (s *Service) SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) (*SubmitAnswerResponse, error) {
	var (
		correct bool
		kind    quiz.Kind
	)

	v, _, err := s.mutate(ctx, req.SessionID, func(_ reader, _ *stored, sess *Session) error {
		if q := sess.Current(); q != nil {
			kind = q.Kind()
		}

		var err error
		correct, err = sess.SubmitAnswer(req.Answer)
		return err
	})
	if err != nil {
		return nil, err
	}

	telemetry.AnswersSubmitted.WithLabelValues(string(kind), strconv.FormatBool(correct)).Inc()

	return &SubmitAnswerResponse{
		Correct: correct,
		View:    v,
	}, nil
}

type AdvanceRequest struct {
	SessionID string
}

// Advance moves a revealed session to its next question, or finishes it. Finishing a
// named session publishes domain.EventSessionFinished.
func (s *Service) Advance(ctx context.Context, req AdvanceRequest) (*View, error) {
	v, sess, err := s.mutate(ctx, req.SessionID, func(_ reader, _ *stored, sess *Session) error {
		return sess.Advance()
	})
	if err != nil {
		return nil, err
	}

	if sess.State() == StateFinished {
		s.finished(ctx, v, sess)
	}

	return v, nil
}

func (s *Service) finished(ctx context.Context, v *View, sess *Session) {
	r, err := sess.Report()
	if err != nil {
		return
	}

	telemetry.SessionPercentage.Observe(float64(r.Percentage))

	if v.Username == "" {
		return
	}

	history := make([]domain.Answer, 0, len(r.History))
	for _, h := range r.History {
		history = append(history, domain.Answer{Question: h.Question, Correct: h.Correct})
	}

	s.eb.Publish(ctx, domain.EventSessionFinished{
		Result: domain.Result{
			SessionID:  v.SessionID,
			QuizID:     v.QuizID,
			Username:   v.Username,
			Score:      r.Score,
			Total:      r.Total,
			Percentage: r.Percentage,
			Tier:       string(r.Tier),
			History:    history,
			FinishTime: s.now(),
		},
	})
}

type ResetRequest struct {
	SessionID string
	// QuizID optionally switches the session to another stored quiz.
	QuizID string
}

// Reset restarts a session from its first question, in any state.
func (s *Service) Reset(ctx context.Context, req ResetRequest) (*View, error) {
	v, _, err := s.mutate(ctx, req.SessionID, func(r reader, st *stored, sess *Session) error {
		if req.QuizID == "" || req.QuizID == st.QuizID {
			return sess.Reset(nil)
		}

		q, err := s.getQuiz(ctx, r, req.QuizID)
		if err != nil {
			return err
		}
		if err := sess.Reset(q.Content); err != nil {
			return err
		}
		st.QuizID = q.QuizID
		return nil
	})
	if err != nil {
		return nil, err
	}

	telemetry.SessionsStarted.Inc()

	return v, nil
}

type ReportRequest struct {
	SessionID string
}

// Report returns the final result of a finished session.
func (s *Service) Report(ctx context.Context, req ReportRequest) (*Report, error) {
	_, sess, err := s.load(ctx, s.redis, req.SessionID)
	if err != nil {
		return nil, err
	}

	r, err := sess.Report()
	if err != nil {
		return nil, convert(err)
	}

	return r, nil
}

func (s *Service) load(ctx context.Context, r reader, id string) (*stored, *Session, error) {
	b, err := r.Get(ctx, s.sessionKey(id)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, nil, errors.New(errors.CodeNotFound, errors.WithMessagef("session not found: session=%s", id))
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get session: %w", err)
	}

	var st stored
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, nil, fmt.Errorf("unmarshal session %s: %w", id, err)
	}

	q, err := s.getQuiz(ctx, r, st.QuizID)
	if err != nil {
		return nil, nil, err
	}

	sess, err := Restore(q.Content, st.Progress)
	if err != nil {
		return nil, nil, convert(err)
	}

	return &st, sess, nil
}

// mutate applies fn to a stored session inside an optimistic transaction, so concurrent
// requests for the same session can never both act on the same state.
func (s *Service) mutate(ctx context.Context, id string, fn func(r reader, st *stored, sess *Session) error) (*View, *Session, error) {
	key := s.sessionKey(id)

	var (
		st   *stored
		sess *Session
	)

	txf := func(tx *redis.Tx) error {
		var err error
		st, sess, err = s.load(ctx, tx, id)
		if err != nil {
			return err
		}

		if err := fn(tx, st, sess); err != nil {
			return err
		}

		st.Progress = sess.Progress()
		b, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, b, s.ttl)
			p.Expire(ctx, s.quizKey(st.QuizID), s.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxAttempts; i++ {
		err := s.redis.Watch(ctx, txf, key)
		if stderrors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, nil, convert(err)
		}

		return view(*st, sess), sess, nil
	}

	return nil, nil, errors.New(errors.CodeUnavailable,
		errors.WithMessagef("session is busy, retry: session=%s", id))
}

func view(st stored, sess *Session) *View {
	return &View{
		SessionID: st.SessionID,
		QuizID:    st.QuizID,
		Username:  st.Username,
		Snapshot:  sess.Snapshot(),
	}
}

// convert maps state machine errors onto API codes. Coded errors pass through.
func convert(err error) error {
	switch {
	case stderrors.Is(err, ErrInvalidOperation):
		return errors.Wrap(errors.CodeFailedPrecondition, err)
	case stderrors.Is(err, ErrInvalidAnswer), stderrors.Is(err, quiz.ErrEmpty):
		return errors.Wrap(errors.CodeInvalidArgument, err)
	case stderrors.Is(err, ErrConfiguration):
		return errors.Internal(err)
	}

	return err
}

func (s *Service) quizKey(id string) string {
	return fmt.Sprintf("%s:quiz:%s", s.prefix, id)
}

func (s *Service) sessionKey(id string) string {
	return fmt.Sprintf("%s:session:%s", s.prefix, id)
}
