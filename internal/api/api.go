// Package api exposes the quiz services over HTTP and pushes notifications over Redis pubsub.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/quizgen/internal/domain"
	"github.com/victornm/quizgen/internal/errors"
	"github.com/victornm/quizgen/internal/event"
	"github.com/victornm/quizgen/internal/generate"
	"github.com/victornm/quizgen/internal/leaderboard"
	"github.com/victornm/quizgen/internal/quiz"
	"github.com/victornm/quizgen/internal/score"
	"github.com/victornm/quizgen/internal/session"
)

const clientIDHeader = "X-Client-ID"

type Config struct {
	Router      gin.IRouter
	EventBus    *event.Bus
	Generate    *generate.Service
	Session     *session.Service
	Leaderboard *leaderboard.Service
	// Score is optional. Without it the results route is not served.
	Score        *score.Service
	Redis        Redis
	PubsubPrefix string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	gs  *generate.Service
	qss *session.Service
	ls  *leaderboard.Service
	ss  *score.Service

	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		gs:     c.Generate,
		qss:    c.Session,
		ls:     c.Leaderboard,
		ss:     c.Score,
		redis:  c.Redis,
		prefix: c.PubsubPrefix,
	}

	// HTTP APIs
	v1 := c.Router.Group("/v1")
	v1.POST("/quizzes", a.GenerateQuiz)
	v1.GET("/quizzes/:quiz_id", a.GetQuiz)
	v1.POST("/quizzes/:quiz_id/sessions", a.StartSession)
	v1.GET("/quizzes/:quiz_id/leaderboard", a.GetLeaderboard)
	v1.GET("/sessions/:session_id", a.GetSession)
	v1.POST("/sessions/:session_id/answer", a.SubmitAnswer)
	v1.POST("/sessions/:session_id/advance", a.Advance)
	v1.POST("/sessions/:session_id/reset", a.Reset)
	v1.GET("/sessions/:session_id/report", a.Report)
	if a.ss != nil {
		v1.GET("/users/:username/results", a.ListResults)
	}

	// Register event handlers
	if a.redis != nil {
		c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, "api", func(ctx context.Context, e event.Event) error {
			return a.PublishLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
		})
	}

	return a
}

type (
	GenerateQuizRequest struct {
		Kind     generate.Kind `json:"kind" binding:"required"`
		URL      string        `json:"url"`
		Text     string        `json:"text"`
		MIMEType string        `json:"mime_type"`
		// Data is the base64 encoded file.
		Data string `json:"data"`
		Note string `json:"note"`
	}

	Quiz struct {
		QuizID         string    `json:"quiz_id"`
		Source         string    `json:"source"`
		CreateTime     time.Time `json:"create_time"`
		MultipleChoice int       `json:"multiple_choice"`
		TrueFalse      int       `json:"true_false"`
		Questions      []string  `json:"questions"`
	}
)

// GenerateQuiz generates quiz content from the submitted material and stores it.
func (a *API) GenerateQuiz(c *gin.Context) {
	var req GenerateQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.abort(c, errors.Wrap(errors.CodeInvalidArgument, err))
		return
	}

	content, err := a.gs.Generate(c.Request.Context(), generate.GenerateRequest{
		ClientID: c.GetHeader(clientIDHeader),
		Input: generate.Input{
			Kind:       req.Kind,
			URL:        req.URL,
			Text:       req.Text,
			MIMEType:   req.MIMEType,
			Base64Data: req.Data,
			Note:       req.Note,
		},
	})
	if err != nil {
		a.abort(c, err)
		return
	}

	q, err := a.qss.CreateQuiz(c.Request.Context(), session.CreateQuizRequest{
		Content: content,
		Source:  string(req.Kind),
	})
	if err != nil {
		a.abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, toQuiz(q))
}

func (a *API) GetQuiz(c *gin.Context) {
	q, err := a.qss.GetQuiz(c.Request.Context(), session.GetQuizRequest{
		QuizID: c.Param("quiz_id"),
	})
	if err != nil {
		a.abort(c, err)
		return
	}

	c.JSON(http.StatusOK, toQuiz(q))
}

func toQuiz(q *session.Quiz) Quiz {
	res := Quiz{
		QuizID:         q.QuizID,
		Source:         q.Source,
		CreateTime:     q.CreateTime,
		MultipleChoice: len(q.Content.MultipleChoice),
		TrueFalse:      len(q.Content.TrueFalse),
	}

	for _, qq := range q.Content.Questions() {
		res.Questions = append(res.Questions, qq.Base().Text)
	}

	return res
}

type StartSessionRequest struct {
	Username string `json:"username"`
}

func (a *API) StartSession(c *gin.Context) {
	var req StartSessionRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		a.abort(c, err)
		return
	}

	v, err := a.qss.StartSession(c.Request.Context(), session.StartSessionRequest{
		QuizID:   c.Param("quiz_id"),
		Username: req.Username,
	})
	if err != nil {
		a.abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, v)
}

func (a *API) GetSession(c *gin.Context) {
	v, err := a.qss.GetSession(c.Request.Context(), session.GetSessionRequest{
		SessionID: c.Param("session_id"),
	})
	if err != nil {
		a.abort(c, err)
		return
	}

	c.JSON(http.StatusOK, v)
}

type (
	SubmitAnswerRequest struct {
		// Value is an option index for a multiple-choice question, or a boolean for a
		// true/false question.
		Value json.RawMessage `json:"value" binding:"required"`
	}

	SubmitAnswerResponse struct {
		Correct bool          `json:"correct"`
		Session *session.View `json:"session"`
	}
)

func (a *API) SubmitAnswer(c *gin.Context) {
	var req SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.abort(c, errors.Wrap(errors.CodeInvalidArgument, err))
		return
	}

	ans, err := parseAnswer(req.Value)
	if err != nil {
		a.abort(c, err)
		return
	}

	resp, err := a.qss.SubmitAnswer(c.Request.Context(), session.SubmitAnswerRequest{
		SessionID: c.Param("session_id"),
		Answer:    ans,
	})
	if err != nil {
		a.abort(c, err)
		return
	}

	c.JSON(http.StatusOK, SubmitAnswerResponse{
		Correct: resp.Correct,
		Session: resp.View,
	})
}

func parseAnswer(raw json.RawMessage) (quiz.Answer, error) {
	// null decodes into any scalar without error.
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, errors.Wrap(errors.CodeInvalidArgument, session.ErrInvalidAnswer)
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return quiz.Truth(b), nil
	}

	var i int
	if err := json.Unmarshal(raw, &i); err == nil {
		return quiz.Choice(i), nil
	}

	return nil, errors.New(errors.CodeInvalidArgument,
		errors.WithMessagef("answer value must be an option index or a boolean: value=%s", raw))
}

func (a *API) Advance(c *gin.Context) {
	v, err := a.qss.Advance(c.Request.Context(), session.AdvanceRequest{
		SessionID: c.Param("session_id"),
	})
	if err != nil {
		a.abort(c, err)
		return
	}

	c.JSON(http.StatusOK, v)
}

type ResetRequest struct {
	QuizID string `json:"quiz_id"`
}

func (a *API) Reset(c *gin.Context) {
	var req ResetRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		a.abort(c, err)
		return
	}

	v, err := a.qss.Reset(c.Request.Context(), session.ResetRequest{
		SessionID: c.Param("session_id"),
		QuizID:    req.QuizID,
	})
	if err != nil {
		a.abort(c, err)
		return
	}

	c.JSON(http.StatusOK, v)
}

func (a *API) Report(c *gin.Context) {
	r, err := a.qss.Report(c.Request.Context(), session.ReportRequest{
		SessionID: c.Param("session_id"),
	})
	if err != nil {
		a.abort(c, err)
		return
	}

	c.JSON(http.StatusOK, r)
}

func (a *API) GetLeaderboard(c *gin.Context) {
	var q struct {
		Limit int `form:"limit" binding:"min=0"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		a.abort(c, errors.Wrap(errors.CodeInvalidArgument, err))
		return
	}

	l, err := a.ls.GetLeaderboard(c.Request.Context(), leaderboard.GetLeaderboardRequest{
		QuizID: c.Param("quiz_id"),
		Limit:  q.Limit,
	})
	if err != nil {
		a.abort(c, err)
		return
	}

	c.JSON(http.StatusOK, toLeaderboard(*l))
}

type Result struct {
	SessionID  string          `json:"session_id"`
	QuizID     string          `json:"quiz_id"`
	Score      int             `json:"final_score"`
	Total      int             `json:"total"`
	Percentage int             `json:"percentage"`
	Tier       string          `json:"feedback_tier"`
	History    []domain.Answer `json:"history"`
	FinishTime time.Time       `json:"finish_time"`
}

func (a *API) ListResults(c *gin.Context) {
	rs, err := a.ss.ListResults(c.Request.Context(), score.ListResultsRequest{
		Username: c.Param("username"),
	})
	if err != nil {
		a.abort(c, err)
		return
	}

	res := make([]Result, 0, len(rs))
	for _, r := range rs {
		res = append(res, Result{
			SessionID:  r.SessionID,
			QuizID:     r.QuizID,
			Score:      r.Score,
			Total:      r.Total,
			Percentage: r.Percentage,
			Tier:       r.Tier,
			History:    r.History,
			FinishTime: r.FinishTime,
		})
	}

	c.JSON(http.StatusOK, gin.H{"results": res})
}

// bindOptionalJSON binds the body into v if there is one.
func bindOptionalJSON(c *gin.Context, v any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}

	if err := c.ShouldBindJSON(v); err != nil {
		return errors.Wrap(errors.CodeInvalidArgument, err)
	}

	return nil
}

// abort renders err as {code, message} with the matching HTTP status.
func (a *API) abort(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		slog.ErrorContext(c.Request.Context(), "api: request failed",
			"route", c.FullPath(),
			"error", err,
		)
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(e.HTTPStatusCode(), gin.H{
		"code":    e.Code.String(),
		"message": e.Message,
	})
}
