// Package generate turns source material into quiz content through a pluggable backend.
package generate

import (
	"context"
	"encoding/base64"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/quizgen/internal/errors"
	"github.com/victornm/quizgen/internal/quiz"
	"github.com/victornm/quizgen/internal/telemetry"
)

// ErrGeneration wraps every backend failure: transport, quota, or an unusable response.
var ErrGeneration = stderrors.New("generate: quiz generation failed")

type Kind string

const (
	KindURL  Kind = "url"
	KindText Kind = "text"
	KindFile Kind = "file"
)

// Input is the source material for one quiz.
type Input struct {
	Kind Kind
	URL  string
	Text string

	MIMEType   string
	Base64Data string
	// Note is an optional instruction sent along with a file.
	Note string
}

// Data decodes the file payload.
func (in Input) Data() ([]byte, error) {
	return base64.StdEncoding.DecodeString(in.Base64Data)
}

// Validate checks that the fields required by the input kind are present.
func (in Input) Validate() error {
	switch in.Kind {
	case KindURL:
		if strings.TrimSpace(in.URL) == "" {
			return fmt.Errorf("url is required")
		}
		if _, err := url.ParseRequestURI(strings.TrimSpace(in.URL)); err != nil {
			return fmt.Errorf("invalid url: %v", err)
		}
	case KindText:
		if strings.TrimSpace(in.Text) == "" {
			return fmt.Errorf("text is required")
		}
	case KindFile:
		if in.MIMEType == "" {
			return fmt.Errorf("mime type is required")
		}
		if in.Base64Data == "" {
			return fmt.Errorf("file data is required")
		}
		if _, err := in.Data(); err != nil {
			return fmt.Errorf("file data is not valid base64: %v", err)
		}
	default:
		return fmt.Errorf("unknown input kind %q", in.Kind)
	}

	return nil
}

// Generator is a quiz generation backend. Implementations return content that already
// passed quiz.Validate.
type Generator interface {
	Generate(ctx context.Context, in Input) (*quiz.Content, error)
}

const (
	defaultLockTTL = 5 * time.Minute
	defaultTimeout = 3 * time.Minute
	defaultPrefix  = "quizgen"
)

type Config struct {
	Generator Generator
	Redis     redis.UniversalClient
	Prefix    string
	// LockTTL bounds how long a crashed request can block its client.
	LockTTL time.Duration
	Timeout time.Duration
}

// Service runs generation requests, allowing one outstanding request per client.
type Service struct {
	gen     Generator
	redis   redis.UniversalClient
	prefix  string
	lockTTL time.Duration
	timeout time.Duration
}

func NewService(c Config) *Service {
	s := &Service{
		gen:     c.Generator,
		redis:   c.Redis,
		prefix:  c.Prefix,
		lockTTL: c.LockTTL,
		timeout: c.Timeout,
	}

	if s.prefix == "" {
		s.prefix = defaultPrefix
	}
	if s.lockTTL <= 0 {
		s.lockTTL = defaultLockTTL
	}
	if s.timeout <= 0 {
		s.timeout = defaultTimeout
	}

	return s
}

type GenerateRequest struct {
	// ClientID identifies the requester for the in-flight guard. Empty skips the guard.
	ClientID string
	Input    Input
}

// Generate produces validated quiz content. Nothing is retried. If ctx is cancelled the
// backend result is dropped.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (*quiz.Content, error) {
	kind := string(req.Input.Kind)

	if err := req.Input.Validate(); err != nil {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("%s", err), errors.WithCause(err))
	}

	if req.ClientID != "" {
		release, err := s.lock(ctx, req.ClientID)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	gctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	c, err := s.gen.Generate(gctx, req.Input)
	telemetry.GenerationDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())

	if err == nil && (c == nil || len(c.MultipleChoice) == 0) {
		err = quiz.ErrEmpty
	}

	switch {
	case err == nil:
		telemetry.QuizzesGenerated.WithLabelValues(kind, "ok").Inc()
		return c, nil
	case stderrors.Is(err, quiz.ErrEmpty):
		telemetry.QuizzesGenerated.WithLabelValues(kind, "empty").Inc()
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("no questions could be generated from this input, try different material"),
			errors.WithCause(err))
	default:
		telemetry.QuizzesGenerated.WithLabelValues(kind, "failed").Inc()
		slog.ErrorContext(ctx, "generate: backend failed", "kind", kind, "error", err)
		return nil, errors.New(errors.CodeUnavailable,
			errors.WithMessagef("quiz generation failed, please retry"),
			errors.WithCause(fmt.Errorf("%w: %v", ErrGeneration, err)))
	}
}

// unlockScript deletes the lock only if it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

func (s *Service) lock(ctx context.Context, client string) (func(), error) {
	token := uuid.NewString()
	key := s.lockKey(client)

	ok, err := s.redis.SetNX(ctx, key, token, s.lockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("setnx: %w", err)
	}
	if !ok {
		return nil, errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("a quiz is already being generated: client=%s", client))
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		if err := unlockScript.Run(ctx, s.redis, []string{key}, token).Err(); err != nil {
			slog.ErrorContext(ctx, "generate: release lock failed", "client", client, "error", err)
		}
	}, nil
}

func (s *Service) lockKey(client string) string {
	return fmt.Sprintf("%s:generate:%s", s.prefix, client)
}
