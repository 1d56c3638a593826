package score

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/quizgen/internal/domain"
	"github.com/victornm/quizgen/internal/errors"
	"github.com/victornm/quizgen/internal/event"
)

const schema = `
CREATE TABLE IF NOT EXISTS results (
	session_id  TEXT        PRIMARY KEY,
	quiz_id     TEXT        NOT NULL,
	username    TEXT        NOT NULL,
	score       INTEGER     NOT NULL,
	total       INTEGER     NOT NULL,
	percentage  INTEGER     NOT NULL,
	tier        TEXT        NOT NULL,
	history     JSONB       NOT NULL,
	finish_time TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS results_username_idx ON results (username, finish_time DESC);`

const defaultListLimit = 50

type Config struct {
	EventBus *event.Bus
	DB       *pgxpool.Pool
}

// Service archives the results of finished sessions in Postgres.
type Service struct {
	eb *event.Bus
	db *pgxpool.Pool
}

func NewService(c Config) *Service {
	s := &Service{
		eb: c.EventBus,
		db: c.DB,
	}

	s.eb.Subscribe(domain.EventNameSessionFinished, "score", func(ctx context.Context, e event.Event) error {
		err := s.Archive(ctx, e.(domain.EventSessionFinished))
		if errors.CodeOf(err) == errors.CodeAlreadyExists {
			return nil
		}
		return err
	})

	return s
}

// Migrate creates the results table if it does not exist yet.
func (s *Service) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate results: %w", err)
	}
	return nil
}

// Archive stores the result of a finished session. A session is archived at most once.
func (s *Service) Archive(ctx context.Context, e domain.EventSessionFinished) error {
	const stmt = `
INSERT INTO results (session_id, quiz_id, username, score, total, percentage, tier, history, finish_time)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);`

	r := e.Result
	history := r.History
	if history == nil {
		history = []domain.Answer{}
	}

	_, err := s.db.Exec(ctx, stmt,
		r.SessionID, r.QuizID, r.Username, r.Score, r.Total, r.Percentage, r.Tier, history, r.FinishTime)

	var pgErr *pgconn.PgError
	const codeUniqueViolation = "23505"
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("result already archived: session=%s", r.SessionID),
			errors.WithCause(err))
	}

	if err != nil {
		return fmt.Errorf("archive result: %w", err)
	}

	return nil
}

type ListResultsRequest struct {
	Username string
	// Limit caps the number of results, most recent first. Zero means the default.
	Limit int
}

// ListResults returns the archived results of a user, most recent first.
func (s *Service) ListResults(ctx context.Context, req ListResultsRequest) ([]domain.Result, error) {
	const stmt = `
SELECT session_id, quiz_id, score, total, percentage, tier, history, finish_time
FROM results
WHERE username = $1
ORDER BY finish_time DESC
LIMIT $2;`

	if req.Username == "" {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("username is required"))
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := s.db.Query(ctx, stmt, req.Username, limit)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Result, error) {
		var (
			res    domain.Result
			finish time.Time
		)
		if err := r.Scan(&res.SessionID, &res.QuizID, &res.Score, &res.Total, &res.Percentage,
			&res.Tier, &res.History, &finish); err != nil {
			return domain.Result{}, err
		}
		res.Username = req.Username
		res.FinishTime = finish.UTC()
		return res, nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect results: %w", err)
	}

	return results, nil
}
