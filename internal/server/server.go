package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/quizgen/internal/api"
	"github.com/victornm/quizgen/internal/event"
	"github.com/victornm/quizgen/internal/generate"
	"github.com/victornm/quizgen/internal/generate/gemini"
	"github.com/victornm/quizgen/internal/leaderboard"
	"github.com/victornm/quizgen/internal/score"
	"github.com/victornm/quizgen/internal/session"
	"github.com/victornm/quizgen/internal/telemetry"
)

const serviceName = "quizgen"

type Config struct {
	HTTP struct {
		Port int32
		// AllowOrigins lists the browser origins allowed by CORS. Empty allows any origin.
		AllowOrigins []string
	}

	GRPC struct {
		Port int32
	}

	Redis struct {
		Store struct {
			Addrs  []string
			Pass   string
			Prefix string
		}

		Pubsub struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}

	Postgres struct {
		// Results is optional. Without an address finished sessions are not archived.
		Results struct {
			Addr string
			User string
			Pass string
			Name string
		}
	}

	Gemini struct {
		APIKey         string
		Model          string
		Language       string
		MultipleChoice int
		TrueFalse      int
		Timeout        time.Duration
	}

	Session struct {
		TTL             time.Duration
		GenerateLockTTL time.Duration
	}
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			store  redis.UniversalClient
			pubsub redis.UniversalClient
		}

		postgres struct {
			results *pgxpool.Pool
		}

		gemini *gemini.Generator
	}

	service struct {
		generate    *generate.Service
		session     *session.Service
		score       *score.Service
		leaderboard *leaderboard.Service
	}

	http   *http.Server
	grpc   *grpc.Server
	health *health.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	if err := s.initService(); err != nil {
		return nil, fmt.Errorf("server: init service: %w", err)
	}

	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	if err := s.initGemini(); err != nil {
		return fmt.Errorf("gemini: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(addrs []string, pass string) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    addrs,
			Password: pass,
		})

		if err := telemetry.MonitorRedis(r); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.store, err = connect(s.c.Redis.Store.Addrs, s.c.Redis.Store.Pass)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}

	s.infra.redis.pubsub, err = connect(s.c.Redis.Pubsub.Addrs, s.c.Redis.Pubsub.Pass)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initPostgres() (err error) {
	rc := s.c.Postgres.Results
	if rc.Addr == "" {
		slog.Warn("server: postgres results address not set, finished sessions will not be archived")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", rc.User, rc.Pass, rc.Addr, rc.Name))
	if err != nil {
		return fmt.Errorf("results: %w", err)
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return fmt.Errorf("results: %w", err)
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return fmt.Errorf("results: %w", err)
	}

	s.infra.postgres.results = db
	return nil
}

func (s *Server) initGemini() (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.infra.gemini, err = gemini.New(ctx, gemini.Config{
		APIKey:         s.c.Gemini.APIKey,
		Model:          s.c.Gemini.Model,
		Language:       s.c.Gemini.Language,
		MultipleChoice: s.c.Gemini.MultipleChoice,
		TrueFalse:      s.c.Gemini.TrueFalse,
	})
	return err
}

func (s *Server) initService() error {
	telemetry.SubscribeEvents(s.eb)

	s.service.generate = generate.NewService(generate.Config{
		Generator: s.infra.gemini,
		Redis:     s.infra.redis.store,
		Prefix:    s.c.Redis.Store.Prefix,
		LockTTL:   s.c.Session.GenerateLockTTL,
		Timeout:   s.c.Gemini.Timeout,
	})

	s.service.session = session.NewService(session.Config{
		Redis:    s.infra.redis.store,
		EventBus: s.eb,
		Prefix:   s.c.Redis.Store.Prefix,
		TTL:      s.c.Session.TTL,
	})

	if s.infra.postgres.results != nil {
		s.service.score = score.NewService(score.Config{
			EventBus: s.eb,
			DB:       s.infra.postgres.results,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.service.score.Migrate(ctx); err != nil {
			return err
		}
	}

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus: s.eb,
		Redis:    s.infra.redis.store,
		Prefix:   s.c.Redis.Store.Prefix,
		TTL:      s.c.Session.TTL,
	})

	return nil
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery(), otelgin.Middleware(serviceName), telemetry.GinMiddleware(), s.cors())

	s.grpc = grpc.NewServer(telemetry.GRPCServerInterceptors()...)
	s.health = health.NewServer()
	healthpb.RegisterHealthServer(s.grpc, s.health)

	api.New(api.Config{
		Router:       e,
		EventBus:     s.eb,
		Generate:     s.service.generate,
		Session:      s.service.session,
		Leaderboard:  s.service.leaderboard,
		Score:        s.service.score,
		Redis:        s.infra.redis.pubsub,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) cors() gin.HandlerFunc {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "X-Client-ID"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}

	if len(s.c.HTTP.AllowOrigins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = s.c.HTTP.AllowOrigins
	}

	return cors.New(c)
}

func (s *Server) Start() {
	ctx := context.TODO()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.health.Shutdown()
	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()

	if err := s.infra.gemini.Close(); err != nil {
		slog.ErrorContext(ctx, "server: close gemini client failed", "error", err)
	}
	if s.infra.postgres.results != nil {
		s.infra.postgres.results.Close()
	}
	for _, r := range []redis.UniversalClient{s.infra.redis.store, s.infra.redis.pubsub} {
		if err := r.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close redis failed", "error", err)
		}
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
