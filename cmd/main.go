package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/victornm/quizgen/internal/config"
	"github.com/victornm/quizgen/internal/generate/gemini"
	"github.com/victornm/quizgen/internal/server"
)

func main() {
	c, err := loadConfig()
	if err != nil {
		log.Fatalf("Load config failed: %v", err)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(),
	})))

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGTERM, os.Interrupt)

	s, err := server.Init(c)
	if err != nil {
		log.Fatalf("Init server failed: %v", err)
	}

	go s.Start()

	<-shutdown
	s.Shutdown()
}

// loadConfig reads CONFIG_PATH if set. Any value can be overridden with a QUIZGEN_ variable,
// e.g. QUIZGEN_GEMINI_APIKEY.
func loadConfig() (server.Config, error) {
	var c server.Config
	c.HTTP.Port = 8080
	c.GRPC.Port = 8081
	c.Redis.Store.Addrs = []string{"localhost:6379"}
	c.Redis.Store.Prefix = "quizgen"
	c.Redis.Pubsub.Addrs = []string{"localhost:6379"}
	c.Redis.Pubsub.Prefix = "quizgen:pubsub"
	c.Gemini.Model = gemini.DefaultModel
	c.Gemini.Timeout = 3 * time.Minute
	c.Session.TTL = 24 * time.Hour
	c.Session.GenerateLockTTL = 5 * time.Minute

	if err := config.Load(os.Getenv("CONFIG_PATH"), &c, config.WithEnvPrefix("QUIZGEN")); err != nil {
		return c, fmt.Errorf("load config: %w", err)
	}

	return c, nil
}

func logLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(os.Getenv("LOG_LEVEL"))); err != nil {
		return slog.LevelInfo
	}
	return l
}
