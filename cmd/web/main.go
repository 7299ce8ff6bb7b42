package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"azukibar/internal/config"
	"azukibar/internal/game"
	"azukibar/internal/gateway"
	"azukibar/internal/handlers"
	"azukibar/internal/logger"
	"azukibar/internal/scoring"
	"azukibar/pkg/realtime"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLog.Fatal().Err(err).Msg("load config")
	}
	log, err := logger.New(os.Stdout, cfg.LogLevel, cfg.LogPretty)
	if err != nil {
		log = zerolog.New(os.Stderr).With().Timestamp().Logger()
		log.Fatal().Err(err).Msg("build logger")
	}

	var primary scoring.Evaluator
	if cfg.OpenAI.APIKey != "" {
		primary = scoring.NewOpenAI(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
		log.Info().Str("model", cfg.OpenAI.Model).Msg("scoring with openai")
	} else {
		log.Warn().Msg("OPENAI_API_KEY not set, scoring with heuristic only")
	}
	scorer := scoring.NewResilient(primary, cfg.OpenAI.Timeout, log)

	defaults := game.DefaultSettings()
	defaults.MaxRounds = cfg.Game.MaxRounds
	defaults.VotingTime = cfg.Game.VotingTime
	defaults.VoteSettleDelay = cfg.Game.VoteSettleDelay
	defaults.ResultDelay = cfg.Game.ResultDelay
	defaults.TimeLimit = cfg.Game.TimeLimit

	store := realtime.NewRoomStore[*game.Room]()
	reg, err := game.NewRegistry(store, game.Options{
		Scorer:   scorer,
		Logger:   log,
		Defaults: defaults,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build room registry")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reg.RunSweeper(ctx, cfg.Rooms.SweepInterval, cfg.Rooms.MaxAge)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	roomHandler := handlers.NewRoomHandler(reg, log)
	homeHandler := handlers.NewHomeHandler(reg)
	ws := gateway.New(reg, log, gateway.Options{
		Rate:  rate.Limit(cfg.WS.Rate),
		Burst: cfg.WS.Burst,
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(15 * time.Second))
		homeHandler.RegisterRoutes(r)
		roomHandler.RegisterRoutes(r)
	})
	roomHandler.RegisterStreamRoutes(r)
	ws.RegisterRoutes(r)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("shutting down")
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("shutdown")
		}
	}()

	log.Info().Str("addr", "http://localhost"+server.Addr).Msg("listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("serve")
	}
	<-stopped
	reg.Close()
	log.Info().Msg("stopped")
}
