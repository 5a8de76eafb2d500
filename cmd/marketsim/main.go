package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/efreitasn/marketsim/internal/config"
	"github.com/efreitasn/marketsim/internal/decision"
	"github.com/efreitasn/marketsim/internal/domain"
	"github.com/efreitasn/marketsim/internal/engine"
	"github.com/efreitasn/marketsim/internal/handler"
	"github.com/efreitasn/marketsim/internal/service"
	"github.com/efreitasn/marketsim/internal/store"
)

func main() {
	envFile := flag.String("env", ".env", "Path to an optional .env file")
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	if err := config.LoadEnvFile(*envFile); err != nil {
		slog.Error("failed to load env file", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Set up slog logger with configured level.
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("simulation failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	logger.Info("seed selected", slog.Uint64("seed", seed))
	rng := rand.New(rand.NewPCG(seed, seed>>1))

	// Domain.
	instruments := domain.NewInstrumentRegistry()
	for _, ic := range cfg.Instruments {
		instruments.Register(domain.NewInstrument(ic.Symbol, ic.Price, ic.Issuance))
	}
	policy := cfg.MarketPolicy()

	participants := store.NewParticipantStore()
	endowment := service.Endowment{MinProperty: cfg.MinProperty, MaxProperty: cfg.MaxProperty}
	if err := service.Populate(participants, instruments, cfg.Participants, endowment, rng); err != nil {
		return fmt.Errorf("populate: %w", err)
	}

	// Engine.
	books := engine.NewBookManager()
	matcher := engine.NewMatcher(books, participants, instruments, policy, logger)

	var decider decision.Decider
	switch cfg.Decider {
	case config.DeciderRemote:
		decider = decision.NewRemote(cfg.DecisionURL, cfg.DecisionTimeout, cfg.DecisionAttempts, logger)
	default:
		decider = decision.NewRandom(seed)
	}

	// Recorders.
	memory := store.NewMemoryRecorder()
	recorders := store.Fanout{memory}
	if cfg.RecordsPath != "" {
		durable, err := store.OpenPebbleRecorder(cfg.RecordsPath, logger)
		if err != nil {
			return err
		}
		logger.Info("recording run",
			slog.String("path", cfg.RecordsPath),
			slog.Uint64("records_run", durable.Run()),
		)
		defer func() {
			if err := durable.Close(); err != nil {
				logger.Error("failed to close records", slog.String("error", err.Error()))
			}
		}()
		recorders = append(recorders, durable)
	}
	feed := handler.NewFeed(logger)
	if cfg.ServeAPI {
		recorders = append(recorders, feed)
	}

	sim := service.NewSimulation(
		service.SimulationParams{
			Days:        cfg.Days,
			Sessions:    cfg.Sessions,
			Concurrency: cfg.DecisionConcurrency,
			BookDepth:   5,
			HistorySize: 3 * cfg.Sessions,
		},
		policy, instruments, participants, matcher, decider, recorders, rng, logger,
	)

	// Cancel between sessions on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := sim.Run(gctx)
		if errors.Is(err, context.Canceled) {
			logger.Info("simulation interrupted", slog.Int("day", sim.Status().Day))
			return nil
		}
		return err
	})

	if cfg.ServeAPI {
		router := handler.NewRouter(
			service.NewMarketService(instruments, books, memory.Trades),
			service.NewParticipantService(participants, instruments),
			sim, feed, logger,
		)

		addr := fmt.Sprintf(":%d", cfg.Port)
		srv := &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		}

		g.Go(func() error {
			logger.Info("server starting", slog.String("addr", addr))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("server: %w", err)
			}
			return nil
		})

		// The API outlives the run so results stay observable until a signal.
		g.Go(func() error {
			<-gctx.Done()
			logger.Info("shutting down server")
			feed.Close()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("server shutdown error", slog.String("error", err.Error()))
			}
			logger.Info("server stopped")
			return nil
		})
	}

	return g.Wait()
}
