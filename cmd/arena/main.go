package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/KiloProjects/arena"
	"github.com/KiloProjects/arena/api"
	"github.com/KiloProjects/arena/db"
	"github.com/KiloProjects/arena/eval"
	"github.com/KiloProjects/arena/eval/box"
	"github.com/KiloProjects/arena/eval/scheduler"
	"github.com/KiloProjects/arena/grader"
	"github.com/KiloProjects/arena/integrations/prometheus"
	"github.com/KiloProjects/arena/internal/clock"
	"github.com/KiloProjects/arena/internal/config"
	"github.com/KiloProjects/arena/internal/events"
	"github.com/KiloProjects/arena/internal/repository"
	"github.com/KiloProjects/arena/internal/scoring"
	"github.com/KiloProjects/arena/internal/service"
	"github.com/KiloProjects/arena/internal/teams"
	"github.com/KiloProjects/arena/internal/ws"
	"github.com/KiloProjects/arena/sudoapi"
	"github.com/KiloProjects/arena/sudoapi/flags"
	"github.com/joho/godotenv"
)

var confPath = flag.String("config", "./arena.toml", "Config path")

func main() {
	flag.Parse()
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Couldn't load .env file", slog.Any("err", err))
	}

	cfg, err := config.Load(*confPath)
	if err != nil {
		slog.Error("Couldn't load config", slog.Any("err", err))
		os.Exit(1)
	}
	if dsn := os.Getenv("ARENA_DB_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}

	handler, logCloser := arena.NewLogHandler(cfg.Common.Debug, os.Stderr, cfg.Common.LogDir)
	slog.SetDefault(slog.New(handler))
	defer logCloser.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Arena stopped", slog.Any("err", err))
		logCloser.Close()
		os.Exit(1)
	}
	slog.Info("Shut down")
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := slog.Default()

	config.SetFlagsPath(cfg.Common.FlagsPath)
	if err := config.LoadFlags(ctx, true); err != nil {
		return fmt.Errorf("couldn't load flags: %w", err)
	}

	if cfg.Common.Debug {
		logger.Warn("Debug mode activated, expect worse performance")
	}

	// Database
	database, err := db.NewPSQL(ctx, cfg.Database.DSN, flags.MaxDBConns.Value())
	if err != nil {
		return fmt.Errorf("couldn't connect to database: %w", err)
	}
	defer database.Close()
	if flags.MigrateOnStart.Value() {
		if err := database.RunMigrations(ctx); err != nil {
			return fmt.Errorf("couldn't run migrations: %w", err)
		}
	}
	logger.Info("Connected to DB")

	users := repository.NewUserRepository(database.Pool())
	sessions := repository.NewSessionRepository(database.Pool())
	submissions := repository.NewSubmissionRepository(database.Pool())
	announcements := repository.NewAnnouncementRepository(database.Pool())

	// Test runner
	packet := cfg.ArenaPacket()
	langs, err := eval.NewLanguages(cfg.Languages)
	if err != nil {
		return err
	}
	langs.Check(logger)
	boxGen, err := box.Generator(ctx, logger, cfg.TestRunner.Sandbox, cfg.TestRunner.WorkDir)
	if err != nil {
		return fmt.Errorf("couldn't set up sandbox: %w", err)
	}
	runner := scheduler.New(cfg.TestRunner.MaxConcurrent, logger, boxGen)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := runner.Close(closeCtx); err != nil {
			logger.Warn("Test runs still active on shutdown", slog.Any("err", err))
		}
	}()

	scorer, err := scoring.New(cfg.Game.Scoring, packet)
	if err != nil {
		return err
	}

	// Events
	sinks, err := eventSinks(cfg.Integrations, logger)
	if err != nil {
		return err
	}
	dispatcher := events.NewDispatcher(logger, sinks...)
	defer dispatcher.Close()

	conns := ws.NewRegistry()
	gameClock := clock.New(nil, cfg.Game.StartPaused)
	coordinator := grader.New(submissions, runner, conns, dispatcher, scorer, packet, langs, grader.Settings{
		MaxSubmissions: cfg.Game.MaxSubmissions,
		Timeout:        cfg.TestRunner.Timeout,
		TrimOutput:     cfg.TestRunner.TrimOutput,
		Clock:          gameClock,
		TimeLimit:      cfg.Game.TimeLimit,
	}, logger)

	base, err := sudoapi.New(sudoapi.Deps{
		Users:          users,
		Sessions:       sessions,
		Submissions:    submissions,
		Announcements:  announcements,
		Grader:         coordinator,
		Dispatcher:     dispatcher,
		Conns:          conns,
		Teams:          teams.New(nil),
		Clock:          gameClock,
		Packet:         packet,
		Languages:      langs,
		TimeLimit:      cfg.Game.TimeLimit,
		MaxSubmissions: cfg.Game.MaxSubmissions,
		DefaultPoints:  cfg.Game.Scoring.Points,
	}, logger)
	if err != nil {
		return err
	}
	defer base.Close()

	if err := base.Bootstrap(ctx, cfg.Accounts); err != nil {
		return err
	}
	if n, err := sessions.RemoveExpiredSessions(ctx); err != nil {
		logger.Warn("Couldn't remove expired sessions", slog.Any("err", err))
	} else if n > 0 {
		logger.Info("Removed expired sessions", slog.Int64("count", n))
	}

	server := &http.Server{
		Addr:              net.JoinHostPort(flags.ListenHost.Value(), strconv.Itoa(flags.ListenPort.Value())),
		Handler:           api.New(base, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sup := service.NewSupervisor("arena", logger)
	sup.Add(dispatcher)
	sup.Add(service.NewHTTP("api", server, 10*time.Second))
	if prometheus.Enabled() {
		sup.Add(prometheus.Service())
	}

	logger.Info("Successfully started", slog.String("addr", server.Addr), slog.Int("problems", len(packet.Problems)))
	return sup.Serve(ctx)
}

func eventSinks(cfg config.Integrations, logger *slog.Logger) ([]events.Sink, error) {
	var sinks []events.Sink
	if len(cfg.EventScripts) > 0 {
		scripts, err := events.NewScriptSink(logger, cfg.EventScripts...)
		if err != nil {
			return nil, fmt.Errorf("couldn't load event scripts: %w", err)
		}
		sinks = append(sinks, scripts)
	}
	if len(cfg.Webhooks) > 0 {
		sinks = append(sinks, events.NewWebhookSink(logger, cfg.WebhookSecret, cfg.Webhooks...))
	}
	if cfg.DiscordWebhook != "" {
		discord, err := events.NewDiscordSink(cfg.DiscordWebhook)
		if err != nil {
			return nil, fmt.Errorf("couldn't set up discord: %w", err)
		}
		sinks = append(sinks, discord)
	}
	return sinks, nil
}
