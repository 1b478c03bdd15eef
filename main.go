// Command streamwatch tracks a configurable set of Twitch streams and fans
// out Discord notifications when a stream transitions from offline to online.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Starts the polling engine with offline hysteresis and per-stream
//     notification cooldown.
//   - Exposes a minimal HTTP server with /healthz, /readyz, /status,
//     /metrics, and the subscription management endpoints.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mperol/streamwatch/config"
	"github.com/mperol/streamwatch/db"
	"github.com/mperol/streamwatch/discord"
	"github.com/mperol/streamwatch/server"
	"github.com/mperol/streamwatch/stream"
	"github.com/mperol/streamwatch/telemetry"
	"github.com/mperol/streamwatch/twitchapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("config invalid", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("streamwatch", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// DB
	database, err := db.Connect(cfg.DBDsn)
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	// Run database migrations: versioned migrations first, embedded SQL as a
	// fallback for deployments created before version tracking existed.
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, attempting fallback to embedded SQL",
			slog.Any("err", err),
			slog.String("component", "db_migrate"))
		if err := db.Migrate(context.Background(), database); err != nil {
			slog.Error("failed to migrate db", slog.Any("err", err))
			os.Exit(1)
		}
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	twitch := &twitchapi.Client{
		TokenSource: twitchapi.AppTokenSource(ctx, cfg.TwitchClientID, cfg.TwitchClientSecret, twitchapi.DefaultTokenURL),
		ClientID:    cfg.TwitchClientID,
	}
	notifier := &discord.Client{BotToken: cfg.DiscordBotToken}

	store := db.NewStore(database)
	tracker := stream.NewTracker()
	svc := stream.NewService(store, twitch, tracker)
	engine := stream.NewEngine(store, twitch, notifier, tracker, stream.EngineOptions{
		PollInterval:         cfg.PollInterval,
		IdleInterval:         cfg.IdleInterval,
		MinOfflineDuration:   cfg.MinOfflineDuration,
		NotificationCooldown: cfg.NotificationCooldown,
	})

	// Polling engine. A non-ctx error here is fatal: a dead engine means no
	// notifications, which is the whole point of the service.
	engineErr := make(chan error, 1)
	go func() {
		engineErr <- engine.Run(ctx)
	}()

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	// HTTP server (health/status/metrics/subscriptions)
	go func() {
		if err := server.Start(ctx, database, svc, tracker, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-engineErr:
		if err != nil && ctx.Err() == nil {
			slog.Error("polling engine failed", slog.Any("err", err))
			stop()
			os.Exit(1)
		}
		slog.Info("shutting down")
	}
}
