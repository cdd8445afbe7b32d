// Command ytscout is the main entrypoint for the competitor-discovery service.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Wires the credential pool, two-tier response cache, credit ledger,
//     upstream client, discovery pipeline and anomaly heuristic into the engine.
//   - Exposes the HTTP API with /healthz, /readyz, /metrics and /v1 routes.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/nbekov/ytscout/anomaly"
	"github.com/nbekov/ytscout/cache"
	"github.com/nbekov/ytscout/config"
	"github.com/nbekov/ytscout/db"
	"github.com/nbekov/ytscout/discovery"
	"github.com/nbekov/ytscout/engine"
	"github.com/nbekov/ytscout/ledger"
	"github.com/nbekov/ytscout/server"
	"github.com/nbekov/ytscout/telemetry"
	"github.com/nbekov/ytscout/ytapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

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
	var handler slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateUpstreamReady(); err != nil {
		slog.Error("upstream config invalid", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("ytscout", "1.0.0")
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

	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.Migrate(context.Background(), database); err != nil {
		slog.Error("failed to migrate db", slog.Any("err", err))
		os.Exit(1)
	}

	store := db.NewStore(database)

	// Credential pool + cache + upstream client
	pool, err := ytapi.NewKeyPool(cfg.APIKeys)
	if err != nil {
		slog.Error("key pool init failed", slog.Any("err", err))
		os.Exit(1)
	}
	respCache := cache.New(store, cache.TTLs{Video: cfg.VideoTTL, Search: cfg.SearchTTL, Channel: cfg.ChannelTTL})
	client := &ytapi.Client{
		Creds:   pool,
		Cache:   respCache,
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.APITimeout,
	}

	// Credit ledger
	led, err := ledger.New(store, ledger.Options{
		Max:           cfg.CreditDaily,
		ChargeRepeats: cfg.CreditChargeRepeat,
		Exempt:        cfg.CreditExemptUsers,
		Daily:         cfg.CreditReset == config.ResetDaily,
		ResetAt:       cfg.CreditResetAt,
		Timezone:      cfg.CreditResetTZ,
		RollingPeriod: cfg.CreditResetPeriod,
	})
	if err != nil {
		slog.Error("ledger init failed", slog.Any("err", err))
		os.Exit(1)
	}

	pipe := discovery.New(client, discovery.Options{
		MaxItems:       cfg.DiscoveryMaxItems,
		MaxChannels:    cfg.DiscoveryMaxChannels,
		WindowDays:     cfg.DiscoveryWindowDays,
		MinViews:       cfg.DiscoveryMinViews,
		DedupThreshold: cfg.DiscoveryDedupThreshold,
	})

	eng := engine.New(led, client, pipe, anomaly.Thresholds{
		HighLikeRatio:   cfg.AnomalyHighLikeRatio,
		MediumLikeRatio: cfg.AnomalyMediumLikeRatio,
		LowCommentRatio: cfg.AnomalyLowCommentRatio,
		MaxViewsPerHour: cfg.AnomalyMaxViewsPerHour,
	})

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting http server",
		slog.String("addr", cfg.HTTPAddr),
		slog.Int("api_keys", pool.Len()),
		slog.Int("credit_daily", cfg.CreditDaily),
		slog.String("reset_policy", string(cfg.CreditReset)))
	go func() {
		if err := server.Start(ctx, eng, database, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}
