// Command guiltbot announces live Twitch streams to a Discord channel.
// It:
//   - Loads configuration and initializes structured logging.
//   - Fetches a Twitch app access token (client credentials) on demand.
//   - Polls Helix for live streams matching the configured game list,
//     filters them (blocklist, dedup ledger, required tag), and posts
//     formatted embeds to the configured Discord channel.
//   - Answers a prefixed "live" chat command with a forced listing.
//   - Exposes a minimal HTTP server with /healthz, /readyz, /status,
//     and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Thurler/guiltbot/announce"
	"github.com/Thurler/guiltbot/config"
	"github.com/Thurler/guiltbot/db"
	"github.com/Thurler/guiltbot/discord"
	"github.com/Thurler/guiltbot/ledger"
	"github.com/Thurler/guiltbot/server"
	"github.com/Thurler/guiltbot/telemetry"
	"github.com/Thurler/guiltbot/twitchapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	initLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateAnnounceReady(); err != nil {
		slog.Error("config incomplete", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing("guiltbot", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	// Ledger backend: Postgres when DB_DSN is set, whole-file JSON otherwise.
	var (
		database *sql.DB
		store    ledger.Store
		backend  string
	)
	if cfg.DBDsn != "" {
		database, err = db.Connect(cfg.DBDsn)
		if err != nil {
			slog.Error("failed to open db", slog.Any("err", err))
			os.Exit(1)
		}
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
		migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := db.Migrate(migrateCtx, database); err != nil {
			cancel()
			slog.Error("failed to migrate db", slog.Any("err", err))
			os.Exit(1)
		}
		cancel()
		store = &ledger.PGStore{DB: database}
		backend = "postgres"
	} else {
		store = &ledger.FileStore{Path: cfg.LedgerPath}
		backend = "file"
	}
	slog.Info("ledger backend selected", slog.String("backend", backend))
	led := ledger.New(store, cfg.RenewWindow)

	// Twitch API client with a shared app token source.
	tokens := &twitchapi.TokenSource{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret}
	helix := &twitchapi.HelixClient{AppTokenSource: tokens, ClientID: cfg.TwitchClientID}

	games := make([]announce.Game, 0, len(cfg.Games))
	for _, g := range cfg.Games {
		games = append(games, announce.Game{ID: g.ID, Name: g.Name})
	}
	pipeline := announce.NewPipeline(helix, tokens, led, games, cfg.BlockedNames, cfg.RequiredTag)

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bot, err := discord.New(cfg.DiscordToken, cfg.ChannelID, cfg.CommandPrefix, cfg.ActivityStatus)
	if err != nil {
		slog.Error("discord setup failed", slog.Any("err", err))
		os.Exit(1)
	}
	bot.Register("live", discord.LiveCommand(pipeline))
	if err := bot.Start(ctx); err != nil {
		slog.Error("discord connect failed", slog.Any("err", err))
		os.Exit(1)
	}

	status := server.NewStatus(backend)
	afterRun := func(rctx context.Context, announced int, runErr error) {
		status.RecordPoll(announced, runErr)
		if database == nil {
			return
		}
		if err := db.SetKV(rctx, database, "last_poll_at", time.Now().UTC().Format(time.RFC3339)); err != nil {
			slog.Warn("kv update failed", slog.Any("err", err))
		}
		if err := db.SetKV(rctx, database, "last_poll_announced", strconv.Itoa(announced)); err != nil {
			slog.Warn("kv update failed", slog.Any("err", err))
		}
	}
	go announce.StartStreamPoller(ctx, pipeline, bot, cfg.PollInterval, afterRun)

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	go func() {
		if err := server.Start(ctx, database, status, addr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}

// initLogging configures slog from LOG_LEVEL and LOG_FORMAT (text | json).
func initLogging() {
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
	format := strings.ToLower(os.Getenv("LOG_FORMAT"))
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))
}
