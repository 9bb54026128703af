// Command strumbot watches Twitch channels and posts live, game-change and
// VOD notifications to Discord.
// It:
//   - Loads configuration and initializes structured logging (optionally
//     forwarding error logs to a Discord webhook).
//   - Validates the Twitch app credentials; rejected credentials are fatal.
//   - Builds the notification sink chain: Discord webhook, optional Twitch
//     chat announcer, optional Postgres journal.
//   - Starts one watcher per channel and the poll loop.
//   - Exposes /healthz, /readyz, /status and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM. A fatal authorization error exits 1.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MinnDevelopment/strumbot/chat"
	"github.com/MinnDevelopment/strumbot/config"
	"github.com/MinnDevelopment/strumbot/db"
	"github.com/MinnDevelopment/strumbot/discord"
	"github.com/MinnDevelopment/strumbot/logging"
	"github.com/MinnDevelopment/strumbot/notify"
	"github.com/MinnDevelopment/strumbot/poller"
	"github.com/MinnDevelopment/strumbot/server"
	"github.com/MinnDevelopment/strumbot/telemetry"
	"github.com/MinnDevelopment/strumbot/twitchapi"
	"github.com/MinnDevelopment/strumbot/watcher"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		return 1
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpClient := &http.Client{Timeout: 15 * time.Second}

	lvl, ok := logging.ParseLevel(cfg.LogLevel)
	var handler slog.Handler = logging.NewHandler(os.Stdout, lvl, cfg.LogFormat)
	if cfg.DiscordLogWebhookURL != "" {
		logSink, err := discord.NewLogSink(cfg.DiscordLogWebhookURL, httpClient)
		if err != nil {
			slog.Warn("invalid DISCORD_LOG_WEBHOOK_URL, error logs will not be forwarded", slog.Any("err", err))
		} else {
			fwd := logging.NewForwardingHandler(handler, logSink, logging.DefaultQueueSize)
			go fwd.Run(ctx)
			handler = fwd
		}
	}
	slog.SetDefault(slog.New(handler))
	if !ok {
		slog.Warn("unknown LOG_LEVEL, using info", slog.String("value", cfg.LogLevel))
	}
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", cfg.LogFormat), slog.String("version", version))

	telemetry.Init()
	shutdown, err := telemetry.InitTracing(cfg.OTLPEndpoint, "strumbot", version)
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		return 1
	}
	defer shutdown()
	if telemetry.IsTracingEnabled() {
		slog.Info("tracing enabled", slog.String("endpoint", cfg.OTLPEndpoint))
	}

	helix := twitchapi.NewHelixClient(cfg.TwitchClientID, cfg.TwitchClientSecret, cfg.HelixRateLimit, httpClient)
	if code, ok := checkTwitch(ctx, helix, cfg.Channels); !ok {
		return code
	}

	webhook, err := discord.NewWebhookSink(cfg.DiscordWebhookURL, httpClient)
	if err != nil {
		slog.Error("invalid DISCORD_WEBHOOK_URL", slog.Any("err", err))
		return 1
	}
	webhookBreaker := notify.NewBreaker(webhook, notify.BreakerSettings{Name: "discord-webhook"})
	sinks := notify.Multi{webhookBreaker}

	if cfg.ChatEnabled() {
		if ann := chat.NewAnnouncer(cfg.TwitchBotUsername, cfg.TwitchOAuthToken, cfg.TwitchAnnounceChannel, cfg.EnabledEvents); ann != nil {
			go ann.Start(ctx)
			sinks = append(sinks, notify.NewBreaker(ann, notify.BreakerSettings{Name: "twitch-chat"}))
		}
	}
	var sink notify.Sink = sinks

	handlers := &server.Handlers{Circuit: webhookBreaker}
	if cfg.DBDsn != "" {
		conn, err := db.Connect(ctx, cfg.DBDsn)
		if err != nil {
			slog.Error("failed to open db", slog.Any("err", err))
			return 1
		}
		defer func() {
			if err := conn.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
		slog.Info("running database migrations", slog.String("component", "db_migrate"))
		if err := db.RunMigrations(conn); err != nil {
			slog.Error("failed to migrate db", slog.Any("err", err))
			return 1
		}
		journal := db.NewJournal(conn)
		sink = notify.NewJournal(sink, journal, nil)
		handlers.Journal = journal
	} else {
		slog.Info("DB_DSN not set; notification journal disabled")
	}

	var bot *discord.Bot
	if cfg.BotEnabled() {
		bot, err = discord.OpenBot(cfg.DiscordBotToken, cfg.DiscordGuildID)
		if err != nil {
			slog.Warn("discord bot unavailable; presence and role mentions disabled", slog.Any("err", err))
			bot = nil
		} else {
			go bot.Run(ctx)
		}
	}

	channels := make([]poller.Channel, 0, len(cfg.Channels))
	for _, login := range cfg.Channels {
		var opts []watcher.Option
		if bot != nil {
			opts = append(opts, watcher.WithPresence(bot.Presence.For(login)))
			if bot.Roles != nil {
				opts = append(opts, watcher.WithRoles(bot.Roles))
			}
		}
		channels = append(channels, watcher.New(watcher.Config{
			Login:  login,
			Events: cfg.EnabledEvents,
			Roles: watcher.Roles{
				Live:   cfg.RoleLive,
				Update: cfg.RoleUpdate,
				VOD:    cfg.RoleVOD,
			},
			GracePeriod: cfg.GracePeriod,
			TopClips:    cfg.TopClips,
			Fallback:    cfg.Fallback,
		}, helix, sink, opts...))
	}
	slog.Info("starting watchers", slog.Int("channel_count", len(channels)), slog.Any("channels", cfg.Channels), slog.String("events", cfg.EnabledEvents.String()))

	p := poller.New(helix, channels, cfg.PollInterval)
	handlers.Poller = p
	go func() {
		if err := server.Start(ctx, cfg.HTTPAddr, handlers); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	if err := p.Run(ctx); err != nil {
		slog.Error("stopping after fatal error", slog.Any("err", err))
		return 1
	}
	slog.Info("shutting down")
	return 0
}

// checkTwitch fetches the app token once and resolves the configured logins
// so misconfiguration shows up at startup. Only rejected credentials abort.
func checkTwitch(ctx context.Context, helix *twitchapi.HelixClient, logins []string) (int, bool) {
	cctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if _, err := helix.AppTokenSource.Get(cctx); err != nil {
		if twitchapi.IsFatal(err) {
			slog.Error("twitch credentials rejected", slog.Any("err", err))
			return 1, false
		}
		slog.Warn("twitch app token fetch failed, will retry on first poll", slog.Any("err", err))
		return 0, true
	}
	slog.Info("twitch app token acquired")

	users, err := helix.GetUsers(cctx, logins)
	if err != nil {
		slog.Warn("could not resolve channel logins", slog.Any("err", err))
		return 0, true
	}
	known := make(map[string]bool, len(users))
	for _, u := range users {
		known[u.Login] = true
	}
	for _, l := range logins {
		if !known[l] {
			slog.Warn("configured channel does not exist on twitch", slog.String("channel", l))
		}
	}
	return 0, true
}
