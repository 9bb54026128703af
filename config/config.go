// Package config loads environment variables (optionally from a .env file)
// into a typed Config and validates them.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"

	"github.com/MinnDevelopment/strumbot/locale"
	"github.com/MinnDevelopment/strumbot/notify"
)

const (
	minPollInterval = 10 * time.Second
	maxPollInterval = 5 * time.Minute
	maxTopClips     = 5
)

// Vars holds the raw environment variables.
type Vars struct {
	// Twitch
	TwitchClientID     string        `env:"TWITCH_CLIENT_ID"`
	TwitchClientSecret string        `env:"TWITCH_CLIENT_SECRET"`
	ChannelList        string        `env:"TWITCH_CHANNELS"`
	TopClips           int           `env:"TWITCH_TOP_CLIPS" default:"0"`
	GracePeriod        time.Duration `env:"OFFLINE_GRACE_PERIOD" default:"2m"`
	PollInterval       time.Duration `env:"POLL_INTERVAL" default:"30s"`
	HelixRateLimit     float64       `env:"HELIX_RATE_LIMIT" default:"10"`

	// Twitch chat announcer (optional)
	TwitchBotUsername     string `env:"TWITCH_BOT_USERNAME"`
	TwitchOAuthToken      string `env:"TWITCH_OAUTH_TOKEN"`
	TwitchAnnounceChannel string `env:"TWITCH_ANNOUNCE_CHANNEL"`

	// Discord
	DiscordWebhookURL    string `env:"DISCORD_WEBHOOK_URL"`
	EnabledEventList     string `env:"DISCORD_ENABLED_EVENTS" default:"live,update,vod"`
	RoleLive             string `env:"DISCORD_ROLE_LIVE" default:"live"`
	RoleUpdate           string `env:"DISCORD_ROLE_UPDATE" default:"update"`
	RoleVOD              string `env:"DISCORD_ROLE_VOD" default:"vod"`
	DiscordBotToken      string `env:"DISCORD_BOT_TOKEN"`
	DiscordGuildID       string `env:"DISCORD_GUILD_ID"`
	DiscordLogWebhookURL string `env:"DISCORD_LOG_WEBHOOK_URL"`

	DefaultLocale string `env:"DEFAULT_LOCALE" default:"en"`

	// Database (notification journal, disabled when empty)
	DBDsn string `env:"DB_DSN"`

	// Ops
	HTTPAddr     string `env:"HTTP_ADDR" default:":8080"`
	LogLevel     string `env:"LOG_LEVEL" default:"info"`
	LogFormat    string `env:"LOG_FORMAT" default:"text"`
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Config is the validated configuration.
type Config struct {
	Vars

	Channels      []string
	EnabledEvents notify.EventSet
	Fallback      locale.Lang
}

// Load reads .env (if present) and the environment, then validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}
	return FromEnv()
}

// FromEnv is Load without the .env file.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := env.Load(&cfg.Vars, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	var errs []error
	required := []struct{ name, value string }{
		{"TWITCH_CLIENT_ID", c.TwitchClientID},
		{"TWITCH_CLIENT_SECRET", c.TwitchClientSecret},
		{"DISCORD_WEBHOOK_URL", c.DiscordWebhookURL},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, fmt.Errorf("%s is required", r.name))
		}
	}

	c.Channels = ParseChannels(c.ChannelList)
	if len(c.Channels) == 0 {
		errs = append(errs, errors.New("TWITCH_CHANNELS must name at least one channel"))
	}

	if c.TopClips < 0 || c.TopClips > maxTopClips {
		errs = append(errs, fmt.Errorf("TWITCH_TOP_CLIPS must be between 0 and %d, got %d", maxTopClips, c.TopClips))
	}
	if c.GracePeriod <= 0 {
		errs = append(errs, fmt.Errorf("OFFLINE_GRACE_PERIOD must be positive, got %s", c.GracePeriod))
	}
	if c.PollInterval < minPollInterval || c.PollInterval > maxPollInterval {
		errs = append(errs, fmt.Errorf("POLL_INTERVAL must be between %s and %s, got %s", minPollInterval, maxPollInterval, c.PollInterval))
	}
	if c.HelixRateLimit <= 0 {
		errs = append(errs, fmt.Errorf("HELIX_RATE_LIMIT must be positive, got %v", c.HelixRateLimit))
	}

	events, err := notify.ParseEvents(c.EnabledEventList)
	if err != nil {
		errs = append(errs, fmt.Errorf("DISCORD_ENABLED_EVENTS: %w", err))
	}
	c.EnabledEvents = events

	lang, ok := locale.Parse(c.DefaultLocale)
	if !ok {
		errs = append(errs, fmt.Errorf("DEFAULT_LOCALE %q is not supported", c.DefaultLocale))
		lang = locale.English
	}
	c.Fallback = lang

	if (c.DiscordBotToken == "") != (c.DiscordGuildID == "") {
		slog.Warn("DISCORD_BOT_TOKEN and DISCORD_GUILD_ID should be set together; role mentions need both")
	}
	return errors.Join(errs...)
}

// ParseChannels splits a comma separated login list, lower-casing and
// dropping empty and duplicate entries while keeping the first-seen order.
func ParseChannels(s string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, part := range strings.Split(s, ",") {
		login := strings.ToLower(strings.TrimSpace(part))
		if login == "" {
			continue
		}
		if _, ok := seen[login]; ok {
			continue
		}
		seen[login] = struct{}{}
		out = append(out, login)
	}
	return out
}

// ChatEnabled reports whether the Twitch chat announcer has credentials.
func (c *Config) ChatEnabled() bool {
	return c.TwitchBotUsername != "" && c.TwitchOAuthToken != "" && c.TwitchAnnounceChannel != ""
}

// BotEnabled reports whether a Discord bot session should be opened.
func (c *Config) BotEnabled() bool { return c.DiscordBotToken != "" }
