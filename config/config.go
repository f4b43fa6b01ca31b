// Package config loads environment variables and provides a typed Config used across the bot.
// It applies sensible defaults so the binary can run locally with minimal setup.
// For required credentials use ValidateAnnounceReady.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Game pairs a Twitch game id with a display name. Order is preserved from
// the environment value.
type Game struct {
	ID   string
	Name string
}

type Config struct {
	// Twitch
	TwitchClientID     string
	TwitchClientSecret string
	Games              []Game
	RequiredTag        string
	BlockedNames       []string

	// Discord
	DiscordToken   string
	ChannelID      string
	CommandPrefix  string
	ActivityStatus string

	// Polling / dedup
	PollInterval time.Duration
	RenewWindow  time.Duration

	// Ledger storage: Postgres when DBDsn is set, JSON file otherwise.
	DBDsn      string
	LedgerPath string
}

// Load reads environment variables and applies defaults. Missing credentials
// don't fail here; use ValidateAnnounceReady when you need to talk to Twitch
// and Discord.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.TwitchClientID = os.Getenv("TWITCH_CLIENT_ID")
	cfg.TwitchClientSecret = os.Getenv("TWITCH_CLIENT_SECRET")

	games, err := parseGames(os.Getenv("TWITCH_GAMES"))
	if err != nil {
		return nil, err
	}
	cfg.Games = games

	cfg.RequiredTag = os.Getenv("TWITCH_REQUIRED_TAG")
	cfg.BlockedNames = splitList(os.Getenv("BLOCKED_BROADCASTERS"))

	cfg.DiscordToken = os.Getenv("DISCORD_TOKEN")
	cfg.ChannelID = os.Getenv("DISCORD_CHANNEL_ID")
	cfg.CommandPrefix = os.Getenv("COMMAND_PREFIX")
	if cfg.CommandPrefix == "" {
		cfg.CommandPrefix = "!"
	}
	cfg.ActivityStatus = os.Getenv("ACTIVITY_STATUS")
	if cfg.ActivityStatus == "" {
		cfg.ActivityStatus = "with GUILT"
	}

	cfg.PollInterval = 5 * time.Minute
	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid POLL_INTERVAL %q", v)
		}
		cfg.PollInterval = d
	}
	cfg.RenewWindow = time.Hour
	if v := os.Getenv("RENEW_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid RENEW_WINDOW %q", v)
		}
		cfg.RenewWindow = d
	}

	cfg.DBDsn = os.Getenv("DB_DSN")
	cfg.LedgerPath = os.Getenv("LEDGER_PATH")
	if cfg.LedgerPath == "" {
		cfg.LedgerPath = "database.json"
	}

	return cfg, nil
}

// parseGames parses TWITCH_GAMES, a comma-separated list of id:name pairs,
// e.g. "29433:Ghost Trick,515214:GUILT". Names may contain colons; only the
// first one splits.
func parseGames(v string) ([]Game, error) {
	if v == "" {
		return nil, nil
	}
	var games []Game
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, name, ok := strings.Cut(part, ":")
		if !ok || id == "" || name == "" {
			return nil, fmt.Errorf("invalid TWITCH_GAMES entry %q (want id:name)", part)
		}
		games = append(games, Game{ID: strings.TrimSpace(id), Name: strings.TrimSpace(name)})
	}
	return games, nil
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ValidateAnnounceReady checks the fields required to poll Twitch and post to Discord.
func (c *Config) ValidateAnnounceReady() error {
	if c.TwitchClientID == "" || c.TwitchClientSecret == "" {
		return fmt.Errorf("missing twitch env: require TWITCH_CLIENT_ID, TWITCH_CLIENT_SECRET")
	}
	if c.DiscordToken == "" || c.ChannelID == "" {
		return fmt.Errorf("missing discord env: require DISCORD_TOKEN, DISCORD_CHANNEL_ID")
	}
	if len(c.Games) == 0 {
		return fmt.Errorf("missing TWITCH_GAMES: nothing to announce")
	}
	return nil
}
