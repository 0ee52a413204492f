// Package config provides configuration loading and defaults for the watchbot
// agent.
//
// Configuration is loaded from a TOML file in the user's data directory. The
// package covers the watched channel, polling cadence, presence statuses,
// command behavior, the HTTP transport, and logging, with defaults that work
// without a config file.
package config

//go:generate go run ../../cmd/genconfig

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
	"tools.zach/dev/watchbot/internal/chat"
	"tools.zach/dev/watchbot/internal/paths"
)

// CurrentVersion is the config schema version written by this build.
const CurrentVersion = 1

// DefaultTokenEnv is the environment variable consulted for the secret.
const DefaultTokenEnv = "WATCHBOT_TOKEN"

// DefaultCannedReply is the text of the canned-reply command.
const DefaultCannedReply = "Unlucky. Better luck next time."

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

// Config represents the top-level application configuration.
type Config struct {
	// Version is the config schema version.
	Version int `toml:"version"`
	// Discord holds account and channel settings.
	Discord DiscordConfig `toml:"discord"`
	// Poll holds message polling settings.
	Poll PollConfig `toml:"poll"`
	// Presence holds presence status settings.
	Presence PresenceConfig `toml:"presence"`
	// Commands holds command behavior settings.
	Commands CommandsConfig `toml:"commands"`
	// HTTP holds REST transport settings.
	HTTP HTTPConfig `toml:"http"`
	// Update holds release check settings.
	Update UpdateConfig `toml:"update"`
	// Log holds logging settings.
	Log LogConfig `toml:"log"`
}

// DiscordConfig holds account and channel settings.
type DiscordConfig struct {
	// ChannelID is the channel to watch for commands.
	ChannelID string `toml:"channel_id"`
	// Identity optionally pins the account the token must belong to.
	Identity string `toml:"identity,omitempty"`
	// TokenEnv names the environment variable holding the secret.
	TokenEnv string `toml:"token_env"`
}

// PollConfig holds message polling settings.
type PollConfig struct {
	// IntervalSeconds is the pause between poll cycles.
	IntervalSeconds int `toml:"interval_seconds"`
	// FetchLimit caps the messages requested per cycle (1-100).
	FetchLimit int `toml:"fetch_limit"`
	// SkipBacklog ignores the newest existing message at startup.
	SkipBacklog bool `toml:"skip_backlog"`
}

// PresenceConfig holds presence status settings.
type PresenceConfig struct {
	// ActiveStatus is published while the agent runs: online, idle, or dnd.
	ActiveStatus string `toml:"active_status"`
	// ShutdownTimeoutSeconds bounds the invisible update at exit.
	ShutdownTimeoutSeconds int `toml:"shutdown_timeout_seconds"`
}

// CommandsConfig holds command behavior settings.
type CommandsConfig struct {
	// CannedReply is the text sent by the canned-reply command.
	CannedReply string `toml:"canned_reply"`
	// IgnoreAuthors is a list of glob patterns for usernames whose messages
	// are never treated as commands.
	IgnoreAuthors []string `toml:"ignore_authors"`
}

// HTTPConfig holds REST transport settings.
type HTTPConfig struct {
	// TimeoutSeconds bounds each HTTP attempt.
	TimeoutSeconds int `toml:"timeout_seconds"`
	// RetryMax is the number of retries after a failed request.
	RetryMax int `toml:"retry_max"`
	// UserAgent overrides the User-Agent header.
	UserAgent string `toml:"user_agent,omitempty"`
}

// UpdateConfig holds release check settings.
type UpdateConfig struct {
	// Check enables the startup release check.
	Check bool `toml:"check"`
	// ManifestURL is the release manifest location.
	ManifestURL string `toml:"manifest_url,omitempty"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `toml:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation.
	MaxSizeMB int `toml:"max_size_mb"`
	// Console also writes log lines to stderr.
	Console bool `toml:"console"`
}

// ///////////////////////////////////////////////
// Default Configuration
// ///////////////////////////////////////////////

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		Discord: DiscordConfig{
			TokenEnv: DefaultTokenEnv,
		},
		Poll: PollConfig{
			IntervalSeconds: 3,
			FetchLimit:      50,
			SkipBacklog:     false,
		},
		Presence: PresenceConfig{
			ActiveStatus:           string(chat.StatusDND),
			ShutdownTimeoutSeconds: 5,
		},
		Commands: CommandsConfig{
			CannedReply:   DefaultCannedReply,
			IgnoreAuthors: []string{},
		},
		HTTP: HTTPConfig{
			TimeoutSeconds: 10,
			RetryMax:       2,
		},
		Update: UpdateConfig{
			Check: true,
		},
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 10,
		},
	}
}

// ExampleConfig returns a Config suitable for generating config.default.toml.
func ExampleConfig() *Config {
	return DefaultConfig()
}

// ///////////////////////////////////////////////
// Durations
// ///////////////////////////////////////////////

// Interval returns the poll interval.
func (p PollConfig) Interval() time.Duration {
	return time.Duration(p.IntervalSeconds) * time.Second
}

// ShutdownTimeout returns the bound on the final presence update.
func (p PresenceConfig) ShutdownTimeout() time.Duration {
	return time.Duration(p.ShutdownTimeoutSeconds) * time.Second
}

// Timeout returns the per-attempt HTTP timeout.
func (h HTTPConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutSeconds) * time.Second
}

// ///////////////////////////////////////////////
// PeekVersion
// ///////////////////////////////////////////////

// PeekVersion reads just the version field from raw TOML bytes.
// Returns 1 if the version field is missing or zero.
func PeekVersion(data []byte) int {
	var v struct {
		Version int `toml:"version"`
	}
	if err := toml.Unmarshal(data, &v); err != nil {
		return 1
	}
	if v.Version == 0 {
		return 1
	}
	return v.Version
}

// ///////////////////////////////////////////////
// Loading
// ///////////////////////////////////////////////

// Load reads and parses the configuration file from dataDir/config.toml.
// If the file doesn't exist, returns DefaultConfig. Unknown keys are logged
// and otherwise ignored.
func Load(dataDir string) (*Config, error) {
	path := filepath.Join(dataDir, paths.ConfigFile)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes TOML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	if v := PeekVersion(data); v > CurrentVersion {
		return nil, fmt.Errorf("config version %d is newer than supported version %d", v, CurrentVersion)
	}

	cfg := DefaultConfig()
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	for _, key := range md.Undecoded() {
		slog.Warn("unknown config key", "key", key.String())
	}
	cfg.Version = CurrentVersion

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// ///////////////////////////////////////////////
// Validation
// ///////////////////////////////////////////////

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks that all configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Discord.ChannelID != "" && !isSnowflake(c.Discord.ChannelID) {
		return fmt.Errorf("invalid discord.channel_id %q: must be a numeric ID", c.Discord.ChannelID)
	}

	if c.Poll.IntervalSeconds <= 0 {
		return fmt.Errorf("poll.interval_seconds must be > 0, got %d", c.Poll.IntervalSeconds)
	}

	if c.Poll.FetchLimit < 1 || c.Poll.FetchLimit > 100 {
		return fmt.Errorf("poll.fetch_limit must be between 1 and 100, got %d", c.Poll.FetchLimit)
	}

	switch chat.Status(c.Presence.ActiveStatus) {
	case chat.StatusOnline, chat.StatusIdle, chat.StatusDND:
	default:
		return fmt.Errorf("invalid presence.active_status %q: must be online, idle, or dnd", c.Presence.ActiveStatus)
	}

	if c.Presence.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("presence.shutdown_timeout_seconds must be > 0, got %d", c.Presence.ShutdownTimeoutSeconds)
	}

	if strings.TrimSpace(c.Commands.CannedReply) == "" {
		return fmt.Errorf("commands.canned_reply must not be empty")
	}

	for _, pattern := range c.Commands.IgnoreAuthors {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid commands.ignore_authors pattern %q", pattern)
		}
	}

	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0, got %d", c.HTTP.TimeoutSeconds)
	}

	if c.HTTP.RetryMax < 0 {
		return fmt.Errorf("http.retry_max must be >= 0, got %d", c.HTTP.RetryMax)
	}

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log.level %q: must be trace, debug, info, warn, or error", c.Log.Level)
	}

	if c.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("log.max_size_mb must be > 0, got %d", c.Log.MaxSizeMB)
	}

	return nil
}

// isSnowflake reports whether s is a non-empty string of ASCII digits.
func isSnowflake(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// ///////////////////////////////////////////////
// Secret Lookup
// ///////////////////////////////////////////////

// TokenFromEnv returns the secret from the configured environment variable,
// or "" when unset.
func (c *Config) TokenFromEnv() string {
	name := c.Discord.TokenEnv
	if name == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(name))
}
