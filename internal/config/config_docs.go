package config

// ///////////////////////////////////////////////
// Documentation Types
// ///////////////////////////////////////////////

// FieldDoc holds documentation and alternative examples for a single config field.
// The genconfig tool uses [FieldDoc] values to annotate the generated config.default.toml.
type FieldDoc struct {
	// Comment is shown as a header comment above the field in the example config.
	Comment string

	// Alternatives are shown as commented-out lines below the active value.
	Alternatives []string
}

// ///////////////////////////////////////////////
// Field Documentation Map
// ///////////////////////////////////////////////

// ConfigDocs maps TOML field paths (dot-separated, e.g. "poll.interval_seconds")
// to their [FieldDoc] entries.
var ConfigDocs = map[string]FieldDoc{
	// ── Root ──────────────────────────────────────────────────────
	"version": {
		Comment: "Config schema version. Do not edit.",
	},

	// ── Discord ──────────────────────────────────────────────────
	"discord.channel_id": {
		Comment: "Channel to watch for commands. Required.\nCan also be passed with --channel.",
		Alternatives: []string{
			`channel_id = "123456789012345678"`,
		},
	},
	"discord.identity": {
		Comment: "Optional: the user ID or username the token must belong to.\nStartup fails if the token authenticates as someone else.",
		Alternatives: []string{
			`identity = "my-bot"`,
		},
	},
	"discord.token_env": {
		Comment: "Environment variable holding the token.\nWhen it is unset and stdin is a terminal, the token is prompted for.",
	},

	// ── Poll ─────────────────────────────────────────────────────
	"poll.interval_seconds": {
		Comment: "Seconds to wait after one poll cycle before starting the next.",
	},
	"poll.fetch_limit": {
		Comment: "Messages requested per cycle (1-100). Only the newest is acted on.",
	},
	"poll.skip_backlog": {
		Comment: "Ignore the newest message already in the channel at startup.",
	},

	// ── Presence ─────────────────────────────────────────────────
	"presence.active_status": {
		Comment: "Status shown while running. Options: \"online\", \"idle\", \"dnd\"\nThe account is set to invisible on shutdown.",
		Alternatives: []string{
			`active_status = "online"`,
			`active_status = "idle"`,
		},
	},
	"presence.shutdown_timeout_seconds": {
		Comment: "Upper bound on the invisible update at exit.",
	},

	// ── Commands ─────────────────────────────────────────────────
	"commands.canned_reply": {
		Comment: "Text sent in reply to !xlost",
	},
	"commands.ignore_authors": {
		Comment: "Glob patterns for usernames whose messages are never run as commands.",
		Alternatives: []string{
			`ignore_authors = ["*-bot", "spammer"]`,
		},
	},

	// ── HTTP ─────────────────────────────────────────────────────
	"http.timeout_seconds": {
		Comment: "Timeout for each REST request attempt.",
	},
	"http.retry_max": {
		Comment: "Retries after a failed REST request (connection errors and 5xx).",
	},
	"http.user_agent": {
		Comment: "Optional User-Agent override.",
		Alternatives: []string{
			`user_agent = "DiscordBot (https://example.com, 1.0)"`,
		},
	},

	// ── Update ───────────────────────────────────────────────────
	"update.check": {
		Comment: "Check for a newer release at startup. Failures are ignored.",
	},
	"update.manifest_url": {
		Comment: "Release manifest location. The check is skipped when empty.",
		Alternatives: []string{
			`manifest_url = "https://example.com/watchbot/release.json"`,
		},
	},

	// ── Log ──────────────────────────────────────────────────────
	"log.level": {
		Comment: "Log level: \"trace\", \"debug\", \"info\", \"warn\", \"error\"\nChanges take effect without a restart.",
		Alternatives: []string{
			`level = "debug"`,
		},
	},
	"log.max_size_mb": {
		Comment: "Log file size in MB before rotation.",
	},
	"log.console": {
		Comment: "Also write log lines to stderr.",
	},
}
