// Package main implements watchbot, an unattended agent that watches one
// channel for commands and answers them until it is told to stop.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/spf13/cobra"
	rootpkg "tools.zach/dev/watchbot"
	"tools.zach/dev/watchbot/internal/chat"
	"tools.zach/dev/watchbot/internal/command"
	"tools.zach/dev/watchbot/internal/config"
	"tools.zach/dev/watchbot/internal/discord"
	"tools.zach/dev/watchbot/internal/logger"
	"tools.zach/dev/watchbot/internal/paths"
	"tools.zach/dev/watchbot/internal/pidfile"
	"tools.zach/dev/watchbot/internal/poller"
	"tools.zach/dev/watchbot/internal/session"
	"tools.zach/dev/watchbot/internal/shutdown"
	"tools.zach/dev/watchbot/internal/update"
)

// ///////////////////////////////////////////////
// Version
// ///////////////////////////////////////////////

// version is set at build time via ldflags:
//
//	-X main.version=0.1.0
//
// When unset, resolveVersion falls back to the VCS info the Go toolchain
// embeds.
var version = "dev"

// resolveVersion returns the build version string, or "dev+<hash>" built from
// embedded VCS settings when no version was injected.
func resolveVersion() string {
	if version != "dev" {
		return version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version
	}
	return vcsVersion(info.Settings)
}

// vcsVersion derives a dev version tag from build settings.
func vcsVersion(settings []debug.BuildSetting) string {
	var revision string
	var dirty bool
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return version
	}
	hash := revision[:min(7, len(revision))]
	if dirty {
		return "dev+" + hash + ".dirty"
	}
	return "dev+" + hash
}

// ///////////////////////////////////////////////
// Commands
// ///////////////////////////////////////////////

// flags holds command-line overrides for config values.
type flags struct {
	dataDir  string
	channel  string
	identity string
	tokenEnv string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	rootCmd := &cobra.Command{
		Use:          paths.BinaryName,
		Short:        "Watch a channel and answer commands",
		Long:         "watchbot signs in once, marks the account busy, and answers !-commands posted in one channel until it receives SIGINT or SIGTERM.",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), f, cmd.InOrStdin(), cmd.ErrOrStderr())
		},
	}
	rootCmd.PersistentFlags().StringVar(&f.dataDir, "data-dir", paths.DefaultRoot(), "Data directory for config, PID file, and logs")
	rootCmd.Flags().StringVar(&f.channel, "channel", "", "Channel ID to watch (overrides discord.channel_id)")
	rootCmd.Flags().StringVar(&f.identity, "identity", "", "Expected account user ID or username (overrides discord.identity)")
	rootCmd.Flags().StringVar(&f.tokenEnv, "token-env", "", "Environment variable holding the token (overrides discord.token_env)")

	rootCmd.AddCommand(newVersionCmd(), newLogsCmd(f))
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), resolveVersion())
			return err
		},
	}
}

func newLogsCmd(f *flags) *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the end of the log file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if lines <= 0 {
				return fmt.Errorf("--lines must be > 0")
			}
			tail, err := logger.ReadTail(paths.DataDir{Root: f.dataDir}.Log(), lines)
			if err != nil {
				return err
			}
			if tail == "" {
				return nil
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tail)
			return err
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to print")
	return cmd
}

// ///////////////////////////////////////////////
// Run
// ///////////////////////////////////////////////

// run starts the agent and blocks until shutdown completes. A nil return
// means a clean exit, including after a signal.
func run(ctx context.Context, f *flags, stdin io.Reader, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	dirs := paths.DataDir{Root: f.dataDir}

	if err := os.MkdirAll(dirs.Root, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	lock, err := pidfile.Acquire(dirs.PID())
	if err != nil {
		if pidfile.IsRunning(err) {
			fmt.Fprintf(stderr, "another watchbot is using %s; stop it or pass a different --data-dir\n", dirs.Root)
		}
		return err
	}
	defer lock.Release()

	// A signal before the agent goes active ends startup with no presence
	// change; after that the coordinator owns the channel.
	signals := signalChannel()
	startCtx, stopWatch := watchStartup(ctx, signals)
	defer stopWatch()

	if _, err := config.Seed(dirs.Config(), rootpkg.DefaultConfigTOML); err != nil {
		fmt.Fprintf(stderr, "warning: failed to write default config: %v\n", err)
	}

	cfg, err := config.Load(dirs.Root)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := applyFlags(cfg, f, terminalAsker(startCtx, stdin, stderr)); err != nil {
		if interrupted(startCtx) {
			return nil
		}
		return err
	}

	var level slog.LevelVar
	level.Set(logger.ParseLevel(cfg.Log.Level))
	log, logCloser, err := logger.NewLogger(logger.Options{
		Path:      dirs.Log(),
		Level:     &level,
		MaxSizeMB: cfg.Log.MaxSizeMB,
		Console:   cfg.Log.Console,
		Stderr:    stderr,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logCloser.Close()
	slog.SetDefault(log)

	ver := resolveVersion()
	slog.Info("watchbot starting", "version", ver, "data_dir", dirs.Root, "channel", cfg.Discord.ChannelID)

	if cfg.Update.Check {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("update check panic", "error", r)
				}
			}()
			update.Check(ctx, ver, cfg.Update.ManifestURL)
		}()
	}

	secret, err := readSecret(startCtx, cfg, stdin, stderr)
	if err != nil {
		if interrupted(startCtx) {
			slog.Info("interrupted during startup")
			return nil
		}
		slog.Log(ctx, logger.LevelFail, "no credentials", "error", err)
		return err
	}

	client := discord.NewClient(discord.Options{
		Timeout:   cfg.HTTP.Timeout(),
		RetryMax:  cfg.HTTP.RetryMax,
		UserAgent: cfg.HTTP.UserAgent,
	})

	sess, err := session.Authenticate(startCtx, client, session.Credentials{
		Identity: cfg.Discord.Identity,
		Secret:   secret,
	})
	if interrupted(startCtx) {
		if sess != nil {
			sess.Revoke()
		}
		slog.Info("interrupted during startup")
		_ = client.Close()
		return nil
	}
	if err != nil {
		slog.Log(ctx, logger.LevelFail, "authentication failed", "error", err)
		return err
	}
	log = log.With("session", sess.ID.String())
	slog.SetDefault(log)

	presence := session.NewPresence(client, sess, chat.Status(cfg.Presence.ActiveStatus))
	if err := presence.Activate(ctx); err != nil {
		// Polling does not depend on presence.
		slog.Warn("failed to set active presence", "error", err)
	}

	dispatcher := command.New(client, sess, command.Options{
		ChannelID:     cfg.Discord.ChannelID,
		CannedReply:   cfg.Commands.CannedReply,
		IgnoreAuthors: cfg.Commands.IgnoreAuthors,
	})
	p := poller.New(client, dispatcher, poller.Options{
		ChannelID:   cfg.Discord.ChannelID,
		Interval:    cfg.Poll.Interval(),
		Limit:       cfg.Poll.FetchLimit,
		SkipBacklog: cfg.Poll.SkipBacklog,
		Halted:      presence.Stopping,
		Gate:        presence.Admit,
	})

	pollCtx, stopPolling := context.WithCancel(ctx)
	defer stopPolling()
	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		p.Run(pollCtx)
	}()

	watcher, err := config.NewWatcher(dirs.Config())
	if err != nil {
		slog.Warn("config watcher unavailable", "error", err)
	} else {
		defer watcher.Close()
		if watcher.Polling() {
			slog.Info("using polling mode for config changes")
		}
		go watchConfig(pollCtx, watcher, dirs.Root, &level)
	}

	coord := &shutdown.Coordinator{
		Presence:    presence,
		Session:     sess,
		StopPolling: stopPolling,
		PollerDone:  pollerDone,
		Timeout:     cfg.Presence.ShutdownTimeout(),
		Grace:       2 * time.Second,
		Cleanup:     []func() error{client.Close},
	}
	// A signal caught by the startup watch shows up as startCtx ending.
	stopWatch()
	// Errors from the final presence update are logged by the coordinator
	// and do not change the exit status.
	_ = coord.Run(startCtx, signals)
	return nil
}

// ///////////////////////////////////////////////
// Startup Helpers
// ///////////////////////////////////////////////

// applyFlags layers command-line overrides onto cfg and re-validates it. A
// channel is required; when none is configured and ask is non-nil, ask is
// used to request one.
func applyFlags(cfg *config.Config, f *flags, ask func(label string) (string, error)) error {
	if f.channel != "" {
		cfg.Discord.ChannelID = f.channel
	}
	if f.identity != "" {
		cfg.Discord.Identity = f.identity
	}
	if f.tokenEnv != "" {
		cfg.Discord.TokenEnv = f.tokenEnv
	}
	if cfg.Discord.ChannelID == "" && ask != nil {
		ch, err := ask("Channel ID")
		if err != nil {
			return fmt.Errorf("read channel: %w", err)
		}
		cfg.Discord.ChannelID = ch
	}
	if cfg.Discord.ChannelID == "" {
		return errors.New("no channel configured: set discord.channel_id or pass --channel")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

// watchConfig reloads the config file on change and applies the log level.
// Other settings take effect on the next start.
func watchConfig(ctx context.Context, w *config.Watcher, root string, level *slog.LevelVar) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.Events():
			cfg, err := config.Load(root)
			if err != nil {
				slog.Warn("config reload failed", "error", err)
				continue
			}
			next := logger.ParseLevel(cfg.Log.Level)
			if next != level.Level() {
				level.Set(next)
				slog.Info("log level changed", "level", cfg.Log.Level)
			}
		}
	}
}
