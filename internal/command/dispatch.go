package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"tools.zach/dev/watchbot/internal/chat"
	"tools.zach/dev/watchbot/internal/session"
)

// ///////////////////////////////////////////////
// Collaborators
// ///////////////////////////////////////////////

// API is the subset of the remote client that handlers call.
type API interface {
	SendMessage(ctx context.Context, channelID, content string) error
	EditMessage(ctx context.Context, channelID, messageID, content string) error
	FetchServer(ctx context.Context, serverID string) (chat.Server, error)
	FetchUser(ctx context.Context, userID string) (chat.User, error)
}

// Env is what a handler sees of the running agent.
type Env struct {
	API       API
	Session   *session.Session
	ChannelID string
	// CannedReply is the fixed text sent by the canned command.
	CannedReply string
	// Table is the dispatcher's command table, used by the help reply.
	Table Table
	// Message is the message that triggered the command.
	Message chat.Message
	Now     func() time.Time
}

// ///////////////////////////////////////////////
// Dispatcher
// ///////////////////////////////////////////////

// Options configure a [Dispatcher].
type Options struct {
	ChannelID   string
	CannedReply string
	// IgnoreAuthors holds glob patterns matched against author usernames;
	// matching messages are never dispatched.
	IgnoreAuthors []string
	// Now overrides the clock; defaults to [time.Now].
	Now func() time.Time
	// Table overrides [DefaultTable].
	Table Table
}

// Dispatcher matches messages against a [Table] and runs at most one handler
// per message.
type Dispatcher struct {
	env    Env
	ignore []string
}

// New creates a Dispatcher bound to a session and channel.
func New(api API, sess *session.Session, opts Options) *Dispatcher {
	table := opts.Table
	if table == nil {
		table = DefaultTable()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		env: Env{
			API:         api,
			Session:     sess,
			ChannelID:   opts.ChannelID,
			CannedReply: opts.CannedReply,
			Table:       table,
			Now:         now,
		},
		ignore: opts.IgnoreAuthors,
	}
}

// match normalizes text and returns the entry and command it selects.
func (d *Dispatcher) match(text string) (Entry, Command, bool) {
	return d.env.Table.Lookup(Normalize(text))
}

// Dispatch runs the handler selected by msg, if any. Unrecognized text and
// ignored authors return nil. Handler errors are returned wrapped with the
// command name.
func (d *Dispatcher) Dispatch(ctx context.Context, msg chat.Message) error {
	if d.ignored(msg.Author) {
		slog.Debug("ignoring message from filtered author", "message", msg.ID, "author", msg.Author.Username)
		return nil
	}

	entry, cmd, ok := d.match(msg.Content)
	if !ok {
		return nil
	}

	slog.Info("dispatching command", "command", cmd.Name, "message", msg.ID, "author", msg.Author.Username)

	env := d.env
	env.Message = msg
	if err := entry.Handler(ctx, &env, cmd.Args); err != nil {
		return fmt.Errorf("%s: %w", cmd.Name, err)
	}
	return nil
}

// ignored reports whether a's username matches an ignore pattern.
func (d *Dispatcher) ignored(a chat.Author) bool {
	for _, pattern := range d.ignore {
		matched, err := doublestar.Match(pattern, a.Username)
		if err != nil {
			slog.Warn("invalid glob pattern", "pattern", pattern, "error", err)
			continue
		}
		if matched {
			return true
		}
	}
	return false
}
