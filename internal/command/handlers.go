package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"tools.zach/dev/watchbot/internal/chat"
)

// ErrUsage is returned by handlers whose arguments are missing or malformed.
var ErrUsage = errors.New("invalid arguments")

// Replies that are not derived from remote data.
const (
	serverUsageReply   = "Usage: !server <server id>"
	serverFailureReply = "Could not fetch that server's information."
)

// ///////////////////////////////////////////////
// Handlers
// ///////////////////////////////////////////////

func handlePing(ctx context.Context, env *Env, _ string) error {
	uptime := env.Session.Uptime(env.Now())
	return reply(ctx, env, "Pong! Uptime: "+FormatUptime(uptime))
}

func handleCanned(ctx context.Context, env *Env, _ string) error {
	return reply(ctx, env, env.CannedReply)
}

// handleServer never returns a lookup failure: server IDs come from users and
// fail often, so the failure is reported in the channel instead. Only a
// failure to post that reply is returned.
func handleServer(ctx context.Context, env *Env, args string) error {
	id := strings.TrimSpace(args)
	if id == "" {
		return reply(ctx, env, serverUsageReply)
	}

	srv, err := env.API.FetchServer(ctx, id)
	if err != nil {
		slog.Warn("server lookup failed", "server", id, "error", err)
		return reply(ctx, env, serverFailureReply)
	}
	return reply(ctx, env, FormatServer(srv, env.Now()))
}

func handleUser(ctx context.Context, env *Env, args string) error {
	id := strings.TrimSpace(args)
	if id == "" {
		return fmt.Errorf("%w: want a user id", ErrUsage)
	}

	u, err := env.API.FetchUser(ctx, id)
	if err != nil {
		return err
	}
	return reply(ctx, env, FormatUser(u))
}

func handleSay(ctx context.Context, env *Env, args string) error {
	if strings.TrimSpace(args) == "" {
		return fmt.Errorf("%w: nothing to say", ErrUsage)
	}
	return reply(ctx, env, args)
}

func handleHelp(ctx context.Context, env *Env, _ string) error {
	return reply(ctx, env, FormatHelp(env.Table))
}

// handleEdit splits args at the first space into a message ID and the new
// content.
func handleEdit(ctx context.Context, env *Env, args string) error {
	messageID, content, _ := strings.Cut(args, " ")
	if messageID == "" || strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: want a message id and new text", ErrUsage)
	}

	if err := env.API.EditMessage(ctx, env.ChannelID, messageID, content); err != nil {
		var ee *chat.EditError
		if errors.As(err, &ee) {
			return ee
		}
		return &chat.EditError{MessageID: messageID, Err: err}
	}
	slog.Info("message edited", "message", messageID)
	return nil
}

// reply posts content to the handler's channel.
func reply(ctx context.Context, env *Env, content string) error {
	if err := env.API.SendMessage(ctx, env.ChannelID, content); err != nil {
		var se *chat.SendError
		if errors.As(err, &se) {
			return se
		}
		return &chat.SendError{ChannelID: env.ChannelID, Err: err}
	}
	return nil
}
