// Package discord adapts the Discord REST API and gateway to the
// transport-neutral types in internal/chat.
//
// The [Client] type authenticates once, then serves every remote operation
// the agent needs: message polling, posting, editing, server and user
// lookups, and presence updates. REST calls go through a retrying HTTP
// transport; the gateway connection is opened lazily on the first presence
// update because presence can only be set over the gateway.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hashicorp/go-retryablehttp"
	"tools.zach/dev/watchbot/internal/chat"
)

// ///////////////////////////////////////////////
// Sentinel Errors
// ///////////////////////////////////////////////

// ErrNotAuthenticated is returned when an operation runs before a successful
// [Client.Authenticate].
var ErrNotAuthenticated = errors.New("not authenticated")

// ///////////////////////////////////////////////
// Options
// ///////////////////////////////////////////////

// Options configure a [Client].
type Options struct {
	// Timeout bounds each HTTP attempt. Defaults to 10s.
	Timeout time.Duration
	// RetryMax is the number of retries after a failed REST request.
	// Negative disables retries.
	RetryMax int
	// Transport overrides the base HTTP transport.
	Transport http.RoundTripper
	// UserAgent is sent on REST requests when set.
	UserAgent string
}

// newHTTPClient builds the retrying client shared by REST calls.
func newHTTPClient(opts Options) *http.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = max(opts.RetryMax, 0)
	rc.HTTPClient.Timeout = opts.Timeout
	if opts.Transport != nil {
		rc.HTTPClient.Transport = opts.Transport
	}
	rc.Logger = nil // suppress retryablehttp's default logging
	// discordgo inspects the final response itself, rate limits included.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			slog.Debug("retrying discord request", "method", req.Method, "path", req.URL.Path, "attempt", attempt)
		}
	}
	return rc.StandardClient()
}

// ///////////////////////////////////////////////
// Client
// ///////////////////////////////////////////////

// Client is the agent's connection to Discord.
type Client struct {
	opts Options

	// mu protects s.
	mu sync.Mutex
	// s is the authenticated discordgo session, or nil before Authenticate.
	s *discordgo.Session

	// gwMu serializes gateway use so a slow connect never blocks REST calls.
	gwMu sync.Mutex
	// gatewayOpen records whether s.Open has succeeded.
	gatewayOpen bool
}

// NewClient creates an unauthenticated Client.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	routeLibraryLogs()
	return &Client{opts: opts}
}

// Authenticate validates secret against the platform and returns the
// account it belongs to. When identity is set it must equal the account's
// user ID or username (case-insensitive).
func (c *Client) Authenticate(ctx context.Context, identity, secret string) (chat.Identity, error) {
	s, err := discordgo.New(authorization(secret))
	if err != nil {
		return chat.Identity{}, &chat.AuthError{Err: err}
	}
	s.Client = newHTTPClient(c.opts)
	if c.opts.UserAgent != "" {
		s.UserAgent = c.opts.UserAgent
	}
	s.Identify.Intents = discordgo.IntentsGuilds
	s.ShouldReconnectOnError = true

	u, err := s.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		if isStatus(err, http.StatusUnauthorized) || errors.Is(err, discordgo.ErrUnauthorized) {
			return chat.Identity{}, &chat.AuthError{Err: chat.ErrUnauthorized}
		}
		return chat.Identity{}, &chat.AuthError{Err: err}
	}

	if identity != "" && identity != u.ID && !strings.EqualFold(identity, u.Username) {
		return chat.Identity{}, &chat.AuthError{
			Err: fmt.Errorf("credential belongs to %s (%s), not %q", u.Username, u.ID, identity),
		}
	}

	c.mu.Lock()
	c.s = s
	c.mu.Unlock()

	slog.Info("authenticated", "user", u.Username, "user_id", u.ID)
	return chat.Identity{Token: secret, UserID: u.ID, Username: u.Username}, nil
}

// authorization returns the Authorization header value for secret. Secrets
// without an explicit scheme are treated as bot tokens.
func authorization(secret string) string {
	secret = strings.TrimSpace(secret)
	if strings.HasPrefix(secret, "Bot ") || strings.HasPrefix(secret, "Bearer ") {
		return secret
	}
	return "Bot " + secret
}

// session returns the authenticated session.
func (c *Client) session() (*discordgo.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.s == nil {
		return nil, ErrNotAuthenticated
	}
	return c.s, nil
}

// SetPresence publishes status over the gateway, connecting first if needed.
func (c *Client) SetPresence(ctx context.Context, status chat.Status) error {
	s, err := c.session()
	if err != nil {
		return err
	}
	c.gwMu.Lock()
	defer c.gwMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.gatewayOpen {
		if err := s.Open(); err != nil {
			return fmt.Errorf("open gateway: %w", err)
		}
		c.gatewayOpen = true
	}
	return s.UpdateStatusComplex(discordgo.UpdateStatusData{Status: string(status)})
}

// Close disconnects from the gateway. Later calls fail with
// [ErrNotAuthenticated].
func (c *Client) Close() error {
	c.mu.Lock()
	s := c.s
	c.s = nil
	c.mu.Unlock()
	if s == nil {
		return nil
	}

	c.gwMu.Lock()
	defer c.gwMu.Unlock()
	if !c.gatewayOpen {
		return nil
	}
	c.gatewayOpen = false
	return s.Close()
}

// ///////////////////////////////////////////////
// Messages
// ///////////////////////////////////////////////

// FetchMessages returns up to limit messages in channelID newer than after,
// in the order the platform lists them (newest first). An empty after
// returns the most recent messages.
func (c *Client) FetchMessages(ctx context.Context, channelID, after string, limit int) ([]chat.Message, error) {
	s, err := c.session()
	if err != nil {
		return nil, err
	}
	raw, err := s.ChannelMessages(channelID, limit, "", after, "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify(err, "channel", channelID)
	}
	out := make([]chat.Message, 0, len(raw))
	for _, m := range raw {
		out = append(out, toMessage(m))
	}
	return out, nil
}

// SendMessage posts content to channelID.
func (c *Client) SendMessage(ctx context.Context, channelID, content string) error {
	s, err := c.session()
	if err != nil {
		return &chat.SendError{ChannelID: channelID, Err: err}
	}
	if _, err := s.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx)); err != nil {
		return &chat.SendError{ChannelID: channelID, Err: classify(err, "channel", channelID)}
	}
	return nil
}

// EditMessage replaces the content of messageID. Editing a message written
// by another account fails with [chat.ErrForeignMessage].
func (c *Client) EditMessage(ctx context.Context, channelID, messageID, content string) error {
	s, err := c.session()
	if err != nil {
		return &chat.EditError{MessageID: messageID, Err: err}
	}
	if _, err := s.ChannelMessageEdit(channelID, messageID, content, discordgo.WithContext(ctx)); err != nil {
		if isForeignEdit(err) {
			return &chat.EditError{MessageID: messageID, Err: chat.ErrForeignMessage}
		}
		return &chat.EditError{MessageID: messageID, Err: classify(err, "message", messageID)}
	}
	return nil
}

// ///////////////////////////////////////////////
// Lookups
// ///////////////////////////////////////////////

// FetchServer returns the server's record with approximate member counts.
func (c *Client) FetchServer(ctx context.Context, serverID string) (chat.Server, error) {
	s, err := c.session()
	if err != nil {
		return chat.Server{}, &chat.FetchError{Op: "server", ID: serverID, Err: err}
	}
	g, err := s.GuildWithCounts(serverID, discordgo.WithContext(ctx))
	if err != nil {
		return chat.Server{}, &chat.FetchError{Op: "server", ID: serverID, Err: classify(err, "server", serverID)}
	}

	srv := toServer(g)
	channels, err := s.GuildChannels(serverID, discordgo.WithContext(ctx))
	if err != nil {
		slog.Debug("channel count unavailable", "server", serverID, "error", err)
	} else {
		srv.ChannelCount = len(channels)
	}
	return srv, nil
}

// FetchUser returns the user's public profile.
func (c *Client) FetchUser(ctx context.Context, userID string) (chat.User, error) {
	s, err := c.session()
	if err != nil {
		return chat.User{}, &chat.FetchError{Op: "user", ID: userID, Err: err}
	}
	u, err := s.User(userID, discordgo.WithContext(ctx))
	if err != nil {
		return chat.User{}, &chat.FetchError{Op: "user", ID: userID, Err: classify(err, "user", userID)}
	}
	return toUser(u), nil
}
