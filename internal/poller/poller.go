// Package poller discovers new channel messages on a fixed interval and hands
// the newest unseen one to a dispatcher.
//
// Each cycle runs fetch -> cursor advance -> dispatch -> handler effect in
// order and finishes before the next one starts. Remote calls are never
// cancelled once started; stopping only means the result of an in-flight
// cycle is discarded instead of dispatched.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"tools.zach/dev/watchbot/internal/chat"
	"tools.zach/dev/watchbot/internal/logger"
)

// ///////////////////////////////////////////////
// Collaborators
// ///////////////////////////////////////////////

// Fetcher reads messages newer than a given ID. An empty after means "the
// most recent messages".
type Fetcher interface {
	FetchMessages(ctx context.Context, channelID, after string, limit int) ([]chat.Message, error)
}

// Dispatcher acts on a single message.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg chat.Message) error
}

// ///////////////////////////////////////////////
// Poller
// ///////////////////////////////////////////////

// Options configure a [Poller].
type Options struct {
	ChannelID string
	// Interval is the sleep between the end of one cycle and the start of
	// the next.
	Interval time.Duration
	// Limit caps the number of messages fetched per cycle.
	Limit int
	// SkipBacklog primes the cursor with the newest existing message on
	// the first cycle instead of dispatching it.
	SkipBacklog bool
	// Halted, when set, is consulted together with context cancellation
	// before dispatching. It lets the owner of the shutdown state veto a
	// dispatch before the poll context is cancelled.
	Halted func() bool
	// Gate, when set, runs the dispatch and reports whether it did. A false
	// return means shutdown won the race and the message is discarded.
	Gate func(dispatch func()) bool
}

// Poller owns the [Cursor] and runs the poll loop.
type Poller struct {
	fetcher    Fetcher
	dispatcher Dispatcher
	opts       Options

	cursor Cursor
	primed bool
}

// New creates a Poller. Non-positive Interval and Limit fall back to 3s and 50.
func New(f Fetcher, d Dispatcher, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = 3 * time.Second
	}
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	return &Poller{fetcher: f, dispatcher: d, opts: opts}
}

// Cursor returns the last seen message ID.
func (p *Poller) Cursor() string { return p.cursor.Last() }

// PollOnce fetches messages newer than the cursor and returns the newest one,
// advancing the cursor to it. It returns nil when nothing new arrived. On
// failure the cursor is left untouched and a [*chat.FetchError] is returned.
func (p *Poller) PollOnce(ctx context.Context) (*chat.Message, error) {
	msgs, err := p.fetcher.FetchMessages(ctx, p.opts.ChannelID, p.cursor.Last(), p.opts.Limit)
	if err != nil {
		var fe *chat.FetchError
		if errors.As(err, &fe) {
			return nil, fe
		}
		return nil, &chat.FetchError{Op: "messages", ID: p.opts.ChannelID, Err: err}
	}

	var newest *chat.Message
	for i := range msgs {
		m := &msgs[i]
		if m.ID == "" || p.cursor.Seen(m.ID) {
			continue
		}
		if newest == nil || snowflakeLess(newest.ID, m.ID) {
			newest = m
		}
	}
	if newest == nil {
		return nil, nil
	}
	p.cursor.Advance(newest.ID)
	out := *newest
	return &out, nil
}

// Run polls until ctx is cancelled. A failed cycle is logged and the loop
// carries on at the next interval.
func (p *Poller) Run(ctx context.Context) {
	slog.Info("poller started",
		"channel", p.opts.ChannelID,
		"interval", p.opts.Interval,
		"skip_backlog", p.opts.SkipBacklog,
	)
	defer func() { slog.Info("poller stopped", "cursor", p.cursor.Last()) }()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		// Both cases may be ready at once; never start a cycle after stop.
		if p.stopped(ctx) {
			return
		}

		p.cycle(ctx)
		timer.Reset(p.opts.Interval)
	}
}

// cycle performs one fetch/dispatch round. Remote calls run detached from
// ctx cancellation; ctx is only consulted to decide whether to act on the
// result.
func (p *Poller) cycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("poll cycle panic", "error", r)
		}
	}()

	callCtx := context.WithoutCancel(ctx)

	msg, err := p.PollOnce(callCtx)
	if err != nil {
		slog.Warn("poll failed", "error", err)
		return
	}
	slog.Log(ctx, logger.LevelTrace, "poll cycle", "cursor", p.cursor.Last(), "new", msg != nil)
	first := !p.primed
	p.primed = true
	if msg == nil {
		return
	}

	if p.opts.SkipBacklog && first {
		slog.Debug("skipping backlog", "message", msg.ID)
		return
	}

	if p.stopped(ctx) {
		slog.Info("discarding message received during shutdown", "message", msg.ID)
		return
	}

	dispatch := func() {
		if err := p.dispatcher.Dispatch(callCtx, *msg); err != nil {
			slog.Warn("command failed", "message", msg.ID, "error", err)
		}
	}
	if p.opts.Gate == nil {
		dispatch()
		return
	}
	if !p.opts.Gate(dispatch) {
		slog.Info("discarding message received during shutdown", "message", msg.ID)
	}
}

// stopped reports whether the loop has been told to stop.
func (p *Poller) stopped(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	return p.opts.Halted != nil && p.opts.Halted()
}
