package shutdown

import (
	"context"
	"errors"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"tools.zach/dev/watchbot/internal/chat"
	"tools.zach/dev/watchbot/internal/poller"
	"tools.zach/dev/watchbot/internal/session"
)

// ///////////////////////////////////////////////
// Test Helpers
// ///////////////////////////////////////////////

type fakeAuth struct{}

func (fakeAuth) Authenticate(context.Context, string, string) (chat.Identity, error) {
	return chat.Identity{Token: "tok", UserID: "42", Username: "agent"}, nil
}

// recordSetter records published statuses. When block is set, invisible
// updates wait on it.
type recordSetter struct {
	mu       sync.Mutex
	statuses []chat.Status
	block    chan struct{}
}

func (r *recordSetter) SetPresence(ctx context.Context, status chat.Status) error {
	if status == chat.StatusInvisible && r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
	return nil
}

func (r *recordSetter) Statuses() []chat.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]chat.Status(nil), r.statuses...)
}

// activeAgent returns an authenticated session with an active presence.
func activeAgent(t *testing.T, setter *recordSetter) (*session.Session, *session.Presence) {
	t.Helper()
	sess, err := session.Authenticate(context.Background(), fakeAuth{}, session.Credentials{Secret: "s"})
	if err != nil {
		t.Fatal(err)
	}
	p := session.NewPresence(setter, sess, chat.StatusDND)
	if err := p.Activate(context.Background()); err != nil {
		t.Fatal(err)
	}
	return sess, p
}

// runAsync starts c.Run and returns a channel yielding its result.
func runAsync(ctx context.Context, c *Coordinator, signals <-chan os.Signal) <-chan error {
	out := make(chan error, 1)
	go func() { out <- c.Run(ctx, signals) }()
	return out
}

func await(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

// ///////////////////////////////////////////////
// Tests
// ///////////////////////////////////////////////

func TestFirstSignalShutsDown(t *testing.T) {
	setter := &recordSetter{}
	sess, p := activeAgent(t, setter)

	stopped := false
	cleaned := false
	c := &Coordinator{
		Presence:    p,
		Session:     sess,
		StopPolling: func() { stopped = true },
		Cleanup:     []func() error{func() error { cleaned = true; return nil }},
	}
	signals := make(chan os.Signal, 1)
	result := runAsync(context.Background(), c, signals)
	signals <- syscall.SIGINT

	if err := await(t, result); err != nil {
		t.Fatalf("Run = %v", err)
	}
	if !stopped {
		t.Error("polling not stopped")
	}
	if !cleaned {
		t.Error("cleanup not run")
	}
	if p.State() != session.StateTerminated {
		t.Errorf("state = %v, want terminated", p.State())
	}
	if sess.Valid() {
		t.Error("session still valid after shutdown")
	}
	want := []chat.Status{chat.StatusDND, chat.StatusInvisible}
	got := setter.Statuses()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("statuses = %v, want %v", got, want)
	}
}

func TestRepeatedSignalsIgnored(t *testing.T) {
	setter := &recordSetter{block: make(chan struct{})}
	sess, p := activeAgent(t, setter)
	c := &Coordinator{Presence: p, Session: sess, Timeout: time.Second}

	signals := make(chan os.Signal, 4)
	result := runAsync(context.Background(), c, signals)
	signals <- syscall.SIGINT
	signals <- syscall.SIGTERM
	signals <- syscall.SIGINT
	time.Sleep(20 * time.Millisecond)
	close(setter.block)

	if err := await(t, result); err != nil {
		t.Fatalf("Run = %v", err)
	}
	invisible := 0
	for _, s := range setter.Statuses() {
		if s == chat.StatusInvisible {
			invisible++
		}
	}
	if invisible != 1 {
		t.Errorf("invisible published %d times, want 1", invisible)
	}
}

func TestPresenceTimeoutStillTerminates(t *testing.T) {
	setter := &recordSetter{block: make(chan struct{})}
	defer close(setter.block)
	sess, p := activeAgent(t, setter)
	c := &Coordinator{Presence: p, Session: sess, Timeout: 50 * time.Millisecond}

	signals := make(chan os.Signal, 1)
	start := time.Now()
	result := runAsync(context.Background(), c, signals)
	signals <- syscall.SIGTERM

	err := await(t, result)
	var pe *chat.PresenceError
	if !errors.As(err, &pe) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run = %v, want PresenceError wrapping deadline", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("shutdown took %v, want about 50ms", elapsed)
	}
	if p.State() != session.StateTerminated {
		t.Errorf("state = %v, want terminated", p.State())
	}
}

func TestContextCancelShutsDown(t *testing.T) {
	setter := &recordSetter{}
	sess, p := activeAgent(t, setter)
	c := &Coordinator{Presence: p, Session: sess}

	ctx, cancel := context.WithCancel(context.Background())
	result := runAsync(ctx, c, make(chan os.Signal))
	cancel()

	if err := await(t, result); err != nil {
		t.Fatalf("Run = %v", err)
	}
	if p.State() != session.StateTerminated {
		t.Errorf("state = %v, want terminated", p.State())
	}
}

// blockingFetcher holds every fetch until release is closed.
type blockingFetcher struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (f *blockingFetcher) FetchMessages(context.Context, string, string, int) ([]chat.Message, error) {
	f.once.Do(func() { close(f.started) })
	<-f.release
	return []chat.Message{{ID: "1", Content: "!ping"}}, nil
}

type countDispatcher struct {
	mu sync.Mutex
	n  int
}

func (d *countDispatcher) Dispatch(context.Context, chat.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.n++
	return nil
}

func TestInFlightCycleDoesNotDelayShutdown(t *testing.T) {
	setter := &recordSetter{}
	sess, p := activeAgent(t, setter)

	f := &blockingFetcher{started: make(chan struct{}), release: make(chan struct{})}
	d := &countDispatcher{}
	pl := poller.New(f, d, poller.Options{Interval: time.Millisecond, Halted: p.Stopping, Gate: p.Admit})

	pollCtx, stopPolling := context.WithCancel(context.Background())
	pollDone := make(chan struct{})
	go func() {
		pl.Run(pollCtx)
		close(pollDone)
	}()
	<-f.started

	c := &Coordinator{Presence: p, Session: sess, StopPolling: stopPolling, PollerDone: pollDone}
	signals := make(chan os.Signal, 1)
	result := runAsync(context.Background(), c, signals)
	signals <- syscall.SIGINT

	if err := await(t, result); err != nil {
		t.Fatalf("Run = %v", err)
	}
	if got := setter.Statuses(); got[len(got)-1] != chat.StatusInvisible {
		t.Errorf("last status = %v, want invisible", got)
	}

	// The cycle completes after exit and its result is discarded.
	close(f.release)
	<-pollDone
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.n != 0 {
		t.Errorf("dispatched %d messages after shutdown, want 0", d.n)
	}
}

// oneMessageFetcher returns a single message on the first fetch.
type oneMessageFetcher struct {
	once sync.Once
}

func (f *oneMessageFetcher) FetchMessages(context.Context, string, string, int) ([]chat.Message, error) {
	var out []chat.Message
	f.once.Do(func() { out = []chat.Message{{ID: "1", Content: "!ping"}} })
	return out, nil
}

func TestShutdownBetweenCheckAndDispatch(t *testing.T) {
	setter := &recordSetter{}
	_, p := activeAgent(t, setter)

	// The second check is the one just before dispatch. Shutdown begins
	// right after it reports "not stopping".
	var mu sync.Mutex
	checks := 0
	halted := func() bool {
		stopping := p.Stopping()
		mu.Lock()
		checks++
		n := checks
		mu.Unlock()
		if n == 2 && !stopping {
			p.BeginShutdown()
		}
		return stopping
	}

	d := &countDispatcher{}
	pl := poller.New(&oneMessageFetcher{}, d, poller.Options{
		Interval: time.Millisecond,
		Halted:   halted,
		Gate:     p.Admit,
	})
	done := make(chan struct{})
	go func() {
		pl.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop after shutdown began")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.n != 0 {
		t.Errorf("dispatched %d messages after shutdown began, want 0", d.n)
	}
	if p.State() != session.StateShuttingDown {
		t.Errorf("state = %v, want shutting-down", p.State())
	}
}
