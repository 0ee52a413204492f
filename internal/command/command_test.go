package command

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"tools.zach/dev/watchbot/internal/chat"
	"tools.zach/dev/watchbot/internal/session"
)

// ///////////////////////////////////////////////
// Test Helpers
// ///////////////////////////////////////////////

// sent is one recorded outbound call of [fakeAPI].
type sent struct {
	op        string
	channelID string
	messageID string
	content   string
}

// fakeAPI records calls and returns canned records or errors.
type fakeAPI struct {
	mu       sync.Mutex
	calls    []sent
	server   chat.Server
	user     chat.User
	fetchErr error
	sendErr  error
	editErr  error
}

func (f *fakeAPI) SendMessage(_ context.Context, channelID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sent{op: "send", channelID: channelID, content: content})
	return f.sendErr
}

func (f *fakeAPI) EditMessage(_ context.Context, channelID, messageID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sent{op: "edit", channelID: channelID, messageID: messageID, content: content})
	return f.editErr
}

func (f *fakeAPI) FetchServer(_ context.Context, id string) (chat.Server, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sent{op: "server", messageID: id})
	if f.fetchErr != nil {
		return chat.Server{}, f.fetchErr
	}
	return f.server, nil
}

func (f *fakeAPI) FetchUser(_ context.Context, id string) (chat.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sent{op: "user", messageID: id})
	if f.fetchErr != nil {
		return chat.User{}, f.fetchErr
	}
	return f.user, nil
}

func (f *fakeAPI) ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		out = append(out, c.op)
	}
	return out
}

func (f *fakeAPI) lastSend(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].op == "send" {
			return f.calls[i].content
		}
	}
	t.Fatal("no message sent")
	return ""
}

var started = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newDispatcher(api API, opts Options) *Dispatcher {
	sess := &session.Session{UserID: "42", Username: "agent", StartedAt: started}
	if opts.ChannelID == "" {
		opts.ChannelID = "chan"
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return started.Add(3661 * time.Second) }
	}
	return New(api, sess, opts)
}

func message(content string) chat.Message {
	return chat.Message{ID: "900", ChannelID: "chan", Content: content, Author: chat.Author{ID: "7", Username: "someone"}}
}

// ///////////////////////////////////////////////
// Matching
// ///////////////////////////////////////////////

func TestMatchPriority(t *testing.T) {
	d := newDispatcher(&fakeAPI{}, Options{})
	tests := []struct {
		text     string
		wantName string
		wantArgs string
		wantOK   bool
	}{
		{"!ping", "!ping", "", true},
		{"  !PING  ", "!ping", "", true},
		{"!ping now", "", "", false},
		{"!xlost", "!xlost", "", true},
		{"!server abc", "!server", "abc", true},
		{"!server", "!server", "", true},
		{"!servers", "", "", false},
		{"!user 123", "!user", "123", true},
		{"!say hello world", "!say", "hello world", true},
		{"!say Hello", "!say", "hello", true},
		{"!help", "!help", "", true},
		{"!edit 5 fixed", "!edit", "5 fixed", true},
		{"!unknown", "", "", false},
		{"hello", "", "", false},
		{"", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			_, cmd, ok := d.match(tt.text)
			if ok != tt.wantOK {
				t.Fatalf("match(%q) ok = %v, want %v", tt.text, ok, tt.wantOK)
			}
			if cmd.Name != tt.wantName || cmd.Args != tt.wantArgs {
				t.Errorf("match(%q) = %+v, want {%s %s}", tt.text, cmd, tt.wantName, tt.wantArgs)
			}
		})
	}
}

func TestTableFirstMatchWins(t *testing.T) {
	var hit string
	mk := func(name string) HandlerFunc {
		return func(context.Context, *Env, string) error {
			hit = name
			return nil
		}
	}
	table := Table{
		{Name: "first", Kind: Prefix, Pattern: "!a", Handler: mk("first")},
		{Name: "second", Kind: Exact, Pattern: "!ab", Handler: mk("second")},
	}
	d := newDispatcher(&fakeAPI{}, Options{Table: table})
	if err := d.Dispatch(context.Background(), message("!ab")); err != nil {
		t.Fatal(err)
	}
	if hit != "first" {
		t.Errorf("handler = %q, want first", hit)
	}
}

// ///////////////////////////////////////////////
// Dispatch
// ///////////////////////////////////////////////

func TestDispatchUnknownIsSilent(t *testing.T) {
	api := &fakeAPI{}
	d := newDispatcher(api, Options{})
	if err := d.Dispatch(context.Background(), message("!unknown")); err != nil {
		t.Fatalf("Dispatch = %v, want nil", err)
	}
	if ops := api.ops(); len(ops) != 0 {
		t.Errorf("calls = %v, want none", ops)
	}
}

func TestDispatchIgnoredAuthor(t *testing.T) {
	api := &fakeAPI{}
	d := newDispatcher(api, Options{IgnoreAuthors: []string{"some*"}})
	if err := d.Dispatch(context.Background(), message("!ping")); err != nil {
		t.Fatal(err)
	}
	if ops := api.ops(); len(ops) != 0 {
		t.Errorf("calls = %v, want none for ignored author", ops)
	}
}

func TestDispatchWrapsHandlerError(t *testing.T) {
	api := &fakeAPI{sendErr: errors.New("rate limited")}
	d := newDispatcher(api, Options{})
	err := d.Dispatch(context.Background(), message("!ping"))
	var se *chat.SendError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *chat.SendError", err)
	}
	if !strings.HasPrefix(err.Error(), "!ping: ") {
		t.Errorf("err = %q, want command name prefix", err)
	}
}

// ///////////////////////////////////////////////
// Handlers
// ///////////////////////////////////////////////

func TestPingReportsUptime(t *testing.T) {
	api := &fakeAPI{}
	d := newDispatcher(api, Options{})
	if err := d.Dispatch(context.Background(), message("!ping")); err != nil {
		t.Fatal(err)
	}
	want := "Pong! Uptime: 1 hour, 1 minute, 1 second"
	if got := api.lastSend(t); got != want {
		t.Errorf("reply = %q, want %q", got, want)
	}
}

func TestCannedReply(t *testing.T) {
	api := &fakeAPI{}
	d := newDispatcher(api, Options{CannedReply: "better luck next time"})
	if err := d.Dispatch(context.Background(), message("!XLOST")); err != nil {
		t.Fatal(err)
	}
	if got := api.lastSend(t); got != "better luck next time" {
		t.Errorf("reply = %q", got)
	}
}

func TestServerEmptyIDRepliesUsage(t *testing.T) {
	api := &fakeAPI{}
	d := newDispatcher(api, Options{})
	if err := d.Dispatch(context.Background(), message("!server ")); err != nil {
		t.Fatal(err)
	}
	ops := api.ops()
	if len(ops) != 1 || ops[0] != "send" {
		t.Fatalf("calls = %v, want a single send", ops)
	}
	if got := api.lastSend(t); got != serverUsageReply {
		t.Errorf("reply = %q, want usage", got)
	}
}

func TestServerLookupFailureIsReported(t *testing.T) {
	api := &fakeAPI{fetchErr: &chat.NotFoundError{Resource: "server", ID: "abc"}}
	d := newDispatcher(api, Options{})
	if err := d.Dispatch(context.Background(), message("!server abc")); err != nil {
		t.Fatalf("Dispatch = %v, want nil", err)
	}
	if got := api.lastSend(t); got != serverFailureReply {
		t.Errorf("reply = %q, want failure reply", got)
	}
}

func TestServerReply(t *testing.T) {
	api := &fakeAPI{server: chat.Server{
		ID:                "175928847299117063",
		Name:              "Gophers",
		OwnerID:           "80351110224678912",
		MemberCount:       12345,
		PresenceCount:     678,
		BoostTier:         2,
		ChannelCount:      14,
		RoleCount:         9,
		NSFWLevel:         0,
		VerificationLevel: 4,
	}}
	d := newDispatcher(api, Options{})
	if err := d.Dispatch(context.Background(), message("!server 175928847299117063")); err != nil {
		t.Fatal(err)
	}
	got := api.lastSend(t)
	for _, want := range []string{
		"Server name: Gophers",
		"Owner ID: 80351110224678912",
		"Members: 12,345",
		"Online members: 678",
		"Created: 2016-04-30T11:18:25.796Z",
		"Icon URL: none",
		"Boost tier: 2",
		"Verification level: very high",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("reply missing %q:\n%s", want, got)
		}
	}
}

func TestUserReply(t *testing.T) {
	api := &fakeAPI{user: chat.User{
		ID:        "80351110224678912",
		Username:  "nelly",
		AvatarURL: "https://cdn.example/avatars/80351110224678912/abc.png",
	}}
	d := newDispatcher(api, Options{})
	if err := d.Dispatch(context.Background(), message("!user 80351110224678912")); err != nil {
		t.Fatal(err)
	}
	want := "Username: nelly\n" +
		"User ID: 80351110224678912\n" +
		"Avatar URL: https://cdn.example/avatars/80351110224678912/abc.png\n" +
		"Banner URL: none"
	if got := api.lastSend(t); got != want {
		t.Errorf("reply =\n%s\nwant\n%s", got, want)
	}
}

func TestUserLookupFailurePropagates(t *testing.T) {
	api := &fakeAPI{fetchErr: &chat.NotFoundError{Resource: "user", ID: "1"}}
	d := newDispatcher(api, Options{})
	err := d.Dispatch(context.Background(), message("!user 1"))
	if !chat.IsNotFound(err) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestSayRelaysVerbatim(t *testing.T) {
	api := &fakeAPI{}
	d := newDispatcher(api, Options{})
	if err := d.Dispatch(context.Background(), message("!say hello world")); err != nil {
		t.Fatal(err)
	}
	if got := api.lastSend(t); got != "hello world" {
		t.Errorf("reply = %q, want %q", got, "hello world")
	}
}

func TestSayEmpty(t *testing.T) {
	api := &fakeAPI{}
	d := newDispatcher(api, Options{})
	err := d.Dispatch(context.Background(), message("!say"))
	if !errors.Is(err, ErrUsage) {
		t.Errorf("err = %v, want ErrUsage", err)
	}
	if ops := api.ops(); len(ops) != 0 {
		t.Errorf("calls = %v, want none", ops)
	}
}

func TestHelpListsEveryCommand(t *testing.T) {
	api := &fakeAPI{}
	d := newDispatcher(api, Options{})
	if err := d.Dispatch(context.Background(), message("!help")); err != nil {
		t.Fatal(err)
	}
	got := api.lastSend(t)
	last := -1
	for _, e := range DefaultTable() {
		i := strings.Index(got, e.Usage)
		if i < 0 {
			t.Errorf("help missing %q", e.Usage)
			continue
		}
		if i < last {
			t.Errorf("help lists %q out of table order", e.Usage)
		}
		last = i
	}
}

func TestEdit(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		editErr   error
		wantErr   error
		wantID    string
		wantText  string
		wantCalls int
	}{
		{name: "ok", text: "!edit 555 new text here", wantID: "555", wantText: "new text here", wantCalls: 1},
		{name: "missing text", text: "!edit 555", wantErr: ErrUsage},
		{name: "missing id", text: "!edit", wantErr: ErrUsage},
		{name: "foreign", text: "!edit 555 x", editErr: chat.ErrForeignMessage, wantErr: chat.ErrForeignMessage, wantCalls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{editErr: tt.editErr}
			d := newDispatcher(api, Options{})
			err := d.Dispatch(context.Background(), message(tt.text))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatal(err)
			}
			if len(api.calls) != tt.wantCalls {
				t.Fatalf("calls = %v, want %d", api.ops(), tt.wantCalls)
			}
			if tt.wantCalls == 0 || tt.wantErr != nil {
				return
			}
			c := api.calls[0]
			if c.op != "edit" || c.messageID != tt.wantID || c.content != tt.wantText || c.channelID != "chan" {
				t.Errorf("call = %+v", c)
			}
		})
	}
}

func TestEditErrorKind(t *testing.T) {
	api := &fakeAPI{editErr: errors.New("boom")}
	d := newDispatcher(api, Options{})
	err := d.Dispatch(context.Background(), message("!edit 1 x"))
	var ee *chat.EditError
	if !errors.As(err, &ee) || ee.MessageID != "1" {
		t.Errorf("err = %v, want *chat.EditError for message 1", err)
	}
}

// ///////////////////////////////////////////////
// Formatting
// ///////////////////////////////////////////////

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0 hours, 0 minutes, 0 seconds"},
		{3661 * time.Second, "1 hour, 1 minute, 1 second"},
		{2*time.Hour + 30*time.Minute + 1500*time.Millisecond, "2 hours, 30 minutes, 1 second"},
		{50 * time.Hour, "50 hours, 0 minutes, 0 seconds"},
		{-time.Second, "0 hours, 0 minutes, 0 seconds"},
	}
	for _, tt := range tests {
		if got := FormatUptime(tt.d); got != tt.want {
			t.Errorf("FormatUptime(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFormatServerBadID(t *testing.T) {
	got := FormatServer(chat.Server{ID: "not-a-number", Name: "x", NSFWLevel: 9}, started)
	if !strings.Contains(got, "Created: none") {
		t.Errorf("want placeholder creation time, got:\n%s", got)
	}
	if !strings.Contains(got, "NSFW level: 9") {
		t.Errorf("want numeric fallback for unknown level, got:\n%s", got)
	}
}
