// Package logger writes watchbot's activity log: one line per event in a
// rotating file under the data directory, optionally mirrored to stderr.
// `watchbot logs` reads it back with [ReadTail].
//
// Each record is a single line:
//
//	2006-01-02T15:04:05.000Z [LEVEL] message | key=value, key2=value2
//
// Chat text ends up in messages and attributes, so line breaks inside them
// are escaped to keep one record per line.
//
// Levels beyond the standard slog set:
//   - LevelTrace (-8): per-cycle poll detail
//   - LevelFail  (12): errors that stop the agent
package logger

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ///////////////////////////////////////////////
// Levels
// ///////////////////////////////////////////////

const (
	LevelTrace slog.Level = -8
	LevelDebug slog.Level = slog.LevelDebug
	LevelInfo  slog.Level = slog.LevelInfo
	LevelWarn  slog.Level = slog.LevelWarn
	LevelError slog.Level = slog.LevelError
	LevelFail  slog.Level = 12
)

var levelNames = []struct {
	max  slog.Level
	name string
}{
	{LevelTrace, "TRACE"},
	{LevelDebug, "DEBUG"},
	{LevelInfo, "INFO"},
	{LevelWarn, "WARN"},
	{LevelError, "ERROR"},
}

// levelName returns the display name for l. Levels between two named ones
// take the name of the higher.
func levelName(l slog.Level) string {
	for _, n := range levelNames {
		if l <= n.max {
			return n.name
		}
	}
	return "FAIL"
}

// ParseLevel maps a log.level config value to a level, ignoring case.
// Unknown names give LevelInfo.
func ParseLevel(s string) slog.Level {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "FAIL" {
		return LevelFail
	}
	for _, n := range levelNames {
		if n.name == s {
			return n.max
		}
	}
	return LevelInfo
}

// ///////////////////////////////////////////////
// Handler
// ///////////////////////////////////////////////

const timeFormat = "2006-01-02T15:04:05.000Z"

var lineEnding = "\n"

func init() {
	if runtime.GOOS == "windows" {
		lineEnding = "\r\n"
	}
}

var breakEscaper = strings.NewReplacer("\r", `\r`, "\n", `\n`)

// Handler is a slog.Handler producing the single-line format above.
// Handlers derived through WithAttrs and WithGroup share the writer lock.
type Handler struct {
	w  io.Writer
	mu *sync.Mutex
	// level is read on every record, so a *slog.LevelVar takes effect
	// immediately.
	level slog.Leveler
	attrs []slog.Attr
	// group prefixes every key, dot-separated.
	group string
}

// NewHandler creates a Handler that writes to w. A nil level means
// LevelInfo.
func NewHandler(w io.Writer, level slog.Leveler) *Handler {
	if level == nil {
		level = LevelInfo
	}
	return &Handler{w: w, mu: &sync.Mutex{}, level: level}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Time.UTC().Format(timeFormat))
	b.WriteString(" [")
	b.WriteString(levelName(r.Level))
	b.WriteString("] ")
	b.WriteString(breakEscaper.Replace(r.Message))

	n := 0
	emit := func(a slog.Attr) bool {
		n = h.appendAttr(&b, h.group, a, n)
		return true
	}
	for _, a := range h.attrs {
		emit(a)
	}
	r.Attrs(emit)
	b.WriteString(lineEnding)

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

// appendAttr writes a under prefix and returns the number of attributes
// written so far. Group values are flattened into dotted keys.
func (h *Handler) appendAttr(b *strings.Builder, prefix string, a slog.Attr, n int) int {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return n
	}
	key := a.Key
	if prefix != "" && key != "" {
		key = prefix + "." + key
	} else if key == "" {
		key = prefix
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			n = h.appendAttr(b, key, ga, n)
		}
		return n
	}

	if n == 0 {
		b.WriteString(" | ")
	} else {
		b.WriteString(", ")
	}
	b.WriteString(key)
	b.WriteByte('=')
	b.WriteString(breakEscaper.Replace(a.Value.String()))
	return n + 1
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	c := *h
	c.attrs = append(append(make([]slog.Attr, 0, len(h.attrs)+len(attrs)), h.attrs...), attrs...)
	return &c
}

// WithGroup nests later keys under name, e.g. "poll.cursor".
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	if c.group != "" {
		c.group += "."
	}
	c.group += name
	return &c
}

// ///////////////////////////////////////////////
// Logger
// ///////////////////////////////////////////////

// Options configures [NewLogger].
type Options struct {
	// Path is the log file, rotated once it exceeds MaxSizeMB.
	Path string
	// Level is the minimum level written. Pass a *slog.LevelVar to follow
	// log.level reloads.
	Level     slog.Leveler
	MaxSizeMB int
	// Console mirrors every line to Stderr, which defaults to os.Stderr.
	Console bool
	Stderr  io.Writer
}

// NewLogger opens the rotating activity log. Close the returned io.Closer on
// exit.
func NewLogger(opts Options) (*slog.Logger, io.Closer, error) {
	if opts.Path == "" {
		return nil, nil, errors.New("log path is empty")
	}
	file := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: 3,
		MaxAge:     28,
	}

	var w io.Writer = file
	if opts.Console {
		stderr := opts.Stderr
		if stderr == nil {
			stderr = os.Stderr
		}
		w = io.MultiWriter(file, stderr)
	}
	return slog.New(NewHandler(w, opts.Level)), file, nil
}

// ///////////////////////////////////////////////
// ReadTail
// ///////////////////////////////////////////////

// maxLineSize bounds a single log line read back by ReadTail.
const maxLineSize = 1 << 20

// ReadTail returns the last n lines of the file at path, oldest first. A
// non-positive n returns "".
func ReadTail(path string, n int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if n <= 0 {
		return "", nil
	}

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	tail := make([]string, 0, n)
	for sc.Scan() {
		if len(tail) == n {
			copy(tail, tail[1:])
			tail = tail[:n-1]
		}
		tail = append(tail, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return strings.Join(tail, "\n"), nil
}
