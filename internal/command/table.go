// Package command maps channel messages to actions.
//
// Message text is normalized with [Normalize], then matched against an
// ordered [Table] of exact and prefix matchers. The first entry that matches
// wins; the table's declared order is the priority contract. Text that
// matches nothing is ignored without a reply.
package command

import (
	"context"
	"strings"
)

// ///////////////////////////////////////////////
// Matchers
// ///////////////////////////////////////////////

// Kind selects how an [Entry] pattern is compared with message text.
type Kind int

const (
	// Exact matches when the text equals the pattern.
	Exact Kind = iota
	// Prefix matches when the text starts with the pattern; the remainder
	// becomes the command arguments.
	Prefix
)

// HandlerFunc runs a matched command with its raw argument string.
type HandlerFunc func(ctx context.Context, env *Env, args string) error

// Entry is one row of the command table.
type Entry struct {
	// Name is the command word, e.g. "!ping".
	Name    string
	Kind    Kind
	Pattern string
	Handler HandlerFunc
	// Usage and Description feed the help reply.
	Usage       string
	Description string
}

// Match reports whether text selects this entry and returns the argument
// remainder for prefix entries.
func (e Entry) Match(text string) (args string, ok bool) {
	switch e.Kind {
	case Exact:
		return "", text == e.Pattern
	case Prefix:
		if rest, found := strings.CutPrefix(text, e.Pattern); found {
			return rest, true
		}
		// Normalized text has lost its trailing space, so the bare command
		// word selects the entry with empty arguments.
		if text == strings.TrimRight(e.Pattern, " ") {
			return "", true
		}
	}
	return "", false
}

// Command is a matched invocation.
type Command struct {
	Name string
	Args string
}

// ///////////////////////////////////////////////
// Table
// ///////////////////////////////////////////////

// Table is an ordered list of entries; earlier entries take priority.
type Table []Entry

// Lookup returns the first entry matching text.
func (t Table) Lookup(text string) (Entry, Command, bool) {
	for _, e := range t {
		if args, ok := e.Match(text); ok {
			return e, Command{Name: e.Name, Args: args}, true
		}
	}
	return Entry{}, Command{}, false
}

// Normalize trims surrounding whitespace and folds text to lower case.
// Arguments are folded too, so "!say Hello" relays "hello".
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// DefaultTable returns the built-in commands in priority order.
func DefaultTable() Table {
	return Table{
		{Name: "!ping", Kind: Exact, Pattern: "!ping", Handler: handlePing,
			Usage: "!ping", Description: "Reply with the agent's uptime."},
		{Name: "!xlost", Kind: Exact, Pattern: "!xlost", Handler: handleCanned,
			Usage: "!xlost", Description: "Send the canned message."},
		{Name: "!server", Kind: Prefix, Pattern: "!server ", Handler: handleServer,
			Usage: "!server <server id>", Description: "Show information about a server."},
		{Name: "!user", Kind: Prefix, Pattern: "!user ", Handler: handleUser,
			Usage: "!user <user id>", Description: "Show information about a user, banner included."},
		{Name: "!say", Kind: Prefix, Pattern: "!say ", Handler: handleSay,
			Usage: "!say <message>", Description: "Post a message to this channel."},
		{Name: "!help", Kind: Exact, Pattern: "!help", Handler: handleHelp,
			Usage: "!help", Description: "List the available commands."},
		{Name: "!edit", Kind: Prefix, Pattern: "!edit ", Handler: handleEdit,
			Usage: "!edit <message id> <new text>", Description: "Edit a message. Only messages sent by this account."},
	}
}
