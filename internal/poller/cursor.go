package poller

import "strings"

// ///////////////////////////////////////////////
// Cursor
// ///////////////////////////////////////////////

// Cursor records the newest message identifier the poller has handed out.
// It only ever moves forward.
type Cursor struct {
	last string
}

// Last returns the last seen message ID, or "" when nothing was seen yet.
func (c *Cursor) Last() string { return c.last }

// Seen reports whether id is at or behind the cursor.
func (c *Cursor) Seen(id string) bool {
	return c.last != "" && !snowflakeLess(c.last, id)
}

// Advance moves the cursor to id if id is newer. It reports whether the
// cursor moved.
func (c *Cursor) Advance(id string) bool {
	if id == "" || c.Seen(id) {
		return false
	}
	c.last = id
	return true
}

// snowflakeLess orders decimal snowflake IDs numerically without parsing, so
// IDs wider than 64 bits still compare correctly.
func snowflakeLess(a, b string) bool {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}
