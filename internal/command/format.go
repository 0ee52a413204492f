package command

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/dustin/go-humanize"
	"tools.zach/dev/watchbot/internal/chat"
)

// placeholder stands in for absent optional values.
const placeholder = "none"

// ///////////////////////////////////////////////
// Uptime
// ///////////////////////////////////////////////

// FormatUptime renders d as "H hours, M minutes, S seconds", truncating to
// whole seconds. Hours are not rolled over into days.
func FormatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return plural(h, "hour") + ", " + plural(m, "minute") + ", " + plural(s, "second")
}

// plural formats n with unit, adding "s" unless n is 1.
func plural(n int64, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.FormatInt(n, 10) + " " + unit + "s"
}

// ///////////////////////////////////////////////
// Server and User Replies
// ///////////////////////////////////////////////

var nsfwLevels = []string{"default", "explicit", "safe", "age restricted"}

var verificationLevels = []string{"none", "low", "medium", "high", "very high"}

// levelName returns names[n], or the number itself when out of range.
func levelName(names []string, n int) string {
	if n >= 0 && n < len(names) {
		return names[n]
	}
	return strconv.Itoa(n)
}

// orPlaceholder returns s, or [placeholder] when s is empty.
func orPlaceholder(s string) string {
	if s == "" {
		return placeholder
	}
	return s
}

// FormatServer renders a server record. The creation time is read from the
// timestamp embedded in the server's snowflake ID.
func FormatServer(s chat.Server, now time.Time) string {
	created := placeholder
	if ts, err := discordgo.SnowflakeTimestamp(s.ID); err == nil {
		created = fmt.Sprintf("%s (%s)",
			ts.UTC().Format("2006-01-02T15:04:05.000Z"),
			humanize.RelTime(ts, now, "ago", "from now"),
		)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Server name: %s\n", s.Name)
	fmt.Fprintf(&b, "Server ID: %s\n", s.ID)
	fmt.Fprintf(&b, "Owner ID: %s\n", orPlaceholder(s.OwnerID))
	fmt.Fprintf(&b, "Members: %s\n", humanize.Comma(int64(s.MemberCount)))
	fmt.Fprintf(&b, "Online members: %s\n", humanize.Comma(int64(s.PresenceCount)))
	fmt.Fprintf(&b, "Created: %s\n", created)
	fmt.Fprintf(&b, "Icon URL: %s\n", orPlaceholder(s.IconURL))
	fmt.Fprintf(&b, "Boost tier: %d\n", s.BoostTier)
	fmt.Fprintf(&b, "Channels: %d\n", s.ChannelCount)
	fmt.Fprintf(&b, "Roles: %d\n", s.RoleCount)
	fmt.Fprintf(&b, "NSFW level: %s\n", levelName(nsfwLevels, s.NSFWLevel))
	fmt.Fprintf(&b, "Verification level: %s", levelName(verificationLevels, s.VerificationLevel))
	return b.String()
}

// FormatUser renders a user record.
func FormatUser(u chat.User) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Username: %s\n", u.Tag())
	fmt.Fprintf(&b, "User ID: %s\n", u.ID)
	fmt.Fprintf(&b, "Avatar URL: %s\n", orPlaceholder(u.AvatarURL))
	fmt.Fprintf(&b, "Banner URL: %s", orPlaceholder(u.BannerURL))
	return b.String()
}

// FormatHelp lists every entry of t in table order.
func FormatHelp(t Table) string {
	var b strings.Builder
	b.WriteString("Available commands:")
	for _, e := range t {
		fmt.Fprintf(&b, "\n%s: %s", e.Usage, e.Description)
	}
	return b.String()
}
