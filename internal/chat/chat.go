// Package chat defines the records exchanged with the remote chat platform
// and the error kinds its operations may fail with.
//
// The types here are transport-neutral: internal/discord converts the
// platform's wire shapes into them, and the core packages (session, poller,
// command) consume only these.
package chat

// ///////////////////////////////////////////////
// Presence Status
// ///////////////////////////////////////////////

// Status is a presence status understood by the remote platform.
type Status string

const (
	StatusOnline    Status = "online"
	StatusIdle      Status = "idle"
	StatusDND       Status = "dnd"
	StatusInvisible Status = "invisible"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusIdle, StatusDND, StatusInvisible:
		return true
	}
	return false
}

// ///////////////////////////////////////////////
// Records
// ///////////////////////////////////////////////

// Identity is the result of a successful authentication.
type Identity struct {
	// Token is the credential presented on every request.
	Token string
	// UserID is the snowflake of the authenticated account.
	UserID string
	// Username is the display handle of the authenticated account.
	Username string
}

// Author identifies who wrote a message.
type Author struct {
	ID       string
	Username string
	Bot      bool
}

// Message is a single channel message.
type Message struct {
	ID        string
	ChannelID string
	Content   string
	Author    Author
}

// Server is a guild record as returned by a server lookup. URL fields are
// empty when the server has no such asset.
type Server struct {
	ID                string
	Name              string
	OwnerID           string
	IconURL           string
	MemberCount       int
	PresenceCount     int
	BoostTier         int
	ChannelCount      int
	RoleCount         int
	NSFWLevel         int
	VerificationLevel int
}

// User is a user record as returned by a user lookup. URL fields are empty
// when the user has no such asset.
type User struct {
	ID            string
	Username      string
	Discriminator string
	AvatarURL     string
	BannerURL     string
}

// Tag returns the "username#discriminator" form of the user's handle. Users
// migrated to unique usernames carry discriminator "0", in which case only
// the username is returned.
func (u User) Tag() string {
	if u.Discriminator == "" || u.Discriminator == "0" {
		return u.Username
	}
	return u.Username + "#" + u.Discriminator
}
