package discord

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/bwmarrin/discordgo"
	"tools.zach/dev/watchbot/internal/chat"
)

// imageSize is the CDN size requested for avatars, banners, and icons.
const imageSize = "1024"

// codeForeignEdit is Discord's JSON error code for editing a message
// authored by another user.
const codeForeignEdit = 50005

// ///////////////////////////////////////////////
// Record Conversion
// ///////////////////////////////////////////////

func toMessage(m *discordgo.Message) chat.Message {
	msg := chat.Message{ID: m.ID, ChannelID: m.ChannelID, Content: m.Content}
	if m.Author != nil {
		msg.Author = chat.Author{ID: m.Author.ID, Username: m.Author.Username, Bot: m.Author.Bot}
	}
	return msg
}

func toServer(g *discordgo.Guild) chat.Server {
	members := g.ApproximateMemberCount
	if members == 0 {
		members = g.MemberCount
	}
	return chat.Server{
		ID:                g.ID,
		Name:              g.Name,
		OwnerID:           g.OwnerID,
		IconURL:           g.IconURL(imageSize),
		MemberCount:       members,
		PresenceCount:     g.ApproximatePresenceCount,
		BoostTier:         int(g.PremiumTier),
		ChannelCount:      len(g.Channels),
		RoleCount:         len(g.Roles),
		NSFWLevel:         int(g.NSFWLevel),
		VerificationLevel: int(g.VerificationLevel),
	}
}

// toUser converts u. Accounts without a custom avatar get no avatar URL,
// not the platform's generated default.
func toUser(u *discordgo.User) chat.User {
	out := chat.User{ID: u.ID, Username: u.Username, Discriminator: u.Discriminator}
	if u.Avatar != "" {
		out.AvatarURL = u.AvatarURL(imageSize)
	}
	if u.Banner != "" {
		out.BannerURL = u.BannerURL(imageSize)
	}
	return out
}

// ///////////////////////////////////////////////
// Error Classification
// ///////////////////////////////////////////////

// classify maps platform errors onto chat error kinds. A 404 becomes a
// [chat.NotFoundError] for resource id; anything else is returned as is.
func classify(err error, resource, id string) error {
	if isStatus(err, http.StatusNotFound) {
		return &chat.NotFoundError{Resource: resource, ID: id}
	}
	return err
}

// isStatus reports whether err is a REST error with the given HTTP status.
func isStatus(err error, status int) bool {
	var re *discordgo.RESTError
	return errors.As(err, &re) && re.Response != nil && re.Response.StatusCode == status
}

// isForeignEdit reports whether err rejects an edit of someone else's
// message.
func isForeignEdit(err error) bool {
	var re *discordgo.RESTError
	if !errors.As(err, &re) {
		return false
	}
	if re.Message != nil && re.Message.Code == codeForeignEdit {
		return true
	}
	return re.Response != nil && re.Response.StatusCode == http.StatusForbidden
}

// ///////////////////////////////////////////////
// Library Logging
// ///////////////////////////////////////////////

var routeLogsOnce sync.Once

// routeLibraryLogs sends discordgo's internal log output through slog.
func routeLibraryLogs() {
	routeLogsOnce.Do(func() {
		discordgo.Logger = func(level, _ int, format string, a ...any) {
			msg := fmt.Sprintf(format, a...)
			switch level {
			case discordgo.LogError:
				slog.Error(msg, "source", "discordgo")
			case discordgo.LogWarning:
				slog.Warn(msg, "source", "discordgo")
			case discordgo.LogInformational:
				slog.Info(msg, "source", "discordgo")
			default:
				slog.Debug(msg, "source", "discordgo")
			}
		}
	})
}
