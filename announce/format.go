package announce

import (
	"context"
	"log/slog"
	"time"
)

const (
	embedColor    = 696969
	twitchIconURL = "https://assets.help.twitch.tv/Glitch_Purple_RGB.png"
)

// Message is a platform-neutral announcement: a short text line plus a rich
// embed. The discord package converts it to the wire format.
type Message struct {
	Content string
	Embed   Embed
}

// Embed mirrors the subset of a chat embed the bot uses.
type Embed struct {
	Title        string
	URL          string
	Color        int
	Timestamp    time.Time
	AuthorName   string
	AuthorURL    string
	AuthorIcon   string
	ThumbnailURL string
}

// FormatStream builds the display message for one announcement. Pure: all
// lookups happen before this is called. An empty avatarURL simply omits the
// thumbnail.
func FormatStream(a Announcement, avatarURL string, now time.Time) Message {
	channelURL := "https://twitch.tv/" + a.Stream.UserLogin
	m := Message{
		Content: a.Stream.UserName + " is streaming " + a.GameName + "!",
		Embed: Embed{
			Title:      a.Stream.Title,
			URL:        channelURL,
			Color:      embedColor,
			Timestamp:  now,
			AuthorName: a.Stream.UserName,
			AuthorURL:  channelURL,
			AuthorIcon: twitchIconURL,
		},
	}
	if avatarURL != "" {
		m.Embed.ThumbnailURL = avatarURL
	}
	return m
}

// BuildMessages formats each announcement, fetching avatars best-effort: a
// failed lookup yields a message without a thumbnail, never an error.
func (p *Pipeline) BuildMessages(ctx context.Context, anns []Announcement) []Message {
	now := p.now()
	msgs := make([]Message, 0, len(anns))
	for _, a := range anns {
		avatar, err := p.API.GetUserAvatar(ctx, a.Stream.UserID)
		if err != nil {
			slog.Warn("avatar lookup failed, omitting thumbnail",
				slog.String("broadcaster", a.Stream.UserName), slog.Any("err", err))
			avatar = ""
		}
		msgs = append(msgs, FormatStream(a, avatar, now))
	}
	return msgs
}
