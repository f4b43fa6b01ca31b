// Package discord connects the bot to the Discord gateway, restricts it to
// one configured channel, and dispatches prefixed chat commands.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"github.com/Thurler/guiltbot/announce"
	"github.com/Thurler/guiltbot/telemetry"
)

// Command handles one chat command. Replies go through the bot's send
// helpers; args carries everything after the command name.
type Command func(ctx context.Context, b *Bot, args []string)

// Bot wraps a discordgo session bound to a single announcement channel.
type Bot struct {
	session   *discordgo.Session
	channelID string
	prefix    string
	activity  string
	commands  map[string]Command
}

// New creates a Bot for the given bot token. The session is not opened until
// Start is called.
func New(token, channelID, prefix, activity string) (*Bot, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentMessageContent
	return &Bot{
		session:   s,
		channelID: channelID,
		prefix:    prefix,
		activity:  activity,
		commands:  map[string]Command{},
	}, nil
}

// Register adds a command to the dispatch table. Names are matched lowercase.
func (b *Bot) Register(name string, cmd Command) {
	b.commands[strings.ToLower(name)] = cmd
}

// Start opens the gateway connection and installs handlers. It closes the
// session when ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		slog.Info("discord connected", slog.String("user", r.User.Username))
		if b.activity != "" {
			if err := s.UpdateGameStatus(0, b.activity); err != nil {
				slog.Warn("failed to set activity status", slog.Any("err", err))
			}
		}
	})
	b.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		b.handleMessage(ctx, m)
	})
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	go func() {
		<-ctx.Done()
		if err := b.session.Close(); err != nil {
			slog.Warn("discord session close failed", slog.Any("err", err))
		}
	}()
	return nil
}

func (b *Bot) handleMessage(ctx context.Context, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if m.ChannelID != b.channelID {
		return
	}
	name, args, ok := ParseCommand(m.Content, b.prefix)
	if !ok {
		return
	}
	cmd, ok := b.commands[name]
	if !ok {
		return
	}
	telemetry.CommandsHandled.Inc()
	corr := uuid.New().String()
	cctx := telemetry.WithCorrelation(ctx, corr)
	telemetry.LoggerWithCorr(cctx).Info("command received", slog.String("command", name))
	cmd(cctx, b, args)
}

// ParseCommand splits a chat message into command name and args. ok is false
// when the message doesn't start with the prefix or names no command at all.
func ParseCommand(content, prefix string) (name string, args []string, ok bool) {
	if !strings.HasPrefix(content, prefix) {
		return "", nil, false
	}
	fields := strings.Fields(strings.TrimPrefix(content, prefix))
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

// SendText posts a plain text message to the announcement channel.
func (b *Bot) SendText(text string) error {
	_, err := b.session.ChannelMessageSend(b.channelID, text)
	return err
}

// SendAnnouncement posts a formatted announcement with its embed. Implements
// announce.Sender.
func (b *Bot) SendAnnouncement(msg announce.Message) error {
	_, err := b.session.ChannelMessageSendComplex(b.channelID, &discordgo.MessageSend{
		Content: msg.Content,
		Embed:   toEmbed(msg.Embed),
	})
	return err
}

func toEmbed(e announce.Embed) *discordgo.MessageEmbed {
	out := &discordgo.MessageEmbed{
		Title:     e.Title,
		URL:       e.URL,
		Color:     e.Color,
		Timestamp: e.Timestamp.Format(time.RFC3339),
		Author: &discordgo.MessageEmbedAuthor{
			Name:    e.AuthorName,
			URL:     e.AuthorURL,
			IconURL: e.AuthorIcon,
		},
	}
	if e.ThumbnailURL != "" {
		out.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: e.ThumbnailURL}
	}
	return out
}
