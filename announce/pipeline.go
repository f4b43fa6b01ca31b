// Package announce implements the stream announcement pipeline: querying
// Helix for live streams, filtering them down to announceable ones, and
// building the Discord messages for them.
package announce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Thurler/guiltbot/ledger"
	"github.com/Thurler/guiltbot/telemetry"
	"github.com/Thurler/guiltbot/twitchapi"
)

// StreamAPI is the slice of the Helix client the pipeline needs.
type StreamAPI interface {
	GetStreams(ctx context.Context, gameIDs []string) ([]twitchapi.Stream, error)
	GetChannelTags(ctx context.Context, broadcasterID string) ([]string, error)
	GetUserAvatar(ctx context.Context, userID string) (string, error)
}

// TokenInvalidator forces the next Helix call to use a fresh app token.
type TokenInvalidator interface {
	Invalidate()
}

// Game pairs a Twitch game id with the display name used in announcements.
type Game struct {
	ID   string
	Name string
}

// Announcement is one stream that passed all filters, ready for formatting.
type Announcement struct {
	Stream   twitchapi.Stream
	GameName string
}

// Pipeline filters live streams down to announceable ones. Runs are
// serialized by an in-process lock so overlapping timer and command
// invocations cannot race on the ledger.
type Pipeline struct {
	API     StreamAPI
	Tokens  TokenInvalidator
	Ledger  *ledger.Ledger
	Games   []Game
	Blocked []string
	// RequiredTag must be present on the broadcaster's channel for the
	// stream to qualify. Matched case-insensitively against Helix tags.
	RequiredTag string

	mu  sync.Mutex
	now func() time.Time
}

// NewPipeline wires a pipeline with the real clock.
func NewPipeline(api StreamAPI, tokens TokenInvalidator, led *ledger.Ledger, games []Game, blocked []string, requiredTag string) *Pipeline {
	return &Pipeline{
		API:         api,
		Tokens:      tokens,
		Ledger:      led,
		Games:       games,
		Blocked:     blocked,
		RequiredTag: requiredTag,
		now:         time.Now,
	}
}

// GameName resolves a game id to its configured display name.
func (p *Pipeline) GameName(gameID string) string {
	for _, g := range p.Games {
		if g.ID == gameID {
			return g.Name
		}
	}
	return ""
}

func (p *Pipeline) gameIDs() []string {
	ids := make([]string, 0, len(p.Games))
	for _, g := range p.Games {
		ids = append(ids, g.ID)
	}
	return ids
}

// fetchStreams queries Helix, refreshing the app token and retrying exactly
// once on an auth failure. A second consecutive auth failure is surfaced.
func (p *Pipeline) fetchStreams(ctx context.Context) ([]twitchapi.Stream, error) {
	streams, err := p.API.GetStreams(ctx, p.gameIDs())
	if errors.Is(err, twitchapi.ErrUnauthorized) {
		slog.Info("helix rejected app token, refreshing and retrying once")
		p.Tokens.Invalidate()
		telemetry.TokenRefreshes.Inc()
		streams, err = p.API.GetStreams(ctx, p.gameIDs())
	}
	if err != nil {
		return nil, fmt.Errorf("list streams: %w", err)
	}
	return streams, nil
}

func (p *Pipeline) hasRequiredTag(ctx context.Context, s twitchapi.Stream) bool {
	tags, err := p.API.GetChannelTags(ctx, s.UserID)
	if err != nil {
		// Exclusion, not abort: a failed tag lookup only drops this stream.
		telemetry.TagLookupFailures.Inc()
		slog.Warn("tag lookup failed, excluding stream",
			slog.String("broadcaster", s.UserName), slog.Any("err", err))
		return false
	}
	for _, t := range tags {
		if strings.EqualFold(t, p.RequiredTag) {
			return true
		}
	}
	return false
}

// Run executes the full filter pipeline and returns the announceable streams
// in their original order. When force is true the ledger is neither consulted
// nor mutated, so a manual listing never affects future automatic dedup. An
// error means no result could be computed, distinct from an empty result.
func (p *Pipeline) Run(ctx context.Context, force bool) ([]Announcement, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	streams, err := p.fetchStreams(ctx)
	if err != nil {
		return nil, err
	}
	now := p.now()

	var out []Announcement
	for _, s := range streams {
		game := p.GameName(s.GameID)
		if game == "" {
			continue
		}
		if slices.ContainsFunc(p.Blocked, func(b string) bool {
			return strings.EqualFold(b, s.UserName) || strings.EqualFold(b, s.UserLogin)
		}) {
			continue
		}
		if !force {
			ok, err := p.Ledger.Eligible(ctx, s.UserID, s.ID, now)
			if err != nil {
				return nil, fmt.Errorf("ledger lookup for %s: %w", s.UserID, err)
			}
			if !ok {
				continue
			}
		}
		if p.RequiredTag != "" && !p.hasRequiredTag(ctx, s) {
			continue
		}
		if !force {
			// Record immediately so a stream appearing twice in one poll
			// is announced once.
			if err := p.Ledger.Record(ctx, s.UserID, s.ID, now); err != nil {
				return nil, fmt.Errorf("ledger record for %s: %w", s.UserID, err)
			}
		}
		out = append(out, Announcement{Stream: s, GameName: game})
	}
	return out, nil
}
