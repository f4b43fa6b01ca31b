// Package twitchapi contains minimal helpers to interact with Twitch Helix APIs
// for live-stream discovery, channel tag lookup, and user avatar resolution,
// using an app access token.
package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

// ErrUnauthorized is returned when Helix rejects the app token (HTTP 401).
// Callers may invalidate the token source and retry once.
var ErrUnauthorized = errors.New("twitch: unauthorized")

// Stream is one live stream as reported by GET /helix/streams.
type Stream struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	UserLogin string `json:"user_login"`
	UserName  string `json:"user_name"`
	GameID    string `json:"game_id"`
	Title     string `json:"title"`
	Tags      []string `json:"tags"`
}

// HelixClient provides the methods needed for stream announcement.
type HelixClient struct {
	AppTokenSource *TokenSource
	ClientID       string
	HTTPClient     *http.Client
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) do(ctx context.Context, path string, query map[string][]string) (*http.Response, error) {
	tok, err := hc.AppTokenSource.Get(ctx)
	if err != nil {
		return nil, err
	}
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.twitch.tv/helix"+path, nil)
	q := req.URL.Query()
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := hc.http().Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		closeBody(resp)
		return nil, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		closeBody(resp)
		return nil, fmt.Errorf("helix %s: unexpected status %s", path, resp.Status)
	}
	return resp, nil
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Warn("failed to close response body", slog.Any("err", err))
	}
}

// GetStreams lists currently live streams for the given game ids.
func (hc *HelixClient) GetStreams(ctx context.Context, gameIDs []string) ([]Stream, error) {
	if len(gameIDs) == 0 {
		return nil, fmt.Errorf("gameIDs empty")
	}
	resp, err := hc.do(ctx, "/streams", map[string][]string{"game_id": gameIDs, "first": {"100"}})
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)
	var body struct {
		Data []struct {
			ID        string   `json:"id"`
			UserID    string   `json:"user_id"`
			UserLogin string   `json:"user_login"`
			UserName  string   `json:"user_name"`
			GameID    string   `json:"game_id"`
			Title     string   `json:"title"`
			Tags      []string `json:"tags"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	out := make([]Stream, 0, len(body.Data))
	for _, s := range body.Data {
		out = append(out, Stream{ID: s.ID, UserID: s.UserID, UserLogin: s.UserLogin, UserName: s.UserName, GameID: s.GameID, Title: s.Title, Tags: s.Tags})
	}
	return out, nil
}

// GetChannelTags returns the current tags for a broadcaster's channel.
func (hc *HelixClient) GetChannelTags(ctx context.Context, broadcasterID string) ([]string, error) {
	if broadcasterID == "" {
		return nil, fmt.Errorf("broadcasterID empty")
	}
	resp, err := hc.do(ctx, "/channels", map[string][]string{"broadcaster_id": {broadcasterID}})
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)
	var body struct {
		Data []struct {
			Tags []string `json:"tags"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	if len(body.Data) == 0 {
		return nil, fmt.Errorf("channel not found")
	}
	return body.Data[0].Tags, nil
}

// GetUserAvatar resolves a user id to its profile image URL.
func (hc *HelixClient) GetUserAvatar(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("userID empty")
	}
	resp, err := hc.do(ctx, "/users", map[string][]string{"id": {userID}})
	if err != nil {
		return "", err
	}
	defer closeBody(resp)
	var body struct {
		Data []struct {
			ProfileImageURL string `json:"profile_image_url"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if len(body.Data) == 0 {
		return "", fmt.Errorf("user not found")
	}
	return body.Data[0].ProfileImageURL, nil
}
