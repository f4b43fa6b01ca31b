package announce

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Thurler/guiltbot/ledger"
	"github.com/Thurler/guiltbot/telemetry"
	"github.com/Thurler/guiltbot/twitchapi"
)

func init() {
	telemetry.Init()
}

// memStore is an in-memory ledger.Store.
type memStore struct {
	entries map[string]ledger.Entry
	puts    int
}

func newMemStore() *memStore { return &memStore{entries: map[string]ledger.Entry{}} }

func (m *memStore) Get(_ context.Context, broadcasterID string) (ledger.Entry, bool, error) {
	e, ok := m.entries[broadcasterID]
	return e, ok, nil
}

func (m *memStore) Put(_ context.Context, e ledger.Entry) error {
	m.puts++
	m.entries[e.BroadcasterID] = e
	return nil
}

// fakeAPI scripts GetStreams responses per call; the last one repeats.
type fakeAPI struct {
	responses []streamsResponse
	calls     int

	tags        map[string][]string
	tagFailures map[string]bool

	avatars     map[string]string
	avatarCalls int
}

type streamsResponse struct {
	streams []twitchapi.Stream
	err     error
}

func (f *fakeAPI) GetStreams(_ context.Context, _ []string) ([]twitchapi.Stream, error) {
	idx := f.calls
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	f.calls++
	r := f.responses[idx]
	return r.streams, r.err
}

func (f *fakeAPI) GetChannelTags(_ context.Context, broadcasterID string) ([]string, error) {
	if f.tagFailures[broadcasterID] {
		return nil, errors.New("channel lookup failed")
	}
	return f.tags[broadcasterID], nil
}

func (f *fakeAPI) GetUserAvatar(_ context.Context, userID string) (string, error) {
	f.avatarCalls++
	url, ok := f.avatars[userID]
	if !ok {
		return "", errors.New("user not found")
	}
	return url, nil
}

type fakeInvalidator struct{ calls int }

func (f *fakeInvalidator) Invalidate() { f.calls++ }

var testGames = []Game{{ID: "gameX", Name: "GUILT"}, {ID: "gameY", Name: "Trauma Center"}}

func stream(id, userID, userName, gameID string) twitchapi.Stream {
	return twitchapi.Stream{ID: id, UserID: userID, UserLogin: userName, UserName: userName, GameID: gameID, Title: "title " + id}
}

func newTestPipeline(api *fakeAPI, store ledger.Store, blocked []string, requiredTag string) (*Pipeline, *fakeInvalidator) {
	inv := &fakeInvalidator{}
	p := NewPipeline(api, inv, ledger.New(store, time.Hour), testGames, blocked, requiredTag)
	p.now = func() time.Time { return time.Date(2020, 5, 1, 12, 0, 0, 0, time.UTC) }
	return p, inv
}

func TestRunFilterOrderPreserved(t *testing.T) {
	api := &fakeAPI{responses: []streamsResponse{{streams: []twitchapi.Stream{
		stream("sA", "uA", "Alice", "gameX"),
		stream("sB", "uB", "Bob", "otherGame"),
		stream("sC", "uC", "Carol", "gameX"),
		stream("sD", "uD", "Dave", "gameX"),
	}}}}
	p, _ := newTestPipeline(api, newMemStore(), []string{"Carol"}, "")

	anns, err := p.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(anns) != 2 {
		t.Fatalf("got %d announcements, want 2", len(anns))
	}
	if anns[0].Stream.ID != "sA" || anns[1].Stream.ID != "sD" {
		t.Errorf("order not preserved: [%s %s]", anns[0].Stream.ID, anns[1].Stream.ID)
	}
	if anns[0].GameName != "GUILT" {
		t.Errorf("GameName = %s", anns[0].GameName)
	}
}

func TestRunRecordsAndSuppresses(t *testing.T) {
	api := &fakeAPI{responses: []streamsResponse{{streams: []twitchapi.Stream{
		stream("s1", "u1", "Alice", "gameX"),
	}}}}
	store := newMemStore()
	p, _ := newTestPipeline(api, store, nil, "")
	ctx := context.Background()

	anns, err := p.Run(ctx, false)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(anns) != 1 {
		t.Fatalf("first run: got %d announcements, want 1", len(anns))
	}
	if e, ok := store.entries["u1"]; !ok || e.StreamID != "s1" {
		t.Fatalf("ledger entry after run = %+v, ok=%v", e, ok)
	}

	// Same poll result again, still within the renew window: suppressed.
	anns, err = p.Run(ctx, false)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(anns) != 0 {
		t.Errorf("second run: got %d announcements, want 0", len(anns))
	}
}

func TestRunSamePollDuplicateAnnouncedOnce(t *testing.T) {
	// The same stream appearing twice in one response is announced once:
	// the record happens immediately, before the duplicate is evaluated.
	api := &fakeAPI{responses: []streamsResponse{{streams: []twitchapi.Stream{
		stream("s1", "u1", "Alice", "gameX"),
		stream("s1", "u1", "Alice", "gameX"),
	}}}}
	store := newMemStore()
	p, _ := newTestPipeline(api, store, nil, "")

	anns, err := p.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(anns) != 1 {
		t.Errorf("got %d announcements, want 1", len(anns))
	}
	if store.puts != 1 {
		t.Errorf("ledger puts = %d, want 1", store.puts)
	}
}

func TestRunForceSkipsAndNeverMutatesLedger(t *testing.T) {
	api := &fakeAPI{responses: []streamsResponse{{streams: []twitchapi.Stream{
		stream("s1", "u1", "Alice", "gameX"),
	}}}}
	store := newMemStore()
	// Pre-record the stream: a normal run would suppress it.
	if err := store.Put(context.Background(), ledger.Entry{BroadcasterID: "u1", StreamID: "s1", AnnouncedAt: time.Date(2020, 5, 1, 11, 45, 0, 0, time.UTC)}); err != nil {
		t.Fatal(err)
	}
	store.puts = 0
	p, _ := newTestPipeline(api, store, nil, "")
	ctx := context.Background()

	first, err := p.Run(ctx, true)
	if err != nil {
		t.Fatalf("Run(force) error = %v", err)
	}
	second, err := p.Run(ctx, true)
	if err != nil {
		t.Fatalf("Run(force) error = %v", err)
	}
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("forced runs = %d, %d announcements, want 1, 1", len(first), len(second))
	}
	if first[0].Stream.ID != second[0].Stream.ID {
		t.Error("back-to-back forced runs should yield identical results")
	}
	if store.puts != 0 {
		t.Errorf("forced runs mutated the ledger %d times", store.puts)
	}
}

func TestRunAuthRetrySucceeds(t *testing.T) {
	api := &fakeAPI{responses: []streamsResponse{
		{err: twitchapi.ErrUnauthorized},
		{streams: []twitchapi.Stream{stream("s1", "u1", "Alice", "gameX")}},
	}}
	p, inv := newTestPipeline(api, newMemStore(), nil, "")

	anns, err := p.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(anns) != 1 {
		t.Fatalf("got %d announcements, want 1", len(anns))
	}
	if inv.calls != 1 {
		t.Errorf("token refreshes = %d, want exactly 1", inv.calls)
	}
	if api.calls != 2 {
		t.Errorf("GetStreams calls = %d, want 2", api.calls)
	}
}

func TestRunAuthFailureTwiceAborts(t *testing.T) {
	api := &fakeAPI{responses: []streamsResponse{
		{err: twitchapi.ErrUnauthorized},
		{err: twitchapi.ErrUnauthorized},
	}}
	store := newMemStore()
	p, inv := newTestPipeline(api, store, nil, "")

	anns, err := p.Run(context.Background(), false)
	if err == nil {
		t.Fatal("expected pipeline failure after two consecutive auth errors")
	}
	if anns != nil {
		t.Errorf("announcements = %v, want none", anns)
	}
	if inv.calls != 1 {
		t.Errorf("token refreshes = %d, want exactly 1 (no infinite retry)", inv.calls)
	}
	if store.puts != 0 {
		t.Error("failed run must not mutate the ledger")
	}
}

func TestRunOtherErrorNotRetried(t *testing.T) {
	api := &fakeAPI{responses: []streamsResponse{
		{err: errors.New("connection reset")},
		{streams: []twitchapi.Stream{stream("s1", "u1", "Alice", "gameX")}},
	}}
	p, inv := newTestPipeline(api, newMemStore(), nil, "")

	if _, err := p.Run(context.Background(), false); err == nil {
		t.Fatal("expected transport error to surface")
	}
	if api.calls != 1 {
		t.Errorf("GetStreams calls = %d, want 1 (no retry)", api.calls)
	}
	if inv.calls != 0 {
		t.Errorf("token refreshes = %d, want 0", inv.calls)
	}
}

func TestRunRequiredTagFilter(t *testing.T) {
	api := &fakeAPI{
		responses: []streamsResponse{{streams: []twitchapi.Stream{
			stream("s1", "u1", "Alice", "gameX"),
			stream("s2", "u2", "Bob", "gameX"),
			stream("s3", "u3", "Carol", "gameX"),
		}}},
		tags: map[string][]string{
			"u1": {"speedrun", "English"},
			"u2": {"English"},
		},
		tagFailures: map[string]bool{"u3": true},
	}
	store := newMemStore()
	p, _ := newTestPipeline(api, store, nil, "Speedrun")

	anns, err := p.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// u1 matches (case-insensitive), u2 lacks the tag, u3's lookup failed
	// (excluded, not fatal).
	if len(anns) != 1 || anns[0].Stream.UserID != "u1" {
		t.Fatalf("announcements = %+v, want only u1", anns)
	}
	if store.puts != 1 {
		t.Errorf("ledger puts = %d, want 1 (only the announced stream)", store.puts)
	}
	if _, ok := store.entries["u2"]; ok {
		t.Error("filtered-out stream must not be recorded")
	}
}

func TestRunBlocklistCaseInsensitive(t *testing.T) {
	api := &fakeAPI{responses: []streamsResponse{{streams: []twitchapi.Stream{
		stream("s1", "u1", "Alice", "gameX"),
	}}}}
	p, _ := newTestPipeline(api, newMemStore(), []string{"ALICE"}, "")

	anns, err := p.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(anns) != 0 {
		t.Error("blocklist match should be case-insensitive")
	}
}
