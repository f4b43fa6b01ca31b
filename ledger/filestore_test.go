package ledger

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileStoreAbsentFileIsEmpty(t *testing.T) {
	fs := &FileStore{Path: filepath.Join(t.TempDir(), "database.json")}
	_, ok, err := fs.Get(context.Background(), "user1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("absent file should behave as an empty ledger")
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	fs := &FileStore{Path: filepath.Join(t.TempDir(), "database.json")}
	ctx := context.Background()
	at := time.Date(2020, 5, 1, 12, 0, 0, 0, time.UTC)

	if err := fs.Put(ctx, Entry{BroadcasterID: "user1", StreamID: "stream1", AnnouncedAt: at}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	e, ok, err := fs.Get(ctx, "user1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("entry not found after Put")
	}
	if e.StreamID != "stream1" {
		t.Errorf("StreamID = %s, want stream1", e.StreamID)
	}
	if !e.AnnouncedAt.Equal(at) {
		t.Errorf("AnnouncedAt = %v, want %v", e.AnnouncedAt, at)
	}
}

func TestFileStoreDocumentFormat(t *testing.T) {
	// The on-disk document is { broadcasterID: {"id": streamID, "date": epochMillis} }.
	path := filepath.Join(t.TempDir(), "database.json")
	fs := &FileStore{Path: path}
	at := time.UnixMilli(1588334400000).UTC()

	if err := fs.Put(context.Background(), Entry{BroadcasterID: "42", StreamID: "s1", AnnouncedAt: at}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	var doc map[string]struct {
		ID   string `json:"id"`
		Date int64  `json:"date"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatalf("parse document: %v", err)
	}
	got, ok := doc["42"]
	if !ok {
		t.Fatalf("document missing broadcaster key: %s", b)
	}
	if got.ID != "s1" || got.Date != 1588334400000 {
		t.Errorf("document entry = %+v", got)
	}
}

func TestFileStorePreservesOtherEntries(t *testing.T) {
	fs := &FileStore{Path: filepath.Join(t.TempDir(), "database.json")}
	ctx := context.Background()
	at := time.Date(2020, 5, 1, 12, 0, 0, 0, time.UTC)

	for _, id := range []string{"user1", "user2", "user3"} {
		if err := fs.Put(ctx, Entry{BroadcasterID: id, StreamID: "s-" + id, AnnouncedAt: at}); err != nil {
			t.Fatalf("Put(%s) error = %v", id, err)
		}
	}
	if err := fs.Put(ctx, Entry{BroadcasterID: "user2", StreamID: "s-new", AnnouncedAt: at.Add(time.Hour)}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	e, ok, err := fs.Get(ctx, "user1")
	if err != nil || !ok {
		t.Fatalf("Get(user1) = %v, %v, %v", e, ok, err)
	}
	if e.StreamID != "s-user1" {
		t.Errorf("user1 entry clobbered: %+v", e)
	}
	e, _, _ = fs.Get(ctx, "user2")
	if e.StreamID != "s-new" {
		t.Errorf("user2 entry not updated: %+v", e)
	}
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "database.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	fs := &FileStore{Path: path}
	if _, _, err := fs.Get(context.Background(), "user1"); err == nil {
		t.Error("expected parse error for corrupt document")
	}
}

func TestFileStoreNoTempFilesLeftBehind(t *testing.T) {
	dir := t.TempDir()
	fs := &FileStore{Path: filepath.Join(dir, "database.json")}
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := fs.Put(ctx, Entry{BroadcasterID: "user1", StreamID: "s1", AnnouncedAt: time.Now()}); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("expected only the ledger file in %s, got %v", dir, names)
	}
}
