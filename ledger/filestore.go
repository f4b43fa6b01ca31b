package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileStore keeps the ledger as a single JSON document on disk:
//
//	{ "<broadcasterID>": {"id": "<streamID>", "date": <epochMillis>} }
//
// The file is read in full on every Get and rewritten in full on every Put,
// via a temp file and rename so readers never see a partial document. An
// absent file is an empty ledger.
type FileStore struct {
	Path string
}

type fileEntry struct {
	ID   string `json:"id"`
	Date int64  `json:"date"`
}

func (fs *FileStore) load() (map[string]fileEntry, error) {
	b, err := os.ReadFile(fs.Path)
	if os.IsNotExist(err) {
		return map[string]fileEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger file: %w", err)
	}
	m := map[string]fileEntry{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parse ledger file: %w", err)
	}
	return m, nil
}

func (fs *FileStore) flush(m map[string]fileEntry) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	dir := filepath.Dir(fs.Path)
	tmp, err := os.CreateTemp(dir, ".ledger-*")
	if err != nil {
		return fmt.Errorf("create ledger temp file: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("write ledger temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, fs.Path); err != nil {
		os.Remove(name)
		return fmt.Errorf("replace ledger file: %w", err)
	}
	return nil
}

// Get loads the whole document and returns the entry for broadcasterID.
func (fs *FileStore) Get(_ context.Context, broadcasterID string) (Entry, bool, error) {
	m, err := fs.load()
	if err != nil {
		return Entry{}, false, err
	}
	fe, ok := m[broadcasterID]
	if !ok {
		return Entry{}, false, nil
	}
	return Entry{
		BroadcasterID: broadcasterID,
		StreamID:      fe.ID,
		AnnouncedAt:   time.UnixMilli(fe.Date).UTC(),
	}, true, nil
}

// Put upserts the entry and rewrites the whole document, flushing durably
// before returning.
func (fs *FileStore) Put(_ context.Context, e Entry) error {
	m, err := fs.load()
	if err != nil {
		return err
	}
	m[e.BroadcasterID] = fileEntry{ID: e.StreamID, Date: e.AnnouncedAt.UnixMilli()}
	return fs.flush(m)
}
