package ledger

import (
	"context"
	"database/sql"
	"time"
)

// PGStore persists entries in the announcements table. The upsert is a single
// statement, so per-key atomicity comes from Postgres itself.
type PGStore struct {
	DB *sql.DB
}

// Get returns the entry for broadcasterID, if any.
func (ps *PGStore) Get(ctx context.Context, broadcasterID string) (Entry, bool, error) {
	row := ps.DB.QueryRowContext(ctx,
		`SELECT stream_id, announced_at FROM announcements WHERE broadcaster_id=$1`, broadcasterID)
	var streamID string
	var announcedAt time.Time
	if err := row.Scan(&streamID, &announcedAt); err != nil {
		if err == sql.ErrNoRows {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	return Entry{BroadcasterID: broadcasterID, StreamID: streamID, AnnouncedAt: announcedAt}, true, nil
}

// Put upserts the entry.
func (ps *PGStore) Put(ctx context.Context, e Entry) error {
	_, err := ps.DB.ExecContext(ctx,
		`INSERT INTO announcements(broadcaster_id, stream_id, announced_at, updated_at)
		 VALUES($1,$2,$3,NOW())
		 ON CONFLICT(broadcaster_id) DO UPDATE SET
		   stream_id=EXCLUDED.stream_id,
		   announced_at=EXCLUDED.announced_at,
		   updated_at=NOW()`,
		e.BroadcasterID, e.StreamID, e.AnnouncedAt)
	return err
}
