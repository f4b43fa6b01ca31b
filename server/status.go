package server

import (
	"sync"
	"time"
)

// Status aggregates the bot's run state for the /status endpoint. Updated by
// the poller after each cycle.
type Status struct {
	mu sync.Mutex

	startedAt     time.Time
	ledgerBackend string

	lastPollAt    time.Time
	lastPollErr   string
	lastPollCount int
	announced     int
}

// NewStatus seeds the status with the selected ledger backend name.
func NewStatus(ledgerBackend string) *Status {
	return &Status{startedAt: time.Now(), ledgerBackend: ledgerBackend}
}

// RecordPoll stores the outcome of one poll cycle.
func (st *Status) RecordPoll(announced int, err error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.lastPollAt = time.Now()
	st.lastPollCount = announced
	st.announced += announced
	if err != nil {
		st.lastPollErr = err.Error()
	} else {
		st.lastPollErr = ""
	}
}

type statusSnapshot struct {
	UptimeSeconds  int64  `json:"uptime_seconds"`
	LedgerBackend  string `json:"ledger_backend"`
	LastPollAt     string `json:"last_poll_at,omitempty"`
	LastPollError  string `json:"last_poll_error,omitempty"`
	LastPollCount  int    `json:"last_poll_count"`
	TotalAnnounced int    `json:"total_announced"`
}

func (st *Status) snapshot() statusSnapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	snap := statusSnapshot{
		UptimeSeconds:  int64(time.Since(st.startedAt).Seconds()),
		LedgerBackend:  st.ledgerBackend,
		LastPollError:  st.lastPollErr,
		LastPollCount:  st.lastPollCount,
		TotalAnnounced: st.announced,
	}
	if !st.lastPollAt.IsZero() {
		snap.LastPollAt = st.lastPollAt.UTC().Format(time.RFC3339)
	}
	return snap
}
