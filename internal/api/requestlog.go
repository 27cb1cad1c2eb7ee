package api

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// requestEntry is one processed request, surfaced by the stats endpoint.
type requestEntry struct {
	ID        string `json:"request_id"`
	Timestamp string `json:"timestamp"`
	Endpoint  string `json:"endpoint"`
	VideoID   string `json:"video_id"`
	Mode      string `json:"mode"`
}

// requestLog is a bounded in-memory log of processing requests.
type requestLog struct {
	mu      sync.Mutex
	entries []requestEntry
	count   int
	keep    int
}

func newRequestLog(keep int) *requestLog {
	return &requestLog{keep: keep}
}

func (l *requestLog) record(endpoint, videoID, mode string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.count++
	l.entries = append(l.entries, requestEntry{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Endpoint:  endpoint,
		VideoID:   videoID,
		Mode:      mode,
	})
	if len(l.entries) > l.keep {
		l.entries = l.entries[len(l.entries)-l.keep:]
	}
}

func (l *requestLog) total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

func (l *requestLog) recent() []requestEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]requestEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
