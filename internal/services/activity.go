package services

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Activity modes.
const (
	ModeAdd    = "add"
	ModeRedeem = "redeem"
)

// ActivityEntry is one line of the operator's recent-scan feed.
type ActivityEntry struct {
	Type         string    `json:"type"`
	CustomerName string    `json:"customer_name"`
	Quantity     int       `json:"quantity"`
	Mode         string    `json:"mode"`
	Timestamp    time.Time `json:"timestamp"`
}

// ActivityLog keeps the most recent scan outcomes per business in memory.
type ActivityLog struct {
	mu    sync.Mutex
	size  int
	feeds map[uuid.UUID][]ActivityEntry
}

// NewActivityLog returns a log keeping size entries per business.
func NewActivityLog(size int) *ActivityLog {
	if size <= 0 {
		size = 5
	}
	return &ActivityLog{size: size, feeds: make(map[uuid.UUID][]ActivityEntry)}
}

// Record puts entry at the front of the business feed, dropping the oldest
// entries beyond the cap.
func (l *ActivityLog) Record(businessID uuid.UUID, entry ActivityEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	feed := append([]ActivityEntry{entry}, l.feeds[businessID]...)
	if len(feed) > l.size {
		feed = feed[:l.size]
	}
	l.feeds[businessID] = feed
}

// Recent returns the feed newest first.
func (l *ActivityLog) Recent(businessID uuid.UUID) []ActivityEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	feed := l.feeds[businessID]
	out := make([]ActivityEntry, len(feed))
	copy(out, feed)
	return out
}
