package typebus

import (
	json "github.com/goccy/go-json"
)

// StatsSnapshot captures bus counters at a point in time.
type StatsSnapshot struct {
	Published           uint64 `json:"published"`
	AsyncPublished      uint64 `json:"async_published"`
	AsyncDropped        uint64 `json:"async_dropped"`
	ActiveSubscriptions int64  `json:"active_subscriptions"`
	KnownTypes          int    `json:"known_types"`
}

// Stats returns a consistent-enough snapshot of the bus counters; individual
// fields are read atomically but not as one transaction.
func (b *Bus) Stats() StatsSnapshot {
	return StatsSnapshot{
		Published:           b.published.Load(),
		AsyncPublished:      b.asyncPublished.Load(),
		AsyncDropped:        b.asyncDropped.Load(),
		ActiveSubscriptions: b.subscriptions.Load(),
		KnownTypes:          b.strategy.Types().Len(),
	}
}

// JSON renders the snapshot for periodic export or debugging endpoints.
func (s StatsSnapshot) JSON() ([]byte, error) {
	return json.Marshal(s)
}
