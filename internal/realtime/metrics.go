package realtime

import (
	"sync/atomic"
)

// Metrics tracks fan-out counters for the hub and the bus.
type Metrics struct {
	published      int64
	delivered      int64
	dropped        int64
	encodeErrors   int64
	busPublished   int64
	busFailures    int64
	localFallbacks int64
	evicted        int64
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	Published      int64 `json:"published"`
	Delivered      int64 `json:"delivered"`
	Dropped        int64 `json:"dropped"`
	EncodeErrors   int64 `json:"encodeErrors"`
	BusPublished   int64 `json:"busPublished"`
	BusFailures    int64 `json:"busFailures"`
	LocalFallbacks int64 `json:"localFallbacks"`
	Evicted        int64 `json:"evicted"`
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Published:      atomic.LoadInt64(&m.published),
		Delivered:      atomic.LoadInt64(&m.delivered),
		Dropped:        atomic.LoadInt64(&m.dropped),
		EncodeErrors:   atomic.LoadInt64(&m.encodeErrors),
		BusPublished:   atomic.LoadInt64(&m.busPublished),
		BusFailures:    atomic.LoadInt64(&m.busFailures),
		LocalFallbacks: atomic.LoadInt64(&m.localFallbacks),
		Evicted:        atomic.LoadInt64(&m.evicted),
	}
}

// DropRate returns dropped deliveries as a percentage of attempted ones.
func (s MetricsSnapshot) DropRate() float64 {
	total := s.Delivered + s.Dropped
	if total == 0 {
		return 0
	}
	return float64(s.Dropped) / float64(total) * 100
}
