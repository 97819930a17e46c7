package analytics

import "time"

type EventType string

const (
	EventQuery    EventType = "query"
	EventCacheHit EventType = "cache_hit"
	EventError    EventType = "error"
)

// QueryEvent records one protocol request end to end. Query text is not
// carried; only its length, so the event stream never persists corpus or
// client data.
type QueryEvent struct {
	Type       EventType `json:"type"`
	Algorithm  string    `json:"algorithm"`
	Found      bool      `json:"found"`
	CacheHit   bool      `json:"cache_hit"`
	QueryBytes int       `json:"query_bytes"`
	LatencyMs  int64     `json:"latency_ms"`
	Session    string    `json:"session"`
	Timestamp  time.Time `json:"timestamp"`
}
