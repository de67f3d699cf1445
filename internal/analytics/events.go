package analytics

import "time"

type EventType string

const (
	EventDraw            EventType = "draw"
	EventDatasetUploaded EventType = "dataset_uploaded"
)

// DrawEvent describes one draw request as seen by the API. Outcome is
// complete, partial, or an error kind from pkg/errors.
type DrawEvent struct {
	Type         EventType `json:"type"`
	DatasetID    string    `json:"dataset_id"`
	Mode         string    `json:"mode"`
	Outcome      string    `json:"outcome"`
	Match        string    `json:"match,omitempty"`
	Found        int       `json:"found"`
	Target       int       `json:"target"`
	FallbackUsed bool      `json:"fallback_used"`
	IgnoredKeys  int       `json:"ignored_keys"`
	CacheHit     bool      `json:"cache_hit"`
	LatencyMs    int64     `json:"latency_ms"`
	Timestamp    time.Time `json:"timestamp"`
	RequestID    string    `json:"request_id"`
}

func (e DrawEvent) EventKey() string { return e.DatasetID }

// DatasetEvent describes one accepted upload.
type DatasetEvent struct {
	Type      EventType `json:"type"`
	DatasetID string    `json:"dataset_id"`
	Rows      int       `json:"rows"`
	Duplicate bool      `json:"duplicate"`
	Timestamp time.Time `json:"timestamp"`
}

func (e DatasetEvent) EventKey() string { return e.DatasetID }

// envelope is decoded first to route a message by its type.
type envelope struct {
	Type EventType `json:"type"`
}
