package jobs

import "time"

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Payload identifies the subtitle track a continuation job keeps translating.
// It carries everything needed to rebuild the request after a restart.
type Payload struct {
	Identity      string `json:"identity"`
	ContentType   string `json:"content_type"`
	ContentID     string `json:"content_id"`
	Season        int    `json:"season,omitempty"`
	Episode       int    `json:"episode,omitempty"`
	ReferenceName string `json:"reference_name,omitempty"`
	StartOffsetMS int64  `json:"start_offset_ms"`
	TargetLang    string `json:"target_lang"`
}

type EnqueueRequest struct {
	Source    string
	DedupeKey string
	Payload   Payload
}

// ContinuationJob is one background translation continuation: the batches
// after the priority window for a single cache key.
type ContinuationJob struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	DedupeKey string    `json:"dedupe_key"`
	Payload   Payload   `json:"payload"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
