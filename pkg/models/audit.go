package models

import "time"

// AttemptStatus is the terminal state of one variant generation attempt.
type AttemptStatus string

const (
	AttemptSucceeded AttemptStatus = "succeeded"
	AttemptCached    AttemptStatus = "cached"
	AttemptFailed    AttemptStatus = "failed"
)

// Attempt records the outcome of one variant within a batch.
type Attempt struct {
	BatchID   string        `json:"batch_id"`
	LessonID  string        `json:"lesson_id"`
	VariantID string        `json:"variant_id"`
	ClientID  string        `json:"client_id"`
	Status    AttemptStatus `json:"status"`
	Reason    string        `json:"reason,omitempty"`
	Error     string        `json:"error,omitempty"`
	Provider  string        `json:"provider,omitempty"`
	Model     string        `json:"model,omitempty"`
	Cost      float64       `json:"cost"`
	LatencyMs int64         `json:"latency_ms"`
	CreatedAt time.Time     `json:"created_at"`
}

// AttemptQueryOpts specifies filters for querying attempts.
type AttemptQueryOpts struct {
	LessonID  string
	VariantID string
	BatchID   string
	Status    AttemptStatus
	Since     time.Time
	Limit     int
}

// AttemptStat holds aggregate attempt counts for a lesson/status combination.
type AttemptStat struct {
	LessonID string
	Status   AttemptStatus
	Count    int
}
