package models

import "time"

// Payload is the structured content returned for a variant.
type Payload map[string]any

// GenerationResult is one generated variant. Immutable once created.
type GenerationResult struct {
	VariantID   string    `json:"variant_id"`
	Variant     Variant   `json:"variant"`
	Content     Payload   `json:"content"`
	Usage       Usage     `json:"usage"`
	Cost        float64   `json:"cost"`
	Provider    string    `json:"provider"`
	Model       string    `json:"model"`
	Degraded    bool      `json:"degraded,omitempty"`
	Fingerprint string    `json:"fingerprint"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Failure describes a variant that did not produce a result.
type Failure struct {
	VariantID  string        `json:"variant_id"`
	Reason     string        `json:"reason"`
	Error      string        `json:"error,omitempty"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// Failure reasons not produced by the limiter or the budget tracker.
const (
	ReasonBudgetStopped = "budget_stopped"
	ReasonProviderError = "provider_error"
	ReasonCacheError    = "cache_error"
	ReasonCanceled      = "canceled"
)

// BatchStats summarizes one orchestrated batch.
type BatchStats struct {
	TotalVariants         int       `json:"total_variants"`
	SuccessfulGenerations int       `json:"successful_generations"`
	FailedGenerations     int       `json:"failed_generations"`
	CacheHits             int       `json:"cache_hits"`
	RemoteCalls           int       `json:"remote_calls"`
	Degraded              int       `json:"degraded"`
	TotalCost             float64   `json:"total_cost"`
	StartTime             time.Time `json:"start_time"`
	EndTime               time.Time `json:"end_time"`
	BudgetStopped         bool      `json:"budget_stopped"`
}

// BatchResult is the outcome of generating a lesson's variants.
type BatchResult struct {
	BatchID  string             `json:"batch_id"`
	LessonID string             `json:"lesson_id"`
	ClientID string             `json:"client_id"`
	Results  []GenerationResult `json:"results"`
	Failures []Failure          `json:"failures"`
	Stats    BatchStats         `json:"stats"`
}

// FailedIDs returns the variant ids of every failure.
func (b *BatchResult) FailedIDs() []string {
	ids := make([]string, 0, len(b.Failures))
	for _, f := range b.Failures {
		ids = append(ids, f.VariantID)
	}
	return ids
}

// OrchestratorStats accumulates activity across batches.
type OrchestratorStats struct {
	Batches               int64       `json:"batches"`
	TotalVariants         int64       `json:"total_variants"`
	SuccessfulGenerations int64       `json:"successful_generations"`
	FailedGenerations     int64       `json:"failed_generations"`
	CacheHits             int64       `json:"cache_hits"`
	RemoteCalls           int64       `json:"remote_calls"`
	Degraded              int64       `json:"degraded"`
	TotalCost             float64     `json:"total_cost"`
	LastBatch             *BatchStats `json:"last_batch,omitempty"`
	Cache                 CacheStats  `json:"cache"`
}
