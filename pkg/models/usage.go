package models

import "time"

// Usage represents provider-reported usage for a single remote call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns input plus output tokens.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// CostRecord is an append-only audit entry for one paid generation.
type CostRecord struct {
	ID           string    `json:"id"`
	LessonID     string    `json:"lesson_id"`
	VariantID    string    `json:"variant_id"`
	ClientID     string    `json:"client_id"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Cost         float64   `json:"cost"`
	CreatedAt    time.Time `json:"created_at"`
}

// CostSummary aggregates cost records by lesson and model.
type CostSummary struct {
	LessonID     string  `json:"lesson_id"`
	Model        string  `json:"model"`
	RequestCount int     `json:"request_count"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	TotalCost    float64 `json:"total_cost"`
}

// DailyCost is one day of the spend history.
type DailyCost struct {
	Date string  `json:"date"`
	Cost float64 `json:"cost"`
}
