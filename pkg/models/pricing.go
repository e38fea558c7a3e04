package models

// ModelPricing defines per-million-token prices for a provider model.
type ModelPricing struct {
	Model            string  `json:"model,omitempty" yaml:"model"`
	InputPerMillion  float64 `json:"input_per_million" yaml:"input_per_million"`
	OutputPerMillion float64 `json:"output_per_million" yaml:"output_per_million"`
}
