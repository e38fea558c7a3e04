package models

import "strings"

// FortuneVariantID identifies the per-lesson fortune task.
const FortuneVariantID = "daily_fortune"

// VariantKind distinguishes structured content from the free-text fortune.
type VariantKind string

const (
	KindContent VariantKind = "content"
	KindFortune VariantKind = "fortune"
)

// Variant is one point in the lesson's axis space.
type Variant struct {
	LessonID     string      `json:"lesson_id"`
	Kind         VariantKind `json:"kind"`
	AgeGroup     string      `json:"age_group,omitempty"`
	Tone         string      `json:"tone,omitempty"`
	ContentType  string      `json:"content_type,omitempty"`
	QuestionType string      `json:"question_type,omitempty"`
	Choice       string      `json:"choice,omitempty"`
}

// ID returns the stable identifier of the variant.
func (v Variant) ID() string {
	if v.Kind == KindFortune {
		return FortuneVariantID
	}
	return strings.Join([]string{v.AgeGroup, v.Tone, v.ContentType, v.QuestionType, v.Choice}, "_")
}

// AxisConfig lists the values of every variant axis, in enumeration order.
type AxisConfig struct {
	AgeGroups     []string `json:"age_groups" yaml:"age_groups"`
	Tones         []string `json:"tones" yaml:"tones"`
	ContentTypes  []string `json:"content_types" yaml:"content_types"`
	QuestionTypes []string `json:"question_types" yaml:"question_types"`
	Choices       []string `json:"choices" yaml:"choices"`
}

// Size returns the number of content variants the axes produce.
func (a AxisConfig) Size() int {
	return len(a.AgeGroups) * len(a.Tones) * len(a.ContentTypes) * len(a.QuestionTypes) * len(a.Choices)
}

// DefaultAxes returns the production axis values.
func DefaultAxes() AxisConfig {
	return AxisConfig{
		AgeGroups:     []string{"age_2", "age_5", "age_8", "age_12", "age_16", "age_25", "age_40", "age_60", "age_80", "age_102"},
		Tones:         []string{"grandmother", "fun", "neutral"},
		ContentTypes:  []string{"voice_over_script", "on_screen_text", "lesson_logic"},
		QuestionTypes: []string{"question_1", "question_2", "question_3"},
		Choices:       []string{"A", "B"},
	}
}
