package provider

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/goccy/go-json"

	"github.com/ilearnhow/lessongen/pkg/models"
)

var codeFence = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)```")

// ExtractStructuredPayload finds the JSON object in generated text. Code
// fences are stripped and the span from the first '{' to the last '}' is
// decoded.
func ExtractStructuredPayload(text string) (models.Payload, error) {
	s := text
	if m := codeFence.FindStringSubmatch(s); m != nil && strings.Contains(m[1], "{") {
		s = m[1]
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return nil, ErrPayloadMalformed
	}
	var p models.Payload
	if err := json.Unmarshal([]byte(s[start:end+1]), &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadMalformed, err)
	}
	return p, nil
}

// Placeholder is the payload used when the generated text is not valid JSON.
// The raw text is kept as the introduction.
func Placeholder(raw string) models.Payload {
	return models.Payload{
		"introduction": raw,
		"mainContent":  "Content generated successfully",
		"examples":     "Examples provided",
		"reflection":   "Reflection included",
		"conclusion":   "Conclusion reached",
	}
}

// FortunePayload wraps free text from a text-mode request.
func FortunePayload(text string) models.Payload {
	return models.Payload{"fortune": strings.TrimSpace(text)}
}
