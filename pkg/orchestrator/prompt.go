package orchestrator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ilearnhow/lessongen/pkg/curriculum"
	"github.com/ilearnhow/lessongen/pkg/models"
)

var contentTypeNotes = map[string]string{
	"voice_over_script": "Narrated content for audio delivery",
	"on_screen_text":    "Visual text displayed during lesson",
	"lesson_logic":      "Interactive elements and question structure",
}

const payloadFormat = `Format the response as JSON with the following structure:
{
  "introduction": "Age-appropriate introduction",
  "mainContent": "Main lesson content",
  "examples": "Relevant examples",
  "reflection": "Thought-provoking reflection",
  "conclusion": "Engaging conclusion"
}`

func lessonLabel(l curriculum.Lesson) string {
	if l.Day > 0 {
		return fmt.Sprintf("lesson %d", l.Day)
	}
	return "lesson " + l.ID
}

// VariantPrompt builds the prompt for one content variant.
func VariantPrompt(cat *curriculum.Catalog, lesson curriculum.Lesson, v models.Variant) string {
	age := cat.Age(v.AgeGroup)
	tone := cat.Tone(v.Tone)
	q := cat.Question(v.QuestionType)

	var b strings.Builder
	fmt.Fprintf(&b, "Create content for %s about %q with the following specifications:\n\n", lessonLabel(lesson), lesson.Title)
	if lesson.LearningObjective != "" {
		fmt.Fprintf(&b, "LEARNING OBJECTIVE: %s\n\n", lesson.LearningObjective)
	}

	fmt.Fprintf(&b, "AGE GROUP: %s\n", v.AgeGroup)
	fmt.Fprintf(&b, "- Concept Name: %s\n", age.Name)
	fmt.Fprintf(&b, "- Core Metaphor: %s\n", age.Metaphor)
	fmt.Fprintf(&b, "- Complexity Level: %s\n", age.Complexity)
	fmt.Fprintf(&b, "- Attention Span: %s\n", age.Attention)
	fmt.Fprintf(&b, "- Cognitive Focus: %s\n", age.Focus)
	fmt.Fprintf(&b, "- Vocabulary: %s\n\n", strings.Join(age.Vocabulary, ", "))

	fmt.Fprintf(&b, "TONE: %s\n", v.Tone)
	fmt.Fprintf(&b, "- Voice Character: %s\n", tone.Name)
	fmt.Fprintf(&b, "- Emotional Temperature: %s\n", tone.Emotional)
	fmt.Fprintf(&b, "- Language Patterns: %s\n\n", strings.Join(tone.Patterns, "; "))

	fmt.Fprintf(&b, "CONTENT TYPE: %s\n", v.ContentType)
	if note, ok := contentTypeNotes[v.ContentType]; ok {
		fmt.Fprintf(&b, "- %s\n", note)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "QUESTION TYPE: %s\n", v.QuestionType)
	fmt.Fprintf(&b, "- Concept Focus: %s\n", q.Concept)
	fmt.Fprintf(&b, "- Universal Principle: %s\n", q.Principle)
	fmt.Fprintf(&b, "- Cognitive Target: %s\n", q.Target)
	fmt.Fprintf(&b, "- Choice: %s\n\n", v.Choice)

	b.WriteString(payloadFormat)
	return b.String()
}

// FortunePrompt builds the prompt for the lesson's daily fortune.
func FortunePrompt(lesson curriculum.Lesson) string {
	f := lesson.Fortune
	var b strings.Builder
	fmt.Fprintf(&b, "Create a daily fortune for %s about %q that includes:\n\n", lessonLabel(lesson), lesson.Title)
	fmt.Fprintf(&b, "Core Identity Shift: %s\n", f.CoreIdentityShift)
	fmt.Fprintf(&b, "Skill Celebration: %s\n", f.SkillCelebration)
	fmt.Fprintf(&b, "Relationship Impact: %s\n", f.RelationshipImpact)
	fmt.Fprintf(&b, "Universal Connection: %s\n\n", f.UniversalConnection)
	b.WriteString("The fortune should be inspiring and connect the lesson to the learner's life and the broader universe. Make it feel personal and meaningful.\n\n")
	b.WriteString("Format as a single inspiring paragraph.")
	return b.String()
}

// Fingerprint identifies the inputs that produced a cached result. A cached
// entry whose fingerprint differs is treated as a miss.
func Fingerprint(templateVersion, model, prompt string) string {
	h := sha256.New()
	h.Write([]byte(templateVersion))
	h.Write([]byte{0})
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(prompt))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// ContentKey is the cache key of a generated variant.
func ContentKey(lessonID, variantID string) string {
	return "content:" + lessonID + ":" + variantID
}
