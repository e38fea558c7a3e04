package orchestrator

import (
	"strings"
	"testing"

	"github.com/ilearnhow/lessongen/pkg/curriculum"
	"github.com/ilearnhow/lessongen/pkg/models"
)

func TestVariantPrompt(t *testing.T) {
	cat := curriculum.Default()
	lesson, _ := cat.Lesson("day1")
	v := models.Variant{
		LessonID: "day1", Kind: models.KindContent,
		AgeGroup: "age_8", Tone: "fun", ContentType: "on_screen_text", QuestionType: "question_2", Choice: "B",
	}

	p := VariantPrompt(cat, lesson, v)
	for _, want := range []string{
		`Create content for lesson 1 about "The Sun - Our Magnificent Life-Giving Star"`,
		"AGE GROUP: age_8\n- Concept Name: Junior Scientist",
		"TONE: fun\n- Voice Character: Ken",
		"CONTENT TYPE: on_screen_text\n- Visual text displayed during lesson",
		"QUESTION TYPE: question_2",
		"- Choice: B",
		`"mainContent"`,
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestFortunePrompt(t *testing.T) {
	lesson, _ := curriculum.Default().Lesson("day1")
	p := FortunePrompt(lesson)
	if !strings.Contains(p, "Universal Connection: The same Sun warms every person on Earth") {
		t.Error("fortune elements missing")
	}
	if !strings.HasSuffix(p, "Format as a single inspiring paragraph.") {
		t.Error("fortune format instruction missing")
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("v1", "m", "prompt")
	if len(a) != 16 {
		t.Fatalf("expected 16 hex chars, got %q", a)
	}
	if a != Fingerprint("v1", "m", "prompt") {
		t.Error("fingerprint not stable")
	}
	if a == Fingerprint("v2", "m", "prompt") || a == Fingerprint("v1", "m2", "prompt") {
		t.Error("fingerprint ignores inputs")
	}
}
