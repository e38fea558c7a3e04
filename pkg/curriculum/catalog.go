// Package curriculum holds lesson topics and the per-axis descriptors used
// to assemble generation prompts.
package curriculum

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Lesson is one daily topic.
type Lesson struct {
	ID                string          `yaml:"id"`
	Day               int             `yaml:"day"`
	Title             string          `yaml:"title"`
	LearningObjective string          `yaml:"learning_objective"`
	Fortune           FortuneElements `yaml:"fortune"`
}

// FortuneElements seed the daily fortune prompt.
type FortuneElements struct {
	CoreIdentityShift   string `yaml:"core_identity_shift"`
	SkillCelebration    string `yaml:"skill_celebration"`
	RelationshipImpact  string `yaml:"relationship_impact"`
	UniversalConnection string `yaml:"universal_connection"`
}

// AgeProfile describes how content is pitched to an age group.
type AgeProfile struct {
	Name       string   `yaml:"name"`
	Metaphor   string   `yaml:"metaphor"`
	Complexity string   `yaml:"complexity"`
	Attention  string   `yaml:"attention"`
	Focus      string   `yaml:"focus"`
	Vocabulary []string `yaml:"vocabulary"`
}

// ToneProfile describes a narrator voice.
type ToneProfile struct {
	Name      string   `yaml:"name"`
	Emotional string   `yaml:"emotional"`
	Patterns  []string `yaml:"patterns"`
}

// QuestionProfile describes the focus of a question slot.
type QuestionProfile struct {
	Concept   string `yaml:"concept"`
	Principle string `yaml:"principle"`
	Target    string `yaml:"target"`
}

// Catalog is the full curriculum.
type Catalog struct {
	Lessons   []Lesson                   `yaml:"lessons"`
	Ages      map[string]AgeProfile      `yaml:"ages"`
	Tones     map[string]ToneProfile     `yaml:"tones"`
	Questions map[string]QuestionProfile `yaml:"questions"`

	byID  map[string]Lesson
	byDay map[int]Lesson
}

// LessonID returns the identifier used for a curriculum day.
func LessonID(day int) string {
	return fmt.Sprintf("day%d", day)
}

// Load reads a YAML catalog. Sections missing from the file keep the
// built-in defaults.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	c := Default()
	var file Catalog
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(file.Lessons) > 0 {
		c.Lessons = file.Lessons
	}
	for k, v := range file.Ages {
		c.Ages[k] = v
	}
	for k, v := range file.Tones {
		c.Tones[k] = v
	}
	for k, v := range file.Questions {
		c.Questions[k] = v
	}
	c.index()
	return c, nil
}

func (c *Catalog) index() {
	c.byID = make(map[string]Lesson, len(c.Lessons))
	c.byDay = make(map[int]Lesson, len(c.Lessons))
	for i, l := range c.Lessons {
		if l.ID == "" && l.Day > 0 {
			l.ID = LessonID(l.Day)
			c.Lessons[i] = l
		}
		c.byID[l.ID] = l
		if l.Day > 0 {
			c.byDay[l.Day] = l
		}
	}
}

// Lesson returns the lesson with the given id. Unknown ids get a generic
// lesson titled after the id and ok is false.
func (c *Catalog) Lesson(id string) (Lesson, bool) {
	if l, ok := c.byID[id]; ok {
		return l, true
	}
	return Lesson{ID: id, Title: id, Fortune: genericFortune}, false
}

// ForDay returns the lesson scheduled on a curriculum day (1-366).
func (c *Catalog) ForDay(day int) (Lesson, bool) {
	if l, ok := c.byDay[day]; ok {
		return l, true
	}
	return Lesson{ID: LessonID(day), Day: day, Title: fmt.Sprintf("Lesson %d", day), Fortune: genericFortune}, false
}

// Age returns the profile for an age group, or a neutral one.
func (c *Catalog) Age(key string) AgeProfile {
	if p, ok := c.Ages[key]; ok {
		return p
	}
	return AgeProfile{Name: key, Metaphor: "everyday experience", Complexity: "moderate", Attention: "medium", Focus: "understanding"}
}

// Tone returns the profile for a tone, or a neutral one.
func (c *Catalog) Tone(key string) ToneProfile {
	if p, ok := c.Tones[key]; ok {
		return p
	}
	return ToneProfile{Name: key, Emotional: "balanced"}
}

// Question returns the profile for a question slot, or a neutral one.
func (c *Catalog) Question(key string) QuestionProfile {
	if p, ok := c.Questions[key]; ok {
		return p
	}
	return QuestionProfile{Concept: key, Principle: "curiosity", Target: "reasoning"}
}
