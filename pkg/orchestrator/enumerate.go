package orchestrator

import "github.com/ilearnhow/lessongen/pkg/models"

// Enumerate expands the axes into the lesson's variants in a fixed order:
// age, then tone, content type, question type and choice, with the daily
// fortune last.
func Enumerate(lessonID string, axes models.AxisConfig) []models.Variant {
	out := make([]models.Variant, 0, axes.Size()+1)
	for _, age := range axes.AgeGroups {
		for _, tone := range axes.Tones {
			for _, ct := range axes.ContentTypes {
				for _, qt := range axes.QuestionTypes {
					for _, choice := range axes.Choices {
						out = append(out, models.Variant{
							LessonID:     lessonID,
							Kind:         models.KindContent,
							AgeGroup:     age,
							Tone:         tone,
							ContentType:  ct,
							QuestionType: qt,
							Choice:       choice,
						})
					}
				}
			}
		}
	}
	return append(out, models.Variant{LessonID: lessonID, Kind: models.KindFortune})
}

// Filter selects variants by axis value. Empty fields match anything.
type Filter struct {
	AgeGroup     string `json:"age_group,omitempty"`
	Tone         string `json:"tone,omitempty"`
	ContentType  string `json:"content_type,omitempty"`
	QuestionType string `json:"question_type,omitempty"`
	Choice       string `json:"choice,omitempty"`
}

func (f Filter) match(v models.Variant) bool {
	return (f.AgeGroup == "" || f.AgeGroup == v.AgeGroup) &&
		(f.Tone == "" || f.Tone == v.Tone) &&
		(f.ContentType == "" || f.ContentType == v.ContentType) &&
		(f.QuestionType == "" || f.QuestionType == v.QuestionType) &&
		(f.Choice == "" || f.Choice == v.Choice)
}

// FilterVariants returns the content variants matching f, in input order.
// The fortune task has no axes and only matches an empty filter.
func FilterVariants(variants []models.Variant, f Filter) []models.Variant {
	var out []models.Variant
	for _, v := range variants {
		if v.Kind == models.KindFortune && f != (Filter{}) {
			continue
		}
		if f.match(v) {
			out = append(out, v)
		}
	}
	return out
}

// selectIDs returns the variants whose id is in ids, in enumeration order,
// and the ids that matched nothing.
func selectIDs(variants []models.Variant, ids []string) ([]models.Variant, []string) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []models.Variant
	for _, v := range variants {
		if want[v.ID()] {
			out = append(out, v)
			delete(want, v.ID())
		}
	}
	var unknown []string
	for _, id := range ids {
		if want[id] {
			unknown = append(unknown, id)
			delete(want, id)
		}
	}
	return out, unknown
}
