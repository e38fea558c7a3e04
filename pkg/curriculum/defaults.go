package curriculum

var genericFortune = FortuneElements{
	CoreIdentityShift:   "You are someone who keeps learning",
	SkillCelebration:    "You practiced careful thinking today",
	RelationshipImpact:  "What you learned can help someone you care about",
	UniversalConnection: "Every question you ask connects you to learners everywhere",
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c := &Catalog{
		Lessons: []Lesson{
			{
				ID:                "day1",
				Day:               1,
				Title:             "The Sun - Our Magnificent Life-Giving Star",
				LearningObjective: "Understand how scientific observation and measurement create shared global knowledge that transcends cultural and political boundaries.",
				Fortune: FortuneElements{
					CoreIdentityShift:   "You are a curious observer of the sky",
					SkillCelebration:    "You learned to ask how we know what we know",
					RelationshipImpact:  "Sharing evidence helps people trust each other",
					UniversalConnection: "The same Sun warms every person on Earth",
				},
			},
			{
				ID:                "day2",
				Day:               2,
				Title:             "Habit Stacking - Building Better Days",
				LearningObjective: "Learn how small routines attached to existing habits compound into lasting change.",
				Fortune: FortuneElements{
					CoreIdentityShift:   "You are someone who builds on small wins",
					SkillCelebration:    "You designed a habit that fits your day",
					RelationshipImpact:  "Steady habits make you dependable for others",
					UniversalConnection: "Growth everywhere happens one small step at a time",
				},
			},
		},
		Ages: map[string]AgeProfile{
			"age_2":   {Name: "Tiny Explorer", Metaphor: "a bright ball in the sky", Complexity: "single ideas", Attention: "very short", Focus: "senses", Vocabulary: []string{"big", "warm", "bright"}},
			"age_5":   {Name: "Young Wonderer", Metaphor: "a giant warm hug", Complexity: "simple cause and effect", Attention: "short", Focus: "play", Vocabulary: []string{"star", "light", "grow"}},
			"age_8":   {Name: "Junior Scientist", Metaphor: "a power station", Complexity: "concrete explanations", Attention: "moderate", Focus: "how things work", Vocabulary: []string{"energy", "orbit", "planet"}},
			"age_12":  {Name: "Investigator", Metaphor: "a nuclear reactor", Complexity: "systems", Attention: "moderate", Focus: "evidence", Vocabulary: []string{"fusion", "gravity", "measurement"}},
			"age_16":  {Name: "Analyst", Metaphor: "an engine for every system", Complexity: "abstract reasoning", Attention: "sustained", Focus: "implications", Vocabulary: []string{"photosynthesis", "radiation", "model"}},
			"age_25":  {Name: "Practitioner", Metaphor: "shared infrastructure", Complexity: "applied", Attention: "sustained", Focus: "application", Vocabulary: []string{"collaboration", "data", "policy"}},
			"age_40":  {Name: "Integrator", Metaphor: "a bridge between fields", Complexity: "synthesis", Attention: "sustained", Focus: "decisions", Vocabulary: []string{"innovation", "tradeoff", "stewardship"}},
			"age_60":  {Name: "Mentor", Metaphor: "accumulated wisdom", Complexity: "reflective", Attention: "sustained", Focus: "legacy", Vocabulary: []string{"progress", "generation", "perspective"}},
			"age_80":  {Name: "Elder", Metaphor: "a constant companion", Complexity: "reflective", Attention: "relaxed", Focus: "meaning", Vocabulary: []string{"continuity", "gratitude", "story"}},
			"age_102": {Name: "Sage", Metaphor: "a century of mornings", Complexity: "contemplative", Attention: "relaxed", Focus: "wonder", Vocabulary: []string{"timeless", "wonder", "gift"}},
		},
		Tones: map[string]ToneProfile{
			"grandmother": {Name: "Grandma Kelly", Emotional: "warm and nurturing", Patterns: []string{"my dear", "let me tell you", "isn't that wonderful"}},
			"fun":         {Name: "Ken", Emotional: "energetic and playful", Patterns: []string{"get ready", "how cool is that", "let's go"}},
			"neutral":     {Name: "Narrator", Emotional: "calm and clear", Patterns: []string{"consider", "we observe", "in summary"}},
		},
		Questions: map[string]QuestionProfile{
			"question_1": {Concept: "observation", Principle: "evidence comes from careful looking", Target: "recall"},
			"question_2": {Concept: "explanation", Principle: "causes produce effects", Target: "understanding"},
			"question_3": {Concept: "application", Principle: "knowledge is shared and tested", Target: "transfer"},
		},
	}
	c.index()
	return c
}
