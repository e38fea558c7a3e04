package curriculum

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultLookup(t *testing.T) {
	c := Default()

	l, ok := c.Lesson("day1")
	if !ok || l.Day != 1 {
		t.Fatalf("expected day1, got %+v ok=%v", l, ok)
	}
	if l.Fortune.UniversalConnection == "" {
		t.Error("fortune elements missing")
	}

	g, ok := c.Lesson("special_event")
	if ok {
		t.Error("unknown lesson should report ok=false")
	}
	if g.Title != "special_event" || g.Fortune.CoreIdentityShift == "" {
		t.Errorf("unexpected generic lesson %+v", g)
	}

	if d, ok := c.ForDay(2); !ok || d.ID != "day2" {
		t.Errorf("expected day2, got %+v", d)
	}
	if d, _ := c.ForDay(200); d.ID != "day200" {
		t.Errorf("expected generic day200, got %s", d.ID)
	}
	if c.Age("age_unknown").Name != "age_unknown" {
		t.Error("unknown age should fall back to its key")
	}
}

func TestLoadMergesDefaults(t *testing.T) {
	content := `
lessons:
  - day: 5
    title: "Water Cycle"
tones:
  pirate:
    name: Captain
    emotional: bold
`
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	l, ok := c.Lesson("day5")
	if !ok || l.Title != "Water Cycle" {
		t.Errorf("expected day5 from file, got %+v", l)
	}
	if _, ok := c.Lesson("day1"); ok {
		t.Error("file lessons should replace the defaults")
	}
	if c.Tone("pirate").Name != "Captain" || c.Tone("fun").Name != "Ken" {
		t.Error("tones should merge with defaults")
	}
}
