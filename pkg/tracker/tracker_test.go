package tracker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ilearnhow/lessongen/pkg/models"
)

func newTestTracker(t *testing.T) *SQLiteTracker {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	tr, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func rec(lesson, variant, model string, cost float64, at time.Time) models.CostRecord {
	return models.CostRecord{
		LessonID: lesson, VariantID: variant, ClientID: "c", Provider: "anthropic", Model: model,
		InputTokens: 1000, OutputTokens: 500, Cost: cost, CreatedAt: at,
	}
}

func TestRecordAndQuery(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := tr.Record(ctx, rec("day1", "age_8_fun_voice_over_script_question_1_A", "claude", 0.0105, now)); err != nil {
		t.Fatal(err)
	}

	records, err := tr.Query(ctx, "day1", now.Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].ID == "" {
		t.Error("expected generated id")
	}
	if records[0].Cost != 0.0105 {
		t.Errorf("expected cost 0.0105, got %v", records[0].Cost)
	}

	other, _ := tr.Query(ctx, "day2", now.Add(-time.Minute))
	if len(other) != 0 {
		t.Errorf("expected no records for day2, got %d", len(other))
	}
}

func TestTotalsAndDaily(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	d1 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)

	_ = tr.Record(ctx, rec("l", "a", "m", 1.0, d1))
	_ = tr.Record(ctx, rec("l", "b", "m", 0.5, d1.Add(time.Hour)))
	_ = tr.Record(ctx, rec("l", "c", "m", 2.0, d2))

	total, err := tr.TotalBetween(ctx, d1, d2)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1.5 {
		t.Errorf("expected 1.5 on day one, got %v", total)
	}

	daily, err := tr.DailyTotals(ctx, d1)
	if err != nil {
		t.Fatal(err)
	}
	if len(daily) != 2 || daily[0].Date != "2025-03-01" || daily[1].Cost != 2.0 {
		t.Errorf("unexpected daily totals: %+v", daily)
	}
}

func TestSummary(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_ = tr.Record(ctx, rec("day1", "a", "claude", 0.01, now))
	_ = tr.Record(ctx, rec("day1", "b", "claude", 0.02, now))
	_ = tr.Record(ctx, rec("day1", "c", "gpt-4o", 0.03, now))
	_ = tr.Record(ctx, rec("day2", "a", "claude", 0.04, now))

	all, err := tr.Summary(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 summaries, got %d", len(all))
	}
	if all[0].LessonID != "day1" || all[0].Model != "claude" || all[0].RequestCount != 2 {
		t.Errorf("unexpected first summary: %+v", all[0])
	}

	one, _ := tr.Summary(ctx, "day2")
	if len(one) != 1 || one[0].InputTokens != 1000 {
		t.Errorf("unexpected filtered summary: %+v", one)
	}
}
