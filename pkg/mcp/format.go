package mcp

import (
	"fmt"
	"strings"

	"github.com/ilearnhow/lessongen/pkg/models"
	"github.com/ilearnhow/lessongen/pkg/ratelimit"
)

const timeLayout = "2006-01-02 15:04:05"

// formatBatch formats a batch result as a summary plus its failures.
func formatBatch(res *models.BatchResult) string {
	st := res.Stats
	var b strings.Builder
	fmt.Fprintf(&b, "Batch %s for %s (client %s)\n", res.BatchID, res.LessonID, res.ClientID)
	fmt.Fprintf(&b, "  Variants:     %d\n", st.TotalVariants)
	fmt.Fprintf(&b, "  Succeeded:    %d (%d cached, %d remote, %d degraded)\n",
		st.SuccessfulGenerations, st.CacheHits, st.RemoteCalls, st.Degraded)
	fmt.Fprintf(&b, "  Failed:       %d\n", st.FailedGenerations)
	fmt.Fprintf(&b, "  Cost:         $%.6f\n", st.TotalCost)
	fmt.Fprintf(&b, "  Duration:     %s\n", st.EndTime.Sub(st.StartTime))
	if st.BudgetStopped {
		b.WriteString("  Budget ceiling reached; remaining variants were not requested.\n")
	}
	if len(res.Failures) == 0 {
		return b.String()
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%-50s %-24s %s\n", "Variant", "Reason", "Error")
	b.WriteString(strings.Repeat("-", 100) + "\n")
	for _, f := range res.Failures {
		fmt.Fprintf(&b, "%-50s %-24s %s\n", f.VariantID, f.Reason, truncate(f.Error, 60))
	}
	return b.String()
}

// formatStats formats orchestrator and cache counters.
func formatStats(st models.OrchestratorStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Batches:      %d\n", st.Batches)
	fmt.Fprintf(&b, "Variants:     %d\n", st.TotalVariants)
	fmt.Fprintf(&b, "Succeeded:    %d\n", st.SuccessfulGenerations)
	fmt.Fprintf(&b, "Failed:       %d\n", st.FailedGenerations)
	fmt.Fprintf(&b, "Cache hits:   %d\n", st.CacheHits)
	fmt.Fprintf(&b, "Remote calls: %d\n", st.RemoteCalls)
	fmt.Fprintf(&b, "Degraded:     %d\n", st.Degraded)
	fmt.Fprintf(&b, "Total cost:   $%.6f\n", st.TotalCost)
	b.WriteString("\n")
	b.WriteString(formatCacheStats(st.Cache))
	return b.String()
}

// formatCacheStats formats per-tier cache counters.
func formatCacheStats(cs models.CacheStats) string {
	total := cs.Hits + cs.Misses
	var rate float64
	if total > 0 {
		rate = float64(cs.Hits) / float64(total) * 100
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Cache: %d hits, %d misses (%.1f%% hit rate), %d warmups\n", cs.Hits, cs.Misses, rate, cs.Warmups)
	fmt.Fprintf(&b, "%-10s %8s %8s %8s %14s\n", "Tier", "Hits", "Misses", "Errors", "WriteFailures")
	b.WriteString(strings.Repeat("-", 52) + "\n")
	for _, t := range []models.TierStats{cs.Volatile, cs.Durable} {
		fmt.Fprintf(&b, "%-10s %8d %8d %8d %14d\n", t.Name, t.Hits, t.Misses, t.Errors, t.WriteFailures)
	}
	return b.String()
}

// formatBudget formats budget status and alerts.
func formatBudget(st models.BudgetStatus, alerts []models.BudgetAlert) string {
	var b strings.Builder
	state := "allowed"
	if !st.Allowed {
		state = "denied (" + st.Reason + ")"
	}
	fmt.Fprintf(&b, "Status: %s\n", state)
	if !st.ResetTime.IsZero() {
		fmt.Fprintf(&b, "Resets: %s\n", st.ResetTime.Format(timeLayout))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%-8s %12s %12s %12s %8s\n", "Period", "Limit", "Spent", "Remaining", "Used%")
	b.WriteString(strings.Repeat("-", 56) + "\n")
	writePeriod(&b, "daily", st.Limits.Daily, st.Current.Daily, st.Remaining.Daily)
	writePeriod(&b, "monthly", st.Limits.Monthly, st.Current.Monthly, st.Remaining.Monthly)
	for _, a := range alerts {
		fmt.Fprintf(&b, "\nALERT: %s spend at %.1f%% (threshold %.0f%%), $%.2f remaining",
			a.Period, a.Percentage, a.Threshold, a.Remaining)
	}
	if len(alerts) > 0 {
		b.WriteString("\n")
	}
	return b.String()
}

func writePeriod(b *strings.Builder, name string, limit, spent, remaining float64) {
	if limit <= 0 {
		fmt.Fprintf(b, "%-8s %12s %12.4f %12s %8s\n", name, "none", spent, "-", "-")
		return
	}
	fmt.Fprintf(b, "%-8s %12.2f %12.4f %12.4f %7.1f%%\n", name, limit, spent, remaining, spent/limit*100)
}

// formatRateStatus formats a client's quota windows.
func formatRateStatus(st ratelimit.Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Client: %s (tier %s)\n\n", st.ClientID, st.Tier)
	fmt.Fprintf(&b, "%-8s %8s %8s %10s  %s\n", "Window", "Count", "Limit", "Remaining", "Resets")
	b.WriteString(strings.Repeat("-", 60) + "\n")
	for _, w := range st.Windows {
		fmt.Fprintf(&b, "%-8s %8d %8d %10d  %s\n", w.Granularity, w.Count, w.Limit, w.Remaining, w.ResetAt.Format(timeLayout))
	}
	return b.String()
}

// formatCostSummary formats cost summaries as a text table.
func formatCostSummary(rows []models.CostSummary) string {
	if len(rows) == 0 {
		return "No cost data found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-12s %-30s %8s %10s %10s %12s\n",
		"Lesson", "Model", "Requests", "Input", "Output", "Cost")
	b.WriteString(strings.Repeat("-", 87) + "\n")
	var total float64
	for _, r := range rows {
		fmt.Fprintf(&b, "%-12s %-30s %8d %10d %10d %12.6f\n",
			r.LessonID, r.Model, r.RequestCount, r.InputTokens, r.OutputTokens, r.TotalCost)
		total += r.TotalCost
	}
	b.WriteString(strings.Repeat("-", 87) + "\n")
	fmt.Fprintf(&b, "%-12s %-30s %8s %10s %10s %12.6f\n", "TOTAL", "", "", "", "", total)
	return b.String()
}

// formatFailures lists currently failed variants and recent failed attempts.
func formatFailures(lessonID string, ids []string, recent []models.Attempt) string {
	if len(ids) == 0 {
		return "No failed variants for " + lessonID + "."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d variant(s) of %s need a retry:\n", len(ids), lessonID)
	for _, id := range ids {
		b.WriteString("  " + id + "\n")
	}
	if len(recent) == 0 {
		return b.String()
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%-20s %-50s %-24s %s\n", "Time", "Variant", "Reason", "Error")
	b.WriteString(strings.Repeat("-", 120) + "\n")
	for _, a := range recent {
		fmt.Fprintf(&b, "%-20s %-50s %-24s %s\n",
			a.CreatedAt.Format(timeLayout), a.VariantID, a.Reason, truncate(a.Error, 40))
	}
	return b.String()
}

func formatInvalidated(lessonID string, n int) string {
	return fmt.Sprintf("Invalidated %d cached variant(s) of %s.", n, lessonID)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
