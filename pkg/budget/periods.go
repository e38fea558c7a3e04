package budget

import "time"

const (
	dailyTTL   = 7 * 24 * time.Hour
	monthlyTTL = 35 * 24 * time.Hour
)

// DailyKey returns the accumulator key for the UTC day containing t.
func DailyKey(t time.Time) string {
	return "cost:daily:" + t.UTC().Format(time.DateOnly)
}

// MonthlyKey returns the accumulator key for the UTC month containing t.
func MonthlyKey(t time.Time) string {
	return "cost:monthly:" + t.UTC().Format("2006-01")
}

func dayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// NextMidnight returns the start of the next UTC day.
func NextMidnight(t time.Time) time.Time {
	return dayStart(t).AddDate(0, 0, 1)
}

// NextMonth returns the start of the next UTC month.
func NextMonth(t time.Time) time.Time {
	return monthStart(t).AddDate(0, 1, 0)
}
