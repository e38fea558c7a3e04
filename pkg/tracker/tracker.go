// Package tracker keeps the append-only log of paid generations.
package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ilearnhow/lessongen/pkg/models"
)

// Tracker records and queries generation cost.
type Tracker interface {
	// Record appends a cost record. An empty ID is filled in.
	Record(ctx context.Context, rec models.CostRecord) error
	// Query returns records for a lesson since a given time, newest first.
	// An empty lessonID matches every lesson.
	Query(ctx context.Context, lessonID string, since time.Time) ([]models.CostRecord, error)
	// TotalBetween returns the summed cost of records in [from, to).
	TotalBetween(ctx context.Context, from, to time.Time) (float64, error)
	// DailyTotals returns per-day cost since a given day, oldest first.
	DailyTotals(ctx context.Context, since time.Time) ([]models.DailyCost, error)
	// Summary returns cost aggregated by lesson and model.
	Summary(ctx context.Context, lessonID string) ([]models.CostSummary, error)
	// Close releases resources.
	Close() error
}

// SQLiteTracker implements Tracker with a SQLite database.
type SQLiteTracker struct {
	db *sql.DB
}

const createTable = `
CREATE TABLE IF NOT EXISTS cost_records (
	id TEXT PRIMARY KEY,
	lesson_id TEXT NOT NULL,
	variant_id TEXT NOT NULL,
	client_id TEXT NOT NULL,
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	input_tokens INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	cost REAL NOT NULL,
	day TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cost_lesson_time ON cost_records(lesson_id, created_at);
CREATE INDEX IF NOT EXISTS idx_cost_day ON cost_records(day);
`

// New creates a SQLiteTracker and runs auto-migration.
func New(dbPath string) (*SQLiteTracker, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open tracker db: %w", err)
	}
	// Workers record concurrently through one connection; other handles on the
	// same file wait on the busy timeout.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate tracker db: %w", err)
	}

	return &SQLiteTracker{db: db}, nil
}

// Record appends a cost record.
func (t *SQLiteTracker) Record(ctx context.Context, rec models.CostRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	created := rec.CreatedAt.UTC()
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO cost_records (id, lesson_id, variant_id, client_id, provider, model, input_tokens, output_tokens, cost, day, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.LessonID, rec.VariantID, rec.ClientID, rec.Provider, rec.Model,
		rec.InputTokens, rec.OutputTokens, rec.Cost, created.Format(time.DateOnly), created,
	)
	if err != nil {
		return fmt.Errorf("record cost: %w", err)
	}
	return nil
}

// Query returns records for a lesson since a given time.
func (t *SQLiteTracker) Query(ctx context.Context, lessonID string, since time.Time) ([]models.CostRecord, error) {
	query := `SELECT id, lesson_id, variant_id, client_id, provider, model, input_tokens, output_tokens, cost, created_at
		 FROM cost_records WHERE created_at >= ?`
	args := []any{since.UTC()}
	if lessonID != "" {
		query += ` AND lesson_id = ?`
		args = append(args, lessonID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query cost: %w", err)
	}
	defer rows.Close()

	var records []models.CostRecord
	for rows.Next() {
		var r models.CostRecord
		if err := rows.Scan(&r.ID, &r.LessonID, &r.VariantID, &r.ClientID, &r.Provider, &r.Model,
			&r.InputTokens, &r.OutputTokens, &r.Cost, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cost: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// TotalBetween returns the summed cost of records in [from, to).
func (t *SQLiteTracker) TotalBetween(ctx context.Context, from, to time.Time) (float64, error) {
	var total float64
	err := t.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost), 0) FROM cost_records WHERE day >= ? AND day < ?`,
		from.UTC().Format(time.DateOnly), to.UTC().Format(time.DateOnly),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("total cost: %w", err)
	}
	return total, nil
}

// DailyTotals returns per-day cost since a given day.
func (t *SQLiteTracker) DailyTotals(ctx context.Context, since time.Time) ([]models.DailyCost, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT day, SUM(cost) FROM cost_records WHERE day >= ? GROUP BY day ORDER BY day`,
		since.UTC().Format(time.DateOnly),
	)
	if err != nil {
		return nil, fmt.Errorf("daily cost: %w", err)
	}
	defer rows.Close()

	var out []models.DailyCost
	for rows.Next() {
		var d models.DailyCost
		if err := rows.Scan(&d.Date, &d.Cost); err != nil {
			return nil, fmt.Errorf("scan daily cost: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Summary returns cost aggregated by lesson and model.
func (t *SQLiteTracker) Summary(ctx context.Context, lessonID string) ([]models.CostSummary, error) {
	query := `SELECT lesson_id, model, COUNT(*), SUM(input_tokens), SUM(output_tokens), SUM(cost)
		 FROM cost_records`
	var args []any
	if lessonID != "" {
		query += ` WHERE lesson_id = ?`
		args = append(args, lessonID)
	}
	query += ` GROUP BY lesson_id, model ORDER BY lesson_id, model`

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	defer rows.Close()

	var summaries []models.CostSummary
	for rows.Next() {
		var s models.CostSummary
		if err := rows.Scan(&s.LessonID, &s.Model, &s.RequestCount, &s.InputTokens, &s.OutputTokens, &s.TotalCost); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Close releases the database connection.
func (t *SQLiteTracker) Close() error {
	return t.db.Close()
}
