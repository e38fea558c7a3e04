// Package audit keeps the per-variant attempt ledger used to resume failed
// generations across runs.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/ilearnhow/lessongen/pkg/clock"
	"github.com/ilearnhow/lessongen/pkg/models"
	_ "modernc.org/sqlite"
)

const createAttempts = `CREATE TABLE IF NOT EXISTS generation_attempts (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	batch_id   TEXT NOT NULL,
	lesson_id  TEXT NOT NULL,
	variant_id TEXT NOT NULL,
	client_id  TEXT NOT NULL,
	status     TEXT NOT NULL,
	reason     TEXT NOT NULL DEFAULT '',
	error      TEXT NOT NULL DEFAULT '',
	provider   TEXT NOT NULL DEFAULT '',
	model      TEXT NOT NULL DEFAULT '',
	cost       REAL NOT NULL DEFAULT 0,
	latency_ms INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attempts_lesson ON generation_attempts(lesson_id, variant_id);
CREATE INDEX IF NOT EXISTS idx_attempts_batch ON generation_attempts(batch_id);
CREATE INDEX IF NOT EXISTS idx_attempts_created ON generation_attempts(created_at);`

// Ledger writes and queries generation attempts in SQLite.
type Ledger struct {
	db            *sql.DB
	clock         clock.Clock
	retentionDays int
	done          chan struct{}
	wg            sync.WaitGroup
}

// New opens the ledger database, creates the schema and starts the
// retention loop. A retentionDays of zero or less keeps everything.
func New(dbPath string, retentionDays int, clk clock.Clock) (*Ledger, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createAttempts); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate ledger db: %w", err)
	}
	if clk == nil {
		clk = clock.Real{}
	}

	l := &Ledger{
		db:            db,
		clock:         clk,
		retentionDays: retentionDays,
		done:          make(chan struct{}),
	}
	if retentionDays > 0 {
		l.wg.Add(1)
		go l.retentionLoop()
	}
	return l, nil
}

// Record inserts attempts in a single transaction.
func (l *Ledger) Record(ctx context.Context, attempts ...models.Attempt) error {
	if l == nil || l.db == nil || len(attempts) == 0 {
		return nil
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO generation_attempts
		(batch_id, lesson_id, variant_id, client_id, status, reason, error,
		 provider, model, cost, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare attempt insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range attempts {
		if a.CreatedAt.IsZero() {
			a.CreatedAt = l.clock.Now()
		}
		if _, err := stmt.ExecContext(ctx,
			a.BatchID, a.LessonID, a.VariantID, a.ClientID, string(a.Status),
			a.Reason, a.Error, a.Provider, a.Model, a.Cost, a.LatencyMs,
			a.CreatedAt.UnixMilli(),
		); err != nil {
			return fmt.Errorf("insert attempt: %w", err)
		}
	}
	return tx.Commit()
}

// Query returns attempts matching opts, newest first.
func (l *Ledger) Query(ctx context.Context, opts models.AttemptQueryOpts) ([]models.Attempt, error) {
	q := `SELECT batch_id, lesson_id, variant_id, client_id, status, reason, error,
		provider, model, cost, latency_ms, created_at
		FROM generation_attempts WHERE 1=1`
	var args []any

	if opts.LessonID != "" {
		q += " AND lesson_id = ?"
		args = append(args, opts.LessonID)
	}
	if opts.VariantID != "" {
		q += " AND variant_id = ?"
		args = append(args, opts.VariantID)
	}
	if opts.BatchID != "" {
		q += " AND batch_id = ?"
		args = append(args, opts.BatchID)
	}
	if opts.Status != "" {
		q += " AND status = ?"
		args = append(args, string(opts.Status))
	}
	if !opts.Since.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, opts.Since.UnixMilli())
	}

	q += " ORDER BY created_at DESC, id DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var out []models.Attempt
	for rows.Next() {
		var a models.Attempt
		var status string
		var created int64
		if err := rows.Scan(
			&a.BatchID, &a.LessonID, &a.VariantID, &a.ClientID, &status,
			&a.Reason, &a.Error, &a.Provider, &a.Model, &a.Cost, &a.LatencyMs,
			&created,
		); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.Status = models.AttemptStatus(status)
		a.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

// FailedVariants returns the variants of a lesson whose most recent attempt
// failed, sorted by id.
func (l *Ledger) FailedVariants(ctx context.Context, lessonID string) ([]string, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT variant_id FROM (
			SELECT variant_id, status,
				ROW_NUMBER() OVER (PARTITION BY variant_id ORDER BY created_at DESC, id DESC) AS rn
			FROM generation_attempts WHERE lesson_id = ?
		) WHERE rn = 1 AND status = ? ORDER BY variant_id`,
		lessonID, string(models.AttemptFailed))
	if err != nil {
		return nil, fmt.Errorf("query failed variants: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan failed variant: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Stats returns attempt counts grouped by lesson and status.
func (l *Ledger) Stats(ctx context.Context) ([]models.AttemptStat, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT lesson_id, status, count(*) FROM generation_attempts
		 GROUP BY lesson_id, status ORDER BY lesson_id, status`)
	if err != nil {
		return nil, fmt.Errorf("attempt stats: %w", err)
	}
	defer rows.Close()

	var stats []models.AttemptStat
	for rows.Next() {
		var s models.AttemptStat
		var status string
		if err := rows.Scan(&s.LessonID, &status, &s.Count); err != nil {
			return nil, fmt.Errorf("scan attempt stat: %w", err)
		}
		s.Status = models.AttemptStatus(status)
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Cleanup deletes attempts older than the retention period.
func (l *Ledger) Cleanup(ctx context.Context) (int64, error) {
	cutoff := l.clock.Now().AddDate(0, 0, -l.retentionDays)
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM generation_attempts WHERE created_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("ledger cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close stops the retention goroutine and closes the database.
func (l *Ledger) Close() error {
	close(l.done)
	l.wg.Wait()
	return l.db.Close()
}

func (l *Ledger) retentionLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			_, _ = l.Cleanup(context.Background())
		}
	}
}
