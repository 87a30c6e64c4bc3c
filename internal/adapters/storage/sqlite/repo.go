package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/owcee/sitepulse/internal/app"
	"github.com/owcee/sitepulse/internal/domain"
	_ "modernc.org/sqlite"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// Repository represents repository data used by this package.
type Repository struct {
	db *sql.DB
}

// Open opens the requested operation.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite has a single writer; tracking merges read and write in one transaction.
	db.SetMaxOpenConns(1)
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// OpenInMemory opens in memory.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, "file::memory:?cache=shared")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	db.SetMaxOpenConns(1)
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the requested operation.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping reports whether the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// migrate handles migrate.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS survey_tracking (
			key TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			project_id TEXT NOT NULL,
			last_survey_date TEXT,
			skipped INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS daily_surveys (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			project_id TEXT NOT NULL,
			survey_date TEXT NOT NULL,
			engineer_name TEXT NOT NULL DEFAULT '',
			site_status TEXT NOT NULL,
			site_closed_reason TEXT NOT NULL DEFAULT '',
			site_closed_reason_other TEXT NOT NULL DEFAULT '',
			task_updates_json TEXT NOT NULL DEFAULT '{}',
			result_json TEXT NOT NULL DEFAULT '{}',
			submitted_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			title TEXT NOT NULL,
			sub_task TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'not_started',
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_survey_tracking_user_project ON survey_tracking(user_id, project_id);`,
		`CREATE INDEX IF NOT EXISTS idx_daily_surveys_project_submitted_at ON daily_surveys(project_id, submitted_at DESC, id DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_project_created_at ON tasks(project_id, created_at ASC, id ASC);`,
	}

	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// GetTrackingRecord returns the tracking record for a (user, project) pair.
func (r *Repository) GetTrackingRecord(ctx context.Context, userID, projectID string) (domain.SurveyTrackingRecord, error) {
	return getTrackingByKey(ctx, r.db, domain.TrackingKey(userID, projectID))
}

// MergeTrackingRecord upserts a tracking record and keeps last_survey_date monotonic.
func (r *Repository) MergeTrackingRecord(ctx context.Context, rec domain.SurveyTrackingRecord) (merged domain.SurveyTrackingRecord, err error) {
	key := rec.Key()
	if strings.TrimSpace(rec.UserID) == "" || strings.TrimSpace(rec.ProjectID) == "" {
		return domain.SurveyTrackingRecord{}, domain.ErrInvalidID
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.SurveyTrackingRecord{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	existing, err := getTrackingByKey(ctx, tx, key)
	switch {
	case errors.Is(err, app.ErrNotFound):
		existing = domain.SurveyTrackingRecord{}
	case err != nil:
		return domain.SurveyTrackingRecord{}, err
	}
	merged = existing.Merge(rec)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO survey_tracking(key, user_id, project_id, last_survey_date, skipped, updated_at)
		VALUES(?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			user_id = excluded.user_id,
			project_id = excluded.project_id,
			last_survey_date = excluded.last_survey_date,
			skipped = excluded.skipped,
			updated_at = excluded.updated_at
	`, key, merged.UserID, merged.ProjectID, surveyDateColumn(merged), boolToInt(merged.Skipped), ts(merged.UpdatedAt))
	if err != nil {
		return domain.SurveyTrackingRecord{}, err
	}
	err = tx.Commit()
	return merged, err
}

// AppendSurvey stores a delivered survey.
func (r *Repository) AppendSurvey(ctx context.Context, s domain.SurveySubmission) error {
	if strings.TrimSpace(s.ID) == "" {
		return domain.ErrInvalidID
	}
	updatesJSON, err := json.Marshal(s.Survey.TaskUpdates)
	if err != nil {
		return fmt.Errorf("encode task updates: %w", err)
	}
	resultJSON, err := json.Marshal(s.Result)
	if err != nil {
		return fmt.Errorf("encode submission result: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO daily_surveys(
			id, user_id, project_id, survey_date, engineer_name, site_status, site_closed_reason,
			site_closed_reason_other, task_updates_json, result_json, submitted_at
		)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		s.ID,
		s.UserID,
		s.Survey.ProjectID,
		ts(s.Survey.Date),
		s.Survey.EngineerName,
		string(s.Survey.SiteStatus),
		s.Survey.SiteClosedReason,
		s.Survey.SiteClosedReasonOther,
		string(updatesJSON),
		string(resultJSON),
		ts(s.SubmittedAt),
	)
	return err
}

// ListSurveys lists a project's delivered surveys, newest first.
func (r *Repository) ListSurveys(ctx context.Context, projectID string, limit int) ([]domain.SurveySubmission, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT
			id, user_id, project_id, survey_date, engineer_name, site_status, site_closed_reason,
			site_closed_reason_other, task_updates_json, result_json, submitted_at
		FROM daily_surveys
		WHERE project_id = ?
		ORDER BY submitted_at DESC, id DESC
		LIMIT ?
	`, projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.SurveySubmission{}
	for rows.Next() {
		submission, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, submission)
	}
	return out, rows.Err()
}

// CreateTask creates task.
func (r *Repository) CreateTask(ctx context.Context, t domain.Task) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tasks(id, project_id, title, sub_task, status, created_at)
		VALUES(?, ?, ?, ?, ?, ?)
	`, t.ID, t.ProjectID, t.Title, t.SubTask, string(t.Status), ts(time.Now()))
	return err
}

// UpdateTaskStatus moves a task to a new lifecycle status.
func (r *Repository) UpdateTaskStatus(ctx context.Context, id string, status domain.TaskStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE tasks SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// ListTasks lists tasks.
func (r *Repository) ListTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, project_id, title, sub_task, status
		FROM tasks
		WHERE project_id = ?
		ORDER BY created_at ASC, id ASC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

// queryRower represents a query-only DB contract used by DB and Tx implementations.
type queryRower interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// getTrackingByKey returns one tracking record.
func getTrackingByKey(ctx context.Context, q queryRower, key string) (domain.SurveyTrackingRecord, error) {
	row := q.QueryRowContext(ctx, `
		SELECT user_id, project_id, last_survey_date, skipped, updated_at
		FROM survey_tracking
		WHERE key = ?
	`, key)
	return scanTracking(row)
}

// scanner represents scanner data used by this package.
type scanner interface {
	Scan(dest ...any) error
}

// scanTracking scans a tracking row.
func scanTracking(s scanner) (domain.SurveyTrackingRecord, error) {
	var (
		rec        domain.SurveyTrackingRecord
		lastRaw    sql.NullString
		skipped    int
		updatedRaw string
	)
	if err := s.Scan(&rec.UserID, &rec.ProjectID, &lastRaw, &skipped, &updatedRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.SurveyTrackingRecord{}, app.ErrNotFound
		}
		return domain.SurveyTrackingRecord{}, err
	}
	if lastRaw.Valid {
		rec.SetStoredSurveyDate(lastRaw.String)
	}
	rec.Skipped = skipped != 0
	rec.UpdatedAt = parseTS(updatedRaw)
	return rec, nil
}

// scanSubmission scans a daily survey row.
func scanSubmission(s scanner) (domain.SurveySubmission, error) {
	var (
		out          domain.SurveySubmission
		dateRaw      string
		statusRaw    string
		updatesRaw   string
		resultRaw    string
		submittedRaw string
	)
	if err := s.Scan(
		&out.ID,
		&out.UserID,
		&out.Survey.ProjectID,
		&dateRaw,
		&out.Survey.EngineerName,
		&statusRaw,
		&out.Survey.SiteClosedReason,
		&out.Survey.SiteClosedReasonOther,
		&updatesRaw,
		&resultRaw,
		&submittedRaw,
	); err != nil {
		return domain.SurveySubmission{}, err
	}
	out.Survey.ID = out.ID
	out.Survey.Date = parseTS(dateRaw)
	out.Survey.SiteStatus = domain.SiteStatus(statusRaw)
	if err := json.Unmarshal([]byte(updatesRaw), &out.Survey.TaskUpdates); err != nil {
		return domain.SurveySubmission{}, fmt.Errorf("decode task updates: %w", err)
	}
	if out.Survey.TaskUpdates == nil {
		out.Survey.TaskUpdates = map[string]domain.TaskUpdate{}
	}
	if err := json.Unmarshal([]byte(resultRaw), &out.Result); err != nil {
		return domain.SurveySubmission{}, fmt.Errorf("decode submission result: %w", err)
	}
	out.SubmittedAt = parseTS(submittedRaw)
	return out, nil
}

// scanTask scans a task row.
func scanTask(s scanner) (domain.Task, error) {
	var (
		task      domain.Task
		statusRaw string
	)
	if err := s.Scan(&task.ID, &task.ProjectID, &task.Title, &task.SubTask, &statusRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Task{}, app.ErrNotFound
		}
		return domain.Task{}, err
	}
	task.Status = domain.TaskStatus(statusRaw)
	return task, nil
}

// translateNoRows handles translate no rows.
func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.ErrNotFound
	}
	return nil
}

// ts handles ts.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// surveyDateColumn encodes last_survey_date; wall-clock dates stay zone-less.
func surveyDateColumn(rec domain.SurveyTrackingRecord) any {
	switch v := rec.StoredSurveyDate().(type) {
	case time.Time:
		return ts(v)
	case string:
		return v
	default:
		return nil
	}
}

// parseTS parses input into a normalized form.
func parseTS(v string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
