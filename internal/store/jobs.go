package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const jobColumns = "id, race_id, trigger_type, scheduled_for, status, episode_id, description, created_at, updated_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*ScheduledJob, error) {
	var (
		id           int64
		raceID       sql.NullInt64
		triggerType  string
		scheduledRaw sql.NullString
		statusStr    string
		episodeID    sql.NullInt64
		description  sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
	)
	if err := scanner.Scan(&id, &raceID, &triggerType, &scheduledRaw, &statusStr, &episodeID, &description, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	job := &ScheduledJob{
		ID:          id,
		TriggerType: EpisodeType(triggerType),
		Status:      JobStatus(statusStr),
		Description: description.String,
	}
	if raceID.Valid {
		v := raceID.Int64
		job.RaceID = &v
	}
	if episodeID.Valid {
		v := episodeID.Int64
		job.EpisodeID = &v
	}
	if scheduled, err := parseTimeString(scheduledRaw.String); err == nil {
		job.ScheduledFor = scheduled
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}

// CreateScheduledJob records a calendar trigger awaiting launch.
func (s *Store) CreateScheduledJob(ctx context.Context, job *ScheduledJob) error {
	if job == nil {
		return errors.New("nil job")
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = JobScheduled
	}

	res, err := s.execWithRetry(ctx, `
		INSERT INTO scheduled_jobs (race_id, trigger_type, scheduled_for, status, episode_id, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		nullableInt64(job.RaceID),
		string(job.TriggerType),
		formatTime(job.ScheduledFor),
		string(job.Status),
		nullableInt64(job.EpisodeID),
		nullableString(job.Description),
		formatTime(job.CreatedAt),
		formatTime(job.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert scheduled job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("scheduled job insert id: %w", err)
	}
	job.ID = id
	return nil
}

// GetScheduledJob returns the job with the given ID, or nil when absent.
func (s *Store) GetScheduledJob(ctx context.Context, id int64) (*ScheduledJob, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		"SELECT "+jobColumns+" FROM scheduled_jobs WHERE id = ?", id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get scheduled job %d: %w", id, err)
	}
	return job, nil
}

// DueJobs returns scheduled jobs whose trigger time has passed, oldest first.
func (s *Store) DueJobs(ctx context.Context, now time.Time) ([]*ScheduledJob, error) {
	return s.queryJobs(ctx,
		"SELECT "+jobColumns+" FROM scheduled_jobs WHERE status = ? AND scheduled_for <= ? ORDER BY scheduled_for",
		string(JobScheduled), formatTime(now))
}

// ListScheduledJobs returns jobs filtered by status, soonest first. An empty
// status returns everything.
func (s *Store) ListScheduledJobs(ctx context.Context, status JobStatus) ([]*ScheduledJob, error) {
	if status == "" {
		return s.queryJobs(ctx,
			"SELECT "+jobColumns+" FROM scheduled_jobs ORDER BY scheduled_for")
	}
	return s.queryJobs(ctx,
		"SELECT "+jobColumns+" FROM scheduled_jobs WHERE status = ? ORDER BY scheduled_for",
		string(status))
}

// HasScheduledJob reports whether a job with the same race, trigger, and
// time already exists. Calendar syncs use this to stay idempotent.
func (s *Store) HasScheduledJob(ctx context.Context, raceID *int64, trigger EpisodeType, scheduledFor time.Time) (bool, error) {
	ctx = ensureContext(ctx)
	query := "SELECT COUNT(*) FROM scheduled_jobs WHERE trigger_type = ? AND scheduled_for = ?"
	args := []any{string(trigger), formatTime(scheduledFor)}
	if raceID != nil {
		query += " AND race_id = ?"
		args = append(args, *raceID)
	} else {
		query += " AND race_id IS NULL"
	}
	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("check scheduled job: %w", err)
	}
	return count > 0, nil
}

func (s *Store) queryJobs(ctx context.Context, query string, args ...any) ([]*ScheduledJob, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query scheduled jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*ScheduledJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scheduled job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query scheduled jobs: %w", err)
	}
	return jobs, nil
}

// MarkJobRunning transitions a scheduled job to running and links the
// episode it launched. The transition only succeeds from scheduled.
func (s *Store) MarkJobRunning(ctx context.Context, jobID, episodeID int64) error {
	res, err := s.execWithRetry(ctx,
		"UPDATE scheduled_jobs SET status = ?, episode_id = ?, updated_at = ? WHERE id = ? AND status = ?",
		string(JobRunning), episodeID, formatTime(time.Now().UTC()), jobID, string(JobScheduled))
	if err != nil {
		return fmt.Errorf("mark job %d running: %w", jobID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark job %d running: rows affected: %w", jobID, err)
	}
	if affected == 0 {
		return fmt.Errorf("mark job %d running: job not in scheduled state", jobID)
	}
	return nil
}

// FinishJob records the terminal status of a launched job.
func (s *Store) FinishJob(ctx context.Context, jobID int64, status JobStatus) error {
	res, err := s.execWithRetry(ctx,
		"UPDATE scheduled_jobs SET status = ?, updated_at = ? WHERE id = ?",
		string(status), formatTime(time.Now().UTC()), jobID)
	if err != nil {
		return fmt.Errorf("finish job %d: %w", jobID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish job %d: rows affected: %w", jobID, err)
	}
	if affected == 0 {
		return fmt.Errorf("finish job %d: no such job", jobID)
	}
	return nil
}
