package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const episodeColumns = "id, race_id, episode_type, title, description, status, triggered_at, generation_started_at, generation_completed_at, upload_started_at, published_at, final_video_path, youtube_video_id, youtube_url, duration_seconds, scene_count, script_tokens_used, script_cost_usd, synth_calls, retry_count, last_error, last_error_kind, created_at, updated_at"

func scanEpisode(scanner interface{ Scan(dest ...any) error }) (*Episode, error) {
	var (
		id            int64
		raceID        sql.NullInt64
		episodeType   string
		title         sql.NullString
		description   sql.NullString
		statusStr     string
		triggeredRaw  sql.NullString
		genStartRaw   sql.NullString
		genDoneRaw    sql.NullString
		upStartRaw    sql.NullString
		publishedRaw  sql.NullString
		finalVideo    sql.NullString
		youtubeID     sql.NullString
		youtubeURL    sql.NullString
		duration      sql.NullInt64
		sceneCount    sql.NullInt64
		scriptTokens  sql.NullInt64
		scriptCost    sql.NullFloat64
		synthCalls    sql.NullInt64
		retryCount    sql.NullInt64
		lastError     sql.NullString
		lastErrorKind sql.NullString
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&raceID,
		&episodeType,
		&title,
		&description,
		&statusStr,
		&triggeredRaw,
		&genStartRaw,
		&genDoneRaw,
		&upStartRaw,
		&publishedRaw,
		&finalVideo,
		&youtubeID,
		&youtubeURL,
		&duration,
		&sceneCount,
		&scriptTokens,
		&scriptCost,
		&synthCalls,
		&retryCount,
		&lastError,
		&lastErrorKind,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	ep := &Episode{
		ID:               id,
		EpisodeType:      EpisodeType(episodeType),
		Title:            title.String,
		Description:      description.String,
		Status:           EpisodeStatus(statusStr),
		FinalVideoPath:   finalVideo.String,
		YouTubeVideoID:   youtubeID.String,
		YouTubeURL:       youtubeURL.String,
		DurationSeconds:  duration.Int64,
		SceneCount:       int(sceneCount.Int64),
		ScriptTokensUsed: scriptTokens.Int64,
		ScriptCostUSD:    scriptCost.Float64,
		SynthCalls:       synthCalls.Int64,
		RetryCount:       int(retryCount.Int64),
		LastError:        lastError.String,
		LastErrorKind:    lastErrorKind.String,
	}
	if raceID.Valid {
		v := raceID.Int64
		ep.RaceID = &v
	}
	if triggered, err := parseTimeString(triggeredRaw.String); err == nil {
		ep.TriggeredAt = triggered
	}
	ep.GenerationStartedAt = timePointer(genStartRaw.String)
	ep.GenerationCompletedAt = timePointer(genDoneRaw.String)
	ep.UploadStartedAt = timePointer(upStartRaw.String)
	ep.PublishedAt = timePointer(publishedRaw.String)
	if created, err := parseTimeString(createdRaw.String); err == nil {
		ep.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		ep.UpdatedAt = updated
	}
	return ep, nil
}

// CreateEpisode inserts a new episode record and fills in its assigned ID.
func (s *Store) CreateEpisode(ctx context.Context, ep *Episode) error {
	if ep == nil {
		return errors.New("nil episode")
	}
	now := time.Now().UTC()
	if ep.TriggeredAt.IsZero() {
		ep.TriggeredAt = now
	}
	ep.CreatedAt = now
	ep.UpdatedAt = now
	if ep.Status == "" {
		ep.Status = EpisodePending
	}

	res, err := s.execWithRetry(ctx, `
		INSERT INTO episodes (race_id, episode_type, title, description, status, triggered_at, scene_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullableInt64(ep.RaceID),
		string(ep.EpisodeType),
		ep.Title,
		nullableString(ep.Description),
		string(ep.Status),
		formatTime(ep.TriggeredAt),
		ep.SceneCount,
		formatTime(ep.CreatedAt),
		formatTime(ep.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert episode: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("episode insert id: %w", err)
	}
	ep.ID = id
	return nil
}

// GetEpisode returns the episode with the given ID, or nil when absent.
func (s *Store) GetEpisode(ctx context.Context, id int64) (*Episode, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		"SELECT "+episodeColumns+" FROM episodes WHERE id = ?", id)
	ep, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get episode %d: %w", id, err)
	}
	return ep, nil
}

// FindEpisodeByRaceAndType returns the most recent episode for a race and
// episode type, or nil when none exists. Used for duplicate detection.
func (s *Store) FindEpisodeByRaceAndType(ctx context.Context, raceID int64, episodeType EpisodeType) (*Episode, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		"SELECT "+episodeColumns+" FROM episodes WHERE race_id = ? AND episode_type = ? ORDER BY id DESC LIMIT 1",
		raceID, string(episodeType))
	ep, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find episode: %w", err)
	}
	return ep, nil
}

// UpdateEpisode persists every mutable field of the episode.
func (s *Store) UpdateEpisode(ctx context.Context, ep *Episode) error {
	if ep == nil {
		return errors.New("nil episode")
	}
	ep.UpdatedAt = time.Now().UTC()

	res, err := s.execWithRetry(ctx, `
		UPDATE episodes SET
			race_id = ?,
			episode_type = ?,
			title = ?,
			description = ?,
			status = ?,
			generation_started_at = ?,
			generation_completed_at = ?,
			upload_started_at = ?,
			published_at = ?,
			final_video_path = ?,
			youtube_video_id = ?,
			youtube_url = ?,
			duration_seconds = ?,
			scene_count = ?,
			script_tokens_used = ?,
			script_cost_usd = ?,
			synth_calls = ?,
			retry_count = ?,
			last_error = ?,
			last_error_kind = ?,
			updated_at = ?
		WHERE id = ?`,
		nullableInt64(ep.RaceID),
		string(ep.EpisodeType),
		ep.Title,
		nullableString(ep.Description),
		string(ep.Status),
		nullableTime(ep.GenerationStartedAt),
		nullableTime(ep.GenerationCompletedAt),
		nullableTime(ep.UploadStartedAt),
		nullableTime(ep.PublishedAt),
		nullableString(ep.FinalVideoPath),
		nullableString(ep.YouTubeVideoID),
		nullableString(ep.YouTubeURL),
		ep.DurationSeconds,
		ep.SceneCount,
		ep.ScriptTokensUsed,
		ep.ScriptCostUSD,
		ep.SynthCalls,
		ep.RetryCount,
		nullableString(ep.LastError),
		nullableString(ep.LastErrorKind),
		formatTime(ep.UpdatedAt),
		ep.ID,
	)
	if err != nil {
		return fmt.Errorf("update episode %d: %w", ep.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update episode %d: rows affected: %w", ep.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("update episode %d: no such episode", ep.ID)
	}
	return nil
}

// UpdateEpisodeStatus transitions an episode's status without touching other fields.
func (s *Store) UpdateEpisodeStatus(ctx context.Context, id int64, status EpisodeStatus) error {
	res, err := s.execWithRetry(ctx,
		"UPDATE episodes SET status = ?, updated_at = ? WHERE id = ?",
		string(status), formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("update episode %d status: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update episode %d status: rows affected: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("update episode %d status: no such episode", id)
	}
	return nil
}

// ClaimPendingEpisode atomically takes ownership of the oldest pending
// episode by moving it to generating. Returns nil when nothing is pending.
func (s *Store) ClaimPendingEpisode(ctx context.Context) (*Episode, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		"SELECT id FROM episodes WHERE status = ? ORDER BY id LIMIT 1",
		string(EpisodePending))
	var id int64
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find pending episode: %w", err)
	}

	now := time.Now().UTC()
	res, err := s.execWithRetry(ctx,
		"UPDATE episodes SET status = ?, generation_started_at = ?, updated_at = ? WHERE id = ? AND status = ?",
		string(EpisodeGenerating), formatTime(now), formatTime(now), id, string(EpisodePending))
	if err != nil {
		return nil, fmt.Errorf("claim episode %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("claim episode %d: rows affected: %w", id, err)
	}
	if affected == 0 {
		// Another worker won the race; caller will poll again.
		return nil, nil
	}
	return s.GetEpisode(ctx, id)
}

// ResetEpisode returns a failed episode to pending so the workflow can
// pick it up again. The stored error is cleared; the failure stays
// visible in the logs.
func (s *Store) ResetEpisode(ctx context.Context, id int64) error {
	res, err := s.execWithRetry(ctx,
		"UPDATE episodes SET status = ?, last_error = NULL, last_error_kind = NULL, updated_at = ? WHERE id = ? AND status = ?",
		string(EpisodePending), formatTime(time.Now().UTC()), id, string(EpisodeFailed))
	if err != nil {
		return fmt.Errorf("reset episode %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reset episode %d: rows affected: %w", id, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListEpisodes returns episodes filtered by status, newest first. An empty
// status returns everything.
func (s *Store) ListEpisodes(ctx context.Context, status EpisodeStatus, limit int) ([]*Episode, error) {
	ctx = ensureContext(ctx)
	query := "SELECT " + episodeColumns + " FROM episodes"
	args := []any{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var episodes []*Episode
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		episodes = append(episodes, ep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	return episodes, nil
}

// Health summarizes episode counts per status for status reporting.
func (s *Store) Health(ctx context.Context) (*HealthSummary, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		"SELECT status, COUNT(1) FROM episodes GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("episode health: %w", err)
	}
	defer func() { _ = rows.Close() }()

	summary := &HealthSummary{}
	for rows.Next() {
		var statusStr string
		var count int
		if err := rows.Scan(&statusStr, &count); err != nil {
			return nil, fmt.Errorf("scan episode health: %w", err)
		}
		summary.Total += count
		switch EpisodeStatus(statusStr) {
		case EpisodePending:
			summary.Pending += count
		case EpisodeGenerating, EpisodeStitching, EpisodeUploading:
			summary.Processing += count
		case EpisodePublished:
			summary.Published += count
		case EpisodeFailed:
			summary.Failed += count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("episode health: %w", err)
	}
	return summary, nil
}
