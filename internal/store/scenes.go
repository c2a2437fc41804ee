package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const sceneColumns = "id, episode_id, scene_number, character_id, dialogue, action_description, audio_description, status, source_image_path, video_clip_path, generation_started_at, generation_completed_at, generation_time_ms, retry_count, last_error, created_at"

func scanScene(scanner interface{ Scan(dest ...any) error }) (*Scene, error) {
	var (
		id          int64
		episodeID   int64
		sceneNumber int
		characterID sql.NullInt64
		dialogue    sql.NullString
		action      sql.NullString
		audio       sql.NullString
		statusStr   string
		sourceImage sql.NullString
		videoClip   sql.NullString
		genStartRaw sql.NullString
		genDoneRaw  sql.NullString
		genTimeMs   sql.NullInt64
		retryCount  sql.NullInt64
		lastError   sql.NullString
		createdRaw  sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&episodeID,
		&sceneNumber,
		&characterID,
		&dialogue,
		&action,
		&audio,
		&statusStr,
		&sourceImage,
		&videoClip,
		&genStartRaw,
		&genDoneRaw,
		&genTimeMs,
		&retryCount,
		&lastError,
		&createdRaw,
	); err != nil {
		return nil, err
	}

	scene := &Scene{
		ID:                id,
		EpisodeID:         episodeID,
		SceneNumber:       sceneNumber,
		Dialogue:          dialogue.String,
		ActionDescription: action.String,
		AudioDescription:  audio.String,
		Status:            SceneStatus(statusStr),
		SourceImagePath:   sourceImage.String,
		VideoClipPath:     videoClip.String,
		GenerationTimeMs:  int(genTimeMs.Int64),
		RetryCount:        int(retryCount.Int64),
		LastError:         lastError.String,
	}
	if characterID.Valid {
		v := characterID.Int64
		scene.CharacterID = &v
	}
	scene.GenerationStartedAt = timePointer(genStartRaw.String)
	scene.GenerationCompletedAt = timePointer(genDoneRaw.String)
	if created, err := parseTimeString(createdRaw.String); err == nil {
		scene.CreatedAt = created
	}
	return scene, nil
}

// CreateScenes inserts a scene batch for an episode in a single transaction.
// Scene IDs are filled in on success.
func (s *Store) CreateScenes(ctx context.Context, scenes []*Scene) error {
	if len(scenes) == 0 {
		return nil
	}
	ctx = ensureContext(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin scene tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for _, scene := range scenes {
		if scene == nil {
			return errors.New("nil scene in batch")
		}
		scene.CreatedAt = now
		if scene.Status == "" {
			scene.Status = ScenePending
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO scenes (episode_id, scene_number, character_id, dialogue, action_description, audio_description, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			scene.EpisodeID,
			scene.SceneNumber,
			nullableInt64(scene.CharacterID),
			nullableString(scene.Dialogue),
			nullableString(scene.ActionDescription),
			nullableString(scene.AudioDescription),
			string(scene.Status),
			formatTime(scene.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert scene %d: %w", scene.SceneNumber, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("scene insert id: %w", err)
		}
		scene.ID = id
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit scenes: %w", err)
	}
	return nil
}

// ScenesForEpisode returns every scene of an episode ordered by scene number.
func (s *Store) ScenesForEpisode(ctx context.Context, episodeID int64) ([]*Scene, error) {
	return s.queryScenes(ctx,
		"SELECT "+sceneColumns+" FROM scenes WHERE episode_id = ? ORDER BY scene_number", episodeID)
}

// CompletedScenes returns the completed scenes of an episode ordered by
// scene number, ready for stitching.
func (s *Store) CompletedScenes(ctx context.Context, episodeID int64) ([]*Scene, error) {
	return s.queryScenes(ctx,
		"SELECT "+sceneColumns+" FROM scenes WHERE episode_id = ? AND status = ? ORDER BY scene_number",
		episodeID, string(SceneCompleted))
}

func (s *Store) queryScenes(ctx context.Context, query string, args ...any) ([]*Scene, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query scenes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var scenes []*Scene
	for rows.Next() {
		scene, err := scanScene(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scene: %w", err)
		}
		scenes = append(scenes, scene)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query scenes: %w", err)
	}
	return scenes, nil
}

// UpdateScene persists the mutable fields of a scene.
func (s *Store) UpdateScene(ctx context.Context, scene *Scene) error {
	if scene == nil {
		return errors.New("nil scene")
	}
	res, err := s.execWithRetry(ctx, `
		UPDATE scenes SET
			character_id = ?,
			dialogue = ?,
			action_description = ?,
			audio_description = ?,
			status = ?,
			source_image_path = ?,
			video_clip_path = ?,
			generation_started_at = ?,
			generation_completed_at = ?,
			generation_time_ms = ?,
			retry_count = ?,
			last_error = ?
		WHERE id = ?`,
		nullableInt64(scene.CharacterID),
		nullableString(scene.Dialogue),
		nullableString(scene.ActionDescription),
		nullableString(scene.AudioDescription),
		string(scene.Status),
		nullableString(scene.SourceImagePath),
		nullableString(scene.VideoClipPath),
		nullableTime(scene.GenerationStartedAt),
		nullableTime(scene.GenerationCompletedAt),
		scene.GenerationTimeMs,
		scene.RetryCount,
		nullableString(scene.LastError),
		scene.ID,
	)
	if err != nil {
		return fmt.Errorf("update scene %d: %w", scene.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update scene %d: rows affected: %w", scene.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("update scene %d: no such scene", scene.ID)
	}
	return nil
}
