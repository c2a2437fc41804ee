package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RecordUsage appends one entry to the API usage ledger.
func (s *Store) RecordUsage(ctx context.Context, usage *Usage) error {
	if usage == nil {
		return errors.New("nil usage")
	}
	usage.CreatedAt = time.Now().UTC()

	res, err := s.execWithRetry(ctx, `
		INSERT INTO api_usage (episode_id, scene_id, provider, endpoint, input_tokens, output_tokens, cost_usd, response_time_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		usage.EpisodeID,
		nullableInt64(usage.SceneID),
		usage.Provider,
		nullableString(usage.Endpoint),
		usage.InputTokens,
		usage.OutputTokens,
		usage.CostUSD,
		usage.ResponseTimeMs,
		formatTime(usage.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("usage insert id: %w", err)
	}
	usage.ID = id
	return nil
}

// EpisodeCost sums the ledger entries for one episode.
func (s *Store) EpisodeCost(ctx context.Context, episodeID int64) (float64, error) {
	ctx = ensureContext(ctx)
	var total float64
	err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(cost_usd), 0) FROM api_usage WHERE episode_id = ?",
		episodeID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("episode cost: %w", err)
	}
	return total, nil
}
