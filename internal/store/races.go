package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const raceColumns = "id, season, round_number, race_name, circuit_name, country, race_date, is_sprint_weekend"

func scanRace(scanner interface{ Scan(dest ...any) error }) (*Race, error) {
	var (
		id       int64
		season   int
		round    int
		name     string
		circuit  sql.NullString
		country  sql.NullString
		dateRaw  sql.NullString
		isSprint sql.NullInt64
	)
	if err := scanner.Scan(&id, &season, &round, &name, &circuit, &country, &dateRaw, &isSprint); err != nil {
		return nil, err
	}
	race := &Race{
		ID:              id,
		Season:          season,
		RoundNumber:     round,
		RaceName:        name,
		CircuitName:     circuit.String,
		Country:         country.String,
		IsSprintWeekend: isSprint.Int64 != 0,
	}
	if date, err := parseTimeString(dateRaw.String); err == nil {
		race.RaceDate = date
	}
	return race, nil
}

// InsertRace records a calendar event and fills in its assigned ID.
func (s *Store) InsertRace(ctx context.Context, race *Race) error {
	if race == nil {
		return errors.New("nil race")
	}
	res, err := s.execWithRetry(ctx, `
		INSERT INTO races (season, round_number, race_name, circuit_name, country, race_date, is_sprint_weekend)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		race.Season,
		race.RoundNumber,
		race.RaceName,
		nullableString(race.CircuitName),
		nullableString(race.Country),
		race.RaceDate.UTC().Format(time.RFC3339Nano),
		boolToInt(race.IsSprintWeekend),
	)
	if err != nil {
		return fmt.Errorf("insert race %q: %w", race.RaceName, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("race insert id: %w", err)
	}
	race.ID = id
	return nil
}

// GetRace returns the race with the given ID, or nil when absent.
func (s *Store) GetRace(ctx context.Context, id int64) (*Race, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		"SELECT "+raceColumns+" FROM races WHERE id = ?", id)
	race, err := scanRace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get race %d: %w", id, err)
	}
	return race, nil
}

// FindRace looks up a race by season and round, or nil when absent.
func (s *Store) FindRace(ctx context.Context, season, round int) (*Race, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		"SELECT "+raceColumns+" FROM races WHERE season = ? AND round_number = ?", season, round)
	race, err := scanRace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find race %d/%d: %w", season, round, err)
	}
	return race, nil
}

// RacesBeforeRound returns the season's races with a round number at or
// below the given threshold, oldest first. Used when expiring stored
// artifacts for past rounds.
func (s *Store) RacesBeforeRound(ctx context.Context, season, round int) ([]*Race, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+raceColumns+" FROM races WHERE season = ? AND round_number <= ? ORDER BY round_number",
		season, round)
	if err != nil {
		return nil, fmt.Errorf("races before round %d: %w", round, err)
	}
	defer rows.Close()
	var races []*Race
	for rows.Next() {
		race, err := scanRace(rows)
		if err != nil {
			return nil, fmt.Errorf("scan race: %w", err)
		}
		races = append(races, race)
	}
	return races, rows.Err()
}

// LatestRound returns the highest round number recorded for a season, or 0.
func (s *Store) LatestRound(ctx context.Context, season int) (int, error) {
	ctx = ensureContext(ctx)
	var round sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT MAX(round_number) FROM races WHERE season = ?", season).Scan(&round)
	if err != nil {
		return 0, fmt.Errorf("latest round: %w", err)
	}
	return int(round.Int64), nil
}
