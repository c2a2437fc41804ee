package testsupport

import (
	"context"
	"testing"
	"time"

	"gridlock/internal/config"
	"gridlock/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewEpisode creates a pending episode for tests using the provided store.
func NewEpisode(t testing.TB, st *store.Store, title string, episodeType store.EpisodeType) *store.Episode {
	t.Helper()

	ep := &store.Episode{
		EpisodeType: episodeType,
		Title:       title,
		SceneCount:  4,
	}
	if err := st.CreateEpisode(context.Background(), ep); err != nil {
		t.Fatalf("store.CreateEpisode: %v", err)
	}
	return ep
}

// NewRace inserts a race row for tests using the provided store.
func NewRace(t testing.TB, st *store.Store, season, round int, name string) *store.Race {
	t.Helper()

	race := &store.Race{
		Season:      season,
		RoundNumber: round,
		RaceName:    name,
		CircuitName: name + " Circuit",
		RaceDate:    time.Now().UTC(),
	}
	if err := st.InsertRace(context.Background(), race); err != nil {
		t.Fatalf("store.InsertRace: %v", err)
	}
	return race
}

// SeedCharacter inserts an active cast member for tests.
func SeedCharacter(t testing.TB, st *store.Store, name string) *store.Character {
	t.Helper()

	ch := &store.Character{
		Name:        name,
		DisplayName: name,
		IsActive:    true,
		Personality: "deadpan",
	}
	if err := st.InsertCharacter(context.Background(), ch); err != nil {
		t.Fatalf("store.InsertCharacter: %v", err)
	}
	return ch
}
