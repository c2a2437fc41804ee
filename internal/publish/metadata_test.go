package publish

import (
	"strings"
	"testing"
	"time"

	"gridlock/internal/store"
)

func TestBuildMetadataTitleCasing(t *testing.T) {
	ep := &store.Episode{
		ID:          7,
		EpisodeType: store.TypePostRace,
		Title:       "the stewards have opinions",
		Description: "Everyone is very calm about the penalty.",
	}
	race := &store.Race{
		ID:       3,
		Season:   2026,
		RoundNumber: 8,
		RaceName: "British Grand Prix",
		RaceDate: time.Date(2026, 7, 5, 14, 0, 0, 0, time.UTC),
	}

	meta := BuildMetadata(ep, race, "gridlock")

	if meta.Title != "The Stewards Have Opinions | British Grand Prix" {
		t.Fatalf("unexpected title %q", meta.Title)
	}
	if !strings.Contains(meta.Description, "2026 Season, Round 8: British Grand Prix") {
		t.Fatalf("description missing race line:\n%s", meta.Description)
	}
	if !strings.Contains(meta.Description, descriptionFooter) {
		t.Fatalf("description missing footer")
	}

	wantTags := map[string]bool{"f1": false, "british grand prix": false, "race reaction": false, "gridlock": false}
	for _, tag := range meta.Tags {
		if _, ok := wantTags[tag]; ok {
			wantTags[tag] = true
		}
	}
	for tag, seen := range wantTags {
		if !seen {
			t.Fatalf("missing tag %q in %v", tag, meta.Tags)
		}
	}
}

func TestBuildMetadataFallbackTitle(t *testing.T) {
	ep := &store.Episode{ID: 12, EpisodeType: store.TypeWeeklyRecap}

	meta := BuildMetadata(ep, nil, "")
	if meta.Title != "Weekly Recap Episode 12" {
		t.Fatalf("unexpected fallback title %q", meta.Title)
	}
	if strings.Contains(meta.Title, "|") {
		t.Fatalf("fallback title should not carry a race suffix: %q", meta.Title)
	}
}

func TestBuildMetadataDeduplicatesTags(t *testing.T) {
	ep := &store.Episode{ID: 1, EpisodeType: store.TypePostRace, Title: "Race Day"}
	meta := BuildMetadata(ep, nil, "f1")

	seen := map[string]int{}
	for _, tag := range meta.Tags {
		seen[tag]++
	}
	if seen["f1"] != 1 {
		t.Fatalf("expected f1 tag once, got %d", seen["f1"])
	}
}
