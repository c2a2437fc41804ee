package store_test

import (
	"context"
	"testing"
	"time"

	"gridlock/internal/store"
	"gridlock/internal/testsupport"
)

func TestOpenCreatesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	ep := testsupport.NewEpisode(t, st, "Japanese GP Recap", store.TypePostRace)
	if ep.ID == 0 {
		t.Fatal("expected episode ID to be assigned")
	}

	fetched, err := st.GetEpisode(ctx, ep.ID)
	if err != nil {
		t.Fatalf("GetEpisode failed: %v", err)
	}
	if fetched == nil || fetched.Title != "Japanese GP Recap" {
		t.Fatalf("unexpected fetched episode: %#v", fetched)
	}
	if fetched.Status != store.EpisodePending {
		t.Fatalf("expected pending status, got %s", fetched.Status)
	}
}

func TestClaimPendingEpisode(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := testsupport.NewEpisode(t, st, "Episode One", store.TypePostRace)
	testsupport.NewEpisode(t, st, "Episode Two", store.TypeWeeklyRecap)

	claimed, err := st.ClaimPendingEpisode(ctx)
	if err != nil {
		t.Fatalf("ClaimPendingEpisode failed: %v", err)
	}
	if claimed == nil || claimed.ID != first.ID {
		t.Fatalf("expected oldest pending episode, got %#v", claimed)
	}
	if claimed.Status != store.EpisodeGenerating {
		t.Fatalf("expected generating status, got %s", claimed.Status)
	}
	if claimed.GenerationStartedAt == nil {
		t.Fatal("expected generation started timestamp")
	}

	second, err := st.ClaimPendingEpisode(ctx)
	if err != nil {
		t.Fatalf("second claim failed: %v", err)
	}
	if second == nil || second.ID == first.ID {
		t.Fatalf("expected second episode on next claim, got %#v", second)
	}

	third, err := st.ClaimPendingEpisode(ctx)
	if err != nil {
		t.Fatalf("third claim failed: %v", err)
	}
	if third != nil {
		t.Fatalf("expected no pending episodes, got %#v", third)
	}
}

func TestEpisodeCountersRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	ep := testsupport.NewEpisode(t, st, "Counter Episode", store.TypePostRace)
	ep.DurationSeconds = 118
	ep.ScriptTokensUsed = 2400
	ep.ScriptCostUSD = 0.0125
	ep.SynthCalls = 26
	if err := st.UpdateEpisode(ctx, ep); err != nil {
		t.Fatalf("UpdateEpisode failed: %v", err)
	}

	fetched, err := st.GetEpisode(ctx, ep.ID)
	if err != nil {
		t.Fatalf("GetEpisode failed: %v", err)
	}
	if fetched.DurationSeconds != 118 {
		t.Fatalf("DurationSeconds = %d, want 118", fetched.DurationSeconds)
	}
	if fetched.ScriptTokensUsed != 2400 || fetched.SynthCalls != 26 {
		t.Fatalf("counters = %d/%d, want 2400/26", fetched.ScriptTokensUsed, fetched.SynthCalls)
	}
	if fetched.ScriptCostUSD != 0.0125 {
		t.Fatalf("ScriptCostUSD = %v, want 0.0125", fetched.ScriptCostUSD)
	}
}

func TestResetEpisodeOnlyFromFailed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	ep := testsupport.NewEpisode(t, st, "Broken Episode", store.TypePostRace)
	if err := st.ResetEpisode(ctx, ep.ID); err == nil {
		t.Fatal("expected reset of a pending episode to fail")
	}

	ep.SetFailed("synthesis backend unavailable", "resource_unavailable")
	if err := st.UpdateEpisode(ctx, ep); err != nil {
		t.Fatalf("UpdateEpisode failed: %v", err)
	}

	stored, err := st.GetEpisode(ctx, ep.ID)
	if err != nil {
		t.Fatalf("GetEpisode failed: %v", err)
	}
	if stored.LastError != "synthesis backend unavailable" || stored.LastErrorKind != "resource_unavailable" {
		t.Fatalf("failure not persisted: %q (%q)", stored.LastError, stored.LastErrorKind)
	}

	if err := st.ResetEpisode(ctx, ep.ID); err != nil {
		t.Fatalf("ResetEpisode failed: %v", err)
	}
	fetched, err := st.GetEpisode(ctx, ep.ID)
	if err != nil {
		t.Fatalf("GetEpisode failed: %v", err)
	}
	if fetched.Status != store.EpisodePending {
		t.Fatalf("expected pending after reset, got %s", fetched.Status)
	}
	if fetched.LastError != "" || fetched.LastErrorKind != "" {
		t.Fatalf("expected stored error cleared by reset, got %q (%q)", fetched.LastError, fetched.LastErrorKind)
	}
}

func TestSceneBatchAndCompletion(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	ep := testsupport.NewEpisode(t, st, "Scene Test", store.TypePostRace)
	ch := testsupport.SeedCharacter(t, st, "max-verstappen")

	scenes := make([]*store.Scene, 0, 3)
	for i := 1; i <= 3; i++ {
		scenes = append(scenes, &store.Scene{
			EpisodeID:   ep.ID,
			SceneNumber: i,
			CharacterID: &ch.ID,
			Dialogue:    "still faster than you",
		})
	}
	if err := st.CreateScenes(ctx, scenes); err != nil {
		t.Fatalf("CreateScenes failed: %v", err)
	}
	for _, scene := range scenes {
		if scene.ID == 0 {
			t.Fatalf("expected scene %d to get an ID", scene.SceneNumber)
		}
	}

	// Complete scenes out of order; retrieval must come back ordered.
	for _, idx := range []int{2, 0} {
		scene := scenes[idx]
		scene.Status = store.SceneCompleted
		scene.VideoClipPath = "/tmp/clip.mp4"
		now := time.Now().UTC()
		scene.GenerationCompletedAt = &now
		if err := st.UpdateScene(ctx, scene); err != nil {
			t.Fatalf("UpdateScene failed: %v", err)
		}
	}

	completed, err := st.CompletedScenes(ctx, ep.ID)
	if err != nil {
		t.Fatalf("CompletedScenes failed: %v", err)
	}
	if len(completed) != 2 {
		t.Fatalf("expected 2 completed scenes, got %d", len(completed))
	}
	if completed[0].SceneNumber != 1 || completed[1].SceneNumber != 3 {
		t.Fatalf("expected ordered scene numbers, got %d then %d",
			completed[0].SceneNumber, completed[1].SceneNumber)
	}

	all, err := st.ScenesForEpisode(ctx, ep.ID)
	if err != nil {
		t.Fatalf("ScenesForEpisode failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 scenes, got %d", len(all))
	}
}

func TestDuplicateSceneNumberRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	ep := testsupport.NewEpisode(t, st, "Unique Scenes", store.TypePostRace)
	scenes := []*store.Scene{
		{EpisodeID: ep.ID, SceneNumber: 1},
		{EpisodeID: ep.ID, SceneNumber: 1},
	}
	if err := st.CreateScenes(ctx, scenes); err == nil {
		t.Fatal("expected duplicate scene number to be rejected")
	}

	remaining, err := st.ScenesForEpisode(ctx, ep.ID)
	if err != nil {
		t.Fatalf("ScenesForEpisode failed: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected rollback to leave no scenes, got %d", len(remaining))
	}
}

func TestFindEpisodeByRaceAndType(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	race := testsupport.NewRace(t, st, 2026, 5, "Miami Grand Prix")
	ep := &store.Episode{
		RaceID:      &race.ID,
		EpisodeType: store.TypePostRace,
		Title:       "Miami Fallout",
		SceneCount:  4,
	}
	if err := st.CreateEpisode(ctx, ep); err != nil {
		t.Fatalf("CreateEpisode failed: %v", err)
	}

	found, err := st.FindEpisodeByRaceAndType(ctx, race.ID, store.TypePostRace)
	if err != nil {
		t.Fatalf("FindEpisodeByRaceAndType failed: %v", err)
	}
	if found == nil || found.ID != ep.ID {
		t.Fatalf("expected inserted episode, got %#v", found)
	}

	missing, err := st.FindEpisodeByRaceAndType(ctx, race.ID, store.TypeWeeklyRecap)
	if err != nil {
		t.Fatalf("FindEpisodeByRaceAndType failed: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for absent combination, got %#v", missing)
	}
}

func TestScheduledJobLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	race := testsupport.NewRace(t, st, 2026, 6, "Monaco Grand Prix")
	job := &store.ScheduledJob{
		RaceID:       &race.ID,
		TriggerType:  store.TypePostRace,
		ScheduledFor: time.Now().UTC().Add(-time.Hour),
	}
	if err := st.CreateScheduledJob(ctx, job); err != nil {
		t.Fatalf("CreateScheduledJob failed: %v", err)
	}
	future := &store.ScheduledJob{
		RaceID:       &race.ID,
		TriggerType:  store.TypeWeeklyRecap,
		ScheduledFor: time.Now().UTC().Add(time.Hour),
	}
	if err := st.CreateScheduledJob(ctx, future); err != nil {
		t.Fatalf("CreateScheduledJob failed: %v", err)
	}

	due, err := st.DueJobs(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("DueJobs failed: %v", err)
	}
	if len(due) != 1 || due[0].ID != job.ID {
		t.Fatalf("expected only the past job to be due, got %#v", due)
	}

	ep := testsupport.NewEpisode(t, st, "Monaco Fallout", store.TypePostRace)
	if err := st.MarkJobRunning(ctx, job.ID, ep.ID); err != nil {
		t.Fatalf("MarkJobRunning failed: %v", err)
	}
	if err := st.MarkJobRunning(ctx, job.ID, ep.ID); err == nil {
		t.Fatal("expected second MarkJobRunning to fail")
	}
	if err := st.FinishJob(ctx, job.ID, store.JobCompleted); err != nil {
		t.Fatalf("FinishJob failed: %v", err)
	}

	fetched, err := st.GetScheduledJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetScheduledJob failed: %v", err)
	}
	if fetched.Status != store.JobCompleted {
		t.Fatalf("expected completed job, got %s", fetched.Status)
	}
	if fetched.EpisodeID == nil || *fetched.EpisodeID != ep.ID {
		t.Fatalf("expected linked episode %d, got %#v", ep.ID, fetched.EpisodeID)
	}
}

func TestUsageLedger(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	ep := testsupport.NewEpisode(t, st, "Cost Test", store.TypePostRace)
	for _, cost := range []float64{0.12, 0.05} {
		usage := &store.Usage{
			EpisodeID:    ep.ID,
			Provider:     "anthropic",
			Endpoint:     "messages",
			InputTokens:  1000,
			OutputTokens: 500,
			CostUSD:      cost,
		}
		if err := st.RecordUsage(ctx, usage); err != nil {
			t.Fatalf("RecordUsage failed: %v", err)
		}
	}

	total, err := st.EpisodeCost(ctx, ep.ID)
	if err != nil {
		t.Fatalf("EpisodeCost failed: %v", err)
	}
	if total < 0.169 || total > 0.171 {
		t.Fatalf("expected total near 0.17, got %f", total)
	}
}

func TestHealthSummary(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.NewEpisode(t, st, "Pending One", store.TypePostRace)
	published := testsupport.NewEpisode(t, st, "Done One", store.TypeWeeklyRecap)
	published.Status = store.EpisodePublished
	if err := st.UpdateEpisode(ctx, published); err != nil {
		t.Fatalf("UpdateEpisode failed: %v", err)
	}

	health, err := st.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Total != 2 || health.Pending != 1 || health.Published != 1 {
		t.Fatalf("unexpected health summary: %#v", health)
	}
}
