package script_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gridlock/internal/script"
	"gridlock/internal/services"
	"gridlock/internal/services/anthropic"
	"gridlock/internal/store"
	"gridlock/internal/testsupport"
)

type fakeCompleter struct {
	text  string
	err   error
	calls int
}

func (f *fakeCompleter) Complete(ctx context.Context, system, user string) (*anthropic.Completion, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &anthropic.Completion{
		Text:         f.text,
		InputTokens:  1500,
		OutputTokens: 900,
		CostUSD:      0.03,
		Latency:      420 * time.Millisecond,
	}, nil
}

const sampleScript = `{
  "title": "Monaco Fallout",
  "description": "The cast processes another processional Sunday.",
  "scenes": [
    {"scene_number": 1, "character": "max-verstappen", "dialogue": "I won. Again. Shocking.", "action": "shrugs at a trophy", "audio": "flat delivery, distant champagne pop"},
    {"scene_number": 2, "character": "team-principal", "dialogue": "We maximized our package.", "action": "reads from a binder labeled EXCUSES", "audio": "papers shuffling"},
    {"scene_number": 3, "character": "max-verstappen", "dialogue": "The undercut was never real.", "action": "stares into the distance", "audio": "wind, single seagull"}
  ]
}`

func seedCast(t *testing.T, st *store.Store) {
	t.Helper()
	testsupport.SeedCharacter(t, st, "max-verstappen")
	testsupport.SeedCharacter(t, st, "team-principal")
}

func TestProduceCreatesScenes(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSceneCount(3))
	st := testsupport.MustOpenStore(t, cfg)
	seedCast(t, st)
	ctx := context.Background()

	ep := testsupport.NewEpisode(t, st, "placeholder", store.TypePostRace)
	ep.SceneCount = 3

	llm := &fakeCompleter{text: sampleScript}
	producer := script.NewProducer(st, llm, cfg, nil)
	if err := producer.Produce(ctx, ep); err != nil {
		t.Fatalf("Produce failed: %v", err)
	}

	if ep.Title != "Monaco Fallout" {
		t.Fatalf("expected episode title from script, got %q", ep.Title)
	}
	if ep.ScriptTokensUsed != 2400 {
		t.Fatalf("expected 2400 tokens recorded, got %d", ep.ScriptTokensUsed)
	}

	scenes, err := st.ScenesForEpisode(ctx, ep.ID)
	if err != nil {
		t.Fatalf("ScenesForEpisode failed: %v", err)
	}
	if len(scenes) != 3 {
		t.Fatalf("expected 3 scenes, got %d", len(scenes))
	}
	for i, scene := range scenes {
		if scene.SceneNumber != i+1 {
			t.Fatalf("expected contiguous numbering, scene %d has number %d", i, scene.SceneNumber)
		}
		if scene.Status != store.ScenePending {
			t.Fatalf("expected pending scene, got %s", scene.Status)
		}
	}
	if scenes[0].CharacterID == nil {
		t.Fatal("expected scene 1 to be linked to its character")
	}

	cost, err := st.EpisodeCost(ctx, ep.ID)
	if err != nil {
		t.Fatalf("EpisodeCost failed: %v", err)
	}
	if cost < 0.029 || cost > 0.031 {
		t.Fatalf("expected usage ledger entry near 0.03, got %f", cost)
	}
}

func TestProduceMatchesCharactersByExactName(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.SeedCharacter(t, st, "Max-Verstappen")
	testsupport.SeedCharacter(t, st, "team-principal")
	ctx := context.Background()

	llm := &fakeCompleter{text: sampleScript}
	producer := script.NewProducer(st, llm, cfg, nil)

	ep := testsupport.NewEpisode(t, st, "casing", store.TypePostRace)
	if err := producer.Produce(ctx, ep); err != nil {
		t.Fatalf("Produce failed: %v", err)
	}

	scenes, err := st.ScenesForEpisode(ctx, ep.ID)
	if err != nil {
		t.Fatalf("ScenesForEpisode failed: %v", err)
	}
	// "max-verstappen" is not "Max-Verstappen"; those scenes carry no
	// character link while the exact match does.
	if scenes[0].CharacterID != nil {
		t.Fatal("expected no character link for a name differing in case")
	}
	if scenes[1].CharacterID == nil {
		t.Fatal("expected exact-name match to link the character")
	}
}

func TestProduceReusesExistingScenes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	seedCast(t, st)
	ctx := context.Background()

	ep := testsupport.NewEpisode(t, st, "retry case", store.TypePostRace)
	if err := st.CreateScenes(ctx, []*store.Scene{
		{EpisodeID: ep.ID, SceneNumber: 1, Dialogue: "already written"},
	}); err != nil {
		t.Fatalf("CreateScenes failed: %v", err)
	}

	llm := &fakeCompleter{text: sampleScript}
	producer := script.NewProducer(st, llm, cfg, nil)
	if err := producer.Produce(ctx, ep); err != nil {
		t.Fatalf("Produce failed: %v", err)
	}
	if llm.calls != 0 {
		t.Fatalf("expected no LLM call when scenes exist, got %d", llm.calls)
	}

	scenes, err := st.ScenesForEpisode(ctx, ep.ID)
	if err != nil {
		t.Fatalf("ScenesForEpisode failed: %v", err)
	}
	if len(scenes) != 1 || scenes[0].Dialogue != "already written" {
		t.Fatalf("expected original scene preserved, got %#v", scenes)
	}
}

func TestProduceHandlesFencedJSON(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	seedCast(t, st)

	llm := &fakeCompleter{text: "```json\n" + sampleScript + "\n```"}
	producer := script.NewProducer(st, llm, cfg, nil)

	ep := testsupport.NewEpisode(t, st, "fenced", store.TypePostRace)
	if err := producer.Produce(context.Background(), ep); err != nil {
		t.Fatalf("Produce failed on fenced JSON: %v", err)
	}
}

func TestProduceEmptyRosterRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	llm := &fakeCompleter{text: sampleScript}
	producer := script.NewProducer(st, llm, cfg, nil)

	ep := testsupport.NewEpisode(t, st, "no cast", store.TypePostRace)
	err := producer.Produce(context.Background(), ep)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty roster, got %v", err)
	}
	if llm.calls != 0 {
		t.Fatal("expected no LLM call without a roster")
	}
}

func TestProduceMalformedScriptIsTransient(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	seedCast(t, st)

	llm := &fakeCompleter{text: "sorry, I cannot write that"}
	producer := script.NewProducer(st, llm, cfg, nil)

	ep := testsupport.NewEpisode(t, st, "malformed", store.TypePostRace)
	err := producer.Produce(context.Background(), ep)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error for malformed script, got %v", err)
	}
	if !strings.Contains(err.Error(), "JSON") {
		t.Fatalf("expected JSON parse detail in error, got %v", err)
	}
}
