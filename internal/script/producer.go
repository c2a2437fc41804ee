package script

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"gridlock/internal/config"
	"gridlock/internal/logging"
	"gridlock/internal/services"
	"gridlock/internal/services/anthropic"
	"gridlock/internal/store"
)

const componentName = "script"

// Completer is the LLM surface the producer depends on.
type Completer interface {
	Complete(ctx context.Context, system, user string) (*anthropic.Completion, error)
}

// Producer turns an episode brief into a persisted scene list.
type Producer struct {
	store  *store.Store
	llm    Completer
	cfg    *config.Config
	logger *slog.Logger
}

// NewProducer wires a producer with its dependencies.
func NewProducer(st *store.Store, llm Completer, cfg *config.Config, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Producer{
		store:  st,
		llm:    llm,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, componentName),
	}
}

type scriptDocument struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Scenes      []scriptScene `json:"scenes"`
}

type scriptScene struct {
	SceneNumber int    `json:"scene_number"`
	Character   string `json:"character"`
	Dialogue    string `json:"dialogue"`
	Action      string `json:"action"`
	Audio       string `json:"audio"`
}

// Produce generates the episode script and creates its scene rows. A
// retried episode that already has scenes keeps them; the expensive LLM
// call is never repeated for the same episode.
func (p *Producer) Produce(ctx context.Context, ep *store.Episode) error {
	existing, err := p.store.ScenesForEpisode(ctx, ep.ID)
	if err != nil {
		return services.Wrap(services.ErrTransient, componentName, "produce", "load existing scenes", err)
	}
	if len(existing) > 0 {
		p.logger.Info("reusing existing script",
			logging.Int64(logging.FieldEpisodeID, ep.ID),
			logging.Int("scenes", len(existing)),
		)
		return nil
	}

	roster, err := p.store.ActiveCharacters(ctx)
	if err != nil {
		return services.Wrap(services.ErrTransient, componentName, "produce", "load cast roster", err)
	}
	if len(roster) == 0 {
		return services.Wrap(services.ErrValidation, componentName, "produce", "no active characters in roster", nil)
	}

	var race *store.Race
	if ep.RaceID != nil {
		race, err = p.store.GetRace(ctx, *ep.RaceID)
		if err != nil {
			return services.Wrap(services.ErrTransient, componentName, "produce", "load race", err)
		}
	}

	sceneCount := ep.SceneCount
	if sceneCount <= 0 {
		sceneCount = p.cfg.Video.SceneCount
	}

	completion, err := p.llm.Complete(ctx, systemPrompt, buildUserPrompt(ep, race, roster, sceneCount))
	if err != nil {
		return err
	}

	doc, err := parseScript(completion.Text)
	if err != nil {
		return err
	}
	if len(doc.Scenes) != sceneCount {
		p.logger.Warn("script scene count differs from requested",
			logging.Int64(logging.FieldEpisodeID, ep.ID),
			logging.Int("requested", sceneCount),
			logging.Int("received", len(doc.Scenes)),
		)
	}

	// Roster lookup is by exact name. The prompt lists the roster
	// verbatim, so a mismatch means the model invented a character and
	// the scene proceeds without a reference image.
	byName := make(map[string]*store.Character, len(roster))
	for _, ch := range roster {
		byName[ch.Name] = ch
	}

	scenes := make([]*store.Scene, 0, len(doc.Scenes))
	for i, raw := range doc.Scenes {
		scene := &store.Scene{
			EpisodeID:         ep.ID,
			SceneNumber:       i + 1,
			Dialogue:          strings.TrimSpace(raw.Dialogue),
			ActionDescription: strings.TrimSpace(raw.Action),
			AudioDescription:  strings.TrimSpace(raw.Audio),
		}
		if ch, ok := byName[raw.Character]; ok {
			scene.CharacterID = &ch.ID
		} else {
			p.logger.Warn("script references unknown character",
				logging.Int64(logging.FieldEpisodeID, ep.ID),
				logging.Int(logging.FieldSceneNumber, scene.SceneNumber),
				logging.String("character", raw.Character),
			)
		}
		scenes = append(scenes, scene)
	}
	if len(scenes) == 0 {
		return services.Wrap(services.ErrTransient, componentName, "produce", "script contained no scenes", nil)
	}

	if err := p.store.CreateScenes(ctx, scenes); err != nil {
		return services.Wrap(services.ErrTransient, componentName, "produce", "persist scenes", err)
	}

	if doc.Title != "" {
		ep.Title = doc.Title
	}
	if doc.Description != "" {
		ep.Description = doc.Description
	}
	ep.SceneCount = len(scenes)
	ep.ScriptTokensUsed += int64(completion.InputTokens + completion.OutputTokens)
	ep.ScriptCostUSD += completion.CostUSD
	if err := p.store.UpdateEpisode(ctx, ep); err != nil {
		return services.Wrap(services.ErrTransient, componentName, "produce", "persist episode", err)
	}

	if err := p.store.RecordUsage(ctx, &store.Usage{
		EpisodeID:      ep.ID,
		Provider:       "anthropic",
		Endpoint:       "messages",
		InputTokens:    completion.InputTokens,
		OutputTokens:   completion.OutputTokens,
		CostUSD:        completion.CostUSD,
		ResponseTimeMs: int(completion.Latency.Milliseconds()),
	}); err != nil {
		return services.Wrap(services.ErrTransient, componentName, "produce", "record usage", err)
	}

	p.logger.Info("script produced",
		logging.Int64(logging.FieldEpisodeID, ep.ID),
		logging.Int("scenes", len(scenes)),
		logging.Float64("cost_usd", completion.CostUSD),
	)
	return nil
}

func parseScript(raw string) (*scriptDocument, error) {
	var doc scriptDocument
	if err := json.Unmarshal([]byte(stripFences(raw)), &doc); err != nil {
		return nil, services.Wrap(services.ErrTransient, componentName, "parse",
			fmt.Sprintf("script is not valid JSON: %v", err), nil)
	}
	return &doc, nil
}
