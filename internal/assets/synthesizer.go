package assets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gridlock/internal/config"
	"gridlock/internal/logging"
	"gridlock/internal/services"
	"gridlock/internal/services/gemini"
	"gridlock/internal/services/objstore"
	"gridlock/internal/store"
)

const componentName = "assets"

// ImageGenerator produces a scene's source frame.
type ImageGenerator interface {
	Generate(ctx context.Context, req gemini.Request) (*gemini.Image, error)
}

// ClipGenerator animates a source frame into a clip. The synthesis session
// satisfies it.
type ClipGenerator interface {
	Generate(ctx context.Context, prompt, imagePath, destPath string) error
}

// ObjectStore is the artifact storage surface the synthesizer needs.
type ObjectStore interface {
	Upload(ctx context.Context, bucket, objectName, localPath, contentType string) (string, error)
	DownloadLocator(ctx context.Context, locator, destPath string) error
	SceneImagesBucket() string
	VideoClipsBucket() string
}

// Synthesizer walks an episode's scenes in order and produces the image
// and clip for each one.
type Synthesizer struct {
	store   *store.Store
	images  ImageGenerator
	objects ObjectStore
	cfg     *config.Config
	logger  *slog.Logger
}

// NewSynthesizer wires a synthesizer with its dependencies.
func NewSynthesizer(st *store.Store, images ImageGenerator, objects ObjectStore, cfg *config.Config, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Synthesizer{
		store:   st,
		images:  images,
		objects: objects,
		cfg:     cfg,
		logger:  logging.NewComponentLogger(logger, componentName),
	}
}

func (s *Synthesizer) maxRetries() int {
	if s.cfg.Workflow.SceneMaxRetries > 0 {
		return s.cfg.Workflow.SceneMaxRetries
	}
	return 3
}

// SynthesizeAll processes every scene of the episode in scene order using
// the provided clip generator. Completed scenes are skipped, so a retried
// episode resumes where it stopped. A scene that keeps failing past its
// retry ceiling aborts the whole episode.
func (s *Synthesizer) SynthesizeAll(ctx context.Context, ep *store.Episode, clips ClipGenerator) error {
	scenes, err := s.store.ScenesForEpisode(ctx, ep.ID)
	if err != nil {
		return services.Wrap(services.ErrTransient, componentName, "synthesize", "load scenes", err)
	}
	if len(scenes) == 0 {
		return services.Wrap(services.ErrValidation, componentName, "synthesize", "episode has no scenes", nil)
	}

	raceID := int64(0)
	if ep.RaceID != nil {
		raceID = *ep.RaceID
	}

	for _, scene := range scenes {
		if scene.Status == store.SceneCompleted {
			continue
		}
		if err := s.synthesizeScene(ctx, ep, raceID, scene, clips); err != nil {
			return err
		}
		ep.SynthCalls++
	}

	if err := s.store.UpdateEpisode(ctx, ep); err != nil {
		return services.Wrap(services.ErrTransient, componentName, "synthesize", "persist episode counters", err)
	}
	return nil
}

// synthesizeScene retries one scene in place until it succeeds or its
// persisted retry count reaches the ceiling.
func (s *Synthesizer) synthesizeScene(ctx context.Context, ep *store.Episode, raceID int64, scene *store.Scene, clips ClipGenerator) error {
	ceiling := s.maxRetries()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if scene.RetryCount >= ceiling {
			return services.Wrap(services.ErrSceneExhausted, componentName, "synthesize",
				fmt.Sprintf("scene %d failed %d times", scene.SceneNumber, scene.RetryCount), nil)
		}

		err := s.attemptScene(ctx, ep, raceID, scene, clips)
		if err == nil {
			return nil
		}

		scene.Status = store.SceneFailed
		scene.RetryCount++
		scene.LastError = err.Error()
		if updateErr := s.store.UpdateScene(ctx, scene); updateErr != nil {
			return services.Wrap(services.ErrTransient, componentName, "synthesize", "persist scene failure", updateErr)
		}
		s.logger.Warn("scene attempt failed",
			logging.Int64(logging.FieldEpisodeID, ep.ID),
			logging.Int(logging.FieldSceneNumber, scene.SceneNumber),
			logging.Int("retry_count", scene.RetryCount),
			logging.Error(err),
		)

		if !services.IsRetriable(err) {
			return err
		}
	}
}

func (s *Synthesizer) attemptScene(ctx context.Context, ep *store.Episode, raceID int64, scene *store.Scene, clips ClipGenerator) error {
	now := time.Now().UTC()
	scene.Status = store.SceneGenerating
	scene.GenerationStartedAt = &now
	if err := s.store.UpdateScene(ctx, scene); err != nil {
		return services.Wrap(services.ErrTransient, componentName, "synthesize", "persist scene start", err)
	}

	workDir := filepath.Join(s.cfg.Paths.WorkDir, fmt.Sprintf("episode_%d", ep.ID))
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return services.Wrap(services.ErrValidation, componentName, "synthesize", "create work dir", err)
	}

	imagePath, err := s.generateImage(ctx, raceID, ep.ID, scene, workDir)
	if err != nil {
		return err
	}

	clipPath := filepath.Join(workDir, fmt.Sprintf("scene_%02d.mp4", scene.SceneNumber))
	if err := clips.Generate(ctx, buildClipPrompt(scene), imagePath, clipPath); err != nil {
		return err
	}

	clipObject := objstore.ClipObject(raceID, ep.ID, scene.SceneNumber)
	clipLocator, err := s.objects.Upload(ctx, s.objects.VideoClipsBucket(), clipObject, clipPath, "video/mp4")
	if err != nil {
		return err
	}

	done := time.Now().UTC()
	scene.VideoClipPath = clipLocator
	scene.Status = store.SceneCompleted
	scene.GenerationCompletedAt = &done
	if scene.GenerationStartedAt != nil {
		scene.GenerationTimeMs = int(done.Sub(*scene.GenerationStartedAt).Milliseconds())
	}
	scene.LastError = ""
	if err := s.store.UpdateScene(ctx, scene); err != nil {
		return services.Wrap(services.ErrTransient, componentName, "synthesize", "persist scene completion", err)
	}

	s.logger.Info("scene completed",
		logging.Int64(logging.FieldEpisodeID, ep.ID),
		logging.Int(logging.FieldSceneNumber, scene.SceneNumber),
		logging.Int("generation_ms", scene.GenerationTimeMs),
	)
	return nil
}

// generateImage produces and stores the scene's source frame, reusing one
// from an earlier attempt when present.
func (s *Synthesizer) generateImage(ctx context.Context, raceID, episodeID int64, scene *store.Scene, workDir string) (string, error) {
	localPath := filepath.Join(workDir, fmt.Sprintf("scene_%02d.png", scene.SceneNumber))

	if scene.SourceImagePath != "" {
		if _, err := os.Stat(localPath); err == nil {
			return localPath, nil
		}
		if err := s.objects.DownloadLocator(ctx, scene.SourceImagePath, localPath); err == nil {
			return localPath, nil
		}
		// Stored image unavailable; regenerate below.
	}

	var character *store.Character
	if scene.CharacterID != nil {
		ch, err := s.store.GetCharacter(ctx, *scene.CharacterID)
		if err != nil {
			return "", services.Wrap(services.ErrTransient, componentName, "synthesize", "load character", err)
		}
		character = ch
	}

	req := gemini.Request{Prompt: buildImagePrompt(scene, character)}
	if character != nil {
		req.References = s.loadStyleReferences(ctx, character, workDir)
	}

	img, err := s.images.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(localPath, img.Data, 0o644); err != nil {
		return "", services.Wrap(services.ErrValidation, componentName, "synthesize", "write scene image", err)
	}

	object := objstore.SceneImageObject(raceID, episodeID, scene.SceneNumber)
	locator, err := s.objects.Upload(ctx, s.objects.SceneImagesBucket(), object, localPath, "image/png")
	if err != nil {
		return "", err
	}
	scene.SourceImagePath = locator
	if err := s.store.UpdateScene(ctx, scene); err != nil {
		return "", services.Wrap(services.ErrTransient, componentName, "synthesize", "persist scene image", err)
	}
	return localPath, nil
}

// loadStyleReferences fetches up to the configured number of style
// reference images for the character. Missing references are skipped; an
// off-model image beats a failed episode.
func (s *Synthesizer) loadStyleReferences(ctx context.Context, character *store.Character, workDir string) []gemini.Reference {
	limit := s.cfg.Image.StyleReferenceCount
	if limit <= 0 {
		limit = 3
	}
	locators, err := s.store.StyleReferences(ctx, character.ID, limit)
	if err != nil {
		s.logger.Warn("style reference lookup failed",
			logging.Int64("character_id", character.ID),
			logging.Error(err),
		)
		return nil
	}

	refs := make([]gemini.Reference, 0, len(locators))
	for i, locator := range locators {
		dest := filepath.Join(workDir, fmt.Sprintf("ref_%d_%d.png", character.ID, i))
		if err := s.objects.DownloadLocator(ctx, locator, dest); err != nil {
			s.logger.Warn("style reference unavailable",
				logging.String("locator", locator),
				logging.Error(err),
			)
			continue
		}
		data, err := os.ReadFile(dest)
		if err != nil {
			continue
		}
		refs = append(refs, gemini.Reference{MIMEType: "image/png", Data: data})
	}
	return refs
}
