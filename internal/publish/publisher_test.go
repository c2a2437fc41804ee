package publish_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gridlock/internal/publish"
	"gridlock/internal/services"
	"gridlock/internal/services/ytclient"
	"gridlock/internal/store"
	"gridlock/internal/testsupport"
)

type fakeObjects struct {
	downloads []string
}

func (f *fakeObjects) DownloadLocator(_ context.Context, locator, destPath string) error {
	f.downloads = append(f.downloads, locator)
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(destPath, []byte("video"), 0o644)
}

type fakeUploader struct {
	meta   ytclient.Metadata
	path   string
	err    error
	calls  int
	result *ytclient.Result
}

func (f *fakeUploader) Upload(_ context.Context, videoPath string, meta ytclient.Metadata) (*ytclient.Result, error) {
	f.calls++
	f.path = videoPath
	f.meta = meta
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &ytclient.Result{VideoID: "abc123", URL: "https://www.youtube.com/watch?v=abc123"}, nil
}

func TestPublishUploadsAndRecordsLink(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.YouTube.ChannelTag = "gridlock"
	st := testsupport.MustOpenStore(t, cfg)
	race := testsupport.NewRace(t, st, 2026, 5, "Monaco Grand Prix")
	ep := testsupport.NewEpisode(t, st, "steward inquiry special", store.TypePostRace)
	ep.RaceID = &race.ID
	ep.FinalVideoPath = "final-videos/race_005/episode_1/final.mp4"
	if err := st.UpdateEpisode(context.Background(), ep); err != nil {
		t.Fatalf("UpdateEpisode: %v", err)
	}

	objects := &fakeObjects{}
	uploader := &fakeUploader{}
	pub := publish.NewPublisher(st, objects, uploader, cfg, nil)

	if err := pub.Publish(context.Background(), ep); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if uploader.calls != 1 {
		t.Fatalf("expected one upload, got %d", uploader.calls)
	}
	if len(objects.downloads) != 1 || objects.downloads[0] != ep.FinalVideoPath {
		t.Fatalf("unexpected downloads %v", objects.downloads)
	}
	if !strings.Contains(uploader.meta.Title, "Monaco Grand Prix") {
		t.Fatalf("title missing race name: %q", uploader.meta.Title)
	}
	if uploader.meta.Title != "Steward Inquiry Special | Monaco Grand Prix" {
		t.Fatalf("unexpected title %q", uploader.meta.Title)
	}

	stored, err := st.GetEpisode(context.Background(), ep.ID)
	if err != nil {
		t.Fatalf("GetEpisode: %v", err)
	}
	if stored.YouTubeVideoID != "abc123" {
		t.Fatalf("video id not persisted: %q", stored.YouTubeVideoID)
	}
	if stored.YouTubeURL == "" {
		t.Fatalf("video URL not persisted")
	}
}

func TestPublishRequiresFinalVideo(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ep := testsupport.NewEpisode(t, st, "Unstitched", store.TypeWeeklyRecap)

	pub := publish.NewPublisher(st, &fakeObjects{}, &fakeUploader{}, cfg, nil)
	err := pub.Publish(context.Background(), ep)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPublishSurfacesUploadFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ep := testsupport.NewEpisode(t, st, "Flaky Upload", store.TypePostRace)
	ep.FinalVideoPath = "final-videos/unscheduled/episode_1/final.mp4"
	if err := st.UpdateEpisode(context.Background(), ep); err != nil {
		t.Fatalf("UpdateEpisode: %v", err)
	}

	uploader := &fakeUploader{err: services.Wrap(services.ErrTransient, "ytclient", "upload", "rate limited", nil)}
	pub := publish.NewPublisher(st, &fakeObjects{}, uploader, cfg, nil)

	err := pub.Publish(context.Background(), ep)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}

	stored, _ := st.GetEpisode(context.Background(), ep.ID)
	if stored.YouTubeVideoID != "" {
		t.Fatalf("video id recorded despite failure")
	}
}
