package objstore

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"gridlock/internal/config"
	"gridlock/internal/logging"
	"gridlock/internal/services"
)

const componentName = "objstore"

// Store wraps the S3-compatible object store holding every media artifact.
type Store struct {
	client *minio.Client
	cfg    config.Storage
	logger *slog.Logger
}

// New connects to the configured object store. The connection is lazy; no
// request is made until the first operation.
func New(cfg config.Storage, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, services.Wrap(services.ErrConfiguration, componentName, "new", "storage endpoint not configured", nil)
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, componentName, "new", "build storage client", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Store{
		client: client,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, componentName),
	}, nil
}

// Buckets returns every configured bucket name.
func (s *Store) Buckets() []string {
	return []string{
		s.cfg.BucketCharacters,
		s.cfg.BucketSceneImages,
		s.cfg.BucketVideoClips,
		s.cfg.BucketFinalVideos,
	}
}

// EnsureBuckets creates any configured bucket that does not exist yet.
func (s *Store) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range s.Buckets() {
		if bucket == "" {
			continue
		}
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return services.Wrap(services.ErrTransient, componentName, "ensure-buckets",
				fmt.Sprintf("check bucket %s", bucket), err)
		}
		if exists {
			continue
		}
		if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return services.Wrap(services.ErrTransient, componentName, "ensure-buckets",
				fmt.Sprintf("create bucket %s", bucket), err)
		}
		s.logger.Info("bucket created", logging.String("bucket", bucket))
	}
	return nil
}

// SceneImageObject returns the object name of a scene's source image.
func SceneImageObject(raceID, episodeID int64, sceneNumber int) string {
	return fmt.Sprintf("%sepisode_%d/scene_%02d.png", racePrefix(raceID), episodeID, sceneNumber)
}

// ClipObject returns the object name of a scene's generated clip.
func ClipObject(raceID, episodeID int64, sceneNumber int) string {
	return fmt.Sprintf("%sepisode_%d/scene_%02d.mp4", racePrefix(raceID), episodeID, sceneNumber)
}

// FinalVideoObject returns the object name of a stitched episode.
func FinalVideoObject(raceID, episodeID int64) string {
	return fmt.Sprintf("%sepisode_%d/final.mp4", racePrefix(raceID), episodeID)
}

// RacePrefix returns the shared prefix of every object belonging to a race,
// used for bulk retention deletes.
func RacePrefix(raceID int64) string {
	return racePrefix(raceID)
}

func racePrefix(raceID int64) string {
	if raceID <= 0 {
		return "unscheduled/"
	}
	return fmt.Sprintf("race_%03d/", raceID)
}

// SceneImagesBucket returns the bucket holding scene source images.
func (s *Store) SceneImagesBucket() string { return s.cfg.BucketSceneImages }

// VideoClipsBucket returns the bucket holding generated clips.
func (s *Store) VideoClipsBucket() string { return s.cfg.BucketVideoClips }

// FinalVideosBucket returns the bucket holding stitched episodes.
func (s *Store) FinalVideosBucket() string { return s.cfg.BucketFinalVideos }

// CharactersBucket returns the bucket holding the cast image library.
func (s *Store) CharactersBucket() string { return s.cfg.BucketCharacters }

// Upload stores a local file and returns its bucket-qualified locator.
func (s *Store) Upload(ctx context.Context, bucket, objectName, localPath, contentType string) (string, error) {
	opts := minio.PutObjectOptions{}
	if contentType != "" {
		opts.ContentType = contentType
	}
	if _, err := s.client.FPutObject(ctx, bucket, objectName, localPath, opts); err != nil {
		return "", services.Wrap(services.ErrTransient, componentName, "upload",
			fmt.Sprintf("put %s/%s", bucket, objectName), err)
	}
	locator := bucket + "/" + objectName
	s.logger.Debug("object uploaded", logging.String("object", locator))
	return locator, nil
}

// Download fetches an object to a local path.
func (s *Store) Download(ctx context.Context, bucket, objectName, destPath string) error {
	if err := s.client.FGetObject(ctx, bucket, objectName, destPath, minio.GetObjectOptions{}); err != nil {
		return services.Wrap(services.ErrTransient, componentName, "download",
			fmt.Sprintf("get %s/%s", bucket, objectName), err)
	}
	return nil
}

// DownloadLocator resolves a bucket-qualified locator produced by Upload
// and fetches it to a local path.
func (s *Store) DownloadLocator(ctx context.Context, locator, destPath string) error {
	bucket, objectName, ok := strings.Cut(locator, "/")
	if !ok || bucket == "" || objectName == "" {
		return services.Wrap(services.ErrValidation, componentName, "download",
			fmt.Sprintf("malformed locator %q", locator), nil)
	}
	return s.Download(ctx, bucket, objectName, destPath)
}

// DeletePrefix removes every object under the prefix in one bucket and
// reports the object count and byte total removed.
func (s *Store) DeletePrefix(ctx context.Context, bucket, prefix string) (int, int64, error) {
	var (
		count int
		bytes int64
	)
	for object := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return count, bytes, services.Wrap(services.ErrTransient, componentName, "delete-prefix",
				fmt.Sprintf("list %s/%s", bucket, prefix), object.Err)
		}
		if err := s.client.RemoveObject(ctx, bucket, object.Key, minio.RemoveObjectOptions{}); err != nil {
			return count, bytes, services.Wrap(services.ErrTransient, componentName, "delete-prefix",
				fmt.Sprintf("remove %s/%s", bucket, object.Key), err)
		}
		count++
		bytes += object.Size
	}
	if count > 0 {
		s.logger.Info("prefix deleted",
			logging.String("bucket", bucket),
			logging.String("prefix", prefix),
			logging.Int("objects", count),
			logging.Int64("bytes", bytes),
		)
	}
	return count, bytes, nil
}

// ContentTypeFor guesses a content type from an object name extension.
func ContentTypeFor(objectName string) string {
	switch strings.ToLower(path.Ext(objectName)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".mp4":
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}
