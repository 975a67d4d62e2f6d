package source

import (
	"context"
	"fmt"
	"io"

	"github.com/ekisa-team/modma/internal/config"
	"github.com/ekisa-team/modma/internal/storage"
)

// S3Downloader downloads an artifact from an S3-compatible bucket.
type S3Downloader struct {
	// NewClient builds the client for a source. Nil uses storage.NewS3Client.
	NewClient func(src config.S3Source) storage.S3Client
}

// Download copies the object into the target store.
func (d *S3Downloader) Download(ctx context.Context, artifact *config.ArtifactConfig, target *storage.Local) (string, bool, error) {
	src, err := artifact.GetSource()
	if err != nil {
		return "", false, fmt.Errorf("failed to get artifact source: %w", err)
	}

	s3Source, ok := src.(config.S3Source)
	if !ok {
		return "", false, fmt.Errorf("invalid source type: %T", src)
	}

	bucket := storage.NewS3(d.client(s3Source), s3Source.Bucket, "")
	origin := fmt.Sprintf("s3://%s/%s", s3Source.Bucket, s3Source.Key)

	return fetchInto(ctx, artifact.File, target, origin, func(ctx context.Context) (io.ReadCloser, error) {
		return bucket.Read(ctx, s3Source.Key)
	})
}

func (d *S3Downloader) client(src config.S3Source) storage.S3Client {
	if d.NewClient != nil {
		return d.NewClient(src)
	}

	return storage.NewS3Client(storage.S3Options{
		Region:          src.Region,
		Endpoint:        src.Endpoint,
		AccessKeyID:     src.AccessKeyID,
		SecretAccessKey: src.SecretAccessKey,
		UsePathStyle:    src.UsePathStyle,
	})
}
