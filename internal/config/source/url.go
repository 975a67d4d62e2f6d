package source

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/ekisa-team/modma/internal/config"
	"github.com/ekisa-team/modma/internal/storage"
)

// URLDownloader downloads an artifact from a direct HTTP(S) link.
type URLDownloader struct {
	Client *http.Client
}

// Download fetches the artifact's URL source.
func (d *URLDownloader) Download(ctx context.Context, artifact *config.ArtifactConfig, target *storage.Local) (string, bool, error) {
	src, err := artifact.GetSource()
	if err != nil {
		return "", false, fmt.Errorf("failed to get artifact source: %w", err)
	}

	urlSource, ok := src.(config.URLSource)
	if !ok {
		return "", false, fmt.Errorf("invalid source type: %T", src)
	}

	return fetchInto(ctx, artifact.File, target, urlSource.Href, func(ctx context.Context) (io.ReadCloser, error) {
		return httpGet(ctx, d.Client, urlSource.Href, nil)
	})
}
