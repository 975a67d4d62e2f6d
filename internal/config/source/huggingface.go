package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ekisa-team/modma/internal/config"
	"github.com/ekisa-team/modma/internal/storage"
)

const defaultHuggingFaceEndpoint = "https://huggingface.co"

// HuggingFaceDownloader downloads a single file from a Hugging Face repository.
type HuggingFaceDownloader struct {
	Client *http.Client

	// Endpoint overrides the hub address. Empty means huggingface.co.
	Endpoint string
}

// Download fetches the artifact through the hub's resolve endpoint.
func (d *HuggingFaceDownloader) Download(ctx context.Context, artifact *config.ArtifactConfig, target *storage.Local) (string, bool, error) {
	src, err := artifact.GetSource()
	if err != nil {
		return "", false, fmt.Errorf("failed to get artifact source: %w", err)
	}

	hfSource, ok := src.(config.HuggingFaceSource)
	if !ok {
		return "", false, fmt.Errorf("invalid source type: %T", src)
	}

	if strings.TrimSpace(hfSource.Repo) == "" {
		return "", false, fmt.Errorf("invalid repo name: %q", hfSource.Repo)
	}

	resolved := d.ResolveURL(hfSource)

	var header http.Header
	if hfSource.Token != "" {
		header = http.Header{"Authorization": []string{"Bearer " + hfSource.Token}}
	}

	return fetchInto(ctx, artifact.File, target, resolved, func(ctx context.Context) (io.ReadCloser, error) {
		return httpGet(ctx, d.Client, resolved, header)
	})
}

// ResolveURL returns the download URL for a repository file.
func (d *HuggingFaceDownloader) ResolveURL(src config.HuggingFaceSource) string {
	endpoint := strings.TrimRight(d.Endpoint, "/")
	if endpoint == "" {
		endpoint = defaultHuggingFaceEndpoint
	}

	revision := src.Revision
	if revision == "" {
		revision = "main"
	}

	var prefix string
	switch src.RepoType {
	case "dataset":
		prefix = "datasets/"
	case "space":
		prefix = "spaces/"
	}

	return fmt.Sprintf("%s/%s%s/resolve/%s/%s",
		endpoint,
		prefix,
		strings.Trim(src.Repo, "/"),
		url.PathEscape(revision),
		strings.TrimLeft(src.Filename, "/"),
	)
}
