// Package source fetches model artifacts declared in the config into the
// local models directory.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/ekisa-team/modma/internal/config"
	"github.com/ekisa-team/modma/internal/storage"
)

var (
	retryDelay = 2 * time.Second
	maxRetries = 3
	timeout    = 5 * time.Minute
)

// ErrUnsupportedSource is returned for source types without a downloader.
var ErrUnsupportedSource = errors.New("unsupported artifact source")

// Downloader fetches a single artifact into a local store.
type Downloader interface {
	// Download stores the artifact under artifact.File. It reports whether the
	// file was already present and therefore left untouched.
	Download(ctx context.Context, artifact *config.ArtifactConfig, target *storage.Local) (string, bool, error)
}

// GetDownloader returns the downloader for a source type.
func GetDownloader(_ context.Context, sourceType config.SourceType) (Downloader, error) {
	switch sourceType {
	case config.SourceTypeURL:
		return &URLDownloader{}, nil
	case config.SourceTypeHuggingFace:
		return &HuggingFaceDownloader{}, nil
	case config.SourceTypeS3:
		return &S3Downloader{}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnsupportedSource, sourceType)
}

// EnsureModelsDirectory creates the models directory if needed.
func EnsureModelsDirectory(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create models directory %s: %w", path, err)
	}

	return nil
}

// fetchFunc opens the remote artifact for one attempt.
type fetchFunc func(ctx context.Context) (io.ReadCloser, error)

// fetchInto skips artifacts already present and otherwise retries fetch
// into the target store. Writes are atomic, so a failed attempt never
// leaves a file that looks complete.
func fetchInto(ctx context.Context, name string, target *storage.Local, origin string, fetch fetchFunc) (string, bool, error) {
	path := target.Path(name)

	present, err := target.Exists(ctx, name)
	if err != nil {
		return "", false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if present {
		slog.Info("Artifact already present, skipping download", "file", name, "path", path)
		return path, true, nil
	}

	var lastErr error
	for attempt := range maxRetries {
		if attempt > 0 {
			slog.Info("Retrying download", "file", name, "attempt", attempt+1, "last_error", lastErr)
			select {
			case <-ctx.Done():
				return "", false, fmt.Errorf("download canceled: %w", ctx.Err())
			case <-time.After(retryDelay):
			}
		} else {
			slog.Info("Downloading artifact", "file", name, "origin", origin, "path", path)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		n, err := fetchOnce(attemptCtx, name, target, fetch)
		cancel()

		if err == nil {
			slog.Info("Artifact downloaded successfully", "file", name, "bytes", n, "attempt", attempt+1)
			return path, false, nil
		}

		lastErr = err
		slog.Error("Failed to download artifact", "file", name, "origin", origin, "attempt", attempt+1, "error", err)

		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			slog.Warn("Download timed out", "file", name, "attempt", attempt+1)
		}
		if ctx.Err() != nil {
			return "", false, fmt.Errorf("download canceled: %w", ctx.Err())
		}
	}

	return "", false, fmt.Errorf("failed to download %s after %d attempts: %w", name, maxRetries, lastErr)
}

func fetchOnce(ctx context.Context, name string, target *storage.Local, fetch fetchFunc) (int64, error) {
	body, err := fetch(ctx)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	return storage.Save(ctx, target, name, body)
}

// httpGet performs a GET and returns the body of a 2xx response.
func httpGet(ctx context.Context, client *http.Client, url string, header http.Header) (io.ReadCloser, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %s from %s", resp.Status, url)
	}

	return resp.Body, nil
}
