package overlay

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// maxOverlaySize bounds a single overlay file.
const maxOverlaySize = 64 << 20

// Fetcher retrieves the raw bytes of an overlay file by name.
type Fetcher interface {
	Fetch(ctx context.Context, file string) ([]byte, error)
}

// HTTPFetcher fetches overlay files relative to a base URL.
type HTTPFetcher struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPFetcher creates a fetcher for files under baseURL.
func NewHTTPFetcher(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPFetcher {
	return &HTTPFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, file string) ([]byte, error) {
	if !fs.ValidPath(file) {
		return nil, fmt.Errorf("overlay file %q escapes the overlay base URL", file)
	}
	segs := strings.Split(file, "/")
	for i := range segs {
		segs[i] = url.PathEscape(segs[i])
	}
	u, err := url.JoinPath(f.baseURL, segs...)
	if err != nil {
		return nil, fmt.Errorf("build overlay url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch overlay: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("overlay server error: status %d: %s", resp.StatusCode, body)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxOverlaySize))
	if err != nil {
		return nil, fmt.Errorf("read overlay: %w", err)
	}
	f.logger.Debug("overlay fetched", "file", file, "bytes", len(data))
	return data, nil
}

// DirFetcher reads overlay files from a local directory.
type DirFetcher struct {
	root string
}

// NewDirFetcher creates a fetcher for files under root.
func NewDirFetcher(root string) *DirFetcher {
	return &DirFetcher{root: root}
}

func (f *DirFetcher) Fetch(ctx context.Context, file string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !filepath.IsLocal(file) {
		return nil, fmt.Errorf("overlay file %q escapes the overlay directory", file)
	}
	data, err := os.ReadFile(filepath.Join(f.root, file))
	if err != nil {
		return nil, fmt.Errorf("read overlay: %w", err)
	}
	return data, nil
}
