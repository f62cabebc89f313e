// Package media verifies legacy image references and records them as V2
// media pointers. Migrated assets are not copied; they stay on the legacy
// host and the media row carries the absolute URL with a provenance tag.
package media

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zoea-africa/v2-migrate/internal/target"
)

const (
	legacyProvider  = "v1_legacy"
	mediaTypeImage  = "image"
	defaultFileName = "image.jpg"
)

// Verifier checks asset reachability on the legacy host before a media row
// is written. A missing or unreachable asset is never an error; the parent
// record simply goes in without the image.
type Verifier struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
	onProbe func(reachable bool)
}

func NewVerifier(baseURL string, timeout time.Duration, logger *zap.Logger) *Verifier {
	return &Verifier{
		baseURL: strings.TrimRight(baseURL, "/") + "/",
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With(zap.String("component", "media_verifier")),
	}
}

// OnProbe registers a hook invoked after every reachability probe.
func (v *Verifier) OnProbe(fn func(reachable bool)) {
	v.onProbe = fn
}

// ResolveURL maps a legacy image path onto the asset host. Legacy rows hold
// a mix of absolute URLs, site-relative paths and filesystem-relative paths
// like ../catalog/venues/x.jpeg.
func (v *Verifier) ResolveURL(imagePath string) string {
	p := strings.TrimSpace(imagePath)
	if p == "" {
		return ""
	}
	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
		return p
	}
	p = strings.TrimPrefix(p, "../")
	p = strings.TrimPrefix(p, "/")
	return v.baseURL + p
}

// Options carries the descriptive fields for a media row.
type Options struct {
	AltText  string
	Title    string
	Category string
}

// CreateFromLegacyPath verifies the asset with a HEAD request and, when
// reachable, writes a media row pointing at it. Returns the media id or
// nil when the asset is absent, unreachable or rejected by the host.
func (v *Verifier) CreateFromLegacyPath(ctx context.Context, store *target.Store, imagePath string, opts Options) (*string, error) {
	fullURL := v.ResolveURL(imagePath)
	if fullURL == "" {
		return nil, nil
	}

	ok, err := v.probe(ctx, fullURL)
	if v.onProbe != nil {
		v.onProbe(ok && err == nil)
	}
	if err != nil {
		v.logger.Warn("Image probe failed, skipping",
			zap.String("path", imagePath),
			zap.Error(err))
		return nil, nil
	}
	if !ok {
		v.logger.Warn("Image not reachable, skipping",
			zap.String("url", fullURL))
		return nil, nil
	}

	fileName := imagePath
	if i := strings.LastIndex(fileName, "/"); i >= 0 {
		fileName = fileName[i+1:]
	}
	if fileName == "" {
		fileName = defaultFileName
	}
	altText := opts.AltText
	if altText == "" {
		altText = fileName
	}

	m := &target.Media{
		URL:             fullURL,
		MediaType:       mediaTypeImage,
		FileName:        fileName,
		StorageProvider: legacyProvider,
		AltText:         altText,
		Title:           opts.Title,
		Category:        opts.Category,
	}
	if err := store.CreateMedia(ctx, m); err != nil {
		return nil, fmt.Errorf("create media record for %s: %w", imagePath, err)
	}
	return &m.ID, nil
}

func (v *Verifier) probe(ctx context.Context, url string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false, err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}
