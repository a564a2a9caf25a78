package raster

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"popgrid/pkg/cache"
	"popgrid/pkg/domain"
	"popgrid/pkg/logger"
	"popgrid/pkg/metrics"
	"popgrid/pkg/serrors"

	"go.uber.org/zap"
)

// WorldPop downloads age/sex population grids from the WorldPop HTTP mirror.
// Downloads are stored in a TTL file cache keyed by URL, so repeated runs over
// the same inputs do not touch the network. It is safe for concurrent use.
type WorldPop struct {
	httpClient *http.Client
	baseURL    string
	cache      *cache.FileCache
}

// NewWorldPop constructs a WorldPop source using the provided http.Client,
// mirror base URL and download cache. The cache may be nil to disable caching.
func NewWorldPop(httpClient *http.Client, baseURL string, fileCache *cache.FileCache) *WorldPop {
	return &WorldPop{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		cache:      fileCache,
	}
}

// URL returns the mirror URL for the given unit, following the WorldPop layout
// {base}/{ISO3}/v1.0/{SEX}_{ageGroup}.asc.
func (w *WorldPop) URL(key domain.UnitKey) string {
	return fmt.Sprintf("%s/%s/v1.0/%s", w.baseURL, key.Country, FileName(key))
}

// Fetch returns the raw grid bytes for key, from cache when possible. A 404 or
// 410 from the mirror is reported as ErrDataUnavailable so callers can record
// the unit as skipped instead of failing the run.
func (w *WorldPop) Fetch(ctx context.Context, key domain.UnitKey) ([]byte, error) {
	url := w.URL(key)

	if w.cache != nil {
		path, ok, err := w.cache.Get(url)
		if err != nil {
			return nil, fmt.Errorf("could not check download cache: %w", err)
		}
		if ok {
			metrics.CacheHits.WithLabelValues("hit").Inc()
			logger.Debug(ctx, "serving raster from cache", zap.String("unit", key.String()))

			return os.ReadFile(path)
		}
		metrics.CacheHits.WithLabelValues("miss").Inc()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, serrors.Wrap(serrors.ErrDataUnavailable, err, "could not reach mirror for %s", key)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return nil, serrors.With(serrors.ErrDataUnavailable, "mirror has no grid for %s", key)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, serrors.With(serrors.ErrDataUnavailable, "mirror returned %s for %s", resp.Status, key)
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, serrors.Wrap(serrors.ErrDataUnavailable, err, "could not read mirror response for %s", key)
	}

	if w.cache != nil {
		if _, err := w.cache.Put(url, b); err != nil {
			// Cache failures must not fail the download.
			logger.Warn(ctx, "could not cache raster", zap.String("unit", key.String()), zap.Error(err))
		}
	}

	return b, nil
}

// Ensure WorldPop conforms to the Source interface at compile time.
var _ Source = (*WorldPop)(nil)
