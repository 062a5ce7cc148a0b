// Package imagery resolves ground-level photographs for a coordinate.
package imagery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lox/releaf/internal/httputil"
)

// ErrNoImagery is returned when the provider has no image for a coordinate. It is
// an expected outcome, not a failure.
var ErrNoImagery = errors.New("no ground-level imagery")

// maximum accepted image size
const maxImageBytes = 20 << 20

// HTTPSource fetches images from a URL template containing {lat} and {lon}.
type HTTPSource struct {
	client      *http.Client
	urlTemplate string
	maxElapsed  time.Duration
}

type Option func(*HTTPSource)

func WithHTTPClient(c *http.Client) Option {
	return func(s *HTTPSource) { s.client = c }
}

// WithMaxElapsed bounds the total time spent retrying one request.
func WithMaxElapsed(d time.Duration) Option {
	return func(s *HTTPSource) { s.maxElapsed = d }
}

// NewHTTPSource returns a source that fills {lat} and {lon} in urlTemplate.
func NewHTTPSource(urlTemplate string, opts ...Option) *HTTPSource {
	s := &HTTPSource{
		client:      httputil.NewClient(),
		urlTemplate: urlTemplate,
		maxElapsed:  time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *HTTPSource) URL(lat, lon float64) string {
	return strings.NewReplacer(
		"{lat}", strconv.FormatFloat(lat, 'f', 6, 64),
		"{lon}", strconv.FormatFloat(lon, 'f', 6, 64),
	).Replace(s.urlTemplate)
}

// GroundImage downloads the image for a coordinate, retrying transient failures.
// A 404 or 204 response, or an empty body, yields ErrNoImagery.
func (s *HTTPSource) GroundImage(ctx context.Context, lat, lon float64) ([]byte, error) {
	url := s.URL(lat, lon)
	var body []byte

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		resp, err := s.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("fetch image: %w", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent:
			return backoff.Permanent(ErrNoImagery)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("fetch image: status %d", resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(fmt.Errorf("fetch image: status %d: %s", resp.StatusCode, string(b)))
		}

		body, err = io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("read body: %w", err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = s.maxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, ErrNoImagery
	}
	return body, nil
}

// DirSource serves images from a local directory, named by coordinate as written
// by Cache or by an offline download.
type DirSource struct {
	dir string
}

// NewDirSource returns a source reading pre-downloaded images from dir.
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

func (s *DirSource) GroundImage(ctx context.Context, lat, lon float64) ([]byte, error) {
	for _, ext := range []string{".jpg", ".jpeg", ".png"} {
		data, err := os.ReadFile(filepath.Join(s.dir, Key(lat, lon)+ext))
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read image: %w", err)
		}
	}
	return nil, ErrNoImagery
}

// Source is anything that can resolve a ground-level image.
type Source interface {
	GroundImage(ctx context.Context, lat, lon float64) ([]byte, error)
}

// CachedSource consults a Cache before falling through to the wrapped source.
type CachedSource struct {
	src   Source
	cache *Cache
}

// NewCachedSource wraps src with an on-disk cache.
func NewCachedSource(src Source, cache *Cache) *CachedSource {
	return &CachedSource{src: src, cache: cache}
}

func (s *CachedSource) GroundImage(ctx context.Context, lat, lon float64) ([]byte, error) {
	if data, ok := s.cache.Get(lat, lon); ok {
		return data, nil
	}
	data, err := s.src.GroundImage(ctx, lat, lon)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(lat, lon, data); err != nil {
		log.Printf("imagery: cache write failed for %s: %v", Key(lat, lon), err)
	}
	return data, nil
}
