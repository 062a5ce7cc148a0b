package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/lox/releaf/internal/align"
	"github.com/lox/releaf/internal/enrich"
	"github.com/lox/releaf/internal/imagery"
	"github.com/lox/releaf/internal/osm"
	"github.com/lox/releaf/internal/pipeline"
	"github.com/lox/releaf/internal/priority"
	"github.com/lox/releaf/internal/store"
	"github.com/lox/releaf/internal/vision"
)

const imageCacheMaxAge = 30 * 24 * time.Hour

// openStore returns nil when run history is disabled.
func (g *Globals) openStore() (*store.Store, error) {
	if g.DB == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(g.DB), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	st, err := store.Open(g.DB)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

func (g *Globals) engine(st *store.Store, delay time.Duration) *pipeline.Engine {
	scorer := priority.New()
	scorer.MaxSpots = g.MaxSpots
	scorer.PreviewURLTemplate = g.PreviewURL

	return pipeline.New(pipeline.Options{
		Aligner:   align.New(align.Calibration{Scale: g.AlignScale, NorthM: g.AlignNorth, EastM: g.AlignEast}),
		Scorer:    scorer,
		Store:     st,
		OutputDir: g.OutputDir,
		Geometry:  osm.New(g.OverpassURL, nil),
		Delay:     delay,
	})
}

// enricher wires the imagery source, vision model and optional Redis cache. The
// returned cleanup closes the cache connection.
func (g *Globals) enricher(ctx context.Context) (*enrich.Enricher, func(), error) {
	var src imagery.Source
	switch {
	case g.ImageryDir != "":
		src = imagery.NewDirSource(g.ImageryDir)
	case g.ImageryURL != "":
		src = imagery.NewHTTPSource(g.ImageryURL)
		if g.ImageCacheDir != "" {
			src = imagery.NewCachedSource(src, imagery.NewCache(g.ImageCacheDir, imageCacheMaxAge))
		}
	default:
		return nil, nil, errors.New("no ground-level imagery configured (--imagery-url or --imagery-dir)")
	}

	opts := []vision.Option{vision.WithModel(g.VisionModel)}
	if g.VisionBaseURL != "" {
		opts = append(opts, vision.WithBaseURL(g.VisionBaseURL))
	}
	model, err := vision.New(g.OpenAIKey, opts...)
	if err != nil {
		return nil, nil, err
	}

	enrichOpts := []enrich.Option{enrich.WithSpotTimeout(g.SpotTimeout)}
	cleanup := func() {}
	if g.RedisURL != "" {
		cache, err := vision.NewRedisCache(g.RedisURL, vision.DefaultCacheTTL)
		if err != nil {
			return nil, nil, err
		}
		if err := cache.Ping(ctx); err != nil {
			log.Printf("enrich: redis unavailable, continuing without cache: %v", err)
			cache.Close()
		} else {
			enrichOpts = append(enrichOpts, enrich.WithCache(cache))
			cleanup = func() { cache.Close() }
		}
	}
	return enrich.New(src, model, enrichOpts...), cleanup, nil
}
