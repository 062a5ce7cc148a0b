// Package enrich fetches ground-level imagery for priority spots and asks a vision
// model to describe what is already there. Every spot is processed independently;
// a failure is recorded on that spot and never aborts its siblings.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lox/releaf/internal/imagery"
	"github.com/lox/releaf/internal/metrics"
	"github.com/lox/releaf/internal/models"
)

const (
	DefaultMaxSpots    = 5
	DefaultSpotTimeout = 60 * time.Second
)

// ImageSource returns ground-level imagery for a coordinate.
type ImageSource interface {
	// GroundImage returns imagery.ErrNoImagery when nothing is available.
	GroundImage(ctx context.Context, lat, lon float64) ([]byte, error)
}

// VisionModel describes an image.
type VisionModel interface {
	Analyze(ctx context.Context, image []byte, prompt string) (string, error)
}

// Cache stores vision records by coordinate.
type Cache interface {
	Get(ctx context.Context, lat, lon float64) (*models.VisionRecord, bool)
	Put(ctx context.Context, lat, lon float64, rec *models.VisionRecord)
}

// Enricher adds street-level observations to the top priority spots.
type Enricher struct {
	images      ImageSource
	model       VisionModel
	cache       Cache
	timeout     time.Duration
	concurrency int
}

type Option func(*Enricher)

// WithSpotTimeout bounds the image fetch and model call of a single spot.
func WithSpotTimeout(d time.Duration) Option {
	return func(e *Enricher) { e.timeout = d }
}

func WithCache(c Cache) Option {
	return func(e *Enricher) { e.cache = c }
}

// WithConcurrency limits how many spots are in flight at once. Zero launches
// every spot together.
func WithConcurrency(n int) Option {
	return func(e *Enricher) { e.concurrency = n }
}

// New returns an enricher reading images from images and describing them with model.
func New(images ImageSource, model VisionModel, opts ...Option) *Enricher {
	e := &Enricher{
		images:  images,
		model:   model,
		timeout: DefaultSpotTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enrich analyses up to maxSpots spots concurrently and waits for all of them.
func (e *Enricher) Enrich(ctx context.Context, spots []models.PrioritySpot, maxSpots int) *models.EnrichedResult {
	if maxSpots <= 0 {
		maxSpots = DefaultMaxSpots
	}
	n := min(len(spots), maxSpots)
	results := make([]models.SpotAnalysis, n)

	start := time.Now()
	log.Printf("enrich: analysing %d of %d spots", n, len(spots))

	// A plain Group: one spot failing must not cancel the others.
	var g errgroup.Group
	if e.concurrency > 0 {
		g.SetLimit(e.concurrency)
	}
	for i := range n {
		g.Go(func() error {
			results[i] = e.enrichSpot(ctx, i+1, spots[i])
			return nil
		})
	}
	g.Wait()

	res := Summarize(results)
	log.Printf("enrich: %d of %d spots analysed, %d trees detected in %s",
		res.TotalSpotsAnalyzed, n, res.Summary.TotalTreesDetected, time.Since(start).Round(time.Millisecond))
	return res
}

func (e *Enricher) enrichSpot(ctx context.Context, num int, spot models.PrioritySpot) (sa models.SpotAnalysis) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	sa = models.SpotAnalysis{
		SpotNumber: num,
		Spot:       spot,
		Location:   spot.Coordinates,
	}
	lat, lon := spot.Coordinates.Latitude, spot.Coordinates.Longitude

	outcome := "ok"
	defer func() {
		sa.Timing.Total = time.Since(start)
		metrics.SpotEnrichments.WithLabelValues(outcome).Inc()
	}()

	if e.cache != nil {
		if rec, ok := e.cache.Get(ctx, lat, lon); ok {
			sa.ImageAvailable = true
			sa.Vision = rec
			sa.Cached = true
			outcome = "cached"
			return sa
		}
	}

	img, err := e.images.GroundImage(ctx, lat, lon)
	sa.Timing.Imagery = time.Since(start)
	if err != nil {
		if errors.Is(err, imagery.ErrNoImagery) {
			log.Printf("enrich: spot %d: no ground imagery at %.6f,%.6f", num, lat, lon)
			outcome = "no_image"
		} else {
			log.Printf("enrich: spot %d: image fetch failed: %v", num, err)
			sa.Error = fmt.Sprintf("image fetch: %v", err)
			outcome = "image_error"
		}
		return sa
	}
	sa.ImageAvailable = true

	visionStart := time.Now()
	text, err := e.model.Analyze(ctx, img, BuildPrompt(spot))
	sa.Timing.Vision = time.Since(visionStart)
	if err != nil {
		log.Printf("enrich: spot %d: vision call failed: %v", num, err)
		sa.Error = fmt.Sprintf("vision: %v", err)
		outcome = "vision_error"
		return sa
	}

	rec, err := ParseResponse(text)
	if err != nil {
		log.Printf("enrich: spot %d: unparseable response: %v", num, err)
		sa.Error = fmt.Sprintf("parse response: %v", err)
		outcome = "parse_error"
		return sa
	}
	sa.Vision = rec

	if e.cache != nil {
		e.cache.Put(ctx, lat, lon, rec)
	}
	return sa
}

// Summarize aggregates over the spots that produced a vision record.
func Summarize(results []models.SpotAnalysis) *models.EnrichedResult {
	res := &models.EnrichedResult{Results: results}
	s := &res.Summary

	for _, r := range results {
		if r.Vision == nil {
			continue
		}
		res.TotalSpotsAnalyzed++
		trees := int(r.Vision.TreeCount)
		s.TotalTreesDetected += trees
		if trees > 0 {
			s.SpotsWithTrees++
			continue
		}
		s.SpotsWithoutTrees++
		feasibility := r.Vision.PlantingFeasibility
		if feasibility == "" {
			feasibility = "unknown"
		}
		s.HighestPriorityPlant = append(s.HighestPriorityPlant, models.PlantingCandidate{
			SpotNumber:           r.SpotNumber,
			Location:             r.Location,
			PriorityScore:        r.Spot.PriorityScore,
			TreeCount:            trees,
			PlantingFeasibility:  feasibility,
			RecommendedTreeCount: int(r.Vision.RecommendedTreeCount),
			Reason:               "No existing trees, ready for new planting",
		})
	}
	if res.TotalSpotsAnalyzed > 0 {
		avg := float64(s.TotalTreesDetected) / float64(res.TotalSpotsAnalyzed)
		s.AverageTreesPerSpot = math.Round(avg*100) / 100
	}

	res.Recommendations = models.Recommendations{
		ImmediatePlanting: fmt.Sprintf("%d spot(s) have no existing trees and are ready for planting", s.SpotsWithoutTrees),
		MaintenanceFocus:  fmt.Sprintf("%d spot(s) have existing trees; assess their health and species diversity", s.SpotsWithTrees),
	}
	return res
}
