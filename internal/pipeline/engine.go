// Package pipeline runs the priority engine for one location or a batch of them.
package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/lox/releaf/internal/align"
	"github.com/lox/releaf/internal/detect"
	"github.com/lox/releaf/internal/geo"
	"github.com/lox/releaf/internal/mask"
	"github.com/lox/releaf/internal/metrics"
	"github.com/lox/releaf/internal/models"
	"github.com/lox/releaf/internal/priority"
	"github.com/lox/releaf/internal/raster"
	"github.com/lox/releaf/internal/render"
	"github.com/lox/releaf/internal/scene"
	"github.com/lox/releaf/internal/store"
)

// Stage names used in errors, metrics and the run history.
const (
	StageLoad    = "load"
	StageAlign   = "align"
	StageDetect  = "detect"
	StageMask    = "mask"
	StageScore   = "score"
	StagePersist = "persist"
)

// StageError reports which stage failed for which location.
type StageError struct {
	Location string
	Stage    string
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Location, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Options configures an Engine. Nil components get their defaults.
type Options struct {
	Aligner    *align.Aligner
	Detector   *detect.Detector
	Rasterizer *mask.Rasterizer
	Scorer     *priority.Scorer

	// Store, when set, records every run.
	Store *store.Store

	// OutputDir, when set, receives summary JSON and rendered PNGs per location.
	OutputDir string

	// Geometry fills in building, street and amenity layers for batch jobs that
	// ask for it.
	Geometry GeometrySource

	// Delay between batch locations.
	Delay time.Duration
}

// Engine holds the explicitly constructed stage components. It is safe to share
// between goroutines processing different locations.
type Engine struct {
	aligner    *align.Aligner
	detector   *detect.Detector
	rasterizer *mask.Rasterizer
	scorer     *priority.Scorer
	store      *store.Store
	outputDir  string
	geometry   GeometrySource
	delay      time.Duration
}

// New builds an engine from opts, filling in default components.
func New(opts Options) *Engine {
	e := &Engine{
		aligner:    opts.Aligner,
		detector:   opts.Detector,
		rasterizer: opts.Rasterizer,
		scorer:     opts.Scorer,
		store:      opts.Store,
		outputDir:  opts.OutputDir,
		geometry:   opts.Geometry,
		delay:      opts.Delay,
	}
	if e.aligner == nil {
		e.aligner = align.New(align.DefaultCalibration)
	}
	if e.detector == nil {
		e.detector = detect.New()
	}
	if e.scorer == nil {
		e.scorer = priority.New()
	}
	if e.rasterizer == nil {
		e.rasterizer = mask.New(e.scorer.Resolution)
	}
	return e
}

// NewLocation creates a Location with a fresh run ID.
func NewLocation(name, description string, lat, lon float64) *models.Location {
	return &models.Location{
		RunID:       uuid.NewString(),
		Name:        name,
		Description: description,
		Lat:         lat,
		Lon:         lon,
	}
}

// ProcessLocation runs load, align, detect, mask and score for one location,
// then persists the result if a store or output directory is configured. A
// failure is returned as a *StageError.
func (e *Engine) ProcessLocation(ctx context.Context, loc *models.Location, in scene.Input) (err error) {
	if loc.RunID == "" {
		loc.RunID = uuid.NewString()
	}
	started := time.Now()
	run := &store.Run{
		ID:          loc.RunID,
		Name:        loc.Name,
		Description: loc.Description,
		Lat:         loc.Lat,
		Lon:         loc.Lon,
		StartedAt:   started.UTC(),
	}
	if e.store != nil {
		if err := e.store.SaveRun(run); err != nil {
			log.Printf("pipeline: %s: record run start: %v", loc.Name, err)
		}
	}

	defer func() {
		status := "success"
		if err != nil {
			status = "failed"
		}
		metrics.LocationsProcessed.WithLabelValues(status).Inc()
		if e.store == nil {
			return
		}
		run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
		run.Success = err == nil
		var se *StageError
		if errors.As(err, &se) {
			run.FailedStage = sql.NullString{String: se.Stage, Valid: true}
			run.ErrorMessage = sql.NullString{String: se.Err.Error(), Valid: true}
		}
		if serr := e.store.SaveRun(run); serr != nil {
			log.Printf("pipeline: %s: record run: %v", loc.Name, serr)
		}
	}()

	stages := []struct {
		name string
		fn   func() error
	}{
		{StageLoad, func() error { return e.load(loc, in) }},
		{StageAlign, func() error { return e.align(loc) }},
		{StageDetect, func() error { return e.detect(loc) }},
		{StageMask, func() error { return e.mask(loc) }},
		{StageScore, func() error { return e.score(loc) }},
	}
	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			return &StageError{Location: loc.Name, Stage: st.name, Err: err}
		}
		t := time.Now()
		if err := runStage(st.fn); err != nil {
			return &StageError{Location: loc.Name, Stage: st.name, Err: err}
		}
		metrics.StageDuration.WithLabelValues(st.name).Observe(time.Since(t).Seconds())
	}

	run.Summary = Summarize(loc)
	if err := runStage(func() error { return e.persist(loc, run.Summary) }); err != nil {
		return &StageError{Location: loc.Name, Stage: StagePersist, Err: err}
	}

	log.Printf("pipeline: %s: %d spots, max score %.1f, %.1f%% plantable (%s)",
		loc.Name, len(run.Summary.Spots), run.Summary.MaxScore, run.Summary.PlantablePct,
		time.Since(started).Round(time.Millisecond))
	return nil
}

// runStage turns a panic inside fn into an error so one bad location cannot take
// down a batch.
func runStage(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func (e *Engine) load(loc *models.Location, in scene.Input) error {
	if in.Image == nil || in.Image.Bounds().Empty() {
		return errors.New("no satellite image")
	}
	if !(geo.Point{Lon: loc.Lon, Lat: loc.Lat}).Valid() {
		return fmt.Errorf("invalid coordinate %.6f,%.6f", loc.Lat, loc.Lon)
	}
	loc.Satellite = in.Image
	w, h := loc.Size()
	loc.Bounds = geo.NewBounds(loc.Lat, loc.Lon, w, h)
	loc.BuildingsRaw = in.Buildings
	loc.StreetsRaw = geo.ClassifyStreets(in.Streets)
	loc.Amenities = in.Amenities

	if len(in.Buildings) == 0 && len(in.Streets) == 0 {
		log.Printf("pipeline: %s: no building or street geometry", loc.Name)
	}
	return nil
}

func (e *Engine) align(loc *models.Location) error {
	loc.BuildingsAligned = e.aligner.Align(loc.BuildingsRaw, loc.Lat, loc.Lon)
	loc.StreetsAligned = e.aligner.Align(loc.StreetsRaw, loc.Lat, loc.Lon)
	loc.Amenities = e.aligner.AlignPoints(loc.Amenities, loc.Lat, loc.Lon)
	return nil
}

func (e *Engine) detect(loc *models.Location) error {
	det, err := e.detector.Detect(loc.Satellite)
	if err != nil {
		return err
	}
	loc.ShadowMask = det.Shadow
	loc.VegetationMask = det.Vegetation
	loc.NDVI = det.NDVI
	loc.ShadowIntensity = detect.Intensity(det.Shadow)
	return nil
}

func (e *Engine) mask(loc *models.Location) error {
	w, h := loc.Size()
	b := loc.Bounds
	loc.BuildingMask = e.rasterizer.BuildingMask(loc.BuildingsAligned, w, h, b)
	loc.StreetMask = e.rasterizer.StreetMask(loc.StreetsAligned, w, h, b)
	loc.SidewalkMask = e.rasterizer.SidewalkMask(loc.StreetsAligned, w, h, b, mask.SidewalkBuffer)
	return nil
}

func (e *Engine) score(loc *models.Location) error {
	res, err := e.scorer.Score(priority.Input{
		Bounds:          loc.Bounds,
		ShadowIntensity: loc.ShadowIntensity,
		Sidewalk:        loc.SidewalkMask,
		Building:        loc.BuildingMask,
		Street:          loc.StreetMask,
		Vegetation:      loc.VegetationMask,
		Amenities:       loc.Amenities,
	})
	if err != nil {
		return err
	}
	loc.Priority = res
	metrics.SpotsExtracted.Add(float64(len(res.Spots)))
	return nil
}

func (e *Engine) persist(loc *models.Location, sum *models.Summary) error {
	if e.store != nil {
		surfaces := map[string]*raster.Grid{
			"composite": loc.Priority.Composite,
			"sidewalk":  loc.Priority.Sidewalk,
			"building":  loc.Priority.Building,
			"sun":       loc.Priority.Sun,
			"amenity":   loc.Priority.Amenity,
		}
		for name, g := range surfaces {
			if err := e.store.SaveSurface(loc.RunID, name, g); err != nil {
				return err
			}
		}
	}

	if e.outputDir == "" {
		return nil
	}
	dir := filepath.Join(e.outputDir, Slug(loc.Name))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := WriteSummary(filepath.Join(dir, "summary.json"), sum); err != nil {
		return err
	}

	analysis, err := render.Analysis(loc)
	if err != nil {
		return fmt.Errorf("render analysis: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "analysis.png"), analysis, 0644); err != nil {
		return fmt.Errorf("write analysis: %w", err)
	}
	components, err := render.Components(loc)
	if err != nil {
		return fmt.Errorf("render components: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "components.png"), components, 0644); err != nil {
		return fmt.Errorf("write components: %w", err)
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
