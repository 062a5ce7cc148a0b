package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/lox/releaf/internal/geo"
	"github.com/lox/releaf/internal/models"
	"github.com/lox/releaf/internal/osm"
	"github.com/lox/releaf/internal/scene"
)

// GeometrySource downloads vector layers covering a bounding box.
type GeometrySource interface {
	Fetch(ctx context.Context, b geo.Bounds) (*osm.Geometry, error)
}

// Job is one location of a batch.
type Job struct {
	Spec scene.LocationSpec
}

// JobsFromManifest turns every manifest entry into a job.
func JobsFromManifest(m *scene.Manifest) []Job {
	jobs := make([]Job, len(m.Locations))
	for i, spec := range m.Locations {
		jobs[i] = Job{Spec: spec}
	}
	return jobs
}

// Failure is a location that did not complete.
type Failure struct {
	Location string `json:"location"`
	Stage    string `json:"stage"`
	Error    string `json:"error"`
}

// BatchReport lists what happened to every job.
type BatchReport struct {
	Succeeded []*models.Summary `json:"succeeded"`
	Failed    []Failure         `json:"failed"`
	Duration  time.Duration     `json:"duration_ns"`
}

func (r *BatchReport) String() string {
	return fmt.Sprintf("%d succeeded, %d failed in %s",
		len(r.Succeeded), len(r.Failed), r.Duration.Round(time.Second))
}

// ProcessBatch processes jobs one at a time and keeps going past failures.
// Cancelling ctx stops before the next job; the remaining jobs are reported as
// failed.
func (e *Engine) ProcessBatch(ctx context.Context, jobs []Job) *BatchReport {
	start := time.Now()
	report := &BatchReport{}

	for i, job := range jobs {
		if i > 0 && e.delay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(e.delay):
			}
		}
		if err := ctx.Err(); err != nil {
			report.Failed = append(report.Failed, Failure{Location: job.Spec.Name, Stage: StageLoad, Error: err.Error()})
			continue
		}

		log.Printf("pipeline: [%d/%d] %s", i+1, len(jobs), job.Spec.Name)
		sum, err := e.runJob(ctx, job)
		if err != nil {
			f := Failure{Location: job.Spec.Name, Stage: StageLoad, Error: err.Error()}
			var se *StageError
			if errors.As(err, &se) {
				f.Stage = se.Stage
				f.Error = se.Err.Error()
			}
			log.Printf("pipeline: %s failed at %s: %s", f.Location, f.Stage, f.Error)
			report.Failed = append(report.Failed, f)
			continue
		}
		report.Succeeded = append(report.Succeeded, sum)
	}

	report.Duration = time.Since(start)
	log.Printf("pipeline: batch complete: %s", report)
	for _, f := range report.Failed {
		log.Printf("pipeline:   failed %s (%s): %s", f.Location, f.Stage, f.Error)
	}
	return report
}

func (e *Engine) runJob(ctx context.Context, job Job) (sum *models.Summary, err error) {
	spec := job.Spec
	defer func() {
		if r := recover(); r != nil {
			sum, err = nil, &StageError{Location: spec.Name, Stage: StageLoad, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if err := spec.Validate(); err != nil {
		return nil, &StageError{Location: spec.Name, Stage: StageLoad, Err: err}
	}
	in, err := scene.Load(spec)
	if err != nil {
		return nil, &StageError{Location: spec.Name, Stage: StageLoad, Err: err}
	}

	if spec.FetchOSM && e.geometry != nil {
		if err := e.fillGeometry(ctx, spec, in); err != nil {
			return nil, &StageError{Location: spec.Name, Stage: StageLoad, Err: err}
		}
	}

	loc := NewLocation(spec.Name, spec.Description, spec.Lat, spec.Lon)
	if err := e.ProcessLocation(ctx, loc, *in); err != nil {
		return nil, err
	}
	return Summarize(loc), nil
}

// fillGeometry downloads whichever layers the spec did not supply from disk.
func (e *Engine) fillGeometry(ctx context.Context, spec scene.LocationSpec, in *scene.Input) error {
	if spec.Buildings != "" && spec.Streets != "" && spec.Amenities != "" {
		return nil
	}
	b := in.Image.Bounds()
	bounds := geo.NewBounds(spec.Lat, spec.Lon, b.Dx(), b.Dy())

	g, err := e.geometry.Fetch(ctx, bounds)
	if err != nil {
		return fmt.Errorf("fetch geometry: %w", err)
	}
	if spec.Buildings == "" {
		in.Buildings = g.Buildings
	}
	if spec.Streets == "" {
		in.Streets = g.Streets
	}
	if spec.Amenities == "" {
		in.Amenities = g.Amenities
	}
	log.Printf("pipeline: %s: fetched %d buildings, %d streets, %d amenities",
		spec.Name, len(g.Buildings), len(g.Streets), len(g.Amenities))
	return nil
}
