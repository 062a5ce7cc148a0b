package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/lox/releaf/internal/models"
	"github.com/lox/releaf/internal/pipeline"
	"github.com/lox/releaf/internal/scene"
	"github.com/lox/releaf/internal/store"
)

type AnalyzeCmd struct {
	Name        string  `help:"Location name." required:""`
	Description string  `help:"Human description of the location."`
	Lat         float64 `help:"Centre latitude." required:""`
	Lon         float64 `help:"Centre longitude." required:""`
	Image       string  `help:"Satellite image (PNG, JPEG, TIFF or WebP)." required:"" type:"existingfile"`
	Buildings   string  `help:"Building footprints GeoJSON."`
	Streets     string  `help:"Street GeoJSON with highway or tier properties."`
	Amenities   string  `help:"Amenity points GeoJSON."`
	FetchOSM    bool    `name:"fetch-osm" help:"Download missing geometry from Overpass."`
	Enrich      bool    `help:"Run vision enrichment on the extracted spots."`
}

func (c *AnalyzeCmd) Run(g *Globals, ctx context.Context) error {
	st, err := g.openStore()
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
	}

	spec := scene.LocationSpec{
		Name:        c.Name,
		Description: c.Description,
		Lat:         c.Lat,
		Lon:         c.Lon,
		Image:       c.Image,
		Buildings:   c.Buildings,
		Streets:     c.Streets,
		Amenities:   c.Amenities,
		FetchOSM:    c.FetchOSM,
	}
	report := g.engine(st, 0).ProcessBatch(ctx, []pipeline.Job{{Spec: spec}})
	if len(report.Failed) > 0 {
		f := report.Failed[0]
		return fmt.Errorf("%s failed at %s: %s", f.Location, f.Stage, f.Error)
	}
	sum := report.Succeeded[0]
	printSummary(sum)

	if !c.Enrich {
		return nil
	}
	return runEnrichment(ctx, g, st, sum.RunID, sum.Spots)
}

type BatchCmd struct {
	Manifest string `arg:"" help:"YAML manifest of locations." type:"existingfile"`
	Enrich   bool   `help:"Run vision enrichment on each successful location."`
}

func (c *BatchCmd) Run(g *Globals, ctx context.Context) error {
	m, err := scene.LoadManifest(c.Manifest)
	if err != nil {
		return err
	}
	st, err := g.openStore()
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
	}

	report := g.engine(st, m.Delay).ProcessBatch(ctx, pipeline.JobsFromManifest(m))
	for _, sum := range report.Succeeded {
		printSummary(sum)
		if c.Enrich {
			if err := runEnrichment(ctx, g, st, sum.RunID, sum.Spots); err != nil {
				log.Printf("enrich: %s: %v", sum.Name, err)
			}
		}
	}

	if g.OutputDir != "" {
		if err := writeJSON(filepath.Join(g.OutputDir, "batch_report.json"), report); err != nil {
			return err
		}
	}
	if len(report.Failed) > 0 {
		return fmt.Errorf("%d of %d locations failed", len(report.Failed), len(m.Locations))
	}
	return nil
}

type EnrichCmd struct {
	RunID string `name:"run" help:"Run ID to enrich." required:""`
}

func (c *EnrichCmd) Run(g *Globals, ctx context.Context) error {
	st, err := g.openStore()
	if err != nil {
		return err
	}
	if st == nil {
		return errors.New("enrich needs run history (--db)")
	}
	defer st.Close()

	run, err := st.GetRun(c.RunID)
	if err != nil {
		return err
	}
	if run.Summary == nil || len(run.Summary.Spots) == 0 {
		log.Printf("enrich: run %s has no spots", run.ID)
		return nil
	}
	return runEnrichment(ctx, g, st, run.ID, run.Summary.Spots)
}

type RunsCmd struct {
	Limit int `help:"Maximum runs to list." default:"20"`
}

func (c *RunsCmd) Run(g *Globals) error {
	st, err := g.openStore()
	if err != nil {
		return err
	}
	if st == nil {
		return errors.New("runs needs run history (--db)")
	}
	defer st.Close()

	runs, err := st.ListRuns(c.Limit)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTARTED\tSTATUS\tMAX SCORE\tPLANTABLE %")
	for _, r := range runs {
		status := "ok"
		if !r.Success {
			status = "failed"
			if r.FailedStage.Valid {
				status = "failed: " + r.FailedStage.String
			} else if !r.FinishedAt.Valid {
				status = "incomplete"
			}
		}
		score, pct := "-", "-"
		if r.Summary != nil {
			score = fmt.Sprintf("%.1f", r.Summary.MaxScore)
			pct = fmt.Sprintf("%.1f", r.Summary.PlantablePct)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.Name, r.StartedAt.Format("2006-01-02 15:04"), status, score, pct)
	}
	return w.Flush()
}

func runEnrichment(ctx context.Context, g *Globals, st *store.Store, runID string, spots []models.PrioritySpot) error {
	if len(spots) == 0 {
		log.Printf("enrich: run %s has no spots", runID)
		return nil
	}
	e, cleanup, err := g.enricher(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	res := e.Enrich(ctx, spots, g.MaxSpots)
	log.Printf("enrich: %d of %d spots analysed, %d with trees, %d without",
		res.TotalSpotsAnalyzed, len(res.Results), res.Summary.SpotsWithTrees, res.Summary.SpotsWithoutTrees)
	log.Printf("enrich: %s", res.Recommendations.ImmediatePlanting)

	if st != nil {
		if err := st.SaveEnrichment(runID, res); err != nil {
			return fmt.Errorf("save enrichment: %w", err)
		}
	}
	if g.OutputDir != "" {
		if err := writeJSON(filepath.Join(g.OutputDir, "enrichment_"+runID+".json"), res); err != nil {
			return err
		}
	}
	return nil
}

func printSummary(sum *models.Summary) {
	fmt.Printf("%s (%s)\n", sum.Name, sum.RunID)
	fmt.Printf("  max score %.1f, plantable %.1f%%, shadow %.2f\n", sum.MaxScore, sum.PlantablePct, sum.ShadowIntensity)
	fmt.Printf("  bands: critical %d, high %d, medium %d, low %d px\n",
		sum.Bands.Critical, sum.Bands.High, sum.Bands.Medium, sum.Bands.Low)
	for _, s := range sum.Spots {
		fmt.Printf("  #%d  %.6f,%.6f  score %.1f  %.1f m²\n",
			s.ID, s.Coordinates.Latitude, s.Coordinates.Longitude, s.PriorityScore, s.AreaM2)
	}
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, data, 0644)
}
