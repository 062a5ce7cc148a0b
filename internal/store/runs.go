package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lox/releaf/internal/geo"
	"github.com/lox/releaf/internal/models"
)

// Run is one location's pass through the pipeline. Summary is nil until the
// scoring stage completes.
type Run struct {
	ID           string
	Name         string
	Description  string
	Lat          float64
	Lon          float64
	StartedAt    time.Time
	FinishedAt   sql.NullTime
	Success      bool
	FailedStage  sql.NullString
	ErrorMessage sql.NullString
	Summary      *models.Summary
}

// SaveRun inserts or updates a run. When the run carries a summary its spots
// replace any previously stored for the run.
func (s *Store) SaveRun(run *Run) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("save run: missing id")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var (
		width, height, critical, high, medium, low, excluded sql.NullInt64
		minLon, minLat, maxLon, maxLat                       sql.NullFloat64
		shadow, maxScore, plantable                          sql.NullFloat64
	)
	if sum := run.Summary; sum != nil {
		width = nullInt(sum.Bounds.Width)
		height = nullInt(sum.Bounds.Height)
		minLon = nullFloat(sum.Bounds.MinLon)
		minLat = nullFloat(sum.Bounds.MinLat)
		maxLon = nullFloat(sum.Bounds.MaxLon)
		maxLat = nullFloat(sum.Bounds.MaxLat)
		shadow = nullFloat(sum.ShadowIntensity)
		maxScore = nullFloat(sum.MaxScore)
		plantable = nullFloat(sum.PlantablePct)
		critical = nullInt(sum.Bands.Critical)
		high = nullInt(sum.Bands.High)
		medium = nullInt(sum.Bands.Medium)
		low = nullInt(sum.Bands.Low)
		excluded = nullInt(sum.Bands.Excluded)
	}

	_, err = tx.Exec(`
		INSERT INTO analysis_runs (id, name, description, latitude, longitude, started_at, finished_at,
			success, failed_stage, error_message, width, height, min_lon, min_lat, max_lon, max_lat,
			shadow_intensity, max_score, critical_pixels, high_pixels, medium_pixels, low_pixels,
			excluded_pixels, plantable_pct)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			finished_at = excluded.finished_at,
			success = excluded.success,
			failed_stage = excluded.failed_stage,
			error_message = excluded.error_message,
			width = COALESCE(excluded.width, width),
			height = COALESCE(excluded.height, height),
			min_lon = COALESCE(excluded.min_lon, min_lon),
			min_lat = COALESCE(excluded.min_lat, min_lat),
			max_lon = COALESCE(excluded.max_lon, max_lon),
			max_lat = COALESCE(excluded.max_lat, max_lat),
			shadow_intensity = COALESCE(excluded.shadow_intensity, shadow_intensity),
			max_score = COALESCE(excluded.max_score, max_score),
			critical_pixels = COALESCE(excluded.critical_pixels, critical_pixels),
			high_pixels = COALESCE(excluded.high_pixels, high_pixels),
			medium_pixels = COALESCE(excluded.medium_pixels, medium_pixels),
			low_pixels = COALESCE(excluded.low_pixels, low_pixels),
			excluded_pixels = COALESCE(excluded.excluded_pixels, excluded_pixels),
			plantable_pct = COALESCE(excluded.plantable_pct, plantable_pct)
	`, run.ID, run.Name, run.Description, run.Lat, run.Lon, run.StartedAt.UTC(), run.FinishedAt,
		run.Success, run.FailedStage, run.ErrorMessage, width, height, minLon, minLat, maxLon, maxLat,
		shadow, maxScore, critical, high, medium, low, excluded, plantable)
	if err != nil {
		return fmt.Errorf("upsert run %s: %w", run.ID, err)
	}

	if run.Summary != nil {
		if _, err := tx.Exec(`DELETE FROM priority_spots WHERE run_id = ?`, run.ID); err != nil {
			return fmt.Errorf("clear spots: %w", err)
		}
		for _, sp := range run.Summary.Spots {
			_, err := tx.Exec(`
				INSERT INTO priority_spots (run_id, spot_id, latitude, longitude, priority_score,
					area_m2, area_pixels, pixel_x, pixel_y, preview_url)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, run.ID, sp.ID, sp.Coordinates.Latitude, sp.Coordinates.Longitude, sp.PriorityScore,
				sp.AreaM2, sp.AreaPixels, sp.PixelX, sp.PixelY, sp.PreviewImageURL)
			if err != nil {
				return fmt.Errorf("insert spot %d: %w", sp.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

const runColumns = `id, name, COALESCE(description, ''), latitude, longitude, started_at, finished_at,
	success, failed_stage, error_message, width, height, min_lon, min_lat, max_lon, max_lat,
	shadow_intensity, max_score, critical_pixels, high_pixels, medium_pixels, low_pixels,
	excluded_pixels, plantable_pct`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		r                                                    Run
		width, height, critical, high, medium, low, excluded sql.NullInt64
		minLon, minLat, maxLon, maxLat                       sql.NullFloat64
		shadow, maxScore, plantable                          sql.NullFloat64
	)
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.Lat, &r.Lon, &r.StartedAt, &r.FinishedAt,
		&r.Success, &r.FailedStage, &r.ErrorMessage, &width, &height, &minLon, &minLat, &maxLon, &maxLat,
		&shadow, &maxScore, &critical, &high, &medium, &low, &excluded, &plantable)
	if err != nil {
		return nil, err
	}

	if width.Valid {
		r.Summary = &models.Summary{
			RunID:       r.ID,
			Name:        r.Name,
			Description: r.Description,
			Coordinates: models.Coordinates{Latitude: r.Lat, Longitude: r.Lon},
			Bounds: geo.Bounds{
				MinLon: minLon.Float64, MinLat: minLat.Float64,
				MaxLon: maxLon.Float64, MaxLat: maxLat.Float64,
				Width: int(width.Int64), Height: int(height.Int64),
			},
			ShadowIntensity: shadow.Float64,
			MaxScore:        maxScore.Float64,
			PlantablePct:    plantable.Float64,
			Bands: models.BandStats{
				Critical: int(critical.Int64),
				High:     int(high.Int64),
				Medium:   int(medium.Int64),
				Low:      int(low.Int64),
				Excluded: int(excluded.Int64),
			},
		}
	}
	return &r, nil
}

// GetRun loads a run and its spots.
func (s *Store) GetRun(id string) (*Run, error) {
	r, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM analysis_runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}

	if r.Summary != nil {
		spots, err := s.GetSpots(id)
		if err != nil {
			return nil, err
		}
		r.Summary.Spots = spots
	}
	return r, nil
}

// GetSpots returns a run's spots in rank order.
func (s *Store) GetSpots(runID string) ([]models.PrioritySpot, error) {
	rows, err := s.db.Query(`
		SELECT spot_id, latitude, longitude, priority_score, area_m2, area_pixels,
		       pixel_x, pixel_y, COALESCE(preview_url, '')
		FROM priority_spots WHERE run_id = ? ORDER BY spot_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query spots: %w", err)
	}
	defer rows.Close()

	var spots []models.PrioritySpot
	for rows.Next() {
		var sp models.PrioritySpot
		if err := rows.Scan(&sp.ID, &sp.Coordinates.Latitude, &sp.Coordinates.Longitude,
			&sp.PriorityScore, &sp.AreaM2, &sp.AreaPixels, &sp.PixelX, &sp.PixelY, &sp.PreviewImageURL); err != nil {
			return nil, err
		}
		spots = append(spots, sp)
	}
	return spots, rows.Err()
}

// ListRuns returns the most recent runs first, without spots.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM analysis_runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// SaveEnrichment stores one row per analysed spot, replacing earlier results for
// the same spots.
func (s *Store) SaveEnrichment(runID string, res *models.EnrichedResult) error {
	if res == nil {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, a := range res.Results {
		var record sql.NullString
		var trees sql.NullInt64
		if a.Vision != nil {
			data, err := json.Marshal(a.Vision)
			if err != nil {
				return fmt.Errorf("marshal vision record: %w", err)
			}
			record = sql.NullString{String: string(data), Valid: true}
			trees = nullInt(int(a.Vision.TreeCount))
		}

		_, err := tx.Exec(`
			INSERT INTO vision_results (run_id, spot_id, spot_number, analyzed_at, image_available,
				cached, tree_count, record_json, error_message, imagery_ms, vision_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id, spot_id) DO UPDATE SET
				spot_number = excluded.spot_number,
				analyzed_at = excluded.analyzed_at,
				image_available = excluded.image_available,
				cached = excluded.cached,
				tree_count = excluded.tree_count,
				record_json = excluded.record_json,
				error_message = excluded.error_message,
				imagery_ms = excluded.imagery_ms,
				vision_ms = excluded.vision_ms
		`, runID, a.Spot.ID, a.SpotNumber, now, a.ImageAvailable, a.Cached, trees, record,
			a.Error, a.Timing.Imagery.Milliseconds(), a.Timing.Vision.Milliseconds())
		if err != nil {
			return fmt.Errorf("insert vision result for spot %d: %w", a.Spot.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit enrichment: %w", err)
	}
	return nil
}

// GetEnrichment returns the stored per-spot results for a run, joined with the
// spot they describe. The summary is not stored and must be recomputed.
func (s *Store) GetEnrichment(runID string) ([]models.SpotAnalysis, error) {
	rows, err := s.db.Query(`
		SELECT v.spot_number, v.image_available, v.cached, v.record_json, COALESCE(v.error_message, ''),
		       v.imagery_ms, v.vision_ms,
		       p.spot_id, p.latitude, p.longitude, p.priority_score, p.area_m2, p.area_pixels,
		       p.pixel_x, p.pixel_y, COALESCE(p.preview_url, '')
		FROM vision_results v
		JOIN priority_spots p ON p.run_id = v.run_id AND p.spot_id = v.spot_id
		WHERE v.run_id = ?
		ORDER BY v.spot_number
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query enrichment: %w", err)
	}
	defer rows.Close()

	var out []models.SpotAnalysis
	for rows.Next() {
		var (
			a                models.SpotAnalysis
			record           sql.NullString
			imageryMs, visMs int64
		)
		sp := &a.Spot
		if err := rows.Scan(&a.SpotNumber, &a.ImageAvailable, &a.Cached, &record, &a.Error,
			&imageryMs, &visMs, &sp.ID, &sp.Coordinates.Latitude, &sp.Coordinates.Longitude,
			&sp.PriorityScore, &sp.AreaM2, &sp.AreaPixels, &sp.PixelX, &sp.PixelY, &sp.PreviewImageURL); err != nil {
			return nil, err
		}
		if record.Valid {
			var v models.VisionRecord
			if err := json.Unmarshal([]byte(record.String), &v); err != nil {
				return nil, fmt.Errorf("decode vision record for spot %d: %w", sp.ID, err)
			}
			a.Vision = &v
		}
		a.Location = sp.Coordinates
		a.Timing.Imagery = time.Duration(imageryMs) * time.Millisecond
		a.Timing.Vision = time.Duration(visMs) * time.Millisecond
		out = append(out, a)
	}
	return out, rows.Err()
}

func nullInt(v int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: true}
}

func nullFloat(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: true}
}
