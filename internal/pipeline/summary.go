package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/lox/releaf/internal/models"
)

// Summarize digests a scored location. It returns nil before scoring has run.
func Summarize(loc *models.Location) *models.Summary {
	if loc == nil || loc.Priority == nil {
		return nil
	}
	p := loc.Priority
	stats := models.BandStats{
		Critical: p.Bands.Critical.Count(),
		High:     p.Bands.High.Count(),
		Medium:   p.Bands.Medium.Count(),
		Low:      p.Bands.Low.Count(),
		Excluded: p.Bands.Excluded.Count(),
	}

	var pct float64
	if total := loc.Bounds.Width * loc.Bounds.Height; total > 0 {
		pct = round2(100 * float64(total-stats.Excluded) / float64(total))
	}

	spots := make([]models.PrioritySpot, len(p.Spots))
	copy(spots, p.Spots)

	return &models.Summary{
		RunID:           loc.RunID,
		Name:            loc.Name,
		Description:     loc.Description,
		Coordinates:     models.Coordinates{Latitude: loc.Lat, Longitude: loc.Lon},
		Bounds:          loc.Bounds,
		ShadowIntensity: round2(loc.ShadowIntensity),
		MaxScore:        round2(p.Composite.Max()),
		Bands:           stats,
		PlantablePct:    pct,
		Spots:           spots,
	}
}

// WriteSummary writes the summary as indented JSON.
func WriteSummary(path string, sum *models.Summary) error {
	data, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

// Slug turns a location name into a directory name.
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	s := strings.TrimSuffix(b.String(), "-")
	if s == "" {
		return "location"
	}
	return s
}
