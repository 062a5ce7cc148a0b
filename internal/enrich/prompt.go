package enrich

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lox/releaf/internal/models"
)

var ErrNoJSON = errors.New("no JSON object in response")

// BuildPrompt asks for the fixed VisionRecord schema for one spot.
func BuildPrompt(spot models.PrioritySpot) string {
	return fmt.Sprintf(`You are assessing a street-level photograph for urban tree planting.

Location: latitude %.6f, longitude %.6f
Plantable area: %.1f square metres
Priority score: %.1f/100

Reply with a single JSON object and nothing else, using exactly these fields:
{
  "tree_count": <integer, all visible trees>,
  "mature_trees": <integer, large established trees>,
  "young_trees": <integer, small trees and saplings>,
  "tree_health": "<excellent|good|fair|poor>",
  "tree_species_hints": "<species suggested by form or foliage>",
  "surroundings": "<buildings and land use: residential, commercial, mixed>",
  "road_characteristics": "<approximate width, traffic level, surface condition>",
  "sidewalk_space": "<sidewalk width, free planting space, surface type>",
  "sunlight_exposure": "<full sun|partial shade|full shade, and what casts shade>",
  "obstacles": "<poles, signs, grates, overhead wires, driveways>",
  "planting_feasibility": "<high|medium|low>",
  "recommended_tree_count": <integer, new trees that would fit>,
  "spacing_suggestion": "<spacing between new trees in metres>",
  "planting_recommendations": "<specific advice for this spot>"
}

Count carefully. Use 0 when there are no trees.`,
		spot.Coordinates.Latitude, spot.Coordinates.Longitude, spot.AreaM2, spot.PriorityScore)
}

// ParseResponse extracts a VisionRecord from model output that may be wrapped in
// code fences or surrounded by prose.
func ParseResponse(text string) (*models.VisionRecord, error) {
	s := strings.TrimSpace(text)

	if i := strings.Index(s, "```"); i >= 0 {
		body := s[i+3:]
		body = strings.TrimPrefix(body, "json")
		if j := strings.Index(body, "```"); j >= 0 {
			body = body[:j]
		}
		s = strings.TrimSpace(body)
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return nil, ErrNoJSON
	}

	var rec models.VisionRecord
	if err := json.Unmarshal([]byte(s[start:end+1]), &rec); err != nil {
		return nil, fmt.Errorf("decode vision record: %w", err)
	}
	return &rec, nil
}
