package models

import (
	"image"
	"time"

	"github.com/lox/releaf/internal/geo"
	"github.com/lox/releaf/internal/raster"
)

// Location is one analysis request and the artifacts derived for it as it passes
// through the pipeline. Every raster artifact shares the satellite image's grid.
type Location struct {
	RunID       string
	Name        string
	Description string
	Lat         float64
	Lon         float64

	Satellite image.Image
	Bounds    geo.Bounds

	BuildingsRaw     geo.Collection
	StreetsRaw       geo.Collection
	BuildingsAligned geo.Collection
	StreetsAligned   geo.Collection
	Amenities        []geo.Point

	ShadowMask      *raster.Mask
	VegetationMask  *raster.Mask
	NDVI            *raster.Grid
	ShadowIntensity float64

	BuildingMask *raster.Mask
	StreetMask   *raster.Mask
	SidewalkMask *raster.Mask

	Priority *PriorityResult
}

// Size returns the satellite raster's pixel dimensions.
func (l *Location) Size() (int, int) {
	if l.Satellite == nil {
		return 0, 0
	}
	b := l.Satellite.Bounds()
	return b.Dx(), b.Dy()
}

// Band is a composite score classification.
type Band string

const (
	BandCritical Band = "critical"
	BandHigh     Band = "high"
	BandMedium   Band = "medium"
	BandLow      Band = "low"
)

// Bands holds one mask per priority band plus the non-plantable pixels.
type Bands struct {
	Critical *raster.Mask `json:"critical"`
	High     *raster.Mask `json:"high"`
	Medium   *raster.Mask `json:"medium"`
	Low      *raster.Mask `json:"low"`
	Excluded *raster.Mask `json:"excluded"`
}

// PriorityResult is the scorer output for one location.
type PriorityResult struct {
	Composite *raster.Grid   `json:"enhanced_priority_score"`
	Sidewalk  *raster.Grid   `json:"sidewalk_component"`
	Building  *raster.Grid   `json:"building_component"`
	Sun       *raster.Grid   `json:"sun_component"`
	Amenity   *raster.Grid   `json:"amenity_component"`
	Bands     Bands          `json:"bands"`
	Spots     []PrioritySpot `json:"critical_priority_spots"`
}

// Coordinates is a latitude/longitude pair as written to summaries.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// PrioritySpot is one connected region of the critical band.
type PrioritySpot struct {
	ID              int         `json:"spot_id"`
	Coordinates     Coordinates `json:"coordinates"`
	PriorityScore   float64     `json:"priority_score"`
	AreaM2          float64     `json:"area_m2"`
	AreaPixels      int         `json:"area_pixels"`
	PixelX          float64     `json:"pixel_x"`
	PixelY          float64     `json:"pixel_y"`
	PreviewImageURL string      `json:"preview_image_url,omitempty"`
}

// VisionRecord is the ground-level characterisation returned by the vision model.
type VisionRecord struct {
	TreeCount               FlexInt `json:"tree_count"`
	MatureTrees             FlexInt `json:"mature_trees"`
	YoungTrees              FlexInt `json:"young_trees"`
	TreeHealth              string  `json:"tree_health"`
	TreeSpeciesHints        string  `json:"tree_species_hints,omitempty"`
	Surroundings            string  `json:"surroundings"`
	RoadCharacteristics     string  `json:"road_characteristics"`
	SidewalkSpace           string  `json:"sidewalk_space"`
	SunlightExposure        string  `json:"sunlight_exposure"`
	Obstacles               string  `json:"obstacles"`
	PlantingFeasibility     string  `json:"planting_feasibility"`
	RecommendedTreeCount    FlexInt `json:"recommended_tree_count"`
	SpacingSuggestion       string  `json:"spacing_suggestion"`
	PlantingRecommendations string  `json:"planting_recommendations,omitempty"`
}

// SpotTiming records how long each external call took for a spot.
type SpotTiming struct {
	Imagery time.Duration `json:"imagery_ns"`
	Vision  time.Duration `json:"vision_ns"`
	Total   time.Duration `json:"total_ns"`
}

// SpotAnalysis is the enrichment outcome for one spot. Vision is nil when no image
// was available or the model call failed; Error then explains why.
type SpotAnalysis struct {
	SpotNumber     int           `json:"spot_number"`
	Spot           PrioritySpot  `json:"spot_info"`
	Location       Coordinates   `json:"location"`
	ImageAvailable bool          `json:"street_view_available"`
	Vision         *VisionRecord `json:"vision_analysis"`
	Error          string        `json:"error,omitempty"`
	Cached         bool          `json:"cached,omitempty"`
	Timing         SpotTiming    `json:"timing"`
}

// PlantingCandidate is an analysed spot with no existing trees.
type PlantingCandidate struct {
	SpotNumber           int         `json:"spot_number"`
	Location             Coordinates `json:"location"`
	PriorityScore        float64     `json:"priority_score"`
	TreeCount            int         `json:"tree_count"`
	PlantingFeasibility  string      `json:"planting_feasibility"`
	RecommendedTreeCount int         `json:"recommended_tree_count"`
	Reason               string      `json:"reason"`
}

// EnrichmentSummary aggregates over spots that produced a vision record.
type EnrichmentSummary struct {
	SpotsWithTrees       int                 `json:"spots_with_trees"`
	SpotsWithoutTrees    int                 `json:"spots_without_trees"`
	TotalTreesDetected   int                 `json:"total_trees_detected"`
	AverageTreesPerSpot  float64             `json:"average_trees_per_spot"`
	HighestPriorityPlant []PlantingCandidate `json:"highest_priority_for_planting"`
}

// Recommendations are short human-readable next steps derived from the summary.
type Recommendations struct {
	ImmediatePlanting string `json:"immediate_planting"`
	MaintenanceFocus  string `json:"maintenance_focus"`
}

// EnrichedResult is the outcome of enriching a batch of spots. TotalSpotsAnalyzed
// counts only spots that produced a vision record.
type EnrichedResult struct {
	TotalSpotsAnalyzed int               `json:"total_spots_analyzed"`
	Results            []SpotAnalysis    `json:"results"`
	Summary            EnrichmentSummary `json:"summary"`
	Recommendations    Recommendations   `json:"recommendations"`
}

// BandStats summarises how many pixels fall in each band.
type BandStats struct {
	Critical int `json:"critical_pixels"`
	High     int `json:"high_pixels"`
	Medium   int `json:"medium_pixels"`
	Low      int `json:"low_pixels"`
	Excluded int `json:"excluded_pixels"`
}

// Summary is the serialisable digest of one location's analysis.
type Summary struct {
	RunID           string         `json:"run_id"`
	Name            string         `json:"name"`
	Description     string         `json:"description,omitempty"`
	Coordinates     Coordinates    `json:"coordinates"`
	Bounds          geo.Bounds     `json:"bounds"`
	ShadowIntensity float64        `json:"shadow_intensity"`
	MaxScore        float64        `json:"max_priority_score"`
	Bands           BandStats      `json:"bands"`
	PlantablePct    float64        `json:"plantable_area_pct"`
	Spots           []PrioritySpot `json:"critical_priority_spots"`
}
