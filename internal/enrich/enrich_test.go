package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lox/releaf/internal/imagery"
	"github.com/lox/releaf/internal/models"
)

type fakeImages struct {
	missing map[float64]bool // by latitude
	broken  map[float64]bool
}

func (f *fakeImages) GroundImage(ctx context.Context, lat, lon float64) ([]byte, error) {
	if f.missing[lat] {
		return nil, imagery.ErrNoImagery
	}
	if f.broken[lat] {
		return nil, errors.New("connection reset")
	}
	return []byte(fmt.Sprintf("img-%v", lat)), nil
}

type fakeModel struct {
	calls     atomic.Int32
	responses map[string]string // by image
	delay     time.Duration
}

func (f *fakeModel) Analyze(ctx context.Context, img []byte, prompt string) (string, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if r, ok := f.responses[string(img)]; ok {
		return r, nil
	}
	return `{"tree_count": 1, "planting_feasibility": "medium"}`, nil
}

func spots(n int) []models.PrioritySpot {
	out := make([]models.PrioritySpot, n)
	for i := range out {
		out[i] = models.PrioritySpot{
			ID:            i + 1,
			Coordinates:   models.Coordinates{Latitude: float64(i + 1), Longitude: 100},
			PriorityScore: 90 - float64(i),
			AreaM2:        10,
		}
	}
	return out
}

func TestEnrich_PartialFailures(t *testing.T) {
	images := &fakeImages{missing: map[float64]bool{2: true, 4: true}}
	model := &fakeModel{responses: map[string]string{
		"img-3": "I could not see anything useful.",
	}}

	res := New(images, model).Enrich(context.Background(), spots(5), 5)

	if len(res.Results) != 5 {
		t.Fatalf("results = %d, want 5", len(res.Results))
	}
	if got := model.calls.Load(); got != 3 {
		t.Errorf("vision calls = %d, want 3", got)
	}

	var unavailable int
	for i, r := range res.Results {
		if r.SpotNumber != i+1 || r.Spot.ID != i+1 {
			t.Errorf("result %d out of order: spot number %d", i, r.SpotNumber)
		}
		if !r.ImageAvailable {
			unavailable++
			if r.Vision != nil {
				t.Errorf("spot %d: vision record without image", r.SpotNumber)
			}
		}
	}
	if unavailable != 2 {
		t.Errorf("unavailable = %d, want 2", unavailable)
	}

	bad := res.Results[2]
	if bad.Vision != nil || !strings.Contains(bad.Error, "parse response") {
		t.Errorf("malformed spot: vision=%v error=%q", bad.Vision, bad.Error)
	}
	for _, i := range []int{0, 4} {
		if res.Results[i].Vision == nil {
			t.Errorf("spot %d should have a record: %q", i+1, res.Results[i].Error)
		}
	}
	if res.TotalSpotsAnalyzed != 2 {
		t.Errorf("TotalSpotsAnalyzed = %d, want 2", res.TotalSpotsAnalyzed)
	}
}

func TestEnrich_ImageErrorIsRecorded(t *testing.T) {
	images := &fakeImages{broken: map[float64]bool{1: true}}
	model := &fakeModel{}

	res := New(images, model).Enrich(context.Background(), spots(2), 5)

	if r := res.Results[0]; r.ImageAvailable || !strings.Contains(r.Error, "connection reset") {
		t.Errorf("broken spot = %+v", r)
	}
	if res.Results[1].Vision == nil {
		t.Error("sibling spot should still succeed")
	}
	if model.calls.Load() != 1 {
		t.Errorf("vision calls = %d, want 1", model.calls.Load())
	}
}

func TestEnrich_MaxSpots(t *testing.T) {
	model := &fakeModel{}
	res := New(&fakeImages{}, model).Enrich(context.Background(), spots(8), 3)
	if len(res.Results) != 3 || model.calls.Load() != 3 {
		t.Errorf("results = %d, calls = %d, want 3 and 3", len(res.Results), model.calls.Load())
	}

	res = New(&fakeImages{}, &fakeModel{}).Enrich(context.Background(), spots(8), 0)
	if len(res.Results) != DefaultMaxSpots {
		t.Errorf("default cap: results = %d, want %d", len(res.Results), DefaultMaxSpots)
	}

	res = New(&fakeImages{}, &fakeModel{}).Enrich(context.Background(), nil, 5)
	if len(res.Results) != 0 || res.TotalSpotsAnalyzed != 0 {
		t.Errorf("no spots: %+v", res)
	}
}

func TestEnrich_Timeout(t *testing.T) {
	model := &fakeModel{delay: 5 * time.Second}
	e := New(&fakeImages{}, model, WithSpotTimeout(50*time.Millisecond))

	start := time.Now()
	res := e.Enrich(context.Background(), spots(3), 3)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("enrichment hung for %v", elapsed)
	}
	for _, r := range res.Results {
		if r.Vision != nil || !strings.Contains(r.Error, "deadline") {
			t.Errorf("spot %d: error = %q, want deadline exceeded", r.SpotNumber, r.Error)
		}
		if !r.ImageAvailable {
			t.Errorf("spot %d: image should be available", r.SpotNumber)
		}
	}
}

func TestEnrich_RunsConcurrently(t *testing.T) {
	model := &fakeModel{delay: 200 * time.Millisecond}
	start := time.Now()
	New(&fakeImages{}, model).Enrich(context.Background(), spots(5), 5)
	if elapsed := time.Since(start); elapsed > 900*time.Millisecond {
		t.Errorf("5 spots took %v, expected them to run together", elapsed)
	}
}

type memCache struct {
	mu   sync.Mutex
	recs map[float64]*models.VisionRecord
}

func (c *memCache) Get(ctx context.Context, lat, lon float64) (*models.VisionRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.recs[lat]
	return r, ok
}

func (c *memCache) Put(ctx context.Context, lat, lon float64, rec *models.VisionRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recs[lat] = rec
}

func TestEnrich_Cache(t *testing.T) {
	cache := &memCache{recs: map[float64]*models.VisionRecord{}}
	model := &fakeModel{}
	e := New(&fakeImages{}, model, WithCache(cache))

	first := e.Enrich(context.Background(), spots(2), 5)
	second := e.Enrich(context.Background(), spots(2), 5)

	if model.calls.Load() != 2 {
		t.Errorf("vision calls = %d, want 2", model.calls.Load())
	}
	for i := range second.Results {
		if first.Results[i].Cached || !second.Results[i].Cached {
			t.Errorf("spot %d: cached first=%v second=%v", i+1, first.Results[i].Cached, second.Results[i].Cached)
		}
	}
	if second.TotalSpotsAnalyzed != 2 {
		t.Errorf("cached records should count as analysed, got %d", second.TotalSpotsAnalyzed)
	}
}

func TestSummarize(t *testing.T) {
	results := []models.SpotAnalysis{
		{SpotNumber: 1, Spot: models.PrioritySpot{PriorityScore: 95}, Vision: &models.VisionRecord{TreeCount: 3}},
		{SpotNumber: 2, Spot: models.PrioritySpot{PriorityScore: 90}, Vision: &models.VisionRecord{TreeCount: 0, RecommendedTreeCount: 4, PlantingFeasibility: "high"}},
		{SpotNumber: 3, Error: "vision: boom"},
		{SpotNumber: 4, Spot: models.PrioritySpot{PriorityScore: 85}, Vision: &models.VisionRecord{TreeCount: 0}},
		{SpotNumber: 5, Vision: &models.VisionRecord{TreeCount: 2}},
		{SpotNumber: 6, Vision: &models.VisionRecord{TreeCount: 2}},
	}

	res := Summarize(results)
	s := res.Summary

	if res.TotalSpotsAnalyzed != 5 {
		t.Errorf("TotalSpotsAnalyzed = %d, want 5", res.TotalSpotsAnalyzed)
	}
	if s.SpotsWithTrees != 3 || s.SpotsWithoutTrees != 2 {
		t.Errorf("with/without = %d/%d, want 3/2", s.SpotsWithTrees, s.SpotsWithoutTrees)
	}
	if s.TotalTreesDetected != 7 {
		t.Errorf("TotalTreesDetected = %d, want 7", s.TotalTreesDetected)
	}
	if s.AverageTreesPerSpot != 1.4 {
		t.Errorf("AverageTreesPerSpot = %v, want 1.4", s.AverageTreesPerSpot)
	}
	if len(s.HighestPriorityPlant) != 2 {
		t.Fatalf("candidates = %d, want 2", len(s.HighestPriorityPlant))
	}
	c := s.HighestPriorityPlant[0]
	if c.SpotNumber != 2 || c.RecommendedTreeCount != 4 || c.PlantingFeasibility != "high" {
		t.Errorf("first candidate = %+v", c)
	}
	if s.HighestPriorityPlant[1].PlantingFeasibility != "unknown" {
		t.Errorf("missing feasibility should read unknown, got %q", s.HighestPriorityPlant[1].PlantingFeasibility)
	}
}

func TestSummarize_RoundsAverage(t *testing.T) {
	res := Summarize([]models.SpotAnalysis{
		{Vision: &models.VisionRecord{TreeCount: 1}},
		{Vision: &models.VisionRecord{TreeCount: 1}},
		{Vision: &models.VisionRecord{TreeCount: 0}},
	})
	if res.Summary.AverageTreesPerSpot != 0.67 {
		t.Errorf("AverageTreesPerSpot = %v, want 0.67", res.Summary.AverageTreesPerSpot)
	}
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    int
		wantErr bool
	}{
		{"bare", `{"tree_count": 4}`, 4, false},
		{"json fence", "```json\n{\"tree_count\": 2}\n```", 2, false},
		{"plain fence", "```\n{\"tree_count\": 3}\n```", 3, false},
		{"prose around", "Here is the analysis:\n{\"tree_count\": 5, \"obstacles\": \"a {pole}\"}\nThanks!", 5, false},
		{"fence after prose", "Sure.\n```json\n{\"tree_count\": 6}\n```", 6, false},
		{"string count", `{"tree_count": "7"}`, 7, false},
		{"null count", `{"tree_count": null}`, 0, false},
		{"no json", "no trees visible", 0, true},
		{"truncated", `{"tree_count": 4, "surroundings": "bus`, 0, true},
		{"empty", "", 0, true},
	}

	for _, tt := range tests {
		rec, err := ParseResponse(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s: expected error", tt.name)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: %v", tt.name, err)
			continue
		}
		if int(rec.TreeCount) != tt.want {
			t.Errorf("%s: tree_count = %d, want %d", tt.name, rec.TreeCount, tt.want)
		}
	}

	if _, err := ParseResponse("nothing"); !errors.Is(err, ErrNoJSON) {
		t.Errorf("err = %v, want ErrNoJSON", err)
	}
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt(models.PrioritySpot{
		Coordinates:   models.Coordinates{Latitude: 13.7563, Longitude: 100.5018},
		AreaM2:        12.6,
		PriorityScore: 84.31,
	})
	for _, want := range []string{"13.756300", "100.501800", "12.6 square metres", "84.3/100", `"recommended_tree_count"`, `"spacing_suggestion"`} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
