// Package metrics holds the Prometheus instruments shared across the pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "releaf_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	LocationsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "releaf_locations_processed_total",
			Help: "Locations processed by the pipeline",
		},
		[]string{"status"},
	)

	SpotsExtracted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "releaf_spots_extracted_total",
			Help: "Critical priority spots extracted",
		},
	)

	SpotEnrichments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "releaf_spot_enrichments_total",
			Help: "Spot enrichment outcomes",
		},
		[]string{"outcome"},
	)

	VisionLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "releaf_vision_latency_seconds",
			Help:    "Vision model call latency in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)
)

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
