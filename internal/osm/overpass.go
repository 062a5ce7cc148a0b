// Package osm downloads buildings, streets and amenities for an analysis area from
// an OpenStreetMap Overpass endpoint.
package osm

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/serjvanilla/go-overpass"

	"github.com/lox/releaf/internal/geo"
	"github.com/lox/releaf/internal/httputil"
)

const DefaultEndpoint = "https://overpass-api.de/api/interpreter"

// Geometry is the raw (unaligned) vector data for one area.
type Geometry struct {
	Buildings geo.Collection
	Streets   geo.Collection
	Amenities []geo.Point
}

// Source fetches buildings, streets and amenities from an Overpass endpoint.
type Source struct {
	client     overpass.Client
	maxElapsed time.Duration
}

// New creates a Source. A nil httpClient gets one sized for slow Overpass queries.
func New(endpoint string, httpClient *http.Client) *Source {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if httpClient == nil {
		httpClient = httputil.NewClientWithTimeout(90 * time.Second)
	}
	return &Source{
		client:     overpass.NewWithSettings(endpoint, 2, httpClient),
		maxElapsed: 2 * time.Minute,
	}
}

// Query builds the Overpass QL request for everything inside b.
func Query(b geo.Bounds) string {
	bbox := fmt.Sprintf("%.7f,%.7f,%.7f,%.7f", b.MinLat, b.MinLon, b.MaxLat, b.MaxLon)
	return fmt.Sprintf(`
		[out:json][timeout:60];
		(
			way["building"](%[1]s);
			way["highway"](%[1]s);
			node["amenity"](%[1]s);
			way["amenity"](%[1]s);
		);
		out body;
		>;
		out skel qt;
	`, bbox)
}

// Fetch downloads and converts the geometry inside b, retrying transient failures.
func (s *Source) Fetch(ctx context.Context, b geo.Bounds) (*Geometry, error) {
	q := Query(b)
	var result overpass.Result

	operation := func() error {
		res, err := s.query(ctx, q)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			log.Printf("osm: overpass query failed, retrying: %v", err)
			return err
		}
		result = res
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Second
	bo.MaxElapsedTime = s.maxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, fmt.Errorf("overpass query: %w", err)
	}

	g := Convert(fromResult(result))
	log.Printf("osm: %d buildings, %d streets, %d amenities", len(g.Buildings), len(g.Streets), len(g.Amenities))
	return g, nil
}

// query runs the blocking client call so that ctx can abandon it.
func (s *Source) query(ctx context.Context, q string) (overpass.Result, error) {
	type reply struct {
		res overpass.Result
		err error
	}
	ch := make(chan reply, 1)
	go func() {
		res, err := s.client.Query(q)
		ch <- reply{res, err}
	}()
	select {
	case r := <-ch:
		return r.res, r.err
	case <-ctx.Done():
		return overpass.Result{}, ctx.Err()
	}
}

// element is a node or way reduced to what conversion needs.
type element struct {
	ID     int64
	Way    bool
	Tags   map[string]string
	Coords []geo.Point
}

func fromResult(r overpass.Result) []element {
	var out []element
	for _, n := range r.Nodes {
		if len(n.Tags) == 0 {
			continue // way vertices
		}
		out = append(out, element{
			ID:     n.ID,
			Tags:   n.Tags,
			Coords: []geo.Point{{Lon: n.Lon, Lat: n.Lat}},
		})
	}
	for _, w := range r.Ways {
		coords := make([]geo.Point, 0, len(w.Nodes))
		for _, n := range w.Nodes {
			if n == nil {
				continue
			}
			coords = append(coords, geo.Point{Lon: n.Lon, Lat: n.Lat})
		}
		out = append(out, element{ID: w.ID, Way: true, Tags: w.Tags, Coords: coords})
	}
	return out
}
