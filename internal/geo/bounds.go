package geo

import "math"

const (
	// GroundResolution is the assumed ground distance covered by one raster pixel.
	GroundResolution = 0.6 // metres per pixel

	metresPerDegreeLat = 111320.0
	earthRadiusM       = 6371000.0
)

// Bounds is the geographic rectangle covered by a satellite raster.
type Bounds struct {
	MinLon float64 `json:"min_lon"`
	MinLat float64 `json:"min_lat"`
	MaxLon float64 `json:"max_lon"`
	MaxLat float64 `json:"max_lat"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
}

// NewBounds derives the raster footprint from its centre coordinate and pixel size.
func NewBounds(lat, lon float64, width, height int) Bounds {
	halfW := float64(width) / 2 * GroundResolution
	halfH := float64(height) / 2 * GroundResolution
	dLat := MetresToLatDegrees(halfH)
	dLon := MetresToLonDegrees(halfW, lat)
	return Bounds{
		MinLon: lon - dLon,
		MinLat: lat - dLat,
		MaxLon: lon + dLon,
		MaxLat: lat + dLat,
		Width:  width,
		Height: height,
	}
}

// Center returns the centre coordinate of the bounds.
func (b Bounds) Center() Point {
	return Point{Lon: (b.MinLon + b.MaxLon) / 2, Lat: (b.MinLat + b.MaxLat) / 2}
}

// PixelToGeo converts a pixel index to the coordinate of that pixel's centre.
// Row 0 is the northern edge.
func (b Bounds) PixelToGeo(x, y float64) Point {
	lon := b.MinLon + (x+0.5)/float64(b.Width)*(b.MaxLon-b.MinLon)
	lat := b.MaxLat - (y+0.5)/float64(b.Height)*(b.MaxLat-b.MinLat)
	return Point{Lon: lon, Lat: lat}
}

// GeoToPixel converts a coordinate to continuous pixel space, where (0,0) is the
// top-left corner of the top-left pixel.
func (b Bounds) GeoToPixel(p Point) (x, y float64) {
	x = (p.Lon - b.MinLon) / (b.MaxLon - b.MinLon) * float64(b.Width)
	y = (b.MaxLat - p.Lat) / (b.MaxLat - b.MinLat) * float64(b.Height)
	return x, y
}

// Contains reports whether p lies inside the bounds.
func (b Bounds) Contains(p Point) bool {
	return p.Lon >= b.MinLon && p.Lon <= b.MaxLon && p.Lat >= b.MinLat && p.Lat <= b.MaxLat
}

// MetresToPixels converts a ground distance to pixels at GroundResolution.
func MetresToPixels(m float64) float64 {
	return m / GroundResolution
}

// PixelArea returns the ground area of n pixels in square metres.
func PixelArea(n int) float64 {
	return float64(n) * GroundResolution * GroundResolution
}

// MetresToLatDegrees converts a north-south distance to degrees of latitude.
func MetresToLatDegrees(m float64) float64 {
	return m / metresPerDegreeLat
}

// MetresToLonDegrees converts an east-west distance at latitude lat to degrees of longitude.
func MetresToLonDegrees(m, lat float64) float64 {
	return m / (metresPerDegreeLat * math.Cos(lat*math.Pi/180))
}

// Haversine returns the great-circle distance between two points in metres.
func Haversine(a, b Point) float64 {
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusM * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}
