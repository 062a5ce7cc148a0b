// Package scene loads the inputs of an analysis from disk: batch manifests,
// satellite rasters and GeoJSON geometry.
package scene

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Manifest describes a batch of locations to analyse.
type Manifest struct {
	// Delay between locations, to stay within provider rate limits.
	Delay     time.Duration  `yaml:"delay"`
	Locations []LocationSpec `yaml:"locations" validate:"required,min=1,dive"`
}

// LocationSpec names one location and the files holding its inputs. Geometry files
// are optional; when FetchOSM is set, missing geometry is downloaded instead.
type LocationSpec struct {
	Name        string  `yaml:"name" validate:"required,max=100"`
	Description string  `yaml:"description"`
	Lat         float64 `yaml:"lat" validate:"latitude"`
	Lon         float64 `yaml:"lon" validate:"longitude"`
	Image       string  `yaml:"image" validate:"required"`
	Buildings   string  `yaml:"buildings"`
	Streets     string  `yaml:"streets"`
	Amenities   string  `yaml:"amenities"`
	FetchOSM    bool    `yaml:"fetch_osm"`
}

var validate = validator.New()

// Validate checks a single location spec.
func (s LocationSpec) Validate() error {
	return validate.Struct(s)
}

// LoadManifest reads and validates a YAML manifest. Relative file paths are
// resolved against the manifest's directory.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if err := validate.Struct(m); err != nil {
		return nil, fmt.Errorf("validate manifest: %w", err)
	}

	seen := make(map[string]bool, len(m.Locations))
	dir := filepath.Dir(path)
	for i := range m.Locations {
		loc := &m.Locations[i]
		if seen[loc.Name] {
			return nil, fmt.Errorf("validate manifest: duplicate location %q", loc.Name)
		}
		seen[loc.Name] = true

		loc.Image = resolve(dir, loc.Image)
		loc.Buildings = resolve(dir, loc.Buildings)
		loc.Streets = resolve(dir, loc.Streets)
		loc.Amenities = resolve(dir, loc.Amenities)
	}
	return &m, nil
}

func resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}
