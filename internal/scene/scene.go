package scene

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"os"

	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/lox/releaf/internal/geo"
)

// Input is everything the engine consumes for one location, before alignment.
type Input struct {
	Image     image.Image
	Buildings geo.Collection
	Streets   geo.Collection
	Amenities []geo.Point
}

// LoadImage decodes a PNG, JPEG, TIFF or WebP raster.
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", path, err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("decode image %s: empty %s raster", path, format)
	}
	return img, nil
}

// Load reads the raster and whichever geometry files the spec names. A missing
// optional geometry file yields an empty layer.
func Load(spec LocationSpec) (*Input, error) {
	img, err := LoadImage(spec.Image)
	if err != nil {
		return nil, err
	}
	in := &Input{Image: img}

	if in.Buildings, err = optionalCollection(spec.Buildings); err != nil {
		return nil, fmt.Errorf("buildings: %w", err)
	}
	if in.Streets, err = optionalCollection(spec.Streets); err != nil {
		return nil, fmt.Errorf("streets: %w", err)
	}
	in.Streets = geo.ClassifyStreets(in.Streets)

	amenities, err := optionalCollection(spec.Amenities)
	if err != nil {
		return nil, fmt.Errorf("amenities: %w", err)
	}
	in.Amenities = amenities.Points()
	return in, nil
}

func optionalCollection(path string) (geo.Collection, error) {
	if path == "" {
		return nil, nil
	}
	c, err := LoadCollection(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Printf("scene: %s not found, using an empty layer", path)
		return nil, nil
	}
	return c, err
}
