package imagery

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// Cache stores fetched ground images on disk keyed by rounded coordinate.
type Cache struct {
	dir    string
	maxAge time.Duration
}

// NewCache creates a cache in dir. Entries older than maxAge are ignored; zero
// means they never expire.
func NewCache(dir string, maxAge time.Duration) *Cache {
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Printf("imagery: could not create cache directory: %v", err)
	}
	return &Cache{dir: dir, maxAge: maxAge}
}

// Key names a coordinate to 5 decimal places (about a metre).
func Key(lat, lon float64) string {
	return fmt.Sprintf("%.5f_%.5f", lat, lon)
}

func (c *Cache) path(lat, lon float64) string {
	return filepath.Join(c.dir, Key(lat, lon)+".jpg")
}

// Get returns a cached image if present and fresh.
func (c *Cache) Get(lat, lon float64) ([]byte, bool) {
	path := c.path(lat, lon)
	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if c.maxAge > 0 && time.Since(info.ModTime()) > c.maxAge {
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return data, true
}

func (c *Cache) Set(lat, lon float64, data []byte) error {
	return os.WriteFile(c.path(lat, lon), data, 0644)
}
