package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/lox/releaf/internal/raster"
)

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	decoder, _ = zstd.NewReader(nil)
)

// SaveSurface stores a score grid as zstd-compressed little-endian float32s.
// Saving the same name again replaces the surface.
func (s *Store) SaveSurface(runID, name string, g *raster.Grid) error {
	if g == nil || len(g.Data) != g.Width*g.Height {
		return fmt.Errorf("save surface %s: invalid grid", name)
	}

	raw := make([]byte, 4*len(g.Data))
	for i, v := range g.Data {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(float32(v)))
	}
	compressed := encoder.EncodeAll(raw, nil)
	hash := sha256.Sum256(raw)

	_, err := s.db.Exec(`
		INSERT INTO surfaces (run_id, name, width, height, payload_compressed, payload_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, name) DO UPDATE SET
			width = excluded.width,
			height = excluded.height,
			payload_compressed = excluded.payload_compressed,
			payload_hash = excluded.payload_hash,
			created_at = excluded.created_at
	`, runID, name, g.Width, g.Height, compressed, hex.EncodeToString(hash[:]), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert surface %s: %w", name, err)
	}
	return nil
}

// LoadSurface decompresses a stored grid and verifies its hash.
func (s *Store) LoadSurface(runID, name string) (*raster.Grid, error) {
	var (
		width, height int
		compressed    []byte
		hash          string
	)
	err := s.db.QueryRow(`
		SELECT width, height, payload_compressed, payload_hash
		FROM surfaces WHERE run_id = ? AND name = ?
	`, runID, name).Scan(&width, &height, &compressed, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get surface %s: %w", name, err)
	}

	raw, err := decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress surface %s: %w", name, err)
	}
	sum := sha256.Sum256(raw)
	if hex.EncodeToString(sum[:]) != hash {
		return nil, fmt.Errorf("surface %s: payload hash mismatch", name)
	}
	if len(raw) != 4*width*height {
		return nil, fmt.Errorf("surface %s: %d bytes for %dx%d grid", name, len(raw), width, height)
	}

	g := raster.NewGrid(width, height)
	for i := range g.Data {
		g.Data[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:])))
	}
	return g, nil
}

// SurfaceNames lists the surfaces stored for a run.
func (s *Store) SurfaceNames(runID string) ([]string, error) {
	rows, err := s.db.Query(`SELECT name FROM surfaces WHERE run_id = ? ORDER BY name`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}
