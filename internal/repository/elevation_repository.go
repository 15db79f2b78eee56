package repository

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/solarrev/solarrev-backend/internal/database"
	"github.com/solarrev/solarrev-backend/internal/models"
)

// keys per query; two parameters each
const lookupChunk = 200

// ElevationRepository is the sqlite-backed elevation cache. Coordinates are
// keyed at 1e-5 degree resolution (about one metre).
type ElevationRepository struct {
	db  *sql.DB
	ttl time.Duration // 0 keeps entries forever
	now func() time.Time
}

// NewElevationRepository creates a new elevation repository. Entries older
// than ttl are not served.
func NewElevationRepository(db *sql.DB, ttl time.Duration) *ElevationRepository {
	return &ElevationRepository{db: db, ttl: ttl, now: time.Now}
}

type cacheKey struct {
	lat, lon int64
}

func keyOf(c models.Coordinate) cacheKey {
	return cacheKey{
		lat: int64(math.Round(c.Lat() * 1e5)),
		lon: int64(math.Round(c.Lon() * 1e5)),
	}
}

// GetMany returns cached elevations keyed by position in coords.
// Invalid coordinates are never looked up.
func (r *ElevationRepository) GetMany(ctx context.Context, coords []models.Coordinate) (map[int]float64, error) {
	positions := make(map[cacheKey][]int)
	keys := make([]cacheKey, 0, len(coords))
	for i, c := range coords {
		if !c.Valid() {
			continue
		}
		k := keyOf(c)
		if _, seen := positions[k]; !seen {
			keys = append(keys, k)
		}
		positions[k] = append(positions[k], i)
	}

	hits := make(map[int]float64)
	for start := 0; start < len(keys); start += lookupChunk {
		end := start + lookupChunk
		if end > len(keys) {
			end = len(keys)
		}
		if err := r.lookup(ctx, keys[start:end], positions, hits); err != nil {
			return nil, err
		}
	}
	return hits, nil
}

func (r *ElevationRepository) lookup(ctx context.Context, keys []cacheKey, positions map[cacheKey][]int, hits map[int]float64) error {
	placeholders := make([]string, len(keys))
	args := make([]interface{}, 0, 2*len(keys))
	for i, k := range keys {
		placeholders[i] = "(?, ?)"
		args = append(args, k.lat, k.lon)
	}

	query := `SELECT lat_e5, lon_e5, elevation FROM elevation_cache
		WHERE (lat_e5, lon_e5) IN (VALUES ` + strings.Join(placeholders, ", ") + `)`
	if r.ttl > 0 {
		query += " AND fetched_at >= ?"
		args = append(args, r.now().Add(-r.ttl).Unix())
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query elevation cache: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k cacheKey
		var elevation float64
		if err := rows.Scan(&k.lat, &k.lon, &elevation); err != nil {
			return fmt.Errorf("failed to scan elevation cache row: %w", err)
		}
		for _, i := range positions[k] {
			hits[i] = elevation
		}
	}
	return rows.Err()
}

// PutMany stores the ok samples, replacing older values for the same key
func (r *ElevationRepository) PutMany(ctx context.Context, samples []models.ElevationSample) error {
	now := r.now().Unix()
	return database.Transaction(ctx, r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO elevation_cache (lat_e5, lon_e5, elevation, fetched_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (lat_e5, lon_e5) DO UPDATE SET
				elevation = excluded.elevation,
				fetched_at = excluded.fetched_at`)
		if err != nil {
			return fmt.Errorf("failed to prepare elevation insert: %w", err)
		}
		defer stmt.Close()

		for _, s := range samples {
			if !s.OK() {
				continue
			}
			k := keyOf(s.Coordinate)
			if _, err := stmt.ExecContext(ctx, k.lat, k.lon, *s.Elevation, now); err != nil {
				return fmt.Errorf("failed to insert elevation: %w", err)
			}
		}
		return nil
	})
}

// Purge deletes entries fetched more than olderThan ago and returns how
// many were removed
func (r *ElevationRepository) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := r.now().Add(-olderThan).Unix()
	res, err := r.db.ExecContext(ctx, "DELETE FROM elevation_cache WHERE fetched_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge elevation cache: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of cached coordinates
func (r *ElevationRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM elevation_cache").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count elevation cache: %w", err)
	}
	return n, nil
}
