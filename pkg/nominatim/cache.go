package nominatim

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/geoatlas/poimap/pkg/geo"
)

// Resolution is a cached outcome for a normalized place name. Misses are
// cached too (Matched=false) so repeated unknown names skip the network.
type Resolution struct {
	Bounds  geo.BoundingBox
	Matched bool
}

// Cache is a SQLite-backed resolution cache with an in-process LRU front.
type Cache struct {
	db  *sql.DB
	mem *lru.Cache[string, Resolution]
	ttl time.Duration
}

const cacheMigration = `
CREATE TABLE IF NOT EXISTS resolutions (
	place_key  TEXT PRIMARY KEY,
	south      REAL NOT NULL,
	west       REAL NOT NULL,
	north      REAL NOT NULL,
	east       REAL NOT NULL,
	matched    INTEGER NOT NULL,
	cached_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

// NewCache opens (creating if needed) the cache database at path. A ttl of
// zero disables expiry. memSize bounds the in-process LRU layer.
func NewCache(path string, ttl time.Duration, memSize int) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "nominatim: open cache")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "nominatim: exec %s", pragma)
		}
	}
	if _, err := db.Exec(cacheMigration); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "nominatim: migrate cache")
	}

	if memSize <= 0 {
		memSize = 256
	}
	mem, err := lru.New[string, Resolution](memSize)
	if err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "nominatim: lru")
	}

	return &Cache{db: db, mem: mem, ttl: ttl}, nil
}

// Get looks up a cached resolution for a normalized place key.
func (c *Cache) Get(ctx context.Context, key string) (Resolution, bool) {
	if res, ok := c.mem.Get(key); ok {
		return res, true
	}

	query := "SELECT south, west, north, east, matched FROM resolutions WHERE place_key = ?"
	args := []any{key}
	if c.ttl > 0 {
		query += fmt.Sprintf(" AND cached_at > datetime('now', '-%d seconds')", int(c.ttl.Seconds()))
	}

	var south, west, north, east float64
	var matched bool
	err := c.db.QueryRowContext(ctx, query, args...).Scan(&south, &west, &north, &east, &matched)
	if errors.Is(err, sql.ErrNoRows) {
		return Resolution{}, false
	}
	if err != nil {
		zap.L().Warn("nominatim: cache read failed", zap.Error(err))
		return Resolution{}, false
	}

	res := Resolution{Matched: matched}
	if matched {
		bounds, err := geo.NewBoundingBox(south, west, north, east)
		if err != nil {
			// A corrupt row is treated as a miss so it gets rewritten.
			return Resolution{}, false
		}
		res.Bounds = bounds
	}

	c.mem.Add(key, res)
	return res, true
}

// Put stores a resolution (match or miss) under a normalized place key.
func (c *Cache) Put(ctx context.Context, key string, res Resolution) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO resolutions (place_key, south, west, north, east, matched, cached_at)
		VALUES (?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(place_key) DO UPDATE SET
			south = excluded.south,
			west = excluded.west,
			north = excluded.north,
			east = excluded.east,
			matched = excluded.matched,
			cached_at = excluded.cached_at`,
		key, res.Bounds.South, res.Bounds.West, res.Bounds.North, res.Bounds.East, res.Matched,
	)
	if err != nil {
		return eris.Wrap(err, "nominatim: cache write")
	}
	c.mem.Add(key, res)
	return nil
}

// Close releases the underlying database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}
