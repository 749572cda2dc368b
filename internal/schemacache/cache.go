// Package schemacache persists data-source property schemas locally with a
// time-to-live, so property patches validate against a reasonably fresh
// schema without refetching it on every command.
package schemacache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mbroton/notcli/internal/atomicfile"
	"github.com/mbroton/notcli/internal/notion"
)

// DefaultTTL bounds how stale a cached schema may be before a property
// patch forces a refresh.
const DefaultTTL = 24 * time.Hour

const cacheFilename = "schemas.json"

// Snapshot is one cached data-source schema.
type Snapshot struct {
	DataSourceID  string                               `json:"data_source_id"`
	LastRefreshed time.Time                            `json:"last_refreshed"`
	Properties    map[string]notion.PropertyDescriptor `json:"properties"`
}

// UnknownPropertyError reports a property name absent from the schema even
// after a forced refresh.
type UnknownPropertyError struct {
	DataSourceID string
	Property     string
}

func (e *UnknownPropertyError) Error() string {
	return fmt.Sprintf("property %q does not exist in data source %s", e.Property, e.DataSourceID)
}

// Fetcher retrieves the live schema for a data source. *notion.Client
// satisfies it.
type Fetcher interface {
	RetrieveDataSource(ctx context.Context, dataSourceID string) (*notion.DataSource, error)
}

// Cache is an explicit, injectable schema cache. No package-level
// singleton: commands receive the instance they should consult, and tests
// substitute an in-memory one via NewMemory.
type Cache struct {
	snapshots map[string]Snapshot
	ttl       time.Duration
	now       func() time.Time
	save      func(map[string]Snapshot) error
}

// Load reads the cache file from stateDir, creating an empty cache if the
// file does not exist. Saves write back to the same file atomically.
func Load(stateDir string, ttl time.Duration) (*Cache, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	path := filepath.Join(stateDir, cacheFilename)

	snapshots := make(map[string]Snapshot)
	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, &snapshots); err != nil {
			// A corrupt cache file is not fatal; start fresh.
			snapshots = make(map[string]Snapshot)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read schema cache: %w", err)
	}

	return &Cache{
		snapshots: snapshots,
		ttl:       ttl,
		now:       time.Now,
		save: func(s map[string]Snapshot) error {
			out, err := json.MarshalIndent(s, "", "  ")
			if err != nil {
				return fmt.Errorf("encode schema cache: %w", err)
			}
			if err := os.MkdirAll(stateDir, 0o755); err != nil {
				return fmt.Errorf("create state directory: %w", err)
			}
			return atomicfile.WriteFile(path, append(out, '\n'), 0o644)
		},
	}, nil
}

// NewMemory builds a cache with no backing file, for tests.
func NewMemory(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		snapshots: make(map[string]Snapshot),
		ttl:       ttl,
		now:       time.Now,
		save:      func(map[string]Snapshot) error { return nil },
	}
}

// Get returns a schema snapshot no older than the TTL, refreshing from
// upstream when the cached copy is missing or stale.
func (c *Cache) Get(ctx context.Context, fetcher Fetcher, dataSourceID string) (Snapshot, error) {
	if snap, ok := c.snapshots[dataSourceID]; ok && c.now().Sub(snap.LastRefreshed) < c.ttl {
		return snap, nil
	}
	return c.Refresh(ctx, fetcher, dataSourceID)
}

// Refresh fetches the live schema and persists it regardless of TTL.
func (c *Cache) Refresh(ctx context.Context, fetcher Fetcher, dataSourceID string) (Snapshot, error) {
	ds, err := fetcher.RetrieveDataSource(ctx, dataSourceID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("refresh schema for %s: %w", dataSourceID, err)
	}

	snap := Snapshot{
		DataSourceID:  dataSourceID,
		LastRefreshed: c.now().UTC(),
		Properties:    ds.Properties,
	}
	c.snapshots[dataSourceID] = snap

	// Cache persistence is advisory; a read-only state dir should not
	// fail the command.
	_ = c.save(c.snapshots)

	return snap, nil
}

// ValidateProperties checks every property name against the schema. On an
// unknown name one forced refresh is attempted before failing, covering
// schemas edited since the last cache write.
func (c *Cache) ValidateProperties(ctx context.Context, fetcher Fetcher, dataSourceID string, names []string) error {
	snap, err := c.Get(ctx, fetcher, dataSourceID)
	if err != nil {
		return err
	}

	missing := missingNames(snap, names)
	if len(missing) == 0 {
		return nil
	}

	snap, err = c.Refresh(ctx, fetcher, dataSourceID)
	if err != nil {
		return err
	}
	if remaining := missingNames(snap, names); len(remaining) > 0 {
		return &UnknownPropertyError{DataSourceID: dataSourceID, Property: remaining[0]}
	}
	return nil
}

func missingNames(snap Snapshot, names []string) []string {
	var missing []string
	for _, name := range names {
		if _, ok := snap.Properties[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}
