package schemacache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mbroton/notcli/internal/notion"
)

type fakeFetcher struct {
	properties map[string]notion.PropertyDescriptor
	calls      int
	err        error
}

func (f *fakeFetcher) RetrieveDataSource(ctx context.Context, dataSourceID string) (*notion.DataSource, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &notion.DataSource{ID: dataSourceID, Properties: f.properties}, nil
}

func baseSchema() map[string]notion.PropertyDescriptor {
	return map[string]notion.PropertyDescriptor{
		"Name":   {ID: "title", Type: "title"},
		"Status": {ID: "st", Type: "status"},
	}
}

func TestGetCachesWithinTTL(t *testing.T) {
	fetcher := &fakeFetcher{properties: baseSchema()}
	cache := NewMemory(time.Hour)

	snap, err := cache.Get(context.Background(), fetcher, "ds-1")
	require.NoError(t, err)
	require.Equal(t, "ds-1", snap.DataSourceID)
	require.Contains(t, snap.Properties, "Status")
	require.Equal(t, 1, fetcher.calls)

	_, err = cache.Get(context.Background(), fetcher, "ds-1")
	require.NoError(t, err)
	require.Equal(t, 1, fetcher.calls, "fresh snapshot is served from memory")
}

func TestGetRefreshesExpiredSnapshot(t *testing.T) {
	fetcher := &fakeFetcher{properties: baseSchema()}
	cache := NewMemory(time.Hour)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	_, err := cache.Get(context.Background(), fetcher, "ds-1")
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, err = cache.Get(context.Background(), fetcher, "ds-1")
	require.NoError(t, err)
	require.Equal(t, 2, fetcher.calls, "stale snapshot forces a refetch")
}

func TestValidatePropertiesRefreshOnMiss(t *testing.T) {
	fetcher := &fakeFetcher{properties: baseSchema()}
	cache := NewMemory(time.Hour)

	_, err := cache.Get(context.Background(), fetcher, "ds-1")
	require.NoError(t, err)

	// Schema grows a property after the cache was filled.
	fetcher.properties = map[string]notion.PropertyDescriptor{
		"Name":   {ID: "title", Type: "title"},
		"Status": {ID: "st", Type: "status"},
		"Due":    {ID: "du", Type: "date"},
	}

	err = cache.ValidateProperties(context.Background(), fetcher, "ds-1", []string{"Due"})
	require.NoError(t, err, "a forced refresh picks up new properties")
	require.Equal(t, 2, fetcher.calls)
}

func TestValidatePropertiesUnknownAfterRefresh(t *testing.T) {
	fetcher := &fakeFetcher{properties: baseSchema()}
	cache := NewMemory(time.Hour)

	err := cache.ValidateProperties(context.Background(), fetcher, "ds-1", []string{"Name", "Nope"})

	var unknown *UnknownPropertyError
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, "Nope", unknown.Property)
	require.Equal(t, "ds-1", unknown.DataSourceID)
	require.Equal(t, 2, fetcher.calls, "exactly one forced refresh before failing")
}

func TestLoadPersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	fetcher := &fakeFetcher{properties: baseSchema()}

	cache, err := Load(dir, time.Hour)
	require.NoError(t, err)
	_, err = cache.Get(context.Background(), fetcher, "ds-1")
	require.NoError(t, err)

	reopened, err := Load(dir, time.Hour)
	require.NoError(t, err)
	snap, err := reopened.Get(context.Background(), fetcher, "ds-1")
	require.NoError(t, err)
	require.Contains(t, snap.Properties, "Name")
	require.Equal(t, 1, fetcher.calls, "the persisted snapshot serves the second instance")
}

func TestLoadToleratesCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, cacheFilename), []byte("{not json"), 0o644))

	cache, err := Load(dir, time.Hour)
	require.NoError(t, err)

	fetcher := &fakeFetcher{properties: baseSchema()}
	_, err = cache.Get(context.Background(), fetcher, "ds-1")
	require.NoError(t, err)
	require.Equal(t, 1, fetcher.calls, "a corrupt cache file falls back to a cold cache")
}
