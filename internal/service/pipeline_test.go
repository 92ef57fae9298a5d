package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"geoipsql/internal/mocks"
	"geoipsql/internal/model"
	"geoipsql/internal/repository"
	"geoipsql/internal/source"
)

var scenarioFixture = map[string]string{
	"GeoLite2-Country-Locations-en.csv": locationsHeader + "123,en,EU,Europe,RU,Russia,0\n",
	"GeoLite2-Country-Locations-de.csv": locationsHeader + "123,de,EU,Europa,RU,Russland,0\n",
	"GeoLite2-Country-Blocks-IPv4.csv":  blocksHeader + "77.88.8.0/24,123,123,,0,0\n",
}

func newSQLiteRepository(t *testing.T) *repository.SQLRepository {
	t.Helper()

	db, err := repository.Open(repository.DriverSQLite, filepath.Join(t.TempDir(), "geoip.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return repository.NewSQLRepository(db, zap.NewNop())
}

func TestPipelineEndToEnd(t *testing.T) {
	ctx := context.Background()
	files := writeSource(t, scenarioFixture)
	repo := newSQLiteRepository(t)

	pipeline := NewPipeline(repo, nil, files, Options{Languages: []string{"en", "de"}}, zap.NewNop())

	stats, err := pipeline.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Locations)
	assert.Equal(t, int64(1), stats.Ranges)
	assert.Equal(t, uint64(255), stats.Coverage)
	assert.NotZero(t, stats.Elapsed)
	assert.NotZero(t, stats.PeakHeap)

	locations, ranges, err := repo.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), locations)
	assert.Equal(t, int64(1), ranges)

	location, err := repo.FindLocation(ctx, 1297614856)
	require.NoError(t, err)
	require.NotNil(t, location)

	assert.Equal(t, int64(123), location.LocationID)
	assert.Equal(t, "Russia", location.CountryName)
	assert.Equal(t, "Europe", location.ContinentName)
	assert.JSONEq(t, `{"en":{"continent_name":"Europe","country_name":"Russia"},`+
		`"de":{"continent_name":"Europa","country_name":"Russland"}}`, location.LocalesJSON)
	assert.Equal(t, "Russland", location.Names("de").CountryName)

	for _, ip := range []uint32{1297614847, 1297615104, 2130706433} {
		location, err := repo.FindLocation(ctx, ip)
		require.NoError(t, err)
		assert.Nil(t, location, "ip %d", ip)
	}
}

func TestPipelineIsIdempotent(t *testing.T) {
	ctx := context.Background()
	files := writeSource(t, defaultFixture)
	repo := newSQLiteRepository(t)

	opts := Options{
		Languages: []string{"en", "de"},
		Ranges:    RangeOptions{BatchSize: 1},
	}
	pipeline := NewPipeline(repo, nil, files, opts, zap.NewNop())

	first, err := pipeline.Run(ctx)
	require.NoError(t, err)
	second, err := pipeline.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, first.Locations, second.Locations)
	assert.Equal(t, first.Ranges, second.Ranges)
	assert.Equal(t, first.Coverage, second.Coverage)

	locations, ranges, err := repo.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), locations)
	assert.Equal(t, int64(2), ranges)
}

func TestPipelineCountryFilter(t *testing.T) {
	ctx := context.Background()
	files := writeSource(t, defaultFixture)
	repo := newSQLiteRepository(t)

	opts := Options{
		Languages: []string{"en", "de"},
		Filter:    Filter{Countries: []string{"RU"}},
	}

	stats, err := NewPipeline(repo, nil, files, opts, zap.NewNop()).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Locations)
	assert.Equal(t, int64(1), stats.Ranges)
	assert.Equal(t, 1, stats.Unmatched)

	location, err := repo.FindLocation(ctx, 134744072)
	require.NoError(t, err)
	assert.Nil(t, location)
}

func TestPipelineDeduplicatesLanguages(t *testing.T) {
	files := writeSource(t, defaultFixture)
	pipeline := NewPipeline(newRecordingRepository(), nil, files,
		Options{Languages: []string{"en", "de", "en", "", "de"}}, zap.NewNop())

	assert.Equal(t, []string{"en", "de"}, pipeline.Languages())
}

func TestPipelineErrors(t *testing.T) {
	t.Run("missing source directory", func(t *testing.T) {
		files := source.NewFiles(filepath.Join(t.TempDir(), "absent"), "", "")
		repo := newRecordingRepository()

		_, err := NewPipeline(repo, nil, files, Options{Languages: []string{"en"}}, zap.NewNop()).Run(context.Background())
		assert.ErrorIs(t, err, ErrSourceMissing)
		assert.False(t, repo.initialized)
	})

	t.Run("missing primary locations file", func(t *testing.T) {
		files := writeSource(t, defaultFixture)

		_, err := NewPipeline(newRecordingRepository(), nil, files, Options{Languages: []string{"ja"}}, zap.NewNop()).Run(context.Background())
		assert.ErrorIs(t, err, ErrSourceMissing)
	})

	t.Run("no languages", func(t *testing.T) {
		files := writeSource(t, defaultFixture)

		_, err := NewPipeline(newRecordingRepository(), nil, files, Options{}, zap.NewNop()).Run(context.Background())
		assert.Error(t, err)
	})

	t.Run("nothing selected", func(t *testing.T) {
		files := writeSource(t, defaultFixture)
		opts := Options{
			Languages: []string{"en"},
			Filter:    Filter{Countries: []string{"JP"}},
		}

		_, err := NewPipeline(newRecordingRepository(), nil, files, opts, zap.NewNop()).Run(context.Background())
		assert.ErrorIs(t, err, ErrNoLocations)
	})

	t.Run("schema failure", func(t *testing.T) {
		files := writeSource(t, defaultFixture)
		repo := &mocks.MockRepository{
			InitSchemaFunc: func(ctx context.Context) error { return assert.AnError },
		}

		_, err := NewPipeline(repo, nil, files, Options{Languages: []string{"en"}}, zap.NewNop()).Run(context.Background())
		assert.ErrorIs(t, err, assert.AnError)
	})
}

func TestPipelineResetsMirror(t *testing.T) {
	files := writeSource(t, scenarioFixture)
	resets := 0
	var mirroredLocations, mirroredRanges int

	mirror := &mocks.MockMirror{
		ResetFunc: func(ctx context.Context) error {
			resets++
			return nil
		},
		MirrorLocationsFunc: func(ctx context.Context, rows []model.LocationRow) error {
			mirroredLocations += len(rows)
			return nil
		},
		MirrorRangesFunc: func(ctx context.Context, ranges []model.RangeRecord) error {
			mirroredRanges += len(ranges)
			return nil
		},
	}

	_, err := NewPipeline(newRecordingRepository(), mirror, files, Options{Languages: []string{"en"}}, zap.NewNop()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, resets)
	assert.Equal(t, 1, mirroredLocations)
	assert.Equal(t, 1, mirroredRanges)
}
