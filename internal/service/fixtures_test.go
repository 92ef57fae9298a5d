package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"geoipsql/internal/mocks"
	"geoipsql/internal/model"
	"geoipsql/internal/source"
)

const (
	locationsHeader = "geoname_id,locale_code,continent_code,continent_name,country_iso_code,country_name,is_in_european_union\n"
	blocksHeader    = "network,geoname_id,registered_country_geoname_id,represented_country_geoname_id,is_anonymous_proxy,is_satellite_provider\n"
)

var defaultFixture = map[string]string{
	"GeoLite2-Country-Locations-en.csv": locationsHeader +
		"123,en,EU,Europe,RU,Russia,0\n" +
		"6252001,en,NA,\"North America\",US,\"United States\",0\n",
	"GeoLite2-Country-Locations-de.csv": locationsHeader +
		"123,de,EU,Europa,RU,Russland,0\n" +
		"6252001,de,NA,Nordamerika,US,\"Vereinigte Staaten\",0\n",
	"GeoLite2-Country-Blocks-IPv4.csv": blocksHeader +
		"77.88.8.0/24,123,123,,0,0\n" +
		"8.8.8.0/24,6252001,6252001,,0,0\n",
}

func writeSource(t *testing.T, contents map[string]string) source.Files {
	t.Helper()

	dir := t.TempDir()
	for name, content := range contents {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}

	return source.NewFiles(dir, "", "")
}

func withFile(base map[string]string, name, content string) map[string]string {
	out := make(map[string]string, len(base)+1)
	for k, v := range base {
		out[k] = v
	}
	out[name] = content

	return out
}

// recordingRepository is an in-memory Repository that remembers every write.
type recordingRepository struct {
	mocks.MockRepository

	initialized bool
	locations   []model.LocationRow
	batches     [][]model.RangeRecord
}

func newRecordingRepository() *recordingRepository {
	r := &recordingRepository{}
	r.InitSchemaFunc = func(ctx context.Context) error {
		r.initialized = true
		r.locations = nil
		r.batches = nil
		return nil
	}
	r.InitializedFunc = func() bool {
		return r.initialized
	}
	r.SaveLocationsFunc = func(ctx context.Context, rows []model.LocationRow) error {
		r.locations = append(r.locations, rows...)
		return nil
	}
	r.SaveRangesFunc = func(ctx context.Context, ranges []model.RangeRecord) error {
		r.batches = append(r.batches, append([]model.RangeRecord(nil), ranges...))
		return nil
	}

	return r
}

func (r *recordingRepository) ranges() []model.RangeRecord {
	var out []model.RangeRecord
	for _, batch := range r.batches {
		out = append(out, batch...)
	}

	return out
}
