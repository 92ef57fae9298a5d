package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"geoipsql/internal/model"
	"geoipsql/internal/source"
)

// LocationMap holds aggregated locations keyed by geoname id.
type LocationMap map[int64]*model.LocationRecord

// Filter is a pair of allow-lists; an empty list admits everything.
type Filter struct {
	Regions   []string
	Countries []string
}

func (f Filter) Allows(continentCode, countryISOCode string) bool {
	if len(f.Regions) > 0 && !lo.Contains(f.Regions, continentCode) {
		return false
	}
	if len(f.Countries) > 0 && !lo.Contains(f.Countries, countryISOCode) {
		return false
	}
	return true
}

// Locations file columns.
const (
	colGeonameID = iota
	colLocaleCode
	colContinentCode
	colContinentName
	colCountryISOCode
	colCountryName
	locationColumns
)

type LocaleService struct {
	repo   Repository
	mirror Mirror
	files  source.Files
	logger *zap.Logger
}

func NewLocaleService(repo Repository, mirror Mirror, files source.Files, logger *zap.Logger) *LocaleService {
	return &LocaleService{
		repo:   repo,
		mirror: mirror,
		files:  files,
		logger: logger,
	}
}

// Aggregate merges the locations files of all languages into one record per
// geoname id and persists them in a single transaction. The first language
// that yields a geoname provides its primary names, so languages[0] must be
// the primary language.
func (s *LocaleService) Aggregate(ctx context.Context, languages []string, filter Filter, stats *model.RunStats) (LocationMap, error) {
	if !s.repo.Initialized() {
		return nil, ErrSchemaNotInitialized
	}

	startTime := time.Now()
	locations := make(LocationMap)

	for _, language := range languages {
		if err := s.collect(language, filter, locations, stats); err != nil {
			return nil, err
		}
	}

	if err := s.persist(ctx, locations); err != nil {
		return nil, err
	}

	stats.Locations = len(locations)

	s.logger.Info("Finished aggregating locations",
		zap.Strings("languages", languages),
		zap.Int("locations", len(locations)),
		zap.Int("rows", stats.LocationRows),
		zap.Int("filtered_rows", stats.FilteredRows),
		zap.Duration("duration", time.Since(startTime)))

	return locations, nil
}

func (s *LocaleService) collect(language string, filter Filter, locations LocationMap, stats *model.RunStats) error {
	path := s.files.LocationsPath(language)
	s.logger.Info("Reading locations file",
		zap.String("language", language),
		zap.String("path", path))

	err := source.EachInFile(path, func(row int, fields []string) error {
		stats.LocationRows++

		if len(fields) < locationColumns {
			stats.Malformed++
			s.logger.Debug("short locations row",
				zap.String("language", language),
				zap.Int("row", row))
			return nil
		}

		if !filter.Allows(fields[colContinentCode], fields[colCountryISOCode]) {
			stats.FilteredRows++
			return nil
		}

		id, err := strconv.ParseInt(fields[colGeonameID], 10, 64)
		if err != nil {
			stats.Malformed++
			s.logger.Debug("failed to parse geoname id",
				zap.String("language", language),
				zap.Int("row", row),
				zap.Error(err))
			return nil
		}

		record, ok := locations[id]
		if !ok {
			record = &model.LocationRecord{
				LocationID:     id,
				ContinentCode:  fields[colContinentCode],
				ContinentName:  fields[colContinentName],
				CountryISOCode: fields[colCountryISOCode],
				CountryName:    fields[colCountryName],
				Locales:        make(map[string]model.LocaleNames),
			}
			locations[id] = record
		}

		record.Locales[fields[colLocaleCode]] = model.LocaleNames{
			ContinentName: fields[colContinentName],
			CountryName:   fields[colCountryName],
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("reading %s locations: %w", language, err)
	}

	return nil
}

func (s *LocaleService) persist(ctx context.Context, locations LocationMap) error {
	ids := lo.Keys(locations)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	rows := make([]model.LocationRow, 0, len(ids))
	for _, id := range ids {
		row, err := locations[id].Row()
		if err != nil {
			return fmt.Errorf("encoding location %d: %w", id, err)
		}
		rows = append(rows, row)
	}

	startTime := time.Now()
	if err := s.repo.SaveLocations(ctx, rows); err != nil {
		s.logger.Error("Failed to save locations",
			zap.Error(err),
			zap.Duration("duration", time.Since(startTime)))
		return fmt.Errorf("saving locations: %w", err)
	}

	if s.mirror != nil {
		if err := s.mirror.MirrorLocations(ctx, rows); err != nil {
			// Store is the source of truth, the mirror is best effort.
			s.logger.Warn("failed to mirror locations", zap.Error(err))
		}
	}

	return nil
}
