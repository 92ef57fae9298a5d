package service

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"go.uber.org/zap"

	"geoipsql/internal/cidr"
	"geoipsql/internal/model"
	"geoipsql/internal/repository"
	"geoipsql/internal/source"
)

const DefaultProgressEvery = 25000

// Blocks file columns.
const (
	colNetwork = iota
	colBlockGeonameID
	blockColumns
)

type RangeOptions struct {
	BatchSize     int
	ProgressEvery int
	// Progress is called with the number of rows read so far. Nil disables it.
	Progress func(rows int)
}

type RangeService struct {
	repo   Repository
	mirror Mirror
	files  source.Files
	opts   RangeOptions
	logger *zap.Logger
}

func NewRangeService(repo Repository, mirror Mirror, files source.Files, opts RangeOptions, logger *zap.Logger) *RangeService {
	if opts.BatchSize <= 0 {
		opts.BatchSize = repository.DefaultBatchSize
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = DefaultProgressEvery
	}

	return &RangeService{
		repo:   repo,
		mirror: mirror,
		files:  files,
		opts:   opts,
		logger: logger,
	}
}

// Load streams the blocks file and stores a range for every block whose
// geoname id is in locations. Unknown geonames and unparsable networks are
// skipped. Range and coverage counters in stats are reset first.
func (s *RangeService) Load(ctx context.Context, locations LocationMap, stats *model.RunStats) error {
	if len(locations) == 0 {
		return ErrNoLocations
	}

	stats.Ranges = 0
	stats.Coverage = 0

	startTime := time.Now()
	path := s.files.BlocksPath()
	s.logger.Info("Reading blocks file", zap.String("path", path))

	writer := repository.NewBatchWriter(s.opts.BatchSize, func(ctx context.Context, batch []model.RangeRecord) error {
		return s.flush(ctx, batch, stats)
	})

	err := source.EachInFile(path, func(row int, fields []string) error {
		stats.BlockRows++

		if s.opts.Progress != nil && row%s.opts.ProgressEvery == 0 {
			s.opts.Progress(row)
		}

		if len(fields) < blockColumns {
			stats.Malformed++
			return nil
		}

		id, err := strconv.ParseInt(fields[colBlockGeonameID], 10, 64)
		if err != nil {
			stats.Unmatched++
			return nil
		}
		if _, ok := locations[id]; !ok {
			stats.Unmatched++
			return nil
		}

		start, end, ok := cidr.ToRange(fields[colNetwork])
		if !ok {
			stats.BadCIDR++
			s.logger.Debug("failed to convert network",
				zap.Int("row", row),
				zap.String("network", fields[colNetwork]))
			return nil
		}

		ipRange := model.RangeRecord{
			IPStart:    start,
			IPEnd:      end,
			LocationID: id,
		}
		stats.Ranges++
		stats.Coverage += ipRange.Size()

		return writer.Append(ctx, ipRange)
	})
	if err != nil {
		return fmt.Errorf("loading blocks: %w", err)
	}

	if err := writer.Flush(ctx); err != nil {
		return fmt.Errorf("loading blocks: %w", err)
	}

	s.logger.Info("Finished loading ranges",
		zap.Int("rows", stats.BlockRows),
		zap.Int64("ranges", stats.Ranges),
		zap.Uint64("coverage", stats.Coverage),
		zap.Int("batches", writer.Batches()),
		zap.Int("unmatched_rows", stats.Unmatched),
		zap.Int("bad_cidr_rows", stats.BadCIDR),
		zap.Duration("duration", time.Since(startTime)))

	return nil
}

func (s *RangeService) flush(ctx context.Context, batch []model.RangeRecord, stats *model.RunStats) error {
	if err := s.repo.SaveRanges(ctx, batch); err != nil {
		s.logger.Error("Failed to save range batch",
			zap.Int("batch_size", len(batch)),
			zap.Error(err))
		return err
	}

	if s.mirror != nil {
		if err := s.mirror.MirrorRanges(ctx, batch); err != nil {
			s.logger.Warn("failed to mirror range batch", zap.Error(err))
		}
	}

	sampleHeap(stats)

	return nil
}

// sampleHeap keeps the highest heap allocation seen in stats.PeakHeap.
func sampleHeap(stats *model.RunStats) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	if m.HeapAlloc > stats.PeakHeap {
		stats.PeakHeap = m.HeapAlloc
	}
}
