package service

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"geoipsql/internal/model"
	"geoipsql/internal/source"
)

type Repository interface {
	InitSchema(ctx context.Context) error
	Initialized() bool
	SaveLocations(ctx context.Context, rows []model.LocationRow) error
	SaveRanges(ctx context.Context, ranges []model.RangeRecord) error
}

// Mirror receives a copy of everything written to the store.
type Mirror interface {
	Reset(ctx context.Context) error
	MirrorLocations(ctx context.Context, rows []model.LocationRow) error
	MirrorRanges(ctx context.Context, ranges []model.RangeRecord) error
}

type Options struct {
	Languages []string
	Filter    Filter
	Ranges    RangeOptions
}

// Pipeline builds the store: schema, then locations, then ranges.
type Pipeline struct {
	repo    Repository
	mirror  Mirror
	files   source.Files
	opts    Options
	locales *LocaleService
	ranges  *RangeService
	logger  *zap.Logger
}

// NewPipeline wires the stages. mirror may be nil.
func NewPipeline(
	repo Repository,
	mirror Mirror,
	files source.Files,
	opts Options,
	logger *zap.Logger,
) *Pipeline {
	opts.Languages = lo.Uniq(lo.Compact(opts.Languages))

	return &Pipeline{
		repo:    repo,
		mirror:  mirror,
		files:   files,
		opts:    opts,
		locales: NewLocaleService(repo, mirror, files, logger),
		ranges:  NewRangeService(repo, mirror, files, opts.Ranges, logger),
		logger:  logger,
	}
}

// Languages returns the de-duplicated language list, primary first.
func (p *Pipeline) Languages() []string {
	return p.opts.Languages
}

func (p *Pipeline) Run(ctx context.Context) (*model.RunStats, error) {
	startTime := time.Now()
	stats := &model.RunStats{}

	if len(p.opts.Languages) == 0 {
		return nil, fmt.Errorf("no languages configured")
	}

	if err := p.files.Check(p.opts.Languages[0]); err != nil {
		return nil, err
	}

	p.logger.Info("Starting store build",
		zap.String("source", p.files.Dir),
		zap.Strings("languages", p.opts.Languages),
		zap.Strings("regions", p.opts.Filter.Regions),
		zap.Strings("countries", p.opts.Filter.Countries))

	if err := p.repo.InitSchema(ctx); err != nil {
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	if p.mirror != nil {
		if err := p.mirror.Reset(ctx); err != nil {
			p.logger.Warn("failed to reset mirror", zap.Error(err))
		}
	}

	locations, err := p.locales.Aggregate(ctx, p.opts.Languages, p.opts.Filter, stats)
	if err != nil {
		return nil, err
	}
	sampleHeap(stats)

	if err := p.ranges.Load(ctx, locations, stats); err != nil {
		return nil, err
	}
	sampleHeap(stats)

	stats.Elapsed = time.Since(startTime)

	p.logger.Info("Store build finished",
		zap.Int("locations", stats.Locations),
		zap.Int64("ranges", stats.Ranges),
		zap.Uint64("coverage", stats.Coverage),
		zap.Int("malformed_rows", stats.Malformed),
		zap.Duration("duration", stats.Elapsed))

	return stats, nil
}
