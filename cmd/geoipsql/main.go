package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"geoipsql/internal/cidr"
	"geoipsql/internal/config"
	"geoipsql/internal/model"
	"geoipsql/internal/repository"
	"geoipsql/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		// Logger is not configured yet
		zap.NewExample().Fatal("Failed to load configuration", zap.Error(err))
	}

	// Initialize logger
	logConfig := zap.NewProductionConfig()
	logConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.Debug {
		logConfig.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, _ := logConfig.Build()
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// Initialize store
	db, err := repository.Open(cfg.StoreDriver, cfg.StoreDSN)
	if err != nil {
		logger.Fatal("Failed to open store", zap.Error(err))
	}
	defer db.Close()

	repo := repository.NewSQLRepository(db, logger)

	// Initialize Redis mirror
	var mirror service.Mirror
	var redisMirror *repository.RedisMirror
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("Failed to parse Redis URL", zap.Error(err))
		}

		redisClient := redis.NewClient(opt)
		defer redisClient.Close()

		redisMirror = repository.NewRedisMirror(redisClient, logger)
		mirror = redisMirror
	}

	pipeline := service.NewPipeline(
		repo,
		mirror,
		cfg.Files(),
		cfg.PipelineOptions(func(rows int) {
			logger.Info("progress", zap.Int("rows", rows))
		}),
		logger,
	)

	stats, err := pipeline.Run(ctx)
	if err != nil {
		logger.Fatal("Store build failed", zap.Error(err))
	}

	logSummary(logger, stats)

	for _, probe := range cfg.Probes {
		runProbe(ctx, logger, repo, redisMirror, probe, cfg.ProbeLocale)
	}
}

func logSummary(logger *zap.Logger, stats *model.RunStats) {
	logger.Info("Run summary",
		zap.Int("locations", stats.Locations),
		zap.Int64("ranges", stats.Ranges),
		zap.Uint64("coverage", stats.Coverage),
		zap.String("coverage_human", humanize.Comma(int64(stats.Coverage))),
		zap.Duration("elapsed", stats.Elapsed),
		zap.String("peak_memory", humanize.IBytes(stats.PeakHeap)),
		zap.Int("unmatched_rows", stats.Unmatched),
		zap.Int("bad_cidr_rows", stats.BadCIDR),
		zap.Int("malformed_rows", stats.Malformed))
}

// runProbe resolves one address against the built store and, when enabled,
// the Redis mirror.
func runProbe(ctx context.Context, logger *zap.Logger, repo *repository.SQLRepository, mirror *repository.RedisMirror, probe, locale string) {
	start, end, ok := cidr.ToRange(probe)
	if !ok || start != end {
		logger.Warn("invalid probe address", zap.String("ip", probe))
		return
	}
	ip := uint32(start)

	location, err := repo.FindLocation(ctx, ip)
	if err != nil {
		logger.Error("probe lookup failed", zap.String("ip", probe), zap.Error(err))
		return
	}

	fields := []zap.Field{zap.String("ip", probe), zap.String("locale", locale)}
	if location == nil {
		fields = append(fields, zap.String("country_name", "unknown"))
	} else {
		names := location.Names(locale)
		fields = append(fields,
			zap.Int64("location_id", location.LocationID),
			zap.String("country_iso_code", location.CountryISOCode),
			zap.String("country_name", names.CountryName),
			zap.String("continent_name", names.ContinentName))
	}

	if mirror != nil {
		id, found, err := mirror.FindLocationID(ctx, ip)
		if err != nil {
			logger.Warn("mirror probe failed", zap.String("ip", probe), zap.Error(err))
		} else {
			fields = append(fields, zap.Bool("mirror_found", found), zap.Int64("mirror_location_id", id))
		}
	}

	logger.Info("probe", fields...)
}
