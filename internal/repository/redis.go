package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"geoipsql/internal/model"
)

const (
	redisRangesKey    = "geoip:ranges"
	redisLocationsKey = "geoip:locations"
)

// RedisMirror copies the built store into Redis: locations into a hash keyed
// by location id, ranges into a sorted set scored by ip_end.
type RedisMirror struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisMirror(client *redis.Client, logger *zap.Logger) *RedisMirror {
	return &RedisMirror{
		client: client,
		logger: logger,
	}
}

func (r *RedisMirror) Reset(ctx context.Context) error {
	r.logger.Debug("resetting redis mirror",
		zap.Strings("keys", []string{redisRangesKey, redisLocationsKey}))

	return r.client.Del(ctx, redisRangesKey, redisLocationsKey).Err()
}

func (r *RedisMirror) MirrorLocations(ctx context.Context, rows []model.LocationRow) error {
	if len(rows) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()

	for _, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("encoding location %d: %w", row.LocationID, err)
		}
		pipe.HSet(ctx, redisLocationsKey, strconv.FormatInt(row.LocationID, 10), data)
	}

	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisMirror) MirrorRanges(ctx context.Context, ranges []model.RangeRecord) error {
	// ZADD rejects an empty member list.
	if len(ranges) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()

	members := make([]redis.Z, 0, len(ranges))
	for _, ipRange := range ranges {
		members = append(members, redis.Z{
			Score:  float64(ipRange.IPEnd),
			Member: rangeMember(ipRange),
		})
	}
	pipe.ZAdd(ctx, redisRangesKey, members...)

	_, err := pipe.Exec(ctx)
	return err
}

// FindLocationID applies the resolver lookup to the mirrored ranges.
func (r *RedisMirror) FindLocationID(ctx context.Context, ip uint32) (int64, bool, error) {
	members, err := r.client.ZRangeByScore(ctx, redisRangesKey, &redis.ZRangeBy{
		Min:    strconv.FormatUint(uint64(ip), 10),
		Max:    "+inf",
		Offset: 0,
		Count:  1,
	}).Result()
	if err != nil {
		return 0, false, err
	}

	if len(members) == 0 {
		return 0, false, nil
	}

	start, locationID, err := parseRangeMember(members[0])
	if err != nil {
		return 0, false, err
	}

	if start > uint64(ip) {
		return 0, false, nil
	}

	return locationID, true, nil
}

// Store as: ip_start|location_id
func rangeMember(r model.RangeRecord) string {
	return fmt.Sprintf("%d|%d", r.IPStart, r.LocationID)
}

func parseRangeMember(member string) (uint64, int64, error) {
	start, id, found := strings.Cut(member, "|")
	if !found {
		return 0, 0, fmt.Errorf("invalid range format: %q", member)
	}

	ipStart, err := strconv.ParseUint(start, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid range start: %w", err)
	}

	locationID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid range location: %w", err)
	}

	return ipStart, locationID, nil
}
