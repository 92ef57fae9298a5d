package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"geoipsql/internal/model"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	TableLocations = "geoip_locations"
	TableRanges    = "geoip_ranges"
)

var ErrSchemaNotInitialized = errors.New("store schema is not initialized")

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Open connects to the store. The pipeline is strictly sequential, so the pool
// is pinned to one connection and session-level tuning stays in effect.
func Open(driver, dsn string) (*sqlx.DB, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s store: %w", driver, err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return db, nil
}

type SQLRepository struct {
	db          *sqlx.DB
	logger      *zap.Logger
	initialized bool
}

func NewSQLRepository(db *sqlx.DB, logger *zap.Logger) *SQLRepository {
	return &SQLRepository{
		db:     db,
		logger: logger,
	}
}

// Initialized reports whether InitSchema has completed on this repository.
func (r *SQLRepository) Initialized() bool {
	return r.initialized
}

// InitSchema applies bulk-write tuning, then drops and recreates both relations.
func (r *SQLRepository) InitSchema(ctx context.Context) error {
	for _, q := range r.tuning() {
		if _, err := r.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("applying %q: %w", q, err)
		}
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	schema := []string{
		`DROP TABLE IF EXISTS ` + TableRanges,
		`DROP TABLE IF EXISTS ` + TableLocations,
		`CREATE TABLE ` + TableLocations + ` (
            location_id INTEGER PRIMARY KEY,
            continent_code TEXT,
            continent_name TEXT,
            country_iso_code TEXT,
            country_name TEXT,
            locales_json TEXT
        )`,
		`CREATE TABLE ` + TableRanges + ` (
            ip_start NUMERIC UNIQUE,
            ip_end NUMERIC UNIQUE,
            location_id INTEGER REFERENCES ` + TableLocations + `(location_id)
        )`,
		`CREATE INDEX ` + TableRanges + `_ip_end ON ` + TableRanges + `(ip_end)`,
	}

	for _, q := range schema {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	r.initialized = true
	r.logger.Info("Store schema initialized",
		zap.String("driver", r.db.DriverName()),
		zap.String("locations_table", TableLocations),
		zap.String("ranges_table", TableRanges))

	return nil
}

func (r *SQLRepository) tuning() []string {
	if r.db.DriverName() == DriverPostgres {
		return []string{"SET synchronous_commit = off"}
	}

	return []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=OFF",
	}
}

// SaveLocations writes all rows in one transaction.
func (r *SQLRepository) SaveLocations(ctx context.Context, rows []model.LocationRow) error {
	if !r.initialized {
		return ErrSchemaNotInitialized
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
        INSERT INTO ` + TableLocations + ` (location_id, continent_code, continent_name,
            country_iso_code, country_name, locales_json)
        VALUES (:location_id, :continent_code, :continent_name,
            :country_iso_code, :country_name, :locales_json)
    `

	stmt, err := tx.PrepareNamedContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row); err != nil {
			r.logger.Error("failed to insert location",
				zap.Int64("location_id", row.LocationID),
				zap.Error(err))
			return err
		}
	}

	return tx.Commit()
}

// SaveRanges writes one batch of ranges in one transaction.
func (r *SQLRepository) SaveRanges(ctx context.Context, ranges []model.RangeRecord) error {
	if !r.initialized {
		return ErrSchemaNotInitialized
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := r.db.Rebind(`INSERT INTO ` + TableRanges + ` (location_id, ip_start, ip_end) VALUES (?, ?, ?)`)

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, ipRange := range ranges {
		_, err = stmt.ExecContext(ctx, ipRange.LocationID, ipRange.IPStart, ipRange.IPEnd)
		if err != nil {
			r.logger.Error("failed to insert IP range",
				zap.Uint64("ip_start", ipRange.IPStart),
				zap.Uint64("ip_end", ipRange.IPEnd),
				zap.Int64("location_id", ipRange.LocationID),
				zap.Error(err))
			return err
		}
	}

	return tx.Commit()
}

// FindLocation resolves an address the way downstream resolvers do: the range
// with the smallest ip_end >= ip, accepted only if its ip_start <= ip.
// A nil row means the location is unknown.
func (r *SQLRepository) FindLocation(ctx context.Context, ip uint32) (*model.LocationRow, error) {
	var match model.RangeRecord
	query := r.db.Rebind(`
        SELECT ip_start, ip_end, location_id
        FROM ` + TableRanges + `
        WHERE ip_end >= ?
        ORDER BY ip_end ASC
        LIMIT 1
    `)

	err := r.db.GetContext(ctx, &match, query, ip)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding range for %d: %w", ip, err)
	}

	if match.IPStart > uint64(ip) {
		return nil, nil
	}

	var location model.LocationRow
	query = r.db.Rebind(`SELECT * FROM ` + TableLocations + ` WHERE location_id = ?`)

	err = r.db.GetContext(ctx, &location, query, match.LocationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding location %d: %w", match.LocationID, err)
	}

	return &location, nil
}

// Counts returns the number of location and range rows.
func (r *SQLRepository) Counts(ctx context.Context) (locations, ranges int64, err error) {
	if err = r.db.GetContext(ctx, &locations, "SELECT count(*) FROM "+TableLocations); err != nil {
		return 0, 0, err
	}
	if err = r.db.GetContext(ctx, &ranges, "SELECT count(*) FROM "+TableRanges); err != nil {
		return 0, 0, err
	}

	return locations, ranges, nil
}
