// Package postgres mirrors the region table into PostgreSQL and can serve it
// back as the prior table of the next run.
package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Masterminds/squirrel"
	"github.com/couchcryptid/case-data-etl/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const tableRegions = "regions"

// upsertChunk bounds the rows per statement to stay below the protocol's
// parameter limit.
const upsertChunk = 1000

var regionColumns = []string{
	"id", "position", "region_level", "level1", "level2", "level3", "region_type",
	"location_name", "alt_location_name", "latitude", "longitude", "fips",
}

const schema = `create table if not exists ` + tableRegions + ` (
	id                bigint primary key,
	position          integer not null,
	region_level      smallint not null,
	level1            text not null,
	level2            text not null default '',
	level3            text not null default '',
	region_type       text not null,
	location_name     text not null,
	alt_location_name text not null default '',
	latitude          text not null default '',
	longitude         text not null default '',
	fips              text not null default '',
	updated_at        timestamptz not null default now()
)`

// Store is a pgx-backed region mirror. It implements pipeline.RegionMirror
// and pipeline.PriorLoader.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New connects to databaseURL and ensures the schema exists.
func New(ctx context.Context, databaseURL string, logger *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{pool: pool, logger: logger}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the regions table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// SaveRegions upserts every region in one transaction. position records the
// slice order so LoadRegions can restore it.
func (s *Store) SaveRegions(ctx context.Context, regions []domain.RegionIdentity) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	for start := 0; start < len(regions); start += upsertChunk {
		end := min(start+upsertChunk, len(regions))
		sql, args, err := upsertQuery(regions[start:end], start).ToSql()
		if err != nil {
			return fmt.Errorf("build upsert: %w", err)
		}
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("upsert regions: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Debug("regions mirrored", "regions", len(regions))
	return nil
}

// LoadRegions returns the mirrored regions in position order.
func (s *Store) LoadRegions(ctx context.Context) ([]domain.RegionIdentity, error) {
	sql, args, err := selectQuery().ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select regions: %w", err)
	}
	regions, err := pgx.CollectRows(rows, scanRegion)
	if err != nil {
		return nil, fmt.Errorf("scan regions: %w", err)
	}
	return regions, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// builder returns a squirrel statement builder using $n placeholders.
func builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func upsertQuery(regions []domain.RegionIdentity, offset int) squirrel.InsertBuilder {
	q := builder().Insert(tableRegions).Columns(regionColumns...)
	for i, r := range regions {
		q = q.Values(
			int64(r.ID), offset+i, r.Level, r.Level1, r.Level2, r.Level3, string(r.Type),
			r.LocationName, r.AltLocationName, r.Latitude, r.Longitude, r.FIPS,
		)
	}
	return q.Suffix(`on conflict (id) do update set
		position = excluded.position,
		region_level = excluded.region_level,
		level1 = excluded.level1,
		level2 = excluded.level2,
		level3 = excluded.level3,
		region_type = excluded.region_type,
		location_name = excluded.location_name,
		alt_location_name = excluded.alt_location_name,
		latitude = excluded.latitude,
		longitude = excluded.longitude,
		fips = excluded.fips,
		updated_at = now()`)
}

func selectQuery() squirrel.SelectBuilder {
	return builder().Select(regionColumns...).
		From(tableRegions).
		OrderBy("position", "id")
}

func scanRegion(row pgx.CollectableRow) (domain.RegionIdentity, error) {
	var (
		r        domain.RegionIdentity
		id       int64
		position int
		level    int16
		typ      string
	)
	err := row.Scan(
		&id, &position, &level, &r.Level1, &r.Level2, &r.Level3, &typ,
		&r.LocationName, &r.AltLocationName, &r.Latitude, &r.Longitude, &r.FIPS,
	)
	if err != nil {
		return r, err
	}
	if id <= 0 || id > int64(^uint32(0)) {
		return r, fmt.Errorf("region id %d out of range", id)
	}
	r.ID = uint32(id)
	r.Level = int(level)
	r.Type = domain.ParseRegionType(typ)
	return r, nil
}
