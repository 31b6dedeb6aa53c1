package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/couchcryptid/case-data-etl/internal/domain"
	"github.com/couchcryptid/case-data-etl/internal/region"
	"github.com/couchcryptid/case-data-etl/internal/series"
)

type ingestResult struct {
	rows int
	// commits holds the highest-offset record of each partition.
	commits []domain.RawRecord
}

type partitionKey struct {
	topic     string
	partition int
}

// ingest drains the source into store and acc. The first malformed row
// aborts the run.
func (p *Pipeline) ingest(ctx context.Context, ext BatchExtractor, store *region.Store, acc *series.Accumulator) (ingestResult, error) {
	var res ingestResult

	latest := make(map[partitionKey]domain.RawRecord)
	var order []partitionKey
	for {
		batch, err := ext.ExtractBatch(ctx, p.opts.BatchSize)
		if len(batch) > 0 {
			p.metrics.BatchSize.Observe(float64(len(batch)))
		}
		for _, raw := range batch {
			if ierr := p.ingestRecord(store, acc, raw); ierr != nil {
				return res, ierr
			}
			res.rows++
			p.metrics.RowsIngested.Inc()

			if raw.Commit == nil {
				continue
			}
			k := partitionKey{raw.Topic, raw.Partition}
			prev, seen := latest[k]
			if !seen {
				order = append(order, k)
			}
			if !seen || raw.Offset >= prev.Offset {
				latest[k] = raw
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("extract batch: %w", err)
		}
	}

	for _, k := range order {
		res.commits = append(res.commits, latest[k])
	}
	p.logger.Info("source ingested",
		"rows", res.rows,
		"regions", store.Len(),
		"new_regions", store.Created(),
	)
	return res, nil
}

func (p *Pipeline) ingestRecord(store *region.Store, acc *series.Accumulator, raw domain.RawRecord) error {
	row, err := domain.ParseSourceRow(raw.Line, raw.Fields)
	if err != nil {
		p.metrics.RowErrors.Inc()
		p.logger.Error("malformed source row",
			"line", raw.Line,
			"topic", raw.Topic,
			"offset", raw.Offset,
			"error", err,
		)
		return err
	}

	r, _, err := store.Resolve(region.Observation{
		Location:  row.Location,
		Latitude:  row.Latitude,
		Longitude: row.Longitude,
		FIPS:      row.FIPS,
	})
	if err != nil {
		return fmt.Errorf("line %d: %w", row.Line, err)
	}

	if _, status := domain.ParseCount(row.Cases); status == domain.CountNegative {
		p.metrics.NegativeCounts.Inc()
		p.logger.Debug("negative count replaced with zero",
			"line", row.Line,
			"region_id", r.ID,
			"category", row.Category.String(),
			"date", row.Date,
			"cases", row.Cases,
		)
	}

	if err := acc.Record(r.ID, row.Category, row.Date, row.Cases); err != nil {
		return err
	}
	return acc.ObserveDate(row.Date)
}
