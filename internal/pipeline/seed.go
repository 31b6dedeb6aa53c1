package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/couchcryptid/case-data-etl/internal/artifact"
	"github.com/couchcryptid/case-data-etl/internal/domain"
	"github.com/couchcryptid/case-data-etl/internal/region"
	"github.com/couchcryptid/case-data-etl/internal/series"
)

// seed loads the previously published case data into acc so that an
// incremental source only has to deliver new rows. It returns the number of
// seeded regions. A directory without a manifest seeds nothing.
func (p *Pipeline) seed(store *region.Store, acc *series.Accumulator) (int, error) {
	dir := p.publisher.Dir()
	m, err := artifact.ReadManifest(filepath.Join(dir, p.opts.ManifestFile))
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read prior manifest: %w", err)
	}

	res, err := artifact.ImportCaseDataFile(filepath.Join(dir, p.opts.CaseDataFile), store, len(m.DateAxis))
	if err != nil {
		return 0, fmt.Errorf("read prior case data: %w", err)
	}
	for _, id := range res.UnknownIDs {
		p.logger.Debug("unknown region id in prior case data", "region_id", id)
	}
	p.metrics.UnknownRegionIDs.Add(float64(len(res.UnknownIDs)))

	for _, d := range m.DateAxis {
		if err := acc.ObserveDate(d); err != nil {
			return 0, err
		}
	}
	for _, rc := range res.Regions {
		for _, c := range domain.Categories {
			for i, d := range m.DateAxis {
				count := strconv.FormatUint(uint64(rc.Counts[c][i]), 10)
				if err := acc.Record(rc.Region.ID, c, d, count); err != nil {
					return 0, err
				}
			}
		}
	}

	p.logger.Info("prior case data seeded",
		"run_id", m.RunID,
		"regions", len(res.Regions),
		"dates", len(m.DateAxis),
	)
	return len(res.Regions), nil
}
