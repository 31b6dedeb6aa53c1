// Package series accumulates per-region case counts and the global date
// axis they are encoded against.
package series

import (
	"errors"
	"fmt"
	"slices"

	"github.com/couchcryptid/case-data-etl/internal/domain"
)

var (
	// ErrAxisFinalized is returned when data is recorded after the date axis
	// has been finalized.
	ErrAxisFinalized = errors.New("date axis already finalized")

	// ErrAxisNotFinalized is returned when aligned counts are requested
	// before the date axis has been finalized.
	ErrAxisNotFinalized = errors.New("date axis not finalized")
)

type regionSeries [domain.NumCategories]map[string]string

// Accumulator holds raw counts by region, category and date, and the set of
// all observed dates. Recording stops once the date axis is finalized.
type Accumulator struct {
	regions   map[uint32]*regionSeries
	dates     map[string]struct{}
	axis      []string
	finalized bool
}

// New returns an empty Accumulator.
func New() *Accumulator {
	return &Accumulator{
		regions: make(map[uint32]*regionSeries),
		dates:   make(map[string]struct{}),
	}
}

// Record stores the raw count for a region, category and date. A later call
// for the same triple replaces the earlier value.
func (a *Accumulator) Record(regionID uint32, cat domain.Category, date, raw string) error {
	if a.finalized {
		return ErrAxisFinalized
	}
	if !cat.Valid() {
		return fmt.Errorf("%w: %d", domain.ErrUnknownCategory, int(cat))
	}

	rs, ok := a.regions[regionID]
	if !ok {
		rs = new(regionSeries)
		a.regions[regionID] = rs
	}
	if rs[cat] == nil {
		rs[cat] = make(map[string]string)
	}
	rs[cat][date] = raw
	return nil
}

// ObserveDate adds date to the global date set.
func (a *Accumulator) ObserveDate(date string) error {
	if a.finalized {
		return ErrAxisFinalized
	}
	a.dates[date] = struct{}{}
	return nil
}

// FinalizeDateAxis sorts the observed dates into the date axis. It may be
// called once.
func (a *Accumulator) FinalizeDateAxis() ([]string, error) {
	if a.finalized {
		return nil, ErrAxisFinalized
	}
	axis := make([]string, 0, len(a.dates))
	for d := range a.dates {
		axis = append(axis, d)
	}
	slices.Sort(axis)

	a.axis = axis
	a.finalized = true
	return slices.Clone(axis), nil
}

// Finalized reports whether the date axis has been finalized.
func (a *Accumulator) Finalized() bool { return a.finalized }

// DateAxis returns a copy of the finalized date axis, or nil before
// finalization.
func (a *Accumulator) DateAxis() []string {
	if !a.finalized {
		return nil
	}
	return slices.Clone(a.axis)
}

// Raw returns the recorded count text for a region, category and date.
func (a *Accumulator) Raw(regionID uint32, cat domain.Category, date string) (string, bool) {
	rs, ok := a.regions[regionID]
	if !ok || !cat.Valid() || rs[cat] == nil {
		return "", false
	}
	v, ok := rs[cat][date]
	return v, ok
}

// Counts returns the counts of one category for a region, aligned to the
// date axis. Dates without a usable count are zero. Regions with no
// recorded data yield all zeros.
func (a *Accumulator) Counts(regionID uint32, cat domain.Category) ([]uint32, error) {
	if !a.finalized {
		return nil, ErrAxisNotFinalized
	}
	if !cat.Valid() {
		return nil, fmt.Errorf("%w: %d", domain.ErrUnknownCategory, int(cat))
	}

	out := make([]uint32, len(a.axis))
	rs, ok := a.regions[regionID]
	if !ok || rs[cat] == nil {
		return out, nil
	}
	byDate := rs[cat]
	for i, d := range a.axis {
		if raw, ok := byDate[d]; ok {
			out[i], _ = domain.ParseCount(raw)
		}
	}
	return out, nil
}

// Blocks returns the aligned counts of every category for a region, in
// encoding order.
func (a *Accumulator) Blocks(regionID uint32) ([domain.NumCategories][]uint32, error) {
	var blocks [domain.NumCategories][]uint32
	for _, c := range domain.Categories {
		counts, err := a.Counts(regionID, c)
		if err != nil {
			return blocks, err
		}
		blocks[c] = counts
	}
	return blocks, nil
}

// MissingLatest returns the categories that have data for the region but no
// usable entry on the last date of the axis. Late reports are expected; the
// result is for diagnostics only.
func (a *Accumulator) MissingLatest(regionID uint32) []domain.Category {
	if !a.finalized || len(a.axis) == 0 {
		return nil
	}
	rs, ok := a.regions[regionID]
	if !ok {
		return nil
	}

	last := a.axis[len(a.axis)-1]
	var missing []domain.Category
	for _, c := range domain.Categories {
		if rs[c] == nil {
			continue
		}
		if raw, ok := rs[c][last]; !ok || raw == "" {
			missing = append(missing, c)
		}
	}
	return missing
}

// Regions returns the number of regions with recorded data.
func (a *Accumulator) Regions() int { return len(a.regions) }
