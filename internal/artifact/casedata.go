package artifact

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"

	"github.com/couchcryptid/case-data-etl/internal/codec"
	"github.com/couchcryptid/case-data-etl/internal/domain"
	"github.com/golang/snappy"
)

// SnappySuffix marks the snappy-framed copy of a case data file.
const SnappySuffix = ".sz"

// RegionSource enumerates regions in export order.
type RegionSource interface {
	All() iter.Seq[domain.RegionIdentity]
	Len() int
}

// RegionLookup resolves regions by numeric id.
type RegionLookup interface {
	ByID(id uint32) (domain.RegionIdentity, bool)
}

// SeriesSource yields the axis-aligned counts of a region.
type SeriesSource interface {
	Blocks(regionID uint32) ([domain.NumCategories][]uint32, error)
}

// ExportCaseData encodes every region of regions, in order, with its counts
// from series.
func ExportCaseData(w io.Writer, regions RegionSource, series SeriesSource) error {
	cw := codec.NewWriter(w)
	if err := cw.WriteHeader(regions.Len()); err != nil {
		return err
	}

	written := 0
	for r := range regions.All() {
		blocks, err := series.Blocks(r.ID)
		if err != nil {
			return fmt.Errorf("region %d: %w", r.ID, err)
		}
		if err := cw.WriteRegion(r.ID, blocks); err != nil {
			return err
		}
		written++
	}
	if written != regions.Len() {
		return fmt.Errorf("%w: source yielded %d of %d regions", codec.ErrRegionCount, written, regions.Len())
	}
	return cw.Close()
}

// ExportCaseDataSnappy writes the snappy-framed form of ExportCaseData.
func ExportCaseDataSnappy(w io.Writer, regions RegionSource, series SeriesSource) error {
	sw := snappy.NewBufferedWriter(w)
	if err := ExportCaseData(sw, regions, series); err != nil {
		return err
	}
	return sw.Close()
}

// RegionCounts is one imported region with its counts in category order.
type RegionCounts struct {
	Region domain.RegionIdentity
	Counts [domain.NumCategories][]uint32
}

// Series returns the counts of one category.
func (rc RegionCounts) Series(c domain.Category) []uint32 {
	return rc.Counts[c]
}

// ImportResult is the outcome of reading a case data file.
type ImportResult struct {
	Regions    []RegionCounts
	UnknownIDs []uint32
	AxisLen    int
	Declared   int
}

// ImportCaseData decodes a case data file and attaches each record to its
// region. Records whose id is not known to lookup are read and discarded.
// axisLen is the expected date axis length, or -1 when unknown.
func ImportCaseData(r io.Reader, lookup RegionLookup, axisLen int) (*ImportResult, error) {
	cr, err := codec.NewReader(r, axisLen)
	if err != nil {
		return nil, err
	}

	res := &ImportResult{
		Regions:  make([]RegionCounts, 0, min(cr.RegionCount(), 1<<16)),
		Declared: cr.RegionCount(),
	}
	for {
		rec, err := cr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		region, ok := lookup.ByID(rec.ID)
		if !ok {
			res.UnknownIDs = append(res.UnknownIDs, rec.ID)
			continue
		}
		res.Regions = append(res.Regions, RegionCounts{Region: region, Counts: rec.Blocks})
	}
	res.AxisLen = max(cr.AxisLen(), 0)
	return res, nil
}

// OpenCaseData opens a case data file for reading, decompressing it when the
// name carries SnappySuffix.
func OpenCaseData(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, SnappySuffix) {
		return f, nil
	}
	return struct {
		io.Reader
		io.Closer
	}{snappy.NewReader(f), f}, nil
}

// ImportCaseDataFile is ImportCaseData over the file at path.
func ImportCaseDataFile(path string, lookup RegionLookup, axisLen int) (*ImportResult, error) {
	rc, err := OpenCaseData(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	res, err := ImportCaseData(rc, lookup, axisLen)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return res, nil
}
