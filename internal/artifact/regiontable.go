package artifact

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strconv"
	"strings"

	"github.com/couchcryptid/case-data-etl/internal/domain"
)

// Region table column names, in file order.
const (
	ColID              = "id"
	ColRegionLevel     = "regionLevel"
	ColRegionLevel1    = "regionLevel1"
	ColRegionLevel2    = "regionLevel2"
	ColRegionLevel3    = "regionLevel3"
	ColRegionType      = "regionType"
	ColLocationName    = "locationName"
	ColAltLocationName = "altLocationName"
	ColLatitude        = "latitude"
	ColLongitude       = "longitude"
	ColFIPS            = "fips"
)

// RegionTableHeader is the header row of the region table.
var RegionTableHeader = []string{
	ColID, ColRegionLevel, ColRegionLevel1, ColRegionLevel2, ColRegionLevel3,
	ColRegionType, ColLocationName, ColAltLocationName, ColLatitude, ColLongitude, ColFIPS,
}

// WriteRegionTable writes the header and one row per region. Values that
// contain a comma are wrapped in double quotes; nothing else is escaped.
func WriteRegionTable(w io.Writer, regions iter.Seq[domain.RegionIdentity]) error {
	bw := bufio.NewWriter(w)
	writeRow(bw, RegionTableHeader)
	for r := range regions {
		writeRow(bw, regionRow(r))
	}
	return bw.Flush()
}

func regionRow(r domain.RegionIdentity) []string {
	return []string{
		strconv.FormatUint(uint64(r.ID), 10),
		strconv.Itoa(r.Level),
		r.Level1,
		r.Level2,
		r.Level3,
		string(r.Type),
		r.LocationName,
		r.AltLocationName,
		r.Latitude,
		r.Longitude,
		r.FIPS,
	}
}

// writeRow ignores write errors; bufio.Writer keeps the first one and
// returns it from Flush.
func writeRow(w *bufio.Writer, fields []string) {
	for i, f := range fields {
		if i > 0 {
			w.WriteByte(',') //nolint:errcheck // reported by Flush
		}
		if strings.Contains(f, ",") {
			w.WriteByte('"') //nolint:errcheck // reported by Flush
			w.WriteString(f) //nolint:errcheck // reported by Flush
			w.WriteByte('"') //nolint:errcheck // reported by Flush
		} else {
			w.WriteString(f) //nolint:errcheck // reported by Flush
		}
	}
	w.WriteByte('\n') //nolint:errcheck // reported by Flush
}

// RegionTableFile loads the prior region table from a published file.
type RegionTableFile string

// LoadRegions reads the table. A missing file yields no regions.
func (f RegionTableFile) LoadRegions(_ context.Context) ([]domain.RegionIdentity, error) {
	return ReadRegionTableFile(string(f))
}

// ReadRegionTableFile reads a region table from path. A missing file yields
// an empty table.
func ReadRegionTableFile(path string) ([]domain.RegionIdentity, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	regions, err := ReadRegionTable(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return regions, nil
}

// ReadRegionTable parses a region table. Columns are located by header name.
func ReadRegionTable(r io.Reader) ([]domain.RegionIdentity, error) {
	cr := csv.NewReader(r)
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, col := range RegionTableHeader {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	var regions []domain.RegionIdentity
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(row) == 1 && row[0] == "" {
			continue
		}

		region, err := parseRegionRow(row, idx)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		regions = append(regions, region)
	}
	return regions, nil
}

func parseRegionRow(row []string, idx map[string]int) (domain.RegionIdentity, error) {
	get := func(col string) string {
		return strings.TrimSpace(row[idx[col]])
	}

	id, err := strconv.ParseUint(get(ColID), 10, 32)
	if err != nil || id == 0 {
		return domain.RegionIdentity{}, fmt.Errorf("invalid id %q", get(ColID))
	}
	level, err := strconv.Atoi(get(ColRegionLevel))
	if err != nil || level < 1 || level > 3 {
		return domain.RegionIdentity{}, fmt.Errorf("region %d: invalid regionLevel %q", id, get(ColRegionLevel))
	}

	return domain.RegionIdentity{
		ID:              uint32(id),
		Level:           level,
		Level1:          get(ColRegionLevel1),
		Level2:          get(ColRegionLevel2),
		Level3:          get(ColRegionLevel3),
		Type:            domain.ParseRegionType(get(ColRegionType)),
		LocationName:    get(ColLocationName),
		AltLocationName: get(ColAltLocationName),
		Latitude:        get(ColLatitude),
		Longitude:       get(ColLongitude),
		FIPS:            get(ColFIPS),
	}, nil
}
