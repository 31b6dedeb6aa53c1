package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Source column names.
const (
	FieldDate      = "date"
	FieldCountry   = "country_region"
	FieldProvince  = "province_state"
	FieldCounty    = "admin2"
	FieldCaseType  = "case_type"
	FieldCases     = "cases"
	FieldLatitude  = "lat"
	FieldLongitude = "long"
	FieldFIPS      = "fips"
)

// SourceFields lists every column a source table must carry.
var SourceFields = []string{
	FieldDate, FieldCountry, FieldProvince, FieldCounty, FieldCaseType,
	FieldCases, FieldLatitude, FieldLongitude, FieldFIPS,
}

// SourceRow is one parsed observation.
type SourceRow struct {
	Line      int
	Date      string // YYYYMMDD
	Location  Location
	Category  Category
	Cases     string // raw count text
	Latitude  string
	Longitude string
	FIPS      string
}

// ValidateHeader checks that every source column is present.
func ValidateHeader(header []string) error {
	seen := make(map[string]bool, len(header))
	for _, h := range header {
		seen[strings.TrimSpace(h)] = true
	}
	for _, f := range SourceFields {
		if !seen[f] {
			return &MalformedRowError{Line: 1, Field: f, Reason: "missing column"}
		}
	}
	return nil
}

// ParseSourceRow converts a row keyed by column name into a SourceRow.
func ParseSourceRow(line int, fields map[string]string) (SourceRow, error) {
	get := func(name string) (string, error) {
		v, ok := fields[name]
		if !ok {
			return "", &MalformedRowError{Line: line, Field: name, Reason: "missing field"}
		}
		return strings.TrimSpace(v), nil
	}

	var row SourceRow
	row.Line = line

	vals := make(map[string]string, len(SourceFields))
	for _, f := range SourceFields {
		v, err := get(f)
		if err != nil {
			return SourceRow{}, err
		}
		vals[f] = v
	}

	date, err := NormalizeDate(vals[FieldDate])
	if err != nil {
		return SourceRow{}, &MalformedRowError{Line: line, Field: FieldDate, Reason: "unparsable date", Err: err}
	}
	row.Date = date

	if vals[FieldCountry] == "" {
		return SourceRow{}, &MalformedRowError{Line: line, Field: FieldCountry, Reason: "empty"}
	}
	row.Location = Location{
		Level1: vals[FieldCountry],
		Level2: vals[FieldProvince],
		Level3: vals[FieldCounty],
	}.Normalize()

	cat, err := ParseCategory(vals[FieldCaseType])
	if err != nil {
		return SourceRow{}, &MalformedRowError{Line: line, Field: FieldCaseType, Reason: "invalid", Err: err}
	}
	row.Category = cat

	row.Cases = vals[FieldCases]
	row.Latitude = vals[FieldLatitude]
	row.Longitude = vals[FieldLongitude]
	row.FIPS = vals[FieldFIPS]
	return row, nil
}

// NormalizeDate converts a dash or slash separated date into YYYYMMDD.
// Year-first ("2020-01-22") and month-first ("01-22-2020") orders are
// accepted; the four-digit part identifies the year.
func NormalizeDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '-' || r == '/' })
	if len(parts) != 3 || strings.Count(s, "-")+strings.Count(s, "/") != 2 {
		return "", fmt.Errorf("date %q: want three parts", s)
	}

	nums := make([]int, 3)
	for i, p := range parts {
		if !isDigits(p) {
			return "", fmt.Errorf("date %q: non-numeric part %q", s, p)
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return "", fmt.Errorf("date %q: %w", s, err)
		}
		nums[i] = n
	}

	var y, m, d int
	switch {
	case len(parts[0]) == 4:
		y, m, d = nums[0], nums[1], nums[2]
	case len(parts[2]) == 4:
		m, d, y = nums[0], nums[1], nums[2]
	default:
		return "", fmt.Errorf("date %q: no four-digit year", s)
	}

	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Year() != y || int(t.Month()) != m || t.Day() != d {
		return "", fmt.Errorf("date %q: out of range", s)
	}
	return fmt.Sprintf("%04d%02d%02d", y, m, d), nil
}

// CountStatus describes how a raw count was interpreted.
type CountStatus int

const (
	CountOK CountStatus = iota
	CountMissing
	CountNonNumeric
	CountNegative
	CountClamped
)

// ParseCount interprets raw count text. Only plain digit strings carry a
// value; empty, non-numeric and negative inputs yield zero. Values above
// the 32-bit range are clamped.
func ParseCount(raw string) (uint32, CountStatus) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return 0, CountMissing
	case raw[0] == '-' && isDigits(raw[1:]):
		return 0, CountNegative
	case !isDigits(raw):
		return 0, CountNonNumeric
	}

	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || n > math.MaxUint32 {
		return math.MaxUint32, CountClamped
	}
	return uint32(n), CountOK
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
