package domain

import (
	"strings"
)

// RegionType classifies a region by its place in the hierarchy.
type RegionType string

const (
	RegionCountry  RegionType = "country"
	RegionState    RegionType = "state"
	RegionProvince RegionType = "province"
	RegionCounty   RegionType = "county"
	RegionOther    RegionType = "other"
)

// NotApplicable is the source sentinel for an absent province or state.
const NotApplicable = "N/A"

// Location is the hierarchical name of a region as reported by a source row.
type Location struct {
	Level1 string // country
	Level2 string // province or state
	Level3 string // county
}

// Normalize maps the "N/A" sentinel in Level2 to empty.
func (l Location) Normalize() Location {
	if l.Level2 == NotApplicable {
		l.Level2 = ""
	}
	return l
}

// Key returns the composite key of the location.
func (l Location) Key() string {
	return RegionKey(l.Level1, l.Level2, l.Level3)
}

// RegionIdentity is the canonical description of a region. Coordinates are
// decimal strings and may be empty.
type RegionIdentity struct {
	ID              uint32
	Level           int
	Level1          string
	Level2          string
	Level3          string
	Type            RegionType
	LocationName    string
	AltLocationName string
	Latitude        string
	Longitude       string
	FIPS            string
}

// Location returns the hierarchical name of the region.
func (r *RegionIdentity) Location() Location {
	return Location{Level1: r.Level1, Level2: r.Level2, Level3: r.Level3}
}

// Key returns the composite key of the region.
func (r *RegionIdentity) Key() string {
	return RegionKey(r.Level1, r.Level2, r.Level3)
}

var keyStripper = strings.NewReplacer(" ", "", ",", "", ".", "")

// RegionKey derives the composite key from the three name levels. The result
// depends on its arguments only.
func RegionKey(level1, level2, level3 string) string {
	if level2 == NotApplicable {
		level2 = ""
	}

	var key string
	switch {
	case level3 != "":
		key = level3 + level2 + level1
	case level2 != "":
		key = level2 + level1
	default:
		key = level1
	}
	return keyStripper.Replace(key)
}

// BuildRegion derives the descriptive fields of a region from its location.
// ID and coordinates are left for the caller.
func BuildRegion(loc Location, alt AltNames) RegionIdentity {
	loc = loc.Normalize()

	r := RegionIdentity{
		Level1: loc.Level1,
		Level2: loc.Level2,
		Level3: loc.Level3,
	}

	switch {
	case loc.Level3 != "":
		r.Level = 3
		r.Type = RegionCounty
	case loc.Level2 != "":
		r.Level = 2
		if loc.Level1 == "US" {
			r.Type = RegionState
		} else {
			r.Type = RegionProvince
		}
	default:
		r.Level = 1
		r.Type = RegionCountry
	}

	parts := make([]string, 0, 3)
	for _, p := range []string{loc.Level3, loc.Level2, loc.Level1} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	r.LocationName = strings.Join(parts, ", ")

	if name, ok := alt.Lookup(r.LocationName); ok {
		r.AltLocationName = name
	} else if name, ok := alt.Lookup(loc.Level2); ok && r.Level == 2 {
		r.AltLocationName = name
	}

	return r
}

// ParseRegionType maps a stored region type to its constant. Unknown values
// map to RegionOther.
func ParseRegionType(s string) RegionType {
	switch t := RegionType(s); t {
	case RegionCountry, RegionState, RegionProvince, RegionCounty:
		return t
	default:
		return RegionOther
	}
}
