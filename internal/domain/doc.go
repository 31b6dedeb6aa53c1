// Package domain models regional case-count data and the identity of the
// regions it is reported against.
//
// # Data Source
//
// Case counts come from a long-format CSV table with one row per region, per
// date, per case type. The columns consumed are:
//
//	date, country_region, province_state, admin2, case_type, cases, lat, long, fips
//
// Columns are matched by header name; their positions may change between
// exports.
//
// # Region Hierarchy
//
// A region is named by up to three levels:
//
//	level1  country_region   "US", "Canada"        always present
//	level2  province_state   "Washington"          "N/A" means absent
//	level3  admin2           "King"                county, US only
//
// The most specific populated level decides the region level (1, 2 or 3)
// and region type (country, state or province, county). Level 2 regions
// under "US" are states; elsewhere they are provinces.
//
// # Composite Key
//
// Every region has exactly one composite key, the concatenation of its
// populated levels from most to least specific with spaces, commas and
// periods removed:
//
//	("US", "Washington", "King")  ->  "KingWashingtonUS"
//	("Korea, South", "", "")      ->  "KoreaSouth"
//
// "N/A" in level 2 is normalized to empty before the key is derived, so a
// row and the identity it created always produce the same key. See
// [RegionKey].
//
// # Dates and Counts
//
// Dates are normalized to the 8-digit YYYYMMDD form, which sorts
// chronologically as a string. Counts are kept as the raw source text until
// export; empty, non-numeric and negative counts become zero. See
// [ParseCount].
package domain
