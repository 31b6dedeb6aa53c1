// Package artifact reads and writes the published outputs of an ingestion
// run: the region table (CSV), the binary case data, an optional snappy
// compressed copy of the case data, and a JSON run manifest carrying the
// date axis. Outputs are staged next to their final location and promoted
// together by rename, so a failed run leaves the previous outputs in place.
package artifact
