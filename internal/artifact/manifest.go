package artifact

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// Artifact names used in manifests, metrics and staging.
const (
	NameRegionTable    = "region_table"
	NameCaseData       = "case_data"
	NameCaseDataSnappy = "case_data_snappy"
	NameManifest       = "manifest"
)

// Manifest describes one published run. The date axis is recorded here
// because the case data file does not carry it.
type Manifest struct {
	RunID        string         `json:"run_id"`
	ProcessedAt  time.Time      `json:"processed_at"`
	Regions      int            `json:"regions"`
	NewRegions   int            `json:"new_regions"`
	RowsIngested int            `json:"rows_ingested"`
	FirstDate    string         `json:"first_date,omitempty"`
	LastDate     string         `json:"last_date,omitempty"`
	DateAxis     []string       `json:"date_axis"`
	Artifacts    []ArtifactInfo `json:"artifacts"`
}

// ArtifactInfo records a published file.
type ArtifactInfo struct {
	Name  string `json:"name"`
	File  string `json:"file"`
	Bytes int64  `json:"bytes"`
}

// Artifact returns the entry with the given name.
func (m *Manifest) Artifact(name string) (ArtifactInfo, bool) {
	for _, a := range m.Artifacts {
		if a.Name == name {
			return a, true
		}
	}
	return ArtifactInfo{}, false
}

// SetDateAxis stores axis and its bounds.
func (m *Manifest) SetDateAxis(axis []string) {
	m.DateAxis = axis
	if m.DateAxis == nil {
		m.DateAxis = []string{}
	}
	m.FirstDate, m.LastDate = "", ""
	if len(axis) > 0 {
		m.FirstDate = axis[0]
		m.LastDate = axis[len(axis)-1]
	}
}

// Encode writes the manifest as indented JSON.
func (m *Manifest) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}

// DecodeManifest parses a manifest.
func DecodeManifest(r io.Reader) (*Manifest, error) {
	var m Manifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	for i := 1; i < len(m.DateAxis); i++ {
		if m.DateAxis[i] <= m.DateAxis[i-1] {
			return nil, fmt.Errorf("decode manifest: date axis not strictly ascending at %d", i)
		}
	}
	return &m, nil
}

// ReadManifest reads the manifest at path.
func ReadManifest(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeManifest(f)
}
