// Command validate checks a published data directory for internal
// consistency: the region table, the binary case data, the optional snappy
// copy, and the run manifest. Given the source CSV it also re-runs the
// pipeline into a scratch directory and compares the result with what was
// published.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -dir ./data \
//	  -source ./data/COVID-19-Cases.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/couchcryptid/case-data-etl/internal/adapter/csvsource"
	"github.com/couchcryptid/case-data-etl/internal/artifact"
	"github.com/couchcryptid/case-data-etl/internal/config"
	"github.com/couchcryptid/case-data-etl/internal/domain"
	"github.com/couchcryptid/case-data-etl/internal/observability"
	"github.com/couchcryptid/case-data-etl/internal/pipeline"
	"github.com/couchcryptid/case-data-etl/internal/region"
	"github.com/google/go-cmp/cmp"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name    string
	errors  []string
	skipped bool
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// published is the content of a data directory.
type published struct {
	dir      string
	files    fileNames
	manifest *artifact.Manifest
	table    []domain.RegionIdentity
	store    *region.Store
}

type fileNames struct {
	regionTable string
	caseData    string
	manifest    string
}

func main() {
	dir := flag.String("dir", "./data", "directory holding the published artifacts")
	regionTable := flag.String("region-table", "regioninfo.csv", "region table file name")
	caseData := flag.String("case-data", "caseinfo.dat", "case data file name")
	manifest := flag.String("manifest", "manifest.json", "manifest file name")
	source := flag.String("source", "", "optional source CSV to re-run and compare against")
	flag.Parse()

	if *dir == "" {
		flag.Usage()
		os.Exit(1)
	}

	names := fileNames{regionTable: *regionTable, caseData: *caseData, manifest: *manifest}
	if code := run(*dir, names, *source); code != 0 {
		os.Exit(code)
	}
}

func run(dir string, names fileNames, source string) int {
	logger := observability.NewLogger(&config.Config{LogLevel: "warn", LogFormat: "text"})

	fmt.Println("=== Case Data Integrity Validation ===")
	fmt.Println()

	pub, err := load(dir, names, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateRegionTable(pub),
		validateCaseData(pub),
		validateSnappyCopy(pub),
		validateSourceParity(pub, source, logger),
	}

	// ── Report results ──
	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		switch {
		case p.skipped:
			status = "SKIP"
		case !p.passed():
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Run %s: %d regions, %d dates (%s to %s)\n",
		pub.manifest.RunID, len(pub.table), len(pub.manifest.DateAxis), pub.manifest.FirstDate, pub.manifest.LastDate)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Data loading ──

func load(dir string, names fileNames, logger *slog.Logger) (*published, error) {
	m, err := artifact.ReadManifest(filepath.Join(dir, names.manifest))
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}
	table, err := artifact.ReadRegionTableFile(filepath.Join(dir, names.regionTable))
	if err != nil {
		return nil, fmt.Errorf("load region table: %w", err)
	}
	if table == nil {
		return nil, fmt.Errorf("load region table: %s not found", names.regionTable)
	}

	store := region.NewStore(domain.DefaultAltNames(), logger)
	if err := store.Load(table); err != nil {
		return nil, fmt.Errorf("load region table: %w", err)
	}
	return &published{dir: dir, files: names, manifest: m, table: table, store: store}, nil
}

// ── Phase 1: Region Table ──
// Validates identities against their own name levels and the manifest.

func validateRegionTable(pub *published) *phase {
	p := &phase{name: "Phase 1: Region Table"}

	if len(pub.table) != pub.manifest.Regions {
		p.errorf("manifest lists %d regions, table has %d", pub.manifest.Regions, len(pub.table))
	}
	for i := range pub.table {
		checkRegionRow(p, &pub.table[i])
	}
	return p
}

func checkRegionRow(p *phase, r *domain.RegionIdentity) {
	derived := domain.BuildRegion(r.Location(), domain.DefaultAltNames())
	if r.Level != derived.Level {
		p.errorf("region %d: regionLevel %d, names imply %d", r.ID, r.Level, derived.Level)
	}
	if r.LocationName != derived.LocationName {
		p.errorf("region %d: locationName %q, names imply %q", r.ID, r.LocationName, derived.LocationName)
	}
	if (r.Latitude == "") != (r.Longitude == "") {
		p.errorf("region %d: only one coordinate set (%q, %q)", r.ID, r.Latitude, r.Longitude)
	}
}

// ── Phase 2: Case Data ──
// Validates the binary file against the region table and the manifest axis.

func validateCaseData(pub *published) *phase {
	p := &phase{name: "Phase 2: Case Data (binary vs table)"}

	path := filepath.Join(pub.dir, pub.files.caseData)
	checkArtifactSize(p, pub.manifest, artifact.NameCaseData, path)

	res, err := artifact.ImportCaseDataFile(path, pub.store, len(pub.manifest.DateAxis))
	if err != nil {
		p.errorf("decode: %v", err)
		return p
	}
	checkImport(p, pub, res)
	return p
}

func checkImport(p *phase, pub *published, res *artifact.ImportResult) {
	if res.Declared != len(pub.table) {
		p.errorf("header declares %d regions, table has %d", res.Declared, len(pub.table))
	}
	if res.AxisLen != len(pub.manifest.DateAxis) {
		p.errorf("axis length %d, manifest has %d dates", res.AxisLen, len(pub.manifest.DateAxis))
	}
	for _, id := range res.UnknownIDs {
		p.errorf("record for id %d has no region table row", id)
	}

	seen := make(map[uint32]bool, len(res.Regions))
	for i, rc := range res.Regions {
		if seen[rc.Region.ID] {
			p.errorf("id %d appears more than once", rc.Region.ID)
		}
		seen[rc.Region.ID] = true
		if i < len(pub.table) && pub.table[i].ID != rc.Region.ID {
			p.errorf("record %d: id %d, table order expects %d", i, rc.Region.ID, pub.table[i].ID)
		}
	}
	for _, r := range pub.table {
		if !seen[r.ID] {
			p.errorf("region %d (%s) has no case data record", r.ID, r.LocationName)
		}
	}
}

func checkArtifactSize(p *phase, m *artifact.Manifest, name, path string) {
	info, ok := m.Artifact(name)
	if !ok {
		p.errorf("manifest has no %s entry", name)
		return
	}
	st, err := os.Stat(path)
	if err != nil {
		p.errorf("stat %s: %v", filepath.Base(path), err)
		return
	}
	if st.Size() != info.Bytes {
		p.errorf("%s is %d bytes, manifest records %d", filepath.Base(path), st.Size(), info.Bytes)
	}
}

// ── Phase 3: Snappy Copy ──
// Validates that the compressed copy decodes to the same counts.

func validateSnappyCopy(pub *published) *phase {
	p := &phase{name: "Phase 3: Snappy Copy"}

	info, ok := pub.manifest.Artifact(artifact.NameCaseDataSnappy)
	if !ok {
		p.skipped = true
		return p
	}
	path := filepath.Join(pub.dir, info.File)
	checkArtifactSize(p, pub.manifest, artifact.NameCaseDataSnappy, path)

	axisLen := len(pub.manifest.DateAxis)
	plain, err := artifact.ImportCaseDataFile(filepath.Join(pub.dir, pub.files.caseData), pub.store, axisLen)
	if err != nil {
		p.errorf("decode plain: %v", err)
		return p
	}
	compressed, err := artifact.ImportCaseDataFile(path, pub.store, axisLen)
	if err != nil {
		p.errorf("decode snappy: %v", err)
		return p
	}
	if diff := cmp.Diff(countsByID(plain), countsByID(compressed)); diff != "" {
		p.errorf("counts differ (-plain +snappy):\n%s", diff)
	}
	return p
}

// ── Phase 4: Source Parity ──
// Re-runs the pipeline on the source into a scratch directory, seeded with
// the published table, and compares the output.

func validateSourceParity(pub *published, source string, logger *slog.Logger) *phase {
	p := &phase{name: "Phase 4: Source Parity (re-run vs published)"}
	if source == "" {
		p.skipped = true
		return p
	}

	scratch, err := os.MkdirTemp("", "case-validate-*")
	if err != nil {
		p.errorf("scratch dir: %v", err)
		return p
	}
	defer os.RemoveAll(scratch)

	opts := pipeline.Options{
		RegionTableFile: pub.files.regionTable,
		CaseDataFile:    pub.files.caseData,
		ManifestFile:    pub.files.manifest,
		Verify:          true,
		AltNames:        domain.DefaultAltNames(),
	}
	prior := artifact.RegionTableFile(filepath.Join(pub.dir, pub.files.regionTable))
	pl := pipeline.New(csvsource.File{Path: source}, prior, artifact.NewPublisher(scratch, logger), opts, logger, observability.NewMetricsForTesting())

	m, err := pl.RunOnce(context.Background())
	if err != nil {
		p.errorf("re-run: %v", err)
		return p
	}
	if diff := cmp.Diff(pub.manifest.DateAxis, m.DateAxis); diff != "" {
		p.errorf("date axis differs (-published +re-run):\n%s", diff)
	}
	if m.NewRegions != 0 {
		p.errorf("source has %d regions missing from the published table", m.NewRegions)
	}

	rerun, err := load(scratch, pub.files, logger)
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	if diff := cmp.Diff(pub.table, rerun.table); diff != "" {
		p.errorf("region table differs (-published +re-run):\n%s", diff)
	}

	axisLen := len(m.DateAxis)
	want, err := artifact.ImportCaseDataFile(filepath.Join(pub.dir, pub.files.caseData), pub.store, axisLen)
	if err != nil {
		p.errorf("decode published: %v", err)
		return p
	}
	got, err := artifact.ImportCaseDataFile(filepath.Join(scratch, pub.files.caseData), rerun.store, axisLen)
	if err != nil {
		p.errorf("decode re-run: %v", err)
		return p
	}
	if diff := cmp.Diff(countsByID(want), countsByID(got)); diff != "" {
		p.errorf("case data differs (-published +re-run):\n%s", diff)
	}
	return p
}

func countsByID(res *artifact.ImportResult) map[uint32][domain.NumCategories][]uint32 {
	out := make(map[uint32][domain.NumCategories][]uint32, len(res.Regions))
	for _, rc := range res.Regions {
		out[rc.Region.ID] = rc.Counts
	}
	return out
}
