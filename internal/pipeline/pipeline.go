package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/case-data-etl/internal/artifact"
	"github.com/couchcryptid/case-data-etl/internal/domain"
	"github.com/couchcryptid/case-data-etl/internal/observability"
	"github.com/couchcryptid/case-data-etl/internal/region"
	"github.com/couchcryptid/case-data-etl/internal/series"
	"github.com/google/uuid"
)

// BatchExtractor reads up to batchSize raw records from the source. It
// returns io.EOF, possibly together with a final batch, once the source is
// drained. Close is called when the run ends, after any offset commits.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawRecord, error)
	Close() error
}

// Source opens a fresh extractor for each run.
type Source interface {
	Open(ctx context.Context) (BatchExtractor, error)
}

// PriorLoader returns the region table published by the previous run.
type PriorLoader interface {
	LoadRegions(ctx context.Context) ([]domain.RegionIdentity, error)
}

// RegionMirror keeps an external copy of the region table.
type RegionMirror interface {
	SaveRegions(ctx context.Context, regions []domain.RegionIdentity) error
}

// Notifier announces a published run.
type Notifier interface {
	Notify(ctx context.Context, m *artifact.Manifest) error
}

// Options controls where and how a run publishes.
type Options struct {
	RegionTableFile string
	CaseDataFile    string
	ManifestFile    string
	Compress        bool
	Verify          bool
	// Incremental seeds each run with the published case data, for sources
	// that only deliver rows not yet seen.
	Incremental bool
	BatchSize   int
	AltNames    domain.AltNames
}

// Option configures optional pipeline collaborators.
type Option func(*Pipeline)

// WithGeocoder fills coordinates of newly discovered regions.
func WithGeocoder(g domain.Geocoder) Option {
	return func(p *Pipeline) { p.geocoder = g }
}

// WithMirror saves the region table before each publish.
func WithMirror(m RegionMirror) Option {
	return func(p *Pipeline) { p.mirror = m }
}

// WithNotifier announces each publish.
func WithNotifier(n Notifier) Option {
	return func(p *Pipeline) { p.notifier = n }
}

// Pipeline runs load-ingest-export cycles. Runs are serialized.
type Pipeline struct {
	source    Source
	prior     PriorLoader
	publisher *artifact.Publisher
	geocoder  domain.Geocoder
	mirror    RegionMirror
	notifier  Notifier
	opts      Options
	logger    *slog.Logger
	metrics   *observability.Metrics

	mu    sync.Mutex
	ready atomic.Bool
	last  atomic.Pointer[artifact.Manifest]
}

// New creates a Pipeline reading from src and publishing through publisher.
func New(src Source, prior PriorLoader, publisher *artifact.Publisher, opts Options, logger *slog.Logger, metrics *observability.Metrics, options ...Option) *Pipeline {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	p := &Pipeline{
		source:    src,
		prior:     prior,
		publisher: publisher,
		opts:      opts,
		logger:    logger,
		metrics:   metrics,
	}
	for _, o := range options {
		o(p)
	}
	return p
}

// CheckReadiness returns nil once a run has published, or an error
// describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no run has published yet")
	}
	return nil
}

// LastManifest returns the manifest of the last successful run, or nil.
func (p *Pipeline) LastManifest() *artifact.Manifest {
	return p.last.Load()
}

// RunOnce loads the prior region table, ingests the whole source and
// publishes the region table, case data and manifest. Nothing is published
// when any step fails.
func (p *Pipeline) RunOnce(ctx context.Context) (*artifact.Manifest, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	m, err := p.run(ctx)
	p.metrics.RunDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		p.metrics.Runs.WithLabelValues("error").Inc()
		return nil, err
	}

	p.metrics.Runs.WithLabelValues("success").Inc()
	p.metrics.LastSuccessTime.Set(float64(m.ProcessedAt.Unix()))
	p.last.Store(m)
	p.ready.Store(true)

	p.logger.Info("run published",
		"run_id", m.RunID,
		"regions", m.Regions,
		"new_regions", m.NewRegions,
		"rows", m.RowsIngested,
		"dates", len(m.DateAxis),
		"duration", time.Since(start),
	)
	return m, nil
}

func (p *Pipeline) run(ctx context.Context) (*artifact.Manifest, error) {
	prior, err := p.prior.LoadRegions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load prior regions: %w", err)
	}
	store := region.NewStore(p.opts.AltNames, p.logger)
	if err := store.Load(prior); err != nil {
		return nil, fmt.Errorf("load prior regions: %w", err)
	}
	p.logger.Info("prior regions loaded", "regions", store.Len(), "next_id", store.NextID())

	store.OnCreate(func(r *domain.RegionIdentity) {
		domain.FillCoordinates(ctx, r, p.geocoder, p.logger)
		p.metrics.RegionsDiscovered.Inc()
	})

	acc := series.New()
	if p.opts.Incremental {
		if _, err := p.seed(store, acc); err != nil {
			return nil, err
		}
	}

	// The extractor stays open until offsets are committed.
	ext, err := p.source.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer func() {
		if err := ext.Close(); err != nil {
			p.logger.Warn("close source failed", "error", err)
		}
	}()

	in, err := p.ingest(ctx, ext, store, acc)
	if err != nil {
		return nil, err
	}
	p.metrics.KeyCollisions.Add(float64(store.Collisions()))

	axis, err := acc.FinalizeDateAxis()
	if err != nil {
		return nil, err
	}
	p.reportMissingLatest(store, acc)

	m, err := p.publish(ctx, store, acc, axis, in.rows)
	if err != nil {
		return nil, err
	}

	if p.notifier != nil {
		if err := p.notifier.Notify(ctx, m); err != nil {
			p.logger.Warn("publish notification failed", "run_id", m.RunID, "error", err)
		}
	}
	for _, raw := range in.commits {
		p.commitOffset(ctx, raw)
	}
	return m, nil
}

// publish stages every artifact, verifies the staged case data, mirrors the
// region table and promotes the files. Staged files are removed on failure.
func (p *Pipeline) publish(ctx context.Context, store *region.Store, acc *series.Accumulator, axis []string, rows int) (_ *artifact.Manifest, err error) {
	files := []artifact.File{
		{
			Name:     artifact.NameRegionTable,
			FileName: p.opts.RegionTableFile,
			Write:    func(w io.Writer) error { return artifact.WriteRegionTable(w, store.All()) },
		},
		{
			Name:     artifact.NameCaseData,
			FileName: p.opts.CaseDataFile,
			Write:    func(w io.Writer) error { return artifact.ExportCaseData(w, store, acc) },
		},
	}
	if p.opts.Compress {
		files = append(files, artifact.File{
			Name:     artifact.NameCaseDataSnappy,
			FileName: p.opts.CaseDataFile + artifact.SnappySuffix,
			Write:    func(w io.Writer) error { return artifact.ExportCaseDataSnappy(w, store, acc) },
		})
	}

	staged, err := p.publisher.Stage(ctx, files...)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	defer func() {
		if err != nil {
			staged.Abort()
		}
	}()

	if p.opts.Verify {
		if err := p.verify(staged, store, len(axis)); err != nil {
			return nil, fmt.Errorf("verify export: %w", err)
		}
	}

	m := &artifact.Manifest{
		RunID:        uuid.NewString(),
		ProcessedAt:  domain.Now(),
		Regions:      store.Len(),
		NewRegions:   store.Created(),
		RowsIngested: rows,
		Artifacts:    staged.Artifacts(),
	}
	m.SetDateAxis(axis)
	if err := staged.Add(ctx, artifact.File{
		Name:     artifact.NameManifest,
		FileName: p.opts.ManifestFile,
		Write:    m.Encode,
	}); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}

	if p.mirror != nil {
		if err := p.mirror.SaveRegions(ctx, slices.Collect(store.All())); err != nil {
			return nil, fmt.Errorf("mirror regions: %w", err)
		}
	}

	if err := staged.Commit(); err != nil {
		return nil, err
	}

	for _, a := range staged.Artifacts() {
		p.metrics.ArtifactBytes.WithLabelValues(a.Name).Set(float64(a.Bytes))
	}
	p.metrics.Regions.Set(float64(store.Len()))
	p.metrics.DateAxisLength.Set(float64(len(axis)))
	return m, nil
}

// verify reads the staged files back and checks they describe the same
// regions and axis as the in-memory state.
func (p *Pipeline) verify(staged *artifact.Staged, store *region.Store, axisLen int) error {
	tablePath, _ := staged.TempPath(artifact.NameRegionTable)
	table, err := artifact.ReadRegionTableFile(tablePath)
	if err != nil {
		return err
	}
	if len(table) != store.Len() {
		return fmt.Errorf("region table has %d rows, want %d", len(table), store.Len())
	}
	for _, r := range table {
		if _, ok := store.ByID(r.ID); !ok {
			return fmt.Errorf("region table id %d not in store", r.ID)
		}
	}

	dataPath, _ := staged.TempPath(artifact.NameCaseData)
	res, err := artifact.ImportCaseDataFile(dataPath, store, axisLen)
	if err != nil {
		return err
	}
	if len(res.UnknownIDs) > 0 {
		return fmt.Errorf("case data has %d unknown region ids", len(res.UnknownIDs))
	}
	if len(res.Regions) != store.Len() {
		return fmt.Errorf("case data has %d regions, want %d", len(res.Regions), store.Len())
	}
	p.logger.Debug("export verified", "regions", len(res.Regions), "dates", axisLen)
	return nil
}

// reportMissingLatest logs regions whose series stop before the last date.
// Placeholder counties are expected to lag and are skipped.
func (p *Pipeline) reportMissingLatest(store *region.Store, acc *series.Accumulator) {
	if !p.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	for r := range store.All() {
		if r.Level3 == "Unassigned" {
			continue
		}
		for _, c := range acc.MissingLatest(r.ID) {
			p.logger.Debug("latest date missing",
				"region_id", r.ID,
				"location", r.LocationName,
				"category", c.String(),
			)
		}
	}
}

// commitOffset commits the record offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, raw domain.RawRecord) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}
