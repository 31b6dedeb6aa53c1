package kafka

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/case-data-etl/internal/artifact"
	"github.com/couchcryptid/case-data-etl/internal/domain"
	"github.com/couchcryptid/case-data-etl/internal/observability"
	"github.com/couchcryptid/case-data-etl/internal/pipeline"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// topicLog is a single-partition topic with one consumer group's committed
// offset. Every consumer opened on it starts at that offset.
type topicLog struct {
	mu        sync.Mutex
	msgs      []kafkago.Message
	committed int64
	opened    int
	closed    int
}

func (l *topicLog) append(t *testing.T, rows ...map[string]any) {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range rows {
		payload, err := json.Marshal(r)
		require.NoError(t, err)
		l.msgs = append(l.msgs, kafkago.Message{
			Topic:  "case-rows",
			Offset: int64(len(l.msgs)),
			Value:  payload,
		})
	}
}

func (l *topicLog) consumer(kafkago.ReaderConfig) messageFetcher {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.opened++
	return &logConsumer{log: l, pos: l.committed}
}

type logConsumer struct {
	log *topicLog
	pos int64
}

func (c *logConsumer) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	c.log.mu.Lock()
	if c.pos < int64(len(c.log.msgs)) {
		msg := c.log.msgs[c.pos]
		c.pos++
		c.log.mu.Unlock()
		return msg, nil
	}
	c.log.mu.Unlock()
	<-ctx.Done()
	return kafkago.Message{}, ctx.Err()
}

func (c *logConsumer) CommitMessages(_ context.Context, msgs ...kafkago.Message) error {
	c.log.mu.Lock()
	defer c.log.mu.Unlock()
	for _, m := range msgs {
		if m.Offset+1 > c.log.committed {
			c.log.committed = m.Offset + 1
		}
	}
	return nil
}

func (c *logConsumer) Close() error {
	c.log.mu.Lock()
	defer c.log.mu.Unlock()
	c.log.closed++
	return nil
}

func newTestReader(log *topicLog) *Reader {
	return &Reader{
		cfg:        kafkago.ReaderConfig{Topic: "case-rows"},
		idle:       20 * time.Millisecond,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		newFetcher: log.consumer,
	}
}

func row(date, country, caseType string, cases int) map[string]any {
	return map[string]any{
		domain.FieldDate:      date,
		domain.FieldCountry:   country,
		domain.FieldProvince:  "",
		domain.FieldCounty:    "",
		domain.FieldCaseType:  caseType,
		domain.FieldCases:     cases,
		domain.FieldLatitude:  "",
		domain.FieldLongitude: "",
		domain.FieldFIPS:      "",
	}
}

func offsets(batch []domain.RawRecord) []int64 {
	out := make([]int64, 0, len(batch))
	for _, r := range batch {
		out = append(out, r.Offset)
	}
	return out
}

func TestReader_UncommittedRowsRedeliveredNextRun(t *testing.T) {
	ctx := context.Background()
	log := &topicLog{}
	log.append(t,
		row("3/1/2020", "Italy", "Confirmed", 1),
		row("3/2/2020", "Italy", "Confirmed", 4),
		row("3/2/2020", "Spain", "Confirmed", 2),
	)
	r := newTestReader(log)

	first, err := r.Open(ctx)
	require.NoError(t, err)
	batch, err := first.ExtractBatch(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1}, offsets(batch))
	require.NoError(t, first.Close())

	second, err := r.Open(ctx)
	require.NoError(t, err)
	batch, err = second.ExtractBatch(ctx, 10)
	require.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []int64{0, 1, 2}, offsets(batch))
	require.NoError(t, batch[1].Commit(ctx))
	require.NoError(t, second.Close())

	third, err := r.Open(ctx)
	require.NoError(t, err)
	batch, err = third.ExtractBatch(ctx, 10)
	require.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []int64{2}, offsets(batch))
	require.NoError(t, third.Close())

	assert.Equal(t, 3, log.opened)
	assert.Equal(t, 3, log.closed)
}

func TestReader_OpenRequiresClosedRun(t *testing.T) {
	ctx := context.Background()
	log := &topicLog{}
	r := newTestReader(log)

	ext, err := r.Open(ctx)
	require.NoError(t, err)
	_, err = r.Open(ctx)
	require.Error(t, err)

	require.NoError(t, r.Close())
	require.NoError(t, ext.Close())
	assert.Equal(t, 1, log.closed)

	_, err = r.Open(ctx)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.Equal(t, 2, log.closed)
}

func TestReader_FailedRunIsRetriedInFull(t *testing.T) {
	ctx := context.Background()
	log := &topicLog{}
	log.append(t,
		row("3/1/2020", "Italy", "Confirmed", 1),
		row("3/2/2020", "Italy", "Confirmed", 4),
		row("3/2/2020", "Spain", "Confirmed", 2),
	)
	r := newTestReader(log)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	opts := pipeline.Options{
		RegionTableFile: "regioninfo.csv",
		CaseDataFile:    "caseinfo.dat",
		ManifestFile:    "manifest.json",
		Incremental:     true,
		BatchSize:       2,
		AltNames:        domain.DefaultAltNames(),
	}
	base := t.TempDir()

	// A regular file where the publish directory should be fails the run
	// after every row has been fetched.
	blocked := filepath.Join(base, "blocked")
	require.NoError(t, os.WriteFile(blocked, nil, 0o644))
	failing := pipeline.New(r, artifact.RegionTableFile(filepath.Join(base, opts.RegionTableFile)),
		artifact.NewPublisher(blocked, logger), opts, logger, observability.NewMetricsForTesting())
	_, err := failing.RunOnce(ctx)
	require.Error(t, err)
	assert.Equal(t, int64(0), log.committed)

	dir := filepath.Join(base, "out")
	p := pipeline.New(r, artifact.RegionTableFile(filepath.Join(dir, opts.RegionTableFile)),
		artifact.NewPublisher(dir, logger), opts, logger, observability.NewMetricsForTesting())
	m, err := p.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, m.RowsIngested)
	assert.Equal(t, 2, m.Regions)
	assert.Equal(t, []string{"20200301", "20200302"}, m.DateAxis)
	assert.Equal(t, int64(3), log.committed)
	assert.Equal(t, log.opened, log.closed)
}
