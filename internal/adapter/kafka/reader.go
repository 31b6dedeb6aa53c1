package kafka

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/case-data-etl/internal/config"
	"github.com/couchcryptid/case-data-etl/internal/domain"
	"github.com/couchcryptid/case-data-etl/internal/pipeline"
	kafkago "github.com/segmentio/kafka-go"
)

// Reader consumes JSON source rows from a Kafka topic. Each run gets its own
// consumer that resumes from the group's committed offset, so rows fetched by
// a failed run are delivered again. A run drains the topic until no message
// arrives within the idle timeout. Offsets are committed by the pipeline
// after a successful publish.
type Reader struct {
	cfg        kafkago.ReaderConfig
	idle       time.Duration
	logger     *slog.Logger
	newFetcher func(kafkago.ReaderConfig) messageFetcher

	mu      sync.Mutex
	current *run
}

// messageFetcher is the part of *kafkago.Reader a run uses.
type messageFetcher interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// NewReader creates a consumer-group reader for the configured source topic.
func NewReader(cfg *config.Config, logger *slog.Logger) *Reader {
	return &Reader{
		cfg: kafkago.ReaderConfig{
			Brokers:     cfg.KafkaBrokers,
			GroupID:     cfg.KafkaGroupID,
			Topic:       cfg.KafkaSourceTopic,
			MinBytes:    1,
			MaxBytes:    10e6,
			StartOffset: kafkago.FirstOffset,
		},
		idle:   cfg.KafkaIdleTimeout,
		logger: logger,
		newFetcher: func(c kafkago.ReaderConfig) messageFetcher {
			return kafkago.NewReader(c)
		},
	}
}

// Open starts a run with a fresh consumer. The previous run must be closed.
func (r *Reader) Open(_ context.Context) (pipeline.BatchExtractor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil {
		return nil, errors.New("kafka reader: previous run still open")
	}
	r.current = &run{
		owner:   r,
		fetcher: r.newFetcher(r.cfg),
		topic:   r.cfg.Topic,
		idle:    r.idle,
		logger:  r.logger,
	}
	return r.current, nil
}

// Close closes the consumer of a run still in progress, if any.
func (r *Reader) Close() error {
	r.mu.Lock()
	cur := r.current
	r.mu.Unlock()
	if cur == nil {
		return nil
	}
	return cur.Close()
}

// run reads one pipeline run from its own consumer.
type run struct {
	owner   *Reader
	fetcher messageFetcher
	topic   string
	idle    time.Duration
	logger  *slog.Logger
	once    sync.Once
	err     error
}

// ExtractBatch fetches up to batchSize messages. It returns io.EOF with the
// final batch once the topic is idle.
func (r *run) ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawRecord, error) {
	batch := make([]domain.RawRecord, 0, batchSize)
	for len(batch) < batchSize {
		fetchCtx, cancel := context.WithTimeout(ctx, r.idle)
		msg, err := r.fetcher.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return batch, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				r.logger.Debug("source topic idle", "topic", r.topic)
				return batch, io.EOF
			}
			return batch, fmt.Errorf("fetch message: %w", err)
		}

		raw, err := mapMessageToRawRecord(msg)
		if err != nil {
			return batch, err
		}
		raw.Commit = func(ctx context.Context) error {
			return r.fetcher.CommitMessages(ctx, msg)
		}
		batch = append(batch, raw)
	}
	return batch, nil
}

// Close closes the run's consumer. Uncommitted messages are fetched again by
// the next run.
func (r *run) Close() error {
	r.once.Do(func() {
		r.err = r.fetcher.Close()
		r.owner.mu.Lock()
		if r.owner.current == r {
			r.owner.current = nil
		}
		r.owner.mu.Unlock()
	})
	return r.err
}

// mapMessageToRawRecord decodes a JSON object of column name to value.
// Numbers are kept in their textual form.
func mapMessageToRawRecord(msg kafkago.Message) (domain.RawRecord, error) {
	var values map[string]any
	dec := json.NewDecoder(bytes.NewReader(msg.Value))
	dec.UseNumber()
	if err := dec.Decode(&values); err != nil {
		return domain.RawRecord{}, &domain.MalformedRowError{
			Line:   int(msg.Offset),
			Reason: fmt.Sprintf("invalid JSON in %s/%d", msg.Topic, msg.Partition),
			Err:    err,
		}
	}

	fields := make(map[string]string, len(values))
	for k, v := range values {
		switch v := v.(type) {
		case nil:
			fields[k] = ""
		case string:
			fields[k] = v
		case json.Number:
			fields[k] = v.String()
		default:
			fields[k] = fmt.Sprint(v)
		}
	}

	return domain.RawRecord{
		Line:      int(msg.Offset),
		Fields:    fields,
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
	}, nil
}
