package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/case-data-etl/internal/artifact"
	"github.com/couchcryptid/case-data-etl/internal/config"
	kafkago "github.com/segmentio/kafka-go"
)

// EventArtifactsPublished is the event_type header of a publish notice.
const EventArtifactsPublished = "artifacts_published"

// Writer produces publish notices to a Kafka topic.
// It implements pipeline.Notifier.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Notify announces a published run.
func (w *Writer) Notify(ctx context.Context, m *artifact.Manifest) error {
	msg, err := serializeToMessage(m)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return err
	}
	w.logger.Debug("publish notice sent", "run_id", m.RunID, "topic", w.writer.Topic)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// notice is the message body. The date axis is left to the manifest file.
type notice struct {
	RunID        string                  `json:"run_id"`
	ProcessedAt  time.Time               `json:"processed_at"`
	Regions      int                     `json:"regions"`
	NewRegions   int                     `json:"new_regions"`
	RowsIngested int                     `json:"rows_ingested"`
	FirstDate    string                  `json:"first_date,omitempty"`
	LastDate     string                  `json:"last_date,omitempty"`
	Dates        int                     `json:"dates"`
	Artifacts    []artifact.ArtifactInfo `json:"artifacts"`
}

// serializeToMessage marshals a manifest summary into a Kafka message.
func serializeToMessage(m *artifact.Manifest) (kafkago.Message, error) {
	data, err := json.Marshal(notice{
		RunID:        m.RunID,
		ProcessedAt:  m.ProcessedAt,
		Regions:      m.Regions,
		NewRegions:   m.NewRegions,
		RowsIngested: m.RowsIngested,
		FirstDate:    m.FirstDate,
		LastDate:     m.LastDate,
		Dates:        len(m.DateAxis),
		Artifacts:    m.Artifacts,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize publish notice: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(m.RunID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(EventArtifactsPublished)},
			{Key: "processed_at", Value: []byte(m.ProcessedAt.Format(time.RFC3339))},
		},
	}, nil
}
