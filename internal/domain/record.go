package domain

import (
	"context"
	"time"
)

// RawRecord is one source row as delivered by an extractor, keyed by column
// name. Transport metadata is set only by sources that have it.
type RawRecord struct {
	Line      int
	Fields    map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}
