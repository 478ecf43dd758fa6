package ingest

import (
	"context"
	"fmt"
	"time"

	"example.com/webshopsessions/internal/domain"
	"example.com/webshopsessions/internal/logging"
	"example.com/webshopsessions/internal/telemetry"
)

// DefaultBatchSize is used when the loader is given a non-positive size.
const DefaultBatchSize = 5000

// Writer persists sessionized events.
type Writer interface {
	WriteBatch(ctx context.Context, events []domain.NormalizedEvent) (int64, error)
	Truncate(ctx context.Context) error
}

// Report summarizes one Load.
type Report struct {
	Rows    int64         `json:"rows"`
	Batches int           `json:"batches"`
	Elapsed time.Duration `json:"elapsed"`
}

type Loader struct {
	writer    Writer
	batchSize int
	replace   bool
	log       *logging.Logger
}

type LoaderOption func(*Loader)

// WithReplace empties the table before the first batch.
func WithReplace(replace bool) LoaderOption {
	return func(l *Loader) { l.replace = replace }
}

func WithLogger(log *logging.Logger) LoaderOption {
	return func(l *Loader) { l.log = log }
}

func NewLoader(writer Writer, batchSize int, opts ...LoaderOption) *Loader {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	l := &Loader{
		writer:    writer,
		batchSize: batchSize,
		log:       logging.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = l.log.With(logging.Component("ingest"))
	return l
}

// Load writes events in batches and stops at the first failing batch.
// Rows already written by earlier batches stay written.
func (l *Loader) Load(ctx context.Context, events []domain.NormalizedEvent) (Report, error) {
	start := time.Now()
	var rep Report

	if l.replace {
		if err := l.writer.Truncate(ctx); err != nil {
			return rep, fmt.Errorf("ingest: truncate: %w", err)
		}
		l.log.InfoContext(ctx, "table truncated before load")
	}

	for i := 0; i < len(events); i += l.batchSize {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		batch := events[i:min(i+l.batchSize, len(events))]

		affected, err := l.writer.WriteBatch(ctx, batch)
		if err != nil {
			telemetry.IngestBatchesTotal.WithLabelValues("failed").Inc()
			l.log.ErrorContext(ctx, "batch insert failed",
				"batch", rep.Batches, "size", len(batch), logging.Error(err))
			rep.Elapsed = time.Since(start)
			return rep, fmt.Errorf("ingest: batch %d: %w", rep.Batches, err)
		}
		telemetry.IngestBatchesTotal.WithLabelValues("ok").Inc()
		telemetry.IngestRowsTotal.Add(float64(affected))
		l.log.DebugContext(ctx, "batch insert ok",
			"batch", rep.Batches, "inserted", affected, "size", len(batch))

		rep.Rows += affected
		rep.Batches++
	}

	rep.Elapsed = time.Since(start)
	l.log.InfoContext(ctx, "load complete",
		"rows", rep.Rows, "batches", rep.Batches, logging.Duration(rep.Elapsed.Milliseconds()))
	return rep, nil
}
