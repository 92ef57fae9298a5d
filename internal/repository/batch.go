package repository

import (
	"context"

	"geoipsql/internal/model"
)

// DefaultBatchSize bounds the number of ranges committed per transaction.
const DefaultBatchSize = 120

// FlushFunc persists one batch atomically. The slice is reused after it returns.
type FlushFunc func(ctx context.Context, batch []model.RangeRecord) error

// BatchWriter accumulates ranges and hands them to a FlushFunc in fixed-size
// batches. There is no atomicity across batches.
type BatchWriter struct {
	size    int
	pending []model.RangeRecord
	flush   FlushFunc
	batches int
}

func NewBatchWriter(size int, flush FlushFunc) *BatchWriter {
	if size <= 0 {
		size = DefaultBatchSize
	}

	return &BatchWriter{
		size:    size,
		pending: make([]model.RangeRecord, 0, size),
		flush:   flush,
	}
}

// Append adds a range and flushes once the batch is full.
func (w *BatchWriter) Append(ctx context.Context, r model.RangeRecord) error {
	w.pending = append(w.pending, r)
	if len(w.pending) < w.size {
		return nil
	}

	return w.Flush(ctx)
}

// Flush writes whatever is pending. It is a no-op on an empty batch.
func (w *BatchWriter) Flush(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}

	if err := w.flush(ctx, w.pending); err != nil {
		return err
	}

	w.batches++
	w.pending = w.pending[:0]

	return nil
}

// Pending is the number of ranges not yet flushed.
func (w *BatchWriter) Pending() int {
	return len(w.pending)
}

// Batches is the number of successful flushes.
func (w *BatchWriter) Batches() int {
	return w.batches
}
