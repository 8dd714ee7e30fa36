package telemetrystore

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// BatchInserterConfig holds configuration for the BatchInserter.
type BatchInserterConfig struct {
	BatchSize     int
	FlushInterval time.Duration // How often to flush a partial batch.
	InsertTimeout time.Duration // The timeout for a single flush operation.
}

// NewBatchInserterDefaults provides a config with sensible defaults.
func NewBatchInserterDefaults() *BatchInserterConfig {
	return &BatchInserterConfig{
		BatchSize:     100,
		FlushInterval: 10 * time.Second,
		InsertTimeout: 30 * time.Second,
	}
}

// BatchInserter collects items of type T and flushes them to a
// DataBatchInserter when the batch fills or the flush interval elapses.
type BatchInserter[T any] struct {
	config    *BatchInserterConfig
	inserter  DataBatchInserter[T]
	logger    zerolog.Logger
	inputChan chan *T
	wg        sync.WaitGroup
}

// NewBatchInserter creates a generic BatchInserter.
func NewBatchInserter[T any](
	config *BatchInserterConfig,
	inserter DataBatchInserter[T],
	logger zerolog.Logger,
) *BatchInserter[T] {
	return &BatchInserter[T]{
		config:    config,
		inserter:  inserter,
		logger:    logger.With().Str("component", "BatchInserter").Logger(),
		inputChan: make(chan *T, config.BatchSize*2),
	}
}

// Start begins the batching worker. The passed context controls its lifecycle.
func (b *BatchInserter[T]) Start(ctx context.Context) {
	b.logger.Info().
		Int("batch_size", b.config.BatchSize).
		Dur("flush_interval", b.config.FlushInterval).
		Msg("Starting BatchInserter worker...")
	b.wg.Add(1)
	go b.worker(ctx)
}

// Stop drains the input channel, flushes the final batch, and closes the
// underlying inserter. The context bounds how long the drain may take.
func (b *BatchInserter[T]) Stop(ctx context.Context) error {
	b.logger.Info().Msg("Stopping BatchInserter...")
	close(b.inputChan)

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info().Msg("BatchInserter worker stopped gracefully.")
	case <-ctx.Done():
		b.logger.Error().Err(ctx.Err()).Msg("Timeout waiting for BatchInserter worker to stop.")
		return ctx.Err()
	}

	if err := b.inserter.Close(); err != nil {
		b.logger.Error().Err(err).Msg("Error closing underlying data inserter")
	}
	b.logger.Info().Msg("BatchInserter stopped.")
	return nil
}

// Input returns the channel to which items should be sent.
func (b *BatchInserter[T]) Input() chan<- *T {
	return b.inputChan
}

func (b *BatchInserter[T]) worker(ctx context.Context) {
	defer b.wg.Done()
	batch := make([]*T, 0, b.config.BatchSize)
	ticker := time.NewTicker(b.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Shutting down; the final flush gets a fresh context.
			b.flush(context.Background(), batch)
			return

		case item, ok := <-b.inputChan:
			if !ok {
				b.flush(ctx, batch)
				return
			}
			batch = append(batch, item)
			if len(batch) >= b.config.BatchSize {
				b.flush(ctx, batch)
				batch = make([]*T, 0, b.config.BatchSize)
				// Reset so the next tick does not immediately re-flush.
				ticker.Reset(b.config.FlushInterval)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				b.flush(ctx, batch)
				batch = make([]*T, 0, b.config.BatchSize)
			}
		}
	}
}

func (b *BatchInserter[T]) flush(ctx context.Context, batch []*T) {
	if len(batch) == 0 {
		return
	}

	insertCtx, cancel := context.WithTimeout(ctx, b.config.InsertTimeout)
	defer cancel()

	if err := b.inserter.InsertBatch(insertCtx, batch); err != nil {
		b.logger.Error().Err(err).Int("batch_size", len(batch)).Msg("Failed to insert batch.")
		return
	}
	b.logger.Info().Int("batch_size", len(batch)).Msg("Successfully flushed batch.")
}
