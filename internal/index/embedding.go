package index

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mayank-meragi/notevault/internal/embed"
	verrors "github.com/mayank-meragi/notevault/internal/errors"
	"github.com/mayank-meragi/notevault/internal/store"
)

// embedAndInsert runs the embedding phase over unembedded records,
// inserting each completed batch immediately so a failed run keeps its
// finished work. It returns the number of chunks persisted; onBatch, when
// set, is called with each batch's chunk count as it lands.
func (m *Manager) embedAndInsert(ctx context.Context, records []store.ChunkRecord, batchSize, concurrency int, onBatch func(done int)) (int, error) {
	switch embed.StrategyFor(m.embedder) {
	case embed.StrategyBatch:
		return m.embedBatched(ctx, records, batchSize, onBatch)
	default:
		return m.embedSequential(ctx, records, batchSize, concurrency, onBatch)
	}
}

// embedBatched partitions records into fixed-size batches and issues one
// retried batch call per partition.
func (m *Manager) embedBatched(ctx context.Context, records []store.ChunkRecord, batchSize int, onBatch func(int)) (int, error) {
	be := m.embedder.(embed.BatchEmbedder)
	completed := 0

	for start := 0; start < len(records); start += batchSize {
		end := min(start+batchSize, len(records))
		batch := records[start:end]

		texts := make([]string, len(batch))
		for i, rec := range batch {
			texts[i] = rec.Content
		}

		vectors, err := verrors.RetryWithResult(ctx, m.retry, func() ([][]float32, error) {
			return be.EmbedBatch(ctx, texts)
		})
		if err != nil {
			return completed, err
		}
		if len(vectors) != len(batch) {
			return completed, verrors.New(verrors.ErrCodeEmbeddingFailed,
				"provider returned wrong number of embeddings", nil)
		}

		// Merge positionally and persist before moving to the next
		// batch; nothing buffers across batches.
		for i := range batch {
			batch[i].Embedding = vectors[i]
		}
		if err := m.repo.Insert(ctx, batch); err != nil {
			return completed, err
		}
		completed += len(batch)
		if onBatch != nil {
			onBatch(len(batch))
		}

		batchNo := start/batchSize + 1
		if batchNo%yieldEvery == 0 {
			if err := yieldBriefly(ctx); err != nil {
				return completed, err
			}
		}
	}
	return completed, nil
}

// embedSequential drives a single-call embedder over sub-batches with a
// bounded number of in-flight calls. The first chunk to exhaust its
// retries cancels its siblings; whatever the sub-batch finished embedding
// is inserted before the error surfaces.
func (m *Manager) embedSequential(ctx context.Context, records []store.ChunkRecord, batchSize, concurrency int, onBatch func(int)) (int, error) {
	completed := 0

	for start := 0; start < len(records); start += batchSize {
		end := min(start+batchSize, len(records))
		sub := records[start:end]
		vectors := make([][]float32, len(sub))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)
		for i := range sub {
			g.Go(func() error {
				v, err := verrors.RetryWithResult(gctx, m.retry, func() ([]float32, error) {
					return m.embedder.Embed(gctx, sub[i].Content)
				})
				if err != nil {
					return err
				}
				vectors[i] = v
				return nil
			})
		}
		runErr := g.Wait()

		// Partial-batch persistence: embedded members land even when a
		// sibling failed.
		var done []store.ChunkRecord
		for i, v := range vectors {
			if v != nil {
				rec := sub[i]
				rec.Embedding = v
				done = append(done, rec)
			}
		}
		if len(done) > 0 {
			if err := m.repo.Insert(ctx, done); err != nil {
				return completed, err
			}
			completed += len(done)
		}
		if onBatch != nil {
			onBatch(len(done))
		}
		if runErr != nil {
			return completed, runErr
		}

		batchNo := start/batchSize + 1
		if batchNo%yieldEvery == 0 {
			if err := yieldBriefly(ctx); err != nil {
				return completed, err
			}
		}
	}
	return completed, nil
}

// yieldBriefly pauses between batches on long runs. Purely advisory; it
// keeps the process responsive, and correctness never depends on it.
func yieldBriefly(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Millisecond):
		return nil
	}
}
