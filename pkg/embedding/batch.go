package embedding

import (
	"context"
	"fmt"

	"github.com/developer-mesh/semantic-graph-search/pkg/coreerrors"
)

// embedJob is one unit of work submitted to the single executor: compute
// embeddings for texts and send the result (or error) back on done.
type embedJob struct {
	ctx   context.Context
	texts []string
	done  chan embedJobResult
}

type embedJobResult struct {
	vecs [][]float32
	err  error
}

// executor serializes all Provider calls through one goroutine, as
// required by spec.md §4.1 ("the model may be non-reentrant; all
// computation is serialized through a single executor with a bounded
// queue"). Grounded on apps/rag-loader/internal/indexer
// batch_processor.go worker-pool shape, narrowed to a single worker
// because the model itself demands serialization.
type executor struct {
	provider    Provider
	queue       chan embedJob
	highWater   int
	stopCh      chan struct{}
}

// newExecutor starts the background goroutine. queueCapacity bounds the
// channel; highWatermark is the depth past which submit returns
// Overloaded without blocking.
func newExecutor(provider Provider, queueCapacity, highWatermark int) *executor {
	e := &executor{
		provider:  provider,
		queue:     make(chan embedJob, queueCapacity),
		highWater: highWatermark,
		stopCh:    make(chan struct{}),
	}
	go e.run()
	return e
}

func (e *executor) run() {
	for {
		select {
		case job, ok := <-e.queue:
			if !ok {
				return
			}
			vecs, err := e.provider.Embed(job.ctx, job.texts)
			job.done <- embedJobResult{vecs: vecs, err: err}
		case <-e.stopCh:
			return
		}
	}
}

func (e *executor) Close() {
	close(e.stopCh)
}

// submit enqueues a batch for computation. It returns Overloaded
// immediately (without blocking) when the queue is already at or past the
// configured high watermark, per spec.md's backpressure rule.
func (e *executor) submit(ctx context.Context, texts []string) ([][]float32, error) {
	if len(e.queue) >= e.highWater {
		return nil, coreerrors.OverloadedWithRetry("embedding.submit", 200)
	}

	done := make(chan embedJobResult, 1)
	job := embedJob{ctx: ctx, texts: texts, done: done}

	select {
	case e.queue <- job:
	case <-ctx.Done():
		return nil, fmt.Errorf("embedding: submit: %w", ctx.Err())
	}

	select {
	case res := <-done:
		if res.err != nil {
			return nil, coreerrors.New(coreerrors.KindEmbeddingFailed, "embedding.submit", res.err)
		}
		return res.vecs, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("embedding: submit: %w", ctx.Err())
	}
}
