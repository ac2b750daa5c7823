package batch

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultChunkSize   = 100
	DefaultConcurrency = 4
)

type Options struct {
	ChunkSize   int
	Concurrency int
}

func (o Options) normalized() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	return o
}

// Failure is an item whose worker returned an error or panicked.
type Failure[T any] struct {
	RunID string
	Item  T
	Key   string
	Err   error
	Stack string
}

type Result struct {
	RunID     string
	Processed int
	Skipped   int
	Chunks    int
}

// Worker mutates the in-memory aggregate of one item. It must not write to
// the store.
type Worker[T any] func(ctx context.Context, item T) error

// Commit flushes a finished chunk. done holds the items whose worker
// succeeded, in input order.
type Commit[T any] func(ctx context.Context, done []T, failed []Failure[T]) error

// Run splits items into ordered chunks, runs work on a bounded pool for each
// chunk, then calls commit once per chunk. Cancellation of ctx is observed
// between chunks only; a running chunk always reaches its commit. A commit
// error stops the run.
func Run[T any](
	ctx context.Context,
	items []T,
	opts Options,
	key func(T) string,
	work Worker[T],
	commit Commit[T],
) (Result, error) {
	opts = opts.normalized()
	res := Result{RunID: uuid.NewString()}

	log := logger.WithFields(map[string]interface{}{
		"run_id":      res.RunID,
		"items":       len(items),
		"chunk_size":  opts.ChunkSize,
		"concurrency": opts.Concurrency,
	})
	log.Info("Batch run started")
	started := time.Now()

	workCtx := context.WithoutCancel(ctx)

	for start := 0; start < len(items); start += opts.ChunkSize {
		if err := ctx.Err(); err != nil {
			log.WithError(err).Warn("Batch run cancelled between chunks")
			return res, err
		}

		end := min(start+opts.ChunkSize, len(items))
		chunk := items[start:end]
		res.Chunks++

		done, failed := runChunk(workCtx, chunk, opts.Concurrency, key, work)
		for i, f := range failed {
			failed[i].RunID = res.RunID
			log.WithFields(map[string]interface{}{
				"item":  f.Key,
				"chunk": res.Chunks,
			}).WithError(f.Err).Error("Batch item skipped")
		}

		if commit != nil {
			if err := commit(workCtx, done, failed); err != nil {
				log.WithError(err).WithField("chunk", res.Chunks).Error("Batch commit failed")
				return res, fmt.Errorf("commit chunk %d: %w", res.Chunks, err)
			}
		}

		res.Processed += len(done)
		res.Skipped += len(failed)
		log.WithFields(map[string]interface{}{
			"chunk":     res.Chunks,
			"processed": res.Processed,
			"skipped":   res.Skipped,
		}).Debug("Batch chunk committed")
	}

	log.WithFields(map[string]interface{}{
		"processed": res.Processed,
		"skipped":   res.Skipped,
		"chunks":    res.Chunks,
		"elapsed":   time.Since(started).String(),
	}).Info("Batch run finished")
	return res, nil
}

func runChunk[T any](ctx context.Context, chunk []T, concurrency int, key func(T) string, work Worker[T]) ([]T, []Failure[T]) {
	errs := make([]error, len(chunk))
	stacks := make([]string, len(chunk))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i := range chunk {
		g.Go(func() error {
			stacks[i], errs[i] = call(ctx, work, chunk[i])
			return nil
		})
	}
	_ = g.Wait()

	done := make([]T, 0, len(chunk))
	var failed []Failure[T]
	for i, item := range chunk {
		if errs[i] == nil {
			done = append(done, item)
			continue
		}
		k := ""
		if key != nil {
			k = key(item)
		}
		failed = append(failed, Failure[T]{Item: item, Key: k, Err: errs[i], Stack: stacks[i]})
	}
	return done, failed
}

func call[T any](ctx context.Context, work Worker[T], item T) (stack string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			stack = string(debug.Stack())
		}
	}()
	return "", work(ctx, item)
}
