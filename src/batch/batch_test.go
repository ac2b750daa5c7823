package batch

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunChunksInOrder(t *testing.T) {
	items := make([]int, 10)
	for i := range items {
		items[i] = i
	}

	var chunks [][]int
	res, err := Run(context.Background(), items, Options{ChunkSize: 4, Concurrency: 2},
		strconv.Itoa,
		func(context.Context, int) error { return nil },
		func(_ context.Context, done []int, failed []Failure[int]) error {
			require.Empty(t, failed)
			chunks = append(chunks, append([]int(nil), done...))
			return nil
		},
	)
	require.NoError(t, err)
	require.Equal(t, 10, res.Processed)
	require.Equal(t, 0, res.Skipped)
	require.Equal(t, 3, res.Chunks)
	require.NotEmpty(t, res.RunID)
	require.Equal(t, [][]int{{0, 1, 2, 3}, {4, 5, 6, 7}, {8, 9}}, chunks)
}

func TestRunRecoversErrorsAndPanics(t *testing.T) {
	var failedKeys, runIDs []string
	res, err := Run(context.Background(), []string{"ok", "bad", "boom", "fine"}, Options{ChunkSize: 10, Concurrency: 4},
		func(s string) string { return s },
		func(_ context.Context, s string) error {
			switch s {
			case "bad":
				return errors.New("rate limited")
			case "boom":
				panic("nil aggregate")
			}
			return nil
		},
		func(_ context.Context, done []string, failed []Failure[string]) error {
			require.Equal(t, []string{"ok", "fine"}, done)
			for _, f := range failed {
				failedKeys = append(failedKeys, f.Key)
				runIDs = append(runIDs, f.RunID)
			}
			require.Empty(t, failed[0].Stack)
			require.Contains(t, failed[1].Err.Error(), "nil aggregate")
			require.NotEmpty(t, failed[1].Stack)
			return nil
		},
	)
	require.NoError(t, err)
	require.Equal(t, 2, res.Processed)
	require.Equal(t, 2, res.Skipped)
	require.Equal(t, []string{"bad", "boom"}, failedKeys)
	require.Equal(t, []string{res.RunID, res.RunID}, runIDs)
}

func TestRunBoundsConcurrency(t *testing.T) {
	var running, peak int32
	items := make([]int, 20)

	_, err := Run(context.Background(), items, Options{ChunkSize: 20, Concurrency: 3}, nil,
		func(context.Context, int) error {
			n := atomic.AddInt32(&running, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			atomic.AddInt32(&running, -1)
			return nil
		}, nil)
	require.NoError(t, err)
	require.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

func TestRunHonoursCancellationBetweenChunks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	seen := 0
	res, err := Run(ctx, []int{1, 2, 3, 4}, Options{ChunkSize: 2, Concurrency: 1}, nil,
		func(wctx context.Context, _ int) error {
			// the first chunk keeps running after cancel
			cancel()
			require.NoError(t, wctx.Err())
			mu.Lock()
			seen++
			mu.Unlock()
			return nil
		},
		func(context.Context, []int, []Failure[int]) error { return nil },
	)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 2, seen)
	require.Equal(t, 1, res.Chunks)
	require.Equal(t, 2, res.Processed)
}

func TestRunStopsOnCommitError(t *testing.T) {
	commits := 0
	res, err := Run(context.Background(), []int{1, 2, 3}, Options{ChunkSize: 1, Concurrency: 1}, nil,
		func(context.Context, int) error { return nil },
		func(context.Context, []int, []Failure[int]) error {
			commits++
			if commits == 2 {
				return errors.New("disk full")
			}
			return nil
		},
	)
	require.ErrorContains(t, err, "commit chunk 2")
	require.Equal(t, 2, commits)
	require.Equal(t, 1, res.Processed)
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.normalized()
	require.Equal(t, DefaultChunkSize, o.ChunkSize)
	require.Equal(t, DefaultConcurrency, o.Concurrency)
}
