package async_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitepulse/internal/pkg/async"
)

func TestPoolExecute(t *testing.T) {
	t.Run("runs every task and keys results by name", func(t *testing.T) {
		tasks := []async.Task{
			{Name: "a", Execute: func() (interface{}, error) { return 1, nil }},
			{Name: "b", Execute: func() (interface{}, error) { return "two", nil }},
			{Name: "c", Execute: func() (interface{}, error) { return nil, errors.New("boom") }},
		}

		results := async.NewPool(2).Execute(context.Background(), tasks)
		require.Len(t, results, 3)
		assert.Equal(t, 1, results["a"].Data)
		assert.Equal(t, "two", results["b"].Data)
		assert.EqualError(t, results["c"].Err, "boom")
	})

	t.Run("bounds concurrency to the worker count", func(t *testing.T) {
		var running, peak int32

		tasks := make([]async.Task, 8)
		for i := range tasks {
			tasks[i] = async.Task{
				Name: string(rune('a' + i)),
				Execute: func() (interface{}, error) {
					current := atomic.AddInt32(&running, 1)
					for {
						observed := atomic.LoadInt32(&peak)
						if current <= observed || atomic.CompareAndSwapInt32(&peak, observed, current) {
							break
						}
					}
					time.Sleep(10 * time.Millisecond)
					atomic.AddInt32(&running, -1)
					return nil, nil
				},
			}
		}

		results := async.NewPool(2).Execute(context.Background(), tasks)
		assert.Len(t, results, 8)
		assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
	})

	t.Run("zero worker count still runs", func(t *testing.T) {
		tasks := []async.Task{
			{Name: "only", Execute: func() (interface{}, error) { return 42, nil }},
		}
		results := async.NewPool(0).Execute(context.Background(), tasks)
		require.Len(t, results, 1)
		assert.Equal(t, 42, results["only"].Data)
	})

	t.Run("cancelled context returns partial results", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		tasks := []async.Task{
			{Name: "skipped", Execute: func() (interface{}, error) { return nil, nil }},
		}
		results := async.NewPool(1).Execute(ctx, tasks)
		assert.Empty(t, results)
	})
}
