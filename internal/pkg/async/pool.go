package async

import (
	"context"
	"sync"
)

// Task is a named unit of work whose result is keyed by Name.
type Task struct {
	Name    string
	Execute func() (interface{}, error)
}

// Result carries a task's outcome.
type Result struct {
	Name string
	Data interface{}
	Err  error
}

// Pool runs independent tasks concurrently with a bounded number of workers.
// Stats handlers use it to fan out the per-widget dashboard queries.
type Pool struct {
	workerCount int
}

func NewPool(workerCount int) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Pool{workerCount: workerCount}
}

// Execute runs all tasks and returns their results keyed by task name.
// Returns early with partial results when the context is cancelled.
func (p *Pool) Execute(ctx context.Context, tasks []Task) map[string]Result {
	workers := p.workerCount
	if workers > len(tasks) {
		workers = len(tasks)
	}

	queue := make(chan Task, len(tasks))
	for _, task := range tasks {
		queue <- task
	}
	close(queue)

	out := make(chan Result, len(tasks))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range queue {
				if ctx.Err() != nil {
					return
				}
				data, err := task.Execute()
				out <- Result{Name: task.Name, Data: data, Err: err}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	results := make(map[string]Result, len(tasks))
	for {
		select {
		case result, ok := <-out:
			if !ok {
				return results
			}
			results[result.Name] = result
		case <-ctx.Done():
			return results
		}
	}
}
