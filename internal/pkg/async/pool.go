// internal/pkg/async/pool.go
package async

import (
	"context"
	"sync"
)

// Task is a named unit of work producing a T.
type Task[T any] struct {
	Name    string
	Execute func(ctx context.Context) (T, error)
}

type Result[T any] struct {
	Name string
	Data T
	Err  error
}

// Pool runs tasks on a fixed number of workers. A Pool may be reused.
type Pool[T any] struct {
	workerCount int
}

func NewPool[T any](workerCount int) *Pool[T] {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Pool[T]{workerCount: workerCount}
}

func (p *Pool[T]) worker(ctx context.Context, tasks <-chan Task[T], results chan<- Result[T], wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case task, ok := <-tasks:
			if !ok {
				return
			}
			data, err := task.Execute(ctx)
			select {
			case results <- Result[T]{Name: task.Name, Data: data, Err: err}:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// Execute runs every task and returns the results by task name. When ctx is
// cancelled it returns the results collected so far.
func (p *Pool[T]) Execute(ctx context.Context, tasks []Task[T]) map[string]Result[T] {
	var wg sync.WaitGroup
	taskCh := make(chan Task[T])
	resultCh := make(chan Result[T])
	results := make(map[string]Result[T], len(tasks))

	for i := 0; i < p.workerCount; i++ {
		wg.Add(1)
		go p.worker(ctx, taskCh, resultCh, &wg)
	}

	go func() {
		defer close(taskCh)
		for _, task := range tasks {
			select {
			case taskCh <- task:
			case <-ctx.Done():
				return
			}
		}
	}()

	defer func() {
		go func() {
			wg.Wait()
			close(resultCh)
		}()
	}()

	for i := 0; i < len(tasks); i++ {
		select {
		case result := <-resultCh:
			results[result.Name] = result
		case <-ctx.Done():
			return results
		}
	}

	return results
}
