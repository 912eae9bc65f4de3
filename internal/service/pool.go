package service

import (
	"context"
	"fmt"
	"time"
)

// taskError records which work item of a batch failed.
type taskError struct {
	index int
	err   error
}

func (e taskError) Error() string { return fmt.Sprintf("item %d: %v", e.index, e.err) }

func (e taskError) Unwrap() error { return e.err }

// runTasks executes run for every index in [0, count) on a bounded pool of
// width workers, each invocation capped at timeout. One failing task never
// aborts its siblings: errors are collected and reported together at the end
// of the batch. onDone fires as tasks complete, in completion order, for
// progress reporting.
func runTasks(ctx context.Context, count, width int, timeout time.Duration, run func(ctx context.Context, index int) error, onDone func(done int, err error)) []error {
	if width <= 0 {
		width = 1
	}

	jobs := make(chan int)
	results := make(chan taskError)

	for w := 0; w < width; w++ {
		go func() {
			for index := range jobs {
				taskCtx := ctx
				cancel := context.CancelFunc(func() {})
				if timeout > 0 {
					taskCtx, cancel = context.WithTimeout(ctx, timeout)
				}
				err := run(taskCtx, index)
				cancel()
				results <- taskError{index: index, err: err}
			}
		}()
	}

	go func() {
		for index := 0; index < count; index++ {
			jobs <- index
		}
		close(jobs)
	}()

	var errs []error
	for done := 1; done <= count; done++ {
		result := <-results
		if result.err != nil {
			errs = append(errs, taskError{index: result.index, err: result.err})
		}
		if onDone != nil {
			onDone(done, result.err)
		}
	}
	return errs
}
