package pipelines

import (
	"context"
	"sync"
)

// Dispatcher Runs stage work outside the run lock
type Dispatcher interface {
	Dispatch(ctx context.Context, work func(ctx context.Context))
}

// GoroutineDispatcher Runs each dispatched stage in its own goroutine, detached from the caller's cancellation
type GoroutineDispatcher struct {
	wg sync.WaitGroup
}

func NewGoroutineDispatcher() *GoroutineDispatcher {
	return &GoroutineDispatcher{}
}

func (d *GoroutineDispatcher) Dispatch(ctx context.Context, work func(ctx context.Context)) {
	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		work(ctx)
	}()
}

// Wait Blocks until every dispatched stage has returned
func (d *GoroutineDispatcher) Wait() {
	d.wg.Wait()
}

// SyncDispatcher Runs stage work on the calling goroutine
type SyncDispatcher struct{}

func (SyncDispatcher) Dispatch(ctx context.Context, work func(ctx context.Context)) {
	work(ctx)
}
