package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// defaultSubmitTimeout bounds how long a cross-goroutine Submit waits for
// its closure to run on the loop, per spec.md §4.5/§5: "all bridge
// operations initiated from other threads suspend the caller for up to
// 10 s."
const defaultSubmitTimeout = 10 * time.Second

// loop is the Go analogue of the Python bridge's dedicated asyncio event
// loop thread plus run_coroutine_threadsafe(...).result(10): a single
// goroutine that serializes the bridge's presence-track and broadcast
// transport calls, reached from other goroutines only through submit.
// The bridge's own fields are guarded by its mutex, not by this loop.
type loop struct {
	tasks   chan func()
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

func newLoop() *loop {
	return &loop{tasks: make(chan func(), 64)}
}

// start launches the loop goroutine. Safe to call once; a second call
// before stop is a no-op.
func (l *loop) start() {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.tasks = make(chan func(), 64)
	l.mu.Unlock()

	l.wg.Add(1)
	go l.run()
}

func (l *loop) run() {
	defer l.wg.Done()
	for task := range l.tasks {
		l.runSafely(task)
	}
}

func (l *loop) runSafely(task func()) {
	defer func() {
		recover() // a panicked task must not take down the loop goroutine
	}()
	task()
}

// stop closes the task channel and waits for the loop goroutine to drain
// and exit.
func (l *loop) stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	close(l.tasks)
	l.mu.Unlock()
	l.wg.Wait()
}

// isRunning reports whether the loop goroutine is currently accepting work.
func (l *loop) isRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// submit marshals fn onto the loop goroutine and blocks for up to
// defaultSubmitTimeout for it to run, returning its error (if any). If the
// loop isn't running, fn runs synchronously in the caller's goroutine —
// the same fallback the Python original takes when no dedicated loop
// exists yet.
func (l *loop) submit(ctx context.Context, fn func() error) error {
	l.mu.Lock()
	running := l.running
	tasks := l.tasks
	l.mu.Unlock()

	if !running {
		return fn()
	}

	result := make(chan error, 1)
	select {
	case tasks <- func() { result <- fn() }:
	default:
		return fmt.Errorf("realtime loop task queue full")
	}

	timeout := defaultSubmitTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}
	select {
	case err := <-result:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("realtime loop task timed out after %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
