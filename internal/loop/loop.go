// Package loop provides the serial executor each engine runs its state
// machine on. Transport callbacks and public engine calls post closures;
// one goroutine runs them in order.
package loop

import (
	"context"
	"sync"
)

// Loop is an unbounded FIFO of operations run on a single goroutine.
type Loop struct {
	mu     sync.Mutex
	ops    []func()
	wake   chan struct{}
	closed bool
}

// New creates an idle Loop. Operations posted before Run are kept.
func New() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Post queues op. It never blocks and is safe from any goroutine,
// including from inside a running op. Posts after Run returns are dropped.
func (l *Loop) Post(op func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.ops = append(l.ops, op)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run executes posted operations until ctx is done. Operations still
// queued when ctx ends are discarded.
func (l *Loop) Run(ctx context.Context) error {
	defer func() {
		l.mu.Lock()
		l.closed = true
		l.ops = nil
		l.mu.Unlock()
	}()

	for {
		for {
			op, ok := l.next()
			if !ok {
				break
			}
			op()
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.ops) == 0 {
		return nil, false
	}
	op := l.ops[0]
	l.ops[0] = nil
	l.ops = l.ops[1:]
	return op, true
}

// Do posts op and waits for it to run, or for ctx to end.
// It must not be called from inside a running op.
func (l *Loop) Do(ctx context.Context, op func()) error {
	done := make(chan struct{})
	l.Post(func() {
		op()
		close(done)
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
