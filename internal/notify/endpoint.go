package notify

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/streamwatch/streamwatch/internal/metrics"
	"github.com/streamwatch/streamwatch/pkg/types"
)

type delivery struct {
	payload types.Payload
	isError bool
}

// Endpoint serializes deliveries to one integration instance.
type Endpoint struct {
	alias   string
	inst    types.Integration
	metrics *metrics.Metrics

	mu     sync.Mutex
	cond   *sync.Cond
	queue     []delivery
	closed    bool
	discarded bool
	done      chan struct{}
}

// newEndpoint starts the delivery loop before returning, so nothing
// published afterwards is lost.
func newEndpoint(alias string, inst types.Integration, m *metrics.Metrics) *Endpoint {
	e := &Endpoint{
		alias:   alias,
		inst:    inst,
		metrics: m,
		done:    make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.mu)
	go e.run()
	return e
}

// Alias returns the integration alias served by e.
func (e *Endpoint) Alias() string { return e.alias }

// Pending returns the number of queued deliveries.
func (e *Endpoint) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

func (e *Endpoint) publish(d delivery) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrClosed, e.alias)
	}
	e.queue = append(e.queue, d)
	n := len(e.queue)
	e.mu.Unlock()
	e.cond.Signal()
	e.metrics.SetQueued(e.alias, n)
	return nil
}

// close stops accepting deliveries; queued ones are still delivered.
func (e *Endpoint) close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.cond.Broadcast()
}

// discard stops the delivery loop without delivering what is queued or
// calling OnCompleted.
func (e *Endpoint) discard() {
	e.mu.Lock()
	e.closed = true
	e.discarded = true
	e.queue = nil
	e.mu.Unlock()
	e.cond.Broadcast()
}

func (e *Endpoint) wait(ctx context.Context) error {
	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("endpoint %s: %w", e.alias, ctx.Err())
	}
}

func (e *Endpoint) run() {
	defer close(e.done)
	for {
		e.mu.Lock()
		for len(e.queue) == 0 && !e.closed {
			e.cond.Wait()
		}
		if len(e.queue) == 0 {
			discarded := e.discarded
			e.mu.Unlock()
			if discarded {
				return
			}
			break
		}
		d := e.queue[0]
		e.queue[0] = delivery{}
		e.queue = e.queue[1:]
		n := len(e.queue)
		e.mu.Unlock()

		e.metrics.SetQueued(e.alias, n)
		e.deliver(d)
	}
	e.guard("OnCompleted", func() {
		if c, ok := e.inst.(types.Completer); ok {
			c.OnCompleted()
		}
	})
}

func (e *Endpoint) deliver(d delivery) {
	ok := e.guard("OnNext", func() {
		if d.isError {
			if h, ok := e.inst.(types.ErrorHandler); ok {
				h.OnError(d.payload)
			}
			return
		}
		e.inst.OnNext(d.payload)
	})
	if ok {
		e.metrics.RecordDelivered(e.alias, d.isError)
	}
}

func (e *Endpoint) guard(handler string, fn func()) bool {
	return guard(e.alias, handler, e.metrics, fn)
}

// guard runs fn, recovering and logging a panic. It reports whether fn
// returned normally.
func guard(alias, handler string, m *metrics.Metrics, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			m.RecordPanic(alias)
			slog.Error("notify: integration handler panicked",
				"alias", alias,
				"handler", handler,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn()
	return true
}
