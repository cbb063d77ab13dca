package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/streamwatch/streamwatch/internal/integration"
	"github.com/streamwatch/streamwatch/internal/metrics"
	"github.com/streamwatch/streamwatch/pkg/types"
)

var (
	ErrUndeclaredAlias = errors.New("integration alias is used but not declared")
	ErrUnboundTest     = errors.New("test has no notification bindings")
	ErrClosed          = errors.New("notification hub is closed")
)

// Recorder observes every payload accepted by the hub.
type Recorder interface {
	Record(test string, p types.Payload, aliases []string)
}

// Option configures a Hub.
type Option func(*Hub)

// WithRecorder attaches r to the hub.
func WithRecorder(r Recorder) Option { return func(h *Hub) { h.recorder = r } }

// WithMetrics attaches m to the hub and its endpoints.
func WithMetrics(m *metrics.Metrics) Option { return func(h *Hub) { h.metrics = m } }

// Hub binds tests to integration endpoints and fans payloads out to them.
type Hub struct {
	instances integration.Instances
	recorder  Recorder
	metrics   *metrics.Metrics

	mu        sync.RWMutex
	endpoints map[string]*Endpoint
	bindings  map[string][]*Endpoint
	closed    bool
}

// New returns a Hub serving the given integration instances.
func New(instances integration.Instances, opts ...Option) *Hub {
	h := &Hub{
		instances: instances,
		endpoints: make(map[string]*Endpoint),
		bindings:  make(map[string][]*Endpoint),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Bind routes the notifications of test to aliases, in order. Every alias is
// validated before any endpoint is created. Binding a test again replaces its
// previous list.
func (h *Hub) Bind(test string, aliases ...string) error {
	for _, a := range aliases {
		if _, ok := h.instances[a]; !ok {
			return fmt.Errorf("test %s: %w: %s", test, ErrUndeclaredAlias, a)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	eps := make([]*Endpoint, 0, len(aliases))
	for _, a := range aliases {
		eps = append(eps, h.endpointLocked(a))
	}
	h.bindings[test] = eps
	slog.Debug("notify: test bound", "test", test, "aliases", aliases)
	return nil
}

func (h *Hub) endpointLocked(alias string) *Endpoint {
	if e, ok := h.endpoints[alias]; ok {
		return e
	}
	e := newEndpoint(alias, h.instances[alias], h.metrics)
	h.endpoints[alias] = e
	return e
}

// Notify enqueues p on every endpoint bound to test. isError selects OnError
// over OnNext on integrations that implement it.
func (h *Hub) Notify(test string, p types.Payload, isError bool) error {
	h.mu.RLock()
	eps, ok := h.bindings[test]
	closed := h.closed
	h.mu.RUnlock()

	if closed {
		return ErrClosed
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnboundTest, test)
	}

	aliases := make([]string, 0, len(eps))
	var errs []error
	for _, e := range eps {
		if err := e.publish(delivery{payload: p, isError: isError}); err != nil {
			errs = append(errs, err)
			continue
		}
		aliases = append(aliases, e.alias)
	}
	if h.recorder != nil {
		h.recorder.Record(test, p, aliases)
	}
	return errors.Join(errs...)
}

// Endpoint returns the endpoint created for alias, if any.
func (h *Hub) Endpoint(alias string) (*Endpoint, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.endpoints[alias]
	return e, ok
}

// Bindings returns the aliases bound to each test.
func (h *Hub) Bindings() map[string][]string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string][]string, len(h.bindings))
	for test, eps := range h.bindings {
		aliases := make([]string, len(eps))
		for i, e := range eps {
			aliases[i] = e.alias
		}
		out[test] = aliases
	}
	return out
}

// Discard shuts the hub down without delivering anything: queued payloads
// are dropped and no integration is completed. It is meant for a startup
// that failed before any stream ran, and returns once every delivery loop
// has exited. Close and Discard after either are no-ops.
func (h *Hub) Discard() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	eps := make([]*Endpoint, 0, len(h.endpoints))
	for _, e := range h.endpoints {
		eps = append(eps, e)
	}
	h.mu.Unlock()

	for _, e := range eps {
		e.discard()
	}
	for _, e := range eps {
		<-e.done
	}
	slog.Debug("notify: hub discarded", "endpoints", len(eps))
}

// Close stops accepting payloads, waits for every queue to drain and calls
// OnCompleted once per integration instance. It returns ctx's error if the
// queues do not drain in time.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	eps := make([]*Endpoint, 0, len(h.endpoints))
	for _, e := range h.endpoints {
		eps = append(eps, e)
	}
	h.mu.Unlock()

	sort.Slice(eps, func(i, j int) bool { return eps[i].alias < eps[j].alias })
	for _, e := range eps {
		e.close()
	}

	// Instances nobody bound to still learn that the engine is done.
	for _, alias := range h.instances.Aliases() {
		if _, ok := h.endpoints[alias]; ok {
			continue
		}
		if c, ok := h.instances[alias].(types.Completer); ok {
			guard(alias, "OnCompleted", h.metrics, c.OnCompleted)
		}
	}

	var errs []error
	for _, e := range eps {
		if err := e.wait(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	slog.Info("notify: hub closed", "endpoints", len(eps))
	return nil
}
