// Package dispatch runs every registered stream on its own goroutine.
//
// Build turns a registrar.Registry into one Unit per stream. A Unit owns a
// Subject to which the stream's testers are subscribed in registration order,
// so all testers of one stream see each element on the same goroutine, one
// after another. Launch starts the units and returns immediately.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streamwatch/streamwatch/internal/metrics"
	"github.com/streamwatch/streamwatch/internal/registrar"
	"github.com/streamwatch/streamwatch/pkg/stream"
)

// Unit pairs a stream with the Subject fanning it out to its testers.
type Unit struct {
	Name    string
	Stream  stream.Stream
	Subject *stream.Subject
}

// Build returns one Unit per distinct stream in reg, in registration order.
// Unit names are unique; repeated stream names get a numeric suffix.
func Build(reg *registrar.Registry) []*Unit {
	seen := make(map[string]int)
	units := make([]*Unit, 0, reg.Len())
	for _, s := range reg.Streams() {
		subj := stream.NewSubject()
		for _, t := range reg.Testers(s) {
			subj.Subscribe(t)
		}

		name := stream.NameOf(s)
		seen[name]++
		if n := seen[name]; n > 1 {
			name = fmt.Sprintf("%s#%d", name, n)
		}
		units = append(units, &Unit{Name: name, Stream: s, Subject: subj})
	}
	return units
}

// State is the lifecycle state of a launched unit.
type State string

const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Status reports the state of one unit.
type Status struct {
	Name  string `json:"name"`
	State State  `json:"state"`
	Error string `json:"error,omitempty"`
}

// Option configures Launch.
type Option func(*Group)

// WithMetrics tracks the number of active streams in m.
func WithMetrics(m *metrics.Metrics) Option { return func(g *Group) { g.metrics = m } }

// OnDone registers fn to be called when a unit's stream ends. err is nil when
// the stream completed.
func OnDone(fn func(name string, err error)) Option { return func(g *Group) { g.onDone = fn } }

// Group tracks launched units.
type Group struct {
	wg      sync.WaitGroup
	done    chan struct{}
	metrics *metrics.Metrics
	onDone  func(name string, err error)

	mu     sync.RWMutex
	order  []string
	states map[string]Status
}

// Launch starts one goroutine per unit and returns without waiting for any.
// Cancelling ctx stops every stream.
func Launch(ctx context.Context, units []*Unit, opts ...Option) *Group {
	g := &Group{
		done:   make(chan struct{}),
		states: make(map[string]Status, len(units)),
	}
	for _, o := range opts {
		o(g)
	}

	for _, u := range units {
		g.order = append(g.order, u.Name)
		g.states[u.Name] = Status{Name: u.Name, State: StateRunning}
	}

	g.wg.Add(len(units))
	for _, u := range units {
		g.metrics.StreamStarted()
		go g.run(ctx, u)
	}
	go func() {
		g.wg.Wait()
		close(g.done)
	}()

	slog.Info("dispatch: streams launched", "count", len(units))
	return g
}

func (g *Group) run(ctx context.Context, u *Unit) {
	defer g.wg.Done()
	defer g.metrics.StreamEnded()

	err := subscribe(ctx, u)
	if err != nil {
		slog.Error("dispatch: stream ended with error", "stream", u.Name, "err", err)
	} else {
		slog.Info("dispatch: stream completed", "stream", u.Name)
	}

	st := Status{Name: u.Name, State: StateCompleted}
	if err != nil {
		st.State = StateFailed
		st.Error = err.Error()
	}
	g.mu.Lock()
	g.states[u.Name] = st
	g.mu.Unlock()

	if g.onDone != nil {
		g.onDone(u.Name, err)
	}
}

// subscribe feeds u.Stream into u.Subject and returns the stream's terminal
// error, if any. A panicking producer counts as a terminal error.
func subscribe(ctx context.Context, u *Unit) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stream %s panicked: %v", u.Name, r)
		}
	}()
	u.Stream.Subscribe(ctx, stream.ObserverFuncs{
		Next: u.Subject.OnNext,
		Error: func(e error) {
			err = e
			u.Subject.OnError(e)
		},
		Completed: u.Subject.OnCompleted,
	})
	return err
}

// Wait blocks until every unit has ended.
func (g *Group) Wait() { <-g.done }

// Done is closed once every unit has ended.
func (g *Group) Done() <-chan struct{} { return g.done }

// Statuses returns the state of each unit in launch order.
func (g *Group) Statuses() []Status {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Status, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.states[name])
	}
	return out
}
