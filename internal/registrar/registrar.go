package registrar

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/streamwatch/streamwatch/internal/metrics"
	"github.com/streamwatch/streamwatch/pkg/check"
	"github.com/streamwatch/streamwatch/pkg/stream"
)

var (
	ErrDuplicateTest = errors.New("duplicate test name")
	ErrInvalidTest   = errors.New("invalid test")
	ErrSetupFailed   = errors.New("test setup failed")
	ErrInvalidStream = errors.New("invalid stream handle")
)

// Hub is the part of the notification hub the registrar drives.
type Hub interface {
	Notifier
	Bind(test string, aliases ...string) error
}

// Option configures a Registrar.
type Option func(*Registrar)

// WithMetrics attaches m to every Tester created.
func WithMetrics(m *metrics.Metrics) Option { return func(r *Registrar) { r.metrics = m } }

// WithClock overrides the payload timestamp source.
func WithClock(now func() time.Time) Option { return func(r *Registrar) { r.now = now } }

// Registrar registers tests against a single Registry.
type Registrar struct {
	hub      Hub
	metrics  *metrics.Metrics
	now      func() time.Time
	registry *Registry

	// bindErr is the first stream rejected by Expect during the current setup.
	bindErr error
}

// New returns a Registrar that binds and notifies through hub.
func New(hub Hub, opts ...Option) *Registrar {
	r := &Registrar{
		hub:      hub,
		now:      time.Now,
		registry: newRegistry(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register binds and sets up each test in order, returning the populated
// Registry. The first failing test aborts registration.
func (r *Registrar) Register(tests ...*check.Test) (*Registry, error) {
	for _, t := range tests {
		if err := r.register(t); err != nil {
			return nil, err
		}
	}
	slog.Info("registrar: tests registered",
		"tests", len(r.registry.tests),
		"streams", len(r.registry.order),
	)
	return r.registry, nil
}

func (r *Registrar) register(t *check.Test) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("%w: test has no name", ErrInvalidTest)
	}
	if t.Setup == nil {
		return fmt.Errorf("%w: %s has no setup function", ErrInvalidTest, t.Name)
	}
	if _, ok := r.registry.index[t.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTest, t.Name)
	}
	if err := r.hub.Bind(t.Name, t.Notify...); err != nil {
		return err
	}
	r.registry.addTest(t)

	r.bindErr = nil
	if err := runSetup(t, &scope{name: t.Name, r: r}); err != nil {
		return err
	}
	if r.bindErr != nil {
		return r.bindErr
	}
	slog.Debug("registrar: test set up", "test", t.Name, "notify", t.Notify)
	return nil
}

func runSetup(t *check.Test, s check.Scope) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %s: panic: %v", ErrSetupFailed, t.Name, p)
		}
	}()
	t.Setup(s)
	return nil
}

// Expect returns a Binder attributing assertions on s to test. Every call
// appends to the testers already bound to s.
//
// Streams are told apart by handle, so s must be a non-nil pointer. Any other
// stream is rejected: the returned Binder does nothing and Register fails
// with ErrInvalidStream.
func (r *Registrar) Expect(test string, s stream.Stream) check.Binder {
	if err := checkStream(s); err != nil {
		if r.bindErr == nil {
			r.bindErr = fmt.Errorf("%w: test %s: %v", ErrInvalidStream, test, err)
		}
		slog.Error("registrar: stream rejected", "test", test, "err", err)
		return func(...check.Assertion) {}
	}
	return func(assertions ...check.Assertion) {
		for _, a := range assertions {
			r.registry.addTester(s, &Tester{
				test:      test,
				assertion: a,
				notifier:  r.hub,
				metrics:   r.metrics,
				now:       r.now,
			})
		}
	}
}

func checkStream(s stream.Stream) error {
	if s == nil {
		return errors.New("nil stream")
	}
	v := reflect.ValueOf(s)
	if v.Kind() != reflect.Pointer {
		return fmt.Errorf("got %T", s)
	}
	if v.IsNil() {
		return fmt.Errorf("nil %T", s)
	}
	return nil
}

// scope is the check.Scope handed to a setup function.
type scope struct {
	name string
	r    *Registrar
}

func (s *scope) Name() string { return s.name }

func (s *scope) Expect(st stream.Stream) check.Binder { return s.r.Expect(s.name, st) }
