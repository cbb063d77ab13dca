package stream

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Observer receives the elements of a stream followed by at most one terminal
// notification (OnError or OnCompleted).
type Observer interface {
	OnNext(element any)
	OnError(err error)
	OnCompleted()
}

// Stream is a push-based, potentially infinite source of elements.
// Subscribe blocks while elements are delivered to obs and returns after the
// terminal notification has been sent.
type Stream interface {
	Subscribe(ctx context.Context, obs Observer)
}

// Named is implemented by streams that carry a human-readable name used in
// logs and health reporting.
type Named interface {
	Name() string
}

// NameOf returns the name of s, or a pointer-based identifier when s is not Named.
func NameOf(s Stream) string {
	if n, ok := s.(Named); ok && n.Name() != "" {
		return n.Name()
	}
	return fmt.Sprintf("stream-%p", s)
}

// Emit pushes one element to the subscribed observer.
type Emit func(element any)

// ProduceFunc feeds a stream. It returns nil when the stream is exhausted and a
// non-nil error when the source fails terminally.
type ProduceFunc func(ctx context.Context, emit Emit) error

// Source is a Stream backed by a ProduceFunc.
type Source struct {
	name    string
	produce ProduceFunc
}

// New returns a Stream named name whose elements are produced by fn.
func New(name string, fn ProduceFunc) *Source {
	return &Source{name: name, produce: fn}
}

// Name returns the stream name.
func (s *Source) Name() string { return s.name }

// Subscribe runs the producer, forwarding elements to obs. Context
// cancellation completes the stream rather than failing it.
func (s *Source) Subscribe(ctx context.Context, obs Observer) {
	err := s.produce(ctx, obs.OnNext)
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		obs.OnCompleted()
	default:
		obs.OnError(err)
	}
}

// FromSlice returns a finite stream emitting elems in order.
func FromSlice(name string, elems ...any) *Source {
	return New(name, func(ctx context.Context, emit Emit) error {
		for _, e := range elems {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			emit(e)
		}
		return nil
	})
}

// FromChannel returns a stream emitting every value received on ch. The
// stream completes when ch is closed.
func FromChannel[T any](name string, ch <-chan T) *Source {
	return New(name, func(ctx context.Context, emit Emit) error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case v, ok := <-ch:
				if !ok {
					return nil
				}
				emit(v)
			}
		}
	})
}

// Every returns an infinite stream that calls produce on each tick of interval
// and emits its result. A produce error fails the stream.
func Every(name string, interval time.Duration, produce func(ctx context.Context) (any, error)) *Source {
	return New(name, func(ctx context.Context, emit Emit) error {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				v, err := produce(ctx)
				if err != nil {
					return err
				}
				emit(v)
			}
		}
	})
}
