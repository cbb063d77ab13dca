package registrar

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamwatch/streamwatch/internal/notify"
	"github.com/streamwatch/streamwatch/pkg/check"
	"github.com/streamwatch/streamwatch/pkg/stream"
	"github.com/streamwatch/streamwatch/pkg/types"
)

type sent struct {
	test    string
	payload types.Payload
	isError bool
}

type fakeHub struct {
	bound   map[string][]string
	sent    []sent
	bindErr error
}

func newFakeHub() *fakeHub { return &fakeHub{bound: make(map[string][]string)} }

func (h *fakeHub) Bind(test string, aliases ...string) error {
	if h.bindErr != nil {
		return h.bindErr
	}
	h.bound[test] = aliases
	return nil
}

func (h *fakeHub) Notify(test string, p types.Payload, isError bool) error {
	if _, ok := h.bound[test]; !ok {
		return fmt.Errorf("%w: %s", notify.ErrUnboundTest, test)
	}
	h.sent = append(h.sent, sent{test, p, isError})
	return nil
}

var fixed = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func positive(e any) bool { return e.(int) > 0 }

func TestRegister_OrderAndMerging(t *testing.T) {
	shared := stream.FromSlice("numbers", 1)
	other := stream.FromSlice("other", 1)
	var calls []string

	t1 := check.Define("t1", func(s check.Scope) {
		calls = append(calls, s.Name())
		s.Expect(shared)(check.That("a", positive))
	}).OnFailure("term")
	t2 := check.Define("t2", func(s check.Scope) {
		calls = append(calls, s.Name())
		s.Expect(other)(check.That("b", positive))
		s.Expect(shared)(check.That("c", positive), check.That("d", positive))
	}).OnFailure("term")

	reg, err := New(newFakeHub()).Register(t1, t2)
	require.NoError(t, err)

	assert.Equal(t, []string{"t1", "t2"}, calls)
	require.Equal(t, 2, reg.Len())
	assert.Same(t, shared, reg.Streams()[0])
	assert.Same(t, other, reg.Streams()[1])

	var names []string
	for _, tr := range reg.Testers(shared) {
		names = append(names, tr.Test()+"/"+tr.Assertion())
	}
	assert.Equal(t, []string{"t1/a", "t2/c", "t2/d"}, names)

	assert.Equal(t, []TestInfo{
		{Name: "t1", Description: "t1", Notify: []string{"term"}, Assertions: 1},
		{Name: "t2", Description: "t2", Notify: []string{"term"}, Assertions: 3},
	}, reg.Tests())
}

func TestRegister_Errors(t *testing.T) {
	noop := func(check.Scope) {}

	t.Run("duplicate name", func(t *testing.T) {
		_, err := New(newFakeHub()).Register(check.Define("t1", noop), check.Define("t1", noop))
		assert.ErrorIs(t, err, ErrDuplicateTest)
	})
	t.Run("missing setup", func(t *testing.T) {
		_, err := New(newFakeHub()).Register(&check.Test{Name: "t1"})
		assert.ErrorIs(t, err, ErrInvalidTest)
	})
	t.Run("undeclared alias", func(t *testing.T) {
		hub := newFakeHub()
		hub.bindErr = fmt.Errorf("test t1: %w: ghost", notify.ErrUndeclaredAlias)
		ran := false
		_, err := New(hub).Register(check.Define("t1", func(check.Scope) { ran = true }).OnFailure("ghost"))
		assert.ErrorIs(t, err, notify.ErrUndeclaredAlias)
		assert.False(t, ran, "setup must not run when binding fails")
	})
	t.Run("setup panics", func(t *testing.T) {
		_, err := New(newFakeHub()).Register(check.Define("t1", func(check.Scope) { panic("bad stream") }))
		assert.ErrorIs(t, err, ErrSetupFailed)
		assert.ErrorContains(t, err, "bad stream")
	})
}

// valueStream is a stream implemented on a value type: two copies compare equal.
type valueStream struct{ name string }

func (v valueStream) Name() string { return v.name }

func (v valueStream) Subscribe(_ context.Context, obs stream.Observer) { obs.OnCompleted() }

func TestRegister_ValueStreamsAreRejected(t *testing.T) {
	t1 := check.Define("t1", func(s check.Scope) {
		s.Expect(valueStream{"feed"})(check.That("a", positive))
	})
	t2 := check.Define("t2", func(s check.Scope) {
		s.Expect(valueStream{"feed"})(check.That("b", positive))
	})

	_, err := New(newFakeHub()).Register(t1, t2)
	require.ErrorIs(t, err, ErrInvalidStream)
	assert.ErrorContains(t, err, "test t1")
}

func TestRegister_NilStreamIsRejected(t *testing.T) {
	var src *stream.Source
	_, err := New(newFakeHub()).Register(check.Define("t1", func(s check.Scope) {
		s.Expect(src)(check.That("a", positive))
	}))
	assert.ErrorIs(t, err, ErrInvalidStream)
}

func TestRegister_DistinctHandlesStayDistinct(t *testing.T) {
	a := stream.FromSlice("feed", 1)
	b := stream.FromSlice("feed", 1)
	reg, err := New(newFakeHub()).Register(
		check.Define("t1", func(s check.Scope) { s.Expect(a)(check.That("a", positive)) }),
		check.Define("t2", func(s check.Scope) { s.Expect(b)(check.That("b", positive)) }),
	)
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Len())
}

func newTester(hub *fakeHub, a check.Assertion) *Tester {
	hub.bound["check_positive"] = []string{"term"}
	r := New(hub, WithClock(func() time.Time { return fixed }))
	s := stream.FromSlice("numbers")
	r.Expect("check_positive", s)(a)
	return r.registry.Testers(s)[0]
}

func TestTester_Failure(t *testing.T) {
	hub := newFakeHub()
	tr := newTester(hub, check.That("is_positive", positive))

	tr.OnNext(5)
	tr.OnNext(-1)

	require.Len(t, hub.sent, 1)
	got := hub.sent[0]
	assert.Equal(t, "check_positive", got.test)
	assert.False(t, got.isError)
	assert.Equal(t, -1, got.payload.Element)
	assert.Equal(t, "Assert error: In is_positive, got: -1", got.payload.Description)
	assert.Equal(t, fixed, got.payload.CreatedAt)
	assert.NotEmpty(t, got.payload.ID)
	assert.False(t, got.payload.IsError())
}

func TestTester_ErrorThenContinues(t *testing.T) {
	hub := newFakeHub()
	tr := newTester(hub, check.ThatErr("parses", func(e any) (bool, error) {
		if s, ok := e.(string); ok {
			return false, errors.New("not a number: " + s)
		}
		return e.(int) > 0, nil
	}))

	tr.OnNext("x")
	tr.OnNext(-2)
	tr.OnNext(3)

	require.Len(t, hub.sent, 2)
	assert.True(t, hub.sent[0].isError)
	assert.Equal(t, "Exception in parses: not a number: x", hub.sent[0].payload.Description)
	assert.Equal(t, "not a number: x", hub.sent[0].payload.Error)
	assert.True(t, hub.sent[0].payload.IsError())
	assert.False(t, hub.sent[1].isError)
	assert.Equal(t, -2, hub.sent[1].payload.Element)
}

func TestTester_PanicBecomesError(t *testing.T) {
	hub := newFakeHub()
	// positive panics on non-int elements.
	tr := newTester(hub, check.That("is_positive", positive))

	assert.NotPanics(t, func() { tr.OnNext("oops") })
	tr.OnNext(-1)

	require.Len(t, hub.sent, 2)
	assert.True(t, hub.sent[0].isError)
	assert.Contains(t, hub.sent[0].payload.Description, "Exception in is_positive: panic:")
	assert.False(t, hub.sent[1].isError)
}

func TestTester_UnboundTestIsLoggedNotRaised(t *testing.T) {
	hub := newFakeHub()
	tr := newTester(hub, check.That("is_positive", positive))
	delete(hub.bound, "check_positive")

	assert.NotPanics(t, func() { tr.OnNext(-1) })
	assert.Empty(t, hub.sent)
}

func TestTester_TerminalNotificationsAreIgnored(t *testing.T) {
	hub := newFakeHub()
	tr := newTester(hub, check.That("is_positive", positive))

	tr.OnError(errors.New("connection reset"))
	tr.OnCompleted()
	assert.Empty(t, hub.sent)
}
