package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamwatch/streamwatch/internal/integration"
	"github.com/streamwatch/streamwatch/internal/metrics"
	"github.com/streamwatch/streamwatch/pkg/types"
)

// sink records every call it receives.
type sink struct {
	mu        sync.Mutex
	next      []types.Payload
	errs      []types.Payload
	completed int
	block     chan struct{}
	panicOn   string
}

func (s *sink) OnNext(p types.Payload) {
	if s.block != nil {
		<-s.block
	}
	if p.TestName == s.panicOn {
		panic("boom")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next = append(s.next, p)
}

func (s *sink) OnError(p types.Payload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, p)
}

func (s *sink) OnCompleted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed++
}

func (s *sink) snapshot() (next, errs []types.Payload, completed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Payload(nil), s.next...), append([]types.Payload(nil), s.errs...), s.completed
}

// nextOnly implements only the mandatory handler.
type nextOnly struct {
	mu  sync.Mutex
	got int
}

func (n *nextOnly) OnNext(types.Payload) {
	n.mu.Lock()
	n.got++
	n.mu.Unlock()
}

type recorded struct {
	test    string
	aliases []string
}

type fakeRecorder struct {
	mu   sync.Mutex
	recs []recorded
}

func (r *fakeRecorder) Record(test string, _ types.Payload, aliases []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, recorded{test, aliases})
}

func closeHub(t *testing.T, h *Hub) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.Close(ctx))
}

func TestBind_SameAliasSameEndpoint(t *testing.T) {
	term := &sink{}
	h := New(integration.Instances{"term": term})

	require.NoError(t, h.Bind("t1", "term"))
	first, ok := h.Endpoint("term")
	require.True(t, ok)
	require.NoError(t, h.Bind("t2", "term"))
	second, _ := h.Endpoint("term")
	assert.Same(t, first, second)

	assert.Equal(t, map[string][]string{"t1": {"term"}, "t2": {"term"}}, h.Bindings())

	require.NoError(t, h.Notify("t1", types.Payload{TestName: "t1"}, false))
	require.NoError(t, h.Notify("t2", types.Payload{TestName: "t2"}, false))
	closeHub(t, h)

	next, _, completed := term.snapshot()
	assert.Len(t, next, 2)
	assert.Equal(t, 1, completed)
}

func TestBind_UndeclaredAliasCreatesNothing(t *testing.T) {
	h := New(integration.Instances{"term": &sink{}})

	err := h.Bind("t1", "term", "ghost")
	require.ErrorIs(t, err, ErrUndeclaredAlias)
	assert.Contains(t, err.Error(), "ghost")

	_, ok := h.Endpoint("term")
	assert.False(t, ok)
	assert.Empty(t, h.Bindings())
}

func TestNotify_Routing(t *testing.T) {
	full := &sink{}
	plain := &nextOnly{}
	h := New(integration.Instances{"full": full, "plain": plain})
	require.NoError(t, h.Bind("t1", "full", "plain"))

	require.NoError(t, h.Notify("t1", types.Payload{TestName: "t1", Description: "d"}, false))
	require.NoError(t, h.Notify("t1", types.Payload{TestName: "t1", Error: "e"}, true))
	closeHub(t, h)

	next, errs, _ := full.snapshot()
	require.Len(t, next, 1)
	assert.Equal(t, "d", next[0].Description)
	require.Len(t, errs, 1)
	assert.Equal(t, "e", errs[0].Error)

	// Integrations without OnError ignore error payloads.
	assert.Equal(t, 1, plain.got)
}

func TestNotify_UnboundTest(t *testing.T) {
	h := New(integration.Instances{"term": &sink{}})
	err := h.Notify("nobody", types.Payload{}, false)
	assert.ErrorIs(t, err, ErrUnboundTest)
}

func TestNotify_FIFOPerEndpoint(t *testing.T) {
	term := &sink{}
	h := New(integration.Instances{"term": term})
	require.NoError(t, h.Bind("t1", "term"))

	for i := 0; i < 100; i++ {
		require.NoError(t, h.Notify("t1", types.Payload{TestName: "t1", Element: i}, false))
	}
	closeHub(t, h)

	next, _, _ := term.snapshot()
	require.Len(t, next, 100)
	for i, p := range next {
		assert.Equal(t, i, p.Element)
	}
}

func TestNotify_BlockedEndpointDoesNotStallOthers(t *testing.T) {
	slow := &sink{block: make(chan struct{})}
	fast := &sink{}
	h := New(integration.Instances{"slow": slow, "fast": fast})
	require.NoError(t, h.Bind("t1", "slow", "fast"))

	require.NoError(t, h.Notify("t1", types.Payload{TestName: "t1"}, false))
	require.NoError(t, h.Notify("t1", types.Payload{TestName: "t1"}, false))

	require.Eventually(t, func() bool {
		next, _, _ := fast.snapshot()
		return len(next) == 2
	}, 2*time.Second, 5*time.Millisecond)

	slowEp, _ := h.Endpoint("slow")
	require.Eventually(t, func() bool { return slowEp.Pending() == 1 }, 2*time.Second, 5*time.Millisecond)

	close(slow.block)
	closeHub(t, h)
	next, _, _ := slow.snapshot()
	assert.Len(t, next, 2)
}

func TestNotify_HandlerPanicIsRecovered(t *testing.T) {
	term := &sink{panicOn: "bad"}
	m := metrics.New()
	h := New(integration.Instances{"term": term}, WithMetrics(m))
	require.NoError(t, h.Bind("bad", "term"))
	require.NoError(t, h.Bind("good", "term"))

	require.NoError(t, h.Notify("bad", types.Payload{TestName: "bad"}, false))
	require.NoError(t, h.Notify("good", types.Payload{TestName: "good"}, false))
	closeHub(t, h)

	next, _, completed := term.snapshot()
	require.Len(t, next, 1)
	assert.Equal(t, "good", next[0].TestName)
	assert.Equal(t, 1, completed)
}

func TestNotify_Recorder(t *testing.T) {
	rec := &fakeRecorder{}
	h := New(integration.Instances{"a": &sink{}, "b": &sink{}}, WithRecorder(rec))
	require.NoError(t, h.Bind("t1", "b", "a"))
	require.NoError(t, h.Notify("t1", types.Payload{TestName: "t1"}, false))
	closeHub(t, h)

	require.Len(t, rec.recs, 1)
	assert.Equal(t, recorded{"t1", []string{"b", "a"}}, rec.recs[0])
}

func TestClose(t *testing.T) {
	bound := &sink{}
	unbound := &sink{}
	h := New(integration.Instances{"bound": bound, "unbound": unbound})
	require.NoError(t, h.Bind("t1", "bound"))

	closeHub(t, h)
	closeHub(t, h)

	_, _, c := bound.snapshot()
	assert.Equal(t, 1, c)
	_, _, c = unbound.snapshot()
	assert.Equal(t, 1, c)

	assert.ErrorIs(t, h.Notify("t1", types.Payload{}, false), ErrClosed)
	assert.ErrorIs(t, h.Bind("t2", "bound"), ErrClosed)
}

func TestClose_Timeout(t *testing.T) {
	slow := &sink{block: make(chan struct{})}
	defer close(slow.block)
	h := New(integration.Instances{"slow": slow})
	require.NoError(t, h.Bind("t1", "slow"))
	require.NoError(t, h.Notify("t1", types.Payload{TestName: "t1"}, false))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.Close(ctx), context.DeadlineExceeded)
}

func TestDiscard_StopsLoopsWithoutDelivering(t *testing.T) {
	a := &sink{block: make(chan struct{})}
	b := &sink{}
	h := New(integration.Instances{"a": a, "b": b})
	require.NoError(t, h.Bind("t1", "a", "b"))
	require.NoError(t, h.Notify("t1", types.Payload{TestName: "t1"}, false))
	require.NoError(t, h.Notify("t1", types.Payload{TestName: "t1"}, false))

	epA, _ := h.Endpoint("a")
	epB, _ := h.Endpoint("b")
	// a is stuck in its first OnNext; let it finish once Discard has run.
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(a.block)
	}()
	h.Discard()

	for _, ep := range []*Endpoint{epA, epB} {
		select {
		case <-ep.done:
		default:
			t.Fatalf("endpoint %s still running after Discard", ep.Alias())
		}
	}

	next, _, completed := a.snapshot()
	assert.LessOrEqual(t, len(next), 1, "queued payloads are dropped")
	assert.Zero(t, completed)
	_, _, completed = b.snapshot()
	assert.Zero(t, completed)

	assert.ErrorIs(t, h.Notify("t1", types.Payload{}, false), ErrClosed)
	closeHub(t, h)
	_, _, completed = b.snapshot()
	assert.Zero(t, completed, "Close after Discard is a no-op")
}
