package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	elems     []any
	err       error
	completed bool
}

func (r *recorder) OnNext(e any)      { r.elems = append(r.elems, e) }
func (r *recorder) OnError(err error) { r.err = err }
func (r *recorder) OnCompleted()      { r.completed = true }

func TestFromSlice_EmitsInOrderThenCompletes(t *testing.T) {
	rec := &recorder{}
	FromSlice("nums", 1, 2, 3).Subscribe(context.Background(), rec)

	assert.Equal(t, []any{1, 2, 3}, rec.elems)
	assert.True(t, rec.completed)
	assert.NoError(t, rec.err)
}

func TestSource_ProducerErrorIsTerminal(t *testing.T) {
	boom := errors.New("boom")
	rec := &recorder{}
	New("failing", func(_ context.Context, emit Emit) error {
		emit("a")
		return boom
	}).Subscribe(context.Background(), rec)

	assert.Equal(t, []any{"a"}, rec.elems)
	assert.ErrorIs(t, rec.err, boom)
	assert.False(t, rec.completed)
}

func TestFromChannel_CompletesOnClose(t *testing.T) {
	ch := make(chan int, 2)
	ch <- 7
	ch <- 8
	close(ch)

	rec := &recorder{}
	FromChannel[int]("ch", ch).Subscribe(context.Background(), rec)

	assert.Equal(t, []any{7, 8}, rec.elems)
	assert.True(t, rec.completed)
}

func TestFromChannel_CancelCompletes(t *testing.T) {
	ch := make(chan int)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *recorder)
	go func() {
		rec := &recorder{}
		FromChannel[int]("idle", ch).Subscribe(ctx, rec)
		done <- rec
	}()
	cancel()

	select {
	case rec := <-done:
		assert.True(t, rec.completed)
		assert.NoError(t, rec.err)
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe did not return after cancel")
	}
}

func TestEvery_ProduceErrorFails(t *testing.T) {
	calls := 0
	rec := &recorder{}
	Every("tick", time.Millisecond, func(context.Context) (any, error) {
		calls++
		if calls == 3 {
			return nil, errors.New("sensor offline")
		}
		return calls, nil
	}).Subscribe(context.Background(), rec)

	assert.Equal(t, []any{1, 2}, rec.elems)
	require.Error(t, rec.err)
	assert.Contains(t, rec.err.Error(), "sensor offline")
}

func TestSubject_FansOutInSubscriptionOrder(t *testing.T) {
	var order []string
	sub := NewSubject()
	sub.Subscribe(ObserverFuncs{Next: func(e any) { order = append(order, "first") }})
	sub.Subscribe(ObserverFuncs{Next: func(e any) { order = append(order, "second") }})

	sub.OnNext(1)
	sub.OnNext(2)

	assert.Equal(t, 2, sub.Len())
	assert.Equal(t, []string{"first", "second", "first", "second"}, order)
}

func TestNameOf(t *testing.T) {
	assert.Equal(t, "named", NameOf(FromSlice("named")))
	assert.Contains(t, NameOf(FromSlice("")), "stream-0x")
}
