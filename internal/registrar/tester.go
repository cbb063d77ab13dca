package registrar

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/streamwatch/streamwatch/internal/metrics"
	"github.com/streamwatch/streamwatch/internal/notify"
	"github.com/streamwatch/streamwatch/pkg/check"
	"github.com/streamwatch/streamwatch/pkg/types"
)

// Notifier delivers payloads on behalf of a test.
type Notifier interface {
	Notify(test string, p types.Payload, isError bool) error
}

// Tester evaluates one assertion against every element of a stream.
type Tester struct {
	test      string
	assertion check.Assertion
	notifier  Notifier
	metrics   *metrics.Metrics
	now       func() time.Time
}

// Test returns the name of the test that registered t.
func (t *Tester) Test() string { return t.test }

// Assertion returns the assertion name.
func (t *Tester) Assertion() string { return t.assertion.Name }

// OnNext evaluates the assertion against element and notifies on failure.
func (t *Tester) OnNext(element any) {
	t.metrics.RecordElement(t.test)

	ok, err := t.evaluate(element)
	switch {
	case err != nil:
		t.metrics.RecordError(t.test)
		t.notify(types.Payload{
			TestName:    t.test,
			Assertion:   t.assertion.Name,
			Element:     element,
			Description: fmt.Sprintf("Exception in %s: %v", t.assertion.Name, err),
			Err:         err,
			Error:       err.Error(),
		}, true)
	case !ok:
		t.metrics.RecordFailure(t.test)
		t.notify(types.Payload{
			TestName:    t.test,
			Assertion:   t.assertion.Name,
			Element:     element,
			Description: fmt.Sprintf("Assert error: In %s, got: %v", t.assertion.Name, element),
		}, false)
	}
}

// OnError logs the stream's terminal error.
func (t *Tester) OnError(err error) {
	slog.Warn("registrar: stream failed", "test", t.test, "assertion", t.assertion.Name, "err", err)
}

// OnCompleted logs the end of the stream.
func (t *Tester) OnCompleted() {
	slog.Debug("registrar: stream completed", "test", t.test, "assertion", t.assertion.Name)
}

func (t *Tester) evaluate(element any) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			if e, isErr := r.(error); isErr {
				err = fmt.Errorf("panic: %w", e)
				return
			}
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if t.assertion.Fn == nil {
		return false, errors.New("assertion has no predicate")
	}
	return t.assertion.Fn(element)
}

func (t *Tester) notify(p types.Payload, isError bool) {
	p.ID = newPayloadID()
	p.CreatedAt = t.now()
	if err := t.notifier.Notify(t.test, p, isError); err != nil {
		if errors.Is(err, notify.ErrUnboundTest) {
			slog.Error("registrar: notification dropped, test has no bindings", "test", t.test, "assertion", t.assertion.Name)
			return
		}
		slog.Error("registrar: notify failed", "test", t.test, "assertion", t.assertion.Name, "err", err)
	}
}

func newPayloadID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
