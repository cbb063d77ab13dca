package integration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"

	"github.com/streamwatch/streamwatch/pkg/types"
)

// CloudEvent types emitted by the webhook integration.
const (
	EventAssertionFailed  = "io.streamwatch.assertion.failed"
	EventAssertionErrored = "io.streamwatch.assertion.errored"
	EventCompleted        = "io.streamwatch.engine.completed"
)

const defaultEventSource = "streamwatch"

// Webhook delivers notifications as structured-mode CloudEvents over HTTP.
type Webhook struct {
	target  string
	source  string
	timeout time.Duration
	client  cloudevents.Client
}

func newWebhook(args map[string]any) (types.Integration, error) {
	if err := rejectUnknown(args, "url", "source", "timeout"); err != nil {
		return nil, err
	}
	target, err := requiredString(args, "url")
	if err != nil {
		return nil, err
	}
	source, err := stringArg(args, "source")
	if err != nil {
		return nil, err
	}
	if source == "" {
		source = defaultEventSource
	}
	timeout, err := durationArg(args, "timeout", defaultHTTPTimeout)
	if err != nil {
		return nil, err
	}

	c, err := cloudevents.NewClientHTTP(cloudevents.WithTarget(target))
	if err != nil {
		return nil, fmt.Errorf("cloudevents client: %w", err)
	}
	return &Webhook{target: target, source: source, timeout: timeout, client: c}, nil
}

func (w *Webhook) OnNext(p types.Payload) { w.send(EventAssertionFailed, p.ID, p.TestName, p) }

func (w *Webhook) OnError(p types.Payload) { w.send(EventAssertionErrored, p.ID, p.TestName, p) }

func (w *Webhook) OnCompleted() {
	w.send(EventCompleted, "", "", map[string]string{"message": "all streams finished"})
}

func (w *Webhook) send(eventType, id, subject string, data any) {
	if id == "" {
		id = newEventID()
	}
	event := cloudevents.NewEvent()
	event.SetID(id)
	event.SetType(eventType)
	event.SetSource(w.source)
	event.SetTime(time.Now().UTC())
	if subject != "" {
		event.SetSubject(subject)
	}
	if err := event.SetData(cloudevents.ApplicationJSON, data); err != nil {
		slog.Error("webhook: encode event", "type", eventType, "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	ctx = cloudevents.WithEncodingStructured(ctx)

	if res := w.client.Send(ctx, event); !cloudevents.IsACK(res) {
		slog.Error("webhook: delivery failed", "target", w.target, "type", eventType, "id", id, "err", res)
		return
	}
	slog.Debug("webhook: delivered", "type", eventType, "id", id)
}

func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
