package integration

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/streamwatch/streamwatch/pkg/types"
)

const slackCompletedText = "All tests run, out of data.\nAll done for now..."

// Slack posts notifications to a Slack incoming webhook.
type Slack struct {
	url     string
	channel string
	client  *http.Client
}

func newSlack(args map[string]any) (types.Integration, error) {
	if err := rejectUnknown(args, "url", "channel"); err != nil {
		return nil, err
	}
	u, err := requiredString(args, "url")
	if err != nil {
		return nil, err
	}
	ch, err := stringArg(args, "channel")
	if err != nil {
		return nil, err
	}
	return &Slack{url: u, channel: ch, client: &http.Client{Timeout: defaultHTTPTimeout}}, nil
}

type slackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Text        string            `json:"text,omitempty"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

type slackAttachment struct {
	Fallback  string `json:"fallback"`
	Pretext   string `json:"pretext"`
	Title     string `json:"title"`
	TitleLink string `json:"title_link,omitempty"`
	Text      string `json:"text"`
	Color     string `json:"color"`
}

func (s *Slack) OnNext(p types.Payload) {
	s.send(slackMessage{Attachments: []slackAttachment{{
		Fallback: "An error just happened on " + p.TestName,
		Pretext:  "An error just happened!",
		Title:    "Failed test",
		Text:     p.TestName + ": " + p.Description,
		Color:    "#CF6160",
	}}})
}

func (s *Slack) OnError(p types.Payload) {
	s.send(slackMessage{Attachments: []slackAttachment{{
		Fallback: "An exception just happened on " + p.TestName,
		Pretext:  "An exception just happened!",
		Title:    "Wrongly-built test",
		Text:     p.TestName + ": " + p.Error,
		Color:    "danger",
	}}})
}

func (s *Slack) OnCompleted() {
	s.send(slackMessage{Text: slackCompletedText})
}

func (s *Slack) send(msg slackMessage) {
	msg.Channel = s.channel
	if err := postJSON(context.Background(), s.client, s.url, nil, msg); err != nil {
		slog.Error("slack: delivery failed", "err", err)
		return
	}
	slog.Debug("slack: delivered", "attachments", len(msg.Attachments))
}
