package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/streamwatch/streamwatch/pkg/types"
)

const (
	trelloBaseURL      = "https://trello.com/1/"
	trelloMaxStringLen = 16384
	trelloCompleted    = "--------| All tests run |--------"
)

// Trello records notifications on a Trello board, either as check items on a
// card's checklist (mode card) or as new cards in a list (mode list).
type Trello struct {
	key     string
	token   string
	baseURL string
	target  trelloTarget
	client  *http.Client
}

type trelloMessage struct {
	title   string
	content string
}

type trelloTarget interface {
	endpoint() string
	body(m trelloMessage) map[string]string
}

type cardTarget struct {
	card      string
	checklist string
}

func (c cardTarget) endpoint() string {
	return strings.Join([]string{"cards", c.card, "checklist", c.checklist, "checkItem"}, "/")
}

func (c cardTarget) body(m trelloMessage) map[string]string {
	return map[string]string{
		"idChecklist": c.checklist,
		"name":        m.title + ": " + m.content,
	}
}

type listTarget struct {
	list string
}

func (l listTarget) endpoint() string { return "lists/" + l.list + "/cards" }

func (l listTarget) body(m trelloMessage) map[string]string {
	return map[string]string{"name": m.title, "desc": m.content}
}

func newTrello(args map[string]any) (types.Integration, error) {
	if err := rejectUnknown(args, "key", "token", "mode", "card", "checklist", "list"); err != nil {
		return nil, err
	}
	key, err := requiredString(args, "key")
	if err != nil {
		return nil, err
	}
	token, err := requiredString(args, "token")
	if err != nil {
		return nil, err
	}
	mode, err := stringArg(args, "mode")
	if err != nil {
		return nil, err
	}

	var target trelloTarget
	switch mode {
	case "", "card":
		card, err := requiredString(args, "card")
		if err != nil {
			return nil, err
		}
		checklist, err := requiredString(args, "checklist")
		if err != nil {
			return nil, err
		}
		target = cardTarget{card: card, checklist: checklist}
	case "list":
		list, err := requiredString(args, "list")
		if err != nil {
			return nil, err
		}
		target = listTarget{list: list}
	default:
		return nil, fmt.Errorf("argument \"mode\" must be card or list, got %q", mode)
	}

	return &Trello{
		key:     key,
		token:   token,
		baseURL: trelloBaseURL,
		target:  target,
		client:  &http.Client{Timeout: defaultHTTPTimeout},
	}, nil
}

func (t *Trello) OnNext(p types.Payload) {
	t.post(trelloMessage{
		title:   p.TestName,
		content: markdownQuote(jsonString(p.Element)),
	})
}

func (t *Trello) OnError(p types.Payload) {
	t.post(trelloMessage{
		title: strings.Join([]string{markdownBold("ERROR"), "when running test:", p.TestName}, " "),
		content: strings.Join([]string{
			":bangbang: When processing element",
			markdownQuote(jsonString(p.Element)),
			"the following error was raised:",
			markdownQuote(p.Error),
		}, "\n"),
	})
}

func (t *Trello) OnCompleted() {
	t.post(trelloMessage{title: trelloCompleted})
}

func (t *Trello) post(m trelloMessage) {
	body := t.target.body(m)
	for k, v := range body {
		body[k] = capString(v, trelloMaxStringLen)
	}
	q := url.Values{"key": {t.key}, "token": {t.token}}
	if err := postJSON(context.Background(), t.client, t.baseURL+t.target.endpoint(), q, body); err != nil {
		slog.Error("trello: delivery failed", "endpoint", t.target.endpoint(), "err", err)
	}
}

func capString(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func jsonString(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func markdownQuote(s string) string { return "`" + s + "`" }

func markdownBold(s string) string { return "**" + s + "**" }
