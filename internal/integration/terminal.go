package integration

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/streamwatch/streamwatch/pkg/types"
)

// Terminal prints notifications as plain lines.
type Terminal struct {
	mu  sync.Mutex
	out io.Writer
}

// NewTerminal returns a Terminal writing to w.
func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{out: w}
}

func newTerminal(args map[string]any) (types.Integration, error) {
	if err := rejectUnknown(args, "writer"); err != nil {
		return nil, err
	}
	w, err := stringArg(args, "writer")
	if err != nil {
		return nil, err
	}
	switch w {
	case "", "stdout":
		return NewTerminal(os.Stdout), nil
	case "stderr":
		return NewTerminal(os.Stderr), nil
	default:
		return nil, fmt.Errorf("argument \"writer\" must be stdout or stderr, got %q", w)
	}
}

func (t *Terminal) OnNext(p types.Payload) { t.println("Received => " + p.String()) }

func (t *Terminal) OnError(p types.Payload) { t.println("Error! On: " + p.String()) }

func (t *Terminal) OnCompleted() { t.println("Stream completed!") }

func (t *Terminal) println(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, s)
}
