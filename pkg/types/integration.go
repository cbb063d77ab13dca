package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Payload is the structured notification produced when an assertion fails or
// raises. Failure payloads carry Description; error payloads carry Err.
type Payload struct {
	ID          string    `json:"id"`
	TestName    string    `json:"test_name"`
	Assertion   string    `json:"assertion"`
	Element     any       `json:"element"`
	Description string    `json:"description"`
	Err         error     `json:"-"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// IsError reports whether p describes an assertion that raised rather than
// one that returned false.
func (p Payload) IsError() bool { return p.Err != nil || p.Error != "" }

// MarshalJSON encodes p, falling back to the element's %v text when the
// element itself cannot be encoded (NaN, channels, funcs).
func (p Payload) MarshalJSON() ([]byte, error) {
	type plain Payload
	out := plain(p)
	if _, err := json.Marshal(p.Element); err != nil {
		out.Element = fmt.Sprint(p.Element)
	}
	return json.Marshal(out)
}

func (p Payload) String() string {
	if p.IsError() {
		return fmt.Sprintf("{test_name: %s, element: %v, error: %s}", p.TestName, p.Element, p.Error)
	}
	return fmt.Sprintf("{test_name: %s, element: %v, description: %s}", p.TestName, p.Element, p.Description)
}

// Integration is a notification sink. OnNext receives assertion failures.
//
// Handlers of one instance are never invoked concurrently: the engine
// serializes delivery per integration alias.
type Integration interface {
	OnNext(p Payload)
}

// ErrorHandler is implemented by integrations that handle assertion exceptions.
type ErrorHandler interface {
	OnError(p Payload)
}

// Completer is implemented by integrations that want to know when the engine
// shuts down and no further payloads will arrive.
type Completer interface {
	OnCompleted()
}

// Factory builds an Integration from the configuration arguments declared for
// it. args is nil when the declaration carries no arguments.
type Factory func(args map[string]any) (Integration, error)
