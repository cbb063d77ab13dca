package check

import (
	"strings"

	"github.com/streamwatch/streamwatch/pkg/stream"
)

// Predicate evaluates one element. Returning a non-nil error, like panicking,
// is reported as an assertion exception rather than a failure.
type Predicate func(element any) (bool, error)

// Assertion is a named predicate over stream elements.
type Assertion struct {
	Name string
	Fn   Predicate
}

// That builds an Assertion from a boolean predicate.
func That(name string, fn func(element any) bool) Assertion {
	return Assertion{Name: name, Fn: func(e any) (bool, error) { return fn(e), nil }}
}

// ThatErr builds an Assertion from a predicate that may return an error.
func ThatErr(name string, fn Predicate) Assertion {
	return Assertion{Name: name, Fn: fn}
}

// Binder attaches assertions to the stream it was obtained for.
type Binder func(assertions ...Assertion)

// Scope is handed to a setup function. It carries the test identity so
// bindings made through it are attributed to that test.
type Scope interface {
	// Name returns the identifying name of the running test.
	Name() string
	// Expect returns a Binder for s. Repeated calls on the same stream append.
	Expect(s stream.Stream) Binder
}

// SetupFunc performs stream bindings for one test.
type SetupFunc func(s Scope)

// Test is a setup function together with its notification targets.
type Test struct {
	Name        string
	Description string
	Notify      []string
	Setup       SetupFunc
}

// Define returns a Test named name. The description defaults to the name with
// underscores replaced by spaces.
func Define(name string, setup SetupFunc) *Test {
	return &Test{
		Name:        name,
		Description: strings.ReplaceAll(name, "_", " "),
		Setup:       setup,
	}
}

// OnFailure appends integration aliases notified by this test and returns t.
func (t *Test) OnFailure(aliases ...string) *Test {
	t.Notify = append(t.Notify, aliases...)
	return t
}

// Describe overrides the default description and returns t.
func (t *Test) Describe(description string) *Test {
	t.Description = description
	return t
}
