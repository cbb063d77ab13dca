package registrar

import (
	"github.com/streamwatch/streamwatch/pkg/check"
	"github.com/streamwatch/streamwatch/pkg/stream"
)

// TestInfo describes a registered test.
type TestInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Notify      []string `json:"notify"`
	Assertions  int      `json:"assertions"`
}

// Registry maps each stream handle to its testers, in registration order.
// Registrar.Expect only admits pointer streams, so map keys compare by
// identity.
type Registry struct {
	order   []stream.Stream
	testers map[stream.Stream][]*Tester
	tests   []TestInfo
	index   map[string]int
}

func newRegistry() *Registry {
	return &Registry{
		testers: make(map[stream.Stream][]*Tester),
		index:   make(map[string]int),
	}
}

func (r *Registry) addTest(t *check.Test) {
	r.index[t.Name] = len(r.tests)
	r.tests = append(r.tests, TestInfo{
		Name:        t.Name,
		Description: t.Description,
		Notify:      append([]string(nil), t.Notify...),
	})
}

func (r *Registry) addTester(s stream.Stream, t *Tester) {
	if _, ok := r.testers[s]; !ok {
		r.order = append(r.order, s)
	}
	r.testers[s] = append(r.testers[s], t)
	if i, ok := r.index[t.test]; ok {
		r.tests[i].Assertions++
	}
}

// Streams returns every stream with at least one tester, in the order the
// streams were first bound.
func (r *Registry) Streams() []stream.Stream {
	return append([]stream.Stream(nil), r.order...)
}

// Testers returns the testers bound to s, in binding order.
func (r *Registry) Testers(s stream.Stream) []*Tester {
	return append([]*Tester(nil), r.testers[s]...)
}

// Tests returns the registered tests in registration order.
func (r *Registry) Tests() []TestInfo {
	out := make([]TestInfo, len(r.tests))
	copy(out, r.tests)
	return out
}

// Len returns the number of distinct streams.
func (r *Registry) Len() int { return len(r.order) }
