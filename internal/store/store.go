package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/streamwatch/streamwatch/pkg/types"
)

// RecentLimit is the number of payloads kept per test.
const RecentLimit = 20

// Entry is the notification history of one test.
type Entry struct {
	Test      string          `json:"test"`
	Failures  int             `json:"failures"`
	Errors    int             `json:"errors"`
	Aliases   []string        `json:"aliases"`
	Last      types.Payload   `json:"last"`
	Recent    []types.Payload `json:"recent"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Store is a thread-safe notification history. Entries not updated within
// the TTL are hidden from List and removed by Evict. A zero TTL keeps
// entries forever.
type Store struct {
	mu   sync.RWMutex
	data map[string]*Entry
	ttl  time.Duration
	now  func() time.Time // injectable for deterministic tests
}

// New creates a Store with the given TTL.
func New(ttl time.Duration) *Store {
	return &Store{
		data: make(map[string]*Entry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Record adds p to the history of test. aliases lists the integrations the
// payload was queued for.
func (s *Store) Record(test string, p types.Payload, aliases []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[test]
	if !ok {
		e = &Entry{Test: test}
		s.data[test] = e
	}
	if p.IsError() {
		e.Errors++
	} else {
		e.Failures++
	}
	e.Aliases = append([]string(nil), aliases...)
	e.Last = p
	e.Recent = append(e.Recent, p)
	if len(e.Recent) > RecentLimit {
		e.Recent = append([]types.Payload(nil), e.Recent[len(e.Recent)-RecentLimit:]...)
	}
	e.UpdatedAt = s.now()
}

// Get returns a copy of the entry for test. The entry may be stale if the
// TTL has elapsed.
func (s *Store) Get(test string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[test]
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

// List returns copies of all live entries sorted by test name.
func (s *Store) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.data))
	for _, e := range s.data {
		if s.live(e, s.now()) {
			out = append(out, e.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Test < out[j].Test })
	return out
}

// Count returns the number of entries held, including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Evict removes entries not updated since now minus TTL and returns how many
// were removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for test, e := range s.data {
		if !s.live(e, now) {
			delete(s.data, test)
			removed++
		}
	}
	return removed
}

func (s *Store) live(e *Entry, now time.Time) bool {
	return s.ttl <= 0 || e.UpdatedAt.After(now.Add(-s.ttl))
}

// Run evicts stale entries every half TTL (minimum 1 second) until ctx is
// cancelled. It returns immediately when the TTL is zero.
func (s *Store) Run(ctx context.Context) {
	if s.ttl <= 0 {
		return
	}
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted stale history", "count", n)
			}
		}
	}
}

func (e *Entry) clone() Entry {
	c := *e
	c.Aliases = append([]string(nil), e.Aliases...)
	c.Recent = append([]types.Payload(nil), e.Recent...)
	return c
}
