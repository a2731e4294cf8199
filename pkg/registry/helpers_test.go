package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/mesh-intelligence/keepstate/internal/memory"
	"github.com/mesh-intelligence/keepstate/internal/merge"
	"github.com/mesh-intelligence/keepstate/pkg/types"
)

// recordingStore logs every Get, Set and Remove on top of a memory store.
type recordingStore struct {
	*memory.Store
	mu  sync.Mutex
	ops []string
}

func newRecordingStore() *recordingStore {
	return &recordingStore{Store: memory.New()}
}

func (s *recordingStore) record(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, op)
}

func (s *recordingStore) Get(key string) (string, bool, error) {
	s.record("get " + key)
	return s.Store.Get(key)
}

func (s *recordingStore) Set(key, value string) error {
	s.record("set " + key)
	return s.Store.Set(key, value)
}

func (s *recordingStore) Remove(key string) error {
	s.record("remove " + key)
	return s.Store.Remove(key)
}

func (s *recordingStore) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = nil
}

func (s *recordingStore) recorded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ops...)
}

var errBroken = errors.New("store broken")

// failingStore fails the selected operations with errBroken.
type failingStore struct {
	*memory.Store
	failGet, failSet, failRemove bool
}

func (s *failingStore) Get(key string) (string, bool, error) {
	if s.failGet {
		return "", false, errBroken
	}
	return s.Store.Get(key)
}

func (s *failingStore) Set(key, value string) error {
	if s.failSet {
		return errBroken
	}
	return s.Store.Set(key, value)
}

func (s *failingStore) Remove(key string) error {
	if s.failRemove {
		return errBroken
	}
	return s.Store.Remove(key)
}

// spyCopier counts CopyInto calls and delegates to merge.Into.
type spyCopier struct {
	calls int
}

func (c *spyCopier) CopyInto(dst, src any) error {
	c.calls++
	return merge.Into(dst, src)
}

// recordingAccessor remembers every field name read or written.
type recordingAccessor struct {
	MapAccessor
	touched map[string]int
}

func newRecordingAccessor(values map[string]any) *recordingAccessor {
	return &recordingAccessor{MapAccessor: MapAccessor(values), touched: map[string]int{}}
}

func (a *recordingAccessor) Get(name string) (any, bool) {
	a.touched[name]++
	return a.MapAccessor.Get(name)
}

func (a *recordingAccessor) Set(name string, value any) error {
	a.touched[name]++
	return a.MapAccessor.Set(name, value)
}

// fakeClock is a settable time source.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

var _ types.Store = (*recordingStore)(nil)
var _ types.Store = (*failingStore)(nil)
