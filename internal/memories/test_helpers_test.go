package memories

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/SolsticeMemorials/keepsake/backend/internal/blob"
)

// memStore is an in-memory blob.Store for tests. List pages in ascending key
// order with the last key of each page as the cursor, mirroring the SQLite
// backend.
type memStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{blobs: map[string][]byte{}}
}

func (s *memStore) Read(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), data...), nil
}

func (s *memStore) Write(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = append([]byte(nil), data...)
	return nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}

func (s *memStore) List(_ context.Context, prefix, cursor string, limit int) (blob.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	for key := range s.blobs {
		if strings.HasPrefix(key, prefix) && (cursor == "" || key > cursor) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	if limit <= 0 {
		limit = len(keys)
	}
	page := blob.Page{}
	if len(keys) > limit {
		page.Keys = keys[:limit]
		page.Cursor = keys[limit-1]
	} else {
		page.Keys = keys
	}
	return page, nil
}

// tickingClock hands out strictly increasing instants so stored dates have a
// deterministic order.
type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTickingClock(start time.Time) *tickingClock {
	return &tickingClock{now: start}
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// recordingDestroyer captures the public ids handed to DestroyAll.
type recordingDestroyer struct {
	mu        sync.Mutex
	destroyed []string
	failures  int
}

func (d *recordingDestroyer) DestroyAll(_ context.Context, publicIDs []string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyed = append(d.destroyed, publicIDs...)
	return d.failures
}

func newTestService(store *memStore, clock *tickingClock, destroyer PhotoDestroyer, maxItems int) (*Service, error) {
	return NewService(ServiceConfig{
		Documents: NewDocumentStore(store, clock.Now),
		Index:     NewIndexStore(store),
		Aggregator: NewAggregator(AggregatorConfig{
			Store:    store,
			MaxItems: maxItems,
		}),
		Destroyer:  destroyer,
		Clock:      clock.Now,
		IDProvider: NewUUIDProvider(),
	})
}
