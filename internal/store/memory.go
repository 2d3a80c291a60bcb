package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// MemoryStore is an in-process Store used for local runs and tests. It mirrors
// the conditional-write and ordering semantics of the DynamoDB adapter.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[Key]Item
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[Key]Item)}
}

func (s *MemoryStore) Get(_ context.Context, key Key) (Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[key]
	if !ok {
		return nil, nil
	}
	return cloneItem(item), nil
}

func (s *MemoryStore) Put(_ context.Context, item Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[ItemKey(item)] = cloneItem(item)
	return nil
}

func (s *MemoryStore) PutConditional(_ context.Context, item Item) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ItemKey(item)
	if _, exists := s.items[key]; exists {
		return false, nil
	}
	s.items[key] = cloneItem(item)
	return true, nil
}

func (s *MemoryStore) UpdateFields(_ context.Context, key Key, fields map[string]types.AttributeValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[key]
	if !ok {
		// DynamoDB UpdateItem upserts; match that
		item = Item{}
		for name, value := range keyAttributes(key) {
			item[name] = value
		}
		s.items[key] = item
	}
	for name, value := range fields {
		item[name] = value
	}
	return nil
}

func (s *MemoryStore) Query(_ context.Context, pk, skPrefix string) ([]Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var items []Item
	for key, item := range s.items {
		if key.PK == pk && strings.HasPrefix(key.SK, skPrefix) {
			items = append(items, cloneItem(item))
		}
	}

	// natural sort-key order, as a table query would return
	sort.Slice(items, func(i, j int) bool {
		return ItemKey(items[i]).SK < ItemKey(items[j]).SK
	})
	return items, nil
}

func (s *MemoryStore) BatchPut(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return nil
	}
	for _, item := range items {
		if err := s.Put(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) BatchGet(ctx context.Context, keys []Key) ([]Item, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	var items []Item
	for _, key := range keys {
		item, err := s.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if item != nil {
			items = append(items, item)
		}
	}
	return items, nil
}

func cloneItem(item Item) Item {
	clone := make(Item, len(item))
	for name, value := range item {
		clone[name] = value
	}
	return clone
}
