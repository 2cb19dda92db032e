package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process LRU store with per-entry expiry.
// Doubly linked list gives O(1) get, set and eviction.
type MemoryStore struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*lruNode
	head     *lruNode // most recently used
	tail     *lruNode // least recently used
	closed   bool
	now      func() time.Time
}

type lruNode struct {
	key       string
	value     []byte
	expiresAt time.Time // zero means no expiry
	prev      *lruNode
	next      *lruNode
}

// NewMemoryStore creates a store holding at most capacity entries (minimum 1).
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity < 1 {
		capacity = 1
	}
	return &MemoryStore{
		capacity: capacity,
		items:    make(map[string]*lruNode),
		now:      time.Now,
	}
}

// Name implements Store.
func (s *MemoryStore) Name() string { return "memory" }

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	node, ok := s.items[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	if s.expired(node) {
		s.removeNode(node)
		delete(s.items, key)
		return nil, ErrCacheMiss
	}

	s.moveToHead(node)
	out := make([]byte, len(node.value))
	copy(out, node.value)
	return out, nil
}

// SetWithTTL implements Store.
func (s *MemoryStore) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = s.now().Add(ttl)
	}
	stored := make([]byte, len(value))
	copy(stored, value)

	if node, ok := s.items[key]; ok {
		node.value = stored
		node.expiresAt = expiresAt
		s.moveToHead(node)
		return nil
	}

	if len(s.items) >= s.capacity {
		s.evictTail()
	}

	node := &lruNode{key: key, value: stored, expiresAt: expiresAt}
	s.items[key] = node
	s.addToHead(node)
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	for _, key := range keys {
		if node, ok := s.items[key]; ok {
			s.removeNode(node)
			delete(s.items, key)
		}
	}
	return nil
}

// DeletePrefix implements Store.
func (s *MemoryStore) DeletePrefix(_ context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}
	removed := 0
	for key, node := range s.items {
		if strings.HasPrefix(key, prefix) {
			s.removeNode(node)
			delete(s.items, key)
			removed++
		}
	}
	return removed, nil
}

// Ping implements Store.
func (s *MemoryStore) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Info implements Inspector. Expired entries not yet touched still count.
func (s *MemoryStore) Info(context.Context) (StoreInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StoreInfo{Entries: int64(len(s.items)), Capacity: int64(s.capacity)}, nil
}

// Len returns the number of entries currently held.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.items = make(map[string]*lruNode)
	s.head, s.tail = nil, nil
	return nil
}

func (s *MemoryStore) expired(node *lruNode) bool {
	return !node.expiresAt.IsZero() && s.now().After(node.expiresAt)
}

func (s *MemoryStore) addToHead(node *lruNode) {
	node.prev = nil
	node.next = s.head
	if s.head != nil {
		s.head.prev = node
	}
	s.head = node
	if s.tail == nil {
		s.tail = node
	}
}

func (s *MemoryStore) removeNode(node *lruNode) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		s.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		s.tail = node.prev
	}
	node.prev, node.next = nil, nil
}

func (s *MemoryStore) moveToHead(node *lruNode) {
	if node == s.head {
		return
	}
	s.removeNode(node)
	s.addToHead(node)
}

// evictTail drops the least recently used entry.
func (s *MemoryStore) evictTail() {
	if s.tail == nil {
		return
	}
	victim := s.tail
	delete(s.items, victim.key)
	s.removeNode(victim)
}
