// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

package cache

import (
	"container/list"
	"sync"
)

// LRU is a bounded least-recently-used map. Reads promote an entry to
// most-recent; inserting past capacity evicts the least-recently-used
// entry. Shared by the memory cache tier and the vector store's hot-read
// cache so both follow the same eviction policy.
type LRU[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[K]*list.Element
}

type lruEntry[K comparable, V any] struct {
	key   K
	value V
}

// NewLRU creates an LRU holding at most capacity entries. A capacity of
// zero or less falls back to 1.
func NewLRU[K comparable, V any](capacity int) *LRU[K, V] {
	if capacity <= 0 {
		capacity = 1
	}
	return &LRU[K, V]{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[K]*list.Element),
	}
}

// Get returns the value for key and promotes it to most-recent.
func (l *LRU[K, V]) Get(key K) (V, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	el, ok := l.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	l.ll.MoveToFront(el)
	return el.Value.(*lruEntry[K, V]).value, true
}

// Put inserts or updates key, evicting the least-recently-used entry when
// over capacity.
func (l *LRU[K, V]) Put(key K, value V) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if el, ok := l.items[key]; ok {
		el.Value.(*lruEntry[K, V]).value = value
		l.ll.MoveToFront(el)
		return
	}

	el := l.ll.PushFront(&lruEntry[K, V]{key: key, value: value})
	l.items[key] = el

	if l.ll.Len() > l.capacity {
		oldest := l.ll.Back()
		if oldest != nil {
			l.ll.Remove(oldest)
			delete(l.items, oldest.Value.(*lruEntry[K, V]).key)
		}
	}
}

// Remove deletes key if present.
func (l *LRU[K, V]) Remove(key K) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if el, ok := l.items[key]; ok {
		l.ll.Remove(el)
		delete(l.items, key)
	}
}

// Len returns the number of cached entries.
func (l *LRU[K, V]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ll.Len()
}

// Clear removes all entries.
func (l *LRU[K, V]) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ll.Init()
	l.items = make(map[K]*list.Element)
}
