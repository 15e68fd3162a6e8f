// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vellum Contributors

package cache

import "context"

// MemoryLayer is the fastest tier: a bounded in-process LRU.
type MemoryLayer struct {
	lru *LRU[string, Entry]
}

// NewMemoryLayer creates a memory tier holding at most capacity entries.
func NewMemoryLayer(capacity int) *MemoryLayer {
	return &MemoryLayer{lru: NewLRU[string, Entry](capacity)}
}

func (m *MemoryLayer) Name() string { return "memory" }

func (m *MemoryLayer) Get(_ context.Context, key string) (*Entry, error) {
	e, ok := m.lru.Get(key)
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *MemoryLayer) Set(_ context.Context, key string, e Entry) error {
	m.lru.Put(key, e)
	return nil
}

func (m *MemoryLayer) Delete(_ context.Context, key string) error {
	m.lru.Remove(key)
	return nil
}

func (m *MemoryLayer) Clear(_ context.Context) error {
	m.lru.Clear()
	return nil
}

// Len reports the number of resident entries, for diagnostics.
func (m *MemoryLayer) Len() int { return m.lru.Len() }
