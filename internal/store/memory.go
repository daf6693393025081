// ABOUTME: In-memory Store implementation
// ABOUTME: Used by tests and when the dev backend runs without a database file

package store

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore keeps threads and messages in maps. Data lives as long as the process.
type MemoryStore struct {
	mu       sync.RWMutex
	threads  map[string]*Thread
	order    []string              // thread ids in creation order
	messages map[string][]*Message // keyed by thread ID
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		threads:  make(map[string]*Thread),
		messages: make(map[string][]*Message),
	}
}

func (m *MemoryStore) CreateThread(_ context.Context, thread *Thread) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.threads[thread.ID]; ok {
		return false, nil
	}

	// Copy to avoid external modification
	t := *thread
	m.threads[t.ID] = &t
	m.order = append(m.order, t.ID)
	return true, nil
}

func (m *MemoryStore) GetThread(_ context.Context, id string) (*Thread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.threads[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) ListThreads(_ context.Context) ([]*Thread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	threads := make([]*Thread, 0, len(m.order))
	for _, id := range m.order {
		cp := *m.threads[id]
		threads = append(threads, &cp)
	}
	return threads, nil
}

func (m *MemoryStore) DeleteThread(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.threads[id]; !ok {
		return ErrNotFound
	}
	delete(m.threads, id)
	delete(m.messages, id)
	m.order = slices.DeleteFunc(m.order, func(tid string) bool { return tid == id })
	return nil
}

func (m *MemoryStore) SaveMessage(_ context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.threads[msg.ThreadID]
	if !ok {
		return ErrNotFound
	}

	cp := *msg
	m.messages[msg.ThreadID] = append(m.messages[msg.ThreadID], &cp)
	t.UpdatedAt = msg.CreatedAt
	return nil
}

func (m *MemoryStore) GetThreadMessages(_ context.Context, threadID string) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.messages[threadID]
	out := make([]*Message, 0, len(msgs))
	for _, msg := range msgs {
		cp := *msg
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
