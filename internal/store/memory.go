package store

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store. Now may be replaced to control ModTime.
type Memory struct {
	mu   sync.Mutex
	docs map[string]Document
	Now  func() time.Time
}

func NewMemory() *Memory {
	return &Memory{docs: make(map[string]Document), Now: time.Now}
}

func (m *Memory) Load(_ context.Context, key string) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[key]
	if !ok {
		return Document{}, ErrNotFound
	}
	out := make([]byte, len(d.Data))
	copy(out, d.Data)
	return Document{Data: out, ModTime: d.ModTime}, nil
}

func (m *Memory) Save(_ context.Context, key string, data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)
	m.mu.Lock()
	m.docs[key] = Document{Data: buf, ModTime: m.Now()}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.docs, key)
	m.mu.Unlock()
	return nil
}

// Touch overrides the ModTime of an existing document (tests use it to age documents).
func (m *Memory) Touch(key string, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.docs[key]; ok {
		d.ModTime = t
		m.docs[key] = d
	}
}

func (m *Memory) Close() error { return nil }
