package cache

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process, priority-ordered Queue. It is the zero-config
// default when no persistent cache directory is configured, and is used
// directly in gateway tests.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
	closed  bool
}

// NewMemory constructs an empty Memory queue.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Enqueue(ctx context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *Memory) Drain(ctx context.Context, fn func(Entry) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	sort.SliceStable(m.entries, func(i, j int) bool {
		return m.entries[i].Priority > m.entries[j].Priority
	})

	var drained int
	for _, e := range m.entries {
		if ctx.Err() != nil {
			break
		}
		if err := fn(e); err != nil {
			break
		}
		drained++
	}
	m.entries = m.entries[drained:]
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Len reports the number of queued, undrained entries (test helper).
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
