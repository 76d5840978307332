// Package lease grants exclusive use of a compute device to one request at a time.
package lease

import (
	"context"
	"sync"
)

// Memory serializes holders of the same key inside one process.
type Memory struct {
	mu   sync.Mutex
	sems map[string]*semaphore
}

// NewMemory constructs an in-process lease.
func NewMemory() *Memory {
	return &Memory{sems: make(map[string]*semaphore)}
}

// Acquire blocks until key is free or ctx ends. The returned release is idempotent.
func (m *Memory) Acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	sem := m.semaphore(key)
	if err := sem.acquire(ctx); err != nil {
		return nil, err
	}
	var once sync.Once
	return func(context.Context) error {
		once.Do(sem.release)
		return nil
	}, nil
}

func (m *Memory) semaphore(key string) *semaphore {
	m.mu.Lock()
	defer m.mu.Unlock()
	sem, ok := m.sems[key]
	if !ok {
		sem = newSemaphore(1)
		m.sems[key] = sem
	}
	return sem
}

// semaphore is a channel-backed counting semaphore.
type semaphore struct {
	ch chan struct{}
}

func newSemaphore(capacity int) *semaphore {
	return &semaphore{ch: make(chan struct{}, capacity)}
}

func (s *semaphore) acquire(ctx context.Context) error {
	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *semaphore) release() {
	<-s.ch
}
