package event

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory, thread-safe Store implementation. It is
// primarily useful for testing and for single-process deployments that do
// not require durable persistence across restarts.
type MemoryStore struct {
	mu     sync.RWMutex
	byDate map[string][]*TrustEvent
	byID   map[string]*TrustEvent
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byDate: make(map[string][]*TrustEvent),
		byID:   make(map[string]*TrustEvent),
	}
}

// Append implements Store. The store-wide lock serialises writers, which
// satisfies the single-writer-per-partition requirement.
func (m *MemoryStore) Append(_ context.Context, e *TrustEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *e
	date := copied.Date()
	m.byDate[date] = append(m.byDate[date], &copied)
	m.byID[copied.EventID] = &copied
	return nil
}

// GetByID implements Store.
func (m *MemoryStore) GetByID(_ context.Context, id string) (*TrustEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *e
	return &copied, nil
}

// ScanByDate implements Store.
func (m *MemoryStore) ScanByDate(_ context.Context, date string, fn func(*TrustEvent) error) error {
	m.mu.RLock()
	partition := m.byDate[date]
	m.mu.RUnlock()

	for _, e := range partition {
		copied := *e
		if err := fn(&copied); err != nil {
			if err == ErrStopScan {
				return nil
			}
			return err
		}
	}
	return nil
}

// Dates implements Store.
func (m *MemoryStore) Dates(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	dates := make([]string, 0, len(m.byDate))
	for d := range m.byDate {
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates, nil
}
