package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/elerk1505/companies-house-data/pkg/core/fetch"
)

// MemStore is an in-memory AssetStore used by tests and dry runs.
type MemStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
	puts  int
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{blobs: make(map[string][]byte)}
}

func (m *MemStore) key(tag, name string) string { return tag + "/" + name }

// Get implements AssetStore.
func (m *MemStore) Get(_ context.Context, tag, name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[m.key(tag, name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", fetch.ErrNotFound, tag, name)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Put implements AssetStore; it replaces any existing blob of the same name.
func (m *MemStore) Put(_ context.Context, tag, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.blobs[m.key(tag, name)] = cp
	m.puts++
	return nil
}

// Puts reports how many publishes have happened, for checkpoint assertions.
func (m *MemStore) Puts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.puts
}

// Corrupt overwrites a blob with bytes that will not decode, for tests of the
// corrupt-prior-snapshot path.
func (m *MemStore) Corrupt(tag, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[m.key(tag, name)] = []byte("not parquet")
}
