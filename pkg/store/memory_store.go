package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/mac-/configurine/pkg/log"
	"github.com/mac-/configurine/pkg/types"
)

var _ Store = &MemoryStore{}

type memoryData struct {
	mu   sync.RWMutex
	data map[types.ResourceType]map[string][]byte
}

// MemoryStore keeps resources as serialized JSON in process memory. Used by tests and the
// "memory" driver.
type MemoryStore struct {
	conn *Connector[*memoryData]
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	logger := log.GetDefaultLogger().WithComponent("store").With(log.Str("driver", "memory"))
	data := &memoryData{data: make(map[types.ResourceType]map[string][]byte)}
	for _, rt := range types.AllResourceTypes {
		data.data[rt] = make(map[string][]byte)
	}
	dial := func(context.Context) (*memoryData, error) { return data, nil }
	return &MemoryStore{conn: NewConnector(dial, nil, logger)}
}

func (m *MemoryStore) Open(ctx context.Context) error {
	_, err := m.conn.Connect(ctx)
	return err
}

func (m *MemoryStore) Close() error { return m.conn.Shutdown() }

func (m *MemoryStore) State() State { return m.conn.State() }

func (m *MemoryStore) Ping(ctx context.Context) error {
	_, err := m.conn.Connect(ctx)
	return err
}

func (m *MemoryStore) Create(ctx context.Context, resourceType types.ResourceType, key string, resource interface{}) error {
	if err := checkKey(resourceType, key); err != nil {
		return err
	}
	data, err := json.Marshal(resource)
	if err != nil {
		return fmt.Errorf("failed to serialize resource: %w", err)
	}
	d, err := m.conn.Connect(ctx)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.data[resourceType][key]; exists {
		return fmt.Errorf("%s/%s: %w", resourceType, key, ErrAlreadyExists)
	}
	d.data[resourceType][key] = data
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, resourceType types.ResourceType, key string, resource interface{}) error {
	if err := checkKey(resourceType, key); err != nil {
		return err
	}
	d, err := m.conn.Connect(ctx)
	if err != nil {
		return err
	}

	d.mu.RLock()
	data, exists := d.data[resourceType][key]
	d.mu.RUnlock()
	if !exists {
		return fmt.Errorf("%s/%s: %w", resourceType, key, ErrNotFound)
	}
	return json.Unmarshal(data, resource)
}

func (m *MemoryStore) List(ctx context.Context, resourceType types.ResourceType, resource interface{}) error {
	if !resourceType.IsValid() {
		return fmt.Errorf("unknown resource type %q", resourceType)
	}
	d, err := m.conn.Connect(ctx)
	if err != nil {
		return err
	}

	d.mu.RLock()
	keys := make([]string, 0, len(d.data[resourceType]))
	for k := range d.data[resourceType] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	items := make([][]byte, 0, len(keys))
	for _, k := range keys {
		items = append(items, d.data[resourceType][k])
	}
	d.mu.RUnlock()

	return decodeList(items, resource)
}

func (m *MemoryStore) Update(ctx context.Context, resourceType types.ResourceType, key string, resource interface{}) error {
	if err := checkKey(resourceType, key); err != nil {
		return err
	}
	data, err := json.Marshal(resource)
	if err != nil {
		return fmt.Errorf("failed to serialize resource: %w", err)
	}
	d, err := m.conn.Connect(ctx)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.data[resourceType][key]; !exists {
		return fmt.Errorf("%s/%s: %w", resourceType, key, ErrNotFound)
	}
	d.data[resourceType][key] = data
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, resourceType types.ResourceType, key string) error {
	if err := checkKey(resourceType, key); err != nil {
		return err
	}
	d, err := m.conn.Connect(ctx)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.data[resourceType][key]; !exists {
		return fmt.Errorf("%s/%s: %w", resourceType, key, ErrNotFound)
	}
	delete(d.data[resourceType], key)
	return nil
}
