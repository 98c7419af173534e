package blob

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps objects in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]*Object
	now     func() time.Time
	puts    int
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]*Object),
		now:     time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) (*Object, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	body := make([]byte, len(obj.Body))
	copy(body, obj.Body)
	info := obj.Info
	info.Metadata = copyMetadata(obj.Info.Metadata)
	return &Object{Body: body, Metadata: copyMetadata(obj.Metadata), Info: info}, nil
}

func (m *MemoryStore) Put(_ context.Context, key string, body []byte, metadata map[string]string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	b := make([]byte, len(body))
	copy(b, body)
	md := copyMetadata(metadata)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	m.objects[key] = &Object{
		Body:     b,
		Metadata: md,
		Info: ObjectInfo{
			Key:        key,
			Size:       int64(len(b)),
			ModifiedAt: m.now(),
			Metadata:   md,
		},
	}
	return nil
}

func (m *MemoryStore) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	obj, err := m.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return &obj.Info, nil
}

// Puts returns how many writes the store has accepted.
func (m *MemoryStore) Puts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.puts
}
