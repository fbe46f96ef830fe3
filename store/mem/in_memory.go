package mem

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/warriorguo/flowcanvas/store"
	"github.com/warriorguo/flowcanvas/utils"
)

var (
	_ store.Store = &memStore{}
)

func NewMemStore() store.Store {
	return NewMemStoreWithErrHandler(defaultNoErr)
}

// NewMemStoreWithErrHandler lets tests inject store failures.
func NewMemStoreWithErrHandler(errHandler func() error) store.Store {
	return &memStore{
		buckets:        make(map[string]map[string][]byte),
		mockErrHandler: errHandler,
	}
}

func defaultNoErr() error {
	return nil
}

/**
 * memStore keeps values in process memory, for tests and local development.
 * Values are copied in and out so callers never share buffers with it.
 */
type memStore struct {
	mu sync.Mutex

	mockErrHandler func() error

	buckets map[string]map[string][]byte
}

func (m *memStore) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sb strings.Builder
	sb.WriteString("\n----------\n")
	for prefix, bucket := range m.buckets {
		for key, value := range bucket {
			sb.WriteString(fmt.Sprintf("%s|%s: %s\n", prefix, key, string(value)))
		}
	}
	sb.WriteString("----------\n")
	return sb.String()
}

func (m *memStore) Get(ctx context.Context, prefix, key string) ([]byte, error) {
	if err := m.mockErrHandler(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	value, exists := m.buckets[prefix][key]
	if !exists {
		return nil, nil
	}
	return utils.CloneSlice(value), nil
}

func (m *memStore) Set(ctx context.Context, prefix, key string, value []byte) error {
	if err := m.mockErrHandler(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket, exists := m.buckets[prefix]
	if !exists {
		bucket = make(map[string][]byte)
		m.buckets[prefix] = bucket
	}
	bucket[key] = utils.CloneSlice(value)
	return nil
}

func (m *memStore) Remove(ctx context.Context, prefix, key string) error {
	if err := m.mockErrHandler(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket, exists := m.buckets[prefix]
	if !exists {
		return nil
	}
	delete(bucket, key)
	if len(bucket) == 0 {
		delete(m.buckets, prefix)
	}
	return nil
}

func (m *memStore) List(ctx context.Context, prefix string, iterator func(key string) bool) error {
	if err := m.mockErrHandler(); err != nil {
		return err
	}
	m.mu.Lock()
	keys := make([]string, 0, len(m.buckets[prefix]))
	for key := range m.buckets[prefix] {
		keys = append(keys, key)
	}
	m.mu.Unlock()

	sort.Strings(keys)
	for _, key := range keys {
		if !iterator(key) {
			break
		}
	}
	return nil
}
