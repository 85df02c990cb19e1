package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/JonMunkholm/catalog-importer/internal/core"
)

type object struct {
	data        []byte
	contentType string
}

// BlobStore keeps objects in a map keyed by object key.
type BlobStore struct {
	mu      sync.RWMutex
	objects map[string]object
}

var _ core.BlobStore = (*BlobStore)(nil)

// NewBlobStore creates an empty blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{objects: make(map[string]object)}
}

func (b *BlobStore) Put(_ context.Context, key string, data []byte, contentType string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = object{data: slices.Clone(data), contentType: contentType}
	return nil
}

func (b *BlobStore) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	obj, ok := b.objects[key]
	if !ok {
		return nil, core.ErrBlobNotFound
	}
	return slices.Clone(obj.data), nil
}

func (b *BlobStore) DeleteByPrefix(_ context.Context, prefix string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for key := range b.objects {
		if strings.HasPrefix(key, prefix) {
			delete(b.objects, key)
			n++
		}
	}
	return n, nil
}

// Keys lists stored keys in lexical order.
func (b *BlobStore) Keys() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
