package reporting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ahrav/go-qualitygate/internal/ports"
)

var (
	_ ports.CacheStore = (*MemoryCacheStore)(nil)
	_ ports.CacheStore = (*DiskCacheStore)(nil)
)

const cacheDir = "cache"

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCacheStore is a process-local ports.CacheStore. Expired entries
// are dropped lazily on read.
type MemoryCacheStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCacheStore returns an empty in-memory cache.
func NewMemoryCacheStore() *MemoryCacheStore {
	return &MemoryCacheStore{entries: make(map[string]memoryEntry), now: time.Now}
}

// Get returns a copy of the value stored under key.
func (m *MemoryCacheStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

// Set stores a copy of value. A zero expiration never expires.
func (m *MemoryCacheStore) Set(_ context.Context, key string, value []byte, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := memoryEntry{value: append([]byte(nil), value...)}
	if expiration > 0 {
		e.expiresAt = m.now().Add(expiration)
	}
	m.entries[key] = e
	return nil
}

// Delete removes key.
func (m *MemoryCacheStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Clear removes every entry.
func (m *MemoryCacheStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]memoryEntry)
	return nil
}

// diskEntry is the on-disk cache envelope.
type diskEntry struct {
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Value     []byte     `json:"value"`
}

// DiskCacheStore keeps cache entries as JSON files under
// <root>/cache/<key[:2]>/<key>.json so repeated runs share them.
type DiskCacheStore struct {
	dir string
	now func() time.Time
}

// NewDiskCacheStore returns a cache rooted at <root>/cache.
func NewDiskCacheStore(root string) (*DiskCacheStore, error) {
	if root == "" {
		return nil, fmt.Errorf("cache root cannot be empty")
	}
	return &DiskCacheStore{dir: filepath.Join(root, cacheDir), now: time.Now}, nil
}

func (d *DiskCacheStore) path(key string) (string, error) {
	if len(key) < 2 || !validPathSegment(key) {
		return "", fmt.Errorf("invalid cache key %q", key)
	}
	return filepath.Join(d.dir, key[:2], key+".json"), nil
}

// Get reads the entry for key. An unreadable entry reports
// ports.ErrCacheCorrupted.
func (d *DiskCacheStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	path, err := d.path(key)
	if err != nil {
		return nil, false, ports.NewCacheError(key, "get", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, ports.NewCacheError(key, "get", err)
	}

	var e diskEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, false, ports.NewCacheError(key, "get", fmt.Errorf("%w: %v", ports.ErrCacheCorrupted, err))
	}
	if e.ExpiresAt != nil && !d.now().Before(*e.ExpiresAt) {
		_ = os.Remove(path)
		return nil, false, nil
	}
	return e.Value, true, nil
}

// Set writes the entry for key atomically.
func (d *DiskCacheStore) Set(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	path, err := d.path(key)
	if err != nil {
		return ports.NewCacheError(key, "set", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e := diskEntry{Value: value}
	if expiration > 0 {
		at := d.now().Add(expiration).UTC()
		e.ExpiresAt = &at
	}
	data, err := json.Marshal(e)
	if err != nil {
		return ports.NewCacheError(key, "set", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), dirMode); err != nil {
		return ports.NewCacheError(key, "set", err)
	}
	if err := writeFileAtomic(path, data, reportMode); err != nil {
		return ports.NewCacheError(key, "set", err)
	}
	return nil
}

// Delete removes the entry for key. Missing entries are not an error.
func (d *DiskCacheStore) Delete(_ context.Context, key string) error {
	path, err := d.path(key)
	if err != nil {
		return ports.NewCacheError(key, "delete", err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return ports.NewCacheError(key, "delete", err)
	}
	return nil
}

// Clear removes the whole cache directory.
func (d *DiskCacheStore) Clear(context.Context) error {
	if err := os.RemoveAll(d.dir); err != nil {
		return ports.NewCacheError("*", "clear", err)
	}
	return nil
}
