package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

const (
	// BudgetModule is the module holding cache settings.
	BudgetModule = "ImagesCollection"
	// BudgetKey holds the shared device budget in bytes.
	BudgetKey = "MaxDeviceOccupancy"
	// DefaultBudget is used when no budget has been saved yet.
	DefaultBudget int64 = 768 << 20
)

// ErrNotFound is returned by Get for settings that were never set.
var ErrNotFound = errors.New("setting not found")

// Store reads and writes settings. Implementations are safe for concurrent use.
type Store interface {
	Get(ctx context.Context, module, key string) (string, error)
	Set(ctx context.Context, module, key, value string) error
	Close() error
}

// LoadBudget returns the saved device budget, or DefaultBudget if none is saved.
func LoadBudget(ctx context.Context, s Store) (int64, error) {
	v, err := s.Get(ctx, BudgetModule, BudgetKey)
	if errors.Is(err, ErrNotFound) {
		return DefaultBudget, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("settings: %s/%s: invalid budget %q", BudgetModule, BudgetKey, v)
	}
	return n, nil
}

// SaveBudget stores the device budget.
func SaveBudget(ctx context.Context, s Store, n int64) error {
	if n < 0 {
		return fmt.Errorf("settings: negative budget %d", n)
	}
	return s.Set(ctx, BudgetModule, BudgetKey, strconv.FormatInt(n, 10))
}

// Open returns a Store for uri:
//
//	memory:                  MemoryStore
//	file:///etc/app.json     FileStore (also any path ending in .json)
//	sqlite:///var/app.db     SQLiteStore (also .db, .sqlite)
//	dynamodb://table         DynamoStore using the default AWS config
func Open(ctx context.Context, uri string) (Store, error) {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		switch {
		case uri == "memory:" || uri == "":
			return NewMemoryStore(), nil
		case strings.HasSuffix(uri, ".json"):
			return OpenFile(uri)
		case strings.HasSuffix(uri, ".db"), strings.HasSuffix(uri, ".sqlite"):
			return OpenSQLite(ctx, uri)
		}
		return nil, fmt.Errorf("settings: cannot infer backend for %q", uri)
	}

	switch scheme {
	case "file":
		return OpenFile(rest)
	case "sqlite":
		return OpenSQLite(ctx, rest)
	case "dynamodb":
		return DialDynamo(ctx, rest)
	case "memory":
		return NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("settings: unknown scheme %q", scheme)
}

// MemoryStore keeps settings in memory.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func memoryKey(module, key string) string { return module + "\x00" + key }

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, module, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[memoryKey(module, key)]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set implements Store.
func (m *MemoryStore) Set(_ context.Context, module, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[memoryKey(module, key)] = value
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }
