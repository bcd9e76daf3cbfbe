package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/panchalshubham0608/securekey/internal/crypto"
)

// MemoryStore keeps every collection in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	meta   map[string]CryptoMetadata
	items  map[string]VaultItem
	legacy map[string]LegacyItem
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		meta:   map[string]CryptoMetadata{},
		items:  map[string]VaultItem{},
		legacy: map[string]LegacyItem{},
	}
}

func (m *MemoryStore) GetMetadata(_ context.Context, uid string) (CryptoMetadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	md, ok := m.meta[uid]
	if !ok {
		return CryptoMetadata{}, ErrNotFound
	}
	return md, nil
}

func (m *MemoryStore) CreateMetadata(_ context.Context, md CryptoMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.meta[md.UID]; ok {
		return ErrDuplicate
	}
	m.meta[md.UID] = md
	return nil
}

func (m *MemoryStore) FindItems(_ context.Context, f ItemFilter) ([]VaultItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []VaultItem
	for _, it := range m.items {
		if it.Owner != f.Owner {
			continue
		}
		if f.Account != "" && it.Account != f.Account {
			continue
		}
		if f.Username != "" && it.Username != f.Username {
			continue
		}
		out = append(out, cloneItem(it))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) GetItem(_ context.Context, owner, id string) (VaultItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[id]
	if !ok || it.Owner != owner {
		return VaultItem{}, ErrNotFound
	}
	return cloneItem(it), nil
}

func (m *MemoryStore) AddItem(_ context.Context, it VaultItem) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	if _, ok := m.items[it.ID]; ok {
		return "", ErrDuplicate
	}
	m.items[it.ID] = cloneItem(it)
	return it.ID, nil
}

func (m *MemoryStore) UpdatePassword(_ context.Context, owner, id string, pw crypto.Envelope, prev HistoryEntry, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok || it.Owner != owner {
		return ErrNotFound
	}
	it.EncryptedPassword = pw
	it.History = append(append([]HistoryEntry(nil), it.History...), prev)
	it.UpdatedAt = at
	m.items[id] = it
	return nil
}

func (m *MemoryStore) DeleteItem(_ context.Context, owner, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok || it.Owner != owner {
		return ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *MemoryStore) FindLegacy(_ context.Context, owner string, pendingOnly bool) ([]LegacyItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []LegacyItem
	for _, it := range m.legacy {
		if it.Owner != owner || (pendingOnly && it.Migrated) {
			continue
		}
		it.History = append([]LegacyHistoryEntry(nil), it.History...)
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) AddLegacy(_ context.Context, it LegacyItem) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	if _, ok := m.legacy[it.ID]; ok {
		return "", ErrDuplicate
	}
	it.History = append([]LegacyHistoryEntry(nil), it.History...)
	m.legacy[it.ID] = it
	return it.ID, nil
}

func (m *MemoryStore) MarkMigrated(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.legacy[id]
	if !ok {
		return ErrNotFound
	}
	it.Migrated = true
	it.MigratedAt = &at
	m.legacy[id] = it
	return nil
}

func (m *MemoryStore) Close(context.Context) error { return nil }

func cloneItem(it VaultItem) VaultItem {
	it.History = append([]HistoryEntry(nil), it.History...)
	return it
}
