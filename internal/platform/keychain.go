package platform

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

var ErrNotFound = errors.New("device key not found")

// DeviceStore persists small device-local values across restarts. Nothing
// written here ever leaves the machine.
type DeviceStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, val []byte) error
	Delete(ctx context.Context, key string) error
}

var deviceBucket = []byte("device")

type BoltDeviceStore struct {
	db *bbolt.DB
}

// OpenBoltDeviceStore opens (creating if needed) the device database at path.
func OpenBoltDeviceStore(path string) (*BoltDeviceStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(deviceBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltDeviceStore{db: db}, nil
}

func (s *BoltDeviceStore) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(deviceBucket).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	return out, err
}

func (s *BoltDeviceStore) Put(_ context.Context, key string, val []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(deviceBucket).Put([]byte(key), val)
	})
}

func (s *BoltDeviceStore) Delete(_ context.Context, key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(deviceBucket).Delete([]byte(key))
	})
}

func (s *BoltDeviceStore) Close() error { return s.db.Close() }

type MemoryDeviceStore struct {
	mu   sync.Mutex
	vals map[string][]byte
}

func NewMemoryDeviceStore() *MemoryDeviceStore {
	return &MemoryDeviceStore{vals: map[string][]byte{}}
}

func (m *MemoryDeviceStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vals[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryDeviceStore) Put(_ context.Context, key string, val []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals[key] = append([]byte(nil), val...)
	return nil
}

func (m *MemoryDeviceStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.vals, key)
	return nil
}
