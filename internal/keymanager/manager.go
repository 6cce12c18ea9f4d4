package keymanager

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/RevCBH/gafferd/internal/events"
	"github.com/RevCBH/gafferd/internal/gafferr"
	"github.com/RevCBH/gafferd/internal/keystore"
)

// DefaultCacheSize is the number of keys kept warm in memory.
const DefaultCacheSize = 1000

// Manager is the capability-scoped key store: a bounded LRU cache in front
// of a durable keystore.Backend, publishing open/close/set/delete events.
type Manager struct {
	backend keystore.Backend
	cache   *lru.Cache[string, *Key]
	bus     *events.Bus
}

// New constructs a Manager over backend. cacheSize <= 0 uses
// DefaultCacheSize.
func New(backend keystore.Backend, bus *events.Bus, cacheSize int) (*Manager, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, *Key](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Manager{backend: backend, cache: cache, bus: bus}, nil
}

// Open opens the backend and publishes a key.open event.
func (m *Manager) Open() error {
	if err := m.backend.Open(); err != nil {
		return err
	}
	m.publish(events.KeyOpened, "")
	return nil
}

// Close publishes key.close, closes the backend, and empties the cache.
func (m *Manager) Close() error {
	m.publish(events.KeyClosed, "")
	err := m.backend.Close()
	m.cache.Purge()
	return err
}

// AllKeys returns every key, superuser-only in the HTTP control plane.
func (m *Manager) AllKeys() ([]*Key, error) {
	recs, err := m.backend.AllKeys()
	if err != nil {
		return nil, err
	}
	out := make([]*Key, 0, len(recs))
	for _, r := range recs {
		k, err := LoadRecord(r)
		if err != nil {
			continue
		}
		out = append(out, k)
	}
	return out, nil
}

// SetKey creates a new key under an optional parent (empty for a top-level
// user key) and publishes key.set. Returns gafferr KeyConflict if the key
// already exists, or gafferr KeyNotFound if parent is non-empty and does
// not already exist (enforced by the backend).
func (m *Manager) SetKey(k *Key, parent string) error {
	if err := m.backend.SetKey(k.APIKey, k.Dump(), parent); err != nil {
		return err
	}
	m.cache.Add(k.APIKey, k)
	m.publish(events.KeySet, k.APIKey)
	return nil
}

// GetKey returns the key, consulting the cache first. A cache miss that
// also misses the backend returns gafferr KeyNotFound. Eviction follows
// the LRU's own least-recently-used policy.
func (m *Manager) GetKey(key string) (*Key, error) {
	if k, ok := m.cache.Get(key); ok {
		return k, nil
	}

	rec, err := m.backend.GetKey(key)
	if err != nil {
		return nil, err
	}

	k, err := LoadRecord(rec)
	if err != nil {
		return nil, err
	}

	m.cache.Add(key, k)
	return k, nil
}

// HasKey reports whether key exists, without raising KeyNotFound.
func (m *Manager) HasKey(key string) (bool, error) {
	if _, ok := m.cache.Get(key); ok {
		return true, nil
	}
	return m.backend.HasKey(key)
}

// AllSubkeys returns every key whose parent is the given key.
func (m *Manager) AllSubkeys(key string) ([]*Key, error) {
	recs, err := m.backend.AllSubkeys(key)
	if err != nil {
		return nil, err
	}
	out := make([]*Key, 0, len(recs))
	for _, r := range recs {
		k, err := LoadRecord(r)
		if err != nil {
			continue
		}
		out = append(out, k)
	}
	return out, nil
}

// DeleteKey removes key and, recursively, every subkey beneath it (cascade
// delete to arbitrary depth), evicting each from the cache as it goes.
func (m *Manager) DeleteKey(key string) error {
	subkeys, err := m.backend.AllSubkeys(key)
	if err != nil {
		return err
	}
	for _, sub := range subkeys {
		if err := m.DeleteKey(sub.Key); err != nil {
			return err
		}
	}

	m.cache.Remove(key)
	if err := m.backend.DeleteKey(key); err != nil {
		return err
	}
	m.publish(events.KeyDelete, key)
	return nil
}

// Can evaluates permission for what against an already-loaded key. Returns
// gafferr KeyNotFound for a nil key, or UnknownPermission as appropriate.
func (m *Manager) Can(key *Key, permission, what string) (bool, error) {
	if key == nil {
		return false, gafferr.KeyNotFound("")
	}
	return key.Can(permission, what)
}

func (m *Manager) publish(t events.EventType, key string) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(events.New(t, "").WithPayload(key))
}
