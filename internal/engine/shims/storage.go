package shims

import (
	"strings"

	"github.com/GriffinCanCode/WalletKit/bridge/internal/storage"
	"github.com/bytedance/sonic"
)

// Storage backs localStorage. Script keys are namespaced under prefix in
// the underlying store.
type Storage struct {
	store  storage.Store
	prefix string
}

// NewStorage creates the storage shim
func NewStorage(store storage.Store, prefix string) *Storage {
	return &Storage{store: store, prefix: prefix}
}

// Get returns the value or nil (null in script) when absent
func (s *Storage) Get(key string) (any, error) {
	v, ok, err := s.store.Get(s.prefix + key)
	if err != nil || !ok {
		return nil, err
	}
	return v, nil
}

func (s *Storage) Set(key, value string) error {
	return s.store.Set(s.prefix+key, value)
}

func (s *Storage) Remove(key string) error {
	return s.store.Remove(s.prefix + key)
}

// Clear removes only the keys in this namespace
func (s *Storage) Clear() error {
	return s.store.Clear(s.prefix)
}

// Keys returns a JSON array of script-visible keys
func (s *Storage) Keys() (string, error) {
	keys, err := s.store.Keys(s.prefix)
	if err != nil {
		return "", err
	}
	for i, k := range keys {
		keys[i] = strings.TrimPrefix(k, s.prefix)
	}
	return sonic.MarshalString(keys)
}
