package storage

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/zstd"
)

// FileStore is a MemoryStore persisted to a single JSON document after each
// mutation. Paths ending in ".zst" are zstd-compressed.
type FileStore struct {
	path     string
	compress bool

	mu     sync.Mutex
	mem    *MemoryStore
	closed bool
}

// OpenFile loads the store at path, creating parent directories as needed.
// A missing file yields an empty store.
func OpenFile(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	fs := &FileStore{
		path:     path,
		compress: strings.HasSuffix(path, ".zst"),
		mem:      NewMemoryStore(),
	}

	raw, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return fs, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read storage file: %w", err)
	}

	if fs.compress {
		if raw, err = decompress(raw); err != nil {
			return nil, fmt.Errorf("failed to decompress storage file: %w", err)
		}
	}
	if len(raw) > 0 {
		if err := sonic.Unmarshal(raw, &fs.mem.data); err != nil {
			return nil, fmt.Errorf("failed to decode storage file: %w", err)
		}
		if fs.mem.data == nil {
			fs.mem.data = make(map[string]string)
		}
	}
	return fs, nil
}

// Path returns the backing file path
func (f *FileStore) Path() string { return f.path }

func (f *FileStore) Get(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return "", false, ErrClosed
	}
	return f.mem.Get(key)
}

func (f *FileStore) Keys(prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}
	return f.mem.Keys(prefix)
}

func (f *FileStore) Set(key, value string) error {
	return f.mutate(func(m *MemoryStore) error { return m.Set(key, value) })
}

func (f *FileStore) Remove(key string) error {
	return f.mutate(func(m *MemoryStore) error { return m.Remove(key) })
}

func (f *FileStore) Clear(prefix string) error {
	return f.mutate(func(m *MemoryStore) error { return m.Clear(prefix) })
}

// Close flushes nothing (every mutation is already durable) and rejects
// further use.
func (f *FileStore) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *FileStore) mutate(fn func(*MemoryStore) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	if err := fn(f.mem); err != nil {
		return err
	}
	return f.flush()
}

// flush writes the snapshot to a temp file and renames it over the target so
// readers never observe a partial document.
func (f *FileStore) flush() error {
	f.mem.mu.RLock()
	data, err := sonic.Marshal(f.mem.snapshot())
	f.mem.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode storage: %w", err)
	}

	if f.compress {
		if data, err = compress(data); err != nil {
			return fmt.Errorf("failed to compress storage: %w", err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".storage-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write storage: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync storage: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close storage: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace storage file: %w", err)
	}
	return nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := enc.Write(data); err != nil {
		enc.Close()
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return io.ReadAll(dec)
}
