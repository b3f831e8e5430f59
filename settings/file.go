package settings

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/hupe1980/vramcache/codec"
	vfs "github.com/hupe1980/vramcache/internal/fs"
)

type fileDocument struct {
	Codec   string                       `json:"codec"`
	Modules map[string]map[string]string `json:"modules"`
}

// FileStore keeps settings in a single JSON document.
// Every Set rewrites the file atomically.
type FileStore struct {
	mu   sync.Mutex
	path string
	doc  fileDocument
	fsys vfs.FileSystem
}

// OpenFile loads path, or starts empty when the file does not exist.
func OpenFile(path string) (*FileStore, error) {
	s := &FileStore{
		path: path,
		doc:  fileDocument{Codec: codec.Default.Name(), Modules: map[string]map[string]string{}},
		fsys: vfs.Default,
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}

	if err := codec.Default.Unmarshal(data, &s.doc); err != nil {
		return nil, fmt.Errorf("settings: %s: %w", path, err)
	}
	if s.doc.Codec != "" && s.doc.Codec != codec.Default.Name() {
		c, ok := codec.ByName(s.doc.Codec)
		if !ok {
			return nil, fmt.Errorf("settings: %s: unknown codec %q", path, s.doc.Codec)
		}
		if err := c.Unmarshal(data, &s.doc); err != nil {
			return nil, fmt.Errorf("settings: %s: %w", path, err)
		}
	}
	if s.doc.Modules == nil {
		s.doc.Modules = map[string]map[string]string{}
	}
	return s, nil
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

// Get implements Store.
func (s *FileStore) Get(_ context.Context, module, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.doc.Modules[module][key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set implements Store.
func (s *FileStore) Set(_ context.Context, module, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.doc.Modules[module]
	if m == nil {
		m = map[string]string{}
		s.doc.Modules[module] = m
	}
	prev, had := m[key]
	m[key] = value

	if err := s.flushLocked(); err != nil {
		if had {
			m[key] = prev
		} else {
			delete(m, key)
		}
		return err
	}
	return nil
}

func (s *FileStore) flushLocked() error {
	s.doc.Codec = codec.Default.Name()
	data, err := codec.GoJSON{}.MarshalIndent(s.doc)
	if err != nil {
		return err
	}

	return vfs.WriteFileAtomic(s.fsys, s.path, ".settings-*", data)
}

// Close implements Store.
func (s *FileStore) Close() error { return nil }
