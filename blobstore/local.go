package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	vfs "github.com/hupe1980/vramcache/internal/fs"
	"github.com/hupe1980/vramcache/internal/mmap"
)

const tempPrefix = ".tmp-"

// LocalStore implements BlobStore on a directory tree.
type LocalStore struct {
	root string
	fsys vfs.FileSystem
}

// NewLocalStore creates a LocalStore rooted at the given directory.
func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root, fsys: vfs.Default}
}

// Root returns the directory the store is rooted at.
func (s *LocalStore) Root() string { return s.root }

// Path returns the file system path of name.
func (s *LocalStore) Path(name string) (string, error) {
	if err := ValidName(name); err != nil {
		return "", err
	}
	local := filepath.FromSlash(name)
	if !filepath.IsLocal(local) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.root, local), nil
}

// Open maps the file read-only.
func (s *LocalStore) Open(_ context.Context, name string) (Blob, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	// Decoders read sources front to back.
	v, err := mmap.Open(path, mmap.WithHint(mmap.HintSequential))
	if err != nil {
		return nil, err
	}
	return &localBlob{v: v}, nil
}

// Create writes to a temporary file that is renamed into place on Close.
func (s *LocalStore) Create(_ context.Context, name string) (WritableBlob, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	return vfs.CreateAtomic(s.fsys, path, tempPrefix+"*")
}

// Put writes a blob atomically.
func (s *LocalStore) Put(_ context.Context, name string, data []byte) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}
	return vfs.WriteFileAtomic(s.fsys, path, tempPrefix+"*", data)
}

// Delete removes a blob.
func (s *LocalStore) Delete(_ context.Context, name string) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}
	if err := s.fsys.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// List returns the names below the root that start with prefix.
func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == s.root {
				return fs.SkipAll
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

type localBlob struct {
	v *mmap.View
}

func (b *localBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	return b.v.ReadAt(p, off)
}

func (b *localBlob) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := b.v.WillNeed(off, length); err != nil {
		return nil, err
	}
	return io.NopCloser(io.NewSectionReader(b.v, off, length)), nil
}

func (b *localBlob) Close() error {
	return b.v.Close()
}

func (b *localBlob) Size() int64 {
	return b.v.Len()
}

func (b *localBlob) Bytes() ([]byte, error) {
	return b.v.Region(0, b.v.Len())
}
