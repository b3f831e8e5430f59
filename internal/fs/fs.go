package fs

import (
	"errors"
	"io"
	"os"
	"path/filepath"
)

// File is a file opened for writing.
type File interface {
	io.Writer
	io.Closer
	Sync() error
	Name() string
}

// FileSystem is the subset of file system operations atomic writes need.
type FileSystem interface {
	CreateTemp(dir, pattern string) (File, error)
	Rename(oldpath, newpath string) error
	Remove(name string) error
	MkdirAll(path string, perm os.FileMode) error
}

// LocalFS implements FileSystem using the local os package.
type LocalFS struct{}

func (LocalFS) CreateTemp(dir, pattern string) (File, error) {
	return os.CreateTemp(dir, pattern)
}

func (LocalFS) Rename(oldpath, newpath string) error { return os.Rename(oldpath, newpath) }
func (LocalFS) Remove(name string) error             { return os.Remove(name) }
func (LocalFS) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

// Default is the default local file system.
var Default FileSystem = LocalFS{}

// ErrFinished is returned when an AtomicFile is used after Close or Abort.
var ErrFinished = errors.New("fs: atomic file already finished")

// AtomicFile collects writes in a temporary file next to its target and
// renames it into place on Close. Readers never see a partial file.
type AtomicFile struct {
	fsys FileSystem
	f    File
	path string
	done bool
}

// CreateAtomic starts an atomic write of path. pattern names the temporary
// file as in os.CreateTemp.
func CreateAtomic(fsys FileSystem, path, pattern string) (*AtomicFile, error) {
	if fsys == nil {
		fsys = Default
	}
	dir := filepath.Dir(path)
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := fsys.CreateTemp(dir, pattern)
	if err != nil {
		return nil, err
	}
	return &AtomicFile{fsys: fsys, f: f, path: path}, nil
}

func (a *AtomicFile) Write(p []byte) (int, error) {
	if a.done {
		return 0, ErrFinished
	}
	return a.f.Write(p)
}

// Sync flushes the temporary file.
func (a *AtomicFile) Sync() error {
	if a.done {
		return ErrFinished
	}
	return a.f.Sync()
}

// Close syncs the temporary file and renames it to the target.
// On failure the temporary file is removed and the target is untouched.
func (a *AtomicFile) Close() error {
	if a.done {
		return nil
	}
	a.done = true

	if err := a.f.Sync(); err != nil {
		_ = a.f.Close()
		_ = a.fsys.Remove(a.f.Name())
		return err
	}
	if err := a.f.Close(); err != nil {
		_ = a.fsys.Remove(a.f.Name())
		return err
	}
	if err := a.fsys.Rename(a.f.Name(), a.path); err != nil {
		_ = a.fsys.Remove(a.f.Name())
		return err
	}
	return nil
}

// Abort discards the write.
func (a *AtomicFile) Abort() error {
	if a.done {
		return nil
	}
	a.done = true
	_ = a.f.Close()
	return a.fsys.Remove(a.f.Name())
}

// WriteFileAtomic replaces path with data.
func WriteFileAtomic(fsys FileSystem, path, pattern string, data []byte) error {
	a, err := CreateAtomic(fsys, path, pattern)
	if err != nil {
		return err
	}
	if _, err := a.Write(data); err != nil {
		_ = a.Abort()
		return err
	}
	return a.Close()
}
