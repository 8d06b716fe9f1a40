package state

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/renameio"
	"github.com/rotisserie/eris"
)

// FileStore keeps each key in its own file under a directory. Writes go to
// a temporary file that is renamed over the target.
type FileStore struct {
	dir string
}

// NewFileStore returns a FileStore rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "state: create dir %s", dir)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the directory the store writes to.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) {
		return "", eris.Errorf("state: invalid key %q", key)
	}
	return filepath.Join(s.dir, key), nil
}

// Get implements Store.
func (s *FileStore) Get(key string) ([]byte, bool, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, false, &PersistenceError{Op: "read", Key: key, Err: err}
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &PersistenceError{Op: "read", Key: key, Err: err}
	}
	return data, true, nil
}

// Set implements Store.
func (s *FileStore) Set(key string, value []byte) error {
	p, err := s.path(key)
	if err != nil {
		return &PersistenceError{Op: "write", Key: key, Err: err}
	}
	if err := renameio.WriteFile(p, value, 0o644); err != nil {
		return &PersistenceError{Op: "write", Key: key, Err: err}
	}
	return nil
}

// ErrLocked is returned by Lock when another process holds the lock.
var ErrLocked = eris.New("state: directory is locked by another process")

// Lock is an exclusive advisory lock on a state directory.
type Lock struct {
	fl *flock.Flock
}

// AcquireLock takes an exclusive, non-blocking lock on dir/name. It fails
// with ErrLocked when another process already holds it.
func AcquireLock(dir, name string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "state: create dir %s", dir)
	}
	fl := flock.New(filepath.Join(dir, name))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, eris.Wrapf(err, "state: lock %s", fl.Path())
	}
	if !ok {
		return nil, eris.Wrapf(ErrLocked, "state: lock %s", fl.Path())
	}
	return &Lock{fl: fl}, nil
}

// Release drops the lock.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return eris.Wrap(l.fl.Unlock(), "state: unlock")
}
