package fsys

import (
	"errors"
	"io/fs"
	"path/filepath"
	"sync"
)

// ErrLocked is returned when another writer or deleter holds the file.
var ErrLocked = errors.New("file is locked")

// lockTable tracks the paths opened for writing or deletion through one
// gateway. Acquisition never waits.
type lockTable struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newLockTable() *lockTable {
	return &lockTable{held: make(map[string]struct{})}
}

func (t *lockTable) tryAcquire(name string) (func(), error) {
	key := filepath.Clean(name)
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.held[key]; ok {
		return nil, &fs.PathError{Op: "lock", Path: name, Err: ErrLocked}
	}
	t.held[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.held, key)
			t.mu.Unlock()
		})
	}, nil
}
