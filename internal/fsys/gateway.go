// Package fsys is the file-system gateway used by the VFS handlers.
//
// All file-system access made on behalf of a request goes through a Gateway,
// so handlers can run against the local disk in production and against an
// in-memory file system in tests. Both variants are backed by go-billy.
package fsys

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

// ErrUnsupported is returned for operations the underlying file system
// cannot perform.
var ErrUnsupported = errors.New("operation not supported")

// Entry is a snapshot of a file or directory's metadata, read fresh from the
// file system.
type Entry struct {
	Name     string
	Path     string
	IsDir    bool
	Size     int64
	Created  time.Time
	Modified time.Time
}

// File is a readable, seekable file stream.
type File interface {
	io.Reader
	io.ReaderAt
	io.Seeker
	io.Closer
}

// Gateway is the set of file-system capabilities the VFS needs. Paths are
// absolute local paths.
type Gateway interface {
	// Stat returns metadata for name. The error satisfies
	// errors.Is(err, fs.ErrNotExist) when nothing exists at name.
	Stat(name string) (Entry, error)
	// ReadDir returns the immediate children of the directory name in
	// enumeration order.
	ReadDir(name string) ([]Entry, error)

	// OpenRead opens name for reading. Readers share the file with other
	// readers and writers.
	OpenRead(name string) (File, error)
	// OpenWrite opens name for exclusive writing, truncating any existing
	// content. Parent directories are created when createParents is set.
	// It fails with ErrLocked rather than waiting for another holder.
	OpenWrite(name string, createParents bool) (io.WriteCloser, error)
	// OpenDelete opens name exclusively to confirm it can be removed. It
	// fails with ErrLocked while a writer holds the file.
	OpenDelete(name string) (io.Closer, error)

	// Remove removes a file or an empty directory.
	Remove(name string) error
	// RemoveDir removes the directory name, and its contents when recursive
	// is set. The first failure is returned.
	RemoveDir(name string, recursive bool) error
	// RemoveAll removes name and everything below it. With ignoreErrors set
	// individual failures are skipped and nil is returned.
	RemoveAll(name string, ignoreErrors bool) error

	MkdirAll(name string) error
	// Chtimes sets the modification time of name.
	Chtimes(name string, mtime time.Time) error
}

// BillyGateway implements Gateway on top of a billy.Filesystem.
type BillyGateway struct {
	bfs   billy.Filesystem
	local bool
	locks *lockTable
}

// NewLocal returns a Gateway over the local disk. Paths are interpreted as
// absolute OS paths.
func NewLocal() *BillyGateway {
	return &BillyGateway{bfs: osfs.New("/"), local: true, locks: newLockTable()}
}

// NewMemory returns an empty in-memory Gateway.
func NewMemory() *BillyGateway {
	return &BillyGateway{bfs: memfs.New(), locks: newLockTable()}
}

func (g *BillyGateway) entry(name string, fi fs.FileInfo) Entry {
	e := Entry{
		Name:     fi.Name(),
		Path:     name,
		IsDir:    fi.IsDir(),
		Modified: fi.ModTime().UTC(),
		Created:  fi.ModTime().UTC(),
	}
	if !e.IsDir {
		e.Size = fi.Size()
	}
	if g.local {
		e.Created = birthTime(name, fi)
	}
	return e
}

// Stat returns metadata for name.
func (g *BillyGateway) Stat(name string) (Entry, error) {
	fi, err := g.bfs.Stat(name)
	if err != nil {
		return Entry{}, err
	}
	return g.entry(name, fi), nil
}

// ReadDir returns the immediate children of name.
func (g *BillyGateway) ReadDir(name string) ([]Entry, error) {
	infos, err := g.bfs.ReadDir(name)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(infos))
	for _, fi := range infos {
		out = append(out, g.entry(g.bfs.Join(name, fi.Name()), fi))
	}
	return out, nil
}

// OpenRead opens name for shared reading.
func (g *BillyGateway) OpenRead(name string) (File, error) {
	f, err := g.bfs.Open(name)
	if err != nil {
		return nil, err
	}
	if fi, err := g.bfs.Stat(name); err == nil && fi.IsDir() {
		_ = f.Close()
		return nil, &fs.PathError{Op: "open", Path: name, Err: errors.New("is a directory")}
	}
	return f, nil
}

// OpenWrite opens name for exclusive writing. It fails with ErrLocked
// instead of waiting when another writer or deleter holds the file.
func (g *BillyGateway) OpenWrite(name string, createParents bool) (io.WriteCloser, error) {
	if createParents {
		if err := g.bfs.MkdirAll(filepath.Dir(name), 0o755); err != nil {
			return nil, err
		}
	}
	f, err := g.openExclusive(name, os.O_WRONLY|os.O_CREATE)
	if err != nil {
		return nil, err
	}
	// truncate under the lock
	if err := f.Truncate(0); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

// OpenDelete opens name exclusively to confirm nobody is writing it. It
// fails with ErrLocked when a writer holds the file.
func (g *BillyGateway) OpenDelete(name string) (io.Closer, error) {
	f, err := g.openExclusive(name, os.O_RDONLY)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (g *BillyGateway) openExclusive(name string, flag int) (*heldFile, error) {
	release, err := g.locks.tryAcquire(name)
	if err != nil {
		return nil, err
	}
	h, err := g.openHandle(name, flag)
	if err != nil {
		release()
		return nil, err
	}
	return &heldFile{handle: h, release: release}, nil
}

func (g *BillyGateway) openHandle(name string, flag int) (handle, error) {
	if !g.local {
		return g.bfs.OpenFile(name, flag, 0o644)
	}
	f, err := os.OpenFile(name, flag, 0o644)
	if err != nil {
		return nil, err
	}
	if err := tryFlock(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

// Remove removes a file or an empty directory.
func (g *BillyGateway) Remove(name string) error {
	return g.bfs.Remove(name)
}

// RemoveDir removes the directory name.
func (g *BillyGateway) RemoveDir(name string, recursive bool) error {
	fi, err := g.bfs.Stat(name)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return &fs.PathError{Op: "rmdir", Path: name, Err: errors.New("not a directory")}
	}
	if !recursive {
		return g.bfs.Remove(name)
	}
	return g.RemoveAll(name, false)
}

// RemoveAll removes name and everything below it.
func (g *BillyGateway) RemoveAll(name string, ignoreErrors bool) error {
	if !ignoreErrors {
		return util.RemoveAll(g.bfs, name)
	}
	g.removeSafe(name)
	return nil
}

func (g *BillyGateway) removeSafe(name string) {
	fi, err := g.bfs.Lstat(name)
	if err != nil {
		return
	}
	if fi.IsDir() {
		if children, err := g.bfs.ReadDir(name); err == nil {
			for _, c := range children {
				g.removeSafe(g.bfs.Join(name, c.Name()))
			}
		}
	}
	_ = g.bfs.Remove(name)
}

// MkdirAll creates name and any missing parents.
func (g *BillyGateway) MkdirAll(name string) error {
	return g.bfs.MkdirAll(name, 0o755)
}

// Chtimes sets the modification time of name. The access time is set to the
// same value.
func (g *BillyGateway) Chtimes(name string, mtime time.Time) error {
	if g.local {
		return os.Chtimes(name, mtime, mtime)
	}
	if ch, ok := g.bfs.(billy.Change); ok {
		return ch.Chtimes(name, mtime, mtime)
	}
	return ErrUnsupported
}

// IsNotExist reports whether err means the path does not exist.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// handle is the part of *os.File and billy.File an exclusive open needs.
type handle interface {
	io.WriteCloser
	Truncate(size int64) error
}

// heldFile releases the gateway lock on Close.
type heldFile struct {
	handle
	release func()
}

func (f *heldFile) Close() error {
	err := f.handle.Close()
	f.release()
	return err
}
