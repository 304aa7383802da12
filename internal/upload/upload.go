// Package upload spools request bodies to disk so they can be read with
// random access, as zip archives require.
//
// Spool files live in <stateDir>/uploads/<id>.part and are removed once the
// caller is done with them. Leftovers from an interrupted process are
// removed by New.
package upload

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"vfsgate/internal/logging"
	"vfsgate/internal/transfer"
)

// ErrTooLarge is returned when a body exceeds the configured limit.
var ErrTooLarge = errors.New("upload exceeds size limit")

// Manager owns the spool directory.
type Manager struct {
	dir   string
	limit int64
}

// Spool is a body stored on disk.
type Spool struct {
	ID   string
	Size int64
	f    *os.File
	path string
}

// New creates the spool directory under stateDir. limit bounds the size of a
// single spooled body; zero or less means unbounded.
func New(stateDir string, limit int64) (*Manager, error) {
	dir := filepath.Join(stateDir, "uploads")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	m := &Manager{dir: dir, limit: limit}
	m.removeStale()
	return m, nil
}

// Dir returns the spool directory.
func (m *Manager) Dir() string { return m.dir }

func (m *Manager) removeStale() {
	ents, err := os.ReadDir(m.dir)
	if err != nil {
		return
	}
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".part") {
			continue
		}
		if err := os.Remove(filepath.Join(m.dir, e.Name())); err == nil {
			logging.L().Debug("removed stale spool file", zap.String("name", e.Name()))
		}
	}
}

// Store copies body into a new spool file. The returned Spool must be
// closed, which also removes the file.
func (m *Manager) Store(ctx context.Context, body io.Reader) (*Spool, error) {
	// The directory may have been removed since New.
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, err
	}
	id := uuid.NewString()
	p := filepath.Join(m.dir, id+".part")
	f, err := os.OpenFile(p, os.O_CREATE|os.O_RDWR|os.O_EXCL, 0o600)
	if err != nil {
		return nil, err
	}
	s := &Spool{ID: id, f: f, path: p}

	src := body
	if m.limit > 0 {
		src = io.LimitReader(body, m.limit+1)
	}
	n, err := transfer.Copy(ctx, f, src)
	if err == nil && m.limit > 0 && n > m.limit {
		err = ErrTooLarge
	}
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.Size = n
	return s, nil
}

// ReadAt implements io.ReaderAt over the spooled content.
func (s *Spool) ReadAt(p []byte, off int64) (int, error) {
	return s.f.ReadAt(p, off)
}

// Close closes and removes the spool file.
func (s *Spool) Close() error {
	cerr := s.f.Close()
	rerr := os.Remove(s.path)
	if errors.Is(rerr, os.ErrNotExist) {
		rerr = nil
	}
	return errors.Join(cerr, rerr)
}
