package fsys

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, g Gateway, name, content string) {
	t.Helper()
	w, err := g.OpenWrite(name, true)
	require.NoError(t, err)
	_, err = io.WriteString(w, content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func readFile(t *testing.T, g Gateway, name string) string {
	t.Helper()
	f, err := g.OpenRead(name)
	require.NoError(t, err)
	defer f.Close()
	b, err := io.ReadAll(f)
	require.NoError(t, err)
	return string(b)
}

func gateways(t *testing.T) map[string]struct {
	g    Gateway
	root string
} {
	return map[string]struct {
		g    Gateway
		root string
	}{
		"memory": {g: NewMemory(), root: "/data"},
		"local":  {g: NewLocal(), root: t.TempDir()},
	}
}

func TestGateway_WriteTruncatesAndCreatesParents(t *testing.T) {
	for name, tc := range gateways(t) {
		t.Run(name, func(t *testing.T) {
			p := filepath.Join(tc.root, "a", "b", "c.txt")
			writeFile(t, tc.g, p, "hello world")
			writeFile(t, tc.g, p, "bye")
			assert.Equal(t, "bye", readFile(t, tc.g, p))

			e, err := tc.g.Stat(p)
			require.NoError(t, err)
			assert.False(t, e.IsDir)
			assert.Equal(t, int64(3), e.Size)
			assert.Equal(t, "c.txt", e.Name)
		})
	}
}

func TestGateway_WriteWithoutParents(t *testing.T) {
	for name, tc := range gateways(t) {
		t.Run(name, func(t *testing.T) {
			_, err := tc.g.OpenWrite(filepath.Join(tc.root, "missing", "x.txt"), false)
			assert.Error(t, err)
		})
	}
}

func TestGateway_StatMissing(t *testing.T) {
	for name, tc := range gateways(t) {
		t.Run(name, func(t *testing.T) {
			_, err := tc.g.Stat(filepath.Join(tc.root, "nope"))
			require.Error(t, err)
			assert.True(t, IsNotExist(err))
		})
	}
}

func TestGateway_ReadDir(t *testing.T) {
	for name, tc := range gateways(t) {
		t.Run(name, func(t *testing.T) {
			writeFile(t, tc.g, filepath.Join(tc.root, "x.txt"), "x")
			require.NoError(t, tc.g.MkdirAll(filepath.Join(tc.root, "sub")))

			entries, err := tc.g.ReadDir(tc.root)
			require.NoError(t, err)
			sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
			require.Len(t, entries, 2)
			assert.Equal(t, "sub", entries[0].Name)
			assert.True(t, entries[0].IsDir)
			assert.Equal(t, int64(0), entries[0].Size)
			assert.Equal(t, "x.txt", entries[1].Name)
			assert.Equal(t, filepath.Join(tc.root, "x.txt"), entries[1].Path)
		})
	}
}

func TestGateway_OpenReadDirectory(t *testing.T) {
	for name, tc := range gateways(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, tc.g.MkdirAll(filepath.Join(tc.root, "d")))
			_, err := tc.g.OpenRead(filepath.Join(tc.root, "d"))
			assert.Error(t, err)
		})
	}
}

func TestGateway_RemoveDir(t *testing.T) {
	for name, tc := range gateways(t) {
		t.Run(name, func(t *testing.T) {
			dir := filepath.Join(tc.root, "tree")
			writeFile(t, tc.g, filepath.Join(dir, "a", "1.txt"), "1")
			writeFile(t, tc.g, filepath.Join(dir, "2.txt"), "2")

			assert.Error(t, tc.g.RemoveDir(dir, false))
			require.NoError(t, tc.g.RemoveDir(dir, true))
			_, err := tc.g.Stat(dir)
			assert.True(t, IsNotExist(err))
		})
	}
}

func TestGateway_RemoveDirOnFile(t *testing.T) {
	for name, tc := range gateways(t) {
		t.Run(name, func(t *testing.T) {
			p := filepath.Join(tc.root, "f.txt")
			writeFile(t, tc.g, p, "f")
			assert.Error(t, tc.g.RemoveDir(p, true))
		})
	}
}

func TestGateway_RemoveAllIgnoreErrors(t *testing.T) {
	for name, tc := range gateways(t) {
		t.Run(name, func(t *testing.T) {
			dir := filepath.Join(tc.root, "tree")
			writeFile(t, tc.g, filepath.Join(dir, "a", "b", "1.txt"), "1")
			require.NoError(t, tc.g.RemoveAll(dir, true))
			_, err := tc.g.Stat(dir)
			assert.True(t, IsNotExist(err))

			assert.NoError(t, tc.g.RemoveAll(filepath.Join(tc.root, "missing"), true))
		})
	}
}

func TestLocalGateway_Chtimes(t *testing.T) {
	g := NewLocal()
	p := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))

	mtime := time.Date(2001, 2, 3, 4, 5, 6, 0, time.UTC)
	require.NoError(t, g.Chtimes(p, mtime))

	e, err := g.Stat(p)
	require.NoError(t, err)
	assert.True(t, e.Modified.Equal(mtime))
	assert.Equal(t, time.UTC, e.Modified.Location())
	assert.False(t, e.Created.IsZero())
}

func TestGateway_OpenDelete(t *testing.T) {
	g := NewMemory()
	_, err := g.OpenDelete("/missing")
	assert.True(t, IsNotExist(err))

	writeFile(t, g, "/f", "x")
	c, err := g.OpenDelete("/f")
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, g.Remove("/f"))
}

func TestGateway_ExclusiveOpensDoNotWait(t *testing.T) {
	for name, tc := range gateways(t) {
		t.Run(name, func(t *testing.T) {
			p := filepath.Join(tc.root, "busy.txt")
			writeFile(t, tc.g, p, "v1")

			w, err := tc.g.OpenWrite(p, false)
			require.NoError(t, err)

			_, err = tc.g.OpenWrite(p, false)
			assert.True(t, errors.Is(err, ErrLocked), "second writer: %v", err)
			_, err = tc.g.OpenDelete(p)
			assert.True(t, errors.Is(err, ErrLocked), "deleter: %v", err)

			_, err = io.WriteString(w, "v2")
			require.NoError(t, err)
			require.NoError(t, w.Close())
			assert.Equal(t, "v2", readFile(t, tc.g, p))

			d, err := tc.g.OpenDelete(p)
			require.NoError(t, err)
			_, err = tc.g.OpenWrite(p, false)
			assert.True(t, errors.Is(err, ErrLocked), "writer during delete: %v", err)
			require.NoError(t, d.Close())

			w, err = tc.g.OpenWrite(p, false)
			require.NoError(t, err)
			require.NoError(t, w.Close())
		})
	}
}

func TestLocalGateway_LockSeenAcrossGateways(t *testing.T) {
	if runtime.GOOS == "windows" || runtime.GOOS == "plan9" {
		t.Skip("flock not available")
	}
	p := filepath.Join(t.TempDir(), "busy.txt")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))

	w, err := NewLocal().OpenWrite(p, false)
	require.NoError(t, err)
	defer w.Close()

	_, err = NewLocal().OpenDelete(p)
	assert.True(t, errors.Is(err, ErrLocked), "deleter: %v", err)
	_, err = NewLocal().OpenWrite(p, false)
	assert.True(t, errors.Is(err, ErrLocked), "writer: %v", err)
}

func TestGateway_OpenDeleteMissingReleasesLock(t *testing.T) {
	g := NewMemory()
	_, err := g.OpenDelete("/later")
	require.True(t, IsNotExist(err))

	writeFile(t, g, "/later", "x")
	c, err := g.OpenDelete("/later")
	require.NoError(t, err)
	require.NoError(t, c.Close())
}
