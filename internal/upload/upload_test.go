package upload

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	m, err := New(t.TempDir(), 0)
	require.NoError(t, err)

	s, err := m.Store(context.Background(), strings.NewReader("zip bytes"))
	require.NoError(t, err)
	assert.Equal(t, int64(9), s.Size)

	buf := make([]byte, 3)
	_, err = s.ReadAt(buf, 4)
	require.NoError(t, err)
	assert.Equal(t, "byt", string(buf))

	p := filepath.Join(m.Dir(), s.ID+".part")
	_, err = os.Stat(p)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	_, err = os.Stat(p)
	assert.True(t, os.IsNotExist(err))
}

func TestStore_Limit(t *testing.T) {
	m, err := New(t.TempDir(), 4)
	require.NoError(t, err)

	_, err = m.Store(context.Background(), strings.NewReader("12345"))
	assert.ErrorIs(t, err, ErrTooLarge)

	s, err := m.Store(context.Background(), strings.NewReader("1234"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	ents, err := os.ReadDir(m.Dir())
	require.NoError(t, err)
	assert.Empty(t, ents)
}

func TestStore_Cancelled(t *testing.T) {
	m, err := New(t.TempDir(), 0)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Store(ctx, io.MultiReader(strings.NewReader("x")))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_RemovesStaleSpools(t *testing.T) {
	state := t.TempDir()
	dir := filepath.Join(state, "uploads")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.part"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep.txt"), []byte("x"), 0o644))

	_, err := New(state, 0)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "old.part"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "keep.txt"))
	assert.NoError(t, err)
}

func TestStore_RecreatesRemovedDir(t *testing.T) {
	m, err := New(t.TempDir(), 0)
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(m.Dir()))

	s, err := m.Store(context.Background(), strings.NewReader("again"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), s.Size)
	require.NoError(t, s.Close())
}
