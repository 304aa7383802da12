package ziparchive

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vfsgate/internal/apierr"
	"vfsgate/internal/fsys"
)

func mkfile(t *testing.T, p, content string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(p, mtime, mtime))
}

func names(t *testing.T, g fsys.Gateway, dir string) []string {
	t.Helper()
	var out []string
	for e, err := range Walk(g, dir) {
		require.NoError(t, err)
		out = append(out, e.Name)
	}
	sort.Strings(out)
	return out
}

func TestWalk(t *testing.T) {
	root := t.TempDir()
	mtime := time.Date(2022, 1, 2, 3, 4, 5, 0, time.UTC)
	mkfile(t, filepath.Join(root, "top.txt"), "top", mtime)
	mkfile(t, filepath.Join(root, "a", "b", "c.txt"), "c", mtime)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a", "hollow"), 0o755))

	got := names(t, fsys.NewLocal(), root)
	want := []string{"a/b/c.txt", "a/hollow/", "empty/", "top.txt"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Walk mismatch (-want +got):\n%s", diff)
	}
}

func TestWalkSkipping(t *testing.T) {
	root := t.TempDir()
	mtime := time.Now()
	mkfile(t, filepath.Join(root, "keep.txt"), "k", mtime)
	mkfile(t, filepath.Join(root, ".state", "uploads", "x.part"), "x", mtime)
	mkfile(t, filepath.Join(root, "d", "secret"), "s", mtime)
	hidden := []string{filepath.Join(root, ".state"), filepath.Join(root, "d", "secret")}

	var got []string
	skip := func(p string) bool { return slices.Contains(hidden, p) }
	for e, err := range WalkSkipping(fsys.NewLocal(), root, skip) {
		require.NoError(t, err)
		got = append(got, e.Name)
	}
	sort.Strings(got)
	assert.Equal(t, []string{"d/", "keep.txt"}, got)
}

func TestWalk_EmptyRoot(t *testing.T) {
	assert.Empty(t, names(t, fsys.NewLocal(), t.TempDir()))
}

func TestWalk_StopsEarly(t *testing.T) {
	root := t.TempDir()
	for _, n := range []string{"1", "2", "3"} {
		mkfile(t, filepath.Join(root, n), n, time.Now())
	}
	count := 0
	for range Walk(fsys.NewLocal(), root) {
		count++
		break
	}
	assert.Equal(t, 1, count)
}

func TestWalk_MissingDir(t *testing.T) {
	var gotErr error
	for _, err := range Walk(fsys.NewLocal(), filepath.Join(t.TempDir(), "nope")) {
		gotErr = err
	}
	assert.Error(t, gotErr)
}

func TestRoundTrip(t *testing.T) {
	src := t.TempDir()
	mtime := time.Date(2021, 6, 7, 8, 9, 10, 0, time.UTC)
	mkfile(t, filepath.Join(src, "hello.txt"), "hello", mtime)
	mkfile(t, filepath.Join(src, "sub", "data.bin"), string(bytes.Repeat([]byte{0, 1, 2, 3}, 4096)), mtime.Add(time.Hour))
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub", "empty"), 0o755))

	g := fsys.NewLocal()
	var buf bytes.Buffer
	st, err := Write(context.Background(), &buf, g, Walk(g, src))
	require.NoError(t, err)
	assert.Equal(t, Stats{Written: 3}, st)

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	dst := t.TempDir()
	n, err := Extract(context.Background(), g, zr, dst)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, rel := range []string{"hello.txt", filepath.Join("sub", "data.bin")} {
		want, err := os.ReadFile(filepath.Join(src, rel))
		require.NoError(t, err)
		got, err := os.ReadFile(filepath.Join(dst, rel))
		require.NoError(t, err)
		assert.Equal(t, want, got, rel)

		wantInfo, err := os.Stat(filepath.Join(src, rel))
		require.NoError(t, err)
		gotInfo, err := os.Stat(filepath.Join(dst, rel))
		require.NoError(t, err)
		assert.Equal(t, wantInfo.ModTime().Unix(), gotInfo.ModTime().Unix(), rel)
	}
	fi, err := os.Stat(filepath.Join(dst, "sub", "empty"))
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
}

func TestWrite_UsesDeflate(t *testing.T) {
	src := t.TempDir()
	mkfile(t, filepath.Join(src, "a.txt"), "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", time.Now())
	g := fsys.NewLocal()

	var buf bytes.Buffer
	_, err := Write(context.Background(), &buf, g, Walk(g, src))
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, zip.Deflate, zr.File[0].Method)
}

func TestWrite_SkipsUnopenableFiles(t *testing.T) {
	src := t.TempDir()
	mkfile(t, filepath.Join(src, "ok.txt"), "ok", time.Now())
	g := fsys.NewLocal()

	entries := Files(filepath.Join(src, "ok.txt"), filepath.Join(src, "gone.txt"))
	var buf bytes.Buffer
	st, err := Write(context.Background(), &buf, g, entries)
	require.NoError(t, err)
	assert.Equal(t, Stats{Written: 1, Skipped: 1}, st)

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, "ok.txt", zr.File[0].Name)
}

func TestWrite_Cancelled(t *testing.T) {
	src := t.TempDir()
	mkfile(t, filepath.Join(src, "a.txt"), "a", time.Now())
	g := fsys.NewLocal()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Write(ctx, io.Discard, g, Walk(g, src))
	assert.ErrorIs(t, err, context.Canceled)
}

func buildZip(t *testing.T, files map[string]string) *zip.Reader {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: time.Date(2019, 3, 4, 5, 6, 7, 0, time.UTC)})
		require.NoError(t, err)
		_, err = io.WriteString(w, content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	return zr
}

func TestExtract_MergesWithExisting(t *testing.T) {
	dst := t.TempDir()
	mkfile(t, filepath.Join(dst, "keep.txt"), "keep", time.Now())
	mkfile(t, filepath.Join(dst, "over.txt"), "old content", time.Now())

	zr := buildZip(t, map[string]string{"over.txt": "new", "nested/x.txt": "x", "dir/": ""})
	_, err := Extract(context.Background(), fsys.NewLocal(), zr, dst)
	require.NoError(t, err)

	b, err := os.ReadFile(filepath.Join(dst, "keep.txt"))
	require.NoError(t, err)
	assert.Equal(t, "keep", string(b))
	b, err = os.ReadFile(filepath.Join(dst, "over.txt"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(b))
	b, err = os.ReadFile(filepath.Join(dst, "nested", "x.txt"))
	require.NoError(t, err)
	assert.Equal(t, "x", string(b))

	fi, err := os.Stat(filepath.Join(dst, "over.txt"))
	require.NoError(t, err)
	assert.True(t, fi.ModTime().Equal(time.Date(2019, 3, 4, 5, 6, 7, 0, time.UTC)))

	fi, err = os.Stat(filepath.Join(dst, "dir"))
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
}

func TestExtract_RejectsEscapingEntries(t *testing.T) {
	parent := t.TempDir()
	dst := filepath.Join(parent, "dst")
	require.NoError(t, os.MkdirAll(dst, 0o755))

	zr := buildZip(t, map[string]string{"../evil.txt": "x"})
	_, err := Extract(context.Background(), fsys.NewLocal(), zr, dst)
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.CodeInvalidPath))

	_, err = os.Stat(filepath.Join(parent, "evil.txt"))
	assert.True(t, os.IsNotExist(err))
}
