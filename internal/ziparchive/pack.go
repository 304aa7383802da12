// Package ziparchive streams directory trees into zip archives and extracts
// zip archives onto directories.
package ziparchive

import (
	"archive/zip"
	"context"
	"io"
	"iter"
	"path"

	"github.com/klauspost/compress/flate"
	"go.uber.org/zap"

	"vfsgate/internal/fsys"
	"vfsgate/internal/logging"
	"vfsgate/internal/transfer"
)

// Entry is one archive member produced by a walk.
type Entry struct {
	// Name is the slash-separated name inside the archive. Directory entries
	// end in "/".
	Name string
	// Path is the local file to read; empty for directory entries.
	Path string
	Dir  bool
}

// Walk returns the archive entries for the contents of dir, depth first in
// enumeration order. Subdirectories appear under their own name, files at
// the archive root. An empty subdirectory becomes a single "name/" entry; an
// empty dir itself yields nothing. The sequence is lazy: the file system is
// read as entries are consumed, and iterating it again walks again.
func Walk(g fsys.Gateway, dir string) iter.Seq2[Entry, error] {
	return WalkSkipping(g, dir, nil)
}

// WalkSkipping is Walk leaving out every file and directory whose local path
// satisfies skip. A directory whose children are all skipped counts as
// empty.
func WalkSkipping(g fsys.Gateway, dir string, skip func(path string) bool) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		walk(g, dir, "", skip, yield)
	}
}

func walk(g fsys.Gateway, dir, prefix string, skip func(string) bool, yield func(Entry, error) bool) bool {
	all, err := g.ReadDir(dir)
	if err != nil {
		return yield(Entry{}, err)
	}
	children := all[:0]
	for _, c := range all {
		if skip == nil || !skip(c.Path) {
			children = append(children, c)
		}
	}
	if len(children) == 0 {
		if prefix == "" {
			return true
		}
		return yield(Entry{Name: prefix + "/", Dir: true}, nil)
	}
	for _, c := range children {
		name := c.Name
		if prefix != "" {
			name = path.Join(prefix, c.Name)
		}
		if c.IsDir {
			if !walk(g, c.Path, name, skip, yield) {
				return false
			}
			continue
		}
		if !yield(Entry{Name: name, Path: c.Path}, nil) {
			return false
		}
	}
	return true
}

// Files returns entries placing each of paths at the archive root under its
// base name.
func Files(paths ...string) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		for _, p := range paths {
			if !yield(Entry{Name: path.Base(p), Path: p}, nil) {
				return
			}
		}
	}
}

// Stats summarizes a Write.
type Stats struct {
	Written int
	Skipped int
}

// Write streams entries into a zip archive on w using the fastest deflate
// level. File entries keep their modification time. Files that cannot be
// opened or stat'ed are skipped and logged. A walk error or a write failure
// aborts the archive.
func Write(ctx context.Context, w io.Writer, g fsys.Gateway, entries iter.Seq2[Entry, error]) (Stats, error) {
	var st Stats
	logger := logging.WithContext(ctx)

	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestSpeed)
	})

	for e, err := range entries {
		if err != nil {
			return st, err
		}
		if err := ctx.Err(); err != nil {
			return st, err
		}
		if e.Dir {
			if _, err := zw.CreateHeader(&zip.FileHeader{Name: e.Name, Method: zip.Store}); err != nil {
				return st, err
			}
			st.Written++
			continue
		}

		ok, err := addFile(ctx, zw, g, e)
		if err != nil {
			return st, err
		}
		if !ok {
			logger.Debug("zip entry skipped", zap.String("path", e.Path))
			st.Skipped++
			continue
		}
		st.Written++
	}
	return st, zw.Close()
}

// addFile reports false when the file could not be opened.
func addFile(ctx context.Context, zw *zip.Writer, g fsys.Gateway, e Entry) (bool, error) {
	info, err := g.Stat(e.Path)
	if err != nil {
		return false, nil
	}
	f, err := g.OpenRead(e.Path)
	if err != nil {
		return false, nil
	}
	defer f.Close()

	h := &zip.FileHeader{Name: e.Name, Method: zip.Deflate}
	h.Modified = info.Modified
	wr, err := zw.CreateHeader(h)
	if err != nil {
		return true, err
	}
	_, err = transfer.Copy(ctx, wr, f)
	return true, err
}
