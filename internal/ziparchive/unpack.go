package ziparchive

import (
	"archive/zip"
	"context"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/flate"

	"vfsgate/internal/apierr"
	"vfsgate/internal/fsutil"
	"vfsgate/internal/fsys"
	"vfsgate/internal/transfer"
)

// Extract unpacks zr onto dest without removing anything already there.
// Zero-length entries whose names end in a separator create directories;
// every other entry creates or overwrites a file, creating parents as needed,
// and gets its modification time from the entry in UTC. Entries are applied
// in archive order and nothing is rolled back when one fails. It returns the
// number of entries applied.
func Extract(ctx context.Context, g fsys.Gateway, zr *zip.Reader, dest string) (int, error) {
	zr.RegisterDecompressor(zip.Deflate, flate.NewReader)

	n := 0
	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		target, err := fsutil.JoinWithinRoot(dest, f.Name)
		if err != nil {
			return n, apierr.InvalidPath(err, "archive entry escapes destination")
		}

		if isDirEntry(f) {
			if err := g.MkdirAll(target); err != nil {
				return n, apierr.Conflict(err, "cannot create directory")
			}
			n++
			continue
		}
		if target == filepath.Clean(dest) {
			return n, apierr.InvalidPath(nil, "archive entry has no name")
		}
		if err := extractFile(ctx, g, f, target); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func isDirEntry(f *zip.File) bool {
	return f.UncompressedSize64 == 0 && (strings.HasSuffix(f.Name, "/") || strings.HasSuffix(f.Name, `\`))
}

func extractFile(ctx context.Context, g fsys.Gateway, f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return apierr.Conflict(err, "cannot read archive entry")
	}
	defer rc.Close()

	w, err := g.OpenWrite(target, true)
	if err != nil {
		return apierr.Conflict(err, "cannot write file")
	}
	if _, err := transfer.Receive(ctx, w, rc); err != nil {
		return apierr.Conflict(err, "cannot write file")
	}
	if err := g.Chtimes(target, f.Modified.UTC()); err != nil {
		return apierr.Conflict(err, "cannot set modification time")
	}
	return nil
}
