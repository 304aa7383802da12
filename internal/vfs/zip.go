package vfs

import (
	"archive/zip"
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"go.uber.org/zap"

	"vfsgate/internal/apierr"
	"vfsgate/internal/fsutil"
	"vfsgate/internal/fsys"
	"vfsgate/internal/logging"
	"vfsgate/internal/metrics"
	"vfsgate/internal/upload"
	"vfsgate/internal/ziparchive"
)

// ZipBackend packages directories as zip archives on GET and extracts zip
// archives onto directories on PUT. Individual files are not addressable.
type ZipBackend struct {
	fs       fsys.Gateway
	resolver *fsutil.Resolver
	uploads  *upload.Manager
}

// NewZipBackend returns a ZipBackend spooling uploaded archives through
// uploads. Directories the resolver hides are left out of archives.
func NewZipBackend(g fsys.Gateway, resolver *fsutil.Resolver, uploads *upload.Manager) *ZipBackend {
	return &ZipBackend{fs: g, resolver: resolver, uploads: uploads}
}

// DirectoryGet streams the directory's contents as a zip archive. The
// download name comes from the fileName query parameter, defaulting to the
// directory name plus ".zip".
func (b *ZipBackend) DirectoryGet(_ context.Context, req *Request) (*Response, error) {
	name := req.HTTP.URL.Query().Get("fileName")
	if name == "" {
		name = archiveName(req.Target.Path)
	}
	resp := newResponse(http.StatusOK)
	resp.Header.Set("Content-Type", "application/zip")
	resp.Header.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	resp.Body = &zipBody{fs: b.fs, dir: req.Target.Path, skip: b.resolver.Hidden}
	return resp, nil
}

func archiveName(dir string) string {
	base := filepath.Base(dir)
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "archive.zip"
	}
	return base + ".zip"
}

// ItemGet is not supported on the zip route.
func (b *ZipBackend) ItemGet(context.Context, *Request) (*Response, error) {
	return nil, apierr.NotFound("files cannot be downloaded as zip")
}

// DirectoryPut extracts the request body onto the directory, creating it if
// needed. Existing content not in the archive is kept.
func (b *ZipBackend) DirectoryPut(ctx context.Context, req *Request) (*Response, error) {
	spool, err := b.uploads.Store(ctx, req.HTTP.Body)
	if err != nil {
		if errors.Is(err, upload.ErrTooLarge) {
			return nil, apierr.Conflict(err, "archive exceeds size limit")
		}
		return nil, apierr.Conflict(err, "cannot receive archive")
	}
	defer func() {
		if err := spool.Close(); err != nil {
			logging.WithContext(ctx).Warn("spool cleanup failed", zap.String("id", spool.ID), zap.Error(err))
		}
	}()

	zr, err := zip.NewReader(spool, spool.Size)
	if err != nil {
		return nil, apierr.Conflict(err, "malformed zip archive")
	}
	if err := b.fs.MkdirAll(req.Target.Path); err != nil {
		return nil, apierr.Conflict(err, "cannot create directory")
	}
	n, err := ziparchive.Extract(ctx, b.fs, zr, req.Target.Path)
	metrics.RecordZipEntries(metrics.ZipExtracted, n)
	if err != nil {
		return nil, err
	}
	return newResponse(http.StatusOK), nil
}

// ItemPut is not supported on the zip route.
func (b *ZipBackend) ItemPut(context.Context, *Request) (*Response, error) {
	return nil, apierr.NotFound("files cannot be uploaded as zip")
}

// ItemDelete is not supported on the zip route.
func (b *ZipBackend) ItemDelete(context.Context, *Request) (*Response, error) {
	return nil, apierr.NotFound("files cannot be deleted through zip")
}

type zipBody struct {
	fs   fsys.Gateway
	dir  string
	skip func(string) bool
}

func (z *zipBody) WriteTo(ctx context.Context, w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	st, err := ziparchive.Write(ctx, cw, z.fs, ziparchive.WalkSkipping(z.fs, z.dir, z.skip))
	metrics.RecordZipEntries(metrics.ZipWritten, st.Written)
	metrics.RecordZipEntries(metrics.ZipSkipped, st.Skipped)
	return cw.n, err
}

func (z *zipBody) Close() error { return nil }

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
