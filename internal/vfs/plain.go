package vfs

import (
	"context"
	"io"
	"net/http"

	"go.uber.org/zap"

	"vfsgate/internal/apierr"
	"vfsgate/internal/conditional"
	"vfsgate/internal/fsys"
	"vfsgate/internal/logging"
	"vfsgate/internal/metrics"
	"vfsgate/internal/mimetype"
	"vfsgate/internal/transfer"
)

// PlainBackend serves files and directory listings.
type PlainBackend struct {
	fs     fsys.Gateway
	lister *Lister
}

// NewPlainBackend returns a PlainBackend over g.
func NewPlainBackend(g fsys.Gateway, lister *Lister) *PlainBackend {
	return &PlainBackend{fs: g, lister: lister}
}

// DirectoryGet lists the directory.
func (b *PlainBackend) DirectoryGet(_ context.Context, req *Request) (*Response, error) {
	entries, err := b.lister.List(req)
	if err != nil {
		return nil, apierr.NotFoundCause(err, "cannot list directory")
	}
	resp := newResponse(http.StatusOK)
	resp.JSON = entries
	return resp, nil
}

// ItemGet sends the file, honouring If-None-Match and byte ranges.
func (b *PlainBackend) ItemGet(ctx context.Context, req *Request) (*Response, error) {
	etag := conditional.ETag(req.Info.Modified)
	h := req.HTTP.Header

	isRange := conditional.IsRangeRequest(h, etag)
	if !isRange && conditional.IsNotModified(h, etag) {
		resp := newResponse(http.StatusNotModified)
		setValidators(resp.Header, req.Info)
		return resp, nil
	}

	f, err := b.fs.OpenRead(req.Target.Path)
	if err != nil {
		logging.WithContext(ctx).Debug("open for read failed", zap.String("path", req.Target.Path), zap.Error(err))
		return nil, apierr.NotFoundCause(err, "cannot read file")
	}
	var specs []conditional.RangeSpec
	if isRange {
		specs, _ = conditional.ParseRange(h.Get("Range"))
	}
	content, err := transfer.NewContent(f, mimetype.ForName(req.Info.Name), specs)
	if err != nil {
		_ = f.Close()
		if apierr.Is(err, apierr.CodeRangeNotSatisfiable) {
			return nil, err
		}
		return nil, apierr.NotFoundCause(err, "cannot read file")
	}

	resp := newResponse(http.StatusOK)
	if content.Partial() {
		resp.Status = http.StatusPartialContent
	}
	for k, v := range content.Header() {
		resp.Header[k] = v
	}
	resp.Header.Set("Accept-Ranges", "bytes")
	setValidators(resp.Header, req.Info)
	resp.Body = &countedBody{Body: content, record: metrics.RecordRead}
	return resp, nil
}

// DirectoryPut creates the directory and any missing parents.
func (b *PlainBackend) DirectoryPut(_ context.Context, req *Request) (*Response, error) {
	if req.Exists && req.Info.IsDir {
		return nil, apierr.Conflict(nil, "directory already exists")
	}
	if err := b.fs.MkdirAll(req.Target.Path); err != nil {
		return nil, apierr.Conflict(err, "cannot create directory")
	}
	return newResponse(http.StatusCreated), nil
}

// ItemPut writes the request body to the file. An existing file is only
// replaced when If-Match lists its current ETag or "*".
func (b *PlainBackend) ItemPut(ctx context.Context, req *Request) (*Response, error) {
	if req.Exists {
		if err := conditional.CheckPrecondition(req.HTTP.Header, conditional.ETag(req.Info.Modified)); err != nil {
			return nil, err
		}
	}

	w, err := b.fs.OpenWrite(req.Target.Path, !req.Exists)
	if err != nil {
		return nil, apierr.Conflict(err, "cannot open file for writing")
	}
	n, err := transfer.Receive(ctx, w, req.HTTP.Body)
	metrics.RecordWrite(n)
	if err != nil {
		if !req.Exists {
			_ = b.fs.RemoveAll(req.Target.Path, true)
		}
		return nil, apierr.Conflict(err, "cannot write file")
	}

	info, err := b.fs.Stat(req.Target.Path)
	if err != nil {
		return nil, apierr.Conflict(err, "file vanished after write")
	}
	status := http.StatusCreated
	if req.Exists {
		status = http.StatusNoContent
	}
	resp := newResponse(status)
	setValidators(resp.Header, info)
	return resp, nil
}

// ItemDelete removes the file when If-Match lists its current ETag or "*".
func (b *PlainBackend) ItemDelete(ctx context.Context, req *Request) (*Response, error) {
	if err := conditional.CheckPrecondition(req.HTTP.Header, conditional.ETag(req.Info.Modified)); err != nil {
		return nil, err
	}
	c, err := b.fs.OpenDelete(req.Target.Path)
	if err != nil {
		return nil, apierr.NotFoundCause(err, "cannot delete file")
	}
	err = b.fs.Remove(req.Target.Path)
	_ = c.Close()
	if err != nil {
		logging.WithContext(ctx).Debug("delete failed", zap.String("path", req.Target.Path), zap.Error(err))
		return nil, apierr.NotFoundCause(err, "cannot delete file")
	}
	return newResponse(http.StatusOK), nil
}

func setValidators(h http.Header, info fsys.Entry) {
	h.Set("ETag", conditional.ETag(info.Modified))
	h.Set("Last-Modified", info.Modified.UTC().Format(http.TimeFormat))
}

// countedBody reports the bytes written by a Body.
type countedBody struct {
	Body
	record func(int64)
}

func (c *countedBody) WriteTo(ctx context.Context, w io.Writer) (int64, error) {
	n, err := c.Body.WriteTo(ctx, w)
	c.record(n)
	return n, err
}
