// Package transfer moves file content between request and response bodies and
// the file system, honouring caller cancellation and byte ranges.
package transfer

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"

	"vfsgate/internal/conditional"
)

// BufferSize is the copy buffer size used for file streams.
const BufferSize = 32 << 10

// Copy copies src to dst like io.Copy, checking ctx between chunks so that a
// disconnected caller stops the transfer promptly.
func Copy(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, BufferSize)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return written, werr
			}
			if nw != nr {
				return written, io.ErrShortWrite
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}

// Source is an open file a Content reads from.
type Source interface {
	io.Reader
	io.ReaderAt
	io.Seeker
	io.Closer
}

// Content is a file response body: either the whole file or one or more byte
// ranges of it.
type Content struct {
	src      Source
	length   int64
	ranges   []conditional.ByteRange
	ctype    string
	boundary string
	header   http.Header
}

// NewContent prepares a response body for src. The current length is taken
// from the open stream, not from earlier metadata. With nil specs the
// full content is sent. Otherwise specs are resolved against the length and a
// RangeNotSatisfiable error is returned when none overlap it; src is left open
// in that case.
func NewContent(src Source, contentType string, specs []conditional.RangeSpec) (*Content, error) {
	length, err := src.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	c := &Content{src: src, length: length, ctype: contentType, header: http.Header{}}
	if specs != nil {
		c.ranges, err = conditional.Resolve(specs, length)
		if err != nil {
			return nil, err
		}
	}

	switch len(c.ranges) {
	case 0:
		c.header.Set("Content-Type", contentType)
		c.header.Set("Content-Length", strconv.FormatInt(length, 10))
	case 1:
		r := c.ranges[0]
		c.header.Set("Content-Type", contentType)
		c.header.Set("Content-Range", r.ContentRange(length))
		c.header.Set("Content-Length", strconv.FormatInt(r.Length(), 10))
	default:
		c.boundary = multipart.NewWriter(io.Discard).Boundary()
		c.header.Set("Content-Type", "multipart/byteranges; boundary="+c.boundary)
	}
	return c, nil
}

// Partial reports whether the content is a range response.
func (c *Content) Partial() bool { return len(c.ranges) > 0 }

// Header returns the entity headers for the body.
func (c *Content) Header() http.Header { return c.header }

// WriteTo streams the body to w.
func (c *Content) WriteTo(ctx context.Context, w io.Writer) (int64, error) {
	switch len(c.ranges) {
	case 0:
		return Copy(ctx, w, c.src)
	case 1:
		r := c.ranges[0]
		return Copy(ctx, w, io.NewSectionReader(c.src, r.From, r.Length()))
	}

	cw := &countingWriter{w: w}
	mw := multipart.NewWriter(cw)
	if err := mw.SetBoundary(c.boundary); err != nil {
		return cw.n, err
	}
	for _, r := range c.ranges {
		h := textproto.MIMEHeader{}
		h.Set("Content-Type", c.ctype)
		h.Set("Content-Range", r.ContentRange(c.length))
		pw, err := mw.CreatePart(h)
		if err != nil {
			return cw.n, err
		}
		if _, err := Copy(ctx, pw, io.NewSectionReader(c.src, r.From, r.Length())); err != nil {
			return cw.n, err
		}
	}
	return cw.n, mw.Close()
}

// Close closes the underlying file.
func (c *Content) Close() error {
	return c.src.Close()
}

// Receive copies body into w and closes w, reporting a failure of either.
func Receive(ctx context.Context, w io.WriteCloser, body io.Reader) (int64, error) {
	n, err := Copy(ctx, w, body)
	cerr := w.Close()
	return n, errors.Join(err, cerr)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
