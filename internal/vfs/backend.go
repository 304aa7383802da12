// Package vfs exposes a directory tree over HTTP: plain file and directory
// operations on one route, zip packaging and extraction on another.
//
// A Dispatcher resolves the request path, classifies the target as missing,
// a file or a directory, handles the trailing-slash redirects and directory
// deletion, and hands everything else to its Backend.
package vfs

import (
	"context"
	"io"
	"net/http"

	"vfsgate/internal/fsutil"
	"vfsgate/internal/fsys"
)

// Request is a resolved VFS request.
type Request struct {
	HTTP   *http.Request
	Target fsutil.Target
	// Info is the target's metadata when Exists is set.
	Info   fsys.Entry
	Exists bool
}

// Body is a streamed response body.
type Body interface {
	WriteTo(ctx context.Context, w io.Writer) (int64, error)
	Close() error
}

// Response is the outcome of a backend operation. At most one of JSON and
// Body is set.
type Response struct {
	Status int
	Header http.Header
	JSON   any
	Body   Body
}

func newResponse(status int) *Response {
	return &Response{Status: status, Header: http.Header{}}
}

// Backend implements the verb-specific operations of a VFS route.
type Backend interface {
	// DirectoryGet serves an existing directory requested with a trailing
	// slash.
	DirectoryGet(ctx context.Context, req *Request) (*Response, error)
	// ItemGet serves an existing file.
	ItemGet(ctx context.Context, req *Request) (*Response, error)
	// DirectoryPut handles a PUT to an existing directory or to any path
	// with a trailing slash.
	DirectoryPut(ctx context.Context, req *Request) (*Response, error)
	// ItemPut handles a PUT to a file path, existing or not.
	ItemPut(ctx context.Context, req *Request) (*Response, error)
	// ItemDelete deletes an existing file.
	ItemDelete(ctx context.Context, req *Request) (*Response, error)
}
