package vfs

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"vfsgate/internal/apierr"
	"vfsgate/internal/fsutil"
	"vfsgate/internal/fsys"
	"vfsgate/internal/logging"
)

// Dispatcher routes requests under a path prefix to a Backend.
type Dispatcher struct {
	prefix   string
	backend  Backend
	resolver *fsutil.Resolver
	fs       fsys.Gateway
}

// NewDispatcher returns a Dispatcher serving requests whose path starts with
// prefix (for example "/admin/vfs").
func NewDispatcher(prefix string, backend Backend, resolver *fsutil.Resolver, g fsys.Gateway) *Dispatcher {
	return &Dispatcher{
		prefix:   strings.TrimSuffix(prefix, "/"),
		backend:  backend,
		resolver: resolver,
		fs:       g,
	}
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp, err := d.dispatch(r)
	d.respond(w, r, resp, err)
}

func (d *Dispatcher) dispatch(r *http.Request) (*Response, error) {
	reqPath, ok := strings.CutPrefix(r.URL.Path, d.prefix)
	if !ok {
		return nil, apierr.NotFound("not found")
	}
	tgt, err := d.resolver.Resolve(reqPath)
	if err != nil {
		return nil, err
	}
	req := &Request{HTTP: r, Target: tgt}
	if info, err := d.fs.Stat(tgt.Path); err == nil {
		req.Info, req.Exists = info, true
	} else if !fsys.IsNotExist(err) {
		logging.WithContext(r.Context()).Debug("stat failed", zap.String("path", tgt.Path), zap.Error(err))
	}

	ctx := r.Context()
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		switch {
		case !req.Exists:
			return nil, notFound(tgt)
		case req.Info.IsDir && !hasTrailingSlash(r):
			return redirect(r, r.URL.Path+"/"), nil
		case req.Info.IsDir:
			return d.backend.DirectoryGet(ctx, req)
		case tgt.DirIntent:
			return redirect(r, strings.TrimRight(r.URL.Path, "/")), nil
		default:
			return d.backend.ItemGet(ctx, req)
		}

	case http.MethodPut:
		if (req.Exists && req.Info.IsDir) || tgt.DirIntent {
			return d.backend.DirectoryPut(ctx, req)
		}
		return d.backend.ItemPut(ctx, req)

	case http.MethodDelete:
		switch {
		case tgt.SpecialRoot || (tgt.IsRoot() && !tgt.Special):
			return nil, apierr.Conflict(nil, "cannot delete a root folder")
		case !req.Exists:
			return nil, notFound(tgt)
		case req.Info.IsDir:
			return d.deleteDirectory(req)
		case tgt.DirIntent:
			return redirect(r, strings.TrimRight(r.URL.Path, "/")), nil
		default:
			return d.backend.ItemDelete(ctx, req)
		}
	}

	resp := newResponse(http.StatusMethodNotAllowed)
	resp.Header.Set("Allow", "GET, PUT, DELETE")
	return resp, nil
}

func (d *Dispatcher) deleteDirectory(req *Request) (*Response, error) {
	recursive, _ := strconv.ParseBool(req.HTTP.URL.Query().Get("recursive"))
	if err := d.fs.RemoveDir(req.Target.Path, recursive); err != nil {
		return nil, apierr.Conflict(err, "cannot delete directory")
	}
	return newResponse(http.StatusOK), nil
}

func (d *Dispatcher) respond(w http.ResponseWriter, r *http.Request, resp *Response, err error) {
	logger := logging.WithContext(r.Context())
	if err != nil {
		status := apierr.Status(err)
		if status >= http.StatusInternalServerError {
			logger.Error("vfs request failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
		} else {
			logger.Debug("vfs request rejected", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
		}
		apierr.Write(w, err)
		return
	}

	for k, v := range resp.Header {
		w.Header()[k] = v
	}
	switch {
	case resp.JSON != nil:
		writeJSON(w, resp.Status, resp.JSON)
	case resp.Body != nil:
		defer resp.Body.Close()
		w.WriteHeader(resp.Status)
		if r.Method == http.MethodHead {
			return
		}
		if _, err := resp.Body.WriteTo(r.Context(), w); err != nil {
			// Headers are gone; the client sees a truncated body.
			logger.Warn("response body aborted", zap.String("path", r.URL.Path), zap.Error(err))
		}
	default:
		w.WriteHeader(resp.Status)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func notFound(tgt fsutil.Target) error {
	return apierr.NotFound("'%s' not found.", "/"+tgt.Rel)
}

func hasTrailingSlash(r *http.Request) bool {
	return strings.HasSuffix(r.URL.Path, "/")
}

// redirect returns a 307 to the request URL with its path replaced.
func redirect(r *http.Request, p string) *Response {
	u := requestURL(r)
	u.Path = p
	u.RawPath = ""
	resp := newResponse(http.StatusTemporaryRedirect)
	resp.Header.Set("Location", u.String())
	return resp
}

// requestURL reconstructs the absolute URL of r.
func requestURL(r *http.Request) *url.URL {
	u := *r.URL
	u.Scheme = "http"
	if r.TLS != nil {
		u.Scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		u.Scheme = proto
	}
	u.Host = r.Host
	u.Fragment = ""
	return &u
}
