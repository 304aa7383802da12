package httpserver

import (
	"io"
	"net/http"
	"path"
	"strings"

	platformerrors "github.com/jmgilman/go/errors"
	"go.uber.org/zap"
	"golang.org/x/net/webdav"

	"vfsgate/internal/apierr"
	"vfsgate/internal/auth"
	"vfsgate/internal/config"
	"vfsgate/internal/fsutil"
	"vfsgate/internal/fsys"
	"vfsgate/internal/logging"
	"vfsgate/internal/metrics"
	"vfsgate/internal/upload"
	"vfsgate/internal/vfs"
)

// Route prefixes.
const (
	VFSPrefix = "/admin/vfs"
	ZipPrefix = "/admin/zip"
	DAVPrefix = "/admin/dav"
)

type Options struct {
	Config config.Config
	// Gateway overrides the local file system, mainly for tests.
	Gateway fsys.Gateway
}

type Server struct {
	cfg config.Config

	plain *vfs.Dispatcher
	zip   *vfs.Dispatcher
}

func New(opts Options) (*Server, error) {
	res, err := fsutil.NewResolver(opts.Config.Root, opts.Config.SpecialFolders)
	if err != nil {
		return nil, err
	}
	up, err := upload.New(opts.Config.StateDir, opts.Config.MaxUploadBytes)
	if err != nil {
		return nil, err
	}
	res.Hide(opts.Config.StateDir)
	g := opts.Gateway
	if g == nil {
		g = fsys.NewLocal()
	}
	lister := vfs.NewLister(g, res)
	return &Server{
		cfg:   opts.Config,
		plain: vfs.NewDispatcher(VFSPrefix, vfs.NewPlainBackend(g, lister), res, g),
		zip:   vfs.NewDispatcher(ZipPrefix, vfs.NewZipBackend(g, res, up), res, g),
	}, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// health
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "ok\n")
	})

	// plain file/directory operations; the dispatcher answers 405 itself
	plain := s.require(VFSPrefix, s.plain)
	mux.Handle(VFSPrefix, plain)
	mux.Handle(VFSPrefix+"/", plain)

	// zip packaging and extraction
	zip := s.require(ZipPrefix, s.zip)
	mux.Handle("GET "+ZipPrefix, zip)
	mux.Handle("GET "+ZipPrefix+"/", zip)
	mux.Handle("PUT "+ZipPrefix+"/", zip)

	if s.cfg.WebDAV {
		dav := &webdav.Handler{
			Prefix:     DAVPrefix,
			FileSystem: webdav.Dir(s.cfg.Root),
			LockSystem: webdav.NewMemLS(),
			Logger: func(r *http.Request, err error) {
				if err != nil {
					logging.WithContext(r.Context()).Debug("webdav request failed", zap.String("method", r.Method), zap.Error(err))
				}
			},
		}
		mux.Handle(DAVPrefix+"/", s.require(DAVPrefix, dav))
	}

	return logging.Middleware(metrics.Middleware(auth.RequireAuth(s.cfg, mux)))
}

// require enforces the ACLs for the path below prefix. GET-like methods need
// read permission; everything else needs write.
func (s *Server) require(prefix string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clean, err := aclPath(prefix, r.URL.Path)
		if err != nil {
			apierr.Write(w, apierr.InvalidPath(err, "invalid path"))
			return
		}
		perm := auth.PermForMethod(r.Method)
		ok, err := s.allowed(r, perm, clean)
		if err != nil {
			apierr.Write(w, apierr.InvalidPath(err, "invalid path"))
			return
		}
		if !ok {
			if s.shouldChallenge(r) {
				s.authChallenge(w)
			} else {
				apierr.Write(w, platformerrors.New(platformerrors.CodeForbidden, "forbidden"))
			}
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowed(r *http.Request, perm auth.Perm, cleanPath string) (bool, error) {
	user := auth.UserFromContext(r.Context())
	return auth.Allowed(s.cfg, user, cleanPath, perm)
}

func (s *Server) shouldChallenge(r *http.Request) bool {
	return auth.HasAuth(s.cfg) && s.cfg.AuthOptional && auth.UserFromContext(r.Context()) == ""
}

func (s *Server) authChallenge(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="vfsgate"`)
	apierr.Write(w, platformerrors.New(platformerrors.CodeUnauthorized, "unauthorized"))
}

// aclPath turns /admin/vfs/foo/bar into /foo/bar.
func aclPath(prefix, urlPath string) (string, error) {
	rel, err := fsutil.CleanRelPath(strings.TrimPrefix(urlPath, prefix))
	if err != nil {
		return "", err
	}
	return path.Join("/", rel), nil
}

// WithHeaders adds hardening headers to every response.
func WithHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")

		next.ServeHTTP(w, r)
	})
}
