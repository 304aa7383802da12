package vfs

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"vfsgate/internal/fsutil"
	"vfsgate/internal/fsys"
	"vfsgate/internal/mimetype"
)

// StatEntry is one element of a directory listing.
type StatEntry struct {
	Name   string    `json:"name"`
	MTime  time.Time `json:"mtime"`
	CRTime time.Time `json:"crtime"`
	Mime   string    `json:"mime"`
	Size   int64     `json:"size"`
	Href   string    `json:"href"`
	Path   string    `json:"path"`
}

// Lister enumerates directories into listing entries.
type Lister struct {
	fs       fsys.Gateway
	resolver *fsutil.Resolver
}

// NewLister returns a Lister. The resolver's special folders are appended to
// listings of the VFS root and its hidden directories are left out.
func NewLister(g fsys.Gateway, resolver *fsutil.Resolver) *Lister {
	return &Lister{fs: g, resolver: resolver}
}

// List returns the immediate children of the directory targeted by req in
// enumeration order. Each href is the request URL (without its query) plus
// the escaped child name, a trailing slash for directories, and the original
// query string.
func (l *Lister) List(req *Request) ([]StatEntry, error) {
	children, err := l.fs.ReadDir(req.Target.Path)
	if err != nil {
		return nil, err
	}
	base, query := listingBase(req.HTTP)

	special := l.resolver.SpecialFolders()
	out := make([]StatEntry, 0, len(children)+len(special))
	for _, c := range children {
		if l.resolver.Hidden(c.Path) {
			continue
		}
		e := StatEntry{
			Name:   c.Name,
			MTime:  c.Modified,
			CRTime: c.Created,
			Path:   c.Path,
		}
		href := url.PathEscape(c.Name)
		if c.IsDir {
			e.Mime = mimetype.Directory
			href += "/"
		} else {
			e.Mime = mimetype.ForName(c.Name)
			e.Size = c.Size
		}
		e.Href = base + href + query
		out = append(out, e)
	}

	if req.Target.IsRoot() && !req.Target.Special {
		for _, sf := range special {
			e := StatEntry{
				Name: sf.Name,
				Mime: mimetype.Shortcut,
				Href: base + url.PathEscape(sf.Name) + "/" + query,
				Path: sf.Path,
			}
			if info, err := l.fs.Stat(sf.Path); err == nil {
				e.MTime, e.CRTime = info.Modified, info.Created
			}
			out = append(out, e)
		}
	}
	return out, nil
}

// listingBase returns the absolute request URL without query, ending in a
// slash, and the query string including its "?" (or "").
func listingBase(r *http.Request) (string, string) {
	u := requestURL(r)
	query := ""
	if u.RawQuery != "" {
		query = "?" + u.RawQuery
	}
	u.RawQuery = ""
	u.ForceQuery = false
	base := u.String()
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base, query
}
