package fsutil

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"vfsgate/internal/apierr"
)

// DummyExtension is appended upstream to some request paths so that static
// file routing hands them to the gateway. It is never part of a real file
// name and is removed from the last path segment before any file-system
// access.
const DummyExtension = ".func777"

// SpecialFolder is a named directory reachable through the VFS namespace as
// if it were a top-level folder of the root.
type SpecialFolder struct {
	Name string
	Path string
}

// Target is a request path resolved to a local path.
type Target struct {
	// Path is the absolute local path, cleaned, without a trailing separator.
	Path string
	// Rel is the slash-separated path inside the VFS namespace ("" for root).
	Rel string
	// DirIntent is set when the request path ended in a separator.
	DirIntent bool
	// Special is set when the first segment named a special folder.
	Special bool
	// SpecialRoot is set when the target is a special folder itself.
	SpecialRoot bool
}

// IsRoot reports whether t is the VFS root.
func (t Target) IsRoot() bool { return t.Rel == "" }

// Resolver confines request paths to a root directory and a set of special
// folders.
type Resolver struct {
	root    string
	special map[string]SpecialFolder
	hidden  []string
}

// NewResolver returns a Resolver for rootAbs. special maps folder names to
// absolute directories.
func NewResolver(rootAbs string, special map[string]string) (*Resolver, error) {
	if !filepath.IsAbs(rootAbs) {
		return nil, fmt.Errorf("root %q is not absolute", rootAbs)
	}
	r := &Resolver{
		root:    filepath.Clean(rootAbs),
		special: make(map[string]SpecialFolder, len(special)),
	}
	for name, dir := range special {
		if name == "" || strings.ContainsAny(name, `/\`) {
			return nil, fmt.Errorf("special folder name %q is invalid", name)
		}
		if !filepath.IsAbs(dir) {
			return nil, fmt.Errorf("special folder %s: %q is not absolute", name, dir)
		}
		r.special[strings.ToLower(name)] = SpecialFolder{Name: name, Path: filepath.Clean(dir)}
	}
	return r, nil
}

// Hide makes dirs and everything below them unreachable, as if they did not
// exist. Relative or empty entries are ignored.
func (r *Resolver) Hide(dirs ...string) {
	for _, d := range dirs {
		if d != "" && filepath.IsAbs(d) {
			r.hidden = append(r.hidden, filepath.Clean(d))
		}
	}
}

// Hidden reports whether abs lies in a hidden directory.
func (r *Resolver) Hidden(abs string) bool {
	for _, d := range r.hidden {
		if WithinRoot(d, abs) {
			return true
		}
	}
	return false
}

// SpecialFolders returns the configured special folders sorted by name.
func (r *Resolver) SpecialFolders() []SpecialFolder {
	out := make([]SpecialFolder, 0, len(r.special))
	for _, sf := range r.special {
		out = append(out, sf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Resolve maps reqPath, the already percent-decoded remainder of the URL path
// after the route prefix, to a Target. It fails with an InvalidPath error when
// the path is malformed or would leave its root.
func (r *Resolver) Resolve(reqPath string) (Target, error) {
	dirIntent := strings.HasSuffix(reqPath, "/") || strings.HasSuffix(reqPath, `\`)

	rel, err := CleanRelPath(reqPath)
	if err != nil {
		return Target{}, apierr.InvalidPath(err, "invalid path")
	}
	rel = stripDummyExtension(rel)

	t := Target{Rel: rel, DirIntent: dirIntent}
	root, inner := r.root, rel
	first, rest, _ := strings.Cut(rel, "/")
	if sf, ok := r.special[strings.ToLower(first)]; ok && first != "" {
		root, inner = sf.Path, rest
		t.Special = true
		t.SpecialRoot = rest == ""
	}

	abs, err := JoinWithinRoot(root, inner)
	if err != nil {
		return Target{}, apierr.InvalidPath(err, "invalid path")
	}
	if r.Hidden(abs) {
		return Target{}, apierr.NotFound("'/%s' not found.", rel)
	}
	t.Path = abs
	return t, nil
}

func stripDummyExtension(rel string) string {
	if !strings.HasSuffix(rel, DummyExtension) {
		return rel
	}
	rel = strings.TrimSuffix(rel, DummyExtension)
	return strings.TrimSuffix(rel, "/")
}
