//go:build !unix

package fsys

import "os"

// tryFlock is a no-op where flock is unavailable; the gateway's own lock
// table still serializes writers within the process.
func tryFlock(*os.File) error { return nil }
