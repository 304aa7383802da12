// Package conditional evaluates HTTP conditional and byte-range request
// headers against a resource's current entity tag.
package conditional

import (
	"encoding/binary"
	"encoding/hex"
	"time"
)

// ticksAtUnixEpoch is the number of 100ns ticks between 0001-01-01 UTC and
// 1970-01-01 UTC.
const ticksAtUnixEpoch = 621355968000000000

// Ticks returns t as a count of 100ns intervals since 0001-01-01 UTC.
func Ticks(t time.Time) int64 {
	t = t.UTC()
	return ticksAtUnixEpoch + t.Unix()*10_000_000 + int64(t.Nanosecond())/100
}

// ETag returns the quoted entity tag for a resource last modified at mtime:
// the little-endian bytes of its tick count, hex encoded. Two writes that land
// on the same tick produce the same tag.
func ETag(mtime time.Time) string {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(Ticks(mtime)))
	return `"` + hex.EncodeToString(b[:]) + `"`
}
