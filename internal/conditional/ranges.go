package conditional

import (
	"strconv"
	"strings"

	"vfsgate/internal/apierr"
)

// RangeSpec is one byte-range-spec of a Range header. From is -1 for a suffix
// range ("-N"), in which case To holds N. To is -1 for an open range ("N-").
type RangeSpec struct {
	From int64
	To   int64
}

// ByteRange is a resolved, inclusive byte range with From <= To < length.
type ByteRange struct {
	From int64
	To   int64
}

// Length returns the number of bytes in r.
func (r ByteRange) Length() int64 { return r.To - r.From + 1 }

// ContentRange formats r as a Content-Range header value.
func (r ByteRange) ContentRange(total int64) string {
	return "bytes " + strconv.FormatInt(r.From, 10) + "-" + strconv.FormatInt(r.To, 10) + "/" + strconv.FormatInt(total, 10)
}

// ParseRange parses a Range header. Only the bytes unit is understood; any
// other unit or malformed value reports false and the header is ignored.
func ParseRange(v string) ([]RangeSpec, bool) {
	v = strings.TrimSpace(v)
	unit, set, ok := strings.Cut(v, "=")
	if !ok || !strings.EqualFold(strings.TrimSpace(unit), "bytes") {
		return nil, false
	}
	var specs []RangeSpec
	for _, part := range strings.Split(set, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		first, last, ok := strings.Cut(part, "-")
		if !ok {
			return nil, false
		}
		first, last = strings.TrimSpace(first), strings.TrimSpace(last)
		switch {
		case first == "" && last == "":
			return nil, false
		case first == "":
			n, err := strconv.ParseInt(last, 10, 64)
			if err != nil || n < 0 {
				return nil, false
			}
			specs = append(specs, RangeSpec{From: -1, To: n})
		default:
			from, err := strconv.ParseInt(first, 10, 64)
			if err != nil || from < 0 {
				return nil, false
			}
			to := int64(-1)
			if last != "" {
				to, err = strconv.ParseInt(last, 10, 64)
				if err != nil || to < from {
					return nil, false
				}
			}
			specs = append(specs, RangeSpec{From: from, To: to})
		}
	}
	if len(specs) == 0 {
		return nil, false
	}
	return specs, true
}

// Resolve maps specs onto a resource of the given length. Ranges running past
// the end are clamped; ranges starting at or beyond it are dropped. When
// nothing is left a RangeNotSatisfiable error carrying length is returned.
func Resolve(specs []RangeSpec, length int64) ([]ByteRange, error) {
	out := make([]ByteRange, 0, len(specs))
	for _, s := range specs {
		var r ByteRange
		switch {
		case s.From < 0:
			if s.To == 0 || length == 0 {
				continue
			}
			n := min(s.To, length)
			r = ByteRange{From: length - n, To: length - 1}
		default:
			if s.From >= length {
				continue
			}
			to := s.To
			if to < 0 || to >= length {
				to = length - 1
			}
			r = ByteRange{From: s.From, To: to}
		}
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil, apierr.RangeNotSatisfiable(length)
	}
	return out, nil
}
