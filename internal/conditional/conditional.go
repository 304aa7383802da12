package conditional

import (
	"net/http"
	"strings"

	"vfsgate/internal/apierr"
)

const wildcard = "*"

// parseTagList splits an If-Match / If-None-Match header value into its
// entity tags. A nil result means the header was absent.
func parseTagList(h http.Header, key string) []string {
	values := h.Values(key)
	if len(values) == 0 {
		return nil
	}
	tags := []string{}
	for _, v := range values {
		for _, t := range splitTags(v) {
			if t != "" {
				tags = append(tags, t)
			}
		}
	}
	return tags
}

// splitTags splits on commas outside of quoted strings.
func splitTags(v string) []string {
	var (
		out     []string
		start   int
		inQuote bool
	)
	for i := 0; i < len(v); i++ {
		switch v[i] {
		case '"':
			inQuote = !inQuote
		case ',':
			if !inQuote {
				out = append(out, strings.TrimSpace(v[start:i]))
				start = i + 1
			}
		}
	}
	return append(out, strings.TrimSpace(v[start:]))
}

// IsRangeRequest reports whether r asks for byte ranges that should be
// honoured: a parseable Range header is present and any If-Range entity tag
// equals etag. An If-Range carrying a date never matches.
func IsRangeRequest(h http.Header, etag string) bool {
	if _, ok := ParseRange(h.Get("Range")); !ok {
		return false
	}
	ifRange := strings.TrimSpace(h.Get("If-Range"))
	if ifRange == "" {
		return true
	}
	return ifRange == etag
}

// IsNotModified reports whether If-None-Match lists etag. A "*" entry is
// compared literally.
func IsNotModified(h http.Header, etag string) bool {
	if etag == "" {
		return false
	}
	for _, t := range parseTagList(h, "If-None-Match") {
		if t == etag {
			return true
		}
	}
	return false
}

// IsPreconditionSatisfied reports whether If-Match is present and lists etag
// or "*".
func IsPreconditionSatisfied(h http.Header, etag string) bool {
	return CheckPrecondition(h, etag) == nil
}

// CheckPrecondition is IsPreconditionSatisfied returning the failure as a
// PreconditionFailed error carrying etag.
func CheckPrecondition(h http.Header, etag string) error {
	tags := parseTagList(h, "If-Match")
	if tags == nil {
		return apierr.PreconditionFailed("missing If-Match", etag)
	}
	for _, t := range tags {
		if t == wildcard || t == etag {
			return nil
		}
	}
	return apierr.PreconditionFailed("Etag mismatch", etag)
}
