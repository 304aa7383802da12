// Package apierr defines the error kinds surfaced by the VFS gateway and maps
// them onto HTTP responses.
//
// Every file-system failure is translated into one of these kinds at the
// operation boundary. Clients receive the code and a short message only; the
// wrapped cause is kept for logging.
package apierr

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	platformerrors "github.com/jmgilman/go/errors"
)

// Error codes not provided by the platform error package.
const (
	CodePreconditionFailed  platformerrors.ErrorCode = "PRECONDITION_FAILED"
	CodeRangeNotSatisfiable platformerrors.ErrorCode = "RANGE_NOT_SATISFIABLE"
	CodeInvalidPath         platformerrors.ErrorCode = "INVALID_PATH"
)

// Context keys that carry response metadata on an error.
const (
	ContextETag   = "etag"
	ContextLength = "length"
)

// NotFound reports a resource that is absent or became inaccessible.
func NotFound(format string, args ...any) error {
	return platformerrors.Newf(platformerrors.CodeNotFound, format, args...)
}

// NotFoundCause is NotFound with the underlying file-system error attached.
func NotFoundCause(err error, msg string) error {
	if err == nil {
		return platformerrors.New(platformerrors.CodeNotFound, msg)
	}
	return platformerrors.Wrap(err, platformerrors.CodeNotFound, msg)
}

// Conflict reports a mutation that failed against file-system state.
func Conflict(err error, msg string) error {
	if err == nil {
		return platformerrors.New(platformerrors.CodeConflict, msg)
	}
	return platformerrors.Wrap(err, platformerrors.CodeConflict, msg)
}

// PreconditionFailed reports a missing or mismatched If-Match header. The
// current ETag is attached so the caller can retry with it.
func PreconditionFailed(msg, currentETag string) error {
	err := platformerrors.New(CodePreconditionFailed, msg)
	if currentETag == "" {
		return err
	}
	return platformerrors.WithContext(err, ContextETag, currentETag)
}

// RangeNotSatisfiable reports a byte range with no overlap with the current
// length of the resource.
func RangeNotSatisfiable(length int64) error {
	err := platformerrors.New(CodeRangeNotSatisfiable, "requested range not satisfiable")
	return platformerrors.WithContext(err, ContextLength, length)
}

// InvalidPath reports a request path that is malformed or escapes its root.
func InvalidPath(err error, msg string) error {
	if err == nil {
		return platformerrors.New(CodeInvalidPath, msg)
	}
	return platformerrors.Wrap(err, CodeInvalidPath, msg)
}

// Is reports whether err carries the given code.
func Is(err error, code platformerrors.ErrorCode) bool {
	return platformerrors.GetCode(err) == code
}

// Status returns the HTTP status code for err.
func Status(err error) int {
	switch platformerrors.GetCode(err) {
	case platformerrors.CodeNotFound:
		return http.StatusNotFound
	case platformerrors.CodeConflict, platformerrors.CodeAlreadyExists:
		return http.StatusConflict
	case CodePreconditionFailed:
		return http.StatusPreconditionFailed
	case CodeRangeNotSatisfiable:
		return http.StatusRequestedRangeNotSatisfiable
	case CodeInvalidPath, platformerrors.CodeInvalidInput:
		return http.StatusBadRequest
	case platformerrors.CodeForbidden:
		return http.StatusForbidden
	case platformerrors.CodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Write sends err to the client as a JSON error body, setting the ETag or
// Content-Range headers the error kind calls for.
func Write(w http.ResponseWriter, err error) {
	if platformerrors.GetCode(err) == platformerrors.CodeUnknown {
		// Never echo an unclassified error string.
		err = platformerrors.New(platformerrors.CodeInternal, "internal error")
	}

	var pe platformerrors.PlatformError
	if errors.As(err, &pe) {
		ctx := pe.Context()
		if v, ok := ctx[ContextETag].(string); ok && v != "" {
			w.Header().Set("ETag", v)
		}
		if v, ok := ctx[ContextLength].(int64); ok {
			w.Header().Set("Content-Range", "bytes */"+strconv.FormatInt(v, 10))
		}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(Status(err))
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(platformerrors.ToJSON(err))
}
