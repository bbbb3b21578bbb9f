// Package errors defines the router's stable error taxonomy: every error
// that crosses a package boundary carries a Kind so callers can branch on
// it without string matching, plus an HTTP status for the admin surface.
package errors

import (
	"fmt"
	"net/http"
)

// Kind is a stable identifier for one category of routing failure.
type Kind string

const (
	KindMissingTenantContext    Kind = "MissingTenantContext"
	KindUnknownTenant           Kind = "UnknownTenant"
	KindUnknownShard            Kind = "UnknownShard"
	KindTenantFilterMissing     Kind = "TenantFilterMissing"
	KindCrossDataSourceTx       Kind = "CrossDataSourceTransaction"
	KindCacheBackendUnavailable Kind = "CacheBackendUnavailable"
	KindPoolExhausted           Kind = "PoolExhausted"
	KindPoolAcquireTimeout      Kind = "PoolAcquireTimeout"
	KindDeadline                Kind = "Deadline"
	KindDirectoryWriteConflict  Kind = "DirectoryWriteConflict"
	KindAlreadyExists           Kind = "AlreadyExists"
	KindShardReadOnly           Kind = "ShardReadOnly"
)

var statusByKind = map[Kind]int{
	KindMissingTenantContext:    http.StatusBadRequest,
	KindUnknownTenant:           http.StatusNotFound,
	KindUnknownShard:            http.StatusInternalServerError,
	KindTenantFilterMissing:     http.StatusBadRequest,
	KindCrossDataSourceTx:       http.StatusConflict,
	KindCacheBackendUnavailable: http.StatusInternalServerError,
	KindPoolExhausted:           http.StatusServiceUnavailable,
	KindPoolAcquireTimeout:      http.StatusServiceUnavailable,
	KindDeadline:                http.StatusGatewayTimeout,
	KindDirectoryWriteConflict:  http.StatusConflict,
	KindAlreadyExists:           http.StatusConflict,
	KindShardReadOnly:           http.StatusForbidden,
}

// Error is the router's error value: a Kind, a human message, and an
// optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the error's Kind to an HTTP status code for the admin
// surface. Kinds with no mapping default to 500.
func (e *Error) HTTPStatus() int {
	if status, ok := statusByKind[e.Kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// New creates an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error of the given kind around an existing cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if as, ok := err.(*Error); ok {
		e = as
	} else {
		return false
	}
	return e.Kind == kind
}
