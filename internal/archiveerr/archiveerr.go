// Package archiveerr defines the error-kind taxonomy shared across mailkeep's
// components, so the sync engine and the CLI can classify a failure without
// depending on which package produced it.
package archiveerr

import (
	"errors"
	"fmt"
)

// Kind is a coarse failure classification used for propagation decisions
// and CLI exit codes. It is not a type name — many Go error types may carry
// the same Kind.
type Kind string

const (
	KindConfig        Kind = "config"
	KindAuth          Kind = "auth"
	KindNetwork       Kind = "network"
	KindThrottled     Kind = "throttled"
	KindCursorInvalid Kind = "cursor_invalid"
	KindNotFound      Kind = "not_found"
	KindFilesystem    Kind = "filesystem"
	KindIntegrity     Kind = "integrity"
	KindSchema        Kind = "schema"
	KindSecurity      Kind = "security"
	KindCancelled     Kind = "cancelled"
	KindFatal         Kind = "fatal"
)

// Sentinel errors for errors.Is() checks against a specific kind without
// needing to unwrap an Error.
var (
	ErrConfig        = errors.New("archiveerr: config")
	ErrAuth          = errors.New("archiveerr: auth")
	ErrNetwork       = errors.New("archiveerr: network")
	ErrThrottled     = errors.New("archiveerr: throttled")
	ErrCursorInvalid = errors.New("archiveerr: cursor invalid")
	ErrNotFound      = errors.New("archiveerr: not found")
	ErrFilesystem    = errors.New("archiveerr: filesystem")
	ErrIntegrity     = errors.New("archiveerr: integrity")
	ErrSchema        = errors.New("archiveerr: schema")
	ErrSecurity      = errors.New("archiveerr: security")
	ErrCancelled     = errors.New("archiveerr: cancelled")
	ErrFatal         = errors.New("archiveerr: fatal")
)

var sentinelByKind = map[Kind]error{
	KindConfig:        ErrConfig,
	KindAuth:          ErrAuth,
	KindNetwork:       ErrNetwork,
	KindThrottled:     ErrThrottled,
	KindCursorInvalid: ErrCursorInvalid,
	KindNotFound:      ErrNotFound,
	KindFilesystem:    ErrFilesystem,
	KindIntegrity:     ErrIntegrity,
	KindSchema:        ErrSchema,
	KindSecurity:      ErrSecurity,
	KindCancelled:     ErrCancelled,
	KindFatal:         ErrFatal,
}

// Error wraps an underlying error with its classification and enough
// context to produce the CLI's one-line classification plus detail line.
type Error struct {
	Kind    Kind
	Detail  string
	Err     error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}

	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}

	return sentinelByKind[e.Kind]
}

// New builds a classified Error, wrapping cause (which may be nil).
func New(kind Kind, detail string, cause error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: cause}
}

// Is reports whether err is classified as kind, either via an *Error in its
// chain or a direct match against the kind's sentinel.
func Is(err error, kind Kind) bool {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind == kind
	}

	sentinel, ok := sentinelByKind[kind]
	if !ok {
		return false
	}

	return errors.Is(err, sentinel)
}

// ClassifyOf extracts the Kind from err, defaulting to KindFatal for any
// unclassified error.
func ClassifyOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}

	for kind, sentinel := range sentinelByKind {
		if errors.Is(err, sentinel) {
			return kind
		}
	}

	return KindFatal
}

// ExitCode maps a Kind to the CLI exit code from spec.md's external
// interface table.
func ExitCode(kind Kind) int {
	switch kind {
	case KindConfig:
		return 2
	case KindAuth:
		return 3
	case KindNetwork, KindThrottled, KindCursorInvalid:
		return 4
	case KindFilesystem:
		return 5
	case KindIntegrity, KindSchema:
		return 6
	case KindCancelled:
		return 130
	case KindNotFound, KindSecurity, KindFatal:
		return 1
	default:
		return 1
	}
}
