package mailgraph

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/mailkeep/mailkeep/internal/archiveerr"
)

// ProviderError wraps a failed request with enough detail to classify it
// into the Mail Provider capability's six-way taxonomy (auth, network,
// throttled, cursor_invalid, not_found, other) without the sync engine
// knowing anything about HTTP.
type ProviderError struct {
	StatusCode int
	RequestID  string
	Message    string
}

func (e *ProviderError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("mailgraph: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, e.Message)
	}

	return fmt.Sprintf("mailgraph: HTTP %d: %s", e.StatusCode, e.Message)
}

// cursorInvalidTokens and cursorInvalidQualifiers implement spec.md §4.5.4's
// classification heuristic exactly: the message must contain at least one
// token word AND at least one qualifier word, case-insensitive.
var cursorInvalidTokens = []string{"resync", "delta", "sync_state", "token"}

var cursorInvalidQualifiers = []string{"invalid", "expired"}

// IsCursorInvalid reports whether err represents a rejected delta cursor,
// per the structured classifier when present, falling back to the
// message-content heuristic otherwise.
func IsCursorInvalid(err error) bool {
	var pe *ProviderError
	if !asProviderError(err, &pe) {
		return false
	}

	if pe.StatusCode == http.StatusGone {
		return true
	}

	msg := strings.ToLower(pe.Message)

	hasToken := false

	for _, t := range cursorInvalidTokens {
		if strings.Contains(msg, t) {
			hasToken = true
			break
		}
	}

	if !hasToken {
		return false
	}

	for _, q := range cursorInvalidQualifiers {
		if strings.Contains(msg, q) {
			return true
		}
	}

	return false
}

func asProviderError(err error, target **ProviderError) bool {
	pe, ok := err.(*ProviderError)
	if !ok {
		return false
	}

	*target = pe

	return true
}

// Classify maps a ProviderError (or any other error) to the archiveerr Kind
// the sync engine propagates on. An error that is not a ProviderError
// classifies as network; a status code not matched below classifies as fatal.
func Classify(err error) archiveerr.Kind {
	if IsCursorInvalid(err) {
		return archiveerr.KindCursorInvalid
	}

	var pe *ProviderError
	if !asProviderError(err, &pe) {
		return archiveerr.KindNetwork
	}

	switch pe.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return archiveerr.KindAuth
	case http.StatusTooManyRequests:
		return archiveerr.KindThrottled
	case http.StatusNotFound:
		return archiveerr.KindNotFound
	default:
		if pe.StatusCode >= http.StatusInternalServerError {
			return archiveerr.KindNetwork
		}

		return archiveerr.KindFatal
	}
}

// Wrap converts a provider-classified error into the shared archiveerr
// taxonomy so callers outside this package never need to import it.
func Wrap(detail string, err error) error {
	if err == nil {
		return nil
	}

	return archiveerr.New(Classify(err), detail, err)
}
