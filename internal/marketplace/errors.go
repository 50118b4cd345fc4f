package marketplace

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"giftwatch/pkg/types"
)

// Kind classifies an adapter failure. The poller and enricher react to the
// kind, never to venue-specific status codes.
type Kind int

const (
	// KindTransient covers rate limits, 5xx responses, timeouts and
	// connection failures. The sweep that hit it is abandoned and the next
	// tick proceeds normally.
	KindTransient Kind = iota
	// KindAuth means the venue rejected our token (401). The poller asks
	// the token provider for a fresh one and keeps the loop alive.
	KindAuth
	// KindProtocol means the response arrived but could not be interpreted.
	KindProtocol
	// KindPermanent means the venue cannot be used at all, e.g. no token
	// was configured. Its poller never starts.
	KindPermanent
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindAuth:
		return "auth"
	case KindProtocol:
		return "protocol"
	case KindPermanent:
		return "permanent"
	}
	return "unknown"
}

// APIError is the error type every adapter method returns on failure.
type APIError struct {
	Marketplace types.Marketplace
	Op          string
	Kind        Kind
	Status      int // HTTP status, 0 when the request never completed
	Err         error
}

func (e *APIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: %s (status %d): %v", e.Marketplace, e.Op, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Marketplace, e.Op, e.Kind, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable adapter failure.
func IsTransient(err error) bool { return hasKind(err, KindTransient) }

// IsAuth reports whether err is a credential rejection.
func IsAuth(err error) bool { return hasKind(err, KindAuth) }

// IsPermanent reports whether err means the venue is unusable.
func IsPermanent(err error) bool { return hasKind(err, KindPermanent) }

func hasKind(err error, k Kind) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == k
}

// classifyStatus maps an HTTP status to an error kind.
func classifyStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindAuth
	case status == http.StatusTooManyRequests, status >= 500:
		return KindTransient
	default:
		return KindProtocol
	}
}

// wrapErr builds the APIError for a failed request. Context cancellation and
// network errors are transient; HTTP failures are classified by status.
func wrapErr(mp types.Marketplace, op string, status int, err error) *APIError {
	kind := KindTransient
	if status != 0 {
		kind = classifyStatus(status)
	} else if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		kind = KindTransient
	}
	return &APIError{Marketplace: mp, Op: op, Kind: kind, Status: status, Err: err}
}

// errNoToken builds the permanent error for a venue without credentials.
func errNoToken(mp types.Marketplace, op string) *APIError {
	return &APIError{Marketplace: mp, Op: op, Kind: KindPermanent, Err: errors.New("no auth token configured")}
}
