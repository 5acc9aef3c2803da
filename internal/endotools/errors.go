package endotools

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures of Endotools API calls.
type ErrorKind int

const (
	// KindAPI covers protocol errors and any transport failure that is not
	// a timeout.
	KindAPI ErrorKind = iota
	// KindAuth maps upstream 401 responses.
	KindAuth
	// KindPermission maps upstream 403 responses.
	KindPermission
	// KindNotFound maps upstream 404 responses and empty demographics lists.
	KindNotFound
	// KindServer maps upstream 5xx responses.
	KindServer
	// KindTimeout maps connection/read timeouts.
	KindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuth:
		return "authentication"
	case KindPermission:
		return "permission"
	case KindNotFound:
		return "not_found"
	case KindServer:
		return "server"
	case KindTimeout:
		return "timeout"
	default:
		return "api"
	}
}

// APIError is the typed error returned by every client operation.
type APIError struct {
	Kind    ErrorKind
	Status  int // upstream HTTP status, 0 for transport failures
	Message string
	cause   error
}

func (e *APIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("endotools: %s (status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("endotools: %s: %s", e.Kind, e.Message)
}

func (e *APIError) Unwrap() error { return e.cause }

// IsNotFound reports whether err is an Endotools not-found error.
func IsNotFound(err error) bool { return hasKind(err, KindNotFound) }

// IsTimeout reports whether err is an Endotools timeout error.
func IsTimeout(err error) bool { return hasKind(err, KindTimeout) }

func hasKind(err error, kind ErrorKind) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}
