package apiclient

import (
	"errors"
	"fmt"
)

const (
	// SessionExpiredMessage is shown to the user when they must log in again.
	SessionExpiredMessage = "Session expired. Please log in again."

	// GenericFailureMessage is used when the backend gives no message.
	GenericFailureMessage = "Request failed"

	invalidResponseMessage = "Invalid response from server"
	invalidRequestMessage  = "Invalid request"
	credentialStoreMessage = "Could not access stored credentials"
)

// Sentinels for errors.Is. A *RequestError matches the one for its Kind.
var (
	ErrSessionExpired  = errors.New("apiclient: session expired")
	ErrRequestFailed   = errors.New("apiclient: request failed")
	ErrNetwork         = errors.New("apiclient: network failure")
	ErrInvalidResponse = errors.New("apiclient: invalid response")
	ErrInvalidRequest  = errors.New("apiclient: invalid request")
	ErrCredentialStore = errors.New("apiclient: credential store failure")
)

type ErrorKind int

const (
	// KindRequestFailed: the backend answered with a non-2xx status.
	KindRequestFailed ErrorKind = iota + 1

	// KindSessionExpired: 401 with no way to refresh. Credentials are cleared.
	KindSessionExpired

	// KindNetwork: the backend could not be reached, or the caller's ctx
	// ended first. Never retried. Credentials are left alone.
	KindNetwork

	// KindInvalidResponse: a 2xx whose body is not the JSON we expected.
	KindInvalidResponse

	// KindInvalidRequest: the request could not be built (bad endpoint,
	// body that does not encode). Nothing was sent.
	KindInvalidRequest

	// KindCredentialStore: reading or writing the credential store failed.
	KindCredentialStore
)

func (k ErrorKind) String() string {
	switch k {
	case KindRequestFailed:
		return "request_failed"
	case KindSessionExpired:
		return "session_expired"
	case KindNetwork:
		return "network"
	case KindInvalidResponse:
		return "invalid_response"
	case KindInvalidRequest:
		return "invalid_request"
	case KindCredentialStore:
		return "credential_store"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// RequestError is returned for every unrecoverable failure of a call. Error()
// is the user-presentable message.
type RequestError struct {
	Kind ErrorKind

	// StatusCode is the HTTP status that caused the failure, 0 for network errors.
	StatusCode int

	Message string

	// Err is the underlying cause, if any (transport error, refresh failure).
	Err error
}

func (e *RequestError) Error() string {
	return e.Message
}

func (e *RequestError) Unwrap() error { return e.Err }

func (e *RequestError) Is(target error) bool {
	switch target {
	case ErrSessionExpired:
		return e.Kind == KindSessionExpired
	case ErrRequestFailed:
		return e.Kind == KindRequestFailed
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrInvalidResponse:
		return e.Kind == KindInvalidResponse
	case ErrInvalidRequest:
		return e.Kind == KindInvalidRequest
	case ErrCredentialStore:
		return e.Kind == KindCredentialStore
	}
	return false
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var re *RequestError
	if errors.As(err, &re) {
		return re.StatusCode
	}
	return 0
}

// asRequestError returns err unchanged if it already is a *RequestError and
// classifies anything else as a network failure.
func asRequestError(err error) *RequestError {
	var re *RequestError
	if errors.As(err, &re) {
		return re
	}
	return networkError(err)
}

func invalidRequestError(err error) *RequestError {
	return &RequestError{Kind: KindInvalidRequest, Message: invalidRequestMessage, Err: err}
}

func credentialStoreError(err error) *RequestError {
	return &RequestError{Kind: KindCredentialStore, Message: credentialStoreMessage, Err: err}
}

func networkError(err error) *RequestError {
	return &RequestError{Kind: KindNetwork, Message: err.Error(), Err: err}
}

func sessionExpiredError(statusCode int, cause error) *RequestError {
	return &RequestError{
		Kind:       KindSessionExpired,
		StatusCode: statusCode,
		Message:    SessionExpiredMessage,
		Err:        cause,
	}
}
