package goICloud

import (
	"errors"
	"fmt"
)

var (
	// ErrNilSession is returned when an operation is given a nil session.
	ErrNilSession = errors.New("nil session")
	// ErrNotAuthenticated is returned when a call needs a session id and the session has none.
	ErrNotAuthenticated = errors.New("session not authenticated")
	// ErrSessionExpired is returned when the session has outlived its max age.
	ErrSessionExpired = errors.New("session expired")
	// ErrServiceUnavailable is returned when the session's service map lacks a service.
	ErrServiceUnavailable = errors.New("service not available for session")
	// ErrLoginThrottled is returned when the local login throttle denies an attempt.
	ErrLoginThrottled = errors.New("login throttled")
	// ErrClientNotReady is returned by a nil or closed client.
	ErrClientNotReady = errors.New("client not ready")
	// ErrAuthenticationFailed is wrapped by every AuthenticationError.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrChallengeFailed is wrapped by challenge failures other than an invalid code.
	ErrChallengeFailed = errors.New("two-factor challenge failed")
	// ErrInvalidVerificationCode is wrapped when the service rejects the code itself.
	ErrInvalidVerificationCode = errors.New("invalid verification code")
	// ErrMissingIdentifier is returned when no account identifier is available for login.
	ErrMissingIdentifier = errors.New("missing account identifier")
	// ErrContinuationLoop is returned by QueryAll when the service repeats a continuation marker.
	ErrContinuationLoop = errors.New("record query repeated continuation marker")
)

// InvalidCodeErrorCode is the service error code for a rejected verification code.
const InvalidCodeErrorCode = -21669

// NetworkError reports a failed round trip. It is never retried internally.
type NetworkError struct {
	Op  string
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("icloud %s: network: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// DecodeError reports a body that is neither the expected shape nor a
// recognisable error object.
type DecodeError struct {
	Op         string
	HTTPStatus int
	RawBody    []byte
	Err        error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("icloud %s: decode (status %d): %v", e.Op, e.HTTPStatus, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ServiceError reports a failure described by the service in a JSON body.
type ServiceError struct {
	Op              string
	HTTPStatus      int
	ServerErrorCode string
	ServerMessage   string
	RawBody         []byte
}

func (e *ServiceError) Error() string {
	msg := fmt.Sprintf("icloud %s: service error (status %d)", e.Op, e.HTTPStatus)
	if e.ServerErrorCode != "" {
		msg += " code=" + e.ServerErrorCode
	}
	if e.ServerMessage != "" {
		msg += ": " + e.ServerMessage
	}
	return msg
}

// AuthenticationError reports a login the service refused or answered
// without the account and service subtrees.
type AuthenticationError struct {
	Reason        string
	HTTPStatus    int
	ServerMessage string
	RawBody       []byte
}

func (e *AuthenticationError) Error() string {
	if e.ServerMessage != "" {
		return fmt.Sprintf("icloud login: %s: %s", e.Reason, e.ServerMessage)
	}
	return "icloud login: " + e.Reason
}

func (e *AuthenticationError) Unwrap() error { return ErrAuthenticationFailed }

// ChallengeError reports a failed two-factor step. Err is
// ErrInvalidVerificationCode or ErrChallengeFailed.
type ChallengeError struct {
	Op            string
	ErrorCode     int64
	HasErrorCode  bool
	ServerMessage string
	RawBody       []byte
	Err           error
}

func (e *ChallengeError) Error() string {
	msg := fmt.Sprintf("icloud %s: %v", e.Op, e.Err)
	if e.HasErrorCode {
		msg += fmt.Sprintf(" (errorCode %d)", e.ErrorCode)
	}
	if e.ServerMessage != "" {
		msg += ": " + e.ServerMessage
	}
	return msg
}

func (e *ChallengeError) Unwrap() error { return e.Err }

// IsNetworkError reports whether err contains a *NetworkError.
func IsNetworkError(err error) bool {
	var target *NetworkError
	return errors.As(err, &target)
}

// IsDecodeError reports whether err contains a *DecodeError.
func IsDecodeError(err error) bool {
	var target *DecodeError
	return errors.As(err, &target)
}

// IsServiceError reports whether err contains a *ServiceError.
func IsServiceError(err error) bool {
	var target *ServiceError
	return errors.As(err, &target)
}

// IsAuthenticationError reports whether err contains an *AuthenticationError.
func IsAuthenticationError(err error) bool {
	var target *AuthenticationError
	return errors.As(err, &target)
}

// IsChallengeError reports whether err contains a *ChallengeError.
func IsChallengeError(err error) bool {
	var target *ChallengeError
	return errors.As(err, &target)
}

// IsInvalidVerificationCode reports whether the service rejected the code itself.
func IsInvalidVerificationCode(err error) bool {
	return errors.Is(err, ErrInvalidVerificationCode)
}
