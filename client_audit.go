package goICloud

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goICloud/internal/rate"
	"github.com/MrEthical07/goICloud/session"
)

const (
	auditEventLoginSuccess        = "login_success"
	auditEventLoginFailure        = "login_failure"
	auditEventLoginThrottled      = "login_throttled"
	auditEventChallengeRequired   = "challenge_required"
	auditEventCodeSent            = "verification_code_sent"
	auditEventCodeValidated       = "verification_code_validated"
	auditEventCodeInvalid         = "verification_code_invalid"
	auditEventReauthenticated     = "reauthenticated"
	auditEventQueryFailure        = "record_query_failure"
	auditEventStorageUsageFailure = "storage_usage_failure"
	auditEventHandoffSealed       = "handoff_sealed"
	auditEventHandoffOpened       = "handoff_opened"
)

// AuditErrorCode is the stable error label attached to failed audit events.
type AuditErrorCode string

const (
	auditErrNetwork            AuditErrorCode = "network_error"
	auditErrDecode             AuditErrorCode = "decode_error"
	auditErrService            AuditErrorCode = "service_error"
	auditErrAuthentication     AuditErrorCode = "authentication_failed"
	auditErrInvalidCode        AuditErrorCode = "invalid_verification_code"
	auditErrChallenge          AuditErrorCode = "challenge_failed"
	auditErrThrottled          AuditErrorCode = "throttled"
	auditErrNotAuthenticated   AuditErrorCode = "not_authenticated"
	auditErrSessionExpired     AuditErrorCode = "session_expired"
	auditErrServiceUnavailable AuditErrorCode = "service_unavailable"
	auditErrBackendUnavailable AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (c *Client) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	snap session.Snapshot,
	err error,
	metadataBuilder func() map[string]string,
) {
	if c == nil || c.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		ClientID:  snap.ClientID,
		Account:   snap.AccountIdentifier(),
		SessionID: snap.SessionID,
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	c.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidVerificationCode):
		return auditErrInvalidCode
	case errors.Is(err, ErrChallengeFailed):
		return auditErrChallenge
	case errors.Is(err, ErrLoginThrottled):
		return auditErrThrottled
	case errors.Is(err, ErrAuthenticationFailed):
		return auditErrAuthentication
	case errors.Is(err, ErrNotAuthenticated),
		errors.Is(err, ErrNilSession),
		errors.Is(err, ErrMissingIdentifier):
		return auditErrNotAuthenticated
	case errors.Is(err, ErrSessionExpired),
		errors.Is(err, session.ErrSessionExpired):
		return auditErrSessionExpired
	case errors.Is(err, ErrServiceUnavailable):
		return auditErrServiceUnavailable
	case errors.Is(err, rate.ErrRedisUnavailable),
		errors.Is(err, session.ErrRedisUnavailable):
		return auditErrBackendUnavailable
	case IsNetworkError(err):
		return auditErrNetwork
	case IsServiceError(err):
		return auditErrService
	case IsDecodeError(err):
		return auditErrDecode
	default:
		return auditErrInternal
	}
}
