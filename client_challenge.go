package goICloud

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/MrEthical07/goICloud/session"
)

// ListTrustedDevices returns the devices that can receive a verification
// code, in service order. It needs a session id but not a completed challenge.
func (c *Client) ListTrustedDevices(ctx context.Context, sess *session.Session) ([]Device, error) {
	snap, err := c.challengeSession(sess)
	if err != nil {
		return nil, err
	}

	resp, err := c.roundTrip(ctx, call{
		op:     "list_devices",
		method: http.MethodGet,
		url:    c.setupURL("/listDevices"),
		query:  c.setupQuery(snap),
		jar:    sess.Cookies(),
	})
	if err != nil {
		return nil, err
	}
	list, err := decodeDeviceList(resp.Status, resp.Body)
	if err != nil {
		c.metricInc(MetricServiceError)
		return nil, err
	}
	c.metricInc(MetricDevicesListed)
	return list.Devices, nil
}

// decodeDeviceList requires a devices array and no embedded failure.
func decodeDeviceList(status int, body []byte) (deviceList, error) {
	const op = "list_devices"
	list, err := DecodeResponse[deviceList](op, status, body)
	if err != nil {
		return deviceList{}, err
	}
	m, err := decodeObject(op, status, body)
	if err != nil {
		return deviceList{}, err
	}
	if err := embeddedFailure(op, status, body, m); err != nil {
		return deviceList{}, err
	}
	if _, ok := m["devices"].([]any); !ok {
		return deviceList{}, &ServiceError{
			Op:            op,
			HTTPStatus:    status,
			ServerMessage: "response missing devices",
			RawBody:       cloneBody(body),
		}
	}
	if list.Devices == nil {
		list.Devices = []Device{}
	}
	return list, nil
}

// RequestVerificationCode asks the service to send a code to device.
func (c *Client) RequestVerificationCode(ctx context.Context, sess *session.Session, device Device) error {
	snap, err := c.challengeSession(sess)
	if err != nil {
		return err
	}
	body, err := json.Marshal(device)
	if err != nil {
		return fmt.Errorf("encode device: %w", err)
	}

	resp, err := c.roundTrip(ctx, call{
		op:     "send_verification_code",
		method: http.MethodPost,
		url:    c.setupURL("/sendVerificationCode"),
		query:  c.setupQuery(snap),
		body:   body,
		jar:    sess.Cookies(),
	})
	if err != nil {
		c.metricInc(MetricCodeSendFailure)
		return err
	}
	m, err := decodeObject("send_verification_code", resp.Status, resp.Body)
	if err != nil {
		c.metricInc(MetricCodeSendFailure)
		return err
	}
	if !successFlag(m) {
		c.metricInc(MetricCodeSendFailure)
		cerr := challengeFailure("send_verification_code", m, resp.Body, false)
		c.emitAudit(ctx, auditEventCodeSent, false, snap, cerr, deviceMetadata(device))
		return cerr
	}

	c.metricInc(MetricCodeSent)
	c.emitAudit(ctx, auditEventCodeSent, true, snap, nil, deviceMetadata(device))
	return nil
}

// ValidateVerificationCode submits code for device and, when the service
// accepts it, logs in again with the stored account identifier and secret.
// The second login is what makes the service issue the device-trust cookie.
//
// A rejected code yields an error matching ErrInvalidVerificationCode and
// leaves the session pending so the caller can retry.
func (c *Client) ValidateVerificationCode(ctx context.Context, sess *session.Session, device Device, code, secret string) (session.Snapshot, error) {
	snap, err := c.challengeSession(sess)
	if err != nil {
		return session.Snapshot{}, err
	}
	body, err := json.Marshal(validateCodeRequest{
		AreaCode:         device.AreaCode,
		DeviceType:       device.DeviceType,
		DeviceID:         device.DeviceID,
		PhoneNumber:      device.PhoneNumber,
		VerificationCode: code,
		TrustBrowser:     true,
	})
	if err != nil {
		return session.Snapshot{}, fmt.Errorf("encode verification: %w", err)
	}

	resp, err := c.roundTrip(ctx, call{
		op:     "validate_verification_code",
		method: http.MethodPost,
		url:    c.setupURL("/validateManualVerificationCode"),
		query:  c.setupQuery(snap),
		body:   body,
		jar:    sess.Cookies(),
	})
	if err != nil {
		c.metricInc(MetricCodeValidateFailure)
		return session.Snapshot{}, err
	}
	m, err := decodeObject("validate_verification_code", resp.Status, resp.Body)
	if err != nil {
		c.metricInc(MetricCodeValidateFailure)
		return session.Snapshot{}, err
	}
	if !successFlag(m) {
		cerr := challengeFailure("validate_verification_code", m, resp.Body, true)
		if IsInvalidVerificationCode(cerr) {
			c.metricInc(MetricCodeInvalid)
			c.emitAudit(ctx, auditEventCodeInvalid, false, snap, cerr, deviceMetadata(device))
		} else {
			c.metricInc(MetricCodeValidateFailure)
			c.emitAudit(ctx, auditEventCodeValidated, false, snap, cerr, deviceMetadata(device))
		}
		c.logger.WarnContext(ctx, "icloud verification failed", "client_id", snap.ClientID, "error", cerr)
		return session.Snapshot{}, cerr
	}

	c.metricInc(MetricCodeValidated)
	c.emitAudit(ctx, auditEventCodeValidated, true, snap, nil, deviceMetadata(device))

	identifier := snap.AccountIdentifier()
	if identifier == "" {
		return session.Snapshot{}, ErrMissingIdentifier
	}
	return c.authenticate(ctx, sess, identifier, secret, snap.ExtendedLogin, true)
}

func (c *Client) challengeSession(sess *session.Session) (session.Snapshot, error) {
	if err := c.ready(); err != nil {
		return session.Snapshot{}, err
	}
	if sess == nil {
		return session.Snapshot{}, ErrNilSession
	}
	snap := sess.Snapshot()
	if snap.SessionID == "" {
		return snap, ErrNotAuthenticated
	}
	return snap, nil
}

// challengeFailure builds the error for a body whose success flag is not
// true. Only the validate call distinguishes the invalid-code sentinel.
func challengeFailure(op string, m map[string]any, body []byte, checkCode bool) *ChallengeError {
	cerr := &ChallengeError{
		Op:      op,
		RawBody: cloneBody(body),
		Err:     ErrChallengeFailed,
	}
	cerr.ServerMessage, _ = scalarText(m["errorMessage"])
	if code, ok := errorCode(m); ok {
		cerr.ErrorCode = code
		cerr.HasErrorCode = true
		if checkCode && code == InvalidCodeErrorCode {
			cerr.Err = ErrInvalidVerificationCode
		}
	}
	return cerr
}

func deviceMetadata(d Device) func() map[string]string {
	return func() map[string]string {
		return map[string]string{"device_type": d.DeviceType}
	}
}
