package goICloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/MrEthical07/goICloud/internal/rate"
	"github.com/MrEthical07/goICloud/session"
)

// Authenticate logs sess in with identifier and secret. On success the
// session id, account info, service map, challenge flag, login time and
// extended flag are replaced together and cookies set by the service are
// merged into the session's jar. On any failure sess is left untouched,
// cookies included.
//
// A successful login may still require two-factor verification; check
// IsTwoFactorRequired or the returned snapshot's ChallengeRequired.
func (c *Client) Authenticate(ctx context.Context, sess *session.Session, identifier, secret string, extendedLogin bool) (session.Snapshot, error) {
	return c.authenticate(ctx, sess, identifier, secret, extendedLogin, false)
}

// IsTwoFactorRequired reports the challenge flag of the last successful login.
func (c *Client) IsTwoFactorRequired(sess *session.Session) bool {
	return sess != nil && sess.ChallengeRequired()
}

func (c *Client) authenticate(ctx context.Context, sess *session.Session, identifier, secret string, extendedLogin, reauth bool) (session.Snapshot, error) {
	if err := c.ready(); err != nil {
		return session.Snapshot{}, err
	}
	if sess == nil {
		return session.Snapshot{}, ErrNilSession
	}
	if identifier == "" {
		return session.Snapshot{}, ErrMissingIdentifier
	}
	prior := sess.Snapshot()

	if err := c.checkThrottle(ctx, prior, identifier); err != nil {
		return session.Snapshot{}, err
	}

	body, err := json.Marshal(loginRequest{AppleID: identifier, Password: secret, ExtendedLogin: extendedLogin})
	if err != nil {
		return session.Snapshot{}, fmt.Errorf("encode login request: %w", err)
	}

	staged := newStagedJar(sess.Cookies())
	resp, err := c.roundTrip(ctx, call{
		op:     "login",
		method: http.MethodPost,
		url:    c.setupURL("/login"),
		query:  c.setupQuery(prior),
		body:   body,
		jar:    staged,
	})
	if err != nil {
		return session.Snapshot{}, c.loginFailed(ctx, prior, identifier, err)
	}

	info, err := parseLogin(resp.Status, resp.Body)
	if err != nil {
		return session.Snapshot{}, c.loginFailed(ctx, prior, identifier, err)
	}
	info.CreatedAt = c.now()
	info.ExtendedLogin = extendedLogin

	staged.commit(sess.Cookies())
	sess.Apply(info)
	snap := sess.Snapshot()

	if c.limiter != nil {
		if err := c.limiter.ResetLogin(ctx, identifier); err != nil {
			c.logger.WarnContext(ctx, "icloud login throttle reset failed", "client_id", snap.ClientID, "error", err)
		}
	}

	c.metricInc(MetricLoginSuccess)
	event := auditEventLoginSuccess
	if reauth {
		c.metricInc(MetricReauthentication)
		event = auditEventReauthenticated
	}
	c.emitAudit(ctx, event, true, snap, nil, func() map[string]string {
		return map[string]string{
			"extended_login":     strconv.FormatBool(extendedLogin),
			"challenge_required": strconv.FormatBool(snap.ChallengeRequired),
		}
	})
	if snap.ChallengeRequired {
		c.metricInc(MetricChallengeRequired)
		c.emitAudit(ctx, auditEventChallengeRequired, true, snap, nil, nil)
	}
	c.logger.DebugContext(ctx, "icloud login", "client_id", snap.ClientID, "challenge_required", snap.ChallengeRequired, "reauth", reauth)

	return snap, nil
}

func (c *Client) checkThrottle(ctx context.Context, snap session.Snapshot, identifier string) error {
	if c.limiter == nil {
		return nil
	}
	err := c.limiter.CheckLogin(ctx, identifier)
	if err == nil {
		return nil
	}
	c.metricInc(MetricLoginThrottled)
	c.emitAudit(ctx, auditEventLoginThrottled, false, snap, err, nil)
	if errors.Is(err, rate.ErrRateLimited) {
		return ErrLoginThrottled
	}
	return fmt.Errorf("%w: %w", ErrLoginThrottled, err)
}

func (c *Client) loginFailed(ctx context.Context, snap session.Snapshot, identifier string, err error) error {
	c.metricInc(MetricLoginFailure)
	if IsServiceError(err) || IsDecodeError(err) {
		c.metricInc(MetricServiceError)
	}
	if c.limiter != nil && IsAuthenticationError(err) {
		if lerr := c.limiter.IncrementLogin(ctx, identifier); lerr != nil && !errors.Is(lerr, rate.ErrRateLimited) {
			c.logger.WarnContext(ctx, "icloud login throttle update failed", "client_id", snap.ClientID, "error", lerr)
		}
	}
	c.emitAudit(ctx, auditEventLoginFailure, false, snap, err, nil)
	c.logger.WarnContext(ctx, "icloud login failed", "client_id", snap.ClientID, "error", err)
	return err
}

// parseLogin interprets a login body. An error key, or a body without the
// account or service subtrees, is an *AuthenticationError.
func parseLogin(status int, body []byte) (session.LoginInfo, error) {
	m, err := decodeObject("login", status, body)
	if err != nil {
		return session.LoginInfo{}, err
	}

	if v, ok := m["error"]; ok && v != nil {
		msg, _ := scalarText(v)
		return session.LoginInfo{}, &AuthenticationError{
			Reason:        "service rejected login",
			HTTPStatus:    status,
			ServerMessage: msg,
			RawBody:       cloneBody(body),
		}
	}

	account, ok := m["dsInfo"].(map[string]any)
	if !ok {
		return session.LoginInfo{}, &AuthenticationError{Reason: "response missing account info", HTTPStatus: status, RawBody: cloneBody(body)}
	}
	services, ok := m["webservices"].(map[string]any)
	if !ok {
		return session.LoginInfo{}, &AuthenticationError{Reason: "response missing service map", HTTPStatus: status, RawBody: cloneBody(body)}
	}
	sessionID, _ := scalarText(account["dsid"])
	if sessionID == "" {
		return session.LoginInfo{}, &AuthenticationError{Reason: "response missing session id", HTTPStatus: status, RawBody: cloneBody(body)}
	}
	challenge, _ := m["hsaChallengeRequired"].(bool)

	return session.LoginInfo{
		SessionID:         sessionID,
		AccountInfo:       session.NormalizeNumbers(account).(map[string]any),
		ServiceMap:        session.NormalizeNumbers(services).(map[string]any),
		ChallengeRequired: challenge,
	}, nil
}

// stagedJar serves cookies from a copy of the session jar and records every
// SetCookies call so a successful login can replay them onto the session.
type stagedJar struct {
	*session.CookieJar
	mu    sync.Mutex
	calls []stagedCookies
}

type stagedCookies struct {
	u       *url.URL
	cookies []*http.Cookie
}

func newStagedJar(from *session.CookieJar) *stagedJar {
	jar := session.NewCookieJar()
	jar.AddAll(from.List())
	return &stagedJar{CookieJar: jar}
}

func (j *stagedJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.CookieJar.SetCookies(u, cookies)
	j.mu.Lock()
	j.calls = append(j.calls, stagedCookies{u: u, cookies: cookies})
	j.mu.Unlock()
}

func (j *stagedJar) commit(dst *session.CookieJar) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, call := range j.calls {
		dst.SetCookies(call.u, call.cookies)
	}
	j.calls = nil
}
