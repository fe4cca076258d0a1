package goICloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goICloud/internal/rate"
	"github.com/MrEthical07/goICloud/internal/transport"
	"github.com/MrEthical07/goICloud/jwt"
	"github.com/MrEthical07/goICloud/session"
)

var (
	// ErrStoreNotConfigured is returned by session store calls on a client built without Redis.
	ErrStoreNotConfigured = errors.New("session store not configured")
	// ErrHandoffDisabled is returned by handoff calls when handoff tokens are not configured.
	ErrHandoffDisabled = errors.New("session handoff disabled")
)

// Client talks to the identity and record services on behalf of explicit
// sessions. A Client holds no session state of its own and is safe for
// concurrent use; every call takes the *session.Session it acts on.
type Client struct {
	cfg       Config
	transport *transport.Client
	logger    *slog.Logger
	limiter   *rate.Limiter
	sessions  *session.Store
	handoff   *jwt.Manager
	metrics   *Metrics
	audit     *auditDispatcher
	closed    atomic.Bool
	now       func() time.Time
}

// Close flushes pending audit events. Calls after Close fail with ErrClientNotReady.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closed.Store(true)
	if c.audit != nil {
		c.audit.Close()
	}
}

// Config returns a copy of the client configuration.
func (c *Client) Config() Config {
	return cloneConfig(c.cfg)
}

func (c *Client) AuditDropped() uint64 {
	if c == nil || c.audit == nil {
		return 0
	}
	return c.audit.Dropped()
}

func (c *Client) MetricsSnapshot() MetricsSnapshot {
	if c == nil || c.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return c.metrics.Snapshot()
}

func (c *Client) metricInc(id MetricID) {
	if c == nil || c.metrics == nil {
		return
	}
	c.metrics.Inc(id)
}

func (c *Client) metricObserve(id MetricID, d time.Duration) {
	if c == nil || c.metrics == nil {
		return
	}
	c.metrics.Observe(id, d)
}

// NewSession returns an empty session with a generated client id.
func (c *Client) NewSession() *session.Session {
	return session.New("")
}

// WebServices returns the service map of the last login.
func (c *Client) WebServices(sess *session.Session) (map[string]any, error) {
	if sess == nil {
		return nil, ErrNilSession
	}
	return sess.Snapshot().ServiceMap, nil
}

func (c *Client) ready() error {
	if c == nil || c.transport == nil || c.closed.Load() {
		return ErrClientNotReady
	}
	return nil
}

// requireValid checks that sess holds an unexpired login.
func (c *Client) requireValid(sess *session.Session) (session.Snapshot, error) {
	if sess == nil {
		return session.Snapshot{}, ErrNilSession
	}
	snap := sess.Snapshot()
	switch snap.State(c.now()) {
	case session.Unauthenticated:
		return snap, ErrNotAuthenticated
	case session.Expired:
		return snap, ErrSessionExpired
	}
	return snap, nil
}

type call struct {
	op     string
	method string
	url    string
	query  url.Values
	header http.Header
	body   []byte
	jar    http.CookieJar
}

func (c *Client) roundTrip(ctx context.Context, req call) (*transport.Response, error) {
	resp, err := c.transport.Do(ctx, transport.Request{
		Op:     req.op,
		Method: req.method,
		URL:    req.url,
		Query:  req.query,
		Header: req.header,
		Body:   req.body,
		Jar:    req.jar,
	})
	if err != nil {
		c.metricInc(MetricNetworkError)
		return nil, &NetworkError{Op: req.op, URL: req.url, Err: err}
	}
	c.metricObserve(MetricRequestLatency, resp.Duration)
	return resp, nil
}

func (c *Client) setupURL(path string) string {
	return c.cfg.Endpoints.SetupRoot + path
}

// setupQuery carries the client id and build, plus dsid once logged in.
func (c *Client) setupQuery(snap session.Snapshot) url.Values {
	q := url.Values{}
	q.Set("clientId", snap.ClientID)
	q.Set("clientBuildNumber", c.cfg.Client.BuildNumber)
	if snap.SessionID != "" {
		q.Set("dsid", snap.SessionID)
	}
	return q
}

/*
====================================
PERSISTENCE
====================================
*/

// SaveSession stores sess in Redis until it expires.
func (c *Client) SaveSession(ctx context.Context, sess *session.Session) error {
	if c.sessions == nil {
		return ErrStoreNotConfigured
	}
	if sess == nil {
		return ErrNilSession
	}
	if err := c.sessions.Save(ctx, sess); err != nil {
		return err
	}
	c.metricInc(MetricSessionSaved)
	return nil
}

// LoadSession fetches a stored session by client id.
func (c *Client) LoadSession(ctx context.Context, clientID string) (*session.Session, error) {
	if c.sessions == nil {
		return nil, ErrStoreNotConfigured
	}
	sess, err := c.sessions.Load(ctx, clientID)
	if err != nil {
		return nil, err
	}
	c.metricInc(MetricSessionLoaded)
	return sess, nil
}

// DeleteSession removes a stored session. Deleting a missing session is not an error.
func (c *Client) DeleteSession(ctx context.Context, clientID string) error {
	if c.sessions == nil {
		return ErrStoreNotConfigured
	}
	return c.sessions.Delete(ctx, clientID)
}

// SealSession returns a signed handoff token carrying sess.
func (c *Client) SealSession(ctx context.Context, sess *session.Session) (string, error) {
	if c.handoff == nil {
		return "", ErrHandoffDisabled
	}
	if sess == nil {
		return "", ErrNilSession
	}
	token, err := c.handoff.Seal(sess)
	if err != nil {
		return "", fmt.Errorf("seal session: %w", err)
	}
	c.metricInc(MetricHandoffSealed)
	snap := sess.Snapshot()
	c.emitAudit(ctx, auditEventHandoffSealed, true, snap, nil, nil)
	return token, nil
}

// OpenSession verifies a handoff token and returns the session it carries.
func (c *Client) OpenSession(ctx context.Context, token string) (*session.Session, error) {
	if c.handoff == nil {
		return nil, ErrHandoffDisabled
	}
	sess, err := c.handoff.Open(token)
	if err != nil {
		c.emitAudit(ctx, auditEventHandoffOpened, false, session.Snapshot{}, err, nil)
		return nil, fmt.Errorf("open session: %w", err)
	}
	c.metricInc(MetricHandoffOpened)
	c.emitAudit(ctx, auditEventHandoffOpened, true, sess.Snapshot(), nil, nil)
	return sess, nil
}
