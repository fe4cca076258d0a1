package goICloud

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/MrEthical07/goICloud/record"
	"github.com/MrEthical07/goICloud/session"
)

// Database queries one record database endpoint. It holds no session; every
// call reads the session it is given at call time.
type Database struct {
	client   *Client
	endpoint string
}

// Database returns a query client for endpoint, a path under the record
// database root such as "/database/1/com.apple.photos.cloud/production/private/records".
// An empty endpoint uses the configured default.
func (c *Client) Database(endpoint string) *Database {
	if endpoint == "" {
		endpoint = c.cfg.Endpoints.RecordEndpoint
	}
	return &Database{client: c, endpoint: "/" + strings.Trim(endpoint, "/")}
}

// Endpoint returns the path queries are sent under.
func (d *Database) Endpoint() string {
	return d.endpoint
}

// Query posts a raw query body and decodes the records. A response without a
// records key yields an empty, non-nil slice.
func (d *Database) Query(ctx context.Context, sess *session.Session, rawQuery json.RawMessage) (*record.QueryResponse, error) {
	c := d.client
	if err := c.ready(); err != nil {
		return nil, err
	}
	snap, err := c.requireValid(sess)
	if err != nil {
		return nil, err
	}
	root, ok := snap.ServiceURL(c.cfg.Endpoints.RecordService)
	if !ok || root == "" {
		return nil, fmt.Errorf("%w: %s", ErrServiceUnavailable, c.cfg.Endpoints.RecordService)
	}

	resp, err := c.roundTrip(ctx, call{
		op:     "record_query",
		method: http.MethodPost,
		url:    strings.TrimRight(root, "/") + d.endpoint + "/query",
		query:  d.queryParams(snap),
		header: http.Header{"clientMasteringNumber": {c.cfg.Client.RecordMasteringNumber}},
		body:   rawQuery,
		jar:    sess.Cookies(),
	})
	if err != nil {
		d.failed(ctx, snap, err)
		return nil, err
	}
	out, err := decodeQueryResponse(resp.Status, resp.Body)
	if err != nil {
		c.metricInc(MetricServiceError)
		d.failed(ctx, snap, err)
		return nil, err
	}
	c.metricInc(MetricQuerySuccess)
	return &out, nil
}

// decodeQueryResponse rejects bodies that carry a database error before
// treating a missing records key as empty.
func decodeQueryResponse(status int, body []byte) (record.QueryResponse, error) {
	const op = "record_query"
	out, err := DecodeResponse[record.QueryResponse](op, status, body)
	if err != nil {
		return record.QueryResponse{}, err
	}
	m, err := decodeObject(op, status, body)
	if err != nil {
		return record.QueryResponse{}, err
	}
	if err := embeddedFailure(op, status, body, m); err != nil {
		return record.QueryResponse{}, err
	}
	return out, nil
}

// QueryRecords runs a typed query.
func (d *Database) QueryRecords(ctx context.Context, sess *session.Session, q record.Query) (*record.QueryResponse, error) {
	body, err := q.Build()
	if err != nil {
		return nil, err
	}
	return d.Query(ctx, sess, body)
}

// QueryAll follows continuation markers and calls fn for every record. It
// stops at the first error from the service or from fn, and with
// ErrContinuationLoop when the service repeats a marker.
func (d *Database) QueryAll(ctx context.Context, sess *session.Session, q record.Query, fn func(record.Record) error) error {
	for {
		resp, err := d.QueryRecords(ctx, sess, q)
		if err != nil {
			return err
		}
		for _, r := range resp.Records {
			if err := fn(r); err != nil {
				return err
			}
		}
		next, more := q.Next(resp)
		if !more {
			return nil
		}
		if next.ContinuationMarker == q.ContinuationMarker {
			return fmt.Errorf("%w: %q", ErrContinuationLoop, next.ContinuationMarker)
		}
		q = next
	}
}

func (d *Database) queryParams(snap session.Snapshot) url.Values {
	cfg := d.client.cfg.Client
	q := url.Values{}
	q.Set("dsid", snap.SessionID)
	q.Set("ckjsBuildVersion", cfg.RecordBuildVersion)
	q.Set("ckjsVersion", cfg.RecordJSVersion)
	q.Set("getCurrentSyncToken", "true")
	q.Set("clientBuildNumber", cfg.RecordMasteringNumber)
	q.Set("clientMasteringNumber", cfg.RecordMasteringNumber)
	q.Set("remapEnums", "true")
	q.Set("clientId", snap.ClientID)
	q.Set("clientInstanceId", snap.ClientID)
	return q
}

func (d *Database) failed(ctx context.Context, snap session.Snapshot, err error) {
	d.client.metricInc(MetricQueryFailure)
	d.client.emitAudit(ctx, auditEventQueryFailure, false, snap, err, func() map[string]string {
		return map[string]string{"endpoint": d.endpoint}
	})
}
