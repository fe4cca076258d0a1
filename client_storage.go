package goICloud

import (
	"context"
	"net/http"

	"github.com/MrEthical07/goICloud/session"
)

// StorageUsage fetches the account's storage report. A body whose success
// field is false is a *ServiceError.
func (c *Client) StorageUsage(ctx context.Context, sess *session.Session) (StorageUsage, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	snap, err := c.requireValid(sess)
	if err != nil {
		return nil, err
	}

	resp, err := c.roundTrip(ctx, call{
		op:     "storage_usage",
		method: http.MethodPost,
		url:    c.setupURL("/storageUsageInfo"),
		query:  c.setupQuery(snap),
		jar:    sess.Cookies(),
	})
	if err != nil {
		c.emitAudit(ctx, auditEventStorageUsageFailure, false, snap, err, nil)
		return nil, err
	}
	m, err := decodeObject("storage_usage", resp.Status, resp.Body)
	if err == nil {
		if ok, present := m["success"].(bool); present && !ok {
			err = &ServiceError{
				Op:              "storage_usage",
				HTTPStatus:      resp.Status,
				ServerErrorCode: firstText(m, "errorCode"),
				ServerMessage:   firstText(m, "error", "errorMessage"),
				RawBody:         cloneBody(resp.Body),
			}
		}
	}
	if err != nil {
		c.metricInc(MetricServiceError)
		c.emitAudit(ctx, auditEventStorageUsageFailure, false, snap, err, nil)
		return nil, err
	}

	c.metricInc(MetricStorageUsage)
	return StorageUsage(session.NormalizeNumbers(m).(map[string]any)), nil
}
