package goICloud

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

var errTrailingData = errors.New("trailing data after JSON value")

// DecodeResponse parses body strictly into T. A non-2xx status or a body
// that does not fit T is reparsed as an open error object and reported as a
// *ServiceError carrying the raw body; a body that is not a JSON object at
// all is reported as a *DecodeError.
//
// A structurally successful decode does not mean the call succeeded; many
// endpoints answer 200 with a success or error field inside the body.
func DecodeResponse[T any](op string, status int, body []byte) (T, error) {
	var out T
	if status >= 200 && status < 300 {
		err := strictUnmarshal(body, &out)
		if err == nil {
			return out, nil
		}
		return out, serviceErrorFrom(op, status, body, err)
	}
	return out, serviceErrorFrom(op, status, body, fmt.Errorf("unexpected status %d", status))
}

// decodeObject parses body as an open JSON object regardless of status.
func decodeObject(op string, status int, body []byte) (map[string]any, error) {
	m, err := openObject(body)
	if err != nil {
		return nil, &DecodeError{Op: op, HTTPStatus: status, RawBody: cloneBody(body), Err: err}
	}
	return m, nil
}

func strictUnmarshal(body []byte, v any) error {
	trimmed := bytes.TrimSpace(body)
	if bytes.Equal(trimmed, []byte("null")) {
		return errors.New("null body")
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errTrailingData
	}
	return nil
}

func openObject(body []byte) (map[string]any, error) {
	var m map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, errors.New("body is not a JSON object")
	}
	return m, nil
}

func serviceErrorFrom(op string, status int, body []byte, cause error) error {
	m, err := openObject(body)
	if err != nil {
		return &DecodeError{Op: op, HTTPStatus: status, RawBody: cloneBody(body), Err: cause}
	}
	return &ServiceError{
		Op:              op,
		HTTPStatus:      status,
		ServerErrorCode: firstText(m, "serverErrorCode", "errorCode"),
		ServerMessage:   firstText(m, "reason", "errorMessage", "errorReason", "error"),
		RawBody:         cloneBody(body),
	}
}

// embeddedFailure returns a *ServiceError when a 2xx body still reports
// failure through success:false, a non-null error or a serverErrorCode.
func embeddedFailure(op string, status int, body []byte, m map[string]any) error {
	failed := false
	if ok, present := m["success"].(bool); present && !ok {
		failed = true
	}
	for _, k := range []string{"error", "serverErrorCode"} {
		if v, ok := m[k]; ok && v != nil {
			failed = true
		}
	}
	if !failed {
		return nil
	}
	return &ServiceError{
		Op:              op,
		HTTPStatus:      status,
		ServerErrorCode: firstText(m, "serverErrorCode", "errorCode"),
		ServerMessage:   firstText(m, "reason", "errorMessage", "errorReason", "error"),
		RawBody:         cloneBody(body),
	}
}

func firstText(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := scalarText(m[k]); ok && s != "" {
			return s
		}
	}
	return ""
}

func scalarText(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

// successFlag reports whether m["success"] is exactly true.
func successFlag(m map[string]any) bool {
	b, ok := m["success"].(bool)
	return ok && b
}

// errorCode reads a numeric errorCode, accepting integral doubles.
func errorCode(m map[string]any) (int64, bool) {
	switch t := m["errorCode"].(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, true
		}
		f, err := t.Float64()
		if err != nil || f != float64(int64(f)) {
			return 0, false
		}
		return int64(f), true
	case float64:
		if t != float64(int64(t)) {
			return 0, false
		}
		return int64(t), true
	default:
		return 0, false
	}
}

func cloneBody(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
