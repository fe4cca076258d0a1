package record

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"
	"unicode/utf8"
)

// GetString renders name as text. STRING is returned verbatim, INT64 and
// TIMESTAMP as decimal, ENCRYPTED_BYTES as its base64-decoded UTF-8 text. Any
// other tag, a missing field, or undecodable bytes yields def.
func (r *Record) GetString(name, def string) string {
	v, ok := r.Field(name)
	if !ok {
		return def
	}
	switch t := v.(type) {
	case StringValue:
		return string(t)
	case IntValue:
		return strconv.FormatInt(int64(t), 10)
	case TimestampValue:
		return strconv.FormatInt(int64(t), 10)
	case BytesValue:
		b, ok := decodeBase64(string(t))
		if !ok || !utf8.Valid(b) {
			return def
		}
		return string(b)
	default:
		return def
	}
}

// GetLong returns name as a 64-bit integer. INT64 and TIMESTAMP carry it
// directly; STRING is parsed as a base-10 integer. Anything else yields def.
func (r *Record) GetLong(name string, def int64) int64 {
	v, ok := r.Field(name)
	if !ok {
		return def
	}
	switch t := v.(type) {
	case IntValue:
		return int64(t)
	case TimestampValue:
		return int64(t)
	case StringValue:
		n, err := strconv.ParseInt(strings.TrimSpace(string(t)), 10, 64)
		if err != nil {
			return def
		}
		return n
	default:
		return def
	}
}

// GetBytes returns the decoded payload of an ENCRYPTED_BYTES field. The result is
// never nil; other tags and invalid base64 give an empty slice.
func (r *Record) GetBytes(name string) []byte {
	v, ok := r.Field(name)
	if !ok {
		return []byte{}
	}
	t, ok := v.(BytesValue)
	if !ok {
		return []byte{}
	}
	b, ok := decodeBase64(string(t))
	if !ok {
		return []byte{}
	}
	return b
}

// GetReference returns the target record name of a REFERENCE field.
func (r *Record) GetReference(name string) (string, bool) {
	v, ok := r.Field(name)
	if !ok {
		return "", false
	}
	t, ok := v.(ReferenceValue)
	if !ok || t.RecordName == "" {
		return "", false
	}
	return t.RecordName, true
}

// GetMap returns an object-valued field with every leaf rendered as text.
// Nested objects stay nested and arrays are converted element-wise.
func (r *Record) GetMap(name string) (map[string]any, bool) {
	v, ok := r.Field(name)
	if !ok {
		return nil, false
	}
	var m map[string]any
	switch t := v.(type) {
	case ReferenceValue:
		m = t.Raw
	case MapValue:
		m = t.Value
	default:
		return nil, false
	}
	if m == nil {
		return nil, false
	}
	return flattenLeaves(m).(map[string]any), true
}

func flattenLeaves(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = flattenLeaves(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = flattenLeaves(e)
		}
		return out
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

// decodeBase64 accepts standard and URL-safe alphabets, padded or not.
func decodeBase64(s string) ([]byte, bool) {
	s = strings.TrimSpace(s)
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, true
		}
	}
	return nil, false
}
