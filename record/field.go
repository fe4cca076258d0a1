package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// FieldType is the tag the record protocol attaches to every field value.
type FieldType string

const (
	TypeString         FieldType = "STRING"
	TypeInt64          FieldType = "INT64"
	TypeDouble         FieldType = "DOUBLE"
	TypeTimestamp      FieldType = "TIMESTAMP"
	TypeBytes          FieldType = "BYTES"
	TypeEncryptedBytes FieldType = "ENCRYPTED_BYTES"
	TypeReference      FieldType = "REFERENCE"
	TypeAsset          FieldType = "ASSETID"
	TypeLocation       FieldType = "LOCATION"
	TypeStringList     FieldType = "STRING_LIST"
)

// FieldValue is one decoded {type, value} pair. The concrete type is chosen by
// the tag, never by the JSON type of the value:
//
//   - [StringValue] for STRING
//   - [IntValue] for INT64
//   - [TimestampValue] for TIMESTAMP
//   - [BytesValue] for ENCRYPTED_BYTES
//   - [ReferenceValue] for REFERENCE
//   - [MapValue] for any other tag carrying a JSON object
//   - [UnknownValue] for everything else, including malformed values
type FieldValue interface {
	Type() FieldType
	fieldValue()
}

// StringValue is a STRING field.
type StringValue string

// IntValue is an INT64 field.
type IntValue int64

// TimestampValue is a TIMESTAMP field in epoch milliseconds.
type TimestampValue int64

// BytesValue is an ENCRYPTED_BYTES field holding its base64 text as received.
type BytesValue string

// ReferenceValue is a REFERENCE field. Raw keeps the whole nested object.
type ReferenceValue struct {
	RecordName string
	Raw        map[string]any
}

// MapValue is a field of any other tag whose value is a JSON object.
type MapValue struct {
	Tag   FieldType
	Value map[string]any
}

// UnknownValue is a field the decoder has no typed view for. Value is the
// decoded JSON with numbers as [json.Number].
type UnknownValue struct {
	Tag   FieldType
	Value any
}

func (StringValue) Type() FieldType    { return TypeString }
func (IntValue) Type() FieldType       { return TypeInt64 }
func (TimestampValue) Type() FieldType { return TypeTimestamp }
func (BytesValue) Type() FieldType     { return TypeEncryptedBytes }
func (ReferenceValue) Type() FieldType { return TypeReference }
func (v MapValue) Type() FieldType     { return v.Tag }
func (v UnknownValue) Type() FieldType { return v.Tag }

func (StringValue) fieldValue()    {}
func (IntValue) fieldValue()       {}
func (TimestampValue) fieldValue() {}
func (BytesValue) fieldValue()     {}
func (ReferenceValue) fieldValue() {}
func (MapValue) fieldValue()       {}
func (UnknownValue) fieldValue()   {}

type wireField struct {
	Type  FieldType       `json:"type"`
	Value json.RawMessage `json:"value"`
}

// DecodeField turns a raw {type, value} object into its tagged variant.
// Only a structurally invalid object is an error; a value that does not fit its
// tag decodes to [UnknownValue].
func DecodeField(data []byte) (FieldValue, error) {
	var w wireField
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("record field: %w", err)
	}
	var raw any
	if len(w.Value) > 0 {
		dec := json.NewDecoder(bytes.NewReader(w.Value))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("record field %s: %w", w.Type, err)
		}
	}
	return fieldFromValue(w.Type, raw), nil
}

func fieldFromValue(tag FieldType, raw any) FieldValue {
	unknown := UnknownValue{Tag: tag, Value: raw}
	switch tag {
	case TypeString:
		if s, ok := raw.(string); ok {
			return StringValue(s)
		}
	case TypeInt64:
		if n, ok := toInt64(raw); ok {
			return IntValue(n)
		}
	case TypeTimestamp:
		if n, ok := toInt64(raw); ok {
			return TimestampValue(n)
		}
	case TypeEncryptedBytes:
		if s, ok := raw.(string); ok {
			return BytesValue(s)
		}
	case TypeReference:
		if m, ok := raw.(map[string]any); ok {
			name, _ := m["recordName"].(string)
			return ReferenceValue{RecordName: name, Raw: m}
		}
	default:
		if m, ok := raw.(map[string]any); ok {
			return MapValue{Tag: tag, Value: m}
		}
	}
	return unknown
}

// toInt64 reads an integer that may arrive as a double; fractions truncate.
func toInt64(raw any) (int64, bool) {
	num, ok := raw.(json.Number)
	if !ok {
		return 0, false
	}
	if n, err := strconv.ParseInt(num.String(), 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(num.String(), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

// Fields is the decoded field set of a record.
type Fields map[string]FieldValue

// UnmarshalJSON decodes every entry through [DecodeField].
func (f *Fields) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Fields, len(raw))
	for name, body := range raw {
		if bytes.Equal(bytes.TrimSpace(body), []byte("null")) {
			continue
		}
		v, err := DecodeField(body)
		if err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
		out[name] = v
	}
	*f = out
	return nil
}

// MarshalJSON writes the fields back as {type, value} objects.
func (f Fields) MarshalJSON() ([]byte, error) {
	out := make(map[string]wireValue, len(f))
	for name, v := range f {
		out[name] = encodeField(v)
	}
	return json.Marshal(out)
}

type wireValue struct {
	Type  FieldType `json:"type"`
	Value any       `json:"value"`
}

func encodeField(v FieldValue) wireValue {
	switch t := v.(type) {
	case StringValue:
		return wireValue{Type: TypeString, Value: string(t)}
	case IntValue:
		return wireValue{Type: TypeInt64, Value: int64(t)}
	case TimestampValue:
		return wireValue{Type: TypeTimestamp, Value: int64(t)}
	case BytesValue:
		return wireValue{Type: TypeEncryptedBytes, Value: string(t)}
	case ReferenceValue:
		raw := t.Raw
		if raw == nil {
			raw = map[string]any{"recordName": t.RecordName}
		}
		return wireValue{Type: TypeReference, Value: raw}
	case MapValue:
		return wireValue{Type: t.Tag, Value: t.Value}
	case UnknownValue:
		return wireValue{Type: t.Tag, Value: t.Value}
	default:
		return wireValue{}
	}
}
