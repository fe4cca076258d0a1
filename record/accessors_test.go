package record

import (
	"encoding/base64"
	"encoding/json"
	"reflect"
	"testing"
)

const fixtureRecord = `{
  "recordName": "AaBbCc01",
  "recordType": "CPLAsset",
  "recordChangeTag": "3x",
  "created": {"timestamp": 1700000000000.0, "userRecordName": "_owner", "deviceID": "D1"},
  "modified": {"timestamp": 1700000005000, "userRecordName": "_owner", "deviceID": "D2"},
  "zoneID": {"zoneName": "PrimarySync", "ownerRecordName": "_owner"},
  "fields": {
    "title":      {"type": "STRING", "value": "Holiday"},
    "count":      {"type": "STRING", "value": "42"},
    "notANumber": {"type": "STRING", "value": "forty-two"},
    "size":       {"type": "INT64", "value": 1700000000000.0},
    "big":        {"type": "INT64", "value": 9007199254740993},
    "added":      {"type": "TIMESTAMP", "value": 1699999999999.9},
    "secret":     {"type": "ENCRYPTED_BYTES", "value": "aGVsbG8="},
    "binary":     {"type": "ENCRYPTED_BYTES", "value": "/w=="},
    "broken":     {"type": "ENCRYPTED_BYTES", "value": "!!!"},
    "master":     {"type": "REFERENCE", "value": {"recordName": "M-1", "action": "DELETE_SELF", "zoneID": {"zoneName": "PrimarySync"}}},
    "orphan":     {"type": "REFERENCE", "value": {"action": "NONE"}},
    "resOriginal":{"type": "ASSETID", "value": {"size": 2048, "downloadURL": "https://cvws.icloud-content.com/x", "wrapped": true, "tags": [1, "a"], "nested": {"n": 1.5}}},
    "ratio":      {"type": "DOUBLE", "value": 0.5},
    "nothing":    {"type": "STRING", "value": null},
    "dropped":    null
  }
}`

func decodeFixture(t *testing.T) *Record {
	t.Helper()
	var r Record
	if err := json.Unmarshal([]byte(fixtureRecord), &r); err != nil {
		t.Fatalf("unmarshal record failed: %v", err)
	}
	return &r
}

func TestRecordMetadata(t *testing.T) {
	r := decodeFixture(t)
	if r.RecordName != "AaBbCc01" || r.RecordType != "CPLAsset" || r.ChangeTag != "3x" {
		t.Fatalf("unexpected identity: %+v", r)
	}
	if r.Created.EpochMillis != 1700000000000 || r.Created.ActorID != "_owner" || r.Created.DeviceID != "D1" {
		t.Fatalf("unexpected created: %+v", r.Created)
	}
	if r.Modified.Time().UnixMilli() != 1700000005000 {
		t.Fatalf("unexpected modified time: %v", r.Modified.Time())
	}
	if r.Zone.Name != "PrimarySync" || r.Zone.OwnerID != "_owner" {
		t.Fatalf("unexpected zone: %+v", r.Zone)
	}
	if _, ok := r.Field("dropped"); ok {
		t.Fatalf("null field must be skipped")
	}
	names := r.FieldNames()
	if names[0] != "added" {
		t.Fatalf("expected sorted names, got %v", names)
	}
}

func TestGetLong(t *testing.T) {
	r := decodeFixture(t)
	cases := []struct {
		field string
		def   int64
		want  int64
	}{
		{"size", -1, 1700000000000},
		{"big", -1, 9007199254740993},
		{"added", -1, 1699999999999},
		{"count", -1, 42},
		{"notANumber", 7, 7},
		{"title", 7, 7},
		{"secret", 7, 7},
		{"ratio", 7, 7},
		{"nothing", 7, 7},
		{"missing", 9, 9},
	}
	for _, tc := range cases {
		if got := r.GetLong(tc.field, tc.def); got != tc.want {
			t.Fatalf("GetLong(%q) = %d, want %d", tc.field, got, tc.want)
		}
	}
}

func TestGetString(t *testing.T) {
	r := decodeFixture(t)
	cases := []struct {
		field string
		want  string
	}{
		{"title", "Holiday"},
		{"size", "1700000000000"},
		{"added", "1699999999999"},
		{"secret", "hello"},
		{"binary", "def"},
		{"broken", "def"},
		{"master", "def"},
		{"ratio", "def"},
		{"missing", "def"},
	}
	for _, tc := range cases {
		if got := r.GetString(tc.field, "def"); got != tc.want {
			t.Fatalf("GetString(%q) = %q, want %q", tc.field, got, tc.want)
		}
	}
}

func TestGetBytes(t *testing.T) {
	r := decodeFixture(t)
	if got := r.GetBytes("secret"); string(got) != "hello" {
		t.Fatalf("GetBytes(secret) = %q", got)
	}
	if got := r.GetBytes("binary"); len(got) != 1 || got[0] != 0xff {
		t.Fatalf("GetBytes(binary) = %v", got)
	}
	for _, field := range []string{"title", "size", "broken", "missing"} {
		got := r.GetBytes(field)
		if got == nil || len(got) != 0 {
			t.Fatalf("GetBytes(%q) must be empty and non-nil, got %#v", field, got)
		}
	}
}

func TestGetReference(t *testing.T) {
	r := decodeFixture(t)
	if name, ok := r.GetReference("master"); !ok || name != "M-1" {
		t.Fatalf("GetReference(master) = %q %v", name, ok)
	}
	for _, field := range []string{"orphan", "title", "resOriginal", "missing"} {
		if _, ok := r.GetReference(field); ok {
			t.Fatalf("GetReference(%q) must be absent", field)
		}
	}
}

func TestGetMap(t *testing.T) {
	r := decodeFixture(t)
	got, ok := r.GetMap("resOriginal")
	if !ok {
		t.Fatalf("expected map for asset field")
	}
	want := map[string]any{
		"size":        "2048",
		"downloadURL": "https://cvws.icloud-content.com/x",
		"wrapped":     "true",
		"tags":        []any{"1", "a"},
		"nested":      map[string]any{"n": "1.5"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("GetMap mismatch:\n got %#v\nwant %#v", got, want)
	}

	ref, ok := r.GetMap("master")
	if !ok || ref["recordName"] != "M-1" {
		t.Fatalf("expected reference object as map, got %#v", ref)
	}
	for _, field := range []string{"title", "size", "missing"} {
		if _, ok := r.GetMap(field); ok {
			t.Fatalf("GetMap(%q) must be absent", field)
		}
	}
}

func TestDecodeFieldIsTagDriven(t *testing.T) {
	v, err := DecodeField([]byte(`{"type":"INT64","value":1700000000000.0}`))
	if err != nil {
		t.Fatalf("DecodeField failed: %v", err)
	}
	if iv, ok := v.(IntValue); !ok || int64(iv) != 1700000000000 {
		t.Fatalf("expected IntValue, got %#v", v)
	}

	v, err = DecodeField([]byte(`{"type":"STRING","value":12}`))
	if err != nil {
		t.Fatalf("DecodeField failed: %v", err)
	}
	if _, ok := v.(UnknownValue); !ok {
		t.Fatalf("numeric value under STRING tag must not become a string: %#v", v)
	}

	if _, err := DecodeField([]byte(`[]`)); err == nil {
		t.Fatalf("expected error for non-object field")
	}
}

func TestFieldsMarshalRoundTrip(t *testing.T) {
	in := Fields{
		"title":  StringValue("x"),
		"size":   IntValue(1 << 53),
		"added":  TimestampValue(1700000000000),
		"secret": BytesValue(base64.StdEncoding.EncodeToString([]byte("hi"))),
		"master": ReferenceValue{RecordName: "M-1"},
	}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var out Fields
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	r := &Record{Fields: out}
	if r.GetLong("size", 0) != 1<<53 || r.GetString("secret", "") != "hi" {
		t.Fatalf("unexpected round trip: %s", data)
	}
	if name, _ := r.GetReference("master"); name != "M-1" {
		t.Fatalf("reference lost: %s", data)
	}
}
