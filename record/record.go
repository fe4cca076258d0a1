package record

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Timestamp marks when and by whom a record was created or modified.
type Timestamp struct {
	EpochMillis int64  `json:"timestamp"`
	ActorID     string `json:"userRecordName,omitempty"`
	DeviceID    string `json:"deviceID,omitempty"`
}

// UnmarshalJSON accepts the epoch value as an integer or a double.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var w struct {
		Timestamp      json.Number `json:"timestamp"`
		UserRecordName string      `json:"userRecordName"`
		DeviceID       string      `json:"deviceID"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	t.ActorID = w.UserRecordName
	t.DeviceID = w.DeviceID
	t.EpochMillis = 0
	if w.Timestamp == "" {
		return nil
	}
	n, ok := toInt64(w.Timestamp)
	if !ok {
		return fmt.Errorf("record timestamp %q out of range", w.Timestamp)
	}
	t.EpochMillis = n
	return nil
}

// Time converts the timestamp to a [time.Time]; zero stays zero.
func (t Timestamp) Time() time.Time {
	if t.EpochMillis == 0 {
		return time.Time{}
	}
	return time.UnixMilli(t.EpochMillis)
}

// ZoneID addresses the zone a record lives in.
type ZoneID struct {
	Name    string `json:"zoneName"`
	OwnerID string `json:"ownerRecordName,omitempty"`
}

// Record is one typed record returned by the record database.
type Record struct {
	RecordName string    `json:"recordName"`
	RecordType string    `json:"recordType"`
	ChangeTag  string    `json:"recordChangeTag,omitempty"`
	Created    Timestamp `json:"created"`
	Modified   Timestamp `json:"modified"`
	Zone       ZoneID    `json:"zoneID"`
	Fields     Fields    `json:"fields"`
}

// Field returns the raw tagged value of name.
func (r *Record) Field(name string) (FieldValue, bool) {
	if r == nil || r.Fields == nil {
		return nil, false
	}
	v, ok := r.Fields[name]
	return v, ok
}

// FieldNames returns the record's field names in sorted order.
func (r *Record) FieldNames() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.Fields))
	for name := range r.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// QueryResponse is the body of a record query.
type QueryResponse struct {
	Records            []Record `json:"records"`
	SyncToken          string   `json:"syncToken,omitempty"`
	ContinuationMarker string   `json:"continuationMarker,omitempty"`
}

// UnmarshalJSON guarantees Records is non-nil, empty when the key is absent.
func (q *QueryResponse) UnmarshalJSON(data []byte) error {
	type plain QueryResponse
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.Records == nil {
		p.Records = []Record{}
	}
	*q = QueryResponse(p)
	return nil
}
