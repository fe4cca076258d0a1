package record

import (
	"encoding/json"
	"errors"
)

// Comparator names a filter comparison understood by the record database.
type Comparator string

const (
	Equals              Comparator = "EQUALS"
	NotEquals           Comparator = "NOT_EQUALS"
	LessThan            Comparator = "LESS_THAN"
	LessThanOrEquals    Comparator = "LESS_THAN_OR_EQUALS"
	GreaterThan         Comparator = "GREATER_THAN"
	GreaterThanOrEquals Comparator = "GREATER_THAN_OR_EQUALS"
	In                  Comparator = "IN"
	BeginsWith          Comparator = "BEGINS_WITH"
)

// Filter restricts a query to records whose field compares true against Value.
type Filter struct {
	FieldName  string
	Comparator Comparator
	Value      FieldValue
}

// Sort orders query results by a field.
type Sort struct {
	FieldName string
	Ascending bool
}

// Query is a typed record query. Use [Query.MarshalJSON] or [Query.Build] to
// produce the raw body accepted by the record database.
type Query struct {
	RecordType         string
	Zone               ZoneID
	Filters            []Filter
	SortBy             []Sort
	DesiredKeys        []string
	ResultsLimit       int
	ContinuationMarker string
}

// ErrEmptyRecordType is returned when a query names no record type.
var ErrEmptyRecordType = errors.New("record query requires a record type")

type wireFilter struct {
	FieldName  string     `json:"fieldName"`
	Comparator Comparator `json:"comparator"`
	FieldValue wireValue  `json:"fieldValue"`
}

type wireSort struct {
	FieldName string `json:"fieldName"`
	Ascending bool   `json:"ascending"`
}

type wireQueryBody struct {
	RecordType string       `json:"recordType"`
	FilterBy   []wireFilter `json:"filterBy,omitempty"`
	SortBy     []wireSort   `json:"sortBy,omitempty"`
}

type wireQuery struct {
	Query              wireQueryBody `json:"query"`
	ZoneID             *ZoneID       `json:"zoneID,omitempty"`
	DesiredKeys        []string      `json:"desiredKeys,omitempty"`
	ResultsLimit       int           `json:"resultsLimit,omitempty"`
	ContinuationMarker string        `json:"continuationMarker,omitempty"`
}

// MarshalJSON renders the query in the record database's wire form.
func (q Query) MarshalJSON() ([]byte, error) {
	if q.RecordType == "" {
		return nil, ErrEmptyRecordType
	}
	w := wireQuery{
		Query:              wireQueryBody{RecordType: q.RecordType},
		DesiredKeys:        q.DesiredKeys,
		ResultsLimit:       q.ResultsLimit,
		ContinuationMarker: q.ContinuationMarker,
	}
	if q.Zone.Name != "" {
		zone := q.Zone
		w.ZoneID = &zone
	}
	for _, f := range q.Filters {
		w.Query.FilterBy = append(w.Query.FilterBy, wireFilter{
			FieldName:  f.FieldName,
			Comparator: f.Comparator,
			FieldValue: encodeField(f.Value),
		})
	}
	for _, s := range q.SortBy {
		w.Query.SortBy = append(w.Query.SortBy, wireSort(s))
	}
	return json.Marshal(w)
}

// Build returns the raw JSON body for q.
func (q Query) Build() (json.RawMessage, error) {
	return q.MarshalJSON()
}

// Next returns a copy of q continuing after resp, and false when resp was the
// last page.
func (q Query) Next(resp *QueryResponse) (Query, bool) {
	if resp == nil || resp.ContinuationMarker == "" {
		return q, false
	}
	next := q
	next.ContinuationMarker = resp.ContinuationMarker
	return next, true
}
