package internaldefs

import (
	goICloud "github.com/MrEthical07/goICloud"
)

// CounterDef names one client counter for export.
type CounterDef struct {
	ID   goICloud.MetricID
	Name string
	Help string
}

// HistogramDef names one client histogram for export.
type HistogramDef struct {
	ID   goICloud.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in MetricID order.
var CounterDefs = []CounterDef{
	{ID: goICloud.MetricLoginSuccess, Name: "goicloud_login_success_total", Help: "Successful logins."},
	{ID: goICloud.MetricLoginFailure, Name: "goicloud_login_failure_total", Help: "Failed logins."},
	{ID: goICloud.MetricLoginThrottled, Name: "goicloud_login_throttled_total", Help: "Logins refused by the local throttle."},
	{ID: goICloud.MetricChallengeRequired, Name: "goicloud_challenge_required_total", Help: "Logins that required a trusted-device challenge."},
	{ID: goICloud.MetricDevicesListed, Name: "goicloud_devices_listed_total", Help: "Trusted device listings."},
	{ID: goICloud.MetricCodeSent, Name: "goicloud_code_sent_total", Help: "Verification codes sent."},
	{ID: goICloud.MetricCodeSendFailure, Name: "goicloud_code_send_failure_total", Help: "Failed verification code sends."},
	{ID: goICloud.MetricCodeValidated, Name: "goicloud_code_validated_total", Help: "Accepted verification codes."},
	{ID: goICloud.MetricCodeInvalid, Name: "goicloud_code_invalid_total", Help: "Verification codes rejected as wrong."},
	{ID: goICloud.MetricCodeValidateFailure, Name: "goicloud_code_validate_failure_total", Help: "Verification attempts that failed for other reasons."},
	{ID: goICloud.MetricReauthentication, Name: "goicloud_reauthentication_total", Help: "Logins repeated after code validation."},
	{ID: goICloud.MetricStorageUsage, Name: "goicloud_storage_usage_total", Help: "Storage usage lookups."},
	{ID: goICloud.MetricQuerySuccess, Name: "goicloud_query_success_total", Help: "Successful record queries."},
	{ID: goICloud.MetricQueryFailure, Name: "goicloud_query_failure_total", Help: "Failed record queries."},
	{ID: goICloud.MetricNetworkError, Name: "goicloud_network_error_total", Help: "Round trips that failed in transport."},
	{ID: goICloud.MetricServiceError, Name: "goicloud_service_error_total", Help: "Responses the service reported as errors."},
	{ID: goICloud.MetricSessionSaved, Name: "goicloud_session_saved_total", Help: "Sessions written to the store."},
	{ID: goICloud.MetricSessionLoaded, Name: "goicloud_session_loaded_total", Help: "Sessions read from the store."},
	{ID: goICloud.MetricHandoffSealed, Name: "goicloud_handoff_sealed_total", Help: "Handoff tokens issued."},
	{ID: goICloud.MetricHandoffOpened, Name: "goicloud_handoff_opened_total", Help: "Handoff tokens accepted."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goICloud.MetricRequestLatency, Name: "goicloud_request_latency_seconds", Help: "Upstream round-trip latency."},
}

// HistogramBounds are the upper bounds, in seconds, of the eight buckets.
var HistogramBounds = []string{
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"2.5",
	"5",
	"+Inf",
}

// HistogramBoundSuffix is HistogramBounds in a form usable inside names.
var HistogramBoundSuffix = []string{
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"2_5",
	"5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to exactly eight buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
