package internaldefs

import (
	goIdentity "github.com/MrEthical07/goIdentity"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   goIdentity.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   goIdentity.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goIdentity.MetricLoginSuccess, Name: "goidentity_login_success_total", Help: "Successful password logins."},
	{ID: goIdentity.MetricLoginFailure, Name: "goidentity_login_failure_total", Help: "Failed password logins."},
	{ID: goIdentity.MetricLoginLocked, Name: "goidentity_login_locked_total", Help: "Logins refused because the account is locked."},
	{ID: goIdentity.MetricCredentialIssued, Name: "goidentity_credential_issued_total", Help: "Credentials issued."},
	{ID: goIdentity.MetricCredentialRejected, Name: "goidentity_credential_rejected_total", Help: "Credentials rejected by verification."},
	{ID: goIdentity.MetricStepUpIssued, Name: "goidentity_step_up_issued_total", Help: "Step-up codes issued."},
	{ID: goIdentity.MetricStepUpSuccess, Name: "goidentity_step_up_success_total", Help: "Completed step-up logins."},
	{ID: goIdentity.MetricStepUpFailure, Name: "goidentity_step_up_failure_total", Help: "Failed step-up attempts."},
	{ID: goIdentity.MetricCodeInvalid, Name: "goidentity_code_invalid_total", Help: "Redemptions with a wrong or missing code."},
	{ID: goIdentity.MetricCodeExpired, Name: "goidentity_code_expired_total", Help: "Redemptions of an expired code."},
	{ID: goIdentity.MetricResetRequest, Name: "goidentity_reset_request_total", Help: "Password reset requests."},
	{ID: goIdentity.MetricResetUnknownSubject, Name: "goidentity_reset_unknown_subject_total", Help: "Reset requests for unregistered emails."},
	{ID: goIdentity.MetricResetVerify, Name: "goidentity_reset_verify_total", Help: "Reset code checks."},
	{ID: goIdentity.MetricResetSuccess, Name: "goidentity_reset_success_total", Help: "Completed password resets."},
	{ID: goIdentity.MetricResetFailure, Name: "goidentity_reset_failure_total", Help: "Failed password reset completions."},
	{ID: goIdentity.MetricPasswordChangeSuccess, Name: "goidentity_password_change_success_total", Help: "Successful password changes."},
	{ID: goIdentity.MetricPasswordChangeFailure, Name: "goidentity_password_change_failure_total", Help: "Failed password changes."},
	{ID: goIdentity.MetricExternalAuthenticated, Name: "goidentity_external_authenticated_total", Help: "Federated logins for linked accounts."},
	{ID: goIdentity.MetricExternalNeedsLinking, Name: "goidentity_external_needs_linking_total", Help: "Federated logins with no linked account."},
	{ID: goIdentity.MetricExternalFailure, Name: "goidentity_external_failure_total", Help: "Failed federated logins."},
	{ID: goIdentity.MetricRateLimitHit, Name: "goidentity_rate_limit_hit_total", Help: "Throttle checks that denied a request."},
	{ID: goIdentity.MetricDeliverySuccess, Name: "goidentity_delivery_success_total", Help: "Code messages handed to the dispatcher."},
	{ID: goIdentity.MetricDeliveryFailure, Name: "goidentity_delivery_failure_total", Help: "Code messages the dispatcher failed to send."},
	{ID: goIdentity.MetricCodesSwept, Name: "goidentity_codes_swept_total", Help: "Expired codes removed by the sweeper."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goIdentity.MetricDeliveryLatency, Name: "goidentity_delivery_latency_seconds", Help: "Code delivery latency."},
}

// AuditDroppedName is the counter for audit events dropped on a full buffer.
const AuditDroppedName = "goidentity_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

// HistogramUpperBounds are the finite bucket bounds in seconds. The last
// engine bucket is +Inf and has no entry here.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling missing
// buckets.
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
