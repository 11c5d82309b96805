package goIdentity

import (
	"context"
	"errors"

	internalaudit "github.com/MrEthical07/goIdentity/internal/audit"
)

const (
	auditEventLoginSuccess          = "login_success"
	auditEventLoginFailure          = "login_failure"
	auditEventStepUpBegin           = "step_up_begin"
	auditEventStepUpComplete        = "step_up_complete"
	auditEventPasswordResetRequest  = "password_reset_request"
	auditEventPasswordResetVerify   = "password_reset_verify"
	auditEventPasswordResetComplete = "password_reset_complete"
	auditEventPasswordChange        = "password_change"
	auditEventExternalLogin         = "external_login"
	auditEventCodeDeliveryFailed    = internalaudit.EventCodeDeliveryFailed
	auditEventCodesSwept            = "codes_swept"
	auditEventRateLimitTriggered    = "rate_limit_triggered"
)

// AuditErrorCode is the stable error string recorded on audit events.
type AuditErrorCode string

const (
	auditErrUnauthorized    AuditErrorCode = "unauthorized"
	auditErrAccountLocked   AuditErrorCode = "account_locked"
	auditErrCodeInvalid     AuditErrorCode = "code_invalid"
	auditErrCodeExpired     AuditErrorCode = "code_expired"
	auditErrNotFound        AuditErrorCode = "not_found"
	auditErrDelivery        AuditErrorCode = "delivery_failure"
	auditErrRateLimited     AuditErrorCode = "rate_limited"
	auditErrPasswordPolicy  AuditErrorCode = "password_policy"
	auditErrFeatureDisabled AuditErrorCode = "feature_disabled"
	auditErrInvalidRequest  AuditErrorCode = "invalid_request"
	auditErrUnavailable     AuditErrorCode = "backend_unavailable"
	auditErrCanceled        AuditErrorCode = "canceled"
	auditErrInternal        AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	tenantID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}
	if tenantID == "" {
		tenantID = tenantIDFromContext(ctx)
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		EventType: eventType,
		AccountID: accountID,
		TenantID:  tenantID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

// emitDeliveryFailure records a code message that could not be sent. These
// events are retained by the dispatcher even when it drops on a full buffer.
func (e *Engine) emitDeliveryFailure(ctx context.Context, purpose, channel, accountID, tenantID string, err error) {
	if e == nil || e.audit == nil {
		return
	}
	if tenantID == "" {
		tenantID = tenantIDFromContext(ctx)
	}
	failure := internalaudit.DeliveryFailure{
		Purpose:   purpose,
		Channel:   channel,
		AccountID: accountID,
		TenantID:  tenantID,
		IP:        clientIPFromContext(ctx),
		Error:     string(auditErrorCode(err)),
	}
	e.audit.Emit(ctx, failure.Event())
}

func (e *Engine) emitRateLimit(
	ctx context.Context,
	scope string,
	tenantID string,
	metadataBuilder func() map[string]string,
) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", tenantID, ErrRateLimited, func() map[string]string {
		base := map[string]string{
			"scope": scope,
		}
		if metadataBuilder == nil {
			return base
		}
		for k, v := range metadataBuilder() {
			base[k] = v
		}
		return base
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrCodeInvalid):
		return auditErrCodeInvalid
	case errors.Is(err, ErrCodeExpired):
		return auditErrCodeExpired
	case errors.Is(err, ErrNotFound):
		return auditErrNotFound
	case errors.Is(err, ErrDeliveryFailure):
		return auditErrDelivery
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrFeatureDisabled):
		return auditErrFeatureDisabled
	case errors.Is(err, ErrInvalidRequest):
		return auditErrInvalidRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return auditErrCanceled
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrEngineNotReady):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
