package goIdentity

import "errors"

var (
	// ErrUnauthorized is returned for an unknown identifier or a wrong secret. The two are never distinguished.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrAccountLocked is returned when the credential store reports the account as locked.
	ErrAccountLocked = errors.New("account locked")
	// ErrCodeInvalid is returned for a wrong, missing or already consumed one-time code.
	ErrCodeInvalid = errors.New("invalid one-time code")
	// ErrCodeExpired is returned when a matching one-time code is past its expiry.
	ErrCodeExpired = errors.New("one-time code expired")
	// ErrNotFound is returned where enumeration resistance is not required.
	ErrNotFound = errors.New("not found")
	// ErrDeliveryFailure is returned by dispatchers. The engine logs it and never surfaces it from an issuing call.
	ErrDeliveryFailure = errors.New("delivery failure")
	// ErrUnavailable wraps storage and backend failures.
	ErrUnavailable = errors.New("identity backend unavailable")
	// ErrRateLimited is returned when an issuance or redemption throttle trips.
	ErrRateLimited = errors.New("rate limited")
	// ErrPasswordPolicy is returned when a new secret does not satisfy the configured policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrFeatureDisabled is returned when the requested flow is turned off in Config.
	ErrFeatureDisabled = errors.New("feature disabled")
	// ErrInvalidRequest is returned for malformed input such as an empty email or unknown channel.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrEngineNotReady is returned when required dependencies were not configured.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrInvalidConfig is returned by Config.Validate and Builder.Build.
	ErrInvalidConfig = errors.New("invalid config")
)
