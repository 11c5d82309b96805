package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	goIdentity "github.com/MrEthical07/goIdentity"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type apiError struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// statusFor maps the engine's error taxonomy onto HTTP.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, goIdentity.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, goIdentity.ErrAccountLocked):
		return http.StatusLocked, "account_locked"
	case errors.Is(err, goIdentity.ErrCodeInvalid):
		return http.StatusBadRequest, "code_invalid"
	case errors.Is(err, goIdentity.ErrCodeExpired):
		return http.StatusBadRequest, "code_expired"
	case errors.Is(err, goIdentity.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, goIdentity.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, goIdentity.ErrPasswordPolicy):
		return http.StatusUnprocessableEntity, "password_policy"
	case errors.Is(err, goIdentity.ErrFeatureDisabled):
		return http.StatusNotFound, "feature_disabled"
	case errors.Is(err, goIdentity.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, goIdentity.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	rid := chimw.GetReqID(r.Context())
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", rid),
			zap.Error(err),
		)
	}
	writeJSON(w, status, apiError{Error: code, RequestID: rid})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// readJSON decodes a body of at most 64KiB. It writes a 400 and returns
// false when the body is not JSON.
func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if !strings.Contains(ct, "application/json") {
		writeJSON(w, http.StatusUnsupportedMediaType, apiError{Error: "invalid_content_type"})
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil && err != io.EOF {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid_json"})
		return false
	}
	return true
}
