package httpapi

import (
	"net/http"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/middleware"
	"go.uber.org/zap"
)

type credentialResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	AccountID string    `json:"account_id"`
	Name      string    `json:"name,omitempty"`
	Roles     []string  `json:"roles"`
	ExpiresAt time.Time `json:"expires_at"`
}

func newCredentialResponse(c *goIdentity.Credential) credentialResponse {
	return credentialResponse{
		Token:     c.Token,
		TokenType: "Bearer",
		AccountID: c.AccountID,
		Name:      c.Name,
		Roles:     c.Roles,
		ExpiresAt: c.ExpiresAt,
	}
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Identifier string `json:"identifier"`
		Secret     string `json:"secret"`
	}
	if !readJSON(w, r, &body) {
		return
	}

	cred, err := h.svc.Login(r.Context(), body.Identifier, body.Secret)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCredentialResponse(cred))
}

func (h *handler) loginExternal(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Provider    string `json:"provider"`
		ProviderKey string `json:"provider_key"`
		Email       string `json:"email"`
	}
	if !readJSON(w, r, &body) {
		return
	}

	res, err := h.svc.LoginExternal(r.Context(), body.Provider, body.ProviderKey, body.Email)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := map[string]any{"status": res.Status.String()}
	switch res.Status {
	case goIdentity.ExternalAuthenticated:
		out["credential"] = newCredentialResponse(res.Credential)
	case goIdentity.ExternalNeedsLinking:
		out["provider"] = res.Provider
		out["email"] = res.Email
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) beginStepUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Identifier string `json:"identifier"`
		Secret     string `json:"secret"`
		Channel    string `json:"channel"`
	}
	if !readJSON(w, r, &body) {
		return
	}
	if body.Channel == "" {
		body.Channel = string(goIdentity.ChannelEmail)
	}

	ch, err := h.svc.BeginStepUp(r.Context(), body.Identifier, body.Secret, goIdentity.Channel(body.Channel))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"channel":     ch.Channel,
		"destination": ch.Destination,
		"expires_at":  ch.ExpiresAt,
	})
}

func (h *handler) completeStepUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Identifier string `json:"identifier"`
		Secret     string `json:"secret"`
		Code       string `json:"code"`
	}
	if !readJSON(w, r, &body) {
		return
	}

	cred, err := h.svc.CompleteStepUp(r.Context(), body.Identifier, body.Secret, body.Code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCredentialResponse(cred))
}

func (h *handler) requestReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email   string `json:"email"`
		Channel string `json:"channel"`
	}
	if !readJSON(w, r, &body) {
		return
	}
	if body.Channel == "" {
		body.Channel = string(goIdentity.ChannelEmail)
	}

	if err := h.svc.RequestReset(r.Context(), body.Email, goIdentity.Channel(body.Channel)); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *handler) verifyReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if !readJSON(w, r, &body) {
		return
	}

	valid, err := h.svc.VerifyResetCode(r.Context(), body.Email, body.Code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

func (h *handler) completeReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email     string `json:"email"`
		Code      string `json:"code"`
		NewSecret string `json:"new_secret"`
	}
	if !readJSON(w, r, &body) {
		return
	}

	if err := h.svc.CompleteReset(r.Context(), body.Email, body.Code, body.NewSecret); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Identifier    string `json:"identifier"`
		CurrentSecret string `json:"current_secret"`
		NewSecret     string `json:"new_secret"`
	}
	if !readJSON(w, r, &body) {
		return
	}

	if err := h.svc.ChangePassword(r.Context(), body.Identifier, body.CurrentSecret, body.NewSecret); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		h.writeError(w, r, goIdentity.ErrUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account_id": claims.AccountID,
		"name":       claims.Name,
		"roles":      claims.Roles,
		"expires_at": claims.ExpiresAt,
	})
}

func (h *handler) sweep(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.SweepExpiredCodes(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logger.Info("expired codes swept", zap.Int("count", n))
	writeJSON(w, http.StatusOK, map[string]int{"swept": n})
}
