package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/llmgate/internal/gate/service"
	"github.com/aussiebroadwan/llmgate/pkg/cryptox"
	"github.com/aussiebroadwan/llmgate/pkg/httpx"
	"github.com/aussiebroadwan/llmgate/pkg/slogx"
)

// stateCookie carries the OAuth2 CSRF state between /login and /callback.
const stateCookie = "gate_oauth_state"

type LoginHandler struct {
	LoginService *service.LoginService
}

// HandleLogin kicks off the OIDC code flow: mint a CSRF state, pin it in a
// short-lived cookie, and bounce to the provider.
func (h *LoginHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := cryptox.GenerateToken(16)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "internal error", "")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.LoginService.LoginURL(state), http.StatusFound)
}

// HandleCallback finishes the code flow: check the CSRF state, exchange the
// code, and set the session cookie.
func (h *LoginHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != r.URL.Query().Get("state") {
		log.Warn("oauth state mismatch")
		httpx.WriteError(w, http.StatusBadRequest, "invalid state", "restart sign-in at /login")
		return
	}

	// State is single use.
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	code := r.URL.Query().Get("code")
	if code == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing code", "restart sign-in at /login")
		return
	}

	token, err := h.LoginService.HandleCallback(ctx, code)
	switch {
	case errors.Is(err, service.ErrEmailNotVerified):
		httpx.WriteError(w, http.StatusForbidden, "email not verified",
			"verify your email with the identity provider first")
		return
	case errors.Is(err, service.ErrDomainNotAllowed):
		httpx.WriteError(w, http.StatusForbidden, "account not allowed",
			"sign in with your organisation account")
		return
	case err != nil:
		log.Error("callback failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "sign-in failed", "try again")
		return
	}

	httpx.SetSessionCookie(w, token, int(h.LoginService.Sessions.TTL().Seconds()))
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

// HandleLogout clears the session cookie. The token itself stays valid until
// expiry; there is no server-side session state to destroy.
func (h *LoginHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	httpx.ClearSessionCookie(w)
	http.Redirect(w, r, "/", http.StatusFound)
}
