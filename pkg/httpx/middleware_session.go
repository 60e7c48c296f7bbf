package httpx

import (
	"net/http"

	"github.com/aussiebroadwan/llmgate/pkg/sessionx"
	"github.com/aussiebroadwan/llmgate/pkg/slogx"
)

// SessionCookie is the name of the cookie carrying the signed session token.
const SessionCookie = "gate_session"

// RequireSession verifies the session cookie and injects the session into
// the request context. API callers without a valid session get 401 JSON.
func RequireSession(codec *sessionx.Codec) Middleware {
	return requireSession(codec, func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusUnauthorized, "unauthenticated", "sign in at /login first")
	})
}

// RequireSessionOrRedirect is RequireSession for browser pages: missing or
// invalid sessions bounce to /login instead of receiving JSON.
func RequireSessionOrRedirect(codec *sessionx.Codec) Middleware {
	return requireSession(codec, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login", http.StatusFound)
	})
}

func requireSession(codec *sessionx.Codec, reject http.HandlerFunc) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			cookie, err := r.Cookie(SessionCookie)
			if err != nil || cookie.Value == "" {
				reject(w, r)
				return
			}

			sess, err := codec.Verify(cookie.Value)
			if err != nil {
				// Expired or tampered; treat both the same.
				log.Debug("session verification failed", "err", err)
				ClearSessionCookie(w)
				reject(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(contextWithSession(ctx, sess)))
		})
	}
}

// SetSessionCookie writes the signed session token as an HttpOnly cookie.
func SetSessionCookie(w http.ResponseWriter, token string, maxAgeSeconds int) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAgeSeconds,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie immediately.
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}
