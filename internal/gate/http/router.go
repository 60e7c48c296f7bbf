// Package http wires the gateway's HTTP surface: the browser-facing sign-in
// and dashboard routes, the JSON key management API, the health probes, and
// the /v1/* proxy itself.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/llmgate/internal/gate/proxy"
	"github.com/aussiebroadwan/llmgate/internal/gate/service"
	"github.com/aussiebroadwan/llmgate/internal/gate/store"
	"github.com/aussiebroadwan/llmgate/pkg/httpx"
	"github.com/aussiebroadwan/llmgate/pkg/sessionx"
	"github.com/aussiebroadwan/llmgate/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	sessions     *sessionx.Codec
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	baseURL      string

	// trustedIPHeader names the edge-injected client IP header used for
	// campus detection on the proxy path.
	trustedIPHeader string

	store        store.Store
	LoginService *service.LoginService
	KeyService   *service.KeyService
	AuthResolver *service.AuthResolver
	Transformer  *proxy.Transformer
	Forwarder    *proxy.Forwarder
}

func NewRouter(
	sessions *sessionx.Codec,
	buildVersion, baseURL, trustedIPHeader string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:             http.NewServeMux(),
		sessions:        sessions,
		buildVersion:    buildVersion,
		startTime:       time.Now(),
		baseURL:         baseURL,
		trustedIPHeader: trustedIPHeader,
		store:           st,
		logger:          logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerKeys()
	r.registerDashboard()
	r.registerProxy()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	h := &LoginHandler{LoginService: r.LoginService}

	// Sign-in endpoints get strict IP limits; they are the only place an
	// unauthenticated browser can make the gateway do work.
	r.Mux.Handle("GET /login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("GET /callback",
		httpx.Chain(http.HandlerFunc(h.HandleCallback),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("GET /logout", http.HandlerFunc(h.HandleLogout))
}

func (r *Router) registerKeys() {
	h := &KeyHandler{KeyService: r.KeyService}

	// JSON surface, session cookie required.
	secured := func(fn http.HandlerFunc, limit httpx.RateLimitConfig) http.Handler {
		return httpx.Chain(fn,
			httpx.RequireSession(r.sessions),
			httpx.RateLimitByIP(limit),
		)
	}

	r.Mux.Handle("GET /key", secured(h.HandleGet, httpx.ModerateLimit))
	r.Mux.Handle("POST /key", secured(h.HandleCreate, httpx.StrictLimit))
	r.Mux.Handle("DELETE /key", secured(h.HandleDelete, httpx.ModerateLimit))
}

func (r *Router) registerDashboard() {
	h := &DashboardHandler{KeyService: r.KeyService, BaseURL: r.baseURL}

	secured := func(fn http.HandlerFunc) http.Handler {
		return httpx.Chain(fn,
			httpx.RequireSessionOrRedirect(r.sessions),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		)
	}

	r.Mux.Handle("GET /dashboard", secured(h.HandleView))
	r.Mux.Handle("POST /dashboard/key", secured(h.HandleCreateKey))
	r.Mux.Handle("POST /dashboard/key/revoke", secured(h.HandleRevokeKey))

	// The bare root is the natural first visit; send it to the dashboard,
	// which bounces to /login when there is no session.
	r.Mux.Handle("GET /{$}", http.RedirectHandler("/dashboard", http.StatusFound))
}

func (r *Router) registerProxy() {
	h := &ProxyHandler{
		Resolver:        r.AuthResolver,
		Transformer:     r.Transformer,
		Forwarder:       r.Forwarder,
		TrustedIPHeader: r.trustedIPHeader,
	}

	// No rate limit here: inference quota is enforced upstream per managed
	// key, and throttling the hot path would punish legitimate streaming.
	r.Mux.Handle("/v1/", h)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store))
}
