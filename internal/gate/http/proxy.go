package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/aussiebroadwan/llmgate/internal/gate/proxy"
	"github.com/aussiebroadwan/llmgate/internal/gate/service"
	"github.com/aussiebroadwan/llmgate/pkg/httpx"
	"github.com/aussiebroadwan/llmgate/pkg/netx"
	"github.com/aussiebroadwan/llmgate/pkg/slogx"
)

// ProxyHandler is the hot path: every /v1/* request resolves a credential,
// optionally gets its body rewritten, and is relayed upstream.
type ProxyHandler struct {
	Resolver    *service.AuthResolver
	Transformer *proxy.Transformer
	Forwarder   *proxy.Forwarder

	// TrustedIPHeader names the edge-injected client IP header, if any.
	TrustedIPHeader string
}

func (h *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	clientIP := netx.ClientIP(r, h.TrustedIPHeader)

	decision, err := h.Resolver.Resolve(ctx, r.Header.Get("Authorization"), clientIP)
	switch {
	case errors.Is(err, service.ErrAuthRequired):
		httpx.WriteError(w, http.StatusUnauthorized, "authentication required",
			"create a key on the dashboard or connect from the campus network")
		return
	case errors.Is(err, service.ErrKeyInvalid):
		httpx.WriteError(w, http.StatusUnauthorized, "invalid or revoked key",
			"create a new key on the dashboard")
		return
	case err != nil:
		log.Error("credential resolution failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error", "try again")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "unreadable request body", "")
		return
	}

	if transform := h.Transformer.TransformFor(r.Method, r.URL.Path); transform != nil {
		body = transform(body, decision)
	}

	h.Forwarder.Forward(ctx, w, r, body, decision)
}
