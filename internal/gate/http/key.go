package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/llmgate/internal/gate/service"
	"github.com/aussiebroadwan/llmgate/pkg/gatesdk"
	"github.com/aussiebroadwan/llmgate/pkg/httpx"
	"github.com/aussiebroadwan/llmgate/pkg/slogx"
)

// KeyHandler exposes the signed-in user's key lifecycle. The session
// middleware guarantees an authenticated email in context before any of
// these run.
type KeyHandler struct {
	KeyService *service.KeyService
}

// HandleGet returns the user's key status, healing upstream drift on read.
func (h *KeyHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, _ := httpx.SessionFromCtx(ctx)

	status, err := h.KeyService.Status(ctx, sess.Email)
	if err != nil {
		slogx.FromContext(ctx).Error("key status failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "key status unavailable", "try again")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, status)
}

// HandleCreate issues a proxy token. The plaintext appears in this response
// and nowhere else afterwards.
func (h *KeyHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, _ := httpx.SessionFromCtx(ctx)

	token, err := h.KeyService.Create(ctx, sess.Email)
	switch {
	case errors.Is(err, service.ErrKeyExists):
		httpx.WriteError(w, http.StatusConflict, "key already exists",
			"revoke the existing key before creating a new one")
		return
	case err != nil:
		slogx.FromContext(ctx).Error("key creation failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "key creation failed", "try again")
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, gatesdk.KeyCreatedResponse{Key: token})
}

// HandleDelete revokes the user's proxy token immediately.
func (h *KeyHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, _ := httpx.SessionFromCtx(ctx)

	err := h.KeyService.Revoke(ctx, sess.Email)
	switch {
	case errors.Is(err, service.ErrKeyNotFound):
		httpx.WriteError(w, http.StatusNotFound, "no active key", "")
		return
	case err != nil:
		slogx.FromContext(ctx).Error("key revocation failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "key revocation failed", "try again")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
