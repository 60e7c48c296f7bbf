package http

import (
	"embed"
	"errors"
	"html/template"
	"net/http"

	"github.com/aussiebroadwan/llmgate/internal/gate/service"
	"github.com/aussiebroadwan/llmgate/pkg/httpx"
	"github.com/aussiebroadwan/llmgate/pkg/sessionx"
	"github.com/aussiebroadwan/llmgate/pkg/slogx"
)

//go:embed templates/*.html
var templateFS embed.FS

var dashboardTmpl = template.Must(template.ParseFS(templateFS, "templates/dashboard.html"))

// DashboardHandler renders the signed-in landing page and serves its form
// posts. The JSON surface under /key covers the same operations for API
// consumers; these routes exist so a browser never sees raw JSON.
type DashboardHandler struct {
	KeyService *service.KeyService

	// BaseURL is the externally visible origin shown in usage instructions.
	BaseURL string
}

type dashboardView struct {
	Session  sessionx.Session
	Status   service.KeyStatus
	NewToken string
	BaseURL  string
}

// HandleView renders the dashboard with current key status.
func (h *DashboardHandler) HandleView(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "")
}

// HandleCreateKey processes the create form and re-renders with the one-time
// token visible.
func (h *DashboardHandler) HandleCreateKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, _ := httpx.SessionFromCtx(ctx)

	token, err := h.KeyService.Create(ctx, sess.Email)
	if errors.Is(err, service.ErrKeyExists) {
		// Someone double-submitted; just show the current state.
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	if err != nil {
		slogx.FromContext(ctx).Error("dashboard key creation failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "key creation failed", "try again")
		return
	}

	h.render(w, r, token)
}

// HandleRevokeKey processes the revoke form.
func (h *DashboardHandler) HandleRevokeKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, _ := httpx.SessionFromCtx(ctx)

	err := h.KeyService.Revoke(ctx, sess.Email)
	if err != nil && !errors.Is(err, service.ErrKeyNotFound) {
		slogx.FromContext(ctx).Error("dashboard key revocation failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "key revocation failed", "try again")
		return
	}

	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (h *DashboardHandler) render(w http.ResponseWriter, r *http.Request, newToken string) {
	ctx := r.Context()
	sess, _ := httpx.SessionFromCtx(ctx)

	status, err := h.KeyService.Status(ctx, sess.Email)
	if err != nil {
		slogx.FromContext(ctx).Error("dashboard status failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "dashboard unavailable", "try again")
		return
	}

	httpx.NoCache(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTmpl.Execute(w, dashboardView{
		Session:  sess,
		Status:   status,
		NewToken: newToken,
		BaseURL:  h.BaseURL,
	}); err != nil {
		slogx.FromContext(ctx).Error("dashboard render failed", "error", err)
	}
}
