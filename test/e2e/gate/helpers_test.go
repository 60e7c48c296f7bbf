package gate_test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	httpapi "github.com/aussiebroadwan/llmgate/internal/gate/http"
	"github.com/aussiebroadwan/llmgate/internal/gate/proxy"
	"github.com/aussiebroadwan/llmgate/internal/gate/service"
	"github.com/aussiebroadwan/llmgate/internal/gate/store/drivers/sqlite"
	"github.com/aussiebroadwan/llmgate/internal/gate/upstream"
	"github.com/aussiebroadwan/llmgate/pkg/netx"
	"github.com/aussiebroadwan/llmgate/pkg/sessionx"
	"github.com/aussiebroadwan/llmgate/pkg/slogx"
	"github.com/stretchr/testify/require"
)

/*
 * End-to-end tests run the full gateway in-process: a real router over an
 * in-memory registry, talking to a stub upstream that implements both the
 * admin key API and the inference endpoints.
 */

const (
	sessionSecret = "e2e-session-secret"
	poolKey       = "sk-campus-pool"
	adminKey      = "sk-admin"
	basePrompt    = "You are the university assistant."
	campusPrompt  = "Keep answers short."
)

// stubUpstream fakes the inference platform: managed-key administration plus
// an echo inference endpoint that reports what credential and body arrived.
type stubUpstream struct {
	mu     sync.Mutex
	keys   map[string]stubKey
	nextID int
}

type stubKey struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Secret   string  `json:"secret,omitempty"`
	Disabled bool    `json:"disabled"`
	Requests int64   `json:"request_count"`
	Spend    float64 `json:"spend_usd"`
	Limit    float64 `json:"limit_usd"`
}

func newStubUpstream() *stubUpstream {
	return &stubUpstream{keys: map[string]stubKey{}}
}

func (s *stubUpstream) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/admin/keys", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+adminKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		var req struct {
			Name     string  `json:"name"`
			LimitUSD float64 `json:"limit_usd"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		s.mu.Lock()
		s.nextID++
		key := stubKey{
			ID:     fmt.Sprintf("uk-%d", s.nextID),
			Name:   req.Name,
			Secret: fmt.Sprintf("sk-managed-%d", s.nextID),
			Limit:  req.LimitUSD,
		}
		s.keys[key.ID] = key
		s.mu.Unlock()

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(key)
	})

	mux.HandleFunc("GET /v1/admin/keys/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		key, ok := s.keys[r.PathValue("id")]
		s.mu.Unlock()

		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		key.Secret = ""
		_ = json.NewEncoder(w).Encode(key)
	})

	// Inference echo: report method, path, authorization and body back.
	mux.HandleFunc("/v1/", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"path":          r.URL.Path,
			"authorization": r.Header.Get("Authorization"),
			"body":          string(body),
		})
	})

	return mux
}

func (s *stubUpstream) deleteKey(id string) {
	s.mu.Lock()
	delete(s.keys, id)
	s.mu.Unlock()
}

// echoResult is what the stub inference endpoint reflects back.
type echoResult struct {
	Path          string `json:"path"`
	Authorization string `json:"authorization"`
	Body          string `json:"body"`
}

type gateway struct {
	URL      string
	Upstream *stubUpstream
	Sessions *sessionx.Codec
	Keys     *service.KeyService
}

// setupGateway builds the whole stack over an in-memory registry and returns
// the running test server.
func setupGateway(t *testing.T) *gateway {
	t.Helper()

	stub := newStubUpstream()
	upstreamSrv := httptest.NewServer(stub.handler())
	t.Cleanup(upstreamSrv.Close)

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	sessions := sessionx.NewCodec(sessionSecret, time.Hour)

	keySvc := &service.KeyService{
		Store:           st,
		Provisioner:     upstream.NewClient(upstreamSrv.URL, adminKey, 10, "monthly"),
		KeyNameTemplate: "gate-{email}",
	}

	logger := slogx.New(slogx.Config{Service: "llmgate-e2e", Level: "error", Format: "text"})

	router := httpapi.NewRouter(sessions, "test", "http://gate.test", "", st, logger)
	router.KeyService = keySvc
	router.AuthResolver = &service.AuthResolver{
		Store:        st,
		PoolKey:      poolKey,
		CampusRanges: netx.ParseRanges("10.0.0.0/8"),
	}
	router.Transformer = &proxy.Transformer{BasePrompt: basePrompt, CampusPrompt: campusPrompt}
	router.Forwarder = proxy.NewForwarder(upstreamSrv.URL)
	router.ApplyRoutes()

	gatewaySrv := httptest.NewServer(router)
	t.Cleanup(gatewaySrv.Close)

	return &gateway{
		URL:      gatewaySrv.URL,
		Upstream: stub,
		Sessions: sessions,
		Keys:     keySvc,
	}
}

// signIn mints a session token directly, standing in for the OIDC flow.
func (g *gateway) signIn(t *testing.T, email string) string {
	t.Helper()
	token, err := g.Sessions.Sign(email, "Test User", "")
	require.NoError(t, err)
	return token
}

// proxyRequest sends an inference request through the gateway and decodes
// the stub's echo.
func proxyRequest(t *testing.T, gatewayURL, path, authorization, body string, campusIP bool) (*http.Response, echoResult) {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, gatewayURL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	if campusIP {
		req.Header.Set("X-Forwarded-For", "10.1.2.3")
	} else {
		req.Header.Set("X-Forwarded-For", "203.0.113.50")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var echo echoResult
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&echo))
	}
	return resp, echo
}
