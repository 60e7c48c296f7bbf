package proxy

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/llmgate/internal/gate/domain"
	"github.com/aussiebroadwan/llmgate/pkg/slogx"
)

// hop-by-hop headers per RFC 9110 §7.6.1; never copied across the proxy.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Forwarder relays a request to the upstream inference API with the decided
// authorization, streaming the response back flush by flush so SSE token
// streams arrive as they are produced.
type Forwarder struct {
	// UpstreamBase is the upstream origin, e.g. "https://api.example.com".
	// Joined with the inbound request path as-is.
	UpstreamBase string

	// Client is the HTTP client used for upstream calls. Its timeout must
	// accommodate long streaming completions.
	Client *http.Client
}

func NewForwarder(upstreamBase string) *Forwarder {
	return &Forwarder{
		UpstreamBase: strings.TrimRight(upstreamBase, "/"),
		// No overall timeout: streamed completions can run for minutes.
		// The dial/TLS phases are still bounded by the default transport.
		Client: &http.Client{Timeout: 0},
	}
}

// Forward sends body upstream under decision's credential and copies the
// response verbatim to w. The inbound Host and Authorization never cross;
// everything else the client sent does, minus hop-by-hop headers.
func (f *Forwarder) Forward(ctx context.Context, w http.ResponseWriter, r *http.Request, body []byte, decision domain.AuthDecision) {
	l := slogx.FromContext(ctx)

	target := f.UpstreamBase + r.URL.Path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, target, bytes.NewReader(body))
	if err != nil {
		l.Error("build upstream request", "error", err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}

	copyHeaders(req.Header, r.Header)
	req.Header.Del("Host")
	req.Header.Set("Authorization", decision.Authorization)
	req.ContentLength = int64(len(body))

	start := time.Now()
	resp, err := f.Client.Do(req)
	if err != nil {
		l.Error("upstream request failed", "error", err, "path", r.URL.Path)
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	header := w.Header()
	copyHeaders(header, resp.Header)
	header.Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(resp.StatusCode)

	streamed, err := streamBody(w, resp.Body)
	if err != nil {
		// Mid-stream failures can't change the status line anymore.
		l.Warn("response stream interrupted", "error", err, "bytes", streamed)
	}

	l.Info("request forwarded",
		"path", r.URL.Path,
		"status", resp.StatusCode,
		"campus", decision.CampusMode,
		"duration_ms", time.Since(start).Milliseconds())
}

func copyHeaders(dst, src http.Header) {
	for name, values := range src {
		if isHopHeader(name) {
			continue
		}
		for _, v := range values {
			dst.Add(name, v)
		}
	}
}

func isHopHeader(name string) bool {
	for _, h := range hopHeaders {
		if strings.EqualFold(name, h) {
			return true
		}
	}
	return false
}

// streamBody copies src to w in small chunks, flushing after each so server
// sent events reach the client immediately instead of buffering.
func streamBody(w http.ResponseWriter, src io.Reader) (int64, error) {
	flusher, _ := w.(http.Flusher)

	var total int64
	buf := make([]byte, 32*1024)
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			written, writeErr := w.Write(buf[:n])
			total += int64(written)
			if writeErr != nil {
				return total, writeErr
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr == io.EOF {
			return total, nil
		}
		if readErr != nil {
			return total, readErr
		}
	}
}
