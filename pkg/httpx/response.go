// Package httpx carries the gateway's shared HTTP plumbing: JSON responses,
// middleware composition, session authentication and rate limiting.
package httpx

import (
	"encoding/json"
	"net/http"
)

// WriteJSON writes a JSON response with the given status code. It sets the
// Content-Type and no-store cache headers; everything this gateway returns
// is either credential material or per-user state.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes the standard error envelope: a machine-readable code and
// a human-readable hint telling the caller how to proceed.
func WriteError(w http.ResponseWriter, code int, errCode, hint string) {
	WriteJSON(w, code, map[string]string{
		"error": errCode,
		"hint":  hint,
	})
}

// NoCache sets the Cache-Control and Pragma headers to prevent caching.
func NoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}
