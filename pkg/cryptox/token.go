package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// ProxyTokenPrefix is the fixed prefix carried by every proxy access token.
// The auth resolver uses it to tell gateway-issued tokens apart from raw
// upstream credentials supplied by legacy clients.
const ProxyTokenPrefix = "lpk-"

// proxyTokenEntropy is the number of random bytes behind each proxy token
// (128 bits, rendered as 32 hex characters).
const proxyTokenEntropy = 16

// Token size constants (in bytes before encoding).
const (
	// TokenSize128 provides 128 bits of entropy (22 chars base64url).
	TokenSize128 = 16
	// TokenSize256 provides 256 bits of entropy (43 chars base64url).
	TokenSize256 = 32
)

// GenerateToken creates a cryptographically secure random token of the
// specified byte length, base64url-encoded without padding. Used for
// short-lived values like the OIDC state cookie.
func GenerateToken(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("token size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateProxyToken mints a new opaque proxy access token: the fixed prefix
// followed by 32 hex characters from the system CSPRNG. The token carries no
// structure beyond the prefix; it only means something to the key registry.
func GenerateProxyToken() (string, error) {
	buf := make([]byte, proxyTokenEntropy)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate proxy token: %w", err)
	}
	return ProxyTokenPrefix + hex.EncodeToString(buf), nil
}

// HasProxyTokenPrefix reports whether a bearer candidate looks like a
// gateway-issued proxy token.
func HasProxyTokenPrefix(candidate string) bool {
	return strings.HasPrefix(candidate, ProxyTokenPrefix)
}

// FingerprintToken returns a deterministic SHA-256 fingerprint of a token,
// base64url-encoded. Tokens are stored and looked up by fingerprint so the
// registry never holds the client-facing value at rest.
func FingerprintToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
