package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aussiebroadwan/llmgate/pkg/sessionx"
	"github.com/aussiebroadwan/llmgate/pkg/slogx"
	"golang.org/x/oauth2"
)

var (
	// ErrEmailNotVerified rejects identities the provider has not verified.
	ErrEmailNotVerified = errors.New("email not verified by provider")

	// ErrDomainNotAllowed rejects identities outside the configured domain.
	ErrDomainNotAllowed = errors.New("email domain not allowed")
)

// OAuthUserInfo is the identity the OIDC provider vouches for.
type OAuthUserInfo struct {
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// OAuthProvider is the sign-in collaborator: redirect URL construction, code
// exchange, and userinfo retrieval.
type OAuthProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	FetchUserInfo(ctx context.Context, token *oauth2.Token) (*OAuthUserInfo, error)
}

// LoginService drives the OIDC code flow and mints session tokens for
// verified members of the allowed domain.
type LoginService struct {
	Provider OAuthProvider
	Sessions *sessionx.Codec

	// AllowedDomain restricts sign-in to one email domain; empty allows any
	// verified account.
	AllowedDomain string
}

// LoginURL returns the provider redirect for the given CSRF state.
func (s *LoginService) LoginURL(state string) string {
	return s.Provider.AuthCodeURL(state)
}

// HandleCallback exchanges the authorization code, validates the identity,
// and returns a signed session token ready to be set as a cookie.
func (s *LoginService) HandleCallback(ctx context.Context, code string) (string, error) {
	l := slogx.FromContext(ctx)

	tok, err := s.Provider.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("code exchange: %w", err)
	}

	info, err := s.Provider.FetchUserInfo(ctx, tok)
	if err != nil {
		return "", fmt.Errorf("fetch userinfo: %w", err)
	}

	if !info.EmailVerified {
		return "", ErrEmailNotVerified
	}
	if s.AllowedDomain != "" && !strings.EqualFold(emailDomain(info.Email), s.AllowedDomain) {
		l.Warn("sign-in rejected for domain", "email", info.Email)
		return "", ErrDomainNotAllowed
	}

	session, err := s.Sessions.Sign(info.Email, info.Name, info.Picture)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}

	l.Info("user signed in", "email", info.Email)
	return session, nil
}

func emailDomain(email string) string {
	_, domain, _ := strings.Cut(email, "@")
	return domain
}
