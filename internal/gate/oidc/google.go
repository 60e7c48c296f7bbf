// Package oidc implements the Google OIDC provider used for dashboard
// sign-in.
package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/aussiebroadwan/llmgate/internal/gate/service"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const userinfoEndpoint = "https://openidconnect.googleapis.com/v1/userinfo"

// GoogleProvider implements service.OAuthProvider against Google's OAuth2
// endpoints.
type GoogleProvider struct {
	cfg *oauth2.Config
}

func NewGoogleProvider(clientID, clientSecret, redirectURL string) *GoogleProvider {
	return &GoogleProvider{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
	}
}

func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.cfg.AuthCodeURL(state)
}

func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return p.cfg.Exchange(ctx, code)
}

// FetchUserInfo retrieves the OIDC userinfo claims for an exchanged token.
func (p *GoogleProvider) FetchUserInfo(ctx context.Context, token *oauth2.Token) (*service.OAuthUserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, userinfoEndpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.cfg.Client(ctx, token).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("userinfo status: %d", resp.StatusCode)
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("missing required userinfo fields")
	}

	return &service.OAuthUserInfo{
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
		Picture:       claims.Picture,
	}, nil
}
