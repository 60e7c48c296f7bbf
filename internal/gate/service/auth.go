package service

import (
	"context"
	"errors"
	"net/netip"
	"strings"

	"github.com/aussiebroadwan/llmgate/internal/gate/domain"
	"github.com/aussiebroadwan/llmgate/internal/gate/store"
	"github.com/aussiebroadwan/llmgate/pkg/cryptox"
	"github.com/aussiebroadwan/llmgate/pkg/netx"
	"github.com/aussiebroadwan/llmgate/pkg/slogx"
)

var (
	// ErrAuthRequired means the request carried no usable credential and is
	// not campus-eligible.
	ErrAuthRequired = errors.New("authentication required")

	// ErrKeyInvalid means the request carried a proxy token the registry
	// does not recognise as active.
	ErrKeyInvalid = errors.New("invalid or revoked key")
)

// campusSentinel is the literal bearer value that explicitly requests campus
// mode. It is checked before any other credential shape so a client sending
// it can never fall through to passthrough.
const campusSentinel = "campus"

// AuthResolver turns an inbound request's credential (or lack of one) into a
// forwarding decision. Three shapes are distinguished by content alone:
// nothing/"campus" → campus mode, the proxy token prefix → registry lookup,
// anything else → legacy passthrough of the caller's own upstream credential.
type AuthResolver struct {
	Store store.Store

	// PoolKey is the shared upstream credential granted to campus-network
	// clients. Campus mode is off entirely when empty.
	PoolKey string

	// CampusRanges are the network ranges considered on-campus.
	CampusRanges []netip.Prefix
}

// Resolve executes the per-request authorization state machine. It returns
// either a decision to forward with, or ErrAuthRequired / ErrKeyInvalid for
// the handler to turn into a 401.
func (r *AuthResolver) Resolve(ctx context.Context, authorizationHeader, clientIP string) (domain.AuthDecision, error) {
	candidate := strings.TrimSpace(stripBearer(authorizationHeader))

	if candidate == "" || strings.EqualFold(candidate, campusSentinel) {
		if !r.campusEligible(clientIP) {
			return domain.AuthDecision{}, ErrAuthRequired
		}
		return domain.AuthDecision{
			Authorization: "Bearer " + r.PoolKey,
			CampusMode:    true,
		}, nil
	}

	if cryptox.HasProxyTokenPrefix(candidate) {
		rec, err := r.Store.Keys().GetActiveByTokenHash(ctx, cryptox.FingerprintToken(candidate))
		if errors.Is(err, store.ErrNotFound) {
			return domain.AuthDecision{}, ErrKeyInvalid
		}
		if err != nil {
			return domain.AuthDecision{}, err
		}

		return domain.AuthDecision{
			Authorization: "Bearer " + rec.UpstreamKeySecret,
			Email:         rec.Email,
		}, nil
	}

	// Legacy passthrough: the caller brought their own upstream credential.
	// Deliberately unvalidated; the upstream rejects bad credentials itself.
	slogx.FromContext(ctx).Debug("passthrough credential forwarded")
	return domain.AuthDecision{Authorization: authorizationHeader}, nil
}

// campusEligible reports whether the client's network origin grants shared
// pool access.
func (r *AuthResolver) campusEligible(clientIP string) bool {
	return r.PoolKey != "" && netx.AnyRangeContains(clientIP, r.CampusRanges)
}

// stripBearer removes a leading "Bearer " scheme, case-insensitively,
// leaving other header shapes untouched.
func stripBearer(header string) string {
	const scheme = "bearer "
	if len(header) >= len(scheme) && strings.EqualFold(header[:len(scheme)], scheme) {
		return header[len(scheme):]
	}
	return header
}
