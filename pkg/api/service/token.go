package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/mac-/configurine/pkg/auth"
	"github.com/mac-/configurine/pkg/types"
)

// GrantClientCredentials is the only supported grant_type.
const GrantClientCredentials = "client_credentials"

// TokenRequest is the body of POST /token.
type TokenRequest struct {
	ClientID  string `json:"client_id"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
	GrantType string `json:"grant_type,omitempty"`
}

// ParseTimestamp parses a timestamp sent as a string, as form bodies carry it.
func ParseTimestamp(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, types.NewValidationError("timestamp is required")
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, types.NewValidationError("timestamp must be an integer number of epoch seconds")
	}
	return ts, nil
}

// TokenResponse is returned by a successful handshake.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// TokenService exchanges a signed handshake for an access token and validates tokens.
type TokenService struct {
	authority *auth.Authority
}

func NewTokenService(authority *auth.Authority) *TokenService {
	return &TokenService{authority: authority}
}

// Issue authenticates the handshake and returns a bearer token.
func (s *TokenService) Issue(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	if req.GrantType != "" && req.GrantType != GrantClientCredentials {
		return nil, types.NewValidationError("unsupported grant_type %q", req.GrantType)
	}
	tok, err := s.authority.Authenticate(ctx, req.ClientID, req.Timestamp, req.Signature)
	if err != nil {
		return nil, err
	}
	return &TokenResponse{
		AccessToken: tok.String(),
		TokenType:   types.TokenTypeBearer,
		ExpiresIn:   tok.ExpiresIn(),
	}, nil
}

// Identify returns the identity for a bearer token. An empty token is an anonymous caller.
func (s *TokenService) Identify(ctx context.Context, token string) (*types.Identity, error) {
	if token == "" {
		return nil, nil
	}
	return s.authority.ValidateToken(ctx, token)
}
