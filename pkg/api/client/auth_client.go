package client

import (
	"net/http"
	"time"

	"github.com/mac-/configurine/pkg/api/service"
	"github.com/mac-/configurine/pkg/auth"
	"github.com/mac-/configurine/pkg/crypto"
	"github.com/mac-/configurine/pkg/types"
)

// AuthClient performs the signed token handshake.
type AuthClient struct {
	client *Client
	signer *crypto.Signer
	clock  func() time.Time
}

// NewAuthClient creates a new auth client.
func NewAuthClient(client *Client) *AuthClient {
	return &AuthClient{client: client, signer: crypto.NewSigner(), clock: time.Now}
}

// Login signs "clientID:timestamp" with the shared key, exchanges it for an access token and
// stores the token on the client for later calls.
func (a *AuthClient) Login(clientID, sharedKey string) (*service.TokenResponse, error) {
	clientID = types.NormalizeClientName(clientID)
	if clientID == "" || sharedKey == "" {
		return nil, types.NewValidationError("client id and shared key are required")
	}

	ts := a.clock().Unix()
	req := service.TokenRequest{
		ClientID:  clientID,
		Timestamp: ts,
		Signature: a.signer.Sign(auth.HandshakeMessage(clientID, ts), sharedKey),
		GrantType: service.GrantClientCredentials,
	}

	ctx, cancel := a.client.Context()
	defer cancel()

	var resp service.TokenResponse
	if err := a.client.do(ctx, http.MethodPost, "/token", nil, req, &resp); err != nil {
		return nil, err
	}
	a.client.SetToken(resp.AccessToken)
	return &resp, nil
}

// TokenExpiry returns when a token expires, read from its payload.
func TokenExpiry(token string) (time.Time, error) {
	tok, err := auth.ParseToken(token)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(tok.ExpiresAt, 0), nil
}
