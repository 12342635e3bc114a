package twitchapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/twitch"
)

// UserToken describes the bot account's user access token.
// NOTE: an app access (client credentials) token cannot be used here; chat and
// the VIP endpoint both require a user token with chat:read and channel:manage:vips.
type UserToken struct {
	ClientID     string
	ClientSecret string
	AccessToken  string
	RefreshToken string

	// TokenURL overrides the Twitch token endpoint (tests).
	TokenURL   string
	HTTPClient *http.Client
}

// Source returns a token source for the bot account. With a client secret and
// refresh token the access token is refreshed automatically; otherwise the
// configured access token is served as is.
func (u UserToken) Source(ctx context.Context) (oauth2.TokenSource, error) {
	access := strings.TrimPrefix(u.AccessToken, "oauth:")
	if u.ClientSecret == "" || u.RefreshToken == "" {
		if access == "" {
			return nil, errors.New("missing twitch access token (or client secret and refresh token)")
		}
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: access, TokenType: "Bearer"}), nil
	}
	if u.ClientID == "" {
		return nil, errors.New("missing client id for twitch token refresh")
	}

	endpoint := twitch.Endpoint
	if u.TokenURL != "" {
		endpoint.TokenURL = u.TokenURL
	}
	cfg := &oauth2.Config{
		ClientID:     u.ClientID,
		ClientSecret: u.ClientSecret,
		Endpoint:     endpoint,
	}
	if u.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, u.HTTPClient)
	}
	// An empty access token with a refresh token forces a refresh on first use.
	tok := &oauth2.Token{AccessToken: access, RefreshToken: u.RefreshToken}
	return oauth2.ReuseTokenSource(nil, cfg.TokenSource(ctx, tok)), nil
}
