// Package twitchapi contains minimal helpers for the Twitch Helix API: login
// to user id resolution and granting VIP, authenticated with the bot's user token.
package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/oauth2"
)

// DefaultBaseURL is the Helix API root.
const DefaultBaseURL = "https://api.twitch.tv/helix"

// ErrUserNotFound is returned when a login does not resolve to a user.
var ErrUserNotFound = errors.New("user not found")

// APIError is a non-success Helix response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("helix: %d %s", e.Status, e.Message)
}

// HelixClient provides the Helix calls needed for promotion.
type HelixClient struct {
	ClientID   string
	Tokens     oauth2.TokenSource
	HTTPClient *http.Client
	BaseURL    string
	Logger     *slog.Logger

	mu  sync.RWMutex
	ids map[string]string
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) logger() *slog.Logger {
	if hc.Logger != nil {
		return hc.Logger
	}
	return slog.Default()
}

func (hc *HelixClient) url(path string, q url.Values) string {
	base := hc.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return strings.TrimRight(base, "/") + path + "?" + q.Encode()
}

func (hc *HelixClient) do(ctx context.Context, method, path string, q url.Values) (*http.Response, error) {
	if hc.Tokens == nil {
		return nil, errors.New("helix: no token source configured")
	}
	tok, err := hc.Tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("helix token: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, hc.url(path, q), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	return hc.http().Do(req)
}

func (hc *HelixClient) closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		hc.logger().Warn("failed to close response body", slog.Any("err", err))
	}
}

func readAPIError(resp *http.Response) error {
	var body struct {
		Message string `json:"message"`
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(b, &body); err != nil || body.Message == "" {
		body.Message = strings.TrimSpace(string(b))
	}
	return &APIError{Status: resp.StatusCode, Message: body.Message}
}

// GetUserID resolves a login name to its user ID. Results are cached for the
// lifetime of the client.
func (hc *HelixClient) GetUserID(ctx context.Context, login string) (string, error) {
	login = strings.ToLower(login)
	if login == "" {
		return "", fmt.Errorf("login empty")
	}
	hc.mu.RLock()
	id, ok := hc.ids[login]
	hc.mu.RUnlock()
	if ok {
		return id, nil
	}

	resp, err := hc.do(ctx, http.MethodGet, "/users", url.Values{"login": {login}})
	if err != nil {
		return "", err
	}
	defer hc.closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		return "", readAPIError(resp)
	}
	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if len(body.Data) == 0 {
		return "", fmt.Errorf("%w: %s", ErrUserNotFound, login)
	}

	id = body.Data[0].ID
	hc.mu.Lock()
	if hc.ids == nil {
		hc.ids = make(map[string]string)
	}
	hc.ids[login] = id
	hc.mu.Unlock()
	return id, nil
}

// AddVIP grants VIP status in channelLogin's channel to userLogin. A user who
// is already a VIP is treated as success.
func (hc *HelixClient) AddVIP(ctx context.Context, channelLogin, userLogin string) error {
	broadcasterID, err := hc.GetUserID(ctx, channelLogin)
	if err != nil {
		return fmt.Errorf("resolve broadcaster: %w", err)
	}
	userID, err := hc.GetUserID(ctx, userLogin)
	if err != nil {
		return fmt.Errorf("resolve user: %w", err)
	}

	resp, err := hc.do(ctx, http.MethodPost, "/channels/vips", url.Values{
		"broadcaster_id": {broadcasterID},
		"user_id":        {userID},
	})
	if err != nil {
		return err
	}
	defer hc.closeBody(resp)
	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK:
		return nil
	case http.StatusUnprocessableEntity:
		hc.logger().Debug("user is already a vip", slog.String("user", userLogin), slog.String("channel", channelLogin))
		return nil
	default:
		return readAPIError(resp)
	}
}
