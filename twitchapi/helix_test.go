package twitchapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"golang.org/x/oauth2"

	"github.com/onnwee/autovoice/testutil"
)

func newTestClient(m *testutil.MockTwitchServer) *HelixClient {
	return &HelixClient{
		ClientID: "test-client-id",
		Tokens:   oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token"}),
		BaseURL:  m.URL + "/helix",
	}
}

func TestHelixClient_GetUserID(t *testing.T) {
	tests := []struct {
		name        string
		login       string
		wantUserID  string
		errContains string
		wantErr     bool
	}{
		{name: "successful user lookup", login: "testuser", wantUserID: "12345"},
		{name: "login is lowercased", login: "TestUser", wantUserID: "12345"},
		{name: "user not found", login: "nonexistent", wantErr: true, errContains: "user not found"},
		{name: "empty login", login: "", wantErr: true, errContains: "login empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testutil.NewMockTwitchServer(t)
			m.MockUserResponse(map[string]string{"testuser": "12345"})
			hc := newTestClient(m)

			id, err := hc.GetUserID(context.Background(), tt.login)
			if (err != nil) != tt.wantErr {
				t.Fatalf("GetUserID() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("error %q does not contain %q", err, tt.errContains)
				}
				return
			}
			if id != tt.wantUserID {
				t.Errorf("GetUserID() = %s, want %s", id, tt.wantUserID)
			}

			reqs := m.Requests("/helix/users")
			if len(reqs) != 1 {
				t.Fatalf("expected 1 request, got %d", len(reqs))
			}
			if got := reqs[0].Header.Get("Client-Id"); got != "test-client-id" {
				t.Errorf("Client-Id = %q", got)
			}
			if got := reqs[0].Header.Get("Authorization"); got != "Bearer test-token" {
				t.Errorf("Authorization = %q", got)
			}
		})
	}
}

func TestHelixClient_GetUserIDNotFoundSentinel(t *testing.T) {
	m := testutil.NewMockTwitchServer(t)
	m.MockUserResponse(nil)
	_, err := newTestClient(m).GetUserID(context.Background(), "ghost")
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("error = %v, want ErrUserNotFound", err)
	}
}

func TestHelixClient_GetUserIDCached(t *testing.T) {
	m := testutil.NewMockTwitchServer(t)
	m.MockUserResponse(map[string]string{"testuser": "12345"})
	hc := newTestClient(m)

	for range 3 {
		if _, err := hc.GetUserID(context.Background(), "testuser"); err != nil {
			t.Fatalf("GetUserID() error = %v", err)
		}
	}
	if n := len(m.Requests("/helix/users")); n != 1 {
		t.Errorf("expected 1 API call (cached), got %d", n)
	}
}

func TestHelixClient_AddVIP(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		message string
		user    string
		wantErr bool
		apiErr  int
	}{
		{name: "granted", status: http.StatusNoContent, user: "alice"},
		{name: "already vip", status: http.StatusUnprocessableEntity, message: "user is already a vip", user: "alice"},
		{name: "missing scope", status: http.StatusUnauthorized, message: "missing scope channel:manage:vips", user: "alice", wantErr: true, apiErr: http.StatusUnauthorized},
		{name: "no vip slots", status: http.StatusConflict, message: "no available vip slots", user: "alice", wantErr: true, apiErr: http.StatusConflict},
		{name: "unknown user", status: http.StatusNoContent, user: "ghost", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testutil.NewMockTwitchServer(t)
			m.MockUserResponse(map[string]string{"streamer": "100", "alice": "200"})
			m.MockVIPResponse(tt.status, tt.message)
			hc := newTestClient(m)

			err := hc.AddVIP(context.Background(), "streamer", tt.user)
			if (err != nil) != tt.wantErr {
				t.Fatalf("AddVIP() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.apiErr != 0 {
				var apiErr *APIError
				if !errors.As(err, &apiErr) {
					t.Fatalf("error %v is not an APIError", err)
				}
				if apiErr.Status != tt.apiErr || apiErr.Message != tt.message {
					t.Errorf("APIError = %+v", apiErr)
				}
			}
			if tt.wantErr {
				return
			}

			reqs := m.Requests("/helix/channels/vips")
			if len(reqs) != 1 {
				t.Fatalf("expected 1 vip request, got %d", len(reqs))
			}
			q := reqs[0].URL.Query()
			if q.Get("broadcaster_id") != "100" || q.Get("user_id") != "200" {
				t.Errorf("vip query = %s", reqs[0].URL.RawQuery)
			}
		})
	}
}

func TestHelixClient_NoTokenSource(t *testing.T) {
	hc := &HelixClient{ClientID: "x"}
	if _, err := hc.GetUserID(context.Background(), "someone"); err == nil {
		t.Error("expected error without token source")
	}
}
