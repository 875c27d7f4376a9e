package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func tokenEndpoint(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func testClient(srvURL string) *Client {
	c := NewClient("test-client-id", "test-client-secret")
	c.Config.Endpoint.TokenURL = srvURL
	return c
}

func TestXOAuth2String(t *testing.T) {
	got := XOAuth2String("testuser@gmail.com", "ya29.a0AfH6SMBEXAMPLETOKEN")
	want := "user=testuser@gmail.com\x01auth=Bearer ya29.a0AfH6SMBEXAMPLETOKEN\x01\x01"
	if got != want {
		t.Fatalf("XOAuth2String() = %q, want %q", got, want)
	}
}

func TestXOAuth2SASLClient(t *testing.T) {
	mech, ir, err := NewXOAuth2("u@example.com", "tok").Start()
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if mech != "XOAUTH2" {
		t.Errorf("mechanism = %q, want XOAUTH2", mech)
	}
	if string(ir) != "user=u@example.com\x01auth=Bearer tok\x01\x01" {
		t.Errorf("unexpected initial response %q", ir)
	}
}

func TestConsentURL(t *testing.T) {
	c := NewClient("test-client-id.apps.googleusercontent.com", "secret")
	raw := c.ConsentURL()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("consent URL does not parse: %v", err)
	}
	if u.Scheme != "https" || u.Path != "/o/oauth2/v2/auth" {
		t.Errorf("unexpected consent URL %q", raw)
	}
	q := u.Query()
	if got := q.Get("client_id"); got != "test-client-id.apps.googleusercontent.com" {
		t.Errorf("client_id = %q", got)
	}
	if got := q.Get("scope"); got != Scope {
		t.Errorf("scope = %q, want %q", got, Scope)
	}
	if got := q.Get("response_type"); got != "code" {
		t.Errorf("response_type = %q", got)
	}
	if got := q.Get("redirect_uri"); got != redirectURI {
		t.Errorf("redirect_uri = %q", got)
	}
}

func TestExchangeCodeSuccess(t *testing.T) {
	srv, calls := tokenEndpoint(t, http.StatusOK, `{
		"access_token": "ya29.a0AfH6SMBEXAMPLETOKEN",
		"expires_in": 3599,
		"refresh_token": "1//0gEXAMPLEREFRESHTOKEN",
		"token_type": "Bearer"
	}`)
	c := testClient(srv.URL)

	before := time.Now()
	rec, err := c.ExchangeCode(context.Background(), "test-auth-code")
	if err != nil {
		t.Fatalf("ExchangeCode failed: %v", err)
	}
	if rec.AccessToken != "ya29.a0AfH6SMBEXAMPLETOKEN" {
		t.Errorf("access token = %q", rec.AccessToken)
	}
	if rec.RefreshToken != "1//0gEXAMPLEREFRESHTOKEN" {
		t.Errorf("refresh token = %q", rec.RefreshToken)
	}
	if rec.ExpiresIn != 3599 {
		t.Errorf("expires_in = %d, want 3599", rec.ExpiresIn)
	}
	wantExpiry := before.Add(3599 * time.Second)
	if rec.ExpirationTime.Before(wantExpiry.Add(-time.Minute)) || rec.ExpirationTime.After(wantExpiry.Add(time.Minute)) {
		t.Errorf("expiration_time = %v, want about %v", rec.ExpirationTime, wantExpiry)
	}
	if calls.Load() != 1 {
		t.Errorf("expected exactly 1 token endpoint call, got %d", calls.Load())
	}
}

func TestExchangeCodeAuthError(t *testing.T) {
	srv, calls := tokenEndpoint(t, http.StatusBadRequest, `{"error": "invalid_grant"}`)
	c := testClient(srv.URL)

	_, err := c.ExchangeCode(context.Background(), "expired-code")
	var authErr *Error
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *auth.Error, got %T: %v", err, err)
	}
	if authErr.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", authErr.StatusCode)
	}
	if !strings.Contains(authErr.Body, "invalid_grant") {
		t.Errorf("body = %q", authErr.Body)
	}
	// An authoritative error response must not trigger a retry.
	if calls.Load() != 1 {
		t.Errorf("expected exactly 1 token endpoint call, got %d", calls.Load())
	}
}

func TestRefreshSuccess(t *testing.T) {
	srv, _ := tokenEndpoint(t, http.StatusOK, `{
		"access_token": "ya29.a0AfH6SMBREFRESHED",
		"expires_in": 3599,
		"token_type": "Bearer"
	}`)
	c := testClient(srv.URL)

	rec, err := c.Refresh(context.Background(), "test-refresh-token")
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if rec.AccessToken != "ya29.a0AfH6SMBREFRESHED" {
		t.Errorf("access token = %q", rec.AccessToken)
	}
	if rec.ExpiresIn != 3599 {
		t.Errorf("expires_in = %d", rec.ExpiresIn)
	}
}

func TestRefreshAuthError(t *testing.T) {
	srv, _ := tokenEndpoint(t, http.StatusBadRequest, `{"error": "invalid_grant"}`)
	c := testClient(srv.URL)

	_, err := c.Refresh(context.Background(), "revoked")
	var authErr *Error
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *auth.Error, got %T: %v", err, err)
	}
}
