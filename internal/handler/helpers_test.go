package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/BimaHajer/APIAutome/internal/adapter/memory"
	"github.com/BimaHajer/APIAutome/internal/auth"
	"github.com/BimaHajer/APIAutome/internal/crypto"
	"github.com/BimaHajer/APIAutome/internal/files"
	"github.com/BimaHajer/APIAutome/internal/session"
	"github.com/sirupsen/logrus/hooks/test"
	"golang.org/x/oauth2"
)

const (
	testSecret   = "test-secret"
	defaultOwner = "owner@example.com"
	alice        = "alice@example.com"
	bob          = "bob@example.com"
)

type testEnv struct {
	drive    *memory.Drive
	sessions *Sessions
	auth     *AuthHandler
	drives   *DriveHandler
	tokenURL string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("code") == "" {
			http.Error(w, `{"error":"invalid_request"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"live-token","token_type":"Bearer","expires_in":3600,"refresh_token":"refresh"}`))
	}))
	t.Cleanup(ts.Close)

	cfg := &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost:8080/drive/oauth2callback/",
		Scopes:       auth.DefaultScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   "https://accounts.example.com/auth",
			TokenURL:  ts.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	logger, _ := test.NewNullLogger()
	creds := auth.NewTokenStore(nil, "tokens", crypto.NewMockEncryptor())
	flow := auth.NewFlow(cfg, session.NewMemoryStateStore(), creds, auth.WithLogger(logger))

	drive := memory.NewDrive()
	provider := memory.NewProvider(drive, defaultOwner)
	svc := files.NewService(logger, files.SharePolicyStop, t.TempDir())
	sessions := NewSessions(testSecret, true)

	return &testEnv{
		drive:    drive,
		sessions: sessions,
		auth:     NewAuthHandler(flow, sessions, provider, svc, logger),
		drives:   NewDriveHandler(flow, sessions, provider, svc, logger),
		tokenURL: ts.URL,
	}
}

// cookieToken extracts the token from a Set-Cookie value.
func cookieToken(setCookie string) string {
	first := strings.SplitN(setCookie, ";", 2)[0]
	return strings.TrimPrefix(first, SessionCookieName+"=")
}

func setCookie(t *testing.T, resp events.APIGatewayProxyResponse) string {
	t.Helper()
	cookies := resp.MultiValueHeaders["Set-Cookie"]
	if len(cookies) != 1 {
		t.Fatalf("Expected one Set-Cookie header, got %v", cookies)
	}
	return cookies[0]
}

func withCookie(req events.APIGatewayProxyRequest, setCookie string) events.APIGatewayProxyRequest {
	if req.Headers == nil {
		req.Headers = map[string]string{}
	}
	req.Headers["Cookie"] = SessionCookieName + "=" + cookieToken(setCookie) + "; theme=dark"
	return req
}

// login signs a demo session in as email and returns its Set-Cookie value.
func (e *testEnv) login(t *testing.T, email string) string {
	t.Helper()
	resp, err := e.auth.DemoLogin(context.Background(), events.APIGatewayProxyRequest{
		QueryStringParameters: map[string]string{"email": email},
	})
	if err != nil || resp.StatusCode != http.StatusFound {
		t.Fatalf("DemoLogin failed: %v %d %s", err, resp.StatusCode, resp.Body)
	}
	return setCookie(t, resp)
}

func decodeBody(t *testing.T, resp events.APIGatewayProxyResponse, v interface{}) {
	t.Helper()
	if err := json.Unmarshal([]byte(resp.Body), v); err != nil {
		t.Fatalf("Invalid JSON body %q: %v", resp.Body, err)
	}
}

func expectStatus(t *testing.T, resp events.APIGatewayProxyResponse, err error, want int) {
	t.Helper()
	if err != nil {
		t.Fatalf("Handler returned error: %v", err)
	}
	if resp.StatusCode != want {
		t.Fatalf("Expected status %d, got %d. Body: %s", want, resp.StatusCode, resp.Body)
	}
}
