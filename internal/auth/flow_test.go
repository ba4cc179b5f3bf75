package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/BimaHajer/APIAutome/internal/crypto"
	"github.com/BimaHajer/APIAutome/internal/model"
	"github.com/BimaHajer/APIAutome/internal/session"
	"golang.org/x/oauth2"
)

// tokenServer is a fake OAuth2 token endpoint.
type tokenServer struct {
	*httptest.Server

	mu        sync.Mutex
	exchanges int
	refreshes int
	verifier  string
	fail      bool
	delay     time.Duration
}

func newTokenServer(t *testing.T) *tokenServer {
	ts := &tokenServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		ts.mu.Lock()
		grant := r.PostForm.Get("grant_type")
		if grant == "authorization_code" {
			ts.exchanges++
			ts.verifier = r.PostForm.Get("code_verifier")
		} else {
			ts.refreshes++
		}
		fail, delay := ts.fail, ts.delay
		ts.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if fail {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}

		resp := map[string]interface{}{
			"access_token": "access-" + grant,
			"token_type":   "Bearer",
			"expires_in":   3600,
			"scope":        "https://www.googleapis.com/auth/drive openid",
		}
		if grant == "authorization_code" {
			resp["refresh_token"] = "refresh-1"
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *tokenServer) counts() (exchanges, refreshes int) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.exchanges, ts.refreshes
}

func testFlow(t *testing.T, ts *tokenServer) (*Flow, *TokenStore, *session.MemoryStateStore) {
	cfg := &oauth2.Config{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		RedirectURL:  "http://localhost:8080/drive/oauth2callback/",
		Scopes:       DefaultScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   "https://accounts.example.com/auth",
			TokenURL:  ts.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	states := session.NewMemoryStateStore()
	creds := NewTokenStore(nil, "test-tokens-table", crypto.NewMockEncryptor())
	return NewFlow(cfg, states, creds, WithRefreshTimeout(200*time.Millisecond)), creds, states
}

func stateFromURL(t *testing.T, raw string) url.Values {
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("invalid consent URL %q: %v", raw, err)
	}
	return u.Query()
}

func TestFlow_BeginAuthorization(t *testing.T) {
	ts := newTokenServer(t)
	f, _, states := testFlow(t, ts)
	ctx := context.Background()

	consentURL, err := f.BeginAuthorization(ctx, "sess1")
	if err != nil {
		t.Fatalf("BeginAuthorization failed: %v", err)
	}

	q := stateFromURL(t, consentURL)
	checks := map[string]string{
		"access_type":            "offline",
		"prompt":                 "consent",
		"include_granted_scopes": "true",
		"code_challenge_method":  "S256",
		"client_id":              "test-client-id",
	}
	for k, want := range checks {
		if got := q.Get(k); got != want {
			t.Errorf("Expected %s=%q, got %q", k, want, got)
		}
	}
	if len(q.Get("state")) != 32 {
		t.Errorf("Expected 32 hex chars of state, got %q", q.Get("state"))
	}

	stored, err := states.Consume(ctx, "sess1")
	if err != nil {
		t.Fatalf("Expected a stored state, got %v", err)
	}
	if stored.State != q.Get("state") {
		t.Errorf("Stored state %q does not match URL state %q", stored.State, q.Get("state"))
	}
	if oauth2.S256ChallengeFromVerifier(stored.CodeVerifier) != q.Get("code_challenge") {
		t.Error("Code challenge does not match the stored verifier")
	}
	if ex, rf := ts.counts(); ex+rf != 0 {
		t.Error("BeginAuthorization must not call the token endpoint")
	}
}

func TestFlow_BeginAuthorization_FreshStateEachTime(t *testing.T) {
	f, _, _ := testFlow(t, newTokenServer(t))
	ctx := context.Background()

	first, _ := f.BeginAuthorization(ctx, "sess1")
	second, _ := f.BeginAuthorization(ctx, "sess1")
	if stateFromURL(t, first).Get("state") == stateFromURL(t, second).Get("state") {
		t.Error("Expected a fresh state for each authorization")
	}
}

func TestFlow_HandleCallback_Success(t *testing.T) {
	ts := newTokenServer(t)
	f, creds, _ := testFlow(t, ts)
	ctx := context.Background()

	consentURL, _ := f.BeginAuthorization(ctx, "sess1")
	q := stateFromURL(t, consentURL)

	cred, err := f.HandleCallback(ctx, "sess1", q.Get("state"), "auth-code")
	if err != nil {
		t.Fatalf("HandleCallback failed: %v", err)
	}
	if cred.AccessToken != "access-authorization_code" || cred.RefreshToken != "refresh-1" {
		t.Errorf("Unexpected credential: %+v", cred)
	}
	if len(cred.Scopes) != 2 || cred.Scopes[1] != "openid" {
		t.Errorf("Expected granted scopes from the token response, got %v", cred.Scopes)
	}
	ts.mu.Lock()
	verifier := ts.verifier
	ts.mu.Unlock()
	if verifier == "" || oauth2.S256ChallengeFromVerifier(verifier) != q.Get("code_challenge") {
		t.Error("Expected the PKCE verifier to be sent on exchange")
	}

	saved, err := creds.Get(ctx, "sess1")
	if err != nil {
		t.Fatalf("Expected credential to be saved: %v", err)
	}
	if saved.AccessToken != cred.AccessToken {
		t.Errorf("Saved access token %q, want %q", saved.AccessToken, cred.AccessToken)
	}
}

func TestFlow_HandleCallback_StateMismatch(t *testing.T) {
	ts := newTokenServer(t)
	f, creds, _ := testFlow(t, ts)
	ctx := context.Background()

	consentURL, _ := f.BeginAuthorization(ctx, "sess1")
	good := stateFromURL(t, consentURL).Get("state")

	_, err := f.HandleCallback(ctx, "sess1", "wrong-state", "auth-code")
	if !errors.Is(err, ErrStateMismatch) {
		t.Fatalf("Expected ErrStateMismatch, got %v", err)
	}

	// The state was consumed by the failed attempt.
	_, err = f.HandleCallback(ctx, "sess1", good, "auth-code")
	if !errors.Is(err, ErrStateMismatch) {
		t.Errorf("Expected ErrStateMismatch after state consumption, got %v", err)
	}

	if ex, _ := ts.counts(); ex != 0 {
		t.Errorf("Expected no token exchange, got %d", ex)
	}
	if _, err := creds.Get(ctx, "sess1"); !errors.Is(err, ErrCredentialNotFound) {
		t.Errorf("Expected no credential, got %v", err)
	}
}

func TestFlow_HandleCallback_NoStoredState(t *testing.T) {
	f, _, _ := testFlow(t, newTokenServer(t))

	_, err := f.HandleCallback(context.Background(), "sess1", "anything", "auth-code")
	if !errors.Is(err, ErrStateMismatch) {
		t.Errorf("Expected ErrStateMismatch, got %v", err)
	}
}

func TestFlow_HandleCallback_ReplayRejected(t *testing.T) {
	ts := newTokenServer(t)
	f, _, _ := testFlow(t, ts)
	ctx := context.Background()

	consentURL, _ := f.BeginAuthorization(ctx, "sess1")
	state := stateFromURL(t, consentURL).Get("state")

	if _, err := f.HandleCallback(ctx, "sess1", state, "auth-code"); err != nil {
		t.Fatalf("First callback failed: %v", err)
	}
	if _, err := f.HandleCallback(ctx, "sess1", state, "auth-code"); !errors.Is(err, ErrStateMismatch) {
		t.Errorf("Expected replayed callback to fail with ErrStateMismatch, got %v", err)
	}
	if ex, _ := ts.counts(); ex != 1 {
		t.Errorf("Expected exactly one exchange, got %d", ex)
	}
}

func TestFlow_HandleCallback_ExchangeFails(t *testing.T) {
	ts := newTokenServer(t)
	ts.fail = true
	f, creds, _ := testFlow(t, ts)
	ctx := context.Background()

	consentURL, _ := f.BeginAuthorization(ctx, "sess1")
	_, err := f.HandleCallback(ctx, "sess1", stateFromURL(t, consentURL).Get("state"), "bad-code")
	if !errors.Is(err, ErrTokenExchangeFailed) {
		t.Fatalf("Expected ErrTokenExchangeFailed, got %v", err)
	}
	if _, err := creds.Get(ctx, "sess1"); !errors.Is(err, ErrCredentialNotFound) {
		t.Errorf("Expected nothing stored, got %v", err)
	}
}

func TestFlow_EnsureCredential(t *testing.T) {
	tests := []struct {
		name          string
		stored        *model.Credential
		fail          bool
		delay         time.Duration
		wantErr       error
		wantRefreshes int
		wantAccess    string
		wantDeleted   bool
	}{
		{
			name:       "valid credential returned unchanged",
			stored:     &model.Credential{AccessToken: "still-good", RefreshToken: "r", Expiry: time.Now().Add(time.Hour)},
			wantAccess: "still-good",
		},
		{
			name:          "expired credential refreshed once",
			stored:        &model.Credential{AccessToken: "old", RefreshToken: "r", Expiry: time.Now().Add(-time.Minute)},
			wantRefreshes: 1,
			wantAccess:    "access-refresh_token",
		},
		{
			name:        "expired without refresh token",
			stored:      &model.Credential{AccessToken: "old", Expiry: time.Now().Add(-time.Minute)},
			wantErr:     ErrNoCredential,
			wantDeleted: true,
		},
		{
			name:          "refresh rejected",
			stored:        &model.Credential{AccessToken: "old", RefreshToken: "revoked", Expiry: time.Now().Add(-time.Minute)},
			fail:          true,
			wantErr:       ErrNoCredential,
			wantRefreshes: 1,
			wantDeleted:   true,
		},
		{
			name:          "refresh times out",
			stored:        &model.Credential{AccessToken: "old", RefreshToken: "r", Expiry: time.Now().Add(-time.Minute)},
			delay:         2 * time.Second,
			wantErr:       ErrNoCredential,
			wantRefreshes: 1,
			wantDeleted:   true,
		},
		{
			name:    "no credential",
			wantErr: ErrNoCredential,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTokenServer(t)
			ts.fail = tt.fail
			ts.delay = tt.delay
			f, creds, _ := testFlow(t, ts)
			ctx := context.Background()

			if tt.stored != nil {
				if err := creds.Save(ctx, "sess1", tt.stored); err != nil {
					t.Fatalf("Save failed: %v", err)
				}
			}

			cred, err := f.EnsureCredential(ctx, "sess1")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected %v, got %v", tt.wantErr, err)
				}
			} else {
				if err != nil {
					t.Fatalf("EnsureCredential failed: %v", err)
				}
				if cred.AccessToken != tt.wantAccess {
					t.Errorf("Expected access token %q, got %q", tt.wantAccess, cred.AccessToken)
				}
			}

			_, refreshes := ts.counts()
			if refreshes != tt.wantRefreshes {
				t.Errorf("Expected %d refresh calls, got %d", tt.wantRefreshes, refreshes)
			}

			_, getErr := creds.Get(ctx, "sess1")
			if deleted := errors.Is(getErr, ErrCredentialNotFound); tt.stored != nil && deleted != tt.wantDeleted {
				t.Errorf("Expected deleted=%v, got %v", tt.wantDeleted, deleted)
			}
		})
	}
}

func TestFlow_EnsureCredential_PersistsRefresh(t *testing.T) {
	ts := newTokenServer(t)
	f, creds, _ := testFlow(t, ts)
	ctx := context.Background()

	creds.Save(ctx, "sess1", &model.Credential{AccessToken: "old", RefreshToken: "keep-me", Expiry: time.Now().Add(-time.Minute)})

	if _, err := f.EnsureCredential(ctx, "sess1"); err != nil {
		t.Fatalf("EnsureCredential failed: %v", err)
	}

	saved, err := creds.Get(ctx, "sess1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if saved.AccessToken != "access-refresh_token" {
		t.Errorf("Expected refreshed access token to be persisted, got %q", saved.AccessToken)
	}
	if saved.RefreshToken != "keep-me" {
		t.Errorf("Expected refresh token to be kept, got %q", saved.RefreshToken)
	}

	// A second call finds a valid credential and does not refresh again.
	if _, err := f.EnsureCredential(ctx, "sess1"); err != nil {
		t.Fatalf("EnsureCredential failed: %v", err)
	}
	if _, rf := ts.counts(); rf != 1 {
		t.Errorf("Expected 1 refresh call in total, got %d", rf)
	}
}

func TestFlow_Forget(t *testing.T) {
	f, creds, _ := testFlow(t, newTokenServer(t))
	ctx := context.Background()

	creds.Save(ctx, "sess1", &model.Credential{AccessToken: "a", Expiry: time.Now().Add(time.Hour)})

	if err := f.Forget(ctx, "sess1"); err != nil {
		t.Fatalf("Forget failed: %v", err)
	}
	if _, err := f.EnsureCredential(ctx, "sess1"); !errors.Is(err, ErrNoCredential) {
		t.Errorf("Expected ErrNoCredential after Forget, got %v", err)
	}
}

func TestFlow_Adopt(t *testing.T) {
	ts := newTokenServer(t)
	f, _, _ := testFlow(t, ts)
	ctx := context.Background()

	if err := f.Adopt(ctx, "demo", &model.Credential{AccessToken: "demo:ada@example.com"}); err != nil {
		t.Fatalf("Adopt failed: %v", err)
	}

	cred, err := f.EnsureCredential(ctx, "demo")
	if err != nil {
		t.Fatalf("EnsureCredential failed: %v", err)
	}
	if cred.AccessToken != "demo:ada@example.com" {
		t.Errorf("Expected adopted token, got %q", cred.AccessToken)
	}
	if ex, rf := ts.counts(); ex != 0 || rf != 0 {
		t.Errorf("Expected no token endpoint calls, got %d exchanges and %d refreshes", ex, rf)
	}
}
