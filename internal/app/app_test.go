package app

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BimaHajer/APIAutome/internal/config"
)

func devConfig() *config.Config {
	return &config.Config{
		DevMode:           true,
		LogLevel:          "info",
		FrontendURL:       "http://localhost:3000",
		GoogleRedirectURL: "http://localhost:8080/drive/oauth2callback/",
		CredentialStore:   config.BackendMemory,
		RecordStore:       config.BackendMemory,
		DriveBackend:      config.BackendMemory,
		SharePolicy:       "stop",
		MarkdownStyle:     "github",
		MarkdownHardWraps: true,
	}
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	logger, _ := test.NewNullLogger()
	a, err := NewApp(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func do(t *testing.T, a *App, method, path, body string, headers map[string]string) events.APIGatewayProxyResponse {
	t.Helper()
	if headers == nil {
		headers = map[string]string{}
	}
	resp, err := a.HandleRequest(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: method,
		Path:       path,
		Body:       body,
		Headers:    headers,
	})
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp events.APIGatewayProxyResponse, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal([]byte(resp.Body), v), resp.Body)
}

func TestHandleRequest_Healthcheck(t *testing.T) {
	a := newTestApp(t, devConfig())

	for _, path := range []string{"/healthcheck/", "/healthcheck", "/api/healthcheck/"} {
		resp := do(t, a, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, "http://localhost:3000", resp.Headers["Access-Control-Allow-Origin"])
		assert.Equal(t, "true", resp.Headers["Access-Control-Allow-Credentials"])
		assert.Contains(t, resp.Headers["Access-Control-Expose-Headers"], "Content-Disposition")
	}
}

func TestHandleRequest_Preflight(t *testing.T) {
	a := newTestApp(t, devConfig())

	resp := do(t, a, http.MethodOptions, "/drive/create/", "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Headers["Access-Control-Allow-Origin"])
}

func TestHandleRequest_NotFoundAndMethodNotAllowed(t *testing.T) {
	a := newTestApp(t, devConfig())

	assert.Equal(t, http.StatusNotFound, do(t, a, http.MethodGet, "/nope/", "", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, do(t, a, http.MethodGet, "/document/a/b/", "", nil).StatusCode)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, a, http.MethodDelete, "/drive/list/", "", nil).StatusCode)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, a, http.MethodPost, "/drive/file/abc/", "", nil).StatusCode)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, a, http.MethodDelete, "/document/", "", nil).StatusCode)
}

func TestHandleRequest_OriginVerify(t *testing.T) {
	cfg := devConfig()
	a := newTestApp(t, cfg)
	cfg.DevMode = false
	a.apiGatewaySecret = "edge-secret"

	resp := do(t, a, http.MethodGet, "/healthcheck/", "", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = do(t, a, http.MethodGet, "/healthcheck/", "", map[string]string{"x-origin-verify": "wrong"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = do(t, a, http.MethodGet, "/healthcheck/", "", map[string]string{"x-origin-verify": "edge-secret"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Demo login is not routed outside dev mode.
	resp = do(t, a, http.MethodGet, "/drive/demo-login/", "", map[string]string{"X-Origin-Verify": "edge-secret"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleRequest_Documents(t *testing.T) {
	a := newTestApp(t, devConfig())
	jsonHeaders := map[string]string{"Content-Type": "application/json"}

	resp := do(t, a, http.MethodPost, "/document/", `{"title":"Plan","file_name":"plan.md","description":"# Goals"}`, jsonHeaders)
	require.Equal(t, http.StatusCreated, resp.StatusCode, resp.Body)
	var created map[string]interface{}
	decode(t, resp, &created)
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)
	assert.Contains(t, created["description_html"], "<h1")

	resp = do(t, a, http.MethodPost, "/document-Add/", `{"title":"Second","file_name":"second.md"}`, jsonHeaders)
	require.Equal(t, http.StatusCreated, resp.StatusCode, resp.Body)

	resp = do(t, a, http.MethodGet, "/api/document/", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []map[string]interface{}
	decode(t, resp, &list)
	require.Len(t, list, 2)
	ids := []interface{}{list[0]["id"], list[1]["id"]}
	assert.Contains(t, ids, id)

	resp = do(t, a, http.MethodPut, "/document-update/"+id+"/", `{"title":"Plan v2","file_name":"plan.md"}`, jsonHeaders)
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.Body)

	resp = do(t, a, http.MethodGet, "/document/"+id+"/", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got map[string]interface{}
	decode(t, resp, &got)
	assert.Equal(t, "Plan v2", got["title"])

	resp = do(t, a, http.MethodDelete, "/document-Delete/"+id+"/", "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, a, http.MethodGet, "/document/"+id+"/", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleRequest_UsersValidation(t *testing.T) {
	a := newTestApp(t, devConfig())

	resp := do(t, a, http.MethodPost, "/user/", `{"first_name":"Ada","email":"not-an-email"}`, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var body map[string]map[string][]string
	decode(t, resp, &body)
	assert.Contains(t, body["errors"], "email")
	assert.Contains(t, body["errors"], "last_name")
}

func TestHandleRequest_DriveSession(t *testing.T) {
	a := newTestApp(t, devConfig())

	resp := do(t, a, http.MethodGet, "/drive/list/", "", nil)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/drive/auth/", resp.Headers["Location"])

	resp = do(t, a, http.MethodGet, "/drive/demo-login/", "", nil)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/drive/list/", resp.Headers["Location"])
	require.NotEmpty(t, resp.MultiValueHeaders["Set-Cookie"])
	cookie := strings.SplitN(resp.MultiValueHeaders["Set-Cookie"][0], ";", 2)[0]

	resp = do(t, a, http.MethodGet, "/drive/list/", "", map[string]string{"Cookie": cookie})
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.Body)
	var list struct {
		UserEmail string        `json:"user_email"`
		Files     []interface{} `json:"files"`
	}
	decode(t, resp, &list)
	assert.Equal(t, "demo@apiautome.local", list.UserEmail)
	assert.Empty(t, list.Files)

	resp = do(t, a, http.MethodPost, "/drive/logout/", "", map[string]string{"Cookie": cookie})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, a, http.MethodGet, "/drive/list/", "", map[string]string{"Cookie": cookie})
	assert.Equal(t, http.StatusFound, resp.StatusCode)
}

func TestHandleRequest_UploadWithoutFile(t *testing.T) {
	a := newTestApp(t, devConfig())

	resp := do(t, a, http.MethodPost, "/upload/", "", map[string]string{"Content-Type": "application/x-www-form-urlencoded"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNewApp_SQLRecordStore(t *testing.T) {
	cfg := devConfig()
	cfg.RecordStore = config.BackendSQL
	cfg.DatabaseDriver = "sqlite"
	cfg.DatabaseDSN = ":memory:"
	a := newTestApp(t, cfg)

	resp := do(t, a, http.MethodPost, "/user/",
		`{"first_name":"Ada","last_name":"Lovelace","email":"ada@example.com","is_active":false}`, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, resp.Body)
	var created map[string]interface{}
	decode(t, resp, &created)

	resp = do(t, a, http.MethodGet, "/user/"+created["id"].(string)+"/", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got map[string]interface{}
	decode(t, resp, &got)
	assert.Equal(t, "Lovelace", got["last_name"])
	assert.Equal(t, false, got["is_active"])
}

func TestNewApp_RejectsUnknownSharePolicy(t *testing.T) {
	cfg := devConfig()
	cfg.SharePolicy = "sometimes"
	logger, _ := test.NewNullLogger()

	_, err := NewApp(context.Background(), cfg, logger)
	assert.Error(t, err)
}

func TestNewApp_MarkdownOptions(t *testing.T) {
	cfg := devConfig()
	cfg.MarkdownHardWraps = false
	a := newTestApp(t, cfg)

	resp := do(t, a, http.MethodPost, "/document/",
		`{"title":"Notes","file_name":"notes.md","description":"line one\nline two"}`, map[string]string{"Content-Type": "application/json"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, resp.Body)
	var created map[string]interface{}
	decode(t, resp, &created)
	assert.NotContains(t, created["description_html"], "<br")

	a = newTestApp(t, devConfig())
	resp = do(t, a, http.MethodPost, "/document/",
		`{"title":"Notes","file_name":"notes.md","description":"line one\nline two"}`, map[string]string{"Content-Type": "application/json"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, resp.Body)
	decode(t, resp, &created)
	assert.Contains(t, created["description_html"], "<br")
}
