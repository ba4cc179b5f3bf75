package handler

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/BimaHajer/APIAutome/internal/markdown"
	"github.com/BimaHajer/APIAutome/internal/records"
	"github.com/sirupsen/logrus/hooks/test"
)

func newRecordHandler(schema *records.Schema) *RecordHandler {
	logger, _ := test.NewNullLogger()
	repo := records.NewRepository(schema, records.NewMemoryStore(), markdown.NewRenderer(), logger)
	return NewRecordHandler(repo, logger)
}

func jsonRequest(method, body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: method,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

func TestRecordHandler_DocumentLifecycle(t *testing.T) {
	h := newRecordHandler(records.Document)
	ctx := context.Background()

	resp, err := h.Create(ctx, jsonRequest(http.MethodPost, `{"title":"Guide","file_name":"guide.md","size":12,"description":"**Read** me"}`))
	expectStatus(t, resp, err, http.StatusCreated)
	var created map[string]interface{}
	decodeBody(t, resp, &created)
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatalf("Expected an id, got %v", created)
	}
	if html, _ := created["description_html"].(string); !strings.Contains(html, "<strong>Read</strong>") {
		t.Errorf("Expected rendered description, got %q", html)
	}

	resp, err = h.List(ctx, events.APIGatewayProxyRequest{})
	expectStatus(t, resp, err, http.StatusOK)
	var list []map[string]interface{}
	decodeBody(t, resp, &list)
	if len(list) != 1 {
		t.Fatalf("Expected 1 document, got %d", len(list))
	}

	resp, err = h.Update(ctx, withID(jsonRequest(http.MethodPatch, `{"title":"Manual"}`), id))
	expectStatus(t, resp, err, http.StatusOK)
	var patched map[string]interface{}
	decodeBody(t, resp, &patched)
	if patched["title"] != "Manual" || patched["file_name"] != "guide.md" {
		t.Errorf("Unexpected patched document %v", patched)
	}

	resp, err = h.Update(ctx, withID(jsonRequest(http.MethodPut, `{"title":"Manual"}`), id))
	expectStatus(t, resp, err, http.StatusBadRequest)

	resp, err = h.Delete(ctx, withID(events.APIGatewayProxyRequest{}, id))
	expectStatus(t, resp, err, http.StatusNoContent)

	resp, err = h.Get(ctx, withID(events.APIGatewayProxyRequest{}, id))
	expectStatus(t, resp, err, http.StatusNotFound)
}

func TestRecordHandler_ValidationErrors(t *testing.T) {
	h := newRecordHandler(records.UserCustomer)

	resp, err := h.Create(context.Background(), jsonRequest(http.MethodPost, `{"first_name":"Ada","email":"nope"}`))
	expectStatus(t, resp, err, http.StatusBadRequest)

	var body struct {
		Errors map[string][]string `json:"errors"`
	}
	decodeBody(t, resp, &body)
	if got := body.Errors["last_name"]; len(got) != 1 || got[0] != "This field is required." {
		t.Errorf("Unexpected last_name errors %v", got)
	}
	if got := body.Errors["email"]; len(got) != 1 || got[0] != "Enter a valid email address." {
		t.Errorf("Unexpected email errors %v", got)
	}
}

func TestRecordHandler_MalformedBody(t *testing.T) {
	h := newRecordHandler(records.UserCustomer)

	resp, err := h.Create(context.Background(), jsonRequest(http.MethodPost, `{"first_name":`))
	expectStatus(t, resp, err, http.StatusBadRequest)

	var body map[string]interface{}
	decodeBody(t, resp, &body)
	if _, ok := body["error"]; !ok {
		t.Errorf("Expected an error message, got %v", body)
	}
}

func TestRecordHandler_FormBody(t *testing.T) {
	h := newRecordHandler(records.UserCustomer)

	resp, err := h.Create(context.Background(), formRequest(url.Values{
		"first_name": {"Grace"},
		"last_name":  {"Hopper"},
		"email":      {"grace@example.com"},
		"is_active":  {"false"},
	}))
	expectStatus(t, resp, err, http.StatusCreated)

	var body map[string]interface{}
	decodeBody(t, resp, &body)
	if body["is_active"] != false || body["phone"] != nil {
		t.Errorf("Unexpected user %v", body)
	}
}

func TestRecordHandler_NotFound(t *testing.T) {
	h := newRecordHandler(records.Document)
	ctx := context.Background()

	resp, err := h.Update(ctx, withID(jsonRequest(http.MethodPatch, `{"title":"x"}`), "missing"))
	expectStatus(t, resp, err, http.StatusNotFound)

	resp, err = h.Delete(ctx, withID(events.APIGatewayProxyRequest{}, "missing"))
	expectStatus(t, resp, err, http.StatusNotFound)
}
