package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/BimaHajer/APIAutome/internal/records"
	"github.com/sirupsen/logrus"
)

// RecordHandler serves CRUD endpoints for one record schema.
type RecordHandler struct {
	repo   *records.Repository
	logger *logrus.Logger
}

// NewRecordHandler creates a new RecordHandler.
func NewRecordHandler(repo *records.Repository, logger *logrus.Logger) *RecordHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &RecordHandler{repo: repo, logger: logger}
}

func (h *RecordHandler) fail(err error) events.APIGatewayProxyResponse {
	if errors.Is(err, errBadBody) {
		return errorJSON(http.StatusBadRequest, err.Error())
	}
	return errorResponse(h.logger, err)
}

// Create validates and stores a new record.
func (h *RecordHandler) Create(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	payload, err := decodePayload(req)
	if err != nil {
		return h.fail(err), nil
	}
	out, err := h.repo.Create(ctx, payload)
	if err != nil {
		return h.fail(err), nil
	}
	return jsonResponse(http.StatusCreated, out), nil
}

// List returns every record.
func (h *RecordHandler) List(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	out, err := h.repo.List(ctx)
	if err != nil {
		return h.fail(err), nil
	}
	return jsonResponse(http.StatusOK, out), nil
}

// Get returns one record.
func (h *RecordHandler) Get(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	out, err := h.repo.Get(ctx, req.PathParameters["id"])
	if err != nil {
		return h.fail(err), nil
	}
	return jsonResponse(http.StatusOK, out), nil
}

// Update replaces a record (PUT) or merges into it (PATCH).
func (h *RecordHandler) Update(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	payload, err := decodePayload(req)
	if err != nil {
		return h.fail(err), nil
	}
	partial := req.HTTPMethod == http.MethodPatch
	out, err := h.repo.Update(ctx, req.PathParameters["id"], payload, partial)
	if err != nil {
		return h.fail(err), nil
	}
	return jsonResponse(http.StatusOK, out), nil
}

// Delete removes a record.
func (h *RecordHandler) Delete(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if err := h.repo.Delete(ctx, req.PathParameters["id"]); err != nil {
		return h.fail(err), nil
	}
	return events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent}, nil
}
