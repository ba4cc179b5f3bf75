package handler

import (
	"bytes"
	"context"
	"errors"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/BimaHajer/APIAutome/internal/adapter"
	"github.com/BimaHajer/APIAutome/internal/files"
	"github.com/sirupsen/logrus"
)

// UploadHandler pushes files to Drive under the service account.
type UploadHandler struct {
	api      adapter.DriveAPI
	files    *files.Service
	folderID string
	logger   *logrus.Logger
}

// NewUploadHandler creates a new UploadHandler. Uploads land in folderID when set.
func NewUploadHandler(api adapter.DriveAPI, svc *files.Service, folderID string, logger *logrus.Logger) *UploadHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &UploadHandler{api: api, files: svc, folderID: folderID, logger: logger}
}

// Upload stores the multipart "file" part and returns its Drive id.
func (h *UploadHandler) Upload(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if h.api == nil {
		return errorJSON(http.StatusServiceUnavailable, "Uploads are not configured"), nil
	}

	f, err := parseForm(req)
	if err != nil {
		return errorJSON(http.StatusBadRequest, err.Error()), nil
	}
	up, ok := f.Files["file"]
	if !ok || up.Filename == "" {
		return jsonResponse(http.StatusBadRequest, map[string][]string{"file": {"No file was submitted."}}), nil
	}

	var parents []string
	if h.folderID != "" {
		parents = []string{h.folderID}
	}

	created, err := h.files.UploadFile(ctx, h.api, files.UploadInput{
		Name:     up.Filename,
		MIMEType: up.ContentType,
		Content:  bytes.NewReader(up.Data),
		Parents:  parents,
	})
	if errors.Is(err, files.ErrInvalidInput) {
		return errorJSON(http.StatusBadRequest, err.Error()), nil
	}
	if err != nil {
		return errorResponse(h.logger, err), nil
	}
	return jsonResponse(http.StatusOK, map[string]string{"file_id": created.ID}), nil
}
