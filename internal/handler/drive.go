package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/BimaHajer/APIAutome/internal/adapter"
	"github.com/BimaHajer/APIAutome/internal/auth"
	"github.com/BimaHajer/APIAutome/internal/files"
	"github.com/sirupsen/logrus"
)

// DriveHandler proxies file operations to the session's Drive.
type DriveHandler struct {
	flow     *auth.Flow
	sessions *Sessions
	provider adapter.Provider
	files    *files.Service
	logger   *logrus.Logger
}

// NewDriveHandler creates a new DriveHandler.
func NewDriveHandler(flow *auth.Flow, sessions *Sessions, provider adapter.Provider, svc *files.Service, logger *logrus.Logger) *DriveHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &DriveHandler{flow: flow, sessions: sessions, provider: provider, files: svc, logger: logger}
}

type driveCall func(api adapter.DriveAPI, email string) (events.APIGatewayProxyResponse, error)

// withDrive resolves the session's credential and current user, redirecting
// to the consent flow when there is none.
func (h *DriveHandler) withDrive(ctx context.Context, req events.APIGatewayProxyRequest, fn driveCall) (events.APIGatewayProxyResponse, error) {
	sess, err := h.sessions.Get(req)
	if err != nil {
		return redirect(AuthPath), nil
	}

	cred, err := h.flow.EnsureCredential(ctx, sess.ID)
	if err != nil {
		if !errors.Is(err, auth.ErrNoCredential) {
			h.logger.WithError(err).WithField("session_id", sess.ID).Error("failed to load credential")
		}
		return redirect(AuthPath), nil
	}

	api, err := h.provider.GetAdapter(ctx, cred)
	if err != nil {
		return errorResponse(h.logger, fmt.Errorf("failed to get drive adapter: %w", err)), nil
	}
	return fn(api, h.files.ResolveEmail(ctx, api))
}

// ListFiles returns the files the user owns or can write.
func (h *DriveHandler) ListFiles(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return h.withDrive(ctx, req, func(api adapter.DriveAPI, email string) (events.APIGatewayProxyResponse, error) {
		result, err := h.files.ListFiles(ctx, api, email)
		if err != nil {
			return errorResponse(h.logger, err), nil
		}
		return jsonResponse(http.StatusOK, result), nil
	})
}

// GetFile returns one file's metadata.
func (h *DriveHandler) GetFile(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return h.withDrive(ctx, req, func(api adapter.DriveAPI, email string) (events.APIGatewayProxyResponse, error) {
		f, err := h.files.GetFile(ctx, api, email, req.PathParameters["id"])
		if err != nil {
			return fileError(h.logger, "access", err), nil
		}
		return jsonResponse(http.StatusOK, f), nil
	})
}

// CreateFile creates a file from a form, multipart or JSON body.
func (h *DriveHandler) CreateFile(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	in, err := createInput(req)
	if err != nil {
		return errorJSON(http.StatusBadRequest, err.Error()), nil
	}

	return h.withDrive(ctx, req, func(api adapter.DriveAPI, email string) (events.APIGatewayProxyResponse, error) {
		result, err := h.files.CreateFile(ctx, api, email, in)
		var shareErr *files.ShareError
		if errors.As(err, &shareErr) {
			return jsonResponse(http.StatusInternalServerError, map[string]interface{}{
				"error":       err.Error(),
				"file_id":     result.FileID,
				"shared_with": result.SharedWith,
				"owner_email": result.OwnerEmail,
			}), nil
		}
		if err != nil {
			return errorResponse(h.logger, err), nil
		}
		return jsonResponse(http.StatusOK, result), nil
	})
}

func createInput(req events.APIGatewayProxyRequest) (files.CreateInput, error) {
	var in files.CreateInput

	if isJSON(req) && req.Body != "" {
		var body struct {
			Name      string   `json:"name"`
			MIMEType  string   `json:"mimeType"`
			ShareWith []string `json:"share_with"`
		}
		raw, err := requestBody(req)
		if err != nil {
			return in, err
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return in, fmt.Errorf("%w: %v", errBadBody, err)
		}
		in.Name, in.MIMEType, in.ShareWith = body.Name, body.MIMEType, body.ShareWith
		return in, nil
	}

	f, err := parseForm(req)
	if err != nil {
		return in, err
	}
	in.Name = f.Values.Get("name")
	in.MIMEType = f.Values.Get("mimeType")
	in.ShareWith = f.Values["share_with"]
	if up, ok := f.Files["file"]; ok {
		in.Content = bytes.NewReader(up.Data)
		in.ContentType = up.ContentType
	}
	return in, nil
}

// UpdateForm returns a file and its permissions for the owner.
func (h *DriveHandler) UpdateForm(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return h.withDrive(ctx, req, func(api adapter.DriveAPI, email string) (events.APIGatewayProxyResponse, error) {
		form, err := h.files.UpdateForm(ctx, api, email, req.PathParameters["id"])
		if err != nil {
			return fileError(h.logger, "modify", err), nil
		}
		return jsonResponse(http.StatusOK, form), nil
	})
}

// UpdateFile applies a JSON update to a file the user owns.
func (h *DriveHandler) UpdateFile(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var in files.UpdateInput
	raw, err := requestBody(req)
	if err != nil {
		return errorJSON(http.StatusBadRequest, err.Error()), nil
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &in); err != nil {
			return errorJSON(http.StatusBadRequest, "Invalid request body"), nil
		}
	}

	return h.withDrive(ctx, req, func(api adapter.DriveAPI, email string) (events.APIGatewayProxyResponse, error) {
		result, err := h.files.UpdateFile(ctx, api, email, req.PathParameters["id"], in)
		if err != nil {
			return fileError(h.logger, "modify", err), nil
		}
		return jsonResponse(http.StatusOK, result), nil
	})
}

// DeleteFile deletes a file the user owns.
func (h *DriveHandler) DeleteFile(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return h.withDrive(ctx, req, func(api adapter.DriveAPI, email string) (events.APIGatewayProxyResponse, error) {
		result, err := h.files.DeleteFile(ctx, api, email, req.PathParameters["id"])
		if err != nil {
			return fileError(h.logger, "delete", err), nil
		}
		return jsonResponse(http.StatusOK, result), nil
	})
}

// Download returns the file content as a base64 encoded binary response.
func (h *DriveHandler) Download(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return h.withDrive(ctx, req, func(api adapter.DriveAPI, email string) (events.APIGatewayProxyResponse, error) {
		dl, err := h.files.DownloadFile(ctx, api, req.PathParameters["id"])
		if err != nil {
			return fileError(h.logger, "download", err), nil
		}
		return events.APIGatewayProxyResponse{
			StatusCode:      http.StatusOK,
			Body:            base64.StdEncoding.EncodeToString(dl.Content),
			IsBase64Encoded: true,
			Headers: map[string]string{
				"Content-Type":        "application/octet-stream",
				"Content-Disposition": dl.ContentDisposition,
			},
		}, nil
	})
}
