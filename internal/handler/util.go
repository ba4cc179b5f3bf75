package handler

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/BimaHajer/APIAutome/internal/adapter"
	"github.com/BimaHajer/APIAutome/internal/auth"
	"github.com/BimaHajer/APIAutome/internal/files"
	"github.com/BimaHajer/APIAutome/internal/records"
	"github.com/sirupsen/logrus"
)

// AuthPath is where requests without a usable credential are sent.
const AuthPath = "/drive/auth/"

// Header looks a request header up case-insensitively.
func Header(req events.APIGatewayProxyRequest, name string) string {
	for k, v := range req.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// requestBody returns the raw body, decoding it when API Gateway delivered it base64 encoded.
func requestBody(req events.APIGatewayProxyRequest) ([]byte, error) {
	if !req.IsBase64Encoded {
		return []byte(req.Body), nil
	}
	b, err := base64.StdEncoding.DecodeString(req.Body)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 body: %w", err)
	}
	return b, nil
}

func jsonResponse(status int, v interface{}) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Body: `{"error":"failed to encode response"}`}
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Body:       string(body),
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

func errorJSON(status int, msg string) events.APIGatewayProxyResponse {
	return jsonResponse(status, map[string]string{"error": msg})
}

func redirect(location string, cookies ...string) events.APIGatewayProxyResponse {
	resp := events.APIGatewayProxyResponse{
		StatusCode: http.StatusFound,
		Headers: map[string]string{
			"Location": location,
		},
	}
	if len(cookies) > 0 {
		resp.MultiValueHeaders = map[string][]string{"Set-Cookie": cookies}
	}
	return resp
}

// fileError is errorResponse for a Drive operation on one file. action
// names the operation in the 403 message.
func fileError(logger *logrus.Logger, action string, err error) events.APIGatewayProxyResponse {
	if errors.Is(err, adapter.ErrForbidden) {
		return errorJSON(http.StatusForbidden, fmt.Sprintf("You do not have permission to %s this file", action))
	}
	return errorResponse(logger, err)
}

// errorResponse maps an error to its HTTP response.
func errorResponse(logger *logrus.Logger, err error) events.APIGatewayProxyResponse {
	var verr *records.ValidationError
	switch {
	case errors.As(err, &verr):
		return jsonResponse(http.StatusBadRequest, map[string]interface{}{"errors": verr.Fields})
	case errors.Is(err, files.ErrInvalidInput):
		return errorJSON(http.StatusBadRequest, err.Error())
	case errors.Is(err, records.ErrNotFound), errors.Is(err, adapter.ErrNotFound):
		return errorJSON(http.StatusNotFound, "Not found")
	case errors.Is(err, adapter.ErrForbidden):
		return errorJSON(http.StatusForbidden, "You do not have permission to access this file")
	case errors.Is(err, adapter.ErrPreconditionFailed):
		return errorJSON(http.StatusPreconditionFailed, err.Error())
	case errors.Is(err, adapter.ErrRateLimited):
		return errorJSON(http.StatusTooManyRequests, "Drive rate limit exceeded, try again later")
	case errors.Is(err, adapter.ErrUnauthenticated),
		errors.Is(err, auth.ErrStateMismatch),
		errors.Is(err, auth.ErrTokenExchangeFailed),
		errors.Is(err, auth.ErrNoCredential):
		return redirect(AuthPath)
	}

	logger.WithError(err).Error("request failed")
	return errorJSON(http.StatusInternalServerError, err.Error())
}
