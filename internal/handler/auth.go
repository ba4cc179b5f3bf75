package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/BimaHajer/APIAutome/internal/adapter"
	"github.com/BimaHajer/APIAutome/internal/adapter/memory"
	"github.com/BimaHajer/APIAutome/internal/auth"
	"github.com/BimaHajer/APIAutome/internal/files"
	"github.com/BimaHajer/APIAutome/internal/model"
	"github.com/sirupsen/logrus"
)

// ListPath is where a completed authorization lands.
const ListPath = "/drive/list/"

// DemoEmail is the identity of a demo login that names no user.
const DemoEmail = "demo@apiautome.local"

// AuthHandler handles the Drive authorization endpoints.
type AuthHandler struct {
	flow     *auth.Flow
	sessions *Sessions
	provider adapter.Provider
	files    *files.Service
	logger   *logrus.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(flow *auth.Flow, sessions *Sessions, provider adapter.Provider, svc *files.Service, logger *logrus.Logger) *AuthHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &AuthHandler{flow: flow, sessions: sessions, provider: provider, files: svc, logger: logger}
}

// Begin redirects to the Google consent screen, starting a session if needed.
func (h *AuthHandler) Begin(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, err := h.sessions.Get(req)
	if err != nil {
		sess = h.sessions.New()
	}

	url, err := h.flow.BeginAuthorization(ctx, sess.ID)
	if err != nil {
		h.logger.WithError(err).Error("failed to begin authorization")
		return errorJSON(http.StatusInternalServerError, "Failed to start authorization"), nil
	}

	cookie, err := h.sessions.Cookie(sess)
	if err != nil {
		return errorJSON(http.StatusInternalServerError, "Failed to sign session"), nil
	}
	return redirect(url, cookie), nil
}

// Callback completes the authorization and stores the credential.
func (h *AuthHandler) Callback(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	sess, err := h.sessions.Get(req)
	if err != nil {
		h.logger.WithError(err).Info("callback without session")
		return redirect(AuthPath), nil
	}
	log := h.logger.WithField("session_id", sess.ID)

	if reason := req.QueryStringParameters["error"]; reason != "" {
		log.WithField("reason", reason).Warn("authorization denied")
		return redirect(AuthPath), nil
	}

	cred, err := h.flow.HandleCallback(ctx, sess.ID,
		req.QueryStringParameters["state"], req.QueryStringParameters["code"])
	if err != nil {
		log.WithError(err).Warn("authorization callback failed")
		return redirect(AuthPath), nil
	}

	return h.startSession(ctx, sess, cred)
}

// DemoLogin signs a session into the in-memory drive without Google.
// It is only routed in dev mode.
func (h *AuthHandler) DemoLogin(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	email := strings.TrimSpace(req.QueryStringParameters["email"])
	if email == "" {
		email = DemoEmail
	}

	sess := h.sessions.New()
	cred := &model.Credential{AccessToken: memory.DemoTokenPrefix + email, TokenType: "Bearer"}
	if err := h.flow.Adopt(ctx, sess.ID, cred); err != nil {
		h.logger.WithError(err).Error("failed to store demo credential")
		return errorJSON(http.StatusInternalServerError, "Failed to save demo credential"), nil
	}
	return h.startSession(ctx, sess, cred)
}

// startSession records the user's email in the session cookie and sends the
// browser to the file list.
func (h *AuthHandler) startSession(ctx context.Context, sess *Session, cred *model.Credential) (events.APIGatewayProxyResponse, error) {
	if api, err := h.provider.GetAdapter(ctx, cred); err == nil {
		sess.Email = h.files.ResolveEmail(ctx, api)
	} else {
		h.logger.WithError(err).Warn("failed to create drive adapter")
	}

	cookie, err := h.sessions.Cookie(sess)
	if err != nil {
		return errorJSON(http.StatusInternalServerError, "Failed to sign session"), nil
	}

	h.logger.WithFields(logrus.Fields{"session_id": sess.ID, "email": sess.Email}).Info("session started")
	return redirect(ListPath, cookie), nil
}

// Logout drops the session's credential and clears the cookie.
func (h *AuthHandler) Logout(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if sess, err := h.sessions.Get(req); err == nil {
		if err := h.flow.Forget(ctx, sess.ID); err != nil {
			h.logger.WithError(err).WithField("session_id", sess.ID).Error("failed to forget session")
			return errorJSON(http.StatusInternalServerError, "Failed to log out"), nil
		}
	}

	resp := jsonResponse(http.StatusOK, map[string]bool{"success": true})
	resp.MultiValueHeaders = map[string][]string{"Set-Cookie": {h.sessions.ClearCookie()}}
	return resp, nil
}
