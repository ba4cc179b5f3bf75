// Package auth drives the OAuth2 authorization-code flow against Google and
// keeps the resulting credentials per session.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BimaHajer/APIAutome/internal/model"
	"github.com/BimaHajer/APIAutome/internal/session"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

var (
	// ErrStateMismatch is returned when the callback state is missing, expired or wrong.
	ErrStateMismatch = errors.New("authorization state mismatch")

	// ErrTokenExchangeFailed is returned when the authorization code cannot be exchanged.
	ErrTokenExchangeFailed = errors.New("token exchange failed")

	// ErrNoCredential is returned when the session has no usable credential.
	ErrNoCredential = errors.New("no usable credential")
)

// DefaultRefreshTimeout bounds a single token refresh call.
const DefaultRefreshTimeout = 15 * time.Second

// DefaultScopes are requested on every authorization.
var DefaultScopes = []string{
	"https://www.googleapis.com/auth/drive",
	"https://www.googleapis.com/auth/userinfo.email",
}

// Flow runs the authorization-code flow for browser sessions.
type Flow struct {
	config         *oauth2.Config
	states         session.StateStore
	creds          CredentialStore
	logger         *logrus.Logger
	stateTTL       time.Duration
	refreshTimeout time.Duration
	now            func() time.Time
}

// Option configures a Flow.
type Option func(*Flow)

// WithStateTTL sets how long an issued state can be redeemed.
func WithStateTTL(ttl time.Duration) Option {
	return func(f *Flow) {
		if ttl > 0 {
			f.stateTTL = ttl
		}
	}
}

// WithRefreshTimeout sets the deadline of a token refresh.
func WithRefreshTimeout(d time.Duration) Option {
	return func(f *Flow) {
		if d > 0 {
			f.refreshTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(f *Flow) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFlow creates a new Flow.
func NewFlow(config *oauth2.Config, states session.StateStore, creds CredentialStore, opts ...Option) *Flow {
	f := &Flow{
		config:         config,
		states:         states,
		creds:          creds,
		logger:         logrus.New(),
		stateTTL:       session.DefaultTTL,
		refreshTimeout: DefaultRefreshTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// BeginAuthorization issues a fresh state for the session and returns the
// consent URL the browser should be sent to.
func (f *Flow) BeginAuthorization(ctx context.Context, sessionID string) (string, error) {
	state, err := generateState()
	if err != nil {
		return "", err
	}
	verifier := oauth2.GenerateVerifier()

	now := f.now()
	err = f.states.Issue(ctx, model.AuthorizationState{
		SessionID:    sessionID,
		State:        state,
		CodeVerifier: verifier,
		CreatedAt:    now.Unix(),
		ExpiresAt:    now.Add(f.stateTTL).Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to issue authorization state: %w", err)
	}

	return f.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
		oauth2.S256ChallengeOption(verifier),
	), nil
}

// HandleCallback redeems the session's state and exchanges the code.
// The stored state is consumed whether or not it matches.
func (f *Flow) HandleCallback(ctx context.Context, sessionID, state, code string) (*model.Credential, error) {
	stored, err := f.states.Consume(ctx, sessionID)
	if errors.Is(err, session.ErrStateNotFound) {
		return nil, ErrStateMismatch
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume authorization state: %w", err)
	}

	if state == "" || subtle.ConstantTimeCompare([]byte(stored.State), []byte(state)) != 1 {
		return nil, ErrStateMismatch
	}
	if code == "" {
		return nil, fmt.Errorf("%w: missing authorization code", ErrTokenExchangeFailed)
	}

	tok, err := f.config.Exchange(ctx, code, oauth2.VerifierOption(stored.CodeVerifier))
	if err != nil {
		f.logger.WithField("session_id", sessionID).WithError(err).Warn("authorization code exchange failed")
		return nil, fmt.Errorf("%w: %v", ErrTokenExchangeFailed, err)
	}

	cred := credentialFromToken(tok, f.config.Scopes)
	if err := f.creds.Save(ctx, sessionID, cred); err != nil {
		return nil, fmt.Errorf("failed to save credential: %w", err)
	}

	f.logger.WithField("session_id", sessionID).Info("session authorized")
	return cred, nil
}

// EnsureCredential returns a usable credential for the session, refreshing it
// at most once when expired. A credential that cannot be refreshed is removed.
func (f *Flow) EnsureCredential(ctx context.Context, sessionID string) (*model.Credential, error) {
	cred, err := f.creds.Get(ctx, sessionID)
	if errors.Is(err, ErrCredentialNotFound) {
		return nil, ErrNoCredential
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}

	if cred.ValidAt(f.now()) {
		return cred, nil
	}

	log := f.logger.WithField("session_id", sessionID)

	if cred.RefreshToken == "" {
		log.Info("credential expired without refresh token")
		f.drop(ctx, sessionID)
		return nil, ErrNoCredential
	}

	refreshCtx, cancel := context.WithTimeout(ctx, f.refreshTimeout)
	defer cancel()

	// An expired token forces the token source to refresh.
	stale := &oauth2.Token{
		RefreshToken: cred.RefreshToken,
		Expiry:       time.Now().Add(-1 * time.Hour),
	}
	tok, err := f.config.TokenSource(refreshCtx, stale).Token()
	if err != nil {
		log.WithError(err).Warn("credential refresh failed")
		f.drop(ctx, sessionID)
		return nil, fmt.Errorf("%w: refresh failed", ErrNoCredential)
	}

	refreshed := credentialFromToken(tok, cred.Scopes)
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = cred.RefreshToken
	}
	if err := f.creds.Save(ctx, sessionID, refreshed); err != nil {
		return nil, fmt.Errorf("failed to save refreshed credential: %w", err)
	}

	log.Debug("credential refreshed")
	return refreshed, nil
}

// Adopt stores a credential obtained outside the authorization-code flow,
// such as a demo login.
func (f *Flow) Adopt(ctx context.Context, sessionID string, cred *model.Credential) error {
	if err := f.creds.Save(ctx, sessionID, cred); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

// Forget removes the session's credential and any pending state.
func (f *Flow) Forget(ctx context.Context, sessionID string) error {
	if err := f.creds.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	if err := f.states.Discard(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to discard authorization state: %w", err)
	}
	return nil
}

func (f *Flow) drop(ctx context.Context, sessionID string) {
	if err := f.creds.Delete(ctx, sessionID); err != nil {
		f.logger.WithField("session_id", sessionID).WithError(err).Error("failed to delete unusable credential")
	}
}

// generateState returns 16 random bytes, hex encoded.
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func credentialFromToken(tok *oauth2.Token, fallbackScopes []string) *model.Credential {
	scopes := fallbackScopes
	if granted, ok := tok.Extra("scope").(string); ok && granted != "" {
		scopes = strings.Fields(granted)
	}
	return &model.Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
		Scopes:       scopes,
	}
}
