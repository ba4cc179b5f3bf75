package session

import (
	"context"
	"errors"
	"time"

	"github.com/BimaHajer/APIAutome/internal/model"
)

// DefaultTTL bounds how long an issued authorization state stays usable.
const DefaultTTL = 10 * time.Minute

// ErrStateNotFound is returned when no live authorization state exists for a session.
var ErrStateNotFound = errors.New("authorization state not found")

// StateStore keeps the one-time authorization state bound to a session.
type StateStore interface {
	// Issue stores st for its session, replacing any earlier state.
	Issue(ctx context.Context, st model.AuthorizationState) error

	// Consume removes and returns the session's state. A state can be consumed
	// at most once; expired states are removed and reported as ErrStateNotFound.
	Consume(ctx context.Context, sessionID string) (*model.AuthorizationState, error)

	// Discard drops the session's state if any.
	Discard(ctx context.Context, sessionID string) error
}
