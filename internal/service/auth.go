package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"taskpilot.app/server/internal/model"
	"taskpilot.app/server/internal/store"
)

var (
	ErrInvalidSession = errors.New("invalid session token")
	ErrSessionExpired = errors.New("session expired")
)

// AuthService validates opaque bearer tokens. Identity issuance lives
// elsewhere; this layer only resolves a token to a user.
type AuthService interface {
	ValidateToken(ctx context.Context, token string) (*model.User, error)
	// SweepExpiredSessions deletes every session past its expiry.
	// Run periodically; ValidateToken does not depend on it.
	SweepExpiredSessions(ctx context.Context) error
}

type authService struct {
	userStore    store.UserStore
	sessionStore store.SessionStore
}

func NewAuthService(userStore store.UserStore, sessionStore store.SessionStore) AuthService {
	return &authService{
		userStore:    userStore,
		sessionStore: sessionStore,
	}
}

func (s *authService) ValidateToken(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, ErrInvalidSession
	}

	session, err := s.sessionStore.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, fmt.Errorf("looking up session: %w", err)
	}

	if session.Expired(time.Now()) {
		// Best effort cleanup; the 401 does not depend on it
		if err := s.sessionStore.Delete(ctx, session.ID); err != nil {
			slog.WarnContext(ctx, "failed to delete expired session",
				"session_id", session.ID,
				"error", err)
		}
		return nil, ErrSessionExpired
	}

	user, err := s.userStore.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, fmt.Errorf("looking up session user: %w", err)
	}

	return user, nil
}

func (s *authService) SweepExpiredSessions(ctx context.Context) error {
	if err := s.sessionStore.DeleteExpired(ctx); err != nil {
		return fmt.Errorf("sweeping expired sessions: %w", err)
	}
	return nil
}
