package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/boddenberg/ccb-backoffice-go/internal/domain"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ============================================================
// Login: POST /v1/auth/login
// ============================================================

func (s *AuthService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.AuthResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Login")
	defer span.End()

	invalid := &domain.ErrUnauthorized{Message: "Invalid credentials."}

	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, invalid
	}

	now := s.now()
	if user.LockedUntil != nil && user.LockedUntil.After(now) {
		remaining := user.LockedUntil.Sub(now).Minutes()
		s.logger.Warn("login: account temporarily locked",
			zap.String("user_id", user.ID),
			zap.Float64("remaining_minutes", remaining),
		)
		return nil, &domain.ErrUnauthorized{
			Message: fmt.Sprintf("Account temporarily locked. Try again in %.0f minutes.", remaining),
		}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		attempts := user.FailedAttempts + 1
		if user.LockedUntil != nil {
			// an expired lock starts a fresh window
			attempts = 1
		}
		upd := domain.CredentialUpdate{FailedAttempts: attempts}
		if attempts >= maxFailedAttempts {
			lockedUntil := now.Add(lockDuration)
			upd.LockedUntil = &lockedUntil
			s.logger.Warn("login: account locked after max attempts",
				zap.String("user_id", user.ID),
				zap.Int("attempts", attempts),
				zap.Duration("lock_duration", lockDuration),
			)
		} else {
			s.logger.Warn("login: failed password attempt",
				zap.String("user_id", user.ID),
				zap.Int("attempts", attempts),
				zap.Int("max", maxFailedAttempts),
			)
		}
		if err := s.store.UpdateCredentials(ctx, user.ID, upd); err != nil {
			s.logger.Error("login: record failed attempt", zap.String("user_id", user.ID), zap.Error(err))
		}
		return nil, invalid
	}

	if err := s.store.UpdateCredentials(ctx, user.ID, domain.CredentialUpdate{LastLoginAt: &now}); err != nil {
		s.logger.Error("login: reset attempts", zap.String("user_id", user.ID), zap.Error(err))
	}
	user.FailedAttempts = 0
	user.LockedUntil = nil
	user.LastLoginAt = &now

	s.logger.Info("user logged in", zap.String("user_id", user.ID))
	return s.issueTokens(ctx, user)
}

// ============================================================
// Refresh: POST /v1/auth/refresh
// ============================================================

func (s *AuthService) Refresh(ctx context.Context, req *domain.RefreshRequest) (*domain.AuthResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Refresh")
	defer span.End()

	if req.RefreshToken == "" {
		return nil, &domain.ErrValidation{Field: "refreshToken", Message: "is required"}
	}

	tokenHash := hashToken(req.RefreshToken)
	stored, err := s.store.GetRefreshToken(ctx, tokenHash)
	if err != nil {
		return nil, fmt.Errorf("get refresh token: %w", err)
	}
	if stored == nil {
		return nil, &domain.ErrUnauthorized{Message: "Invalid refresh token."}
	}

	// rotation: the presented token is single-use whatever happens next
	if err := s.store.RevokeRefreshToken(ctx, tokenHash); err != nil {
		return nil, fmt.Errorf("revoke refresh token: %w", err)
	}

	if stored.ExpiresAt.Before(s.now()) {
		s.logger.Warn("refresh: expired token used", zap.String("user_id", stored.UserID))
		return nil, &domain.ErrUnauthorized{Message: "Refresh token expired."}
	}

	user, err := s.store.GetUserByID(ctx, stored.UserID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, &domain.ErrUnauthorized{Message: "Invalid refresh token."}
	}

	return s.issueTokens(ctx, user)
}

// ============================================================
// Logout: POST /v1/auth/logout
// ============================================================

func (s *AuthService) Logout(ctx context.Context, userID string) error {
	ctx, span := authTracer.Start(ctx, "AuthService.Logout")
	defer span.End()

	if err := s.store.RevokeAllRefreshTokens(ctx, userID); err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}

	s.logger.Info("user logged out", zap.String("user_id", userID))
	return nil
}

// ============================================================
// Me: GET /v1/auth/me
// ============================================================

func (s *AuthService) Me(ctx context.Context, userID string) (*domain.User, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Me")
	defer span.End()

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, &domain.ErrNotFound{Resource: "user", ID: userID}
	}
	return user, nil
}
