package service

import (
	"context"
	"fmt"

	"github.com/boddenberg/ccb-backoffice-go/internal/domain"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ============================================================
// ChangePassword: PUT /v1/auth/password
// ============================================================

func (s *AuthService) ChangePassword(ctx context.Context, userID string, req *domain.ChangePasswordRequest) error {
	ctx, span := authTracer.Start(ctx, "AuthService.ChangePassword")
	defer span.End()

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return &domain.ErrNotFound{Resource: "user", ID: userID}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		s.logger.Warn("password change: wrong current password", zap.String("user_id", userID))
		return &domain.ErrUnauthorized{Message: "Current password is incorrect."}
	}

	if err := validatePassword("newPassword", req.NewPassword); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.store.UpdateCredentials(ctx, userID, domain.CredentialUpdate{PasswordHash: string(hash)}); err != nil {
		return fmt.Errorf("update credentials: %w", err)
	}

	// force re-login everywhere else
	if err := s.store.RevokeAllRefreshTokens(ctx, userID); err != nil {
		s.logger.Error("password change: revoke refresh tokens", zap.String("user_id", userID), zap.Error(err))
	}

	s.logger.Info("password changed", zap.String("user_id", userID))
	return nil
}
