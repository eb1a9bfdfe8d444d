package supabase

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/boddenberg/ccb-backoffice-go/internal/domain"
)

// ============================================================
// UserStore implementation: users + refresh tokens
// ============================================================

func (c *Client) CreateUser(ctx context.Context, u *domain.User) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateUser")
	defer span.End()

	resp, err := c.call(ctx, request{
		method: http.MethodPost,
		path:   "users",
		body: map[string]any{
			"email":         u.Email,
			"name":          u.Name,
			"role":          string(u.Role),
			"password_hash": u.PasswordHash,
			"created_at":    u.CreatedAt.Format(time.RFC3339Nano),
			"updated_at":    u.UpdatedAt.Format(time.RFC3339Nano),
		},
		prefer: "return=representation",
	})
	if err != nil {
		if errCode(err) == codeUniqueViolation {
			return nil, &domain.ErrConflict{Message: "email already registered"}
		}
		return nil, wrapErr("users", err)
	}
	return firstUser(resp)
}

func firstUser(resp *response) (*domain.User, error) {
	rows, err := decodeRows[userRow](resp)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	out := rows[0].toDomain()
	return &out, nil
}

func (c *Client) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetUserByID")
	defer span.End()

	resp, err := c.call(ctx, request{method: http.MethodGet, path: "users?" + eq("id", id) + "&limit=1"})
	if err != nil {
		if errCode(err) == codeInvalidText {
			return nil, nil
		}
		return nil, wrapErr("users", err)
	}
	return firstUser(resp)
}

// GetUserByEmail matches case-insensitively; emails are stored lower-cased.
func (c *Client) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetUserByEmail")
	defer span.End()

	resp, err := c.call(ctx, request{
		method: http.MethodGet,
		path:   "users?email=ilike." + url.QueryEscape(ilikeEscape(strings.ToLower(email))) + "&limit=1",
	})
	if err != nil {
		return nil, wrapErr("users", err)
	}
	return firstUser(resp)
}

func (c *Client) GetUsersByIDs(ctx context.Context, ids []string) (map[string]*domain.User, error) {
	out := make(map[string]*domain.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	resp, err := c.call(ctx, request{method: http.MethodGet, path: "users?id=" + in(ids)})
	if err != nil {
		return nil, wrapErr("users", err)
	}
	rows, err := decodeRows[userRow](resp)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		u := r.toDomain()
		out[u.ID] = &u
	}
	return out, nil
}

func (c *Client) UpdateCredentials(ctx context.Context, userID string, upd domain.CredentialUpdate) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateCredentials")
	defer span.End()

	data := map[string]any{
		"failed_attempts": upd.FailedAttempts,
		"locked_until":    nil,
		"updated_at":      time.Now().UTC().Format(time.RFC3339Nano),
	}
	if upd.LockedUntil != nil {
		data["locked_until"] = upd.LockedUntil.Format(time.RFC3339Nano)
	}
	if upd.LastLoginAt != nil {
		data["last_login_at"] = upd.LastLoginAt.Format(time.RFC3339Nano)
	}
	if upd.PasswordHash != "" {
		data["password_hash"] = upd.PasswordHash
	}

	resp, err := c.call(ctx, request{
		method: http.MethodPatch,
		path:   "users?" + eq("id", userID),
		body:   data,
		prefer: "return=representation",
	})
	if err != nil {
		return wrapErr("users", err)
	}
	updated, err := decodeRows[userRow](resp)
	if err != nil {
		return err
	}
	if len(updated) == 0 {
		return &domain.ErrNotFound{Resource: "user", ID: userID}
	}
	return nil
}

func (c *Client) StoreRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	_, err := c.call(ctx, request{
		method: http.MethodPost,
		path:   "refresh_tokens",
		body:   refreshTokenRow{UserID: userID, TokenHash: tokenHash, ExpiresAt: expiresAt},
		prefer: "return=minimal",
	})
	if err != nil {
		return wrapErr("refresh_tokens", err)
	}
	return nil
}

func (c *Client) GetRefreshToken(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	resp, err := c.call(ctx, request{
		method: http.MethodGet,
		path:   "refresh_tokens?" + eq("token_hash", tokenHash) + "&revoked=eq.false&limit=1",
	})
	if err != nil {
		return nil, wrapErr("refresh_tokens", err)
	}
	rows, err := decodeRows[refreshTokenRow](resp)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	r := rows[0]
	return &domain.RefreshToken{ID: r.ID, UserID: r.UserID, TokenHash: r.TokenHash, ExpiresAt: r.ExpiresAt, Revoked: r.Revoked}, nil
}

func (c *Client) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	_, err := c.call(ctx, request{
		method: http.MethodPatch,
		path:   "refresh_tokens?" + eq("token_hash", tokenHash),
		body:   map[string]any{"revoked": true},
		prefer: "return=minimal",
	})
	if err != nil {
		return wrapErr("refresh_tokens", err)
	}
	return nil
}

func (c *Client) RevokeAllRefreshTokens(ctx context.Context, userID string) error {
	_, err := c.call(ctx, request{
		method: http.MethodPatch,
		path:   "refresh_tokens?" + eq("user_id", userID) + "&revoked=eq.false",
		body:   map[string]any{"revoked": true},
		prefer: "return=minimal",
	})
	if err != nil {
		return wrapErr("refresh_tokens", err)
	}
	return nil
}
