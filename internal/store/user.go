// ABOUTME: Store methods for user identities: creation, lookup, token versioning.
// ABOUTME: These are global-table operations, not scoped to any tenant.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const userColumns = `id, email, display_name, password_hash, password_hash_version,
	token_version, oauth_provider, oauth_subject, last_login_at, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.PasswordHashVersion,
		&u.TokenVersion, &u.OAuthProvider, &u.OAuthSubject, &u.LastLoginAt,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a new user row. Returns the created user.
// Pass an empty passwordHash for OAuth-only accounts.
func (s *Store) CreateUser(ctx context.Context, email, displayName, passwordHash string, hashVersion int) (*User, error) {
	var hash *string
	if passwordHash != "" {
		hash = &passwordHash
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO users (email, display_name, password_hash, password_hash_version)
		VALUES ($1, $2, $3, $4)
		RETURNING `+userColumns,
		email, displayName, hash, hashVersion)
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// GetUserByID returns the user with the given ID, or (nil, nil) if not found.
func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

// GetUserByEmail returns the user with the given email, or (nil, nil) if not
// found. Lookup is case-insensitive.
// SECURITY: call only from auth and invitation flows.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// GetUserByOAuth returns the user linked to the given provider identity,
// or (nil, nil) if no such identity exists.
func (s *Store) GetUserByOAuth(ctx context.Context, provider, subject string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE oauth_provider = $1 AND oauth_subject = $2`,
		provider, subject)
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("get user by oauth: %w", err)
	}
	return u, nil
}

// LinkOAuthIdentity attaches a provider identity to an existing user.
func (s *Store) LinkOAuthIdentity(ctx context.Context, userID uuid.UUID, provider, subject string) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE users SET oauth_provider = $2, oauth_subject = $3, updated_at = now()
		WHERE id = $1`,
		userID, provider, subject); err != nil {
		return fmt.Errorf("link oauth identity: %w", err)
	}
	return nil
}

// DeleteUser removes a user row. Idempotent: deleting a missing user is not
// an error. This is the compensating action of the invitation saga, so it
// must stay safe to call twice.
func (s *Store) DeleteUser(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// UpdateLastLogin sets last_login_at to now for the given user.
func (s *Store) UpdateLastLogin(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_login_at = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// IncrementTokenVersion increments token_version and returns the new value.
// Used by logout-all to immediately invalidate all outstanding refresh tokens.
func (s *Store) IncrementTokenVersion(ctx context.Context, id uuid.UUID) (int32, error) {
	var v int32
	err := s.db.QueryRowContext(ctx, `
		UPDATE users SET token_version = token_version + 1, updated_at = now()
		WHERE id = $1
		RETURNING token_version`, id).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("increment token version: %w", err)
	}
	return v, nil
}

// UpdatePasswordHash replaces the password hash and bumps token_version to
// invalidate all active sessions (forces re-login after password change).
func (s *Store) UpdatePasswordHash(ctx context.Context, id uuid.UUID, passwordHash string, hashVersion int) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET password_hash = $2, password_hash_version = $3,
		    token_version = token_version + 1, updated_at = now()
		WHERE id = $1`,
		id, passwordHash, hashVersion); err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	return nil
}

// CreateRefreshToken inserts a new refresh token row.
func (s *Store) CreateRefreshToken(ctx context.Context, jti, userID uuid.UUID, tokenVersion int, expiresAt time.Time) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (jti, user_id, token_version, expires_at)
		VALUES ($1, $2, $3, $4)`,
		jti, userID, tokenVersion, expiresAt); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// GetRefreshToken returns the refresh token for the given JTI, or (nil, nil)
// if not found.
func (s *Store) GetRefreshToken(ctx context.Context, jti uuid.UUID) (*RefreshToken, error) {
	var t RefreshToken
	err := s.db.QueryRowContext(ctx, `
		SELECT jti, user_id, token_version, expires_at, used_at, replaced_by_jti, created_at
		FROM refresh_tokens WHERE jti = $1`, jti).
		Scan(&t.JTI, &t.UserID, &t.TokenVersion, &t.ExpiresAt, &t.UsedAt, &t.ReplacedByJTI, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get refresh token: %w", err)
	}
	return &t, nil
}

// MarkRefreshTokenUsed sets used_at and records the JTI of the replacement token.
func (s *Store) MarkRefreshTokenUsed(ctx context.Context, jti, replacedByJTI uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET used_at = now(), replaced_by_jti = $2
		WHERE jti = $1`,
		jti, replacedByJTI); err != nil {
		return fmt.Errorf("mark refresh token used: %w", err)
	}
	return nil
}

// DeleteExpiredRefreshTokens removes tokens past their expiry. Called by the
// retention job. Returns the number of rows removed.
func (s *Store) DeleteExpiredRefreshTokens(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
