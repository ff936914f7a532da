// ABOUTME: HTTP handlers for authentication: register, login, refresh, logout, me.
// ABOUTME: All auth endpoints live at /api/v1/auth/... behind the huma router.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Weskill-org/leadflow-ai-sub000/internal/auth"
	"github.com/Weskill-org/leadflow-ai-sub000/internal/store"
)

const (
	accessTokenTTL  = 15 * time.Minute
	refreshTokenTTL = 7 * 24 * time.Hour
	gracePeriod     = 60 * time.Second

	// dummyPasswordHash is a valid PHC-format argon2id hash used for login timing
	// normalization. Running VerifyPassword against this for nonexistent users
	// prevents email enumeration via response time differences.
	dummyPasswordHash = "$argon2id$v=19$m=19456,t=2,p=1$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA" //nolint:gosec // G101 false positive: public dummy hash for timing normalization, not a real credential
)

// pgErrCode extracts the Postgres error code from err, or "" if err is not a pg error.
func pgErrCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// authCookies returns Set-Cookie header values for the access and refresh tokens.
// refresh_token is scoped to /api/v1/auth to limit its transmission surface.
func authCookies(accessToken, refreshToken string, secure bool) []string {
	access := &http.Cookie{
		Name:     "access_token",
		Value:    accessToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(accessTokenTTL.Seconds()),
	}
	refresh := &http.Cookie{
		Name:     "refresh_token",
		Value:    refreshToken,
		Path:     "/api/v1/auth",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(refreshTokenTTL.Seconds()),
	}
	return []string{access.String(), refresh.String()}
}

// clearAuthCookies returns Set-Cookie headers that immediately expire both auth cookies.
func clearAuthCookies(secure bool) []string {
	access := &http.Cookie{
		Name:     "access_token",
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	}
	refresh := &http.Cookie{
		Name:     "refresh_token",
		Value:    "",
		Path:     "/api/v1/auth",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	}
	return []string{access.String(), refresh.String()}
}

// ── Register ──────────────────────────────────────────────────────────────────

// registerInput is the request body for POST /auth/register.
// Registration bootstraps a company workspace: the registering user becomes
// its level-1 company admin.
type registerInput struct {
	Body struct {
		Email       string `json:"email"        format:"email" maxLength:"254"  doc:"User email address"`
		Password    string `json:"password"     minLength:"8"  maxLength:"1024" doc:"Password (min 8 characters)"`
		FullName    string `json:"full_name,omitempty"          doc:"Full name (optional)"`
		CompanyName string `json:"company_name" minLength:"1"  maxLength:"200"  doc:"Company workspace name"`
		Industry    string `json:"industry,omitempty"           doc:"Company industry (optional)"`
	}
}

// registerOutput is the response body for POST /auth/register.
type registerOutput struct {
	Status int
	Body   struct {
		UserID   string `json:"user_id"`
		TenantID string `json:"tenant_id"`
	}
}

// registerHandler handles POST /api/v1/auth/register.
func (srv *Server) registerHandler(ctx context.Context, input *registerInput) (*registerOutput, error) {
	// Reject duplicate email before the expensive hash.
	existing, err := srv.store.GetUserByEmail(ctx, input.Body.Email)
	if err != nil {
		slog.ErrorContext(ctx, "register: lookup email", "error", err)
		return nil, huma.Error500InternalServerError("internal error")
	}
	if existing != nil {
		return nil, huma.Error409Conflict("email already registered")
	}

	if !srv.acquireArgon2() {
		return nil, huma.Error503ServiceUnavailable("server busy, please retry")
	}
	hash, err := auth.HashPassword(input.Body.Password)
	srv.releaseArgon2()
	if err != nil {
		slog.ErrorContext(ctx, "register: hash password", "error", err)
		return nil, huma.Error500InternalServerError("internal error")
	}

	fullName := input.Body.FullName
	if fullName == "" {
		// Derive a display name from the email local-part.
		if at := strings.Index(input.Body.Email, "@"); at > 0 {
			fullName = input.Body.Email[:at]
		} else {
			fullName = input.Body.Email
		}
	}

	user, err := srv.store.CreateUser(ctx, input.Body.Email, fullName, hash, auth.CurrentHashVersion)
	if err != nil {
		if pgErrCode(err) == "23505" { // unique_violation — race on concurrent register
			return nil, huma.Error409Conflict("email already registered")
		}
		slog.ErrorContext(ctx, "register: create user", "error", err)
		return nil, huma.Error500InternalServerError("internal error")
	}

	tenant, err := srv.store.CreateTenantWithOwner(ctx, input.Body.CompanyName, input.Body.Industry, user.ID, fullName, "company")
	if err != nil {
		slog.ErrorContext(ctx, "register: create tenant", "error", err)
		return nil, huma.Error500InternalServerError("internal error")
	}

	out := &registerOutput{}
	out.Status = http.StatusCreated
	out.Body.UserID = user.ID.String()
	out.Body.TenantID = tenant.ID.String()
	return out, nil
}

// ── Login ─────────────────────────────────────────────────────────────────────

// loginInput is the request body for POST /auth/login.
type loginInput struct {
	Body struct {
		Email    string `json:"email"    format:"email" maxLength:"254"  doc:"User email"`
		Password string `json:"password" minLength:"8"  maxLength:"1024" doc:"Password"`
	}
}

// loginOutput returns auth cookies (no JSON body needed).
type loginOutput struct {
	SetCookie []string `header:"Set-Cookie"`
}

// loginHandler handles POST /api/v1/auth/login.
// Nonexistent users still run argon2 to normalize response timing (prevents email enumeration).
func (srv *Server) loginHandler(ctx context.Context, input *loginInput) (*loginOutput, error) {
	secret := []byte(srv.cfg.JWTSecret)

	user, err := srv.store.GetUserByEmail(ctx, input.Body.Email)
	if err != nil {
		slog.ErrorContext(ctx, "login: lookup email", "error", err)
		return nil, huma.Error500InternalServerError("internal error")
	}

	// Timing normalization: always spend argon2 time regardless of whether the user exists.
	if user == nil || user.PasswordHash == nil {
		if !srv.acquireArgon2() {
			return nil, huma.Error503ServiceUnavailable("server busy, please retry")
		}
		_, _ = auth.VerifyPassword(input.Body.Password, dummyPasswordHash)
		srv.releaseArgon2()
		return nil, huma.Error401Unauthorized("invalid credentials")
	}

	if !srv.acquireArgon2() {
		return nil, huma.Error503ServiceUnavailable("server busy, please retry")
	}
	ok, err := auth.VerifyPassword(input.Body.Password, *user.PasswordHash)
	srv.releaseArgon2()
	if err != nil {
		slog.ErrorContext(ctx, "login: verify password", "error", err)
		return nil, huma.Error500InternalServerError("internal error")
	}
	if !ok {
		return nil, huma.Error401Unauthorized("invalid credentials")
	}

	jti := uuid.New()
	accessToken, err := auth.IssueAccessToken(secret, user.ID, int(user.TokenVersion), accessTokenTTL)
	if err != nil {
		slog.ErrorContext(ctx, "login: issue access token", "error", err)
		return nil, huma.Error500InternalServerError("internal error")
	}
	refreshToken, err := auth.IssueRefreshToken(secret, user.ID, int(user.TokenVersion), jti, refreshTokenTTL)
	if err != nil {
		slog.ErrorContext(ctx, "login: issue refresh token", "error", err)
		return nil, huma.Error500InternalServerError("internal error")
	}
	if err := srv.store.CreateRefreshToken(ctx, jti, user.ID, int(user.TokenVersion), time.Now().Add(refreshTokenTTL)); err != nil {
		slog.ErrorContext(ctx, "login: create refresh token", "error", err)
		return nil, huma.Error500InternalServerError("internal error")
	}

	// Non-fatal — last_login_at is informational only.
	if err := srv.store.UpdateLastLogin(ctx, user.ID); err != nil {
		slog.WarnContext(ctx, "login: update last login", "error", err)
	}

	return &loginOutput{SetCookie: authCookies(accessToken, refreshToken, srv.cfg.CookieSecure)}, nil
}

// ── Refresh ───────────────────────────────────────────────────────────────────

// refreshInput reads the refresh_token cookie.
type refreshInput struct {
	RefreshToken string `cookie:"refresh_token" doc:"Refresh token cookie"`
}

// refreshOutput returns new auth cookies.
type refreshOutput struct {
	SetCookie []string `header:"Set-Cookie"`
}

// refreshHandler handles POST /api/v1/auth/refresh.
// Implements JTI rotation with a 60-second grace window and theft detection.
func (srv *Server) refreshHandler(ctx context.Context, input *refreshInput) (*refreshOutput, error) {
	if input.RefreshToken == "" {
		return nil, huma.Error401Unauthorized("refresh token required")
	}

	secret := []byte(srv.cfg.JWTSecret)
	claims, err := auth.ParseRefreshToken(input.RefreshToken, secret)
	if err != nil {
		return nil, huma.Error401Unauthorized("invalid or expired refresh token")
	}

	stored, err := srv.store.GetRefreshToken(ctx, claims.JTI)
	if err != nil {
		slog.ErrorContext(ctx, "refresh: get token", "error", err)
		return nil, huma.Error500InternalServerError("internal error")
	}
	if stored == nil {
		return nil, huma.Error401Unauthorized("unknown refresh token")
	}

	if stored.UsedAt != nil {
		if time.Since(*stored.UsedAt) <= gracePeriod {
			// Grace window: concurrent-tab scenario — re-issue based on the replacement.
			return srv.refreshGrace(ctx, stored, secret)
		}
		// Outside grace window: token reuse → treat as theft.
		if _, incrErr := srv.store.IncrementTokenVersion(ctx, stored.UserID); incrErr != nil {
			slog.ErrorContext(ctx, "refresh: increment token version on theft", "error", incrErr)
		}
		return nil, huma.Error401Unauthorized("refresh token already used")
	}

	user, err := srv.store.GetUserByID(ctx, stored.UserID)
	if err != nil || user == nil {
		slog.ErrorContext(ctx, "refresh: get user", "error", err)
		return nil, huma.Error500InternalServerError("internal error")
	}
	// Version check detects logout-all and password changes.
	if user.TokenVersion != stored.TokenVersion {
		return nil, huma.Error401Unauthorized("session invalidated")
	}

	return srv.issueRefreshPair(ctx, user, stored.JTI, secret)
}

// refreshGrace handles re-issue within the 60-second grace window.
// The original token (orig) was already used; we advance to its replacement.
func (srv *Server) refreshGrace(ctx context.Context, orig *store.RefreshToken, secret []byte) (*refreshOutput, error) {
	if orig.ReplacedByJTI == nil {
		return nil, huma.Error401Unauthorized("refresh token invalid")
	}
	replacement, err := srv.store.GetRefreshToken(ctx, *orig.ReplacedByJTI)
	if err != nil {
		slog.ErrorContext(ctx, "refresh grace: get replacement", "error", err)
		return nil, huma.Error500InternalServerError("internal error")
	}
	if replacement == nil || replacement.UsedAt != nil {
		return nil, huma.Error401Unauthorized("refresh token invalid")
	}
	user, err := srv.store.GetUserByID(ctx, replacement.UserID)
	if err != nil || user == nil {
		slog.ErrorContext(ctx, "refresh grace: get user", "error", err)
		return nil, huma.Error500InternalServerError("internal error")
	}
	if user.TokenVersion != replacement.TokenVersion {
		return nil, huma.Error401Unauthorized("session invalidated")
	}
	// Advance the chain: consume the replacement, issue a fresh pair.
	return srv.issueRefreshPair(ctx, user, replacement.JTI, secret)
}

// issueRefreshPair issues a new access + refresh JWT pair and marks oldJTI as used.
func (srv *Server) issueRefreshPair(ctx context.Context, user *store.User, oldJTI uuid.UUID, secret []byte) (*refreshOutput, error) {
	newJTI := uuid.New()
	accessToken, err := auth.IssueAccessToken(secret, user.ID, int(user.TokenVersion), accessTokenTTL)
	if err != nil {
		slog.ErrorContext(ctx, "refresh: issue access token", "error", err)
		return nil, huma.Error500InternalServerError("internal error")
	}
	refreshToken, err := auth.IssueRefreshToken(secret, user.ID, int(user.TokenVersion), newJTI, refreshTokenTTL)
	if err != nil {
		slog.ErrorContext(ctx, "refresh: issue refresh token", "error", err)
		return nil, huma.Error500InternalServerError("internal error")
	}
	if err := srv.store.CreateRefreshToken(ctx, newJTI, user.ID, int(user.TokenVersion), time.Now().Add(refreshTokenTTL)); err != nil {
		slog.ErrorContext(ctx, "refresh: create new token", "error", err)
		return nil, huma.Error500InternalServerError("internal error")
	}
	if err := srv.store.MarkRefreshTokenUsed(ctx, oldJTI, newJTI); err != nil {
		slog.ErrorContext(ctx, "refresh: mark old token used", "error", err)
		return nil, huma.Error500InternalServerError("internal error")
	}
	return &refreshOutput{SetCookie: authCookies(accessToken, refreshToken, srv.cfg.CookieSecure)}, nil
}

// ── Logout ────────────────────────────────────────────────────────────────────

// logoutInput reads the refresh_token cookie for invalidation.
type logoutInput struct {
	RefreshToken string `cookie:"refresh_token" doc:"Refresh token cookie"`
}

// logoutOutput clears auth cookies.
type logoutOutput struct {
	SetCookie []string `header:"Set-Cookie"`
}

// logoutHandler handles POST /api/v1/auth/logout.
// Marks the refresh token as used (no replacement) and clears auth cookies.
func (srv *Server) logoutHandler(ctx context.Context, input *logoutInput) (*logoutOutput, error) {
	if input.RefreshToken != "" {
		claims, err := auth.ParseRefreshToken(input.RefreshToken, []byte(srv.cfg.JWTSecret))
		if err == nil {
			// Mark the token used with itself as the "replacement" to close the chain.
			if err := srv.store.MarkRefreshTokenUsed(ctx, claims.JTI, claims.JTI); err != nil {
				slog.WarnContext(ctx, "logout: mark token used", "error", err)
			}
		}
	}
	return &logoutOutput{SetCookie: clearAuthCookies(srv.cfg.CookieSecure)}, nil
}

// ── Me ────────────────────────────────────────────────────────────────────────

// meInput reads the access_token cookie for authentication.
type meInput struct {
	AccessToken string `cookie:"access_token" doc:"Access token cookie"`
}

// tenantEntry is a tenant membership summary in the /auth/me response.
type tenantEntry struct {
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

// meOutput is the response body for GET /auth/me.
type meOutput struct {
	Body struct {
		UserID   string        `json:"user_id"`
		Email    string        `json:"email"`
		FullName string        `json:"full_name"`
		Tenants  []tenantEntry `json:"tenants"`
	}
}

// meHandler handles GET /api/v1/auth/me.
func (srv *Server) meHandler(ctx context.Context, input *meInput) (*meOutput, error) {
	if input.AccessToken == "" {
		return nil, huma.Error401Unauthorized("authentication required")
	}
	claims, err := auth.ParseAccessToken(input.AccessToken, []byte(srv.cfg.JWTSecret))
	if err != nil {
		return nil, huma.Error401Unauthorized("invalid or expired access token")
	}

	user, err := srv.store.GetUserByID(ctx, claims.UserID)
	if err != nil || user == nil {
		slog.ErrorContext(ctx, "me: get user", "error", err)
		return nil, huma.Error500InternalServerError("internal error")
	}

	memberships, err := srv.store.ListUserMemberships(ctx, user.ID)
	if err != nil {
		slog.ErrorContext(ctx, "me: list memberships", "error", err)
		return nil, huma.Error500InternalServerError("internal error")
	}

	out := &meOutput{}
	out.Body.UserID = user.ID.String()
	out.Body.Email = user.Email
	out.Body.FullName = user.DisplayName
	out.Body.Tenants = make([]tenantEntry, 0, len(memberships))
	for _, m := range memberships {
		out.Body.Tenants = append(out.Body.Tenants, tenantEntry{
			TenantID: m.TenantID.String(),
			Name:     m.TenantName,
			Role:     m.Role,
		})
	}
	return out, nil
}

// ── Change password ───────────────────────────────────────────────────────────

// changePasswordInput reads the access token cookie and the password change body.
type changePasswordInput struct {
	AccessToken string `cookie:"access_token" doc:"Access token cookie"`
	Body        struct {
		CurrentPassword string `json:"current_password" minLength:"1" maxLength:"1024" doc:"Current password"`
		NewPassword     string `json:"new_password"     minLength:"8" maxLength:"1024" doc:"New password (min 8 characters)"`
	}
}

// changePasswordOutput has no body — 200 on success.
type changePasswordOutput struct{}

// changePasswordHandler handles POST /api/v1/auth/change-password.
// Verifies the current password, hashes the new one, and increments
// token_version to invalidate all active refresh tokens.
func (srv *Server) changePasswordHandler(ctx context.Context, input *changePasswordInput) (*changePasswordOutput, error) {
	if input.AccessToken == "" {
		return nil, huma.Error401Unauthorized("authentication required")
	}
	claims, err := auth.ParseAccessToken(input.AccessToken, []byte(srv.cfg.JWTSecret))
	if err != nil {
		return nil, huma.Error401Unauthorized("invalid or expired access token")
	}

	user, err := srv.store.GetUserByID(ctx, claims.UserID)
	if err != nil || user == nil {
		slog.ErrorContext(ctx, "change-password: get user", "error", err)
		return nil, huma.Error500InternalServerError("internal error")
	}
	if user.PasswordHash == nil {
		return nil, huma.Error400BadRequest("account uses OAuth authentication, password change not supported")
	}

	if !srv.acquireArgon2() {
		return nil, huma.Error503ServiceUnavailable("server busy, please retry")
	}
	ok, err := auth.VerifyPassword(input.Body.CurrentPassword, *user.PasswordHash)
	srv.releaseArgon2()
	if err != nil {
		slog.ErrorContext(ctx, "change-password: verify", "error", err)
		return nil, huma.Error500InternalServerError("internal error")
	}
	if !ok {
		return nil, huma.Error401Unauthorized("current password incorrect")
	}

	if !srv.acquireArgon2() {
		return nil, huma.Error503ServiceUnavailable("server busy, please retry")
	}
	newHash, err := auth.HashPassword(input.Body.NewPassword)
	srv.releaseArgon2()
	if err != nil {
		slog.ErrorContext(ctx, "change-password: hash", "error", err)
		return nil, huma.Error500InternalServerError("internal error")
	}

	// UpdatePasswordHash also increments token_version, invalidating all refresh tokens.
	if err := srv.store.UpdatePasswordHash(ctx, user.ID, newHash, auth.CurrentHashVersion); err != nil {
		slog.ErrorContext(ctx, "change-password: update hash", "error", err)
		return nil, huma.Error500InternalServerError("internal error")
	}

	return &changePasswordOutput{}, nil
}

// ── Route registration ────────────────────────────────────────────────────────

// registerAuthRoutes registers all auth-related routes on the huma API.
// The credential endpoints (register, login, refresh) carry the per-IP rate
// limit; session endpoints gate on the access token instead.
func registerAuthRoutes(api huma.API, srv *Server) {
	credentialLimit := huma.Middlewares{srv.authRateLimitOp(api)}

	huma.Register(api, huma.Operation{
		OperationID:   "register",
		Method:        http.MethodPost,
		Path:          "/auth/register",
		Tags:          []string{"auth"},
		Summary:       "Register a new user and company workspace",
		DefaultStatus: http.StatusCreated,
		Middlewares:   credentialLimit,
	}, srv.registerHandler)

	huma.Register(api, huma.Operation{
		OperationID:   "login",
		Method:        http.MethodPost,
		Path:          "/auth/login",
		Tags:          []string{"auth"},
		Summary:       "Log in and receive auth cookies",
		DefaultStatus: http.StatusOK,
		Middlewares:   credentialLimit,
	}, srv.loginHandler)

	huma.Register(api, huma.Operation{
		OperationID:   "refresh-token",
		Method:        http.MethodPost,
		Path:          "/auth/refresh",
		Tags:          []string{"auth"},
		Summary:       "Rotate the refresh token and issue a new access token",
		DefaultStatus: http.StatusOK,
		Middlewares:   credentialLimit,
	}, srv.refreshHandler)

	huma.Register(api, huma.Operation{
		OperationID:   "logout",
		Method:        http.MethodPost,
		Path:          "/auth/logout",
		Tags:          []string{"auth"},
		Summary:       "Log out and clear auth cookies",
		DefaultStatus: http.StatusOK,
	}, srv.logoutHandler)

	huma.Register(api, huma.Operation{
		OperationID: "get-me",
		Method:      http.MethodGet,
		Path:        "/auth/me",
		Tags:        []string{"auth"},
		Summary:     "Get the current user's profile and tenant memberships",
	}, srv.meHandler)

	huma.Register(api, huma.Operation{
		OperationID:   "change-password",
		Method:        http.MethodPost,
		Path:          "/auth/change-password",
		Tags:          []string{"auth"},
		Summary:       "Change the authenticated user's password",
		DefaultStatus: http.StatusOK,
	}, srv.changePasswordHandler)
}
