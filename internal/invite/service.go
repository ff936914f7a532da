// Package invite implements the member invitation workflow: create the
// identity, create the tenant profile, create the single role row, and
// queue the invitation email. When a later step fails, the rows this run
// created are deleted so no orphan account or roleless profile survives.
package invite

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Weskill-org/leadflow-ai-sub000/internal/auth"
	"github.com/Weskill-org/leadflow-ai-sub000/internal/hierarchy"
	"github.com/Weskill-org/leadflow-ai-sub000/internal/store"
)

var (
	// ErrRoleNotAllowed means the acting member's level does not outrank the
	// requested role, or the role itself is unknown.
	ErrRoleNotAllowed = errors.New("role not allowed")
	// ErrAlreadyMember means the invitee already has a profile in the tenant.
	ErrAlreadyMember = errors.New("already a member")
	// ErrManagerNotFound means the requested manager is not a member of the tenant.
	ErrManagerNotFound = errors.New("manager not found")
	// ErrPasswordTooShort means the supplied initial password is under 6 characters.
	ErrPasswordTooShort = errors.New("password must be at least 6 characters")
)

// IdentityStore is the slice of the user store the saga needs. DeleteIdentity
// must be idempotent: the compensation path may retry it.
type IdentityStore interface {
	GetUserByEmail(ctx context.Context, email string) (*store.User, error)
	CreateUser(ctx context.Context, email, displayName, passwordHash string, hashVersion int) (*store.User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

// MembershipStore is the slice of the member store the saga needs.
// DeleteMember backs the compensation path for pre-existing identities and
// must tolerate the profile row being absent.
type MembershipStore interface {
	GetMember(ctx context.Context, tenantID, userID uuid.UUID) (*store.Member, error)
	CreateMemberProfile(ctx context.Context, tenantID, userID uuid.UUID, fullName string, managerID *uuid.UUID) error
	CreateRoleAssignment(ctx context.Context, tenantID, userID uuid.UUID, role string) error
	CreateInvitation(ctx context.Context, tenantID, userID, invitedBy uuid.UUID, role string) (*store.Invitation, error)
	DeleteMember(ctx context.Context, tenantID, userID uuid.UUID) (int64, error)
}

// JobEnqueuer queues the invitation email for the worker pool.
type JobEnqueuer interface {
	EnqueueJob(ctx context.Context, queue string, priority int32, payload json.RawMessage, lockKey *string, maxAttempts int32, runAfter *time.Time) (int64, error)
}

// Service runs the invitation saga.
type Service struct {
	identities IdentityStore
	members    MembershipStore
	jobs       JobEnqueuer
	logger     *slog.Logger

	// hashPassword is swappable in tests to avoid argon2 cost per case.
	hashPassword func(string) (string, error)
}

// NewService wires the saga's collaborators. jobs may be nil when no email
// delivery is configured; the saga then skips the queue step.
func NewService(identities IdentityStore, members MembershipStore, jobs JobEnqueuer, logger *slog.Logger) *Service {
	return &Service{
		identities:   identities,
		members:      members,
		jobs:         jobs,
		logger:       logger,
		hashPassword: auth.HashPassword,
	}
}

// Params describes one invitation. Password, when set, becomes the initial
// password of a freshly created identity; existing identities keep their own.
type Params struct {
	TenantID    uuid.UUID
	InvitedBy   uuid.UUID
	ActingLevel int
	Email       string
	FullName    string
	Role        string
	ManagerID   *uuid.UUID
	Password    string
}

// Result reports the invited member and whether a fresh identity was created
// (false when the invitee already had an account in another tenant).
type Result struct {
	UserID          uuid.UUID
	Invitation      *store.Invitation
	CreatedIdentity bool
}

// emailPayload is the invite_email job body.
type emailPayload struct {
	UserID       uuid.UUID `json:"user_id"`
	TenantID     uuid.UUID `json:"tenant_id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	Role         string    `json:"role"`
	TempPassword string    `json:"temp_password,omitempty"`
}

// Invite runs the saga. All permission and reference checks happen before
// the first write, so a rejected invitation leaves no rows behind.
func (s *Service) Invite(ctx context.Context, p Params) (*Result, error) {
	targetLevel, err := hierarchy.ParseRole(p.Role)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrRoleNotAllowed, p.Role)
	}
	if !hierarchy.CanAssign(p.ActingLevel, targetLevel) {
		return nil, fmt.Errorf("%w: level %d cannot assign level %d", ErrRoleNotAllowed, p.ActingLevel, targetLevel)
	}
	if p.Password != "" && len(p.Password) < 6 {
		return nil, ErrPasswordTooShort
	}
	if p.ManagerID != nil {
		mgr, err := s.members.GetMember(ctx, p.TenantID, *p.ManagerID)
		if err != nil {
			return nil, err
		}
		if mgr == nil {
			return nil, ErrManagerNotFound
		}
	}

	user, err := s.identities.GetUserByEmail(ctx, p.Email)
	if err != nil {
		return nil, err
	}
	createdIdentity := false
	tempPassword := ""
	if user != nil {
		existing, err := s.members.GetMember(ctx, p.TenantID, user.ID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, ErrAlreadyMember
		}
	} else {
		password := p.Password
		if password == "" {
			// No password chosen by the inviter, so generate one and mail it.
			tempPassword, err = generatePassword()
			if err != nil {
				return nil, fmt.Errorf("generate password: %w", err)
			}
			password = tempPassword
		}
		hash, err := s.hashPassword(password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		user, err = s.identities.CreateUser(ctx, p.Email, p.FullName, hash, auth.CurrentHashVersion)
		if err != nil {
			return nil, fmt.Errorf("create identity: %w", err)
		}
		createdIdentity = true
	}

	if err := s.members.CreateMemberProfile(ctx, p.TenantID, user.ID, p.FullName, p.ManagerID); err != nil {
		s.compensate(ctx, p.TenantID, user.ID, createdIdentity, "create profile", err)
		return nil, fmt.Errorf("create profile: %w", err)
	}
	if err := s.members.CreateRoleAssignment(ctx, p.TenantID, user.ID, p.Role); err != nil {
		s.compensate(ctx, p.TenantID, user.ID, createdIdentity, "create role", err)
		return nil, fmt.Errorf("create role: %w", err)
	}

	inv, err := s.members.CreateInvitation(ctx, p.TenantID, user.ID, p.InvitedBy, p.Role)
	if err != nil {
		// Membership is complete at this point; losing the audit row is
		// not worth unwinding the saga.
		s.logger.Warn("record invitation failed", "error", err, "user_id", user.ID)
	}

	s.queueEmail(ctx, p, user.ID, tempPassword)

	return &Result{UserID: user.ID, Invitation: inv, CreatedIdentity: createdIdentity}, nil
}

// compensate undoes the writes of a failed saga run. A fresh identity is
// deleted and the cascade takes the tenant rows with it. An identity that
// existed before the run is never touched; only the member profile created
// for this tenant is removed, so a retried invite does not find a roleless
// profile and report ErrAlreadyMember.
func (s *Service) compensate(ctx context.Context, tenantID, userID uuid.UUID, createdIdentity bool, step string, cause error) {
	if createdIdentity {
		if err := s.identities.DeleteUser(ctx, userID); err != nil {
			s.logger.Error("invitation rollback failed, orphan identity remains",
				"user_id", userID, "failed_step", step, "cause", cause, "error", err)
			return
		}
		s.logger.Info("invitation rolled back", "user_id", userID, "failed_step", step, "cause", cause)
		return
	}
	if _, err := s.members.DeleteMember(ctx, tenantID, userID); err != nil {
		s.logger.Error("invitation rollback failed, orphan profile remains",
			"user_id", userID, "tenant_id", tenantID, "failed_step", step, "cause", cause, "error", err)
		return
	}
	s.logger.Info("invitation rolled back", "user_id", userID, "failed_step", step, "cause", cause)
}

func (s *Service) queueEmail(ctx context.Context, p Params, userID uuid.UUID, tempPassword string) {
	if s.jobs == nil {
		return
	}
	payload, err := json.Marshal(emailPayload{
		UserID:       userID,
		TenantID:     p.TenantID,
		Email:        p.Email,
		FullName:     p.FullName,
		Role:         p.Role,
		TempPassword: tempPassword,
	})
	if err != nil {
		s.logger.Error("marshal invite email payload", "error", err)
		return
	}
	if _, err := s.jobs.EnqueueJob(ctx, "invite_email", 100, payload, nil, 5, nil); err != nil {
		s.logger.Warn("queue invite email", "error", err, "user_id", userID)
	}
}

// generatePassword returns a random URL-safe temporary password.
func generatePassword() (string, error) {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
