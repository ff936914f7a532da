// ABOUTME: Row types returned by store methods, one struct per table.
// ABOUTME: Nullable columns use pointer types; timestamps are always UTC.
package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// User is an identity row. PasswordHash is nil for OAuth-only accounts.
type User struct {
	ID                  uuid.UUID
	Email               string
	DisplayName         string
	PasswordHash        *string
	PasswordHashVersion int16
	TokenVersion        int32
	OAuthProvider       *string
	OAuthSubject        *string
	LastLoginAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Tenant is a company workspace owning members, leads, and settings.
type Tenant struct {
	ID          uuid.UUID
	Name        string
	Industry    string
	OwnerUserID uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Member joins a user to a tenant with a profile and an optional manager.
// Role comes from role_assignments and is populated by list queries.
type Member struct {
	UserID    uuid.UUID
	TenantID  uuid.UUID
	FullName  string
	Email     string
	Role      string
	ManagerID *uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RoleAssignment is the single role row a member holds in a tenant.
type RoleAssignment struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	UserID    uuid.UUID
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HierarchyLabel is a tenant's display name for a custom level (3..20).
type HierarchyLabel struct {
	TenantID  uuid.UUID
	Level     int16
	Label     string
	UpdatedAt time.Time
}

// RefreshToken tracks one refresh JTI for rotation and theft detection.
type RefreshToken struct {
	JTI           uuid.UUID
	UserID        uuid.UUID
	TokenVersion  int32
	ExpiresAt     time.Time
	UsedAt        *time.Time
	ReplacedByJTI *uuid.UUID
	CreatedAt     time.Time
}

// Invitation records a completed member invitation for audit.
type Invitation struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	UserID    uuid.UUID
	InvitedBy uuid.UUID
	Role      string
	Status    string
	CreatedAt time.Time
}

// Lead is a sales prospect moving through the pipeline stages.
type Lead struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	OwnerUserID *uuid.UUID
	FullName    string
	Email       string
	Phone       string
	Company     string
	Source      string
	Stage       string
	Notes       string
	DeletedAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PaymentLink is a shareable payment request tied to an optional lead.
type PaymentLink struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	LeadID      *uuid.UUID
	CreatedBy   uuid.UUID
	Token       string
	AmountCents int64
	Currency    string
	Description string
	Status      string
	ExpiresAt   time.Time
	PaidAt      *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// WebhookEndpoint is a tenant-registered URL receiving signed event payloads.
type WebhookEndpoint struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	URL       string
	Secret    string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Job is a claimed job ready for execution by the worker pool.
type Job struct {
	ID       int64
	Queue    string
	Payload  json.RawMessage
	Attempts int32
}
