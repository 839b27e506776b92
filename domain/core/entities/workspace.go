package entities

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"pagespace/domain/core/valueobjects"
	pkgerrors "pagespace/pkg/errors"
)

// Role is the membership role of a user inside a workspace
type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleMember Role = "MEMBER"
)

// Workspace groups pages under a single owning user
type Workspace struct {
	id        valueobjects.WorkspaceID
	name      string
	ownerID   string
	createdAt time.Time
	updatedAt time.Time
}

// NewWorkspace creates a workspace owned by ownerID
func NewWorkspace(name, ownerID string) (*Workspace, error) {
	if strings.TrimSpace(name) == "" {
		return nil, pkgerrors.NewValidationError("workspace name cannot be empty")
	}
	if ownerID == "" {
		return nil, pkgerrors.NewValidationError("ownerID cannot be empty")
	}

	now := time.Now().UTC()
	return &Workspace{
		id:        valueobjects.NewWorkspaceID(),
		name:      name,
		ownerID:   ownerID,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// ReconstructWorkspace rebuilds a workspace from repository data
func ReconstructWorkspace(id valueobjects.WorkspaceID, name, ownerID string, createdAt, updatedAt time.Time) *Workspace {
	return &Workspace{
		id:        id,
		name:      name,
		ownerID:   ownerID,
		createdAt: createdAt,
		updatedAt: updatedAt,
	}
}

// ID returns the workspace identifier
func (w *Workspace) ID() valueobjects.WorkspaceID {
	return w.id
}

// Name returns the workspace name
func (w *Workspace) Name() string {
	return w.name
}

// OwnerID returns the owning user's id
func (w *Workspace) OwnerID() string {
	return w.ownerID
}

// CreatedAt returns when the workspace was created
func (w *Workspace) CreatedAt() time.Time {
	return w.createdAt
}

// UpdatedAt returns when the workspace was last updated
func (w *Workspace) UpdatedAt() time.Time {
	return w.updatedAt
}

// WorkspaceMember is the (user, workspace) membership record. Members are
// created once and never updated in place.
type WorkspaceMember struct {
	ID          string
	UserID      string
	WorkspaceID valueobjects.WorkspaceID
	Role        Role
	CreatedAt   time.Time
}

// NewWorkspaceMember creates a membership record
func NewWorkspaceMember(userID string, workspaceID valueobjects.WorkspaceID, role Role) (*WorkspaceMember, error) {
	if userID == "" {
		return nil, pkgerrors.NewValidationError("userID cannot be empty")
	}
	if workspaceID.IsZero() {
		return nil, pkgerrors.NewValidationError("workspaceID cannot be empty")
	}
	if role != RoleOwner && role != RoleMember {
		return nil, pkgerrors.NewValidationError("role must be OWNER or MEMBER")
	}

	return &WorkspaceMember{
		ID:          uuid.New().String(),
		UserID:      userID,
		WorkspaceID: workspaceID,
		Role:        role,
		CreatedAt:   time.Now().UTC(),
	}, nil
}
