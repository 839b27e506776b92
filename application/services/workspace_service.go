package services

import (
	"context"

	"go.uber.org/zap"

	"pagespace/application/ports"
	"pagespace/domain/core/entities"
	"pagespace/domain/core/valueobjects"
	pkgerrors "pagespace/pkg/errors"
)

// WelcomeContent is the initial content of a new workspace's first page
const WelcomeContent = "<p>Start writing in your new workspace...</p>"

// WorkspaceService handles workspace creation and membership additions
type WorkspaceService struct {
	workspaces ports.WorkspaceRepository
	members    ports.MemberRepository
	logger     *zap.Logger
}

// NewWorkspaceService creates a workspace service
func NewWorkspaceService(workspaces ports.WorkspaceRepository, members ports.MemberRepository, logger *zap.Logger) *WorkspaceService {
	return &WorkspaceService{
		workspaces: workspaces,
		members:    members,
		logger:     logger,
	}
}

// CreateWorkspace creates the workspace, its owner membership and a
// welcome page in one transaction
func (s *WorkspaceService) CreateWorkspace(ctx context.Context, ownerID, name string) (*entities.Workspace, error) {
	ws, err := entities.NewWorkspace(name, ownerID)
	if err != nil {
		return nil, err
	}

	owner, err := entities.NewWorkspaceMember(ownerID, ws.ID(), entities.RoleOwner)
	if err != nil {
		return nil, err
	}

	welcome, err := entities.NewPage(ws.ID(), "Welcome", nil)
	if err != nil {
		return nil, err
	}
	welcome.SetContent(WelcomeContent)

	if err := s.workspaces.CreateWithOwner(ctx, ws, owner, welcome); err != nil {
		return nil, err
	}

	s.logger.Info("workspace created",
		zap.String("workspaceID", ws.ID().String()),
		zap.String("ownerID", ownerID),
	)

	return ws, nil
}

// AddMember adds userID to the workspace with role MEMBER. Only the owner
// may add members. Adding an existing member is a no-op.
func (s *WorkspaceService) AddMember(ctx context.Context, callerID string, workspaceID valueobjects.WorkspaceID, userID string) error {
	ws, err := s.workspaces.FindByID(ctx, workspaceID)
	if err != nil {
		return err
	}

	if ws.OwnerID() != callerID {
		return pkgerrors.NewForbiddenError("only the workspace owner can add members")
	}

	existing, err := s.members.Find(ctx, userID, workspaceID)
	if err != nil {
		return pkgerrors.Wrap(err, "membership lookup failed")
	}
	if existing != nil {
		return nil
	}

	member, err := entities.NewWorkspaceMember(userID, workspaceID, entities.RoleMember)
	if err != nil {
		return err
	}

	return s.members.Add(ctx, member)
}

// ListWorkspaces returns every workspace the user belongs to
func (s *WorkspaceService) ListWorkspaces(ctx context.Context, userID string) ([]*entities.Workspace, error) {
	return s.workspaces.ListByUser(ctx, userID)
}
