package services

import (
	"context"

	"pagespace/application/ports"
	"pagespace/domain/core/entities"
	"pagespace/domain/core/valueobjects"
	pkgerrors "pagespace/pkg/errors"
)

// Authorizer answers the one question every mutation asks first: what is
// this user's role in this workspace. Non-members get a Forbidden error.
type Authorizer interface {
	Authorize(ctx context.Context, userID string, workspaceID valueobjects.WorkspaceID) (entities.Role, error)
}

// MembershipAuthorizer implements Authorizer over the member repository
type MembershipAuthorizer struct {
	members ports.MemberRepository
}

// NewMembershipAuthorizer creates an authorizer backed by stored memberships
func NewMembershipAuthorizer(members ports.MemberRepository) *MembershipAuthorizer {
	return &MembershipAuthorizer{members: members}
}

// Authorize returns the user's role or a Forbidden error
func (a *MembershipAuthorizer) Authorize(ctx context.Context, userID string, workspaceID valueobjects.WorkspaceID) (entities.Role, error) {
	member, err := a.members.Find(ctx, userID, workspaceID)
	if err != nil {
		return "", pkgerrors.Wrap(err, "membership lookup failed")
	}
	if member == nil {
		return "", pkgerrors.NewForbiddenError("not a member of this workspace")
	}
	return member.Role, nil
}
