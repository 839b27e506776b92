package ports

import (
	"context"
	"time"

	"pagespace/domain/core/entities"
	"pagespace/domain/core/valueobjects"
)

// PageRepository is the durable snapshot store for pages. It is the single
// source of truth for page content whenever no collaborative session is
// active for the page.
type PageRepository interface {
	// FindByID returns the page or a NotFound error
	FindByID(ctx context.Context, id valueobjects.PageID) (*entities.Page, error)

	// Save upserts the full page record
	Save(ctx context.Context, page *entities.Page) error

	// UpdateContent writes only the content and updatedAt fields, leaving
	// title and structural fields untouched. The write is all-or-nothing.
	// This is the materialization path of the sync bridge.
	UpdateContent(ctx context.Context, id valueobjects.PageID, content string, updatedAt time.Time) error

	// DeleteSubtree removes all listed pages as a single atomic unit.
	// Callers pass ids deepest-first (descendants before ancestors).
	DeleteSubtree(ctx context.Context, workspaceID valueobjects.WorkspaceID, ids []valueobjects.PageID) error

	// ListByWorkspace returns every page of the workspace ordered by
	// updatedAt descending
	ListByWorkspace(ctx context.Context, workspaceID valueobjects.WorkspaceID) ([]*entities.Page, error)
}

// WorkspaceRepository persists workspaces
type WorkspaceRepository interface {
	FindByID(ctx context.Context, id valueobjects.WorkspaceID) (*entities.Workspace, error)

	// CreateWithOwner writes the workspace, its owner membership and the
	// initial welcome page in one transaction
	CreateWithOwner(ctx context.Context, ws *entities.Workspace, owner *entities.WorkspaceMember, welcome *entities.Page) error

	// ListByUser returns every workspace the user is a member of
	ListByUser(ctx context.Context, userID string) ([]*entities.Workspace, error)
}

// MemberRepository persists workspace memberships
type MemberRepository interface {
	// Find returns the membership or nil when the user is not a member
	Find(ctx context.Context, userID string, workspaceID valueobjects.WorkspaceID) (*entities.WorkspaceMember, error)

	Add(ctx context.Context, member *entities.WorkspaceMember) error
}

// DocumentStore is the durable log backing collaborative documents. The
// encoded state is opaque to everything except the CRDT engine.
type DocumentStore interface {
	// LoadState returns the persisted state for a document name, or
	// (nil, nil) when no record exists yet. Absence of a record is the
	// one signal that lets the sync bridge seed from the page snapshot.
	LoadState(ctx context.Context, name string) ([]byte, error)

	// SaveState durably replaces the document state
	SaveState(ctx context.Context, name string, state []byte) error

	// DeleteState removes the document record, used when its page is deleted
	DeleteState(ctx context.Context, name string) error
}
