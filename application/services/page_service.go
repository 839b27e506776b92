package services

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"pagespace/application/ports"
	"pagespace/collab"
	"pagespace/domain/core/entities"
	"pagespace/domain/core/valueobjects"
	"pagespace/domain/tree"
	pkgerrors "pagespace/pkg/errors"
	"pagespace/pkg/locks"
)

// SessionMonitor reports whether a collaborative session is currently
// active for a page. The session registry implements it.
type SessionMonitor interface {
	Active(pageID valueobjects.PageID) bool
}

// PageService owns the page tree: creation, partial updates, cascading
// deletes and tree reads. All structural mutations of a page are
// serialized through the keyed mutex it shares with the collaboration
// sync bridge.
type PageService struct {
	pages    ports.PageRepository
	docs     ports.DocumentStore
	auth     Authorizer
	locks    *locks.KeyedMutex
	sessions SessionMonitor
	logger   *zap.Logger
}

// NewPageService creates a page service
func NewPageService(pages ports.PageRepository, docs ports.DocumentStore, auth Authorizer, km *locks.KeyedMutex, logger *zap.Logger) *PageService {
	return &PageService{
		pages:  pages,
		docs:   docs,
		auth:   auth,
		locks:  km,
		logger: logger,
	}
}

// SetSessionMonitor wires in session visibility after construction; the
// registry depends on the same repositories this service uses, so it
// cannot be a constructor argument.
func (s *PageService) SetSessionMonitor(m SessionMonitor) {
	s.sessions = m
}

// CreatePageInput carries the fields of a create request
type CreatePageInput struct {
	Title       string
	ParentID    *valueobjects.PageID
	WorkspaceID valueobjects.WorkspaceID
}

// CreatePage creates a page with empty content. The parent, when given,
// must exist and live in the same workspace; anything else is an
// InvalidParent error.
func (s *PageService) CreatePage(ctx context.Context, userID string, in CreatePageInput) (*entities.Page, error) {
	if _, err := s.auth.Authorize(ctx, userID, in.WorkspaceID); err != nil {
		return nil, err
	}

	if in.ParentID != nil {
		parent, err := s.pages.FindByID(ctx, *in.ParentID)
		if err != nil {
			if pkgerrors.IsNotFound(err) {
				return nil, pkgerrors.NewInvalidParentError("parent page does not exist")
			}
			return nil, err
		}
		if !parent.WorkspaceID().Equals(in.WorkspaceID) {
			return nil, pkgerrors.NewInvalidParentError("parent page belongs to a different workspace")
		}
	}

	page, err := entities.NewPage(in.WorkspaceID, in.Title, in.ParentID)
	if err != nil {
		return nil, err
	}

	if err := s.pages.Save(ctx, page); err != nil {
		return nil, err
	}

	s.logger.Info("page created",
		zap.String("pageID", page.ID().String()),
		zap.String("workspaceID", in.WorkspaceID.String()),
		zap.String("userID", userID),
	)

	return page, nil
}

// UpdatePageInput carries partial update fields. A nil pointer means the
// field was absent from the request and keeps its stored value; requests
// carrying an explicit null have already been coerced by the transport
// layer (title to "Untitled", content to "").
type UpdatePageInput struct {
	Title    *string
	Content  *string
	ParentID *string // "" moves the page to the root
}

// UpdatePage applies a partial update. Only provided fields change;
// updatedAt is refreshed on every accepted update, even a no-op body.
func (s *PageService) UpdatePage(ctx context.Context, userID string, id valueobjects.PageID, in UpdatePageInput) (*entities.Page, error) {
	unlock := s.locks.Lock(id.String())
	defer unlock()

	page, err := s.pages.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if _, err := s.auth.Authorize(ctx, userID, page.WorkspaceID()); err != nil {
		return nil, err
	}

	changed := false

	if in.Title != nil {
		page.Rename(*in.Title)
		changed = true
	}
	if in.Content != nil {
		// Last writer wins between this write and a live session; the
		// session's next materialization overwrites the snapshot again.
		if s.sessions != nil && s.sessions.Active(id) {
			s.logger.Warn("content written while a collaborative session is active",
				zap.String("pageID", id.String()),
				zap.String("userID", userID),
			)
		}
		page.SetContent(*in.Content)
		changed = true
	}
	if in.ParentID != nil {
		parentID, err := s.resolveParent(ctx, page, *in.ParentID)
		if err != nil {
			return nil, err
		}
		page.MoveTo(parentID)
		changed = true
	}
	if !changed {
		page.Touch()
	}

	if err := s.pages.Save(ctx, page); err != nil {
		return nil, err
	}

	return page, nil
}

// resolveParent validates a reparent target: it must exist, share the
// page's workspace and not sit inside the page's own subtree.
func (s *PageService) resolveParent(ctx context.Context, page *entities.Page, raw string) (*valueobjects.PageID, error) {
	if raw == "" {
		return nil, nil
	}

	parentID, err := valueobjects.NewPageIDFromString(raw)
	if err != nil {
		return nil, pkgerrors.NewInvalidParentError(err.Error())
	}

	parent, err := s.pages.FindByID(ctx, parentID)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			return nil, pkgerrors.NewInvalidParentError("parent page does not exist")
		}
		return nil, err
	}
	if !parent.WorkspaceID().Equals(page.WorkspaceID()) {
		return nil, pkgerrors.NewInvalidParentError("parent page belongs to a different workspace")
	}

	all, err := s.pages.ListByWorkspace(ctx, page.WorkspaceID())
	if err != nil {
		return nil, err
	}
	if tree.IsDescendant(all, page.ID(), parentID) {
		return nil, pkgerrors.NewInvalidParentError("moving a page under its own subtree would create a cycle")
	}

	return &parentID, nil
}

// DeletePage removes the page and every descendant as one atomic unit.
// The whole subtree is locked (sorted to keep lock acquisition deadlock
// free against concurrent subtree deletes) so no descendant can be
// updated or materialized mid-delete.
func (s *PageService) DeletePage(ctx context.Context, userID string, id valueobjects.PageID) ([]valueobjects.PageID, error) {
	page, err := s.pages.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if _, err := s.auth.Authorize(ctx, userID, page.WorkspaceID()); err != nil {
		return nil, err
	}

	all, err := s.pages.ListByWorkspace(ctx, page.WorkspaceID())
	if err != nil {
		return nil, err
	}

	// Deepest-first, the target last.
	descendants := tree.Descendants(all, id)
	ids := make([]valueobjects.PageID, 0, len(descendants)+1)
	for _, d := range descendants {
		ids = append(ids, d.ID())
	}
	ids = append(ids, id)

	unlock := s.lockAll(ids)
	defer unlock()

	if err := s.pages.DeleteSubtree(ctx, page.WorkspaceID(), ids); err != nil {
		return nil, err
	}

	// Best effort: drop the collaborative document records of the deleted
	// pages. A leftover record is unreachable anyway once the page is gone.
	for _, deleted := range ids {
		if err := s.docs.DeleteState(ctx, collab.DocumentName(deleted)); err != nil {
			s.logger.Warn("document state cleanup failed",
				zap.String("pageID", deleted.String()), zap.Error(err))
		}
	}

	s.logger.Info("page subtree deleted",
		zap.String("pageID", id.String()),
		zap.Int("pages", len(ids)),
		zap.String("userID", userID),
	)

	return ids, nil
}

// GetPage fetches one page after a membership check
func (s *PageService) GetPage(ctx context.Context, userID string, id valueobjects.PageID) (*entities.Page, error) {
	page, err := s.pages.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.auth.Authorize(ctx, userID, page.WorkspaceID()); err != nil {
		return nil, err
	}
	return page, nil
}

// ListPages returns the workspace's pages ordered by updatedAt descending
func (s *PageService) ListPages(ctx context.Context, userID string, workspaceID valueobjects.WorkspaceID) ([]*entities.Page, error) {
	if _, err := s.auth.Authorize(ctx, userID, workspaceID); err != nil {
		return nil, err
	}
	return s.pages.ListByWorkspace(ctx, workspaceID)
}

// PageTree returns the workspace's pages grouped into a forest
func (s *PageService) PageTree(ctx context.Context, userID string, workspaceID valueobjects.WorkspaceID) ([]*tree.PageNode, error) {
	pages, err := s.ListPages(ctx, userID, workspaceID)
	if err != nil {
		return nil, err
	}
	return tree.Build(pages), nil
}

// lockAll acquires the keyed mutex for every id in sorted order and
// returns one unlock for all of them
func (s *PageService) lockAll(ids []valueobjects.PageID) func() {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}
	sort.Strings(keys)

	unlocks := make([]func(), 0, len(keys))
	for _, key := range keys {
		unlocks = append(unlocks, s.locks.Lock(key))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}
