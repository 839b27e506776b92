// Package memory provides in-memory implementations of the persistence
// ports. They back local development (STORAGE_DRIVER=memory) and the
// service-level tests; semantics mirror the DynamoDB implementations,
// including atomic subtree deletes and record-absence signalling.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"pagespace/domain/core/entities"
	"pagespace/domain/core/valueobjects"
	pkgerrors "pagespace/pkg/errors"
)

// PageRepository is an in-memory ports.PageRepository
type PageRepository struct {
	mu    sync.RWMutex
	pages map[string]*entities.Page
}

func NewPageRepository() *PageRepository {
	return &PageRepository{pages: make(map[string]*entities.Page)}
}

func (r *PageRepository) FindByID(_ context.Context, id valueobjects.PageID) (*entities.Page, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	page, ok := r.pages[id.String()]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("page not found")
	}
	return clonePage(page), nil
}

func (r *PageRepository) Save(_ context.Context, page *entities.Page) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pages[page.ID().String()] = clonePage(page)
	return nil
}

func (r *PageRepository) UpdateContent(_ context.Context, id valueobjects.PageID, content string, updatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	page, ok := r.pages[id.String()]
	if !ok {
		return pkgerrors.NewNotFoundError("page not found")
	}
	r.pages[id.String()] = entities.ReconstructPage(
		page.ID(), page.WorkspaceID(), page.ParentID(),
		page.Title(), content, page.CreatedAt(), updatedAt,
	)
	return nil
}

func (r *PageRepository) DeleteSubtree(_ context.Context, workspaceID valueobjects.WorkspaceID, ids []valueobjects.PageID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// All-or-nothing: verify every id belongs to the workspace before
	// removing anything.
	for _, id := range ids {
		page, ok := r.pages[id.String()]
		if !ok {
			return pkgerrors.NewNotFoundError("page not found")
		}
		if !page.WorkspaceID().Equals(workspaceID) {
			return pkgerrors.NewStorageError("page outside workspace", nil)
		}
	}
	for _, id := range ids {
		delete(r.pages, id.String())
	}
	return nil
}

func (r *PageRepository) ListByWorkspace(_ context.Context, workspaceID valueobjects.WorkspaceID) ([]*entities.Page, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*entities.Page
	for _, page := range r.pages {
		if page.WorkspaceID().Equals(workspaceID) {
			out = append(out, clonePage(page))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt().After(out[j].UpdatedAt())
	})
	return out, nil
}

func clonePage(p *entities.Page) *entities.Page {
	return entities.ReconstructPage(
		p.ID(), p.WorkspaceID(), p.ParentID(),
		p.Title(), p.Content(), p.CreatedAt(), p.UpdatedAt(),
	)
}

// WorkspaceRepository is an in-memory ports.WorkspaceRepository. It shares
// member and page storage so CreateWithOwner can span all three records.
type WorkspaceRepository struct {
	mu         sync.RWMutex
	workspaces map[string]*entities.Workspace

	members *MemberRepository
	pages   *PageRepository
}

func NewWorkspaceRepository(members *MemberRepository, pages *PageRepository) *WorkspaceRepository {
	return &WorkspaceRepository{
		workspaces: make(map[string]*entities.Workspace),
		members:    members,
		pages:      pages,
	}
}

func (r *WorkspaceRepository) FindByID(_ context.Context, id valueobjects.WorkspaceID) (*entities.Workspace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ws, ok := r.workspaces[id.String()]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("workspace not found")
	}
	return ws, nil
}

func (r *WorkspaceRepository) CreateWithOwner(ctx context.Context, ws *entities.Workspace, owner *entities.WorkspaceMember, welcome *entities.Page) error {
	r.mu.Lock()
	r.workspaces[ws.ID().String()] = ws
	r.mu.Unlock()

	if err := r.members.Add(ctx, owner); err != nil {
		return err
	}
	return r.pages.Save(ctx, welcome)
}

func (r *WorkspaceRepository) ListByUser(ctx context.Context, userID string) ([]*entities.Workspace, error) {
	ids, err := r.members.workspacesOf(userID)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*entities.Workspace
	for _, id := range ids {
		if ws, ok := r.workspaces[id]; ok {
			out = append(out, ws)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt().Before(out[j].CreatedAt())
	})
	return out, nil
}

// MemberRepository is an in-memory ports.MemberRepository
type MemberRepository struct {
	mu      sync.RWMutex
	members map[string]*entities.WorkspaceMember
}

func NewMemberRepository() *MemberRepository {
	return &MemberRepository{members: make(map[string]*entities.WorkspaceMember)}
}

func memberKey(userID, workspaceID string) string {
	return workspaceID + "/" + userID
}

func (r *MemberRepository) Find(_ context.Context, userID string, workspaceID valueobjects.WorkspaceID) (*entities.WorkspaceMember, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.members[memberKey(userID, workspaceID.String())], nil
}

func (r *MemberRepository) Add(_ context.Context, member *entities.WorkspaceMember) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := memberKey(member.UserID, member.WorkspaceID.String())
	if _, exists := r.members[key]; exists {
		return pkgerrors.NewConflictError("user is already a member")
	}
	r.members[key] = member
	return nil
}

func (r *MemberRepository) workspacesOf(userID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for _, m := range r.members {
		if m.UserID == userID {
			out = append(out, m.WorkspaceID.String())
		}
	}
	return out, nil
}

// DocumentStore is an in-memory ports.DocumentStore
type DocumentStore struct {
	mu     sync.RWMutex
	states map[string][]byte
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{states: make(map[string][]byte)}
}

func (s *DocumentStore) LoadState(_ context.Context, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[name]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(state))
	copy(out, state)
	return out, nil
}

func (s *DocumentStore) SaveState(_ context.Context, name string, state []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]byte, len(state))
	copy(stored, state)
	s.states[name] = stored
	return nil
}

func (s *DocumentStore) DeleteState(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, name)
	return nil
}
