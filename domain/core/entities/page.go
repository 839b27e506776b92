package entities

import (
	"strings"
	"time"

	"pagespace/domain/core/valueobjects"
	pkgerrors "pagespace/pkg/errors"
)

// DefaultTitle is used whenever a page title is absent or blank
const DefaultTitle = "Untitled"

// Page is the entity representing one document in a workspace tree.
// Content is always a string, never nil; an empty page has content "".
type Page struct {
	id          valueobjects.PageID
	workspaceID valueobjects.WorkspaceID
	parentID    *valueobjects.PageID
	title       string
	content     string
	createdAt   time.Time
	updatedAt   time.Time
}

// NewPage creates a new page with empty content and current timestamps
func NewPage(workspaceID valueobjects.WorkspaceID, title string, parentID *valueobjects.PageID) (*Page, error) {
	if workspaceID.IsZero() {
		return nil, pkgerrors.NewValidationError("workspaceID cannot be empty")
	}

	now := time.Now().UTC()
	return &Page{
		id:          valueobjects.NewPageID(),
		workspaceID: workspaceID,
		parentID:    parentID,
		title:       normalizeTitle(title),
		content:     "",
		createdAt:   now,
		updatedAt:   now,
	}, nil
}

// ReconstructPage rebuilds a page from repository data with preserved timestamps
func ReconstructPage(
	id valueobjects.PageID,
	workspaceID valueobjects.WorkspaceID,
	parentID *valueobjects.PageID,
	title, content string,
	createdAt, updatedAt time.Time,
) *Page {
	return &Page{
		id:          id,
		workspaceID: workspaceID,
		parentID:    parentID,
		title:       normalizeTitle(title),
		content:     content,
		createdAt:   createdAt,
		updatedAt:   updatedAt,
	}
}

// ID returns the page's unique identifier
func (p *Page) ID() valueobjects.PageID {
	return p.id
}

// WorkspaceID returns the owning workspace
func (p *Page) WorkspaceID() valueobjects.WorkspaceID {
	return p.workspaceID
}

// ParentID returns the parent page id, nil for roots
func (p *Page) ParentID() *valueobjects.PageID {
	return p.parentID
}

// Title returns the page title
func (p *Page) Title() string {
	return p.title
}

// Content returns the page content payload
func (p *Page) Content() string {
	return p.content
}

// CreatedAt returns when the page was created
func (p *Page) CreatedAt() time.Time {
	return p.createdAt
}

// UpdatedAt returns when the page was last updated
func (p *Page) UpdatedAt() time.Time {
	return p.updatedAt
}

// Rename sets a new title. A blank title is coerced to the default.
func (p *Page) Rename(title string) {
	p.title = normalizeTitle(title)
	p.touch()
}

// SetContent replaces the content payload. Content is never nil; callers
// holding no content pass the empty string.
func (p *Page) SetContent(content string) {
	p.content = content
	p.touch()
}

// MoveTo reparents the page. Workspace and cycle validation happens in the
// page service, which can see the rest of the tree.
func (p *Page) MoveTo(parentID *valueobjects.PageID) {
	p.parentID = parentID
	p.touch()
}

// Touch refreshes updatedAt without changing any field. An accepted update
// with an empty body still advances the timestamp.
func (p *Page) Touch() {
	p.touch()
}

// touch keeps updatedAt monotonically non-decreasing
func (p *Page) touch() {
	now := time.Now().UTC()
	if now.After(p.updatedAt) {
		p.updatedAt = now
	}
}

func normalizeTitle(title string) string {
	if strings.TrimSpace(title) == "" {
		return DefaultTitle
	}
	return title
}
