package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"pagespace/collab"
	"pagespace/domain/core/entities"
	"pagespace/domain/core/valueobjects"
	"pagespace/infrastructure/persistence/memory"
	pkgerrors "pagespace/pkg/errors"
	"pagespace/pkg/locks"
)

type fixture struct {
	pages      *memory.PageRepository
	docs       *memory.DocumentStore
	service    *PageService
	workspaces *WorkspaceService
	wsID       valueobjects.WorkspaceID
	ownerID    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	pages := memory.NewPageRepository()
	docs := memory.NewDocumentStore()
	members := memory.NewMemberRepository()
	workspaces := memory.NewWorkspaceRepository(members, pages)

	logger := zap.NewNop()
	wsService := NewWorkspaceService(workspaces, members, logger)
	pageService := NewPageService(pages, docs, NewMembershipAuthorizer(members), locks.NewKeyedMutex(), logger)

	ownerID := "user-owner"
	ws, err := wsService.CreateWorkspace(context.Background(), ownerID, "Team Docs")
	require.NoError(t, err)

	return &fixture{
		pages:      pages,
		docs:       docs,
		service:    pageService,
		workspaces: wsService,
		wsID:       ws.ID(),
		ownerID:    ownerID,
	}
}

func (f *fixture) createPage(t *testing.T, title string, parent *valueobjects.PageID) *entities.Page {
	t.Helper()
	page, err := f.service.CreatePage(context.Background(), f.ownerID, CreatePageInput{
		Title:       title,
		ParentID:    parent,
		WorkspaceID: f.wsID,
	})
	require.NoError(t, err)
	return page
}

func ptr(s string) *string { return &s }

func TestCreatePageDefaults(t *testing.T) {
	f := newFixture(t)

	page := f.createPage(t, "", nil)

	assert.Equal(t, entities.DefaultTitle, page.Title())
	assert.Equal(t, "", page.Content())
	assert.Nil(t, page.ParentID())
}

func TestCreatePageRejectsMissingParent(t *testing.T) {
	f := newFixture(t)
	ghost := valueobjects.NewPageID()

	_, err := f.service.CreatePage(context.Background(), f.ownerID, CreatePageInput{
		Title:       "Child",
		ParentID:    &ghost,
		WorkspaceID: f.wsID,
	})

	require.Error(t, err)
	assert.True(t, pkgerrors.IsInvalidParent(err))
}

func TestCreatePageRejectsCrossWorkspaceParent(t *testing.T) {
	f := newFixture(t)
	other, err := f.workspaces.CreateWorkspace(context.Background(), f.ownerID, "Other Space")
	require.NoError(t, err)

	foreign, err := f.service.CreatePage(context.Background(), f.ownerID, CreatePageInput{
		Title:       "Foreign",
		WorkspaceID: other.ID(),
	})
	require.NoError(t, err)

	foreignID := foreign.ID()
	_, err = f.service.CreatePage(context.Background(), f.ownerID, CreatePageInput{
		Title:       "Child",
		ParentID:    &foreignID,
		WorkspaceID: f.wsID,
	})

	require.Error(t, err)
	assert.True(t, pkgerrors.IsInvalidParent(err))
}

func TestCreatePageForbiddenForNonMember(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.CreatePage(context.Background(), "user-stranger", CreatePageInput{
		Title:       "Intruder",
		WorkspaceID: f.wsID,
	})

	require.Error(t, err)
	assert.True(t, pkgerrors.IsForbidden(err))
}

func TestUpdatePagePartialSemantics(t *testing.T) {
	f := newFixture(t)
	page := f.createPage(t, "Original", nil)
	_, err := f.service.UpdatePage(context.Background(), f.ownerID, page.ID(), UpdatePageInput{
		Content: ptr("<p>body</p>"),
	})
	require.NoError(t, err)

	t.Run("absent fields keep stored values", func(t *testing.T) {
		updated, err := f.service.UpdatePage(context.Background(), f.ownerID, page.ID(), UpdatePageInput{
			Title: ptr("Renamed"),
		})
		require.NoError(t, err)
		assert.Equal(t, "Renamed", updated.Title())
		assert.Equal(t, "<p>body</p>", updated.Content())
	})

	t.Run("empty title becomes default", func(t *testing.T) {
		updated, err := f.service.UpdatePage(context.Background(), f.ownerID, page.ID(), UpdatePageInput{
			Title: ptr("   "),
		})
		require.NoError(t, err)
		assert.Equal(t, entities.DefaultTitle, updated.Title())
	})

	t.Run("empty body still refreshes updatedAt", func(t *testing.T) {
		before, err := f.service.GetPage(context.Background(), f.ownerID, page.ID())
		require.NoError(t, err)

		updated, err := f.service.UpdatePage(context.Background(), f.ownerID, page.ID(), UpdatePageInput{})
		require.NoError(t, err)
		assert.False(t, updated.UpdatedAt().Before(before.UpdatedAt()))
	})
}

type stubSessionMonitor struct {
	active bool
}

func (m stubSessionMonitor) Active(valueobjects.PageID) bool { return m.active }

func TestUpdatePageWarnsOnContentWriteDuringActiveSession(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)

	pages := memory.NewPageRepository()
	docs := memory.NewDocumentStore()
	members := memory.NewMemberRepository()
	workspaces := memory.NewWorkspaceRepository(members, pages)

	logger := zap.New(core)
	wsService := NewWorkspaceService(workspaces, members, zap.NewNop())
	service := NewPageService(pages, docs, NewMembershipAuthorizer(members), locks.NewKeyedMutex(), logger)

	ws, err := wsService.CreateWorkspace(context.Background(), "user-owner", "Team Docs")
	require.NoError(t, err)
	page, err := service.CreatePage(context.Background(), "user-owner", CreatePageInput{
		Title:       "Draft",
		WorkspaceID: ws.ID(),
	})
	require.NoError(t, err)

	service.SetSessionMonitor(stubSessionMonitor{active: true})

	t.Run("content write during live session warns and still wins", func(t *testing.T) {
		updated, err := service.UpdatePage(context.Background(), "user-owner", page.ID(), UpdatePageInput{
			Content: ptr("<p>direct write</p>"),
		})
		require.NoError(t, err)
		assert.Equal(t, "<p>direct write</p>", updated.Content())

		entries := logs.FilterMessageSnippet("collaborative session is active").All()
		require.Len(t, entries, 1)
		assert.Equal(t, page.ID().String(), entries[0].ContextMap()["pageID"])
	})

	t.Run("title-only write does not warn", func(t *testing.T) {
		_, err := service.UpdatePage(context.Background(), "user-owner", page.ID(), UpdatePageInput{
			Title: ptr("Renamed"),
		})
		require.NoError(t, err)
		assert.Len(t, logs.FilterMessageSnippet("collaborative session is active").All(), 1)
	})

	t.Run("no warning once the session is gone", func(t *testing.T) {
		service.SetSessionMonitor(stubSessionMonitor{active: false})
		_, err := service.UpdatePage(context.Background(), "user-owner", page.ID(), UpdatePageInput{
			Content: ptr("<p>quiet write</p>"),
		})
		require.NoError(t, err)
		assert.Len(t, logs.FilterMessageSnippet("collaborative session is active").All(), 1)
	})
}

func TestUpdatePageReparenting(t *testing.T) {
	f := newFixture(t)
	root := f.createPage(t, "Root", nil)
	rootID := root.ID()
	child := f.createPage(t, "Child", &rootID)
	childID := child.ID()
	grandchild := f.createPage(t, "Grandchild", &childID)

	t.Run("empty parent id moves to root", func(t *testing.T) {
		updated, err := f.service.UpdatePage(context.Background(), f.ownerID, grandchild.ID(), UpdatePageInput{
			ParentID: ptr(""),
		})
		require.NoError(t, err)
		assert.Nil(t, updated.ParentID())
	})

	t.Run("reparent under own descendant is rejected", func(t *testing.T) {
		_, err := f.service.UpdatePage(context.Background(), f.ownerID, root.ID(), UpdatePageInput{
			ParentID: ptr(child.ID().String()),
		})
		require.Error(t, err)
		assert.True(t, pkgerrors.IsInvalidParent(err))
	})

	t.Run("reparent to self is rejected", func(t *testing.T) {
		_, err := f.service.UpdatePage(context.Background(), f.ownerID, root.ID(), UpdatePageInput{
			ParentID: ptr(root.ID().String()),
		})
		require.Error(t, err)
		assert.True(t, pkgerrors.IsInvalidParent(err))
	})

	t.Run("reparent to missing page is rejected", func(t *testing.T) {
		_, err := f.service.UpdatePage(context.Background(), f.ownerID, root.ID(), UpdatePageInput{
			ParentID: ptr(valueobjects.NewPageID().String()),
		})
		require.Error(t, err)
		assert.True(t, pkgerrors.IsInvalidParent(err))
	})
}

func TestUpdatePageNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.UpdatePage(context.Background(), f.ownerID, valueobjects.NewPageID(), UpdatePageInput{
		Title: ptr("x"),
	})

	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestDeletePageCascades(t *testing.T) {
	f := newFixture(t)
	root := f.createPage(t, "Root", nil)
	rootID := root.ID()
	child := f.createPage(t, "Child", &rootID)
	childID := child.ID()
	grandchild := f.createPage(t, "Grandchild", &childID)
	sibling := f.createPage(t, "Sibling", nil)

	deleted, err := f.service.DeletePage(context.Background(), f.ownerID, root.ID())
	require.NoError(t, err)
	require.Len(t, deleted, 3)
	// Descendants come before their ancestors; the target is last.
	assert.Equal(t, grandchild.ID(), deleted[0])
	assert.Equal(t, child.ID(), deleted[1])
	assert.Equal(t, root.ID(), deleted[2])

	for _, id := range deleted {
		_, err := f.service.GetPage(context.Background(), f.ownerID, id)
		assert.True(t, pkgerrors.IsNotFound(err))
	}

	kept, err := f.service.GetPage(context.Background(), f.ownerID, sibling.ID())
	require.NoError(t, err)
	assert.Equal(t, "Sibling", kept.Title())
}

func TestDeletePageDropsDocumentState(t *testing.T) {
	f := newFixture(t)
	page := f.createPage(t, "Drafts", nil)
	name := collab.DocumentName(page.ID())
	require.NoError(t, f.docs.SaveState(context.Background(), name, []byte(`{"blocks":{}}`)))

	_, err := f.service.DeletePage(context.Background(), f.ownerID, page.ID())
	require.NoError(t, err)

	state, err := f.docs.LoadState(context.Background(), name)
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestDeletePageForbiddenForNonMember(t *testing.T) {
	f := newFixture(t)
	page := f.createPage(t, "Private", nil)

	_, err := f.service.DeletePage(context.Background(), "user-stranger", page.ID())

	require.Error(t, err)
	assert.True(t, pkgerrors.IsForbidden(err))
}

func TestPageTreeGroupsChildrenUnderParents(t *testing.T) {
	f := newFixture(t)
	root := f.createPage(t, "Root", nil)
	rootID := root.ID()
	f.createPage(t, "Child A", &rootID)
	f.createPage(t, "Child B", &rootID)

	nodes, err := f.service.PageTree(context.Background(), f.ownerID, f.wsID)
	require.NoError(t, err)

	// Welcome page plus the created root.
	require.Len(t, nodes, 2)
	byTitle := make(map[string]int)
	for _, n := range nodes {
		byTitle[n.Page.Title()] = len(n.Children)
	}
	assert.Equal(t, 2, byTitle["Root"])
	assert.Equal(t, 0, byTitle["Welcome"])
}

func TestListPagesOrderedByRecency(t *testing.T) {
	f := newFixture(t)
	a := f.createPage(t, "First", nil)
	f.createPage(t, "Second", nil)

	_, err := f.service.UpdatePage(context.Background(), f.ownerID, a.ID(), UpdatePageInput{
		Title: ptr("First, touched"),
	})
	require.NoError(t, err)

	pages, err := f.service.ListPages(context.Background(), f.ownerID, f.wsID)
	require.NoError(t, err)
	require.NotEmpty(t, pages)
	assert.Equal(t, "First, touched", pages[0].Title())
	for i := 1; i < len(pages); i++ {
		assert.False(t, pages[i].UpdatedAt().After(pages[i-1].UpdatedAt()))
	}
}
