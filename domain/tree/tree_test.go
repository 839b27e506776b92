package tree

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagespace/domain/core/entities"
	"pagespace/domain/core/valueobjects"
)

func makePage(t *testing.T, ws valueobjects.WorkspaceID, title string, parent *valueobjects.PageID, updated time.Time) *entities.Page {
	t.Helper()
	return entities.ReconstructPage(
		valueobjects.NewPageID(),
		ws,
		parent,
		title,
		"",
		updated.Add(-time.Hour),
		updated,
	)
}

func TestBuild_GroupsChildrenByParent(t *testing.T) {
	ws := valueobjects.NewWorkspaceID()
	now := time.Now()

	root := makePage(t, ws, "Root", nil, now)
	rootID := root.ID()
	childA := makePage(t, ws, "A", &rootID, now.Add(time.Minute))
	childB := makePage(t, ws, "B", &rootID, now.Add(2*time.Minute))
	childAID := childA.ID()
	grandchild := makePage(t, ws, "AA", &childAID, now)

	forest := Build([]*entities.Page{root, childA, childB, grandchild})

	require.Len(t, forest, 1)
	assert.Equal(t, "Root", forest[0].Page.Title())

	kids := forest[0].Children
	require.Len(t, kids, 2)
	// Most recently touched first.
	assert.Equal(t, "B", kids[0].Page.Title())
	assert.Equal(t, "A", kids[1].Page.Title())

	require.Len(t, kids[1].Children, 1)
	assert.Equal(t, "AA", kids[1].Children[0].Page.Title())
}

func TestBuild_ChildrenAreExactlyPagesWithMatchingParent(t *testing.T) {
	ws := valueobjects.NewWorkspaceID()
	now := time.Now()

	root := makePage(t, ws, "Root", nil, now)
	rootID := root.ID()
	pages := []*entities.Page{root}
	for i := 0; i < 5; i++ {
		pages = append(pages, makePage(t, ws, "child", &rootID, now.Add(time.Duration(i)*time.Second)))
	}
	other := makePage(t, ws, "other-root", nil, now)
	pages = append(pages, other)

	forest := Build(pages)

	var rootNode *PageNode
	for _, n := range forest {
		if n.Page.ID().Equals(rootID) {
			rootNode = n
		}
	}
	require.NotNil(t, rootNode)
	require.Len(t, rootNode.Children, 5)
	for _, child := range rootNode.Children {
		require.NotNil(t, child.Page.ParentID())
		assert.True(t, child.Page.ParentID().Equals(rootID))
	}
}

func TestBuild_OrphanedParentBecomesRoot(t *testing.T) {
	ws := valueobjects.NewWorkspaceID()
	missing := valueobjects.NewPageID()
	orphan := makePage(t, ws, "Orphan", &missing, time.Now())

	forest := Build([]*entities.Page{orphan})

	require.Len(t, forest, 1)
	assert.Equal(t, "Orphan", forest[0].Page.Title())
	assert.Empty(t, forest[0].Children)
}

func TestBuild_EmptyInput(t *testing.T) {
	assert.Empty(t, Build(nil))
}

func TestDescendants_DeepFirst(t *testing.T) {
	ws := valueobjects.NewWorkspaceID()
	now := time.Now()

	root := makePage(t, ws, "root", nil, now)
	rootID := root.ID()
	child := makePage(t, ws, "child", &rootID, now)
	childID := child.ID()
	grandchild := makePage(t, ws, "grandchild", &childID, now)

	desc := Descendants([]*entities.Page{root, child, grandchild}, rootID)

	require.Len(t, desc, 2)
	// Deepest first: grandchild must come before its parent.
	assert.Equal(t, "grandchild", desc[0].Title())
	assert.Equal(t, "child", desc[1].Title())
}

func TestIsDescendant(t *testing.T) {
	ws := valueobjects.NewWorkspaceID()
	now := time.Now()

	root := makePage(t, ws, "root", nil, now)
	rootID := root.ID()
	child := makePage(t, ws, "child", &rootID, now)
	sibling := makePage(t, ws, "sibling", nil, now)

	pages := []*entities.Page{root, child, sibling}

	assert.True(t, IsDescendant(pages, rootID, rootID), "a page is its own descendant for cycle checks")
	assert.True(t, IsDescendant(pages, rootID, child.ID()))
	assert.False(t, IsDescendant(pages, rootID, sibling.ID()))
}
