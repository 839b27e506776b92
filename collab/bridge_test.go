package collab

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pagespace/collab/crdt"
	"pagespace/domain/core/entities"
	"pagespace/domain/core/valueobjects"
	"pagespace/infrastructure/persistence/memory"
	pkgerrors "pagespace/pkg/errors"
	"pagespace/pkg/locks"
)

func newTestBridge(t *testing.T) (*Bridge, *memory.PageRepository, *memory.DocumentStore) {
	t.Helper()
	pages := memory.NewPageRepository()
	docs := memory.NewDocumentStore()
	return NewBridge(pages, docs, locks.NewKeyedMutex(), zap.NewNop()), pages, docs
}

func savedPage(t *testing.T, pages *memory.PageRepository, content string) *entities.Page {
	t.Helper()
	page, err := entities.NewPage(valueobjects.NewWorkspaceID(), "Notes", nil)
	require.NoError(t, err)
	page.SetContent(content)
	require.NoError(t, pages.Save(context.Background(), page))
	return page
}

func TestOpenSeedsFromSnapshotWhenNoStateExists(t *testing.T) {
	bridge, pages, _ := newTestBridge(t)
	page := savedPage(t, pages, "<h1>Plan</h1><p>First step</p>")

	doc := bridge.Open(context.Background(), page.ID())

	blocks := doc.Blocks()
	require.Len(t, blocks, 2)
	assert.Equal(t, crdt.KindHeading1, blocks[0].Kind)
	assert.Equal(t, "Plan", blocks[0].Text)
	assert.Equal(t, "First step", blocks[1].Text)
}

func TestOpenPrefersPersistedStateOverSnapshot(t *testing.T) {
	bridge, pages, docs := newTestBridge(t)
	page := savedPage(t, pages, "<p>stale snapshot</p>")

	persisted := crdt.NewDocument()
	update, err := crdt.EncodeUpdate(crdt.Update{Blocks: []crdt.Block{
		{ID: "b1", Pos: "a000000", Kind: crdt.KindParagraph, Text: "live edit", Clock: 5, Actor: "u1"},
	}})
	require.NoError(t, err)
	require.NoError(t, persisted.ApplyUpdate(update))
	require.NoError(t, docs.SaveState(context.Background(), DocumentName(page.ID()), persisted.EncodeState()))

	doc := bridge.Open(context.Background(), page.ID())

	blocks := doc.Blocks()
	require.Len(t, blocks, 1)
	assert.Equal(t, "live edit", blocks[0].Text)
}

func TestOpenTreatsEmptyPersistedStateAsAuthoritative(t *testing.T) {
	bridge, pages, docs := newTestBridge(t)
	page := savedPage(t, pages, "<p>snapshot content</p>")

	// A record exists but holds an intentionally emptied document.
	empty := crdt.NewDocument()
	require.NoError(t, docs.SaveState(context.Background(), DocumentName(page.ID()), empty.EncodeState()))

	doc := bridge.Open(context.Background(), page.ID())

	assert.True(t, doc.IsEmpty(), "emptied persisted state must not be re-seeded")
}

func TestOpenSeedsAtMostOnce(t *testing.T) {
	bridge, pages, _ := newTestBridge(t)
	page := savedPage(t, pages, "<p>hello</p>")

	first := bridge.Open(context.Background(), page.ID())
	require.NoError(t, bridge.Materialize(context.Background(), page.ID(), first))

	// Snapshot changes out of band; the second open must ignore it.
	require.NoError(t, pages.UpdateContent(context.Background(), page.ID(), "<p>rogue write</p>", time.Now().UTC()))

	second := bridge.Open(context.Background(), page.ID())
	require.Len(t, second.Blocks(), 1)
	assert.Equal(t, "hello", second.Blocks()[0].Text)
	assert.Equal(t, first.EncodeState(), second.EncodeState())
}

func TestOpenWithBlankSnapshotStartsEmpty(t *testing.T) {
	bridge, pages, _ := newTestBridge(t)
	page := savedPage(t, pages, "")

	doc := bridge.Open(context.Background(), page.ID())
	assert.True(t, doc.IsEmpty())
}

func TestOpenSurvivesStorageFailure(t *testing.T) {
	pages := memory.NewPageRepository()
	bridge := NewBridge(pages, failingDocs{}, locks.NewKeyedMutex(), zap.NewNop())
	page := savedPage(t, pages, "<p>content</p>")

	doc := bridge.Open(context.Background(), page.ID())

	// Existence of state is unknown, so no seeding happens either.
	assert.True(t, doc.IsEmpty())
}

func TestOpenSurvivesCorruptState(t *testing.T) {
	bridge, pages, docs := newTestBridge(t)
	page := savedPage(t, pages, "<p>content</p>")
	require.NoError(t, docs.SaveState(context.Background(), DocumentName(page.ID()), []byte("{not valid")))

	doc := bridge.Open(context.Background(), page.ID())
	assert.True(t, doc.IsEmpty())
}

func TestMaterializeWritesContentAndTimestampOnly(t *testing.T) {
	bridge, pages, docs := newTestBridge(t)
	page := savedPage(t, pages, "")
	before := page.UpdatedAt()

	doc := crdt.NewDocument()
	update, err := crdt.EncodeUpdate(crdt.Update{Blocks: []crdt.Block{
		{ID: "b1", Pos: "a000000", Kind: crdt.KindParagraph, Text: "written live", Clock: 1, Actor: "u1"},
	}})
	require.NoError(t, err)
	require.NoError(t, doc.ApplyUpdate(update))

	require.NoError(t, bridge.Materialize(context.Background(), page.ID(), doc))

	updated, err := pages.FindByID(context.Background(), page.ID())
	require.NoError(t, err)
	assert.Equal(t, "<p>written live</p>", updated.Content())
	assert.Equal(t, "Notes", updated.Title())
	assert.True(t, updated.UpdatedAt().After(before) || updated.UpdatedAt().Equal(before.Add(time.Millisecond)))

	state, err := docs.LoadState(context.Background(), DocumentName(page.ID()))
	require.NoError(t, err)
	assert.Equal(t, doc.EncodeState(), state)
}

func TestMaterializeSkipsDeletedPage(t *testing.T) {
	bridge, _, docs := newTestBridge(t)
	pageID := valueobjects.NewPageID()

	doc := crdt.NewDocument()
	err := bridge.Materialize(context.Background(), pageID, doc)
	require.NoError(t, err, "a vanished page is not a materialization failure")

	// State is still saved; the document remains authoritative.
	state, err := docs.LoadState(context.Background(), DocumentName(pageID))
	require.NoError(t, err)
	assert.NotNil(t, state)
}

func TestMaterializeStateSaveFailureLeavesSnapshotUntouched(t *testing.T) {
	pages := memory.NewPageRepository()
	bridge := NewBridge(pages, failingDocs{}, locks.NewKeyedMutex(), zap.NewNop())
	page := savedPage(t, pages, "<p>original</p>")

	err := bridge.Materialize(context.Background(), page.ID(), crdt.NewDocument())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeStorage))

	unchanged, err := pages.FindByID(context.Background(), page.ID())
	require.NoError(t, err)
	assert.Equal(t, "<p>original</p>", unchanged.Content())
}

type failingDocs struct{}

func (failingDocs) LoadState(context.Context, string) ([]byte, error) {
	return nil, errors.New("store unavailable")
}

func (failingDocs) SaveState(context.Context, string, []byte) error {
	return errors.New("store unavailable")
}

func (failingDocs) DeleteState(context.Context, string) error {
	return errors.New("store unavailable")
}
