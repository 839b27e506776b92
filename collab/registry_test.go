package collab

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pagespace/collab/crdt"
	"pagespace/domain/core/entities"
	"pagespace/domain/core/valueobjects"
	"pagespace/infrastructure/persistence/memory"
	"pagespace/pkg/locks"
)

type recordingClient struct {
	mu       sync.Mutex
	received [][]byte
}

func (c *recordingClient) Send(update []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received = append(c.received, update)
}

func (c *recordingClient) updates() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.received))
	copy(out, c.received)
	return out
}

func newTestRegistry(t *testing.T) (*Registry, *memory.PageRepository, *memory.DocumentStore) {
	t.Helper()
	pages := memory.NewPageRepository()
	docs := memory.NewDocumentStore()
	bridge := NewBridge(pages, docs, locks.NewKeyedMutex(), zap.NewNop())
	return NewRegistry(bridge, nil, 0, 5*time.Second, zap.NewNop()), pages, docs
}

func registryPage(t *testing.T, pages *memory.PageRepository, content string) valueobjects.PageID {
	t.Helper()
	page, err := entities.NewPage(valueobjects.NewWorkspaceID(), "Shared", nil)
	require.NoError(t, err)
	page.SetContent(content)
	require.NoError(t, pages.Save(context.Background(), page))
	return page.ID()
}

func blockUpdate(t *testing.T, id, text string, clock uint64) []byte {
	t.Helper()
	update, err := crdt.EncodeUpdate(crdt.Update{Blocks: []crdt.Block{
		{ID: id, Pos: "a000000", Kind: crdt.KindParagraph, Text: text, Clock: clock, Actor: "u1"},
	}})
	require.NoError(t, err)
	return update
}

func TestAttachSharesOneSessionPerPage(t *testing.T) {
	registry, pages, _ := newTestRegistry(t)
	pageID := registryPage(t, pages, "")

	a, b := &recordingClient{}, &recordingClient{}
	s1, err := registry.Attach(context.Background(), pageID, a)
	require.NoError(t, err)
	s2, err := registry.Attach(context.Background(), pageID, b)
	require.NoError(t, err)

	assert.Same(t, s1, s2)
	assert.True(t, registry.Active(pageID))
}

func TestApplyBroadcastsToOtherClientsOnly(t *testing.T) {
	registry, pages, _ := newTestRegistry(t)
	pageID := registryPage(t, pages, "")

	a, b := &recordingClient{}, &recordingClient{}
	s, err := registry.Attach(context.Background(), pageID, a)
	require.NoError(t, err)
	_, err = registry.Attach(context.Background(), pageID, b)
	require.NoError(t, err)

	update := blockUpdate(t, "b1", "typed by a", 1)
	require.NoError(t, s.Apply(context.Background(), a, update))

	assert.Empty(t, a.updates(), "the sender does not get its own update back")
	require.Len(t, b.updates(), 1)
	assert.Equal(t, update, b.updates()[0])
}

func TestApplyRejectsCorruptFrameWithoutKillingSession(t *testing.T) {
	registry, pages, _ := newTestRegistry(t)
	pageID := registryPage(t, pages, "")

	a := &recordingClient{}
	s, err := registry.Attach(context.Background(), pageID, a)
	require.NoError(t, err)

	require.Error(t, s.Apply(context.Background(), a, []byte("garbage")))

	require.NoError(t, s.Apply(context.Background(), a, blockUpdate(t, "b1", "still alive", 1)))
	assert.True(t, registry.Active(pageID))
}

func TestStateFrameCarriesSeededContent(t *testing.T) {
	registry, pages, _ := newTestRegistry(t)
	pageID := registryPage(t, pages, "<p>from snapshot</p>")

	s, err := registry.Attach(context.Background(), pageID, &recordingClient{})
	require.NoError(t, err)

	doc := crdt.NewDocument()
	require.NoError(t, doc.ApplyUpdate(s.State()))
	require.Len(t, doc.Blocks(), 1)
	assert.Equal(t, "from snapshot", doc.Blocks()[0].Text)
}

func TestLastDetachMaterializesAndDropsSession(t *testing.T) {
	registry, pages, docs := newTestRegistry(t)
	pageID := registryPage(t, pages, "")

	a, b := &recordingClient{}, &recordingClient{}
	s, err := registry.Attach(context.Background(), pageID, a)
	require.NoError(t, err)
	_, err = registry.Attach(context.Background(), pageID, b)
	require.NoError(t, err)

	require.NoError(t, s.Apply(context.Background(), a, blockUpdate(t, "b1", "session text", 1)))

	registry.Detach(s, a)
	assert.True(t, registry.Active(pageID), "session survives while a client remains")

	registry.Detach(s, b)
	assert.False(t, registry.Active(pageID))

	page, err := pages.FindByID(context.Background(), pageID)
	require.NoError(t, err)
	assert.Equal(t, "<p>session text</p>", page.Content())

	state, err := docs.LoadState(context.Background(), DocumentName(pageID))
	require.NoError(t, err)
	require.NotNil(t, state)
}

func TestReattachAfterCloseSeesPersistedState(t *testing.T) {
	registry, pages, _ := newTestRegistry(t)
	pageID := registryPage(t, pages, "<p>seed once</p>")

	a := &recordingClient{}
	s, err := registry.Attach(context.Background(), pageID, a)
	require.NoError(t, err)
	require.NoError(t, s.Apply(context.Background(), a, blockUpdate(t, "b9", "second paragraph", 1)))
	registry.Detach(s, a)

	s2, err := registry.Attach(context.Background(), pageID, a)
	require.NoError(t, err)
	defer registry.Detach(s2, a)

	doc := crdt.NewDocument()
	require.NoError(t, doc.ApplyUpdate(s2.State()))
	texts := make([]string, 0, 2)
	for _, blk := range doc.Blocks() {
		texts = append(texts, blk.Text)
	}
	assert.Contains(t, texts, "seed once")
	assert.Contains(t, texts, "second paragraph")
}

func TestFlushMaterializesLiveSession(t *testing.T) {
	registry, pages, _ := newTestRegistry(t)
	pageID := registryPage(t, pages, "")

	a := &recordingClient{}
	s, err := registry.Attach(context.Background(), pageID, a)
	require.NoError(t, err)
	defer registry.Detach(s, a)

	require.NoError(t, s.Apply(context.Background(), a, blockUpdate(t, "b1", "flushed", 1)))
	require.NoError(t, registry.Flush(context.Background(), pageID))

	page, err := pages.FindByID(context.Background(), pageID)
	require.NoError(t, err)
	assert.Equal(t, "<p>flushed</p>", page.Content())
}

func TestConcurrentAttachSeedsSingleDocument(t *testing.T) {
	registry, pages, _ := newTestRegistry(t)
	pageID := registryPage(t, pages, "<p>solo</p>")

	const n = 8
	sessions := make([]*Session, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := registry.Attach(context.Background(), pageID, &recordingClient{})
			assert.NoError(t, err)
			sessions[i] = s
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Same(t, sessions[0], sessions[i])
	}

	doc := crdt.NewDocument()
	require.NoError(t, doc.ApplyUpdate(sessions[0].State()))
	assert.Len(t, doc.Blocks(), 1, "concurrent opens must not double-seed")
}
