package collab

import (
	"context"

	"go.uber.org/zap"

	"pagespace/application/ports"
	"pagespace/collab/codec"
	"pagespace/collab/crdt"
	"pagespace/domain/core/valueobjects"
	pkgerrors "pagespace/pkg/errors"
	"pagespace/pkg/locks"
)

// Bridge connects the collaborative document world to the durable page
// snapshot. It owns exactly two operations: seeding a fresh document from
// the snapshot, and materializing document state back into it.
//
// The one invariant that matters: a page is seeded from its snapshot only
// while no persisted document state exists. The moment any state has been
// stored, that state is authoritative and the snapshot's content field is
// ignored on open. This keeps seeding at-most-once; a later open can
// never regress the document to a stale snapshot.
type Bridge struct {
	pages  ports.PageRepository
	docs   ports.DocumentStore
	locks  *locks.KeyedMutex
	logger *zap.Logger
}

// NewBridge creates a sync bridge. The keyed mutex must be the same
// instance used by the page service so structural mutations and bridge
// operations for one page never interleave.
func NewBridge(pages ports.PageRepository, docs ports.DocumentStore, km *locks.KeyedMutex, logger *zap.Logger) *Bridge {
	return &Bridge{
		pages:  pages,
		docs:   docs,
		locks:  km,
		logger: logger,
	}
}

// Open loads or seeds the document for a page. It never fails the session
// open: every storage or conversion problem is logged and degrades to an
// empty document, preserving session continuity over content fidelity.
func (b *Bridge) Open(ctx context.Context, pageID valueobjects.PageID) *crdt.Document {
	unlock := b.locks.Lock(pageID.String())
	defer unlock()

	name := DocumentName(pageID)

	state, err := b.docs.LoadState(ctx, name)
	if err != nil {
		// Unknown whether state exists; seeding here could double-apply
		// a snapshot, so start empty.
		b.logger.Error("document state load failed, starting empty",
			zap.String("document", name), zap.Error(err))
		return crdt.NewDocument()
	}

	if state != nil {
		doc, err := crdt.Decode(state)
		if err != nil {
			b.logger.Error("document state corrupt, starting empty",
				zap.String("document", name), zap.Error(err))
			return crdt.NewDocument()
		}
		b.logger.Debug("document loaded from durable state", zap.String("document", name))
		return doc
	}

	// No persisted state: first session ever for this page. Seed from
	// the snapshot's content field.
	doc := crdt.NewDocument()

	page, err := b.pages.FindByID(ctx, pageID)
	if err != nil {
		b.logger.Warn("seed skipped, page lookup failed",
			zap.String("document", name), zap.Error(err))
		return doc
	}
	if page.Content() == "" {
		b.logger.Debug("no snapshot content, starting empty", zap.String("document", name))
		return doc
	}

	update, err := codec.ToDocumentUpdate(page.Content())
	if err != nil {
		convErr := pkgerrors.NewConversionError("snapshot content could not be converted", err)
		b.logger.Error("seed conversion failed, starting empty",
			zap.String("document", name), zap.Error(convErr))
		return doc
	}
	if update == nil {
		return doc
	}

	if err := doc.ApplyUpdate(update); err != nil {
		b.logger.Error("seed apply failed, starting empty",
			zap.String("document", name), zap.Error(err))
		return crdt.NewDocument()
	}

	b.logger.Info("document seeded from snapshot",
		zap.String("document", name),
		zap.Int("contentBytes", len(page.Content())),
	)
	return doc
}

// Materialize persists the document state and writes its rendered content
// back to the page snapshot, touching only the content and updatedAt
// fields. State is saved first so document authority survives even when
// rendering fails; the snapshot write itself is all-or-nothing.
func (b *Bridge) Materialize(ctx context.Context, pageID valueobjects.PageID, doc *crdt.Document) error {
	unlock := b.locks.Lock(pageID.String())
	defer unlock()

	name := DocumentName(pageID)

	if err := b.docs.SaveState(ctx, name, doc.EncodeState()); err != nil {
		return pkgerrors.NewStorageError("save document state", err)
	}

	richText, err := codec.ToRichText(doc)
	if err != nil {
		// The prior snapshot stays untouched.
		return pkgerrors.NewConversionError("document could not be rendered", err)
	}

	page, err := b.pages.FindByID(ctx, pageID)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			// Page deleted while the session was live.
			b.logger.Debug("materialize skipped, page gone", zap.String("document", name))
			return nil
		}
		return err
	}

	if err := b.pages.UpdateContent(ctx, pageID, richText, updatedNow(page.UpdatedAt())); err != nil {
		return err
	}

	b.logger.Debug("document materialized",
		zap.String("document", name),
		zap.Int("contentBytes", len(richText)),
	)
	return nil
}
