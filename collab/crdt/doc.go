package crdt

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Block is one top-level element of a collaborative document. Replicas
// converge by last-writer-wins per block, ordered by (Clock, Actor).
type Block struct {
	ID      string `json:"id"`
	Pos     string `json:"pos"`
	Kind    Kind   `json:"kind"`
	Text    string `json:"text"`
	Clock   uint64 `json:"clock"`
	Actor   string `json:"actor"`
	Deleted bool   `json:"deleted,omitempty"`
}

// Kind enumerates block kinds understood by the content codec
type Kind string

const (
	KindParagraph Kind = "paragraph"
	KindHeading1  Kind = "heading1"
	KindHeading2  Kind = "heading2"
	KindHeading3  Kind = "heading3"
	KindBullet    Kind = "bullet"
	KindNumbered  Kind = "numbered"
	KindCode      Kind = "code"
	KindQuote     Kind = "quote"
)

// Update is the wire payload exchanged between replicas. Encoded state is
// the same shape, so a full state transfer is just a large update.
type Update struct {
	Blocks []Block `json:"blocks"`
}

// EncodeUpdate serializes an update for the wire
func EncodeUpdate(u Update) ([]byte, error) {
	return json.Marshal(u)
}

// Document is one replica of a collaborative document. All mutations are
// serialized internally; merging concurrent updates is commutative,
// associative and idempotent, so replicas applying the same update set in
// any order converge.
type Document struct {
	mu     sync.RWMutex
	blocks map[string]Block
	clock  uint64
}

// NewDocument creates an empty document
func NewDocument() *Document {
	return &Document{blocks: make(map[string]Block)}
}

// Decode reconstructs a document from encoded state
func Decode(state []byte) (*Document, error) {
	var u Update
	if err := json.Unmarshal(state, &u); err != nil {
		return nil, fmt.Errorf("decode document state: %w", err)
	}

	d := NewDocument()
	d.merge(u)
	return d, nil
}

// ApplyUpdate merges an encoded update into the document
func (d *Document) ApplyUpdate(update []byte) error {
	var u Update
	if err := json.Unmarshal(update, &u); err != nil {
		return fmt.Errorf("decode update: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.merge(u)
	return nil
}

// merge applies LWW per block id. Caller holds d.mu for writes; Decode
// calls it on a document nobody else can see yet.
func (d *Document) merge(u Update) {
	for _, b := range u.Blocks {
		existing, ok := d.blocks[b.ID]
		if !ok || wins(b, existing) {
			d.blocks[b.ID] = b
		}
		if b.Clock > d.clock {
			d.clock = b.Clock
		}
	}
}

// wins reports whether incoming supersedes existing: higher clock wins,
// actor id breaks ties deterministically.
func wins(incoming, existing Block) bool {
	if incoming.Clock != existing.Clock {
		return incoming.Clock > existing.Clock
	}
	return incoming.Actor > existing.Actor
}

// EncodeState serializes the full document, tombstones included
func (d *Document) EncodeState() []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u := Update{Blocks: make([]Block, 0, len(d.blocks))}
	for _, b := range d.blocks {
		u.Blocks = append(u.Blocks, b)
	}
	sortBlocks(u.Blocks)

	state, err := json.Marshal(u)
	if err != nil {
		// Update contains only plain values; marshalling cannot fail.
		panic(err)
	}
	return state
}

// IsEmpty reports whether the document carries no state at all, live or
// tombstoned. The sync bridge seeds from the page snapshot only while
// this holds.
func (d *Document) IsEmpty() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.blocks) == 0
}

// Blocks returns live blocks in document order
func (d *Document) Blocks() []Block {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Block, 0, len(d.blocks))
	for _, b := range d.blocks {
		if !b.Deleted {
			out = append(out, b)
		}
	}
	sortBlocks(out)
	return out
}

// Clock returns the highest clock observed by this replica
func (d *Document) Clock() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.clock
}

func sortBlocks(blocks []Block) {
	sort.Slice(blocks, func(i, j int) bool {
		if blocks[i].Pos != blocks[j].Pos {
			return blocks[i].Pos < blocks[j].Pos
		}
		return blocks[i].ID < blocks[j].ID
	})
}
