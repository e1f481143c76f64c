package memories

import (
	"context"
	"fmt"
	"time"

	"github.com/SolsticeMemorials/keepsake/backend/internal/blob"
)

const (
	documentKeyPrefix = "memories/"
	indexKeyPrefix    = "index/"
)

func documentKey(id MemoryID) string {
	return fmt.Sprintf("%s%s.json", documentKeyPrefix, id)
}

func indexKey(id MemoryID) string {
	return fmt.Sprintf("%s%s.json", indexKeyPrefix, id)
}

// DocumentStore persists full memory documents as JSON blobs, one per memory.
type DocumentStore struct {
	store blob.Store
	clock func() time.Time
}

// NewDocumentStore constructs a DocumentStore over the provided blob store.
func NewDocumentStore(store blob.Store, clock func() time.Time) *DocumentStore {
	if clock == nil {
		clock = time.Now
	}
	return &DocumentStore{store: store, clock: clock}
}

// Get reads the document for id. The bool reports whether it existed; a
// tombstoned document is still returned so callers can inspect DeletedAt.
func (s *DocumentStore) Get(ctx context.Context, id MemoryID) (MemoryDetail, bool, error) {
	var doc MemoryDetail
	found, err := blob.ReadJSON(ctx, s.store, documentKey(id), &doc)
	if err != nil || !found {
		return MemoryDetail{}, false, err
	}
	return doc, true, nil
}

// Put stores the document, stamping UpdatedAt server-side.
func (s *DocumentStore) Put(ctx context.Context, doc MemoryDetail) error {
	doc.UpdatedAt = s.clock().UTC().Format(time.RFC3339)
	id, err := NewMemoryID(doc.ID)
	if err != nil {
		return err
	}
	return blob.WriteJSON(ctx, s.store, documentKey(id), doc)
}

// Tombstone marks the document deleted without removing it. The blob is kept
// for audit; reads through the service treat it as absent.
func (s *DocumentStore) Tombstone(ctx context.Context, doc MemoryDetail) error {
	doc.DeletedAt = s.clock().UTC().Format(time.RFC3339)
	return s.Put(ctx, doc)
}

// IndexStore persists one summary blob per memory under the index prefix.
type IndexStore struct {
	store blob.Store
}

// NewIndexStore constructs an IndexStore over the provided blob store.
func NewIndexStore(store blob.Store) *IndexStore {
	return &IndexStore{store: store}
}

// Put writes the summary for item's memory, replacing any previous summary.
func (s *IndexStore) Put(ctx context.Context, item IndexItem) error {
	id, err := NewMemoryID(item.ID)
	if err != nil {
		return err
	}
	return blob.WriteJSON(ctx, s.store, indexKey(id), item)
}

// Get reads a single summary; the bool reports whether it existed.
func (s *IndexStore) Get(ctx context.Context, id MemoryID) (IndexItem, bool, error) {
	var item IndexItem
	found, err := blob.ReadJSON(ctx, s.store, indexKey(id), &item)
	if err != nil || !found {
		return IndexItem{}, false, err
	}
	return item, true, nil
}

// Delete removes the summary for id; absent summaries are not an error.
func (s *IndexStore) Delete(ctx context.Context, id MemoryID) error {
	return s.store.Delete(ctx, indexKey(id))
}
