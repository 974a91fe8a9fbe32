package cache

import (
	"context"
	"testing"
	"time"

	"github.com/deckflow/deckflow-go/deckflow"
)

func snapshot(documentID string) *Snapshot {
	return &Snapshot{
		DocumentID: documentID,
		Placeholders: []deckflow.Placeholder{
			{ObjectID: "el1", ContainerID: "slide1", Slug: "aov", Kind: deckflow.KindChart},
		},
		CreatedAt: time.Now(),
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()

	if got, err := store.Get(ctx, "doc-1"); err != nil || got != nil {
		t.Fatalf("miss = %v, %v; want nil, nil", got, err)
	}

	if err := store.Put(ctx, snapshot("doc-1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := store.Get(ctx, "doc-1")
	if err != nil || got == nil {
		t.Fatalf("get: %v, %v", got, err)
	}
	if len(got.Placeholders) != 1 || got.Placeholders[0].Slug != "aov" {
		t.Errorf("placeholders = %+v", got.Placeholders)
	}

	if err := store.Invalidate(ctx, "doc-1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if got, _ := store.Get(ctx, "doc-1"); got != nil {
		t.Error("snapshot must be gone after invalidation")
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }
	ctx := context.Background()

	snap := snapshot("doc-1")
	snap.CreatedAt = now
	store.Put(ctx, snap)

	if got, _ := store.Get(ctx, "doc-1"); got == nil {
		t.Fatal("fresh snapshot must be returned")
	}

	now = now.Add(2 * time.Minute)
	if got, _ := store.Get(ctx, "doc-1"); got != nil {
		t.Error("stale snapshot must expire")
	}
}

func TestMemoryStoreIsolatesDocuments(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()

	store.Put(ctx, snapshot("doc-1"))
	store.Put(ctx, snapshot("doc-2"))
	store.Invalidate(ctx, "doc-1")

	if got, _ := store.Get(ctx, "doc-2"); got == nil {
		t.Error("invalidation must not touch other documents")
	}
}
