package store

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreSaveAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	snap := &Snapshot{EndpointAddr: "10.0.0.1:9000", NextSeqno: 42, LastSeen: time.Now()}
	if err := s.Save(ctx, snap); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Get(ctx, "10.0.0.1:9000")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.NextSeqno != 42 {
		t.Fatalf("NextSeqno = %d, want 42", got.NextSeqno)
	}

	// Get must return a copy, not the stored pointer.
	got.NextSeqno = 999
	again, _ := s.Get(ctx, "10.0.0.1:9000")
	if again.NextSeqno != 42 {
		t.Fatal("Get leaked a mutable reference to internal state")
	}
}

func TestMemoryStoreGetMissing(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.Get(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for missing snapshot")
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.Save(ctx, &Snapshot{EndpointAddr: "a"})

	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "a"); err == nil {
		t.Fatal("expected error deleting already-deleted snapshot")
	}
}

func TestMemoryStoreDeleteExpired(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_ = s.Save(ctx, &Snapshot{EndpointAddr: "stale", LastSeen: time.Now().Add(-time.Hour)})
	_ = s.Save(ctx, &Snapshot{EndpointAddr: "fresh", LastSeen: time.Now()})

	n, err := s.DeleteExpired(ctx, time.Minute)
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if n != 1 {
		t.Fatalf("DeleteExpired removed %d, want 1", n)
	}
	count, _ := s.Count(ctx)
	if count != 1 {
		t.Fatalf("Count = %d, want 1", count)
	}
}

func TestMemoryStoreList(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.Save(ctx, &Snapshot{EndpointAddr: "a"})
	_ = s.Save(ctx, &Snapshot{EndpointAddr: "b"})

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List returned %d entries, want 2", len(list))
	}
}
