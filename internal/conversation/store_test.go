package conversation

import (
	"context"
	"path/filepath"
	"testing"
)

func TestFileStore_PutListDelete(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "sessions.json"))

	sessions, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List on missing file failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("Expected no sessions, got %d", len(sessions))
	}

	older := Session{ID: "a", Title: "older", Timestamp: 100}
	newer := Session{ID: "b", Title: "newer", Timestamp: 200}
	if err := store.Put(ctx, older); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Put(ctx, newer); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	older.Title = "renamed"
	if err := store.Put(ctx, older); err != nil {
		t.Fatalf("Put replace failed: %v", err)
	}

	sessions, err = store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("Expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].ID != "b" || sessions[1].Title != "renamed" {
		t.Errorf("Expected newest first with replaced title, got %+v", sessions)
	}

	if err := store.Delete(ctx, "b"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	sessions, _ = store.List(ctx)
	if len(sessions) != 1 || sessions[0].ID != "a" {
		t.Errorf("Expected only session a to remain, got %+v", sessions)
	}
}

func TestFileStore_Ping(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "sessions.json"))
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Expected ping to succeed, got %v", err)
	}

	missing := NewFileStore(filepath.Join(t.TempDir(), "nope", "sessions.json"))
	if err := missing.Ping(context.Background()); err == nil {
		t.Error("Expected ping to fail for a missing directory")
	}
}
