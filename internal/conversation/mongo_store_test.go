package conversation

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

// newMongoTestStore connects to MONGO_URI with a throwaway database that is
// dropped when the test ends.
func newMongoTestStore(t *testing.T) *MongoStore {
	t.Helper()
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set, skipping MongoDB store test")
	}

	database := "voice_console_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	store, err := NewMongoStore(context.Background(), uri, database)
	if err != nil {
		t.Fatalf("NewMongoStore failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.client.Database(database).Drop(ctx); err != nil {
			t.Errorf("Failed to drop test database: %v", err)
		}
		if err := store.Close(ctx); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return store
}

func TestMongoStore_PutListDelete(t *testing.T) {
	store := newMongoTestStore(t)
	ctx := context.Background()

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	older := Session{ID: "a", Title: "older", Timestamp: 100}
	newer := Session{
		ID:        "b",
		Title:     "newer",
		Timestamp: 200,
		Messages:  []Message{{ID: "u-1", Role: RoleUser, Text: "printer offline", IsComplete: true, Timestamp: 200}},
	}
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

	sessions, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("Expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].ID != "b" || sessions[1].ID != "a" {
		t.Errorf("Expected newest first, got %s, %s", sessions[0].ID, sessions[1].ID)
	}
	if sessions[1].Title != "renamed" {
		t.Errorf("Expected replaced title, got %q", sessions[1].Title)
	}
	if sessions[1].Messages == nil || len(sessions[1].Messages) != 0 {
		t.Errorf("Expected empty message list to round-trip, got %v", sessions[1].Messages)
	}
	if len(sessions[0].Messages) != 1 || sessions[0].Messages[0].Text != "printer offline" {
		t.Errorf("Expected messages to round-trip, got %+v", sessions[0].Messages)
	}

	if err := store.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete(ctx, "missing"); err != nil {
		t.Errorf("Expected deleting an unknown id to succeed, got %v", err)
	}

	sessions, err = store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "b" {
		t.Errorf("Expected only session b to remain, got %+v", sessions)
	}
}

func TestMongoStore_PutRequiresID(t *testing.T) {
	store := newMongoTestStore(t)
	if err := store.Put(context.Background(), Session{Title: "no id"}); err == nil {
		t.Error("Expected error for empty session ID")
	}
}
