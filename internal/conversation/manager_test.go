package conversation

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func newTestManager(t *testing.T) (*Manager, *FileStore) {
	t.Helper()
	store := NewFileStore(filepath.Join(t.TempDir(), "sessions.json"))
	m := NewManager(store, zerolog.Nop())
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return m, store
}

func TestManager_LoadCreatesInitialSession(t *testing.T) {
	m, store := newTestManager(t)

	active := m.Active()
	if active.ID == "" || active.Title != DefaultTitle {
		t.Fatalf("Expected a fresh default session, got %+v", active)
	}

	persisted, _ := store.List(context.Background())
	if len(persisted) != 1 {
		t.Errorf("Expected initial session to be persisted, got %d", len(persisted))
	}
}

func TestManager_AppendRetitles(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	err := m.Append(ctx,
		Message{ID: "m-1", Role: RoleModel, Text: "Hi there", IsComplete: true},
		Message{ID: "u-1", Role: RoleUser, Text: "My DNS server keeps timing out every morning", IsComplete: true},
	)
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	active := m.Active()
	if active.Title != "My DNS server keeps timing out..." {
		t.Errorf("Unexpected title %q", active.Title)
	}
	if len(m.History()) != 2 {
		t.Errorf("Expected 2 messages, got %d", len(m.History()))
	}

	m.Append(ctx, Message{ID: "u-2", Role: RoleUser, Text: "another"})
	if m.Active().Title != "My DNS server keeps timing out..." {
		t.Error("Expected title to stay once set")
	}
}

func TestManager_SwitchAndDelete(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	first := m.ActiveID()

	second, err := m.NewSession(ctx)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	if m.ActiveID() != second.ID {
		t.Fatal("Expected new session to become active")
	}

	changed, err := m.Switch(ctx, first)
	if err != nil || !changed {
		t.Fatalf("Expected switch to first session, changed=%v err=%v", changed, err)
	}
	if changed, _ := m.Switch(ctx, first); changed {
		t.Error("Expected switching to the active session to be a no-op")
	}
	if _, err := m.Switch(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	wasActive, err := m.Delete(ctx, first)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !wasActive {
		t.Error("Expected deleted session to have been active")
	}
	if m.ActiveID() != second.ID {
		t.Error("Expected remaining session to become active")
	}

	if _, err := m.Delete(ctx, second.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	sessions := m.Sessions()
	if len(sessions) != 1 || sessions[0].ID == second.ID || sessions[0].Title != DefaultTitle {
		t.Errorf("Expected a replacement session after deleting the last, got %+v", sessions)
	}
}

func TestManager_UpdateMessage(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	m.Append(ctx, Message{ID: "rca-loading-1", Role: RoleModel, Text: "Generating...", IsComplete: false})
	if err := m.UpdateMessage(ctx, "rca-loading-1", "# Report", true); err != nil {
		t.Fatalf("UpdateMessage failed: %v", err)
	}

	history := m.History()
	if history[0].Text != "# Report" || !history[0].IsComplete {
		t.Errorf("Expected placeholder to be replaced, got %+v", history[0])
	}

	persisted, _ := store.List(ctx)
	if persisted[0].Messages[0].Text != "# Report" {
		t.Error("Expected update to be persisted")
	}

	if err := m.UpdateMessage(ctx, "nope", "x", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestManager_UpdateMessageInInactiveSession(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	origin := m.ActiveID()
	if err := m.AppendTo(ctx, origin, Message{ID: "rca-loading-1", Role: RoleModel, Text: "Generating...", IsComplete: false}); err != nil {
		t.Fatalf("AppendTo failed: %v", err)
	}
	if _, err := m.NewSession(ctx); err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	if err := m.UpdateMessageIn(ctx, origin, "rca-loading-1", "# Report", true); err != nil {
		t.Fatalf("UpdateMessageIn failed: %v", err)
	}
	if len(m.History()) != 0 {
		t.Errorf("Expected the new active session to stay empty, got %+v", m.History())
	}

	history, err := m.SessionHistory(origin)
	if err != nil {
		t.Fatalf("SessionHistory failed: %v", err)
	}
	if history[0].Text != "# Report" || !history[0].IsComplete {
		t.Errorf("Expected origin placeholder to be replaced, got %+v", history[0])
	}

	persisted, _ := store.List(ctx)
	for _, s := range persisted {
		if s.ID == origin && s.Messages[0].Text != "# Report" {
			t.Error("Expected origin update to be persisted")
		}
	}

	if err := m.UpdateMessageIn(ctx, "gone", "rca-loading-1", "x", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown session, got %v", err)
	}
}

func TestManager_OnChange(t *testing.T) {
	m, _ := newTestManager(t)
	calls := 0
	m.OnChange(func() { calls++ })

	m.Append(context.Background(), Message{ID: "u", Role: RoleUser, Text: "hello"})
	m.NewSession(context.Background())
	if calls != 2 {
		t.Errorf("Expected 2 change notifications, got %d", calls)
	}
}

func TestFormatHistory(t *testing.T) {
	got := FormatHistory([]Message{
		{Role: RoleUser, Text: "ping fails"},
		{Role: RoleModel, Text: "check the firewall"},
	})
	want := "USER: ping fails\nAI: check the firewall"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}

	transcript := Transcript([]Message{{Role: RoleModel, Text: "done"}})
	if !strings.HasPrefix(transcript, "MODEL: ") {
		t.Errorf("Unexpected transcript %q", transcript)
	}
}

func TestTitleFrom(t *testing.T) {
	if _, ok := TitleFrom([]Message{{Role: RoleModel, Text: "hi"}}); ok {
		t.Error("Expected no title without a user message")
	}
	if title, _ := TitleFrom([]Message{{Role: RoleUser, Text: "short"}}); title != "short" {
		t.Errorf("Expected short title unchanged, got %q", title)
	}
}
