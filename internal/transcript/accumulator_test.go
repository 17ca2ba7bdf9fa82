package transcript

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lexiqai/voice-console/internal/conversation"
)

func fixedClock(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

func TestCommit_ModelOnly(t *testing.T) {
	acc := NewAccumulator(nil)
	acc.now = fixedClock(1000)

	acc.AppendModel("Hello ")
	acc.AppendModel("world")

	msgs := acc.Commit()
	if len(msgs) != 1 {
		t.Fatalf("Expected exactly 1 message, got %d", len(msgs))
	}
	if msgs[0].Role != conversation.RoleModel || msgs[0].Text != "Hello world" {
		t.Errorf("Unexpected message %+v", msgs[0])
	}
	if !msgs[0].IsComplete {
		t.Error("Expected committed message to be complete")
	}
	if msgs[0].Timestamp != 1001 || !strings.HasPrefix(msgs[0].ID, "m-") {
		t.Errorf("Unexpected id/timestamp %s/%d", msgs[0].ID, msgs[0].Timestamp)
	}
}

func TestCommit_UserBeforeModel(t *testing.T) {
	acc := NewAccumulator(nil)
	acc.now = fixedClock(5000)

	acc.AppendModel("Sure, ")
	acc.AppendUser("restart nginx")
	acc.AppendModel("run systemctl restart nginx")

	msgs := acc.Commit()
	if len(msgs) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != conversation.RoleUser || msgs[1].Role != conversation.RoleModel {
		t.Fatalf("Expected user then model, got %s then %s", msgs[0].Role, msgs[1].Role)
	}
	if msgs[0].Timestamp >= msgs[1].Timestamp {
		t.Error("Expected user timestamp before model timestamp")
	}
	if msgs[1].Text != "Sure, run systemctl restart nginx" {
		t.Errorf("Expected fragments in arrival order, got %q", msgs[1].Text)
	}
}

func TestCommit_IdempotentWhenEmpty(t *testing.T) {
	acc := NewAccumulator(nil)
	acc.AppendUser("partial transcript")

	if msgs := acc.Commit(); len(msgs) != 1 {
		t.Fatalf("Expected first commit to emit 1 message, got %d", len(msgs))
	}
	if msgs := acc.Commit(); msgs != nil {
		t.Errorf("Expected second commit to emit nothing, got %d", len(msgs))
	}

	user, model := acc.Live()
	if user != "" || model != "" {
		t.Error("Expected buffers to be empty after commit")
	}
}

func TestCommit_WhitespaceOnly(t *testing.T) {
	acc := NewAccumulator(nil)
	acc.AppendUser("   ")
	acc.AppendModel("\n")

	if msgs := acc.Commit(); msgs != nil {
		t.Errorf("Expected no messages for blank buffers, got %+v", msgs)
	}
}

func TestCommit_BlankSpeakerSkipped(t *testing.T) {
	acc := NewAccumulator(nil)
	acc.AppendUser("  ")
	acc.AppendModel("ok")

	msgs := acc.Commit()
	if len(msgs) != 1 || msgs[0].Role != conversation.RoleModel {
		t.Fatalf("Expected only the model message, got %+v", msgs)
	}

	user, _ := acc.Live()
	if user != "" {
		t.Error("Expected blank user buffer to be cleared along with the model buffer")
	}
}

func TestLiveCallback(t *testing.T) {
	var mu sync.Mutex
	var updates [][2]string
	acc := NewAccumulator(func(user, model string) {
		mu.Lock()
		updates = append(updates, [2]string{user, model})
		mu.Unlock()
	})

	acc.AppendUser("why is ")
	acc.AppendUser("disk full")
	acc.AppendModel("Check /var/log")
	acc.Commit()

	want := [][2]string{
		{"why is ", ""},
		{"why is disk full", ""},
		{"why is disk full", "Check /var/log"},
		{"", ""},
	}
	if len(updates) != len(want) {
		t.Fatalf("Expected %d live updates, got %d", len(want), len(updates))
	}
	for i := range want {
		if updates[i] != want[i] {
			t.Errorf("Update %d: expected %v, got %v", i, want[i], updates[i])
		}
	}
}

func TestReset(t *testing.T) {
	acc := NewAccumulator(nil)
	acc.AppendModel("discard me")
	acc.Reset()
	if msgs := acc.Commit(); msgs != nil {
		t.Errorf("Expected nothing to commit after reset, got %+v", msgs)
	}
}
