package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/nonotalk/voice-client/internal/chat"
)

func openTestStore(t *testing.T, maxKept int) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cache.sqlite"), maxKept)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func msg(id, content string, isUser bool, ts time.Time) chat.Message {
	return chat.Message{ID: id, IsUser: isUser, Content: content, Timestamp: ts}
}

func TestStoreAppendAndRecent(t *testing.T) {
	s := openTestStore(t, 10)
	base := time.Now().Truncate(time.Millisecond)

	err := s.Append("conv-1",
		msg("m1", "salut", true, base),
		msg("m2", "Bonjour, comment vas-tu?", false, base.Add(time.Second)),
	)
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.Recent("conv-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2", len(got))
	}
	if got[0].ID != "m1" || !got[0].IsUser {
		t.Errorf("first message = %+v", got[0])
	}
	if got[1].Content != "Bonjour, comment vas-tu?" || got[1].IsUser {
		t.Errorf("second message = %+v", got[1])
	}
	if got[0].ConversationID != "conv-1" {
		t.Errorf("conversation id = %q", got[0].ConversationID)
	}
}

func TestStorePrunesOldestBeyondBound(t *testing.T) {
	s := openTestStore(t, 3)
	base := time.Now()

	for i := 0; i < 5; i++ {
		err := s.Append("conv-1", msg(
			string(rune('a'+i)),
			"message",
			i%2 == 0,
			base.Add(time.Duration(i)*time.Second),
		))
		if err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Recent("conv-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d messages after prune, want 3", len(got))
	}
	if got[0].ID != "c" || got[2].ID != "e" {
		t.Errorf("kept %q..%q, want newest three", got[0].ID, got[2].ID)
	}
}

func TestStoreConversationsAreIsolated(t *testing.T) {
	s := openTestStore(t, 10)
	now := time.Now()

	if err := s.Append("conv-1", msg("m1", "un", true, now)); err != nil {
		t.Fatal(err)
	}
	if err := s.Append("conv-2", msg("m2", "deux", false, now)); err != nil {
		t.Fatal(err)
	}

	got, err := s.Recent("conv-2")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "m2" {
		t.Fatalf("conv-2 messages = %+v", got)
	}
}

func TestStoreAppendIsIdempotentPerID(t *testing.T) {
	s := openTestStore(t, 10)
	now := time.Now()

	m := msg("m1", "premier", false, now)
	if err := s.Append("conv-1", m); err != nil {
		t.Fatal(err)
	}
	m.Content = "corrigé"
	if err := s.Append("conv-1", m); err != nil {
		t.Fatal(err)
	}

	got, err := s.Recent("conv-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d messages, want 1", len(got))
	}
	if got[0].Content != "corrigé" {
		t.Errorf("content = %q, want updated content", got[0].Content)
	}
}
