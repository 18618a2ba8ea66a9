package history

import (
	"context"
	"fmt"
	"testing"
)

func TestMemoryStore_CreateMessage_RecentHistory(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for i := 0; i < 8; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		if _, err := s.CreateMessage(ctx, "chat-1", role, fmt.Sprintf("msg-%d", i), "gpt-4o"); err != nil {
			t.Fatalf("CreateMessage: %v", err)
		}
	}

	msgs, err := s.RecentHistory(ctx, "chat-1", 6)
	if err != nil {
		t.Fatalf("RecentHistory: %v", err)
	}
	if len(msgs) != 6 {
		t.Fatalf("RecentHistory: got %d messages", len(msgs))
	}
	// 正序：最早的应是 msg-2
	if msgs[0].Content != "msg-2" {
		t.Errorf("first message: got %q", msgs[0].Content)
	}
	if msgs[5].Content != "msg-7" {
		t.Errorf("last message: got %q", msgs[5].Content)
	}
}

func TestMemoryStore_RecentHistory_EmptyChat(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	msgs, err := s.RecentHistory(ctx, "missing", 6)
	if err != nil {
		t.Fatalf("RecentHistory: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected empty history, got %d", len(msgs))
	}
}

func TestMemoryStore_SaveSequence_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	rec := &SequenceRecord{
		UserID:     "u1",
		ChatID:     "c1",
		MessageID:  "m1",
		GeneSymbol: "tRNA-Ala-AGC-1-1",
		Anticodon:  "AGC",
		Isotype:    "Ala",
	}
	id, err := s.SaveSequence(ctx, rec)
	if err != nil {
		t.Fatalf("SaveSequence: %v", err)
	}
	if id == "" {
		t.Fatal("SaveSequence: empty id")
	}

	// 同一 ID 重复写入不产生新记录
	if _, err := s.SaveSequence(ctx, rec); err != nil {
		t.Fatalf("SaveSequence repeat: %v", err)
	}
	if got := s.SequenceCount(); got != 1 {
		t.Errorf("SequenceCount: got %d", got)
	}
}
