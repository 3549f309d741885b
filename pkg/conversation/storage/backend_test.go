package storage_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"mercator-hq/relay/pkg/conversation"
)

// runBackendSuite exercises the conversation.Backend contract against newBackend.
func runBackendSuite(t *testing.T, newBackend func(t *testing.T) conversation.Backend) {
	t.Helper()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	newSession := func(id string) *conversation.Session {
		return &conversation.Session{
			ID:        id,
			OwnerRef:  "user-1",
			Status:    conversation.StatusActive,
			CreatedAt: base,
			Metadata:  map[string]string{"channel": "web"},
		}
	}

	t.Run("CreateAndGet", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		if err := b.CreateSession(ctx, newSession("s1")); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
		got, err := b.GetSession(ctx, "s1")
		if err != nil {
			t.Fatalf("GetSession: %v", err)
		}
		if got.OwnerRef != "user-1" || got.Status != conversation.StatusActive {
			t.Errorf("unexpected session: %+v", got)
		}
		if !got.CreatedAt.Equal(base) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, base)
		}
		if got.Metadata["channel"] != "web" {
			t.Errorf("Metadata = %v", got.Metadata)
		}
		if got.EndedAt != nil {
			t.Errorf("EndedAt should be nil, got %v", got.EndedAt)
		}
	})

	t.Run("DuplicateSession", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		if err := b.CreateSession(ctx, newSession("dup")); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
		err := b.CreateSession(ctx, newSession("dup"))
		if !errors.Is(err, conversation.ErrSessionExists) {
			t.Errorf("expected ErrSessionExists, got %v", err)
		}
	})

	t.Run("UnknownSession", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()

		if _, err := b.GetSession(ctx, "missing"); !errors.Is(err, conversation.ErrSessionNotFound) {
			t.Errorf("GetSession: expected ErrSessionNotFound, got %v", err)
		}
		if err := b.EndSession(ctx, "missing", base); !errors.Is(err, conversation.ErrSessionNotFound) {
			t.Errorf("EndSession: expected ErrSessionNotFound, got %v", err)
		}
		if err := b.DeleteSession(ctx, "missing"); !errors.Is(err, conversation.ErrSessionNotFound) {
			t.Errorf("DeleteSession: expected ErrSessionNotFound, got %v", err)
		}
		msg := &conversation.Message{SessionID: "missing", Role: conversation.RoleUser, Content: "hi", CreatedAt: base}
		if err := b.AppendMessage(ctx, msg); !errors.Is(err, conversation.ErrSessionNotFound) {
			t.Errorf("AppendMessage: expected ErrSessionNotFound, got %v", err)
		}
	})

	t.Run("EndSessionKeepsFirstEndedAt", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		if err := b.CreateSession(ctx, newSession("end")); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
		first := base.Add(time.Minute)
		if err := b.EndSession(ctx, "end", first); err != nil {
			t.Fatalf("EndSession: %v", err)
		}
		if err := b.EndSession(ctx, "end", base.Add(time.Hour)); err != nil {
			t.Fatalf("second EndSession: %v", err)
		}
		got, err := b.GetSession(ctx, "end")
		if err != nil {
			t.Fatalf("GetSession: %v", err)
		}
		if got.Status != conversation.StatusEnded {
			t.Errorf("Status = %s, want ENDED", got.Status)
		}
		if got.EndedAt == nil || !got.EndedAt.Equal(first) {
			t.Errorf("EndedAt = %v, want %v", got.EndedAt, first)
		}
	})

	t.Run("AppendToEndedSession", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		if err := b.CreateSession(ctx, newSession("closed")); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
		if err := b.EndSession(ctx, "closed", base.Add(time.Minute)); err != nil {
			t.Fatalf("EndSession: %v", err)
		}
		err := b.AppendMessage(ctx, &conversation.Message{
			SessionID: "closed", Role: conversation.RoleUser, Content: "late", CreatedAt: base.Add(time.Hour),
		})
		if !errors.Is(err, conversation.ErrSessionEnded) {
			t.Errorf("AppendMessage: expected ErrSessionEnded, got %v", err)
		}
		if n, err := b.CountMessages(ctx, "closed"); err != nil || n != 0 {
			t.Errorf("CountMessages = %d, %v; want 0", n, err)
		}
	})

	t.Run("MessagesOrderedAndLimited", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		if err := b.CreateSession(ctx, newSession("m")); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}

		for i := 0; i < 5; i++ {
			role := conversation.RoleUser
			if i%2 == 1 {
				role = conversation.RoleAssistant
			}
			msg := &conversation.Message{
				SessionID:      "m",
				Role:           role,
				Content:        fmt.Sprintf("msg-%d", i),
				CreatedAt:      base.Add(time.Duration(i) * time.Microsecond),
				TokensUsed:     i,
				ResponseTimeMs: int64(i * 10),
			}
			if role == conversation.RoleAssistant {
				msg.Provider = "openai"
				msg.CostEstimate = 0.25
			}
			if err := b.AppendMessage(ctx, msg); err != nil {
				t.Fatalf("AppendMessage %d: %v", i, err)
			}
			if msg.ID == 0 {
				t.Fatalf("AppendMessage %d did not assign an ID", i)
			}
		}

		n, err := b.CountMessages(ctx, "m")
		if err != nil || n != 5 {
			t.Fatalf("CountMessages = %d, %v; want 5", n, err)
		}

		all, err := b.RecentMessages(ctx, "m", 0)
		if err != nil {
			t.Fatalf("RecentMessages: %v", err)
		}
		if len(all) != 5 {
			t.Fatalf("got %d messages, want 5", len(all))
		}
		for i, m := range all {
			if m.Content != fmt.Sprintf("msg-%d", i) {
				t.Errorf("all[%d] = %q", i, m.Content)
			}
		}
		if all[1].Provider != "openai" || all[1].CostEstimate != 0.25 || all[1].ResponseTimeMs != 10 {
			t.Errorf("assistant fields not round-tripped: %+v", all[1])
		}

		recent, err := b.RecentMessages(ctx, "m", 2)
		if err != nil {
			t.Fatalf("RecentMessages: %v", err)
		}
		if len(recent) != 2 || recent[0].Content != "msg-3" || recent[1].Content != "msg-4" {
			t.Errorf("recent = %+v, want msg-3, msg-4", recent)
		}
	})

	t.Run("SameTimestampOrderedByID", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		if err := b.CreateSession(ctx, newSession("tie")); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
		for _, c := range []string{"a", "b", "c"} {
			msg := &conversation.Message{SessionID: "tie", Role: conversation.RoleUser, Content: c, CreatedAt: base}
			if err := b.AppendMessage(ctx, msg); err != nil {
				t.Fatalf("AppendMessage: %v", err)
			}
		}
		got, err := b.RecentMessages(ctx, "tie", 2)
		if err != nil {
			t.Fatalf("RecentMessages: %v", err)
		}
		if len(got) != 2 || got[0].Content != "b" || got[1].Content != "c" {
			t.Errorf("got %+v, want b, c", got)
		}
	})

	t.Run("EmptyHistory", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		if err := b.CreateSession(ctx, newSession("empty")); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
		got, err := b.RecentMessages(ctx, "empty", 10)
		if err != nil {
			t.Fatalf("RecentMessages: %v", err)
		}
		if got == nil || len(got) != 0 {
			t.Errorf("expected empty non-nil slice, got %#v", got)
		}
	})

	t.Run("DeleteSession", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		if err := b.CreateSession(ctx, newSession("del")); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
		msg := &conversation.Message{SessionID: "del", Role: conversation.RoleUser, Content: "x", CreatedAt: base}
		if err := b.AppendMessage(ctx, msg); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
		if err := b.DeleteSession(ctx, "del"); err != nil {
			t.Fatalf("DeleteSession: %v", err)
		}
		if _, err := b.GetSession(ctx, "del"); !errors.Is(err, conversation.ErrSessionNotFound) {
			t.Errorf("expected ErrSessionNotFound after delete, got %v", err)
		}
		if n, _ := b.CountMessages(ctx, "del"); n != 0 {
			t.Errorf("CountMessages after delete = %d, want 0", n)
		}
	})

	t.Run("ConcurrentAppends", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		if err := b.CreateSession(ctx, newSession("conc")); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				msg := &conversation.Message{
					SessionID: "conc",
					Role:      conversation.RoleUser,
					Content:   fmt.Sprintf("c-%d", i),
					CreatedAt: base.Add(time.Duration(i) * time.Microsecond),
				}
				if err := b.AppendMessage(ctx, msg); err != nil {
					t.Errorf("AppendMessage: %v", err)
				}
			}(i)
		}
		wg.Wait()

		if n, err := b.CountMessages(ctx, "conc"); err != nil || n != 20 {
			t.Errorf("CountMessages = %d, %v; want 20", n, err)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		b := newBackend(t)
		if err := b.Ping(context.Background()); err != nil {
			t.Errorf("Ping: %v", err)
		}
	})
}
