package storage_test

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mercator-hq/relay/pkg/conversation"
	"mercator-hq/relay/pkg/conversation/storage"
)

func newSQLiteBackend(driver string) func(t *testing.T) conversation.Backend {
	return func(t *testing.T) conversation.Backend {
		t.Helper()
		b, err := storage.NewSQLite(storage.SQLiteConfig{
			Path:        filepath.Join(t.TempDir(), "conversations.db"),
			Driver:      driver,
			BusyTimeout: 5 * time.Second,
			WALMode:     true,
		})
		if err != nil {
			if driver == storage.DriverMattn && strings.Contains(err.Error(), "cgo") {
				t.Skipf("sqlite3 driver unavailable: %v", err)
			}
			t.Fatalf("NewSQLite: %v", err)
		}
		t.Cleanup(func() { b.Close() })
		return b
	}
}

func TestSQLite(t *testing.T) {
	runBackendSuite(t, newSQLiteBackend(storage.DriverModernc))
}

func TestSQLite_Mattn(t *testing.T) {
	runBackendSuite(t, newSQLiteBackend(storage.DriverMattn))
}

func TestNewSQLite_Validation(t *testing.T) {
	if _, err := storage.NewSQLite(storage.SQLiteConfig{}); err == nil {
		t.Error("expected error for empty path")
	}
	_, err := storage.NewSQLite(storage.SQLiteConfig{
		Path:   filepath.Join(t.TempDir(), "x.db"),
		Driver: "mysql",
	})
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestSQLite_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.db")
	cfg := storage.SQLiteConfig{Path: path, WALMode: true}

	b, err := storage.NewSQLite(cfg)
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	ctx := t.Context()
	sess := &conversation.Session{ID: "p", Status: conversation.StatusActive, CreatedAt: time.Now().UTC()}
	if err := b.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	msg := &conversation.Message{SessionID: "p", Role: conversation.RoleUser, Content: "hello", CreatedAt: time.Now().UTC()}
	if err := b.AppendMessage(ctx, msg); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	b.Close()

	reopened, err := storage.NewSQLite(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	msgs, err := reopened.RecentMessages(ctx, "p", 10)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "hello" {
		t.Errorf("got %+v after reopen", msgs)
	}
}
