package transcript

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/dictolabs/dicto-core/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	cfg := config.TranscriptStoreConfig{RetentionMode: "ephemeral"}
	ts, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = ts.Close() })

	if err := ts.BeginSession(context.Background(), "s1", "streaming", "mic"); err != nil {
		t.Fatalf("begin session on ephemeral store: %v", err)
	}
	sessions, err := ts.ListSessions(context.Background(), 10)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("ephemeral store returned %d sessions", len(sessions))
	}
}

func TestSessionLifecycle(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.TranscriptStoreConfig{Path: filepath.Join(tmp, "transcripts.db"), RetentionMode: "session"}
	ts, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open transcript store: %v", err)
	}
	t.Cleanup(func() { _ = ts.Close() })

	ctx := context.Background()
	if err := ts.BeginSession(ctx, "session-1", "streaming", "USB Microphone"); err != nil {
		t.Fatalf("begin session: %v", err)
	}
	if err := ts.AppendUtterance(ctx, Utterance{SessionID: "session-1", Text: "hello world", VadTriggered: true, DurationMS: 1800}); err != nil {
		t.Fatalf("append utterance: %v", err)
	}
	if err := ts.EndSession(ctx, "session-1", "hello world", false); err != nil {
		t.Fatalf("end session: %v", err)
	}

	sessions, err := ts.ListSessions(ctx, 10)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	if sessions[0].FinalText != "hello world" || sessions[0].Engine != "streaming" {
		t.Fatalf("unexpected session row: %+v", sessions[0])
	}
	if sessions[0].EndedAt.IsZero() {
		t.Fatal("ended_at not recorded")
	}

	utterances, err := ts.SessionUtterances(ctx, "session-1", 10)
	if err != nil {
		t.Fatalf("session utterances: %v", err)
	}
	if len(utterances) != 1 {
		t.Fatalf("expected 1 utterance, got %d", len(utterances))
	}
	if !utterances[0].VadTriggered || utterances[0].Text != "hello world" {
		t.Fatalf("unexpected utterance: %+v", utterances[0])
	}
}

func TestDeviceLostFlagPersists(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.TranscriptStoreConfig{Path: filepath.Join(tmp, "transcripts.db"), RetentionMode: "session"}
	ts, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open transcript store: %v", err)
	}
	t.Cleanup(func() { _ = ts.Close() })

	ctx := context.Background()
	if err := ts.BeginSession(ctx, "session-2", "offline", "mic"); err != nil {
		t.Fatalf("begin session: %v", err)
	}
	if err := ts.EndSession(ctx, "session-2", "partial", true); err != nil {
		t.Fatalf("end session: %v", err)
	}

	sessions, err := ts.ListSessions(ctx, 1)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 || !sessions[0].DeviceLost {
		t.Fatalf("device loss not persisted: %+v", sessions)
	}
}

func TestPruneByDaysAndSessions(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.TranscriptStoreConfig{Path: filepath.Join(tmp, "transcripts.db"), RetentionMode: "persistent", RetentionDays: 1, MaxSessions: 1}
	ts, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open transcript store: %v", err)
	}
	t.Cleanup(func() { _ = ts.Close() })

	ctx := context.Background()
	ts.clock = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := ts.BeginSession(ctx, "old-session", "streaming", "mic"); err != nil {
		t.Fatalf("begin session: %v", err)
	}
	if err := ts.AppendUtterance(ctx, Utterance{SessionID: "old-session", Text: "stale"}); err != nil {
		t.Fatalf("append utterance: %v", err)
	}

	ts.clock = func() time.Time { return time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := ts.BeginSession(ctx, "new-session", "streaming", "mic"); err != nil {
		t.Fatalf("begin session: %v", err)
	}
	if err := ts.Prune(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}

	utterances, err := ts.SessionUtterances(ctx, "old-session", 10)
	if err != nil {
		t.Fatalf("session utterances: %v", err)
	}
	if len(utterances) != 0 {
		t.Fatal("expected old utterances pruned")
	}
	sessions, err := ts.ListSessions(ctx, 10)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].SessionID != "new-session" {
		t.Fatalf("expected only new-session to survive, got %+v", sessions)
	}
}
