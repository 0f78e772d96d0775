package transcript

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dictolabs/dicto-core/internal/config"
)

// Session is one recording session's summary row.
type Session struct {
	SessionID  string
	Engine     string
	Device     string
	StartedAt  time.Time
	EndedAt    time.Time
	FinalText  string
	DeviceLost bool
}

// Utterance is a single finalized utterance within a session.
type Utterance struct {
	ID           int64
	SessionID    string
	Text         string
	VadTriggered bool
	DurationMS   float64
	CreatedAt    time.Time
}

// Store keeps session transcripts in SQLite. With retention_mode
// "ephemeral" every method is a no-op, matching a privacy posture where
// nothing touches disk.
type Store struct {
	db    *sql.DB
	cfg   config.TranscriptStoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the transcript store according to config.
func Open(ctx context.Context, cfg config.TranscriptStoreConfig, log *slog.Logger) (*Store, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
			log.Warn("transcript store vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("transcript store prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    engine TEXT,
    device TEXT,
    started_at TIMESTAMP NOT NULL,
    ended_at TIMESTAMP,
    final_text TEXT,
    device_lost INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS utterances (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    text TEXT NOT NULL,
    vad_triggered INTEGER NOT NULL DEFAULT 0,
    duration_ms REAL,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY(session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_utterances_session_created ON utterances(session_id, created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// BeginSession records the start of a recording session.
func (s *Store) BeginSession(ctx context.Context, sessionID, engine, device string) error {
	if s.disabled() {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(session_id, engine, device, started_at)
		 VALUES(?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET engine=excluded.engine, device=excluded.device`,
		sessionID, engine, device, s.clock().UTC())
	return err
}

// EndSession records the session's final transcript and outcome.
func (s *Store) EndSession(ctx context.Context, sessionID, finalText string, deviceLost bool) error {
	if s.disabled() {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ?, final_text = ?, device_lost = ? WHERE session_id = ?`,
		s.clock().UTC(), finalText, boolInt(deviceLost), sessionID)
	return err
}

// AppendUtterance writes one finalized utterance.
func (s *Store) AppendUtterance(ctx context.Context, u Utterance) error {
	if s.disabled() {
		return nil
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO utterances(session_id, text, vad_triggered, duration_ms, created_at)
		 VALUES(?, ?, ?, ?, ?)`,
		u.SessionID, u.Text, boolInt(u.VadTriggered), u.DurationMS, u.CreatedAt)
	return err
}

// ListSessions returns the most recent sessions, newest first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	if s.disabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, engine, device, started_at, COALESCE(ended_at, ''), COALESCE(final_text, ''), device_lost
		 FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		var started, ended string
		var lost int
		if err := rows.Scan(&sess.SessionID, &sess.Engine, &sess.Device, &started, &ended, &sess.FinalText, &lost); err != nil {
			return nil, err
		}
		sess.StartedAt = parseTime(started)
		sess.EndedAt = parseTime(ended)
		sess.DeviceLost = lost != 0
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// SessionUtterances retrieves up to limit utterances for a session ordered
// ascending by time.
func (s *Store) SessionUtterances(ctx context.Context, sessionID string, limit int) ([]Utterance, error) {
	if s.disabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, text, vad_triggered, duration_ms, created_at
		 FROM utterances WHERE session_id = ? ORDER BY created_at ASC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var utterances []Utterance
	for rows.Next() {
		var u Utterance
		var vad int
		var created string
		if err := rows.Scan(&u.ID, &u.SessionID, &u.Text, &vad, &u.DurationMS, &created); err != nil {
			return nil, err
		}
		u.VadTriggered = vad != 0
		u.CreatedAt = parseTime(created)
		utterances = append(utterances, u)
	}
	return utterances, rows.Err()
}

// Prune applies configured retention (called on startup and can be scheduled).
func (s *Store) Prune(ctx context.Context) error {
	if s.disabled() {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour).UTC()
		if _, err = tx.ExecContext(ctx, `DELETE FROM utterances WHERE created_at < ?`, cutoff); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE started_at < ?`, cutoff); err != nil {
			return err
		}
	}
	if s.cfg.MaxSessions > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id IN (
			SELECT session_id FROM sessions ORDER BY started_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxSessions)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}

func (s *Store) disabled() bool {
	return s.cfg.RetentionMode == "ephemeral" || s.db == nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func parseTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return ts
	}
	return time.Time{}
}
