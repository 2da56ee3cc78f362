// Package state provides the SQLite-backed durable store for transcripts,
// facts, cards, checkpoints, agents, session rows, glossary terms, and
// agent-output audit records, plus the in-process transcript insert feed.
package state

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/user/cuecard/internal/types"
)

// Compile-time interface compliance check.
var _ types.Store = (*Store)(nil)

// Store wraps a SQLite database implementing the full durable-store
// contract consumed by the orchestration core.
type Store struct {
	db *sql.DB

	feedMu      sync.RWMutex
	subscribers map[int]func(*types.TranscriptChunk)
	nextSubID   int
}

// Open opens (creating if needed) the SQLite database at path and applies
// the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{
		db:          db,
		subscribers: make(map[int]func(*types.TranscriptChunk)),
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS transcripts (
	id          TEXT PRIMARY KEY,
	event_id    TEXT NOT NULL,
	seq         INTEGER NOT NULL DEFAULT 0,
	at_ms       INTEGER NOT NULL,
	speaker     TEXT NOT NULL DEFAULT '',
	text        TEXT NOT NULL,
	final       INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_transcripts_event_seq ON transcripts(event_id, seq);

CREATE TABLE IF NOT EXISTS facts (
	event_id      TEXT NOT NULL,
	key           TEXT NOT NULL,
	value         TEXT NOT NULL,
	confidence    REAL NOT NULL,
	last_seen_seq INTEGER NOT NULL DEFAULT 0,
	sources       TEXT NOT NULL DEFAULT '[]',
	active        INTEGER NOT NULL DEFAULT 1,
	updated_at_ms INTEGER NOT NULL,
	PRIMARY KEY (event_id, key)
);

CREATE TABLE IF NOT EXISTS cards (
	id            TEXT PRIMARY KEY,
	event_id      TEXT NOT NULL,
	concept_id    TEXT NOT NULL DEFAULT '',
	concept_label TEXT NOT NULL DEFAULT '',
	card_type     TEXT NOT NULL,
	source_seq    INTEGER NOT NULL DEFAULT 0,
	title         TEXT NOT NULL,
	body          TEXT NOT NULL DEFAULT '',
	label         TEXT NOT NULL DEFAULT '',
	image_ref     TEXT NOT NULL DEFAULT '',
	active        INTEGER NOT NULL DEFAULT 1,
	created_at_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cards_event ON cards(event_id, created_at_ms);

CREATE TABLE IF NOT EXISTS checkpoints (
	event_id      TEXT NOT NULL,
	agent_type    TEXT NOT NULL,
	last_seq      INTEGER NOT NULL DEFAULT 0,
	updated_at_ms INTEGER NOT NULL,
	PRIMARY KEY (event_id, agent_type)
);

CREATE TABLE IF NOT EXISTS agents (
	id            TEXT PRIMARY KEY,
	event_id      TEXT NOT NULL UNIQUE,
	status        TEXT NOT NULL,
	created_at_ms INTEGER NOT NULL,
	updated_at_ms INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id                  TEXT PRIMARY KEY,
	event_id            TEXT NOT NULL,
	agent_type          TEXT NOT NULL,
	provider_session_id TEXT NOT NULL DEFAULT '',
	model               TEXT NOT NULL DEFAULT '',
	state               TEXT NOT NULL,
	reason              TEXT NOT NULL DEFAULT '',
	created_at_ms       INTEGER NOT NULL,
	updated_at_ms       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_event ON sessions(event_id);

CREATE TABLE IF NOT EXISTS outputs (
	id            TEXT PRIMARY KEY,
	event_id      TEXT NOT NULL,
	agent_type    TEXT NOT NULL,
	kind          TEXT NOT NULL,
	source_seq    INTEGER NOT NULL DEFAULT 0,
	payload       TEXT NOT NULL,
	created_at_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_outputs_event ON outputs(event_id, created_at_ms);

CREATE TABLE IF NOT EXISTS glossary (
	event_id   TEXT NOT NULL,
	term       TEXT NOT NULL,
	definition TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (event_id, term)
);
`

// SubscribeTranscripts registers fn to be called after every transcript
// insert. The returned function removes the subscription.
func (s *Store) SubscribeTranscripts(fn func(*types.TranscriptChunk)) func() {
	s.feedMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.feedMu.Unlock()

	return func() {
		s.feedMu.Lock()
		delete(s.subscribers, id)
		s.feedMu.Unlock()
	}
}

// notifyTranscript fans an inserted row out to all subscribers. Callbacks
// run on the inserting goroutine; subscribers must return quickly.
func (s *Store) notifyTranscript(chunk *types.TranscriptChunk) {
	s.feedMu.RLock()
	subs := make([]func(*types.TranscriptChunk), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.feedMu.RUnlock()

	for _, fn := range subs {
		copied := *chunk
		fn(&copied)
	}
}

// execOne runs a statement and asserts exactly one affected row.
func (s *Store) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
