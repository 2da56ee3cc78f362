package state

import (
	"context"
	"fmt"
	"time"

	"github.com/user/cuecard/internal/types"
)

// InsertTranscript persists a transcript row and fires the insert feed.
func (s *Store) InsertTranscript(ctx context.Context, chunk *types.TranscriptChunk) error {
	if chunk.TranscriptID == "" {
		chunk.TranscriptID = types.NewTranscriptID()
	}
	if chunk.At.IsZero() {
		chunk.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transcripts (id, event_id, seq, at_ms, speaker, text, final)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(chunk.TranscriptID), string(chunk.EventID), chunk.Seq,
		chunk.At.UnixMilli(), chunk.Speaker, chunk.Text, boolToInt(chunk.Final))
	if err != nil {
		return fmt.Errorf("insert transcript: %w", err)
	}
	s.notifyTranscript(chunk)
	return nil
}

// UpdateTranscriptSeq writes a sequence number back to a transcript row so
// the assignment stays stable across replays.
func (s *Store) UpdateTranscriptSeq(ctx context.Context, id types.TranscriptID, seq int64) error {
	if err := s.execOne(ctx,
		`UPDATE transcripts SET seq = ? WHERE id = ?`, seq, string(id)); err != nil {
		return fmt.Errorf("update transcript seq: %w", err)
	}
	return nil
}

// TranscriptsAfter returns final transcript rows for the event with
// seq > afterSeq, ordered by seq ascending, bounded by limit.
func (s *Store) TranscriptsAfter(ctx context.Context, eventID types.EventID, afterSeq int64, limit int) ([]*types.TranscriptChunk, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_id, seq, at_ms, speaker, text, final
		 FROM transcripts
		 WHERE event_id = ? AND final = 1 AND seq > ?
		 ORDER BY seq ASC LIMIT ?`,
		string(eventID), afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("query transcripts: %w", err)
	}
	defer rows.Close()

	var out []*types.TranscriptChunk
	for rows.Next() {
		chunk, err := scanTranscript(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, chunk)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTranscript(row rowScanner) (*types.TranscriptChunk, error) {
	var (
		chunk       types.TranscriptChunk
		id, eventID string
		atMs        int64
		final       int
	)
	if err := row.Scan(&id, &eventID, &chunk.Seq, &atMs, &chunk.Speaker, &chunk.Text, &final); err != nil {
		return nil, fmt.Errorf("scan transcript: %w", err)
	}
	chunk.TranscriptID = types.TranscriptID(id)
	chunk.EventID = types.EventID(eventID)
	chunk.At = time.UnixMilli(atMs)
	chunk.Final = final != 0
	return &chunk, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
