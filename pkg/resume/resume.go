// Package resume implements the Resumption Store: tracks
// each server's last-indexed checkpoint so cold start can resume instead
// of re-fetching full history. Persisted in sqlite rather than scanning
// the vector store (chromem-go's collections aren't enumerable without a
// query), following the same store.Open convention as serverconfig and
// convolog.
package resume

import (
	"context"
	"database/sql"
	"time"

	"github.com/sipeed/boxbot/pkg/boxerr"
	"github.com/sipeed/boxbot/pkg/chatdata"
	"github.com/sipeed/boxbot/pkg/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS index_checkpoints (
	server_id TEXT PRIMARY KEY,
	last_indexed_at INTEGER NOT NULL,
	record_count INTEGER NOT NULL DEFAULT 0
);
`

// Status is the Resumption Store's verdict for a server.
type Status string

const (
	// StatusNone: no checkpoint exists, run a full history fetch.
	StatusNone Status = "none"
	// StatusResumable: a checkpoint exists; fetch only messages after it.
	StatusResumable Status = "resumable"
	// StatusUpToDate: checkpoint is fresher than staleAfter; skip
	// ingestion this cycle.
	StatusUpToDate Status = "up_to_date"
)

const staleAfter = 5 * time.Minute

// Store persists one checkpoint per server.
type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	if err := store.Exec(db, schema); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// GetStatus reports whether server needs a full fetch, a resumed fetch
// (with the checkpoint's timestamp), or is already current.
func (s *Store) GetStatus(ctx context.Context, server chatdata.ServerID) (Status, chatdata.IndexCheckpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT last_indexed_at, record_count FROM index_checkpoints WHERE server_id = ?`, string(server))

	var lastIndexed int64
	var count int
	err := row.Scan(&lastIndexed, &count)
	if err == sql.ErrNoRows {
		return StatusNone, chatdata.IndexCheckpoint{ServerID: server}, nil
	}
	if err != nil {
		return "", chatdata.IndexCheckpoint{}, boxerr.Wrap(boxerr.StorageError, "get checkpoint", err)
	}

	cp := chatdata.IndexCheckpoint{
		ServerID: server,
		LastIndexedTimestamp: time.Unix(lastIndexed, 0),
		RecordCount: count,
	}
	if time.Since(cp.LastIndexedTimestamp) < staleAfter {
		return StatusUpToDate, cp, nil
	}
	return StatusResumable, cp, nil
}

// Advance records a new checkpoint after a successful ingestion pass.
func (s *Store) Advance(ctx context.Context, server chatdata.ServerID, latest time.Time, recordsAdded int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO index_checkpoints (server_id, last_indexed_at, record_count)
		VALUES (?, ?, ?)
		ON CONFLICT(server_id) DO UPDATE SET
			last_indexed_at = excluded.last_indexed_at,
			record_count = index_checkpoints.record_count + excluded.record_count
	`, string(server), latest.Unix(), recordsAdded)
	if err != nil {
		return boxerr.Wrap(boxerr.StorageError, "advance checkpoint", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
