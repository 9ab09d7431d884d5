// Package serverconfig implements the Server Config component: one row per
// server holding its on-failure policy and optional embedding-model
// override, upserted on write.
package serverconfig

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/sipeed/boxbot/pkg/boxerr"
	"github.com/sipeed/boxbot/pkg/chatdata"
	"github.com/sipeed/boxbot/pkg/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS server_configs (
	server_id TEXT PRIMARY KEY,
	on_failure TEXT NOT NULL DEFAULT 'skip',
	embedding_model_name TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// Store is the sqlite-backed per-server configuration table. An in-memory
// set of configured server ids is populated at startup and kept current by
// Set, so Get can tell the pipeline apart "configured with defaults" from
// "never set up" without a round trip per message.
type Store struct {
	db *sql.DB
	defaultPolicy chatdata.OnFailurePolicy

	mu sync.RWMutex
	configured map[chatdata.ServerID]bool
}

// New opens (creating if needed) the server config table at dbPath and
// preloads the set of already-configured server ids.
func New(dbPath string, defaultPolicy chatdata.OnFailurePolicy) (*Store, error) {
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	if err := store.Exec(db, schema); err != nil {
		return nil, err
	}
	s := &Store{db: db, defaultPolicy: defaultPolicy, configured: make(map[chatdata.ServerID]bool)}

	rows, err := db.Query(`SELECT server_id FROM server_configs`)
	if err != nil {
		return nil, boxerr.Wrap(boxerr.StorageError, "preload configured servers", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, boxerr.Wrap(boxerr.StorageError, "scan configured server", err)
		}
		s.configured[chatdata.ServerID(id)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, boxerr.Wrap(boxerr.StorageError, "preload configured servers", err)
	}

	return s, nil
}

// Get returns a server's config and whether it has ever been configured.
// An unconfigured server still gets a valid-looking zero config back (the
// store's default policy, no embedding override) for convenience, but callers must check
// the bool before acting on it — ingest rejects messages for unconfigured
// servers rather than silently using these defaults.
func (s *Store) Get(ctx context.Context, server chatdata.ServerID) (chatdata.ServerConfig, bool, error) {
	s.mu.RLock()
	configured := s.configured[server]
	s.mu.RUnlock()
	if !configured {
		return chatdata.ServerConfig{ServerID: server, OnFailure: s.defaultPolicy}, false, nil
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT on_failure, embedding_model_name, created_at, updated_at FROM server_configs WHERE server_id = ?`,
		string(server))

	var onFailure, embeddingModel string
	var createdAt, updatedAt int64
	err := row.Scan(&onFailure, &embeddingModel, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return chatdata.ServerConfig{ServerID: server, OnFailure: s.defaultPolicy}, false, nil
	}
	if err != nil {
		return chatdata.ServerConfig{}, false, boxerr.Wrap(boxerr.StorageError, "get server config", err)
	}

	return chatdata.ServerConfig{
		ServerID: server,
		OnFailure: chatdata.OnFailurePolicy(onFailure),
		EmbeddingModelName: embeddingModel,
		CreatedAt: time.Unix(createdAt, 0),
		UpdatedAt: time.Unix(updatedAt, 0),
	}, true, nil
}

// Set upserts a server's configuration and marks it configured.
func (s *Store) Set(ctx context.Context, cfg chatdata.ServerConfig) error {
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO server_configs (server_id, on_failure, embedding_model_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(server_id) DO UPDATE SET
			on_failure = excluded.on_failure,
			embedding_model_name = excluded.embedding_model_name,
			updated_at = excluded.updated_at
	`, string(cfg.ServerID), string(cfg.OnFailure), cfg.EmbeddingModelName, now, now)
	if err != nil {
		return boxerr.Wrap(boxerr.StorageError, "set server config", err)
	}

	s.mu.Lock()
	s.configured[cfg.ServerID] = true
	s.mu.Unlock()
	return nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
