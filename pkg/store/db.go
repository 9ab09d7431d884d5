// Package store provides the shared sqlite connection used by the Server
// Config store and the Conversation Log: WAL mode, busy_timeout,
// modernc.org/sqlite (pure Go, no cgo).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sipeed/boxbot/pkg/boxerr"
)

// Open creates (if needed) and opens the sqlite database at path with WAL
// mode and a 5s busy timeout, shared by every component that persists
// relational state.
func Open(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, boxerr.Wrap(boxerr.StorageError, "create database directory", err)
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, boxerr.Wrap(boxerr.StorageError, "open database", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, boxerr.Wrap(boxerr.StorageError, "ping database", err)
	}

	return db, nil
}

// Exec runs a schema statement, wrapping failures as boxerr.StorageError.
func Exec(db *sql.DB, ddl string) error {
	if _, err := db.Exec(ddl); err != nil {
		return boxerr.Wrap(boxerr.StorageError, fmt.Sprintf("apply schema: %.60s", ddl), err)
	}
	return nil
}
