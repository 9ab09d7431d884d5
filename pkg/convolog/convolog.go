// Package convolog implements the Conversation Log: an
// append-only record of every DM turn, indexed by (user, server) and
// timestamp, queried by the Queue Worker to build context and purged by the
// `clear-history` command.
package convolog

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/sipeed/boxbot/pkg/boxerr"
	"github.com/sipeed/boxbot/pkg/chatdata"
	"github.com/sipeed/boxbot/pkg/store"
)

// maxSearchTerms bounds how many keyword terms Search will match against;
// extra terms beyond this are dropped.
const maxSearchTerms = 5

const schema = `
CREATE TABLE IF NOT EXISTS conversation_turns (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL,
	server_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	session TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversation_turns_user_server ON conversation_turns(user_id, server_id, created_at);
`

// Log is the sqlite-backed append-only conversation history.
type Log struct {
	db *sql.DB
}

func New(dbPath string) (*Log, error) {
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	if err := store.Exec(db, schema); err != nil {
		return nil, err
	}
	return &Log{db: db}, nil
}

// Append records one turn. There is no update path; Purge is the only way
// turns are removed.
func (l *Log) Append(ctx context.Context, turn chatdata.ConversationTurn) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO conversation_turns (user_id, server_id, role, content, session, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, string(turn.UserID), string(turn.ServerID), string(turn.Role), turn.Content, turn.Session, turn.CreatedAt.Unix())
	if err != nil {
		return boxerr.Wrap(boxerr.StorageError, "append conversation turn", err)
	}
	return nil
}

// History returns the most recent `limit` turns for (user, server), oldest
// first, used to build the Queue Worker's in-context window. sinceDays, if
// positive, further bounds the window to the last N days.
func (l *Log) History(ctx context.Context, user chatdata.UserID, server chatdata.ServerID, limit, sinceDays int) ([]chatdata.ConversationTurn, error) {
	query := `
		SELECT role, content, session, created_at FROM (
			SELECT role, content, session, created_at FROM conversation_turns
			WHERE user_id = ? AND server_id = ?`
	args := []interface{}{string(user), string(server)}

	if sinceDays > 0 {
		query += ` AND created_at >= ?`
		args = append(args, time.Now().AddDate(0, 0, -sinceDays).Unix())
	}
	query += `
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		) ORDER BY created_at ASC
	`
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, boxerr.Wrap(boxerr.StorageError, "query conversation history", err)
	}
	defer rows.Close()
	return scanTurns(rows, user, server)
}

// Search matches a user's own history against up to maxSearchTerms
// keywords (any match counts), bound to one server and optionally to the
// last sinceDays days.
func (l *Log) Search(ctx context.Context, user chatdata.UserID, server chatdata.ServerID, terms []string, limit, sinceDays int) ([]chatdata.ConversationTurn, error) {
	if len(terms) > maxSearchTerms {
		terms = terms[:maxSearchTerms]
	}

	query := `
		SELECT role, content, session, created_at FROM conversation_turns
		WHERE user_id = ? AND server_id = ?`
	args := []interface{}{string(user), string(server)}

	if len(terms) > 0 {
		clauses := make([]string, len(terms))
		for i, term := range terms {
			clauses[i] = "content LIKE '%' || ? || '%'"
			args = append(args, term)
		}
		query += " AND (" + strings.Join(clauses, " OR ") + ")"
	}
	if sinceDays > 0 {
		query += " AND created_at >= ?"
		args = append(args, time.Now().AddDate(0, 0, -sinceDays).Unix())
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, boxerr.Wrap(boxerr.StorageError, "search conversation history", err)
	}
	defer rows.Close()
	return scanTurns(rows, user, server)
}

// Purge permanently deletes every turn logged for (user, server), backing
// the `clear-history` DM command.
func (l *Log) Purge(ctx context.Context, user chatdata.UserID, server chatdata.ServerID) error {
	_, err := l.db.ExecContext(ctx,
		`DELETE FROM conversation_turns WHERE user_id = ? AND server_id = ?`,
		string(user), string(server))
	if err != nil {
		return boxerr.Wrap(boxerr.StorageError, "purge conversation history", err)
	}
	return nil
}

func scanTurns(rows *sql.Rows, user chatdata.UserID, server chatdata.ServerID) ([]chatdata.ConversationTurn, error) {
	var out []chatdata.ConversationTurn
	for rows.Next() {
		var role, content, session string
		var createdAt int64
		if err := rows.Scan(&role, &content, &session, &createdAt); err != nil {
			return nil, boxerr.Wrap(boxerr.StorageError, "scan conversation turn", err)
		}
		out = append(out, chatdata.ConversationTurn{
			UserID: user,
			ServerID: server,
			Role: chatdata.ConversationRole(role),
			Content: content,
			Session: session,
			CreatedAt: time.Unix(createdAt, 0),
		})
	}
	return out, rows.Err()
}

func (l *Log) Close() error {
	return l.db.Close()
}
