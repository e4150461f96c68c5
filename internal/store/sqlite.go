// Package store implements the message log on SQLite via the CGo-free
// modernc driver. WAL mode keeps readers off the writer's lock; appends are
// additionally serialized in-process so id assignment and the row insert are
// one atomic unit.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts TEXT NOT NULL,
	room TEXT NOT NULL,
	agent TEXT NOT NULL,
	kind TEXT NOT NULL,
	content TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_room_id ON messages(room, id);
`

// SQLite is the durable message log. Safe for concurrent use; Append calls
// are serialized by an internal mutex, Fetch calls run concurrently against
// the WAL snapshot.
type SQLite struct {
	db  *sql.DB
	log zerolog.Logger

	appendMu sync.Mutex
	now      func() time.Time
}

// Open opens (creating if necessary) the message log at path. The parent
// directory is created when missing.
func Open(ctx context.Context, path string, logger zerolog.Logger) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: database path is required", ErrStorage)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create data dir: %v", ErrStorage, err)
		}
	}

	// Pragmas go in the DSN so every pooled connection gets them, not just
	// the one that would have run a PRAGMA statement.
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrStorage, path, err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: init schema: %v", ErrStorage, err)
	}

	logger.Info().Str("path", path).Msg("message log opened")

	return &SQLite{db: db, log: logger, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *SQLite) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

// Append validates the draft, assigns the next id, and persists the message.
// The returned Message carries the assigned id and effective timestamp.
// Returns an error wrapping ErrValidation on constraint violations and an
// error wrapping ErrStorage when the durability layer fails; in either case
// nothing is persisted.
func (s *SQLite) Append(ctx context.Context, d Draft) (Message, error) {
	d, err := d.normalize(s.now)
	if err != nil {
		return Message{}, err
	}

	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (ts, room, agent, kind, content) VALUES (?, ?, ?, ?, ?)`,
		d.TS, d.Room, d.Agent, d.Kind, d.Content,
	)
	if err != nil {
		return Message{}, fmt.Errorf("%w: append: %v", ErrStorage, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Message{}, fmt.Errorf("%w: append id: %v", ErrStorage, err)
	}

	return Message{
		ID:      id,
		TS:      d.TS,
		Room:    d.Room,
		Agent:   d.Agent,
		Kind:    d.Kind,
		Content: d.Content,
	}, nil
}

// Fetch returns messages in room with id > afterID, ascending by id, capped
// at the clamped limit. An unknown room yields an empty slice, never an
// error. Pass afterID 0 to read from the start of the room's log.
func (s *SQLite) Fetch(ctx context.Context, room string, limit int, afterID int64) ([]Message, error) {
	if room == "" {
		room = DefaultRoom
	}
	limit = ClampLimit(limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts, room, agent, kind, content FROM messages
		 WHERE room = ? AND id > ?
		 ORDER BY id ASC LIMIT ?`,
		room, afterID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch: %v", ErrStorage, err)
	}
	defer rows.Close()

	msgs := make([]Message, 0, limit)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.TS, &m.Room, &m.Agent, &m.Kind, &m.Content); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", ErrStorage, err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: fetch: %v", ErrStorage, err)
	}
	return msgs, nil
}
