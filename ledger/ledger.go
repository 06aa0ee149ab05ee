// Package ledger mirrors feed events into an append-only SQLite table so
// operators can audit what happened after the volatile core is gone. The core
// never reads the ledger back.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/grantmesh/feed"
	_ "modernc.org/sqlite"
)

// Entry is one persisted event.
type Entry struct {
	Seq     int64           `json:"seq"`
	ID      string          `json:"id"`
	Type    feed.EventType  `json:"type"`
	Time    time.Time       `json:"time"`
	GrantID int64           `json:"grant_id,omitempty"`
	AgentID string          `json:"agent_id,omitempty"`
	Topic   string          `json:"topic,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Ledger is a SQLite backed feed.Sink.
type Ledger struct {
	db *sql.DB
}

// Open opens (or creates) the ledger at path and runs schema migrations.
// Use ":memory:" for a throwaway ledger.
func Open(path string) (*Ledger, error) {
	dsn := path
	if path != ":memory:" {
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	// A single connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping ledger: %w", err)
	}
	l := &Ledger{db: db}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return l, nil
}

func (l *Ledger) migrate() error {
	schema := `
CREATE TABLE IF NOT EXISTS events (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL,
    time INTEGER NOT NULL,
    grant_id INTEGER,
    agent_id TEXT,
    topic TEXT,
    payload TEXT
);

CREATE INDEX IF NOT EXISTS idx_events_grant ON events(grant_id);
`
	_, err := l.db.Exec(schema)
	return err
}

// Close closes the underlying database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Publish implements feed.Sink. Re-publishing an event id is a no-op.
func (l *Ledger) Publish(ctx context.Context, ev feed.Event) error {
	var payload []byte
	if ev.Payload != nil {
		b, err := json.Marshal(ev.Payload)
		if err != nil {
			return fmt.Errorf("encode payload of %s: %w", ev.ID, err)
		}
		payload = b
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO events (id, type, time, grant_id, agent_id, topic, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, string(ev.Type), ev.Time.UnixNano(), nullInt(ev.GrantID), nullString(ev.AgentID), nullString(ev.Topic), nullBytes(payload),
	)
	if err != nil {
		return fmt.Errorf("append event %s: %w", ev.ID, err)
	}
	return nil
}

// Tail returns the newest n entries, oldest first. n <= 0 returns 20.
func (l *Ledger) Tail(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		n = 20
	}
	entries, err := l.query(ctx,
		`SELECT seq, id, type, time, grant_id, agent_id, topic, payload FROM events ORDER BY seq DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("tail ledger: %w", err)
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// ByGrant returns every entry for grantID in append order.
func (l *Ledger) ByGrant(ctx context.Context, grantID int64) ([]Entry, error) {
	entries, err := l.query(ctx,
		`SELECT seq, id, type, time, grant_id, agent_id, topic, payload FROM events WHERE grant_id = ? ORDER BY seq`, grantID)
	if err != nil {
		return nil, fmt.Errorf("ledger for grant %d: %w", grantID, err)
	}
	return entries, nil
}

// Since returns entries of the given types appended after seq. An empty
// types list matches all.
func (l *Ledger) Since(ctx context.Context, seq int64, types ...feed.EventType) ([]Entry, error) {
	q := `SELECT seq, id, type, time, grant_id, agent_id, topic, payload FROM events WHERE seq > ?`
	args := []any{seq}
	if len(types) > 0 {
		q += ` AND type IN (?` + strings.Repeat(",?", len(types)-1) + `)`
		for _, t := range types {
			args = append(args, string(t))
		}
	}
	q += ` ORDER BY seq`
	entries, err := l.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger since %d: %w", seq, err)
	}
	return entries, nil
}

// Count returns the number of stored entries.
func (l *Ledger) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count ledger: %w", err)
	}
	return n, nil
}

func (l *Ledger) query(ctx context.Context, q string, args ...any) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			typ     string
			ts      int64
			grantID sql.NullInt64
			agentID sql.NullString
			topic   sql.NullString
			payload sql.NullString
		)
		if err := rows.Scan(&e.Seq, &e.ID, &typ, &ts, &grantID, &agentID, &topic, &payload); err != nil {
			return nil, err
		}
		e.Type = feed.EventType(typ)
		e.Time = time.Unix(0, ts).UTC()
		e.GrantID = grantID.Int64
		e.AgentID = agentID.String
		e.Topic = topic.String
		if payload.Valid {
			e.Payload = json.RawMessage(payload.String)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullInt(v int64) sql.NullInt64 { return sql.NullInt64{Int64: v, Valid: v != 0} }

func nullString(v string) sql.NullString { return sql.NullString{String: v, Valid: v != ""} }

func nullBytes(b []byte) sql.NullString { return sql.NullString{String: string(b), Valid: b != nil} }
