// Package postgres stores records and events in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/AaronLay10/FlowEngine/internal/events"
	"github.com/AaronLay10/FlowEngine/internal/store"
)

// Config holds connection settings.
type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
	// Source tags the events this process writes.
	Source string `yaml:"source"`
}

// DSN renders the lib/pq keyword/value connection string.
func (c Config) DSN() string {
	parts := []string{
		"host=" + c.Host,
		fmt.Sprintf("port=%d", c.Port),
		"user=" + c.User,
		"dbname=" + c.Database,
	}
	if c.Password != "" {
		parts = append(parts, "password="+c.Password)
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	parts = append(parts, "sslmode="+sslmode)
	return strings.Join(parts, " ")
}

// EventRow represents an event stored in Postgres.
type EventRow struct {
	EventID   int64                  `json:"event_id"`
	Timestamp time.Time              `json:"ts"`
	Level     string                 `json:"level"`
	Event     string                 `json:"event"`
	Message   *string                `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Source    string                 `json:"source"`
}

// Client implements store.Store and events.Sink on one connection pool.
type Client struct {
	db     *sql.DB
	source string
	now    func() time.Time
}

// Open connects, pings and creates the tables if needed.
func Open(ctx context.Context, cfg Config) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	client := NewWithDB(db, cfg.Source)
	if err := client.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return client, nil
}

// NewWithDB wraps an existing pool. Callers run Migrate themselves.
func NewWithDB(db *sql.DB, source string) *Client {
	if source == "" {
		source = "flowengine"
	}
	return &Client{db: db, source: source, now: time.Now}
}

const schema = `
	CREATE TABLE IF NOT EXISTS records (
		kind       TEXT NOT NULL,
		id         TEXT NOT NULL,
		scope      TEXT NOT NULL DEFAULT '',
		body       JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (kind, id)
	);
	CREATE INDEX IF NOT EXISTS idx_records_scope ON records(kind, scope, created_at);
	CREATE TABLE IF NOT EXISTS events (
		event_id BIGSERIAL PRIMARY KEY,
		ts       TIMESTAMPTZ NOT NULL,
		level    TEXT NOT NULL,
		event    TEXT NOT NULL,
		msg      TEXT,
		fields   JSONB,
		source   TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts DESC);
	CREATE INDEX IF NOT EXISTS idx_events_source ON events(source);
`

// Migrate creates the records and events tables.
func (c *Client) Migrate(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, schema)
	return err
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) Put(ctx context.Context, r store.Record) (store.Record, error) {
	if err := store.Check(r); err != nil {
		return store.Record{}, err
	}
	now := c.now().UTC()
	query := `
		INSERT INTO records (kind, id, scope, body, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (kind, id) DO UPDATE
		SET scope = EXCLUDED.scope, body = EXCLUDED.body, updated_at = EXCLUDED.updated_at
		RETURNING created_at, updated_at
	`
	err := c.db.QueryRowContext(ctx, query, string(r.Kind), r.ID, r.Scope, string(r.Body), now).
		Scan(&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return store.Record{}, fmt.Errorf("put %s %s: %w", r.Kind, r.ID, err)
	}
	return r, nil
}

func (c *Client) Get(ctx context.Context, kind store.Kind, id string) (store.Record, error) {
	query := `
		SELECT scope, body, created_at, updated_at
		FROM records
		WHERE kind = $1 AND id = $2
	`
	r := store.Record{Kind: kind, ID: id}
	var body []byte
	err := c.db.QueryRowContext(ctx, query, string(kind), id).Scan(&r.Scope, &body, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Record{}, fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}
	if err != nil {
		return store.Record{}, fmt.Errorf("get %s %s: %w", kind, id, err)
	}
	r.Body = body
	return r, nil
}

func (c *Client) List(ctx context.Context, kind store.Kind, scope string) ([]store.Record, error) {
	query := `
		SELECT id, scope, body, created_at, updated_at
		FROM records
		WHERE kind = $1 AND ($2 = '' OR scope = $2)
		ORDER BY created_at, id
	`
	rows, err := c.db.QueryContext(ctx, query, string(kind), scope)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	defer rows.Close()

	var out []store.Record
	for rows.Next() {
		r := store.Record{Kind: kind}
		var body []byte
		if err := rows.Scan(&r.ID, &r.Scope, &body, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Body = body
		out = append(out, r)
	}
	return out, rows.Err()
}

func (c *Client) Delete(ctx context.Context, kind store.Kind, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM records WHERE kind = $1 AND id = $2`, string(kind), id)
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", kind, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}
	return nil
}

// AppendEvent inserts an event into the database.
func (c *Client) AppendEvent(ctx context.Context, e events.Event) error {
	var fieldsJSON *string
	if e.Fields != nil {
		b, err := json.Marshal(e.Fields)
		if err != nil {
			return fmt.Errorf("failed to marshal fields: %w", err)
		}
		s := string(b)
		fieldsJSON = &s
	}

	var msgPtr *string
	if e.Message != "" {
		msgPtr = &e.Message
	}

	ts := e.Time()
	if ts.IsZero() {
		ts = c.now().UTC()
	}

	query := `
		INSERT INTO events (ts, level, event, msg, fields, source)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := c.db.ExecContext(ctx, query, ts, e.Level, e.Name, msgPtr, fieldsJSON, c.source)
	return err
}

// QueryEvents returns the last N events from the database in descending order by timestamp.
func (c *Client) QueryEvents(ctx context.Context, limit int) ([]EventRow, error) {
	if limit <= 0 {
		limit = 200
	}
	if limit > 10000 {
		limit = 10000
	}

	query := `
		SELECT event_id, ts, level, event, msg, fields, source
		FROM events
		WHERE source = $1
		ORDER BY ts DESC
		LIMIT $2
	`
	rows, err := c.db.QueryContext(ctx, query, c.source, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var e EventRow
		var fieldsJSON []byte
		var msg sql.NullString

		if err := rows.Scan(&e.EventID, &e.Timestamp, &e.Level, &e.Event, &msg, &fieldsJSON, &e.Source); err != nil {
			return nil, err
		}

		if msg.Valid {
			e.Message = &msg.String
		}
		if len(fieldsJSON) > 0 {
			if err := json.Unmarshal(fieldsJSON, &e.Fields); err != nil {
				return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
			}
		}

		out = append(out, e)
	}

	return out, rows.Err()
}

// RecentEvents returns up to n stored events, oldest first.
func (c *Client) RecentEvents(ctx context.Context, n int64) ([]events.Event, error) {
	rows, err := c.QueryEvents(ctx, int(n))
	if err != nil {
		return nil, err
	}
	out := make([]events.Event, len(rows))
	for i, row := range rows {
		e := events.Event{
			Timestamp: row.Timestamp.UTC().Format(time.RFC3339Nano),
			Level:     row.Level,
			Name:      row.Event,
			Fields:    row.Fields,
		}
		if row.Message != nil {
			e.Message = *row.Message
		}
		out[len(rows)-1-i] = e
	}
	return out, nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

var (
	_ store.Store = (*Client)(nil)
	_ events.Sink = (*Client)(nil)
)
