// Package db stores the notification journal in Postgres.
//
// The journal is an audit log of delivery attempts. Watcher state is never
// persisted; a restart always begins with every channel offline.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'

	"github.com/MinnDevelopment/strumbot/notify"
)

// DefaultRecentLimit is the number of journal rows Recent returns for limit <= 0.
const DefaultRecentLimit = 20

// Connect opens a Postgres connection pool for dsn and verifies it.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("db: empty DSN")
	}
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	conn.SetMaxOpenConns(4)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.PingContext(pctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return conn, nil
}

// Journal reads and writes the notifications table. It implements notify.Recorder.
type Journal struct {
	db *sql.DB
}

func NewJournal(db *sql.DB) *Journal { return &Journal{db: db} }

// RecordNotification inserts one journal row.
func (j *Journal) RecordNotification(ctx context.Context, r notify.Record) error {
	sentAt := r.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now().UTC()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO notifications (channel, event, title, video_id, sent_at, error) VALUES ($1, $2, $3, $4, $5, $6)`,
		r.Channel, string(r.Event), r.Title, r.VideoID, sentAt, r.Err)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// Recent returns the newest journal rows, newest first. An empty channel
// returns rows for all channels.
func (j *Journal) Recent(ctx context.Context, channel string, limit int) ([]notify.Record, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT channel, event, title, video_id, sent_at, error FROM notifications
		 WHERE ($1 = '' OR channel = $1)
		 ORDER BY sent_at DESC, id DESC
		 LIMIT $2`, channel, limit)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []notify.Record
	for rows.Next() {
		var (
			r     notify.Record
			event string
		)
		if err := rows.Scan(&r.Channel, &event, &r.Title, &r.VideoID, &r.SentAt, &r.Err); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		r.Event = notify.Event(event)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return out, nil
}

// Ping reports whether the database is reachable.
func (j *Journal) Ping(ctx context.Context) error { return j.db.PingContext(ctx) }
