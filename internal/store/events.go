package store

import (
	"context"
	"fmt"

	"github.com/ananthlk/Mobius-OS-sub002/internal/eventlog"
)

// AppendEvent writes one event row for a session. Satisfies
// eventlog.Appender.
func (s *Store) AppendEvent(ctx context.Context, sessionID string, bucket eventlog.Bucket, payload []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (session_id, bucket, payload, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, string(bucket), string(payload), nowStamp(),
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// EventsForSession returns every event of a session in insertion order.
func (s *Store) EventsForSession(ctx context.Context, sessionID string) ([]eventlog.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, bucket, payload, created_at FROM events WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []eventlog.Record
	for rows.Next() {
		var (
			rec       eventlog.Record
			bucket    string
			payload   string
			createdAt string
		)
		if err := rows.Scan(&rec.ID, &rec.SessionID, &bucket, &payload, &createdAt); err != nil {
			return nil, err
		}
		rec.Bucket = eventlog.Bucket(bucket)
		rec.Payload = []byte(payload)
		rec.CreatedAt = parseTime(createdAt)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
