package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/headfix/internal/eventlog"
)

// BeginSession records the start of a controller session for cageID on day
// (YYYYMMDD) and returns its ID.
func (a *Archive) BeginSession(ctx context.Context, cageID, day string, startedAt time.Time) (string, error) {
	id := a.ids.Generate()
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO sessions (id, cage_id, day, started_at)
		VALUES (?, ?, ?, ?)
	`, id, cageID, day, startedAt.UnixMilli())
	if err != nil {
		return "", fmt.Errorf("begin session: %w", err)
	}
	return id, nil
}

// EndSession stamps the end time of a session. Ending a session twice keeps
// the first end time.
func (a *Archive) EndSession(ctx context.Context, id string, endedAt time.Time) error {
	res, err := a.db.ExecContext(ctx, `
		UPDATE sessions SET ended_at = ?
		WHERE id = ? AND ended_at IS NULL
	`, endedAt.UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if n == 0 {
		var exists int
		if err := a.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions WHERE id = ?", id).Scan(&exists); err != nil {
			return fmt.Errorf("end session: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("end session: unknown session %q", id)
		}
	}
	return nil
}

// WriteEvent appends ev to a session and returns its sequence number.
//
// Note: the session must exist (foreign key constraint).
func (a *Archive) WriteEvent(ctx context.Context, sessionID string, ev eventlog.Event) (int64, error) {
	seq := a.seq.Next()
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO events (seq, session_id, tag, at_ms, label)
		VALUES (?, ?, ?, ?, ?)
	`, seq, sessionID, int64(ev.Tag), ev.At.UnixMilli(), ev.Label)
	if err != nil {
		return 0, fmt.Errorf("write event: %w", err)
	}
	return seq, nil
}

// Sink adapts the archive to eventlog.Sink for one session.
func (a *Archive) Sink(sessionID string) eventlog.Sink {
	return eventlog.SinkFunc(func(ev eventlog.Event) error {
		_, err := a.WriteEvent(context.Background(), sessionID, ev)
		return err
	})
}
