package archive

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/headfix/internal/eventlog"
)

// Record is an archived event.
type Record struct {
	Seq       int64
	SessionID string
	eventlog.Event
}

// Session is an archived session.
type Session struct {
	ID        string
	CageID    string
	Day       string
	StartedAt time.Time
	EndedAt   time.Time // zero while the session is open
}

// Filter narrows Events. Zero fields match everything.
type Filter struct {
	SessionID string
	Tag       uint64
	HasTag    bool
	Label     string
	Since     time.Time
	Limit     int
}

// Events returns matching events ordered by seq.
// Returns an empty slice (not nil) if nothing matches.
func (a *Archive) Events(ctx context.Context, f Filter) ([]Record, error) {
	var (
		where []string
		args  []any
	)
	if f.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.HasTag {
		where = append(where, "tag = ?")
		args = append(args, int64(f.Tag))
	}
	if f.Label != "" {
		where = append(where, "label = ?")
		args = append(args, f.Label)
	}
	if !f.Since.IsZero() {
		where = append(where, "at_ms >= ?")
		args = append(args, f.Since.UnixMilli())
	}

	query := "SELECT seq, session_id, tag, at_ms, label FROM events"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq ASC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var (
			r   Record
			tag int64
			at  int64
		)
		if err := rows.Scan(&r.Seq, &r.SessionID, &tag, &at, &r.Label); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		r.Tag = uint64(tag)
		r.At = time.UnixMilli(at).UTC()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return records, nil
}

// Sessions returns every session, oldest first.
func (a *Archive) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, cage_id, day, started_at, ended_at
		FROM sessions
		ORDER BY started_at ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var (
			s       Session
			started int64
			ended   sql.NullInt64
		)
		if err := rows.Scan(&s.ID, &s.CageID, &s.Day, &started, &ended); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		s.StartedAt = time.UnixMilli(started).UTC()
		if ended.Valid {
			s.EndedAt = time.UnixMilli(ended.Int64).UTC()
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// LabelCounts tallies events by label, optionally restricted to one session.
func (a *Archive) LabelCounts(ctx context.Context, sessionID string) (map[string]int, error) {
	query := "SELECT label, COUNT(*) FROM events"
	var args []any
	if sessionID != "" {
		query += " WHERE session_id = ?"
		args = append(args, sessionID)
	}
	query += " GROUP BY label"

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query label counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			label string
			n     int
		)
		if err := rows.Scan(&label, &n); err != nil {
			return nil, fmt.Errorf("scan label count: %w", err)
		}
		counts[label] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate label counts: %w", err)
	}
	return counts, nil
}
