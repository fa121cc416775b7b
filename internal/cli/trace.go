package cli

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/headfix/internal/archive"
	"github.com/roach88/headfix/internal/eventlog"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Session  string
	Tag      uint64
	Label    string
	Since    string
	Limit    int
	Sessions bool
}

// TraceEvent is one archived event in command output.
type TraceEvent struct {
	Seq       int64     `json:"seq"`
	SessionID string    `json:"session_id"`
	Tag       string    `json:"tag"`
	At        time.Time `json:"at"`
	Label     string    `json:"label"`
}

// TraceResult holds the matching events and a per-label tally.
type TraceResult struct {
	Events []TraceEvent   `json:"events"`
	Counts map[string]int `json:"counts"`
}

// TraceSession is one archived session in command output.
type TraceSession struct {
	ID        string     `json:"id"`
	CageID    string     `json:"cage_id"`
	Day       string     `json:"day"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Query the event archive",
		Long: `Query the SQLite event archive written by "run --archive".

Lists archived events in order, optionally restricted to one session,
subject tag or label, followed by a count per label. With --sessions,
lists the archived sessions instead.

Examples:
  headfix trace --db headfix.db --tag 1234567890123
  headfix trace --db headfix.db --label check- --since 2024-03-05T07:00:00Z
  headfix trace --db headfix.db --sessions --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite archive (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "restrict to one session ID")
	cmd.Flags().Uint64Var(&opts.Tag, "tag", 0, "restrict to one subject tag")
	cmd.Flags().StringVar(&opts.Label, "label", "", "restrict to one event label")
	cmd.Flags().StringVar(&opts.Since, "since", "", "only events at or after this RFC 3339 time")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of events (0 for all)")
	cmd.Flags().BoolVar(&opts.Sessions, "sessions", false, "list sessions instead of events")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := opts.formatter(cmd)

	// archive.Open would create a missing database.
	if _, err := os.Stat(opts.Database); err != nil {
		return WrapExitError(ExitCommandError, "archive not found", err)
	}
	arc, err := archive.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open archive", err)
	}
	defer arc.Close()

	if opts.Sessions {
		return traceSessions(ctx, arc, formatter)
	}

	filter := archive.Filter{
		SessionID: opts.Session,
		Label:     opts.Label,
		Limit:     opts.Limit,
	}
	if cmd.Flags().Changed("tag") {
		filter.Tag, filter.HasTag = opts.Tag, true
	}
	if opts.Since != "" {
		since, err := time.Parse(time.RFC3339, opts.Since)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --since", err)
		}
		filter.Since = since
	}

	records, err := arc.Events(ctx, filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to query events", err)
	}
	result := TraceResult{Events: make([]TraceEvent, 0, len(records)), Counts: make(map[string]int)}
	for _, r := range records {
		result.Events = append(result.Events, TraceEvent{
			Seq:       r.Seq,
			SessionID: r.SessionID,
			Tag:       fmt.Sprintf("%013d", r.Tag),
			At:        r.At,
			Label:     r.Label,
		})
		result.Counts[r.Label]++
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	return formatter.Success(formatTraceText(records, result.Counts))
}

func formatTraceText(records []archive.Record, counts map[string]int) string {
	if len(records) == 0 {
		return "No events found."
	}
	var b strings.Builder
	for _, r := range records {
		b.WriteString(eventlog.FormatConsole(r.Event))
	}

	labels := make([]string, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	fmt.Fprintf(&b, "\n%d event(s)", len(records))
	for _, l := range labels {
		fmt.Fprintf(&b, "\n  %-20s %d", l, counts[l])
	}
	return b.String()
}

func traceSessions(ctx context.Context, arc *archive.Archive, formatter *OutputFormatter) error {
	sessions, err := arc.Sessions(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to query sessions", err)
	}
	out := make([]TraceSession, 0, len(sessions))
	for _, s := range sessions {
		ts := TraceSession{ID: s.ID, CageID: s.CageID, Day: s.Day, StartedAt: s.StartedAt}
		if !s.EndedAt.IsZero() {
			ended := s.EndedAt
			ts.EndedAt = &ended
		}
		out = append(out, ts)
	}

	if formatter.Format == "json" {
		return formatter.Success(out)
	}
	if len(out) == 0 {
		return formatter.Success("No sessions found.")
	}
	var b strings.Builder
	for i, s := range out {
		if i > 0 {
			b.WriteByte('\n')
		}
		end := "open"
		if s.EndedAt != nil {
			end = s.EndedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(&b, "%s\t%s\t%s\t%s\t%s", s.ID, s.CageID, s.Day, s.StartedAt.Format(time.RFC3339), end)
	}
	return formatter.Success(b.String())
}
