// Package eventlog writes the append-only audit trail of a cage.
//
// Each event becomes one tab-separated line in the day's log file:
//
//	<13-digit tag>\t<epoch seconds, 2 decimals>\t<label>
//
// Session-level events carry a tag of 13 zeros. The same event is echoed to a
// console stream with a human-readable timestamp and fanned out to any
// registered Sink.
package eventlog

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/headfix/internal/clock"
)

// Reserved labels. A trial's video file name is also logged as a label.
const (
	SessionStart = "SeshStart"
	SessionEnd   = "SeshEnd"
	Entry        = "entry"
	EntryReward  = "entryReward"
	CheckPlus    = "check+"
	CheckMinus   = "check-"
	CheckNoFix   = "check No Fix Trial"
	Exit         = "exit"
	Complete     = "complete"
)

// NoTag marks session-level events.
const NoTag uint64 = 0

// ConsoleTimeFormat is the timestamp layout of the console echo.
const ConsoleTimeFormat = "2006-01-02 15:04:05"

// ErrMalformedLine is returned by ParseLine.
var ErrMalformedLine = errors.New("malformed log line")

// Event is one logged occurrence.
type Event struct {
	Tag   uint64
	At    time.Time
	Label string
}

// Sink receives every event after it has been written to the log file.
// Sink failures are logged and never interrupt the caller.
type Sink interface {
	Record(Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event) error

func (f SinkFunc) Record(e Event) error { return f(e) }

// Log is a single day's event log. It is not safe for concurrent use; the
// controller is its only writer.
type Log struct {
	w       io.Writer
	closer  io.Closer
	console io.Writer
	clock   clock.Clock
	sinks   []Sink
	logger  *slog.Logger
}

// Option configures a Log.
type Option func(*Log)

// WithConsole echoes every event to w.
func WithConsole(w io.Writer) Option {
	return func(l *Log) { l.console = w }
}

// WithSink adds a sink.
func WithSink(s Sink) Option {
	return func(l *Log) {
		if s != nil {
			l.sinks = append(l.sinks, s)
		}
	}
}

// WithLogger sets the structured logger used for sink failures.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) { l.logger = logger }
}

// New returns a Log writing to w.
func New(w io.Writer, clk clock.Clock, opts ...Option) *Log {
	l := &Log{w: w, clock: clk}
	if c, ok := w.(io.Closer); ok {
		l.closer = c
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// Open opens path for appending, creating it if needed.
func Open(path string, clk clock.Clock, opts ...Option) (*Log, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	return New(f, clk, opts...), nil
}

// Name returns the file name of the underlying file, if any.
func (l *Log) Name() string {
	if f, ok := l.w.(*os.File); ok {
		return f.Name()
	}
	return ""
}

// Write timestamps and records one event.
func (l *Log) Write(tag uint64, label string) error {
	ev := Event{Tag: tag, At: l.clock.Now(), Label: label}
	if _, err := io.WriteString(l.w, FormatLine(ev)); err != nil {
		return fmt.Errorf("write event %q: %w", label, err)
	}
	if l.console != nil {
		if _, err := io.WriteString(l.console, FormatConsole(ev)); err != nil {
			l.logger.Debug("console echo failed", "label", label, "error", err)
		}
	}
	for _, s := range l.sinks {
		if err := s.Record(ev); err != nil {
			l.logger.Warn("event sink failed", "label", label, "error", err)
		}
	}
	return nil
}

// Close closes the underlying file, if Log owns one.
func (l *Log) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// FormatLine renders e as a log file line.
func FormatLine(e Event) string {
	return fmt.Sprintf("%013d\t%.2f\t%s\n", e.Tag, epochSeconds(e.At), e.Label)
}

// FormatConsole renders e as a console line, at whole-second resolution in
// the event's own location.
func FormatConsole(e Event) string {
	return fmt.Sprintf("%013d\t%s\t%s\n", e.Tag, e.At.Truncate(time.Second).Format(ConsoleTimeFormat), e.Label)
}

// ParseLine parses a log file line. The returned time is in UTC.
func ParseLine(line string) (Event, error) {
	line = strings.TrimSuffix(line, "\n")
	fields := strings.SplitN(line, "\t", 3)
	if len(fields) != 3 || len(fields[0]) != 13 {
		return Event{}, fmt.Errorf("%w: %q", ErrMalformedLine, line)
	}
	tag, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return Event{}, fmt.Errorf("%w: tag %q", ErrMalformedLine, fields[0])
	}
	secs, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return Event{}, fmt.Errorf("%w: time %q", ErrMalformedLine, fields[1])
	}
	whole, frac := math.Modf(secs)
	at := time.Unix(int64(whole), int64(math.Round(frac*100))*int64(10*time.Millisecond)).UTC()
	return Event{Tag: tag, At: at, Label: fields[2]}, nil
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixMilli()) / 1000
}
