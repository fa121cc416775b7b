package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"strconv"

	"github.com/roach88/headfix/internal/archive"
	"github.com/roach88/headfix/internal/clock"
	"github.com/roach88/headfix/internal/eventlog"
	"github.com/roach88/headfix/internal/subject"
)

const (
	textDir  = "TextFiles"
	videoDir = "Videos"
)

// Owner is the account that is handed ownership of created files.
type Owner struct {
	UID int
	GID int
}

// LookupOwner resolves a user name to its uid and primary gid.
func LookupOwner(name string) (*Owner, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return nil, fmt.Errorf("look up data owner: %w", err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return nil, fmt.Errorf("data owner %s: uid %q: %w", name, u.Uid, err)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return nil, fmt.Errorf("data owner %s: gid %q: %w", name, u.Gid, err)
	}
	return &Owner{UID: uid, GID: gid}, nil
}

// Layout names the files of a cage's days.
type Layout struct {
	DataPath string
	CageID   string
	Owner    *Owner
}

// DayDir returns <DataPath>/<date>/<CageID>.
func (l Layout) DayDir(date string) string {
	return filepath.Join(l.DataPath, date, l.CageID)
}

// LogPath returns the event log path for date.
func (l Layout) LogPath(date string) string {
	return filepath.Join(l.DayDir(date), textDir, "headFix_"+l.CageID+"_"+date+".txt")
}

// StatsPath returns the statistics file path for date.
func (l Layout) StatsPath(date string) string {
	return filepath.Join(l.DayDir(date), textDir, "quickStats_"+l.CageID+"_"+date+".txt")
}

// Opener opens days. Archive and Sinks are optional.
type Opener struct {
	Layout  Layout
	Clock   clock.Clock
	Days    Clock
	Console io.Writer
	Archive *archive.Archive
	Sinks   []eventlog.Sink
	Logger  *slog.Logger
}

// Day holds everything scoped to one day. The controller is its only user.
type Day struct {
	Date     string
	Dir      string
	Registry *subject.Registry
	Log      *eventlog.Log

	layout    Layout
	stats     *os.File
	archive   *archive.Archive
	sessionID string
	clock     clock.Clock
	logger    *slog.Logger
}

// Open creates the folders for the current date and opens its files. An
// existing statistics file is reloaded so counters continue where a
// previous run stopped; the event log is appended to.
func (o *Opener) Open(ctx context.Context) (*Day, error) {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := o.Clock.Now()
	date := o.Days.DateString(now)
	d := &Day{
		Date:    date,
		Dir:     o.Layout.DayDir(date),
		layout:  o.Layout,
		archive: o.Archive,
		clock:   o.Clock,
		logger:  logger,
	}

	for _, dir := range []string{d.Dir, filepath.Join(d.Dir, textDir), filepath.Join(d.Dir, videoDir)} {
		if err := os.MkdirAll(dir, 0o777); err != nil {
			return nil, fmt.Errorf("create day folder: %w", err)
		}
		if err := d.Own(dir); err != nil {
			return nil, err
		}
	}

	if err := d.openStats(); err != nil {
		return nil, err
	}

	sinks := append([]eventlog.Sink(nil), o.Sinks...)
	if o.Archive != nil {
		id, err := o.Archive.BeginSession(ctx, o.Layout.CageID, date, now)
		if err != nil {
			d.stats.Close()
			return nil, err
		}
		d.sessionID = id
		sinks = append(sinks, o.Archive.Sink(id))
	}

	opts := []eventlog.Option{eventlog.WithLogger(logger)}
	if o.Console != nil {
		opts = append(opts, eventlog.WithConsole(o.Console))
	}
	for _, s := range sinks {
		opts = append(opts, eventlog.WithSink(s))
	}
	logPath := o.Layout.LogPath(date)
	log, err := eventlog.Open(logPath, o.Clock, opts...)
	if err != nil {
		d.stats.Close()
		return nil, err
	}
	d.Log = log
	if err := d.Own(logPath); err != nil {
		d.closeFiles()
		return nil, err
	}
	if err := d.Log.Write(eventlog.NoTag, eventlog.SessionStart); err != nil {
		d.closeFiles()
		return nil, err
	}

	logger.Info("day opened", "date", date, "dir", d.Dir, "subjects", d.Registry.Len())
	return d, nil
}

func (d *Day) openStats() error {
	path := d.layout.StatsPath(d.Date)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	switch {
	case err == nil:
		reg, rerr := subject.ReadStats(f)
		if rerr != nil {
			f.Close()
			return fmt.Errorf("load %s: %w", path, rerr)
		}
		if _, err := f.Seek(0, io.SeekEnd); err != nil {
			f.Close()
			return fmt.Errorf("seek stats end: %w", err)
		}
		d.stats, d.Registry = f, reg
		return nil
	case errors.Is(err, os.ErrNotExist):
		f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			return fmt.Errorf("create stats file: %w", err)
		}
		if err := subject.WriteHeader(f); err != nil {
			f.Close()
			return err
		}
		if err := d.Own(path); err != nil {
			f.Close()
			return err
		}
		d.stats, d.Registry = f, subject.NewRegistry()
		return nil
	default:
		return fmt.Errorf("open stats file: %w", err)
	}
}

// StatsPath returns the path of the day's statistics file.
func (d *Day) StatsPath() string { return d.stats.Name() }

// SessionID returns the archive session of the day, or "" without archive.
func (d *Day) SessionID() string { return d.sessionID }

// AddSubject registers tag and appends its zeroed record to the stats file.
func (d *Day) AddSubject(tag uint64) (*subject.Subject, error) {
	s, err := d.Registry.Register(tag)
	if err != nil {
		return nil, err
	}
	if err := subject.WriteRecord(d.stats, s); err != nil {
		return nil, err
	}
	return s, nil
}

// SaveSubject rewrites s's record in place.
func (d *Day) SaveSubject(s *subject.Subject) error {
	return subject.WriteRecord(d.stats, s)
}

// VideoPath returns where a trial video named name is written.
func (d *Day) VideoPath(name string) string {
	return filepath.Join(d.Dir, videoDir, "M"+name)
}

// Own hands path to the configured data owner. Without an owner it does
// nothing.
func (d *Day) Own(path string) error {
	o := d.layout.Owner
	if o == nil {
		return nil
	}
	if err := os.Chown(path, o.UID, o.GID); err != nil {
		return fmt.Errorf("chown %s: %w", path, err)
	}
	return nil
}

// Close logs SeshEnd and releases the day's files. The day must not be used
// afterwards.
func (d *Day) Close() error {
	errs := []error{d.Log.Write(eventlog.NoTag, eventlog.SessionEnd)}
	if d.archive != nil && d.sessionID != "" {
		errs = append(errs, d.archive.EndSession(context.Background(), d.sessionID, d.clock.Now()))
	}
	errs = append(errs, d.closeFiles())
	return errors.Join(errs...)
}

func (d *Day) closeFiles() error {
	var errs []error
	if d.Log != nil {
		errs = append(errs, d.Log.Close())
	}
	errs = append(errs, d.stats.Close())
	return errors.Join(errs...)
}
