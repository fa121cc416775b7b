package session

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/headfix/internal/archive"
	"github.com/roach88/headfix/internal/eventlog"
	"github.com/roach88/headfix/internal/subject"
	"github.com/roach88/headfix/internal/testutil"
)

func newOpener(t *testing.T, start time.Time) (*Opener, *testutil.ManualClock) {
	t.Helper()
	clk := testutil.NewManualClock(start)
	return &Opener{
		Layout: Layout{DataPath: t.TempDir(), CageID: "cage1"},
		Clock:  clk,
		Days:   Clock{StartHour: 7, Location: time.UTC},
	}, clk
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func TestLayout_Paths(t *testing.T) {
	l := Layout{DataPath: "/data", CageID: "cage1"}

	assert.Equal(t, filepath.FromSlash("/data/20240305/cage1"), l.DayDir("20240305"))
	assert.Equal(t, filepath.FromSlash("/data/20240305/cage1/TextFiles/headFix_cage1_20240305.txt"), l.LogPath("20240305"))
	assert.Equal(t, filepath.FromSlash("/data/20240305/cage1/TextFiles/quickStats_cage1_20240305.txt"), l.StatsPath("20240305"))
}

func TestOpen_CreatesDayFiles(t *testing.T) {
	o, _ := newOpener(t, time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC))

	d, err := o.Open(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "20240305", d.Date)
	assert.DirExists(t, filepath.Join(d.Dir, "Videos"))
	assert.Equal(t, 0, d.Registry.Len())

	stats, err := os.ReadFile(d.StatsPath())
	require.NoError(t, err)
	assert.Equal(t, subject.Header, string(stats))

	require.NoError(t, d.Close())
	lines := readLines(t, o.Layout.LogPath("20240305"))
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], "\tSeshStart"))
	assert.True(t, strings.HasSuffix(lines[1], "\tSeshEnd"))
}

func TestOpen_ReloadsExistingDay(t *testing.T) {
	o, clk := newOpener(t, time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	d, err := o.Open(ctx)
	require.NoError(t, err)
	a, err := d.AddSubject(111)
	require.NoError(t, err)
	b, err := d.AddSubject(222)
	require.NoError(t, err)
	a.AddEntry()
	b.AddEntry()
	b.AddHeadFix()
	require.NoError(t, d.SaveSubject(a))
	require.NoError(t, d.SaveSubject(b))
	require.NoError(t, d.Close())

	clk.Advance(time.Hour)
	d, err = o.Open(ctx)
	require.NoError(t, err)
	defer d.Close()

	require.Equal(t, 2, d.Registry.Len())
	got, ok := d.Registry.Lookup(222)
	require.True(t, ok)
	assert.Equal(t, 1, got.Slot())
	assert.Equal(t, subject.Counts{Entries: 1, HeadFixes: 1}, got.Counts())

	// A third subject appends after the reloaded records.
	c, err := d.AddSubject(333)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Slot())
	info, err := os.Stat(d.StatsPath())
	require.NoError(t, err)
	assert.Equal(t, subject.RecordOffset(3), info.Size())

	lines := readLines(t, o.Layout.LogPath("20240305"))
	assert.Len(t, lines, 3, "second SeshStart appended to the same log")
}

func TestOpen_RejectsCorruptStats(t *testing.T) {
	o, _ := newOpener(t, time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC))
	dir := filepath.Dir(o.Layout.StatsPath("20240305"))
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(o.Layout.StatsPath("20240305"), []byte("garbage\n"), 0o644))

	_, err := o.Open(context.Background())

	assert.ErrorIs(t, err, subject.ErrMalformedStats)
}

func TestDay_RolloverLeavesOldStatsUntouched(t *testing.T) {
	o, clk := newOpener(t, time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	d1, err := o.Open(ctx)
	require.NoError(t, err)
	s, err := d1.AddSubject(42)
	require.NoError(t, err)
	s.AddEntry()
	require.NoError(t, d1.SaveSubject(s))
	oldStats := d1.StatsPath()
	require.NoError(t, d1.Close())
	before, err := os.ReadFile(oldStats)
	require.NoError(t, err)

	clk.Advance(24 * time.Hour)
	d2, err := o.Open(ctx)
	require.NoError(t, err)
	defer d2.Close()
	assert.Equal(t, "20240306", d2.Date)
	assert.Equal(t, 0, d2.Registry.Len())

	s2, err := d2.AddSubject(42)
	require.NoError(t, err)
	s2.AddEntry()
	s2.AddEntry()
	require.NoError(t, d2.SaveSubject(s2))

	after, err := os.ReadFile(oldStats)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestDay_VideoPath(t *testing.T) {
	o, _ := newOpener(t, time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC))
	d, err := o.Open(context.Background())
	require.NoError(t, err)
	defer d.Close()

	assert.Equal(t, filepath.Join(d.Dir, "Videos", "M42_rewards_1709629200.h264"), d.VideoPath("42_rewards_1709629200.h264"))
}

func TestOpen_ArchivesSession(t *testing.T) {
	ctx := context.Background()
	o, _ := newOpener(t, time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC))
	arc, err := archive.Open(filepath.Join(t.TempDir(), "archive.db"), archive.WithIDGenerator(archive.NewFixedGenerator("day-1")))
	require.NoError(t, err)
	defer arc.Close()
	o.Archive = arc

	d, err := o.Open(ctx)
	require.NoError(t, err)
	assert.Equal(t, "day-1", d.SessionID())
	require.NoError(t, d.Log.Write(42, eventlog.Entry))
	require.NoError(t, d.Close())

	counts, err := arc.LabelCounts(ctx, "day-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{eventlog.SessionStart: 1, eventlog.Entry: 1, eventlog.SessionEnd: 1}, counts)

	sessions, err := arc.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.False(t, sessions[0].EndedAt.IsZero())
}
