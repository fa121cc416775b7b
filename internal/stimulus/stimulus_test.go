package stimulus

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/roach88/headfix/internal/eventlog"
	"github.com/roach88/headfix/internal/reward"
	"github.com/roach88/headfix/internal/subject"
	"github.com/roach88/headfix/internal/testutil"
)

type nopValve struct{ opens int }

func (v *nopValve) SetValve(open bool) error {
	if open {
		v.opens++
	}
	return nil
}

func node(t *testing.T, src string) *yaml.Node {
	t.Helper()
	var n yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(src), &n))
	require.Len(t, n.Content, 1)
	return n.Content[0]
}

type fixture struct {
	clk    *testutil.ManualClock
	valve  *nopValve
	ledger *reward.Ledger
	buf    *bytes.Buffer
	deps   Deps
	subj   *subject.Subject
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := testutil.NewManualClock(time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC))
	v := &nopValve{}
	ledger := reward.NewLedger(reward.DefaultDuration, v, clk)
	ledger.Define("task", 50*time.Millisecond)
	buf := &bytes.Buffer{}
	reg := subject.NewRegistry()
	s, err := reg.Register(1234567890123)
	require.NoError(t, err)
	return &fixture{
		clk:    clk,
		valve:  v,
		ledger: ledger,
		buf:    buf,
		deps:   Deps{Ledger: ledger, Clock: clk, Log: eventlog.New(buf, clk)},
		subj:   s,
	}
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"hold", "rewards"}, Names())
}

func TestNew_Unknown(t *testing.T) {
	_, err := New("opto", nil, Deps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hold, rewards")
}

func TestRewards_RunsConfiguredRewards(t *testing.T) {
	f := newFixture(t)
	st, err := New("rewards", node(t, "count: 3\ninterval: 2\n"), f.deps)
	require.NoError(t, err)

	id, err := st.Configure(f.subj)
	require.NoError(t, err)
	assert.Equal(t, "rewards", id)

	start := f.clk.Now()
	out, err := st.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Outcome{Rewards: 3}, out)
	assert.Equal(t, 3, f.valve.opens)
	assert.Equal(t, 3, f.ledger.Count("task"))
	assert.Equal(t, 3*50*time.Millisecond+2*2*time.Second, f.clk.Now().Sub(start))

	require.NoError(t, st.LogFile())
	assert.True(t, strings.HasSuffix(f.buf.String(), "\treward x3\n"))
	assert.True(t, strings.HasPrefix(f.buf.String(), "1234567890123\t"))
}

func TestRewards_DefaultsAndNextDay(t *testing.T) {
	f := newFixture(t)
	st, err := New("rewards", nil, f.deps)
	require.NoError(t, err)
	_, err = st.Configure(f.subj)
	require.NoError(t, err)

	out, err := st.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, out.Rewards)

	var next bytes.Buffer
	st.NextDay(eventlog.New(&next, f.clk))
	require.NoError(t, st.LogFile())
	assert.NotEmpty(t, next.String())
	assert.Empty(t, f.buf.String())
}

func TestRewards_RejectsUnknownField(t *testing.T) {
	_, err := New("rewards", node(t, "count: 2\nrewards: 4\n"), Deps{})
	assert.Error(t, err)
}

func TestRewards_RejectsNegativeCount(t *testing.T) {
	assert.Error(t, Validate("rewards", node(t, "count: -1\n")))
}

func TestRewards_StopsOnCancelledContext(t *testing.T) {
	f := newFixture(t)
	st, err := New("rewards", node(t, "count: 3\n"), f.deps)
	require.NoError(t, err)
	_, err = st.Configure(f.subj)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := st.Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, out.Rewards)
}

func TestHold(t *testing.T) {
	f := newFixture(t)
	st, err := New("hold", node(t, "duration: 2.5\nlabel: long hold\n"), f.deps)
	require.NoError(t, err)

	id, err := st.Configure(f.subj)
	require.NoError(t, err)
	assert.Equal(t, "long-hold", id)

	start := f.clk.Now()
	out, err := st.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Outcome{}, out)
	assert.Equal(t, 2500*time.Millisecond, f.clk.Now().Sub(start))
	assert.Zero(t, f.valve.opens)
	assert.NoError(t, st.LogFile())
	assert.Empty(t, f.buf.String())
}

func TestHold_RejectsZeroDuration(t *testing.T) {
	assert.Error(t, Validate("hold", node(t, "duration: 0\n")))
}

func TestIdentifier(t *testing.T) {
	tests := map[string]string{
		"rewards":       "rewards",
		"  two words ":  "two-words",
		"a/b\\c_d":      "a-b-c-d",
		"café":    "café",
		"tab\there":     "tab-here",
		"bell\x07char":  "bellchar",
	}
	for in, want := range tests {
		assert.Equal(t, want, Identifier(in), "input %q", in)
	}
}
