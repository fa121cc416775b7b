package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/headfix/internal/hw"
)

var start = time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)

func TestIO_LevelFollowsSpans(t *testing.T) {
	r := NewRig(start)
	r.IO.Drive(PresencePin, r.At(time.Second), r.At(2*time.Second))

	l, err := r.IO.Read(PresencePin)
	require.NoError(t, err)
	assert.Equal(t, hw.Low, l)

	r.Clock.Set(r.At(time.Second))
	l, _ = r.IO.Read(PresencePin)
	assert.Equal(t, hw.High, l)

	r.Clock.Set(r.At(2 * time.Second))
	l, _ = r.IO.Read(PresencePin)
	assert.Equal(t, hw.Low, l, "span end is exclusive")
}

func TestIO_WaitForEdgeJumpsToTransition(t *testing.T) {
	r := NewRig(start)
	r.IO.Drive(ContactPin, r.At(30*time.Millisecond), r.At(time.Second))

	fired, err := r.IO.WaitForEdge(ContactPin, hw.Rising, 50*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, fired)
	assert.Equal(t, r.At(30*time.Millisecond), r.Clock.Now())

	fired, _ = r.IO.WaitForEdge(ContactPin, hw.Rising, 50*time.Millisecond)
	assert.False(t, fired)
	assert.Equal(t, r.At(80*time.Millisecond), r.Clock.Now())

	fired, _ = r.IO.WaitForEdge(ContactPin, hw.Falling, time.Hour)
	assert.True(t, fired)
	assert.Equal(t, r.At(time.Second), r.Clock.Now())
}

func TestIO_AdjacentSpansHaveNoEdge(t *testing.T) {
	r := NewRig(start)
	r.IO.Drive(ContactPin, r.At(0), r.At(time.Second))
	r.IO.Drive(ContactPin, r.At(time.Second), r.At(2*time.Second))

	fired, _ := r.IO.WaitForEdge(ContactPin, hw.Falling, 1500*time.Millisecond)
	assert.False(t, fired)
}

func TestIO_WritesRequireOutputDirection(t *testing.T) {
	r := NewRig(start)
	assert.Error(t, r.IO.Write(ClampPin, hw.High))

	require.NoError(t, r.IO.SetDirection(ClampPin, hw.Output))
	require.NoError(t, r.IO.Write(ClampPin, hw.High))
	assert.Equal(t, hw.High, r.IO.Output(ClampPin))

	acts := r.Trace.Filter(KindWrite)
	require.Len(t, acts, 1)
	assert.Equal(t, "clamp", acts[0].Target)
	assert.Equal(t, "high", acts[0].Value)
}

func TestIO_StopAtFiresOnce(t *testing.T) {
	r := NewRig(start)
	calls := 0
	r.IO.StopAt(r.At(100*time.Millisecond), func() { calls++ })

	r.IO.WaitForEdge(PresencePin, hw.Rising, 50*time.Millisecond)
	assert.Equal(t, 0, calls)
	r.IO.WaitForEdge(PresencePin, hw.Rising, 50*time.Millisecond)
	r.IO.WaitForEdge(PresencePin, hw.Rising, 50*time.Millisecond)
	assert.Equal(t, 1, calls)
}

func TestTags_ReadsPlacedTag(t *testing.T) {
	r := NewRig(start)
	r.AddVisit(Visit{Tag: 42, Arrive: time.Second, Leave: 2 * time.Second})
	r.AddVisit(Visit{Tag: 7, Arrive: 3 * time.Second, Leave: 4 * time.Second, BadTag: true})

	_, err := r.Tags.ReadTag()
	assert.ErrorIs(t, err, ErrNoTag)

	r.Clock.Set(r.At(time.Second))
	tag, err := r.Tags.ReadTag()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), tag)

	r.Clock.Set(r.At(3 * time.Second))
	_, err = r.Tags.ReadTag()
	assert.ErrorIs(t, err, ErrUnreadable)
}

func TestCamera_RecordsStartAndStop(t *testing.T) {
	r := NewRig(start)
	require.NoError(t, r.Camera.StartRecording("/v/a.h264"))
	assert.Error(t, r.Camera.StartRecording("/v/b.h264"))
	require.NoError(t, r.Camera.StopRecording())
	require.NoError(t, r.Camera.StopRecording())

	assert.False(t, r.Camera.Recording())
	assert.Equal(t, []string{"/v/a.h264"}, r.Camera.Videos())
	assert.Len(t, r.Trace.Filter(KindCameraStart, KindCameraStop), 2)
}
