package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-pulse/midi"
	"go-pulse/timing"
)

// fakeClock is a manually advanced sample clock.
type fakeClock struct {
	now  int64
	rate float64
}

func (c *fakeClock) NowSamples() int64 { return c.now }

func (c *fakeClock) TimeAt(sample int64) time.Time {
	return time.Unix(0, int64(float64(sample)/c.rate*float64(time.Second)))
}

func (c *fakeClock) SetRate(rate float64) { c.rate = rate }

// submission records one queue call in order.
type submission struct {
	ev        midi.Event
	immediate bool
}

// fakeQueue records submissions and can simulate a full hardware queue.
type fakeQueue struct {
	log  []submission
	full bool
}

func (q *fakeQueue) Submit(ev midi.Event) error {
	if q.full {
		return midi.ErrQueueFull
	}
	q.log = append(q.log, submission{ev: ev})
	return nil
}

func (q *fakeQueue) SubmitNow(ev midi.Event) error {
	if q.full {
		return midi.ErrQueueFull
	}
	q.log = append(q.log, submission{ev: ev, immediate: true})
	return nil
}

func (q *fakeQueue) byKind(kind midi.Kind) []submission {
	var out []submission
	for _, s := range q.log {
		if s.ev.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

func (q *fakeQueue) onsForKey(key uint8) []submission {
	var out []submission
	for _, s := range q.byKind(midi.KindNoteOn) {
		if s.ev.Key == key {
			out = append(out, s)
		}
	}
	return out
}

const testRate = 44100.0

func testContext(t *testing.T, tempo float64) timing.Context {
	t.Helper()
	ctx, err := timing.NewContext(testRate, tempo, timing.CommonTime)
	require.NoError(t, err)
	return ctx
}

// newTestScheduler builds a stopped scheduler over one track with a huge
// wall-clock clamp so tests control the window purely in beats.
func newTestScheduler(t *testing.T, tempo, horizon float64, tracks ...*Track) (*Scheduler, *fakeQueue, *fakeClock) {
	t.Helper()
	q := &fakeQueue{}
	c := &fakeClock{rate: testRate}
	s := New(q, c, testContext(t, tempo), tracks, Options{
		HorizonBeats: horizon,
		MaxLookahead: time.Hour,
	})
	return s, q, c
}

// advanceBeats moves the clock forward by beats under the scheduler's
// current tempo and ticks once.
func advanceBeats(s *Scheduler, c *fakeClock, beats float64) {
	_, ref := s.Snapshot()
	c.now += int64(beats * ref.SamplesPerBeat())
	s.Tick()
}

func fourNotes() *Track {
	return &Track{
		Channel: 0,
		Notes: []Note{
			{Start: 0, Duration: 0.5, Key: 60, Velocity: 100},
			{Start: 1, Duration: 0.5, Key: 62, Velocity: 100},
			{Start: 2, Duration: 0.5, Key: 64, Velocity: 100},
			{Start: 3, Duration: 0.5, Key: 65, Velocity: 100},
		},
	}
}

func TestFillRespectsHorizon(t *testing.T) {
	s, q, _ := newTestScheduler(t, 120, 2, fourNotes())
	s.OnTransportStart(0)

	// Only beats inside [0, 2) are in flight.
	ons := q.byKind(midi.KindNoteOn)
	require.Len(t, ons, 2)
	assert.Equal(t, 0.0, ons[0].ev.Beat)
	assert.Equal(t, 1.0, ons[1].ev.Beat)
	for _, sub := range q.log {
		assert.Less(t, sub.ev.Beat, 2.0)
	}
}

func TestExactlyOnceAcrossTicks(t *testing.T) {
	s, q, c := newTestScheduler(t, 120, 2, fourNotes())
	s.OnTransportStart(0)

	for i := 0; i < 40; i++ {
		advanceBeats(s, c, 0.1)
	}

	for _, key := range []uint8{60, 62, 64, 65} {
		assert.Len(t, q.onsForKey(key), 1, "key %d", key)
	}
	// Every note got its release too, and nothing is left sounding.
	assert.Len(t, q.byKind(midi.KindNoteOff), 4)
	assert.Empty(t, s.active)
	assert.Empty(t, s.pendingOffs)
}

func TestSampleTimesMatchReference(t *testing.T) {
	s, q, _ := newTestScheduler(t, 120, 2, fourNotes())
	s.OnTransportStart(0)

	_, ref := s.Snapshot()
	for _, sub := range q.byKind(midi.KindNoteOn) {
		assert.Equal(t, ref.SampleForBeat(sub.ev.Beat), sub.ev.SampleTime)
	}
}

func TestNeverSubmitsIntoThePast(t *testing.T) {
	s, q, c := newTestScheduler(t, 120, 2, fourNotes())
	s.OnTransportStart(0)
	q.log = nil

	// Jump the clock a beat and a half ahead before the next tick: the
	// note at beat 2 is already late and must be clamped to now.
	c.now += int64(3.5 * 22050)
	s.Tick()

	for _, sub := range q.log {
		assert.GreaterOrEqual(t, sub.ev.SampleTime, c.now)
	}
}

func TestBoundedHorizonWallClamp(t *testing.T) {
	q := &fakeQueue{}
	c := &fakeClock{rate: testRate}
	// 30 BPM: one beat is two seconds. A 100ms wall clamp means only a
	// twentieth of a beat may be in flight no matter the beat horizon.
	s := New(q, c, testContext(t, 30), []*Track{fourNotes()}, Options{
		HorizonBeats: 8,
		MaxLookahead: 100 * time.Millisecond,
	})
	s.OnTransportStart(0)

	assert.LessOrEqual(t, s.windowHighEdge, 0.051)
	for _, sub := range q.log {
		assert.Less(t, sub.ev.Beat, 0.051)
	}
}

func TestTransportStartSeeksCursors(t *testing.T) {
	s, q, _ := newTestScheduler(t, 120, 4, fourNotes())
	s.OnTransportStart(2)

	ons := q.byKind(midi.KindNoteOn)
	require.Len(t, ons, 2)
	assert.Equal(t, 2.0, ons[0].ev.Beat)
	assert.Equal(t, 3.0, ons[1].ev.Beat)
}

func TestMutedTrackIsSilent(t *testing.T) {
	tr := fourNotes()
	tr.Muted = true
	s, q, c := newTestScheduler(t, 120, 2, tr)
	s.OnTransportStart(0)
	advanceBeats(s, c, 1)

	assert.Empty(t, q.log)
}

func TestControllerEvents(t *testing.T) {
	tr := &Track{
		Channel:  3,
		Controls: []Control{{Beat: 0.5, Controller: 7, Value: 90}},
	}
	s, q, _ := newTestScheduler(t, 120, 2, tr)
	s.OnTransportStart(0)

	ccs := q.byKind(midi.KindController)
	require.Len(t, ccs, 1)
	assert.Equal(t, uint8(7), ccs[0].ev.Key)
	assert.Equal(t, uint8(90), ccs[0].ev.Value)
	assert.Equal(t, uint8(3), ccs[0].ev.Channel)
}

func TestScenarioA_TempoChangeRetimesPendingNotes(t *testing.T) {
	// Notes at 4.5/5.0/5.5 laid out under a 120 BPM session; tempo moves
	// to 140 at beat 4.0 before they enter the window. Each must play
	// exactly once, timed with the 140 BPM samples-per-beat.
	tr := &Track{
		Channel: 0,
		Notes: []Note{
			{Start: 4.5, Duration: 0.25, Key: 60, Velocity: 100},
			{Start: 5.0, Duration: 0.25, Key: 62, Velocity: 100},
			{Start: 5.5, Duration: 0.25, Key: 64, Velocity: 100},
		},
	}
	s, q, c := newTestScheduler(t, 120, 0.25, tr)
	s.OnTransportStart(4.0)

	require.NoError(t, s.OnTempoChange(140))
	_, after := s.Snapshot()
	assert.Equal(t, 140.0, after.Tempo)

	for i := 0; i < 30; i++ {
		advanceBeats(s, c, 0.1)
	}

	for _, key := range []uint8{60, 62, 64} {
		ons := q.onsForKey(key)
		require.Len(t, ons, 1, "key %d", key)
		// Timed through the post-change reference: 140 BPM math from the
		// re-anchor point, not the 120 BPM value.
		assert.Equal(t, after.SampleForBeat(ons[0].ev.Beat), ons[0].ev.SampleTime, "key %d", key)
	}
}

func TestTempoChangeExactlyAtOnsetBeat(t *testing.T) {
	t.Run("not yet submitted", func(t *testing.T) {
		tr := &Track{Notes: []Note{{Start: 2, Duration: 0.5, Key: 60, Velocity: 100}}}
		s, q, c := newTestScheduler(t, 120, 0.5, tr)
		s.OnTransportStart(0)

		// The playhead lands exactly on the onset beat with the note still
		// outside the window: the reconciliation fill submits it once,
		// timed through the new reference.
		c.now = int64(2 * 22050)
		require.NoError(t, s.OnTempoChange(90))
		_, after := s.Snapshot()

		ons := q.onsForKey(60)
		require.Len(t, ons, 1)
		assert.Equal(t, after.SampleForBeat(2.0), ons[0].ev.SampleTime)
		assert.Equal(t, c.now, ons[0].ev.SampleTime)

		for i := 0; i < 20; i++ {
			advanceBeats(s, c, 0.1)
		}
		assert.Len(t, q.onsForKey(60), 1)
	})

	t.Run("already submitted", func(t *testing.T) {
		tr := &Track{Notes: []Note{{Start: 2, Duration: 8, Key: 60, Velocity: 100}}}
		s, q, c := newTestScheduler(t, 120, 4, tr)
		s.OnTransportStart(0)
		require.Len(t, q.onsForKey(60), 1)

		c.now = int64(2 * 22050)
		require.NoError(t, s.OnTempoChange(90))
		for i := 0; i < 20; i++ {
			advanceBeats(s, c, 0.1)
		}

		// The old submission is discarded from bookkeeping but never
		// re-sent: still exactly one note-on.
		assert.Len(t, q.onsForKey(60), 1)
	})
}

func TestScenarioB_RapidTempoChangesSustainedNote(t *testing.T) {
	tr := &Track{Notes: []Note{{Start: 0, Duration: 1000, Key: 48, Velocity: 100}}}
	s, q, c := newTestScheduler(t, 120, 2, tr)
	s.OnTransportStart(0)
	require.Len(t, q.onsForKey(48), 1)

	c.now += 100
	for i := 0; i < 100; i++ {
		tempo := 121.0
		if i%2 == 1 {
			tempo = 120.0
		}
		require.NoError(t, s.OnTempoChange(tempo))
		assert.Empty(t, s.active, "change %d", i)
		c.now += 10
	}

	// One on; one forced off from the first reconciliation; no leaks.
	assert.Len(t, q.onsForKey(48), 1)
	var offs []submission
	for _, sub := range q.byKind(midi.KindNoteOff) {
		if sub.ev.Key == 48 {
			offs = append(offs, sub)
		}
	}
	require.Len(t, offs, 1)
	assert.True(t, offs[0].immediate)
	assert.Empty(t, s.pendingOffs)
}

func TestReleaseOrderedBeforeRepopulation(t *testing.T) {
	tr := &Track{Notes: []Note{
		{Start: 0, Duration: 100, Key: 48, Velocity: 100},
		{Start: 1, Duration: 0.5, Key: 60, Velocity: 100},
	}}
	s, q, c := newTestScheduler(t, 120, 0.5, tr)
	s.OnTransportStart(0)
	q.log = nil

	samplesPerBeat := float64(22050)
	c.now = int64(0.75 * samplesPerBeat)
	require.NoError(t, s.OnTempoChange(140))

	// Forced release and all-sound-off land before any post-change
	// note-on reaches the queue.
	var sawOn bool
	var offIdx, asoIdx = -1, -1
	for i, sub := range q.log {
		switch sub.ev.Kind {
		case midi.KindNoteOff:
			if offIdx == -1 {
				offIdx = i
				assert.False(t, sawOn)
			}
		case midi.KindAllSoundOff:
			asoIdx = i
			assert.False(t, sawOn)
		case midi.KindNoteOn:
			sawOn = true
		}
	}
	require.NotEqual(t, -1, offIdx)
	require.NotEqual(t, -1, asoIdx)
}

func TestTempoChangeWhileStopped(t *testing.T) {
	s, q, _ := newTestScheduler(t, 120, 2, fourNotes())

	require.NoError(t, s.OnTempoChange(150))

	// Steps 2-3 are no-ops while stopped: nothing reaches the queue, but
	// the reference is already replaced for the next start.
	assert.Empty(t, q.log)
	assert.Equal(t, 150.0, s.Tempo())

	s.OnTransportStart(0)
	_, ref := s.Snapshot()
	assert.Equal(t, 150.0, ref.Tempo)
}

func TestSameTempoSkipsReconciliation(t *testing.T) {
	s, q, _ := newTestScheduler(t, 120, 2, fourNotes())
	s.OnTransportStart(0)
	_, before := s.Snapshot()
	logLen := len(q.log)

	require.NoError(t, s.OnTempoChange(120))
	require.NoError(t, s.OnTempoChange(120+1e-9))

	_, after := s.Snapshot()
	assert.Equal(t, before, after)
	assert.Len(t, q.log, logLen)
}

func TestInvalidTempoKeepsReference(t *testing.T) {
	s, _, _ := newTestScheduler(t, 120, 2, fourNotes())
	s.OnTransportStart(0)
	_, before := s.Snapshot()

	err := s.OnTempoChange(-10)
	require.ErrorIs(t, err, timing.ErrInvalidParameter)

	_, after := s.Snapshot()
	assert.Equal(t, before, after)
}

func TestTransportStopFlushesSound(t *testing.T) {
	tr := &Track{Notes: []Note{{Start: 0, Duration: 100, Key: 48, Velocity: 100}}}
	s, q, c := newTestScheduler(t, 120, 2, tr)
	s.OnTransportStart(0)
	q.log = nil

	c.now = 22050
	s.OnTransportStop()

	require.Len(t, q.byKind(midi.KindNoteOff), 1)
	require.Len(t, q.byKind(midi.KindAllSoundOff), 1)
	assert.True(t, q.log[0].immediate)
	assert.Empty(t, s.active)
	assert.False(t, s.Playing())

	// Playhead freezes where it stopped.
	beat := s.CurrentBeat()
	c.now += 500_000
	assert.Equal(t, beat, s.CurrentBeat())
}

func TestQueueFullDropsWithoutRetry(t *testing.T) {
	s, q, c := newTestScheduler(t, 120, 2, fourNotes())
	q.full = true
	s.OnTransportStart(0)
	assert.Empty(t, q.log)

	// Pressure clears, but dropped events are gone for good: only the
	// notes whose beats enter the window later are submitted.
	q.full = false
	advanceBeats(s, c, 0.1)
	assert.Empty(t, q.onsForKey(60))

	for i := 0; i < 40; i++ {
		advanceBeats(s, c, 0.1)
	}
	assert.Len(t, q.onsForKey(64), 1)
	assert.Len(t, q.onsForKey(65), 1)
}

func TestRetriggerForcesStaleRelease(t *testing.T) {
	// Same key twice, overlapping: the second on closes the first note,
	// and the first note's queued release is recognized as stale.
	tr := &Track{Notes: []Note{
		{Start: 0, Duration: 2, Key: 60, Velocity: 100},
		{Start: 1, Duration: 0.5, Key: 60, Velocity: 100},
	}}
	s, q, c := newTestScheduler(t, 120, 1.5, tr)
	s.OnTransportStart(0)

	for i := 0; i < 30; i++ {
		advanceBeats(s, c, 0.1)
	}

	assert.Len(t, q.onsForKey(60), 2)
	// One off closing the retriggered first note at beat 1, one off for
	// the second note at 1.5. The original release at beat 2 is stale.
	assert.Len(t, q.byKind(midi.KindNoteOff), 2)
	assert.Empty(t, s.active)
}

func TestSampleRateChangeReanchors(t *testing.T) {
	tr := &Track{Notes: []Note{{Start: 0, Duration: 100, Key: 48, Velocity: 100}}}
	s, q, c := newTestScheduler(t, 120, 2, tr)
	s.OnTransportStart(0)

	c.now = 11025
	require.NoError(t, s.OnSampleRateChange(88200))

	ctx, ref := s.Snapshot()
	assert.Equal(t, 88200.0, ctx.SampleRate)
	assert.Equal(t, 88200.0, c.rate) // shared clock switched too
	assert.Equal(t, testContext(t, 120).SamplesPerBeat()*2, ctx.SamplesPerBeat())
	assert.Equal(t, c.now, ref.AnchorSample)

	// The sustained note was force-released like any reconciliation.
	require.NotEmpty(t, q.byKind(midi.KindNoteOff))
	assert.Empty(t, s.active)
}

func TestTimeSignatureChangeKeepsAnchor(t *testing.T) {
	s, _, _ := newTestScheduler(t, 120, 2, fourNotes())
	s.OnTransportStart(0)
	_, before := s.Snapshot()

	require.NoError(t, s.OnTimeSignatureChange(timing.TimeSignature{BeatsPerBar: 3, BeatUnit: 4}))

	_, after := s.Snapshot()
	assert.Equal(t, before.AnchorBeat, after.AnchorBeat)
	assert.Equal(t, before.AnchorSample, after.AnchorSample)
	assert.Equal(t, uint8(3), after.Sig.BeatsPerBar)
}

func TestSnapshotIsConsistentPair(t *testing.T) {
	s, _, _ := newTestScheduler(t, 120, 2, fourNotes())
	s.OnTransportStart(0)
	require.NoError(t, s.OnTempoChange(133))

	ctx, ref := s.Snapshot()
	assert.Equal(t, ctx, ref.Context)
}
