package timing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustContext(t *testing.T, rate, tempo float64) Context {
	t.Helper()
	ctx, err := NewContext(rate, tempo, CommonTime)
	require.NoError(t, err)
	return ctx
}

func TestSampleForBeat(t *testing.T) {
	ref := NewReference(0, 0, mustContext(t, 44100, 120))

	assert.Equal(t, int64(0), ref.SampleForBeat(0))
	assert.Equal(t, int64(22050), ref.SampleForBeat(1))
	assert.Equal(t, int64(88200), ref.SampleForBeat(4))
	assert.Equal(t, int64(-22050), ref.SampleForBeat(-1))
}

func TestNonZeroAnchor(t *testing.T) {
	ref := NewReference(4, 1_000_000, mustContext(t, 48000, 120))

	assert.Equal(t, int64(1_000_000), ref.SampleForBeat(4))
	assert.Equal(t, int64(1_000_000+24000), ref.SampleForBeat(5))
	assert.InDelta(t, 4.0, ref.BeatForSample(1_000_000), 1e-12)
}

func TestRoundTripLaw(t *testing.T) {
	// sampleTime(beat(s)) recovers s within one sample, across tempos,
	// rates and anchors.
	refs := []Reference{
		NewReference(0, 0, mustContext(t, 44100, 120)),
		NewReference(16.25, 3_456_789, mustContext(t, 48000, 93.7)),
		NewReference(-3, 12345, mustContext(t, 96000, 201.5)),
	}
	for _, ref := range refs {
		for s := int64(0); s < 2_000_000; s += 48611 {
			got := ref.SampleForBeat(ref.BeatForSample(s))
			assert.InDelta(t, float64(s), float64(got), 1.0, "ref %v sample %d", ref.Context, s)
		}
	}
}

func TestRoundingIsDeterministic(t *testing.T) {
	ref := NewReference(0, 0, mustContext(t, 44100, 131.07))
	for _, beat := range []float64{0.333, 1.5, 7.999, 123.456} {
		a := ref.SampleForBeat(beat)
		b := ref.SampleForBeat(beat)
		assert.Equal(t, a, b)
	}
}

func TestTiesRoundToEven(t *testing.T) {
	// 100 samples per beat at this tempo, so beat 0.005 lands exactly on
	// 0.5 samples: ties-to-even picks 0, and 0.015 -> 1.5 picks 2.
	ctx, err := NewContext(100, 60, CommonTime)
	require.NoError(t, err)
	ref := NewReference(0, 0, ctx)

	assert.Equal(t, int64(0), ref.SampleForBeat(0.005))
	assert.Equal(t, int64(2), ref.SampleForBeat(0.015))
}

func TestReplacementPreservesProjection(t *testing.T) {
	// Re-anchoring at the current position under a new tempo: the anchor
	// projects identically, future beats use the new tempo only.
	old := NewReference(0, 0, mustContext(t, 48000, 120))
	nowSample := int64(96000) // beat 4 at 120 BPM
	curBeat := old.BeatForSample(nowSample)

	newCtx := mustContext(t, 48000, 140)
	next := NewReference(curBeat, nowSample, newCtx)

	assert.Equal(t, nowSample, next.SampleForBeat(curBeat))
	wantDelta := int64(0.5*newCtx.SamplesPerBeat() + 0.5)
	assert.InDelta(t, float64(nowSample+wantDelta), float64(next.SampleForBeat(curBeat+0.5)), 1.0)
}
