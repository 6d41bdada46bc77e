package timing

import "math"

// Reference anchors a known beat position to a known absolute sample position
// under one Context, and projects any other beat or sample through that
// anchor. References are replaced, never mutated: playback start and every
// tempo or sample-rate change build a fresh one.
type Reference struct {
	AnchorBeat   float64
	AnchorSample int64
	Context
}

// NewReference pairs a beat with an absolute sample position under ctx.
func NewReference(anchorBeat float64, anchorSample int64, ctx Context) Reference {
	return Reference{AnchorBeat: anchorBeat, AnchorSample: anchorSample, Context: ctx}
}

// SampleForBeat projects a beat to an absolute sample time. Fractional sample
// positions round to nearest with ties to even, so repeated calls with the
// same input are bit-identical - live playback and offline rendering agree.
func (r Reference) SampleForBeat(beat float64) int64 {
	return r.AnchorSample + int64(math.RoundToEven((beat-r.AnchorBeat)*r.SamplesPerBeat()))
}

// BeatForSample projects an absolute sample time back to a beat position.
func (r Reference) BeatForSample(sample int64) float64 {
	return r.AnchorBeat + float64(sample-r.AnchorSample)*r.BeatsPerSample()
}
