package timing

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidParameter is returned when a context is constructed with a
// non-positive tempo or sample rate.
var ErrInvalidParameter = errors.New("invalid parameter")

// TimeSignature describes bar structure: beats per bar over the beat unit.
type TimeSignature struct {
	BeatsPerBar uint8
	BeatUnit    uint8
}

// CommonTime is the 4/4 default.
var CommonTime = TimeSignature{BeatsPerBar: 4, BeatUnit: 4}

func (ts TimeSignature) String() string {
	return fmt.Sprintf("%d/%d", ts.BeatsPerBar, ts.BeatUnit)
}

// Context is the immutable timing model: tempo, sample rate, time signature
// and the pure beat/sample arithmetic derived from them. It is a plain value
// with no hidden state - copy it freely across goroutines. Changing tempo or
// sample rate means building a new Context, never mutating one.
type Context struct {
	SampleRate float64 // samples per second
	Tempo      float64 // beats per minute
	Sig        TimeSignature
}

// NewContext validates and builds a Context. Tempo and sample rate must be
// positive finite numbers; a zero time signature falls back to 4/4.
func NewContext(sampleRate, tempo float64, sig TimeSignature) (Context, error) {
	if math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) || sampleRate <= 0 {
		return Context{}, fmt.Errorf("%w: sample rate %v", ErrInvalidParameter, sampleRate)
	}
	if math.IsNaN(tempo) || math.IsInf(tempo, 0) || tempo <= 0 {
		return Context{}, fmt.Errorf("%w: tempo %v", ErrInvalidParameter, tempo)
	}
	if sig.BeatsPerBar == 0 || sig.BeatUnit == 0 {
		sig = CommonTime
	}
	return Context{SampleRate: sampleRate, Tempo: tempo, Sig: sig}, nil
}

// SamplesPerBeat is the exact sample duration of one beat at this tempo.
// Deterministic: the same tempo and sample rate always give the same value.
func (c Context) SamplesPerBeat() float64 {
	return (60.0 / c.Tempo) * c.SampleRate
}

// BeatsPerSample is the reciprocal of SamplesPerBeat.
func (c Context) BeatsPerSample() float64 {
	return c.Tempo / (60.0 * c.SampleRate)
}

// BarBeat decomposes an absolute beat position into a zero-based bar number
// and the beat offset within that bar.
func (c Context) BarBeat(beat float64) (bar int, beatInBar float64) {
	per := float64(c.Sig.BeatsPerBar)
	b := math.Floor(beat / per)
	return int(b), beat - b*per
}

// WithTempo derives a new Context at a different tempo.
func (c Context) WithTempo(tempo float64) (Context, error) {
	return NewContext(c.SampleRate, tempo, c.Sig)
}

// WithSampleRate derives a new Context at a different sample rate.
func (c Context) WithSampleRate(sampleRate float64) (Context, error) {
	return NewContext(sampleRate, c.Tempo, c.Sig)
}

func (c Context) String() string {
	return fmt.Sprintf("%.2fbpm @ %.0fHz %s", c.Tempo, c.SampleRate, c.Sig)
}
