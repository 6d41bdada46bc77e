package scheduler

import (
	"math"

	"go-pulse/debug"
	"go-pulse/midi"
	"go-pulse/timing"
)

// Tempo changes closer than this (in BPM) are treated as float jitter and
// skipped, so automation ramps sampled at high rate don't trigger redundant
// reconciliation passes.
const tempoTolerance = 1e-6

// OnTransportStart anchors the reference at atBeat and the clock's current
// sample position, seeks every track cursor to the first event at or after
// atBeat, and fills the lookahead window. No-op while already playing.
func (s *Scheduler) OnTransportStart(atBeat float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playing {
		return
	}
	now := s.clock.NowSamples()
	s.ref = timing.NewReference(atBeat, now, s.ref.Context)
	for i, tr := range s.tracks {
		s.cursors[i] = trackCursor{
			note:    tr.firstNoteAt(atBeat),
			control: tr.firstControlAt(atBeat),
		}
	}
	s.pendingOffs = s.pendingOffs[:0]
	s.windowHighEdge = atBeat
	s.playing = true
	debug.Log("transport", "start at beat %.3f sample %d (%s)", atBeat, now, s.ref.Context)
	s.fill(now)
}

// OnTransportStop force-releases everything sounding and freezes the
// playhead where it is. A degenerate tempo change: same flush, no
// re-scheduling step.
func (s *Scheduler) OnTransportStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.playing {
		return
	}
	now := s.clock.NowSamples()
	cur := s.ref.BeatForSample(now)
	s.forceReleaseActive(cur, now)
	s.allSoundOff(cur, now)
	s.pendingOffs = s.pendingOffs[:0]
	s.ref = timing.NewReference(cur, now, s.ref.Context)
	s.windowHighEdge = cur
	s.playing = false
	debug.Log("transport", "stop at beat %.3f", cur)
	s.updateGauges(cur)
}

// OnTempoChange runs the tempo reconciliation protocol. The hardware queue
// cannot withdraw what it already holds, so stale events are shadowed by
// immediate releases and the window is rebuilt under the new reference.
// An invalid tempo is rejected and the previous reference kept.
func (s *Scheduler) OnTempoChange(newTempo float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if math.Abs(newTempo-s.ref.Tempo) < tempoTolerance {
		return nil
	}
	ctx, err := s.ref.WithTempo(newTempo)
	if err != nil {
		return err
	}
	debug.Log("tempo", "%.3f -> %.3f bpm", s.ref.Tempo, newTempo)
	s.reanchor(ctx)
	return nil
}

// OnSampleRateChange rebuilds the context at a new sample rate and runs the
// same reconciliation as a tempo change. If the shared clock is rate-aware
// it is switched first so "now" stays continuous.
func (s *Scheduler) OnSampleRateChange(sampleRate float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if math.Abs(sampleRate-s.ref.SampleRate) < tempoTolerance {
		return nil
	}
	ctx, err := s.ref.WithSampleRate(sampleRate)
	if err != nil {
		return err
	}
	if rc, ok := s.clock.(interface{ SetRate(float64) }); ok {
		rc.SetRate(sampleRate)
	}
	debug.Log("tempo", "sample rate -> %.0f Hz", sampleRate)
	s.reanchor(ctx)
	return nil
}

// OnTimeSignatureChange swaps the signature in place. Bar structure doesn't
// affect beat/sample math, so the anchors carry over and nothing is flushed.
func (s *Scheduler) OnTimeSignatureChange(sig timing.TimeSignature) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, err := timing.NewContext(s.ref.SampleRate, s.ref.Tempo, sig)
	if err != nil {
		return err
	}
	s.ref = timing.NewReference(s.ref.AnchorBeat, s.ref.AnchorSample, ctx)
	return nil
}

// reanchor is the reconciliation protocol, serialized with Tick by mu:
//
//  1. capture the playhead through the still-valid old reference
//  2. force an immediate off for every sounding note
//  3. immediate all-sound-off per channel, covering notes we don't track
//  4. discard stale window bookkeeping (pending releases, window edge);
//     forward-only cursors keep already-submitted note-ons from repeating
//  5. re-anchor a fresh reference at (playhead, now) under the new context
//  6. repopulate the window immediately under the new reference
//
// Bounded work: proportional to the active set plus one window fill, cheap
// enough to run many times per second during tempo automation. Caller
// holds mu.
func (s *Scheduler) reanchor(ctx timing.Context) {
	now := s.clock.NowSamples()
	cur := s.currentBeat(now)
	if s.playing {
		s.forceReleaseActive(cur, now)
		s.allSoundOff(cur, now)
	}
	s.pendingOffs = s.pendingOffs[:0]
	s.ref = timing.NewReference(cur, now, ctx)
	s.windowHighEdge = cur
	s.mets.RecordTempoChange()
	if s.playing {
		s.fill(now)
	}
}

// forceReleaseActive sends an immediate note-off for every entry in the
// active set and empties it. Caller holds mu.
func (s *Scheduler) forceReleaseActive(beat float64, now int64) {
	n := len(s.active)
	for k, a := range s.active {
		ev := midi.Event{
			Kind:       midi.KindNoteOff,
			Track:      k.track,
			Channel:    a.channel,
			Key:        k.key,
			Beat:       beat,
			SampleTime: now,
		}
		if err := s.queue.SubmitNow(ev); err != nil {
			s.mets.RecordDropped()
		} else {
			s.mets.RecordSubmitted(ev.Kind.String())
		}
	}
	clear(s.active)
	if n > 0 {
		s.mets.RecordForcedReleases(n)
	}
}

// allSoundOff silences each track channel immediately: second line of
// defense for anything sounding that the active set never saw. Caller
// holds mu.
func (s *Scheduler) allSoundOff(beat float64, now int64) {
	for _, ch := range s.channels {
		ev := midi.Event{
			Kind:       midi.KindAllSoundOff,
			Channel:    ch,
			Beat:       beat,
			SampleTime: now,
		}
		if err := s.queue.SubmitNow(ev); err != nil {
			s.mets.RecordDropped()
		} else {
			s.mets.RecordSubmitted(ev.Kind.String())
		}
	}
}
