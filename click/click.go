package click

import (
	"context"
	"math"
	"time"

	"go-pulse/midi"
	"go-pulse/timing"
)

// SnapshotProvider hands out the transport's current timing as one
// consistent pair. The generator never caches tempo or sample rate across
// ticks - it re-reads the snapshot every pass, so tempo changes take effect
// at the next click without any coordination.
type SnapshotProvider interface {
	Snapshot() (timing.Context, timing.Reference)
	Playing() bool
}

// Defaults follow General MIDI percussion: rimshot accent on the downbeat,
// side stick elsewhere, on channel 10 (zero-based 9).
const (
	DefaultChannel   = 9
	DefaultKey       = 37
	DefaultAccentKey = 76
	DefaultVelocity  = 80
	DefaultAccent    = 115
)

// Click length in wall time; short enough that percussion samples don't
// care about the off.
const clickLength = 30 * time.Millisecond

// Options tune the metronome voice. Zero values take the defaults.
type Options struct {
	Channel      uint8
	Key          uint8
	AccentKey    uint8
	Velocity     uint8
	Accent       uint8
	HorizonBeats float64
	MaxLookahead time.Duration
	TickInterval time.Duration
}

// Generator emits one click per integer beat through the playback queue,
// accenting bar starts. It keeps its own forward-only beat cursor so a
// click is submitted at most once, mirroring how the note scheduler's
// track cursors survive tempo changes.
type Generator struct {
	queue    midi.Queue
	clock    timing.SampleClock
	provider SnapshotProvider
	opts     Options

	running  bool
	nextBeat int64
}

// New builds a stopped generator. Tick or Run drives it.
func New(queue midi.Queue, clock timing.SampleClock, provider SnapshotProvider, opts Options) *Generator {
	if opts.Channel == 0 {
		opts.Channel = DefaultChannel
	}
	if opts.Key == 0 {
		opts.Key = DefaultKey
	}
	if opts.AccentKey == 0 {
		opts.AccentKey = DefaultAccentKey
	}
	if opts.Velocity == 0 {
		opts.Velocity = DefaultVelocity
	}
	if opts.Accent == 0 {
		opts.Accent = DefaultAccent
	}
	if opts.HorizonBeats <= 0 {
		opts.HorizonBeats = 2.0
	}
	if opts.MaxLookahead <= 0 {
		opts.MaxLookahead = 150 * time.Millisecond
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = 25 * time.Millisecond
	}
	return &Generator{queue: queue, clock: clock, provider: provider, opts: opts}
}

// Tick submits the clicks inside the lookahead window. Clicks already in
// flight when the tempo moves keep their old timing; the window is short
// enough that the drift is one click at most.
func (g *Generator) Tick() {
	if !g.provider.Playing() {
		g.running = false
		return
	}
	ctx, ref := g.provider.Snapshot()
	now := g.clock.NowSamples()
	cur := ref.BeatForSample(now)

	if !g.running {
		g.running = true
		g.nextBeat = int64(math.Ceil(cur))
	}

	target := cur + g.opts.HorizonBeats
	wallSamples := int64(g.opts.MaxLookahead.Seconds() * ctx.SampleRate)
	if wallEdge := ref.BeatForSample(now + wallSamples); wallEdge < target {
		target = wallEdge
	}

	offSamples := int64(clickLength.Seconds() * ctx.SampleRate)
	for float64(g.nextBeat) < target {
		beat := g.nextBeat
		g.nextBeat++
		if beat < 0 {
			continue
		}
		st := ref.SampleForBeat(float64(beat))
		if st < now {
			st = now
		}
		key, vel := g.opts.Key, g.opts.Velocity
		if _, inBar := ctx.BarBeat(float64(beat)); inBar == 0 {
			key, vel = g.opts.AccentKey, g.opts.Accent
		}
		on := midi.Event{
			Kind:       midi.KindNoteOn,
			Channel:    g.opts.Channel,
			Key:        key,
			Value:      vel,
			Beat:       float64(beat),
			SampleTime: st,
		}
		if err := g.queue.Submit(on); err != nil {
			continue // dropped click, no bookkeeping to unwind
		}
		off := on
		off.Kind = midi.KindNoteOff
		off.Value = 0
		off.SampleTime = st + offSamples
		g.queue.Submit(off)
	}
}

// Run drives Tick at a fixed cadence until ctx is cancelled. Blocking - run
// in a goroutine.
func (g *Generator) Run(ctx context.Context) {
	ticker := time.NewTicker(g.opts.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Tick()
		}
	}
}
