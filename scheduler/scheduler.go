package scheduler

import (
	"sort"
	"sync"
	"time"

	"go-pulse/debug"
	"go-pulse/metrics"
	"go-pulse/midi"
	"go-pulse/timing"

	"github.com/prometheus/client_golang/prometheus"
)

// Default lookahead shape: about 100ms of events in flight at 120 BPM,
// refreshed every 25ms so the window stays comfortably ahead of the
// shortest intended notes.
const (
	DefaultHorizonBeats = 2.0
	DefaultMaxLookahead = 150 * time.Millisecond
	DefaultTickInterval = 25 * time.Millisecond
)

// Options tune the lookahead window and tick cadence. Zero values take the
// defaults above.
type Options struct {
	HorizonBeats float64
	MaxLookahead time.Duration
	TickInterval time.Duration
	Metrics      *metrics.Collector
}

type noteKey struct {
	track int
	key   uint8
}

// activeNote remembers when a sounding note started so a stale off (for a
// note already force-released or retriggered) can be told apart from the
// real one.
type activeNote struct {
	startSample int64
	channel     uint8
}

type pendingOff struct {
	beat     float64
	track    int
	channel  uint8
	key      uint8
	onSample int64 // sample time of the matching note-on
}

// stagedEvent is a fill-pass entry awaiting ordered submission.
type stagedEvent struct {
	ev       midi.Event
	offBeat  float64 // matching release beat, note-ons only
	onSample int64   // matching note-on sample, note-offs only
}

// Scheduler owns the timing reference and pushes musical events into the
// playback queue inside a bounded lookahead window. All mutable state is
// guarded by one mutex held only for bookkeeping - queue submission never
// blocks, so the lock is never held across a wait.
type Scheduler struct {
	mu sync.Mutex

	queue midi.Queue
	clock timing.SampleClock
	mets  *metrics.Collector

	tracks   []*Track
	channels []uint8 // distinct track channels, for all-sound-off
	cursors  []trackCursor

	ref            timing.Reference
	playing        bool
	windowHighEdge float64
	horizonBeats   float64
	maxLookahead   time.Duration
	tickInterval   time.Duration

	active      map[noteKey]activeNote
	pendingOffs []pendingOff
	scratch     []stagedEvent // reused per fill

	interruptChan chan struct{}
}

type trackCursor struct {
	note    int
	control int
}

// New builds a scheduler over the given tracks, anchored at beat zero and
// the clock's current sample position, stopped. Track IDs are assigned by
// position; events are sorted.
func New(queue midi.Queue, clock timing.SampleClock, ctx timing.Context, tracks []*Track, opts Options) *Scheduler {
	if opts.HorizonBeats <= 0 {
		opts.HorizonBeats = DefaultHorizonBeats
	}
	if opts.MaxLookahead <= 0 {
		opts.MaxLookahead = DefaultMaxLookahead
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewCollector(prometheus.NewRegistry())
	}

	seen := make(map[uint8]bool)
	var channels []uint8
	for i, tr := range tracks {
		tr.ID = i
		tr.Normalize()
		if !seen[tr.Channel] {
			seen[tr.Channel] = true
			channels = append(channels, tr.Channel)
		}
	}

	return &Scheduler{
		queue:         queue,
		clock:         clock,
		mets:          opts.Metrics,
		tracks:        tracks,
		channels:      channels,
		cursors:       make([]trackCursor, len(tracks)),
		ref:           timing.NewReference(0, clock.NowSamples(), ctx),
		horizonBeats:  opts.HorizonBeats,
		maxLookahead:  opts.MaxLookahead,
		tickInterval:  opts.TickInterval,
		active:        make(map[noteKey]activeNote),
		interruptChan: make(chan struct{}, 1),
	}
}

// Tick advances the lookahead window. Called from the periodic loop; safe
// to call directly (tests drive it with a manual clock).
func (s *Scheduler) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.playing {
		return
	}
	s.fill(s.clock.NowSamples())
}

// fill translates every event in [windowHighEdge, target) into sample times
// under the current reference and submits them in beat order. Caller holds mu.
func (s *Scheduler) fill(now int64) {
	cur := s.ref.BeatForSample(now)

	// The window's high edge never exceeds now + maxLookahead in wall time,
	// bounding queue depth and the cost of a tempo-change reconciliation.
	target := cur + s.horizonBeats
	wallSamples := int64(s.maxLookahead.Seconds() * s.ref.SampleRate)
	if wallEdge := s.ref.BeatForSample(now + wallSamples); wallEdge < target {
		target = wallEdge
	}
	if target <= s.windowHighEdge {
		s.updateGauges(cur)
		return
	}

	s.scratch = s.scratch[:0]

	for i, tr := range s.tracks {
		c := &s.cursors[i]
		for c.note < len(tr.Notes) && tr.Notes[c.note].Start < target {
			n := tr.Notes[c.note]
			c.note++
			if tr.Muted {
				continue
			}
			st := s.ref.SampleForBeat(n.Start)
			if st < now {
				st = now // never submit into the past
			}
			s.scratch = append(s.scratch, stagedEvent{
				ev: midi.Event{
					Kind:       midi.KindNoteOn,
					Track:      tr.ID,
					Channel:    tr.Channel,
					Key:        n.Key,
					Value:      n.Velocity,
					Beat:       n.Start,
					SampleTime: st,
				},
				offBeat: n.Start + n.Duration,
			})
		}
		for c.control < len(tr.Controls) && tr.Controls[c.control].Beat < target {
			cc := tr.Controls[c.control]
			c.control++
			if tr.Muted {
				continue
			}
			st := s.ref.SampleForBeat(cc.Beat)
			if st < now {
				st = now
			}
			s.scratch = append(s.scratch, stagedEvent{
				ev: midi.Event{
					Kind:       midi.KindController,
					Track:      tr.ID,
					Channel:    tr.Channel,
					Key:        cc.Controller,
					Value:      cc.Value,
					Beat:       cc.Beat,
					SampleTime: st,
				},
			})
		}
	}

	// Due note-offs join the same pass so submission stays beat-ordered
	// per track.
	nDue := 0
	for nDue < len(s.pendingOffs) && s.pendingOffs[nDue].beat < target {
		off := s.pendingOffs[nDue]
		nDue++
		st := s.ref.SampleForBeat(off.beat)
		if st < now {
			st = now
		}
		s.scratch = append(s.scratch, stagedEvent{
			ev: midi.Event{
				Kind:       midi.KindNoteOff,
				Track:      off.track,
				Channel:    off.channel,
				Key:        off.key,
				Beat:       off.beat,
				SampleTime: st,
			},
			onSample: off.onSample,
		})
	}
	if nDue > 0 {
		s.pendingOffs = append(s.pendingOffs[:0], s.pendingOffs[nDue:]...)
	}

	// Offs sort before ons at the same instant so a release never clips a
	// retriggered note.
	sort.SliceStable(s.scratch, func(i, j int) bool {
		a, b := s.scratch[i].ev, s.scratch[j].ev
		if a.SampleTime != b.SampleTime {
			return a.SampleTime < b.SampleTime
		}
		return a.Kind == midi.KindNoteOff && b.Kind != midi.KindNoteOff
	})

	for _, st := range s.scratch {
		s.submitStaged(st)
	}

	s.windowHighEdge = target
	s.updateGauges(cur)
}

// submitStaged pushes one staged event and keeps the active-note set in
// step. Caller holds mu.
func (s *Scheduler) submitStaged(st stagedEvent) {
	ev := st.ev
	switch ev.Kind {
	case midi.KindNoteOn:
		k := noteKey{ev.Track, ev.Key}
		if prev, dup := s.active[k]; dup {
			// Same key retriggered while sounding: close the old note at
			// this instant; its queued release becomes stale.
			off := midi.Event{
				Kind:       midi.KindNoteOff,
				Track:      ev.Track,
				Channel:    prev.channel,
				Key:        ev.Key,
				Beat:       ev.Beat,
				SampleTime: ev.SampleTime,
			}
			if s.submit(off) {
				delete(s.active, k)
			}
		}
		if s.submit(ev) {
			s.active[k] = activeNote{startSample: ev.SampleTime, channel: ev.Channel}
			s.queuePendingOff(pendingOff{
				beat:     st.offBeat,
				track:    ev.Track,
				channel:  ev.Channel,
				key:      ev.Key,
				onSample: ev.SampleTime,
			})
		}

	case midi.KindNoteOff:
		k := noteKey{ev.Track, ev.Key}
		a, ok := s.active[k]
		if !ok || a.startSample != st.onSample {
			// Already force-released or retriggered; tolerated no-op.
			s.mets.RecordStaleNoteOff()
			return
		}
		if s.submit(ev) {
			delete(s.active, k)
		}

	default:
		s.submit(ev)
	}
}

// submit pushes one event into the playback queue. A rejected event is
// dropped and reported - the next tick never re-attempts it.
func (s *Scheduler) submit(ev midi.Event) bool {
	if err := s.queue.Submit(ev); err != nil {
		s.mets.RecordDropped()
		debug.LogEvery(32, "sched", "dropped %s track=%d key=%d beat=%.3f: %v",
			ev.Kind, ev.Track, ev.Key, ev.Beat, err)
		return false
	}
	s.mets.RecordSubmitted(ev.Kind.String())
	return true
}

// queuePendingOff inserts sorted by beat; the slice stays nearly sorted so
// the shift is short.
func (s *Scheduler) queuePendingOff(off pendingOff) {
	i := sort.Search(len(s.pendingOffs), func(i int) bool {
		return s.pendingOffs[i].beat > off.beat
	})
	s.pendingOffs = append(s.pendingOffs, pendingOff{})
	copy(s.pendingOffs[i+1:], s.pendingOffs[i:])
	s.pendingOffs[i] = off
}

func (s *Scheduler) updateGauges(cur float64) {
	s.mets.SetActiveNotes(len(s.active))
	depth := s.windowHighEdge - cur
	if depth < 0 {
		depth = 0
	}
	s.mets.SetWindowDepth(depth)
}

// currentBeat projects now through the reference while playing; stopped,
// the position is frozen at the anchor. Caller holds mu.
func (s *Scheduler) currentBeat(now int64) float64 {
	if s.playing {
		return s.ref.BeatForSample(now)
	}
	return s.ref.AnchorBeat
}

// Snapshot returns the current context and reference as one consistent
// pair. Consumers read this instead of caching tempo or sample rate.
func (s *Scheduler) Snapshot() (timing.Context, timing.Reference) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ref.Context, s.ref
}

// TrackState is a display snapshot of one track.
type TrackState struct {
	Name    string
	Channel uint8
	Muted   bool
}

// TrackStates returns the tracks' display state in order.
func (s *Scheduler) TrackStates() []TrackState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TrackState, len(s.tracks))
	for i, tr := range s.tracks {
		out[i] = TrackState{Name: tr.Name, Channel: tr.Channel, Muted: tr.Muted}
	}
	return out
}

// SetMuted flips one track's mute flag. A muted track's pending releases
// still fire, so nothing hangs; notes whose beats already passed through
// the window while muted are skipped for good.
func (s *Scheduler) SetMuted(track int, muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if track < 0 || track >= len(s.tracks) {
		return
	}
	s.tracks[track].Muted = muted
}

// Playing reports whether the transport is running.
func (s *Scheduler) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// CurrentBeat returns the playhead position in beats.
func (s *Scheduler) CurrentBeat() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentBeat(s.clock.NowSamples())
}

// Tempo returns the current tempo in BPM.
func (s *Scheduler) Tempo() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ref.Tempo
}
