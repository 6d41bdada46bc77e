package scheduler

import "sort"

// Note is one musical note: a start beat, a duration in beats, pitch and
// velocity. Timing stays musical here; sample times are computed only at
// scheduling time through the current reference.
type Note struct {
	Start    float64 `yaml:"start"`
	Duration float64 `yaml:"duration"`
	Key      uint8   `yaml:"key"`
	Velocity uint8   `yaml:"velocity"`
}

// Control is a controller change at a beat position.
type Control struct {
	Beat       float64 `yaml:"beat"`
	Controller uint8   `yaml:"controller"`
	Value      uint8   `yaml:"value"`
}

// Track is a lane of musical events bound to one MIDI channel. Notes and
// Controls must be sorted by beat; Normalize enforces that after loading
// or editing.
type Track struct {
	ID       int       `yaml:"-"`
	Name     string    `yaml:"name"`
	Channel  uint8     `yaml:"channel"` // 0-15
	Muted    bool      `yaml:"muted,omitempty"`
	Notes    []Note    `yaml:"notes"`
	Controls []Control `yaml:"controls,omitempty"`
}

// Normalize sorts events by beat so scheduling cursors can walk forward.
func (t *Track) Normalize() {
	sort.SliceStable(t.Notes, func(i, j int) bool {
		return t.Notes[i].Start < t.Notes[j].Start
	})
	sort.SliceStable(t.Controls, func(i, j int) bool {
		return t.Controls[i].Beat < t.Controls[j].Beat
	})
}

// EndBeat returns the beat where the last event of the track ends.
func (t *Track) EndBeat() float64 {
	end := 0.0
	for _, n := range t.Notes {
		if e := n.Start + n.Duration; e > end {
			end = e
		}
	}
	for _, c := range t.Controls {
		if c.Beat > end {
			end = c.Beat
		}
	}
	return end
}

// firstNoteAt returns the index of the first note starting at or after beat.
func (t *Track) firstNoteAt(beat float64) int {
	return sort.Search(len(t.Notes), func(i int) bool {
		return t.Notes[i].Start >= beat
	})
}

// firstControlAt returns the index of the first control at or after beat.
func (t *Track) firstControlAt(beat float64) int {
	return sort.Search(len(t.Controls), func(i int) bool {
		return t.Controls[i].Beat >= beat
	})
}
