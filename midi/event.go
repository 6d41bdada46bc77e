package midi

import (
	gomidi "gitlab.com/gomidi/midi/v2"
)

// Kind is the closed set of event variants the scheduler emits. The set is
// fixed and handled exhaustively; corrective action is always an overriding
// event (a later off), never a retraction.
type Kind uint8

const (
	KindNoteOn Kind = iota
	KindNoteOff
	KindController
	KindAllSoundOff
)

func (k Kind) String() string {
	switch k {
	case KindNoteOn:
		return "note_on"
	case KindNoteOff:
		return "note_off"
	case KindController:
		return "controller"
	case KindAllSoundOff:
		return "all_sound_off"
	}
	return "unknown"
}

// All Sound Off controller number (MIDI CC 120).
const ccAllSoundOff = 120

// Event is one scheduled MIDI event. Beat is the musical position it belongs
// to; SampleTime is the absolute sample position computed through the timing
// reference that was active when it was scheduled. Once submitted an Event is
// immutable - it cannot be cancelled or rewritten downstream.
type Event struct {
	Kind       Kind
	Track      int
	Channel    uint8 // 0-15
	Key        uint8 // pitch, or controller number for KindController
	Value      uint8 // velocity, or controller value
	Beat       float64
	SampleTime int64
}

// Message renders the event as wire bytes.
func (e Event) Message() gomidi.Message {
	switch e.Kind {
	case KindNoteOn:
		return gomidi.NoteOn(e.Channel, e.Key, e.Value)
	case KindNoteOff:
		return gomidi.NoteOff(e.Channel, e.Key)
	case KindController:
		return gomidi.ControlChange(e.Channel, e.Key, e.Value)
	case KindAllSoundOff:
		return gomidi.ControlChange(e.Channel, ccAllSoundOff, 0)
	}
	return nil
}
