package midi

// NullQueue discards every event. Used when no MIDI output port is available
// so the engine can still run (and expose its timing state) silently.
type NullQueue struct{}

func (NullQueue) Submit(Event) error    { return nil }
func (NullQueue) SubmitNow(Event) error { return nil }
