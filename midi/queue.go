package midi

import (
	"errors"
	"runtime"
	"sync"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"

	"go-pulse/debug"
	"go-pulse/timing"
)

// ErrQueueFull is returned when the playback queue rejects a submission at
// capacity. The caller drops the event and reports it; it never blocks.
var ErrQueueFull = errors.New("playback queue full")

// Queue is the hardware playback sink. Submissions are append-only and
// in-order per call; there is no cancel or withdraw. Submit accepts a
// future-dated event, SubmitNow delivers immediately, jumping any pending
// future-dated events. Both must return without blocking.
type Queue interface {
	Submit(ev Event) error
	SubmitNow(ev Event) error
}

// PortQueue feeds a MIDI output port. Future-dated events go through a
// bounded FIFO drained by a dispatch goroutine that sleeps until each
// event's sample deadline; immediate events bypass the FIFO and hit the
// port directly, the same way live input is echoed.
type PortQueue struct {
	clock  timing.SampleClock
	sender func(gomidi.Message) error

	events chan Event
	stop   chan struct{}
	done   chan struct{}

	sendMu sync.Mutex // one message on the wire at a time
}

// NewPortQueue wraps a port sender. capacity bounds the number of
// future-dated events in flight; clock must be the same clock the scheduler
// reads so deadlines line up.
func NewPortQueue(sender func(gomidi.Message) error, clock timing.SampleClock, capacity int) *PortQueue {
	if capacity <= 0 {
		capacity = 256
	}
	return &PortQueue{
		clock:  clock,
		sender: sender,
		events: make(chan Event, capacity),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Submit enqueues a future-dated event. Never blocks: at capacity the event
// is rejected with ErrQueueFull.
func (q *PortQueue) Submit(ev Event) error {
	select {
	case q.events <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// SubmitNow sends an event immediately, ahead of anything still pending.
func (q *PortQueue) SubmitNow(ev Event) error {
	return q.send(ev)
}

// Run drains the queue, sending each event at its sample deadline. Blocking -
// run in a goroutine. The OS thread is pinned to keep dispatch jitter down.
func (q *PortQueue) Run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(q.done)

	for {
		select {
		case <-q.stop:
			return
		case ev := <-q.events:
			wait := time.Until(q.clock.TimeAt(ev.SampleTime))
			if wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-q.stop:
					timer.Stop()
					return
				case <-timer.C:
				}
			}
			q.send(ev)
		}
	}
}

// Close stops the dispatch loop. Pending future-dated events are abandoned
// unsent; callers that need silence emit all-sound-off first.
func (q *PortQueue) Close() {
	close(q.stop)
	<-q.done
}

func (q *PortQueue) send(ev Event) error {
	msg := ev.Message()
	if msg == nil {
		return nil
	}
	q.sendMu.Lock()
	err := q.sender(msg)
	q.sendMu.Unlock()
	if err != nil {
		debug.Log("midiout", "send failed kind=%s ch=%d key=%d: %v", ev.Kind, ev.Channel, ev.Key, err)
	}
	return err
}
