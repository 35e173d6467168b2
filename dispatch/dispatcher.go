package dispatch

import (
	"sync"
	"time"

	"github.com/hollowcrest/pixelwire/canvas"
)

// DebounceWindow is the delay between the first buffered write and the
// flush that drains it, matching the teacher's single-pending-task
// coalescing pattern.
const DebounceWindow = 10 * time.Millisecond

// Subscriber receives the runs produced by a flush. Implementations must do
// their own locking inside Deliver — the dispatcher holds no session lock
// itself, since session ownership belongs to package session, not this
// package.
type Subscriber interface {
	Deliver(runs []Run)
}

// Hooks lets callers observe dispatcher activity without the dispatch
// package depending on a metrics implementation.
type Hooks interface {
	ObserveFlush(runCount int, d time.Duration)
}

// Dispatcher buffers writes, debounces, groups, and fans runs out to
// subscribers obtained from Subscribers at flush time.
type Dispatcher struct {
	buffer      *UpdateBuffer
	Subscribers func() []Subscriber
	Hooks       Hooks
	debounce    time.Duration

	mu       sync.Mutex
	taskLive bool

	// sleep is time.Sleep by default; tests substitute a fake so the
	// debounce window doesn't slow the suite down.
	sleep func(time.Duration)
}

// New returns a Dispatcher. subscribers is called once per flush to obtain
// the current fanout targets; callers typically wire it to a
// fleet.Registry's Snapshot.
func New(subscribers func() []Subscriber) *Dispatcher {
	return &Dispatcher{
		buffer:      NewUpdateBuffer(),
		Subscribers: subscribers,
		debounce:    DebounceWindow,
		sleep:       time.Sleep,
	}
}

// Ingest records a write and ensures exactly one debounce task is
// scheduled. No user-visible blocking.
func (d *Dispatcher) Ingest(coord canvas.Coordinate, color canvas.Color) {
	d.buffer.Put(coord, color)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.taskLive {
		return
	}
	d.taskLive = true
	go d.debounceAndFlush()
}

func (d *Dispatcher) debounceAndFlush() {
	d.sleep(d.debounce)
	d.Flush()

	d.mu.Lock()
	d.taskLive = false
	d.mu.Unlock()
}

// Flush drains the buffer, groups and frames the result, and hands the
// runs to every current subscriber. A drain of an empty buffer is a cheap
// no-op, as required for spurious flushes.
func (d *Dispatcher) Flush() {
	start := time.Now()
	cells := d.buffer.DrainSorted()
	if len(cells) == 0 {
		return
	}

	var runs []Run
	for _, group := range groupConnected(cells) {
		for _, rr := range extractRuns(group) {
			runs = append(runs, rr.frame())
		}
	}

	if d.Hooks != nil {
		d.Hooks.ObserveFlush(len(runs), time.Since(start))
	}

	if d.Subscribers == nil {
		return
	}
	for _, sub := range d.Subscribers() {
		sub.Deliver(runs)
	}
}
