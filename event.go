package hsm

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Event is a level-triggered flag. Set raises it and pokes the owning
// machine's tick signal; Poll reads the flag and atomically clears it, so
// a guard built on Poll fires at most once per Set. Events are safe to
// Set from any goroutine; Poll is only ever called from the machine's
// ticker goroutine as part of evaluating a transition function.
type Event struct {
	ID      string
	name    string
	machine *Machine
	flag    atomic.Bool
}

// NewEvent creates a new named event bound to the given machine. Bind the
// same machine that owns the states whose transition functions will poll
// this event so that Set wakes the right ticker.
func NewEvent(machine *Machine, name string) *Event {
	return &Event{
		ID:      uuid.New().String(),
		name:    name,
		machine: machine,
	}
}

// Name returns the event's diagnostic name.
func (e *Event) Name() string {
	return e.name
}

// Set raises the flag and wakes the ticker. Idempotent until the flag is
// polled: repeated Sets before a Poll collapse into a single pending
// wakeup.
func (e *Event) Set() {
	e.flag.Store(true)
	if e.machine != nil {
		e.machine.emitTrace(rnoteLine(e.name))
		e.machine.trigger()
	}
}

// Poll returns whether the flag is set and clears it atomically. This is
// the only way the flag is observed; a guard in a transition function
// that calls Poll and ignores a true result will not see that same Set
// again.
func (e *Event) Poll() bool {
	return e.flag.Swap(false)
}

// EventWithValue is an Event that additionally carries an opaque payload
// delivered alongside the flag. Value returns the payload from the most
// recent SetValue, including right after the Poll that consumes it; a
// later Poll that finds nothing pending clears it, and reading it after
// that clear (or before any SetValue) panics with ErrValueNotSet rather
// than returning a stale value silently.
type EventWithValue[T any] struct {
	Event
	mu      sync.Mutex
	value   T
	present bool
}

// NewEventWithValue creates a new typed event bound to the given machine.
func NewEventWithValue[T any](machine *Machine, name string) *EventWithValue[T] {
	return &EventWithValue[T]{Event: *NewEvent(machine, name)}
}

// SetValue stores v and raises the flag, as Set does.
func (e *EventWithValue[T]) SetValue(v T) {
	e.mu.Lock()
	e.value = v
	e.present = true
	e.mu.Unlock()
	e.Event.Set()
}

// Value returns the payload stored by the most recent SetValue. Panics
// with ErrValueNotSet if no payload is currently present (i.e. after a
// Poll has cleared it, or before any SetValue).
func (e *EventWithValue[T]) Value() T {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.present {
		panic(ErrValueNotSet)
	}
	return e.value
}

// Poll clears the flag and reports whether it had been set. A payload
// delivered by the Set that this Poll just consumed remains readable via
// Value until the following Poll; a Poll that observes nothing pending
// clears any stale presence left over from that prior delivery.
func (e *EventWithValue[T]) Poll() bool {
	set := e.Event.Poll()
	if !set {
		e.mu.Lock()
		e.present = false
		e.mu.Unlock()
	}
	return set
}

func rnoteLine(name string) string {
	return "rnote over Events: " + name
}
