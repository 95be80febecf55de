package events

import (
	"sync/atomic"

	"github.com/kelindar/event"
)

// Bus broadcasts panel and log events over a kelindar/event dispatcher.
// Every subscriber gets its own delivery queue, so a slow subscriber never
// stalls the panel session that publishes.
type Bus struct {
	dispatcher *event.Dispatcher
	dropped    atomic.Uint64
}

// New creates an event bus.
func New() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

// Publish delivers ev to the subscribers of its concrete type. Unknown
// event types are ignored.
func (b *Bus) Publish(ev Event) {
	// The dispatcher routes on the static type, so the interface is unwrapped
	// here.
	switch e := ev.(type) {
	case BltStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case ClockStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case HardwareTimeoutEvent:
		event.Publish(b.dispatcher, e)
	case PanelPowerChangedEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers handler, whose parameter type selects the events it
// receives:
//
//	unsub := bus.Subscribe(func(e events.ClockStateChangedEvent) { ... })
//
// A handler for an unknown type is never called; the returned function is
// then a no-op.
func (b *Bus) Subscribe(handler any) func() {
	for _, bind := range binders {
		if unsub, ok := bind(b, handler); ok {
			return unsub
		}
	}
	return func() {}
}

// Dropped returns how many events channel subscribers missed because their
// channel was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

var binders = []func(*Bus, any) (func(), bool){
	bind[BltStateChangedEvent],
	bind[ClockStateChangedEvent],
	bind[HardwareTimeoutEvent],
	bind[PanelPowerChangedEvent],
	bind[LogEntryEvent],
}

func bind[T Event](b *Bus, handler any) (func(), bool) {
	h, ok := handler.(func(T))
	if !ok {
		return nil, false
	}
	return event.Subscribe(b.dispatcher, h), true
}
