package events

import "github.com/kelindar/event"

// PanelEvent is an event that concerns a single panel session.
type PanelEvent interface {
	Event
	PanelName() string
}

// SubscribeToChannel forwards every T published on bus into ch. Huma's SSE
// handlers select on a channel, so this adapts the callback API. The
// publisher never blocks: events that do not fit in ch are dropped and
// counted in Bus.Dropped.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return subscribe(bus, ch, func(T) bool { return true })
}

// SubscribePanel is SubscribeToChannel restricted to events of one panel.
// An empty panel matches every panel.
func SubscribePanel[T PanelEvent](bus *Bus, panel string, ch chan<- any) func() {
	return subscribe(bus, ch, func(e T) bool {
		return panel == "" || e.PanelName() == panel
	})
}

func subscribe[T Event](bus *Bus, ch chan<- any, keep func(T) bool) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		if !keep(e) {
			return
		}
		select {
		case ch <- e:
		default:
			bus.dropped.Add(1)
		}
	})
}
