// Package event fans round events out to connected participants.
package event

import "github.com/Ashenafi-pixel/gamecrafter-crash-engine/round"

// Bus publishes every event to each sink in order.
type Bus struct {
	sinks []round.Broadcaster
}

func NewBus(sinks ...round.Broadcaster) *Bus {
	b := &Bus{}
	for _, s := range sinks {
		if s != nil {
			b.sinks = append(b.sinks, s)
		}
	}
	return b
}

func (b *Bus) Publish(ev round.Event) {
	for _, s := range b.sinks {
		s.Publish(ev)
	}
}
