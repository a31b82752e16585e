package events

import "sync"

// Stream is a single-topic broadcast channel set. The zero value is ready to
// use. Publishing never blocks: a subscriber that falls behind loses events
// rather than stalling the producer.
type Stream[T any] struct {
	mu   sync.RWMutex
	subs []chan T
}

// Subscribe registers a listener and returns its channel plus an unsubscribe
// function. Unsubscribing closes the channel.
func (s *Stream[T]) Subscribe(buffer int) (<-chan T, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan T, buffer)
	s.subs = append(s.subs, ch)

	unsub := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, c := range s.subs {
			if c == ch {
				close(c)
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				break
			}
		}
	}
	return ch, unsub
}

// Publish fans the event out to every subscriber without blocking.
func (s *Stream[T]) Publish(v T) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- v:
		default:
			// drop on a full subscriber buffer
		}
	}
}

// Bus groups the core's event streams, one typed stream per topic.
type Bus struct {
	Ticks  Stream[Tick]
	Fills  Stream[Fill]
	Engine Stream[EngineEvent]
	Risk   Stream[RiskAlert]
}

// NewBus creates an event bus.
func NewBus() *Bus { return &Bus{} }
