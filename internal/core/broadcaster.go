package core

// Subscriber receives broadcast events. Deliver must not block.
type Subscriber interface {
	Deliver(event *Event) bool
}

// Broadcaster fans events out to every subscriber. Like the Registry it is owned by
// the hub loop and is not safe for concurrent use.
type Broadcaster struct {
	subscribers map[Subscriber]struct{}
}

// NewBroadcaster returns a broadcaster with no subscribers.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subscribers: make(map[Subscriber]struct{})}
}

// Subscribe adds s. Returns true if newly added.
func (b *Broadcaster) Subscribe(s Subscriber) bool {
	if _, exists := b.subscribers[s]; exists {
		return false
	}
	b.subscribers[s] = struct{}{}
	return true
}

// Unsubscribe removes s. Returns true if removed.
func (b *Broadcaster) Unsubscribe(s Subscriber) bool {
	if _, exists := b.subscribers[s]; !exists {
		return false
	}
	delete(b.subscribers, s)
	return true
}

// Publish offers the event to every subscriber. A subscriber that cannot take it
// is skipped and counted as dropped.
func (b *Broadcaster) Publish(event *Event) (delivered, dropped int) {
	for s := range b.subscribers {
		if s.Deliver(event) {
			delivered++
		} else {
			dropped++
		}
	}
	return delivered, dropped
}

// Len returns the number of subscribers.
func (b *Broadcaster) Len() int {
	return len(b.subscribers)
}
