package connection

// StatusEvent is published on every state transition.
type StatusEvent struct {
	SessionID string
	State     State
	Connected bool
}

type subscription struct {
	id int
	fn func(StatusEvent)
}

// StatusFeed fans status events out to any number of subscribers, in
// subscription order. Like the rest of the peer it is used from the event
// loop only.
type StatusFeed struct {
	nextID int
	subs   []subscription
}

// Subscribe registers fn and returns a function removing it again.
func (f *StatusFeed) Subscribe(fn func(StatusEvent)) (unsubscribe func()) {
	f.nextID++
	id := f.nextID
	f.subs = append(f.subs, subscription{id: id, fn: fn})

	return func() {
		for i, s := range f.subs {
			if s.id == id {
				f.subs = append(f.subs[:i:i], f.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers ev to every current subscriber.
func (f *StatusFeed) Publish(ev StatusEvent) {
	subs := append([]subscription(nil), f.subs...)
	for _, s := range subs {
		s.fn(ev)
	}
}

// Len returns the number of subscribers.
func (f *StatusFeed) Len() int {
	return len(f.subs)
}
