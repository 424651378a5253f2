package replica

type observer[T any] struct {
	id int
	fn func(T)
}

// observers keeps callbacks in registration order.
type observers[T any] struct {
	nextID int
	list   []observer[T]
}

func (o *observers[T]) add(fn func(T)) func() {
	o.nextID++
	id := o.nextID
	o.list = append(o.list, observer[T]{id: id, fn: fn})
	return func() {
		for i, ob := range o.list {
			if ob.id == id {
				o.list = append(o.list[:i:i], o.list[i+1:]...)
				return
			}
		}
	}
}

func (o *observers[T]) emit(v T) {
	// a callback may unsubscribe while we iterate
	snapshot := append([]observer[T](nil), o.list...)
	for _, ob := range snapshot {
		ob.fn(v)
	}
}

func (o *observers[T]) clear() {
	o.list = nil
}
