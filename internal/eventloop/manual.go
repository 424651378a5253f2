package eventloop

// Manual is a Scheduler that only runs tasks when asked. Tests use it to
// decide exactly when a deferred transport callback fires.
type Manual struct {
	queue []func()
}

func (m *Manual) Post(fn func()) {
	m.queue = append(m.queue, fn)
}

// Pending reports how many tasks are queued.
func (m *Manual) Pending() int {
	return len(m.queue)
}

// RunNext runs the oldest queued task. It reports false when nothing was queued.
func (m *Manual) RunNext() bool {
	if len(m.queue) == 0 {
		return false
	}
	fn := m.queue[0]
	m.queue = m.queue[1:]
	fn()
	return true
}

// Drain runs tasks until the queue is empty, including tasks posted while
// draining.
func (m *Manual) Drain() {
	for m.RunNext() {
	}
}
