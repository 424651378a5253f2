package eventloop

import (
	"sync"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestLoopRunsInOrder(t *testing.T) {
	l := New()
	l.Start()
	defer l.Stop()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		l.Post(func() { got = append(got, i) })
	}
	l.Do(func() {})

	assert.Equal(t, 100, len(got))
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestLoopPostFromTaskDoesNotBlock(t *testing.T) {
	l := New()
	l.Start()
	defer l.Stop()

	var got []string
	l.Do(func() {
		got = append(got, "outer")
		l.Post(func() { got = append(got, "inner") })
	})
	l.Do(func() {})

	assert.Equal(t, []string{"outer", "inner"}, got)
}

func TestLoopConcurrentPosters(t *testing.T) {
	l := New()
	l.Start()
	defer l.Stop()

	count := 0
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				l.Post(func() { count++ })
			}
		}()
	}
	wg.Wait()
	l.Do(func() {})

	assert.Equal(t, 2000, count)
}

func TestLoopSurvivesPanic(t *testing.T) {
	l := New()
	l.Start()
	defer l.Stop()

	ran := false
	l.Post(func() { panic("boom") })
	l.Do(func() { ran = true })
	assert.Equal(t, true, ran)
}

func TestStopDrainsQueue(t *testing.T) {
	l := New()
	l.Start()

	ran := 0
	for i := 0; i < 10; i++ {
		l.Post(func() { ran++ })
	}
	l.Stop()
	assert.Equal(t, 10, ran)

	l.Post(func() { ran++ })
	assert.Equal(t, 10, ran)
}

func TestManualDrain(t *testing.T) {
	var m Manual
	var got []int
	m.Post(func() {
		got = append(got, 1)
		m.Post(func() { got = append(got, 3) })
	})
	m.Post(func() { got = append(got, 2) })

	assert.Equal(t, 2, m.Pending())
	assert.Equal(t, true, m.RunNext())
	assert.Equal(t, []int{1}, got)

	m.Drain()
	assert.Equal(t, []int{1, 2, 3}, got)
	assert.Equal(t, false, m.RunNext())
}
