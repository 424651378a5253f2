package replica

import (
	mathrand "math/rand"
	"strings"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestInsertDelete(t *testing.T) {
	d := NewWithClient("a")
	assert.Equal(t, nil, d.Insert(0, "hello"))
	assert.Equal(t, nil, d.Insert(5, " world"))
	assert.Equal(t, nil, d.Insert(0, ">"))
	assert.Equal(t, ">hello world", d.String())
	assert.Equal(t, 12, d.Len())

	assert.Equal(t, nil, d.Delete(1, 6))
	assert.Equal(t, ">world", d.String())

	assert.Equal(t, nil, d.Insert(100, "!"))
	assert.Equal(t, nil, d.Delete(3, 100))
	assert.Equal(t, ">wo", d.String())
}

func TestEmptyStateIsNil(t *testing.T) {
	d := NewWithClient("a")
	assert.Equal(t, 0, len(d.EncodeStateAsUpdate()))

	assert.Equal(t, nil, d.Insert(0, "x"))
	assert.NotEqual(t, 0, len(d.EncodeStateAsUpdate()))
}

func TestFullStateRebuildsDocument(t *testing.T) {
	a := NewWithClient("a")
	a.Insert(0, "the quick brown fox")
	a.Delete(4, 6)
	a.Insert(4, "slow ")

	b := NewWithClient("b")
	assert.Equal(t, nil, b.ApplyUpdate(a.EncodeStateAsUpdate()))
	assert.Equal(t, a.String(), b.String())
}

func TestApplyIsIdempotent(t *testing.T) {
	a := NewWithClient("a")
	var updates [][]byte
	a.OnUpdate(func(u []byte) { updates = append(updates, u) })
	a.Insert(0, "abc")
	a.Delete(1, 1)
	assert.Equal(t, 2, len(updates))

	b := NewWithClient("b")
	emitted := 0
	b.OnUpdate(func([]byte) { emitted++ })
	for _, u := range updates {
		assert.Equal(t, nil, b.ApplyUpdate(u))
	}
	assert.Equal(t, 2, emitted)
	for _, u := range updates {
		assert.Equal(t, nil, b.ApplyUpdate(u))
	}
	assert.Equal(t, nil, b.ApplyUpdate(a.EncodeStateAsUpdate()))

	assert.Equal(t, "ac", b.String())
	assert.Equal(t, 2, emitted)
}

func TestOutOfOrderUpdatesWait(t *testing.T) {
	a := NewWithClient("a")
	var updates [][]byte
	a.OnUpdate(func(u []byte) { updates = append(updates, u) })
	a.Insert(0, "ab")
	a.Insert(2, "cd")
	a.Delete(0, 1)

	b := NewWithClient("b")
	assert.Equal(t, nil, b.ApplyUpdate(updates[2]))
	assert.Equal(t, nil, b.ApplyUpdate(updates[1]))
	assert.Equal(t, "", b.String())

	assert.Equal(t, nil, b.ApplyUpdate(updates[0]))
	assert.Equal(t, "bcd", b.String())
}

func TestConcurrentInsertsConverge(t *testing.T) {
	a := NewWithClient("a")
	b := NewWithClient("b")
	a.Insert(0, "base")
	b.ApplyUpdate(a.EncodeStateAsUpdate())

	var fromA, fromB [][]byte
	a.OnUpdate(func(u []byte) { fromA = append(fromA, u) })
	b.OnUpdate(func(u []byte) { fromB = append(fromB, u) })

	a.Insert(2, "AA")
	b.Insert(2, "BB")
	b.Delete(0, 1)

	for _, u := range fromA {
		b.ApplyUpdate(u)
	}
	for _, u := range fromB[:2] {
		a.ApplyUpdate(u)
	}

	assert.Equal(t, a.String(), b.String())
	assert.Equal(t, 7, a.Len())
}

func TestRandomizedConvergence(t *testing.T) {
	r := mathrand.New(mathrand.NewSource(42))
	peers := []*Doc{NewWithClient("p1"), NewWithClient("p2"), NewWithClient("p3")}
	inbox := make([][][]byte, len(peers))

	for i, p := range peers {
		i := i
		p.OnUpdate(func(u []byte) {
			for j := range peers {
				if j != i {
					inbox[j] = append(inbox[j], u)
				}
			}
		})
	}

	for step := 0; step < 400; step++ {
		i := r.Intn(len(peers))
		p := peers[i]
		switch r.Intn(3) {
		case 0, 1:
			p.Insert(r.Intn(p.Len()+1), string(rune('a'+r.Intn(26))))
		case 2:
			if p.Len() > 0 {
				p.Delete(r.Intn(p.Len()), 1+r.Intn(2))
			}
		}

		// deliver a shuffled slice of someone's inbox, sometimes twice
		j := r.Intn(len(peers))
		if len(inbox[j]) > 0 {
			n := 1 + r.Intn(len(inbox[j]))
			batch := inbox[j][:n]
			inbox[j] = inbox[j][n:]
			r.Shuffle(len(batch), func(x, y int) { batch[x], batch[y] = batch[y], batch[x] })
			for _, u := range batch {
				peers[j].ApplyUpdate(u)
				if r.Intn(4) == 0 {
					peers[j].ApplyUpdate(u)
				}
			}
		}
	}

	for quiet := false; !quiet; {
		quiet = true
		for j := range peers {
			for len(inbox[j]) > 0 {
				quiet = false
				u := inbox[j][0]
				inbox[j] = inbox[j][1:]
				peers[j].ApplyUpdate(u)
			}
		}
	}

	assert.Equal(t, peers[0].String(), peers[1].String())
	assert.Equal(t, peers[0].String(), peers[2].String())
}

func TestObservers(t *testing.T) {
	d := NewWithClient("a")
	changes := 0
	cancel := d.OnChange(func() { changes++ })

	d.Insert(0, "ab")
	d.Insert(0, "")
	d.Delete(5, 1)
	assert.Equal(t, 1, changes)

	cancel()
	d.Insert(0, "c")
	assert.Equal(t, 1, changes)
}

func TestDestroy(t *testing.T) {
	d := NewWithClient("a")
	d.Insert(0, "x")
	state := d.EncodeStateAsUpdate()

	updates := 0
	d.OnUpdate(func([]byte) { updates++ })
	d.Destroy()

	assert.Equal(t, true, d.Destroyed())
	assert.Equal(t, ErrDestroyed, d.Insert(0, "y"))
	assert.Equal(t, ErrDestroyed, d.Delete(0, 1))
	assert.Equal(t, ErrDestroyed, d.ApplyUpdate(state))
	assert.Equal(t, 0, updates)
	assert.Equal(t, "x", d.String())
}

func TestMalformedUpdate(t *testing.T) {
	d := NewWithClient("a")
	cases := [][]byte{
		[]byte("not json"),
		[]byte(`{"ops":[{"t":"ins","v":"x"}]}`),
		[]byte(`{"ops":[{"t":"ins","id":{"c":"b","k":1},"v":""}]}`),
		[]byte(`{"ops":[{"t":"del"}]}`),
	}
	for _, c := range cases {
		err := d.ApplyUpdate(c)
		assert.NotEqual(t, nil, err)
	}
	assert.Equal(t, "", d.String())
}

func TestUnknownOpKindsAreSkipped(t *testing.T) {
	d := NewWithClient("a")
	err := d.ApplyUpdate([]byte(`{"ops":[{"t":"fmt"},{"t":"ins","id":{"c":"b","k":1},"v":"z"}]}`))
	assert.Equal(t, nil, err)
	assert.Equal(t, "z", d.String())
}

func TestClientIDsAreUnique(t *testing.T) {
	assert.NotEqual(t, New().ClientID(), New().ClientID())
}

func TestPasteTravelsAsOneRun(t *testing.T) {
	a := NewWithClient("a")
	var updates [][]byte
	a.OnUpdate(func(u []byte) { updates = append(updates, u) })

	text := strings.Repeat("lorem ipsum ", 500)
	assert.Equal(t, nil, a.Insert(0, text))
	assert.Equal(t, 1, len(updates))
	assert.Equal(t, true, len(updates[0]) < len(text)+100)
	assert.Equal(t, true, len(a.EncodeStateAsUpdate()) < len(text)+100)

	b := NewWithClient("b")
	assert.Equal(t, nil, b.ApplyUpdate(updates[0]))
	assert.Equal(t, text, b.String())
}

func TestRunUpdatesDecodeToSingleRunes(t *testing.T) {
	d := NewWithClient("a")
	err := d.ApplyUpdate([]byte(`{"ops":[{"t":"ins","id":{"c":"b","k":4},"v":"héy"},{"t":"del","x":{"c":"b","k":5}}]}`))
	assert.Equal(t, nil, err)
	assert.Equal(t, "hy", d.String())

	// the third rune follows the second, so typing after it keeps order
	assert.Equal(t, nil, d.Insert(2, "!"))
	assert.Equal(t, "hy!", d.String())
}

func TestPasteIntoRemoteTextConverges(t *testing.T) {
	a := NewWithClient("a")
	b := NewWithClient("b")
	a.Insert(0, "hello world")
	b.ApplyUpdate(a.EncodeStateAsUpdate())

	var fromA, fromB [][]byte
	a.OnUpdate(func(u []byte) { fromA = append(fromA, u) })
	b.OnUpdate(func(u []byte) { fromB = append(fromB, u) })

	b.Insert(6, "brave ")
	a.Insert(5, ", dear")
	a.Insert(11, " old")

	for _, u := range fromB {
		a.ApplyUpdate(u)
	}
	for _, u := range fromA {
		b.ApplyUpdate(u)
	}
	assert.Equal(t, a.String(), b.String())
	assert.Equal(t, "hello, dear old brave world", a.String())

	// a full state replayed over a replica that knows part of it
	c := NewWithClient("c")
	c.ApplyUpdate(fromB[0])
	c.ApplyUpdate(a.EncodeStateAsUpdate())
	assert.Equal(t, a.String(), c.String())
}
