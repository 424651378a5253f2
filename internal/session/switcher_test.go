package session

import (
	"testing"

	"storysync/internal/connection"
	"storysync/internal/editor"
	"storysync/internal/eventloop"
	"storysync/internal/protocol"
	"storysync/internal/replica"
	"storysync/internal/transport"

	"github.com/go-playground/assert/v2"
)

type fakeTransport struct {
	url      string
	state    transport.ReadyState
	sent     [][]byte
	handlers transport.Handlers
	sched    *eventloop.Manual
}

func (f *fakeTransport) Send(frame []byte) error {
	if f.state != transport.Open {
		return transport.ErrNotOpen
	}
	f.sent = append(f.sent, frame)
	return nil
}

func (f *fakeTransport) Close() error {
	if f.state != transport.Closed {
		f.state = transport.Closed
		f.sched.Post(f.handlers.OnClose)
	}
	return nil
}

func (f *fakeTransport) ReadyState() transport.ReadyState { return f.state }

func (f *fakeTransport) open() {
	f.sched.Post(func() {
		f.state = transport.Open
		f.handlers.OnOpen()
	})
}

func (f *fakeTransport) receive(frame []byte) {
	f.sched.Post(func() { f.handlers.OnMessage(frame) })
}

type fakeDialer struct {
	sched *eventloop.Manual
	dials []*fakeTransport
}

func (d *fakeDialer) Dial(url string, h transport.Handlers) transport.Transport {
	t := &fakeTransport{url: url, state: transport.Connecting, handlers: h, sched: d.sched}
	d.dials = append(d.dials, t)
	return t
}

type harness struct {
	sched    *eventloop.Manual
	dialer   *fakeDialer
	control  *editor.TextArea
	switcher *Switcher
	docs     []*replica.Doc
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{sched: &eventloop.Manual{}, control: editor.NewTextArea()}
	h.dialer = &fakeDialer{sched: h.sched}
	h.switcher = NewSwitcher(Config{
		RelayURL: "http://localhost:5173",
		Dialer:   h.dialer,
		Control:  h.control,
		NewDoc: func() *replica.Doc {
			for _, d := range h.docs {
				// the previous document is always gone before a new one exists
				assert.Equal(t, true, d.Destroyed())
			}
			d := replica.New()
			h.docs = append(h.docs, d)
			return d
		},
	})
	h.control.OnInput(func(v string) {
		assert.Equal(t, nil, h.switcher.HandleInput(v))
	})
	return h
}

func remoteUpdate(text string) []byte {
	d := replica.NewWithClient("remote-" + text)
	d.Insert(0, text)
	return protocol.SyncUpdate(d.EncodeStateAsUpdate())
}

func TestSwitchBuildsAndConnects(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, nil, h.switcher.Switch("s1"))

	sc := h.switcher.Current()
	assert.Equal(t, "s1", sc.ID)
	assert.Equal(t, 1, len(h.dialer.dials))
	assert.Equal(t, "ws://localhost:5173/ws/story/s1", h.dialer.dials[0].url)
	assert.Equal(t, connection.Connecting, sc.Manager.State())
}

func TestSwitchToSameSessionIsNoop(t *testing.T) {
	h := newHarness(t)
	h.switcher.Switch("s1")
	h.switcher.Switch(" s1 ")
	assert.Equal(t, 1, len(h.dialer.dials))
	assert.Equal(t, 1, len(h.docs))
}

func TestBlankSessionFallsBackToDefault(t *testing.T) {
	h := newHarness(t)
	h.switcher.Switch("   ")
	assert.Equal(t, DefaultID, h.switcher.Current().ID)
	assert.Equal(t, "default", Normalize(""))
}

func TestSwitchDestroysBeforeBuilding(t *testing.T) {
	h := newHarness(t)
	h.switcher.Switch("s1")
	first := h.switcher.Current()

	h.switcher.Switch("s2")
	assert.Equal(t, true, first.Doc.Destroyed())
	assert.Equal(t, connection.Closed, first.Manager.State())
	assert.Equal(t, 2, len(h.docs))
	assert.Equal(t, 2, len(h.dialer.dials))
}

func TestLateFrameFromOldSessionIsDropped(t *testing.T) {
	h := newHarness(t)
	h.switcher.Switch("s1")
	old := h.dialer.dials[0]
	old.open()
	h.sched.Drain()

	// delivered by the old socket after the switch
	old.receive(remoteUpdate("stale"))
	h.switcher.Switch("s2")

	fresh := h.dialer.dials[1]
	fresh.open()
	fresh.receive(remoteUpdate("fresh"))
	h.sched.Drain()

	assert.Equal(t, "fresh", h.switcher.Current().Doc.String())
	assert.Equal(t, "fresh", h.control.Value())
}

func TestTypingIsSentAfterOpen(t *testing.T) {
	h := newHarness(t)
	h.switcher.Switch("s1")
	tr := h.dialer.dials[0]
	tr.open()
	h.sched.Drain()
	assert.Equal(t, 2, len(tr.sent))

	h.control.Type("hi", 2)
	assert.Equal(t, 3, len(tr.sent))
	msg := protocol.Decode(tr.sent[2])
	assert.Equal(t, protocol.KindSyncUpdate, msg.Kind)

	peer := replica.New()
	peer.ApplyUpdate(msg.Payload)
	assert.Equal(t, "hi", peer.String())
}

func TestStatusIsRepublished(t *testing.T) {
	h := newHarness(t)
	var events []connection.StatusEvent
	h.switcher.Status().Subscribe(func(ev connection.StatusEvent) { events = append(events, ev) })

	h.switcher.Switch("s1")
	h.dialer.dials[0].open()
	h.sched.Drain()
	h.switcher.Switch("s2")

	assert.Equal(t, []connection.StatusEvent{
		{SessionID: "s1", State: connection.Connecting},
		{SessionID: "s1", State: connection.Open, Connected: true},
		{SessionID: "s1", State: connection.Closed},
		{SessionID: "s2", State: connection.Connecting},
	}, events)
}

func TestSeedFromControl(t *testing.T) {
	sched := &eventloop.Manual{}
	dialer := &fakeDialer{sched: sched}
	control := editor.NewTextArea()
	control.SetValue("draft")

	s := NewSwitcher(Config{
		RelayURL:        "http://relay",
		Dialer:          dialer,
		Control:         control,
		SeedFromControl: true,
	})
	s.Switch("a")
	assert.Equal(t, "draft", s.Current().Doc.String())
	assert.Equal(t, "draft", control.Value())

	// only the first session is seeded
	s.Switch("b")
	assert.Equal(t, "", s.Current().Doc.String())
	assert.Equal(t, "", control.Value())
}

func TestCloseTearsDown(t *testing.T) {
	h := newHarness(t)
	h.switcher.Switch("s1")
	sc := h.switcher.Current()

	h.switcher.Close()
	assert.Equal(t, true, sc.Doc.Destroyed())
	assert.Equal(t, (*Scope)(nil), h.switcher.Current())
	assert.Equal(t, ErrClosed, h.switcher.Switch("s2"))
	assert.Equal(t, nil, h.switcher.HandleInput("ignored"))
}

func TestBadRelayURL(t *testing.T) {
	s := NewSwitcher(Config{RelayURL: "ftp://x", Dialer: &fakeDialer{}, Control: editor.NewTextArea()})
	assert.NotEqual(t, nil, s.Switch("s1"))
	assert.Equal(t, (*Scope)(nil), s.Current())
}
