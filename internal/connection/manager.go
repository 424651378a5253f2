// Package connection keeps exactly one live transport per session.
package connection

import (
	"fmt"
	"log"

	"storysync/internal/protocol"
	"storysync/internal/transport"
)

/*
CONNECTION LIFECYCLE

  Idle ──Connect──▶ Connecting ──open──▶ Open
                        │                 │
                        └──close/error────┴──▶ Closed ──Connect──▶ Idle ▶ Connecting

Every transport callback is bound to the handle it was created for. Once
Disconnect (or a close) drops that handle, anything the old transport still
delivers is ignored.
*/

// Peer is the sync endpoint behind the connection: it answers the open
// handshake and consumes inbound frames.
type Peer interface {
	FullState() []byte
	HandleFrame(frame []byte)
}

type handle struct {
	transport transport.Transport
}

// Manager owns the transport of one session.
type Manager struct {
	sessionID string
	url       string
	dialer    transport.Dialer
	peer      Peer

	state  State
	live   *handle
	status StatusFeed
}

// NewManager creates an Idle manager for sessionID on the relay at relayURL.
func NewManager(sessionID, relayURL string, dialer transport.Dialer) (*Manager, error) {
	url, err := transport.StoryURL(relayURL, sessionID)
	if err != nil {
		return nil, err
	}
	return &Manager{
		sessionID: sessionID,
		url:       url,
		dialer:    dialer,
		state:     Idle,
	}, nil
}

// Attach sets the peer receiving frames and answering the handshake.
func (m *Manager) Attach(p Peer) {
	m.peer = p
}

func (m *Manager) SessionID() string {
	return m.sessionID
}

func (m *Manager) URL() string {
	return m.url
}

func (m *Manager) State() State {
	return m.state
}

// Status returns the feed receiving one event per state transition.
func (m *Manager) Status() *StatusFeed {
	return &m.status
}

// Connect dials the relay. It is a no-op while a transport exists. From
// Closed it first returns to Idle.
func (m *Manager) Connect() error {
	if m.live != nil {
		return nil
	}
	if m.state == Closed {
		if err := m.transition(Idle); err != nil {
			return err
		}
	}
	if err := m.transition(Connecting); err != nil {
		return err
	}

	h := &handle{}
	m.live = h
	h.transport = m.dialer.Dial(m.url, transport.Handlers{
		OnOpen:    func() { m.handleOpen(h) },
		OnMessage: func(frame []byte) { m.handleMessage(h, frame) },
		OnClose:   func() { m.handleEnd(h, nil) },
		OnError:   func(err error) { m.handleEnd(h, err) },
	})
	return nil
}

// Disconnect closes the transport if there is one. Safe to call repeatedly.
func (m *Manager) Disconnect() {
	h := m.live
	if h == nil {
		return
	}
	m.live = nil
	if err := h.transport.Close(); err != nil {
		log.Printf("⚠️  Closing transport for session %s: %v", m.sessionID, err)
	}
	if err := m.transition(Closed); err != nil {
		log.Printf("⚠️  %v", err)
	}
}

// Reconnect drops the current transport, if any, and dials again.
func (m *Manager) Reconnect() error {
	m.Disconnect()
	return m.Connect()
}

// Send writes one frame if the connection is open. It reports whether the
// frame was handed to the transport.
func (m *Manager) Send(frame []byte) bool {
	h := m.live
	if h == nil || m.state != Open || h.transport.ReadyState() != transport.Open {
		return false
	}
	if err := h.transport.Send(frame); err != nil {
		log.Printf("⚠️  Send on session %s failed: %v", m.sessionID, err)
		return false
	}
	return true
}

func (m *Manager) handleOpen(h *handle) {
	if m.live != h {
		return
	}
	if err := m.transition(Open); err != nil {
		log.Printf("⚠️  %v", err)
		return
	}

	// catch up whoever is already in the session, and get caught up
	m.Send(protocol.SyncRequest())
	var state []byte
	if m.peer != nil {
		state = m.peer.FullState()
	}
	m.Send(protocol.SyncUpdate(state))
}

func (m *Manager) handleMessage(h *handle, frame []byte) {
	if m.live != h || m.peer == nil {
		return
	}
	m.peer.HandleFrame(frame)
}

func (m *Manager) handleEnd(h *handle, err error) {
	if m.live != h {
		return
	}
	m.live = nil
	if err != nil {
		log.Printf("⚠️  Session %s connection failed: %v", m.sessionID, err)
	}
	if terr := m.transition(Closed); terr != nil {
		log.Printf("⚠️  %v", terr)
	}
}

func (m *Manager) transition(to State) error {
	from := m.state
	if !canTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s (session %s)", ErrInvalidTransition, from, to, m.sessionID)
	}
	m.state = to
	m.status.Publish(StatusEvent{
		SessionID: m.sessionID,
		State:     to,
		Connected: to == Open,
	})
	return nil
}
