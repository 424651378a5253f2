// Package relay fans sync frames out between the peers of a story session.
package relay

import (
	"context"
	"log"
	"sync"
	"time"

	"storysync/internal/models"
)

/*
RELAY HUB

One room per session id. Every frame a peer sends is queued for every other
peer of the same room, byte-for-byte. The relay never looks inside a CRDT
payload; it only decodes the tag for tracing.

Goroutines:
- run: owns register/unregister/broadcast
- sweep: closes peers idle for longer than IdleTimeout
- per peer: ReadPump and WritePump
- with a Bus: one subscriber feeding frames from other relay instances into
  the local rooms
*/

// Config holds the relay timing and buffering knobs.
type Config struct {
	SendBuffer    int
	PingInterval  time.Duration
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		SendBuffer:    256,
		PingInterval:  54 * time.Second,
		ReadTimeout:   60 * time.Second,
		WriteTimeout:  10 * time.Second,
		IdleTimeout:   5 * time.Minute,
		SweepInterval: 30 * time.Second,
	}
}

// withDefaults fills every unset knob from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SendBuffer <= 0 {
		c.SendBuffer = d.SendBuffer
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
	return c
}

// Hub tracks the rooms of all sessions.
type Hub struct {
	config Config

	rooms      map[string]map[*Peer]bool // session id -> set of peers
	register   chan *Peer
	unregister chan *Peer
	broadcast  chan *outbound
	mu         sync.RWMutex
	closed     bool

	// optional link to other relay instances
	bus     Bus
	stopBus context.CancelFunc

	done     chan struct{}
	stopOnce sync.Once
}

type outbound struct {
	sessionID string
	frame     []byte
	sender    *Peer // skipped when fanning out
}

func NewHub(config Config) *Hub {
	config = config.withDefaults()
	return &Hub{
		config:     config,
		rooms:      make(map[string]map[*Peer]bool),
		register:   make(chan *Peer),
		unregister: make(chan *Peer),
		broadcast:  make(chan *outbound, config.SendBuffer),
		done:       make(chan struct{}),
	}
}

// SetBus links the hub to other relay instances. Call before Start.
func (h *Hub) SetBus(bus Bus) {
	h.bus = bus
}

// Start runs the hub loop and the idle sweep.
func (h *Hub) Start() {
	log.Println("🔄 Starting relay hub...")

	go func() {
		for {
			select {
			case <-h.done:
				return
			case p := <-h.register:
				h.handleRegister(p)
			case p := <-h.unregister:
				h.handleUnregister(p)
			case msg := <-h.broadcast:
				h.handleBroadcast(msg)
			}
		}
	}()

	go h.sweepLoop()

	if h.bus != nil {
		ctx, cancel := context.WithCancel(context.Background())
		h.stopBus = cancel
		go func() {
			err := h.bus.Subscribe(ctx, func(sessionID string, frame []byte) {
				h.Broadcast(sessionID, frame, nil)
			})
			if err != nil && ctx.Err() == nil {
				log.Printf("⚠️  Relay bus subscription ended: %v", err)
			}
		}()
	}

	log.Println("✓ Relay hub started")
}

// Join adds p to its session room. It reports false once the hub is shut
// down.
func (h *Hub) Join(p *Peer) bool {
	select {
	case h.register <- p:
		return true
	case <-h.done:
		return false
	}
}

// Leave removes p from its room. Leaving twice is harmless.
func (h *Hub) Leave(p *Peer) {
	select {
	case h.unregister <- p:
	case <-h.done:
	}
}

// Broadcast queues frame for every peer of sessionID except sender.
func (h *Hub) Broadcast(sessionID string, frame []byte, sender *Peer) {
	select {
	case h.broadcast <- &outbound{sessionID: sessionID, frame: frame, sender: sender}:
	case <-h.done:
	}
}

// publish hands a locally received frame to the other relay instances.
func (h *Hub) publish(ctx context.Context, sessionID string, frame []byte) error {
	if h.bus == nil {
		return nil
	}
	return h.bus.Publish(ctx, sessionID, frame)
}

// Peers returns a snapshot of the peers joined to sessionID.
func (h *Hub) Peers(sessionID string) []models.Peer {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room := h.rooms[sessionID]
	result := make([]models.Peer, 0, len(room))
	for p := range room {
		result = append(result, p.Snapshot())
	}
	return result
}

// Sessions returns the number of non-empty rooms.
func (h *Hub) Sessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

func (h *Hub) handleRegister(p *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(p.send)
		return
	}

	room := h.rooms[p.SessionID]
	if room == nil {
		room = make(map[*Peer]bool)
		h.rooms[p.SessionID] = room
	}
	room[p] = true

	log.Printf("  Peer %s joined session %s (total: %d peers)", p.ID, p.SessionID, len(room))
}

func (h *Hub) handleUnregister(p *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.remove(p) {
		log.Printf("  Peer %s left session %s (remaining: %d peers)",
			p.ID, p.SessionID, len(h.rooms[p.SessionID]))
	}
}

func (h *Hub) handleBroadcast(msg *outbound) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for p := range h.rooms[msg.sessionID] {
		if p == msg.sender {
			continue
		}

		select {
		case p.send <- msg.frame:
		default:
			log.Printf("⚠️  Peer %s buffer full, dropping it from session %s", p.ID, p.SessionID)
			h.remove(p)
		}
	}
}

// remove drops p from its room and closes its send queue, which makes the
// write pump say goodbye and close the connection. Caller holds mu.
func (h *Hub) remove(p *Peer) bool {
	room, ok := h.rooms[p.SessionID]
	if !ok || !room[p] {
		return false
	}

	delete(room, p)
	close(p.send)
	if len(room) == 0 {
		delete(h.rooms, p.SessionID)
	}
	return true
}

func (h *Hub) sweepLoop() {
	ticker := time.NewTicker(h.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.sweep(time.Now())
		}
	}
}

// sweep closes the connections of idle peers; their read pumps then leave.
func (h *Hub) sweep(now time.Time) int {
	h.mu.RLock()
	var idle []*Peer
	for _, room := range h.rooms {
		for p := range room {
			if now.Sub(p.LastActive()) > h.config.IdleTimeout {
				idle = append(idle, p)
			}
		}
	}
	h.mu.RUnlock()

	for _, p := range idle {
		log.Printf("  Closing inactive peer %s in session %s", p.ID, p.SessionID)
		p.conn.Close()
	}
	return len(idle)
}

// Shutdown stops the hub and closes every peer.
func (h *Hub) Shutdown() {
	h.stopOnce.Do(func() {
		log.Println("🛑 Shutting down relay hub...")
		close(h.done)

		if h.bus != nil {
			if h.stopBus != nil {
				h.stopBus()
			}
			if err := h.bus.Close(); err != nil {
				log.Printf("⚠️  Failed to close relay bus: %v", err)
			}
		}

		h.mu.Lock()
		defer h.mu.Unlock()

		h.closed = true
		for _, room := range h.rooms {
			for p := range room {
				close(p.send)
			}
		}
		h.rooms = make(map[string]map[*Peer]bool)

		log.Println("✓ Relay hub shutdown complete")
	})
}
