package relay

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"storysync/internal/middleware"
	"storysync/internal/models"
	"storysync/internal/protocol"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
)

// Peer is a live websocket connection joined to one session room.
type Peer struct {
	*models.Peer
	conn *websocket.Conn
	send chan []byte // closed by the hub when the peer is removed
	hub  *Hub

	lastActive atomic.Int64
}

func newPeer(hub *Hub, conn *websocket.Conn, sessionID, remoteAddr string) *Peer {
	p := &Peer{
		Peer: models.NewPeer(sessionID, remoteAddr),
		conn: conn,
		send: make(chan []byte, hub.config.SendBuffer),
		hub:  hub,
	}
	p.lastActive.Store(p.ConnectedAt.UnixNano())
	return p
}

func (p *Peer) touch() {
	p.lastActive.Store(time.Now().UnixNano())
}

// LastActive is the last time anything arrived from the peer.
func (p *Peer) LastActive() time.Time {
	return time.Unix(0, p.lastActive.Load())
}

// Snapshot copies the peer's public fields.
func (p *Peer) Snapshot() models.Peer {
	snap := *p.Peer
	snap.LastActiveAt = p.LastActive()
	return snap
}

// ReadPump forwards every frame from the peer to the rest of its room. It
// leaves the room when the connection ends.
func (p *Peer) ReadPump(ctx context.Context) {
	defer func() {
		p.hub.Leave(p)
		p.conn.Close()
	}()

	timeout := p.hub.config.ReadTimeout
	p.conn.SetReadDeadline(time.Now().Add(timeout))
	p.conn.SetPongHandler(func(string) error {
		p.conn.SetReadDeadline(time.Now().Add(timeout))
		p.touch()
		return nil
	})

	for {
		_, frame, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				log.Printf("⚠️  Peer %s read failed: %v", p.ID, err)
			}
			return
		}

		p.touch()
		p.conn.SetReadDeadline(time.Now().Add(timeout))

		spanCtx, span := middleware.StartSpan(ctx, "Relay.Forward",
			attribute.String("session.id", p.SessionID),
			attribute.String("peer.id", p.ID),
			attribute.Int("frame.size", len(frame)),
			attribute.String("frame.kind", protocol.Decode(frame).Kind.String()),
		)
		p.hub.Broadcast(p.SessionID, frame, p)
		if err := p.hub.publish(spanCtx, p.SessionID, frame); err != nil {
			log.Printf("⚠️  Failed to publish frame for session %s: %v", p.SessionID, err)
			middleware.AddSpanError(spanCtx, err)
		}
		span.End()
	}
}

// WritePump is the only goroutine writing to the connection.
func (p *Peer) WritePump() {
	cfg := p.hub.config
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if !ok {
				p.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := p.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
