package relay

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storysync/internal/middleware"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
)

// CloseMissingSession is the close code sent when the session id is blank.
const CloseMissingSession = 4000

// SessionVar is the mux variable holding the escaped session id.
const SessionVar = "sessionId"

var ErrMissingSession = errors.New("relay: missing session id")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// peers are native clients or local dev pages
		return true
	},
}

// Handler upgrades story connections and hands them to the hub.
type Handler struct {
	hub *Hub
}

func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// SessionID percent-decodes the session id of a routed request.
func SessionID(r *http.Request) (string, error) {
	return url.PathUnescape(mux.Vars(r)[SessionVar])
}

// ServeStory handles GET /ws/story/{sessionId}.
func (h *Handler) ServeStory(w http.ResponseWriter, r *http.Request) {
	sessionID, err := SessionID(r)
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	ctx, span := middleware.StartSpan(r.Context(), "Relay.Connect",
		attribute.String("session.id", sessionID),
		attribute.String("remote.addr", r.RemoteAddr),
	)
	defer span.End()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade story connection: %v", err)
		middleware.AddSpanError(ctx, err)
		return
	}

	if strings.TrimSpace(sessionID) == "" {
		deadline := time.Now().Add(h.hub.config.WriteTimeout)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(CloseMissingSession, "missing session id"), deadline)
		conn.Close()
		middleware.AddSpanError(ctx, ErrMissingSession)
		return
	}

	p := newPeer(h.hub, conn, sessionID, r.RemoteAddr)
	span.SetAttributes(attribute.String("peer.id", p.ID))

	if !h.hub.Join(p) {
		conn.Close()
		return
	}
	middleware.AddSpanEvent(ctx, "peer.joined", attribute.String("peer.id", p.ID))

	// the request context ends with this handler, the pumps outlive it
	pumpCtx := context.WithoutCancel(ctx)
	go p.WritePump()
	go p.ReadPump(pumpCtx)

	log.Printf("✓ Peer %s connected to session %s", p.ID, sessionID)
}
