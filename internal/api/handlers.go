package api

import (
	"encoding/json"
	"log"
	"net/http"

	"storysync/internal/models"
	"storysync/internal/relay"
)

// Handler handles HTTP requests
type Handler struct {
	rooms   RoomDirectory
	stories StoryServer
}

func NewHandler(rooms RoomDirectory, stories StoryServer) *Handler {
	return &Handler{
		rooms:   rooms,
		stories: stories,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// GetSession lists the peers joined to a session.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := relay.SessionID(r)
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	respondJSON(w, http.StatusOK, models.SessionInfo{
		SessionID: sessionID,
		Peers:     h.rooms.Peers(sessionID),
	})
}

// ListSessions reports how many sessions currently have peers.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"active_sessions": h.rooms.Sessions(),
	})
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("⚠️  Failed to encode response: %v", err)
	}
}
