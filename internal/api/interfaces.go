package api

import (
	"net/http"

	"storysync/internal/models"
)

/*
CONSUMER-DRIVEN INTERFACES

The handlers only need to look into rooms and to hand story connections
over. The relay hub and relay handler satisfy these; tests can use fakes.
*/

// RoomDirectory is what the HTTP handlers need from the relay hub.
type RoomDirectory interface {
	Peers(sessionID string) []models.Peer
	Sessions() int
}

// StoryServer upgrades and serves one story websocket.
type StoryServer interface {
	ServeStory(w http.ResponseWriter, r *http.Request)
}
