package models

import (
	"time"

	"github.com/segmentio/ksuid"
)

// Peer is one websocket connection to a story session on the relay
type Peer struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	RemoteAddr   string    `json:"remote_addr"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// SessionInfo lists the peers currently joined to a session
type SessionInfo struct {
	SessionID string `json:"session_id"`
	Peers     []Peer `json:"peers"`
}

func NewPeer(sessionID, remoteAddr string) *Peer {
	now := time.Now()
	return &Peer{
		ID:           ksuid.New().String(),
		SessionID:    sessionID,
		RemoteAddr:   remoteAddr,
		ConnectedAt:  now,
		LastActiveAt: now,
	}
}
