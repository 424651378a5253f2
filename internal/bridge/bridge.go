// Package bridge connects a replicated document to the sync protocol.
package bridge

import (
	"log"

	"storysync/internal/protocol"
)

// Document is what the bridge needs from the replicated document.
type Document interface {
	EncodeStateAsUpdate() []byte
	ApplyUpdate(update []byte) error
	OnUpdate(fn func(update []byte)) (cancel func())
}

// Sender writes frames to the session's connection.
type Sender interface {
	Send(frame []byte) bool
}

// Bridge forwards local document updates as SyncUpdate frames and applies
// inbound frames to the document. It implements connection.Peer.
type Bridge struct {
	doc         Document
	sender      Sender
	unsubscribe func()
}

// New subscribes to doc. Every update the document emits, local or the
// result of applying a remote update, is sent as-is; peers that already know
// it treat it as a no-op.
func New(doc Document, sender Sender) *Bridge {
	b := &Bridge{doc: doc, sender: sender}
	b.unsubscribe = doc.OnUpdate(func(update []byte) {
		b.sender.Send(protocol.SyncUpdate(update))
	})
	return b
}

// FullState serializes the whole document for the open handshake.
func (b *Bridge) FullState() []byte {
	return b.doc.EncodeStateAsUpdate()
}

// HandleFrame processes one inbound frame. Anomalous frames are ignored.
func (b *Bridge) HandleFrame(frame []byte) {
	msg := protocol.Decode(frame)

	switch msg.Kind {
	case protocol.KindSyncRequest:
		state := b.doc.EncodeStateAsUpdate()
		if len(state) == 0 {
			return
		}
		b.sender.Send(protocol.SyncUpdate(state))

	case protocol.KindSyncUpdate:
		if err := b.doc.ApplyUpdate(msg.Payload); err != nil {
			log.Printf("⚠️  Dropped update (%d bytes): %v", len(msg.Payload), err)
		}
	}
}

// Close stops forwarding document updates.
func (b *Bridge) Close() {
	if b.unsubscribe != nil {
		b.unsubscribe()
		b.unsubscribe = nil
	}
}
