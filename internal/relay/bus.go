package relay

import (
	"context"
)

// Bus carries frames between relay instances serving the same sessions.
// Implementations must not hand an instance its own frames back.
type Bus interface {
	Publish(ctx context.Context, sessionID string, frame []byte) error
	// Subscribe delivers frames published by other instances until ctx ends.
	Subscribe(ctx context.Context, deliver func(sessionID string, frame []byte)) error
	Close() error
}
