// Package transport carries sync frames between a peer and the relay.
package transport

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	ErrNotOpen        = errors.New("transport: not open")
	ErrSendBufferFull = errors.New("transport: send buffer full")
)

// ReadyState mirrors the lifecycle of a message-oriented duplex connection.
type ReadyState int32

const (
	Connecting ReadyState = iota
	Open
	Closing
	Closed
)

func (s ReadyState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("ReadyState(%d)", int32(s))
	}
}

// Handlers receive transport events. Implementations deliver them
// asynchronously through a scheduler, never from inside Dial. A transport
// reports its end exactly once, through either OnClose or OnError.
type Handlers struct {
	OnOpen    func()
	OnMessage func(frame []byte)
	OnClose   func()
	OnError   func(err error)
}

// Transport is one live connection.
type Transport interface {
	Send(frame []byte) error
	Close() error
	ReadyState() ReadyState
}

// Dialer starts connections. Dial returns at once with a transport in the
// Connecting state.
type Dialer interface {
	Dial(rawURL string, h Handlers) Transport
}

// StoryPath is the relay route for one session.
const StoryPath = "/ws/story/"

// StoryURL derives the websocket URL of a session from the relay base URL.
// http becomes ws and https becomes wss; the session id is percent-encoded as
// a single path segment.
func StoryURL(base, sessionID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid relay url %q: %w", base, err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid relay url %q: unsupported scheme %q", base, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid relay url %q: missing host", base)
	}

	escaped := url.PathEscape(sessionID)
	prefix := strings.TrimSuffix(u.EscapedPath(), "/")

	return fmt.Sprintf("%s://%s%s%s%s", u.Scheme, u.Host, prefix, StoryPath, escaped), nil
}
