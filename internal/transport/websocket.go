package transport

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"storysync/internal/eventloop"

	"github.com/gorilla/websocket"
)

// WebSocketConfig tunes the gorilla client.
type WebSocketConfig struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	SendBufferSize   int
}

// DefaultWebSocketConfig returns the settings used by the peer binary.
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		PingInterval:     30 * time.Second,
		SendBufferSize:   256,
	}
}

// WebSocketDialer opens gorilla websocket connections and posts every
// transport event to a scheduler.
type WebSocketDialer struct {
	scheduler eventloop.Scheduler
	config    WebSocketConfig
	dialer    *websocket.Dialer
}

func NewWebSocketDialer(scheduler eventloop.Scheduler, config WebSocketConfig) *WebSocketDialer {
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = DefaultWebSocketConfig().SendBufferSize
	}
	return &WebSocketDialer{
		scheduler: scheduler,
		config:    config,
		dialer: &websocket.Dialer{
			HandshakeTimeout: config.HandshakeTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
	}
}

func (d *WebSocketDialer) Dial(rawURL string, h Handlers) Transport {
	ctx, cancel := context.WithCancel(context.Background())
	t := &wsTransport{
		url:       rawURL,
		handlers:  h,
		scheduler: d.scheduler,
		config:    d.config,
		send:      make(chan []byte, d.config.SendBufferSize),
		ctx:       ctx,
		cancel:    cancel,
	}
	t.state.Store(int32(Connecting))
	go t.run(d.dialer)
	return t
}

type wsTransport struct {
	url       string
	handlers  Handlers
	scheduler eventloop.Scheduler
	config    WebSocketConfig

	state atomic.Int32
	send  chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	endOnce sync.Once
}

func (t *wsTransport) ReadyState() ReadyState {
	return ReadyState(t.state.Load())
}

func (t *wsTransport) Send(frame []byte) error {
	if t.ReadyState() != Open {
		return ErrNotOpen
	}
	select {
	case t.send <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (t *wsTransport) Close() error {
	for {
		s := t.state.Load()
		if ReadyState(s) == Closing || ReadyState(s) == Closed {
			return nil
		}
		if t.state.CompareAndSwap(s, int32(Closing)) {
			break
		}
	}
	t.cancel()
	return nil
}

func (t *wsTransport) run(dialer *websocket.Dialer) {
	conn, _, err := dialer.DialContext(t.ctx, t.url, nil)
	if err != nil {
		if t.ctx.Err() != nil {
			t.finish(nil)
			return
		}
		log.Printf("⚠️  Failed to connect to %s: %v", t.url, err)
		t.finish(err)
		return
	}

	if !t.state.CompareAndSwap(int32(Connecting), int32(Open)) {
		// closed while the handshake was in flight
		conn.Close()
		t.finish(nil)
		return
	}
	t.post(t.handlers.OnOpen)

	var writeErr error
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		writeErr = t.writePump(conn)
	}()

	err = t.readPump(conn)
	t.cancel()
	<-writerDone
	conn.Close()

	// a failed write cancels the reader, which then ends without an error
	if err == nil {
		err = writeErr
	}
	t.finish(err)
}

// readPump delivers binary frames until the connection fails or closes.
func (t *wsTransport) readPump(conn *websocket.Conn) error {
	go func() {
		// unblock ReadMessage when Close is called locally
		<-t.ctx.Done()
		conn.SetReadDeadline(time.Now())
	}()

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if t.ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		frame := message
		if t.handlers.OnMessage != nil {
			t.scheduler.Post(func() { t.handlers.OnMessage(frame) })
		}
	}
}

// writePump is the only goroutine writing to conn. It returns the write
// error that ended it, or nil when the transport was closed.
func (t *wsTransport) writePump(conn *websocket.Conn) error {
	var ping <-chan time.Time
	if t.config.PingInterval > 0 {
		ticker := time.NewTicker(t.config.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-t.ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(t.config.WriteTimeout))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil

		case frame := <-t.send:
			conn.SetWriteDeadline(time.Now().Add(t.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				t.cancel()
				return fmt.Errorf("write to %s: %w", t.url, err)
			}

		case <-ping:
			conn.SetWriteDeadline(time.Now().Add(t.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				t.cancel()
				return fmt.Errorf("ping %s: %w", t.url, err)
			}
		}
	}
}

// finish moves to Closed and reports the end exactly once.
func (t *wsTransport) finish(err error) {
	t.endOnce.Do(func() {
		t.state.Store(int32(Closed))
		t.cancel()
		if err != nil && t.handlers.OnError != nil {
			t.scheduler.Post(func() { t.handlers.OnError(err) })
			return
		}
		t.post(t.handlers.OnClose)
	})
}

func (t *wsTransport) post(fn func()) {
	if fn != nil {
		t.scheduler.Post(fn)
	}
}
