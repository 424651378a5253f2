// Package session owns the document and connection of the active session.
//
// A session scope is never rebound: switching destroys the old document,
// connection, bridge and control binding first, then builds a fresh set.
// Frames still in flight for the old connection find no live handle and are
// dropped.
package session

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"storysync/internal/bridge"
	"storysync/internal/connection"
	"storysync/internal/editor"
	"storysync/internal/replica"
	"storysync/internal/transport"
)

// DefaultID is used when a blank session id is requested.
const DefaultID = "default"

var ErrClosed = errors.New("session: switcher closed")

// Scope is everything that lives exactly as long as one session.
type Scope struct {
	ID      string
	Doc     *replica.Doc
	Manager *connection.Manager
	Bridge  *bridge.Bridge
	Binding *editor.Binding

	unsubscribe func()
}

// Config wires a Switcher.
type Config struct {
	RelayURL string
	Dialer   transport.Dialer
	Control  editor.Control

	// SeedFromControl copies text already in the control into the first
	// session's document instead of clearing the control.
	SeedFromControl bool

	// NewDoc overrides document construction, for tests.
	NewDoc func() *replica.Doc
}

type Switcher struct {
	config  Config
	current *Scope
	status  connection.StatusFeed
	built   int
	closed  bool
}

func NewSwitcher(config Config) *Switcher {
	if config.NewDoc == nil {
		config.NewDoc = replica.New
	}
	return &Switcher{config: config}
}

// Current returns the active scope, or nil.
func (s *Switcher) Current() *Scope {
	return s.current
}

// Status re-publishes the status events of whichever scope is active.
func (s *Switcher) Status() *connection.StatusFeed {
	return &s.status
}

// Switch makes id the active session and connects it. Switching to the
// active session is a no-op.
func (s *Switcher) Switch(id string) error {
	if s.closed {
		return ErrClosed
	}
	id = Normalize(id)
	if s.current != nil && s.current.ID == id {
		return nil
	}

	s.teardown()

	scope, err := s.build(id)
	if err != nil {
		return err
	}
	s.current = scope

	log.Printf("✓ Joined session %q (%s)", id, scope.Manager.URL())
	return scope.Manager.Connect()
}

// HandleInput forwards a control snapshot to the active session.
func (s *Switcher) HandleInput(value string) error {
	if s.current == nil {
		return nil
	}
	_, err := s.current.Binding.HandleInput(value)
	return err
}

// Close tears the active session down without building a new one.
func (s *Switcher) Close() {
	s.teardown()
	s.closed = true
}

func (s *Switcher) build(id string) (*Scope, error) {
	doc := s.config.NewDoc()

	m, err := connection.NewManager(id, s.config.RelayURL, s.config.Dialer)
	if err != nil {
		doc.Destroy()
		return nil, fmt.Errorf("session %q: %w", id, err)
	}

	b := bridge.New(doc, m)
	m.Attach(b)
	unsubscribe := m.Status().Subscribe(s.status.Publish)

	if s.config.SeedFromControl && s.built == 0 {
		if seed := s.config.Control.Value(); seed != "" {
			if err := doc.Insert(0, seed); err != nil {
				log.Printf("⚠️  Could not seed session %q: %v", id, err)
			}
		}
	}
	s.built++

	return &Scope{
		ID:          id,
		Doc:         doc,
		Manager:     m,
		Bridge:      b,
		Binding:     editor.Bind(doc, s.config.Control),
		unsubscribe: unsubscribe,
	}, nil
}

// teardown order matters: nothing of the old scope may touch the control or
// the wire once the next scope exists.
func (s *Switcher) teardown() {
	sc := s.current
	if sc == nil {
		return
	}
	s.current = nil

	sc.Binding.Close()
	sc.Manager.Disconnect()
	sc.unsubscribe()
	sc.Bridge.Close()
	sc.Doc.Destroy()

	log.Printf("  Left session %q", sc.ID)
}

// Normalize trims id and falls back to DefaultID when nothing is left.
func Normalize(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return DefaultID
	}
	return id
}
