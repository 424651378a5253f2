package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"storysync/internal/connection"
	"storysync/internal/editor"
	"storysync/internal/eventloop"
	"storysync/internal/session"
	"storysync/internal/transport"

	"github.com/charmbracelet/lipgloss"
)

type peerOptions struct {
	RelayURL string
	Session  string
	File     string

	// Interactive prints the command help on start.
	Interactive bool
}

type command struct {
	name string
	arg  string
}

const helpText = "commands: :session <id>, :status, :quit"

// runPeer binds the file to the session until ctx ends or :quit is read.
// Everything touching the session runs on one event loop.
func runPeer(ctx context.Context, opts peerOptions, in io.Reader, out io.Writer) error {
	loop := eventloop.New()
	loop.Start()
	defer loop.Stop()

	control, err := editor.OpenFile(opts.File, loop)
	if err != nil {
		return err
	}
	defer control.Close()

	switcher := session.NewSwitcher(session.Config{
		RelayURL:        opts.RelayURL,
		Dialer:          transport.NewWebSocketDialer(loop, transport.DefaultWebSocketConfig()),
		Control:         control,
		SeedFromControl: true,
	})

	styles := newStatusStyles(out)

	var switchErr error
	loop.Do(func() {
		if opts.Interactive {
			fmt.Fprintln(out, helpText)
		}
		switcher.Status().Subscribe(func(ev connection.StatusEvent) {
			fmt.Fprintln(out, styles.render(ev))
		})
		control.OnInput(func(value string) {
			if err := switcher.HandleInput(value); err != nil {
				log.Printf("⚠️  Dropped local edit: %v", err)
			}
		})
		switchErr = switcher.Switch(opts.Session)
	})
	defer loop.Do(switcher.Close)
	if switchErr != nil {
		return switchErr
	}

	log.Printf("✓ Watching %s", control.Path())

	lines := readLines(ctx, in)
	for {
		select {
		case <-ctx.Done():
			return nil

		case line, ok := <-lines:
			if !ok {
				// stdin is gone; keep syncing until interrupted
				lines = nil
				continue
			}
			cmd, ok := parseCommand(line)
			if !ok {
				continue
			}

			switch cmd.name {
			case "quit":
				return nil
			case "session":
				loop.Do(func() {
					if err := switcher.Switch(cmd.arg); err != nil {
						fmt.Fprintf(out, "switch failed: %v\n", err)
					}
				})
			case "status":
				loop.Do(func() { fmt.Fprintln(out, describe(switcher)) })
			default:
				loop.Do(func() { fmt.Fprintln(out, helpText) })
			}
		}
	}
}

func readLines(ctx context.Context, in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// parseCommand reads ":name arg". Blank lines are not commands; anything
// else that is not a known command comes back as "help".
func parseCommand(line string) (command, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{}, false
	}

	name, arg, _ := strings.Cut(strings.TrimPrefix(line, ":"), " ")
	switch name {
	case "session", "status", "quit":
		if !strings.HasPrefix(line, ":") {
			break
		}
		return command{name: name, arg: strings.TrimSpace(arg)}, true
	}
	return command{name: "help"}, true
}

// statusStyles colour status lines when out is a colour terminal and leave
// them plain otherwise.
type statusStyles struct {
	online  lipgloss.Style
	offline lipgloss.Style
}

func newStatusStyles(out io.Writer) statusStyles {
	r := lipgloss.NewRenderer(out)
	return statusStyles{
		online:  r.NewStyle().Foreground(lipgloss.Color("2")),
		offline: r.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

func (s statusStyles) render(ev connection.StatusEvent) string {
	if ev.Connected {
		return s.online.Render(formatStatus(ev))
	}
	return s.offline.Render(formatStatus(ev))
}

func formatStatus(ev connection.StatusEvent) string {
	switch ev.State {
	case connection.Open:
		return fmt.Sprintf("● connected to session %q", ev.SessionID)
	case connection.Connecting:
		return fmt.Sprintf("○ connecting to session %q", ev.SessionID)
	case connection.Closed:
		return fmt.Sprintf("○ disconnected from session %q", ev.SessionID)
	default:
		return fmt.Sprintf("○ session %q %s", ev.SessionID, ev.State)
	}
}

func describe(s *session.Switcher) string {
	sc := s.Current()
	if sc == nil {
		return "no session"
	}
	return fmt.Sprintf("session %q: %s, %d characters", sc.ID, sc.Manager.State(), sc.Doc.Len())
}
