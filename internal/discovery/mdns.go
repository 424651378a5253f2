// Package discovery finds storysync relays on the local network over mDNS.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/grandcat/zeroconf"
)

const (
	// Service is the DNS-SD service type relays register.
	Service = "_storysync._tcp"
	Domain  = "local."
)

var ErrNoRelay = errors.New("discovery: no relay found")

// Advertise registers a relay listening on port. Call the returned function
// to withdraw it.
func Advertise(port int) (stop func(), err error) {
	host, _ := os.Hostname()
	if host == "" {
		host = "relay"
	}

	server, err := zeroconf.Register(
		fmt.Sprintf("storysync-%s", host),
		Service,
		Domain,
		port,
		[]string{"scheme=http", "path=/"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("register mDNS service: %w", err)
	}

	log.Printf("✓ mDNS service registered: %s on port %d", Service, port)
	return server.Shutdown, nil
}

// Browse returns the base URL of the first relay that answers before ctx
// ends.
func Browse(ctx context.Context) (string, error) {
	resolver, err := zeroconf.NewResolver()
	if err != nil {
		return "", fmt.Errorf("init mDNS resolver: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, Service, Domain, entries); err != nil {
		return "", fmt.Errorf("browse for %s: %w", Service, err)
	}

	for {
		select {
		case <-ctx.Done():
			return "", ErrNoRelay
		case entry, ok := <-entries:
			if !ok {
				return "", ErrNoRelay
			}
			if url, ok := RelayURL(entry); ok {
				log.Printf("  mDNS discovered relay %s at %s", entry.Instance, url)
				return url, nil
			}
		}
	}
}

// RelayURL builds the relay base URL an entry advertises, preferring IPv4.
func RelayURL(entry *zeroconf.ServiceEntry) (string, bool) {
	if entry == nil || entry.Port <= 0 {
		return "", false
	}

	var ip net.IP
	switch {
	case len(entry.AddrIPv4) > 0:
		ip = entry.AddrIPv4[0]
	case len(entry.AddrIPv6) > 0:
		ip = entry.AddrIPv6[0]
	default:
		return "", false
	}

	scheme, path := "http", "/"
	for _, kv := range entry.Text {
		key, value, _ := strings.Cut(kv, "=")
		switch key {
		case "scheme":
			scheme = value
		case "path":
			path = value
		}
	}

	host := net.JoinHostPort(ip.String(), strconv.Itoa(entry.Port))
	return scheme + "://" + host + strings.TrimSuffix(path, "/"), true
}
