package arbiter

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	serviceName      = "_nursery-arbiter._tcp"
	serviceDomain    = "local."
	discoveryTimeout = 3 * time.Second
)

// AnnounceDiscoverable registers the arbiter on the LAN via mDNS so actors
// with no static arbiter_addr configured can find it (spec §4.1 addition).
// The returned zeroconf.Server must be shut down when the arbiter stops.
func AnnounceDiscoverable(id, listenAddr string) (*zeroconf.Server, error) {
	host, portStr, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return nil, fmt.Errorf("arbiter: split listen addr %q: %w", listenAddr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("arbiter: parse port %q: %w", portStr, err)
	}
	server, err := zeroconf.RegisterProxy(
		id,
		serviceName,
		serviceDomain,
		port,
		fmt.Sprintf("arbiter_%s", id),
		[]string{host},
		[]string{"txtv=0"}, nil)
	if err != nil {
		return nil, fmt.Errorf("arbiter: mdns announce: %w", err)
	}
	return server, nil
}

// Discover browses the LAN for an announced arbiter and returns the first
// address found, or an error if none appears within discoveryTimeout. Used
// by actorproc at startup when no static arbiter_addr is configured.
func Discover() (string, error) {
	resolver, err := zeroconf.NewResolver()
	if err != nil {
		return "", fmt.Errorf("arbiter: mdns resolver: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), discoveryTimeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	found := make(chan string, 1)
	go func() {
		for entry := range entries {
			if len(entry.AddrIPv4) == 0 {
				continue
			}
			select {
			case found <- fmt.Sprintf("%s:%d", entry.AddrIPv4[0], entry.Port):
			default:
			}
		}
	}()

	if err := resolver.Browse(ctx, serviceName, serviceDomain, entries); err != nil {
		return "", fmt.Errorf("arbiter: mdns browse: %w", err)
	}

	select {
	case addr := <-found:
		return addr, nil
	case <-ctx.Done():
		slog.Debug("arbiter discovery timed out")
		return "", fmt.Errorf("arbiter: no arbiter discovered within %s", discoveryTimeout)
	}
}
