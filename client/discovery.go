package client

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/mdns"
)

// mDNS service types advertised by pinwire servers.
const (
	tcpService = "_pinwire-tcp._tcp"
	wsService  = "_pinwire-ws._tcp"
)

// DiscoveredServer is a pinwire server found on the local network.
type DiscoveredServer struct {
	ServiceName string
	Address     string
	Port        int
	Transport   string // "tcp" or "websocket"
}

// Addr returns the host:port the server listens on.
func (d *DiscoveredServer) Addr() string {
	return fmt.Sprintf("%s:%d", d.Address, d.Port)
}

// DiscoverTCPServer returns the first TCP pinwire server seen on the
// local network.
func DiscoverTCPServer(timeout time.Duration) (*DiscoveredServer, error) {
	return discoverService(tcpService, "tcp", timeout)
}

// DiscoverWebSocketServer returns the first WebSocket pinwire server
// seen on the local network.
func DiscoverWebSocketServer(timeout time.Duration) (*DiscoveredServer, error) {
	return discoverService(wsService, "websocket", timeout)
}

func discoverService(service, transport string, timeout time.Duration) (*DiscoveredServer, error) {
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	entries := make(chan *mdns.ServiceEntry, 4)
	go func() {
		defer close(entries)
		mdns.Lookup(service, entries)
	}()

	select {
	case entry := <-entries:
		if entry == nil {
			return nil, fmt.Errorf("no %s service found", service)
		}
		var address string
		switch {
		case entry.AddrV4 != nil:
			address = entry.AddrV4.String()
		case entry.AddrV6 != nil:
			address = fmt.Sprintf("[%s]", entry.AddrV6)
		default:
			return nil, fmt.Errorf("%s entry has no address", service)
		}
		srv := &DiscoveredServer{
			ServiceName: entry.Name,
			Address:     address,
			Port:        entry.Port,
			Transport:   transport,
		}
		slog.Info("Discovered pinwire server",
			"service_name", srv.ServiceName,
			"address", srv.Address,
			"port", srv.Port,
			"transport", srv.Transport,
		)
		return srv, nil

	case <-time.After(timeout):
		return nil, fmt.Errorf("mDNS discovery timeout for %s", service)
	}
}
