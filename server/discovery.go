package server

import (
	"fmt"
	"log/slog"

	"github.com/hashicorp/mdns"
)

// Advertise publishes the server on the local network so clients can
// find it with mDNS instead of a hardcoded address. Shut the returned
// server down to withdraw the record.
func Advertise(instance string, port int, transport string) (*mdns.Server, error) {
	service := "_pinwire-tcp._tcp"
	if transport == "websocket" {
		service = "_pinwire-ws._tcp"
	}

	svc, err := mdns.NewMDNSService(instance, service, "", "", port, nil, []string{"pinwire telemetry server"})
	if err != nil {
		return nil, fmt.Errorf("create mdns service: %w", err)
	}

	srv, err := mdns.NewServer(&mdns.Config{Zone: svc})
	if err != nil {
		return nil, fmt.Errorf("start mdns server: %w", err)
	}

	slog.Info("Advertising server via mDNS", "instance", instance, "service", service, "port", port)
	return srv, nil
}
