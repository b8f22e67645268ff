package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pinwire/pinwire/client"
	"github.com/pinwire/pinwire/mcp"
	"github.com/pinwire/pinwire/sensor"
	"github.com/pinwire/pinwire/web"
)

// The host agent: keeps a registry of pin-addressed sensors fed by a
// pinwire server and exposes them over a JSON status API and,
// optionally, MCP tools.
func main() {
	serverAddr := flag.String("server", "localhost:8080", "pinwire server address")
	useWS := flag.Bool("ws", false, "use the WebSocket transport")
	useMDNS := flag.Bool("mdns", false, "discover the server with mDNS instead of -server")
	webAddr := flag.String("web", ":8081", "status API listen address")
	serveMCP := flag.Bool("mcp", false, "expose sensor tools over stdio MCP")
	pins := flag.String("pins", "", "comma-separated pins to register at startup")
	flag.Parse()

	logger := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	slog.SetDefault(slog.New(logger))

	addr := *serverAddr
	if *useMDNS {
		discovered, err := discover(*useWS)
		if err != nil {
			slog.Error("Discovery failed", "error", err.Error())
			os.Exit(1)
		}
		addr = discovered.Addr()
		if *useWS {
			addr = "ws://" + addr + "/"
		}
	}

	newLink := func() sensor.Link {
		if *useWS {
			return client.NewClient(addr, client.NewWebSocketTransport())
		}
		return client.NewClient(addr, client.NewTCPTransport())
	}

	registry := sensor.NewRegistry()
	for _, pin := range splitPins(*pins) {
		s := sensor.New(pin, newLink())
		registry.Store(s)
		if err := s.Connect(5 * time.Second); err != nil {
			slog.Error("Failed to connect sensor", "pin", pin, "error", err.Error())
		}
	}

	api := web.NewAPI(registry, newLink)
	go func() {
		if err := api.Serve(*webAddr); err != nil {
			slog.Error("Status API stopped", "error", err.Error())
		}
	}()

	if *serveMCP {
		mcpServer := mcp.NewMCPServer()
		mcp.RegisterSensorTools(mcpServer, registry)
		go mcpServer.Run()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	slog.Info("Shutting down sensors")
	for _, s := range registry.List() {
		s.Disconnect()
	}
}

func discover(ws bool) (*client.DiscoveredServer, error) {
	if ws {
		return client.DiscoverWebSocketServer(5 * time.Second)
	}
	return client.DiscoverTCPServer(5 * time.Second)
}

func splitPins(list string) []string {
	if list == "" {
		return nil
	}
	var pins []string
	for _, pin := range strings.Split(list, ",") {
		if pin = strings.TrimSpace(pin); pin != "" {
			pins = append(pins, pin)
		}
	}
	return pins
}
