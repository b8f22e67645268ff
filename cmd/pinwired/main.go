package main

import (
	"context"
	"flag"
	"log/slog"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pinwire/pinwire/server"
)

// pinwired is the reference pinwire server: it confirms handshakes,
// validates pins against a fixed allow list and streams simulated
// sensor readings for accepted pins.
func main() {
	addr := flag.String("addr", "0.0.0.0:8080", "tcp listen address")
	wsAddr := flag.String("ws-addr", "", "optional WebSocket listen address")
	pins := flag.String("pins", "42", "comma-separated accepted pins")
	interval := flag.Duration("interval", time.Second, "sensor feed interval")
	advertise := flag.Bool("mdns", false, "advertise the server via mDNS")
	flag.Parse()

	logger := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	slog.SetDefault(slog.New(logger))

	accepted := make(map[string]struct{})
	for _, pin := range strings.Split(*pins, ",") {
		if pin = strings.TrimSpace(pin); pin != "" {
			accepted[pin] = struct{}{}
		}
	}

	srv := server.NewServer(*addr)
	srv.SetPinValidator(func(pin string) bool {
		_, ok := accepted[pin]
		return ok
	})
	srv.SetSampleSource(func(pin string) float32 {
		return rand.Float32() * 100
	})
	srv.SetFeedInterval(*interval)

	if *advertise {
		if port, err := listenPort(*addr); err != nil {
			slog.Error("Cannot advertise", "error", err.Error())
		} else if mdnsServer, err := server.Advertise("pinwired", port, "tcp"); err != nil {
			slog.Error("Failed to advertise via mDNS", "error", err.Error())
		} else {
			defer mdnsServer.Shutdown()
		}
	}

	if *wsAddr != "" {
		ws := server.NewWSListener(*wsAddr, srv)
		go func() {
			if err := ws.Start(); err != nil {
				slog.Error("WebSocket listener stopped", "error", err.Error())
			}
		}()
		defer ws.Shutdown()
	}

	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("Server stopped", "error", err.Error())
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	slog.Info("Shutting down server")
	srv.Shutdown()
}

func listenPort(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(portStr)
}
