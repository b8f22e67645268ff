package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pinwire/pinwire/client"
)

// pinwatch subscribes to one pin and prints the reading stream.
func main() {
	serverAddr := flag.String("server", "localhost:8080", "pinwire server address")
	pin := flag.String("pin", "42", "pin to watch")
	useWS := flag.Bool("ws", false, "use the WebSocket transport")
	timeout := flag.Duration("timeout", 5*time.Second, "handshake timeout")
	flag.Parse()

	logger := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})
	slog.SetDefault(slog.New(logger))

	var transport client.Transport = client.NewTCPTransport()
	if *useWS {
		transport = client.NewWebSocketTransport()
	}

	c := client.NewClient(*serverAddr, transport)
	c.OnReading(func(r client.Reading) {
		switch r.Kind {
		case client.Data:
			fmt.Printf("%s %s %.2f\n", time.Now().Format(time.TimeOnly), *pin, r.Value)
		case client.Accepted:
			fmt.Printf("pin %s accepted\n", *pin)
		case client.Rejected:
			fmt.Printf("pin %s rejected\n", *pin)
			os.Exit(1)
		case client.Fault:
			fmt.Printf("server error: %s\n", r.Err)
		}
	})

	if err := c.Connect(); err != nil {
		slog.Error("Connect failed", "error", err.Error())
		os.Exit(1)
	}
	if !c.WaitForConnection(*timeout) {
		slog.Error("Handshake timed out", "server", *serverAddr)
		os.Exit(1)
	}
	if err := c.SendPinRequest(*pin); err != nil {
		slog.Error("Pin request failed", "error", err.Error())
		os.Exit(1)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	c.Disconnect()
}
