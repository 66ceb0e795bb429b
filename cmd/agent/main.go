// Command agent runs a headless call participant against a relay: an admin
// that answers incoming support calls automatically, or a customer that
// requests one. Useful for soak-testing a relay without a browser.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	osignal "os/signal"
	"syscall"

	"github.com/omitech/livetalk/internal/chat"
	"github.com/omitech/livetalk/internal/engine"
	"github.com/omitech/livetalk/internal/media"
	"github.com/omitech/livetalk/internal/signal"
)

func main() {
	var (
		relayURL   = flag.String("relay", "ws://localhost:8086/ws", "relay WebSocket URL")
		role       = flag.String("role", "admin", "participant role: admin or customer")
		name       = flag.String("name", "agent", "display name")
		phone      = flag.String("phone", "0000000000", "phone number")
		email      = flag.String("email", "agent@example.com", "email (customer role)")
		chatURL    = flag.String("chat", "", "chat service base URL (customer role, optional)")
		video      = flag.Bool("video", false, "request video calls instead of audio")
		autoAccept = flag.Bool("auto-accept", true, "accept incoming calls automatically (admin role)")
		dial       = flag.String("dial", "", "admin phone number to call after registering (admin role)")
	)
	flag.Parse()

	callType := signal.CallAudio
	if *video {
		callType = signal.CallVideo
	}

	link, err := signal.Dial(*relayURL)
	if err != nil {
		log.Fatalf("Failed to connect to relay: %v", err)
	}

	capture, err := media.NewDeviceProvider()
	if err != nil {
		log.Fatalf("Failed to prepare media devices: %v", err)
	}

	cfg := engine.Config{
		Link:    link,
		Capture: capture,
		Notify:  func(msg string) { log.Printf("notice: %s", msg) },
	}

	var eng *engine.Engine

	switch *role {
	case "admin":
		cfg.Role = engine.RoleAdmin
		cfg.Admin = signal.AdminProfile{PhoneNumber: *phone, Name: *name}
		if *autoAccept {
			cfg.OnIncoming = func(call engine.ActiveCall) {
				log.Printf("Incoming %s call from %s, accepting", call.CallType, call.PeerName)
				go func() {
					if err := eng.Accept(); err != nil {
						log.Printf("Accept failed: %v", err)
					}
				}()
			}
		}
	case "customer":
		cfg.Role = engine.RoleCustomer
		cfg.Client = signal.ClientProfile{Name: *name, Phone: *phone, Email: *email}
		if *chatURL != "" {
			cfg.Sessions = chat.NewClient(*chatURL, 0)
		}
	default:
		log.Fatalf("Unknown role %q", *role)
	}

	eng, err = engine.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	switch {
	case cfg.Role == engine.RoleCustomer:
		if err := eng.RequestCall(callType); err != nil {
			log.Printf("Call request failed: %v", err)
		}
	case *dial != "":
		if err := eng.CallAdmin(*dial, callType); err != nil {
			log.Printf("Dial failed: %v", err)
		}
	}

	quit := make(chan os.Signal, 1)
	osignal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Println("Shutting down")
		cancel()
		<-done
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, signal.ErrLinkClosed) {
			log.Fatalf("Engine stopped: %v", err)
		}
	}
}
