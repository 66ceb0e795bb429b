package hub_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/omitech/livetalk/internal/config"
	"github.com/omitech/livetalk/internal/handler"
	"github.com/omitech/livetalk/internal/hub"
	"github.com/omitech/livetalk/internal/relay"
	"github.com/omitech/livetalk/internal/signal"
)

// startRelay wires router, hub, and the upgrade handler the way main does and
// serves them from an in-process HTTP server.
func startRelay(t *testing.T) string {
	t.Helper()

	router := relay.NewRouter(nil, relay.WithRingTimeout(time.Second))
	h := hub.New(router, nil)
	router.Bind(h)
	go h.Run()

	wsHandler := handler.NewWebSocketHandler(&config.Config{}, h)
	srv := httptest.NewServer(wsHandler)
	t.Cleanup(func() {
		srv.Close()
		h.Close()
	})

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *signal.WSLink {
	t.Helper()
	link, err := signal.Dial(url)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { link.Close() })
	return link
}

func expect(t *testing.T, link signal.Link, tp signal.Type) signal.Message {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg, ok := <-link.Receive():
			if !ok {
				t.Fatalf("link closed while waiting for %s", tp)
			}
			if msg.Type() == tp {
				return msg
			}
			// Roster chatter is not what we're waiting for; keep reading.
		case <-deadline:
			t.Fatalf("timed out waiting for %s", tp)
		}
	}
}

func TestRegisterAndCallOverWebSocket(t *testing.T) {
	url := startRelay(t)

	admin := dial(t, url)
	if err := admin.Send(signal.RegisterAdmin{AdminProfile: signal.AdminProfile{PhoneNumber: "0111", Name: "One"}}); err != nil {
		t.Fatal(err)
	}
	roster := expect(t, admin, signal.TypeCurrentAdmins).(signal.CurrentAdmins)
	if len(roster.Admins) != 1 {
		t.Fatalf("expected self in roster, got %+v", roster.Admins)
	}

	customer := dial(t, url)
	if err := customer.Send(signal.RegisterClient{ClientProfile: signal.ClientProfile{
		Name: "Ada", Phone: "0123456789", Email: "ada@example.com",
	}}); err != nil {
		t.Fatal(err)
	}
	expect(t, customer, signal.TypeCurrentAdmins)
	expect(t, admin, signal.TypeNewClient)

	if err := customer.Send(signal.CallRequest{CallType: signal.CallAudio}); err != nil {
		t.Fatal(err)
	}
	in := expect(t, admin, signal.TypeIncomingCall).(signal.IncomingCall)
	if in.UserData.Name != "Ada" || in.CallType != signal.CallAudio {
		t.Fatalf("unexpected incoming call: %+v", in)
	}

	if err := admin.Send(signal.AcceptCall{ClientID: in.SocketID, CallType: signal.CallAudio}); err != nil {
		t.Fatal(err)
	}
	expect(t, customer, signal.TypeCallAccepted)
}

func TestDisconnectAnnouncedOverWebSocket(t *testing.T) {
	url := startRelay(t)

	admin := dial(t, url)
	if err := admin.Send(signal.RegisterAdmin{AdminProfile: signal.AdminProfile{PhoneNumber: "0111", Name: "One"}}); err != nil {
		t.Fatal(err)
	}
	expect(t, admin, signal.TypeCurrentAdmins)

	customer := dial(t, url)
	if err := customer.Send(signal.RegisterClient{ClientProfile: signal.ClientProfile{
		Name: "Ada", Phone: "0123456789", Email: "ada@example.com",
	}}); err != nil {
		t.Fatal(err)
	}
	expect(t, admin, signal.TypeNewClient)

	customer.Close()
	expect(t, admin, signal.TypeClientDisconnected)
}
