package directory

import (
	"testing"

	"github.com/omitech/livetalk/internal/signal"
)

func TestLookupsAndRemoval(t *testing.T) {
	m := NewMemory()
	m.PutClient(signal.ClientInfo{SocketID: "c1", UserData: signal.ClientProfile{Name: "Ada"}})
	m.PutAdmin(signal.AdminInfo{SocketID: "a1", PhoneNumber: "0111", Name: "One"})

	if !m.Known("c1") || !m.Known("a1") {
		t.Fatal("registered participants should be known")
	}
	if m.Known("ghost") {
		t.Fatal("unknown id reported as known")
	}

	admin, ok := m.AdminByPhone("0111")
	if !ok || admin.SocketID != "a1" {
		t.Fatalf("phone lookup failed: %+v", admin)
	}
	if _, ok := m.AdminByPhone("0999"); ok {
		t.Fatal("expected miss for unknown phone")
	}

	m.Remove("c1")
	if m.Known("c1") {
		t.Fatal("removed participant still known")
	}
	if len(m.Clients()) != 0 || len(m.Admins()) != 1 {
		t.Fatalf("unexpected rosters: %d clients, %d admins", len(m.Clients()), len(m.Admins()))
	}
}

func TestReset(t *testing.T) {
	m := NewMemory()
	m.PutAdmin(signal.AdminInfo{SocketID: "a1"})

	m.ResetAdmins([]signal.AdminInfo{{SocketID: "a2"}, {SocketID: "a3"}})
	if m.Known("a1") {
		t.Fatal("reset should drop stale entries")
	}
	if len(m.Admins()) != 2 {
		t.Fatalf("expected 2 admins, got %d", len(m.Admins()))
	}

	m.ResetClients([]signal.ClientInfo{{SocketID: "c1"}})
	if !m.Known("c1") {
		t.Fatal("reset should install new entries")
	}
}
