package relay

import (
	"sync"
	"testing"
	"time"

	"github.com/omitech/livetalk/internal/signal"
)

// memSender records every delivered event per participant.
type memSender struct {
	mu   sync.Mutex
	msgs map[string][]signal.Message
}

func newMemSender() *memSender {
	return &memSender{msgs: make(map[string][]signal.Message)}
}

func (s *memSender) Send(socketID string, msg signal.Message) bool {
	s.mu.Lock()
	s.msgs[socketID] = append(s.msgs[socketID], msg)
	s.mu.Unlock()
	return true
}

func (s *memSender) of(socketID string, tp signal.Type) []signal.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []signal.Message
	for _, m := range s.msgs[socketID] {
		if m.Type() == tp {
			out = append(out, m)
		}
	}
	return out
}

func (s *memSender) waitOne(t *testing.T, socketID string, tp signal.Type) signal.Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := s.of(socketID, tp); len(got) > 0 {
			return got[0]
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s delivered to %s", tp, socketID)
	return nil
}

func newTestRouter(opts ...Option) (*Router, *memSender) {
	sender := newMemSender()
	r := NewRouter(nil, opts...)
	r.Bind(sender)
	return r, sender
}

func registerClient(r *Router, id, name string) {
	r.Handle(id, signal.RegisterClient{ClientProfile: signal.ClientProfile{
		Name: name, Phone: "0123456789", Email: name + "@example.com",
	}})
}

func registerAdmin(r *Router, id, phone, name string) {
	r.Handle(id, signal.RegisterAdmin{AdminProfile: signal.AdminProfile{PhoneNumber: phone, Name: name}})
}

func TestRegistrationRosters(t *testing.T) {
	r, sender := newTestRouter()

	registerAdmin(r, "a1", "0111", "One")
	registerClient(r, "c1", "ada")

	// The client gets the admin roster, the admin learns about the client.
	current := sender.of("c1", signal.TypeCurrentAdmins)
	if len(current) != 1 {
		t.Fatalf("client should receive current-admins, got %v", current)
	}
	if admins := current[0].(signal.CurrentAdmins).Admins; len(admins) != 1 || admins[0].SocketID != "a1" {
		t.Fatalf("unexpected roster: %+v", admins)
	}
	if got := sender.of("a1", signal.TypeNewClient); len(got) != 1 {
		t.Fatalf("admin should be told about the new client, got %v", got)
	}

	// A second admin is announced to both existing participants.
	registerAdmin(r, "a2", "0222", "Two")
	if got := sender.of("a1", signal.TypeNewAdmin); len(got) != 1 {
		t.Fatalf("existing admin should see new-admin, got %v", got)
	}
	if got := sender.of("c1", signal.TypeNewAdmin); len(got) != 1 {
		t.Fatalf("client should see new-admin, got %v", got)
	}
}

func TestInvalidRegistrationRejected(t *testing.T) {
	r, sender := newTestRouter()

	r.Handle("c1", signal.RegisterClient{ClientProfile: signal.ClientProfile{Name: "ada", Phone: "0123", Email: "not-an-email"}})

	clients, _, _ := r.Stats()
	if clients != 0 {
		t.Fatalf("invalid profile must not join the roster, clients=%d", clients)
	}
	if got := sender.of("c1", signal.TypeCurrentAdmins); len(got) != 0 {
		t.Fatal("rejected registration should get no roster")
	}
}

func TestCallRequestFanOutAndFirstWriterWins(t *testing.T) {
	r, sender := newTestRouter()
	registerAdmin(r, "a1", "0111", "One")
	registerAdmin(r, "a2", "0222", "Two")
	registerClient(r, "c1", "ada")

	r.Handle("c1", signal.CallRequest{CallType: signal.CallVideo})

	for _, admin := range []string{"a1", "a2"} {
		in := sender.of(admin, signal.TypeIncomingCall)
		if len(in) != 1 {
			t.Fatalf("admin %s should be rung, got %v", admin, in)
		}
		if call := in[0].(signal.IncomingCall); call.SocketID != "c1" || call.CallType != signal.CallVideo {
			t.Fatalf("unexpected incoming call: %+v", call)
		}
	}

	// First accept wins.
	r.Handle("a1", signal.AcceptCall{ClientID: "c1", CallType: signal.CallVideo})
	accepted := sender.of("c1", signal.TypeCallAccepted)
	if len(accepted) != 1 || accepted[0].(signal.CallAccepted).AdminID != "a1" {
		t.Fatalf("client should learn the accepting admin, got %v", accepted)
	}
	if got := sender.of("a2", signal.TypeCallRequestCancelled); len(got) != 1 {
		t.Fatalf("other admins should retract the request, got %v", got)
	}

	// A late accept is answered with a cancellation, the call stands.
	r.Handle("a2", signal.AcceptCall{ClientID: "c1", CallType: signal.CallVideo})
	if got := sender.of("a2", signal.TypeCallRequestCancelled); len(got) != 2 {
		t.Fatalf("late accept should be told the request is gone, got %v", got)
	}
	if got := sender.of("c1", signal.TypeCallAccepted); len(got) != 1 {
		t.Fatalf("client must not see a second acceptance, got %v", got)
	}

	if _, _, calls := r.Stats(); calls != 1 {
		t.Fatalf("expected one active call, got %d", calls)
	}
}

func TestCallRequestRingTimeout(t *testing.T) {
	r, sender := newTestRouter(WithRingTimeout(30 * time.Millisecond))
	registerAdmin(r, "a1", "0111", "One")
	registerClient(r, "c1", "ada")

	r.Handle("c1", signal.CallRequest{CallType: signal.CallAudio})

	sender.waitOne(t, "c1", signal.TypeCallTimeout)
	sender.waitOne(t, "a1", signal.TypeCallTimeout)

	// An accept after the timeout is late: no pairing, just a retraction.
	r.Handle("a1", signal.AcceptCall{ClientID: "c1", CallType: signal.CallAudio})
	if got := sender.of("a1", signal.TypeCallRequestCancelled); len(got) != 1 {
		t.Fatalf("late accept should be told the request is gone, got %v", got)
	}
	if got := sender.of("c1", signal.TypeCallAccepted); len(got) != 0 {
		t.Fatalf("timed-out client must not see an acceptance, got %v", got)
	}
	if _, _, calls := r.Stats(); calls != 0 {
		t.Fatalf("late accept must not pair, got %d active calls", calls)
	}

	// The client's next request is unaffected and pairs on a prompt accept.
	r.Handle("c1", signal.CallRequest{CallType: signal.CallAudio})
	r.Handle("a1", signal.AcceptCall{ClientID: "c1", CallType: signal.CallAudio})
	if got := sender.of("c1", signal.TypeCallAccepted); len(got) != 1 {
		t.Fatalf("retried request should be accepted, got %v", got)
	}
	if _, _, calls := r.Stats(); calls != 1 {
		t.Fatalf("expected one active call after retry, got %d", calls)
	}
}

func TestCancelRetractsFromAdmins(t *testing.T) {
	r, sender := newTestRouter()
	registerAdmin(r, "a1", "0111", "One")
	registerClient(r, "c1", "ada")

	r.Handle("c1", signal.CallRequest{CallType: signal.CallAudio})
	r.Handle("c1", signal.CancelCallRequest{CallType: signal.CallAudio})

	got := sender.of("a1", signal.TypeCallRequestCancelled)
	if len(got) != 1 || got[0].(signal.CallRequestCancelled).SocketID != "c1" {
		t.Fatalf("admins should see the cancellation, got %v", got)
	}
}

func TestSignalingForwardingRewritesSource(t *testing.T) {
	r, sender := newTestRouter()
	registerAdmin(r, "a1", "0111", "One")
	registerClient(r, "c1", "ada")

	r.Handle("c1", signal.Offer{Target: "a1", Offer: signal.SessionDescription{Type: "offer", SDP: "x"}, CallType: signal.CallAudio})
	offer := sender.waitOne(t, "a1", signal.TypeOffer).(signal.Offer)
	if offer.Source != "c1" || offer.Target != "" {
		t.Fatalf("relay must stamp the source, got %+v", offer)
	}

	r.Handle("a1", signal.Answer{Target: "c1", Answer: signal.SessionDescription{Type: "answer", SDP: "y"}, CallType: signal.CallAudio})
	answer := sender.waitOne(t, "c1", signal.TypeAnswer).(signal.Answer)
	if answer.Source != "a1" {
		t.Fatalf("relay must stamp the source, got %+v", answer)
	}

	r.Handle("c1", signal.ICECandidate{Target: "a1", Candidate: signal.CandidateInit{Candidate: "candidate:1"}})
	cand := sender.waitOne(t, "a1", signal.TypeICECandidate).(signal.ICECandidate)
	if cand.Source != "c1" {
		t.Fatalf("relay must stamp the source, got %+v", cand)
	}

	// Unknown targets are dropped, not delivered.
	r.Handle("c1", signal.Offer{Target: "ghost", Offer: signal.SessionDescription{}, CallType: signal.CallAudio})
	if got := sender.of("ghost", signal.TypeOffer); len(got) != 0 {
		t.Fatalf("nothing should reach an unknown target, got %v", got)
	}
}

func TestEndCallClearsPairing(t *testing.T) {
	r, sender := newTestRouter()
	registerAdmin(r, "a1", "0111", "One")
	registerClient(r, "c1", "ada")
	r.Handle("c1", signal.CallRequest{CallType: signal.CallAudio})
	r.Handle("a1", signal.AcceptCall{ClientID: "c1", CallType: signal.CallAudio})

	r.Handle("a1", signal.EndCall{TargetID: "c1"})

	ended := sender.waitOne(t, "c1", signal.TypeCallEnded).(signal.CallEnded)
	if ended.Source != "a1" || !ended.IsAdmin {
		t.Fatalf("unexpected call-ended: %+v", ended)
	}
	if _, _, calls := r.Stats(); calls != 0 {
		t.Fatalf("pairing should be cleared, got %d", calls)
	}
}

func TestAdminCallAdminRouting(t *testing.T) {
	r, sender := newTestRouter()
	registerAdmin(r, "a1", "0111", "One")
	registerAdmin(r, "a2", "0222", "Two")
	registerClient(r, "c1", "ada")

	// Unknown phone.
	r.Handle("a1", signal.AdminCallAdmin{TargetAdminPhone: "0900000000", CallType: signal.CallAudio})
	nf := sender.waitOne(t, "a1", signal.TypeAdminNotFound).(signal.AdminNotFound)
	if nf.PhoneNumber != "0900000000" {
		t.Fatalf("unexpected not-found: %+v", nf)
	}

	// Reachable target: ring plus dispatch ack.
	r.Handle("a1", signal.AdminCallAdmin{TargetAdminPhone: "0222", CallType: signal.CallVideo})
	in := sender.waitOne(t, "a2", signal.TypeIncomingAdminCall).(signal.IncomingAdminCall)
	if in.SocketID != "a1" || in.AdminData.Name != "One" {
		t.Fatalf("unexpected incoming admin call: %+v", in)
	}
	ack := sender.waitOne(t, "a1", signal.TypeAdminCallSent).(signal.AdminCallSent)
	if ack.TargetAdminID != "a2" || ack.PhoneNumber != "0222" {
		t.Fatalf("unexpected dispatch ack: %+v", ack)
	}

	// Acceptance pairs and notifies the caller.
	r.Handle("a2", signal.AcceptAdminCall{AdminID: "a1", CallType: signal.CallVideo})
	acc := sender.waitOne(t, "a1", signal.TypeAdminCallAccepted).(signal.AdminCallAccepted)
	if acc.AdminID != "a2" {
		t.Fatalf("unexpected acceptance: %+v", acc)
	}

	// The pair is now busy for further directed calls.
	registerAdmin(r, "a3", "0333", "Three")
	r.Handle("a3", signal.AdminCallAdmin{TargetAdminPhone: "0222", CallType: signal.CallAudio})
	busy := sender.waitOne(t, "a3", signal.TypeAdminBusy).(signal.AdminBusy)
	if busy.TargetAdminID != "a2" || busy.AdminName != "Two" {
		t.Fatalf("unexpected busy: %+v", busy)
	}
}

func TestAdminCallRejectAndTimeoutForwarding(t *testing.T) {
	r, sender := newTestRouter()
	registerAdmin(r, "a1", "0111", "One")
	registerAdmin(r, "a2", "0222", "Two")

	r.Handle("a2", signal.RejectAdminCall{AdminID: "a1"})
	rej := sender.waitOne(t, "a1", signal.TypeAdminCallRejected).(signal.AdminCallRejected)
	if rej.AdminID != "a2" {
		t.Fatalf("rejection should name the rejecting admin, got %+v", rej)
	}

	r.Handle("a1", signal.AdminCallTimeout{TargetAdminID: "a2"})
	to := sender.waitOne(t, "a2", signal.TypeAdminCallTimeout).(signal.AdminCallTimeout)
	if to.AdminID != "a1" {
		t.Fatalf("timeout should name the caller, got %+v", to)
	}
}

func TestSelfDialReportsNotFound(t *testing.T) {
	r, sender := newTestRouter()
	registerAdmin(r, "a1", "0111", "One")

	r.Handle("a1", signal.AdminCallAdmin{TargetAdminPhone: "0111", CallType: signal.CallAudio})
	sender.waitOne(t, "a1", signal.TypeAdminNotFound)
}

func TestDisconnectEndsCallAndAnnounces(t *testing.T) {
	r, sender := newTestRouter()
	registerAdmin(r, "a1", "0111", "One")
	registerAdmin(r, "a2", "0222", "Two")
	registerClient(r, "c1", "ada")
	r.Handle("c1", signal.CallRequest{CallType: signal.CallAudio})
	r.Handle("a1", signal.AcceptCall{ClientID: "c1", CallType: signal.CallAudio})

	r.Disconnect("c1")

	ended := sender.waitOne(t, "a1", signal.TypeCallEnded).(signal.CallEnded)
	if ended.Source != "c1" || ended.IsAdmin {
		t.Fatalf("peer should see an implicit hangup, got %+v", ended)
	}
	sender.waitOne(t, "a1", signal.TypeClientDisconnected)
	sender.waitOne(t, "a2", signal.TypeClientDisconnected)

	clients, admins, calls := r.Stats()
	if clients != 0 || admins != 2 || calls != 0 {
		t.Fatalf("unexpected stats after disconnect: %d %d %d", clients, admins, calls)
	}
}
