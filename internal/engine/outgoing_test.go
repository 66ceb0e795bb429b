package engine

import (
	"testing"
	"time"

	"github.com/omitech/livetalk/internal/signal"
)

func adminRoster() signal.CurrentAdmins {
	return signal.CurrentAdmins{Admins: []signal.AdminInfo{
		{SocketID: "a2", PhoneNumber: "0222222222", Name: "Two"},
	}}
}

func TestOutgoingTargetNotFound(t *testing.T) {
	h := newHarness(t, RoleAdmin)
	h.link.push(adminRoster())
	h.waitAdmins(1)

	if err := h.eng.CallAdmin("0900000000", signal.CallAudio); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "rejected as not found", func() bool {
		s := h.state()
		return s.Outgoing != nil && s.Outgoing.Status == OutgoingRejected && s.Outgoing.Reason == ReasonNotFound
	})

	if h.capture.calls.Load() != 0 {
		t.Fatalf("no media capture should be attempted, calls=%d", h.capture.calls.Load())
	}
	if sent := h.link.sentOfType(signal.TypeAdminCallAdmin); len(sent) != 0 {
		t.Fatalf("no dispatch should be sent, got %v", sent)
	}
}

func TestOutgoingTimerStartsOnDispatchAck(t *testing.T) {
	h := newHarness(t, RoleAdmin)
	h.link.push(adminRoster())
	h.waitAdmins(1)

	if err := h.eng.CallAdmin("0222222222", signal.CallAudio); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "dispatch sent", func() bool {
		return len(h.link.sentOfType(signal.TypeAdminCallAdmin)) == 1
	})

	// No ack yet: well past the ring timeout the call must still be Calling.
	time.Sleep(100 * time.Millisecond)
	s := h.state()
	if s.Outgoing == nil || s.Outgoing.Status != OutgoingCalling {
		t.Fatalf("timer must not run before the dispatch ack, outgoing=%+v", s.Outgoing)
	}

	h.link.push(signal.AdminCallSent{TargetAdminID: "a2", PhoneNumber: "0222222222"})

	waitFor(t, "timed out after ack", func() bool {
		s := h.state()
		return s.Outgoing != nil && s.Outgoing.Status == OutgoingTimedOut
	})

	timeouts := h.link.sentOfType(signal.TypeAdminCallTimeout)
	if len(timeouts) != 1 || timeouts[0].(signal.AdminCallTimeout).TargetAdminID != "a2" {
		t.Fatalf("target should be told about the timeout, got %v", timeouts)
	}
}

func TestOutgoingAcceptedSendsOffer(t *testing.T) {
	h := newHarness(t, RoleAdmin)
	h.link.push(adminRoster())
	h.waitAdmins(1)

	if err := h.eng.CallAdmin("0222222222", signal.CallVideo); err != nil {
		t.Fatal(err)
	}
	h.link.push(signal.AdminCallSent{TargetAdminID: "a2", PhoneNumber: "0222222222"})
	h.link.push(signal.AdminCallAccepted{AdminID: "a2", CallType: signal.CallVideo})

	waitFor(t, "offer sent to target", func() bool {
		offers := h.link.sentOfType(signal.TypeOffer)
		return len(offers) == 1 && offers[0].(signal.Offer).Target == "a2"
	})
	waitFor(t, "call in progress", func() bool {
		s := h.state()
		return s.Active != nil && s.Active.Peer == "a2" && s.Active.Phase == PhaseInProgress
	})

	if h.capture.calls.Load() != 1 {
		t.Fatalf("capture should run exactly once on acceptance, calls=%d", h.capture.calls.Load())
	}
	s := h.state()
	if s.Outgoing == nil || s.Outgoing.Status != OutgoingAccepted {
		t.Fatalf("unexpected outgoing state: %+v", s.Outgoing)
	}
}

func TestOutgoingRejectedReasons(t *testing.T) {
	cases := []struct {
		name   string
		event  signal.Message
		reason RejectReason
	}{
		{"declined", signal.AdminCallRejected{AdminID: "a2"}, ReasonDeclined},
		{"busy", signal.AdminBusy{TargetAdminID: "a2", AdminName: "Two"}, ReasonBusy},
		{"not found", signal.AdminNotFound{PhoneNumber: "0222222222"}, ReasonNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, RoleAdmin)
			h.link.push(adminRoster())
			h.waitAdmins(1)

			if err := h.eng.CallAdmin("0222222222", signal.CallAudio); err != nil {
				t.Fatal(err)
			}
			waitFor(t, "dispatch sent", func() bool {
				return len(h.link.sentOfType(signal.TypeAdminCallAdmin)) == 1
			})
			h.link.push(signal.AdminCallSent{TargetAdminID: "a2", PhoneNumber: "0222222222"})
			h.link.push(tc.event)

			waitFor(t, "terminal with reason", func() bool {
				s := h.state()
				return s.Outgoing != nil && s.Outgoing.Status == OutgoingRejected && s.Outgoing.Reason == tc.reason
			})

			if h.capture.calls.Load() != 0 {
				t.Fatalf("rejected call must not capture media, calls=%d", h.capture.calls.Load())
			}
		})
	}
}

func TestCancelOutgoingNotifiesTarget(t *testing.T) {
	h := newHarness(t, RoleAdmin)
	h.link.push(adminRoster())
	h.waitAdmins(1)

	if err := h.eng.CallAdmin("0222222222", signal.CallAudio); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "dispatch sent", func() bool {
		return len(h.link.sentOfType(signal.TypeAdminCallAdmin)) == 1
	})
	h.link.push(signal.AdminCallSent{TargetAdminID: "a2", PhoneNumber: "0222222222"})
	waitFor(t, "ack processed", func() bool {
		s := h.state()
		return s.Outgoing != nil && s.Outgoing.TargetID == "a2"
	})

	if err := h.eng.CancelOutgoing(); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "target told about cancellation", func() bool {
		return len(h.link.sentOfType(signal.TypeAdminCallTimeout)) == 1
	})
	if s := h.state(); s.Outgoing != nil {
		t.Fatalf("outgoing state should be discarded, got %+v", s.Outgoing)
	}
}

func TestIncomingAdminCallRingsAndRejects(t *testing.T) {
	h := newHarness(t, RoleAdmin)
	h.link.push(signal.IncomingAdminCall{
		SocketID:  "a9",
		AdminData: signal.AdminProfile{PhoneNumber: "0999999999", Name: "Nine"},
		CallType:  signal.CallAudio,
	})

	waitFor(t, "admin call ringing", func() bool {
		s := h.state()
		return s.Active != nil && s.Active.Peer == "a9" && s.Active.PeerIsAdmin
	})

	if err := h.eng.Reject(); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "reject sent and idle", func() bool {
		rejects := h.link.sentOfType(signal.TypeRejectAdminCall)
		return len(rejects) == 1 && h.state().Active == nil
	})
	if got := h.link.sentOfType(signal.TypeRejectAdminCall)[0].(signal.RejectAdminCall); got.AdminID != "a9" {
		t.Fatalf("reject names wrong admin: %+v", got)
	}
}

func TestCallerTimeoutRetractsRinging(t *testing.T) {
	h := newHarness(t, RoleAdmin)
	h.link.push(signal.IncomingAdminCall{
		SocketID:  "a9",
		AdminData: signal.AdminProfile{PhoneNumber: "0999999999", Name: "Nine"},
		CallType:  signal.CallAudio,
	})
	waitFor(t, "ringing", func() bool { return h.state().Active != nil })

	h.link.push(signal.AdminCallTimeout{AdminID: "a9"})

	waitFor(t, "ring retracted", func() bool { return h.state().Active == nil })
}
