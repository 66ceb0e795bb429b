package media

import (
	"context"
	"testing"

	"github.com/omitech/livetalk/internal/signal"
)

func hostCandidate() signal.CandidateInit {
	mid := "0"
	idx := uint16(0)
	return signal.CandidateInit{
		Candidate:     "candidate:1 1 UDP 2130706431 127.0.0.1 54321 typ host",
		SDPMid:        &mid,
		SDPMLineIndex: &idx,
	}
}

// newTestController builds a controller over the default pion stack with an
// empty capture stream attached, so offers carry audio/video sections.
func newTestController(t *testing.T, peer string, onCandidate func(signal.CandidateInit)) *Controller {
	t.Helper()
	c := NewController(peer, Config{}, onCandidate, nil)
	stream, err := NullProvider{}.GetUserMedia(context.Background(), Constraints{Audio: true, Video: true})
	if err != nil {
		t.Fatalf("get user media: %v", err)
	}
	c.Attach(stream)
	t.Cleanup(c.Close)
	return c
}

func TestEarlyCandidatesNeverFail(t *testing.T) {
	c := newTestController(t, "peer", nil)

	// No connection, no remote description: candidates must be parked, not
	// rejected.
	for i := 0; i < 5; i++ {
		if err := c.AddRemoteCandidate(hostCandidate()); err != nil {
			t.Fatalf("early candidate %d: %v", i, err)
		}
	}
}

func TestOfferAnswerRoundTrip(t *testing.T) {
	ctx := context.Background()
	caller := newTestController(t, "callee", nil)
	callee := newTestController(t, "caller", nil)

	offer, err := caller.CreateOffer(ctx)
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	if offer.Type != "offer" || offer.SDP == "" {
		t.Fatalf("unexpected offer: %+v", offer)
	}

	// Candidates arriving before the offer land in the callee's backlog and
	// are applied on flush without error.
	if err := callee.AddRemoteCandidate(hostCandidate()); err != nil {
		t.Fatalf("backlogged candidate: %v", err)
	}

	answer, err := callee.AcceptOffer(ctx, offer)
	if err != nil {
		t.Fatalf("accept offer: %v", err)
	}
	if answer.Type != "answer" || answer.SDP == "" {
		t.Fatalf("unexpected answer: %+v", answer)
	}

	if err := caller.ApplyAnswer(ctx, answer); err != nil {
		t.Fatalf("apply answer: %v", err)
	}

	// With remote descriptions set on both sides, candidates apply directly.
	if err := caller.AddRemoteCandidate(hostCandidate()); err != nil {
		t.Fatalf("late candidate on caller: %v", err)
	}
	if err := callee.AddRemoteCandidate(hostCandidate()); err != nil {
		t.Fatalf("late candidate on callee: %v", err)
	}
}

func TestApplyAnswerWithoutConnection(t *testing.T) {
	c := NewController("peer", Config{}, nil, nil)
	defer c.Close()

	if err := c.ApplyAnswer(context.Background(), signal.SessionDescription{Type: "answer", SDP: "v=0"}); err == nil {
		t.Fatal("expected error applying an answer with no connection")
	}
}

func TestCloseIdempotent(t *testing.T) {
	// Close before any connection exists.
	c := NewController("peer", Config{}, nil, nil)
	c.Close()
	c.Close()

	if err := c.AddRemoteCandidate(hostCandidate()); err != nil {
		t.Fatalf("candidates after close should be dropped silently, got %v", err)
	}
	if _, err := c.CreateOffer(context.Background()); err == nil {
		t.Fatal("expected error creating an offer after close")
	}

	// Close after a live connection exists.
	live := newTestController(t, "peer", nil)
	if _, err := live.CreateOffer(context.Background()); err != nil {
		t.Fatalf("create offer: %v", err)
	}
	live.Close()
	live.Close()
}

func TestStreamCloseIsIdempotent(t *testing.T) {
	stops := 0
	s := NewStream(nil, func() { stops++ })
	s.Close()
	s.Close()
	if stops != 1 {
		t.Fatalf("stop ran %d times, want once", stops)
	}
}
