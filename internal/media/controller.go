package media

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/omitech/livetalk/internal/signal"
)

// Config carries the per-deployment knobs for building peer connections.
type Config struct {
	ICEServers []string
	Provider   CaptureProvider
}

// Controller owns exactly one peer connection for one call. Remote candidates
// that arrive before the remote description are held in a backlog and applied
// in arrival order once the description lands. Close is idempotent and safe
// before any connection exists.
type Controller struct {
	cfg    Config
	peerID string

	onCandidate    func(signal.CandidateInit)
	onDisconnected func()
	endOnce        sync.Once

	mu        sync.Mutex
	pc        *webrtc.PeerConnection
	stream    Stream
	slots     []sendSlot
	backlog   []signal.CandidateInit
	remoteSet bool
	attached  bool
	closed    bool
}

// sendSlot remembers the original track per sender so mute toggles can swap it
// back in after a ReplaceTrack(nil).
type sendSlot struct {
	sender *webrtc.RTPSender
	track  webrtc.TrackLocal
	kind   webrtc.RTPCodecType
}

// NewController builds a controller for a call with peerID. onCandidate fires
// for every locally gathered candidate as soon as it is available;
// onDisconnected fires at most once when the connection degrades to
// disconnected or failed.
func NewController(peerID string, cfg Config, onCandidate func(signal.CandidateInit), onDisconnected func()) *Controller {
	if cfg.Provider == nil {
		cfg.Provider = NullProvider{}
	}
	return &Controller{
		cfg:            cfg,
		peerID:         peerID,
		onCandidate:    onCandidate,
		onDisconnected: onDisconnected,
	}
}

// Attach hands the local capture stream to the controller. Tracks are added to
// the connection immediately if it exists, or when it is first built.
func (c *Controller) Attach(stream Stream) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.stream = stream
	if c.pc != nil {
		c.attachLocked()
	}
}

// CreateOffer builds the connection if needed, attaches local tracks, and
// returns the offer after setting it as the local description.
func (c *Controller) CreateOffer(ctx context.Context) (signal.SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return signal.SessionDescription{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return signal.SessionDescription{}, fmt.Errorf("media: controller closed")
	}
	if err := c.ensurePCLocked(); err != nil {
		return signal.SessionDescription{}, err
	}
	c.attachLocked()

	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return signal.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return signal.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return signal.SessionDescription{Type: offer.Type.String(), SDP: offer.SDP}, nil
}

// AcceptOffer applies a remote offer and returns the local answer. The ICE
// backlog is flushed as soon as the remote description is set.
func (c *Controller) AcceptOffer(ctx context.Context, sd signal.SessionDescription) (signal.SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return signal.SessionDescription{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return signal.SessionDescription{}, fmt.Errorf("media: controller closed")
	}
	if err := c.ensurePCLocked(); err != nil {
		return signal.SessionDescription{}, err
	}

	if err := c.pc.SetRemoteDescription(toPionSD(sd)); err != nil {
		return signal.SessionDescription{}, fmt.Errorf("set remote description: %w", err)
	}
	c.remoteSet = true
	c.flushBacklogLocked()
	c.attachLocked()

	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return signal.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return signal.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return signal.SessionDescription{Type: answer.Type.String(), SDP: answer.SDP}, nil
}

// ApplyAnswer applies the remote answer and flushes the ICE backlog.
func (c *Controller) ApplyAnswer(ctx context.Context, sd signal.SessionDescription) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.pc == nil {
		return fmt.Errorf("media: no connection to answer")
	}
	if err := c.pc.SetRemoteDescription(toPionSD(sd)); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	c.remoteSet = true
	c.flushBacklogLocked()
	return nil
}

// AddRemoteCandidate applies a candidate immediately when the remote
// description is set, otherwise parks it in the backlog. Never fails on
// early-arriving candidates.
func (c *Controller) AddRemoteCandidate(cand signal.CandidateInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	if !c.remoteSet || c.pc == nil {
		c.backlog = append(c.backlog, cand)
		return nil
	}
	if err := c.pc.AddICECandidate(toPionCandidate(cand)); err != nil {
		return fmt.Errorf("add ice candidate: %w", err)
	}
	return nil
}

// SetAudioEnabled mutes or unmutes outbound audio without renegotiating.
func (c *Controller) SetAudioEnabled(enabled bool) {
	c.setKindEnabled(webrtc.RTPCodecTypeAudio, enabled)
}

// SetVideoEnabled pauses or resumes outbound video without renegotiating.
func (c *Controller) SetVideoEnabled(enabled bool) {
	c.setKindEnabled(webrtc.RTPCodecTypeVideo, enabled)
}

func (c *Controller) setKindEnabled(kind webrtc.RTPCodecType, enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	for _, slot := range c.slots {
		if slot.kind != kind {
			continue
		}
		var next webrtc.TrackLocal
		if enabled {
			next = slot.track
		}
		if err := slot.sender.ReplaceTrack(next); err != nil {
			log.Printf("media [%s]: replace %s track: %v", c.peerID, kind, err)
		}
	}
}

// Close stops local capture, closes the connection, and discards the backlog.
// Safe to call multiple times, and before any connection exists. A close
// initiated here never re-enters the disconnect callback.
func (c *Controller) Close() {
	c.endOnce.Do(func() {})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	stream := c.stream
	pc := c.pc
	c.stream = nil
	c.pc = nil
	c.slots = nil
	c.backlog = nil
	c.mu.Unlock()

	if stream != nil {
		stream.Close()
	}
	if pc != nil {
		if err := pc.Close(); err != nil {
			log.Printf("media [%s]: close peer connection: %v", c.peerID, err)
		}
	}
}

func (c *Controller) ensurePCLocked() error {
	if c.pc != nil {
		return nil
	}

	servers := make([]webrtc.ICEServer, 0, len(c.cfg.ICEServers))
	for _, url := range c.cfg.ICEServers {
		servers = append(servers, webrtc.ICEServer{URLs: []string{url}})
	}

	pc, err := c.cfg.Provider.NewPeerConnection(webrtc.Configuration{ICEServers: servers})
	if err != nil {
		return fmt.Errorf("new peer connection: %w", err)
	}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil || c.onCandidate == nil {
			return
		}
		c.onCandidate(fromPionCandidate(cand.ToJSON()))
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Printf("media [%s]: connection state %s", c.peerID, state)
		switch state {
		case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateFailed:
			if c.onDisconnected != nil {
				c.endOnce.Do(c.onDisconnected)
			}
		}
	})

	c.pc = pc
	return nil
}

// attachLocked adds local tracks once. Without any capture the connection gets
// recvonly transceivers so the SDP still carries valid audio/video m-lines.
func (c *Controller) attachLocked() {
	if c.attached || c.pc == nil {
		return
	}

	var tracks []webrtc.TrackLocal
	if c.stream != nil {
		tracks = c.stream.Tracks()
	}

	if len(tracks) == 0 {
		if c.stream == nil {
			return
		}
		for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
			if _, err := c.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
				Direction: webrtc.RTPTransceiverDirectionRecvonly,
			}); err != nil {
				log.Printf("media [%s]: add recvonly %s transceiver: %v", c.peerID, kind, err)
			}
		}
		c.attached = true
		return
	}

	for _, track := range tracks {
		sender, err := c.pc.AddTrack(track)
		if err != nil {
			log.Printf("media [%s]: add track: %v", c.peerID, err)
			continue
		}
		c.slots = append(c.slots, sendSlot{sender: sender, track: track, kind: track.Kind()})
	}
	c.attached = true
}

func (c *Controller) flushBacklogLocked() {
	for _, cand := range c.backlog {
		if err := c.pc.AddICECandidate(toPionCandidate(cand)); err != nil {
			log.Printf("media [%s]: apply backlogged candidate: %v", c.peerID, err)
		}
	}
	c.backlog = nil
}

func toPionSD(sd signal.SessionDescription) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.NewSDPType(sd.Type), SDP: sd.SDP}
}

func toPionCandidate(c signal.CandidateInit) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

func fromPionCandidate(c webrtc.ICECandidateInit) signal.CandidateInit {
	return signal.CandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}
