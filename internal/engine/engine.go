// Package engine implements the participant-side call core: the matching
// state machine for the one active call, the queue of requests that arrived
// while busy, and the tracker for directed outgoing calls. All state is owned
// by a single event loop; public methods hand work to that loop and signaling
// events are consumed from the link in arrival order, so no two handlers for
// the same participant ever run concurrently.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/omitech/livetalk/internal/directory"
	"github.com/omitech/livetalk/internal/media"
	"github.com/omitech/livetalk/internal/signal"
)

// Role says which side of the support desk this participant is on.
type Role int

const (
	RoleCustomer Role = iota
	RoleAdmin
)

// Phase is the participant's current call phase. At most one call is non-Idle
// at any instant.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRinging
	PhaseAccepting
	PhaseInProgress
	PhaseEnding
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRinging:
		return "ringing"
	case PhaseAccepting:
		return "accepting"
	case PhaseInProgress:
		return "in-progress"
	case PhaseEnding:
		return "ending"
	default:
		return "unknown"
	}
}

// ActiveCall is the one live call, if any.
type ActiveCall struct {
	Peer        string
	PeerIsAdmin bool
	PeerName    string
	CallType    signal.CallType
	Phase       Phase
	StartedAt   time.Time
}

// MediaSession is what the engine needs from a per-call media controller.
// *media.Controller satisfies it.
type MediaSession interface {
	Attach(media.Stream)
	CreateOffer(ctx context.Context) (signal.SessionDescription, error)
	AcceptOffer(ctx context.Context, sd signal.SessionDescription) (signal.SessionDescription, error)
	ApplyAnswer(ctx context.Context, sd signal.SessionDescription) error
	AddRemoteCandidate(c signal.CandidateInit) error
	SetAudioEnabled(enabled bool)
	SetVideoEnabled(enabled bool)
	Close()
}

// MediaFactory builds the media session for a call with peerID. onCandidate
// and onDisconnected may be invoked from arbitrary goroutines.
type MediaFactory func(peerID string, onCandidate func(signal.CandidateInit), onDisconnected func()) MediaSession

// SessionCreator obtains a chat session identity before registration.
type SessionCreator interface {
	CreateSession(ctx context.Context, p signal.ClientProfile) (string, error)
}

// Config wires an Engine. Link and Capture are required; everything else has
// a usable default.
type Config struct {
	Role    Role
	Client  signal.ClientProfile
	Admin   signal.AdminProfile
	Link    signal.Link
	Capture media.CaptureProvider

	// NewSession overrides how media sessions are built. Defaults to
	// media.NewController over Capture with ICEServers.
	NewSession MediaFactory
	ICEServers []string

	// Sessions, when set for a customer without a session identity, is asked
	// for one before registering.
	Sessions SessionCreator

	// Notify receives the one-line user-visible notices. Called on the engine
	// loop; must not block.
	Notify func(msg string)

	// OnIncoming fires when a call starts ringing locally, including
	// promotions from the queue. Called on the engine loop.
	OnIncoming func(call ActiveCall)

	RingTimeout  time.Duration
	PromoteDelay time.Duration
}

const (
	defaultRingTimeout  = 30 * time.Second
	defaultPromoteDelay = 500 * time.Millisecond
)

var (
	// ErrEngineClosed is returned by public methods after the loop has exited.
	ErrEngineClosed = errors.New("engine: closed")

	validate = validator.New(validator.WithRequiredStructEnabled())
)

// State is a point-in-time snapshot for callers outside the loop.
type State struct {
	Active     *ActiveCall
	Outgoing   *OutgoingCall
	Requesting bool
	QueueLen   int
}

// Engine drives one participant's call state. Create with New, run with Run.
type Engine struct {
	cfg  Config
	link signal.Link

	cmds chan func()
	done chan struct{}
	stop sync.Once

	// Everything below is touched only from the loop goroutine.
	epoch       uint64
	active      *ActiveCall
	session     MediaSession
	localStream media.Stream
	queue       *CallQueue
	outgoing    *OutgoingCall
	requesting  bool
	roster      *directory.Memory

	promoteTimer *time.Timer
	outTimer     *time.Timer
}

func New(cfg Config) (*Engine, error) {
	if cfg.Link == nil {
		return nil, errors.New("engine: config needs a Link")
	}
	if cfg.Capture == nil {
		cfg.Capture = media.NullProvider{}
	}
	if cfg.RingTimeout <= 0 {
		cfg.RingTimeout = defaultRingTimeout
	}
	if cfg.PromoteDelay <= 0 {
		cfg.PromoteDelay = defaultPromoteDelay
	}

	switch cfg.Role {
	case RoleCustomer:
		if err := validate.Struct(cfg.Client); err != nil {
			return nil, fmt.Errorf("engine: customer profile: %w", err)
		}
	case RoleAdmin:
		if err := validate.Struct(cfg.Admin); err != nil {
			return nil, fmt.Errorf("engine: admin profile: %w", err)
		}
	default:
		return nil, fmt.Errorf("engine: unknown role %d", cfg.Role)
	}

	e := &Engine{
		cfg:    cfg,
		link:   cfg.Link,
		cmds:   make(chan func(), 32),
		done:   make(chan struct{}),
		queue:  NewCallQueue(),
		roster: directory.NewMemory(),
	}
	if e.cfg.NewSession == nil {
		mc := media.Config{ICEServers: cfg.ICEServers, Provider: cfg.Capture}
		e.cfg.NewSession = func(peerID string, onCandidate func(signal.CandidateInit), onDisconnected func()) MediaSession {
			return media.NewController(peerID, mc, onCandidate, onDisconnected)
		}
	}
	return e, nil
}

// Run registers on the link and processes events until ctx is cancelled or
// the link closes. It owns all engine state while running.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.register(ctx); err != nil {
		e.shutdown()
		return err
	}

	defer e.shutdown()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-e.link.Receive():
			if !ok {
				return signal.ErrLinkClosed
			}
			e.handle(msg)
		case fn := <-e.cmds:
			fn()
		}
	}
}

func (e *Engine) register(ctx context.Context) error {
	switch e.cfg.Role {
	case RoleCustomer:
		if e.cfg.Sessions != nil && e.cfg.Client.SessionID == "" {
			sid, err := e.cfg.Sessions.CreateSession(ctx, e.cfg.Client)
			if err != nil {
				return fmt.Errorf("create chat session: %w", err)
			}
			e.cfg.Client.SessionID = sid
		}
		return e.link.Send(signal.RegisterClient{ClientProfile: e.cfg.Client})
	default:
		return e.link.Send(signal.RegisterAdmin{AdminProfile: e.cfg.Admin})
	}
}

func (e *Engine) shutdown() {
	e.stop.Do(func() { close(e.done) })
	e.epoch++
	e.stopTimer(&e.promoteTimer)
	e.stopTimer(&e.outTimer)
	if e.session != nil {
		e.session.Close()
		e.session = nil
	}
	if e.localStream != nil {
		e.localStream.Close()
		e.localStream = nil
	}
	e.active = nil
	e.outgoing = nil
	if err := e.link.Close(); err != nil && !errors.Is(err, signal.ErrLinkClosed) {
		log.Printf("engine: close link: %v", err)
	}
}

// do runs fn on the loop and waits for it to finish.
func (e *Engine) do(fn func()) error {
	ran := make(chan struct{})
	wrapped := func() {
		fn()
		close(ran)
	}
	select {
	case e.cmds <- wrapped:
	case <-e.done:
		return ErrEngineClosed
	}
	select {
	case <-ran:
		return nil
	case <-e.done:
		return ErrEngineClosed
	}
}

// post hands fn to the loop without waiting. Used by async completions.
func (e *Engine) post(fn func()) {
	select {
	case e.cmds <- fn:
	case <-e.done:
	}
}

// State returns a snapshot of the engine's call state.
func (e *Engine) State() (State, error) {
	var s State
	err := e.do(func() {
		if e.active != nil {
			cp := *e.active
			s.Active = &cp
		}
		if e.outgoing != nil {
			cp := *e.outgoing
			s.Outgoing = &cp
		}
		s.Requesting = e.requesting
		s.QueueLen = e.queue.Len()
	})
	return s, err
}

// Roster returns the engine's mirror of the connected participants, as fed by
// roster events from the relay.
func (e *Engine) Roster() ([]signal.ClientInfo, []signal.AdminInfo, error) {
	var (
		clients []signal.ClientInfo
		admins  []signal.AdminInfo
	)
	err := e.do(func() {
		clients = e.roster.Clients()
		admins = e.roster.Admins()
	})
	return clients, admins, err
}

// RequestCall asks the relay for any available admin. Capture is acquired
// first so the offer can be produced as soon as an admin accepts; the request
// is only emitted once capture succeeds.
func (e *Engine) RequestCall(callType signal.CallType) error {
	return e.do(func() {
		if e.cfg.Role != RoleCustomer {
			e.notify("only customers request support calls")
			return
		}
		if e.active != nil || e.requesting {
			e.notify("a call is already in progress")
			return
		}
		e.requesting = true
		ep := e.epoch
		e.captureAsync(ep, callType, func(stream media.Stream) {
			e.localStream = stream
			e.send(signal.CallRequest{CallType: callType})
		}, func() {
			e.requesting = false
		})
	})
}

// CancelRequest withdraws an unanswered call request.
func (e *Engine) CancelRequest() error {
	return e.do(func() {
		if !e.requesting {
			return
		}
		e.requesting = false
		e.epoch++
		e.send(signal.CancelCallRequest{})
		e.dropLocalStream()
	})
}

// Accept takes the currently ringing call. Capture runs first; if it fails
// the call silently resets and the caller keeps ringing until its timeout.
func (e *Engine) Accept() error {
	return e.do(func() {
		if e.active == nil || e.active.Phase != PhaseRinging {
			return
		}
		e.active.Phase = PhaseAccepting
		call := *e.active
		ep := e.epoch
		e.captureAsync(ep, call.CallType, func(stream media.Stream) {
			e.localStream = stream
			if call.PeerIsAdmin {
				e.send(signal.AcceptAdminCall{AdminID: call.Peer, CallType: call.CallType})
			} else {
				e.send(signal.AcceptCall{ClientID: call.Peer, CallType: call.CallType})
			}
			// The accepted side answers; the offer arrives from the peer.
			e.ensureSession(call.Peer)
		}, func() {
			e.abortAccept()
		})
	})
}

// Reject declines the currently ringing call and promotes the next one.
func (e *Engine) Reject() error {
	return e.do(func() {
		if e.active == nil || e.active.Phase != PhaseRinging {
			return
		}
		if e.active.PeerIsAdmin {
			e.send(signal.RejectAdminCall{AdminID: e.active.Peer})
		} else {
			e.send(signal.EndCall{TargetID: e.active.Peer})
		}
		e.resetCall(false, "")
	})
}

// Hangup ends the active call and notifies the peer.
func (e *Engine) Hangup() error {
	return e.do(func() {
		if e.active == nil {
			return
		}
		e.resetCall(true, "")
	})
}

// CallAdmin initiates a directed call to another admin by phone number.
func (e *Engine) CallAdmin(phone string, callType signal.CallType) error {
	return e.do(func() {
		if e.cfg.Role != RoleAdmin {
			e.notify("only admins place directed calls")
			return
		}
		if e.active != nil || (e.outgoing != nil && !e.outgoing.terminal()) {
			e.notify("a call is already in progress")
			return
		}
		if target, ok := e.roster.AdminByPhone(phone); !ok {
			e.outgoing = &OutgoingCall{TargetPhone: phone, CallType: callType, Status: OutgoingRejected, Reason: ReasonNotFound}
			e.notify("admin " + phone + " is not online")
			return
		} else {
			e.outgoing = &OutgoingCall{
				TargetID:    target.SocketID,
				TargetPhone: phone,
				TargetName:  target.Name,
				CallType:    callType,
				Status:      OutgoingCalling,
			}
		}
		e.send(signal.AdminCallAdmin{TargetAdminPhone: phone, CallType: callType})
	})
}

// CancelOutgoing withdraws a directed call before it connects.
func (e *Engine) CancelOutgoing() error {
	return e.do(func() {
		if e.outgoing == nil || e.outgoing.terminal() {
			return
		}
		e.stopTimer(&e.outTimer)
		if e.outgoing.TargetID != "" {
			e.send(signal.AdminCallTimeout{TargetAdminID: e.outgoing.TargetID})
		}
		e.outgoing = nil
		if e.active != nil {
			e.resetCall(true, "")
		}
	})
}

// ToggleAudio mutes or unmutes the outbound microphone mid-call.
func (e *Engine) ToggleAudio(enabled bool) error {
	return e.do(func() {
		if e.session != nil {
			e.session.SetAudioEnabled(enabled)
		}
	})
}

// ToggleVideo pauses or resumes the outbound camera mid-call.
func (e *Engine) ToggleVideo(enabled bool) error {
	return e.do(func() {
		if e.session != nil {
			e.session.SetVideoEnabled(enabled)
		}
	})
}

// handle dispatches one inbound signaling event. Runs on the loop.
func (e *Engine) handle(msg signal.Message) {
	switch m := msg.(type) {
	case signal.CurrentClients:
		e.roster.ResetClients(m.Clients)
	case signal.CurrentAdmins:
		e.roster.ResetAdmins(m.Admins)
	case signal.NewClient:
		e.roster.PutClient(m.ClientInfo)
	case signal.NewAdmin:
		e.roster.PutAdmin(m.AdminInfo)
	case signal.ClientDisconnected:
		e.handlePeerGone(m.SocketID)
	case signal.AdminDisconnected:
		e.handlePeerGone(m.SocketID)

	case signal.IncomingCall:
		e.handleIncoming(m.SocketID, false, m.UserData.Name, m.CallType)
	case signal.IncomingAdminCall:
		e.handleIncoming(m.SocketID, true, m.AdminData.Name, m.CallType)
	case signal.CallAccepted:
		e.handleCallAccepted(m.AdminID, m.CallType)
	case signal.CallRequestCancelled:
		e.handleRequestGone(m.SocketID, "")
	case signal.CallTimeout:
		e.handleCallTimeout(m.SocketID)
	case signal.CallEnded:
		e.handleCallEnded(m.Source)

	case signal.Offer:
		e.handleOffer(m)
	case signal.Answer:
		e.handleAnswer(m)
	case signal.ICECandidate:
		e.handleCandidate(m)

	case signal.AdminCallSent:
		e.handleAdminCallSent(m)
	case signal.AdminCallAccepted:
		e.handleAdminCallAccepted(m)
	case signal.AdminCallRejected:
		e.finishOutgoing(m.AdminID, OutgoingRejected, ReasonDeclined, "call declined")
	case signal.AdminBusy:
		e.handleAdminBusy(m)
	case signal.AdminNotFound:
		e.handleAdminNotFound(m)
	case signal.AdminCallTimeout:
		e.handleAdminCallTimeoutIn(m)

	default:
		log.Printf("engine: ignoring %s", msg.Type())
	}
}

// handleIncoming rings if Idle, otherwise queues. A second request from the
// same origin replaces its queued entry.
func (e *Engine) handleIncoming(origin string, fromAdmin bool, name string, callType signal.CallType) {
	if e.active != nil || e.requesting {
		e.queue.Enqueue(QueuedCall{
			Origin:        origin,
			OriginIsAdmin: fromAdmin,
			DisplayName:   name,
			CallType:      callType,
			CreatedAt:     time.Now(),
		})
		return
	}
	e.startRinging(QueuedCall{Origin: origin, OriginIsAdmin: fromAdmin, DisplayName: name, CallType: callType})
}

func (e *Engine) startRinging(req QueuedCall) {
	e.active = &ActiveCall{
		Peer:        req.Origin,
		PeerIsAdmin: req.OriginIsAdmin,
		PeerName:    req.DisplayName,
		CallType:    req.CallType,
		Phase:       PhaseRinging,
		StartedAt:   time.Now(),
	}
	if e.cfg.OnIncoming != nil {
		e.cfg.OnIncoming(*e.active)
	}
}

// handleCallAccepted is the customer side learning which admin took the
// request. The customer builds and sends the offer.
func (e *Engine) handleCallAccepted(adminID string, callType signal.CallType) {
	if !e.requesting || e.active != nil {
		return
	}
	e.requesting = false
	var name string
	if info, ok := e.roster.Admin(adminID); ok {
		name = info.Name
	}
	e.active = &ActiveCall{
		Peer:        adminID,
		PeerIsAdmin: true,
		PeerName:    name,
		CallType:    callType,
		Phase:       PhaseAccepting,
		StartedAt:   time.Now(),
	}
	e.sendOffer()
}

// sendOffer builds the media session, attaches already-captured tracks, and
// ships the offer to the active peer.
func (e *Engine) sendOffer() {
	call := *e.active
	sess := e.ensureSession(call.Peer)
	ep := e.epoch
	go func() {
		sd, err := sess.CreateOffer(context.Background())
		e.post(func() {
			if e.epoch != ep {
				return
			}
			if err != nil {
				log.Printf("engine: create offer for %s: %v", call.Peer, err)
				e.resetCall(true, "could not start the call")
				return
			}
			e.send(signal.Offer{Target: call.Peer, Offer: sd, CallType: call.CallType})
			if e.active != nil {
				e.active.Phase = PhaseInProgress
			}
		})
	}()
}

func (e *Engine) handleOffer(m signal.Offer) {
	if e.active == nil || m.Source != e.active.Peer {
		return
	}
	if e.active.Phase != PhaseAccepting && e.active.Phase != PhaseInProgress {
		return
	}
	call := *e.active
	sess := e.ensureSession(call.Peer)
	ep := e.epoch
	go func() {
		sd, err := sess.AcceptOffer(context.Background(), m.Offer)
		e.post(func() {
			if e.epoch != ep {
				return
			}
			if err != nil {
				log.Printf("engine: accept offer from %s: %v", call.Peer, err)
				e.resetCall(true, "could not join the call")
				return
			}
			e.send(signal.Answer{Target: call.Peer, Answer: sd, CallType: call.CallType})
			if e.active != nil {
				e.active.Phase = PhaseInProgress
			}
		})
	}()
}

func (e *Engine) handleAnswer(m signal.Answer) {
	if e.active == nil || m.Source != e.active.Peer || e.session == nil {
		return
	}
	sess := e.session
	peer := e.active.Peer
	ep := e.epoch
	go func() {
		err := sess.ApplyAnswer(context.Background(), m.Answer)
		e.post(func() {
			if e.epoch != ep {
				return
			}
			if err != nil {
				log.Printf("engine: apply answer from %s: %v", peer, err)
				e.resetCall(true, "could not join the call")
				return
			}
			if e.active != nil {
				e.active.Phase = PhaseInProgress
			}
		})
	}()
}

func (e *Engine) handleCandidate(m signal.ICECandidate) {
	if e.active == nil || m.Source != e.active.Peer {
		return
	}
	sess := e.ensureSession(e.active.Peer)
	if err := sess.AddRemoteCandidate(m.Candidate); err != nil {
		log.Printf("engine: remote candidate from %s: %v", m.Source, err)
	}
}

// handleRequestGone retracts a pending request everywhere it may live: the
// ringing slot, a not-yet-connected accept, or the queue. An InProgress call
// survives; by then the request has become a live call and only end-call or a
// disconnect tears it down.
func (e *Engine) handleRequestGone(origin, notice string) {
	if e.active != nil && e.active.Peer == origin &&
		(e.active.Phase == PhaseRinging || e.active.Phase == PhaseAccepting) {
		e.resetCall(false, notice)
		return
	}
	e.queue.Remove(origin)
}

func (e *Engine) handleCallTimeout(origin string) {
	if e.requesting {
		e.requesting = false
		e.epoch++
		e.dropLocalStream()
		e.notify("no one answered")
		return
	}
	e.handleRequestGone(origin, "missed call")
}

func (e *Engine) handleCallEnded(source string) {
	if e.active != nil && e.active.Peer == source {
		e.resetCall(false, "call ended")
		return
	}
	e.queue.Remove(source)
}

func (e *Engine) handlePeerGone(socketID string) {
	e.roster.Remove(socketID)
	if e.active != nil && e.active.Peer == socketID {
		e.resetCall(false, "peer disconnected")
	}
	if e.outgoing != nil && !e.outgoing.terminal() && e.outgoing.TargetID == socketID {
		e.stopTimer(&e.outTimer)
		e.outgoing.Status = OutgoingRejected
		e.outgoing.Reason = ReasonNotFound
		e.notify("admin went offline")
	}
	// Queued entries from this origin are dropped lazily on promotion.
}

// handleAdminCallSent is the dispatch acknowledgement; the ring timer starts
// here, not at initiation.
func (e *Engine) handleAdminCallSent(m signal.AdminCallSent) {
	if e.outgoing == nil || e.outgoing.Status != OutgoingCalling || m.PhoneNumber != e.outgoing.TargetPhone {
		return
	}
	e.outgoing.TargetID = m.TargetAdminID
	e.stopTimer(&e.outTimer)
	// Guarded by tracker status rather than the call epoch: the timer belongs
	// to the outgoing attempt, which outlives unrelated active-call resets.
	e.outTimer = time.AfterFunc(e.cfg.RingTimeout, func() {
		e.post(func() {
			if e.outgoing == nil || e.outgoing.Status != OutgoingCalling {
				return
			}
			e.outgoing.Status = OutgoingTimedOut
			e.send(signal.AdminCallTimeout{TargetAdminID: e.outgoing.TargetID})
			e.notify("no answer from " + e.outgoing.displayName())
			if e.active != nil {
				e.resetCall(false, "")
			}
		})
	})
}

func (e *Engine) handleAdminCallAccepted(m signal.AdminCallAccepted) {
	if e.outgoing == nil || e.outgoing.Status != OutgoingCalling || m.AdminID != e.outgoing.TargetID {
		return
	}
	e.stopTimer(&e.outTimer)
	e.outgoing.Status = OutgoingAccepted
	out := *e.outgoing
	e.active = &ActiveCall{
		Peer:        out.TargetID,
		PeerIsAdmin: true,
		PeerName:    out.TargetName,
		CallType:    out.CallType,
		Phase:       PhaseAccepting,
		StartedAt:   time.Now(),
	}
	ep := e.epoch
	e.captureAsync(ep, out.CallType, func(stream media.Stream) {
		e.localStream = stream
		e.sendOffer()
	}, func() {
		e.resetCall(true, "")
	})
}

func (e *Engine) handleAdminBusy(m signal.AdminBusy) {
	if e.outgoing == nil || e.outgoing.Status != OutgoingCalling || m.TargetAdminID != e.outgoing.TargetID {
		return
	}
	e.stopTimer(&e.outTimer)
	e.outgoing.Status = OutgoingRejected
	e.outgoing.Reason = ReasonBusy
	e.notify(m.AdminName + " is on another call")
}

func (e *Engine) handleAdminNotFound(m signal.AdminNotFound) {
	if e.outgoing == nil || e.outgoing.Status != OutgoingCalling || m.PhoneNumber != e.outgoing.TargetPhone {
		return
	}
	e.stopTimer(&e.outTimer)
	e.outgoing.Status = OutgoingRejected
	e.outgoing.Reason = ReasonNotFound
	e.notify("admin " + m.PhoneNumber + " is not online")
}

func (e *Engine) finishOutgoing(adminID string, status OutgoingStatus, reason RejectReason, notice string) {
	if e.outgoing == nil || e.outgoing.Status != OutgoingCalling || adminID != e.outgoing.TargetID {
		return
	}
	e.stopTimer(&e.outTimer)
	e.outgoing.Status = status
	e.outgoing.Reason = reason
	e.notify(notice)
}

// handleAdminCallTimeoutIn is the callee side: the caller gave up waiting, so
// retract the ring or the queued entry.
func (e *Engine) handleAdminCallTimeoutIn(m signal.AdminCallTimeout) {
	if m.AdminID == "" {
		return
	}
	e.handleRequestGone(m.AdminID, "missed call")
}

// captureAsync acquires local media off the loop and resumes on it. The call
// may be long gone by then, so the epoch is re-checked on resumption; onFail
// runs for capture errors after the local reset, with no peer notification.
func (e *Engine) captureAsync(ep uint64, callType signal.CallType, onReady func(media.Stream), onFail func()) {
	constraints := media.Constraints{Audio: true, Video: callType == signal.CallVideo}
	go func() {
		stream, err := e.cfg.Capture.GetUserMedia(context.Background(), constraints)
		e.post(func() {
			if e.epoch != ep {
				if err == nil {
					stream.Close()
				}
				return
			}
			if err != nil {
				log.Printf("engine: media capture: %v", err)
				e.notify("could not access camera or microphone")
				if onFail != nil {
					onFail()
				}
				return
			}
			onReady(stream)
		})
	}()
}

// abortAccept backs out of a failed accept without telling the peer, which
// keeps ringing until its own timeout fires.
func (e *Engine) abortAccept() {
	if e.active == nil {
		return
	}
	e.active = nil
	e.epoch++
	e.schedulePromote()
}

// ensureSession builds the media session for the active peer on first use and
// hands it any already-captured local tracks.
func (e *Engine) ensureSession(peer string) MediaSession {
	if e.session != nil {
		return e.session
	}
	ep := e.epoch
	e.session = e.cfg.NewSession(peer,
		func(c signal.CandidateInit) {
			e.post(func() {
				if e.epoch != ep {
					return
				}
				e.send(signal.ICECandidate{Target: peer, Candidate: c})
			})
		},
		func() {
			e.post(func() {
				if e.epoch != ep {
					return
				}
				e.resetCall(false, "call disconnected")
			})
		},
	)
	if e.localStream != nil {
		e.session.Attach(e.localStream)
	}
	return e.session
}

// resetCall tears down the active call and schedules queue promotion. emitEnd
// says whether the peer still needs an explicit hangup notification.
func (e *Engine) resetCall(emitEnd bool, notice string) {
	if e.active == nil {
		return
	}
	if emitEnd {
		e.send(signal.EndCall{TargetID: e.active.Peer})
	}
	e.active.Phase = PhaseEnding
	e.epoch++
	if e.session != nil {
		e.session.Close()
		e.session = nil
	}
	e.dropLocalStream()
	e.active = nil
	if notice != "" {
		e.notify(notice)
	}
	e.schedulePromote()
}

// schedulePromote arms the grace delay before the next queued request rings.
// A call that starts during the delay wins; the queue entry stays queued.
func (e *Engine) schedulePromote() {
	e.stopTimer(&e.promoteTimer)
	ep := e.epoch
	e.promoteTimer = time.AfterFunc(e.cfg.PromoteDelay, func() {
		e.post(func() {
			if e.epoch != ep || e.active != nil || e.requesting {
				return
			}
			if req, ok := e.queue.PopNext(e.roster.Known); ok {
				e.startRinging(req)
			}
		})
	})
}

func (e *Engine) dropLocalStream() {
	if e.localStream != nil {
		e.localStream.Close()
		e.localStream = nil
	}
}

func (e *Engine) stopTimer(t **time.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func (e *Engine) send(msg signal.Message) {
	if err := e.link.Send(msg); err != nil {
		log.Printf("engine: send %s: %v", msg.Type(), err)
	}
}

func (e *Engine) notify(msg string) {
	if e.cfg.Notify != nil {
		e.cfg.Notify(msg)
	}
}

func (o *OutgoingCall) displayName() string {
	if o.TargetName != "" {
		return o.TargetName
	}
	return o.TargetPhone
}
