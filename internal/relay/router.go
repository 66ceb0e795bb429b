// Package relay implements the signaling hub's routing brain: it owns the
// roster of connected participants, forwards events between them by socket
// identity, dispatches call requests to admins, and enforces the ring timeout
// for requests nobody answers.
package relay

import (
	"log"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/omitech/livetalk/internal/directory"
	"github.com/omitech/livetalk/internal/metrics"
	"github.com/omitech/livetalk/internal/signal"
)

// Sender delivers an encoded event to one connected participant. It reports
// false when the participant is no longer connected.
type Sender interface {
	Send(socketID string, msg signal.Message) bool
}

const defaultRingTimeout = 30 * time.Second

// busyEntry pairs a participant with their current call peer.
type busyEntry struct {
	peer  string
	since time.Time
}

// Router routes signaling events between participants. Safe for concurrent
// use; the hub invokes it from one goroutine per connection.
type Router struct {
	send        Sender
	metrics     metrics.Collector
	validate    *validator.Validate
	ringTimeout time.Duration

	mu      sync.Mutex
	dir     *directory.Memory
	busy    map[string]busyEntry
	ringing map[string]*time.Timer
}

// Option tweaks a Router.
type Option func(*Router)

func WithRingTimeout(d time.Duration) Option {
	return func(r *Router) { r.ringTimeout = d }
}

func NewRouter(m metrics.Collector, opts ...Option) *Router {
	if m == nil {
		m = metrics.NewNoopCollector()
	}
	r := &Router{
		metrics:     m,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		ringTimeout: defaultRingTimeout,
		dir:         directory.NewMemory(),
		busy:        make(map[string]busyEntry),
		ringing:     make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Bind attaches the transport used to deliver events. Must be called before
// any traffic flows.
func (r *Router) Bind(s Sender) { r.send = s }

// Disconnect invalidates all state referencing socketID: roster entry, busy
// pairing, pending ring timer. The busy peer is told the call ended.
func (r *Router) Disconnect(socketID string) {
	r.mu.Lock()
	_, wasClient := r.dir.Client(socketID)
	_, wasAdmin := r.dir.Admin(socketID)
	r.dir.Remove(socketID)
	r.stopRingLocked(socketID)

	var peer string
	if entry, ok := r.busy[socketID]; ok {
		peer = entry.peer
		r.endPairLocked(socketID)
	}
	admins := r.dir.Admins()
	clients := r.dir.Clients()
	r.mu.Unlock()

	if peer != "" {
		r.deliver(peer, signal.CallEnded{Source: socketID, IsAdmin: wasAdmin})
	}

	switch {
	case wasClient:
		r.metrics.ParticipantDisconnected("client")
		for _, a := range admins {
			r.deliver(a.SocketID, signal.ClientDisconnected{SocketID: socketID})
		}
	case wasAdmin:
		r.metrics.ParticipantDisconnected("admin")
		for _, a := range admins {
			r.deliver(a.SocketID, signal.AdminDisconnected{SocketID: socketID})
		}
		for _, c := range clients {
			r.deliver(c.SocketID, signal.AdminDisconnected{SocketID: socketID})
		}
	}
}

// Handle routes one decoded event from socketID.
func (r *Router) Handle(socketID string, msg signal.Message) {
	switch m := msg.(type) {
	case signal.RegisterClient:
		r.registerClient(socketID, m)
	case signal.RegisterAdmin:
		r.registerAdmin(socketID, m)
	case signal.CallRequest:
		r.callRequest(socketID, m)
	case signal.CancelCallRequest:
		r.cancelCallRequest(socketID, m)
	case signal.AcceptCall:
		r.acceptCall(socketID, m)
	case signal.Offer:
		r.forwardTo(m.Target, signal.Offer{Source: socketID, Offer: m.Offer, CallType: m.CallType})
	case signal.Answer:
		r.forwardTo(m.Target, signal.Answer{Source: socketID, Answer: m.Answer, CallType: m.CallType})
	case signal.ICECandidate:
		r.forwardTo(m.Target, signal.ICECandidate{Source: socketID, Candidate: m.Candidate})
	case signal.EndCall:
		r.endCall(socketID, m)
	case signal.AdminCallAdmin:
		r.adminCallAdmin(socketID, m)
	case signal.AcceptAdminCall:
		r.acceptAdminCall(socketID, m)
	case signal.RejectAdminCall:
		r.forwardTo(m.AdminID, signal.AdminCallRejected{AdminID: socketID})
	case signal.AdminCallTimeout:
		r.forwardTo(m.TargetAdminID, signal.AdminCallTimeout{AdminID: socketID})
	default:
		log.Printf("relay: dropping %s from %s", msg.Type(), socketID)
		r.metrics.MessageError(string(msg.Type()), "unroutable")
	}
}

func (r *Router) registerClient(socketID string, m signal.RegisterClient) {
	if err := r.validate.Struct(m.ClientProfile); err != nil {
		log.Printf("relay: rejecting client registration from %s: %v", socketID, err)
		r.metrics.MessageError(string(m.Type()), "invalid_profile")
		return
	}
	info := signal.ClientInfo{SocketID: socketID, UserData: m.ClientProfile}

	r.mu.Lock()
	r.dir.PutClient(info)
	admins := r.dir.Admins()
	r.mu.Unlock()

	r.metrics.ParticipantRegistered("client")
	log.Printf("relay: client %s registered (%s)", socketID, m.Name)

	r.deliver(socketID, signal.CurrentAdmins{Admins: admins})
	for _, a := range admins {
		r.deliver(a.SocketID, signal.NewClient{ClientInfo: info})
	}
}

func (r *Router) registerAdmin(socketID string, m signal.RegisterAdmin) {
	if err := r.validate.Struct(m.AdminProfile); err != nil {
		log.Printf("relay: rejecting admin registration from %s: %v", socketID, err)
		r.metrics.MessageError(string(m.Type()), "invalid_profile")
		return
	}
	info := signal.AdminInfo{SocketID: socketID, PhoneNumber: m.PhoneNumber, Name: m.Name}

	r.mu.Lock()
	r.dir.PutAdmin(info)
	admins := r.dir.Admins()
	clients := r.dir.Clients()
	r.mu.Unlock()

	r.metrics.ParticipantRegistered("admin")
	log.Printf("relay: admin %s registered (%s)", socketID, m.Name)

	r.deliver(socketID, signal.CurrentAdmins{Admins: admins})
	r.deliver(socketID, signal.CurrentClients{Clients: clients})
	for _, a := range admins {
		if a.SocketID == socketID {
			continue
		}
		r.deliver(a.SocketID, signal.NewAdmin{AdminInfo: info})
	}
	for _, c := range clients {
		r.deliver(c.SocketID, signal.NewAdmin{AdminInfo: info})
	}
}

// callRequest fans the request out to every admin and arms the ring timer.
// If nobody accepts before it fires, both sides get a timeout notice.
func (r *Router) callRequest(socketID string, m signal.CallRequest) {
	r.mu.Lock()
	info, ok := r.dir.Client(socketID)
	if !ok {
		r.mu.Unlock()
		log.Printf("relay: call request from unregistered %s", socketID)
		return
	}
	admins := r.dir.Admins()
	r.stopRingLocked(socketID)
	r.ringing[socketID] = time.AfterFunc(r.ringTimeout, func() { r.ringTimedOut(socketID) })
	r.mu.Unlock()

	r.metrics.CallDispatched(string(m.CallType))
	for _, a := range admins {
		r.deliver(a.SocketID, signal.IncomingCall{SocketID: socketID, UserData: info.UserData, CallType: m.CallType})
	}
}

func (r *Router) ringTimedOut(socketID string) {
	r.mu.Lock()
	if _, ok := r.ringing[socketID]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.ringing, socketID)
	admins := r.dir.Admins()
	r.mu.Unlock()

	r.metrics.CallTimedOut()
	log.Printf("relay: call request from %s timed out", socketID)
	r.deliver(socketID, signal.CallTimeout{SocketID: socketID})
	for _, a := range admins {
		r.deliver(a.SocketID, signal.CallTimeout{SocketID: socketID})
	}
}

func (r *Router) cancelCallRequest(socketID string, m signal.CancelCallRequest) {
	r.mu.Lock()
	r.stopRingLocked(socketID)
	admins := r.dir.Admins()
	r.mu.Unlock()

	for _, a := range admins {
		r.deliver(a.SocketID, signal.CallRequestCancelled{SocketID: socketID, CallType: m.CallType})
	}
}

// acceptCall is first-writer-wins: the first admin to accept a live request
// gets the call. Later accepts, and accepts for a request that already rang
// out or was withdrawn, are answered with a cancellation notice and never
// pair; a stale pairing would block the client's next request.
func (r *Router) acceptCall(adminID string, m signal.AcceptCall) {
	r.mu.Lock()
	if _, taken := r.busy[m.ClientID]; taken {
		r.mu.Unlock()
		r.deliver(adminID, signal.CallRequestCancelled{SocketID: m.ClientID, CallType: m.CallType})
		return
	}
	if !r.dir.Known(m.ClientID) {
		r.mu.Unlock()
		r.deliver(adminID, signal.CallEnded{Source: m.ClientID})
		return
	}
	if !r.stopRingLocked(m.ClientID) {
		r.mu.Unlock()
		r.deliver(adminID, signal.CallRequestCancelled{SocketID: m.ClientID, CallType: m.CallType})
		return
	}
	r.pairLocked(adminID, m.ClientID)
	admins := r.dir.Admins()
	r.mu.Unlock()

	r.metrics.CallAccepted(string(m.CallType))
	r.deliver(m.ClientID, signal.CallAccepted{AdminID: adminID, CallType: m.CallType})
	for _, a := range admins {
		if a.SocketID == adminID {
			continue
		}
		r.deliver(a.SocketID, signal.CallRequestCancelled{SocketID: m.ClientID, CallType: m.CallType})
	}
}

func (r *Router) endCall(socketID string, m signal.EndCall) {
	r.mu.Lock()
	_, isAdmin := r.dir.Admin(socketID)
	entry, paired := r.busy[socketID]
	if paired {
		r.endPairLocked(socketID)
	}
	r.mu.Unlock()

	if paired {
		r.metrics.CallEnded(time.Since(entry.since).Seconds())
	}
	r.forwardTo(m.TargetID, signal.CallEnded{Source: socketID, IsAdmin: isAdmin})
}

func (r *Router) adminCallAdmin(callerID string, m signal.AdminCallAdmin) {
	r.mu.Lock()
	caller, ok := r.dir.Admin(callerID)
	if !ok {
		r.mu.Unlock()
		return
	}
	target, found := r.dir.AdminByPhone(m.TargetAdminPhone)
	if !found || target.SocketID == callerID {
		r.mu.Unlock()
		r.deliver(callerID, signal.AdminNotFound{PhoneNumber: m.TargetAdminPhone})
		return
	}
	if _, taken := r.busy[target.SocketID]; taken {
		r.mu.Unlock()
		r.deliver(callerID, signal.AdminBusy{TargetAdminID: target.SocketID, AdminName: target.Name})
		return
	}
	r.mu.Unlock()

	r.metrics.CallDispatched(string(m.CallType))
	r.deliver(target.SocketID, signal.IncomingAdminCall{
		SocketID:  callerID,
		AdminData: signal.AdminProfile{PhoneNumber: caller.PhoneNumber, Name: caller.Name},
		CallType:  m.CallType,
	})
	r.deliver(callerID, signal.AdminCallSent{TargetAdminID: target.SocketID, PhoneNumber: m.TargetAdminPhone})
}

func (r *Router) acceptAdminCall(socketID string, m signal.AcceptAdminCall) {
	r.mu.Lock()
	r.pairLocked(socketID, m.AdminID)
	r.mu.Unlock()

	r.metrics.CallAccepted(string(m.CallType))
	r.forwardTo(m.AdminID, signal.AdminCallAccepted{AdminID: socketID, CallType: m.CallType})
}

func (r *Router) forwardTo(target string, msg signal.Message) {
	if target == "" {
		return
	}
	r.mu.Lock()
	known := r.dir.Known(target)
	r.mu.Unlock()
	if !known {
		log.Printf("relay: dropping %s for unknown target %s", msg.Type(), target)
		r.metrics.MessageError(string(msg.Type()), "unknown_target")
		return
	}
	r.deliver(target, msg)
}

// deliver hands the event to the transport, which records send metrics.
func (r *Router) deliver(socketID string, msg signal.Message) {
	if r.send == nil {
		return
	}
	r.send.Send(socketID, msg)
}

func (r *Router) pairLocked(a, b string) {
	now := time.Now()
	r.busy[a] = busyEntry{peer: b, since: now}
	r.busy[b] = busyEntry{peer: a, since: now}
}

func (r *Router) endPairLocked(socketID string) {
	if entry, ok := r.busy[socketID]; ok {
		delete(r.busy, entry.peer)
		delete(r.busy, socketID)
	}
}

// Stats reports roster and call counts for the status endpoint.
func (r *Router) Stats() (clients, admins, activeCalls int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.dir.Clients()), len(r.dir.Admins()), len(r.busy) / 2
}

// stopRingLocked retires the pending ring timer for socketID and reports
// whether one was still pending.
func (r *Router) stopRingLocked(socketID string) bool {
	if t, ok := r.ringing[socketID]; ok {
		t.Stop()
		delete(r.ringing, socketID)
		return true
	}
	return false
}
